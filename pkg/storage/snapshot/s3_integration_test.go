//go:build integration

package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tally/pkg/search"
	"github.com/platinummonkey/tally/pkg/storage"
)

// setupMinIO creates a MinIO testcontainer and returns an S3Client configured to use it
func setupMinIO(t *testing.T) *S3Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start MinIO container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate MinIO container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.S3Endpoint = "http://" + host + ":" + port.Port()
	cfg.S3AccessKey = "minioadmin"
	cfg.S3SecretKey = "minioadmin"
	cfg.S3Bucket = "tally-test"
	cfg.S3UsePathStyle = true

	client, err := NewS3Client(ctx, cfg)
	require.NoError(t, err, "Failed to create S3 client")
	return client
}

func TestSnapshot_MinIO_Integration(t *testing.T) {
	ctx := context.Background()
	client := setupMinIO(t)
	require.NoError(t, client.HealthCheck(ctx))

	n, err := Export(ctx, seeded(t), client, cfgKey)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	target := search.NewMemoryStore()
	n, err = Restore(ctx, target, client, cfgKey)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = Restore(ctx, target, client, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

const cfgKey = "snapshots/search-index.json.gz"
