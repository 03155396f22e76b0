package backend

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tally/pkg/search"
	"github.com/platinummonkey/tally/pkg/search/searchtest"
	"github.com/platinummonkey/tally/pkg/storage"
	"github.com/platinummonkey/tally/pkg/storage/postgres"
	"github.com/platinummonkey/tally/pkg/storage/snapshot"
)

type fakeSources struct {
	calls int
}

func (f *fakeSources) ListContacts(context.Context) ([]search.Contact, error) {
	f.calls++
	return []search.Contact{{ID: "c-1", Name: "Jane Roe", CreatedAt: searchtest.Epoch}}, nil
}

func (f *fakeSources) ListProjects(context.Context) ([]search.Project, error) {
	return nil, nil
}

func (f *fakeSources) ListTasks(context.Context) ([]search.Task, error) {
	return []search.Task{{ID: "t-1", Title: "Quarterly report", CreatedAt: searchtest.Epoch}}, nil
}

type memSnapshots struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memSnapshots) PutObject(_ context.Context, key string, content io.Reader, _ string) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memSnapshots) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", snapshot.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memSnapshots) HealthCheck(context.Context) error { return nil }

func sqliteConns(t *testing.T) *postgres.ConnectionManager {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return postgres.NewConnectionManagerFromDB(db)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		cfg        func(c *storage.Config)
		persistent bool
	}{
		{name: "memory", cfg: func(c *storage.Config) {}},
		{name: "postgres", cfg: func(c *storage.Config) { c.IndexBackend = storage.IndexBackendPostgres }, persistent: true},
		{name: "badger", cfg: func(c *storage.Config) {
			c.IndexBackend = storage.IndexBackendBadger
			c.BadgerPath = filepath.Join(t.TempDir(), "index")
		}, persistent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storage.DefaultConfig()
			tt.cfg(&cfg)

			b, err := Open(ctx, cfg, sqliteConns(t), nil)
			require.NoError(t, err)
			defer func() { assert.NoError(t, b.Close()) }()

			assert.Equal(t, tt.persistent, b.Persistent)
			assert.Nil(t, b.Locker)
			assert.Nil(t, b.Snapshots)

			require.NoError(t, b.Index.Upsert(ctx, searchtest.Entry(search.EntityTypeTask, "t-1", "Quarterly report", searchtest.Epoch)))
			n, err := b.Index.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := storage.DefaultConfig()
	cfg.IndexBackend = "etcd"
	_, err := Open(ctx, cfg, nil, nil)
	assert.ErrorContains(t, err, "invalid index backend")

	cfg.IndexBackend = storage.IndexBackendPostgres
	_, err = Open(ctx, cfg, nil, nil)
	assert.ErrorContains(t, err, "requires a database")

	cfg = storage.DefaultConfig()
	cfg.RedisURL = "redis://127.0.0.1:1"
	_, err = Open(ctx, cfg, nil, nil)
	assert.Error(t, err)
}

func TestOpen_RedisLocker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	b, err := Open(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NotNil(t, b.Redis)
	require.NotNil(t, b.Locker)

	release, ok, err := b.Locker.TryLock(ctx, search.RebuildLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(search.RebuildLockKey))
	require.NoError(t, release(ctx))
}

func TestWarm_RebuildsEmptyIndex(t *testing.T) {
	ctx := context.Background()
	b := &Backend{Index: search.NewMemoryStore()}
	sources := &fakeSources{}
	indexer := search.NewIndexer(b.Index, sources, search.IndexerConfig{})

	require.NoError(t, b.Warm(ctx, indexer, "snap", true, true, nil))
	n, _ := b.Index.Count(ctx)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, sources.calls)
}

func TestWarm_SkipsRebuildWhenDisabled(t *testing.T) {
	ctx := context.Background()
	b := &Backend{Index: search.NewMemoryStore()}
	sources := &fakeSources{}

	require.NoError(t, b.Warm(ctx, search.NewIndexer(b.Index, sources, search.IndexerConfig{}), "snap", true, false, nil))
	assert.Zero(t, sources.calls)
}

func TestWarm_KeepsPopulatedPersistentIndex(t *testing.T) {
	ctx := context.Background()
	b := &Backend{Index: search.NewMemoryStore(), Persistent: true}
	require.NoError(t, b.Index.Upsert(ctx, searchtest.Entry(search.EntityTypeProject, "p-1", "Acme Rollout", searchtest.Epoch)))
	sources := &fakeSources{}

	require.NoError(t, b.Warm(ctx, search.NewIndexer(b.Index, sources, search.IndexerConfig{}), "snap", true, true, nil))
	assert.Zero(t, sources.calls)
	_, err := b.Index.Get(ctx, search.EntityTypeProject, "p-1")
	assert.NoError(t, err)
}

func TestWarm_RestoresSnapshotBeforeRebuilding(t *testing.T) {
	ctx := context.Background()
	objects := &memSnapshots{objects: map[string][]byte{}}

	// export from one process
	source := &Backend{Index: search.NewMemoryStore(), Snapshots: objects}
	require.NoError(t, source.Index.Upsert(ctx, searchtest.Entry(search.EntityTypeProject, "p-1", "Acme Rollout", searchtest.Epoch)))
	n, err := source.ExportSnapshot(ctx, "snap")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// restore in another
	b := &Backend{Index: search.NewMemoryStore(), Snapshots: objects}
	sources := &fakeSources{}
	require.NoError(t, b.Warm(ctx, search.NewIndexer(b.Index, sources, search.IndexerConfig{}), "snap", true, true, nil))

	assert.Zero(t, sources.calls, "a restored snapshot needs no rebuild")
	_, err = b.Index.Get(ctx, search.EntityTypeProject, "p-1")
	assert.NoError(t, err)

	// a missing snapshot falls back to rebuilding
	fresh := &Backend{Index: search.NewMemoryStore(), Snapshots: objects}
	require.NoError(t, fresh.Warm(ctx, search.NewIndexer(fresh.Index, sources, search.IndexerConfig{}), "other", true, true, nil))
	assert.Equal(t, 1, sources.calls)
}

func TestExportSnapshot_Disabled(t *testing.T) {
	n, err := (&Backend{Index: search.NewMemoryStore()}).ExportSnapshot(context.Background(), "snap")
	require.NoError(t, err)
	assert.Zero(t, n)
}
