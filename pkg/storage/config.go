package storage

import (
	"fmt"
	"time"
)

// IndexBackend selects the search.IndexStore implementation
type IndexBackend string

const (
	IndexBackendMemory   IndexBackend = "memory"
	IndexBackendPostgres IndexBackend = "postgres"
	IndexBackendBadger   IndexBackend = "badger"
)

// Config for storage backends
type Config struct {
	IndexBackend IndexBackend `yaml:"index_backend"`

	// Badger config
	BadgerPath string `yaml:"badger_path"`

	// PostgreSQL config. The database also holds saved searches, history
	// and the entity tables read by the records store.
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs string        `yaml:"postgres_replica_urls"` // comma separated
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`
	PostgresMaxLifetime time.Duration `yaml:"postgres_max_lifetime"`
	PostgresMaxIdleTime time.Duration `yaml:"postgres_max_idle_time"`

	// Redis config. Optional; enables the distributed rebuild lock.
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`

	// S3 config. Optional; enables index snapshots.
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	SnapshotKey    string `yaml:"snapshot_key"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		IndexBackend:        IndexBackendMemory,
		BadgerPath:          "/var/lib/tally/index",
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		PostgresMaxIdleTime: 5 * time.Minute,
		RedisDB:             0,
		RedisMaxRetries:     3,
		RedisPoolSize:       10,
		S3Region:            "us-east-1",
		SnapshotKey:         "snapshots/search-index.json.gz",
	}
}

// RedisEnabled reports whether a Redis URL is configured
func (c Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// SnapshotsEnabled reports whether an S3 bucket is configured
func (c Config) SnapshotsEnabled() bool {
	return c.S3Bucket != ""
}

// Validate checks backend-specific requirements
func (c Config) Validate() error {
	if c.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.IndexBackend {
	case IndexBackendMemory, IndexBackendPostgres:
	case IndexBackendBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("badger path is required for badger index backend")
		}
	default:
		return fmt.Errorf("invalid index backend: %s (must be memory, postgres, or badger)", c.IndexBackend)
	}

	if c.PostgresMaxConns < 1 {
		return fmt.Errorf("postgres max conns must be positive")
	}
	if c.SnapshotsEnabled() && c.SnapshotKey == "" {
		return fmt.Errorf("snapshot key is required when an S3 bucket is configured")
	}
	return nil
}
