package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/storage"
)

// FileEnv names the optional YAML file applied before environment overrides
const FileEnv = "TALLY_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	// Search engine and indexing configuration
	Search SearchConfig `yaml:"search"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	// Per caller request limits, per minute. Shared through Redis when it
	// is configured.
	RateLimitEnabled   bool `yaml:"rate_limit_enabled"`
	RateLimitUser      int  `yaml:"rate_limit_user"`
	RateLimitAnonymous int  `yaml:"rate_limit_anonymous"`
	RateLimitBurst     int  `yaml:"rate_limit_burst"`
}

// SearchConfig holds index maintenance and query settings
type SearchConfig struct {
	// Background index maintenance pool
	IndexWorkers     int           `yaml:"index_workers"`
	IndexTaskTimeout time.Duration `yaml:"index_task_timeout"`

	// Project and user name cache used while enriching results; size 0
	// disables it
	EnrichmentCacheSize int           `yaml:"enrichment_cache_size"`
	EnrichmentCacheTTL  time.Duration `yaml:"enrichment_cache_ttl"`

	HistoryLimit  int `yaml:"history_limit"`
	MaxHighlights int `yaml:"max_highlights"`

	// Full rebuilds. The schedule is a standard five field cron expression
	// used by tally-indexer.
	RebuildSchedule string        `yaml:"rebuild_schedule"`
	RebuildLockTTL  time.Duration `yaml:"rebuild_lock_ttl"`
	RebuildTimeout  time.Duration `yaml:"rebuild_timeout"`
	RebuildOnStart  bool          `yaml:"rebuild_on_start"`

	// Restore the index from the S3 snapshot at startup when snapshots are
	// configured
	RestoreSnapshot bool `yaml:"restore_snapshot"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging: debug, info, warn or error
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (c ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(c.LogLevel)
}

// OTel returns the tracing settings in the form InitOTel takes
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",

			RateLimitEnabled:   true,
			RateLimitUser:      600,
			RateLimitAnonymous: 60,
			RateLimitBurst:     20,
		},
		Storage: storage.DefaultConfig(),
		Search: SearchConfig{
			IndexWorkers:        4,
			IndexTaskTimeout:    30 * time.Second,
			EnrichmentCacheSize: 1024,
			EnrichmentCacheTTL:  5 * time.Minute,
			HistoryLimit:        100,
			MaxHighlights:       3,
			RebuildSchedule:     "0 3 * * *",
			RebuildLockTTL:      10 * time.Minute,
			RebuildTimeout:      30 * time.Minute,
			RebuildOnStart:      true,
			RestoreSnapshot:     true,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tally",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig loads the defaults, the YAML file named by TALLY_CONFIG_FILE
// when set, then environment overrides
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(os.Getenv(FileEnv))
}

// LoadConfigFrom is LoadConfig with an explicit file; an empty path skips
// the file
func LoadConfigFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyServerEnv(&cfg.Server)
	applyStorageEnv(&cfg.Storage)
	applySearchEnv(&cfg.Search)
	applyObservabilityEnv(&cfg.Observability)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML file onto cfg. Keys absent from the file keep
// their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyServerEnv(cfg *ServerConfig) {
	cfg.Host = getEnv("TALLY_HOST", cfg.Host)
	cfg.Port = getEnv("TALLY_PORT", cfg.Port)
	cfg.ReadTimeout = getEnvDuration("TALLY_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getEnvDuration("TALLY_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = getEnvDuration("TALLY_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ShutdownTimeout = getEnvDuration("TALLY_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.HealthPort = getEnv("TALLY_HEALTH_PORT", cfg.HealthPort)
	cfg.RateLimitEnabled = getEnvBool("TALLY_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitUser = getEnvInt("TALLY_RATE_LIMIT_USER", cfg.RateLimitUser)
	cfg.RateLimitAnonymous = getEnvInt("TALLY_RATE_LIMIT_ANONYMOUS", cfg.RateLimitAnonymous)
	cfg.RateLimitBurst = getEnvInt("TALLY_RATE_LIMIT_BURST", cfg.RateLimitBurst)
}

func applyStorageEnv(cfg *storage.Config) {
	cfg.IndexBackend = storage.IndexBackend(getEnv("TALLY_INDEX_BACKEND", string(cfg.IndexBackend)))
	cfg.BadgerPath = getEnv("TALLY_BADGER_PATH", cfg.BadgerPath)

	// PostgreSQL config
	cfg.PostgresURL = getEnv("TALLY_POSTGRES_URL", cfg.PostgresURL)
	cfg.PostgresReplicaURLs = getEnv("TALLY_POSTGRES_REPLICA_URLS", cfg.PostgresReplicaURLs)
	cfg.PostgresMaxConns = getEnvInt("TALLY_POSTGRES_MAX_CONNS", cfg.PostgresMaxConns)
	cfg.PostgresMinConns = getEnvInt("TALLY_POSTGRES_MIN_CONNS", cfg.PostgresMinConns)
	cfg.PostgresTimeout = getEnvDuration("TALLY_POSTGRES_TIMEOUT", cfg.PostgresTimeout)
	cfg.PostgresMaxLifetime = getEnvDuration("TALLY_POSTGRES_MAX_LIFETIME", cfg.PostgresMaxLifetime)
	cfg.PostgresMaxIdleTime = getEnvDuration("TALLY_POSTGRES_MAX_IDLE_TIME", cfg.PostgresMaxIdleTime)

	// Redis config
	cfg.RedisURL = getEnv("TALLY_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("TALLY_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("TALLY_REDIS_DB", cfg.RedisDB)
	cfg.RedisMaxRetries = getEnvInt("TALLY_REDIS_MAX_RETRIES", cfg.RedisMaxRetries)
	cfg.RedisPoolSize = getEnvInt("TALLY_REDIS_POOL_SIZE", cfg.RedisPoolSize)

	// S3 config
	cfg.S3Endpoint = getEnv("TALLY_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("TALLY_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("TALLY_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("TALLY_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("TALLY_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("TALLY_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)
	cfg.SnapshotKey = getEnv("TALLY_SNAPSHOT_KEY", cfg.SnapshotKey)
}

func applySearchEnv(cfg *SearchConfig) {
	cfg.IndexWorkers = getEnvInt("TALLY_INDEX_WORKERS", cfg.IndexWorkers)
	cfg.IndexTaskTimeout = getEnvDuration("TALLY_INDEX_TASK_TIMEOUT", cfg.IndexTaskTimeout)
	cfg.EnrichmentCacheSize = getEnvInt("TALLY_ENRICHMENT_CACHE_SIZE", cfg.EnrichmentCacheSize)
	cfg.EnrichmentCacheTTL = getEnvDuration("TALLY_ENRICHMENT_CACHE_TTL", cfg.EnrichmentCacheTTL)
	cfg.HistoryLimit = getEnvInt("TALLY_HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.MaxHighlights = getEnvInt("TALLY_MAX_HIGHLIGHTS", cfg.MaxHighlights)
	cfg.RebuildSchedule = getEnv("TALLY_REBUILD_SCHEDULE", cfg.RebuildSchedule)
	cfg.RebuildLockTTL = getEnvDuration("TALLY_REBUILD_LOCK_TTL", cfg.RebuildLockTTL)
	cfg.RebuildTimeout = getEnvDuration("TALLY_REBUILD_TIMEOUT", cfg.RebuildTimeout)
	cfg.RebuildOnStart = getEnvBool("TALLY_REBUILD_ON_START", cfg.RebuildOnStart)
	cfg.RestoreSnapshot = getEnvBool("TALLY_SNAPSHOT_RESTORE", cfg.RestoreSnapshot)
}

func applyObservabilityEnv(cfg *ObservabilityConfig) {
	cfg.LogLevel = getEnv("TALLY_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsEnabled = getEnvBool("TALLY_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.OTelEnabled = getEnvBool("TALLY_OTEL_ENABLED", cfg.OTelEnabled)
	cfg.OTelEndpoint = getEnv("TALLY_OTEL_ENDPOINT", cfg.OTelEndpoint)
	cfg.OTelServiceName = getEnv("TALLY_OTEL_SERVICE_NAME", cfg.OTelServiceName)
	cfg.OTelServiceVersion = getEnv("TALLY_OTEL_SERVICE_VERSION", cfg.OTelServiceVersion)
	cfg.OTelInsecure = getEnvBool("TALLY_OTEL_INSECURE", cfg.OTelInsecure)
	cfg.OTelSampleRatio = getEnvFloat("TALLY_OTEL_SAMPLE_RATIO", cfg.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RateLimitUser < 1 || c.Server.RateLimitAnonymous < 1 {
			return fmt.Errorf("rate limits must be positive")
		}
		if c.Server.RateLimitBurst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	// Validate search config
	if c.Search.IndexWorkers < 1 {
		return fmt.Errorf("index workers must be positive")
	}
	if c.Search.EnrichmentCacheSize < 0 {
		return fmt.Errorf("enrichment cache size must not be negative")
	}
	if c.Search.HistoryLimit < 1 {
		return fmt.Errorf("history limit must be positive")
	}
	if _, err := cron.ParseStandard(c.Search.RebuildSchedule); err != nil {
		return fmt.Errorf("invalid rebuild schedule %q: %w", c.Search.RebuildSchedule, err)
	}

	// Validate observability config
	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	if err := c.Observability.OTel().Validate(); err != nil {
		return err
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be within [0, 1]")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
