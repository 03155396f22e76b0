// Package config loads tally's configuration.
//
// Values are layered: built-in defaults, then the YAML file named by
// TALLY_CONFIG_FILE (when set), then TALLY_* environment variables. The
// result is validated before use.
//
// # Environment
//
// Server settings:
//
//	TALLY_HOST="0.0.0.0"
//	TALLY_PORT="8080"
//	TALLY_HEALTH_PORT="9090"
//	TALLY_READ_TIMEOUT="15s"
//	TALLY_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	TALLY_POSTGRES_URL="postgres://localhost/tally?sslmode=disable"
//	TALLY_POSTGRES_REPLICA_URLS="postgres://replica-1/tally,postgres://replica-2/tally"
//	TALLY_INDEX_BACKEND="memory"  # memory, postgres, badger
//	TALLY_BADGER_PATH="/var/lib/tally/index"
//	TALLY_REDIS_URL="redis://localhost:6379"
//	TALLY_S3_BUCKET="tally-snapshots"
//
// Search settings:
//
//	TALLY_INDEX_WORKERS="4"
//	TALLY_ENRICHMENT_CACHE_SIZE="1024"  # 0 disables the cache
//	TALLY_HISTORY_LIMIT="100"
//	TALLY_REBUILD_SCHEDULE="0 3 * * *"
//	TALLY_REBUILD_ON_START="true"
//
// Observability settings:
//
//	TALLY_LOG_LEVEL="info"  # debug, info, warn, error
//	TALLY_METRICS_ENABLED="true"
//	TALLY_OTEL_ENABLED="true"
//	TALLY_OTEL_ENDPOINT="otel-collector:4317"
//
// # File
//
// The YAML file uses the same sections with snake_case keys:
//
//	server:
//	  port: "8080"
//	storage:
//	  index_backend: badger
//	  badger_path: /data/index
//	search:
//	  rebuild_schedule: "*/30 * * * *"
//	observability:
//	  log_level: debug
//
// Watch reloads the file on change; tally applies the new log level
// without a restart.
package config
