// Package storage holds the configuration shared by tally's persistence
// backends.
//
// # Backends
//
// The search index is pluggable (see search.IndexStore):
//
//   - memory: search.MemoryStore, rebuilt from the entity tables at startup
//   - postgres: postgres.IndexStore, a search_index table read through the
//     connection manager's replica pool
//   - badger: badger.IndexStore, an embedded key-value store on local disk
//
// Saved searches, search history and the entity tables always live in
// PostgreSQL. Redis is optional; when configured it backs the distributed
// rebuild lock (postgres.RedisLocker) and the shared rate limit windows.
// S3 is optional and backs index snapshots (snapshot.S3Client).
//
// backend.Open assembles the configured pieces into one Backend.
//
// # Configuration
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = "postgres://tally@localhost/tally?sslmode=disable"
//	cfg.IndexBackend = storage.IndexBackendBadger
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
package storage
