package savedsearch

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the saved search and history tables. Timestamps are
// stored as integers: milliseconds for saved searches, nanoseconds for
// history so trimming can order rapid successive writes.
const Schema = `
CREATE TABLE IF NOT EXISTS saved_searches (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	entity_type TEXT NOT NULL,
	query       TEXT NOT NULL,
	filters     TEXT NOT NULL DEFAULT '{}',
	sort_by     TEXT,
	is_public   BOOLEAN NOT NULL DEFAULT FALSE,
	is_default  BOOLEAN NOT NULL DEFAULT FALSE,
	usage_count INTEGER NOT NULL DEFAULT 0,
	last_used   BIGINT,
	created_at  BIGINT NOT NULL,
	updated_at  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_saved_searches_owner ON saved_searches (owner_id);
CREATE INDEX IF NOT EXISTS idx_saved_searches_public ON saved_searches (is_public);

CREATE TABLE IF NOT EXISTS search_history (
	id             TEXT PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	query          TEXT NOT NULL,
	entity_type    TEXT NOT NULL,
	results_count  INTEGER NOT NULL,
	search_time_ms BIGINT NOT NULL,
	searched_at    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_history_owner ON search_history (owner_id, searched_at);
`

// Migrate applies Schema
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create saved search schema: %w", err)
	}
	return nil
}
