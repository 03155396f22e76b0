package records

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema describes the entity tables this package reads. The entity
// services own and migrate them in production; Migrate exists for local
// development and tests. Timestamps are unix milliseconds and tags are JSON
// arrays.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member'
);

CREATE TABLE IF NOT EXISTS contacts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	email      TEXT,
	phone      TEXT,
	company    TEXT,
	notes      TEXT,
	status     TEXT,
	tags       TEXT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	company     TEXT,
	status      TEXT,
	priority    TEXT,
	tags        TEXT,
	created_by  TEXT,
	created_at  BIGINT NOT NULL,
	updated_at  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT,
	status      TEXT,
	priority    TEXT,
	tags        TEXT,
	project_id  TEXT,
	assignee_id TEXT,
	created_at  BIGINT NOT NULL,
	updated_at  BIGINT NOT NULL
);
`

// Migrate applies Schema
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create entity schema: %w", err)
	}
	return nil
}
