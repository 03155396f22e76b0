package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tally/pkg/search"
)

var tracer = otel.Tracer("tally/storage/postgres")

// IndexSchema creates the search_index table. Index freshness timestamps
// are unix milliseconds; keywords and metadata are JSON documents.
const IndexSchema = `
CREATE TABLE IF NOT EXISTS search_index (
	entity_type        VARCHAR(16)  NOT NULL,
	entity_id          VARCHAR(255) NOT NULL,
	searchable_content TEXT         NOT NULL,
	keywords           TEXT         NOT NULL DEFAULT '[]',
	metadata           TEXT         NOT NULL DEFAULT '{}',
	created_at         BIGINT       NOT NULL,
	updated_at         BIGINT       NOT NULL,
	PRIMARY KEY (entity_type, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_search_index_created ON search_index (created_at);
`

// MigrateIndex applies IndexSchema
func MigrateIndex(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, IndexSchema); err != nil {
		return fmt.Errorf("failed to create search index schema: %w", err)
	}
	return nil
}

// DB routes writes to a primary pool and reads to a replica pool.
// *ConnectionManager satisfies it.
type DB interface {
	Primary() *sql.DB
	Replica() *sql.DB
}

// IndexStore is a search.IndexStore over the search_index table
type IndexStore struct {
	db DB
}

var _ search.IndexStore = (*IndexStore)(nil)

// NewIndexStore creates an index store; the table must already exist
func NewIndexStore(db DB) *IndexStore {
	return &IndexStore{db: db}
}

const upsertEntrySQL = `
INSERT INTO search_index (entity_type, entity_id, searchable_content, keywords, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (entity_type, entity_id) DO UPDATE SET
	searchable_content = excluded.searchable_content,
	keywords = excluded.keywords,
	metadata = excluded.metadata,
	updated_at = excluded.updated_at`

const selectEntryColumns = `SELECT entity_type, entity_id, searchable_content, keywords, metadata, created_at, updated_at FROM search_index`

func (s *IndexStore) Upsert(ctx context.Context, entry *search.IndexEntry) error {
	ctx, span := startSpan(ctx, "IndexStore.Upsert", entry.EntityType)
	defer span.End()

	keywords, err := json.Marshal(nonNil(entry.Keywords))
	if err != nil {
		return spanError(span, fmt.Errorf("failed to encode keywords: %w", err))
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to encode metadata: %w", err))
	}

	_, err = s.db.Primary().ExecContext(ctx, upsertEntrySQL,
		string(entry.EntityType),
		entry.EntityID,
		entry.SearchableContent,
		string(keywords),
		string(metadata),
		entry.CreatedAt.UnixMilli(),
		entry.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to upsert index entry %s/%s: %w", entry.EntityType, entry.EntityID, err))
	}
	return nil
}

func (s *IndexStore) Remove(ctx context.Context, entityType search.EntityType, entityID string) error {
	ctx, span := startSpan(ctx, "IndexStore.Remove", entityType)
	defer span.End()

	_, err := s.db.Primary().ExecContext(ctx,
		`DELETE FROM search_index WHERE entity_type = $1 AND entity_id = $2`,
		string(entityType), entityID)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to remove index entry %s/%s: %w", entityType, entityID, err))
	}
	return nil
}

func (s *IndexStore) Get(ctx context.Context, entityType search.EntityType, entityID string) (*search.IndexEntry, error) {
	ctx, span := startSpan(ctx, "IndexStore.Get", entityType)
	defer span.End()

	row := s.db.Replica().QueryRowContext(ctx,
		selectEntryColumns+` WHERE entity_type = $1 AND entity_id = $2`,
		string(entityType), entityID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, search.ErrNotFound
	}
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to get index entry %s/%s: %w", entityType, entityID, err))
	}
	return entry, nil
}

func (s *IndexStore) Scan(ctx context.Context, filter search.EntityType) ([]*search.IndexEntry, error) {
	ctx, span := startSpan(ctx, "IndexStore.Scan", filter)
	defer span.End()

	query := selectEntryColumns
	var args []interface{}
	if filter != "" && filter != search.EntityTypeAll {
		query += ` WHERE entity_type = $1`
		args = append(args, string(filter))
	}
	query += ` ORDER BY created_at, entity_type, entity_id`

	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to scan index: %w", err))
	}
	defer rows.Close()

	entries := []*search.IndexEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, spanError(span, fmt.Errorf("failed to read index entry: %w", err))
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to scan index: %w", err))
	}

	span.SetAttributes(attribute.Int("index.entries", len(entries)))
	return entries, nil
}

func (s *IndexStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.Replica().QueryRowContext(ctx, `SELECT COUNT(*) FROM search_index`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count index entries: %w", err)
	}
	return count, nil
}

func (s *IndexStore) Clear(ctx context.Context) error {
	ctx, span := startSpan(ctx, "IndexStore.Clear", search.EntityTypeAll)
	defer span.End()

	if _, err := s.db.Primary().ExecContext(ctx, `DELETE FROM search_index`); err != nil {
		return spanError(span, fmt.Errorf("failed to clear index: %w", err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*search.IndexEntry, error) {
	var (
		entityType, keywords, metadata string
		createdAt, updatedAt           int64
		entry                          search.IndexEntry
	)
	if err := row.Scan(&entityType, &entry.EntityID, &entry.SearchableContent, &keywords, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keywords), &entry.Keywords); err != nil {
		return nil, fmt.Errorf("corrupt keywords for %s/%s: %w", entityType, entry.EntityID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s/%s: %w", entityType, entry.EntityID, err)
	}

	entry.EntityType = search.EntityType(entityType)
	entry.CreatedAt = time.UnixMilli(createdAt).UTC()
	entry.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &entry, nil
}

func startSpan(ctx context.Context, name string, entityType search.EntityType) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("entity.type", string(entityType)),
	))
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
