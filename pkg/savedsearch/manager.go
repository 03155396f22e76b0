package savedsearch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/search"
)

var managerTracer = otel.Tracer("tally/savedsearch")

const (
	// DefaultHistoryLimit is the number of history entries kept per owner
	DefaultHistoryLimit = 100

	// DefaultHistoryPage is the page size of GetHistory
	DefaultHistoryPage = 20
)

// Config holds the optional collaborators of a Manager
type Config struct {
	HistoryLimit int

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Now defaults to time.Now
	Now func() time.Time
}

// Manager stores saved searches and search history
type Manager struct {
	db           *sql.DB
	historyLimit int
	logger       *observability.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

var _ search.HistoryRecorder = (*Manager)(nil)

// NewManager creates a manager over db. The schema must already exist; see Migrate.
func NewManager(db *sql.DB, cfg Config) *Manager {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		db:           db,
		historyLimit: cfg.HistoryLimit,
		logger:       cfg.Logger.OrNop(),
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
}

const savedSearchColumns = `id, owner_id, name, description, entity_type, query, filters, sort_by,
	is_public, is_default, usage_count, last_used, created_at, updated_at`

// Save validates def and stores it as a new search owned by ownerID.
// A default search replaces the owner's previous default.
func (m *Manager) Save(ctx context.Context, def SavedSearch, ownerID string) (result *SavedSearch, err error) {
	ctx, span := managerTracer.Start(ctx, "Save",
		trace.WithAttributes(attribute.Bool("is_default", def.IsDefault)),
	)
	defer func() { m.finish(span, "create", err) }()

	if strings.TrimSpace(ownerID) == "" {
		return nil, validationError("owner is required")
	}
	if err := def.normalize(); err != nil {
		return nil, err
	}

	now := m.now().UTC().Truncate(time.Millisecond)
	def.ID = uuid.New().String()
	def.OwnerID = ownerID
	def.UsageCount = 0
	def.LastUsed = nil
	def.CreatedAt = now
	def.UpdatedAt = now

	filters, sortBy, err := encodeDefinition(&def)
	if err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if def.IsDefault {
			if err := clearDefault(ctx, tx, ownerID, "", now); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO saved_searches (`+savedSearchColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			def.ID, def.OwnerID, def.Name, def.Description, string(def.EntityType), def.Query,
			filters, sortBy, def.IsPublic, def.IsDefault, 0, nil, now.UnixMilli(), now.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert saved search: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"saved_search_id": def.ID,
		"owner_id":        ownerID,
	}).Debug("saved search created")
	return &def, nil
}

// Get returns the search if callerID owns it or it is public
func (m *Manager) Get(ctx context.Context, id, callerID string) (*SavedSearch, error) {
	ctx, span := managerTracer.Start(ctx, "Get")
	defer span.End()

	s, err := m.load(ctx, m.db, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load saved search")
		}
		return nil, err
	}
	if !s.IsPublic && s.OwnerID != callerID {
		return nil, ErrNotFound
	}
	return s, nil
}

// Update replaces the definition of a search owned by ownerID. Usage
// statistics and creation time are kept.
func (m *Manager) Update(ctx context.Context, id, ownerID string, def SavedSearch) (result *SavedSearch, err error) {
	ctx, span := managerTracer.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("saved_search_id", id)),
	)
	defer func() { m.finish(span, "update", err) }()

	if err := def.normalize(); err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := m.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing.OwnerID != ownerID {
			return ErrForbidden
		}

		now := m.now().UTC().Truncate(time.Millisecond)
		def.ID = existing.ID
		def.OwnerID = existing.OwnerID
		def.UsageCount = existing.UsageCount
		def.LastUsed = existing.LastUsed
		def.CreatedAt = existing.CreatedAt
		def.UpdatedAt = now

		filters, sortBy, err := encodeDefinition(&def)
		if err != nil {
			return err
		}

		if def.IsDefault {
			if err := clearDefault(ctx, tx, ownerID, id, now); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE saved_searches
			SET name = $1, description = $2, entity_type = $3, query = $4, filters = $5,
				sort_by = $6, is_public = $7, is_default = $8, updated_at = $9
			WHERE id = $10`,
			def.Name, def.Description, string(def.EntityType), def.Query, filters,
			sortBy, def.IsPublic, def.IsDefault, now.UnixMilli(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to update saved search: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// List returns the searches visible to ownerID (its own plus public ones, or
// only public ones when ownerID is empty), most used first. A non-empty
// entityType other than all restricts the list to that type.
func (m *Manager) List(ctx context.Context, ownerID string, entityType search.EntityType) ([]SavedSearch, error) {
	ctx, span := managerTracer.Start(ctx, "List",
		trace.WithAttributes(attribute.String("entity_type", string(entityType))),
	)
	defer span.End()

	var (
		where []string
		args  []interface{}
	)
	if ownerID != "" {
		args = append(args, ownerID, true)
		where = append(where, "(owner_id = $1 OR is_public = $2)")
	} else {
		args = append(args, true)
		where = append(where, "is_public = $1")
	}
	if entityType != "" && entityType != search.EntityTypeAll {
		args = append(args, string(entityType))
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}

	query := `SELECT ` + savedSearchColumns + ` FROM saved_searches WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY usage_count DESC, created_at DESC, id ASC`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list saved searches")
		return nil, fmt.Errorf("failed to list saved searches: %w", err)
	}
	defer rows.Close()

	searches := make([]SavedSearch, 0)
	for rows.Next() {
		s, err := scanSavedSearch(rows)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		searches = append(searches, *s)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating saved searches: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(searches)))
	return searches, nil
}

// RecordUsage increments the usage count and stamps the last use
func (m *Manager) RecordUsage(ctx context.Context, id string) (err error) {
	ctx, span := managerTracer.Start(ctx, "RecordUsage",
		trace.WithAttributes(attribute.String("saved_search_id", id)),
	)
	defer func() { m.finish(span, "use", err) }()

	result, err := m.db.ExecContext(ctx,
		`UPDATE saved_searches SET usage_count = usage_count + 1, last_used = $1 WHERE id = $2`,
		m.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record saved search usage: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a search owned by ownerID
func (m *Manager) Delete(ctx context.Context, id, ownerID string) (err error) {
	ctx, span := managerTracer.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("saved_search_id", id)),
	)
	defer func() { m.finish(span, "delete", err) }()

	return m.inTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT owner_id FROM saved_searches WHERE id = $1`, id).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load saved search: %w", err)
		}
		if owner != ownerID {
			return ErrForbidden
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete saved search: %w", err)
		}
		return nil
	})
}

// RecordHistory appends an executed search and trims the owner's history
// to the newest HistoryLimit entries.
func (m *Manager) RecordHistory(ctx context.Context, ownerID, query string, entityType search.EntityType, resultsCount int, searchTime int64) (err error) {
	ctx, span := managerTracer.Start(ctx, "RecordHistory")
	defer func() {
		m.metrics.ObserveHistoryWrite(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to record history")
		}
		span.End()
	}()

	if ownerID == "" {
		return validationError("owner is required")
	}
	if entityType == "" {
		entityType = search.EntityTypeAll
	}

	return m.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO search_history (id, owner_id, query, entity_type, results_count, search_time_ms, searched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New().String(), ownerID, query, string(entityType), resultsCount, searchTime, m.now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert search history: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM search_history
			WHERE owner_id = $1 AND id NOT IN (
				SELECT id FROM search_history
				WHERE owner_id = $2
				ORDER BY searched_at DESC, id DESC
				LIMIT $3
			)`,
			ownerID, ownerID, m.historyLimit,
		)
		if err != nil {
			return fmt.Errorf("failed to trim search history: %w", err)
		}
		return nil
	})
}

// GetHistory returns the owner's most recent searches, newest first
func (m *Manager) GetHistory(ctx context.Context, ownerID string, limit int) ([]HistoryEntry, error) {
	ctx, span := managerTracer.Start(ctx, "GetHistory",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	if limit <= 0 {
		limit = DefaultHistoryPage
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, owner_id, query, entity_type, results_count, search_time_ms, searched_at
		FROM search_history
		WHERE owner_id = $1
		ORDER BY searched_at DESC, id DESC
		LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query history")
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			e          HistoryEntry
			entityType string
			searchedAt int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Query, &entityType, &e.ResultsCount, &e.SearchTime, &searchedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan search history: %w", err)
		}
		e.EntityType = search.EntityType(entityType)
		e.Timestamp = time.Unix(0, searchedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search history: %w", err)
	}
	return entries, nil
}

// ClearHistory deletes every history entry of ownerID
func (m *Manager) ClearHistory(ctx context.Context, ownerID string) (int64, error) {
	ctx, span := managerTracer.Start(ctx, "ClearHistory")
	defer span.End()

	result, err := m.db.ExecContext(ctx, `DELETE FROM search_history WHERE owner_id = $1`, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to clear history")
		return 0, fmt.Errorf("failed to clear search history: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (m *Manager) finish(span trace.Span, op string, err error) {
	m.metrics.ObserveSavedSearchOp(op, err)
	if err != nil && !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrForbidden) {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}
	span.End()
}

// inTx runs fn in a transaction, rolling back on error
func (m *Manager) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.WithError(rbErr).Warn("failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// clearDefault unsets the owner's default search, skipping exceptID
func clearDefault(ctx context.Context, tx *sql.Tx, ownerID, exceptID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE saved_searches
		SET is_default = $1, updated_at = $2
		WHERE owner_id = $3 AND is_default = $4 AND id <> $5`,
		false, now.UnixMilli(), ownerID, true, exceptID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear previous default: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (m *Manager) load(ctx context.Context, q queryer, id string) (*SavedSearch, error) {
	row := q.QueryRowContext(ctx, `SELECT `+savedSearchColumns+` FROM saved_searches WHERE id = $1`, id)
	s, err := scanSavedSearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSavedSearch(row scanner) (*SavedSearch, error) {
	var (
		s          SavedSearch
		entityType string
		filters    string
		sortBy     sql.NullString
		lastUsed   sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Name, &s.Description, &entityType, &s.Query, &filters, &sortBy,
		&s.IsPublic, &s.IsDefault, &s.UsageCount, &lastUsed, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan saved search: %w", err)
	}

	s.EntityType = search.EntityType(entityType)
	if filters != "" {
		if err := json.Unmarshal([]byte(filters), &s.Filters); err != nil {
			return nil, fmt.Errorf("failed to decode filters of saved search %s: %w", s.ID, err)
		}
	}
	if sortBy.Valid && sortBy.String != "" {
		s.SortBy = &search.SortBy{}
		if err := json.Unmarshal([]byte(sortBy.String), s.SortBy); err != nil {
			return nil, fmt.Errorf("failed to decode sort of saved search %s: %w", s.ID, err)
		}
	}
	if lastUsed.Valid {
		t := time.UnixMilli(lastUsed.Int64).UTC()
		s.LastUsed = &t
	}
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	s.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &s, nil
}

func encodeDefinition(s *SavedSearch) (filters string, sortBy interface{}, err error) {
	f, err := json.Marshal(s.Filters)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	if s.SortBy == nil {
		return string(f), nil, nil
	}
	sb, err := json.Marshal(s.SortBy)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode sort: %w", err)
	}
	return string(f), string(sb), nil
}
