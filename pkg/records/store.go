// Package records reads the contact, project, task and user tables owned by
// the entity services. It is the indexer's source of truth and the query
// engine's enrichment lookup; it never writes.
package records

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

var tracer = otel.Tracer("tally/records")

// RoleAdmin is the users.role value granting admin operations
const RoleAdmin = "admin"

// DB hands out read connections. *postgres.ConnectionManager satisfies it.
type DB interface {
	Replica() *sql.DB
}

// Store implements search.Sources and search.Lookups over SQL.
//
// List calls return every readable row. Rows that cannot be decoded, such as
// a malformed tags column, are left out and reported in a *search.RowErrors
// alongside the rows that were read.
type Store struct {
	db DB
}

var (
	_ search.Sources = (*Store)(nil)
	_ search.Lookups = (*Store)(nil)
)

// NewStore creates a records store
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const (
	contactColumns = `SELECT id, name, email, phone, company, notes, status, tags, created_at, updated_at FROM contacts`
	projectColumns = `SELECT id, name, description, company, status, priority, tags, created_by, created_at, updated_at FROM projects`
	taskColumns    = `SELECT id, title, description, status, priority, tags, project_id, assignee_id, created_at, updated_at FROM tasks`
)

func (s *Store) ListContacts(ctx context.Context) ([]search.Contact, error) {
	return list(ctx, s.db.Replica(), "contacts", contactColumns+` ORDER BY created_at, id`, scanContact)
}

func (s *Store) ListProjects(ctx context.Context) ([]search.Project, error) {
	return list(ctx, s.db.Replica(), "projects", projectColumns+` ORDER BY created_at, id`, scanProject)
}

func (s *Store) ListTasks(ctx context.Context) ([]search.Task, error) {
	return list(ctx, s.db.Replica(), "tasks", taskColumns+` ORDER BY created_at, id`, scanTask)
}

func (s *Store) GetContact(ctx context.Context, id string) (*search.Contact, error) {
	return get(ctx, s.db.Replica(), "contact", contactColumns+` WHERE id = $1`, id, scanContact)
}

func (s *Store) GetProject(ctx context.Context, id string) (*search.Project, error) {
	return get(ctx, s.db.Replica(), "project", projectColumns+` WHERE id = $1`, id, scanProject)
}

func (s *Store) GetTask(ctx context.Context, id string) (*search.Task, error) {
	return get(ctx, s.db.Replica(), "task", taskColumns+` WHERE id = $1`, id, scanTask)
}

// GetRecord loads the indexable record for (entityType, id)
func (s *Store) GetRecord(ctx context.Context, entityType search.EntityType, id string) (search.Record, error) {
	switch entityType {
	case search.EntityTypeContact:
		c, err := s.GetContact(ctx, id)
		if err != nil {
			return nil, err
		}
		return *c, nil
	case search.EntityTypeProject:
		p, err := s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		return *p, nil
	case search.EntityTypeTask:
		t, err := s.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		return *t, nil
	default:
		return nil, fmt.Errorf("%w: %q", search.ErrUnknownRecord, entityType)
	}
}

func (s *Store) GetUserName(ctx context.Context, id string) (string, error) {
	var name string
	err := s.db.Replica().QueryRowContext(ctx, `SELECT name FROM users WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", search.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return name, nil
}

// IsAdmin reports whether userID has the admin role. Unknown users are not
// admins.
func (s *Store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var role string
	err := s.db.Replica().QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get role of %s: %w", userID, err)
	}
	return role == RoleAdmin, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func list[T any](ctx context.Context, db *sql.DB, table, query string, scan func(rowScanner) (T, error)) ([]T, error) {
	ctx, span := tracer.Start(ctx, "records.List", trace.WithAttributes(attribute.String("db.table", table)))
	defer span.End()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to list %s: %w", table, err))
	}
	defer rows.Close()

	// a row that fails to decode is skipped; the caller decides what that costs
	out := []T{}
	var bad []error
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			bad = append(bad, fmt.Errorf("failed to read %s row: %w", table, err))
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to list %s: %w", table, err))
	}

	span.SetAttributes(attribute.Int("db.rows", len(out)), attribute.Int("db.rows_skipped", len(bad)))
	if len(bad) > 0 {
		return out, &search.RowErrors{Table: table, Errs: bad}
	}
	return out, nil
}

func get[T any](ctx context.Context, db *sql.DB, kind, query, id string, scan func(rowScanner) (T, error)) (*T, error) {
	rec, err := scan(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, search.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return &rec, nil
}

func scanContact(row rowScanner) (search.Contact, error) {
	var (
		c                                    search.Contact
		email, phone, company, notes, status sql.NullString
		tags                                 sql.NullString
		createdAt, updatedAt                 int64
	)
	err := row.Scan(&c.ID, &c.Name, &email, &phone, &company, &notes, &status, &tags, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	c.Email, c.Phone, c.Company, c.Notes, c.Status = email.String, phone.String, company.String, notes.String, status.String
	c.CreatedAt, c.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
	if c.Tags, err = decodeTags(tags); err != nil {
		return c, fmt.Errorf("contact %s: %w", c.ID, err)
	}
	return c, nil
}

func scanProject(row rowScanner) (search.Project, error) {
	var (
		p                                           search.Project
		description, company, status, priority, own sql.NullString
		tags                                        sql.NullString
		createdAt, updatedAt                        int64
	)
	err := row.Scan(&p.ID, &p.Name, &description, &company, &status, &priority, &tags, &own, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.Description, p.Company, p.Status, p.Priority, p.CreatedBy = description.String, company.String, status.String, priority.String, own.String
	p.CreatedAt, p.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
	if p.Tags, err = decodeTags(tags); err != nil {
		return p, fmt.Errorf("project %s: %w", p.ID, err)
	}
	return p, nil
}

func scanTask(row rowScanner) (search.Task, error) {
	var (
		t                                                    search.Task
		description, status, priority, projectID, assigneeID sql.NullString
		tags                                                 sql.NullString
		createdAt, updatedAt                                 int64
	)
	err := row.Scan(&t.ID, &t.Title, &description, &status, &priority, &tags, &projectID, &assigneeID, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}
	t.Description, t.Status, t.Priority = description.String, status.String, priority.String
	t.ProjectID, t.AssigneeID = projectID.String, assigneeID.String
	t.CreatedAt, t.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
	if t.Tags, err = decodeTags(tags); err != nil {
		return t, fmt.Errorf("task %s: %w", t.ID, err)
	}
	return t, nil
}

// decodeTags reads the JSON array column; NULL and empty mean no tags
func decodeTags(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s.String), &tags); err != nil {
		return nil, fmt.Errorf("corrupt tags: %w", err)
	}
	return tags, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
