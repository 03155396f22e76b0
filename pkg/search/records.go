package search

import (
	"fmt"
	"strings"
	"time"
)

// Record is an entity handed to the indexer by an entity store. The set of
// implementations is closed: Contact, Project and Task.
type Record interface {
	// IndexKey returns the (type, id) the record is indexed under
	IndexKey() EntryKey

	document() document
}

// document is the per-type field projection feeding an IndexEntry.
// Fields are listed high-signal first since keyword extraction truncates.
type document struct {
	fields   []string
	metadata Metadata
}

// Contact is the indexable view of a contact record
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Status    string    `json:"status,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c Contact) IndexKey() EntryKey { return EntryKey{Type: EntityTypeContact, ID: c.ID} }

func (c Contact) document() document {
	fields := []string{c.Name, c.Email, c.Phone, c.Company, c.Notes, c.Status}
	return document{
		fields: append(fields, c.Tags...),
		metadata: Metadata{
			Title:       c.Name,
			Description: c.Notes,
			Status:      c.Status,
			Tags:        copyStrings(c.Tags),
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		},
	}
}

// Project is the indexable view of a project record
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Company     string    `json:"company,omitempty"`
	Status      string    `json:"status,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p Project) IndexKey() EntryKey { return EntryKey{Type: EntityTypeProject, ID: p.ID} }

func (p Project) document() document {
	fields := []string{p.Name, p.Description, p.Company, p.Status, p.Priority}
	return document{
		fields: append(fields, p.Tags...),
		metadata: Metadata{
			Title:       p.Name,
			Description: p.Description,
			Status:      p.Status,
			Priority:    p.Priority,
			Tags:        copyStrings(p.Tags),
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		},
	}
}

// Task is the indexable view of a task record
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	ProjectID   string    `json:"projectId,omitempty"`
	AssigneeID  string    `json:"assigneeId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (t Task) IndexKey() EntryKey { return EntryKey{Type: EntityTypeTask, ID: t.ID} }

func (t Task) document() document {
	fields := []string{t.Title, t.Description, t.Status, t.Priority}
	return document{
		fields: append(fields, t.Tags...),
		metadata: Metadata{
			Title:       t.Title,
			Description: t.Description,
			Status:      t.Status,
			Priority:    t.Priority,
			Tags:        copyStrings(t.Tags),
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		},
	}
}

// BuildEntry derives the index entry for a record. The entry's freshness
// timestamps are both set to now; stores keep the original CreatedAt on
// replace.
func BuildEntry(rec Record, now time.Time) (*IndexEntry, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrUnknownRecord)
	}

	key := rec.IndexKey()
	switch key.Type {
	case EntityTypeContact, EntityTypeProject, EntityTypeTask:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecord, key.Type)
	}
	if key.ID == "" {
		return nil, invalidRequest("%s record has no id", key.Type)
	}

	doc := rec.document()
	content := joinNonEmpty(doc.fields)

	return &IndexEntry{
		EntityType:        key.Type,
		EntityID:          key.ID,
		SearchableContent: content,
		Keywords:          ExtractKeywords(content),
		Metadata:          doc.metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func joinNonEmpty(fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
