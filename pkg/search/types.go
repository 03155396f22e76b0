package search

import (
	"strings"
	"time"
)

// EntityType identifies the kind of record an index entry mirrors
type EntityType string

const (
	EntityTypeContact EntityType = "contact"
	EntityTypeProject EntityType = "project"
	EntityTypeTask    EntityType = "task"

	// EntityTypeAll is only valid as a filter value
	EntityTypeAll EntityType = "all"
)

// EntityTypes lists the indexable entity types in rebuild order
var EntityTypes = []EntityType{EntityTypeContact, EntityTypeProject, EntityTypeTask}

// ParseEntityType parses a filter value. An empty string means all types.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(strings.ToLower(strings.TrimSpace(s))) {
	case "", EntityTypeAll:
		return EntityTypeAll, nil
	case EntityTypeContact:
		return EntityTypeContact, nil
	case EntityTypeProject:
		return EntityTypeProject, nil
	case EntityTypeTask:
		return EntityTypeTask, nil
	default:
		return "", invalidRequest("unknown entity type %q", s)
	}
}

// Matches reports whether an entry of type t passes the filter f
func (f EntityType) Matches(t EntityType) bool {
	return f == "" || f == EntityTypeAll || f == t
}

// Metadata is the structured projection used for filtering and sorting
type Metadata struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IndexEntry is the denormalized, searchable projection of one entity record
type IndexEntry struct {
	EntityType        EntityType `json:"entityType"`
	EntityID          string     `json:"entityId"`
	SearchableContent string     `json:"searchableContent"`
	Keywords          []string   `json:"keywords"`
	Metadata          Metadata   `json:"metadata"`

	// Index freshness, distinct from the entity timestamps in Metadata
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the (type, id) pair identifying the entry
func (e *IndexEntry) Key() EntryKey {
	return EntryKey{Type: e.EntityType, ID: e.EntityID}
}

// EntryKey uniquely identifies an index entry
type EntryKey struct {
	Type EntityType
	ID   string
}

// DateRange bounds metadata.createdAt; either end may be nil
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// CustomFieldFilter is a predicate on an application-defined field
type CustomFieldFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Filters are the structured constraints applied after scoring.
//
// DateRange, Statuses, Priorities and Tags are evaluated by the engine.
// The remaining lists are carried for saved searches and callers that
// post-filter on data the index does not hold.
type Filters struct {
	DateRange  *DateRange `json:"dateRange,omitempty"`
	Statuses   []string   `json:"status,omitempty"`
	Priorities []string   `json:"priority,omitempty"`
	Tags       []string   `json:"tags,omitempty"`

	Assignees    []string            `json:"assignee,omitempty"`
	Projects     []string            `json:"project,omitempty"`
	Contacts     []string            `json:"contact,omitempty"`
	CustomFields []CustomFieldFilter `json:"customFields,omitempty"`
}

// SortDirection is asc or desc
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortBy overrides relevance ordering with a metadata field
type SortBy struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Request is a single query against the engine
type Request struct {
	Query      string
	EntityType EntityType
	Filters    *Filters
	SortBy     *SortBy
	Limit      int
	Offset     int

	// When LogHistory is set and OwnerID is non-empty the search is
	// appended to the owner's history.
	OwnerID    string
	LogHistory bool
}

// Result is one ranked, enriched and highlighted match
type Result struct {
	EntityType  EntityType `json:"entityType"`
	EntityID    string     `json:"entityId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Score       int        `json:"score"`
	Highlights  []string   `json:"highlights"`
	Metadata    Metadata   `json:"metadata"`

	ProjectName  string `json:"projectName,omitempty"`
	AssigneeName string `json:"assigneeName,omitempty"`
	CreatorName  string `json:"creatorName,omitempty"`
	Company      string `json:"company,omitempty"`
}

// Response is a page of results
type Response struct {
	Results    []Result `json:"results"`
	TotalCount int      `json:"totalCount"`
	SearchTime int64    `json:"searchTime"` // milliseconds
}
