package savedsearch

import (
	"strings"
	"time"

	"github.com/platinummonkey/tally/pkg/search"
)

// SavedSearch is a named, reusable search definition
type SavedSearch struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	EntityType  search.EntityType `json:"entityType"`
	Query       string            `json:"query"`
	Filters     search.Filters    `json:"filters"`
	SortBy      *search.SortBy    `json:"sortBy,omitempty"`
	IsPublic    bool              `json:"isPublic"`
	IsDefault   bool              `json:"isDefault"`
	UsageCount  int               `json:"usageCount"`
	LastUsed    *time.Time        `json:"lastUsed,omitempty"`
	OwnerID     string            `json:"ownerId"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Request turns the definition into an engine request run on behalf of callerID
func (s *SavedSearch) Request(callerID string, limit, offset int) search.Request {
	filters := s.Filters
	return search.Request{
		Query:      s.Query,
		EntityType: s.EntityType,
		Filters:    &filters,
		SortBy:     s.SortBy,
		Limit:      limit,
		Offset:     offset,
		OwnerID:    callerID,
		LogHistory: callerID != "",
	}
}

// normalize trims text fields and checks required ones
func (s *SavedSearch) normalize() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Description = strings.TrimSpace(s.Description)
	s.Query = strings.TrimSpace(s.Query)

	if s.Name == "" {
		return validationError("name is required")
	}
	if s.Query == "" {
		return validationError("query is required")
	}

	entityType, err := search.ParseEntityType(string(s.EntityType))
	if err != nil {
		return validationError("%v", err)
	}
	s.EntityType = entityType

	if s.SortBy != nil {
		s.SortBy.Field = strings.TrimSpace(s.SortBy.Field)
		if s.SortBy.Field == "" {
			return validationError("sort field is required when sorting")
		}
		switch s.SortBy.Direction {
		case "":
			s.SortBy.Direction = search.SortAsc
		case search.SortAsc, search.SortDesc:
		default:
			return validationError("sort direction must be asc or desc, got %q", s.SortBy.Direction)
		}
	}
	return nil
}

// HistoryEntry is one executed search
type HistoryEntry struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"ownerId"`
	Query        string            `json:"query"`
	EntityType   search.EntityType `json:"entityType"`
	ResultsCount int               `json:"resultsCount"`
	SearchTime   int64             `json:"searchTime"` // milliseconds
	Timestamp    time.Time         `json:"timestamp"`
}
