package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bogusRecord struct{}

func (bogusRecord) IndexKey() EntryKey  { return EntryKey{Type: "invoice", ID: "i-1"} }
func (bogusRecord) document() document { return document{} }

func TestBuildEntry(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		record      Record
		wantType    EntityType
		wantContent string
		wantMeta    Metadata
	}{
		{
			name: "contact skips empty fields",
			record: Contact{
				ID: "c-1", Name: "Jane Roe", Email: "jane@example.com", Company: "Acme Ltd",
				Notes: "Prefers email.", Status: "active", Tags: []string{"vip"},
				CreatedAt: created, UpdatedAt: created,
			},
			wantType:    EntityTypeContact,
			wantContent: "Jane Roe jane@example.com Acme Ltd Prefers email. active vip",
			wantMeta: Metadata{
				Title: "Jane Roe", Description: "Prefers email.", Status: "active",
				Tags: []string{"vip"}, CreatedAt: created, UpdatedAt: created,
			},
		},
		{
			name: "project",
			record: Project{
				ID: "p-1", Name: "Acme Rollout", Company: "Acme Ltd", Status: "open",
				Priority: "high", CreatedBy: "u-1", CreatedAt: created, UpdatedAt: created,
			},
			wantType:    EntityTypeProject,
			wantContent: "Acme Rollout Acme Ltd open high",
			wantMeta: Metadata{
				Title: "Acme Rollout", Status: "open", Priority: "high",
				CreatedAt: created, UpdatedAt: created,
			},
		},
		{
			name: "task",
			record: Task{
				ID: "t-1", Title: "Write launch plan", Description: "Cover rollout steps",
				Status: "todo", Priority: "medium", Tags: []string{"launch", "docs"},
				ProjectID: "p-1", AssigneeID: "u-2", CreatedAt: created, UpdatedAt: created,
			},
			wantType:    EntityTypeTask,
			wantContent: "Write launch plan Cover rollout steps todo medium launch docs",
			wantMeta: Metadata{
				Title: "Write launch plan", Description: "Cover rollout steps", Status: "todo",
				Priority: "medium", Tags: []string{"launch", "docs"}, CreatedAt: created, UpdatedAt: created,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := BuildEntry(tt.record, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, entry.EntityType)
			assert.Equal(t, tt.wantContent, entry.SearchableContent)
			assert.Equal(t, ExtractKeywords(tt.wantContent), entry.Keywords)
			assert.Equal(t, tt.wantMeta, entry.Metadata)
			assert.Equal(t, now, entry.CreatedAt)
			assert.Equal(t, now, entry.UpdatedAt)
		})
	}
}

func TestBuildEntry_Errors(t *testing.T) {
	_, err := BuildEntry(nil, time.Now())
	assert.ErrorIs(t, err, ErrUnknownRecord)

	_, err = BuildEntry(bogusRecord{}, time.Now())
	assert.ErrorIs(t, err, ErrUnknownRecord)

	_, err = BuildEntry(Task{Title: "no id"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBuildEntry_DoesNotAliasTags(t *testing.T) {
	tags := []string{"one"}
	entry, err := BuildEntry(Task{ID: "t-1", Title: "x", Tags: tags}, time.Now())
	require.NoError(t, err)

	tags[0] = "changed"
	assert.Equal(t, []string{"one"}, entry.Metadata.Tags)
}

func TestParseEntityType(t *testing.T) {
	for in, want := range map[string]EntityType{
		"":        EntityTypeAll,
		"all":     EntityTypeAll,
		"Task":    EntityTypeTask,
		"project": EntityTypeProject,
		"contact": EntityTypeContact,
	} {
		got, err := ParseEntityType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEntityType("invoice")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
