// Package searchtest holds the behavioral suite every search.IndexStore
// backend must pass, plus small fixtures shared by backend tests.
package searchtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tally/pkg/search"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) search.IndexStore

// Epoch is a fixed, millisecond-aligned instant used by fixtures
var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Entry builds a fully populated entry for key at the given freshness time
func Entry(entityType search.EntityType, id, content string, at time.Time) *search.IndexEntry {
	return &search.IndexEntry{
		EntityType:        entityType,
		EntityID:          id,
		SearchableContent: content,
		Keywords:          search.ExtractKeywords(content),
		Metadata: search.Metadata{
			Title:       content,
			Description: "about " + id,
			Status:      "open",
			Priority:    "high",
			Tags:        []string{"alpha", "beta"},
			CreatedAt:   Epoch,
			UpdatedAt:   Epoch.Add(time.Hour),
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// RunIndexStoreTests exercises the IndexStore contract against newStore
func RunIndexStoreTests(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), search.EntityTypeTask, "nope")
		assert.ErrorIs(t, err, search.ErrNotFound)
	})

	t.Run("UpsertAndGet", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		want := Entry(search.EntityTypeProject, "p-1", "Acme Rollout", Epoch)
		require.NoError(t, store.Upsert(ctx, want))

		got, err := store.Get(ctx, search.EntityTypeProject, "p-1")
		require.NoError(t, err)
		assertSameEntry(t, want, got)
	})

	t.Run("UpsertKeepsCreatedAt", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		first := Entry(search.EntityTypeTask, "t-1", "Draft plan", Epoch)
		require.NoError(t, store.Upsert(ctx, first))

		later := Epoch.Add(24 * time.Hour)
		second := Entry(search.EntityTypeTask, "t-1", "Final plan", later)
		require.NoError(t, store.Upsert(ctx, second))

		got, err := store.Get(ctx, search.EntityTypeTask, "t-1")
		require.NoError(t, err)
		assert.Equal(t, "Final plan", got.SearchableContent)
		assert.True(t, got.CreatedAt.Equal(Epoch), "createdAt %v", got.CreatedAt)
		assert.True(t, got.UpdatedAt.Equal(later), "updatedAt %v", got.UpdatedAt)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		entry := Entry(search.EntityTypeContact, "c-1", "Jane Roe jane@example.com", Epoch)
		require.NoError(t, store.Upsert(ctx, entry))
		first, err := store.Get(ctx, search.EntityTypeContact, "c-1")
		require.NoError(t, err)

		require.NoError(t, store.Upsert(ctx, entry))
		second, err := store.Get(ctx, search.EntityTypeContact, "c-1")
		require.NoError(t, err)

		assertSameEntry(t, first, second)
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("SameIDDifferentType", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeTask, "42", "task 42", Epoch)))
		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeProject, "42", "project 42", Epoch)))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("Remove", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeTask, "t-1", "one", Epoch)))
		require.NoError(t, store.Remove(ctx, search.EntityTypeTask, "t-1"))
		require.NoError(t, store.Remove(ctx, search.EntityTypeTask, "t-1"), "removing an absent entry is a no-op")

		_, err := store.Get(ctx, search.EntityTypeTask, "t-1")
		assert.ErrorIs(t, err, search.ErrNotFound)
	})

	t.Run("ScanFiltersByType", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeContact, "c-1", "contact one", Epoch)))
		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeProject, "p-1", "project one", Epoch)))
		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeTask, "t-1", "task one", Epoch)))
		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeTask, "t-2", "task two", Epoch)))

		all, err := store.Scan(ctx, search.EntityTypeAll)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		tasks, err := store.Scan(ctx, search.EntityTypeTask)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		for _, e := range tasks {
			assert.Equal(t, search.EntityTypeTask, e.EntityType)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeContact, "c-1", "contact one", Epoch)))
		require.NoError(t, store.Upsert(ctx, Entry(search.EntityTypeTask, "t-1", "task one", Epoch)))
		require.NoError(t, store.Clear(ctx))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		all, err := store.Scan(ctx, search.EntityTypeAll)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func assertSameEntry(t *testing.T, want, got *search.IndexEntry) {
	t.Helper()
	assert.Equal(t, want.EntityType, got.EntityType)
	assert.Equal(t, want.EntityID, got.EntityID)
	assert.Equal(t, want.SearchableContent, got.SearchableContent)
	assert.Equal(t, want.Keywords, got.Keywords)
	assert.Equal(t, want.Metadata.Title, got.Metadata.Title)
	assert.Equal(t, want.Metadata.Description, got.Metadata.Description)
	assert.Equal(t, want.Metadata.Status, got.Metadata.Status)
	assert.Equal(t, want.Metadata.Priority, got.Metadata.Priority)
	assert.Equal(t, want.Metadata.Tags, got.Metadata.Tags)
	assert.True(t, want.Metadata.CreatedAt.Equal(got.Metadata.CreatedAt))
	assert.True(t, want.Metadata.UpdatedAt.Equal(got.Metadata.UpdatedAt))
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}
