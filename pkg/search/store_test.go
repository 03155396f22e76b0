package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tally/pkg/search"
	"github.com/platinummonkey/tally/pkg/search/searchtest"
)

func TestMemoryStore(t *testing.T) {
	searchtest.RunIndexStoreTests(t, func(t *testing.T) search.IndexStore {
		return search.NewMemoryStore()
	})
}

func TestMemoryStore_ScanInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := search.NewMemoryStore()

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, store.Upsert(ctx, searchtest.Entry(search.EntityTypeTask, id, "task "+id, searchtest.Epoch)))
	}
	// replacing keeps the original position
	require.NoError(t, store.Upsert(ctx, searchtest.Entry(search.EntityTypeTask, "b", "task b v2", searchtest.Epoch)))
	require.NoError(t, store.Remove(ctx, search.EntityTypeTask, "a"))

	entries, err := store.Scan(ctx, search.EntityTypeAll)
	require.NoError(t, err)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.EntityID)
	}
	assert.Equal(t, []string{"b", "c"}, ids)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := search.NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, searchtest.Entry(search.EntityTypeTask, "t-1", "alpha task", searchtest.Epoch)))

	got, err := store.Get(ctx, search.EntityTypeTask, "t-1")
	require.NoError(t, err)
	got.Keywords[0] = "mutated"
	got.Metadata.Tags[0] = "mutated"

	again, err := store.Get(ctx, search.EntityTypeTask, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", again.Keywords[0])
	assert.Equal(t, "alpha", again.Metadata.Tags[0])
}
