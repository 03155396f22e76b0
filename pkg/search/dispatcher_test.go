package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_AppliesUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d, err := NewDispatcher(NewIndexer(store, nil, IndexerConfig{}), DispatcherConfig{Workers: 4})
	require.NoError(t, err)
	defer d.Close(time.Second)

	d.Upserted(Project{ID: "p-1", Name: "Acme Rollout"})
	d.Upserted(Task{ID: "t-1", Title: "Ship installer"})
	d.Wait()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	d.Deleted(EntityTypeTask, "t-1")
	d.Wait()

	_, err = store.Get(ctx, EntityTypeTask, "t-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatcher_FailuresDoNotPropagate(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failIDs: map[string]bool{"t-1": true}}
	d, err := NewDispatcher(NewIndexer(store, nil, IndexerConfig{}), DispatcherConfig{Workers: 1})
	require.NoError(t, err)
	defer d.Close(time.Second)

	assert.NotPanics(t, func() {
		d.Upserted(Task{ID: "t-1", Title: "fails"})
		d.Upserted(nil)
		d.Wait()
	})
}

func TestDispatcher_AfterClose(t *testing.T) {
	d, err := NewDispatcher(NewIndexer(NewMemoryStore(), nil, IndexerConfig{}), DispatcherConfig{})
	require.NoError(t, err)
	require.NoError(t, d.Close(time.Second))

	assert.NotPanics(t, func() {
		d.Upserted(Task{ID: "t-1", Title: "late"})
	})
}
