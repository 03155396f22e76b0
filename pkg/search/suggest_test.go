package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Suggest(t *testing.T) {
	store := NewMemoryStore()
	indexAll(t, store,
		Project{ID: "p-1", Name: "Acme Rollout", Status: "open"},
		Contact{ID: "c-1", Name: "Jane Roe", Notes: "manages the account"},
		Task{ID: "t-1", Title: "Acme Rollout", Description: "acme account review"},
	)
	engine := NewEngine(store, EngineConfig{})
	ctx := context.Background()

	got, err := engine.Suggest(ctx, "ac", EntityTypeAll, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Rollout", "acme", "account"}, got)

	got, err = engine.Suggest(ctx, "AC", EntityTypeContact, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"account"}, got)
}

func TestEngine_SuggestKeywordMustExtendPrefix(t *testing.T) {
	store := NewMemoryStore()
	indexAll(t, store, Task{ID: "t-1", Title: "Ship api", Description: "api apis"})
	engine := NewEngine(store, EngineConfig{})

	got, err := engine.Suggest(context.Background(), "api", EntityTypeAll, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"apis"}, got)
}

func TestEngine_SuggestShortPrefix(t *testing.T) {
	store := NewMemoryStore()
	indexAll(t, store, Task{ID: "t-1", Title: "Alpha"})
	engine := NewEngine(store, EngineConfig{})

	for _, prefix := range []string{"", "a", "é"} {
		got, err := engine.Suggest(context.Background(), prefix, EntityTypeAll, 10)
		require.NoError(t, err)
		assert.Empty(t, got, prefix)
	}
}

func TestEngine_SuggestLimit(t *testing.T) {
	store := NewMemoryStore()
	for i := 0; i < 20; i++ {
		indexAll(t, store, Task{ID: fmt.Sprintf("t-%d", i), Title: fmt.Sprintf("Report %02d", i)})
	}
	engine := NewEngine(store, EngineConfig{})

	got, err := engine.Suggest(context.Background(), "rep", EntityTypeAll, 0)
	require.NoError(t, err)
	require.Len(t, got, DefaultSuggestLimit)
	assert.Equal(t, "Report 00", got[0])
	assert.Equal(t, "report", got[1])

	got, err = engine.Suggest(context.Background(), "rep", EntityTypeAll, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Report 00"}, got)
}
