package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedLookups(t *testing.T) {
	ctx := context.Background()
	next := &fakeLookups{
		projects: map[string]*Project{"p-1": {ID: "p-1", Name: "Atlas"}},
		users:    map[string]string{"u-1": "Ada"},
		tasks:    map[string]*Task{"t-1": {ID: "t-1"}},
	}
	cached := NewCachedLookups(next, 10, time.Minute, nil)

	for i := 0; i < 3; i++ {
		name, err := cached.GetUserName(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, "Ada", name)
	}
	assert.Equal(t, 1, next.userCalls)

	p, err := cached.GetProject(ctx, "p-1")
	require.NoError(t, err)
	p.Name = "mutated"

	p, err = cached.GetProject(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Atlas", p.Name)

	_, err = cached.GetUserName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cached.GetUserName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 3, next.userCalls, "misses are not cached")

	_, err = cached.GetTask(ctx, "t-1")
	assert.NoError(t, err)

	cached.Purge()
	_, err = cached.GetUserName(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 4, next.userCalls)
}
