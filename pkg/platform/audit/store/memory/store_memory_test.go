package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "faucet/pkg/platform/audit"
)

func TestInMemoryStoreListRecent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, store.Append(ctx, audit.Event{Subject: fmt.Sprintf("user-%d", i)}))
	}

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "user-2", recent[0].Subject, "most recent first")
	assert.Equal(t, "user-1", recent[1].Subject)
}

func TestInMemoryStoreIsBounded(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	for i := range defaultCapacity + 10 {
		require.NoError(t, store.Append(ctx, audit.Event{Subject: fmt.Sprintf("user-%d", i)}))
	}

	all, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, defaultCapacity)
	assert.Equal(t, fmt.Sprintf("user-%d", defaultCapacity+9), all[0].Subject)

	store.Clear()
	all, err = store.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
