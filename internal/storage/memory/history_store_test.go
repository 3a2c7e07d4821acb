package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

func TestHistoryStoreRecentNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewHistoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.RecordSearch(ctx, imagesearch.SearchRecord{ID: id, Query: "q-" + id}))
	}
	require.Error(t, store.RecordSearch(ctx, imagesearch.SearchRecord{}))

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHistoryStoreSaves(t *testing.T) {
	t.Parallel()

	store := NewHistoryStore()
	require.NoError(t, store.RecordSave(context.Background(), imagesearch.SaveRecord{SearchID: "a", Position: 2}))
	saves := store.Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, 2, saves[0].Position)
}
