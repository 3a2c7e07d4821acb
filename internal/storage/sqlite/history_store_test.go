package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := NewHistoryStore(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "history.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewHistoryStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewHistoryStore(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewHistoryStore(context.Background(), Config{DSN: "x.db", SavesTable: "bad-name"})
	require.ErrorContains(t, err, "invalid table name")
}

func TestHistoryRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordSearch(ctx, imagesearch.SearchRecord{
		ID: "a", Query: "cats", TargetURL: "https://pixabay.com/images/search/cats/",
		URLs: []string{"https://cdn.pixabay.com/1.jpg", "https://cdn.pixabay.com/2.jpg"}, CreatedAt: base,
	}))
	require.NoError(t, store.RecordSearch(ctx, imagesearch.SearchRecord{
		ID: "b", Query: "dogs", TargetURL: "https://pixabay.com/images/search/dogs/",
		Error: "navigate: refused", CreatedAt: base.Add(time.Minute),
	}))
	require.Error(t, store.RecordSearch(ctx, imagesearch.SearchRecord{ID: "a", CreatedAt: base}), "duplicate id")

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "navigate: refused", recent[0].Error)
	assert.Empty(t, recent[0].URLs)
	assert.Equal(t, []string{"https://cdn.pixabay.com/1.jpg", "https://cdn.pixabay.com/2.jpg"}, recent[1].URLs)
	assert.True(t, base.Equal(recent[1].CreatedAt))

	limited, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, store.RecordSave(ctx, imagesearch.SaveRecord{
		SearchID: "a", Position: 2, SourceURL: "https://cdn.pixabay.com/2.jpg",
		URI: "file:///tmp/cats_2.jpg", SavedAt: base,
	}))
	n, err := store.SaveCount(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
