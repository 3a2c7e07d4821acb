package saver

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imgscout/internal/clock"
	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/storage/memory"
)

func fetched(w, h int, c color.Color) *imagesearch.FetchedImage {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return &imagesearch.FetchedImage{URL: "https://cdn.pixabay.com/photo/1.png", Image: img, Format: "png"}
}

func TestFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sunset_beach_1.jpg", Filename("sunset beach", 1))
	assert.Equal(t, "a_b_12.jpg", Filename("a/b", 12))
}

func TestSaveWritesJPEG(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(store, 90, clock.Fixed{T: now})
	require.NoError(t, err)

	saved, err := s.Save(context.Background(), "sunset beach", 2, fetched(8, 6, color.NRGBA{R: 200, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, "sunset_beach_2.jpg", saved.Filename)
	assert.Equal(t, "memory://sunset_beach_2.jpg", saved.URI)
	assert.Equal(t, 2, saved.Position)
	assert.Equal(t, now, saved.SavedAt)
	assert.Equal(t, "https://cdn.pixabay.com/photo/1.png", saved.SourceURL)

	data, ok := store.Object("sunset_beach_2.jpg")
	require.True(t, ok)
	assert.Equal(t, saved.Bytes, len(data))
	assert.Len(t, saved.SHA256, 64)
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8, decoded.Bounds().Dx())
	assert.Equal(t, 6, decoded.Bounds().Dy())
}

func TestEncodeJPEGFlattensTransparency(t *testing.T) {
	t.Parallel()

	data, err := EncodeJPEG(fetched(4, 4, color.NRGBA{}), 90)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(1, 1).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestSaveRequiresImage(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	s, err := New(store, 0, clock.New())
	require.NoError(t, err)
	assert.Equal(t, DefaultQuality, s.quality)

	_, err = s.Save(context.Background(), "cat", 1, nil)
	require.ErrorIs(t, err, imagesearch.ErrNoImage)
	_, err = s.Save(context.Background(), "cat", 1, &imagesearch.FetchedImage{})
	require.ErrorIs(t, err, imagesearch.ErrNoImage)
	assert.Empty(t, store.Paths(), "nothing is written without a fetched image")
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func TestSavePropagatesStoreError(t *testing.T) {
	t.Parallel()

	s, err := New(failingStore{}, 90, clock.New())
	require.NoError(t, err)
	_, err = s.Save(context.Background(), "cat", 1, fetched(2, 2, color.Black))
	require.ErrorContains(t, err, "disk full")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, 90, clock.New())
	require.Error(t, err)
	_, err = New(memory.NewBlobStore(), 90, nil)
	require.Error(t, err)
}
