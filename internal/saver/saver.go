// Package saver encodes fetched images as JPEG and writes them to a blob store.
package saver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/JakeFAU/imgscout/internal/hash/sha256"
	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

var whiteBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// DefaultQuality matches the JPEG quality used for saved files.
const DefaultQuality = 90

// Saver implements the save step of the pipeline.
type Saver struct {
	store   imagesearch.BlobStore
	quality int
	clock   imagesearch.Clock
}

// New builds a Saver. A quality outside 1..100 falls back to DefaultQuality.
func New(store imagesearch.BlobStore, quality int, clock imagesearch.Clock) (*Saver, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &Saver{store: store, quality: quality, clock: clock}, nil
}

// Filename returns "{sanitized_query}_{position}.jpg".
func Filename(query imagesearch.Query, position int) string {
	return fmt.Sprintf("%s_%d.jpg", imagesearch.SanitizeFilename(query), position)
}

// Save writes img as a JPEG named after query and its 1-based position.
func (s *Saver) Save(ctx context.Context, query imagesearch.Query, position int, img *imagesearch.FetchedImage) (imagesearch.SavedFile, error) {
	if img == nil || img.Image == nil {
		return imagesearch.SavedFile{}, imagesearch.ErrNoImage
	}
	data, err := EncodeJPEG(img, s.quality)
	if err != nil {
		return imagesearch.SavedFile{}, err
	}
	checksum, err := sha256.New().Hash(data)
	if err != nil {
		return imagesearch.SavedFile{}, fmt.Errorf("hash %s: %w", Filename(query, position), err)
	}
	name := Filename(query, position)
	uri, err := s.store.PutObject(ctx, name, "image/jpeg", bytes.NewReader(data))
	if err != nil {
		return imagesearch.SavedFile{}, fmt.Errorf("store %s: %w", name, err)
	}
	return imagesearch.SavedFile{
		Filename:  name,
		URI:       uri,
		SourceURL: img.URL,
		Position:  position,
		Bytes:     len(data),
		SHA256:    checksum,
		SavedAt:   s.clock.Now(),
	}, nil
}

// EncodeJPEG re-encodes img as JPEG. Transparent areas are flattened onto white.
func EncodeJPEG(img *imagesearch.FetchedImage, quality int) ([]byte, error) {
	if img == nil || img.Image == nil {
		return nil, imagesearch.ErrNoImage
	}
	bounds := img.Image.Bounds()
	flat := imaging.New(bounds.Dx(), bounds.Dy(), whiteBackground)
	flat = imaging.Overlay(flat, img.Image, image.Pt(0, 0), 1.0)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
