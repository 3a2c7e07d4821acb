package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/imgscout/internal/imagesearch"
)

// HistoryStore keeps searches and saves in insertion order.
type HistoryStore struct {
	mu       sync.RWMutex
	searches []imagesearch.SearchRecord
	saves    []imagesearch.SaveRecord
}

// NewHistoryStore constructs a HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// RecordSearch appends a search row.
func (s *HistoryStore) RecordSearch(_ context.Context, rec imagesearch.SearchRecord) error {
	if rec.ID == "" {
		return errors.New("search id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.URLs = append([]string(nil), rec.URLs...)
	s.searches = append(s.searches, rec)
	return nil
}

// RecordSave appends a save row.
func (s *HistoryStore) RecordSave(_ context.Context, rec imagesearch.SaveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, rec)
	return nil
}

// Recent returns up to limit searches, newest first.
func (s *HistoryStore) Recent(_ context.Context, limit int) ([]imagesearch.SearchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.searches) {
		limit = len(s.searches)
	}
	out := make([]imagesearch.SearchRecord, 0, limit)
	for i := len(s.searches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.searches[i])
	}
	return out, nil
}

// Saves returns a copy of the recorded saves.
func (s *HistoryStore) Saves() []imagesearch.SaveRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]imagesearch.SaveRecord(nil), s.saves...)
}
