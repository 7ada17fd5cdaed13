package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID string) (*Record, error) {
	if userID == "" {
		userID = NewUserID()
	}
	if err := checkUserID(userID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = NewRecord(userID)
		rec.UpdatedAt = time.Now()
		s.records[userID] = rec
	}
	return rec.Clone(), nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, rec *Record) error {
	if err := checkUserID(rec.UserID); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()

	s.mu.Lock()
	s.records[rec.UserID] = rec.Clone()
	s.mu.Unlock()
	return nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, userID string) (*Record, error) {
	fresh := NewRecord("")
	fresh.UpdatedAt = time.Now()

	s.mu.Lock()
	delete(s.records, userID)
	s.records[fresh.UserID] = fresh
	s.mu.Unlock()

	return fresh.Clone(), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
