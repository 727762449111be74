package profile

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a student has no stored profile.
	ErrNotFound = errors.New("profile not found")
	// ErrRevisionConflict is returned when a save races another writer.
	ErrRevisionConflict = errors.New("profile revision conflict")
)

// Store persists profiles with optimistic concurrency.
type Store interface {
	Get(ctx context.Context, studentID string) (Profile, error)
	// Save stores p if the stored revision equals expected (0 for a new
	// profile) and returns the saved profile with its new revision.
	Save(ctx context.Context, p Profile, expected int64) (Profile, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	profiles map[string]Profile
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]Profile)}
}

func (s *MemoryStore) Get(_ context.Context, studentID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[studentID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, p Profile, expected int64) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profiles[p.StudentID].Revision != expected {
		return Profile{}, ErrRevisionConflict
	}
	p.Revision = expected + 1
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.profiles[p.StudentID] = p.Clone()
	return p.Clone(), nil
}
