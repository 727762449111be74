package progress

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned when no record exists for a (student, topic) pair.
var ErrNotFound = errors.New("progress record not found")

// Store persists progress records keyed by (student id, topic id).
type Store interface {
	Get(ctx context.Context, studentID, topicID string) (Record, error)
	// Put inserts or replaces the record.
	Put(ctx context.Context, rec Record) error
	ListByStudent(ctx context.Context, studentID string) ([]Record, error)
}

type recordKey struct {
	student, topic string
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	records map[recordKey]Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]Record),
	}
}

func (s *MemoryStore) Get(_ context.Context, studentID, topicID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey{studentID, topicID}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[recordKey{rec.StudentID, rec.TopicID}] = rec.clone()
	return nil
}

func (s *MemoryStore) ListByStudent(_ context.Context, studentID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for k, rec := range s.records {
		if k.student == studentID {
			out = append(out, rec.clone())
		}
	}
	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(a.TopicID, b.TopicID) })
	return out, nil
}
