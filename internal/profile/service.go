package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const defaultMaxAttempts = 5

// Service applies signals to stored profiles, retrying when a concurrent
// writer wins the revision race.
type Service struct {
	store       Store
	maxAttempts int
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMaxAttempts sets how many read-modify-write rounds Update tries.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClock overrides the update timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a profile service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, maxAttempts: defaultMaxAttempts, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the student's profile, or an empty one at revision 0.
func (s *Service) Get(ctx context.Context, studentID string) (Profile, error) {
	p, err := s.store.Get(ctx, studentID)
	if errors.Is(err, ErrNotFound) {
		return Profile{StudentID: studentID}, nil
	}
	return p, err
}

// Update folds signals into the student's profile and saves it.
func (s *Service) Update(ctx context.Context, studentID string, signals ...Signal) (Profile, error) {
	if studentID == "" {
		return Profile{}, fmt.Errorf("student id is required")
	}
	if len(signals) == 0 {
		return s.Get(ctx, studentID)
	}

	for attempt := 1; ; attempt++ {
		current, err := s.Get(ctx, studentID)
		if err != nil {
			return Profile{}, fmt.Errorf("load profile: %w", err)
		}
		expected := current.Revision
		next := current.Clone()
		next.Apply(signals...)
		next.UpdatedAt = s.now()

		saved, err := s.store.Save(ctx, next, expected)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrRevisionConflict) || attempt >= s.maxAttempts {
			return Profile{}, fmt.Errorf("update profile %s: %w", studentID, err)
		}
		slog.Debug("profile revision conflict, retrying",
			"student_id", studentID,
			"attempt", attempt,
		)
		if err := ctx.Err(); err != nil {
			return Profile{}, err
		}
	}
}
