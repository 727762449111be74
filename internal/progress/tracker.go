package progress

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrUnknownTopic is returned for a topic id the catalog does not know.
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrInvalidLesson is returned for a lesson number outside 1..N.
	ErrInvalidLesson = errors.New("invalid lesson number")
	// ErrLessonsIncomplete is returned when a test is requested before every
	// lesson of the topic is complete.
	ErrLessonsIncomplete = errors.New("all lessons must be completed before the test")
	// ErrMissingID is returned when a student or topic id is empty.
	ErrMissingID = errors.New("student_id and topic_id are required")
	// ErrInvalidScore is returned for a score outside 0..100.
	ErrInvalidScore = errors.New("score must be between 0 and 100")
)

// Catalog reports how many lessons a topic has; 0 means unknown.
type Catalog interface {
	LessonsFor(topicID string) int
}

const lockStripes = 64

// Tracker applies progress operations as read-modify-write cycles on a Store.
// Cycles for the same (student, topic) are serialised within the process.
type Tracker struct {
	store   Store
	catalog Catalog
	now     func() time.Time
	locks   [lockStripes]sync.Mutex
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock sets the time source used for last-activity stamps.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker over store. A nil store uses memory.
func NewTracker(store Store, catalog Catalog, opts ...TrackerOption) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	t := &Tracker{store: store, catalog: catalog, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartLesson creates the record on first start and moves the current lesson to n.
func (t *Tracker) StartLesson(ctx context.Context, studentID, topicID string, n int) (Record, error) {
	return t.update(ctx, studentID, topicID, func(rec *Record) error {
		if n < 1 || n > rec.TotalLessons {
			return fmt.Errorf("%w: %d (topic %s has %d lessons)", ErrInvalidLesson, n, topicID, rec.TotalLessons)
		}
		rec.CurrentLesson = n
		return nil
	})
}

// RecordLessonComplete marks lesson n complete. Repeating it is a no-op on
// the completed set.
func (t *Tracker) RecordLessonComplete(ctx context.Context, studentID, topicID string, n int) (Record, error) {
	return t.update(ctx, studentID, topicID, func(rec *Record) error {
		if n < 1 || n > rec.TotalLessons {
			return fmt.Errorf("%w: %d (topic %s has %d lessons)", ErrInvalidLesson, n, topicID, rec.TotalLessons)
		}
		if rec.CurrentLesson == 0 {
			rec.CurrentLesson = n
		}
		if !rec.CompleteLesson(n) {
			slog.Debug("lesson already complete", "student_id", studentID, "topic_id", topicID, "lesson", n)
		}
		return nil
	})
}

// RecordTestResult stores a graded attempt. The topic's lessons must all be
// complete.
func (t *Tracker) RecordTestResult(ctx context.Context, studentID, topicID string, score int, passed bool) (Record, error) {
	if score < 0 || score > 100 {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidScore, score)
	}
	return t.update(ctx, studentID, topicID, func(rec *Record) error {
		if !rec.AllLessonsDone() {
			return ErrLessonsIncomplete
		}
		rec.ApplyTestResult(score, passed)
		return nil
	})
}

// CheckTestEligibility returns the record when every lesson is complete and
// ErrLessonsIncomplete otherwise.
func (t *Tracker) CheckTestEligibility(ctx context.Context, studentID, topicID string) (Record, error) {
	rec, err := t.Get(ctx, studentID, topicID)
	if err != nil {
		return Record{}, err
	}
	if !rec.AllLessonsDone() {
		return rec, fmt.Errorf("%w: %d of %d complete", ErrLessonsIncomplete, len(rec.CompletedLessons), rec.TotalLessons)
	}
	return rec, nil
}

// Get returns the record, or a not-started record when none exists yet.
func (t *Tracker) Get(ctx context.Context, studentID, topicID string) (Record, error) {
	total, err := t.validate(studentID, topicID)
	if err != nil {
		return Record{}, err
	}
	rec, err := t.store.Get(ctx, studentID, topicID)
	if errors.Is(err, ErrNotFound) {
		return Record{StudentID: studentID, TopicID: topicID, TotalLessons: total}, nil
	}
	if err != nil {
		return Record{}, err
	}
	rec.TotalLessons = total
	return rec, nil
}

// ListByStudent returns every record the student has.
func (t *Tracker) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	if studentID == "" {
		return nil, ErrMissingID
	}
	return t.store.ListByStudent(ctx, studentID)
}

// Badges returns the set of topic ids the student holds a badge for.
func (t *Tracker) Badges(ctx context.Context, studentID string) (map[string]bool, error) {
	recs, err := t.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	badges := make(map[string]bool, len(recs))
	for _, rec := range recs {
		if rec.BadgeUnlocked {
			badges[rec.TopicID] = true
		}
	}
	return badges, nil
}

func (t *Tracker) validate(studentID, topicID string) (int, error) {
	if studentID == "" || topicID == "" {
		return 0, ErrMissingID
	}
	total := t.catalog.LessonsFor(topicID)
	if total == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTopic, topicID)
	}
	return total, nil
}

// update runs one read-modify-write cycle. Nothing is written when fn fails.
func (t *Tracker) update(ctx context.Context, studentID, topicID string, fn func(*Record) error) (Record, error) {
	mu := t.lock(studentID, topicID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := t.Get(ctx, studentID, topicID)
	if err != nil {
		return Record{}, err
	}
	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	rec.LastActivity = t.now().UTC()
	if err := t.store.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("saving progress: %w", err)
	}
	return rec, nil
}

func (t *Tracker) lock(studentID, topicID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(studentID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(topicID))
	return &t.locks[h.Sum32()%lockStripes]
}
