package assessment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/ai-literacy/internal/platform/cache/cachetest"
	"github.com/p-n-ai/ai-literacy/internal/platform/database/dbtest"
)

func TestMemorySessionStore(t *testing.T) {
	s := NewMemorySessionStore(time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Save(ctx, Test{ID: "t1", TopicID: "what-is-ai"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, "t1")
	if err != nil || got.TopicID != "what-is-ai" {
		t.Fatalf("Load() = %+v, %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Load(ctx, "t1"); !errors.Is(err, ErrTestNotFound) {
		t.Errorf("Load(expired) error = %v, want ErrTestNotFound", err)
	}

	if err := s.Save(ctx, Test{ID: "t2"}); err != nil {
		t.Fatal(err)
	}
	if len(s.sessions) != 1 {
		t.Errorf("expired session not pruned: %d sessions", len(s.sessions))
	}
	if err := s.Delete(ctx, "t2"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "t2"); !errors.Is(err, ErrTestNotFound) {
		t.Errorf("Load(deleted) error = %v", err)
	}
}

func TestRedisSessionStore(t *testing.T) {
	s := NewRedisSessionStore(cachetest.New(t), time.Minute)
	ctx := context.Background()

	test := Test{ID: "t1", TopicID: "what-is-ai", Questions: fiveQuestions(), Source: SourceFallback}
	if err := s.Save(ctx, test); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Questions) != 5 || got.Questions[3].CorrectIndex != 3 {
		t.Errorf("Load() = %+v, want answers kept server side", got)
	}
	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "t1"); !errors.Is(err, ErrTestNotFound) {
		t.Errorf("Load(deleted) error = %v, want ErrTestNotFound", err)
	}
}

func exerciseTake(t *testing.T, s SessionStore) {
	t.Helper()
	ctx := context.Background()
	if err := s.Save(ctx, Test{ID: "t9", TopicID: "what-is-ai", Questions: fiveQuestions()}); err != nil {
		t.Fatal(err)
	}

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	won, lost := 0, 0
	for range callers {
		wg.Go(func() {
			_, err := s.Take(ctx, "t9")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrTestNotFound):
				lost++
			default:
				t.Errorf("Take() error = %v", err)
			}
		})
	}
	wg.Wait()
	if won != 1 || lost != callers-1 {
		t.Errorf("Take() winners = %d, losers = %d, want 1 and %d", won, lost, callers-1)
	}
	if _, err := s.Load(ctx, "t9"); !errors.Is(err, ErrTestNotFound) {
		t.Errorf("Load(taken) error = %v, want ErrTestNotFound", err)
	}
}

func TestMemorySessionStore_Take(t *testing.T) {
	exerciseTake(t, NewMemorySessionStore(time.Minute))
}

func TestMemorySessionStore_TakeExpired(t *testing.T) {
	s := NewMemorySessionStore(time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	if err := s.Save(context.Background(), Test{ID: "t1"}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := s.Take(context.Background(), "t1"); !errors.Is(err, ErrTestNotFound) {
		t.Errorf("Take(expired) error = %v, want ErrTestNotFound", err)
	}
}

func TestRedisSessionStore_Take(t *testing.T) {
	exerciseTake(t, NewRedisSessionStore(cachetest.New(t), time.Minute))
}

func exerciseResultLog(t *testing.T, log ResultLog) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, r := range []Result{
		{StudentID: "s1", TopicID: "what-is-ai", Score: 40, Answers: []Answer{{Index: idx(1)}}},
		{StudentID: "s1", TopicID: "what-is-ai", Score: 80, Passed: true},
		{StudentID: "s2", TopicID: "ai-bias", Score: 100, Passed: true, ElapsedSeconds: 95},
	} {
		r.TestID = "test"
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		got, err := log.Append(ctx, r)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if got.ID == "" {
			t.Error("Append() did not assign an id")
		}
	}

	bys1, err := log.Query(ctx, ResultQuery{StudentID: "s1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(bys1) != 2 || bys1[0].Score != 80 {
		t.Errorf("Query(s1) = %+v, want two results newest first", bys1)
	}
	if len(bys1[1].Answers) != 1 || *bys1[1].Answers[0].Index != 1 {
		t.Errorf("raw answers not kept: %+v", bys1[1].Answers)
	}

	byTopic, err := log.Query(ctx, ResultQuery{TopicID: "ai-bias"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTopic) != 1 || byTopic[0].ElapsedSeconds != 95 {
		t.Errorf("Query(ai-bias) = %+v", byTopic)
	}

	limited, err := log.Query(ctx, ResultQuery{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].StudentID != "s2" {
		t.Errorf("Query(limit 1) = %+v", limited)
	}

	if _, err := log.Append(ctx, Result{TopicID: "x"}); err == nil {
		t.Error("Append() without student should fail")
	}
}

func TestMemoryResultLog(t *testing.T) {
	exerciseResultLog(t, NewMemoryResultLog())
}

func TestPostgresResultLog(t *testing.T) {
	db := dbtest.New(t)
	log, err := NewPostgresResultLog(db.Pool)
	if err != nil {
		t.Fatal(err)
	}
	exerciseResultLog(t, log)
}
