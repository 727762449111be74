package learning

import (
	"context"
	"testing"
	"time"

	"github.com/p-n-ai/ai-literacy/internal/curriculum"
	"github.com/p-n-ai/ai-literacy/internal/platform/cache/cachetest"
)

func TestMemoryLessonCache(t *testing.T) {
	c := NewMemoryLessonCache(time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	key := lessonKey("s1", "what-is-ai", 1)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("Get() hit on an empty cache")
	}
	if err := c.Set(ctx, key, curriculum.Lesson{Title: "Intro"}); err != nil {
		t.Fatal(err)
	}
	if l, ok := c.Get(ctx, key); !ok || l.Title != "Intro" {
		t.Errorf("Get() = %+v, %v", l, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("Get() returned an expired lesson")
	}
}

func TestRedisLessonCache(t *testing.T) {
	c := NewRedisLessonCache(cachetest.New(t), time.Minute)
	ctx := context.Background()
	key := lessonKey("s1", "what-is-ai", 2)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("Get() hit on an empty cache")
	}
	want := curriculum.Lesson{TopicID: "what-is-ai", Step: 2, Title: "Rules", Text: "text", Source: curriculum.SourceAI}
	if err := c.Set(ctx, key, want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, ok := c.Get(ctx, key); !ok || got != want {
		t.Errorf("Get() = %+v, %v, want %+v", got, ok, want)
	}
}

