package learning_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/ai-literacy/internal/learning"
	"github.com/p-n-ai/ai-literacy/internal/platform/database/dbtest"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := learning.NewMemoryEventLogger()

	err := logger.LogEvent(context.Background(), learning.Event{
		StudentID: "s1",
		EventType: learning.EventLessonStarted,
		Data:      map[string]any{"topic_id": "what-is-ai"},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != learning.EventLessonStarted {
		t.Errorf("EventType = %q, want lesson_started", events[0].EventType)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	if err := logger.LogEvent(context.Background(), learning.Event{StudentID: "s1"}); err == nil {
		t.Error("LogEvent() without type should fail")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := learning.NewPostgresEventLogger(nil)

	err := logger.LogEvent(context.Background(), learning.Event{
		StudentID: "s1",
		EventType: learning.EventTestGenerated,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestPostgresEventLogger_LogEvent(t *testing.T) {
	db := dbtest.New(t)
	logger := learning.NewPostgresEventLogger(db.Pool)
	ctx := context.Background()

	if err := logger.LogEvent(ctx, learning.Event{
		StudentID: "s1",
		EventType: learning.EventTestSubmitted,
		Data:      map[string]any{"score": 80},
	}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	var score int
	if err := db.Pool.QueryRow(ctx,
		`SELECT (data->>'score')::int FROM events WHERE student_id = $1 AND event_type = $2`,
		"s1", learning.EventTestSubmitted,
	).Scan(&score); err != nil {
		t.Fatal(err)
	}
	if score != 80 {
		t.Errorf("stored score = %d, want 80", score)
	}

	if err := logger.LogEvent(ctx, learning.Event{EventType: "x"}); err == nil {
		t.Error("LogEvent() without student should fail")
	}
}
