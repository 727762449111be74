package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/ai-literacy/internal/ai"
)

func TestMockProvider_Complete(t *testing.T) {
	mock := ai.NewMockProvider("test response")

	resp, err := mock.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "Hello"}},
		Task:     ai.TaskLesson,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "test response" {
		t.Errorf("Content = %q, want %q", resp.Content, "test response")
	}
	if mock.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", mock.Calls())
	}
	if last := mock.LastRequest(); last == nil || last.Task != ai.TaskLesson {
		t.Errorf("LastRequest() = %+v, want lesson task", last)
	}
}

func TestMockProvider_Err(t *testing.T) {
	boom := errors.New("boom")
	mock := &ai.MockProvider{Err: boom}

	if _, err := mock.Complete(context.Background(), ai.CompletionRequest{}); !errors.Is(err, boom) {
		t.Errorf("Complete() error = %v, want %v", err, boom)
	}
	if err := mock.HealthCheck(context.Background()); !errors.Is(err, boom) {
		t.Errorf("HealthCheck() error = %v, want %v", err, boom)
	}
}

func TestTaskType_String(t *testing.T) {
	tests := []struct {
		task     ai.TaskType
		expected string
	}{
		{ai.TaskLesson, "lesson"},
		{ai.TaskTestGeneration, "test_generation"},
		{ai.TaskTutoring, "tutoring"},
		{ai.TaskType(99), "unknown"},
	}
	for _, tt := range tests {
		if tt.task.String() != tt.expected {
			t.Errorf("TaskType.String() = %q, want %q", tt.task.String(), tt.expected)
		}
	}
}

func TestCompletionResponse_TotalTokens(t *testing.T) {
	resp := ai.CompletionResponse{InputTokens: 100, OutputTokens: 50}
	if got := resp.TotalTokens(); got != 150 {
		t.Errorf("TotalTokens() = %d, want 150", got)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"chatter around", "Sure! {\"a\":1} Enjoy.", `{"a":1}`},
		{"nested braces", "x {\"a\":{\"b\":2}} y", `{"a":{"b":2}}`},
		{"no object", "  no json ", "no json"},
		{"closing before opening", "} {", "} {"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ai.ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
