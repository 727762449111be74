package tutor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/ai-literacy/internal/platform/database/dbtest"
	"github.com/p-n-ai/ai-literacy/internal/tutor"
)

func exerciseConversationStore(t *testing.T, store tutor.ConversationStore) {
	t.Helper()
	ctx := context.Background()

	if _, found, err := store.GetActiveConversation(ctx, "nobody"); err != nil || found {
		t.Fatalf("GetActiveConversation(nobody) = %v, %v", found, err)
	}

	id, err := store.CreateConversation(ctx, tutor.Conversation{StudentID: "s1", TopicID: "what-is-ai"})
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if id == "" {
		t.Fatal("CreateConversation() returned empty ID")
	}

	for _, m := range []tutor.StoredMessage{
		{Role: tutor.RoleUser, Content: "What is AI?"},
		{Role: tutor.RoleAssistant, Content: "Software that learns.", Model: "mock", InputTokens: 12, OutputTokens: 5},
		{Role: tutor.RoleUser, Content: "Thanks"},
	} {
		if err := store.AddMessage(ctx, id, m); err != nil {
			t.Fatalf("AddMessage() error = %v", err)
		}
	}
	if err := store.SetSummary(ctx, id, "Student asked what AI is.", 2); err != nil {
		t.Fatalf("SetSummary() error = %v", err)
	}

	got, found, err := store.GetActiveConversation(ctx, "s1")
	if err != nil || !found {
		t.Fatalf("GetActiveConversation() = %v, %v", found, err)
	}
	if got.ID != id || got.TopicID != "what-is-ai" {
		t.Errorf("conversation = %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[1].Model != "mock" || got.Messages[1].OutputTokens != 5 {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Summary != "Student asked what AI is." || got.CompactedAt != 2 {
		t.Errorf("summary %q at %d", got.Summary, got.CompactedAt)
	}

	if err := store.EndConversation(ctx, id); err != nil {
		t.Fatalf("EndConversation() error = %v", err)
	}
	if _, found, _ := store.GetActiveConversation(ctx, "s1"); found {
		t.Error("GetActiveConversation() should not find ended conversation")
	}
	ended, err := store.GetConversation(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if ended.EndedAt == nil {
		t.Error("EndedAt not set")
	}
}

func exerciseConversationStoreNotFound(t *testing.T, store tutor.ConversationStore) {
	t.Helper()
	ctx := context.Background()
	missing := "00000000-0000-0000-0000-000000000000"

	tests := []struct {
		name string
		fn   func() error
	}{
		{"get", func() error { _, err := store.GetConversation(ctx, missing); return err }},
		{"get malformed id", func() error { _, err := store.GetConversation(ctx, "nonexistent"); return err }},
		{"add message", func() error {
			return store.AddMessage(ctx, missing, tutor.StoredMessage{Role: "user", Content: "Hello"})
		}},
		{"set summary", func() error { return store.SetSummary(ctx, missing, "summary", 5) }},
		{"end", func() error { return store.EndConversation(ctx, missing) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tutor.ErrConversationNotFound) {
				t.Errorf("error = %v, want ErrConversationNotFound", err)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseConversationStore(t, tutor.NewMemoryStore())
	exerciseConversationStoreNotFound(t, tutor.NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := tutor.NewMemoryStore()
	ctx := context.Background()
	id, _ := store.CreateConversation(ctx, tutor.Conversation{StudentID: "s1"})
	_ = store.AddMessage(ctx, id, tutor.StoredMessage{Role: "user", Content: "Hello"})

	got, _ := store.GetConversation(ctx, id)
	got.Messages[0].Content = "changed"
	got.Summary = "changed"

	again, _ := store.GetConversation(ctx, id)
	if again.Messages[0].Content != "Hello" || again.Summary != "" {
		t.Errorf("store state leaked through a returned conversation: %+v", again)
	}
}

func TestMemoryStore_RequiresStudent(t *testing.T) {
	if _, err := tutor.NewMemoryStore().CreateConversation(context.Background(), tutor.Conversation{}); err == nil {
		t.Error("CreateConversation() without student should fail")
	}
}

func TestPostgresStore(t *testing.T) {
	db := dbtest.New(t)
	store, err := tutor.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatal(err)
	}
	exerciseConversationStore(t, store)
	exerciseConversationStoreNotFound(t, store)
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := tutor.NewPostgresStore(nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
