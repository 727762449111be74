package tutor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConversationNotFound is returned for an unknown conversation id.
var ErrConversationNotFound = errors.New("conversation not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StoredMessage is a single turn in a conversation.
type StoredMessage struct {
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation is one tutoring chat with a student.
type Conversation struct {
	ID          string          `json:"id"`
	StudentID   string          `json:"student_id"`
	TopicID     string          `json:"topic_id,omitempty"`
	State       string          `json:"state"`
	Messages    []StoredMessage `json:"messages"`
	Summary     string          `json:"summary,omitempty"`
	CompactedAt int             `json:"compacted_at,omitempty"` // number of messages folded into Summary
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
}

// ConversationStore persists conversation state and message history.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv Conversation) (string, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// GetActiveConversation returns the student's newest conversation that
	// has not ended.
	GetActiveConversation(ctx context.Context, studentID string) (*Conversation, bool, error)
	AddMessage(ctx context.Context, conversationID string, msg StoredMessage) error
	SetSummary(ctx context.Context, conversationID string, summary string, compactedAt int) error
	EndConversation(ctx context.Context, id string) error
}

// MemoryStore is an in-memory ConversationStore.
type MemoryStore struct {
	conversations map[string]*Conversation
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv Conversation) (string, error) {
	if conv.StudentID == "" {
		return "", errors.New("student_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv.ID = uuid.NewString()
	if conv.State == "" {
		conv.State = stateTutoring
	}
	if conv.StartedAt.IsZero() {
		conv.StartedAt = time.Now()
	}
	conv.Messages = slices.Clone(conv.Messages)
	s.conversations[conv.ID] = &conv
	return conv.ID, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) GetActiveConversation(_ context.Context, studentID string) (*Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *Conversation
	for _, conv := range s.conversations {
		if conv.StudentID != studentID || conv.EndedAt != nil {
			continue
		}
		if newest == nil || conv.StartedAt.After(newest.StartedAt) {
			newest = conv
		}
	}
	if newest == nil {
		return nil, false, nil
	}
	return copyConversation(newest), true, nil
}

func (s *MemoryStore) AddMessage(_ context.Context, conversationID string, msg StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	conv.Messages = append(conv.Messages, msg)
	return nil
}

func (s *MemoryStore) SetSummary(_ context.Context, conversationID string, summary string, compactedAt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Summary = summary
	conv.CompactedAt = compactedAt
	return nil
}

func (s *MemoryStore) EndConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	now := time.Now()
	conv.EndedAt = &now
	return nil
}

func copyConversation(conv *Conversation) *Conversation {
	c := *conv
	c.Messages = slices.Clone(conv.Messages)
	return &c
}
