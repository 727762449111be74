// Package tutor runs the free-form tutoring chat: a safety-gated
// conversation with rolling summaries of older turns.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/p-n-ai/ai-literacy/internal/ai"
	"github.com/p-n-ai/ai-literacy/internal/safety"
)

const (
	defaultCompactThreshold      = 20
	defaultCompactTokenThreshold = 20000
	defaultKeepRecent            = 6
	defaultTimeout               = 15 * time.Second
	replyMaxTokens               = 1024

	stateTutoring = "tutoring"
	stateEnded    = "ended"
)

// TryAgainReply is sent when the generation service cannot answer.
const TryAgainReply = "Sorry, I'm having trouble answering right now. Please try again in a moment."

// Notes looks up topic material for the system prompt.
type Notes interface {
	TeachingNotes(topicID string) (string, bool)
}

// Config holds dependencies for a Tutor.
type Config struct {
	Completer             ai.Completer
	Store                 ConversationStore
	Filter                *safety.Filter
	Notes                 Notes
	Timeout               time.Duration // per reply generation (default 15s)
	CompactThreshold      int           // messages before compaction triggers (default 20)
	CompactTokenThreshold int           // estimated tokens before compaction triggers (default 20000)
	KeepRecent            int           // recent messages kept verbatim after compaction (default 6)
}

// Tutor answers student chat messages.
type Tutor struct {
	completer             ai.Completer
	store                 ConversationStore
	filter                *safety.Filter
	notes                 Notes
	timeout               time.Duration
	compactThreshold      int
	compactTokenThreshold int
	keepRecent            int
}

// Turn is one student message plus the context to answer it with.
type Turn struct {
	StudentID      string
	TopicID        string
	Text           string
	ProfileContext string
}

// Reply is the tutor's answer to a Turn.
type Reply struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
	// Blocked is set when either gate replaced text; Direction says which.
	Blocked   bool   `json:"blocked,omitempty"`
	Direction string `json:"direction,omitempty"`
	Reason    string `json:"-"`
	// Degraded is set when the generation service failed.
	Degraded bool `json:"degraded,omitempty"`
}

// New creates a tutor.
func New(cfg Config) *Tutor {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	filter := cfg.Filter
	if filter == nil {
		filter = safety.NewFilter(nil)
	}
	t := &Tutor{
		completer:             cfg.Completer,
		store:                 store,
		filter:                filter,
		notes:                 cfg.Notes,
		timeout:               cfg.Timeout,
		compactThreshold:      cfg.CompactThreshold,
		compactTokenThreshold: cfg.CompactTokenThreshold,
		keepRecent:            cfg.KeepRecent,
	}
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	if t.compactThreshold == 0 {
		t.compactThreshold = defaultCompactThreshold
	}
	if t.compactTokenThreshold == 0 {
		t.compactTokenThreshold = defaultCompactTokenThreshold
	}
	if t.keepRecent == 0 {
		t.keepRecent = defaultKeepRecent
	}
	return t
}

// Reply answers one student message. The only error is a missing student
// id; every other failure degrades to a fixed reply.
func (t *Tutor) Reply(ctx context.Context, turn Turn) (Reply, error) {
	if turn.StudentID == "" {
		return Reply{}, errors.New("student id is required")
	}
	slog.Info("tutor message",
		"student_id", turn.StudentID,
		"topic_id", turn.TopicID,
		"text_len", len(turn.Text),
	)

	if v := t.filter.FilterInput(turn.Text); !v.Allowed {
		return Reply{
			Text:      safety.SafeReplacement,
			Blocked:   true,
			Direction: safety.Input.String(),
			Reason:    v.Reason,
		}, nil
	}

	conv, err := t.getOrCreateConversation(ctx, turn)
	if err != nil {
		slog.Error("failed to get conversation", "student_id", turn.StudentID, "error", err)
		return Reply{Text: TryAgainReply, Degraded: true}, nil
	}
	reply := Reply{ConversationID: conv.ID}

	if err := t.store.AddMessage(ctx, conv.ID, StoredMessage{Role: RoleUser, Content: turn.Text}); err != nil {
		slog.Error("failed to store student message", "conversation_id", conv.ID, "error", err)
	}
	if fresh, err := t.store.GetConversation(ctx, conv.ID); err == nil {
		conv = fresh
	}

	t.maybeCompact(ctx, conv)

	topicID := turn.TopicID
	if topicID == "" {
		topicID = conv.TopicID
	}
	messages := []ai.Message{{Role: "system", Content: t.buildSystemPrompt(topicID, turn.ProfileContext)}}
	messages = append(messages, buildContextMessages(conv)...)

	resp, err := t.complete(ctx, ai.CompletionRequest{
		Messages:  messages,
		Task:      ai.TaskTutoring,
		MaxTokens: replyMaxTokens,
	})
	if err != nil {
		slog.Error("tutor completion failed", "conversation_id", conv.ID, "error", err)
		reply.Text = TryAgainReply
		reply.Degraded = true
		return reply, nil
	}

	text, v := t.filter.Sanitize(resp.Content)
	if !v.Allowed {
		reply.Blocked = true
		reply.Direction = safety.Output.String()
		reply.Reason = v.Reason
	}
	reply.Text = text

	if err := t.store.AddMessage(ctx, conv.ID, StoredMessage{
		Role:         RoleAssistant,
		Content:      text,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}); err != nil {
		slog.Error("failed to store tutor reply", "conversation_id", conv.ID, "error", err)
	}
	return reply, nil
}

// Reset ends the student's active conversation so the next message starts
// a fresh one.
func (t *Tutor) Reset(ctx context.Context, studentID string) error {
	conv, found, err := t.store.GetActiveConversation(ctx, studentID)
	if err != nil {
		return fmt.Errorf("find active conversation: %w", err)
	}
	if !found {
		return nil
	}
	if err := t.store.EndConversation(ctx, conv.ID); err != nil {
		return fmt.Errorf("end conversation: %w", err)
	}
	return nil
}

// History returns the student's active conversation, if any.
func (t *Tutor) History(ctx context.Context, studentID string) (*Conversation, bool, error) {
	return t.store.GetActiveConversation(ctx, studentID)
}

func (t *Tutor) complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error) {
	if t.completer == nil {
		return ai.CompletionResponse{}, ai.ErrNoProvider
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.completer.Complete(ctx, req)
}

func (t *Tutor) getOrCreateConversation(ctx context.Context, turn Turn) (*Conversation, error) {
	conv, found, err := t.store.GetActiveConversation(ctx, turn.StudentID)
	if err != nil {
		return nil, err
	}
	if found {
		return conv, nil
	}
	id, err := t.store.CreateConversation(ctx, Conversation{
		StudentID: turn.StudentID,
		TopicID:   turn.TopicID,
		State:     stateTutoring,
	})
	if err != nil {
		return nil, err
	}
	return t.store.GetConversation(ctx, id)
}

// buildContextMessages returns the conversation for the prompt: the summary
// when one exists, then the messages after the compaction point.
func buildContextMessages(conv *Conversation) []ai.Message {
	var messages []ai.Message
	rest := conv.Messages
	if conv.Summary != "" {
		messages = append(messages,
			ai.Message{Role: RoleUser, Content: "Previous conversation summary:\n" + conv.Summary},
			ai.Message{Role: RoleAssistant, Content: "Understood, I'll continue from there."},
		)
		if conv.CompactedAt <= len(rest) {
			rest = rest[conv.CompactedAt:]
		}
	}
	for _, m := range rest {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// estimateTokens gives a rough token count (1 token ≈ 4 bytes).
func estimateTokens(messages []StoredMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

const summarizePrompt = `Summarize this tutoring conversation about AI concepts. Capture:
- Topics discussed and key ideas
- What the student understood or found confusing
Keep the summary under 150 words.`

// maybeCompact folds older messages into the rolling summary once the
// messages since the last compaction pass either threshold.
func (t *Tutor) maybeCompact(ctx context.Context, conv *Conversation) {
	if conv.CompactedAt > len(conv.Messages) {
		return
	}
	uncompacted := conv.Messages[conv.CompactedAt:]
	if len(uncompacted) <= t.compactThreshold && estimateTokens(uncompacted) <= t.compactTokenThreshold {
		return
	}

	compactUpTo := len(conv.Messages) - t.keepRecent
	if compactUpTo <= conv.CompactedAt {
		return
	}

	var content strings.Builder
	if conv.Summary != "" {
		content.WriteString("Previous summary:\n")
		content.WriteString(conv.Summary)
		content.WriteString("\n\nNew messages to incorporate:\n")
	}
	for _, m := range conv.Messages[conv.CompactedAt:compactUpTo] {
		role := "Student"
		if m.Role == RoleAssistant {
			role = "Tutor"
		}
		fmt.Fprintf(&content, "%s: %s\n", role, m.Content)
	}

	resp, err := t.complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: summarizePrompt},
			{Role: RoleUser, Content: content.String()},
		},
		Task:      ai.TaskTutoring,
		MaxTokens: 256,
	})
	if err != nil {
		slog.Warn("compaction failed, continuing without summary", "conversation_id", conv.ID, "error", err)
		return
	}
	if err := t.store.SetSummary(ctx, conv.ID, resp.Content, compactUpTo); err != nil {
		slog.Warn("failed to save summary", "conversation_id", conv.ID, "error", err)
		return
	}

	conv.Summary = resp.Content
	conv.CompactedAt = compactUpTo

	slog.Info("conversation compacted",
		"conversation_id", conv.ID,
		"compacted_messages", compactUpTo,
		"remaining_messages", len(conv.Messages)-compactUpTo,
	)
}

const systemPrompt = `You are a friendly tutor helping school students understand artificial intelligence.

TEACHING STYLE:
- Start from what the student already knows
- Use everyday examples: phones, games, school, social media
- Keep answers short; this is a chat, not a textbook
- Check understanding before moving on
- When the student is stuck, give a hint before the answer

RULES:
- Stay on the topic of AI and how to use it responsibly
- Never ask for or repeat personal information
- Be patient and never condescending`

func (t *Tutor) buildSystemPrompt(topicID, profileContext string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	if t.notes != nil && topicID != "" {
		if notes, ok := t.notes.TeachingNotes(topicID); ok {
			b.WriteString("\n\nTEACHING NOTES FOR THE CURRENT TOPIC:\n")
			b.WriteString(notes)
		}
	}
	if profileContext != "" {
		b.WriteString("\n\n")
		b.WriteString(profileContext)
	}
	return b.String()
}
