// Package ai provides a provider-agnostic gateway to the generation service.
// Callers treat it as an untrusted, possibly slow, possibly failing black box.
package ai

import (
	"context"
	"strings"
)

// TaskType names the kind of generation so logs and routing can tell calls apart.
type TaskType int

const (
	TaskLesson TaskType = iota
	TaskTestGeneration
	TaskTutoring
)

func (t TaskType) String() string {
	switch t {
	case TaskLesson:
		return "lesson"
	case TaskTestGeneration:
		return "test_generation"
	case TaskTutoring:
		return "tutoring"
	default:
		return "unknown"
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	JSONMode    bool      `json:"json_mode,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Completer is the single request/response call the learning flows depend on.
// Router and every Provider satisfy it.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Completer
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}

// ExtractJSON returns the outermost {...} span of a model reply, dropping
// markdown fences and chatter around it. Text without an object is returned
// trimmed.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
