// Package assessment builds multiple-choice tests for a topic, grades
// submissions and keeps the append-only result log.
package assessment

import (
	"errors"
	"time"

	"github.com/p-n-ai/ai-literacy/internal/curriculum"
)

// DefaultPassThreshold is the minimum passing score, in percent.
const DefaultPassThreshold = 70

// Test sources.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

var (
	// ErrTestNotFound is returned for an unknown or expired test id.
	ErrTestNotFound = errors.New("test not found")
	// ErrInvalidAnswers is returned for a malformed submission.
	ErrInvalidAnswers = errors.New("invalid answers")
	// ErrUnknownTopic is returned when generating a test for a topic the catalog does not know.
	ErrUnknownTopic = errors.New("unknown topic")
)

// Question is a multiple-choice test question.
type Question = curriculum.Question

// Test is an issued set of questions. It is kept server side so a submission
// is graded against exactly what was issued.
type Test struct {
	ID        string               `json:"id"`
	StudentID string               `json:"student_id"`
	TopicID   string               `json:"topic_id"`
	Band      curriculum.GradeBand `json:"grade_band"`
	Questions []Question           `json:"questions"`
	Source    string               `json:"source"`
	IssuedAt  time.Time            `json:"issued_at"`
}

// PublicQuestion is a question without its answer.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// PublicTest is what the student sees.
type PublicTest struct {
	ID        string               `json:"id"`
	TopicID   string               `json:"topic_id"`
	Band      curriculum.GradeBand `json:"grade_band"`
	Questions []PublicQuestion     `json:"questions"`
	IssuedAt  time.Time            `json:"issued_at"`
}

// Public strips correct answers and explanations.
func (t Test) Public() PublicTest {
	qs := make([]PublicQuestion, len(t.Questions))
	for i, q := range t.Questions {
		qs[i] = PublicQuestion{ID: q.ID, Prompt: q.Prompt, Options: q.Options}
	}
	return PublicTest{ID: t.ID, TopicID: t.TopicID, Band: t.Band, Questions: qs, IssuedAt: t.IssuedAt}
}

// Answer is one submitted answer. QuestionID may be empty, in which case
// answers match questions by position. Either Index or Value names the
// chosen option; Index wins when both are set. An Index out of range or a
// Value matching no option makes the whole submission invalid.
type Answer struct {
	QuestionID string `json:"question_id,omitempty"`
	Index      *int   `json:"index,omitempty"`
	Value      string `json:"value,omitempty"`
}

// Result is one graded attempt in the append-only log.
type Result struct {
	ID             string    `json:"id"`
	TestID         string    `json:"test_id"`
	StudentID      string    `json:"student_id"`
	TopicID        string    `json:"topic_id"`
	Score          int       `json:"score"`
	Passed         bool      `json:"passed"`
	Answers        []Answer  `json:"answers"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	CreatedAt      time.Time `json:"created_at"`
}
