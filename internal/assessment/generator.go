package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/ai-literacy/internal/ai"
	"github.com/p-n-ai/ai-literacy/internal/curriculum"
	"github.com/p-n-ai/ai-literacy/internal/safety"
)

// Catalog is the part of the content catalog test generation reads.
type Catalog interface {
	Topic(id string) (curriculum.Topic, bool)
	Questions(topicID string, band curriculum.GradeBand) []curriculum.Question
	AllQuestions(topicID string) []curriculum.Question
}

const generatedTestSchema = `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["prompt", "options", "correct_index"],
        "properties": {
          "prompt": {"type": "string", "minLength": 1},
          "options": {
            "type": "array",
            "minItems": 2,
            "maxItems": 6,
            "items": {"type": "string", "minLength": 1}
          },
          "correct_index": {"type": "integer", "minimum": 0},
          "explanation": {"type": "string"}
        }
      }
    }
  }
}`

const testSystemPrompt = `You write multiple-choice questions for an AI-literacy course for students in grades 6 to 12.
Reply with JSON only, shaped as {"questions":[{"prompt":"...","options":["...","...","...","..."],"correct_index":0,"explanation":"..."}]}.
Each question has exactly four options and one correct answer. Keep language age appropriate.`

// Generator produces tests. It asks the generation service first and falls
// back to the topic's question bank, then to a built-in generic set, so a
// known topic always gets a full test.
type Generator struct {
	completer ai.Completer
	catalog   Catalog
	schema    *gojsonschema.Schema
	timeout   time.Duration
	now       func() time.Time
	shuffle   func(n int, swap func(i, j int))
	filter    *safety.Filter
	onBlocked BlockedFunc
}

// BlockedFunc is told when generated questions fail the output filter.
type BlockedFunc func(ctx context.Context, studentID, topicID string, v safety.Verdict)

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTimeout bounds the generation call.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.timeout = d
	}
}

// WithShuffle replaces the random order used to pick fallback questions.
func WithShuffle(shuffle func(n int, swap func(i, j int))) GeneratorOption {
	return func(g *Generator) {
		g.shuffle = shuffle
	}
}

// WithFilter screens every generated question with f before it is issued.
// A blocked question sends the whole test to the fallback path.
func WithFilter(f *safety.Filter) GeneratorOption {
	return func(g *Generator) {
		g.filter = f
	}
}

// WithOnBlocked registers fn to run when a generated test is blocked.
func WithOnBlocked(fn BlockedFunc) GeneratorOption {
	return func(g *Generator) {
		g.onBlocked = fn
	}
}

// NewGenerator creates a generator. completer may be nil, in which case every
// test comes from the fallback path.
func NewGenerator(completer ai.Completer, catalog Catalog, opts ...GeneratorOption) (*Generator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(generatedTestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile test schema: %w", err)
	}
	g := &Generator{
		completer: completer,
		catalog:   catalog,
		schema:    schema,
		timeout:   15 * time.Second,
		now:       time.Now,
		shuffle:   rand.Shuffle,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.filter == nil {
		g.filter = safety.NewFilter(nil)
	}
	return g, nil
}

// Generate issues a test for topicID with band.QuestionCount() questions.
// Only an unknown topic is an error; generation failures fall back silently.
func (g *Generator) Generate(ctx context.Context, studentID, topicID string, band curriculum.GradeBand) (Test, error) {
	topic, ok := g.catalog.Topic(topicID)
	if !ok {
		return Test{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topicID)
	}

	count := band.QuestionCount()
	test := Test{
		ID:        uuid.NewString(),
		StudentID: studentID,
		TopicID:   topicID,
		Band:      band,
		IssuedAt:  g.now().UTC(),
	}

	questions, err := g.fromAI(ctx, studentID, topic, band, count)
	if err == nil {
		test.Questions = questions
		test.Source = SourceAI
		return test, nil
	}

	slog.Warn("test generation failed, using fallback questions",
		"topic_id", topicID,
		"grade_band", string(band),
		"error", err,
	)
	test.Questions = g.fallback(topicID, band, count)
	test.Source = SourceFallback
	return test, nil
}

func (g *Generator) fromAI(ctx context.Context, studentID string, topic curriculum.Topic, band curriculum.GradeBand, count int) ([]Question, error) {
	if g.completer == nil {
		return nil, ai.ErrNoProvider
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Write %d questions about %q (%s) for %s school students.",
		count, topic.Title, topic.Summary, band)
	resp, err := g.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: testSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Task:      ai.TaskTestGeneration,
		MaxTokens: 2048,
		JSONMode:  true,
	})
	if err != nil {
		return nil, err
	}
	questions, err := g.parse(resp.Content, topic.ID, count)
	if err != nil {
		return nil, err
	}
	if v := g.screen(questions); !v.Allowed {
		if g.onBlocked != nil {
			g.onBlocked(ctx, studentID, topic.ID, v)
		}
		return nil, fmt.Errorf("generated test blocked: %s", v.Reason)
	}
	return questions, nil
}

// screen runs the output filter over every student-visible string.
func (g *Generator) screen(questions []Question) safety.Verdict {
	for _, q := range questions {
		texts := append([]string{q.Prompt, q.Explanation}, q.Options...)
		for _, text := range texts {
			if text == "" {
				continue
			}
			if v := g.filter.FilterOutput(text); !v.Allowed {
				return v
			}
		}
	}
	return safety.Allow
}

// parse validates generated JSON and keeps the first count questions.
func (g *Generator) parse(content, topicID string, count int) ([]Question, error) {
	raw := []byte(ai.ExtractJSON(content))
	result, err := g.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("generated test is not JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("generated test fails schema: %s", strings.Join(msgs, "; "))
	}

	var out struct {
		Questions []struct {
			Prompt       string   `json:"prompt"`
			Options      []string `json:"options"`
			CorrectIndex int      `json:"correct_index"`
			Explanation  string   `json:"explanation"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode generated test: %w", err)
	}
	if len(out.Questions) < count {
		return nil, fmt.Errorf("generated %d questions, want %d", len(out.Questions), count)
	}

	questions := make([]Question, 0, count)
	for i, gq := range out.Questions[:count] {
		q := Question{
			ID:           fmt.Sprintf("%s-ai-%d", topicID, i+1),
			Prompt:       gq.Prompt,
			Options:      gq.Options,
			CorrectIndex: gq.CorrectIndex,
			Explanation:  gq.Explanation,
		}
		if !q.Valid() {
			return nil, fmt.Errorf("generated question %d has correct_index %d for %d options", i+1, q.CorrectIndex, len(q.Options))
		}
		questions = append(questions, q)
	}
	return questions, nil
}


// fallback picks count questions: the band's bank questions first, then the
// topic's other bank questions, then generic ones.
func (g *Generator) fallback(topicID string, band curriculum.GradeBand, count int) []Question {
	picked := make([]Question, 0, count)
	seen := make(map[string]bool)
	take := func(pool []Question) {
		g.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		for _, q := range pool {
			if len(picked) == count {
				return
			}
			if !seen[q.ID] {
				seen[q.ID] = true
				picked = append(picked, q)
			}
		}
	}

	take(g.catalog.Questions(topicID, band))
	take(g.catalog.AllQuestions(topicID))
	take(genericQuestions())
	return picked
}
