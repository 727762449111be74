package curriculum

import (
	"fmt"
	"slices"
)

// GradeBand is a coarse age partition: middle (grades 6-8) or high (9-12).
type GradeBand string

const (
	BandMiddle GradeBand = "middle"
	BandHigh   GradeBand = "high"
)

// ParseGradeBand accepts "middle" or "high". Empty defaults to middle.
func ParseGradeBand(s string) (GradeBand, error) {
	switch GradeBand(s) {
	case "", BandMiddle:
		return BandMiddle, nil
	case BandHigh:
		return BandHigh, nil
	default:
		return "", fmt.Errorf("unknown grade band %q", s)
	}
}

// QuestionCount is the number of questions in a test for the band.
func (b GradeBand) QuestionCount() int {
	if b == BandHigh {
		return 5
	}
	return 3
}

// Topic is a curriculum unit composed of a fixed number of lessons.
type Topic struct {
	ID              string           `yaml:"id" json:"id"`
	Title           string           `yaml:"title" json:"title"`
	Summary         string           `yaml:"summary" json:"summary,omitempty"`
	Lessons         int              `yaml:"lessons" json:"lessons"`
	Difficulty      string           `yaml:"difficulty" json:"difficulty"`
	Order           int              `yaml:"order" json:"order"`
	Prerequisites   []string         `yaml:"prerequisites" json:"prerequisites,omitempty"`
	LessonTemplates []LessonTemplate `yaml:"lesson_templates" json:"-"`
}

// LessonTemplate is authored static content for one lesson step.
type LessonTemplate struct {
	Step   int    `yaml:"step"`
	Title  string `yaml:"title"`
	Text   string `yaml:"text"`
	Prompt string `yaml:"prompt"`
}

// Lesson sources.
const (
	SourceAI       = "ai"
	SourceCache    = "cache"
	SourceTemplate = "template"
)

// Lesson is one step of a topic, generated on demand or taken from a template.
type Lesson struct {
	TopicID         string `json:"topic_id"`
	Step            int    `json:"step"`
	Title           string `json:"title"`
	Text            string `json:"text"`
	SuggestedPrompt string `json:"suggested_prompt"`
	Source          string `json:"source"`
}

// Question is a multiple-choice test question.
type Question struct {
	ID           string      `yaml:"id" json:"id"`
	Prompt       string      `yaml:"prompt" json:"prompt"`
	Options      []string    `yaml:"options" json:"options"`
	CorrectIndex int         `yaml:"correct_index" json:"correct_index"`
	Explanation  string      `yaml:"explanation" json:"explanation"`
	GradeBands   []GradeBand `yaml:"grade_bands,omitempty" json:"grade_bands,omitempty"`
}

// AppliesTo reports whether q is suitable for band. No bands means any.
func (q Question) AppliesTo(band GradeBand) bool {
	return len(q.GradeBands) == 0 || slices.Contains(q.GradeBands, band)
}

// Valid reports whether q has a prompt and a correct index inside its options.
func (q Question) Valid() bool {
	return q.ID != "" && q.Prompt != "" && len(q.Options) >= 2 &&
		q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options)
}

// QuestionBank is the fallback question set for one topic.
type QuestionBank struct {
	TopicID   string     `yaml:"topic_id"`
	Questions []Question `yaml:"questions"`
}
