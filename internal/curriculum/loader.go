package curriculum

import (
	"bytes"
	"cmp"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data
var defaultData embed.FS

const (
	questionsYAMLSuffix = ".questions.yaml"
	questionsXLSXSuffix = ".questions.xlsx"
	teachingSuffix      = ".teaching.md"
)

// Catalog is the static registry of topics, lesson templates and fallback
// questions. It is immutable once loaded and safe for concurrent use.
type Catalog struct {
	topics        map[string]Topic
	ordered       []Topic
	questions     map[string][]Question
	teachingNotes map[string]string
}

// Default loads the curriculum embedded in the binary.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(defaultData, "data")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads a curriculum tree from disk.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("loading curriculum: %s is not a directory", dir)
	}
	return Load(os.DirFS(dir))
}

// Load walks fsys and loads topics (*.yaml), question banks (*.questions.yaml,
// *.questions.xlsx) and tutor notes (*.teaching.md).
func Load(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{
		topics:        make(map[string]Topic),
		questions:     make(map[string][]Question),
		teachingNotes: make(map[string]string),
	}

	// Notes are keyed by the sibling topic file, which may be walked later.
	notesByFile := make(map[string]string)
	topicByFile := make(map[string]string)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(p, teachingSuffix):
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}
			notesByFile[strings.TrimSuffix(p, teachingSuffix)] = string(data)
		case strings.HasSuffix(p, questionsYAMLSuffix):
			return c.loadQuestionsYAML(fsys, p)
		case strings.HasSuffix(p, questionsXLSXSuffix):
			return c.loadQuestionsXLSX(fsys, p)
		case path.Ext(p) == ".yaml" || path.Ext(p) == ".yml":
			id, err := c.loadTopic(fsys, p)
			if err != nil {
				return err
			}
			if id != "" {
				topicByFile[strings.TrimSuffix(p, path.Ext(p))] = id
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	for base, notes := range notesByFile {
		if id, ok := topicByFile[base]; ok {
			c.teachingNotes[id] = notes
		}
	}

	c.ordered = make([]Topic, 0, len(c.topics))
	for _, t := range c.topics {
		c.ordered = append(c.ordered, t)
	}
	slices.SortFunc(c.ordered, func(a, b Topic) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})

	slog.Info("curriculum loaded", "topics", len(c.topics), "question_banks", len(c.questions))
	return c, nil
}

func (c *Catalog) loadTopic(fsys fs.FS, p string) (string, error) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return "", err
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", p, "error", err)
		return "", nil
	}
	if topic.ID == "" {
		return "", nil // Not a topic file
	}
	if _, dup := c.topics[topic.ID]; dup {
		return "", fmt.Errorf("%s: duplicate topic id %q", p, topic.ID)
	}

	c.topics[topic.ID] = topic
	return topic.ID, nil
}

func (c *Catalog) loadQuestionsYAML(fsys fs.FS, p string) error {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return err
	}

	var bank QuestionBank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		slog.Warn("skipping invalid question bank", "path", p, "error", err)
		return nil
	}
	c.addQuestions(p, bank)
	return nil
}

func (c *Catalog) loadQuestionsXLSX(fsys fs.FS, p string) error {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return err
	}

	topicID := strings.TrimSuffix(path.Base(p), questionsXLSXSuffix)
	bank, err := ReadQuestionsXLSX(bytes.NewReader(data), topicID)
	if err != nil {
		slog.Warn("skipping invalid question spreadsheet", "path", p, "error", err)
		return nil
	}
	c.addQuestions(p, bank)
	return nil
}

func (c *Catalog) addQuestions(p string, bank QuestionBank) {
	if bank.TopicID == "" {
		slog.Warn("question bank has no topic_id", "path", p)
		return
	}
	for _, q := range bank.Questions {
		if !q.Valid() {
			slog.Warn("skipping invalid question", "path", p, "question_id", q.ID)
			continue
		}
		c.questions[bank.TopicID] = append(c.questions[bank.TopicID], q)
	}
}

// ListTopics returns all topics ordered by their display order, then id.
func (c *Catalog) ListTopics() []Topic {
	return slices.Clone(c.ordered)
}

// Topic returns a topic by ID.
func (c *Catalog) Topic(id string) (Topic, bool) {
	t, ok := c.topics[id]
	return t, ok
}

// LessonsFor returns the lesson count for a topic, or 0 if the topic is unknown.
func (c *Catalog) LessonsFor(topicID string) int {
	return c.topics[topicID].Lessons
}

// TeachingNotes returns tutor notes for a topic ID.
func (c *Catalog) TeachingNotes(id string) (string, bool) {
	n, ok := c.teachingNotes[id]
	return n, ok
}

// Questions returns the fallback questions for a topic that apply to band.
func (c *Catalog) Questions(topicID string, band GradeBand) []Question {
	var out []Question
	for _, q := range c.questions[topicID] {
		if q.AppliesTo(band) {
			out = append(out, q)
		}
	}
	return out
}

// AllQuestions returns every fallback question for a topic regardless of band.
func (c *Catalog) AllQuestions(topicID string) []Question {
	return slices.Clone(c.questions[topicID])
}

// Template returns the static lesson for a step: the topic's authored template
// when it has one, otherwise generic text built from the topic title.
func (c *Catalog) Template(topicID string, step int) (Lesson, bool) {
	t, ok := c.topics[topicID]
	if !ok || step < 1 || step > t.Lessons {
		return Lesson{}, false
	}

	for _, tmpl := range t.LessonTemplates {
		if tmpl.Step == step {
			return Lesson{
				TopicID:         topicID,
				Step:            step,
				Title:           tmpl.Title,
				Text:            tmpl.Text,
				SuggestedPrompt: tmpl.Prompt,
				Source:          SourceTemplate,
			}, true
		}
	}

	return Lesson{
		TopicID: topicID,
		Step:    step,
		Title:   fmt.Sprintf("%s: part %d of %d", t.Title, step, t.Lessons),
		Text: fmt.Sprintf("This is part %d of %q. %s Read through the ideas, then try the practice prompt "+
			"and ask the tutor about anything that is unclear.", step, t.Title, t.Summary),
		SuggestedPrompt: fmt.Sprintf("Explain one idea from %q in your own words, with an example from everyday life.", t.Title),
		Source:          SourceTemplate,
	}, true
}

// Next returns the first topic in order that has no badge yet and whose
// prerequisites all have badges.
func (c *Catalog) Next(badges map[string]bool) (Topic, bool) {
	for _, t := range c.ordered {
		if badges[t.ID] {
			continue
		}
		ready := true
		for _, pre := range t.Prerequisites {
			if !badges[pre] {
				ready = false
				break
			}
		}
		if ready {
			return t, true
		}
	}
	return Topic{}, false
}

// Validate checks that every topic has lessons, known prerequisites and at
// least one fallback question, and that no question bank names an unknown topic.
func (c *Catalog) Validate() error {
	var errs []error
	if len(c.topics) == 0 {
		errs = append(errs, errors.New("no topics found"))
	}
	for _, t := range c.ordered {
		if t.Title == "" {
			errs = append(errs, fmt.Errorf("topic %s: missing title", t.ID))
		}
		if t.Lessons < 1 {
			errs = append(errs, fmt.Errorf("topic %s: lessons must be positive, got %d", t.ID, t.Lessons))
		}
		for _, pre := range t.Prerequisites {
			if pre == t.ID {
				errs = append(errs, fmt.Errorf("topic %s: lists itself as prerequisite", t.ID))
			} else if _, ok := c.topics[pre]; !ok {
				errs = append(errs, fmt.Errorf("topic %s: unknown prerequisite %q", t.ID, pre))
			}
		}
		for _, tmpl := range t.LessonTemplates {
			if tmpl.Step < 1 || tmpl.Step > t.Lessons {
				errs = append(errs, fmt.Errorf("topic %s: template step %d out of range", t.ID, tmpl.Step))
			}
		}
		if len(c.questions[t.ID]) == 0 {
			errs = append(errs, fmt.Errorf("topic %s: no fallback questions", t.ID))
		}
	}
	for id := range c.questions {
		if _, ok := c.topics[id]; !ok {
			errs = append(errs, fmt.Errorf("question bank for unknown topic %q", id))
		}
	}
	return errors.Join(errs...)
}
