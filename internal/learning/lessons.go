package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/ai-literacy/internal/ai"
	"github.com/p-n-ai/ai-literacy/internal/curriculum"
	"github.com/p-n-ai/ai-literacy/internal/platform/cache"
)

// LessonCache keeps generated lessons for the length of a study session.
type LessonCache interface {
	Get(ctx context.Context, key string) (curriculum.Lesson, bool)
	Set(ctx context.Context, key string, lesson curriculum.Lesson) error
}

func lessonKey(studentID, topicID string, step int) string {
	return fmt.Sprintf("lesson:%s:%s:%d", studentID, topicID, step)
}

// RedisLessonCache is a LessonCache on Redis.
type RedisLessonCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisLessonCache creates a Redis-backed lesson cache.
func NewRedisLessonCache(c *cache.Cache, ttl time.Duration) *RedisLessonCache {
	return &RedisLessonCache{cache: c, ttl: ttl}
}

func (c *RedisLessonCache) Get(ctx context.Context, key string) (curriculum.Lesson, bool) {
	var l curriculum.Lesson
	if err := c.cache.GetJSON(ctx, key, &l); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("lesson cache read failed", "key", key, "error", err)
		}
		return curriculum.Lesson{}, false
	}
	return l, true
}

func (c *RedisLessonCache) Set(ctx context.Context, key string, lesson curriculum.Lesson) error {
	return c.cache.SetJSON(ctx, key, lesson, c.ttl)
}

type cachedLesson struct {
	lesson  curriculum.Lesson
	expires time.Time
}

// MemoryLessonCache is an in-process LessonCache.
type MemoryLessonCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	lessons map[string]cachedLesson
	now     func() time.Time
}

// NewMemoryLessonCache creates an in-process lesson cache.
func NewMemoryLessonCache(ttl time.Duration) *MemoryLessonCache {
	return &MemoryLessonCache{ttl: ttl, lessons: make(map[string]cachedLesson), now: time.Now}
}

func (c *MemoryLessonCache) Get(_ context.Context, key string) (curriculum.Lesson, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lessons[key]
	if !ok || c.now().After(e.expires) {
		delete(c.lessons, key)
		return curriculum.Lesson{}, false
	}
	return e.lesson, true
}

func (c *MemoryLessonCache) Set(_ context.Context, key string, lesson curriculum.Lesson) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.lessons {
		if now.After(e.expires) {
			delete(c.lessons, k)
		}
	}
	c.lessons[key] = cachedLesson{lesson: lesson, expires: now.Add(c.ttl)}
	return nil
}

const lessonSystemPrompt = `You write short lessons that teach school students about artificial intelligence.
Write in plain language with one everyday example. Keep the lesson under 250 words.
Respond with a JSON object only:
{"title": "...", "text": "...", "suggested_prompt": "a question the student can try asking an AI assistant"}`

type generatedLesson struct {
	Title           string `json:"title"`
	Text            string `json:"text"`
	SuggestedPrompt string `json:"suggested_prompt"`
}

// generateLesson asks the generation service for one lesson step.
func (e *Engine) generateLesson(ctx context.Context, topic curriculum.Topic, step int, profileContext string) (curriculum.Lesson, error) {
	if e.completer == nil {
		return curriculum.Lesson{}, ai.ErrNoProvider
	}

	var system strings.Builder
	system.WriteString(lessonSystemPrompt)
	if notes, ok := e.catalog.TeachingNotes(topic.ID); ok {
		system.WriteString("\n\nTeaching notes:\n")
		system.WriteString(notes)
	}
	if profileContext != "" {
		system.WriteString("\n\n")
		system.WriteString(profileContext)
	}

	prompt := fmt.Sprintf("Topic: %s\nSummary: %s\nWrite lesson %d of %d.", topic.Title, topic.Summary, step, topic.Lessons)
	if tmpl, ok := e.catalog.Template(topic.ID, step); ok {
		prompt += "\nThis step covers: " + tmpl.Title
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: system.String()},
			{Role: "user", Content: prompt},
		},
		Task:      ai.TaskLesson,
		MaxTokens: 800,
		JSONMode:  true,
	})
	if err != nil {
		return curriculum.Lesson{}, err
	}

	var g generatedLesson
	if err := json.Unmarshal([]byte(ai.ExtractJSON(resp.Content)), &g); err != nil {
		return curriculum.Lesson{}, fmt.Errorf("parse lesson: %w", err)
	}
	if strings.TrimSpace(g.Text) == "" {
		return curriculum.Lesson{}, errors.New("generated lesson has no text")
	}
	if g.Title == "" {
		g.Title = fmt.Sprintf("%s: part %d", topic.Title, step)
	}
	return curriculum.Lesson{
		TopicID:         topic.ID,
		Step:            step,
		Title:           g.Title,
		Text:            g.Text,
		SuggestedPrompt: g.SuggestedPrompt,
		Source:          curriculum.SourceAI,
	}, nil
}

