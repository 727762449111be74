// Package learning ties the catalog, safety filter, assessment, progress and
// profile together into the operations the HTTP layer exposes.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/ai-literacy/internal/ai"
	"github.com/p-n-ai/ai-literacy/internal/assessment"
	"github.com/p-n-ai/ai-literacy/internal/curriculum"
	"github.com/p-n-ai/ai-literacy/internal/profile"
	"github.com/p-n-ai/ai-literacy/internal/progress"
	"github.com/p-n-ai/ai-literacy/internal/safety"
	"github.com/p-n-ai/ai-literacy/internal/tutor"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultSessionTTL = 2 * time.Hour
)

// ErrInvalidRequest is returned for malformed input such as an unknown
// grade band or a missing id.
var ErrInvalidRequest = errors.New("invalid request")

// Config holds dependencies for the learning engine. Only Catalog is
// required; everything else has an in-memory default.
type Config struct {
	Catalog       *curriculum.Catalog
	Completer     ai.Completer
	Filter        *safety.Filter
	Progress      progress.Store
	Sessions      assessment.SessionStore
	Results       assessment.ResultLog
	Profiles      profile.Store
	Conversations tutor.ConversationStore
	Lessons       LessonCache
	Events        EventLogger
	PassThreshold int
	Timeout       time.Duration // per generation call (default 15s)
	Now           func() time.Time
}

// Engine runs the learner progression flows.
type Engine struct {
	catalog       *curriculum.Catalog
	completer     ai.Completer
	filter        *safety.Filter
	tracker       *progress.Tracker
	generator     *assessment.Generator
	sessions      assessment.SessionStore
	results       assessment.ResultLog
	profiles      *profile.Service
	tutor         *tutor.Tutor
	lessons       LessonCache
	events        EventLogger
	passThreshold int
	timeout       time.Duration
	now           func() time.Time
}

// NewEngine creates a learning engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	e := &Engine{
		catalog:       cfg.Catalog,
		completer:     cfg.Completer,
		filter:        cfg.Filter,
		sessions:      cfg.Sessions,
		results:       cfg.Results,
		lessons:       cfg.Lessons,
		events:        cfg.Events,
		passThreshold: cfg.PassThreshold,
		timeout:       cfg.Timeout,
		now:           cfg.Now,
	}
	if e.filter == nil {
		e.filter = safety.NewFilter(nil)
	}
	if e.sessions == nil {
		e.sessions = assessment.NewMemorySessionStore(defaultSessionTTL)
	}
	if e.results == nil {
		e.results = assessment.NewMemoryResultLog()
	}
	if e.lessons == nil {
		e.lessons = NewMemoryLessonCache(defaultSessionTTL)
	}
	if e.events == nil {
		e.events = NopEventLogger{}
	}
	if e.passThreshold <= 0 {
		e.passThreshold = assessment.DefaultPassThreshold
	}
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}

	profiles := cfg.Profiles
	if profiles == nil {
		profiles = profile.NewMemoryStore()
	}
	e.profiles = profile.NewService(profiles, profile.WithClock(e.now))
	e.tracker = progress.NewTracker(cfg.Progress, cfg.Catalog, progress.WithClock(e.now))

	gen, err := assessment.NewGenerator(cfg.Completer, cfg.Catalog,
		assessment.WithTimeout(e.timeout),
		assessment.WithFilter(e.filter),
		assessment.WithOnBlocked(func(ctx context.Context, studentID, topicID string, v safety.Verdict) {
			e.logEvent(ctx, studentID, EventContentBlocked, map[string]any{
				"direction": safety.Output.String(),
				"source":    "test",
				"topic_id":  topicID,
				"reason":    v.Reason,
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create test generator: %w", err)
	}
	e.generator = gen

	e.tutor = tutor.New(tutor.Config{
		Completer: cfg.Completer,
		Store:     cfg.Conversations,
		Filter:    e.filter,
		Notes:     cfg.Catalog,
		Timeout:   e.timeout,
	})
	return e, nil
}

// LessonView is a started lesson together with the updated progress.
type LessonView struct {
	Lesson   curriculum.Lesson `json:"lesson"`
	Progress progress.Record   `json:"progress"`
}

// StartLesson opens lesson step of a topic, creating the progress record on
// first start. A step of 0 resumes the current lesson.
func (e *Engine) StartLesson(ctx context.Context, studentID, topicID string, step int) (LessonView, error) {
	topic, err := e.topic(studentID, topicID)
	if err != nil {
		return LessonView{}, err
	}
	if step == 0 {
		rec, err := e.tracker.Get(ctx, studentID, topicID)
		if err != nil {
			return LessonView{}, err
		}
		step = max(rec.CurrentLesson, 1)
	}

	rec, err := e.tracker.StartLesson(ctx, studentID, topicID, step)
	if err != nil {
		return LessonView{}, err
	}

	prof := e.profile(ctx, studentID)
	lesson := e.lesson(ctx, studentID, topic, step, profile.RenderPromptContext(prof))

	e.updateProfile(ctx, studentID, profile.Signal{Kind: profile.LessonStarted, Topic: topic.Title})
	e.logEvent(ctx, studentID, EventLessonStarted, map[string]any{
		"topic_id": topicID,
		"step":     step,
		"source":   lesson.Source,
	})
	return LessonView{Lesson: lesson, Progress: rec}, nil
}

// lesson returns the lesson for a step from the session cache, the
// generation service or the static template, in that order. Generated text
// that fails the output filter is replaced by the template.
func (e *Engine) lesson(ctx context.Context, studentID string, topic curriculum.Topic, step int, profileContext string) curriculum.Lesson {
	key := lessonKey(studentID, topic.ID, step)
	if l, ok := e.lessons.Get(ctx, key); ok {
		l.Source = curriculum.SourceCache
		return l
	}

	template, _ := e.catalog.Template(topic.ID, step)

	l, err := e.generateLesson(ctx, topic, step, profileContext)
	if err != nil {
		slog.Warn("lesson generation failed, using template",
			"topic_id", topic.ID,
			"step", step,
			"error", err,
		)
		return template
	}

	for _, text := range []string{l.Title, l.Text, l.SuggestedPrompt} {
		if v := e.filter.FilterOutput(text); !v.Allowed {
			e.logEvent(ctx, studentID, EventContentBlocked, map[string]any{
				"direction": safety.Output.String(),
				"source":    "lesson",
				"topic_id":  topic.ID,
				"reason":    v.Reason,
			})
			return template
		}
	}

	if err := e.lessons.Set(ctx, key, l); err != nil {
		slog.Warn("failed to cache lesson", "key", key, "error", err)
	}
	return l
}

// CompleteLesson marks lesson step complete. Completing a lesson twice
// changes nothing the second time.
func (e *Engine) CompleteLesson(ctx context.Context, studentID, topicID string, step int) (progress.Record, error) {
	topic, err := e.topic(studentID, topicID)
	if err != nil {
		return progress.Record{}, err
	}
	before, err := e.tracker.Get(ctx, studentID, topicID)
	if err != nil {
		return progress.Record{}, err
	}
	if step == 0 {
		step = before.CurrentLesson
	}

	rec, err := e.tracker.RecordLessonComplete(ctx, studentID, topicID, step)
	if err != nil {
		return progress.Record{}, err
	}

	if len(rec.CompletedLessons) > len(before.CompletedLessons) {
		e.updateProfile(ctx, studentID, profile.Signal{Kind: profile.LessonCompleted, Topic: topic.Title})
		e.logEvent(ctx, studentID, EventLessonCompleted, map[string]any{
			"topic_id":  topicID,
			"step":      step,
			"all_done":  rec.AllLessonsDone(),
			"completed": len(rec.CompletedLessons),
		})
	}
	return rec, nil
}

// GenerateTest issues a test for a topic whose lessons are all complete. The
// issued questions are kept server side; the student gets them without
// answers.
func (e *Engine) GenerateTest(ctx context.Context, studentID, topicID, gradeBand string) (assessment.PublicTest, error) {
	if _, err := e.topic(studentID, topicID); err != nil {
		return assessment.PublicTest{}, err
	}
	band, err := curriculum.ParseGradeBand(gradeBand)
	if err != nil {
		return assessment.PublicTest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, err := e.tracker.CheckTestEligibility(ctx, studentID, topicID); err != nil {
		return assessment.PublicTest{}, err
	}

	test, err := e.generator.Generate(ctx, studentID, topicID, band)
	if err != nil {
		return assessment.PublicTest{}, err
	}
	test.IssuedAt = e.now().UTC()
	if err := e.sessions.Save(ctx, test); err != nil {
		return assessment.PublicTest{}, fmt.Errorf("save test session: %w", err)
	}

	e.logEvent(ctx, studentID, EventTestGenerated, map[string]any{
		"topic_id":  topicID,
		"test_id":   test.ID,
		"band":      string(band),
		"source":    test.Source,
		"questions": len(test.Questions),
	})
	return test.Public(), nil
}

// Submission is a student's answers to an issued test.
type Submission struct {
	StudentID string              `json:"student_id"`
	TopicID   string              `json:"topic_id"`
	TestID    string              `json:"test_id"`
	Answers   []assessment.Answer `json:"answers"`
}

// Outcome is a graded submission.
type Outcome struct {
	Result   assessment.Result           `json:"result"`
	Score    int                         `json:"score"`
	Passed   bool                        `json:"passed"`
	Correct  int                         `json:"correct"`
	Total    int                         `json:"total"`
	Review   []assessment.QuestionResult `json:"review"`
	Progress progress.Record             `json:"progress"`
	// NewBadge is set when this attempt unlocked the topic badge.
	NewBadge bool `json:"new_badge"`
}

// SubmitTest grades a submission against the issued test, records progress,
// appends the result and updates the profile. Invalid submissions change
// nothing. Each issued test can be submitted once.
func (e *Engine) SubmitTest(ctx context.Context, sub Submission) (Outcome, error) {
	topic, err := e.topic(sub.StudentID, sub.TopicID)
	if err != nil {
		return Outcome{}, err
	}
	if sub.TestID == "" {
		return Outcome{}, fmt.Errorf("%w: test_id is required", ErrInvalidRequest)
	}

	test, err := e.sessions.Load(ctx, sub.TestID)
	if err != nil {
		return Outcome{}, err
	}
	if test.StudentID != sub.StudentID || test.TopicID != sub.TopicID {
		return Outcome{}, assessment.ErrTestNotFound
	}

	grading, err := assessment.GradeWithThreshold(test.Questions, sub.Answers, e.passThreshold)
	if err != nil {
		return Outcome{}, err
	}

	before, err := e.tracker.CheckTestEligibility(ctx, sub.StudentID, sub.TopicID)
	if err != nil {
		return Outcome{}, err
	}

	// Claim the issued test. A concurrent submission of the same id loses
	// here and sees ErrTestNotFound, so one test is counted once.
	if _, err := e.sessions.Take(ctx, test.ID); err != nil {
		return Outcome{}, err
	}

	rec, err := e.tracker.RecordTestResult(ctx, sub.StudentID, sub.TopicID, grading.Score, grading.Passed)
	if err != nil {
		if serr := e.sessions.Save(ctx, test); serr != nil {
			slog.Error("failed to restore test session", "test_id", test.ID, "error", serr)
		}
		return Outcome{}, err
	}

	now := e.now().UTC()
	result := assessment.Result{
		TestID:         test.ID,
		StudentID:      sub.StudentID,
		TopicID:        sub.TopicID,
		Score:          grading.Score,
		Passed:         grading.Passed,
		Answers:        sub.Answers,
		ElapsedSeconds: elapsedSeconds(test.IssuedAt, now),
		CreatedAt:      now,
	}
	if stored, err := e.results.Append(ctx, result); err != nil {
		// Progress already holds the attempt; the log entry is lost.
		slog.Error("failed to append test result",
			"student_id", sub.StudentID,
			"test_id", test.ID,
			"score", grading.Score,
			"error", err,
		)
	} else {
		result = stored
	}

	signals := []profile.Signal{{Kind: profile.TestScored, Topic: topic.Title, Score: grading.Score, Passed: grading.Passed}}
	if before.TestAttempted {
		signals = append(signals, profile.Signal{Kind: profile.FlagSet, Flag: profile.FlagRetookTest, Value: true})
	}
	for i, qr := range grading.Breakdown {
		if !qr.Correct {
			signals = append(signals, profile.Signal{Kind: profile.ConceptMissed, Concept: test.Questions[i].Prompt})
		}
	}
	e.updateProfile(ctx, sub.StudentID, signals...)

	newBadge := rec.BadgeUnlocked && !before.BadgeUnlocked
	e.logEvent(ctx, sub.StudentID, EventTestSubmitted, map[string]any{
		"topic_id":  sub.TopicID,
		"test_id":   test.ID,
		"score":     grading.Score,
		"passed":    grading.Passed,
		"new_badge": newBadge,
	})
	slog.Info("test graded",
		"student_id", sub.StudentID,
		"topic_id", sub.TopicID,
		"score", grading.Score,
		"passed", grading.Passed,
	)

	return Outcome{
		Result:   result,
		Score:    grading.Score,
		Passed:   grading.Passed,
		Correct:  grading.Correct,
		Total:    grading.Total,
		Review:   grading.Breakdown,
		Progress: rec,
		NewBadge: newBadge,
	}, nil
}

func elapsedSeconds(issued, now time.Time) int {
	if issued.IsZero() || now.Before(issued) {
		return 0
	}
	return int(now.Sub(issued).Seconds())
}

// ChatMessage is one student message to the tutor.
type ChatMessage struct {
	StudentID string `json:"student_id"`
	TopicID   string `json:"topic_id,omitempty"`
	Text      string `json:"text"`
}

// Chat answers a tutor chat message with the student's profile as context.
func (e *Engine) Chat(ctx context.Context, msg ChatMessage) (tutor.Reply, error) {
	if msg.StudentID == "" {
		return tutor.Reply{}, fmt.Errorf("%w: student_id is required", ErrInvalidRequest)
	}
	if msg.TopicID != "" {
		if _, ok := e.catalog.Topic(msg.TopicID); !ok {
			return tutor.Reply{}, fmt.Errorf("%w: %s", progress.ErrUnknownTopic, msg.TopicID)
		}
	}

	prof := e.profile(ctx, msg.StudentID)
	reply, err := e.tutor.Reply(ctx, tutor.Turn{
		StudentID:      msg.StudentID,
		TopicID:        msg.TopicID,
		Text:           msg.Text,
		ProfileContext: profile.RenderPromptContext(prof),
	})
	if err != nil {
		return tutor.Reply{}, err
	}

	var signals []profile.Signal
	if !prof.Flags[profile.FlagUsedChat] {
		signals = append(signals, profile.Signal{Kind: profile.FlagSet, Flag: profile.FlagUsedChat, Value: true})
	}
	if reply.Blocked {
		signals = append(signals, profile.Signal{Kind: profile.FlagSet, Flag: profile.FlagContentBlocked, Value: true})
		e.logEvent(ctx, msg.StudentID, EventContentBlocked, map[string]any{
			"direction": reply.Direction,
			"source":    "chat",
			"reason":    reply.Reason,
		})
	} else {
		e.logEvent(ctx, msg.StudentID, EventChatMessage, map[string]any{
			"conversation_id": reply.ConversationID,
			"degraded":        reply.Degraded,
		})
	}
	if len(signals) > 0 {
		e.updateProfile(ctx, msg.StudentID, signals...)
	}
	return reply, nil
}

// ResetChat ends the student's tutor conversation.
func (e *Engine) ResetChat(ctx context.Context, studentID string) error {
	if studentID == "" {
		return fmt.Errorf("%w: student_id is required", ErrInvalidRequest)
	}
	return e.tutor.Reset(ctx, studentID)
}

// Topics lists the catalog in order.
func (e *Engine) Topics() []curriculum.Topic {
	return e.catalog.ListTopics()
}

// Topic returns one topic.
func (e *Engine) Topic(id string) (curriculum.Topic, error) {
	t, ok := e.catalog.Topic(id)
	if !ok {
		return curriculum.Topic{}, fmt.Errorf("%w: %s", progress.ErrUnknownTopic, id)
	}
	return t, nil
}

// NextTopic returns the first unlocked topic the student has no badge for.
// The bool is false when every topic is done.
func (e *Engine) NextTopic(ctx context.Context, studentID string) (curriculum.Topic, bool, error) {
	badges, err := e.tracker.Badges(ctx, studentID)
	if err != nil {
		return curriculum.Topic{}, false, err
	}
	t, ok := e.catalog.Next(badges)
	return t, ok, nil
}

// Progress returns every progress record of the student.
func (e *Engine) Progress(ctx context.Context, studentID string) ([]progress.Record, error) {
	return e.tracker.ListByStudent(ctx, studentID)
}

// ProfileView is a profile with the personalization rules it matches.
type ProfileView struct {
	profile.Profile
	Tags []string `json:"tags"`
}

// Profile returns the student's personalization profile.
func (e *Engine) Profile(ctx context.Context, studentID string) (ProfileView, error) {
	if studentID == "" {
		return ProfileView{}, fmt.Errorf("%w: student_id is required", ErrInvalidRequest)
	}
	p, err := e.profiles.Get(ctx, studentID)
	if err != nil {
		return ProfileView{}, err
	}
	return ProfileView{Profile: p, Tags: profile.Evaluate(p)}, nil
}

// Results queries the result log.
func (e *Engine) Results(ctx context.Context, q assessment.ResultQuery) ([]assessment.Result, error) {
	return e.results.Query(ctx, q)
}

// StudentReport is everything recorded about one student.
type StudentReport struct {
	StudentID string              `json:"student_id"`
	Progress  []progress.Record   `json:"progress"`
	Profile   ProfileView         `json:"profile"`
	Results   []assessment.Result `json:"results"`
}

// Student gathers progress, profile and results for one student.
func (e *Engine) Student(ctx context.Context, studentID string) (StudentReport, error) {
	recs, err := e.Progress(ctx, studentID)
	if err != nil {
		return StudentReport{}, err
	}
	prof, err := e.Profile(ctx, studentID)
	if err != nil {
		return StudentReport{}, err
	}
	results, err := e.results.Query(ctx, assessment.ResultQuery{StudentID: studentID})
	if err != nil {
		return StudentReport{}, err
	}
	return StudentReport{StudentID: studentID, Progress: recs, Profile: prof, Results: results}, nil
}

// topic validates the ids and looks up the topic.
func (e *Engine) topic(studentID, topicID string) (curriculum.Topic, error) {
	if studentID == "" || topicID == "" {
		return curriculum.Topic{}, progress.ErrMissingID
	}
	t, ok := e.catalog.Topic(topicID)
	if !ok {
		return curriculum.Topic{}, fmt.Errorf("%w: %s", progress.ErrUnknownTopic, topicID)
	}
	return t, nil
}

// profile loads the profile for prompt context; failures give an empty one.
func (e *Engine) profile(ctx context.Context, studentID string) profile.Profile {
	p, err := e.profiles.Get(ctx, studentID)
	if err != nil {
		slog.Warn("failed to load profile", "student_id", studentID, "error", err)
		return profile.Profile{StudentID: studentID}
	}
	return p
}

// updateProfile applies signals. The profile is advisory, so failures are
// logged rather than returned.
func (e *Engine) updateProfile(ctx context.Context, studentID string, signals ...profile.Signal) {
	if _, err := e.profiles.Update(ctx, studentID, signals...); err != nil {
		slog.Error("failed to update profile", "student_id", studentID, "error", err)
	}
}

func (e *Engine) logEvent(ctx context.Context, studentID, eventType string, data map[string]any) {
	if err := e.events.LogEvent(ctx, Event{
		StudentID: studentID,
		EventType: eventType,
		Data:      data,
		CreatedAt: e.now().UTC(),
	}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "student_id", studentID, "error", err)
	}
}
