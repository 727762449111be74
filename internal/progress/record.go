// Package progress tracks per-student, per-topic lesson completion, test
// outcomes and badges.
package progress

import (
	"slices"
	"time"
)

// Status is the position of a (student, topic) pair in the progression.
type Status string

const (
	StatusNotStarted     Status = "not_started"
	StatusInProgress     Status = "in_progress"
	StatusAllLessonsDone Status = "all_lessons_done"
	StatusTestFailed     Status = "test_failed"
	StatusTestPassed     Status = "test_passed"
)

// Record is the progress of one student through one topic.
type Record struct {
	StudentID        string    `json:"student_id"`
	TopicID          string    `json:"topic_id"`
	TotalLessons     int       `json:"total_lessons"`
	CurrentLesson    int       `json:"current_lesson"`
	CompletedLessons []int     `json:"completed_lessons"`
	TestAttempted    bool      `json:"test_attempted"`
	LastTestScore    int       `json:"last_test_score"`
	BestTestScore    int       `json:"best_test_score"`
	LastTestPassed   bool      `json:"last_test_passed"`
	BadgeUnlocked    bool      `json:"badge_unlocked"`
	LastActivity     time.Time `json:"last_activity"`
}

// Status derives the state from the record's fields.
func (r Record) Status() Status {
	switch {
	case r.TestAttempted && r.LastTestPassed:
		return StatusTestPassed
	case r.TestAttempted:
		return StatusTestFailed
	case r.AllLessonsDone():
		return StatusAllLessonsDone
	case r.CurrentLesson > 0 || len(r.CompletedLessons) > 0:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// AllLessonsDone reports whether every lesson of the topic is complete.
func (r Record) AllLessonsDone() bool {
	return r.TotalLessons > 0 && len(r.CompletedLessons) >= r.TotalLessons
}

// CompleteLesson adds n to the completed set and reports whether it was new.
// The set stays sorted.
func (r *Record) CompleteLesson(n int) bool {
	i, found := slices.BinarySearch(r.CompletedLessons, n)
	if found {
		return false
	}
	r.CompletedLessons = slices.Insert(r.CompletedLessons, i, n)
	if n == r.CurrentLesson && n < r.TotalLessons {
		r.CurrentLesson = n + 1
	}
	return true
}

// ApplyTestResult records an attempt. The latest attempt sets the last score
// and pass flag, the best score keeps its maximum, and a badge once earned is
// never taken away.
func (r *Record) ApplyTestResult(score int, passed bool) {
	r.TestAttempted = true
	r.LastTestScore = score
	r.LastTestPassed = passed
	r.BestTestScore = max(r.BestTestScore, score)
	r.BadgeUnlocked = r.BadgeUnlocked || passed
}

func (r Record) clone() Record {
	r.CompletedLessons = slices.Clone(r.CompletedLessons)
	return r
}
