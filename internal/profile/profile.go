// Package profile accumulates per-student learning signals and renders them
// as context for the generation service.
package profile

import (
	"maps"
	"slices"
	"time"
)

// Profile is the single mutable personalization record of one student.
// Revision increases by one on every successful save.
type Profile struct {
	StudentID         string          `json:"student_id"`
	Revision          int64           `json:"revision"`
	LastTopic         string          `json:"last_topic,omitempty"`
	MissedConcepts    []string        `json:"missed_concepts"`
	PreferredModality string          `json:"preferred_modality,omitempty"`
	Strengths         []string        `json:"strengths"`
	Weaknesses        []string        `json:"weaknesses"`
	LessonsCompleted  int             `json:"lessons_completed"`
	TestsTaken        int             `json:"tests_taken"`
	AverageScore      float64         `json:"average_score"`
	Flags             map[string]bool `json:"flags,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SignalKind tags a Signal.
type SignalKind string

const (
	LessonStarted   SignalKind = "lesson_started"
	LessonCompleted SignalKind = "lesson_completed"
	TestScored      SignalKind = "test_scored"
	ConceptMissed   SignalKind = "concept_missed"
	ModalityStated  SignalKind = "modality_stated"
	FlagSet         SignalKind = "flag_set"
)

// Interaction flags.
const (
	FlagUsedChat       = "used_chat"
	FlagWantsExamples  = "wants_examples"
	FlagRetookTest     = "retook_test"
	FlagContentBlocked = "content_blocked"
)

// Signal is one observation about a student. Only the fields for its Kind
// are read.
type Signal struct {
	Kind     SignalKind
	Topic    string // topic title, for the lesson and test kinds
	Score    int    // TestScored
	Passed   bool   // TestScored
	Concept  string // ConceptMissed
	Modality string // ModalityStated
	Flag     string // FlagSet
	Value    bool   // FlagSet
}

// Apply folds signals into p. Lists only grow and the average is an
// incremental mean over tests taken.
func (p *Profile) Apply(signals ...Signal) {
	for _, s := range signals {
		switch s.Kind {
		case LessonStarted:
			p.LastTopic = s.Topic
		case LessonCompleted:
			p.LastTopic = s.Topic
			p.LessonsCompleted++
		case TestScored:
			p.LastTopic = s.Topic
			p.TestsTaken++
			p.AverageScore += (float64(s.Score) - p.AverageScore) / float64(p.TestsTaken)
			if s.Passed {
				p.Strengths = appendUnique(p.Strengths, s.Topic)
			} else {
				p.Weaknesses = appendUnique(p.Weaknesses, s.Topic)
			}
		case ConceptMissed:
			p.MissedConcepts = appendUnique(p.MissedConcepts, s.Concept)
		case ModalityStated:
			p.PreferredModality = s.Modality
		case FlagSet:
			if p.Flags == nil {
				p.Flags = make(map[string]bool)
			}
			p.Flags[s.Flag] = s.Value
		}
	}

	// Chatting a lot without a stated preference reads as interactive.
	if p.PreferredModality == "" && p.Flags[FlagUsedChat] {
		p.PreferredModality = "interactive"
	}
}

func appendUnique(list []string, v string) []string {
	if v == "" || slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	p.MissedConcepts = slices.Clone(p.MissedConcepts)
	p.Strengths = slices.Clone(p.Strengths)
	p.Weaknesses = slices.Clone(p.Weaknesses)
	p.Flags = maps.Clone(p.Flags)
	return p
}
