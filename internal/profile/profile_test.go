package profile

import (
	"math"
	"slices"
	"strings"
	"testing"
)

func TestApply(t *testing.T) {
	var p Profile
	p.Apply(
		Signal{Kind: LessonStarted, Topic: "What is AI?"},
		Signal{Kind: LessonCompleted, Topic: "What is AI?"},
		Signal{Kind: TestScored, Topic: "What is AI?", Score: 60},
		Signal{Kind: TestScored, Topic: "What is AI?", Score: 90, Passed: true},
		Signal{Kind: ConceptMissed, Concept: "training data"},
		Signal{Kind: ConceptMissed, Concept: "training data"},
	)

	if p.LessonsCompleted != 1 || p.TestsTaken != 2 {
		t.Errorf("counters = %d lessons, %d tests", p.LessonsCompleted, p.TestsTaken)
	}
	if math.Abs(p.AverageScore-75) > 1e-9 {
		t.Errorf("AverageScore = %v, want 75", p.AverageScore)
	}
	if !slices.Equal(p.Strengths, []string{"What is AI?"}) || !slices.Equal(p.Weaknesses, []string{"What is AI?"}) {
		t.Errorf("strengths %v weaknesses %v", p.Strengths, p.Weaknesses)
	}
	if len(p.MissedConcepts) != 1 {
		t.Errorf("MissedConcepts = %v, want deduplicated", p.MissedConcepts)
	}
	if p.LastTopic != "What is AI?" {
		t.Errorf("LastTopic = %q", p.LastTopic)
	}
}

func TestApply_Modality(t *testing.T) {
	var p Profile
	p.Apply(Signal{Kind: FlagSet, Flag: FlagUsedChat, Value: true})
	if p.PreferredModality != "interactive" {
		t.Errorf("inferred modality = %q, want interactive", p.PreferredModality)
	}

	q := Profile{}
	q.Apply(
		Signal{Kind: ModalityStated, Modality: "visual"},
		Signal{Kind: FlagSet, Flag: FlagUsedChat, Value: true},
	)
	if q.PreferredModality != "visual" {
		t.Errorf("stated modality overwritten: %q", q.PreferredModality)
	}
}

func TestClone(t *testing.T) {
	p := Profile{Strengths: []string{"a"}, Flags: map[string]bool{"x": true}}
	c := p.Clone()
	c.Strengths[0] = "b"
	c.Flags["x"] = false
	if p.Strengths[0] != "a" || !p.Flags["x"] {
		t.Error("Clone() shares state with the original")
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
		want []string
	}{
		{"empty", Profile{}, []string{"new_learner"}},
		{
			"struggling with a weak topic",
			Profile{TestsTaken: 1, AverageScore: 40, Weaknesses: []string{"AI bias"}, LastTopic: "AI bias"},
			[]string{"struggling", "weak_topics", "last_topic"},
		},
		{
			"excelling",
			Profile{LessonsCompleted: 6, TestsTaken: 2, AverageScore: 95, Strengths: []string{"a", "b"}},
			[]string{"excelling", "strong_topics"},
		},
		{
			"weakness later passed",
			Profile{TestsTaken: 2, AverageScore: 80, Weaknesses: []string{"a"}, Strengths: []string{"a"}},
			[]string{"strong_topics"},
		},
		{
			"flags and modality",
			Profile{LessonsCompleted: 1, PreferredModality: "visual", Flags: map[string]bool{FlagWantsExamples: true}},
			[]string{"modality", "wants_examples"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.p); !slices.Equal(got, tt.want) {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderPromptContext(t *testing.T) {
	p := Profile{
		TestsTaken:     1,
		AverageScore:   50,
		MissedConcepts: []string{"c1", "c2", "c3", "c4", "c5", "c6"},
	}
	got := RenderPromptContext(p)

	if !strings.HasPrefix(got, "Student profile:") {
		t.Errorf("missing header: %q", got)
	}
	if strings.Index(got, "50%") > strings.Index(got, "Revisit") {
		t.Errorf("rules rendered out of priority order: %q", got)
	}
	if strings.Contains(got, "c1,") || !strings.Contains(got, "c2, c3, c4, c5, c6") {
		t.Errorf("missed concepts not capped to the most recent: %q", got)
	}
}
