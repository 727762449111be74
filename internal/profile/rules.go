package profile

import (
	"fmt"
	"slices"
	"strings"
)

// Rule is one tagged condition and the message it contributes to the prompt
// context when it holds.
type Rule struct {
	Tag     string
	When    func(Profile) bool
	Message func(Profile) string
}

// maxListed caps how many list entries a message names.
const maxListed = 5

// Rules are evaluated in slice order; earlier rules come first in the output.
var Rules = []Rule{
	{
		Tag:     "new_learner",
		When:    func(p Profile) bool { return p.LessonsCompleted == 0 && p.TestsTaken == 0 },
		Message: func(Profile) string { return "New learner: start from everyday examples and check what they already know." },
	},
	{
		Tag:  "struggling",
		When: func(p Profile) bool { return p.TestsTaken > 0 && p.AverageScore < 70 },
		Message: func(p Profile) string {
			return fmt.Sprintf("Average test score is %.0f%%: use short steps and check understanding often.", p.AverageScore)
		},
	},
	{
		Tag:  "excelling",
		When: func(p Profile) bool { return p.TestsTaken >= 2 && p.AverageScore >= 90 },
		Message: func(p Profile) string {
			return fmt.Sprintf("Average test score is %.0f%%: offer a stretch question when it fits.", p.AverageScore)
		},
	},
	{
		Tag:  "missed_concepts",
		When: func(p Profile) bool { return len(p.MissedConcepts) > 0 },
		Message: func(p Profile) string {
			return "Revisit when relevant: " + joinRecent(p.MissedConcepts) + "."
		},
	},
	{
		Tag:  "weak_topics",
		When: func(p Profile) bool { return len(unresolved(p)) > 0 },
		Message: func(p Profile) string {
			return "Topics to reinforce: " + joinRecent(unresolved(p)) + "."
		},
	},
	{
		Tag:  "strong_topics",
		When: func(p Profile) bool { return len(p.Strengths) > 0 },
		Message: func(p Profile) string {
			return "Topics already passed: " + joinRecent(p.Strengths) + "."
		},
	},
	{
		Tag:  "modality",
		When: func(p Profile) bool { return p.PreferredModality != "" },
		Message: func(p Profile) string {
			return fmt.Sprintf("Prefers %s explanations.", p.PreferredModality)
		},
	},
	{
		Tag:     "wants_examples",
		When:    func(p Profile) bool { return p.Flags[FlagWantsExamples] },
		Message: func(Profile) string { return "Include one concrete example in every answer." },
	},
	{
		Tag:  "last_topic",
		When: func(p Profile) bool { return p.LastTopic != "" },
		Message: func(p Profile) string {
			return fmt.Sprintf("Most recently studied: %s.", p.LastTopic)
		},
	},
}

// Evaluate returns the tags of the rules that hold for p, in priority order.
func Evaluate(p Profile) []string {
	var tags []string
	for _, r := range Rules {
		if r.When(p) {
			tags = append(tags, r.Tag)
		}
	}
	return tags
}

// RenderPromptContext renders the messages of matching rules as a text block
// for a system prompt.
func RenderPromptContext(p Profile) string {
	var b strings.Builder
	b.WriteString("Student profile:")
	for _, r := range Rules {
		if r.When(p) {
			b.WriteString("\n- ")
			b.WriteString(r.Message(p))
		}
	}
	return b.String()
}

// unresolved is the weaknesses that were not later passed.
func unresolved(p Profile) []string {
	var out []string
	for _, w := range p.Weaknesses {
		if !slices.Contains(p.Strengths, w) {
			out = append(out, w)
		}
	}
	return out
}

func joinRecent(list []string) string {
	if len(list) > maxListed {
		list = list[len(list)-maxListed:]
	}
	return strings.Join(list, ", ")
}
