// Package safety gates text on its way to the generation service and on its
// way back to the student.
package safety

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// SafeReplacement is shown to the student in place of blocked content.
const SafeReplacement = "Let's keep our conversation focused on learning about AI. " +
	"Try asking a question about today's topic."

// DefaultMaxInputLength is the hard cap on student input, in characters.
const DefaultMaxInputLength = 1000

// Direction says which way text is flowing.
type Direction int

const (
	// Input is student text headed to the generation service.
	Input Direction = iota
	// Output is generated text headed to the student.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Verdict is the outcome of a check. Reason is empty when Allowed.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the verdict for acceptable text.
var Allow = Verdict{Allowed: true}

// Block returns a blocked verdict with reason.
func Block(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// ContentClassifier decides whether text may pass.
type ContentClassifier interface {
	Classify(text string, dir Direction) Verdict
}

// ClassifierFunc adapts a function to ContentClassifier.
type ClassifierFunc func(text string, dir Direction) Verdict

func (f ClassifierFunc) Classify(text string, dir Direction) Verdict {
	return f(text, dir)
}

// WordLists configures a KeywordClassifier.
type WordLists struct {
	Blocklist      []string `yaml:"blocklist"`
	OffTopic       []string `yaml:"off_topic"`
	MaxInputLength int      `yaml:"max_input_length"`
}

// DefaultWordLists returns the built-in lists.
func DefaultWordLists() WordLists {
	return WordLists{
		Blocklist: []string{
			"hack", "cheat", "weapon", "bomb", "explosive",
			"drugs", "porn", "nude", "gambling", "suicide", "self-harm",
		},
		OffTopic: []string{
			"fortnite", "minecraft", "roblox", "tiktok", "football", "basketball",
			"celebrity", "boyfriend", "girlfriend", "gossip", "shopping", "lottery",
		},
		MaxInputLength: DefaultMaxInputLength,
	}
}

// LoadWordLists reads lists from a YAML file. A list missing from the file
// keeps its built-in default.
func LoadWordLists(path string) (WordLists, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WordLists{}, fmt.Errorf("reading word lists: %w", err)
	}

	lists := DefaultWordLists()
	var file WordLists
	if err := yaml.Unmarshal(data, &file); err != nil {
		return WordLists{}, fmt.Errorf("parsing word lists %s: %w", path, err)
	}
	if file.Blocklist != nil {
		lists.Blocklist = file.Blocklist
	}
	if file.OffTopic != nil {
		lists.OffTopic = file.OffTopic
	}
	if file.MaxInputLength > 0 {
		lists.MaxInputLength = file.MaxInputLength
	}
	return lists, nil
}

// KeywordClassifier blocks on substring matches against word lists after
// NFKC normalisation and case folding, so "ＨＡＣＫ" and "Hack" both match "hack".
//
// Input is blocked on any blocklist word, on two or more distinct off-topic
// words, or when longer than the length cap. Output is blocked on the
// blocklist only.
type KeywordClassifier struct {
	blocklist []string
	offTopic  []string
	maxInput  int
}

// NewKeywordClassifier creates a classifier from lists.
func NewKeywordClassifier(lists WordLists) *KeywordClassifier {
	k := &KeywordClassifier{maxInput: lists.MaxInputLength}
	if k.maxInput <= 0 {
		k.maxInput = DefaultMaxInputLength
	}
	k.blocklist = normalizeAll(lists.Blocklist)
	k.offTopic = normalizeAll(lists.OffTopic)
	return k
}

func (k *KeywordClassifier) Classify(text string, dir Direction) Verdict {
	if dir == Input {
		if n := utf8.RuneCountInString(text); n > k.maxInput {
			return Block("input is %d characters, limit is %d", n, k.maxInput)
		}
	}

	folded := normalize(text)
	for _, w := range k.blocklist {
		if strings.Contains(folded, w) {
			return Block("contains blocked word %q", w)
		}
	}

	if dir == Input {
		var hits []string
		for _, w := range k.offTopic {
			if strings.Contains(folded, w) {
				hits = append(hits, w)
			}
		}
		if len(hits) >= 2 {
			return Block("off-topic words %s", strings.Join(quoteAll(hits), ", "))
		}
	}
	return Allow
}

func normalize(s string) string {
	// A Caser keeps state, so each call gets its own.
	return cases.Fold().String(norm.NFKC.String(s))
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(normalize(w))
		if w != "" && !slices.Contains(out, w) {
			out = append(out, w)
		}
	}
	return out
}

func quoteAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = fmt.Sprintf("%q", w)
	}
	return out
}

// Filter runs a ContentClassifier at the two gates.
type Filter struct {
	classifier ContentClassifier
}

// NewFilter creates a filter. A nil classifier uses the built-in keyword lists.
func NewFilter(c ContentClassifier) *Filter {
	if c == nil {
		c = NewKeywordClassifier(DefaultWordLists())
	}
	return &Filter{classifier: c}
}

// FilterInput checks student text before it reaches the generation service.
func (f *Filter) FilterInput(text string) Verdict {
	return f.check(text, Input)
}

// FilterOutput checks generated text before it reaches the student.
func (f *Filter) FilterOutput(text string) Verdict {
	return f.check(text, Output)
}

func (f *Filter) check(text string, dir Direction) Verdict {
	v := f.classifier.Classify(text, dir)
	if !v.Allowed {
		slog.Info("content blocked", "direction", dir.String(), "reason", v.Reason)
	}
	return v
}

// Sanitize returns text when the output gate allows it and SafeReplacement
// otherwise, along with the verdict.
func (f *Filter) Sanitize(text string) (string, Verdict) {
	v := f.FilterOutput(text)
	if !v.Allowed {
		return SafeReplacement, v
	}
	return text, v
}
