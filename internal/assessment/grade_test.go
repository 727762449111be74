package assessment

import (
	"errors"
	"testing"
)

func fiveQuestions() []Question {
	qs := make([]Question, 5)
	for i := range qs {
		qs[i] = Question{
			ID:           string(rune('a' + i)),
			Prompt:       "prompt",
			Options:      []string{"w", "x", "y", "z"},
			CorrectIndex: i % 4,
			Explanation:  "because",
		}
	}
	return qs
}

func idx(i int) *int { return &i }

func TestGrade(t *testing.T) {
	qs := fiveQuestions() // correct: 0 1 2 3 0

	tests := []struct {
		name        string
		answers     []Answer
		wantScore   int
		wantPassed  bool
		wantCorrect int
	}{
		{
			name:        "four of five by index",
			answers:     []Answer{{Index: idx(0)}, {Index: idx(1)}, {Index: idx(2)}, {Index: idx(3)}, {Index: idx(3)}},
			wantScore:   80,
			wantPassed:  true,
			wantCorrect: 4,
		},
		{
			name:        "literal values by id",
			answers:     []Answer{{QuestionID: "e", Value: "w"}, {QuestionID: "a", Value: "w"}, {QuestionID: "b", Value: "w"}},
			wantScore:   40,
			wantPassed:  false,
			wantCorrect: 2,
		},
		{
			name:        "unanswered count as wrong",
			answers:     nil,
			wantScore:   0,
			wantPassed:  false,
			wantCorrect: 0,
		},
		{
			name:        "all correct",
			answers:     []Answer{{Index: idx(0)}, {Index: idx(1)}, {Index: idx(2)}, {Index: idx(3)}, {Index: idx(0)}},
			wantScore:   100,
			wantPassed:  true,
			wantCorrect: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Grade(qs, tt.answers)
			if err != nil {
				t.Fatalf("Grade() error = %v", err)
			}
			if g.Score != tt.wantScore || g.Passed != tt.wantPassed || g.Correct != tt.wantCorrect {
				t.Errorf("Grade() = score %d passed %v correct %d, want %d %v %d",
					g.Score, g.Passed, g.Correct, tt.wantScore, tt.wantPassed, tt.wantCorrect)
			}
			if len(g.Breakdown) != len(qs) {
				t.Errorf("breakdown has %d entries, want %d", len(g.Breakdown), len(qs))
			}
		})
	}
}

func TestGrade_RoundingAndThreshold(t *testing.T) {
	qs := fiveQuestions()[:3] // correct: 0 1 2

	// 2 of 3 = 66.67 -> 67, below 70.
	g, err := Grade(qs, []Answer{{Index: idx(0)}, {Index: idx(1)}, {Index: idx(0)}})
	if err != nil {
		t.Fatal(err)
	}
	if g.Score != 67 || g.Passed {
		t.Errorf("Grade() = %d passed %v, want 67 failed", g.Score, g.Passed)
	}

	g, err = GradeWithThreshold(qs, []Answer{{Index: idx(0)}, {Index: idx(1)}, {Index: idx(0)}}, 60)
	if err != nil {
		t.Fatal(err)
	}
	if !g.Passed {
		t.Error("67 should pass a 60 threshold")
	}
}

func TestGrade_Deterministic(t *testing.T) {
	qs := fiveQuestions()
	answers := []Answer{{Index: idx(0)}, {QuestionID: "c", Value: "y"}, {QuestionID: "b", Index: idx(2)}}

	first, err := Grade(qs, answers)
	if err != nil {
		t.Fatal(err)
	}
	for range 20 {
		again, err := Grade(qs, answers)
		if err != nil {
			t.Fatal(err)
		}
		if again.Score != first.Score || again.Correct != first.Correct {
			t.Fatalf("Grade() not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestGrade_InvalidAnswers(t *testing.T) {
	qs := fiveQuestions()

	tests := []struct {
		name    string
		qs      []Question
		answers []Answer
	}{
		{"no questions", nil, nil},
		{"too many answers", qs[:2], []Answer{{Index: idx(0)}, {Index: idx(0)}, {Index: idx(0)}}},
		{"index out of range", qs, []Answer{{Index: idx(4)}}},
		{"negative index", qs, []Answer{{Index: idx(-1)}}},
		{"unknown question id", qs, []Answer{{QuestionID: "zz", Index: idx(0)}}},
		{"answered twice", qs, []Answer{{Index: idx(0)}, {QuestionID: "a", Index: idx(1)}}},
		{"value not an option", qs, []Answer{{QuestionID: "b", Value: "nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Grade(tt.qs, tt.answers); !errors.Is(err, ErrInvalidAnswers) {
				t.Errorf("Grade() error = %v, want ErrInvalidAnswers", err)
			}
		})
	}
}

func TestTest_PublicHidesAnswers(t *testing.T) {
	test := Test{ID: "t1", TopicID: "what-is-ai", Questions: fiveQuestions()}
	pub := test.Public()
	if len(pub.Questions) != 5 || pub.Questions[0].Prompt != "prompt" || len(pub.Questions[0].Options) != 4 {
		t.Errorf("Public() = %+v", pub)
	}
}
