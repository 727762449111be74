package assessment

import (
	"fmt"
	"math"
	"slices"
)

// QuestionResult is the per-question part of a grading.
type QuestionResult struct {
	QuestionID   string `json:"question_id"`
	Selected     int    `json:"selected"` // -1 when unanswered
	CorrectIndex int    `json:"correct_index"`
	Correct      bool   `json:"correct"`
	Explanation  string `json:"explanation"`
}

// Grading is the outcome of grading one submission.
type Grading struct {
	Score     int              `json:"score"`
	Passed    bool             `json:"passed"`
	Correct   int              `json:"correct"`
	Total     int              `json:"total"`
	Breakdown []QuestionResult `json:"breakdown"`
}

// Grade scores answers against questions with the default pass threshold.
func Grade(questions []Question, answers []Answer) (Grading, error) {
	return GradeWithThreshold(questions, answers, DefaultPassThreshold)
}

// GradeWithThreshold scores answers: score = round(100 * correct / total),
// passed iff score >= threshold. Equality is exact and there is no partial
// credit. Missing answers count as wrong. It is a pure function of its inputs.
func GradeWithThreshold(questions []Question, answers []Answer, threshold int) (Grading, error) {
	if len(questions) == 0 {
		return Grading{}, fmt.Errorf("%w: test has no questions", ErrInvalidAnswers)
	}
	selected, err := matchAnswers(questions, answers)
	if err != nil {
		return Grading{}, err
	}

	g := Grading{Total: len(questions), Breakdown: make([]QuestionResult, len(questions))}
	for i, q := range questions {
		ok := selected[i] == q.CorrectIndex
		if ok {
			g.Correct++
		}
		g.Breakdown[i] = QuestionResult{
			QuestionID:   q.ID,
			Selected:     selected[i],
			CorrectIndex: q.CorrectIndex,
			Correct:      ok,
			Explanation:  q.Explanation,
		}
	}
	g.Score = int(math.Round(100 * float64(g.Correct) / float64(g.Total)))
	g.Passed = g.Score >= threshold
	return g, nil
}

// matchAnswers resolves each question's selected option index, -1 if none.
func matchAnswers(questions []Question, answers []Answer) ([]int, error) {
	if len(answers) > len(questions) {
		return nil, fmt.Errorf("%w: %d answers for %d questions", ErrInvalidAnswers, len(answers), len(questions))
	}

	byID := make(map[string]int, len(questions))
	for i, q := range questions {
		byID[q.ID] = i
	}

	selected := make([]int, len(questions))
	answered := make([]bool, len(questions))
	for i := range selected {
		selected[i] = -1
	}

	for i, a := range answers {
		qi := i
		if a.QuestionID != "" {
			var ok bool
			if qi, ok = byID[a.QuestionID]; !ok {
				return nil, fmt.Errorf("%w: answer %d names unknown question %q", ErrInvalidAnswers, i+1, a.QuestionID)
			}
		}
		if answered[qi] {
			return nil, fmt.Errorf("%w: question %q answered twice", ErrInvalidAnswers, questions[qi].ID)
		}
		answered[qi] = true

		q := questions[qi]
		switch {
		case a.Index != nil:
			if *a.Index < 0 || *a.Index >= len(q.Options) {
				return nil, fmt.Errorf("%w: index %d out of range for question %q", ErrInvalidAnswers, *a.Index, q.ID)
			}
			selected[qi] = *a.Index
		case a.Value != "":
			oi := slices.Index(q.Options, a.Value)
			if oi < 0 {
				return nil, fmt.Errorf("%w: %q is not an option of question %q", ErrInvalidAnswers, a.Value, q.ID)
			}
			selected[qi] = oi
		}
	}
	return selected, nil
}
