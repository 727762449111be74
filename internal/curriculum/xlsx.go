package curriculum

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Spreadsheet columns, first sheet, header in row 1:
// id | prompt | option A | option B | option C | option D | correct (A-D) | explanation | grade bands
const (
	colID = iota
	colPrompt
	colOptionA
	colOptionB
	colOptionC
	colOptionD
	colCorrect
	colExplanation
	colBands
)

// ReadQuestionsXLSX reads a question bank spreadsheet. Rows with a blank id
// are skipped; malformed rows fail the whole import with the row number.
func ReadQuestionsXLSX(r io.Reader, topicID string) (QuestionBank, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return QuestionBank{}, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return QuestionBank{}, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return QuestionBank{}, fmt.Errorf("read rows: %w", err)
	}

	bank := QuestionBank{TopicID: topicID}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if cell(row, colID) == "" {
			continue
		}
		q, err := questionFromRow(row)
		if err != nil {
			return QuestionBank{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		bank.Questions = append(bank.Questions, q)
	}
	return bank, nil
}

func questionFromRow(row []string) (Question, error) {
	q := Question{
		ID:          cell(row, colID),
		Prompt:      cell(row, colPrompt),
		Explanation: cell(row, colExplanation),
	}
	for c := colOptionA; c <= colOptionD; c++ {
		if opt := cell(row, c); opt != "" {
			q.Options = append(q.Options, opt)
		}
	}

	letter := strings.ToUpper(cell(row, colCorrect))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'D' {
		return Question{}, fmt.Errorf("correct answer must be a letter A-D, got %q", letter)
	}
	q.CorrectIndex = int(letter[0] - 'A')

	for _, b := range strings.Split(cell(row, colBands), ",") {
		b = strings.TrimSpace(strings.ToLower(b))
		if b == "" {
			continue
		}
		band, err := ParseGradeBand(b)
		if err != nil {
			return Question{}, err
		}
		q.GradeBands = append(q.GradeBands, band)
	}

	if !q.Valid() {
		return Question{}, fmt.Errorf("question %q needs a prompt, two or more options and a correct answer among them", q.ID)
	}
	return q, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// WriteQuestionsYAML writes bank in the *.questions.yaml format.
func WriteQuestionsYAML(w io.Writer, bank QuestionBank) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(bank); err != nil {
		return fmt.Errorf("encode question bank: %w", err)
	}
	return enc.Close()
}
