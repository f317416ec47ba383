package bulkload

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"secure-quiz-service/internal/domain"
)

// Result carries the outcome of a bulk parse: rows that validated and
// per-row errors for the rest. Successfully parsed rows commit even when
// others fail.
type Result struct {
	Parsed []domain.Question `json:"questions"`
	Errors []string          `json:"errors"`
}

// Succeeded and Failed are convenience counters for upload summaries.
func (r Result) Succeeded() int { return len(r.Parsed) }
func (r Result) Failed() int    { return len(r.Errors) }

// ParseCSV reads bulk questions in the upload format: a header row (ignored)
// followed by data rows of
//
//	question, option1, option2, option3, option4, correct, difficulty, category, explanation
//
// where correct is 1-based in the file and stored 0-based. Rows with fewer
// than 2 non-empty options or an out-of-range correct index are rejected
// individually; the batch continues.
func ParseCSV(text string) Result {
	var res Result

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		res.Errors = append(res.Errors, "invalid CSV: "+err.Error())
		return res
	}

	for i, row := range records {
		if i == 0 {
			continue // header
		}
		rowNum := i + 1
		if isBlankRow(row) {
			continue
		}
		if len(row) < 7 {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: insufficient columns", rowNum))
			continue
		}

		var options []string
		for _, opt := range row[1:5] {
			if strings.TrimSpace(opt) != "" {
				options = append(options, strings.TrimSpace(opt))
			}
		}
		if len(options) < 2 {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: at least 2 options required", rowNum))
			continue
		}

		oneBased, err := strconv.Atoi(strings.TrimSpace(row[5]))
		correct := oneBased - 1
		if err != nil || correct < 0 || correct >= len(options) {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: invalid correct answer index", rowNum))
			continue
		}

		q := domain.Question{
			Text:          strings.TrimSpace(row[0]),
			Options:       options,
			CorrectAnswer: correct,
			Difficulty:    normalizeDifficulty(field(row, 6)),
			Category:      defaultString(field(row, 7), "General"),
			Explanation:   field(row, 8),
		}
		if q.Text == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: question text is required", rowNum))
			continue
		}
		res.Parsed = append(res.Parsed, q)
	}
	return res
}

type jsonQuestion struct {
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer *float64 `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
	Difficulty    string   `json:"difficulty"`
	Category      string   `json:"category"`
}

// ParseJSON reads a top-level array of question objects. Elements missing a
// non-empty question, an options array, or a numeric correctAnswer are
// dropped individually with an index-referenced error.
func ParseJSON(text string) Result {
	var res Result

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		res.Errors = append(res.Errors, "JSON must contain an array of questions")
		return res
	}

	for i, raw := range items {
		var item jsonQuestion
		if err := json.Unmarshal(raw, &item); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: invalid object", i+1))
			continue
		}
		if item.Text == "" || item.Options == nil || item.CorrectAnswer == nil {
			res.Errors = append(res.Errors, fmt.Sprintf("item %d: missing required fields", i+1))
			continue
		}
		res.Parsed = append(res.Parsed, domain.Question{
			Text:          item.Text,
			Options:       item.Options,
			CorrectAnswer: int(*item.CorrectAnswer),
			Explanation:   item.Explanation,
			Difficulty:    normalizeDifficulty(item.Difficulty),
			Category:      defaultString(item.Category, "General"),
		})
	}
	return res
}

func isBlankRow(row []string) bool {
	for _, col := range row {
		if strings.TrimSpace(col) != "" {
			return false
		}
	}
	return true
}

func field(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func normalizeDifficulty(s string) domain.Difficulty {
	d := domain.Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if domain.ValidDifficulty(d) {
		return d
	}
	return domain.DifficultyMedium
}
