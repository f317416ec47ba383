package domain

import (
	"fmt"
	"time"
)

// QuizSettings is the single mutable configuration record. Every numeric
// field must satisfy its bound before a write is accepted; violating writes
// are rejected wholesale.
type QuizSettings struct {
	TimeLimit                int            `json:"timeLimit"` // seconds
	QuestionsPerQuiz         int            `json:"questionsPerQuiz"`
	PassingScore             int            `json:"passingScore"` // percent
	AllowRetakes             bool           `json:"allowRetakes"`
	ShuffleQuestions         bool           `json:"shuffleQuestions"`
	ShuffleAnswers           bool           `json:"shuffleAnswers"`
	ShowExplanations         bool           `json:"showExplanations"`
	ShowScoreImmediately     bool           `json:"showScoreImmediately"`
	AutoBlockAfterCompletion bool           `json:"autoBlockAfterCompletion"`
	MaxTabSwitches           int            `json:"maxTabSwitches"`
	SessionTimeout           int            `json:"sessionTimeout"` // minutes
	BlockingRules            []BlockingRule `json:"blockingRules"`
	UpdatedAt                time.Time      `json:"updatedAt"`
	UpdatedBy                string         `json:"updatedBy"`
}

// DefaultSettings returns the configuration used before an admin saves one.
func DefaultSettings() QuizSettings {
	return QuizSettings{
		TimeLimit:            300,
		QuestionsPerQuiz:     5,
		PassingScore:         60,
		AllowRetakes:         true,
		ShuffleQuestions:     true,
		ShowExplanations:     true,
		ShowScoreImmediately: true,
		MaxTabSwitches:       3,
		SessionTimeout:       30,
		UpdatedBy:            "system",
	}
}

// Validate checks every documented bound and returns a ValidationError
// listing all violations, or nil.
func (s QuizSettings) Validate() error {
	var errs []string
	if s.TimeLimit < 60 || s.TimeLimit > 7200 {
		errs = append(errs, "time limit must be between 60 and 7200 seconds")
	}
	if s.QuestionsPerQuiz < 1 || s.QuestionsPerQuiz > 50 {
		errs = append(errs, "questions per quiz must be between 1 and 50")
	}
	if s.PassingScore < 0 || s.PassingScore > 100 {
		errs = append(errs, "passing score must be between 0 and 100")
	}
	if s.MaxTabSwitches < 0 || s.MaxTabSwitches > 10 {
		errs = append(errs, "max tab switches must be between 0 and 10")
	}
	if s.SessionTimeout < 5 || s.SessionTimeout > 480 {
		errs = append(errs, "session timeout must be between 5 and 480 minutes")
	}
	if len(errs) > 0 {
		return &ValidationError{Messages: errs}
	}
	return nil
}

// ValidateQuestion checks the question-bank write invariants.
func ValidateQuestion(q Question) error {
	var errs []string
	if q.Text == "" {
		errs = append(errs, "question text is required")
	}
	if len(q.Options) < 2 {
		errs = append(errs, "at least 2 options are required")
	} else if len(q.Options) > 6 {
		errs = append(errs, "at most 6 options are allowed")
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		errs = append(errs, fmt.Sprintf("correct answer index %d is out of range", q.CorrectAnswer))
	}
	if q.Category == "" {
		errs = append(errs, "category is required")
	}
	if !ValidDifficulty(q.Difficulty) {
		errs = append(errs, fmt.Sprintf("invalid difficulty %q", q.Difficulty))
	}
	if len(errs) > 0 {
		return &ValidationError{Messages: errs}
	}
	return nil
}
