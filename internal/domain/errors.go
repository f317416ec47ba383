package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrQuestionNotFound indicates a question ID is not in the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrUserNotFound indicates a managed user ID or username is unknown.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a user with a taken username.
	ErrUserExists = errors.New("username already exists")
	// ErrUserBlocked is returned when a blocked user tries to take a quiz.
	ErrUserBlocked = errors.New("user is blocked")
	// ErrSessionNotFound is returned when no auth session exists for a user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotReady indicates the question bank is empty, so no session
	// can be drawn. Callers must not treat this as a zero-score quiz.
	ErrQuizNotReady = errors.New("question bank is empty")
	// ErrRetakeNotAllowed is returned when retakes are disabled and the user
	// already has a completed attempt.
	ErrRetakeNotAllowed = errors.New("retakes are not allowed")
	// ErrBadBackup is returned when an imported backup document is malformed.
	ErrBadBackup = errors.New("invalid backup format")
)

// ValidationError carries the full list of human-readable violations for a
// rejected write. No partial apply ever happens alongside one.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// LockoutError is distinct from validation failures: it carries the remaining
// lockout time and reason so the caller can render a countdown rather than a
// generic failure.
type LockoutError struct {
	Username  string
	Remaining time.Duration
	Reason    string
}

func (e *LockoutError) Error() string {
	return "account is locked: " + e.Reason
}
