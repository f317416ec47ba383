package domain

import "time"

// Difficulty grades a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ValidDifficulty reports whether d is one of the known levels.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Question is an authored multiple-choice question in the bank.
type Question struct {
	ID            string     `json:"id"`
	Text          string     `json:"question"`
	Options       []string   `json:"options"`
	CorrectAnswer int        `json:"correctAnswer"`
	Explanation   string     `json:"explanation,omitempty"`
	Difficulty    Difficulty `json:"difficulty"`
	Category      string     `json:"category"`
}

// UserStatus is the moderation state of a managed user.
type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBlocked UserStatus = "blocked"
	UserPending UserStatus = "pending"
)

// AttemptStatus tracks the lifecycle of one quiz attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
	AttemptBlocked    AttemptStatus = "blocked"
)

// RuleCondition selects what a blocking rule tests.
type RuleCondition string

const (
	RuleScoreBelow       RuleCondition = "score_below"
	RuleAttemptsExceeded RuleCondition = "attempts_exceeded"
	RuleTimeExceeded     RuleCondition = "time_exceeded"
	RuleManual           RuleCondition = "manual"
)

// BlockingRule is an admin-defined automatic moderation condition. Rules are
// evaluated in stored order against completed attempts; the first active
// match wins and evaluation stops.
type BlockingRule struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Condition RuleCondition `json:"condition"`
	Value     float64       `json:"value"`
	Active    bool          `json:"isActive"`
	CreatedAt time.Time     `json:"createdAt"`
}

// SecurityViolation records one observed policy violation during an attempt.
type SecurityViolation struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// QuizAttempt is one user's pass through a quiz, completed or not.
type QuizAttempt struct {
	ID                string              `json:"id"`
	StartTime         time.Time           `json:"startTime"`
	EndTime           time.Time           `json:"endTime,omitempty"`
	Status            AttemptStatus       `json:"status"`
	Score             *int                `json:"score,omitempty"`
	QuestionsAnswered int                 `json:"questionsAnswered"`
	TotalQuestions    int                 `json:"totalQuestions"`
	TimeSpent         time.Duration       `json:"timeSpent"`
	Violations        []SecurityViolation `json:"violations"`
}

// BlockingInfo stamps why and by whom a user was blocked.
type BlockingInfo struct {
	BlockedAt time.Time `json:"blockedAt"`
	BlockedBy string    `json:"blockedBy"`
	Reason    string    `json:"reason"`
	RuleID    string    `json:"ruleId,omitempty"`
}

// AttendanceRecord marks one calendar day a user showed up.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	LoginTime time.Time `json:"loginTime"`
	Status    string    `json:"status"`
}

// ManagedUser is the admin-side record of a participant.
type ManagedUser struct {
	ID           string             `json:"id"`
	Username     string             `json:"username"`
	Email        string             `json:"email,omitempty"`
	FirstName    string             `json:"firstName,omitempty"`
	LastName     string             `json:"lastName,omitempty"`
	Status       UserStatus         `json:"status"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastLogin    time.Time          `json:"lastLogin,omitempty"`
	QuizHistory  []QuizAttempt      `json:"quizHistory"`
	BlockingInfo *BlockingInfo      `json:"blockingInfo,omitempty"`
	Attendance   []AttendanceRecord `json:"attendance"`
}

// Lockout is a time-boxed suspension of a username's ability to log in.
// A lockout is active while now < StartedAt + Duration; expiry is detected
// lazily on lookup, never by a background sweep.
type Lockout struct {
	Username  string        `json:"username"`
	StartedAt time.Time     `json:"lockoutStartTime"`
	Duration  time.Duration `json:"lockoutDuration"`
	Reason    string        `json:"reason"`
	AdminID   string        `json:"adminId,omitempty"`
}

// Expired reports whether the lockout has run out as of now.
func (l Lockout) Expired(now time.Time) bool {
	return !now.Before(l.StartedAt.Add(l.Duration))
}

// Remaining returns how long the lockout still holds at now (zero if expired).
func (l Lockout) Remaining(now time.Time) time.Duration {
	rem := l.StartedAt.Add(l.Duration).Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// UserSession is the logged-in identity record for a user, distinct from the
// quiz session. At most one per username.
type UserSession struct {
	Username     string    `json:"username"`
	SessionID    string    `json:"sessionId"`
	LoginTime    time.Time `json:"loginTime"`
	LastActivity time.Time `json:"lastActivity"`
	TabSwitches  int       `json:"tabSwitches"`
	Locked       bool      `json:"isLocked"`
	LockReason   string    `json:"lockoutReason,omitempty"`
}

// ActivityLog is one audit trail entry.
type ActivityLog struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// BackupData is the exchange format for full-system backups. Import accepts a
// document only when Questions is present as a list; anything else is
// rejected in full.
type BackupData struct {
	Questions    []Question    `json:"questions"`
	AuditLog     []ActivityLog `json:"auditLog"`
	UserSessions []UserSession `json:"userSessions"`
	LockoutData  []Lockout     `json:"lockoutData"`
	Settings     *QuizSettings `json:"settings,omitempty"`
	ManagedUsers []ManagedUser `json:"managedUsers"`
	Timestamp    time.Time     `json:"timestamp"`
	Version      string        `json:"version"`
}

// SystemBackup is a stored snapshot; only the 10 newest are kept.
type SystemBackup struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	Data      BackupData `json:"data"`
}

// QuizResult summarizes a finished (or force-finished) quiz session.
type QuizResult struct {
	Username       string         `json:"username"`
	Score          int            `json:"score"`
	TotalQuestions int            `json:"totalQuestions"`
	CorrectAnswers int            `json:"correctAnswers"`
	TimeSpent      int            `json:"timeSpent"` // seconds
	CompletedAt    time.Time      `json:"completedAt"`
	Answers        map[string]int `json:"answers"`
	PerQuestion    []bool         `json:"perQuestion"`
}
