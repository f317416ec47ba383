package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/realtime"
	"secure-quiz-service/internal/store"
)

// UserService manages the admin-side participant records: CRUD, manual and
// rule-driven blocking, attempt history and attendance.
type UserService struct {
	store *store.Store
	audit *AuditService
	hub   *realtime.Hub
	now   func() time.Time
}

func NewUserService(st *store.Store, audit *AuditService, hub *realtime.Hub) *UserService {
	return &UserService{store: st, audit: audit, hub: hub, now: time.Now}
}

func NewUserServiceWithClock(st *store.Store, audit *AuditService, hub *realtime.Hub, now func() time.Time) *UserService {
	return &UserService{store: st, audit: audit, hub: hub, now: now}
}

// List returns all managed users.
func (s *UserService) List(ctx context.Context) []domain.ManagedUser {
	return s.store.Users(ctx)
}

// Get finds a user by username.
func (s *UserService) Get(ctx context.Context, username string) (domain.ManagedUser, error) {
	for _, u := range s.store.Users(ctx) {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.ManagedUser{}, domain.ErrUserNotFound
}

// Create adds a managed user. Usernames are unique.
func (s *UserService) Create(ctx context.Context, u domain.ManagedUser, actor string) (domain.ManagedUser, error) {
	if u.Username == "" {
		return domain.ManagedUser{}, &domain.ValidationError{Messages: []string{"username is required"}}
	}
	users := s.store.Users(ctx)
	for _, existing := range users {
		if existing.Username == u.Username {
			return domain.ManagedUser{}, domain.ErrUserExists
		}
	}

	u.ID = uuid.NewString()
	u.CreatedAt = s.now()
	if u.Status == "" {
		u.Status = domain.UserActive
	}
	users = append(users, u)
	if err := s.store.SaveUsers(ctx, users); err != nil {
		return domain.ManagedUser{}, err
	}

	s.audit.Log(ctx, "User Created", actor, fmt.Sprintf("Created user %s", u.Username))
	s.hub.Publish(realtime.TopicUsers, u.Username)
	return u, nil
}

// Update replaces the mutable profile fields of a user.
func (s *UserService) Update(ctx context.Context, username string, u domain.ManagedUser, actor string) (domain.ManagedUser, error) {
	users := s.store.Users(ctx)
	idx := s.indexOf(users, username)
	if idx < 0 {
		return domain.ManagedUser{}, domain.ErrUserNotFound
	}

	users[idx].Email = u.Email
	users[idx].FirstName = u.FirstName
	users[idx].LastName = u.LastName
	if u.Status != "" {
		users[idx].Status = u.Status
	}
	if err := s.store.SaveUsers(ctx, users); err != nil {
		return domain.ManagedUser{}, err
	}

	s.audit.Log(ctx, "User Updated", actor, fmt.Sprintf("Updated user %s", username))
	s.hub.Publish(realtime.TopicUsers, username)
	return users[idx], nil
}

// Delete removes a managed user and their history.
func (s *UserService) Delete(ctx context.Context, username string, actor string) error {
	users := s.store.Users(ctx)
	idx := s.indexOf(users, username)
	if idx < 0 {
		return domain.ErrUserNotFound
	}
	users = append(users[:idx], users[idx+1:]...)
	if err := s.store.SaveUsers(ctx, users); err != nil {
		return err
	}

	s.audit.Log(ctx, "User Deleted", actor, fmt.Sprintf("Deleted user %s", username))
	s.hub.Publish(realtime.TopicUsers, username)
	return nil
}

// Block marks a user blocked with a reason and an optional triggering rule.
func (s *UserService) Block(ctx context.Context, username, reason, actor, ruleID string) error {
	users := s.store.Users(ctx)
	idx := s.indexOf(users, username)
	if idx < 0 {
		return domain.ErrUserNotFound
	}

	users[idx].Status = domain.UserBlocked
	users[idx].BlockingInfo = &domain.BlockingInfo{
		BlockedAt: s.now(),
		BlockedBy: actor,
		Reason:    reason,
		RuleID:    ruleID,
	}
	if err := s.store.SaveUsers(ctx, users); err != nil {
		return err
	}

	s.audit.Log(ctx, "User Blocked", actor, fmt.Sprintf("Blocked %s: %s", username, reason))
	s.hub.Notify("warning", fmt.Sprintf("User %s has been blocked: %s", username, reason), nil)
	s.hub.Publish(realtime.TopicUsers, username)
	return nil
}

// Unblock reactivates a blocked user and clears the blocking info.
func (s *UserService) Unblock(ctx context.Context, username, actor string) error {
	users := s.store.Users(ctx)
	idx := s.indexOf(users, username)
	if idx < 0 {
		return domain.ErrUserNotFound
	}

	users[idx].Status = domain.UserActive
	users[idx].BlockingInfo = nil
	if err := s.store.SaveUsers(ctx, users); err != nil {
		return err
	}

	s.audit.Log(ctx, "User Unblocked", actor, fmt.Sprintf("Unblocked %s", username))
	s.hub.Publish(realtime.TopicUsers, username)
	return nil
}

// StartAttempt opens a new quiz attempt for the user. Blocked users are
// refused. The first attempt of a calendar day also records attendance.
// An unknown username is auto-registered; participants exist the moment
// they first log in.
func (s *UserService) StartAttempt(ctx context.Context, username string, totalQuestions int) (domain.QuizAttempt, error) {
	users := s.store.Users(ctx)
	idx := s.indexOf(users, username)
	if idx < 0 {
		u, err := s.Create(ctx, domain.ManagedUser{Username: username}, "System")
		if err != nil {
			return domain.QuizAttempt{}, err
		}
		users = s.store.Users(ctx)
		idx = s.indexOf(users, u.Username)
		if idx < 0 {
			return domain.QuizAttempt{}, domain.ErrUserNotFound
		}
	}
	if users[idx].Status == domain.UserBlocked {
		return domain.QuizAttempt{}, domain.ErrUserBlocked
	}

	now := s.now()
	attempt := domain.QuizAttempt{
		ID:             uuid.NewString(),
		StartTime:      now,
		Status:         domain.AttemptInProgress,
		TotalQuestions: totalQuestions,
	}
	users[idx].QuizHistory = append(users[idx].QuizHistory, attempt)
	users[idx].LastLogin = now

	if !s.attendedToday(users[idx], now) {
		users[idx].Attendance = append(users[idx].Attendance, domain.AttendanceRecord{
			ID:        uuid.NewString(),
			Date:      now.Truncate(24 * time.Hour),
			LoginTime: now,
			Status:    "present",
		})
	}

	if err := s.store.SaveUsers(ctx, users); err != nil {
		return domain.QuizAttempt{}, err
	}
	s.hub.Publish(realtime.TopicUsers, username)
	return attempt, nil
}

// CompleteAttempt stamps the score and times onto the attempt, then runs the
// blocking rules against the updated history. It returns the rule that fired,
// if any.
func (s *UserService) CompleteAttempt(ctx context.Context, username, attemptID string, score int, timeSpent time.Duration, answered int) (*domain.BlockingRule, error) {
	users := s.store.Users(ctx)
	idx := s.indexOf(users, username)
	if idx < 0 {
		return nil, domain.ErrUserNotFound
	}

	found := false
	for i := range users[idx].QuizHistory {
		if users[idx].QuizHistory[i].ID == attemptID {
			a := &users[idx].QuizHistory[i]
			a.Status = domain.AttemptCompleted
			a.EndTime = s.now()
			a.Score = &score
			a.TimeSpent = timeSpent
			a.QuestionsAnswered = answered
			found = true
			break
		}
	}
	if !found {
		return nil, domain.ErrSessionNotFound
	}

	if err := s.store.SaveUsers(ctx, users); err != nil {
		return nil, err
	}
	s.hub.Publish(realtime.TopicUsers, username)

	rules := s.store.Settings(ctx).BlockingRules
	rule := evaluateRules(rules, users[idx], score, timeSpent)
	if rule != nil {
		reason := fmt.Sprintf("Automatic block: %s", rule.Name)
		if err := s.Block(ctx, username, reason, "System", rule.ID); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

// AbandonAttempt marks an in-progress attempt abandoned without scoring it.
func (s *UserService) AbandonAttempt(ctx context.Context, username, attemptID string) error {
	users := s.store.Users(ctx)
	idx := s.indexOf(users, username)
	if idx < 0 {
		return domain.ErrUserNotFound
	}
	for i := range users[idx].QuizHistory {
		if users[idx].QuizHistory[i].ID == attemptID {
			users[idx].QuizHistory[i].Status = domain.AttemptAbandoned
			users[idx].QuizHistory[i].EndTime = s.now()
			return s.store.SaveUsers(ctx, users)
		}
	}
	return domain.ErrSessionNotFound
}

// AddViolation appends a security violation to an in-progress attempt.
func (s *UserService) AddViolation(ctx context.Context, username, attemptID, vtype, details string) error {
	users := s.store.Users(ctx)
	idx := s.indexOf(users, username)
	if idx < 0 {
		return domain.ErrUserNotFound
	}
	for i := range users[idx].QuizHistory {
		if users[idx].QuizHistory[i].ID == attemptID {
			users[idx].QuizHistory[i].Violations = append(users[idx].QuizHistory[i].Violations, domain.SecurityViolation{
				ID:        uuid.NewString(),
				Type:      vtype,
				Timestamp: s.now(),
				Details:   details,
			})
			return s.store.SaveUsers(ctx, users)
		}
	}
	return domain.ErrSessionNotFound
}

// UserStats aggregates one user's completed-attempt history.
type UserStats struct {
	TotalAttempts     int     `json:"totalAttempts"`
	CompletedAttempts int     `json:"completedAttempts"`
	AverageScore      float64 `json:"averageScore"`
	BestScore         int     `json:"bestScore"`
	TotalTimeSpent    int     `json:"totalTimeSpent"` // seconds
}

// Stats computes aggregate numbers over a user's history.
func (s *UserService) Stats(ctx context.Context, username string) (UserStats, error) {
	u, err := s.Get(ctx, username)
	if err != nil {
		return UserStats{}, err
	}

	stats := UserStats{TotalAttempts: len(u.QuizHistory)}
	sum := 0
	for _, a := range u.QuizHistory {
		if a.Status != domain.AttemptCompleted || a.Score == nil {
			continue
		}
		stats.CompletedAttempts++
		sum += *a.Score
		if *a.Score > stats.BestScore {
			stats.BestScore = *a.Score
		}
		stats.TotalTimeSpent += int(a.TimeSpent / time.Second)
	}
	if stats.CompletedAttempts > 0 {
		stats.AverageScore = float64(sum) / float64(stats.CompletedAttempts)
	}
	return stats, nil
}

// evaluateRules walks the rules in stored order and returns the first active
// one whose condition matches the just-completed attempt. The completed-count
// comparison includes the triggering attempt itself. Manual rules never match
// automatically.
func evaluateRules(rules []domain.BlockingRule, u domain.ManagedUser, score int, timeSpent time.Duration) *domain.BlockingRule {
	completed := 0
	for _, a := range u.QuizHistory {
		if a.Status == domain.AttemptCompleted {
			completed++
		}
	}

	for i := range rules {
		r := rules[i]
		if !r.Active {
			continue
		}
		switch r.Condition {
		case domain.RuleScoreBelow:
			if float64(score) < r.Value {
				return &r
			}
		case domain.RuleAttemptsExceeded:
			if float64(completed) >= r.Value {
				return &r
			}
		case domain.RuleTimeExceeded:
			if timeSpent > time.Duration(r.Value)*time.Minute {
				return &r
			}
		case domain.RuleManual:
			// admin-only, never auto-fires
		}
	}
	return nil
}

func (s *UserService) indexOf(users []domain.ManagedUser, username string) int {
	for i := range users {
		if users[i].Username == username {
			return i
		}
	}
	return -1
}

func (s *UserService) attendedToday(u domain.ManagedUser, now time.Time) bool {
	y, m, d := now.Date()
	for _, rec := range u.Attendance {
		ry, rm, rd := rec.LoginTime.Date()
		if ry == y && rm == m && rd == d {
			return true
		}
	}
	return false
}
