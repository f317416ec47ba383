package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/quiz"
	"secure-quiz-service/internal/realtime"
	"secure-quiz-service/internal/security"
	"secure-quiz-service/internal/store"
)

// QuizFlowService orchestrates a full quiz run per user: draw a session from
// the bank, drive the countdown, capture answers, score on completion and
// feed the result through attempt history and the blocking rules. It owns one
// engine per active username.
type QuizFlowService struct {
	store    *store.Store
	users    *UserService
	sessions *SessionService
	audit    *AuditService
	hub      *realtime.Hub
	now      func() time.Time

	mu     sync.Mutex
	active map[string]*activeQuiz
}

type activeQuiz struct {
	engine    *quiz.Engine
	runner    *quiz.Runner
	monitor   *security.Monitor
	attemptID string
}

func NewQuizFlowService(st *store.Store, users *UserService, sessions *SessionService, audit *AuditService, hub *realtime.Hub) *QuizFlowService {
	return &QuizFlowService{
		store:    st,
		users:    users,
		sessions: sessions,
		audit:    audit,
		hub:      hub,
		now:      time.Now,
		active:   make(map[string]*activeQuiz),
	}
}

// Start begins a quiz for a logged-in user. It refuses an empty bank, blocked
// users and, when retakes are disabled, anyone with a completed attempt.
func (s *QuizFlowService) Start(ctx context.Context, username string) (quiz.Session, error) {
	settings := s.store.Settings(ctx)

	if !settings.AllowRetakes {
		if u, err := s.users.Get(ctx, username); err == nil {
			for _, a := range u.QuizHistory {
				if a.Status == domain.AttemptCompleted {
					return quiz.Session{}, domain.ErrRetakeNotAllowed
				}
			}
		}
	}

	// A superseded in-flight quiz is abandoned, not left dangling as a
	// permanently in-progress attempt.
	s.Discard(ctx, username)

	bank := s.store.Questions(ctx)
	engine := quiz.NewWithClock(settings, s.now, rand.New(rand.NewSource(s.now().UnixNano())))
	if err := engine.Initialize(bank); err != nil {
		return quiz.Session{}, err
	}

	sess := engine.Session()
	attempt, err := s.users.StartAttempt(ctx, username, len(sess.Questions))
	if err != nil {
		return quiz.Session{}, err
	}

	s.mu.Lock()
	aq := &activeQuiz{engine: engine, monitor: security.NewMonitor(), attemptID: attempt.ID}
	aq.runner = quiz.StartRunner(engine, time.Second, func() {
		s.onExpire(username)
	})
	s.active[username] = aq
	s.mu.Unlock()

	s.audit.Log(ctx, "Quiz Started", username, fmt.Sprintf("Started quiz with %d questions", len(sess.Questions)))
	return sess, nil
}

// Resume returns the in-flight session, revalidating it against the current
// bank. A session referencing deleted questions is discarded and redrawn.
func (s *QuizFlowService) Resume(ctx context.Context, username string) (quiz.Session, error) {
	aq, ok := s.lookup(username)
	if !ok {
		return quiz.Session{}, domain.ErrSessionNotFound
	}
	if !aq.engine.ValidAgainst(s.store.Questions(ctx)) {
		s.Discard(ctx, username)
		return s.Start(ctx, username)
	}
	return aq.engine.Session(), nil
}

// Answer records the user's choice for a question.
func (s *QuizFlowService) Answer(ctx context.Context, username, questionID string, optionIndex int) error {
	aq, ok := s.lookup(username)
	if !ok {
		return domain.ErrSessionNotFound
	}
	aq.engine.Answer(questionID, optionIndex)
	return nil
}

// Next advances to the following question; on the last question it completes
// the session and finalizes the attempt.
func (s *QuizFlowService) Next(ctx context.Context, username string) (quiz.Session, error) {
	aq, ok := s.lookup(username)
	if !ok {
		return quiz.Session{}, domain.ErrSessionNotFound
	}
	aq.engine.Next()
	sess := aq.engine.Session()
	if sess.Completed {
		if _, err := s.finalize(ctx, username, aq); err != nil {
			return quiz.Session{}, err
		}
	}
	return sess, nil
}

// Previous steps back one question.
func (s *QuizFlowService) Previous(ctx context.Context, username string) (quiz.Session, error) {
	aq, ok := s.lookup(username)
	if !ok {
		return quiz.Session{}, domain.ErrSessionNotFound
	}
	aq.engine.Previous()
	return aq.engine.Session(), nil
}

// Complete force-submits the quiz and returns the scored result.
func (s *QuizFlowService) Complete(ctx context.Context, username string) (domain.QuizResult, error) {
	aq, ok := s.lookup(username)
	if !ok {
		return domain.QuizResult{}, domain.ErrSessionNotFound
	}
	aq.engine.CompleteNow()
	return s.finalize(ctx, username, aq)
}

// Result rescoring is safe at any time; scoring never mutates the session.
func (s *QuizFlowService) Result(ctx context.Context, username string) (domain.QuizResult, error) {
	aq, ok := s.lookup(username)
	if !ok {
		return domain.QuizResult{}, domain.ErrSessionNotFound
	}
	result := aq.engine.Score()
	result.Username = username
	return result, nil
}

// RecordTabSwitch forwards the event to the session policy. When the
// threshold trips, the running quiz is terminated and the attempt abandoned.
func (s *QuizFlowService) RecordTabSwitch(ctx context.Context, username string) (count int, locked bool) {
	count, locked = s.sessions.RecordTabSwitch(ctx, username)
	if !locked {
		return count, false
	}

	if aq, ok := s.lookup(username); ok {
		aq.engine.CompleteNow()
		if err := s.users.AbandonAttempt(ctx, username, aq.attemptID); err != nil {
			log.Printf("flow: abandon attempt for %s failed: %v", username, err)
		}
		if err := s.users.AddViolation(ctx, username, aq.attemptID, "tab_switch_lockout", TabSwitchLockReason); err != nil {
			log.Printf("flow: record violation for %s failed: %v", username, err)
		}
		s.drop(username)
	}
	return count, true
}

// ReportEvent feeds a client-side security observation into the soft monitor
// and the attempt's violation list. Tab-hidden events also count against the
// hard tab-switch policy.
func (s *QuizFlowService) ReportEvent(ctx context.Context, username string, event security.EventType, details string) (count int, locked bool) {
	aq, ok := s.lookup(username)
	if !ok {
		return 0, false
	}
	count = aq.monitor.Record(event)
	if err := s.users.AddViolation(ctx, username, aq.attemptID, string(event), details); err != nil {
		log.Printf("flow: record violation for %s failed: %v", username, err)
	}
	if event == security.EventTabHidden {
		return s.RecordTabSwitch(ctx, username)
	}
	return count, false
}

// Warnings returns the soft-monitor observations for the active quiz.
func (s *QuizFlowService) Warnings(username string) []security.Warning {
	aq, ok := s.lookup(username)
	if !ok {
		return nil
	}
	return aq.monitor.Warnings()
}

// Discard abandons the in-flight quiz without scoring it.
func (s *QuizFlowService) Discard(ctx context.Context, username string) {
	aq, ok := s.lookup(username)
	if !ok {
		return
	}
	if err := s.users.AbandonAttempt(ctx, username, aq.attemptID); err != nil {
		log.Printf("flow: abandon attempt for %s failed: %v", username, err)
	}
	s.drop(username)
}

// finalize scores the finished session, writes the attempt, runs the blocking
// rules and applies the auto-block setting.
func (s *QuizFlowService) finalize(ctx context.Context, username string, aq *activeQuiz) (domain.QuizResult, error) {
	// Drop first so a concurrent expiry callback cannot finalize twice.
	s.drop(username)
	result := aq.engine.Score()
	result.Username = username

	rule, err := s.users.CompleteAttempt(ctx, username, aq.attemptID,
		result.Score, time.Duration(result.TimeSpent)*time.Second, len(result.Answers))
	if err != nil {
		return domain.QuizResult{}, err
	}

	settings := s.store.Settings(ctx)
	if rule == nil && settings.AutoBlockAfterCompletion {
		if err := s.users.Block(ctx, username, "Automatic block after quiz completion", "System", ""); err != nil {
			log.Printf("flow: auto-block %s failed: %v", username, err)
		}
	}

	s.audit.Log(ctx, "Quiz Completed", username,
		fmt.Sprintf("Scored %d%% (%d/%d)", result.Score, result.CorrectAnswers, result.TotalQuestions))
	s.hub.Publish(realtime.TopicUsers, username)
	return result, nil
}

// onExpire fires from the countdown runner when time runs out.
func (s *QuizFlowService) onExpire(username string) {
	ctx := context.Background()
	aq, ok := s.lookup(username)
	if !ok {
		return
	}
	if _, err := s.finalize(ctx, username, aq); err != nil {
		log.Printf("flow: finalize expired quiz for %s failed: %v", username, err)
	}
	s.hub.Notify("warning", fmt.Sprintf("Time expired for %s; quiz auto-submitted", username), nil)
}

func (s *QuizFlowService) lookup(username string) (*activeQuiz, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	aq, ok := s.active[username]
	return aq, ok
}

func (s *QuizFlowService) drop(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if aq, ok := s.active[username]; ok {
		if aq.runner != nil {
			aq.runner.Stop()
		}
		delete(s.active, username)
	}
}
