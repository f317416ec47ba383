package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/realtime"
	"secure-quiz-service/internal/store"
)

// LockoutDuration is the fixed policy term for every lockout.
const LockoutDuration = 3 * time.Hour

// TabSwitchLockReason is the fixed reason stamped on policy lockouts.
const TabSwitchLockReason = "Excessive tab switching detected"

// SessionService is the session/lockout manager: one auth session per
// username, plus temporal lockouts with lazy expiry. It also carries the
// hard half of the security policy (the tab-switch counter).
type SessionService struct {
	store *store.Store
	audit *AuditService
	hub   *realtime.Hub
	now   func() time.Time
}

func NewSessionService(st *store.Store, audit *AuditService, hub *realtime.Hub) *SessionService {
	return &SessionService{store: st, audit: audit, hub: hub, now: time.Now}
}

func NewSessionServiceWithClock(st *store.Store, audit *AuditService, hub *realtime.Hub, now func() time.Time) *SessionService {
	return &SessionService{store: st, audit: audit, hub: hub, now: now}
}

// ActiveLockout returns the user's lockout if one is still running. An
// expired lockout is deleted on this lookup, not by a background sweep.
func (s *SessionService) ActiveLockout(ctx context.Context, username string) (domain.Lockout, bool) {
	lockouts := s.store.Lockouts(ctx)
	for _, l := range lockouts {
		if l.Username != username {
			continue
		}
		if l.Expired(s.now()) {
			s.RemoveLockout(ctx, username)
			return domain.Lockout{}, false
		}
		return l, true
	}
	return domain.Lockout{}, false
}

// Login authenticates a username. The lockout check runs first: a locked
// user gets a LockoutError carrying the remaining time and reason so the
// caller can render a countdown. A fresh login resets the tab-switch count.
func (s *SessionService) Login(ctx context.Context, username string) (domain.UserSession, error) {
	if l, locked := s.ActiveLockout(ctx, username); locked {
		return domain.UserSession{}, &domain.LockoutError{
			Username:  username,
			Remaining: l.Remaining(s.now()),
			Reason:    l.Reason,
		}
	}

	now := s.now()
	session := domain.UserSession{
		Username:     username,
		SessionID:    uuid.NewString(),
		LoginTime:    now,
		LastActivity: now,
	}

	sessions := s.store.Sessions(ctx)
	replaced := false
	for i := range sessions {
		if sessions[i].Username == username {
			sessions[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, session)
	}
	if err := s.store.SaveSessions(ctx, sessions); err != nil {
		return domain.UserSession{}, err
	}

	s.audit.Log(ctx, "User Login", username, "User logged in")
	s.hub.Publish(realtime.TopicSessions, username)
	return session, nil
}

// Session returns the stored auth session for a username.
func (s *SessionService) Session(ctx context.Context, username string) (domain.UserSession, bool) {
	for _, sess := range s.store.Sessions(ctx) {
		if sess.Username == username {
			return sess, true
		}
	}
	return domain.UserSession{}, false
}

// Validate reports whether the user's session exists and has not timed out.
// An expired session is cleared; callers redirect to login silently.
func (s *SessionService) Validate(ctx context.Context, username string) bool {
	sess, ok := s.Session(ctx, username)
	if !ok {
		return false
	}
	timeout := time.Duration(s.store.Settings(ctx).SessionTimeout) * time.Minute
	if s.now().Sub(sess.LoginTime) > timeout {
		s.Logout(ctx, username)
		return false
	}
	return true
}

// Touch refreshes the session's last-activity stamp.
func (s *SessionService) Touch(ctx context.Context, username string) {
	sessions := s.store.Sessions(ctx)
	for i := range sessions {
		if sessions[i].Username == username {
			sessions[i].LastActivity = s.now()
			if err := s.store.SaveSessions(ctx, sessions); err != nil {
				log.Printf("sessions: touch %s failed: %v", username, err)
			}
			return
		}
	}
}

// Logout removes the user's auth session.
func (s *SessionService) Logout(ctx context.Context, username string) {
	sessions := s.store.Sessions(ctx)
	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.Username != username {
			kept = append(kept, sess)
		}
	}
	if len(kept) == len(sessions) {
		return
	}
	if err := s.store.SaveSessions(ctx, kept); err != nil {
		log.Printf("sessions: logout %s failed: %v", username, err)
	}
	s.hub.Publish(realtime.TopicSessions, username)
}

// RecordTabSwitch bumps the persisted counter and applies the hard policy:
// reaching the configured threshold locks the account for the full duration
// and ends the session. When persisting the lockout fails the user is still
// forced out; the policy fails toward logout, never toward continuing.
func (s *SessionService) RecordTabSwitch(ctx context.Context, username string) (count int, locked bool) {
	sessions := s.store.Sessions(ctx)
	idx := -1
	for i := range sessions {
		if sessions[i].Username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, false
	}

	sessions[idx].TabSwitches++
	sessions[idx].LastActivity = s.now()
	count = sessions[idx].TabSwitches
	if err := s.store.SaveSessions(ctx, sessions); err != nil {
		log.Printf("sessions: persist tab switch for %s failed: %v", username, err)
	}

	threshold := s.store.Settings(ctx).MaxTabSwitches
	if count < threshold {
		return count, false
	}

	if _, err := s.CreateLockout(ctx, username, TabSwitchLockReason, ""); err != nil {
		log.Printf("sessions: lockout persist for %s failed, forcing logout anyway: %v", username, err)
	}
	s.Logout(ctx, username)
	return count, true
}

// CreateLockout replaces any existing lockout for the user with a fresh
// 3-hour one and marks the session record locked.
func (s *SessionService) CreateLockout(ctx context.Context, username, reason, adminID string) (domain.Lockout, error) {
	lockout := domain.Lockout{
		Username:  username,
		StartedAt: s.now(),
		Duration:  LockoutDuration,
		Reason:    reason,
		AdminID:   adminID,
	}

	lockouts := s.store.Lockouts(ctx)
	kept := lockouts[:0]
	for _, l := range lockouts {
		if l.Username != username {
			kept = append(kept, l)
		}
	}
	kept = append(kept, lockout)
	if err := s.store.SaveLockouts(ctx, kept); err != nil {
		return domain.Lockout{}, err
	}

	s.markSessionLocked(ctx, username, true, reason)

	actor := adminID
	if actor == "" {
		actor = "System"
	}
	s.audit.Log(ctx, "User Locked", actor, fmt.Sprintf("User %s locked for: %s", username, reason))
	s.hub.Publish(realtime.TopicLockouts, username)
	return lockout, nil
}

// RemoveLockout deletes the user's lockout record, if any.
func (s *SessionService) RemoveLockout(ctx context.Context, username string) {
	lockouts := s.store.Lockouts(ctx)
	kept := lockouts[:0]
	for _, l := range lockouts {
		if l.Username != username {
			kept = append(kept, l)
		}
	}
	if len(kept) == len(lockouts) {
		return
	}
	if err := s.store.SaveLockouts(ctx, kept); err != nil {
		log.Printf("sessions: remove lockout for %s failed: %v", username, err)
		return
	}
	s.markSessionLocked(ctx, username, false, "")
	s.hub.Publish(realtime.TopicLockouts, username)
}

// Lockouts lists all stored lockout records, expired ones included.
func (s *SessionService) Lockouts(ctx context.Context) []domain.Lockout {
	return s.store.Lockouts(ctx)
}

func (s *SessionService) markSessionLocked(ctx context.Context, username string, locked bool, reason string) {
	sessions := s.store.Sessions(ctx)
	for i := range sessions {
		if sessions[i].Username == username {
			sessions[i].Locked = locked
			sessions[i].LockReason = reason
			if err := s.store.SaveSessions(ctx, sessions); err != nil {
				log.Printf("sessions: mark locked=%v for %s failed: %v", locked, username, err)
			}
			return
		}
	}
}
