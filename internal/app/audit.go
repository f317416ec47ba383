package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/store"
)

const maxAuditEntries = 1000

// AuditService keeps the activity trail: newest first, capped at the 1000
// most recent entries.
type AuditService struct {
	store *store.Store
	now   func() time.Time
}

func NewAuditService(st *store.Store) *AuditService {
	return &AuditService{store: st, now: time.Now}
}

func NewAuditServiceWithClock(st *store.Store, now func() time.Time) *AuditService {
	return &AuditService{store: st, now: now}
}

// Log prepends an entry. Audit failures are logged and swallowed; they must
// never fail the operation being audited.
func (s *AuditService) Log(ctx context.Context, action, user, details string) {
	entries := s.store.AuditLog(ctx)
	entry := domain.ActivityLog{
		ID:        uuid.NewString(),
		Action:    action,
		User:      user,
		Timestamp: s.now(),
		Details:   details,
	}
	entries = append([]domain.ActivityLog{entry}, entries...)
	if len(entries) > maxAuditEntries {
		entries = entries[:maxAuditEntries]
	}
	if err := s.store.SaveAuditLog(ctx, entries); err != nil {
		log.Printf("audit: failed to record %q: %v", action, err)
	}
}

// Entries returns the audit trail, newest first.
func (s *AuditService) Entries(ctx context.Context) []domain.ActivityLog {
	return s.store.AuditLog(ctx)
}
