package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/realtime"
	"secure-quiz-service/internal/store"
)

const (
	maxStoredBackups = 10
	backupVersion    = "1.0"
)

// BackupService snapshots and restores the whole system state. Snapshots are
// kept newest first, capped at the 10 most recent.
type BackupService struct {
	store *store.Store
	audit *AuditService
	hub   *realtime.Hub
	now   func() time.Time
}

func NewBackupService(st *store.Store, audit *AuditService, hub *realtime.Hub) *BackupService {
	return &BackupService{store: st, audit: audit, hub: hub, now: time.Now}
}

func NewBackupServiceWithClock(st *store.Store, audit *AuditService, hub *realtime.Hub, now func() time.Time) *BackupService {
	return &BackupService{store: st, audit: audit, hub: hub, now: now}
}

func (s *BackupService) snapshot(ctx context.Context) domain.BackupData {
	settings := s.store.Settings(ctx)
	return domain.BackupData{
		Questions:    s.store.Questions(ctx),
		AuditLog:     s.store.AuditLog(ctx),
		UserSessions: s.store.Sessions(ctx),
		LockoutData:  s.store.Lockouts(ctx),
		Settings:     &settings,
		ManagedUsers: s.store.Users(ctx),
		Timestamp:    s.now(),
		Version:      backupVersion,
	}
}

// Create stores a named snapshot of all collections, evicting the oldest
// stored backup past the cap.
func (s *BackupService) Create(ctx context.Context, name, actor string) (domain.SystemBackup, error) {
	if name == "" {
		name = fmt.Sprintf("Backup %s", s.now().Format("2006-01-02 15:04:05"))
	}
	backup := domain.SystemBackup{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now(),
		Data:      s.snapshot(ctx),
	}

	backups := append([]domain.SystemBackup{backup}, s.store.Backups(ctx)...)
	if len(backups) > maxStoredBackups {
		backups = backups[:maxStoredBackups]
	}
	if err := s.store.SaveBackups(ctx, backups); err != nil {
		return domain.SystemBackup{}, err
	}

	s.audit.Log(ctx, "Backup Created", actor, fmt.Sprintf("Created backup %q", name))
	return backup, nil
}

// List returns stored backups, newest first.
func (s *BackupService) List(ctx context.Context) []domain.SystemBackup {
	return s.store.Backups(ctx)
}

// Delete removes one stored backup by id.
func (s *BackupService) Delete(ctx context.Context, id, actor string) error {
	backups := s.store.Backups(ctx)
	idx := -1
	for i := range backups {
		if backups[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrBadBackup
	}
	name := backups[idx].Name
	backups = append(backups[:idx], backups[idx+1:]...)
	if err := s.store.SaveBackups(ctx, backups); err != nil {
		return err
	}
	s.audit.Log(ctx, "Backup Deleted", actor, fmt.Sprintf("Deleted backup %q", name))
	return nil
}

// Export serializes the current state as a portable JSON document.
func (s *BackupService) Export(ctx context.Context) ([]byte, error) {
	return json.MarshalIndent(s.snapshot(ctx), "", "  ")
}

// Import parses an exported document and applies it. The document must carry
// a questions list; anything else is rejected in full and nothing changes.
func (s *BackupService) Import(ctx context.Context, raw []byte, actor string) (domain.BackupData, error) {
	// Probe the shape first: "questions" must be present and must be an
	// array, not merely absent or null.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.BackupData{}, domain.ErrBadBackup
	}
	qraw, ok := probe["questions"]
	if !ok {
		return domain.BackupData{}, domain.ErrBadBackup
	}
	var qs []domain.Question
	if err := json.Unmarshal(qraw, &qs); err != nil || qs == nil {
		return domain.BackupData{}, domain.ErrBadBackup
	}

	var data domain.BackupData
	if err := json.Unmarshal(raw, &data); err != nil {
		return domain.BackupData{}, domain.ErrBadBackup
	}

	if err := s.apply(ctx, data); err != nil {
		return domain.BackupData{}, err
	}
	s.audit.Log(ctx, "Backup Imported", actor, fmt.Sprintf("Imported backup with %d questions", len(data.Questions)))
	s.hub.Notify("info", "System data imported from backup", nil)
	s.hub.Publish(realtime.TopicQuestions, len(data.Questions))
	s.hub.Publish(realtime.TopicSettings, data.Settings)
	s.hub.Publish(realtime.TopicUsers, len(data.ManagedUsers))
	return data, nil
}

// Restore reapplies a stored snapshot by id.
func (s *BackupService) Restore(ctx context.Context, id, actor string) error {
	for _, b := range s.store.Backups(ctx) {
		if b.ID == id {
			if err := s.apply(ctx, b.Data); err != nil {
				return err
			}
			s.audit.Log(ctx, "Backup Restored", actor, fmt.Sprintf("Restored backup %q", b.Name))
			s.hub.Notify("info", fmt.Sprintf("System restored from backup %q", b.Name), nil)
			s.hub.Publish(realtime.TopicQuestions, len(b.Data.Questions))
			return nil
		}
	}
	return domain.ErrBadBackup
}

func (s *BackupService) apply(ctx context.Context, data domain.BackupData) error {
	if err := s.store.SaveQuestions(ctx, data.Questions); err != nil {
		return err
	}
	if data.Settings != nil {
		if err := s.store.SaveSettings(ctx, *data.Settings); err != nil {
			return err
		}
	}
	if err := s.store.SaveUsers(ctx, data.ManagedUsers); err != nil {
		return err
	}
	if err := s.store.SaveSessions(ctx, data.UserSessions); err != nil {
		return err
	}
	if err := s.store.SaveLockouts(ctx, data.LockoutData); err != nil {
		return err
	}
	return s.store.SaveAuditLog(ctx, data.AuditLog)
}
