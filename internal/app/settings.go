package app

import (
	"context"
	"time"

	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/realtime"
	"secure-quiz-service/internal/store"
)

// SettingsService manages the single quiz configuration record. A write that
// violates any bound is rejected wholesale; the previous record stays put.
type SettingsService struct {
	store *store.Store
	audit *AuditService
	hub   *realtime.Hub
	now   func() time.Time
}

func NewSettingsService(st *store.Store, audit *AuditService, hub *realtime.Hub) *SettingsService {
	return &SettingsService{store: st, audit: audit, hub: hub, now: time.Now}
}

func NewSettingsServiceWithClock(st *store.Store, audit *AuditService, hub *realtime.Hub, now func() time.Time) *SettingsService {
	return &SettingsService{store: st, audit: audit, hub: hub, now: now}
}

// Get returns the current settings (defaults when none were saved yet).
func (s *SettingsService) Get(ctx context.Context) domain.QuizSettings {
	return s.store.Settings(ctx)
}

// Update validates and persists a full settings record.
func (s *SettingsService) Update(ctx context.Context, cfg domain.QuizSettings, updatedBy string) (domain.QuizSettings, error) {
	if err := cfg.Validate(); err != nil {
		return domain.QuizSettings{}, err
	}

	cfg.UpdatedAt = s.now()
	cfg.UpdatedBy = updatedBy
	if err := s.store.SaveSettings(ctx, cfg); err != nil {
		return domain.QuizSettings{}, err
	}

	s.audit.Log(ctx, "Settings Updated", updatedBy, "Quiz settings changed")
	s.hub.Publish(realtime.TopicSettings, cfg)
	return cfg, nil
}

// ResetToDefaults restores the built-in configuration.
func (s *SettingsService) ResetToDefaults(ctx context.Context, updatedBy string) (domain.QuizSettings, error) {
	return s.Update(ctx, domain.DefaultSettings(), updatedBy)
}
