package store

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"secure-quiz-service/internal/domain"
)

// Collection keys. Each key holds one whole JSON-encoded collection; writes
// replace the blob atomically and last writer wins.
const (
	KeyQuestions    = "quiz:questions"
	KeySettings     = "quiz:settings"
	KeyLockouts     = "quiz:lockouts"
	KeySessions     = "quiz:user_sessions"
	KeyUsers        = "quiz:managed_users"
	KeyAuditLog     = "quiz:audit_log"
	KeyBackups      = "quiz:backups"
	keyRevision     = "quiz:rev"
	questionBankTTL = 2 * time.Second
)

// BlobStore abstracts the flat key-value blob store (in-memory, Redis, ...).
// There are no partial updates and no transactions; Put replaces the whole
// collection.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Bump atomically increments the change counter stored under key and
	// returns the new value.
	Bump(ctx context.Context, key string) (int64, error)
}

// Store is the typed collection layer over a BlobStore. Read failures
// (missing key, corrupt JSON) degrade to an empty collection; write failures
// surface as errors. Question-bank reads are coalesced and briefly cached.
type Store struct {
	blobs BlobStore
	sf    singleflight.Group
	clock func() time.Time

	mu          sync.RWMutex
	cachedBank  []domain.Question
	bankExpires time.Time
}

func New(blobs BlobStore) *Store {
	return &Store{blobs: blobs, clock: time.Now}
}

// NewWithClock is test-only for deterministic cache expiry.
func NewWithClock(blobs BlobStore, now func() time.Time) *Store {
	return &Store{blobs: blobs, clock: now}
}

func (s *Store) load(ctx context.Context, key string, dst any) {
	raw, ok, err := s.blobs.Get(ctx, key)
	if err != nil {
		log.Printf("store: read %s failed, treating as empty: %v", key, err)
		return
	}
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("store: corrupt data at %s, treating as empty: %v", key, err)
	}
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, key, raw); err != nil {
		return err
	}
	if _, err := s.blobs.Bump(ctx, keyRevision); err != nil {
		log.Printf("store: revision bump failed: %v", err)
	}
	return nil
}

// Questions returns the full question bank. Concurrent readers share one
// underlying fetch and a short-lived cache; the cache drops on every save.
// Every caller gets its own copy, so editing a returned bank can never
// rewrite another caller's snapshot through the cache.
func (s *Store) Questions(ctx context.Context) []domain.Question {
	now := s.clock()

	s.mu.RLock()
	if s.cachedBank != nil && s.bankExpires.After(now) {
		bank := append([]domain.Question(nil), s.cachedBank...)
		s.mu.RUnlock()
		return bank
	}
	s.mu.RUnlock()

	result, _, _ := s.sf.Do(KeyQuestions, func() (any, error) {
		var qs []domain.Question
		s.load(ctx, KeyQuestions, &qs)

		s.mu.Lock()
		s.cachedBank = qs
		s.bankExpires = s.clock().Add(questionBankTTL)
		s.mu.Unlock()
		return qs, nil
	})
	qs, _ := result.([]domain.Question)
	return append([]domain.Question(nil), qs...)
}

// SaveQuestions drops the cache whether or not the write lands; after a
// failed save the next read must refetch the persisted bank, never serve a
// value that was on its way to being replaced.
func (s *Store) SaveQuestions(ctx context.Context, qs []domain.Question) error {
	if qs == nil {
		qs = []domain.Question{}
	}
	err := s.save(ctx, KeyQuestions, qs)
	s.mu.Lock()
	s.cachedBank = nil
	s.mu.Unlock()
	return err
}

// Settings returns the stored configuration, or the defaults when nothing
// has been saved yet.
func (s *Store) Settings(ctx context.Context) domain.QuizSettings {
	cfg := domain.DefaultSettings()
	s.load(ctx, KeySettings, &cfg)
	return cfg
}

func (s *Store) SaveSettings(ctx context.Context, cfg domain.QuizSettings) error {
	return s.save(ctx, KeySettings, cfg)
}

func (s *Store) Lockouts(ctx context.Context) []domain.Lockout {
	var ls []domain.Lockout
	s.load(ctx, KeyLockouts, &ls)
	return ls
}

func (s *Store) SaveLockouts(ctx context.Context, ls []domain.Lockout) error {
	if ls == nil {
		ls = []domain.Lockout{}
	}
	return s.save(ctx, KeyLockouts, ls)
}

func (s *Store) Sessions(ctx context.Context) []domain.UserSession {
	var ss []domain.UserSession
	s.load(ctx, KeySessions, &ss)
	return ss
}

func (s *Store) SaveSessions(ctx context.Context, ss []domain.UserSession) error {
	if ss == nil {
		ss = []domain.UserSession{}
	}
	return s.save(ctx, KeySessions, ss)
}

func (s *Store) Users(ctx context.Context) []domain.ManagedUser {
	var us []domain.ManagedUser
	s.load(ctx, KeyUsers, &us)
	return us
}

func (s *Store) SaveUsers(ctx context.Context, us []domain.ManagedUser) error {
	if us == nil {
		us = []domain.ManagedUser{}
	}
	return s.save(ctx, KeyUsers, us)
}

func (s *Store) AuditLog(ctx context.Context) []domain.ActivityLog {
	var ls []domain.ActivityLog
	s.load(ctx, KeyAuditLog, &ls)
	return ls
}

func (s *Store) SaveAuditLog(ctx context.Context, ls []domain.ActivityLog) error {
	if ls == nil {
		ls = []domain.ActivityLog{}
	}
	return s.save(ctx, KeyAuditLog, ls)
}

func (s *Store) Backups(ctx context.Context) []domain.SystemBackup {
	var bs []domain.SystemBackup
	s.load(ctx, KeyBackups, &bs)
	return bs
}

func (s *Store) SaveBackups(ctx context.Context, bs []domain.SystemBackup) error {
	if bs == nil {
		bs = []domain.SystemBackup{}
	}
	return s.save(ctx, KeyBackups, bs)
}

// Revision returns the current change counter. Watchers poll it to detect
// that some collection changed; intermediate values can be skipped.
func (s *Store) Revision(ctx context.Context) int64 {
	raw, ok, err := s.blobs.Get(ctx, keyRevision)
	if err != nil || !ok {
		return 0
	}
	var rev int64
	if err := json.Unmarshal(raw, &rev); err != nil {
		return 0
	}
	return rev
}
