package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/infra/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore() (*Store, *memory.BlobStore, *clock) {
	blobs := memory.NewBlobStore()
	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewWithClock(blobs, c.now), blobs, c
}

func TestMissingKeysReadAsEmpty(t *testing.T) {
	st, _, _ := newTestStore()
	ctx := context.Background()

	if got := st.Questions(ctx); len(got) != 0 {
		t.Fatalf("expected empty bank, got %d", len(got))
	}
	if got := st.Lockouts(ctx); len(got) != 0 {
		t.Fatalf("expected no lockouts, got %d", len(got))
	}
	if cfg := st.Settings(ctx); cfg.TimeLimit != 300 {
		t.Fatalf("expected default settings, got %+v", cfg)
	}
	if rev := st.Revision(ctx); rev != 0 {
		t.Fatalf("expected revision 0, got %d", rev)
	}
}

func TestCorruptBlobReadsAsEmpty(t *testing.T) {
	st, blobs, _ := newTestStore()
	ctx := context.Background()

	if err := blobs.Put(ctx, KeyLockouts, []byte("{not json")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := st.Lockouts(ctx); len(got) != 0 {
		t.Fatalf("corrupt data must degrade to empty, got %d", len(got))
	}
}

func TestSaveRoundTripAndRevisionBump(t *testing.T) {
	st, _, _ := newTestStore()
	ctx := context.Background()

	before := st.Revision(ctx)
	err := st.SaveLockouts(ctx, []domain.Lockout{{
		Username:  "alice",
		StartedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:  3 * time.Hour,
		Reason:    "test",
	}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got := st.Lockouts(ctx)
	if len(got) != 1 || got[0].Username != "alice" || got[0].Duration != 3*time.Hour {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if after := st.Revision(ctx); after <= before {
		t.Fatalf("expected revision to move, %d -> %d", before, after)
	}
}

func TestQuestionCacheInvalidatedOnSave(t *testing.T) {
	st, _, _ := newTestStore()
	ctx := context.Background()

	q := domain.Question{ID: "q1", Text: "one", Options: []string{"a", "b"}, Difficulty: domain.DifficultyEasy, Category: "General"}
	if err := st.SaveQuestions(ctx, []domain.Question{q}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := st.Questions(ctx); len(got) != 1 {
		t.Fatalf("expected 1 question, got %d", len(got))
	}

	// A save must drop the cache so the very next read sees the new bank
	// even within the TTL window.
	q2 := domain.Question{ID: "q2", Text: "two", Options: []string{"a", "b"}, Difficulty: domain.DifficultyEasy, Category: "General"}
	if err := st.SaveQuestions(ctx, []domain.Question{q, q2}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if got := st.Questions(ctx); len(got) != 2 {
		t.Fatalf("expected fresh read of 2 questions, got %d", len(got))
	}
}

func TestQuestionCacheServesWithinTTL(t *testing.T) {
	st, blobs, c := newTestStore()
	ctx := context.Background()

	q := domain.Question{ID: "q1", Text: "one", Options: []string{"a", "b"}, Difficulty: domain.DifficultyEasy, Category: "General"}
	if err := st.SaveQuestions(ctx, []domain.Question{q}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := st.Questions(ctx); len(got) != 1 {
		t.Fatalf("prime read failed, got %d", len(got))
	}

	// Writing behind the store's back is invisible until the TTL lapses.
	if err := blobs.Put(ctx, KeyQuestions, []byte(`[]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := st.Questions(ctx); len(got) != 1 {
		t.Fatalf("expected cached bank inside TTL, got %d", len(got))
	}

	c.advance(3 * time.Second)
	if got := st.Questions(ctx); len(got) != 0 {
		t.Fatalf("expected fresh read after TTL, got %d", len(got))
	}
}

func TestQuestionsReturnsIsolatedSnapshots(t *testing.T) {
	st, _, _ := newTestStore()
	ctx := context.Background()

	bank := []domain.Question{
		{ID: "q1", Text: "one", Options: []string{"a", "b"}, Difficulty: domain.DifficultyEasy, Category: "General"},
		{ID: "q2", Text: "two", Options: []string{"a", "b"}, Difficulty: domain.DifficultyEasy, Category: "General"},
		{ID: "q3", Text: "three", Options: []string{"a", "b"}, Difficulty: domain.DifficultyEasy, Category: "General"},
	}
	if err := st.SaveQuestions(ctx, bank); err != nil {
		t.Fatalf("save: %v", err)
	}

	snapshot := st.Questions(ctx)

	// A second caller editing its own read must not show through the cache
	// into the earlier snapshot.
	other := st.Questions(ctx)
	copy(other, other[1:]) // shift left in place, the way a delete edits
	other[len(other)-1] = domain.Question{}

	if len(snapshot) != 3 || snapshot[0].ID != "q1" {
		t.Fatalf("earlier snapshot corrupted by another caller's edit: %+v", snapshot)
	}
	if fresh := st.Questions(ctx); len(fresh) != 3 || fresh[0].ID != "q1" {
		t.Fatalf("cache corrupted by a caller's edit: %+v", fresh)
	}
}

type putFailBlobs struct {
	*memory.BlobStore
	failPuts bool
}

func (b *putFailBlobs) Put(ctx context.Context, key string, value []byte) error {
	if b.failPuts {
		return errors.New("backend down")
	}
	return b.BlobStore.Put(ctx, key, value)
}

func TestFailedSaveNeverExposesUnpersistedBank(t *testing.T) {
	blobs := &putFailBlobs{BlobStore: memory.NewBlobStore()}
	st := New(blobs)
	ctx := context.Background()

	q := domain.Question{ID: "q1", Text: "one", Options: []string{"a", "b"}, Difficulty: domain.DifficultyEasy, Category: "General"}
	if err := st.SaveQuestions(ctx, []domain.Question{q}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := st.Questions(ctx); len(got) != 1 {
		t.Fatalf("prime read failed, got %d", len(got))
	}

	blobs.failPuts = true
	if err := st.SaveQuestions(ctx, nil); err == nil {
		t.Fatal("expected the failed write to surface")
	}

	// The rejected write must not be visible; the next read serves the
	// persisted bank.
	if got := st.Questions(ctx); len(got) != 1 || got[0].ID != "q1" {
		t.Fatalf("expected the persisted bank after a failed save, got %+v", got)
	}
}

type failingBlobs struct{}

func (failingBlobs) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("backend down")
}
func (failingBlobs) Put(context.Context, string, []byte) error { return errors.New("backend down") }
func (failingBlobs) Delete(context.Context, string) error      { return errors.New("backend down") }
func (failingBlobs) Bump(context.Context, string) (int64, error) {
	return 0, errors.New("backend down")
}

func TestReadFailureDegradesWriteFailureSurfaces(t *testing.T) {
	st := New(failingBlobs{})
	ctx := context.Background()

	if got := st.Sessions(ctx); len(got) != 0 {
		t.Fatalf("read failure must degrade to empty, got %d", len(got))
	}
	if err := st.SaveSessions(ctx, []domain.UserSession{{Username: "alice"}}); err == nil {
		t.Fatal("write failure must surface as an error")
	}
}
