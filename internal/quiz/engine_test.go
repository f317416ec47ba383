package quiz

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"secure-quiz-service/internal/domain"
)

func testSettings() domain.QuizSettings {
	s := domain.DefaultSettings()
	s.TimeLimit = 300
	s.QuestionsPerQuiz = 5
	return s
}

func testBank(n int) []domain.Question {
	bank := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		bank = append(bank, domain.Question{
			ID:            string(rune('a' + i)),
			Text:          "question " + string(rune('a'+i)),
			Options:       []string{"one", "two", "three", "four"},
			CorrectAnswer: i % 4,
			Difficulty:    domain.DifficultyEasy,
			Category:      "general",
		})
	}
	return bank
}

func newTestEngine(t *testing.T, settings domain.QuizSettings) *Engine {
	t.Helper()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return NewWithClock(settings, func() time.Time { return now }, rand.New(rand.NewSource(1)))
}

func TestInitializeEmptyBank(t *testing.T) {
	e := newTestEngine(t, testSettings())
	err := e.Initialize(nil)
	if !errors.Is(err, domain.ErrQuizNotReady) {
		t.Fatalf("expected ErrQuizNotReady, got %v", err)
	}
	if e.Active() {
		t.Fatalf("empty session must not be active")
	}
	if got := e.Score(); got.Score != 0 || got.TotalQuestions != 0 {
		t.Fatalf("empty session must score 0/0, got %+v", got)
	}
}

func TestInitializeDrawsDistinctQuestions(t *testing.T) {
	settings := testSettings()
	settings.ShuffleQuestions = true
	bank := testBank(10)

	for seed := int64(0); seed < 20; seed++ {
		e := NewWithClock(settings, time.Now, rand.New(rand.NewSource(seed)))
		if err := e.Initialize(bank); err != nil {
			t.Fatalf("initialize: %v", err)
		}
		sess := e.Session()
		if len(sess.Questions) != 5 {
			t.Fatalf("seed %d: expected 5 questions, got %d", seed, len(sess.Questions))
		}
		seen := make(map[string]bool)
		for _, q := range sess.Questions {
			if seen[q.ID] {
				t.Fatalf("seed %d: duplicate question %s", seed, q.ID)
			}
			seen[q.ID] = true
		}
	}
}

func TestShuffleAnswersKeepsCorrectOption(t *testing.T) {
	settings := testSettings()
	settings.ShuffleAnswers = true
	settings.QuestionsPerQuiz = 1

	// Duplicate option text: the index permutation must still track the
	// originally correct slot.
	bank := []domain.Question{{
		ID:            "q1",
		Text:          "pick the second 'same'",
		Options:       []string{"same", "same", "other", "same"},
		CorrectAnswer: 1,
		Difficulty:    domain.DifficultyEasy,
		Category:      "general",
	}}

	for seed := int64(0); seed < 10; seed++ {
		e := NewWithClock(settings, time.Now, rand.New(rand.NewSource(seed)))
		if err := e.Initialize(bank); err != nil {
			t.Fatalf("initialize: %v", err)
		}
		q := e.Session().Questions[0]
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			t.Fatalf("seed %d: correct index %d out of range", seed, q.CorrectAnswer)
		}
		e.Answer("q1", q.CorrectAnswer)
		if res := e.Score(); res.CorrectAnswers != 1 {
			t.Fatalf("seed %d: expected remapped answer to score, got %+v", seed, res)
		}
	}
}

func TestAnswerUpsertAndOutOfRange(t *testing.T) {
	settings := testSettings()
	settings.ShuffleQuestions = false
	settings.ShuffleAnswers = false
	e := newTestEngine(t, settings)
	if err := e.Initialize(testBank(5)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	q := e.Session().Questions[0]
	e.Answer(q.ID, 99) // accepted, never matches
	if res := e.Score(); res.CorrectAnswers != 0 {
		t.Fatalf("out-of-range answer must not score, got %+v", res)
	}

	e.Answer(q.ID, q.CorrectAnswer) // idempotent upsert replaces
	if res := e.Score(); res.CorrectAnswers != 1 {
		t.Fatalf("expected upserted answer to score, got %+v", res)
	}
}

func TestNavigationClampsAndCompletes(t *testing.T) {
	settings := testSettings()
	settings.QuestionsPerQuiz = 3
	e := newTestEngine(t, settings)
	if err := e.Initialize(testBank(3)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	e.Previous()
	if idx := e.Session().CurrentIndex; idx != 0 {
		t.Fatalf("Previous at start must clamp to 0, got %d", idx)
	}

	e.Next()
	e.Next()
	sess := e.Session()
	if sess.CurrentIndex != 2 || sess.Completed {
		t.Fatalf("expected cursor at last question, not completed: %+v", sess)
	}

	e.Next() // past the end: completes, cursor stays clamped
	sess = e.Session()
	if !sess.Completed || sess.CurrentIndex != 2 {
		t.Fatalf("Next on last question must complete and clamp, got %+v", sess)
	}
}

func TestTickCountdownForcesCompletion(t *testing.T) {
	e := newTestEngine(t, testSettings())
	if err := e.Initialize(testBank(5)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	for i := 0; i < 300; i++ {
		e.Tick()
	}
	sess := e.Session()
	if sess.TimeRemaining != 0 {
		t.Fatalf("expected remaining 0, got %d", sess.TimeRemaining)
	}
	if !sess.Completed {
		t.Fatalf("expected forced completion at zero without CompleteNow")
	}

	// Stale tick after completion is a no-op.
	e.Tick()
	if got := e.Session().TimeRemaining; got != 0 {
		t.Fatalf("stale tick changed remaining time to %d", got)
	}
}

func TestScorePureAndIdempotent(t *testing.T) {
	settings := testSettings()
	settings.ShuffleQuestions = false
	settings.ShuffleAnswers = false
	e := newTestEngine(t, settings)
	if err := e.Initialize(testBank(5)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	rnd := rand.New(rand.NewSource(7))
	for _, q := range e.Session().Questions {
		e.Answer(q.ID, rnd.Intn(6)) // may be out of range, still accepted
	}
	for i := 0; i < 40; i++ {
		e.Tick()
	}

	first := e.Score()
	second := e.Score()
	if first.Score != second.Score || first.CorrectAnswers != second.CorrectAnswers {
		t.Fatalf("Score not idempotent: %+v vs %+v", first, second)
	}

	want := int(float64(first.CorrectAnswers)/float64(first.TotalQuestions)*100 + 0.5)
	if first.Score != want {
		t.Fatalf("expected rounded score %d, got %d", want, first.Score)
	}
	if first.TimeSpent != 40 {
		t.Fatalf("expected elapsed 40s, got %d", first.TimeSpent)
	}
}

func TestResetDrawsFreshSession(t *testing.T) {
	e := newTestEngine(t, testSettings())
	bank := testBank(10)
	if err := e.Initialize(bank); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	q := e.Session().Questions[0]
	e.Answer(q.ID, 0)
	e.CompleteNow()

	if err := e.Reset(bank); err != nil {
		t.Fatalf("reset: %v", err)
	}
	sess := e.Session()
	if sess.Completed || len(sess.Answers) != 0 || sess.TimeRemaining != 300 {
		t.Fatalf("reset must produce a fresh session, got %+v", sess)
	}
}

func TestValidAgainstBank(t *testing.T) {
	settings := testSettings()
	settings.QuestionsPerQuiz = 3
	e := newTestEngine(t, settings)
	bank := testBank(3)
	if err := e.Initialize(bank); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if !e.ValidAgainst(bank) {
		t.Fatalf("session must validate against its own bank")
	}
	if e.ValidAgainst(bank[:1]) {
		t.Fatalf("session must fail validation when questions were deleted")
	}
}

func TestRunnerStopsCleanly(t *testing.T) {
	settings := testSettings()
	settings.TimeLimit = 3600
	e := newTestEngine(t, settings)
	if err := e.Initialize(testBank(5)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	r := StartRunner(e, time.Millisecond, nil)
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	r.Stop() // idempotent

	time.Sleep(5 * time.Millisecond) // let any in-flight tick land
	remaining := e.Session().TimeRemaining
	time.Sleep(10 * time.Millisecond)
	if got := e.Session().TimeRemaining; got != remaining {
		t.Fatalf("runner kept ticking after Stop: %d -> %d", remaining, got)
	}
}
