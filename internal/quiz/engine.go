package quiz

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"secure-quiz-service/internal/domain"
)

// Session is the runtime state of one quiz attempt. Questions are snapshots
// copied at start time, immune to later edits to the bank.
type Session struct {
	Questions     []domain.Question `json:"questions"`
	CurrentIndex  int               `json:"currentQuestionIndex"`
	Answers       map[string]int    `json:"answers"`
	TimeRemaining int               `json:"timeRemaining"`
	Completed     bool              `json:"isCompleted"`
	StartTime     time.Time         `json:"startTime"`
}

// Engine drives one user's quiz session: sequencing, answer capture,
// countdown and scoring. It does not own a clock; Tick is driven externally
// at a fixed cadence and drift is not compensated.
type Engine struct {
	mu       sync.Mutex
	settings domain.QuizSettings
	now      func() time.Time
	rnd      *rand.Rand
	session  Session
}

func New(settings domain.QuizSettings) *Engine {
	return NewWithClock(settings, time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithClock allows deterministic timestamps and draws in tests.
func NewWithClock(settings domain.QuizSettings, now func() time.Time, rnd *rand.Rand) *Engine {
	return &Engine{settings: settings, now: now, rnd: rnd}
}

// Initialize draws a fresh session from the bank. An empty bank yields
// ErrQuizNotReady and no session; callers must treat that as "not ready",
// never as a completed zero-score quiz.
func (e *Engine) Initialize(bank []domain.Question) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initLocked(bank)
}

func (e *Engine) initLocked(bank []domain.Question) error {
	if len(bank) == 0 {
		e.session = Session{}
		return domain.ErrQuizNotReady
	}

	drawn := make([]domain.Question, len(bank))
	copy(drawn, bank)
	if e.settings.ShuffleQuestions {
		e.rnd.Shuffle(len(drawn), func(i, j int) {
			drawn[i], drawn[j] = drawn[j], drawn[i]
		})
	}
	count := e.settings.QuestionsPerQuiz
	if count <= 0 || count > len(drawn) {
		count = len(drawn)
	}
	drawn = drawn[:count]

	if e.settings.ShuffleAnswers {
		for i := range drawn {
			drawn[i] = e.shuffleOptions(drawn[i])
		}
	}

	e.session = Session{
		Questions:     drawn,
		Answers:       make(map[string]int),
		TimeRemaining: e.settings.TimeLimit,
		StartTime:     e.now(),
	}
	return nil
}

// shuffleOptions permutes a question's option list and remaps the correct
// index through the permutation. Working on indices keeps duplicate option
// text safe.
func (e *Engine) shuffleOptions(q domain.Question) domain.Question {
	perm := e.rnd.Perm(len(q.Options))
	shuffled := make([]string, len(q.Options))
	correct := q.CorrectAnswer
	for newIdx, oldIdx := range perm {
		shuffled[newIdx] = q.Options[oldIdx]
		if oldIdx == q.CorrectAnswer {
			correct = newIdx
		}
	}
	q.Options = shuffled
	q.CorrectAnswer = correct
	return q
}

// Answer upserts the chosen option for a question. Out-of-range option
// indexes are accepted; they simply never match during scoring. Revisiting
// earlier questions is allowed.
func (e *Engine) Answer(questionID string, optionIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Answers == nil {
		return
	}
	e.session.Answers[questionID] = optionIndex
}

// Next advances the cursor, clamped to the last question. Calling Next while
// already on the last question marks the session completed.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.session.Questions)
	if n == 0 {
		return
	}
	if e.session.CurrentIndex >= n-1 {
		e.session.CurrentIndex = n - 1
		e.session.Completed = true
		return
	}
	e.session.CurrentIndex++
}

// Previous moves the cursor back, clamped to the first question.
func (e *Engine) Previous() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.CurrentIndex > 0 {
		e.session.CurrentIndex--
	}
}

// CompleteNow forces completion regardless of cursor position or remaining
// time; used for explicit submission and lockout-triggered termination.
func (e *Engine) CompleteNow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Completed = true
}

// Tick decrements the countdown by one unit. Reaching zero forces
// completion. Once the session is completed a tick is a no-op, so a stale
// timer callback can never revive a session.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Completed || len(e.session.Questions) == 0 {
		return
	}
	e.session.TimeRemaining--
	if e.session.TimeRemaining <= 0 {
		e.session.TimeRemaining = 0
		e.session.Completed = true
	}
}

// Score is a pure function over the current session; repeated calls yield
// identical results and never mutate state. An empty session scores zero.
func (e *Engine) Score() domain.QuizResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	correct := 0
	perQuestion := make([]bool, len(e.session.Questions))
	for i, q := range e.session.Questions {
		chosen, answered := e.session.Answers[q.ID]
		if answered && chosen == q.CorrectAnswer {
			correct++
			perQuestion[i] = true
		}
	}

	total := len(e.session.Questions)
	score := 0
	if total > 0 {
		score = int(math.Round(float64(correct) / float64(total) * 100))
	}

	answers := make(map[string]int, len(e.session.Answers))
	for id, idx := range e.session.Answers {
		answers[id] = idx
	}

	return domain.QuizResult{
		Score:          score,
		TotalQuestions: total,
		CorrectAnswers: correct,
		TimeSpent:      e.settings.TimeLimit - e.session.TimeRemaining,
		CompletedAt:    e.now(),
		Answers:        answers,
		PerQuestion:    perQuestion,
	}
}

// Reset discards the current session and draws a new one.
func (e *Engine) Reset(bank []domain.Question) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initLocked(bank)
}

// Session returns a snapshot of the current state.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.session
	snap.Questions = append([]domain.Question(nil), e.session.Questions...)
	snap.Answers = make(map[string]int, len(e.session.Answers))
	for id, idx := range e.session.Answers {
		snap.Answers[id] = idx
	}
	return snap
}

// Active reports whether the session can still accept answers.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.session.Questions) > 0 && !e.session.Completed && e.session.TimeRemaining > 0
}

// ValidAgainst checks the structural validity of the in-flight session: do
// all session question ids still exist in the bank? This runs at load/resume
// time only; mid-session bank edits are tolerated.
func (e *Engine) ValidAgainst(bank []domain.Question) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	known := make(map[string]struct{}, len(bank))
	for _, q := range bank {
		known[q.ID] = struct{}{}
	}
	for _, q := range e.session.Questions {
		if _, ok := known[q.ID]; !ok {
			return false
		}
	}
	return true
}
