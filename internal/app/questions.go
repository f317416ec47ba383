package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"secure-quiz-service/internal/domain"
	"secure-quiz-service/internal/realtime"
	"secure-quiz-service/internal/store"
)

// QuestionService is CRUD over the question bank. Every write validates the
// record, persists the whole collection, audits the change and publishes a
// change event.
type QuestionService struct {
	store *store.Store
	audit *AuditService
	hub   *realtime.Hub
}

func NewQuestionService(st *store.Store, audit *AuditService, hub *realtime.Hub) *QuestionService {
	return &QuestionService{store: st, audit: audit, hub: hub}
}

// List returns the full bank.
func (s *QuestionService) List(ctx context.Context) []domain.Question {
	return s.store.Questions(ctx)
}

// Get returns one question by id.
func (s *QuestionService) Get(ctx context.Context, id string) (domain.Question, error) {
	for _, q := range s.store.Questions(ctx) {
		if q.ID == id {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

// Add validates and inserts a single question.
func (s *QuestionService) Add(ctx context.Context, q domain.Question, actor string) (domain.Question, error) {
	if err := domain.ValidateQuestion(q); err != nil {
		return domain.Question{}, err
	}
	q.ID = uuid.NewString()

	bank := s.store.Questions(ctx)
	bank = append(bank, q)
	if err := s.store.SaveQuestions(ctx, bank); err != nil {
		return domain.Question{}, err
	}

	s.audit.Log(ctx, "Question Added", actor, fmt.Sprintf("Added question: %q", truncate(q.Text, 50)))
	s.hub.Publish(realtime.TopicQuestions, len(bank))
	return q, nil
}

// Update replaces a question in place, keeping its id.
func (s *QuestionService) Update(ctx context.Context, id string, q domain.Question, actor string) (domain.Question, error) {
	if err := domain.ValidateQuestion(q); err != nil {
		return domain.Question{}, err
	}

	bank := s.store.Questions(ctx)
	idx := -1
	for i := range bank {
		if bank[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}

	q.ID = id
	bank[idx] = q
	if err := s.store.SaveQuestions(ctx, bank); err != nil {
		return domain.Question{}, err
	}

	s.audit.Log(ctx, "Question Updated", actor, fmt.Sprintf("Updated question: %q", truncate(q.Text, 50)))
	s.hub.Publish(realtime.TopicQuestions, len(bank))
	return q, nil
}

// Delete removes a question by id.
func (s *QuestionService) Delete(ctx context.Context, id string, actor string) error {
	bank := s.store.Questions(ctx)
	idx := -1
	for i := range bank {
		if bank[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrQuestionNotFound
	}

	removed := bank[idx]
	bank = append(bank[:idx], bank[idx+1:]...)
	if err := s.store.SaveQuestions(ctx, bank); err != nil {
		return err
	}

	s.audit.Log(ctx, "Question Deleted", actor, fmt.Sprintf("Deleted question: %q", truncate(removed.Text, 50)))
	s.hub.Publish(realtime.TopicQuestions, len(bank))
	return nil
}

// BulkAdd inserts already-parsed questions from a bulk upload. Rows arrive
// pre-validated per row; the commit itself is all-or-nothing for the rows
// that made it through parsing.
func (s *QuestionService) BulkAdd(ctx context.Context, qs []domain.Question, actor string) ([]domain.Question, error) {
	if len(qs) == 0 {
		return nil, nil
	}

	bank := s.store.Questions(ctx)
	added := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		if err := domain.ValidateQuestion(q); err != nil {
			return nil, err
		}
		q.ID = uuid.NewString()
		added = append(added, q)
	}
	bank = append(bank, added...)
	if err := s.store.SaveQuestions(ctx, bank); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, "Bulk Questions Added", actor, fmt.Sprintf("Added %d questions via bulk upload", len(added)))
	s.hub.Publish(realtime.TopicQuestions, len(bank))
	return added, nil
}

// ReplaceAll swaps the entire bank, used by backup restore and seeding.
func (s *QuestionService) ReplaceAll(ctx context.Context, qs []domain.Question, actor string) error {
	if err := s.store.SaveQuestions(ctx, qs); err != nil {
		return err
	}
	s.audit.Log(ctx, "Question Bank Replaced", actor, fmt.Sprintf("Replaced bank with %d questions", len(qs)))
	s.hub.Publish(realtime.TopicQuestions, len(qs))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
