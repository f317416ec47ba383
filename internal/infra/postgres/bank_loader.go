package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"secure-quiz-service/internal/domain"
)

// BankLoader loads a seed question bank stored as JSONB in Postgres.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

// LoadBank fetches the question bank identified by bankID.
func (l *BankLoader) LoadBank(ctx context.Context, bankID string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_banks WHERE id=$1`, bankID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	var bank []domain.Question
	if err := json.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("unmarshal question bank: %w", err)
	}
	return bank, nil
}

// SaveBank upserts a bank, used by the import command to publish a reviewed
// question set.
func (l *BankLoader) SaveBank(ctx context.Context, bankID string, bank []domain.Question) error {
	raw, err := json.Marshal(bank)
	if err != nil {
		return fmt.Errorf("marshal question bank: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO question_banks (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		bankID, raw)
	if err != nil {
		return fmt.Errorf("save question bank: %w", err)
	}
	return nil
}
