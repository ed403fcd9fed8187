package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/intervox/internal/questions"
)

// NearestAsked implements [questions.History]. Distance is pgvector's
// cosine distance.
func (s *Store) NearestAsked(ctx context.Context, userID string, embedding []float32) (questions.Match, bool, error) {
	const q = `
		SELECT text, embedding <=> $2 AS distance
		FROM   asked_questions
		WHERE  user_id = $1
		ORDER  BY distance
		LIMIT  1`

	var m questions.Match
	err := s.pool.QueryRow(ctx, q, userID, pgvector.NewVector(embedding)).Scan(&m.Text, &m.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return questions.Match{}, false, nil
	}
	if err != nil {
		return questions.Match{}, false, fmt.Errorf("postgres store: nearest asked: %w", err)
	}
	return m, true, nil
}

// RecordAsked implements [questions.History].
func (s *Store) RecordAsked(ctx context.Context, userID string, asked []questions.Asked) error {
	if len(asked) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range asked {
		batch.Queue(`INSERT INTO asked_questions (user_id, text, embedding) VALUES ($1, $2, $3)`,
			userID, a.Text, pgvector.NewVector(a.Embedding))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: record asked: %w", err)
	}
	return nil
}
