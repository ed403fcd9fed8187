// Package postgres provides a PostgreSQL-backed [interview.Store] that also
// implements [questions.History] on top of pgvector.
//
// Sessions, their exchanges and their history events live in three tables.
// Questions asked to each user are kept with their embeddings in a fourth
// table with an HNSW index, so that new candidates can be checked against
// everything a user has already been asked.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS interview_sessions (
    id                TEXT         PRIMARY KEY,
    user_id           TEXT         NOT NULL,
    status            TEXT         NOT NULL,
    phase             TEXT         NOT NULL,
    duration_minutes  INTEGER      NOT NULL,
    question_index    INTEGER      NOT NULL DEFAULT 0,
    context           JSONB        NOT NULL DEFAULT '{}',
    report            JSONB,
    overall_score     INTEGER,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed_at      TIMESTAMPTZ,
    version           INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_user
    ON interview_sessions (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS interview_exchanges (
    id             TEXT         PRIMARY KEY,
    session_id     TEXT         NOT NULL REFERENCES interview_sessions (id) ON DELETE CASCADE,
    idx            INTEGER      NOT NULL,
    question_type  TEXT         NOT NULL DEFAULT '',
    question       JSONB        NOT NULL,
    answer         TEXT,
    analysis       JSONB,
    score          INTEGER,
    answered_at    TIMESTAMPTZ,
    UNIQUE (session_id, idx)
);

CREATE TABLE IF NOT EXISTS interview_events (
    session_id  TEXT         NOT NULL REFERENCES interview_sessions (id) ON DELETE CASCADE,
    seq         INTEGER      NOT NULL,
    type        TEXT         NOT NULL,
    at          TIMESTAMPTZ  NOT NULL,
    event       JSONB        NOT NULL,
    PRIMARY KEY (session_id, seq)
);
`

// ddlAsked returns the question history DDL with the embedding dimension
// substituted. The dimension is baked into the column type at creation.
func ddlAsked(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS asked_questions (
    id         BIGSERIAL    PRIMARY KEY,
    user_id    TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    embedding  vector(%d)   NOT NULL,
    asked_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_asked_questions_user
    ON asked_questions (user_id);

CREATE INDEX IF NOT EXISTS idx_asked_questions_embedding
    ON asked_questions USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates the tables and extensions the store needs. It is
// idempotent and safe to call on every start.
//
// embeddingDimensions must match the embedding model used for question
// dedup. Changing it after the first migration requires a manual schema
// change.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSessions,
		ddlAsked(embeddingDimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
