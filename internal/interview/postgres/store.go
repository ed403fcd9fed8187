package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/questions"
	"github.com/MrWong99/intervox/internal/report"
)

var (
	_ interview.Store   = (*Store)(nil)
	_ questions.History = (*Store)(nil)
)

// Store is a PostgreSQL-backed session store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks the database connection. It backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// ─── Create ──────────────────────────────────────────────────────────────────

// Create implements [interview.Store].
func (s *Store) Create(ctx context.Context, sess *interview.Session) error {
	sessCtx, err := json.Marshal(sess.Context)
	if err != nil {
		return fmt.Errorf("postgres store: encode context: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const q = `
		INSERT INTO interview_sessions
		    (id, user_id, status, phase, duration_minutes, question_index, context,
		     created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)`
	if _, err := tx.Exec(ctx, q,
		sess.ID,
		sess.UserID,
		string(sess.Status),
		sess.Phase.String(),
		sess.DurationMinutes,
		sess.QuestionIndex,
		sessCtx,
		sess.CreatedAt,
		sess.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres store: insert session: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range sess.Exchanges {
		if err := queueExchangeInsert(batch, sess.ID, e); err != nil {
			return err
		}
	}
	if err := queueEvents(batch, sess.ID, sess.History); err != nil {
		return err
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: insert exchanges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	sess.Version = 0
	return nil
}

func queueExchangeInsert(b *pgx.Batch, sessionID string, e interview.Exchange) error {
	question, err := json.Marshal(e.Question)
	if err != nil {
		return fmt.Errorf("postgres store: encode question: %w", err)
	}
	const q = `
		INSERT INTO interview_exchanges (id, session_id, idx, question_type, question)
		VALUES ($1, $2, $3, $4, $5)`
	b.Queue(q, e.ID, sessionID, e.Index, string(e.Question.Type), question)
	return nil
}

func queueEvents(b *pgx.Batch, sessionID string, events []interview.Event) error {
	const q = `
		INSERT INTO interview_events (session_id, seq, type, at, event)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, seq) DO NOTHING`
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("postgres store: encode event %d: %w", ev.Seq, err)
		}
		b.Queue(q, sessionID, ev.Seq, string(ev.Type), ev.At, raw)
	}
	return nil
}

// ─── Read ────────────────────────────────────────────────────────────────────

const selectSessions = `
	SELECT id, user_id, status, phase, duration_minutes, question_index, context,
	       report, overall_score, created_at, updated_at, completed_at, version
	FROM   interview_sessions`

// Get implements [interview.Store].
func (s *Store) Get(ctx context.Context, id string) (*interview.Session, error) {
	rows, err := s.pool.Query(ctx, selectSessions+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	sess, err := pgx.CollectExactlyOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, interview.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	if err := s.loadChildren(ctx, []*interview.Session{sess}); err != nil {
		return nil, err
	}
	return sess, nil
}

// List implements [interview.Store].
func (s *Store) List(ctx context.Context, userID string) ([]*interview.Session, error) {
	rows, err := s.pool.Query(ctx, selectSessions+`
	WHERE  user_id = $1
	ORDER  BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list sessions: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list sessions: %w", err)
	}
	if list == nil {
		return []*interview.Session{}, nil
	}
	if err := s.loadChildren(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func scanSession(row pgx.CollectableRow) (*interview.Session, error) {
	var (
		sess            interview.Session
		status, phase   string
		sessCtx, rawRep []byte
	)
	if err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&status,
		&phase,
		&sess.DurationMinutes,
		&sess.QuestionIndex,
		&sessCtx,
		&rawRep,
		&sess.OverallScore,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&sess.CompletedAt,
		&sess.Version,
	); err != nil {
		return nil, err
	}
	p, err := interview.ParsePhase(phase)
	if err != nil {
		return nil, err
	}
	sess.Phase = p
	sess.Status = interview.Status(status)
	if err := json.Unmarshal(sessCtx, &sess.Context); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	if rawRep != nil {
		var rep report.Report
		if err := json.Unmarshal(rawRep, &rep); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		sess.Report = &rep
	}
	sess.Exchanges = []interview.Exchange{}
	sess.History = []interview.Event{}
	return &sess, nil
}

// loadChildren fills in the exchanges and history of sessions.
func (s *Store) loadChildren(ctx context.Context, sessions []*interview.Session) error {
	byID := make(map[string]*interview.Session, len(sessions))
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		byID[sess.ID] = sess
		ids[i] = sess.ID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, idx, question, answer, analysis, answered_at
		FROM   interview_exchanges
		WHERE  session_id = ANY($1)
		ORDER  BY session_id, idx`, ids)
	if err != nil {
		return fmt.Errorf("postgres store: load exchanges: %w", err)
	}
	exchanges, err := pgx.CollectRows(rows, scanExchange)
	if err != nil {
		return fmt.Errorf("postgres store: scan exchanges: %w", err)
	}
	for _, e := range exchanges {
		sess := byID[e.SessionID]
		sess.Exchanges = append(sess.Exchanges, e)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT session_id, event
		FROM   interview_events
		WHERE  session_id = ANY($1)
		ORDER  BY session_id, seq`, ids)
	if err != nil {
		return fmt.Errorf("postgres store: load history: %w", err)
	}
	type eventRow struct {
		sessionID string
		event     interview.Event
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (eventRow, error) {
		var (
			r   eventRow
			raw []byte
		)
		if err := row.Scan(&r.sessionID, &raw); err != nil {
			return eventRow{}, err
		}
		return r, json.Unmarshal(raw, &r.event)
	})
	if err != nil {
		return fmt.Errorf("postgres store: scan history: %w", err)
	}
	for _, r := range events {
		sess := byID[r.sessionID]
		sess.History = append(sess.History, r.event)
	}
	return nil
}

func scanExchange(row pgx.CollectableRow) (interview.Exchange, error) {
	var (
		e                  interview.Exchange
		question, analysed []byte
		answer             *string
	)
	if err := row.Scan(
		&e.ID,
		&e.SessionID,
		&e.Index,
		&question,
		&answer,
		&analysed,
		&e.AnsweredAt,
	); err != nil {
		return interview.Exchange{}, err
	}
	if err := json.Unmarshal(question, &e.Question); err != nil {
		return interview.Exchange{}, fmt.Errorf("decode question: %w", err)
	}
	if answer != nil {
		e.Answer = *answer
	}
	if analysed != nil {
		var res analysis.Result
		if err := json.Unmarshal(analysed, &res); err != nil {
			return interview.Exchange{}, fmt.Errorf("decode analysis: %w", err)
		}
		e.Analysis = &res
	}
	return e, nil
}

// ─── Update ──────────────────────────────────────────────────────────────────

// Update implements [interview.Store]. The session row is updated only if
// its version still matches; exchanges are rewritten and new history
// events appended in the same transaction.
func (s *Store) Update(ctx context.Context, sess *interview.Session) error {
	var rawRep []byte
	if sess.Report != nil {
		var err error
		if rawRep, err = json.Marshal(sess.Report); err != nil {
			return fmt.Errorf("postgres store: encode report: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const q = `
		UPDATE interview_sessions SET
		    status         = $3,
		    phase          = $4,
		    question_index = $5,
		    report         = $6,
		    overall_score  = $7,
		    updated_at     = $8,
		    completed_at   = $9,
		    version        = version + 1
		WHERE id = $1 AND version = $2`
	tag, err := tx.Exec(ctx, q,
		sess.ID,
		sess.Version,
		string(sess.Status),
		sess.Phase.String(),
		sess.QuestionIndex,
		rawRep,
		sess.OverallScore,
		sess.UpdatedAt,
		sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM interview_sessions WHERE id = $1)`, sess.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres store: update session: %w", err)
		}
		if !exists {
			return interview.ErrSessionNotFound
		}
		return fmt.Errorf("%w: session %s is no longer at version %d", interview.ErrConflict, sess.ID, sess.Version)
	}

	batch := &pgx.Batch{}
	for _, e := range sess.Exchanges {
		if !e.Answered() {
			continue
		}
		analysed, err := json.Marshal(e.Analysis)
		if err != nil {
			return fmt.Errorf("postgres store: encode analysis: %w", err)
		}
		batch.Queue(`
			UPDATE interview_exchanges
			SET    answer = $2, analysis = $3, score = $4, answered_at = $5
			WHERE  id = $1`,
			e.ID, e.Answer, analysed, e.Analysis.Score, answeredAt(e))
	}
	if err := queueEvents(batch, sess.ID, sess.History); err != nil {
		return err
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: update exchanges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	sess.Version++
	return nil
}

func answeredAt(e interview.Exchange) time.Time {
	if e.AnsweredAt != nil {
		return *e.AnsweredAt
	}
	return time.Now()
}
