package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/questions"
	"github.com/MrWong99/intervox/internal/report"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// Analyzer scores one answer. [*analysis.Analyzer] implements it.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error)
}

var _ Analyzer = (*analysis.Analyzer)(nil)

// Option configures a [Service].
type Option func(*Service)

// WithConfig sets the initial interview settings. Default: [DefaultConfig].
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg.Store(&cfg) }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how session and exchange IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// Service runs interview sessions on top of a [Store]. It is safe for
// concurrent use.
type Service struct {
	store    Store
	planner  questions.Generator
	analyzer Analyzer
	cfg      atomic.Pointer[Config]
	metrics  *observe.Metrics
	now      func() time.Time
	newID    func() string

	locksMu sync.Mutex
	locks   map[string]*sessionLock
	flight  singleflight.Group
}

// sessionLock orders the operations on one session and tracks the answer
// currently being analysed. It stays in Service.locks only while an
// operation holds a reference.
type sessionLock struct {
	mu   sync.Mutex
	refs int // guarded by Service.locksMu
	turn *turn
}

type turn struct {
	index  int
	cancel context.CancelFunc
}

// NewService returns a Service.
func NewService(store Store, planner questions.Generator, analyzer Analyzer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		planner:  planner,
		analyzer: analyzer,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		locks:    make(map[string]*sessionLock),
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.Load() == nil {
		cfg := DefaultConfig()
		s.cfg.Store(&cfg)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Config returns the settings new sessions are planned with.
func (s *Service) Config() Config { return *s.cfg.Load() }

// SetConfig replaces the settings. Sessions created afterwards use them;
// running sessions keep the duration and questions they were planned with.
func (s *Service) SetConfig(cfg Config) {
	cfg = cfg.WithDefaults()
	s.cfg.Store(&cfg)
}

// acquire returns the lock for session id and pins it until release. A turn
// is only ever set while its SubmitAnswer holds a reference, so dropping an
// unreferenced lock loses no state.
func (s *Service) acquire(id string) *sessionLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	return l
}

func (s *Service) release(id string, l *sessionLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(s.locks, id)
	}
}

// load fetches a session and checks that userID owns it.
func (s *Service) load(ctx context.Context, userID, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("interview: load session: %w", err)
	}
	if userID == "" || sess.UserID != userID {
		return nil, ErrAccessDenied
	}
	return sess, nil
}

func (s *Service) script(sess *Session) scriptData {
	return newScriptData(s.Config().InterviewerName, sess.Context, sess.DurationMinutes, len(sess.Exchanges))
}

// ─── Create ──────────────────────────────────────────────────────────────────

// CreateParams is the input to [Service.CreateSession].
type CreateParams struct {
	Context

	// DurationMinutes is clamped to the configured range; zero selects the
	// default.
	DurationMinutes int
}

// Created is the result of [Service.CreateSession].
type Created struct {
	Session   *Session             `json:"session"`
	Questions []questions.Question `json:"questions"`
	Voice     VoiceConfig          `json:"interviewer_voice"`

	// Greeting is the interviewer's welcome line.
	Greeting string `json:"greeting"`
}

// CreateSession plans a new interview for userID. The session starts in
// [PhaseWelcome] with the greeting already in its history.
func (s *Service) CreateSession(ctx context.Context, userID string, p CreateParams) (*Created, error) {
	if userID == "" {
		return nil, ErrAccessDenied
	}
	ctx, span := observe.StartSpan(ctx, "interview.CreateSession")
	defer span.End()

	cfg := s.Config()
	minutes := cfg.clampDuration(p.DurationMinutes)
	count := cfg.questionCount(minutes)

	qs, err := s.planner.Generate(ctx, questions.Request{
		UserID:        userID,
		ResumeContext: p.ResumeContext,
		JobContext:    p.JobContext,
		Company:       p.Company,
		Role:          p.Role,
		Count:         count,
	})
	if err != nil {
		return nil, fmt.Errorf("interview: create session: plan questions: %w", err)
	}
	if len(qs) == 0 {
		return nil, errors.New("interview: create session: no questions planned")
	}
	if len(qs) > count {
		qs = qs[:count]
	}

	now := s.now()
	sess := &Session{
		ID:              s.newID(),
		UserID:          userID,
		Status:          StatusInProgress,
		Phase:           PhaseWelcome,
		DurationMinutes: minutes,
		Context:         p.Context,
		Exchanges:       make([]Exchange, len(qs)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, q := range qs {
		sess.Exchanges[i] = Exchange{ID: s.newID(), SessionID: sess.ID, Index: i, Question: q}
	}

	greeting, err := scriptLine(PhaseWelcome, newScriptData(cfg.InterviewerName, sess.Context, minutes, len(qs)))
	if err != nil {
		return nil, err
	}
	sess.appendEvent(Event{Type: EventPhaseChange, Phase: PhaseWelcome, At: now})
	sess.appendEvent(Event{Type: EventAIUtterance, Text: greeting, At: now})

	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("interview: create session: %w", err)
	}
	s.metrics.ActiveSessions.Add(ctx, 1)
	observe.Logger(ctx).Info("interview session created",
		"session_id", sess.ID, "user_id", userID, "duration_minutes", minutes, "questions", len(qs))

	return &Created{Session: sess, Questions: qs, Voice: cfg.Voice, Greeting: greeting}, nil
}

// ─── Read ────────────────────────────────────────────────────────────────────

// GetSession returns the session if userID owns it.
func (s *Service) GetSession(ctx context.Context, userID, id string) (*Session, error) {
	return s.load(ctx, userID, id)
}

// ListSessions returns the sessions of userID, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	if userID == "" {
		return nil, ErrAccessDenied
	}
	list, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("interview: list sessions: %w", err)
	}
	return list, nil
}

// ─── Script ──────────────────────────────────────────────────────────────────

// ScriptStep is the result of [Service.AdvanceScript].
type ScriptStep struct {
	Phase Phase  `json:"phase"`
	Line  string `json:"line"`

	// Question is the first question when the step entered
	// [PhaseQuestions].
	Question *Exchange `json:"question,omitempty"`
}

// AdvanceScript moves a session through its scripted opening. reply is the
// candidate's optional response to the previous line and is kept in the
// history. Leaving company_intro asks the first question.
func (s *Service) AdvanceScript(ctx context.Context, userID, id, reply string) (*ScriptStep, error) {
	lock := s.acquire(id)
	defer s.release(id, lock)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusCompleted {
		return nil, ErrSessionCompleted
	}
	m, err := sess.Machine()
	if err != nil {
		return nil, err
	}
	t, err := m.AdvanceScript()
	if err != nil {
		return nil, err
	}

	now := s.now()
	if reply = strings.TrimSpace(reply); reply != "" {
		sess.appendEvent(Event{Type: EventUserResponse, Text: reply, At: now})
	}
	sess.Phase = m.Phase()
	sess.appendTransition(t, now)

	step := &ScriptStep{Phase: sess.Phase}
	data := s.script(sess)
	if cur, ok := sess.Current(); ok {
		step.Line, err = questionLine(data, cur.Question.Text, cur.Index, len(sess.Exchanges))
		q := *cur
		step.Question = &q
		if err == nil {
			sess.appendEvent(Event{Type: EventAIUtterance, Text: step.Line, QuestionIndex: intPtr(cur.Index), At: now})
		}
	} else {
		step.Line, err = scriptLine(sess.Phase, data)
		if err == nil {
			sess.appendEvent(Event{Type: EventAIUtterance, Text: step.Line, At: now})
		}
	}
	if err != nil {
		return nil, err
	}

	sess.UpdatedAt = now
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("interview: advance script: %w", err)
	}
	observe.Logger(ctx).Debug("interview phase advanced",
		"session_id", id, "from", t.From.String(), "phase", t.To.String())
	return step, nil
}

// ─── Answers ─────────────────────────────────────────────────────────────────

// Answer is one candidate answer.
type Answer struct {
	// ExchangeID names the question being answered.
	ExchangeID string
	Transcript string

	// Words carries per-word timings when the transcriber produced them.
	Words []stt.WordDetail

	// Duration is how long the candidate spoke.
	Duration time.Duration
}

// SubmitResult is the result of [Service.SubmitAnswer].
type SubmitResult struct {
	Analysis analysis.Result `json:"analysis"`
	Phase    Phase           `json:"phase"`

	// Line is what the interviewer says next: the next question or the
	// wrap-up.
	Line string `json:"line"`

	// NextQuestion is nil once every question is answered.
	NextQuestion *Exchange `json:"next_question,omitempty"`

	// SessionFinished is true when the answer was the last one.
	SessionFinished bool `json:"session_finished"`
}

// SubmitAnswer analyses the answer to the current question, records it and
// moves to the next question.
//
// Only the current question can be answered, and only one answer per
// session is analysed at a time ([ErrAnswerInFlight]). Answers to earlier
// questions are rejected with [ErrOutOfOrder]. If analysis fails the
// question stays open and the same answer may be submitted again. The
// per-session lock is not held while the answer is analysed, so
// [Service.EndSession] can cancel it.
func (s *Service) SubmitAnswer(ctx context.Context, userID, id string, a Answer) (*SubmitResult, error) {
	ctx, span := observe.StartSpan(ctx, "interview.SubmitAnswer")
	defer span.End()

	lock := s.acquire(id)
	defer s.release(id, lock)
	t, actx, sess, err := s.claim(ctx, lock, userID, id, a)
	if err != nil {
		return nil, err
	}
	ex := sess.Exchanges[t.index]

	res, aerr := s.analyzer.Analyze(actx, analysis.Input{
		Question:      ex.Question.Text,
		QuestionType:  string(ex.Question.Type),
		Transcript:    a.Transcript,
		ResumeContext: sess.Context.ResumeContext,
		JobContext:    sess.Context.JobContext,
		Words:         a.Words,
		Duration:      a.Duration,
	})

	lock.mu.Lock()
	defer lock.mu.Unlock()
	cancelled := lock.turn != t
	if !cancelled {
		lock.turn = nil
	}
	t.cancel()

	switch {
	case cancelled:
		return nil, fmt.Errorf("interview: submit answer: %w", context.Canceled)
	case aerr != nil:
		observe.Logger(ctx).Warn("answer analysis failed",
			"session_id", id, "question_index", t.index, "err", aerr)
		return nil, fmt.Errorf("interview: submit answer: %w", aerr)
	}
	return s.recordAnswer(ctx, userID, id, t.index, a, res)
}

// claim validates an answer and marks it in flight. The returned context is
// cancelled when the turn is superseded.
func (s *Service) claim(ctx context.Context, lock *sessionLock, userID, id string, a Answer) (*turn, context.Context, *Session, error) {
	lock.mu.Lock()
	defer lock.mu.Unlock()

	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if sess.Status == StatusCompleted {
		return nil, nil, nil, ErrSessionCompleted
	}
	index := -1
	for i, e := range sess.Exchanges {
		if e.ID == a.ExchangeID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, nil, nil, ErrExchangeNotFound
	}
	if lock.turn != nil {
		return nil, nil, nil, ErrAnswerInFlight
	}
	m, err := sess.Machine()
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := m.AnswerRecorded(index); err != nil {
		return nil, nil, nil, err
	}
	if strings.TrimSpace(a.Transcript) == "" {
		return nil, nil, nil, ErrEmptyAnswer
	}

	actx, cancel := context.WithCancel(ctx)
	t := &turn{index: index, cancel: cancel}
	lock.turn = t
	return t, actx, sess, nil
}

// recordAnswer persists an analysed answer. The caller holds the session
// lock.
func (s *Service) recordAnswer(ctx context.Context, userID, id string, index int, a Answer, res analysis.Result) (*SubmitResult, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusCompleted {
		return nil, ErrSessionCompleted
	}
	m, err := sess.Machine()
	if err != nil {
		return nil, err
	}
	t, err := m.AnswerRecorded(index)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ex := &sess.Exchanges[index]
	ex.Answer = a.Transcript
	ex.Analysis = &res
	ex.AnsweredAt = &now
	sess.appendEvent(Event{Type: EventUserResponse, Text: a.Transcript, QuestionIndex: intPtr(index), At: now})
	sess.appendEvent(Event{Type: EventAnswerAnalysis, Text: res.Feedback, Score: intPtr(res.Score), QuestionIndex: intPtr(index), At: now})

	sess.Phase, sess.QuestionIndex = m.Phase(), m.Index()
	sess.appendTransition(t, now)

	out := &SubmitResult{Analysis: res, Phase: sess.Phase}
	data := s.script(sess)
	if cur, ok := sess.Current(); ok {
		out.Line, err = questionLine(data, cur.Question.Text, cur.Index, len(sess.Exchanges))
		next := *cur
		out.NextQuestion = &next
		if err == nil {
			sess.appendEvent(Event{Type: EventAIUtterance, Text: out.Line, QuestionIndex: intPtr(cur.Index), At: now})
		}
	} else {
		out.SessionFinished = true
		out.Line, err = scriptLine(PhaseWrapUp, data)
		if err == nil {
			sess.appendEvent(Event{Type: EventAIUtterance, Text: out.Line, At: now})
		}
	}
	if err != nil {
		return nil, err
	}

	sess.UpdatedAt = now
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("interview: record answer: %w", err)
	}
	observe.Logger(ctx).Info("answer recorded",
		"session_id", id, "question_index", index, "score", res.Score, "phase", sess.Phase.String())
	return out, nil
}

// ─── Completion ──────────────────────────────────────────────────────────────

// CompleteSession produces the final report. It is idempotent: once a
// session is completed the stored report is returned and never recomputed.
// Completing before every question is answered counts the rest as skipped.
//
// It fails with [ErrAnswerInFlight] while an answer is being analysed and
// with [report.ErrNoAnswersToReport] if nothing was answered; in both cases
// the session is left unchanged.
func (s *Service) CompleteSession(ctx context.Context, userID, id string) (*report.Report, error) {
	return s.finish(ctx, userID, id, false)
}

// EndSession stops a session early. An answer still being analysed is
// cancelled without waiting for it; the session then completes with the
// answers recorded so far.
func (s *Service) EndSession(ctx context.Context, userID, id string) (*report.Report, error) {
	return s.finish(ctx, userID, id, true)
}

func (s *Service) finish(ctx context.Context, userID, id string, cancelInFlight bool) (*report.Report, error) {
	ctx, span := observe.StartSpan(ctx, "interview.CompleteSession")
	defer span.End()

	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusCompleted {
		return sess.Report, nil
	}

	key := id
	if cancelInFlight {
		key = id + "/end"
	}
	// Concurrent completions share one result. The work is detached from
	// the first caller's cancellation so joiners are not failed by it.
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.complete(context.WithoutCancel(ctx), id, cancelInFlight)
	})
	if err != nil {
		return nil, err
	}
	return v.(*report.Report), nil
}

func (s *Service) complete(ctx context.Context, id string, cancelInFlight bool) (*report.Report, error) {
	lock := s.acquire(id)
	defer s.release(id, lock)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	if lock.turn != nil {
		if !cancelInFlight {
			return nil, ErrAnswerInFlight
		}
		lock.turn.cancel()
		lock.turn = nil
		observe.Logger(ctx).Info("in-flight answer cancelled", "session_id", id)
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("interview: complete session: %w", err)
	}
	if sess.Status == StatusCompleted {
		return sess.Report, nil
	}

	rep, err := report.Aggregate(sess.reportItems(), sess.Budget())
	if err != nil {
		return nil, fmt.Errorf("interview: complete session: %w", err)
	}

	m, err := sess.Machine()
	if err != nil {
		return nil, err
	}
	now := s.now()
	data := s.script(sess)

	early, err := m.FinishEarly()
	if err != nil {
		return nil, err
	}
	sess.Phase = m.Phase()
	if early.PhaseChanged() {
		sess.appendTransition(early, now)
		line, err := scriptLine(PhaseWrapUp, data)
		if err != nil {
			return nil, err
		}
		sess.appendEvent(Event{Type: EventAIUtterance, Text: line, At: now})
	}

	done, err := m.Complete()
	if err != nil {
		return nil, err
	}
	sess.Phase = m.Phase()
	sess.appendTransition(done, now)
	line, err := scriptLine(PhaseCompleted, data)
	if err != nil {
		return nil, err
	}
	sess.appendEvent(Event{Type: EventAIUtterance, Text: line, At: now})

	score := rep.OverallScore
	sess.Status = StatusCompleted
	sess.Report = &rep
	sess.OverallScore = &score
	sess.CompletedAt = &now
	sess.UpdatedAt = now
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("interview: complete session: %w", err)
	}

	s.metrics.ReportsGenerated.Add(ctx, 1)
	s.metrics.ActiveSessions.Add(ctx, -1)
	observe.Logger(ctx).Info("interview session completed",
		"session_id", id, "overall_score", score,
		"answered", rep.Statistics.QuestionsAnswered, "skipped", rep.Statistics.QuestionsSkipped)
	return &rep, nil
}
