// Package interview owns the lifecycle of a mock-interview session.
//
// A session walks through the phases welcome, small_talk, company_intro,
// questions, wrap_up and completed. The [Machine] enforces the legal
// transitions; the [Service] applies them to persisted sessions, routes
// answers through analysis and produces the final report exactly once.
//
// Every Service operation takes the caller's user ID and checks ownership
// before it touches session state. Operations on one session are ordered by
// a per-session lock; different sessions never contend.
package interview

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/questions"
	"github.com/MrWong99/intervox/internal/report"
)

// Sentinel errors.
var (
	ErrSessionNotFound   = errors.New("interview: session not found")
	ErrAccessDenied      = errors.New("interview: access denied")
	ErrOutOfOrder        = errors.New("interview: answer out of order")
	ErrSessionCompleted  = errors.New("interview: session already completed")
	ErrInvalidTransition = errors.New("interview: invalid phase transition")
	ErrAnswerInFlight    = errors.New("interview: an answer is still being analysed")
	ErrEmptyAnswer       = errors.New("interview: empty answer")
	ErrExchangeNotFound  = errors.New("interview: exchange not found")

	// ErrConflict is returned by a [Store] when a session was modified
	// concurrently.
	ErrConflict = errors.New("interview: concurrent session update")
)

// Status is the coarse lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Context is the candidate material a session was created with.
type Context struct {
	ResumeContext string `json:"resume_context,omitempty"`
	JobContext    string `json:"job_context,omitempty"`
	Company       string `json:"company,omitempty"`
	Role          string `json:"role,omitempty"`
}

// Session is one interview.
type Session struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Status          Status     `json:"status"`
	Phase           Phase      `json:"phase"`
	DurationMinutes int        `json:"duration_minutes"`
	QuestionIndex   int        `json:"question_index"`
	Context         Context    `json:"context"`
	Exchanges       []Exchange `json:"exchanges"`

	// History is append-only.
	History []Event `json:"history"`

	// Report and OverallScore are set once on completion.
	Report       *report.Report `json:"report,omitempty"`
	OverallScore *int           `json:"overall_score,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Version increments on every stored update.
	Version int `json:"-"`
}

// TotalQuestions is the number of planned questions.
func (s *Session) TotalQuestions() int { return len(s.Exchanges) }

// Machine rebuilds the phase machine for the session.
func (s *Session) Machine() (*Machine, error) {
	return RestoreMachine(s.Phase, s.QuestionIndex, len(s.Exchanges))
}

// Current returns the exchange being asked, if any.
func (s *Session) Current() (*Exchange, bool) {
	if s.Phase != PhaseQuestions || s.QuestionIndex >= len(s.Exchanges) {
		return nil, false
	}
	return &s.Exchanges[s.QuestionIndex], true
}

// Answered counts the exchanges holding an analysed answer.
func (s *Session) Answered() int {
	n := 0
	for _, e := range s.Exchanges {
		if e.Answered() {
			n++
		}
	}
	return n
}

// Budget is the planned session length.
func (s *Session) Budget() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// QuestionBudget is the time allowed for one answer.
func (s *Session) QuestionBudget() time.Duration {
	if len(s.Exchanges) == 0 {
		return s.Budget()
	}
	return s.Budget() / time.Duration(len(s.Exchanges))
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Exchanges = make([]Exchange, len(s.Exchanges))
	for i, e := range s.Exchanges {
		c.Exchanges[i] = e.clone()
	}
	c.History = slices.Clone(s.History)
	if s.Report != nil {
		r := s.Report.Clone()
		c.Report = &r
	}
	if s.OverallScore != nil {
		v := *s.OverallScore
		c.OverallScore = &v
	}
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

func (s *Session) reportItems() []report.Item {
	items := make([]report.Item, len(s.Exchanges))
	for i, e := range s.Exchanges {
		items[i] = report.Item{
			QuestionType: string(e.Question.Type),
			Answer:       e.Answer,
			Analysis:     e.Analysis,
		}
	}
	return items
}

// Exchange is one planned question and, once answered, its analysed answer.
type Exchange struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"session_id"`
	Index      int                `json:"index"`
	Question   questions.Question `json:"question"`
	Answer     string             `json:"answer,omitempty"`
	Analysis   *analysis.Result   `json:"analysis,omitempty"`
	AnsweredAt *time.Time         `json:"answered_at,omitempty"`
}

// Answered reports whether the exchange holds an analysed answer.
func (e Exchange) Answered() bool {
	return strings.TrimSpace(e.Answer) != "" && e.Analysis != nil
}

func (e Exchange) clone() Exchange {
	c := e
	c.Question.Tips = slices.Clone(e.Question.Tips)
	if e.Analysis != nil {
		a := e.Analysis.Clone()
		c.Analysis = &a
	}
	if e.AnsweredAt != nil {
		v := *e.AnsweredAt
		c.AnsweredAt = &v
	}
	return c
}
