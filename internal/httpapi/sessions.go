package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/report"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// userID returns the caller identity or an error when the header is absent.
func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(UserHeader))
	if id == "" {
		return "", errNoUser
	}
	return id, nil
}

// decode reads a JSON body into v. Unknown fields are rejected so client
// typos surface instead of being silently ignored. An empty body leaves v
// untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// ─── Sessions ────────────────────────────────────────────────────────────────

type createRequest struct {
	ResumeContext   string `json:"resume_context"`
	JobContext      string `json:"job_context"`
	Company         string `json:"company"`
	Role            string `json:"role"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req createRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.sessions.CreateSession(r.Context(), user, interview.CreateParams{
		Context: interview.Context{
			ResumeContext: req.ResumeContext,
			JobContext:    req.JobContext,
			Company:       req.Company,
			Role:          req.Role,
		},
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+created.Session.ID)
	writeJSON(w, http.StatusCreated, created)
}

// sessionSummary is one entry of the session list.
type sessionSummary struct {
	ID              string             `json:"id"`
	Status          interview.Status   `json:"status"`
	Phase           interview.Phase    `json:"phase"`
	Company         string             `json:"company,omitempty"`
	Role            string             `json:"role,omitempty"`
	DurationMinutes int                `json:"duration_minutes"`
	TotalQuestions  int                `json:"total_questions"`
	Answered        int                `json:"questions_answered"`
	OverallScore    *int               `json:"overall_score,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	Statistics      *report.Statistics `json:"statistics,omitempty"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.sessions.ListSessions(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]sessionSummary, 0, len(list))
	for _, sess := range list {
		sum := sessionSummary{
			ID:              sess.ID,
			Status:          sess.Status,
			Phase:           sess.Phase,
			Company:         sess.Context.Company,
			Role:            sess.Context.Role,
			DurationMinutes: sess.DurationMinutes,
			TotalQuestions:  sess.TotalQuestions(),
			Answered:        sess.Answered(),
			OverallScore:    sess.OverallScore,
			CreatedAt:       sess.CreatedAt,
			CompletedAt:     sess.CompletedAt,
		}
		if sess.Report != nil {
			sum.Statistics = &sess.Report.Statistics
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.sessions.GetSession(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ─── Turns ───────────────────────────────────────────────────────────────────

type scriptRequest struct {
	Reply string `json:"reply"`
}

func (s *Server) advanceScript(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req scriptRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	step, err := s.sessions.AdvanceScript(r.Context(), user, r.PathValue("id"), req.Reply)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

type wordTiming struct {
	Word       string  `json:"word"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence,omitempty"`
}

type answerRequest struct {
	ExchangeID      string       `json:"exchange_id"`
	Transcript      string       `json:"transcript"`
	DurationSeconds float64      `json:"duration_seconds"`
	Words           []wordTiming `json:"words,omitempty"`
}

func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req answerRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ExchangeID == "" {
		s.writeError(w, r, fmt.Errorf("%w: exchange_id is required", errBadRequest))
		return
	}

	var words []stt.WordDetail
	for _, wt := range req.Words {
		words = append(words, stt.WordDetail{
			Word:       wt.Word,
			Start:      time.Duration(wt.StartMs) * time.Millisecond,
			End:        time.Duration(wt.EndMs) * time.Millisecond,
			Confidence: wt.Confidence,
		})
	}
	res, err := s.sessions.SubmitAnswer(r.Context(), user, r.PathValue("id"), interview.Answer{
		ExchangeID: req.ExchangeID,
		Transcript: req.Transcript,
		Words:      words,
		Duration:   time.Duration(req.DurationSeconds * float64(time.Second)),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Completion ──────────────────────────────────────────────────────────────

func (s *Server) completeSession(w http.ResponseWriter, r *http.Request) {
	s.finish(w, r, s.sessions.CompleteSession)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	s.finish(w, r, s.sessions.EndSession)
}

func (s *Server) finish(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, id string) (*report.Report, error)) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	rep, err := fn(r.Context(), user, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{SessionID: id, Report: rep})
}
