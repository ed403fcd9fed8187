package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/live"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/report"
	"github.com/MrWong99/intervox/internal/resilience"
)

var (
	errNoUser     = errors.New("httpapi: missing " + UserHeader + " header")
	errBadRequest = errors.New("httpapi: malformed request body")
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, interview.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, interview.ErrSessionNotFound),
		errors.Is(err, interview.ErrExchangeNotFound):
		return http.StatusNotFound
	case errors.Is(err, interview.ErrOutOfOrder),
		errors.Is(err, interview.ErrSessionCompleted),
		errors.Is(err, interview.ErrInvalidTransition),
		errors.Is(err, interview.ErrAnswerInFlight),
		errors.Is(err, interview.ErrConflict),
		errors.Is(err, live.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, interview.ErrEmptyAnswer),
		errors.Is(err, report.ErrNoAnswersToReport),
		errors.Is(err, live.ErrTranscriptionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resilience.ErrAllFailed):
		return http.StatusBadGateway
	case errors.Is(err, analysis.ErrAnalysisUnavailable),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeFor names err for clients; it shares the vocabulary of live events.
func codeFor(err error) string {
	switch {
	case errors.Is(err, errNoUser):
		return "unauthenticated"
	case errors.Is(err, errBadRequest):
		return "bad_request"
	case errors.Is(err, interview.ErrExchangeNotFound):
		return "exchange_not_found"
	case errors.Is(err, interview.ErrEmptyAnswer):
		return "empty_answer"
	case errors.Is(err, interview.ErrConflict):
		return "conflict"
	case errors.Is(err, resilience.ErrAllFailed), errors.Is(err, resilience.ErrCircuitOpen):
		return "provider_unavailable"
	}
	return live.ErrorCode(err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		log.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: codeFor(err)})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("httpapi: encode response", "err", err)
	}
}
