// Package httpapi exposes the interview core over HTTP.
//
// JSON endpoints cover the session lifecycle; the live endpoint upgrades to
// a WebSocket carrying the candidate's microphone one way and interview
// events the other. Callers are identified by the X-User-ID header, which an
// authenticating proxy in front of the service is expected to set.
//
// Routes:
//
//	POST /v1/sessions                 create a session
//	GET  /v1/sessions                 list the caller's sessions
//	GET  /v1/sessions/{id}            fetch one session
//	POST /v1/sessions/{id}/script     advance the scripted opening
//	POST /v1/sessions/{id}/answers    submit a typed or pre-transcribed answer
//	POST /v1/sessions/{id}/complete   generate the report
//	POST /v1/sessions/{id}/end        end early and generate the report
//	GET  /v1/sessions/{id}/live       live audio WebSocket
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/live"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/report"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// UserHeader carries the caller's identity.
const UserHeader = "X-User-ID"

// maxBodyBytes bounds JSON request bodies; resumes and job descriptions are
// the largest fields.
const maxBodyBytes = 1 << 20

// Sessions is the interview service surface the API serves.
type Sessions interface {
	live.Sessions
	CreateSession(ctx context.Context, userID string, p interview.CreateParams) (*interview.Created, error)
	ListSessions(ctx context.Context, userID string) ([]*interview.Session, error)
	AdvanceScript(ctx context.Context, userID, id, reply string) (*interview.ScriptStep, error)
}

var _ Sessions = (*interview.Service)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithLiveOptions sets a function returning the options for every new live
// conductor. It is called per connection so configuration reloads apply to
// new connections.
func WithLiveOptions(fn func() []live.Option) Option {
	return func(s *Server) { s.liveOptions = fn }
}

// WithOriginPatterns sets the origins allowed to open the live WebSocket.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithHealth registers /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLevelInterval sets how often audio level readings are pushed to live
// clients. Default: 100ms.
func WithLevelInterval(d time.Duration) Option {
	return func(s *Server) { s.levelInterval = d }
}

// Server routes HTTP requests to the interview service.
type Server struct {
	sessions      Sessions
	stt           stt.Provider
	liveOptions   func() []live.Option
	origins       []string
	health        *health.Handler
	metrics       *observe.Metrics
	levelInterval time.Duration

	handler http.Handler
}

// New builds the server. transcriber is used by live connections.
func New(sessions Sessions, transcriber stt.Provider, opts ...Option) *Server {
	s := &Server{
		sessions:      sessions,
		stt:           transcriber,
		liveOptions:   func() []live.Option { return nil },
		levelInterval: 100 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.createSession)
	mux.HandleFunc("GET /v1/sessions", s.listSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.getSession)
	mux.HandleFunc("POST /v1/sessions/{id}/script", s.advanceScript)
	mux.HandleFunc("POST /v1/sessions/{id}/answers", s.submitAnswer)
	mux.HandleFunc("POST /v1/sessions/{id}/complete", s.completeSession)
	mux.HandleFunc("POST /v1/sessions/{id}/end", s.endSession)
	mux.HandleFunc("GET /v1/sessions/{id}/live", s.live)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	if s.health != nil {
		s.health.Register(mux)
	}
	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// reportResponse is the body of the completion endpoints.
type reportResponse struct {
	SessionID string         `json:"session_id"`
	Report    *report.Report `json:"report"`
}
