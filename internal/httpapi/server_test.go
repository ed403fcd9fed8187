package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/httpapi"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/interview/memstore"
	"github.com/MrWong99/intervox/internal/live"
	"github.com/MrWong99/intervox/internal/questions"
	sttmock "github.com/MrWong99/intervox/pkg/provider/stt/mock"
	"github.com/MrWong99/intervox/pkg/vad"
)

// ─── Fakes ───────────────────────────────────────────────────────────────────

type planner struct{}

func (planner) Generate(_ context.Context, req questions.Request) ([]questions.Question, error) {
	qs := make([]questions.Question, req.Count)
	for i := range qs {
		qs[i] = questions.Question{Text: fmt.Sprintf("Question %d?", i+1), Type: questions.TypeTechnical}
	}
	return qs, nil
}

// analyzer scores every answer 70 and fails answers starting with "fail".
type analyzer struct{}

func (analyzer) Analyze(_ context.Context, in analysis.Input) (analysis.Result, error) {
	if strings.HasPrefix(in.Transcript, "fail") {
		return analysis.Result{}, fmt.Errorf("judge down: %w", analysis.ErrAnalysisUnavailable)
	}
	return analysis.Result{Judgment: analysis.Judgment{Score: 70, Specificity: 6, Relevance: 7, Impact: 5}}, nil
}

type testEnv struct {
	svc *interview.Service
	srv *httptest.Server
}

func newEnv(t *testing.T, stt *sttmock.Provider) *testEnv {
	t.Helper()
	svc := interview.NewService(memstore.New(), planner{}, analyzer{})
	api := httpapi.New(svc, stt,
		httpapi.WithHealth(health.New()),
		httpapi.WithLevelInterval(time.Hour),
		httpapi.WithLiveOptions(func() []live.Option {
			return []live.Option{live.WithVAD(vad.Config{
				CalibrationWindow: 100 * time.Millisecond,
				SilenceDelay:      200 * time.Millisecond,
			})}
		}),
	)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return &testEnv{svc: svc, srv: srv}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, user string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if user != "" {
		req.Header.Set(httpapi.UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type created struct {
	Session struct {
		ID        string `json:"id"`
		Phase     string `json:"phase"`
		Exchanges []struct {
			ID string `json:"id"`
		} `json:"exchanges"`
	} `json:"session"`
	Questions []questions.Question `json:"questions"`
	Voice     struct {
		Provider string `json:"provider"`
	} `json:"interviewer_voice"`
	Greeting string `json:"greeting"`
}

// create makes a session and walks it to its first question.
func (e *testEnv) create(t *testing.T, user string, minutes int) created {
	t.Helper()
	var c created
	code := e.do(t, "POST", "/v1/sessions", user, map[string]any{
		"company": "Acme", "role": "SRE", "duration_minutes": minutes,
	}, &c)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	for range 3 {
		if code := e.do(t, "POST", "/v1/sessions/"+c.Session.ID+"/script", user, nil, nil); code != http.StatusOK {
			t.Fatalf("script: status %d", code)
		}
	}
	return c
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestServer_SessionLifecycle(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &sttmock.Provider{})
	var c created
	if code := e.do(t, "POST", "/v1/sessions", "u1", map[string]any{
		"resume_context": "10 years of Go", "company": "Acme", "role": "SRE", "duration_minutes": 6,
	}, &c); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	if c.Session.Phase != "welcome" || len(c.Questions) != 2 || c.Voice.Provider == "" {
		t.Fatalf("created = %+v", c)
	}
	if !strings.Contains(c.Greeting, "Acme") {
		t.Errorf("greeting %q does not mention the company", c.Greeting)
	}

	var step struct {
		Phase    string `json:"phase"`
		Line     string `json:"line"`
		Question *struct {
			ID string `json:"id"`
		} `json:"question"`
	}
	for range 3 {
		e.do(t, "POST", "/v1/sessions/"+c.Session.ID+"/script", "u1", map[string]string{"reply": "Sounds good."}, &step)
	}
	if step.Phase != "questions" || step.Question == nil || step.Question.ID != c.Session.Exchanges[0].ID {
		t.Fatalf("script step = %+v", step)
	}

	var res struct {
		Analysis struct {
			Score int `json:"score"`
		} `json:"analysis"`
		SessionFinished bool `json:"session_finished"`
	}
	for i, ex := range c.Session.Exchanges {
		code := e.do(t, "POST", "/v1/sessions/"+c.Session.ID+"/answers", "u1", map[string]any{
			"exchange_id":      ex.ID,
			"transcript":       "We rolled back and wrote a postmortem.",
			"duration_seconds": 42.5,
			"words":            []map[string]any{{"word": "We", "start_ms": 0, "end_ms": 200}},
		}, &res)
		if code != http.StatusOK {
			t.Fatalf("answer %d: status %d", i, code)
		}
	}
	if !res.SessionFinished || res.Analysis.Score != 70 {
		t.Errorf("last answer = %+v", res)
	}

	var done struct {
		SessionID string `json:"session_id"`
		Report    struct {
			OverallScore int `json:"overall_score"`
			Statistics   struct {
				QuestionsAnswered int `json:"questions_answered"`
			} `json:"statistics"`
		} `json:"report"`
	}
	if code := e.do(t, "POST", "/v1/sessions/"+c.Session.ID+"/complete", "u1", nil, &done); code != http.StatusOK {
		t.Fatalf("complete: status %d", code)
	}
	if done.Report.OverallScore != 70 || done.Report.Statistics.QuestionsAnswered != 2 {
		t.Errorf("report = %+v", done.Report)
	}

	var list struct {
		Sessions []struct {
			ID           string `json:"id"`
			Status       string `json:"status"`
			OverallScore *int   `json:"overall_score"`
		} `json:"sessions"`
	}
	e.do(t, "GET", "/v1/sessions", "u1", nil, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].Status != "completed" || *list.Sessions[0].OverallScore != 70 {
		t.Errorf("list = %+v", list)
	}

	var sess struct {
		History []struct {
			Type string `json:"type"`
		} `json:"history"`
	}
	e.do(t, "GET", "/v1/sessions/"+c.Session.ID, "u1", nil, &sess)
	if n := len(sess.History); n == 0 || sess.History[n-1].Type != "ai_utterance" {
		t.Errorf("history tail = %+v", sess.History)
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &sttmock.Provider{})
	c := e.create(t, "u1", 6)
	fresh := created{}
	e.do(t, "POST", "/v1/sessions", "u1", map[string]any{"duration_minutes": 6}, &fresh)
	base := "/v1/sessions/" + c.Session.ID

	tests := []struct {
		name     string
		method   string
		path     string
		user     string
		body     any
		want     int
		wantCode string
	}{
		{"missing user", "GET", base, "", nil, http.StatusUnauthorized, "unauthenticated"},
		{"other user", "GET", base, "u2", nil, http.StatusForbidden, "access_denied"},
		{"unknown session", "GET", "/v1/sessions/nope", "u1", nil, http.StatusNotFound, "session_not_found"},
		{"malformed body", "POST", "/v1/sessions", "u1", "{", http.StatusBadRequest, "bad_request"},
		{"unknown field", "POST", "/v1/sessions", "u1", map[string]any{"minutes": 5}, http.StatusBadRequest, "bad_request"},
		{"missing exchange id", "POST", base + "/answers", "u1", map[string]any{"transcript": "x"}, http.StatusBadRequest, "bad_request"},
		{"unknown exchange", "POST", base + "/answers", "u1", map[string]any{"exchange_id": "nope", "transcript": "x"}, http.StatusNotFound, "exchange_not_found"},
		{"answer out of order", "POST", base + "/answers", "u1", map[string]any{"exchange_id": c.Session.Exchanges[1].ID, "transcript": "x"}, http.StatusConflict, "out_of_order"},
		{"empty answer", "POST", base + "/answers", "u1", map[string]any{"exchange_id": c.Session.Exchanges[0].ID, "transcript": "  "}, http.StatusUnprocessableEntity, "empty_answer"},
		{"analysis unavailable", "POST", base + "/answers", "u1", map[string]any{"exchange_id": c.Session.Exchanges[0].ID, "transcript": "fail please"}, http.StatusServiceUnavailable, "analysis_unavailable"},
		{"answer before questions", "POST", "/v1/sessions/" + fresh.Session.ID + "/answers", "u1", map[string]any{"exchange_id": fresh.Session.Exchanges[0].ID, "transcript": "x"}, http.StatusConflict, "out_of_order"},
		{"complete without answers", "POST", base + "/complete", "u1", nil, http.StatusUnprocessableEntity, "no_answers_to_report"},
		{"live for other user", "GET", base + "/live", "u2", nil, http.StatusForbidden, "access_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorResponse
			if got := e.do(t, tt.method, tt.path, tt.user, tt.body, &body); got != tt.want {
				t.Errorf("status = %d, want %d (%+v)", got, tt.want, body)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}

	// The failed analysis left the question open.
	var ok struct {
		SessionFinished bool `json:"session_finished"`
	}
	if code := e.do(t, "POST", base+"/answers", "u1", map[string]any{
		"exchange_id": c.Session.Exchanges[0].ID, "transcript": "A real answer.",
	}, &ok); code != http.StatusOK {
		t.Errorf("retry after analysis failure: status %d", code)
	}
}

func TestServer_EndEarlyAndIdempotentCompletion(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &sttmock.Provider{})
	c := e.create(t, "u1", 15)
	e.do(t, "POST", "/v1/sessions/"+c.Session.ID+"/answers", "u1", map[string]any{
		"exchange_id": c.Session.Exchanges[0].ID, "transcript": "Only one answer.",
	}, nil)

	var first, second json.RawMessage
	if code := e.do(t, "POST", "/v1/sessions/"+c.Session.ID+"/end", "u1", nil, &first); code != http.StatusOK {
		t.Fatalf("end: status %d", code)
	}
	if code := e.do(t, "POST", "/v1/sessions/"+c.Session.ID+"/complete", "u1", nil, &second); code != http.StatusOK {
		t.Fatalf("complete after end: status %d", code)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("reports differ:\n%s\n%s", first, second)
	}

	var body errorResponse
	if code := e.do(t, "GET", "/v1/sessions/"+c.Session.ID+"/live", "u1", nil, &body); code != http.StatusConflict {
		t.Errorf("live on completed session: status %d", code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &sttmock.Provider{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(e.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d", path, resp.StatusCode)
		}
	}
}
