package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/interview/memstore"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/questions"
	llmmock "github.com/MrWong99/intervox/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/intervox/pkg/provider/stt/mock"
)

type fixedAnalyzer struct{}

func (fixedAnalyzer) Analyze(context.Context, analysis.Input) (analysis.Result, error) {
	return analysis.Result{}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

// testProviders returns a failing reasoning mock, so questions come from the
// built-in bank.
func testProviders() *app.Providers {
	return &app.Providers{
		LLM:     &llmmock.Provider{CompleteErr: errors.New("offline")},
		STT:     &sttmock.Provider{},
		LLMName: "mock",
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t)), app.WithAnalyzer(fixedAnalyzer{})}, opts...)
	a, err := app.New(context.Background(), cfg, testProviders(), opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func createSession(t *testing.T, url string, body string) (int, []questions.Question) {
	t.Helper()
	req, _ := http.NewRequest("POST", url+"/v1/sessions", strings.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/sessions: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Questions []questions.Question `json:"questions"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out.Questions
}

func TestNew_RequiredProviders(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		providers *app.Providers
		opts      []app.Option
		wantErr   bool
	}{
		{
			name:      "all present",
			providers: testProviders(),
		},
		{
			name:      "missing stt",
			providers: &app.Providers{LLM: &llmmock.Provider{}},
			wantErr:   true,
		},
		{
			name:      "missing llm",
			providers: &app.Providers{STT: &sttmock.Provider{}},
			wantErr:   true,
		},
		{
			name:      "missing llm with injected planner and analyzer",
			providers: &app.Providers{STT: &sttmock.Provider{}},
			opts: []app.Option{
				app.WithPlanner(questions.NewLLMGenerator(&llmmock.Provider{CompleteErr: errors.New("x")}, "mock")),
				app.WithAnalyzer(fixedAnalyzer{}),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := append([]app.Option{app.WithMetrics(testMetrics(t)), app.WithStore(memstore.New())}, tt.opts...)
			a, err := app.New(context.Background(), testConfig(), tt.providers, opts...)
			if tt.wantErr {
				if !errors.Is(err, app.ErrMissingProvider) {
					t.Fatalf("err = %v, want ErrMissingProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			_ = a.Shutdown(context.Background())
		})
	}
}

func TestApp_ServesAPI(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	status, qs := createSession(t, srv.URL, `{"company":"Acme","duration_minutes":9}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}
	if len(qs) != 3 {
		t.Errorf("questions = %d, want 3 for 9 minutes", len(qs))
	}

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz = %d, want 200", resp.StatusCode)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()
	level := new(slog.LevelVar)
	old := testConfig()
	a := newApp(t, old, app.WithLogLevel(level))
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Interview.MinutesPerQuestion = 2
	updated.Interview.InterviewerName = "Morgan"
	updated.Storage.PostgresDSN = "postgres://ignored/until-restart"
	a.ApplyConfig(old, updated)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	if got := a.Service().Config().InterviewerName; got != "Morgan" {
		t.Errorf("interviewer = %q, want Morgan", got)
	}
	if _, qs := createSession(t, srv.URL, `{"duration_minutes":9}`); len(qs) != 4 {
		t.Errorf("questions after reload = %d, want 4", len(qs))
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}
