// Package app wires the Intervox subsystems into a running server.
//
// New builds the session store, question planner, answer analyzer, interview
// service and HTTP API from a [config.Config] and the providers created by
// main. Run serves HTTP until the context ends, [App.ApplyConfig] hot-applies
// reloaded settings and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithAnalyzer, ...). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/intervox/internal/analysis"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/httpapi"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/interview/memstore"
	"github.com/MrWong99/intervox/internal/interview/postgres"
	"github.com/MrWong99/intervox/internal/live"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/questions"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/provider/embeddings"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/vad"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	Embeddings embeddings.Provider

	// LLMName labels reasoning provider metrics.
	LLMName string
}

// ErrMissingProvider is returned by [New] when a required provider slot is
// empty.
var ErrMissingProvider = errors.New("app: required provider not configured")

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store    interview.Store
	planner  questions.Generator
	analyzer interview.Analyzer
	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	service *interview.Service
	api     *httpapi.Server
	server  *http.Server

	// connCtx parents every request context. It is cancelled after the HTTP
	// server stops so hijacked live connections end too.
	connCtx    context.Context
	cancelConn context.CancelFunc

	// vadCfg is read by every new live connection.
	vadCfg atomic.Pointer[vad.Config]

	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a session store instead of creating one from config.
func WithStore(s interview.Store) Option {
	return func(a *App) { a.store = s }
}

// WithPlanner injects a question generator instead of the LLM planner.
func WithPlanner(g questions.Generator) Option {
	return func(a *App) { a.planner = g }
}

// WithAnalyzer injects an answer analyzer instead of the LLM judge.
func WithAnalyzer(an interview.Analyzer) Option {
	return func(a *App) { a.analyzer = an }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel sets the level variable that [App.ApplyConfig] updates when
// the configured log level changes.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. A reasoning provider
// is required unless both a planner and an analyzer are injected; a
// speech-to-text provider is always required.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.logLevel == nil {
		a.logLevel = new(slog.LevelVar)
		a.logLevel.Set(cfg.Server.LogLevel.Level())
	}
	vadCfg := cfg.VAD
	a.vadCfg.Store(&vadCfg)

	if providers.STT == nil {
		return nil, fmt.Errorf("%w: stt", ErrMissingProvider)
	}
	if providers.LLM == nil && (a.planner == nil || a.analyzer == nil) {
		return nil, fmt.Errorf("%w: llm", ErrMissingProvider)
	}

	if err := a.initStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.initPlanner()
	a.initAnalyzer()

	a.service = interview.NewService(a.store, a.planner, a.analyzer,
		interview.WithConfig(cfg.Interview),
		interview.WithMetrics(a.metrics),
	)
	a.checkers = append(a.checkers,
		health.Configured("stt", providers.STT),
		health.Configured("llm", providers.LLM),
	)
	a.api = httpapi.New(a.service, providers.STT,
		httpapi.WithLiveOptions(a.liveOptions),
		httpapi.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		httpapi.WithHealth(health.New(a.checkers...)),
		httpapi.WithMetrics(a.metrics),
	)
	a.connCtx, a.cancelConn = context.WithCancel(context.WithoutCancel(ctx))
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.api,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return a.connCtx },
	}
	return a, nil
}

// initStore connects to PostgreSQL when a DSN is configured and falls back to
// the in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
			pg, err := postgres.NewStore(ctx, dsn, a.cfg.Storage.EmbeddingDimensions)
			if err != nil {
				return fmt.Errorf("app: connect session store: %w", err)
			}
			a.store = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			slog.Info("session store ready", "kind", "postgres")
		} else {
			a.store = memstore.New()
			slog.Info("session store ready", "kind", "memory")
		}
	}
	if p, ok := a.store.(health.Pinger); ok {
		a.checkers = append(a.checkers, health.Ping("database", p))
	}
	return nil
}

// initPlanner builds the LLM planner, wrapped in the de-duplicator when an
// embeddings provider is configured and the store keeps question history.
func (a *App) initPlanner() {
	if a.planner != nil {
		return
	}
	var g questions.Generator = questions.NewLLMGenerator(a.providers.LLM, a.providers.LLMName,
		questions.WithGeneratorMetrics(a.metrics))

	history, ok := a.store.(questions.History)
	if a.providers.Embeddings != nil && ok {
		g = questions.NewDeduplicator(g, a.providers.Embeddings, history)
		slog.Info("question de-duplication enabled")
	}
	a.planner = g
}

func (a *App) initAnalyzer() {
	if a.analyzer != nil {
		return
	}
	ac := a.cfg.Analysis
	judge := analysis.NewLLMJudge(a.providers.LLM, a.providers.LLMName,
		analysis.WithJudgeTemperature(ac.Temperature),
		analysis.WithJudgeMaxTokens(ac.MaxTokens),
		analysis.WithJudgeMetrics(a.metrics),
	)
	a.analyzer = analysis.New(judge,
		analysis.WithRetry(resilience.RetryConfig{
			MaxRetries: uint64(ac.MaxRetries),
			BaseDelay:  500 * time.Millisecond,
			Jitter:     100 * time.Millisecond,
		}),
		analysis.WithJudgeTimeout(ac.JudgeTimeout),
		analysis.WithMetrics(a.metrics),
	)
}

// liveOptions is called for every new live connection.
func (a *App) liveOptions() []live.Option {
	return []live.Option{live.WithVAD(*a.vadCfg.Load())}
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.api }

// Service returns the interview service.
func (a *App) Service() *interview.Service { return a.service }

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig hot-applies the parts of updated that can change at runtime:
// the log level, VAD tuning for new live connections and interview settings
// for new sessions. Other changes are logged and ignored until restart.
func (a *App) ApplyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)
	if d.LogLevelChanged {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADChanged {
		vadCfg := updated.VAD
		a.vadCfg.Store(&vadCfg)
		slog.Info("vad settings reloaded", "silence_delay", vadCfg.SilenceDelay, "stall_timeout", vadCfg.StallTimeout, "base_threshold", vadCfg.BaseThreshold)
	}
	if d.InterviewChanged {
		a.service.SetConfig(updated.Interview)
		slog.Info("interview settings reloaded")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the server fails. It does not
// shut the server down; call [App.Shutdown] afterwards.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		errCh <- err
	}()
	slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight requests and live
// connections up to ctx's deadline, then releases the store. Only the first
// call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if serr := a.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("app: http shutdown: %w", serr)
			_ = a.server.Close()
		}
		// Hijacked WebSocket connections are not tracked by Shutdown.
		a.cancelConn()
		if cerr := a.close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	})
	return err
}

func (a *App) close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
