package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
)

// DefaultJudgeTimeout bounds a single judge attempt.
const DefaultJudgeTimeout = 45 * time.Second

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithRetry overrides the judge retry policy. Default: one retry with a
// 500ms base delay. A nil Retryable retries timed-out and malformed
// judgments.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(a *Analyzer) { a.retry = cfg }
}

// WithCircuitBreaker replaces the default breaker guarding the judge.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(a *Analyzer) { a.breaker = cb }
}

// WithJudgeTimeout bounds each judge attempt. Zero disables the bound.
func WithJudgeTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithMetrics records analysis latency, failures and scores.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// Analyzer combines local speech metrics with a delegated judgment. It is
// safe for concurrent use.
type Analyzer struct {
	judge   Judge
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	metrics *observe.Metrics
}

// New returns an Analyzer using judge.
func New(judge Judge, opts ...Option) *Analyzer {
	a := &Analyzer{
		judge: judge,
		retry: resilience.RetryConfig{
			MaxRetries: 1,
			BaseDelay:  500 * time.Millisecond,
			Jitter:     100 * time.Millisecond,
		},
		timeout: DefaultJudgeTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.breaker == nil {
		a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "analysis"})
	}
	if a.retry.Retryable == nil {
		a.retry.Retryable = retryableJudgeError
	}
	return a
}

// retryableJudgeError retries everything except an open breaker and caller
// cancellation. A timed-out attempt is retried; the retry loop itself stops
// once the caller's context is done.
func retryableJudgeError(err error) bool {
	return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, context.Canceled)
}

// Analyze scores one answer. If no judgment can be produced it returns an
// error wrapping [ErrAnalysisUnavailable]; if ctx ends first it returns the
// context error instead.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "analysis.Analyze")
	defer span.End()

	if strings.TrimSpace(in.Transcript) == "" {
		return Result{}, fmt.Errorf("%w: empty transcript", ErrAnalysisUnavailable)
	}

	start := time.Now()
	var (
		metrics  SpeechMetrics
		judgment Judgment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics = ComputeMetrics(in.Transcript, in.Words)
		if in.Duration > 0 {
			metrics.DurationSeconds = round(in.Duration.Seconds(), 2)
		}
		return nil
	})
	g.Go(func() error {
		return resilience.Retry(gctx, a.retry, func(ctx context.Context) error {
			return a.breaker.Execute(func() error {
				j, err := a.judgeOnce(ctx, in)
				if err != nil {
					observe.Logger(ctx).Warn("answer judgment failed", "err", err)
					return err
				}
				judgment = j
				return nil
			})
		})
	})
	err := g.Wait()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("analysis: %w", ctxErr)
		}
		if a.metrics != nil {
			a.metrics.RecordAnalysis(ctx, time.Since(start), 0, err)
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			slog.Warn("analysis: judge circuit open", "breaker", a.breaker.Name())
		}
		return Result{}, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}

	res := Result{Judgment: normalize(judgment), Metrics: metrics}
	if a.metrics != nil {
		a.metrics.RecordAnalysis(ctx, time.Since(start), res.Score, nil)
	}
	return res, nil
}

func (a *Analyzer) judgeOnce(ctx context.Context, in Input) (Judgment, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.judge.Judge(ctx, in)
}
