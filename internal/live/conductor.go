// Package live drives the spoken part of an interview.
//
// A [Conductor] sits between one candidate's microphone stream and the
// interview [interview.Service]. It runs the audio sampler and the voice
// activity detector for the whole connection, captures one answer turn at a
// time, transcribes it and submits the transcript as the answer to the
// current question. Everything the candidate should see (speech activity,
// transcripts, analyses, errors) is reported through a single event
// callback.
//
// A turn is opened with [Conductor.StartRecording] and closes on the first of:
// the detector reporting the end of speech, [Conductor.StopRecording], the
// per-question time budget running out, or the audio stream ending.
package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/report"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/internal/transcript"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/vad"
)

// Sentinel errors.
var (
	// ErrTurnInFlight is returned when a recording is requested while the
	// previous turn is still recording, transcribing or being analysed.
	ErrTurnInFlight = errors.New("live: a turn is already in flight")

	// ErrNoTurn is returned by StopRecording when nothing is being recorded.
	ErrNoTurn = errors.New("live: no turn is recording")

	// ErrNoOpenQuestion is returned when the session is not waiting for an
	// answer.
	ErrNoOpenQuestion = errors.New("live: no question is open")

	// ErrTranscriptionFailed is returned when a turn produced no usable
	// transcript after one retry. The candidate may record the answer again.
	ErrTranscriptionFailed = errors.New("live: transcription failed")

	// ErrNotRunning is returned when audio is not flowing yet.
	ErrNotRunning = errors.New("live: audio stream not running")

	// ErrEnded is returned once the conductor has been ended.
	ErrEnded = errors.New("live: session ended")
)

// Sessions is the part of [interview.Service] the conductor drives.
type Sessions interface {
	GetSession(ctx context.Context, userID, id string) (*interview.Session, error)
	SubmitAnswer(ctx context.Context, userID, id string, a interview.Answer) (*interview.SubmitResult, error)
	CompleteSession(ctx context.Context, userID, id string) (*report.Report, error)
	EndSession(ctx context.Context, userID, id string) (*report.Report, error)
}

var _ Sessions = (*interview.Service)(nil)

// StopReason says why a recording turn closed.
type StopReason string

const (
	StopSpeechEnded StopReason = "speech_ended"
	StopRequested   StopReason = "stopped"
	StopTimeout     StopReason = "timeout"
	StopStreamEnded StopReason = "stream_ended"
	StopCancelled   StopReason = "cancelled"
)

// Option configures a [Conductor].
type Option func(*Conductor)

// WithVAD sets the detector tuning. Default: [vad.DefaultConfig].
func WithVAD(cfg vad.Config) Option {
	return func(c *Conductor) { c.vadCfg = cfg }
}

// WithLanguage sets the recognition language passed to the transcriber.
func WithLanguage(lang string) Option {
	return func(c *Conductor) { c.language = lang }
}

// WithTurnTimeout overrides the per-question budget derived from the session.
func WithTurnTimeout(d time.Duration) Option {
	return func(c *Conductor) { c.turnTimeout = d }
}

// WithTranscribeRetry sets the retry policy for transcription. Default: one
// retry after 200ms.
func WithTranscribeRetry(cfg resilience.RetryConfig) Option {
	return func(c *Conductor) { c.retry = cfg }
}

// WithCorrector sets the transcript corrector applied before an answer is
// submitted. Nil disables correction. Default: [transcript.NewCorrector].
func WithCorrector(tc *transcript.Corrector) Option {
	return func(c *Conductor) { c.corrector = tc }
}

// WithOnEvent registers the event callback. Calls are serialised and made
// without the conductor's state lock held, so fn may read [Conductor.Status];
// it must not start, stop or end turns.
func WithOnEvent(fn func(Event)) Option {
	return func(c *Conductor) { c.onEvent = fn }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Conductor) { c.metrics = m }
}

// Conductor runs the live audio side of one interview session.
//
// All methods are safe for concurrent use.
type Conductor struct {
	sessions  Sessions
	stt       stt.Provider
	userID    string
	sessionID string

	vadCfg      vad.Config
	language    string
	turnTimeout time.Duration
	retry       resilience.RetryConfig
	corrector   *transcript.Corrector
	metrics     *observe.Metrics

	// emitMu serialises onEvent and is always taken before mu. onEvent is
	// never called with mu held.
	emitMu  sync.Mutex
	onEvent func(Event)

	rec audio.Recorder

	// ctx scopes transcription and submission; End cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handle  *vad.Handle
	current *recording
	busy    bool
	ended   bool
}

type recording struct {
	exchangeID string
	index      int
	keywords   []stt.KeywordBoost
	company    string
	timer      *time.Timer
}

// New returns a conductor for the given session. Call [Conductor.Run] with
// the candidate's audio to start it.
func New(sessions Sessions, transcriber stt.Provider, userID, sessionID string, opts ...Option) *Conductor {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conductor{
		sessions:  sessions,
		stt:       transcriber,
		userID:    userID,
		sessionID: sessionID,
		vadCfg:    vad.DefaultConfig(),
		retry:     resilience.RetryConfig{MaxRetries: 1},
		corrector: transcript.NewCorrector(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Run samples src and runs voice activity detection until the stream ends,
// ctx is cancelled or [Conductor.End] is called. A turn still recording when
// the stream ends is closed and processed before Run returns.
//
// Run returns [vad.ErrAudioUnavailable] when src is nil or the stream ended
// before the noise floor could be measured.
func (c *Conductor) Run(ctx context.Context, src audio.Source) error {
	if src == nil {
		c.emit(ErrorEvent(vad.ErrAudioUnavailable))
		return fmt.Errorf("live: run: %w", vad.ErrAudioUnavailable)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	sampler := audio.NewSampler(src, audio.WithFrameTap(c.rec.Write))
	h, err := vad.Start(ctx, sampler, c.vadCfg,
		vad.WithOnSpeechStart(c.speechStarted),
		vad.WithOnSpeechEnd(c.speechEnded),
		vad.WithOnCalibrated(c.calibrated),
	)
	if err != nil {
		return fmt.Errorf("live: start detector: %w", err)
	}

	c.mu.Lock()
	switch {
	case c.ended:
		c.mu.Unlock()
		h.Stop()
		return ErrEnded
	case c.handle != nil:
		c.mu.Unlock()
		h.Stop()
		return errors.New("live: run: already running")
	}
	c.handle = h
	c.mu.Unlock()

	c.metrics.LiveConnections.Add(ctx, 1)
	defer c.metrics.LiveConnections.Add(context.Background(), -1)

	var wg sync.WaitGroup
	wg.Go(func() { sampler.Run(ctx) })
	<-h.Done()
	cancel()
	wg.Wait()

	c.closeTurn(StopStreamEnded)
	c.wg.Wait()

	if err := h.Err(); err != nil {
		c.emit(ErrorEvent(err))
		return fmt.Errorf("live: run: %w", err)
	}
	return nil
}

// Status is a snapshot of the detector and the turn state.
type Status struct {
	Calibrated bool    `json:"calibrated"`
	Speaking   bool    `json:"speaking"`
	Level      float64 `json:"level"`
	Threshold  float64 `json:"threshold"`
	Recording  bool    `json:"recording"`
	Busy       bool    `json:"busy"`
}

// Status returns the current detector readings. It is zero before Run has
// started the detector.
func (c *Conductor) Status() Status {
	c.mu.Lock()
	h, st := c.handle, Status{Recording: c.current != nil, Busy: c.busy}
	c.mu.Unlock()
	if h == nil {
		return st
	}
	st.Calibrated = h.Calibrated()
	st.Speaking = h.IsSpeaking()
	st.Level = h.AudioLevel()
	st.Threshold = h.Threshold()
	return st
}

// ─── Turns ───────────────────────────────────────────────────────────────────

// StartRecording opens a recording turn for the current question. Only one
// turn may be in flight at a time: a second call before the previous turn's
// answer has been recorded fails with [ErrTurnInFlight].
func (c *Conductor) StartRecording(ctx context.Context) error {
	if err := c.startable(); err != nil {
		return err
	}
	sess, err := c.sessions.GetSession(ctx, c.userID, c.sessionID)
	if err != nil {
		return fmt.Errorf("live: start recording: %w", err)
	}
	if sess.Status == interview.StatusCompleted {
		return fmt.Errorf("live: start recording: %w", interview.ErrSessionCompleted)
	}
	ex, ok := sess.Current()
	if !ok {
		return ErrNoOpenQuestion
	}
	budget := c.turnTimeout
	if budget <= 0 {
		budget = sess.QuestionBudget()
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	if err := c.startableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	r := &recording{
		exchangeID: ex.ID,
		index:      ex.Index,
		keywords:   keywords(sess.Context),
		company:    strings.TrimSpace(sess.Context.Company),
	}
	r.timer = time.AfterFunc(budget, func() { c.timeout(r) })
	c.current = r
	c.rec.Arm()
	c.mu.Unlock()

	c.notify(Event{Type: EventRecordingStarted, ExchangeID: ex.ID, QuestionIndex: intPtr(ex.Index), BudgetMillis: budget.Milliseconds()})
	return nil
}

func (c *Conductor) startable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startableLocked()
}

func (c *Conductor) startableLocked() error {
	switch {
	case c.ended:
		return ErrEnded
	case c.handle == nil:
		return ErrNotRunning
	case c.current != nil || c.busy:
		return ErrTurnInFlight
	}
	select {
	case <-c.handle.Done():
		return fmt.Errorf("live: start recording: %w", vad.ErrAudioUnavailable)
	default:
	}
	return nil
}

// StopRecording closes the open turn and starts processing it.
func (c *Conductor) StopRecording() error {
	if !c.closeTurn(StopRequested) {
		return ErrNoTurn
	}
	return nil
}

func (c *Conductor) timeout(r *recording) {
	c.mu.Lock()
	same := c.current == r
	h := c.handle
	c.mu.Unlock()
	if !same {
		return
	}
	// Whatever was said so far is the answer; the detector must not carry
	// the open speech segment into the next turn.
	if h != nil {
		h.ResetSpeaking()
	}
	c.closeTurn(StopTimeout)
}

// closeTurn ends the open recording and hands the captured audio to a
// background worker. It reports whether a turn was open.
func (c *Conductor) closeTurn(reason StopReason) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	r := c.current
	if r == nil {
		c.mu.Unlock()
		return false
	}
	c.current = nil
	r.timer.Stop()
	c.busy = true
	pcm, rate, channels := c.rec.Take()
	c.mu.Unlock()

	c.notify(Event{Type: EventRecordingStopped, ExchangeID: r.exchangeID, QuestionIndex: intPtr(r.index), Reason: reason})
	c.wg.Go(func() {
		defer func() {
			c.mu.Lock()
			c.busy = false
			c.mu.Unlock()
		}()
		c.process(r, pcm, audio.Format{SampleRate: rate, Channels: channels})
	})
	return true
}

// process transcribes one closed turn and submits it as the answer.
func (c *Conductor) process(r *recording, pcm []byte, format audio.Format) {
	ctx, span := observe.StartSpan(c.ctx, "live.process")
	defer span.End()
	log := observe.Logger(ctx).With("session_id", c.sessionID, "question_index", r.index)

	tr, speech, err := c.transcribe(ctx, r, pcm, format)
	if err != nil {
		if c.ctx.Err() == nil {
			log.Warn("transcription failed", "err", err)
			c.emit(ErrorEvent(err))
		}
		return
	}
	if c.corrector != nil && r.company != "" {
		var fixes []transcript.Correction
		tr.Text, fixes = c.corrector.Correct(tr.Text, []string{r.company})
		for _, f := range fixes {
			log.Debug("transcript corrected", "original", f.Original, "corrected", f.Corrected, "method", f.Method, "confidence", f.Confidence)
		}
	}
	c.emit(Event{Type: EventTranscript, ExchangeID: r.exchangeID, QuestionIndex: intPtr(r.index), Transcript: tr.Text})

	res, err := c.sessions.SubmitAnswer(ctx, c.userID, c.sessionID, interview.Answer{
		ExchangeID: r.exchangeID,
		Transcript: tr.Text,
		Words:      tr.Words,
		Duration:   speech,
	})
	if err != nil {
		if c.ctx.Err() == nil {
			log.Warn("answer not recorded", "err", err)
			c.emit(ErrorEvent(err))
		}
		return
	}
	c.emit(Event{Type: EventAnswer, ExchangeID: r.exchangeID, QuestionIndex: intPtr(r.index), Result: res})

	if res.SessionFinished {
		rep, err := c.sessions.CompleteSession(ctx, c.userID, c.sessionID)
		if err != nil {
			log.Warn("completing finished session failed", "err", err)
			c.emit(ErrorEvent(err))
			return
		}
		c.emit(Event{Type: EventCompleted, Report: rep})
	}
}

var errEmptyTranscript = errors.New("empty transcript")

// transcribe converts the take to the speech format and transcribes it,
// retrying once when the result is empty or the provider fails.
func (c *Conductor) transcribe(ctx context.Context, r *recording, pcm []byte, format audio.Format) (stt.Transcript, time.Duration, error) {
	if len(pcm) == 0 {
		return stt.Transcript{}, 0, fmt.Errorf("%w: %w", ErrTranscriptionFailed, stt.ErrEmptyAudio)
	}
	mono, err := audio.ToMono(pcm, format, audio.SpeechFormat.SampleRate)
	if err != nil {
		return stt.Transcript{}, 0, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	speech := audio.AudioFrame{Data: mono, SampleRate: audio.SpeechFormat.SampleRate, Channels: 1}.Duration()

	req := stt.Request{
		Audio:      mono,
		SampleRate: audio.SpeechFormat.SampleRate,
		Channels:   1,
		Language:   c.language,
		Keywords:   r.keywords,
	}
	retry := c.retry
	if retry.Retryable == nil {
		retry.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, stt.ErrEmptyAudio)
		}
	}

	var tr stt.Transcript
	err = resilience.Retry(ctx, retry, func(ctx context.Context) error {
		start := time.Now()
		out, err := c.stt.Transcribe(ctx, req)
		c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			return err
		}
		if strings.TrimSpace(out.Text) == "" {
			return errEmptyTranscript
		}
		out.Text = strings.TrimSpace(out.Text)
		tr = out
		return nil
	})
	if err != nil {
		return stt.Transcript{}, 0, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	return tr, speech, nil
}

// ─── Ending ──────────────────────────────────────────────────────────────────

// End stops the live session: the open turn is discarded, in-flight
// transcription and analysis are cancelled without waiting for them, audio
// capture stops and the interview is completed with the answers recorded so
// far. End may be called more than once; later calls return the same report.
func (c *Conductor) End(ctx context.Context) (*report.Report, error) {
	c.emitMu.Lock()
	c.mu.Lock()
	c.ended = true
	r := c.current
	c.current = nil
	if r != nil {
		r.timer.Stop()
		c.rec.Take()
	}
	c.mu.Unlock()
	c.cancel()

	if r != nil {
		c.notify(Event{Type: EventRecordingStopped, ExchangeID: r.exchangeID, QuestionIndex: intPtr(r.index), Reason: StopCancelled})
	}
	c.emitMu.Unlock()

	rep, err := c.sessions.EndSession(ctx, c.userID, c.sessionID)
	if err != nil {
		c.emit(ErrorEvent(err))
		return nil, fmt.Errorf("live: end: %w", err)
	}
	c.emit(Event{Type: EventCompleted, Report: rep})
	return rep, nil
}

// Wait blocks until background turn processing has finished.
func (c *Conductor) Wait() { c.wg.Wait() }

// ─── Detector callbacks ──────────────────────────────────────────────────────

func (c *Conductor) calibrated(threshold float64) {
	c.emit(Event{Type: EventCalibrated, Threshold: threshold})
}

func (c *Conductor) speechStarted(ev vad.Event) {
	c.metrics.VADSpeechSegments.Add(c.ctx, 1)
	c.emit(Event{Type: EventSpeechStarted, Level: ev.Level, StreamMillis: ev.At.Milliseconds()})
}

func (c *Conductor) speechEnded(ev vad.Event) {
	c.emit(Event{Type: EventSpeechEnded, Level: ev.Level, StreamMillis: ev.At.Milliseconds()})
	c.closeTurn(StopSpeechEnded)
}

// emit reports ev to the callback. It must not be called with mu held.
func (c *Conductor) emit(ev Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.notify(ev)
}

// notify calls the callback directly; the caller holds emitMu but not mu.
func (c *Conductor) notify(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// keywords boosts the company name and role so the transcriber spells them
// the way the job context does.
func keywords(ctx interview.Context) []stt.KeywordBoost {
	var kw []stt.KeywordBoost
	for _, s := range []string{ctx.Company, ctx.Role} {
		if s = strings.TrimSpace(s); s != "" {
			kw = append(kw, stt.KeywordBoost{Keyword: s, Boost: 2})
		}
	}
	return kw
}

func intPtr(v int) *int { return &v }
