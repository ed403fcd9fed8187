package vad

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

// AmplitudeSource delivers frame-level RMS samples, e.g. an [audio.Sampler].
// The channel is closed when the underlying stream ends.
type AmplitudeSource interface {
	Levels() <-chan audio.Level
}

// Option configures a [Handle].
type Option func(*Handle)

// WithOnSpeechStart registers the callback fired on [SpeechStarted].
func WithOnSpeechStart(fn func(Event)) Option {
	return func(h *Handle) { h.onStart = fn }
}

// WithOnSpeechEnd registers the callback fired on [SpeechEnded].
func WithOnSpeechEnd(fn func(Event)) Option {
	return func(h *Handle) { h.onEnd = fn }
}

// WithOnCalibrated registers a callback receiving the threshold once the
// noise floor has been measured.
func WithOnCalibrated(fn func(threshold float64)) Option {
	return func(h *Handle) { h.onCalibrated = fn }
}

// Handle is a running detector bound to one level stream.
//
// Callbacks run on the detection goroutine in stream order and must not call
// [Handle.Stop]. The accessor methods are safe for concurrent use.
type Handle struct {
	mu  sync.Mutex
	det *Detector
	err error

	stallTimeout time.Duration

	onStart      func(Event)
	onEnd        func(Event)
	onCalibrated func(float64)

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start validates cfg (after applying defaults) and begins detection on src.
// It returns [ErrAudioUnavailable] when src is nil. Detection continues until
// [Handle.Stop] is called, ctx is cancelled, or the stream ends.
func Start(ctx context.Context, src AmplitudeSource, cfg Config, opts ...Option) (*Handle, error) {
	if src == nil {
		return nil, ErrAudioUnavailable
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	levels := src.Levels()
	if levels == nil {
		return nil, ErrAudioUnavailable
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		det:          NewDetector(cfg),
		stallTimeout: cfg.StallTimeout,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	go h.run(ctx, levels)
	return h, nil
}

func (h *Handle) run(ctx context.Context, levels <-chan audio.Level) {
	defer close(h.done)

	// stall fires when an open speech segment receives no frame for
	// stallTimeout; it is stopped whenever nobody is speaking.
	stall := time.NewTimer(time.Hour)
	stall.Stop()
	defer stall.Stop()
	var (
		lastAt   time.Duration
		lastSeen time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stall.C:
			h.mu.Lock()
			ev, fired := h.det.EndSpeech(lastAt + time.Since(lastSeen))
			h.mu.Unlock()
			if fired {
				h.fire(ev)
			}
		case l, ok := <-levels:
			if !ok {
				h.mu.Lock()
				if !h.det.Calibrated() {
					h.err = ErrAudioUnavailable
				}
				h.mu.Unlock()
				return
			}
			lastAt, lastSeen = l.At, time.Now()

			h.mu.Lock()
			wasCalibrated := h.det.Calibrated()
			ev, fired := h.det.Process(l)
			justCalibrated := !wasCalibrated && h.det.Calibrated()
			threshold := h.det.Threshold()
			speaking := h.det.Speaking()
			h.mu.Unlock()

			if h.stallTimeout > 0 {
				if speaking {
					stall.Reset(h.stallTimeout)
				} else {
					stall.Stop()
				}
			}
			if justCalibrated && h.onCalibrated != nil {
				h.onCalibrated(threshold)
			}
			if fired {
				h.fire(ev)
			}
		}
	}
}

func (h *Handle) fire(ev Event) {
	switch ev.Type {
	case SpeechStarted:
		if h.onStart != nil {
			h.onStart(ev)
		}
	case SpeechEnded:
		if h.onEnd != nil {
			h.onEnd(ev)
		}
	}
}

// IsSpeaking reports the current speaking flag.
func (h *Handle) IsSpeaking() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.det.Speaking()
}

// AudioLevel returns the smoothed RMS envelope for display.
func (h *Handle) AudioLevel() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.det.Level()
}

// Threshold returns the active detection threshold for display.
func (h *Handle) Threshold() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.det.Threshold()
}

// Calibrated reports whether the noise floor has been measured.
func (h *Handle) Calibrated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.det.Calibrated()
}

// ResetSpeaking forces the speaking flag false and cancels any pending
// silence countdown. No [SpeechEnded] is emitted.
func (h *Handle) ResetSpeaking() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.det.ResetSpeaking()
}

// Done is closed when detection has stopped for any reason.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns [ErrAudioUnavailable] if the stream ended before calibration
// completed. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Stop ends detection and waits for the detection goroutine to exit. Calling
// Stop more than once is safe.
func (h *Handle) Stop() {
	h.stopOnce.Do(h.cancel)
	<-h.done
}
