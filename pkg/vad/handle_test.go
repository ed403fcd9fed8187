package vad_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/vad"
)

type levelSource chan audio.Level

func (s levelSource) Levels() <-chan audio.Level { return s }

type recorder struct {
	mu     sync.Mutex
	events []vad.Event
}

func (r *recorder) add(e vad.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []vad.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return types(r.events)
}

func waitDone(t *testing.T, h *vad.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("detector did not stop")
	}
}

func TestStart_NilSource(t *testing.T) {
	t.Parallel()

	if _, err := vad.Start(context.Background(), nil, vad.DefaultConfig()); !errors.Is(err, vad.ErrAudioUnavailable) {
		t.Errorf("err = %v, want ErrAudioUnavailable", err)
	}
}

func TestStart_InvalidConfig(t *testing.T) {
	t.Parallel()

	src := make(levelSource)
	if _, err := vad.Start(context.Background(), src, vad.Config{Smoothing: 1.5}); err == nil {
		t.Error("expected config validation error")
	}
}

func TestHandle_StreamEndsBeforeCalibration(t *testing.T) {
	t.Parallel()

	src := make(levelSource, 4)
	src <- audio.Level{RMS: 0, At: 10 * time.Millisecond}
	close(src)

	h, err := vad.Start(context.Background(), src, vad.DefaultConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)
	if !errors.Is(h.Err(), vad.ErrAudioUnavailable) {
		t.Errorf("Err = %v, want ErrAudioUnavailable", h.Err())
	}
}

func TestHandle_Callbacks(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	s := new(signal).
		add(0, cfg.CalibrationWindow).
		add(0.5, 500*time.Millisecond).
		add(0, cfg.SilenceDelay+100*time.Millisecond)

	src := make(levelSource, len(s.levels))
	for _, l := range s.levels {
		src <- l
	}
	close(src)

	var (
		rec        recorder
		calibrated = make(chan float64, 1)
	)
	h, err := vad.Start(context.Background(), src, cfg,
		vad.WithOnSpeechStart(rec.add),
		vad.WithOnSpeechEnd(rec.add),
		vad.WithOnCalibrated(func(th float64) { calibrated <- th }),
	)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, h)

	if h.Err() != nil {
		t.Errorf("Err = %v, want nil", h.Err())
	}
	if got := rec.types(); !equalTypes(got, []vad.EventType{vad.SpeechStarted, vad.SpeechEnded}) {
		t.Errorf("events = %v", got)
	}
	select {
	case th := <-calibrated:
		if th != cfg.BaseThreshold {
			t.Errorf("calibrated threshold = %v, want %v", th, cfg.BaseThreshold)
		}
	default:
		t.Error("calibration callback not called")
	}
	if h.IsSpeaking() {
		t.Error("IsSpeaking true after speech ended")
	}
	if h.Threshold() != cfg.BaseThreshold {
		t.Errorf("Threshold = %v", h.Threshold())
	}
}

func TestHandle_ResetSpeaking(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	src := make(levelSource)
	started := make(chan struct{}, 1)
	var rec recorder
	h, err := vad.Start(context.Background(), src, cfg,
		vad.WithOnSpeechStart(func(e vad.Event) {
			rec.add(e)
			started <- struct{}{}
		}),
		vad.WithOnSpeechEnd(rec.add),
	)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.Stop()

	s := new(signal).add(0, cfg.CalibrationWindow).add(0.5, frame)
	for _, l := range s.levels {
		src <- l
	}
	<-started
	if !h.IsSpeaking() {
		t.Fatal("expected speaking after SpeechStarted")
	}
	if h.AudioLevel() <= h.Threshold() {
		t.Errorf("AudioLevel %v not above threshold %v", h.AudioLevel(), h.Threshold())
	}

	h.ResetSpeaking()
	if h.IsSpeaking() {
		t.Fatal("IsSpeaking true after ResetSpeaking")
	}

	tail := &signal{at: s.at}
	tail.add(0, 2*cfg.SilenceDelay)
	for _, l := range tail.levels {
		src <- l
	}
	close(src)
	waitDone(t, h)

	if got := rec.types(); !equalTypes(got, []vad.EventType{vad.SpeechStarted}) {
		t.Errorf("events = %v, want no SpeechEnded after reset", got)
	}
}

func TestHandle_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	h, err := vad.Start(context.Background(), make(levelSource), vad.DefaultConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.Stop()
	h.Stop()
	waitDone(t, h)
	if h.Err() != nil {
		t.Errorf("Err after Stop = %v, want nil", h.Err())
	}
}

func TestHandle_StalledStreamEndsSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stall   time.Duration
		wantEnd bool
	}{
		{name: "stall timeout ends speech", stall: 100 * time.Millisecond, wantEnd: true},
		{name: "zero disables the fallback", stall: 0, wantEnd: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := vad.DefaultConfig()
			cfg.StallTimeout = tt.stall
			src := make(levelSource)
			ended := make(chan vad.Event, 1)
			h, err := vad.Start(context.Background(), src, cfg,
				vad.WithOnSpeechEnd(func(e vad.Event) { ended <- e }),
			)
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer h.Stop()

			// Speech starts, then the client stops sending frames.
			s := new(signal).add(0, cfg.CalibrationWindow).add(0.5, 5*frame)
			for _, l := range s.levels {
				src <- l
			}

			select {
			case ev := <-ended:
				if !tt.wantEnd {
					t.Fatalf("unexpected SpeechEnded %+v", ev)
				}
				if ev.At < s.at {
					t.Errorf("At = %v, want at least the last frame time %v", ev.At, s.at)
				}
				if h.IsSpeaking() {
					t.Error("still speaking after stall")
				}
			case <-time.After(time.Second):
				if tt.wantEnd {
					t.Fatal("speech did not end after the stream stalled")
				}
				if !h.IsSpeaking() {
					t.Error("speech ended without the fallback")
				}
			}
		})
	}
}

func TestConfig_RejectsNegativeStallTimeout(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	cfg.StallTimeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("want error for negative stall_timeout")
	}
	if got := (vad.Config{}).WithDefaults().StallTimeout; got != 0 {
		t.Errorf("WithDefaults filled StallTimeout = %v, want 0", got)
	}
}
