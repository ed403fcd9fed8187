package audio

import (
	"context"
	"time"
)

const defaultLevelBuffer = 64

// SamplerOption configures a [Sampler].
type SamplerOption func(*Sampler)

// WithFrameTap registers fn to receive every frame before its level is
// published. fn runs on the sampler goroutine and must not block.
func WithFrameTap(fn func(AudioFrame)) SamplerOption {
	return func(s *Sampler) { s.tap = fn }
}

// WithLevelBuffer sets the capacity of the level channel. Default: 64.
func WithLevelBuffer(n int) SamplerOption {
	return func(s *Sampler) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

// Sampler converts a [Source] of PCM frames into a stream of RMS [Level]
// samples. Stream time is derived from the cumulative frame durations, so
// levels carry the audio clock rather than wall-clock arrival times.
//
// A Sampler is single-use: call [Sampler.Run] once.
type Sampler struct {
	src    Source
	tap    func(AudioFrame)
	buffer int
	levels chan Level
}

// NewSampler returns a sampler reading from src.
func NewSampler(src Source, opts ...SamplerOption) *Sampler {
	s := &Sampler{src: src, buffer: defaultLevelBuffer}
	for _, o := range opts {
		o(s)
	}
	s.levels = make(chan Level, s.buffer)
	return s
}

// Levels returns the channel of computed levels. It is closed when Run
// returns.
func (s *Sampler) Levels() <-chan Level { return s.levels }

// Run reads frames until the source closes or ctx is cancelled. It closes
// the level channel before returning.
func (s *Sampler) Run(ctx context.Context) {
	defer close(s.levels)
	if s.src == nil {
		return
	}
	frames := s.src.Frames()

	var at time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if s.tap != nil {
				s.tap(f)
			}
			end := at + f.Duration()
			if ts := f.Timestamp + f.Duration(); f.Timestamp > 0 && ts > end {
				end = ts
			}
			at = end

			select {
			case s.levels <- Level{RMS: RMS(f), At: at}:
			case <-ctx.Done():
				return
			}
		}
	}
}
