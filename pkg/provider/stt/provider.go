// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The interview core transcribes one closed answer turn at a time: the live
// conductor captures PCM while the candidate speaks, then hands the whole take
// to Transcribe once. Providers may stream internally (Deepgram) or run a batch
// inference (whisper.cpp); callers only see the final Transcript with optional
// word-level timing, which feeds the speech metrics of the answer analysis.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyAudio is returned when a Request carries no PCM samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// KeywordBoost represents a keyword to boost in recognition, such as a company
// or technology name taken from the job description.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Kubernetes").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Request is one closed answer turn.
type Request struct {
	// Audio is 16-bit signed little-endian PCM.
	Audio []byte

	// SampleRate is the audio sample rate in Hz. Zero selects the provider
	// default.
	SampleRate int

	// Channels is the number of interleaved channels. Zero means mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string selects the provider default.
	Language string

	// Keywords are vocabulary hints. Providers without keyword support ignore
	// them.
	Keywords []KeywordBoost
}

// Transcript is the recognised text of one turn.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word timing when available. May be nil.
	Words []WordDetail
}

// WordDetail holds per-word metadata from providers that support it. Start
// and End are offsets from the beginning of the submitted audio.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises req.Audio and returns the final transcript. An
	// empty Text with a nil error means the provider heard no speech; callers
	// decide whether that is a failure.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
