// Package audio carries the candidate's microphone signal from the transport
// into the interview core.
//
// Audio arrives as [AudioFrame] values of 16-bit signed little-endian PCM,
// already decoded by the client. A [Sampler] reduces each frame to a single
// normalised RMS [Level] that the voice activity detector consumes, and can
// tap the raw frames so the current turn can be captured for transcription.
package audio

import "time"

// AudioFrame is a single chunk of linear PCM as delivered by the client.
type AudioFrame struct {
	// Data is 16-bit signed little-endian PCM, channel-interleaved.
	Data []byte

	// SampleRate in Hz (browsers commonly deliver 16000 or 48000).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	// Zero when the client does not report capture time.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame. It returns 0 when the
// format fields are unset.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Level is the instantaneous loudness of one frame.
type Level struct {
	// RMS is the root-mean-square amplitude normalised to [0, 1].
	RMS float64

	// At is the stream time at the end of the frame the level was computed
	// from. It is monotonically non-decreasing within one stream.
	At time.Duration
}

// Source is anything that produces a live stream of PCM frames, such as a
// browser WebSocket connection or a test fixture.
//
// The channel returned by Frames is closed when the stream ends.
type Source interface {
	Frames() <-chan AudioFrame
}
