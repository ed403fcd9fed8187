// Package mock provides an in-memory [audio.Source] and synthetic PCM helpers
// for unit tests.
//
// Typical usage:
//
//	src := mock.NewSource(16)
//	src.Push(mock.ConstantFrame(0.2, 20*time.Millisecond, 16000))
//	src.Close()
package mock

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

// Source is a channel-backed [audio.Source]. Push and Close may be called
// from any goroutine.
type Source struct {
	mu     sync.Mutex
	ch     chan audio.AudioFrame
	closed bool

	// FramesCallCount records how many times Frames was called.
	FramesCallCount int
}

var _ audio.Source = (*Source)(nil)

// NewSource returns a source whose frame channel has the given capacity.
func NewSource(buffer int) *Source {
	return &Source{ch: make(chan audio.AudioFrame, buffer)}
}

// Frames implements [audio.Source].
func (s *Source) Frames() <-chan audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FramesCallCount++
	return s.ch
}

// Push delivers f, blocking while the buffer is full. Frames pushed after
// Close are dropped.
func (s *Source) Push(f audio.AudioFrame) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.ch <- f
}

// Close ends the stream. Calling Close more than once is safe.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// ConstantFrame returns a mono frame of length d whose every sample has the
// magnitude level×32768, so its RMS equals level (clamped to int16 range).
func ConstantFrame(level float64, d time.Duration, sampleRate int) audio.AudioFrame {
	n := int(d * time.Duration(sampleRate) / time.Second)
	v := level * 32768
	if v > 32767 {
		v = 32767
	}
	sample := int16(v)
	data := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return audio.AudioFrame{Data: data, SampleRate: sampleRate, Channels: 1}
}

// PCM encodes int16 samples as little-endian bytes.
func PCM(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
