package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// ErrEmptyAudio is returned when there is no PCM data to encode.
var ErrEmptyAudio = errors.New("audio: no samples")

// EncodeWAV wraps 16-bit PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm) < 2 {
		return nil, ErrEmptyAudio
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid format %d Hz / %d ch", sampleRate, channels)
	}

	samples := Samples(pcm)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: close wav encoder: %w", err)
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes once all samples are written.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		w.buf = append(w.buf, make([]byte, need-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	w.pos = int(abs)
	return abs, nil
}
