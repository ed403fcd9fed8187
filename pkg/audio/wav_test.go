package audio_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-audio/wav"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/mock"
)

func TestEncodeWAV(t *testing.T) {
	t.Parallel()

	pcm := mock.PCM(0, 1000, -1000, 32767, -32768, 42)
	b, err := audio.EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("RIFF")) {
		t.Fatalf("missing RIFF header: %q", b[:4])
	}

	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		t.Fatal("decoder rejected encoded file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("format = %d Hz / %d ch / %d bit, want 16000/1/16", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	want := []int{0, 1000, -1000, 32767, -32768, 42}
	if len(buf.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(want))
	}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], want[i])
		}
	}
}

func TestEncodeWAV_Errors(t *testing.T) {
	t.Parallel()

	if _, err := audio.EncodeWAV(nil, 16000, 1); !errors.Is(err, audio.ErrEmptyAudio) {
		t.Errorf("empty pcm: err = %v, want ErrEmptyAudio", err)
	}
	if _, err := audio.EncodeWAV(mock.PCM(1, 2), 0, 1); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
