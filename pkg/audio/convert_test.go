package audio_test

import (
	"testing"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/mock"
)

func TestToMono_Stereo(t *testing.T) {
	t.Parallel()

	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	got, err := audio.ToMono(mock.PCM(100, 200, -100, -200), audio.Format{SampleRate: 16000, Channels: 2}, 16000)
	if err != nil {
		t.Fatalf("ToMono: %v", err)
	}
	want := []int16{150, -150}
	samples := audio.Samples(got)
	if len(samples) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestToMono_Downsample(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 48000*2) // 1s of 48 kHz mono
	got, err := audio.ToMono(pcm, audio.Format{SampleRate: 48000, Channels: 1}, 16000)
	if err != nil {
		t.Fatalf("ToMono: %v", err)
	}
	if len(got) != 16000*2 {
		t.Errorf("got %d bytes, want %d", len(got), 16000*2)
	}
}

func TestToMono_InvalidFormat(t *testing.T) {
	t.Parallel()

	if _, err := audio.ToMono(mock.PCM(1, 2), audio.Format{}, 16000); err == nil {
		t.Fatal("expected error for zero format")
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	t.Parallel()

	pcm := mock.PCM(100, 200, 300)
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if &out[0] != &pcm[0] {
		t.Error("same-rate resample should return the input unchanged")
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	t.Parallel()

	out := audio.Samples(audio.ResampleMono16(mock.PCM(0, 100), 8000, 16000))
	if len(out) != 4 {
		t.Fatalf("got %d samples, want 4", len(out))
	}
	if out[0] != 0 || out[1] != 50 || out[2] != 100 {
		t.Errorf("interpolated samples = %v, want [0 50 100 ...]", out)
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	t.Parallel()

	pcm := mock.PCM(1, 2, 3)
	if out := audio.ResampleMono16(pcm, 0, 16000); len(out) != len(pcm) {
		t.Errorf("zero source rate should return input, got %d bytes", len(out))
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.SpeechFormat, "16000Hz mono"},
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
