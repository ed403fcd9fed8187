package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/mock"
)

func TestRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame audio.AudioFrame
		want  float64
	}{
		{"empty", audio.AudioFrame{Channels: 1}, 0},
		{"silence", audio.AudioFrame{Data: mock.PCM(0, 0, 0, 0), Channels: 1}, 0},
		{"half scale", audio.AudioFrame{Data: mock.PCM(16384, -16384, 16384, -16384), Channels: 1}, 0.5},
		{"full scale negative", audio.AudioFrame{Data: mock.PCM(-32768, -32768), Channels: 1}, 1},
		{"stereo downmixed", audio.AudioFrame{Data: mock.PCM(16384, 16384, -16384, -16384), Channels: 2}, 0.5},
		{"odd byte ignored", audio.AudioFrame{Data: append(mock.PCM(16384), 0x7f), Channels: 1}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.RMS(tt.frame); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDownmixMono(t *testing.T) {
	t.Parallel()

	got := audio.DownmixMono(mock.PCM(100, 200, -100, -200), 2)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFloat32Mono(t *testing.T) {
	t.Parallel()

	got := audio.Float32Mono(mock.PCM(-32768, 16384), 1)
	if len(got) != 2 || got[0] != -1 || got[1] != 0.5 {
		t.Errorf("Float32Mono = %v, want [-1 0.5]", got)
	}
}

func TestAudioFrame_Duration(t *testing.T) {
	t.Parallel()

	f := mock.ConstantFrame(0.1, 20*time.Millisecond, 16000)
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", got)
	}
	if got := (audio.AudioFrame{Data: make([]byte, 64)}).Duration(); got != 0 {
		t.Errorf("Duration without format = %v, want 0", got)
	}
}
