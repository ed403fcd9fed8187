package audio_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/mock"
)

func TestSampler_LevelsFollowAudioClock(t *testing.T) {
	t.Parallel()

	src := mock.NewSource(8)
	src.Push(mock.ConstantFrame(0.5, 20*time.Millisecond, 16000))
	src.Push(mock.ConstantFrame(0, 20*time.Millisecond, 16000))
	src.Push(mock.ConstantFrame(0.25, 10*time.Millisecond, 16000))
	src.Close()

	s := audio.NewSampler(src)
	go s.Run(context.Background())

	var got []audio.Level
	for l := range s.Levels() {
		got = append(got, l)
	}

	want := []audio.Level{
		{RMS: 0.5, At: 20 * time.Millisecond},
		{RMS: 0, At: 40 * time.Millisecond},
		{RMS: 0.25, At: 50 * time.Millisecond},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d levels, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i].RMS-want[i].RMS) > 1e-9 || got[i].At != want[i].At {
			t.Errorf("level %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSampler_ClientTimestampGap(t *testing.T) {
	t.Parallel()

	src := mock.NewSource(4)
	f1 := mock.ConstantFrame(0.1, 20*time.Millisecond, 16000)
	f2 := mock.ConstantFrame(0.1, 20*time.Millisecond, 16000)
	f2.Timestamp = 500 * time.Millisecond
	src.Push(f1)
	src.Push(f2)
	src.Close()

	s := audio.NewSampler(src)
	go s.Run(context.Background())

	var last audio.Level
	for l := range s.Levels() {
		last = l
	}
	if last.At != 520*time.Millisecond {
		t.Errorf("last At = %v, want 520ms", last.At)
	}
}

func TestSampler_FrameTap(t *testing.T) {
	t.Parallel()

	src := mock.NewSource(4)
	src.Push(mock.ConstantFrame(0.1, 10*time.Millisecond, 16000))
	src.Push(mock.ConstantFrame(0.2, 10*time.Millisecond, 16000))
	src.Close()

	var (
		mu     sync.Mutex
		tapped int
	)
	s := audio.NewSampler(src, audio.WithFrameTap(func(audio.AudioFrame) {
		mu.Lock()
		tapped++
		mu.Unlock()
	}))
	go s.Run(context.Background())
	for range s.Levels() {
	}

	mu.Lock()
	defer mu.Unlock()
	if tapped != 2 {
		t.Errorf("tap saw %d frames, want 2", tapped)
	}
}

func TestSampler_ContextCancelClosesLevels(t *testing.T) {
	t.Parallel()

	src := mock.NewSource(1)
	ctx, cancel := context.WithCancel(context.Background())
	s := audio.NewSampler(src)
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, ok := <-s.Levels(); ok {
		t.Error("levels channel still open after Run returned")
	}
}

func TestSampler_NilSource(t *testing.T) {
	t.Parallel()

	s := audio.NewSampler(nil)
	s.Run(context.Background())
	if _, ok := <-s.Levels(); ok {
		t.Error("expected closed level channel for nil source")
	}
}
