package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm:
    name: openai
  stt:
    name: whisper
vad:
  silence_delay: 2s
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: openai
  stt:
    name: whisper
vad:
  silence_delay: 1s
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// rewrite replaces the file content and pushes its mtime forward so the
// change is visible even on coarse-grained filesystems.
func rewrite(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	writeFile(t, path, content)
	at := time.Now().Add(bump)
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("failed to touch file: %v", err)
	}
}

func newWatchedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intervox.yaml")
	writeFile(t, path, watcherValidYAML)
	return path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	w, err := config.NewWatcher(path, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo || cfg.VAD.SilenceDelay != 2*time.Second {
		t.Errorf("initial config: log_level=%q silence_delay=%v", cfg.Server.LogLevel, cfg.VAD.SilenceDelay)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	type change struct{ old, new *config.Config }
	changes := make(chan change, 1)

	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		select {
		case changes <- change{old, new}:
		default:
		}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	rewrite(t, path, watcherUpdatedYAML, time.Second)

	var c change
	select {
	case c = <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	if c.old.Server.LogLevel != config.LogInfo || c.new.Server.LogLevel != config.LogDebug {
		t.Errorf("log level %q -> %q, want info -> debug", c.old.Server.LogLevel, c.new.Server.LogLevel)
	}
	d := config.Diff(c.old, c.new)
	if !d.LogLevelChanged || !d.VADChanged || d.InterviewChanged || len(d.RestartRequired) != 0 {
		t.Errorf("diff = %+v", d)
	}
	if cur := w.Current(); cur.VAD.SilenceDelay != time.Second {
		t.Errorf("Current() silence_delay = %v, want 1s", cur.VAD.SilenceDelay)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	var mu sync.Mutex
	calls := 0
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rewrite(t, path, watcherInvalidYAML, time.Second)
	time.Sleep(300 * time.Millisecond)
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("callback should not be called for invalid config, got %d calls", calls)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() should still have old config, got log_level=%q", cur.Server.LogLevel)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, err := config.NewWatcher(newWatchedFile(t), nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	var mu sync.Mutex
	calls := 0
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rewrite(t, path, watcherValidYAML, time.Second)
	time.Sleep(300 * time.Millisecond)
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("callback should not fire for touch-only, got %d calls", calls)
	}
}
