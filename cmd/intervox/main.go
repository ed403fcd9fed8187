// Command intervox is the entry point for the Intervox mock-interview server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/intervox/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/intervox/pkg/provider/embeddings/openai"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/intervox/pkg/provider/llm/openai"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/stt/deepgram"
	"github.com/MrWong99/intervox/pkg/provider/stt/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "intervox.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "intervox: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "intervox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("intervox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, closers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}()

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the API directly; everything else goes through any-llm.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, backend := range anyllm.Backends {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, ollamaembed.WithDimensions(n))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, kind := range []string{"llm", "stt", "embeddings"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the configured providers, wrapping the
// reasoning and transcription providers in fallback groups when fallbacks are
// configured. Providers holding native resources are returned as closers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []io.Closer, error) {
	ps := &app.Providers{LLMName: cfg.Providers.LLM.Name}
	var closers []io.Closer
	track := func(p any) {
		if c, ok := p.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	if entry := cfg.Providers.LLM; entry.Name != "" {
		primary, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, closers, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		ps.LLM = primary
		if len(cfg.Providers.LLMFallbacks) > 0 {
			fb := resilience.NewLLMFallback(primary, entry.Name, resilience.FallbackConfig{})
			for _, fe := range cfg.Providers.LLMFallbacks {
				p, err := reg.CreateLLM(fe)
				if err != nil {
					return nil, closers, fmt.Errorf("create llm fallback %q: %w", fe.Name, err)
				}
				fb.AddFallback(fe.Name, p)
			}
			ps.LLM = fb
		}
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "fallbacks", len(cfg.Providers.LLMFallbacks))
	}

	if entry := cfg.Providers.STT; entry.Name != "" {
		primary, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, closers, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		track(primary)
		ps.STT = primary
		if len(cfg.Providers.STTFallbacks) > 0 {
			fb := resilience.NewSTTFallback(primary, entry.Name, resilience.FallbackConfig{})
			for _, fe := range cfg.Providers.STTFallbacks {
				p, err := reg.CreateSTT(fe)
				if err != nil {
					return nil, closers, fmt.Errorf("create stt fallback %q: %w", fe.Name, err)
				}
				track(p)
				fb.AddFallback(fe.Name, p)
			}
			ps.STT = fb
		}
		slog.Info("provider created", "kind", "stt", "name", entry.Name, "fallbacks", len(cfg.Providers.STTFallbacks))
	}

	if entry := cfg.Providers.Embeddings; entry.Name != "" {
		p, err := reg.CreateEmbeddings(entry)
		if err != nil {
			return nil, closers, fmt.Errorf("create embeddings provider %q: %w", entry.Name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", entry.Name)
	}

	return ps, closers, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map. Returns ""
// if the key is absent or not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	n, _ := opts[key].(int)
	return n
}

// optDuration parses a duration option such as "30s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
