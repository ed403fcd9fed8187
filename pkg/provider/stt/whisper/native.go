// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared; each Transcribe call creates its own context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over the whole take with token
// timestamps enabled, so the transcript carries word timing.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	pcm, err := speechPCM(req)
	if err != nil {
		return stt.Transcript{}, err
	}
	samples := audio.Float32Mono(pcm, 1)

	// Contexts are not thread-safe; the model is.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	wctx.SetTokenTimestamps(true)
	if len(req.Keywords) > 0 {
		wctx.SetInitialPrompt(keywordPrompt(req.Keywords))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts []string
		words []stt.WordDetail
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		words = appendTokenWords(words, segment.Tokens)
	}

	t := stt.Transcript{Text: strings.Join(parts, " "), Words: words}
	if len(words) > 0 {
		var sum float64
		for _, w := range words {
			sum += w.Confidence
		}
		t.Confidence = sum / float64(len(words))
	}
	return t, nil
}

// appendTokenWords merges sub-word tokens into words. whisper marks the start
// of a new word with a leading space; special tokens such as "[_BEG_]" or
// "<|endoftext|>" are skipped.
func appendTokenWords(words []stt.WordDetail, tokens []whisperlib.Token) []stt.WordDetail {
	var pieces int
	for _, tok := range tokens {
		if tok.Text == "" || strings.HasPrefix(tok.Text, "[_") || strings.HasPrefix(tok.Text, "<|") {
			continue
		}
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(tok.Text, " ") || len(words) == 0 {
			words = append(words, stt.WordDetail{
				Word:       text,
				Start:      tok.Start,
				End:        tok.End,
				Confidence: float64(tok.P),
			})
			pieces = 1
			continue
		}
		last := &words[len(words)-1]
		last.Word += text
		last.End = tok.End
		pieces++
		last.Confidence += (float64(tok.P) - last.Confidence) / float64(pieces)
	}
	return words
}
