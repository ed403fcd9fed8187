// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST API
// at POST /inference. [NativeProvider] links whisper.cpp in-process through the
// CGO bindings. Both transcribe a complete answer turn in a single inference
// and report word timing when the backend provides it.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	t, err := p.Transcribe(ctx, stt.Request{Audio: pcm, SampleRate: 48000, Channels: 1})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe converts req.Audio to 16 kHz mono, wraps it in a WAV container
// and POSTs it to the /inference endpoint as multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	pcm, err := speechPCM(req)
	if err != nil {
		return stt.Transcript{}, err
	}
	wav, err := audio.EncodeWAV(pcm, audio.SpeechFormat.SampleRate, audio.SpeechFormat.Channels)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "answer.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        lang,
		"model":           p.model,
	}
	if len(req.Keywords) > 0 {
		fields["prompt"] = keywordPrompt(req.Keywords)
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	return parseInferenceResponse(data)
}

// ---- helpers ----------------------------------------------------------------

// inferenceResponse covers both the plain {"text": ...} reply and the
// verbose_json reply with segments and word timings.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
		Words      []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

func parseInferenceResponse(data []byte) (stt.Transcript, error) {
	var r inferenceResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	t := stt.Transcript{Text: strings.TrimSpace(r.Text)}
	var (
		logprob float64
		parts   []string
	)
	for _, seg := range r.Segments {
		logprob += seg.AvgLogprob
		if s := strings.TrimSpace(seg.Text); s != "" {
			parts = append(parts, s)
		}
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			t.Words = append(t.Words, stt.WordDetail{
				Word:       word,
				Start:      seconds(w.Start),
				End:        seconds(w.End),
				Confidence: w.Probability,
			})
		}
	}
	if t.Text == "" {
		t.Text = strings.Join(parts, " ")
	}
	if n := len(r.Segments); n > 0 {
		t.Confidence = math.Exp(logprob / float64(n))
	}
	return t, nil
}

// speechPCM validates req and converts its audio to 16 kHz mono.
func speechPCM(req stt.Request) ([]byte, error) {
	if len(req.Audio) < 2 {
		return nil, stt.ErrEmptyAudio
	}
	from := audio.Format{SampleRate: req.SampleRate, Channels: req.Channels}
	if from.SampleRate <= 0 {
		from.SampleRate = defaultSampleRate
	}
	if from.Channels <= 0 {
		from.Channels = 1
	}
	pcm, err := audio.ToMono(req.Audio, from, audio.SpeechFormat.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if len(pcm) < 2 {
		return nil, stt.ErrEmptyAudio
	}
	return pcm, nil
}

// keywordPrompt renders keyword hints as an initial prompt, which biases
// whisper's decoder towards those spellings.
func keywordPrompt(kws []stt.KeywordBoost) string {
	words := make([]string, 0, len(kws))
	for _, kw := range kws {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	return strings.Join(words, ", ")
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
