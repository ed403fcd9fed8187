// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface by
// streaming one answer take and collecting the final results.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// chunkDuration is how much audio goes into one binary message.
	chunkDuration = 100 * time.Millisecond
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams req.Audio to Deepgram, sends CloseStream and gathers
// every final result until the server closes the connection.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Audio) < 2 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	wsURL, err := p.buildURL(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- p.writeAudio(ctx, conn, req)
	}()

	results, readErr := readResults(ctx, conn)
	if err := <-writeErr; err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: send audio: %w", err)
	}
	if readErr != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: read results: %w", readErr)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "transcription complete")
	return mergeResults(results), nil
}

// writeAudio sends the take in fixed-size chunks followed by CloseStream,
// which asks Deepgram to flush and close.
func (p *Provider) writeAudio(ctx context.Context, conn *websocket.Conn, req stt.Request) error {
	sr, ch := req.SampleRate, req.Channels
	if sr <= 0 {
		sr = defaultSampleRate
	}
	if ch <= 0 {
		ch = 1
	}
	chunk := int(int64(sr) * int64(ch) * 2 * int64(chunkDuration) / int64(time.Second))
	chunk -= chunk % (2 * ch)
	if chunk <= 0 {
		chunk = len(req.Audio)
	}

	for off := 0; off < len(req.Audio); off += chunk {
		end := min(off+chunk, len(req.Audio))
		if err := conn.Write(ctx, websocket.MessageBinary, req.Audio[off:end]); err != nil {
			return err
		}
	}
	return conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

// readResults receives JSON messages until the server closes the stream.
func readResults(ctx context.Context, conn *websocket.Conn) ([]stt.Transcript, error) {
	var finals []stt.Transcript
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finals, nil
			}
			return finals, err
		}
		t, isFinal, ok := parseDeepgramResponse(msg)
		if ok && isFinal {
			finals = append(finals, t)
		}
	}
}

// mergeResults concatenates final results in arrival order. Confidence is the
// mean over non-empty results.
func mergeResults(results []stt.Transcript) stt.Transcript {
	var (
		out   stt.Transcript
		parts []string
		conf  float64
	)
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		out.Words = append(out.Words, r.Words...)
		conf += r.Confidence
	}
	out.Text = strings.Join(parts, " ")
	if len(parts) > 0 {
		out.Confidence = conf / float64(len(parts))
	}
	return out
}

// buildURL constructs the Deepgram streaming endpoint URL for the given request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	sr := req.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	// Fillers are part of the speech metrics, so keep them in the text.
	q.Set("filler_words", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if req.Channels > 0 {
		q.Set("channels", strconv.Itoa(req.Channels))
	}

	for _, kw := range req.Keywords {
		// Deepgram keyword format: word:boost (e.g., "Kubernetes:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word           string  `json:"word"`
				PunctuatedWord string  `json:"punctuated_word"`
				Start          float64 `json:"start"`
				End            float64 `json:"end"`
				Confidence     float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message. ok is false
// if the message is not a Results event.
func parseDeepgramResponse(data []byte) (t stt.Transcript, isFinal, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		word := w.PunctuatedWord
		if word == "" {
			word = w.Word
		}
		words = append(words, stt.WordDetail{
			Word:       word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return stt.Transcript{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Words:      words,
	}, resp.IsFinal, true
}
