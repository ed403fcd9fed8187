// Package wsaudio carries a candidate's microphone over a WebSocket.
//
// The browser sends binary messages of 16-bit little-endian PCM and text
// messages holding JSON [Command] values. The first command is normally a
// "hello" announcing the capture format; until one arrives the configured
// default format is assumed. The server pushes JSON events back over the
// same connection with [Conn.Send].
package wsaudio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/intervox/pkg/audio"
)

// Well-known command types.
const (
	CommandHello          = "hello"
	CommandStartRecording = "start_recording"
	CommandStopRecording  = "stop_recording"
	CommandNext           = "next"
	CommandEndSession     = "end_session"
)

const (
	defaultSampleRate = 16000
	defaultChannels   = 1
	defaultReadLimit  = 1 << 20
)

// Command is a control message sent by the client.
type Command struct {
	Type string `json:"type"`

	// SampleRate and Channels describe the capture format ("hello").
	SampleRate int `json:"sample_rate,omitempty"`
	Channels   int `json:"channels,omitempty"`

	// Reply is the candidate's typed answer to a scripted line ("next").
	Reply string `json:"reply,omitempty"`
}

// Option configures a [Conn].
type Option func(*options)

type options struct {
	originPatterns []string
	readLimit      int64
	sampleRate     int
	channels       int
}

// WithOriginPatterns allows cross-origin connections from hosts matching the
// given patterns (see websocket.AcceptOptions.OriginPatterns).
func WithOriginPatterns(patterns ...string) Option {
	return func(o *options) { o.originPatterns = patterns }
}

// WithReadLimit caps the size of a single client message. Default: 1 MiB.
func WithReadLimit(n int64) Option {
	return func(o *options) { o.readLimit = n }
}

// WithDefaultFormat sets the PCM format assumed before the client says hello.
// Default: 16 kHz mono.
func WithDefaultFormat(sampleRate, channels int) Option {
	return func(o *options) {
		o.sampleRate = sampleRate
		o.channels = channels
	}
}

// Conn is one live browser connection. It implements [audio.Source].
type Conn struct {
	ws       *websocket.Conn
	frames   chan audio.AudioFrame
	commands chan Command

	mu         sync.Mutex
	sampleRate int
	channels   int

	closeOnce sync.Once
}

var _ audio.Source = (*Conn)(nil)

// Accept upgrades the HTTP request to a WebSocket.
func Accept(w http.ResponseWriter, r *http.Request, opts ...Option) (*Conn, error) {
	o := options{
		readLimit:  defaultReadLimit,
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
	}
	for _, fn := range opts {
		fn(&o)
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: o.originPatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("wsaudio: accept: %w", err)
	}
	ws.SetReadLimit(o.readLimit)

	return &Conn{
		ws:         ws,
		frames:     make(chan audio.AudioFrame, 256),
		commands:   make(chan Command, 16),
		sampleRate: o.sampleRate,
		channels:   o.channels,
	}, nil
}

// Frames implements [audio.Source]. The channel is closed when Run returns.
func (c *Conn) Frames() <-chan audio.AudioFrame { return c.frames }

// Commands returns the client's control messages. Hello commands are
// consumed by the connection and also forwarded. The channel is closed when
// Run returns.
func (c *Conn) Commands() <-chan Command { return c.commands }

// Format returns the PCM format currently assumed for incoming audio.
func (c *Conn) Format() (sampleRate, channels int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate, c.channels
}

// Run reads client messages until the connection closes or ctx is
// cancelled. A normal close by the client returns nil.
func (c *Conn) Run(ctx context.Context) error {
	defer close(c.frames)
	defer close(c.commands)

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wsaudio: read: %w", err)
		}

		switch typ {
		case websocket.MessageBinary:
			rate, ch := c.Format()
			frame := audio.AudioFrame{Data: data, SampleRate: rate, Channels: ch}
			select {
			case c.frames <- frame:
			case <-ctx.Done():
				return nil
			}

		case websocket.MessageText:
			var cmd Command
			if err := json.Unmarshal(data, &cmd); err != nil {
				slog.Debug("wsaudio: ignoring malformed command", "err", err)
				continue
			}
			if cmd.Type == CommandHello {
				c.setFormat(cmd.SampleRate, cmd.Channels)
			}
			select {
			case c.commands <- cmd:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (c *Conn) setFormat(sampleRate, channels int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sampleRate > 0 {
		c.sampleRate = sampleRate
	}
	if channels > 0 {
		c.channels = channels
	}
}

// Send writes v to the client as a JSON text message. It is safe to call
// concurrently with Run and with other Send calls.
func (c *Conn) Send(ctx context.Context, v any) error {
	if err := wsjson.Write(ctx, c.ws, v); err != nil {
		return fmt.Errorf("wsaudio: send: %w", err)
	}
	return nil
}

// Close performs a normal closing handshake. Calling Close more than once is
// safe.
func (c *Conn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, reason)
	})
	return err
}
