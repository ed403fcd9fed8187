package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/live"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/audio/wsaudio"
)

// Server-to-client message types that are not conductor events.
const (
	msgReady  = "ready"
	msgScript = "script"
	msgLevel  = "level"
)

type readyMessage struct {
	Type    string             `json:"type"`
	Session *interview.Session `json:"session"`
}

type scriptMessage struct {
	Type string `json:"type"`
	*interview.ScriptStep
}

type levelMessage struct {
	Type string `json:"type"`
	live.Status
}

// live upgrades to the live audio WebSocket. Ownership is checked before the
// upgrade so unauthorised callers get a plain HTTP error.
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	sess, err := s.sessions.GetSession(r.Context(), user, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess.Status == interview.StatusCompleted {
		s.writeError(w, r, fmt.Errorf("httpapi: live: %w", interview.ErrSessionCompleted))
		return
	}

	conn, err := wsaudio.Accept(w, r, wsaudio.WithOriginPatterns(s.origins...))
	if err != nil {
		observe.Logger(r.Context()).Warn("live upgrade failed", "session_id", id, "err", err)
		return
	}
	defer conn.Close("session closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := observe.Logger(ctx).With("session_id", id)

	out := make(chan any, 64)
	send := func(v any) {
		select {
		case out <- v:
		case <-ctx.Done():
		}
	}

	opts := append(s.liveOptions(),
		live.WithMetrics(s.metrics),
		live.WithOnEvent(func(ev live.Event) { send(ev) }),
	)
	c := live.New(s.sessions, s.stt, user, id, opts...)

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := conn.Run(ctx); err != nil {
			log.Debug("live connection closed", "err", err)
		}
	})
	wg.Go(func() { s.pump(ctx, cancel, conn, c, out) })
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx, conn) }()

	log.Info("live session connected")
	send(readyMessage{Type: msgReady, Session: sess})

	for cmd := range conn.Commands() {
		s.command(ctx, c, user, id, cmd, send)
	}

	cancel()
	if err := <-runErr; err != nil {
		log.Info("live audio ended", "err", err)
	}
	wg.Wait()
	log.Info("live session disconnected")
}

// command handles one client control message.
func (s *Server) command(ctx context.Context, c *live.Conductor, user, id string, cmd wsaudio.Command, send func(any)) {
	var err error
	switch cmd.Type {
	case wsaudio.CommandHello:
		// The connection already applied the announced format.
	case wsaudio.CommandStartRecording:
		err = c.StartRecording(ctx)
	case wsaudio.CommandStopRecording:
		err = c.StopRecording()
	case wsaudio.CommandNext:
		var step *interview.ScriptStep
		step, err = s.sessions.AdvanceScript(ctx, user, id, cmd.Reply)
		if err == nil {
			send(scriptMessage{Type: msgScript, ScriptStep: step})
		}
	case wsaudio.CommandEndSession:
		// The conductor reports the outcome as an event.
		_, _ = c.End(ctx)
	default:
		err = fmt.Errorf("httpapi: unknown command %q", cmd.Type)
	}
	if err != nil {
		ev := live.ErrorEvent(err)
		ev.Code = codeFor(err)
		send(ev)
	}
}

// pump writes queued messages and periodic level readings to the client
// until ctx is done. A failed write cancels the connection.
func (s *Server) pump(ctx context.Context, cancel context.CancelFunc, conn *wsaudio.Conn, c *live.Conductor, out <-chan any) {
	ticker := time.NewTicker(s.levelInterval)
	defer ticker.Stop()
	for {
		var msg any
		select {
		case <-ctx.Done():
			return
		case msg = <-out:
		case <-ticker.C:
			msg = levelMessage{Type: msgLevel, Status: c.Status()}
		}
		if err := conn.Send(ctx, msg); err != nil {
			cancel()
			return
		}
	}
}
