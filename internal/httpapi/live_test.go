package httpapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/intervox/pkg/audio/mock"
	"github.com/MrWong99/intervox/pkg/audio/wsaudio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	sttmock "github.com/MrWong99/intervox/pkg/provider/stt/mock"
)

type message struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
	Line   string `json:"line"`
	Result *struct {
		Analysis struct {
			Score int `json:"score"`
		} `json:"analysis"`
	} `json:"result"`
	Report *struct {
		OverallScore int `json:"overall_score"`
	} `json:"report"`
	Transcript string `json:"transcript"`
}

type liveClient struct {
	t    *testing.T
	ctx  context.Context
	conn *websocket.Conn
	msgs chan message
}

func dialLive(t *testing.T, ctx context.Context, e *testEnv, user, id string) *liveClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/sessions/" + id + "/live"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"X-User-ID": []string{user}},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	c := &liveClient{t: t, ctx: ctx, conn: conn, msgs: make(chan message, 256)}
	go func() {
		defer close(c.msgs)
		for {
			var m message
			if err := wsjson.Read(ctx, conn, &m); err != nil {
				return
			}
			c.msgs <- m
		}
	}()
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return c
}

func (c *liveClient) command(cmd wsaudio.Command) {
	c.t.Helper()
	if err := wsjson.Write(c.ctx, c.conn, cmd); err != nil {
		c.t.Fatalf("write %s: %v", cmd.Type, err)
	}
}

func (c *liveClient) audio(level float64, d time.Duration) {
	c.t.Helper()
	for range int(d / (20 * time.Millisecond)) {
		f := mock.ConstantFrame(level, 20*time.Millisecond, 16000)
		if err := c.conn.Write(c.ctx, websocket.MessageBinary, f.Data); err != nil {
			c.t.Fatalf("write audio: %v", err)
		}
	}
}

func (c *liveClient) waitFor(typ string) message {
	c.t.Helper()
	for {
		select {
		case m, ok := <-c.msgs:
			if !ok {
				c.t.Fatalf("connection closed waiting for %s", typ)
			}
			if m.Type == typ {
				return m
			}
		case <-c.ctx.Done():
			c.t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestLive_AnswerByVoiceThenEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transcriber := &sttmock.Provider{Result: stt.Transcript{Text: "I migrated the billing service."}}
	e := newEnv(t, transcriber)
	c := e.create(t, "u1", 15)

	client := dialLive(t, ctx, e, "u1", c.Session.ID)
	client.waitFor("ready")
	client.command(wsaudio.Command{Type: wsaudio.CommandHello, SampleRate: 16000, Channels: 1})
	client.audio(0.001, 200*time.Millisecond)
	client.waitFor("calibrated")

	client.command(wsaudio.Command{Type: wsaudio.CommandStartRecording})
	client.waitFor("recording_started")
	client.command(wsaudio.Command{Type: wsaudio.CommandStartRecording})
	if m := client.waitFor("error"); m.Code != "turn_in_flight" {
		t.Errorf("second start: code = %q, want turn_in_flight", m.Code)
	}

	client.audio(0.2, 400*time.Millisecond)
	client.audio(0.001, 400*time.Millisecond)
	if m := client.waitFor("recording_stopped"); m.Reason != "speech_ended" {
		t.Errorf("reason = %q, want speech_ended", m.Reason)
	}
	if m := client.waitFor("transcript"); m.Transcript != "I migrated the billing service." {
		t.Errorf("transcript = %q", m.Transcript)
	}
	if m := client.waitFor("answer"); m.Result == nil || m.Result.Analysis.Score != 70 {
		t.Fatalf("answer = %+v", m.Result)
	}

	client.command(wsaudio.Command{Type: wsaudio.CommandEndSession})
	done := client.waitFor("completed")
	if done.Report == nil || done.Report.OverallScore != 70 {
		t.Fatalf("report = %+v", done.Report)
	}

	sess, err := e.svc.GetSession(ctx, "u1", c.Session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != "completed" || sess.Answered() != 1 {
		t.Errorf("session status=%s answered=%d", sess.Status, sess.Answered())
	}
}

func TestLive_ScriptOverSocket(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	e := newEnv(t, &sttmock.Provider{})
	var fresh created
	e.do(t, "POST", "/v1/sessions", "u1", map[string]any{"company": "Acme"}, &fresh)

	client := dialLive(t, ctx, e, "u1", fresh.Session.ID)
	client.waitFor("ready")
	client.command(wsaudio.Command{Type: wsaudio.CommandNext, Reply: "Doing well, thanks."})
	if m := client.waitFor("script"); !strings.Contains(m.Line, "Acme") {
		t.Errorf("small talk line = %q", m.Line)
	}

	client.command(wsaudio.Command{Type: "dance"})
	if m := client.waitFor("error"); m.Code == "" {
		t.Error("unknown command produced no error code")
	}

	sess, _ := e.svc.GetSession(ctx, "u1", fresh.Session.ID)
	if sess.Phase.String() != "small_talk" {
		t.Errorf("phase = %s, want small_talk", sess.Phase)
	}
}
