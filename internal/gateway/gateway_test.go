package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxguide/voxguide/internal/config"
	"github.com/voxguide/voxguide/internal/engine"
	enginemock "github.com/voxguide/voxguide/internal/engine/mock"
	"github.com/voxguide/voxguide/internal/protocol"
	sttmock "github.com/voxguide/voxguide/pkg/provider/stt/mock"
	ttsmock "github.com/voxguide/voxguide/pkg/provider/tts/mock"
)

// newTestServer wires a Server with mocks and serves /ws over httptest.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	srv := New(config.Default(), Deps{
		EngineFactory: func() engine.StepEngine {
			return &enginemock.Engine{
				StartResult: engine.Result{
					Text:        "welcome",
					ShouldSpeak: true,
					State:       engine.State{Status: engine.StatusAwaitingConfirmation, TotalSteps: 2},
				},
			}
		},
		Primary:    &ttsmock.Provider{ProviderName: "primary", IsStreaming: true},
		Recognizer: &sttmock.Provider{},
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	t.Cleanup(ts.Close)
	return srv, ts
}

// dial connects a test client to the server.
func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ protocol.Type, payload any) {
	t.Helper()
	raw, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// waitFor reads frames until one of the wanted type arrives.
func waitFor(t *testing.T, conn *websocket.Conn, want protocol.Type) protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Type == want {
			return env
		}
	}
}

func TestStartSessionHandshake(t *testing.T) {
	t.Parallel()

	srv, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.TypeStartSession, protocol.StartSession{Issue: "printer jam"})

	env := waitFor(t, conn, protocol.TypeSessionReady)
	var ready protocol.SessionReady
	if err := protocol.DecodePayload(env, &ready); err != nil {
		t.Fatalf("decode session_ready: %v", err)
	}
	if ready.SessionID == "" {
		t.Error("session_ready without session ID")
	}
	if srv.Registry().Get(ready.SessionID) == nil {
		t.Error("session not registered")
	}

	env = waitFor(t, conn, protocol.TypeAssistantMessage)
	var msg protocol.AssistantMessage
	if err := protocol.DecodePayload(env, &msg); err != nil {
		t.Fatalf("decode assistant_message: %v", err)
	}
	if msg.Text != "welcome" {
		t.Errorf("assistant_message = %q", msg.Text)
	}

	// The opening turn is synthesised and streamed.
	waitFor(t, conn, protocol.TypeTTSStart)
	waitFor(t, conn, protocol.TypeTTSEnd)
}

func TestMessagesBeforeStartSessionRejected(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.TypeBargeIn, nil)

	env := waitFor(t, conn, protocol.TypeError)
	var em protocol.ErrorMessage
	if err := protocol.DecodePayload(env, &em); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if em.Code != "no_session" {
		t.Errorf("code = %q, want no_session", em.Code)
	}
}

func TestSecondStartSessionRejected(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.TypeStartSession, protocol.StartSession{Issue: "a"})
	waitFor(t, conn, protocol.TypeSessionReady)

	send(t, conn, protocol.TypeStartSession, protocol.StartSession{Issue: "b"})
	env := waitFor(t, conn, protocol.TypeError)
	var em protocol.ErrorMessage
	_ = protocol.DecodePayload(env, &em)
	if em.Code != "session_exists" {
		t.Errorf("code = %q, want session_exists", em.Code)
	}
}

func TestStopSessionUnregisters(t *testing.T) {
	t.Parallel()

	srv, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.TypeStartSession, protocol.StartSession{Issue: "a"})
	env := waitFor(t, conn, protocol.TypeSessionReady)
	var ready protocol.SessionReady
	_ = protocol.DecodePayload(env, &ready)

	send(t, conn, protocol.TypeStopSession, nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Registry().Get(ready.SessionID) == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("session still registered after stop_session")
}

func TestUnparseableFrameYieldsError(t *testing.T) {
	t.Parallel()

	_, ts := newTestServer(t)
	conn := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := waitFor(t, conn, protocol.TypeError)
	var em protocol.ErrorMessage
	_ = protocol.DecodePayload(env, &em)
	if em.Code != "bad_message" {
		t.Errorf("code = %q, want bad_message", em.Code)
	}
}

func TestDebugSessionsEndpoint(t *testing.T) {
	t.Parallel()

	srv, ts := newTestServer(t)
	conn := dial(t, ts)
	send(t, conn, protocol.TypeStartSession, protocol.StartSession{Issue: "a"})
	waitFor(t, conn, protocol.TypeSessionReady)

	rec := httptest.NewRecorder()
	srv.handleDebugSessions(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))

	var rows []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("snapshot rows = %d, want 1", len(rows))
	}
}
