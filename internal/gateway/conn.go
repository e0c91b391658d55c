package gateway

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/voxguide/voxguide/internal/protocol"
	"github.com/voxguide/voxguide/internal/session"
)

// outMsg is one queued outbound frame.
type outMsg struct {
	t   protocol.Type
	raw []byte
}

// conn is one client connection: a read/dispatch loop, an outbound write
// queue, and at most one session.
type conn struct {
	ws     *websocket.Conn
	log    *slog.Logger
	server *Server

	ctx    context.Context
	cancel context.CancelFunc

	sendQ   chan outMsg
	dropped atomic.Int64

	sess *session.Session
}

// Compile-time interface assertion.
var _ session.Sender = (*conn)(nil)

func newConn(ctx context.Context, ws *websocket.Conn, srv *Server) *conn {
	cctx, cancel := context.WithCancel(ctx)
	return &conn{
		ws:     ws,
		log:    srv.log,
		server: srv,
		ctx:    cctx,
		cancel: cancel,
		sendQ:  make(chan outMsg, srv.cfg.Server.WriteQueueSize),
	}
}

// Send implements session.Sender. It never blocks: when the queue is full,
// audio chunks are dropped (the client is not keeping up anyway) and
// control messages wait only as long as the connection lives.
func (c *conn) Send(t protocol.Type, payload any) {
	raw, err := protocol.Encode(t, payload)
	if err != nil {
		c.log.Error("encode outbound message", "type", t, "error", err)
		return
	}
	msg := outMsg{t: t, raw: raw}

	if t == protocol.TypeTTSChunk {
		select {
		case c.sendQ <- msg:
		default:
			c.dropped.Add(1)
		}
		return
	}

	select {
	case c.sendQ <- msg:
	case <-c.ctx.Done():
	}
}

// writeLoop drains the queue onto the socket.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.sendQ:
			if err := c.ws.Write(c.ctx, websocket.MessageText, msg.raw); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// readLoop reads and dispatches inbound frames until the socket dies.
func (c *conn) readLoop() {
	for {
		_, raw, err := c.ws.Read(c.ctx)
		if err != nil {
			return
		}
		c.dispatch(raw)
	}
}

// dispatch routes one inbound frame. A panic in a handler fails the frame,
// not the connection.
func (c *conn) dispatch(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic handling inbound message", "panic", r)
			c.Send(protocol.TypeError, protocol.ErrorMessage{
				Code:      "internal_error",
				Message:   "internal error handling message",
				Retryable: true,
			})
		}
	}()

	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		c.sendErr("bad_message", "unparseable message", false)
		return
	}

	if env.Type == protocol.TypeStartSession {
		c.handleStartSession(env)
		return
	}
	if c.sess == nil {
		c.sendErr("no_session", "send start_session first", false)
		return
	}

	switch env.Type {
	case protocol.TypeStopSession:
		c.closeSession()
	case protocol.TypeBargeIn:
		c.sess.BargeIn()
	case protocol.TypeStartAudio:
		var p protocol.StartAudio
		if err := protocol.DecodePayload(env, &p); err != nil {
			c.sendErr("bad_message", err.Error(), false)
			return
		}
		_ = c.sess.StartAudio(p)
	case protocol.TypeAudioChunk:
		var p protocol.AudioChunk
		if err := protocol.DecodePayload(env, &p); err != nil {
			c.sendErr("bad_message", err.Error(), false)
			return
		}
		data, err := base64.StdEncoding.DecodeString(p.Payload)
		if err != nil {
			c.sendErr("bad_audio", "audio chunk is not valid base64", false)
			return
		}
		c.sess.PushAudio(data)
	case protocol.TypeEndAudio:
		c.sess.EndAudio()
	case protocol.TypeVoiceCommand:
		var p protocol.VoiceCommand
		if err := protocol.DecodePayload(env, &p); err != nil {
			c.sendErr("bad_message", err.Error(), false)
			return
		}
		c.sess.HandleVoiceCommand(p.Command)
	case protocol.TypeUserText:
		var p protocol.UserText
		if err := protocol.DecodePayload(env, &p); err != nil {
			c.sendErr("bad_message", err.Error(), false)
			return
		}
		c.sess.HandleUserText(p.Text, p.IsFinal)
	default:
		c.sendErr("unknown_type", "unknown message type: "+string(env.Type), false)
	}
}

func (c *conn) handleStartSession(env protocol.Envelope) {
	if c.sess != nil {
		c.sendErr("session_exists", "this connection already has a session", false)
		return
	}
	var p protocol.StartSession
	if err := protocol.DecodePayload(env, &p); err != nil {
		c.sendErr("bad_message", err.Error(), false)
		return
	}
	if p.Issue == "" {
		c.sendErr("bad_message", "start_session requires an issue", false)
		return
	}

	sess := c.server.newSession(c.ctx, p.Issue, p.Mode, c)
	c.sess = sess
	c.server.registry.Add(sess)

	if err := sess.Start(); err != nil {
		c.log.Error("session start failed", "session_id", sess.ID, "error", err)
		c.sendErr("engine_error", "could not start the session", true)
		c.closeSession()
	}
}

func (c *conn) closeSession() {
	if c.sess == nil {
		return
	}
	c.server.registry.Remove(c.sess.ID)
	c.sess.Close()
	c.sess = nil
}

func (c *conn) sendErr(code, msg string, retryable bool) {
	c.Send(protocol.TypeError, protocol.ErrorMessage{Code: code, Message: msg, Retryable: retryable})
}

// run drives the connection to completion and tears the session down.
func (c *conn) run() {
	go c.writeLoop()
	c.readLoop()
	c.cancel()
	c.closeSession()
	if n := c.dropped.Load(); n > 0 {
		c.log.Debug("connection dropped audio frames on backpressure", "count", n)
	}
	_ = c.ws.CloseNow()
}
