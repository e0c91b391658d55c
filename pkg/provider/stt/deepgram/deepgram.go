// Package deepgram provides a Deepgram-backed STT provider using the
// Deepgram streaming WebSocket API. It implements the stt.Provider
// interface, translating Deepgram's push-style result frames into the
// canonical pull-based recognition event sequence.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/stt"
)

const (
	providerName     = "deepgram"
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	eventChanBuf = 64
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithEndpoint overrides the streaming endpoint URL. Used in tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
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
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return providerName }

// Transcribe opens a streaming session with Deepgram and bridges the audio
// source to it.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (<-chan provider.RecognitionEvent, error) {
	wsURL, err := p.buildURL(req)
	if err != nil {
		return nil, provider.Errf(providerName, provider.CodeProtocol, "build URL: %v", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, provider.Errf(providerName, provider.CodeAuth, "dial rejected: status %d", resp.StatusCode)
		}
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, provider.Errf(providerName, provider.CodeRateLimit, "dial throttled: status %d", resp.StatusCode)
		}
		return nil, provider.Errf(providerName, provider.CodeWSHandshake, "dial: %v", err)
	}

	s := &session{
		conn:   conn,
		req:    req,
		events: make(chan provider.RecognitionEvent, eventChanBuf),
	}
	go s.run(ctx)
	return s.events, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", req.Language)
	q.Set("encoding", req.Encoding)
	q.Set("sample_rate", strconv.Itoa(req.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// session is one live Deepgram stream. A writer goroutine feeds audio from
// the ingestion channel; the run loop reads result frames and emits events.
type session struct {
	conn   *websocket.Conn
	req    stt.Request
	events chan provider.RecognitionEvent

	writeMu sync.Mutex
}

// run drives the stream until a terminal condition.
func (s *session) run(ctx context.Context) {
	defer close(s.events)
	defer s.conn.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timedOut := false
	dog := provider.NewWatchdog(s.req.EventTimeout(), func() {
		timedOut = true
		s.conn.Close()
		cancel()
	})
	defer dog.Stop()

	// Cancellation must interrupt the blocking read within one cycle.
	go func() {
		<-streamCtx.Done()
		s.conn.Close()
	}()

	streamID := "stt-" + uuid.NewString()
	s.events <- provider.RecognitionEvent{Type: provider.EventStart, StreamID: streamID}

	writeDone := make(chan struct{})
	go s.writeLoop(streamCtx, writeDone)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.events <- s.terminal(ctx, streamID, timedOut, err)
			return
		}
		dog.Rearm()

		res, ok, perr := parseResultFrame(raw)
		if perr != nil {
			s.events <- provider.RecognitionEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonError, Err: perr}
			return
		}
		if !ok {
			continue
		}
		if res.text == "" {
			continue
		}
		s.events <- provider.RecognitionEvent{
			Type:     provider.EventTranscript,
			StreamID: streamID,
			Text:     res.text,
			IsFinal:  res.isFinal,
		}
	}
}

// terminal classifies a read-loop exit into the stream's end event.
func (s *session) terminal(ctx context.Context, streamID string, timedOut bool, readErr error) provider.RecognitionEvent {
	ev := provider.RecognitionEvent{Type: provider.EventEnd, StreamID: streamID}
	switch {
	case ctx.Err() != nil:
		ev.Reason = provider.ReasonStopped
	case timedOut:
		ev.Reason = provider.ReasonError
		ev.Err = provider.Errf(providerName, provider.CodeStreamTimeout, "no event within watchdog window")
	case websocket.IsCloseError(readErr, websocket.CloseNormalClosure):
		ev.Reason = provider.ReasonComplete
	default:
		ev.Reason = provider.ReasonError
		ev.Err = provider.Errf(providerName, provider.CodeProtocol, "read: %v", readErr)
	}
	return ev
}

// writeLoop forwards audio chunks from the ingestion channel to Deepgram.
// When the source closes it sends the CloseStream control frame so the
// backend flushes pending transcripts before closing the socket.
func (s *session) writeLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case chunk, ok := <-s.req.Source.Chunks():
			if !ok {
				s.writeMu.Lock()
				_ = s.conn.WriteJSON(struct {
					Type string `json:"type"`
				}{Type: "CloseStream"})
				s.writeMu.Unlock()
				return
			}
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, chunk)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ---- wire-shape parsing ----

// resultFrame is the canonicalised form of one Deepgram frame.
type resultFrame struct {
	text    string
	isFinal bool
}

// rawFrame sniffs the Deepgram response shapes we care about: Results
// frames with channel alternatives, Metadata frames (ignored), and the
// terminal close acknowledgement.
type rawFrame struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description,omitempty"`
}

// parseResultFrame maps a raw Deepgram message onto a resultFrame. Returns
// ok=false for frames that should be ignored.
func parseResultFrame(raw []byte) (resultFrame, bool, *provider.Error) {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return resultFrame{}, false, provider.Errf(providerName, provider.CodeProtocol, "unparseable frame: %v", err)
	}
	switch f.Type {
	case "Results":
		if len(f.Channel.Alternatives) == 0 {
			return resultFrame{}, false, nil
		}
		return resultFrame{
			text:    strings.TrimSpace(f.Channel.Alternatives[0].Transcript),
			isFinal: f.IsFinal,
		}, true, nil
	case "Metadata", "UtteranceEnd", "SpeechStarted":
		return resultFrame{}, false, nil
	case "Error":
		return resultFrame{}, false, provider.Errf(providerName, provider.CodeProtocol, "backend error: %s", f.Description)
	default:
		// Unknown frame types are tolerated; the protocol grows fields.
		return resultFrame{}, false, nil
	}
}
