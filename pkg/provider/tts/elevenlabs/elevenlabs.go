// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider
// interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/tts"
)

const (
	providerName  = "elevenlabs"
	wsEndpointFmt = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	defaultModel  = "eleven_flash_v2_5"
	defaultVoice  = "21m00Tcm4TlvDq8ikWAM"

	eventChanBuf = 64
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey string
	model  string
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey: apiKey,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return providerName }

// Streaming implements tts.Provider.
func (p *Provider) Streaming() bool { return true }

// ---- WebSocket message types ----

// boiMessage is the initial "begin of input" handshake payload.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// textMessage is the JSON payload for a text fragment or the final flush.
type textMessage struct {
	Text string `json:"text"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize opens a WebSocket to ElevenLabs, sends the text, and returns
// a channel emitting canonical synthesis events.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan provider.SynthesisEvent, error) {
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = defaultVoice
	}
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, voiceID, p.model, outputFormat(sampleRate))
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, provider.Errf(providerName, provider.CodeAuth, "dial rejected: status %d", resp.StatusCode)
		}
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, provider.Errf(providerName, provider.CodeRateLimit, "dial throttled: status %d", resp.StatusCode)
		}
		return nil, provider.Errf(providerName, provider.CodeWSHandshake, "dial: %v", err)
	}

	boi := boiMessage{
		Text:          " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		XiAPIKey:      p.apiKey,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, provider.Errf(providerName, provider.CodeWSHandshake, "send BOI: %v", err)
	}

	events := make(chan provider.SynthesisEvent, eventChanBuf)
	go p.run(ctx, conn, req, sampleRate, events)
	return events, nil
}

// run drives one synthesis stream: writes the text, reads audio frames,
// and emits canonical events until a terminal condition.
func (p *Provider) run(ctx context.Context, conn *websocket.Conn, req tts.Request, sampleRate int, events chan<- provider.SynthesisEvent) {
	defer close(events)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timedOut := false
	dog := provider.NewWatchdog(req.EventTimeout(), func() {
		timedOut = true
		cancel()
	})
	defer dog.Stop()
	defer conn.Close(websocket.StatusNormalClosure, "done")

	streamID := newStreamID()
	events <- provider.SynthesisEvent{
		Type:       provider.EventStart,
		StreamID:   streamID,
		MIMEType:   "audio/pcm",
		SampleRate: sampleRate,
	}

	// The full utterance goes out in one fragment, followed by the flush
	// frame that tells ElevenLabs no more text is coming.
	for _, msg := range []textMessage{{Text: req.Text}, {Text: ""}} {
		b, _ := json.Marshal(msg)
		if err := conn.Write(streamCtx, websocket.MessageText, b); err != nil {
			events <- p.endEvent(ctx, streamID, timedOut, provider.Errf(providerName, provider.CodeProtocol, "write text: %v", err))
			return
		}
	}

	seq := 0
	started := time.Now()
	totalBytes := 0
	for {
		_, raw, err := conn.Read(streamCtx)
		if err != nil {
			if ctx.Err() != nil || timedOut {
				events <- p.endEvent(ctx, streamID, timedOut, nil)
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				events <- completeEvent(streamID, totalBytes, time.Since(started))
				return
			}
			events <- p.endEvent(ctx, streamID, timedOut, provider.Errf(providerName, provider.CodeProtocol, "read: %v", err))
			return
		}
		dog.Rearm()

		frame, perr := parseAudioFrame(raw)
		if perr != nil {
			events <- p.endEvent(ctx, streamID, timedOut, perr)
			return
		}
		if frame.isFinal {
			events <- completeEvent(streamID, totalBytes, time.Since(started))
			return
		}
		if len(frame.pcm) == 0 {
			continue
		}
		totalBytes += len(frame.pcm)
		events <- provider.SynthesisEvent{
			Type:       provider.EventChunk,
			StreamID:   streamID,
			MIMEType:   "audio/pcm",
			SampleRate: sampleRate,
			Sequence:   seq,
			Audio:      frame.pcm,
		}
		seq++
	}
}

// completeEvent builds the terminal event for a finished stream, carrying
// a throughput hint when any audio flowed.
func completeEvent(streamID string, totalBytes int, elapsed time.Duration) provider.SynthesisEvent {
	ev := provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonComplete}
	if totalBytes > 0 && elapsed > 0 {
		ev.ThroughputKBps = float64(totalBytes) / 1024 / elapsed.Seconds()
	}
	return ev
}

// endEvent builds the terminal event for an aborted stream. Caller
// cancellation wins over any pending error; a watchdog trip is reported as
// stream_timeout.
func (p *Provider) endEvent(ctx context.Context, streamID string, timedOut bool, perr *provider.Error) provider.SynthesisEvent {
	ev := provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID}
	switch {
	case ctx.Err() != nil:
		ev.Reason = provider.ReasonStopped
	case timedOut:
		ev.Reason = provider.ReasonError
		ev.Err = provider.Errf(providerName, provider.CodeStreamTimeout, "no event within watchdog window")
	default:
		ev.Reason = provider.ReasonError
		ev.Err = perr
	}
	return ev
}

// ---- wire-shape parsing ----

// audioFrame is the canonicalised form of one ElevenLabs WebSocket frame.
type audioFrame struct {
	pcm     []byte
	isFinal bool
}

// rawFrame sniffs the candidate field names ElevenLabs has used across API
// revisions for the audio payload and the end-of-stream marker.
type rawFrame struct {
	Audio       string `json:"audio"`
	AudioBase64 string `json:"audio_base64"`
	AudioEvent  *struct {
		AudioBase64 string `json:"audio_base_64"`
	} `json:"audio_event"`
	IsFinal *bool  `json:"isFinal"`
	Final   *bool  `json:"is_final"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// parseAudioFrame maps a raw WebSocket frame onto an audioFrame. Invalid
// base64 payloads are classified as chunk_decode_error.
func parseAudioFrame(raw []byte) (audioFrame, *provider.Error) {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return audioFrame{}, provider.Errf(providerName, provider.CodeProtocol, "unparseable frame: %v", err)
	}
	if f.Error != "" {
		code := provider.CodeProtocol
		if strings.Contains(strings.ToLower(f.Error), "quota") {
			code = provider.CodeRateLimit
		}
		return audioFrame{}, provider.Errf(providerName, code, "%s", f.Error)
	}
	if (f.IsFinal != nil && *f.IsFinal) || (f.Final != nil && *f.Final) {
		return audioFrame{isFinal: true}, nil
	}

	payload := f.Audio
	if payload == "" {
		payload = f.AudioBase64
	}
	if payload == "" && f.AudioEvent != nil {
		payload = f.AudioEvent.AudioBase64
	}
	if payload == "" {
		// Keep-alive or metadata frame; nothing to forward.
		return audioFrame{}, nil
	}

	pcm, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return audioFrame{}, provider.Errf(providerName, provider.CodeChunkDecode, "invalid base64 audio payload: %v", err)
	}
	return audioFrame{pcm: pcm}, nil
}

// outputFormat maps a sample rate onto the ElevenLabs output_format value.
func outputFormat(sampleRate int) string {
	switch sampleRate {
	case 8000:
		return "pcm_8000"
	case 22050:
		return "pcm_22050"
	case 24000:
		return "pcm_24000"
	case 44100:
		return "pcm_44100"
	default:
		return "pcm_16000"
	}
}

// newStreamID returns a fresh stream identifier.
func newStreamID() string {
	return "tts-" + uuid.NewString()
}
