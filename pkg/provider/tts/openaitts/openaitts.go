// Package openaitts provides a TTS provider backed by the OpenAI speech
// API. The API operates in batch mode (one HTTP call per utterance rather
// than a streaming socket), so Synthesize reads the response body in fixed
// slices and re-emits them as canonical chunk events. Output is 16-bit PCM
// at 24 kHz regardless of the requested sample rate.
//
// It is typically configured as the fallback behind a streaming primary.
package openaitts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/tts"
)

const (
	providerName = "openai"

	// pcmSampleRate is fixed by the OpenAI PCM response format.
	pcmSampleRate = 24000

	// pcmChunkSize is the size of each chunk emitted on the event channel.
	pcmChunkSize = 4096

	eventChanBuf = 64
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelGPT4oMiniTTS

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*config)

type config struct {
	baseURL string
	model   oai.SpeechModel
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model (e.g. "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = oai.SpeechModel(model)
	}
}

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  oai.SpeechModel
}

// New constructs a new OpenAI speech Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openaitts: apiKey must not be empty")
	}
	cfg := &config{model: DefaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return providerName }

// Streaming implements tts.Provider.
func (p *Provider) Streaming() bool { return true }

// Synthesize performs one speech API call and chunks the PCM response.
// The HTTP request is made with the watchdog's context so a trip aborts
// the transport, including a body read stalled mid-stream.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan provider.SynthesisEvent, error) {
	voice := oai.AudioSpeechNewParamsVoiceAlloy
	if req.VoiceID != "" {
		voice = oai.AudioSpeechNewParamsVoice(req.VoiceID)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	dog := provider.NewWatchdog(req.EventTimeout(), func() {
		timedOut.Store(true)
		cancel()
	})

	resp, err := p.client.Audio.Speech.New(streamCtx, oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		dog.Stop()
		cancel()
		if timedOut.Load() {
			return nil, provider.Errf(providerName, provider.CodeStreamTimeout, "no response within watchdog window")
		}
		return nil, classify(err)
	}
	dog.Rearm()

	events := make(chan provider.SynthesisEvent, eventChanBuf)
	go p.run(ctx, cancel, dog, &timedOut, resp, events)
	return events, nil
}

// run chunks the HTTP response body into canonical events. The body read
// observes the watchdog's context through the request, so a stall ends as
// a read error rather than a hang.
func (p *Provider) run(ctx context.Context, cancel context.CancelFunc, dog *provider.Watchdog, timedOut *atomic.Bool, resp *http.Response, events chan<- provider.SynthesisEvent) {
	defer close(events)
	defer resp.Body.Close()
	defer cancel()
	defer dog.Stop()

	streamID := "tts-" + uuid.NewString()
	events <- provider.SynthesisEvent{
		Type:       provider.EventStart,
		StreamID:   streamID,
		MIMEType:   "audio/pcm",
		SampleRate: pcmSampleRate,
	}

	buf := make([]byte, pcmChunkSize)
	seq := 0
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			dog.Rearm()
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			events <- provider.SynthesisEvent{
				Type:       provider.EventChunk,
				StreamID:   streamID,
				MIMEType:   "audio/pcm",
				SampleRate: pcmSampleRate,
				Sequence:   seq,
				Audio:      chunk,
			}
			seq++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				events <- provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonComplete}
				return
			}
			if ctx.Err() != nil || timedOut.Load() {
				events <- terminalEvent(ctx, streamID, timedOut.Load(), nil)
				return
			}
			events <- terminalEvent(ctx, streamID, false, provider.Errf(providerName, provider.CodeProtocol, "read body: %v", err))
			return
		}
	}
}

// terminalEvent builds the end event for an aborted stream. Caller
// cancellation is reported as stopped, a watchdog trip as stream_timeout.
func terminalEvent(ctx context.Context, streamID string, timedOut bool, perr *provider.Error) provider.SynthesisEvent {
	ev := provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID}
	switch {
	case ctx.Err() != nil:
		ev.Reason = provider.ReasonStopped
	case timedOut:
		ev.Reason = provider.ReasonError
		ev.Err = provider.Errf(providerName, provider.CodeStreamTimeout, "no data within watchdog window")
	default:
		ev.Reason = provider.ReasonError
		ev.Err = perr
	}
	return ev
}

// classify maps OpenAI SDK errors onto the provider taxonomy.
func classify(err error) *provider.Error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return provider.Errf(providerName, provider.CodeAuth, "request rejected: status %d", apiErr.StatusCode)
		case http.StatusTooManyRequests:
			return provider.Errf(providerName, provider.CodeRateLimit, "throttled: status %d", apiErr.StatusCode)
		default:
			return provider.Errf(providerName, provider.CodeProtocol, "status %d: %s", apiErr.StatusCode, apiErr.Message)
		}
	}
	return provider.Classify(providerName, err)
}
