// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, the
// OpenAI speech API) and presents a uniform streaming interface: one call,
// one finite lazy sequence of [provider.SynthesisEvent] values. The
// sequence is never iterated twice for the same request; a retry is a new
// call.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"time"

	"github.com/voxguide/voxguide/pkg/provider"
)

// DefaultEventTimeout is the watchdog window applied when a request does
// not specify one. It is rearmed on every event received from the backend.
const DefaultEventTimeout = 10 * time.Second

// Request describes one synthesis call.
type Request struct {
	// Text is the full utterance to synthesise.
	Text string

	// VoiceID selects the provider-specific voice. Empty selects the
	// provider's default voice.
	VoiceID string

	// SampleRate is the requested output sample rate in Hz.
	SampleRate int

	// Timeout is the per-event watchdog window. Zero selects
	// [DefaultEventTimeout].
	Timeout time.Duration
}

// EventTimeout returns the effective watchdog window for the request.
func (r Request) EventTimeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultEventTimeout
	}
	return r.Timeout
}

// Provider is the abstraction over any TTS backend.
//
// Synthesize returns a channel emitting the stream's events: a start event
// once the backend acknowledges the request, audio chunks with sequence
// numbers increasing from 0, and exactly one end event, after which the
// channel is closed. Cancelling ctx must stop the underlying transport
// within one event cycle and terminate the stream with reason "stopped",
// never as an error. Backend failures terminate the stream with reason
// "error" and a classified [*provider.Error].
//
// A non-nil error return means the stream could not be started at all;
// the error is (or wraps) a *provider.Error.
type Provider interface {
	// Name identifies the backend in logs, metrics, and error values.
	Name() string

	// Streaming reports whether this backend is a real network streaming
	// service. Offline and demo providers return false; the orchestrator
	// gives those a single attempt since retrying cannot help.
	Streaming() bool

	Synthesize(ctx context.Context, req Request) (<-chan provider.SynthesisEvent, error)
}
