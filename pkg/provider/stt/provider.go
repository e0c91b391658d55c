// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram)
// and exposes a uniform streaming interface: one call consumes an audio
// ingestion channel and produces a finite lazy sequence of
// [provider.RecognitionEvent] values: low-latency partials for
// responsiveness and barge-in, finals for the authoritative transcript.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"

	"github.com/voxguide/voxguide/pkg/audio"
	"github.com/voxguide/voxguide/pkg/provider"
)

// DefaultEventTimeout is the watchdog window applied when a request does
// not specify one. It is rearmed on every event received from the backend.
const DefaultEventTimeout = 30 * time.Second

// Request describes one recognition call.
type Request struct {
	// Source supplies the audio chunks. The provider consumes it until it
	// is closed, then asks the backend to flush pending transcripts.
	Source *audio.IngestChannel

	// Language is the recognition language tag (e.g. "en"). Callers should
	// normalise region subtags away before the call.
	Language string

	// Encoding names the audio encoding (e.g. "linear16").
	Encoding string

	// SampleRate is the audio sample rate in Hz.
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

// Provider is the abstraction over any STT backend.
//
// Transcribe returns a channel emitting the stream's events: a start event
// once the backend session is live, transcript events (partial and final),
// and exactly one end event, after which the channel is closed. The same
// cancellation, timeout, and classification contract as
// [github.com/voxguide/voxguide/pkg/provider/tts.Provider] applies.
type Provider interface {
	// Name identifies the backend in logs, metrics, and error values.
	Name() string

	Transcribe(ctx context.Context, req Request) (<-chan provider.RecognitionEvent, error)
}
