package observe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/voxguide/voxguide"

// Metrics holds every instrument the server records against. A nil
// *Metrics is valid and records nothing, so tests can pass nil.
type Metrics struct {
	activeSessions metric.Int64UpDownCounter
	activeStreams  metric.Int64UpDownCounter

	synthesisAttempts metric.Int64Counter
	synthesisDuration metric.Float64Histogram
	timeToFirstChunk  metric.Float64Histogram
	providerErrors    metric.Int64Counter
	fallbacks         metric.Int64Counter

	finalizeLatency metric.Float64Histogram
	bargeIns        metric.Int64Counter
	noSpeech        metric.Int64Counter
	droppedChunks   metric.Int64Counter

	reprompts metric.Int64Counter
}

// NewMetrics registers all instruments on the given provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{}

	var err error
	if m.activeSessions, err = meter.Int64UpDownCounter("voxguide.sessions.active",
		metric.WithDescription("Number of live sessions")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.activeStreams, err = meter.Int64UpDownCounter("voxguide.streams.active",
		metric.WithDescription("Number of live provider streams, by kind")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.synthesisAttempts, err = meter.Int64Counter("voxguide.synthesis.attempts",
		metric.WithDescription("Synthesis attempts, by provider and outcome")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.synthesisDuration, err = meter.Float64Histogram("voxguide.synthesis.duration",
		metric.WithDescription("Wall time of completed synthesis streams"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.timeToFirstChunk, err = meter.Float64Histogram("voxguide.synthesis.first_chunk",
		metric.WithDescription("Latency from request to first audio chunk"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.providerErrors, err = meter.Int64Counter("voxguide.provider.errors",
		metric.WithDescription("Provider errors, by provider and code")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.fallbacks, err = meter.Int64Counter("voxguide.synthesis.fallbacks",
		metric.WithDescription("Times the fallback synthesis provider was engaged")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.finalizeLatency, err = meter.Float64Histogram("voxguide.recognition.finalize_latency",
		metric.WithDescription("Latency from audio end to final transcript"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.bargeIns, err = meter.Int64Counter("voxguide.recognition.barge_ins",
		metric.WithDescription("Playback interruptions triggered by user speech")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.noSpeech, err = meter.Int64Counter("voxguide.recognition.no_speech",
		metric.WithDescription("Recognition streams that produced no transcript")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.droppedChunks, err = meter.Int64Counter("voxguide.audio.dropped_chunks",
		metric.WithDescription("Inbound audio chunks dropped on ingest overflow")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	if m.reprompts, err = meter.Int64Counter("voxguide.reprompts",
		metric.WithDescription("Idle reprompts spoken")); err != nil {
		return nil, fmt.Errorf("observe: create instrument: %w", err)
	}
	return m, nil
}

// SessionStarted / SessionEnded track the live session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}

// StreamOpened / StreamClosed track live provider streams. kind is
// "synthesis" or "recognition".
func (m *Metrics) StreamOpened(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.activeStreams.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) StreamClosed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.activeStreams.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SynthesisAttempt records one attempt and its outcome ("ok", "error",
// "superseded").
func (m *Metrics) SynthesisAttempt(ctx context.Context, providerName, outcome string) {
	if m == nil {
		return
	}
	m.synthesisAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("outcome", outcome),
	))
}

// SynthesisDone records the wall time of a completed stream.
func (m *Metrics) SynthesisDone(ctx context.Context, providerName string, d time.Duration) {
	if m == nil {
		return
	}
	m.synthesisDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", providerName)))
}

// FirstChunk records the latency to the first audio chunk.
func (m *Metrics) FirstChunk(ctx context.Context, providerName string, d time.Duration) {
	if m == nil {
		return
	}
	m.timeToFirstChunk.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", providerName)))
}

// ProviderError records one classified provider failure.
func (m *Metrics) ProviderError(ctx context.Context, providerName, code string) {
	if m == nil {
		return
	}
	m.providerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerName),
		attribute.String("code", code),
	))
}

// FallbackEngaged records a switch to the fallback synthesis provider.
func (m *Metrics) FallbackEngaged(ctx context.Context, providerName string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", providerName)))
}

// FinalizeLatency records audio-end to final-transcript latency.
func (m *Metrics) FinalizeLatency(ctx context.Context, providerName string, d time.Duration) {
	if m == nil {
		return
	}
	m.finalizeLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", providerName)))
}

// BargeIn records one playback interruption.
func (m *Metrics) BargeIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.bargeIns.Add(ctx, 1)
}

// NoSpeech records one empty recognition stream.
func (m *Metrics) NoSpeech(ctx context.Context) {
	if m == nil {
		return
	}
	m.noSpeech.Add(ctx, 1)
}

// DroppedChunks records inbound chunks lost to ingest overflow.
func (m *Metrics) DroppedChunks(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedChunks.Add(ctx, n)
}

// Reprompt records one idle reprompt.
func (m *Metrics) Reprompt(ctx context.Context) {
	if m == nil {
		return
	}
	m.reprompts.Add(ctx, 1)
}
