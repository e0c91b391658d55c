package provider

// EventType tags the variants of the stream event unions.
type EventType string

const (
	// EventStart is the first event of every stream. It carries the
	// provider-acknowledged stream ID and, for synthesis, the audio format.
	EventStart EventType = "start"

	// EventChunk carries one synthesised audio payload. Synthesis only.
	EventChunk EventType = "chunk"

	// EventTranscript carries one partial or final transcript. Recognition only.
	EventTranscript EventType = "transcript"

	// EventEnd is the terminal event of every stream. After emitting it the
	// adapter closes the event channel; no further events follow.
	EventEnd EventType = "end"
)

// EndReason explains why a stream terminated.
type EndReason string

const (
	// ReasonComplete means the backend finished normally.
	ReasonComplete EndReason = "complete"

	// ReasonStopped means the caller cancelled the stream. Cancellation is
	// a normal outcome, not an error.
	ReasonStopped EndReason = "stopped"

	// ReasonError means the stream died; the event's Err field carries the
	// classified failure.
	ReasonError EndReason = "error"
)

// SynthesisEvent is one element of a text-to-speech event stream.
//
// The stream is a finite, non-restartable lazy sequence: start, zero or
// more chunks with Sequence increasing monotonically from 0, then exactly
// one end event, after which the channel is closed.
type SynthesisEvent struct {
	Type     EventType
	StreamID string

	// MIMEType and SampleRate describe the audio format. Set on start and
	// echoed on chunks.
	MIMEType   string
	SampleRate int

	// Sequence numbers chunks from 0 within the stream. Chunk only.
	Sequence int

	// Audio is the raw payload. Chunk only.
	Audio []byte

	// Reason and the optional fields below are set on end events.
	Reason EndReason

	// ThroughputKBps is a best-effort synthesis throughput hint, 0 if the
	// backend does not report one.
	ThroughputKBps float64

	// Err is set when Reason is ReasonError.
	Err *Error
}

// RecognitionEvent is one element of a speech-to-text event stream. The
// sequencing contract is the same as for [SynthesisEvent]: start, zero or
// more transcripts, one end, channel close.
type RecognitionEvent struct {
	Type     EventType
	StreamID string

	// Text and IsFinal are set on transcript events.
	Text    string
	IsFinal bool

	// Reason is set on end events; Err when Reason is ReasonError.
	Reason EndReason
	Err    *Error
}
