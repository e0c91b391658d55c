// Package provider defines the streaming contract shared by every speech
// backend: the canonical event unions emitted by synthesis and recognition
// streams, the error taxonomy with its retryable flag, and the watchdog
// used to guard streams against silent stalls.
//
// Adapters under pkg/provider/tts and pkg/provider/stt translate their
// backend's wire protocol (push callbacks, WebSocket frames, batch HTTP)
// into these types so that orchestrators never see vendor quirks.
package provider

import (
	"errors"
	"fmt"
)

// Code classifies a provider failure. The orchestrator uses the code (and
// the Retryable flag derived from it) to decide between retry, fallback,
// and immediate escalation.
type Code string

const (
	// CodeAuth indicates the backend rejected our credentials. Never retryable.
	CodeAuth Code = "auth_error"

	// CodeWSHandshake indicates the WebSocket dial or upgrade failed.
	CodeWSHandshake Code = "ws_handshake_error"

	// CodeProtocol indicates the backend sent a frame we could not interpret.
	CodeProtocol Code = "protocol_error"

	// CodeStreamTimeout indicates no event arrived within the watchdog window.
	CodeStreamTimeout Code = "stream_timeout"

	// CodeChunkDecode indicates an audio payload failed validation or decoding.
	// Retryable: the next attempt may produce a clean stream.
	CodeChunkDecode Code = "chunk_decode_error"

	// CodeRateLimit indicates the backend throttled us.
	CodeRateLimit Code = "rate_limit_error"

	// CodeUnknown covers everything else.
	CodeUnknown Code = "unknown_error"
)

// retryableByCode maps each code to its default retryable flag.
// Auth failures are the only categorically non-retryable class.
var retryableByCode = map[Code]bool{
	CodeAuth:          false,
	CodeWSHandshake:   true,
	CodeProtocol:      true,
	CodeStreamTimeout: true,
	CodeChunkDecode:   true,
	CodeRateLimit:     true,
	CodeUnknown:       true,
}

// Error is a classified provider failure. It implements the error interface
// so it can travel through ordinary error returns, and it is also carried
// inside terminal stream events.
type Error struct {
	// Provider names the backend that failed (e.g. "elevenlabs", "deepgram").
	Provider string

	// Code is the taxonomy bucket.
	Code Code

	// Retryable reports whether another attempt against the same backend is
	// worth making.
	Retryable bool

	// Message is a human-readable description, safe to forward to clients.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

// Errf constructs an [*Error] with the default retryable flag for code.
func Errf(providerName string, code Code, format string, args ...any) *Error {
	return &Error{
		Provider:  providerName,
		Code:      code,
		Retryable: retryableByCode[code],
		Message:   fmt.Sprintf(format, args...),
	}
}

// Classify converts an arbitrary error into an [*Error]. If err already is
// (or wraps) an *Error it is returned unchanged; otherwise it is wrapped as
// CodeUnknown attributed to providerName.
func Classify(providerName string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return Errf(providerName, CodeUnknown, "%v", err)
}
