// Package protocol defines the JSON message envelope exchanged over the
// per-session WebSocket connection, for both directions.
//
// Every frame is an [Envelope] with a type tag and an optional payload
// object. Payload structs live here so the gateway, the session layer, and
// tests agree on one wire shape.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type tags a protocol message.
type Type string

// Inbound message types (client → server).
const (
	TypeStartSession Type = "start_session"
	TypeStopSession  Type = "stop_session"
	TypeBargeIn      Type = "barge_in"
	TypeStartAudio   Type = "start_audio"
	TypeAudioChunk   Type = "audio_chunk"
	TypeEndAudio     Type = "end_audio"
	TypeVoiceCommand Type = "voice_command"
	TypeUserText     Type = "user_text"
)

// Outbound message types (server → client).
const (
	TypeSessionReady     Type = "session_ready"
	TypeEngineState      Type = "engine_state"
	TypeAssistantMessage Type = "assistant_message"
	TypeTranscript       Type = "transcript"
	TypeTTSStart         Type = "tts_start"
	TypeTTSChunk         Type = "tts_chunk"
	TypeTTSEnd           Type = "tts_end"
	TypeTTSStatus        Type = "tts_status"
	TypeTTSError         Type = "tts_error"
	TypeSTTMetrics       Type = "stt_metrics"
	TypeRAGContext       Type = "rag_context"
	TypeError            Type = "error"
)

// Envelope is the top-level frame shape in both directions.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses one raw frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("protocol: missing message type")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("protocol: %s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("protocol: %s: decode payload: %w", env.Type, err)
	}
	return nil
}

// Encode builds the wire form of one message.
func Encode(t Type, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: %s: encode payload: %w", t, err)
		}
		env.Payload = raw
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: %s: encode envelope: %w", t, err)
	}
	return raw, nil
}

// ---- inbound payloads ----

// StartSession opens a new session for an issue in a given interaction mode.
type StartSession struct {
	Issue string `json:"issue"`
	Mode  string `json:"mode,omitempty"`
}

// StartAudio announces an incoming audio stream.
type StartAudio struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language,omitempty"`
}

// AudioChunk carries one base64-encoded audio chunk.
type AudioChunk struct {
	Payload string `json:"payload"`
}

// VoiceCommand carries a spoken or typed control command.
type VoiceCommand struct {
	Command string `json:"command"`
}

// UserText carries typed user input. Non-final fragments are echoes only;
// final text enters the turn pipeline like a final transcript.
type UserText struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// ---- outbound payloads ----

// SessionReady acknowledges start_session.
type SessionReady struct {
	SessionID string `json:"session_id"`
}

// EngineState mirrors the step engine's reported state.
type EngineState struct {
	Phase            string `json:"phase"`
	Status           string `json:"status"`
	CurrentStepIndex int    `json:"current_step_index"`
	TotalSteps       int    `json:"total_steps"`
}

// AssistantMessage carries assistant text for display.
type AssistantMessage struct {
	Text string `json:"text"`
}

// Transcript carries one partial or final recognition result.
type Transcript struct {
	StreamID string `json:"stream_id"`
	Text     string `json:"text"`
	IsFinal  bool   `json:"is_final"`
}

// TTSStart announces a new synthesis stream.
type TTSStart struct {
	StreamID   string `json:"stream_id"`
	Provider   string `json:"provider"`
	MIMEType   string `json:"mime_type"`
	SampleRate int    `json:"sample_rate"`
}

// TTSChunk carries one base64-encoded synthesised audio chunk.
type TTSChunk struct {
	StreamID string `json:"stream_id"`
	Sequence int    `json:"sequence"`
	Payload  string `json:"payload"`
	MIMEType string `json:"mime_type,omitempty"`
}

// TTSEnd closes a synthesis stream.
type TTSEnd struct {
	StreamID string `json:"stream_id"`
	Reason   string `json:"reason"`
}

// TTSStatus reports synthesis progress so clients can render it.
// Stage is one of "attempting", "retrying", "falling_back".
type TTSStatus struct {
	Stage    string `json:"stage"`
	Provider string `json:"provider"`
	Attempt  int    `json:"attempt,omitempty"`
}

// TTSError reports a synthesis failure. Fatal means the request was
// abandoned; Retryable drives client-side retry affordances.
type TTSError struct {
	Provider  string `json:"provider"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Fatal     bool   `json:"fatal"`
}

// STTMetrics carries the aggregated metrics of one finished recognition
// stream.
type STTMetrics struct {
	StreamID             string `json:"stream_id"`
	Provider             string `json:"provider"`
	Partials             int    `json:"partials"`
	FirstTranscriptMs    int64  `json:"first_transcript_ms,omitempty"`
	FinalizeMs           int64  `json:"finalize_ms,omitempty"`
	AvgPartialIntervalMs int64  `json:"avg_partial_interval_ms,omitempty"`
	DroppedChunks        int64  `json:"dropped_chunks,omitempty"`
	NoSpeech             bool   `json:"no_speech,omitempty"`
}

// RAGDocument is one retrieved context document.
type RAGDocument struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
}

// RAGContext carries retrieved documents supporting the current step.
type RAGContext struct {
	Documents []RAGDocument `json:"documents"`
}

// ErrorMessage is the generic error frame.
type ErrorMessage struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
