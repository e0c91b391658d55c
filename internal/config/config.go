// Package config defines the server configuration schema and its loader.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Speech    SpeechConfig    `yaml:"speech"`
	Audio     AudioConfig     `yaml:"audio"`
	Reprompt  RepromptConfig  `yaml:"reprompt"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	// ListenAddr is the address the gateway binds to.
	ListenAddr string `yaml:"listen_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// WriteQueueSize bounds the per-connection outbound queue.
	WriteQueueSize int `yaml:"write_queue_size"`
}

// ProvidersConfig selects and configures the speech backends.
type ProvidersConfig struct {
	// TTS is the primary synthesis backend.
	TTS ProviderEntry `yaml:"tts"`
	// TTSFallback, if set, is tried once after the primary is exhausted.
	TTSFallback *ProviderEntry `yaml:"tts_fallback,omitempty"`
	// STT is the recognition backend.
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry configures one backend by name.
type ProviderEntry struct {
	// Name selects the backend ("elevenlabs", "openai", "local",
	// "deepgram").
	Name string `yaml:"name"`
	// APIKey authenticates against the backend. Supports ${ENV_VAR}
	// expansion.
	APIKey string `yaml:"api_key,omitempty"`
	// Model overrides the backend's default model.
	Model string `yaml:"model,omitempty"`
	// VoiceID selects the synthesis voice, where the backend has voices.
	VoiceID string `yaml:"voice_id,omitempty"`
}

// SpeechConfig tunes the synthesis pipeline.
type SpeechConfig struct {
	// MaxRetries is the number of extra attempts after the first, for
	// streaming providers. Non-streaming providers always get one attempt.
	MaxRetries int `yaml:"max_retries"`
	// BackoffBase is the delay before the first retry; it doubles per
	// attempt.
	BackoffBase Duration `yaml:"backoff_base"`
	// BackoffCap clamps the backoff delay.
	BackoffCap Duration `yaml:"backoff_cap"`
	// EventTimeout is the per-event watchdog window on provider streams.
	EventTimeout Duration `yaml:"event_timeout"`
	// SampleRate is the synthesis output sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`
}

// AudioConfig tunes the inbound audio path.
type AudioConfig struct {
	// Encoding is the required inbound encoding (e.g. "linear16").
	Encoding string `yaml:"encoding"`
	// SampleRate is the required inbound sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`
	// IngestCapacity bounds the per-stream chunk buffer. Overflow drops
	// the oldest chunk.
	IngestCapacity int `yaml:"ingest_capacity"`
	// NoSpeechGrace is how long after audio-end to wait for a transcript
	// before declaring the stream empty.
	NoSpeechGrace Duration `yaml:"no_speech_grace"`
	// Language is the default recognition language tag.
	Language string `yaml:"language"`
}

// RepromptConfig tunes the idle reprompt scheduler.
type RepromptConfig struct {
	// Enabled turns the scheduler on.
	Enabled bool `yaml:"enabled"`
	// IdleAfter is the silence window before a reprompt fires.
	IdleAfter Duration `yaml:"idle_after"`
}

// Default returns a Config with every knob at its default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:     ":8080",
			LogLevel:       "info",
			WriteQueueSize: 128,
		},
		Providers: ProvidersConfig{
			TTS: ProviderEntry{Name: "local"},
			STT: ProviderEntry{Name: "deepgram"},
		},
		Speech: SpeechConfig{
			MaxRetries:   2,
			BackoffBase:  Duration(250 * time.Millisecond),
			BackoffCap:   Duration(1500 * time.Millisecond),
			EventTimeout: Duration(10 * time.Second),
			SampleRate:   24000,
		},
		Audio: AudioConfig{
			Encoding:       "linear16",
			SampleRate:     16000,
			IngestCapacity: 256,
			NoSpeechGrace:  Duration(1500 * time.Millisecond),
			Language:       "en",
		},
		Reprompt: RepromptConfig{
			Enabled:   true,
			IdleAfter: Duration(30 * time.Second),
		},
	}
}

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level: unknown level %q", c.Server.LogLevel)
	}
	if c.Server.WriteQueueSize <= 0 {
		return fmt.Errorf("server.write_queue_size must be positive")
	}
	if c.Providers.TTS.Name == "" {
		return fmt.Errorf("providers.tts.name must not be empty")
	}
	if c.Providers.STT.Name == "" {
		return fmt.Errorf("providers.stt.name must not be empty")
	}
	if c.Providers.TTSFallback != nil && c.Providers.TTSFallback.Name == "" {
		return fmt.Errorf("providers.tts_fallback.name must not be empty when set")
	}
	if c.Speech.MaxRetries < 0 {
		return fmt.Errorf("speech.max_retries must not be negative")
	}
	if c.Speech.BackoffBase <= 0 || c.Speech.BackoffCap < c.Speech.BackoffBase {
		return fmt.Errorf("speech backoff window invalid: base=%s cap=%s", c.Speech.BackoffBase, c.Speech.BackoffCap)
	}
	if c.Speech.SampleRate <= 0 {
		return fmt.Errorf("speech.sample_rate must be positive")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Audio.Encoding == "" {
		return fmt.Errorf("audio.encoding must not be empty")
	}
	if c.Audio.IngestCapacity <= 0 {
		return fmt.Errorf("audio.ingest_capacity must be positive")
	}
	if c.Reprompt.Enabled && c.Reprompt.IdleAfter <= 0 {
		return fmt.Errorf("reprompt.idle_after must be positive when enabled")
	}
	return nil
}
