package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadReaderAppliesDefaultsAndOverrides(t *testing.T) {
	doc := `
server:
  listen_addr: ":9090"
speech:
  max_retries: 5
`
	cfg, err := LoadReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Speech.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want 5", cfg.Speech.MaxRetries)
	}
	// Untouched knobs keep their defaults.
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log_level = %q, want default info", cfg.Server.LogLevel)
	}
	if cfg.Audio.NoSpeechGrace.D() != 1500*time.Millisecond {
		t.Errorf("no_speech_grace = %s, want default 1.5s", cfg.Audio.NoSpeechGrace)
	}
}

func TestLoadReaderExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DG_KEY", "sekret")
	doc := `
providers:
  stt:
    name: deepgram
    api_key: ${TEST_DG_KEY}
`
	cfg, err := LoadReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	if cfg.Providers.STT.APIKey != "sekret" {
		t.Errorf("api_key = %q, want expanded value", cfg.Providers.STT.APIKey)
	}
}

func TestLoadReaderRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := LoadReader(strings.NewReader("server:\n  listne_addr: \":1\"\n"))
	if err == nil {
		t.Error("LoadReader accepted a misspelled key")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []string{
		"server:\n  log_level: loud\n",
		"speech:\n  max_retries: -1\n",
		"speech:\n  backoff_base: 2s\n  backoff_cap: 1s\n",
		"audio:\n  sample_rate: 0\n",
		"reprompt:\n  enabled: true\n  idle_after: 0s\n",
	}
	for _, doc := range cases {
		if _, err := LoadReader(strings.NewReader(doc)); err == nil {
			t.Errorf("LoadReader(%q) succeeded, want validation error", doc)
		}
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Providers.TTS.Name != "local" {
		t.Errorf("defaults = %+v", cfg)
	}
}
