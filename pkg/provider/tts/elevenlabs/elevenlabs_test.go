package elevenlabs

import (
	"testing"

	"github.com/voxguide/voxguide/pkg/provider"
)

func TestParseAudioFrameFieldVariants(t *testing.T) {
	t.Parallel()

	// "cGNt" is base64 for "pcm".
	cases := []struct {
		name string
		raw  string
	}{
		{"audio", `{"audio":"cGNt"}`},
		{"audio_base64", `{"audio_base64":"cGNt"}`},
		{"audio_event", `{"audio_event":{"audio_base_64":"cGNt"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			frame, perr := parseAudioFrame([]byte(tc.raw))
			if perr != nil {
				t.Fatalf("parseAudioFrame: %v", perr)
			}
			if string(frame.pcm) != "pcm" {
				t.Errorf("pcm = %q, want \"pcm\"", frame.pcm)
			}
		})
	}
}

func TestParseAudioFrameFinalMarkers(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`{"isFinal":true}`, `{"is_final":true}`} {
		frame, perr := parseAudioFrame([]byte(raw))
		if perr != nil {
			t.Fatalf("parseAudioFrame(%s): %v", raw, perr)
		}
		if !frame.isFinal {
			t.Errorf("parseAudioFrame(%s): isFinal = false, want true", raw)
		}
	}
}

func TestParseAudioFrameInvalidBase64(t *testing.T) {
	t.Parallel()

	_, perr := parseAudioFrame([]byte(`{"audio":"%%%not-base64%%%"}`))
	if perr == nil || perr.Code != provider.CodeChunkDecode {
		t.Errorf("perr = %v, want chunk_decode_error", perr)
	}
}

func TestParseAudioFrameBackendError(t *testing.T) {
	t.Parallel()

	_, perr := parseAudioFrame([]byte(`{"error":"quota exceeded"}`))
	if perr == nil || perr.Code != provider.CodeRateLimit {
		t.Errorf("perr = %v, want rate_limit_error for quota message", perr)
	}

	_, perr = parseAudioFrame([]byte(`{"error":"something else"}`))
	if perr == nil || perr.Code != provider.CodeProtocol {
		t.Errorf("perr = %v, want protocol_error", perr)
	}
}

func TestParseAudioFrameKeepAlive(t *testing.T) {
	t.Parallel()

	frame, perr := parseAudioFrame([]byte(`{"message":"ping"}`))
	if perr != nil {
		t.Fatalf("parseAudioFrame: %v", perr)
	}
	if frame.isFinal || len(frame.pcm) != 0 {
		t.Errorf("keep-alive frame produced content: %+v", frame)
	}
}

func TestOutputFormat(t *testing.T) {
	t.Parallel()

	if got := outputFormat(24000); got != "pcm_24000" {
		t.Errorf("outputFormat(24000) = %q", got)
	}
	if got := outputFormat(12345); got != "pcm_16000" {
		t.Errorf("outputFormat(12345) = %q, want pcm_16000 default", got)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New(\"\") succeeded, want error")
	}
}
