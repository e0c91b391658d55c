package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrfRetryability(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code      Code
		retryable bool
	}{
		{CodeAuth, false},
		{CodeWSHandshake, true},
		{CodeProtocol, true},
		{CodeStreamTimeout, true},
		{CodeChunkDecode, true},
		{CodeRateLimit, true},
		{CodeUnknown, true},
	}
	for _, tc := range cases {
		err := Errf("p", tc.code, "boom")
		if err.Retryable != tc.retryable {
			t.Errorf("%s: Retryable = %v, want %v", tc.code, err.Retryable, tc.retryable)
		}
	}
}

func TestClassifyPassesThroughProviderErrors(t *testing.T) {
	t.Parallel()

	orig := Errf("elevenlabs", CodeAuth, "denied")
	wrapped := fmt.Errorf("synthesize: %w", orig)

	got := Classify("other", wrapped)
	if got.Code != CodeAuth || got.Provider != "elevenlabs" {
		t.Errorf("Classify = %+v, want original auth error preserved", got)
	}
}

func TestClassifyUnknown(t *testing.T) {
	t.Parallel()

	got := Classify("p", errors.New("socket torn"))
	if got.Code != CodeUnknown || !got.Retryable || got.Provider != "p" {
		t.Errorf("Classify = %+v, want retryable unknown_error for p", got)
	}
}
