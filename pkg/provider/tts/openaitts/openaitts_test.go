package openaitts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/tts"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New accepted an empty API key")
	}
}

// pcmServer serves a fixed PCM body for the speech endpoint.
func pcmServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSynthesizeChunksResponseBody(t *testing.T) {
	t.Parallel()

	body := make([]byte, pcmChunkSize+100)
	srv := pcmServer(t, body)

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events, err := p.Synthesize(context.Background(), tts.Request{Text: "hi", Timeout: time.Second})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var chunks, total int
	var end provider.SynthesisEvent
	for ev := range events {
		switch ev.Type {
		case provider.EventChunk:
			if ev.Sequence != chunks {
				t.Errorf("chunk %d has sequence %d", chunks, ev.Sequence)
			}
			chunks++
			total += len(ev.Audio)
		case provider.EventEnd:
			end = ev
		}
	}
	if end.Reason != provider.ReasonComplete {
		t.Fatalf("end reason = %q, want complete", end.Reason)
	}
	if total != len(body) {
		t.Errorf("forwarded %d bytes, want %d", total, len(body))
	}
	if chunks == 0 {
		t.Error("no chunk events emitted")
	}
}

// stalledServer sends headers and then never writes the body, simulating a
// backend that wedges mid-response.
func stalledServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/pcm")
		w.WriteHeader(http.StatusOK)
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

// waitTerminal reads events until the terminal end event arrives.
func waitTerminal(t *testing.T, events <-chan provider.SynthesisEvent) provider.SynthesisEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("stream closed without a terminal event")
			}
			if ev.Type == provider.EventEnd {
				return ev
			}
		case <-deadline:
			t.Fatal("no terminal event within deadline")
		}
	}
}

func TestWatchdogAbortsStalledBody(t *testing.T) {
	t.Parallel()

	srv := stalledServer(t)
	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, err := p.Synthesize(context.Background(), tts.Request{Text: "hi", Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	end := waitTerminal(t, events)
	if end.Reason != provider.ReasonError || end.Err == nil || end.Err.Code != provider.CodeStreamTimeout {
		t.Fatalf("end event = %+v, want stream_timeout error", end)
	}
}

func TestCancellationReportsStopped(t *testing.T) {
	t.Parallel()

	srv := stalledServer(t)
	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := p.Synthesize(ctx, tts.Request{Text: "hi", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	cancel()

	end := waitTerminal(t, events)
	if end.Reason != provider.ReasonStopped {
		t.Fatalf("end reason = %q, want stopped", end.Reason)
	}
}
