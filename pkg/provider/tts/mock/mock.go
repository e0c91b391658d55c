// Package mock provides a test double for the tts.Provider interface.
//
// Each call to Synthesize consumes the next scripted [Outcome] (the last
// outcome repeats once the script runs out), so a test can express "fail
// retryably twice, then succeed" directly.
//
// Example:
//
//	p := &mock.Provider{
//	    ProviderName: "primary",
//	    IsStreaming:  true,
//	    Outcomes: []mock.Outcome{
//	        {Err: provider.Errf("primary", provider.CodeProtocol, "glitch")},
//	        {Chunks: 3},
//	    },
//	}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Outcome scripts the behaviour of one Synthesize call.
type Outcome struct {
	// StartErr, if non-nil, is returned directly from Synthesize; no
	// stream is started.
	StartErr *provider.Error

	// Err, if non-nil, emits start followed by end{error} carrying it.
	Err *provider.Error

	// Chunks is the number of audio chunks emitted before end{complete}.
	Chunks int

	// BlockUntilCancel emits start and then waits for ctx cancellation,
	// terminating with end{stopped}. Used for supersede/barge-in tests.
	BlockUntilCancel bool
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// IsStreaming is returned by Streaming.
	IsStreaming bool

	// Outcomes scripts successive Synthesize calls in order. When the
	// script is exhausted the last outcome repeats. An empty script means
	// every call succeeds with one chunk.
	Outcomes []Outcome

	// Calls records every Synthesize invocation in order.
	Calls []SynthesizeCall

	// StreamIDs records the stream ID emitted by each started stream.
	StreamIDs []string
}

// Name implements tts.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Streaming implements tts.Provider.
func (p *Provider) Streaming() bool { return p.IsStreaming }

// CallCount returns the number of Synthesize invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Synthesize records the call and plays the next scripted outcome.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan provider.SynthesisEvent, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Req: req})
	idx := len(p.Calls) - 1

	var out Outcome
	if len(p.Outcomes) > 0 {
		if idx >= len(p.Outcomes) {
			idx = len(p.Outcomes) - 1
		}
		out = p.Outcomes[idx]
	} else {
		out = Outcome{Chunks: 1}
	}

	if out.StartErr != nil {
		p.mu.Unlock()
		return nil, out.StartErr
	}

	streamID := newStreamID(len(p.Calls))
	p.StreamIDs = append(p.StreamIDs, streamID)
	p.mu.Unlock()

	events := make(chan provider.SynthesisEvent, out.Chunks+2)
	go func() {
		defer close(events)
		events <- provider.SynthesisEvent{
			Type:       provider.EventStart,
			StreamID:   streamID,
			MIMEType:   "audio/pcm",
			SampleRate: req.SampleRate,
		}

		if out.BlockUntilCancel {
			<-ctx.Done()
			events <- provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonStopped}
			return
		}
		if out.Err != nil {
			events <- provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonError, Err: out.Err}
			return
		}
		for i := 0; i < out.Chunks; i++ {
			if ctx.Err() != nil {
				events <- provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonStopped}
				return
			}
			events <- provider.SynthesisEvent{
				Type:     provider.EventChunk,
				StreamID: streamID,
				Sequence: i,
				Audio:    []byte("pcm"),
			}
		}
		events <- provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonComplete}
	}()
	return events, nil
}

func newStreamID(n int) string {
	return fmt.Sprintf("mock-tts-%d", n)
}
