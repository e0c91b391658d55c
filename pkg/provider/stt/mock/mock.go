// Package mock provides a test double for the stt.Provider interface.
//
// The mock hands back a scripted event sequence and records the request so
// tests can verify language normalisation and the audio source wiring. Use
// Feed for streams whose events are produced while the test runs.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// StartErr, if non-nil, is returned directly from Transcribe.
	StartErr *provider.Error

	// Events, if non-nil, is the full scripted sequence emitted after the
	// start event. The mock prepends start and closes the channel after
	// the last scripted event. Stream IDs on scripted events are filled in
	// if empty.
	Events []provider.RecognitionEvent

	// Feed, if non-nil, is used as the event channel directly; the test
	// owns production and close. Events and Feed are mutually exclusive.
	Feed chan provider.RecognitionEvent

	// Calls records every Transcribe invocation in order.
	Calls []TranscribeCall

	// StreamIDs records the stream ID of each started stream.
	StreamIDs []string
}

// Name implements stt.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Transcribe records the call and plays back the scripted stream.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (<-chan provider.RecognitionEvent, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: req})
	n := len(p.Calls)

	if p.StartErr != nil {
		p.mu.Unlock()
		return nil, p.StartErr
	}

	if p.Feed != nil {
		p.mu.Unlock()
		return p.Feed, nil
	}

	streamID := fmt.Sprintf("mock-stt-%d", n)
	p.StreamIDs = append(p.StreamIDs, streamID)
	script := make([]provider.RecognitionEvent, len(p.Events))
	copy(script, p.Events)
	p.mu.Unlock()

	events := make(chan provider.RecognitionEvent, len(script)+2)
	go func() {
		defer close(events)
		events <- provider.RecognitionEvent{Type: provider.EventStart, StreamID: streamID}
		for _, ev := range script {
			if ev.StreamID == "" {
				ev.StreamID = streamID
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				events <- provider.RecognitionEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonStopped}
				return
			}
		}
	}()
	return events, nil
}
