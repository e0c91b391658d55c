// Package local provides an offline demo TTS provider. Instead of calling
// a speech service it synthesises a soft placeholder tone sized to the
// utterance length, which lets the server run end to end without any API
// keys. Because nothing can transiently fail here, the provider reports
// Streaming() == false and the orchestrator gives it a single attempt.
package local

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/tts"
)

const (
	providerName = "local"

	// wordsPerSecond approximates a speaking pace for sizing the tone.
	wordsPerSecond = 2.5

	// toneHz is the placeholder tone frequency.
	toneHz = 220.0

	chunkSamples = 1600 // 100 ms at 16 kHz
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider with locally generated placeholder audio.
type Provider struct{}

// New creates a demo Provider.
func New() *Provider {
	return &Provider{}
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return providerName }

// Streaming implements tts.Provider. Always false: there is no network to
// be flaky, so retries are pointless.
func (p *Provider) Streaming() bool { return false }

// Synthesize emits a placeholder tone lasting roughly as long as the text
// would take to speak.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan provider.SynthesisEvent, error) {
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	words := len(strings.Fields(req.Text))
	if words == 0 {
		words = 1
	}
	totalSamples := int(float64(words) / wordsPerSecond * float64(sampleRate))

	events := make(chan provider.SynthesisEvent, 8)
	go func() {
		defer close(events)

		streamID := "tts-" + uuid.NewString()
		events <- provider.SynthesisEvent{
			Type:       provider.EventStart,
			StreamID:   streamID,
			MIMEType:   "audio/pcm",
			SampleRate: sampleRate,
		}

		seq := 0
		for off := 0; off < totalSamples; off += chunkSamples {
			if ctx.Err() != nil {
				events <- provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonStopped}
				return
			}
			n := min(chunkSamples, totalSamples-off)
			events <- provider.SynthesisEvent{
				Type:       provider.EventChunk,
				StreamID:   streamID,
				MIMEType:   "audio/pcm",
				SampleRate: sampleRate,
				Sequence:   seq,
				Audio:      tonePCM(off, n, sampleRate),
			}
			seq++
		}
		events <- provider.SynthesisEvent{Type: provider.EventEnd, StreamID: streamID, Reason: provider.ReasonComplete}
	}()
	return events, nil
}

// tonePCM renders n samples of a quiet sine tone as 16-bit little-endian PCM.
func tonePCM(offset, n, sampleRate int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(offset+i) / float64(sampleRate)
		sample := int16(3000 * math.Sin(2*math.Pi*toneHz*t))
		buf[i*2] = byte(sample)
		buf[i*2+1] = byte(sample >> 8)
	}
	return buf
}
