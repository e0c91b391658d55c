package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voxguide/voxguide/internal/protocol"
	"github.com/voxguide/voxguide/pkg/audio"
	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/stt"
)

// recogStream is one live recognition stream and its bookkeeping.
type recogStream struct {
	source *audio.IngestChannel
	cancel context.CancelFunc

	providerName string

	mu                sync.Mutex
	streamID          string
	lastText          string
	partials          int
	sawTranscript     bool
	startedAt         time.Time
	firstTranscriptAt time.Time
	lastPartialAt     time.Time
	partialGapTotal   time.Duration
	audioEndedAt      time.Time
	finalAt           time.Time
	noSpeechTimer     *time.Timer

	finalizeOnce sync.Once
}

// stop aborts the stream: the source closes so the provider flushes, and
// the context cancels so it cannot linger.
func (r *recogStream) stop() {
	_ = r.source.Close()
	r.cancel()
	r.mu.Lock()
	if r.noSpeechTimer != nil {
		r.noSpeechTimer.Stop()
	}
	r.mu.Unlock()
}

// StartAudio validates the announced audio contract and opens a
// recognition stream. A previous stream, if any, is superseded.
func (s *Session) StartAudio(p protocol.StartAudio) error {
	s.touchUser()

	if !strings.EqualFold(p.Encoding, s.cfg.AudioEncoding) || p.SampleRate != s.cfg.AudioSampleRate {
		s.out.Send(protocol.TypeError, protocol.ErrorMessage{
			Code:      "audio_contract",
			Message:   "unsupported audio format: expected " + s.cfg.AudioEncoding,
			Retryable: false,
		})
		return nil
	}

	lang := p.Language
	if lang == "" {
		lang = s.cfg.Language
	}
	// Recognition backends want the bare language, not a region variant.
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}

	s.mu.Lock()
	prev := s.rec
	s.rec = nil
	s.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	rctx, cancel := context.WithCancel(s.ctx)
	rec := &recogStream{
		source:       audio.NewIngestChannel(s.cfg.IngestCapacity),
		cancel:       cancel,
		providerName: s.deps.Recognizer.Name(),
		startedAt:    time.Now(),
	}

	events, err := s.deps.Recognizer.Transcribe(rctx, stt.Request{
		Source:     rec.source,
		Language:   lang,
		Encoding:   s.cfg.AudioEncoding,
		SampleRate: s.cfg.AudioSampleRate,
	})
	if err != nil {
		cancel()
		perr := provider.Classify(rec.providerName, err)
		s.deps.Metrics.ProviderError(s.ctx, rec.providerName, string(perr.Code))
		s.out.Send(protocol.TypeError, protocol.ErrorMessage{
			Code:      string(perr.Code),
			Message:   "could not start transcription",
			Retryable: perr.Retryable,
		})
		return perr
	}

	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()

	s.deps.Metrics.StreamOpened(s.ctx, "recognition")
	s.wg.Add(1)
	go s.consumeRecognition(rec, events)
	return nil
}

// PushAudio forwards one decoded chunk to the active stream. Chunks that
// arrive with no stream open are dropped; the client raced audio-end.
func (s *Session) PushAudio(data []byte) {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec == nil {
		return
	}
	_ = rec.source.Push(data)
}

// EndAudio closes the inbound half and arms the no-speech grace timer: if
// the backend produces nothing before it fires, the user gets told instead
// of facing dead air.
func (s *Session) EndAudio() {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec == nil {
		return
	}
	_ = rec.source.Close()

	rec.mu.Lock()
	rec.audioEndedAt = time.Now()
	saw := rec.sawTranscript
	if !saw && rec.noSpeechTimer == nil {
		rec.noSpeechTimer = time.AfterFunc(s.cfg.NoSpeechGrace, func() {
			s.noSpeech(rec)
		})
	}
	rec.mu.Unlock()
}

// noSpeech fires when the grace window elapses with no transcript.
func (s *Session) noSpeech(rec *recogStream) {
	rec.mu.Lock()
	saw := rec.sawTranscript
	rec.mu.Unlock()
	if saw {
		return
	}
	s.deps.Metrics.NoSpeech(s.ctx)
	s.out.Send(protocol.TypeError, protocol.ErrorMessage{
		Code:      "no_speech",
		Message:   "didn't catch that, please try again",
		Retryable: true,
	})
	s.finalize(rec, "")
}

// consumeRecognition drains one provider stream.
func (s *Session) consumeRecognition(rec *recogStream, events <-chan provider.RecognitionEvent) {
	defer s.wg.Done()
	defer s.deps.Metrics.StreamClosed(s.ctx, "recognition")

	for ev := range events {
		switch ev.Type {
		case provider.EventStart:
			rec.mu.Lock()
			rec.streamID = ev.StreamID
			rec.mu.Unlock()
		case provider.EventTranscript:
			s.onTranscript(rec, ev)
		case provider.EventEnd:
			s.onRecognitionEnd(rec, ev)
		}
	}
}

// onTranscript handles one partial or final result. Any partial interrupts
// playback: the user talking always wins over the assistant talking.
func (s *Session) onTranscript(rec *recogStream, ev provider.RecognitionEvent) {
	rec.mu.Lock()
	// Only the first final counts; a duplicate is dropped entirely, frame
	// included.
	if ev.IsFinal && !rec.finalAt.IsZero() {
		rec.mu.Unlock()
		return
	}
	if !rec.sawTranscript {
		rec.sawTranscript = true
		rec.firstTranscriptAt = time.Now()
		if rec.noSpeechTimer != nil {
			rec.noSpeechTimer.Stop()
		}
	}
	rec.lastText = ev.Text
	if !ev.IsFinal {
		now := time.Now()
		if !rec.lastPartialAt.IsZero() {
			rec.partialGapTotal += now.Sub(rec.lastPartialAt)
		}
		rec.lastPartialAt = now
		rec.partials++
	}
	streamID := rec.streamID
	rec.mu.Unlock()

	s.touchUser()

	if !ev.IsFinal {
		s.interruptSpeech()
		s.deps.Metrics.BargeIn(s.ctx)
	}

	s.out.Send(protocol.TypeTranscript, protocol.Transcript{
		StreamID: streamID,
		Text:     ev.Text,
		IsFinal:  ev.IsFinal,
	})

	if ev.IsFinal {
		s.finalize(rec, ev.Text)
	}
}

// onRecognitionEnd closes out the stream's bookkeeping. The active stream
// pointer is cleared only if this stream still owns it; a superseding
// stream may already have taken over.
func (s *Session) onRecognitionEnd(rec *recogStream, ev provider.RecognitionEvent) {
	if ev.Reason == provider.ReasonError && ev.Err != nil {
		perr := provider.Classify(rec.providerName, ev.Err)
		s.deps.Metrics.ProviderError(s.ctx, rec.providerName, string(perr.Code))
		s.log.Warn("recognition stream failed", "provider", rec.providerName, "code", perr.Code, "error", perr.Message)
		s.out.Send(protocol.TypeError, protocol.ErrorMessage{
			Code:      string(perr.Code),
			Message:   "transcription ended unexpectedly",
			Retryable: perr.Retryable,
		})
	}

	rec.mu.Lock()
	lastText := rec.lastText
	saw := rec.sawTranscript
	rec.mu.Unlock()

	// A backend that completes without an explicit final still owes the
	// turn its best text.
	if ev.Reason == provider.ReasonComplete && saw {
		s.finalize(rec, lastText)
	}

	s.mu.Lock()
	if s.rec == rec {
		s.rec = nil
	}
	s.mu.Unlock()

	s.emitRecognitionMetrics(rec, !saw)
}

// finalize runs the turn for a stream's final text exactly once, no matter
// how many paths race to it.
func (s *Session) finalize(rec *recogStream, text string) {
	rec.finalizeOnce.Do(func() {
		rec.mu.Lock()
		if rec.noSpeechTimer != nil {
			rec.noSpeechTimer.Stop()
		}
		rec.finalAt = time.Now()
		ended := rec.audioEndedAt
		rec.mu.Unlock()

		if !ended.IsZero() {
			s.deps.Metrics.FinalizeLatency(s.ctx, rec.providerName, time.Since(ended))
		}
		if text != "" {
			s.handleUtterance(text)
		}
	})
}

// emitRecognitionMetrics reports the stream's aggregates to the client.
func (s *Session) emitRecognitionMetrics(rec *recogStream, noSpeech bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	m := protocol.STTMetrics{
		StreamID:      rec.streamID,
		Provider:      rec.providerName,
		Partials:      rec.partials,
		DroppedChunks: rec.source.Dropped(),
		NoSpeech:      noSpeech,
	}
	if !rec.firstTranscriptAt.IsZero() {
		m.FirstTranscriptMs = rec.firstTranscriptAt.Sub(rec.startedAt).Milliseconds()
	}
	if !rec.audioEndedAt.IsZero() && !rec.finalAt.IsZero() && rec.finalAt.After(rec.audioEndedAt) {
		m.FinalizeMs = rec.finalAt.Sub(rec.audioEndedAt).Milliseconds()
	}
	if rec.partials > 1 {
		m.AvgPartialIntervalMs = (rec.partialGapTotal / time.Duration(rec.partials-1)).Milliseconds()
	}
	s.deps.Metrics.DroppedChunks(s.ctx, m.DroppedChunks)
	s.out.Send(protocol.TypeSTTMetrics, m)
}
