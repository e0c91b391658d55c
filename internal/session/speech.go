package session

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/voxguide/voxguide/internal/protocol"
	"github.com/voxguide/voxguide/pkg/provider"
	"github.com/voxguide/voxguide/pkg/provider/tts"
)

// speechRequest is one queued utterance. Its context is cancelled when the
// request is superseded, barged in on, or the session closes.
type speechRequest struct {
	text   string
	ctx    context.Context
	cancel context.CancelFunc
}

// Speak queues an utterance for synthesis. A new utterance supersedes
// whatever is playing or queued: stale speech is worse than silence.
func (s *Session) Speak(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	req := &speechRequest{text: text, ctx: ctx, cancel: cancel}

	if s.currentSpeech != nil {
		s.currentSpeech.cancel()
	}
	s.mu.Unlock()

	s.drainSpeechQueue()

	select {
	case s.speechQ <- req:
	default:
		// Queue full despite the drain; the worker is wedged on teardown.
		cancel()
	}
}

// interruptSpeech aborts current playback and clears the queue without
// enqueueing anything new.
func (s *Session) interruptSpeech() {
	s.mu.Lock()
	if s.currentSpeech != nil {
		s.currentSpeech.cancel()
	}
	s.mu.Unlock()
	s.drainSpeechQueue()
}

func (s *Session) drainSpeechQueue() {
	for {
		select {
		case stale := <-s.speechQ:
			stale.cancel()
		default:
			return
		}
	}
}

// speechWorker serialises synthesis per session so utterances never
// interleave on the wire.
func (s *Session) speechWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case req := <-s.speechQ:
			if req.ctx.Err() != nil {
				continue
			}
			s.mu.Lock()
			s.currentSpeech = req
			s.mu.Unlock()
			s.runSpeech(req)
			s.mu.Lock()
			if s.currentSpeech == req {
				s.currentSpeech = nil
			}
			s.mu.Unlock()
			req.cancel()
		}
	}
}

// runSpeech drives one utterance through the primary provider with retries,
// then through the fallback once. Aborted requests never fall back.
func (s *Session) runSpeech(req *speechRequest) {
	done, lastErr := s.speakWith(req, s.deps.Primary)
	if done || req.ctx.Err() != nil {
		return
	}
	if s.deps.Fallback == nil {
		s.out.Send(protocol.TypeTTSError, fatalError(s.deps.Primary.Name(), lastErr))
		return
	}

	s.deps.Metrics.FallbackEngaged(s.ctx, s.deps.Fallback.Name())
	s.out.Send(protocol.TypeTTSStatus, protocol.TTSStatus{
		Stage:    "falling_back",
		Provider: s.deps.Fallback.Name(),
	})
	if done, _ := s.speakWith(req, s.deps.Fallback); !done && req.ctx.Err() == nil {
		// Both providers are spent for this utterance, but a fresh request
		// may still succeed.
		s.out.Send(protocol.TypeTTSError, protocol.TTSError{
			Provider:  s.deps.Fallback.Name(),
			Code:      string(provider.CodeUnknown),
			Message:   "all synthesis providers failed",
			Retryable: true,
			Fatal:     true,
		})
	}
}

// fatalError shapes the terminal failure frame from the last classified
// provider error.
func fatalError(providerName string, perr *provider.Error) protocol.TTSError {
	e := protocol.TTSError{
		Provider: providerName,
		Code:     string(provider.CodeUnknown),
		Message:  "synthesis failed and no fallback is configured",
		Fatal:    true,
	}
	if perr != nil {
		e.Code = string(perr.Code)
		e.Message = perr.Message
		e.Retryable = perr.Retryable
	}
	return e
}

// speakWith exhausts one provider's attempt budget. done is true when the
// utterance finished or was deliberately aborted; otherwise lastErr carries
// the final classified failure and the caller may fall back.
func (s *Session) speakWith(req *speechRequest, p tts.Provider) (done bool, lastErr *provider.Error) {
	attempts := s.cfg.Backoff.Attempts(p.Streaming())
	voiceID := s.cfg.VoiceID
	voiceRecovered := false

	for attempt := 1; attempt <= attempts; attempt++ {
		stage := "attempting"
		if attempt > 1 {
			stage = "retrying"
		}
		s.out.Send(protocol.TypeTTSStatus, protocol.TTSStatus{
			Stage:    stage,
			Provider: p.Name(),
			Attempt:  attempt,
		})

		perr, finished := s.attemptSynthesis(req, p, voiceID)
		if finished {
			s.deps.Metrics.SynthesisAttempt(s.ctx, p.Name(), "ok")
			return true, nil
		}
		if req.ctx.Err() != nil {
			s.deps.Metrics.SynthesisAttempt(s.ctx, p.Name(), "superseded")
			return true, nil
		}

		s.deps.Metrics.SynthesisAttempt(s.ctx, p.Name(), "error")
		if perr != nil {
			lastErr = perr
			s.deps.Metrics.ProviderError(s.ctx, p.Name(), string(perr.Code))
			s.log.Warn("synthesis attempt failed",
				"provider", p.Name(), "attempt", attempt, "code", perr.Code, "error", perr.Message)
			s.out.Send(protocol.TypeTTSError, protocol.TTSError{
				Provider:  p.Name(),
				Code:      string(perr.Code),
				Message:   perr.Message,
				Retryable: perr.Retryable,
				Fatal:     false,
			})

			// A bad voice ID would fail identically forever; retry once with
			// the provider default without spending an attempt.
			if isInvalidVoice(perr) && !voiceRecovered && voiceID != "" {
				voiceID = ""
				voiceRecovered = true
				attempt--
				continue
			}
			if !perr.Retryable {
				return false, lastErr
			}
		}

		if attempt < attempts {
			if !sleepCtx(req.ctx, s.cfg.Backoff.Delay(attempt)) {
				return true, nil
			}
		}
	}
	return false, lastErr
}

// attemptSynthesis runs one provider stream end to end, forwarding audio to
// the client. done is true only on a complete stream.
func (s *Session) attemptSynthesis(req *speechRequest, p tts.Provider, voiceID string) (perr *provider.Error, done bool) {
	started := time.Now()
	events, err := p.Synthesize(req.ctx, tts.Request{
		Text:       req.text,
		VoiceID:    voiceID,
		SampleRate: s.cfg.SampleRate,
		Timeout:    s.cfg.EventTimeout,
	})
	if err != nil {
		return provider.Classify(p.Name(), err), false
	}

	s.deps.Metrics.StreamOpened(s.ctx, "synthesis")
	defer s.deps.Metrics.StreamClosed(s.ctx, "synthesis")

	var streamID string
	firstChunk := true
	defer func() {
		s.clearActiveSpeech(streamID)
	}()

	for ev := range events {
		switch ev.Type {
		case provider.EventStart:
			streamID = ev.StreamID
			s.setActiveSpeech(streamID, req.cancel)
			s.out.Send(protocol.TypeTTSStart, protocol.TTSStart{
				StreamID:   streamID,
				Provider:   p.Name(),
				MIMEType:   ev.MIMEType,
				SampleRate: ev.SampleRate,
			})
		case provider.EventChunk:
			if firstChunk {
				firstChunk = false
				s.deps.Metrics.FirstChunk(s.ctx, p.Name(), time.Since(started))
			}
			s.out.Send(protocol.TypeTTSChunk, protocol.TTSChunk{
				StreamID: streamID,
				Sequence: ev.Sequence,
				Payload:  base64.StdEncoding.EncodeToString(ev.Audio),
				MIMEType: ev.MIMEType,
			})
		case provider.EventEnd:
			s.out.Send(protocol.TypeTTSEnd, protocol.TTSEnd{
				StreamID: streamID,
				Reason:   string(ev.Reason),
			})
			switch ev.Reason {
			case provider.ReasonComplete:
				s.deps.Metrics.SynthesisDone(s.ctx, p.Name(), time.Since(started))
				if ev.ThroughputKBps > 0 {
					s.log.Debug("synthesis complete",
						"provider", p.Name(), "stream_id", streamID, "throughput_kbps", ev.ThroughputKBps)
				}
				return nil, true
			case provider.ReasonStopped:
				return nil, false
			default:
				return provider.Classify(p.Name(), ev.Err), false
			}
		}
	}
	// Channel closed without an end event; treat as a protocol violation.
	return provider.Errf(p.Name(), provider.CodeProtocol, "stream closed without end event"), false
}

func (s *Session) setActiveSpeech(streamID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.activeSpeech = &activeStream{streamID: streamID, cancel: cancel}
	s.mu.Unlock()
}

// clearActiveSpeech removes the handle only if it still belongs to this
// stream; a superseding stream may have replaced it already.
func (s *Session) clearActiveSpeech(streamID string) {
	s.mu.Lock()
	if s.activeSpeech != nil && s.activeSpeech.streamID == streamID {
		s.activeSpeech = nil
	}
	s.mu.Unlock()
}

// ActiveSpeechID reports the stream ID currently playing, if any.
func (s *Session) ActiveSpeechID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeSpeech == nil {
		return ""
	}
	return s.activeSpeech.streamID
}

// isInvalidVoice recognises voice-not-found failures across backends.
func isInvalidVoice(perr *provider.Error) bool {
	if perr == nil {
		return false
	}
	msg := strings.ToLower(perr.Message)
	return strings.Contains(msg, "voice_not_found") || strings.Contains(msg, "invalid voice")
}

// sleepCtx waits d, returning false early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
