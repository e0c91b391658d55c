package session

import (
	"fmt"
	"time"

	"github.com/voxguide/voxguide/internal/engine"
)

// repromptText is what the assistant says after the idle window elapses.
const repromptText = "Are you still there? Say \"repeat\" to hear the step again, or \"next\" to continue."

// scheduleReprompt (re)arms the idle timer. Called on every activity.
func (s *Session) scheduleReprompt() {
	if !s.cfg.RepromptEnabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.repromptTimer != nil {
		s.repromptTimer.Stop()
	}
	s.repromptTimer = time.AfterFunc(s.cfg.RepromptIdle, s.fireReprompt)
}

// fireReprompt speaks the idle prompt at most once per engine state: if
// the session is still in the state it was last reprompted in, firing
// again would just nag. A fire that lands while speech is still playing,
// or that raced a fresh activity, waits for another full idle window.
func (s *Session) fireReprompt() {
	st := s.State()
	if st.Status == engine.StatusCompleted {
		return
	}
	key := repromptKey(st)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.activeSpeech != nil || time.Since(s.lastActivity) < s.cfg.RepromptIdle {
		s.mu.Unlock()
		s.scheduleReprompt()
		return
	}
	if key == s.lastRepromptKey {
		s.mu.Unlock()
		return
	}
	s.lastRepromptKey = key
	s.mu.Unlock()

	s.log.Debug("idle reprompt", "state", key)
	s.deps.Metrics.Reprompt(s.ctx)
	s.Speak(repromptText)
}

// repromptKey identifies the engine state for suppression purposes. Moving
// to a new step or a new status makes the session eligible again.
func repromptKey(st engine.State) string {
	return fmt.Sprintf("%s:%d", st.Status, st.CurrentStepIndex)
}
