// Package session implements the per-connection session: engine turns,
// the serialized speech pipeline with retry and fallback, streaming
// recognition with barge-in, and the idle reprompt scheduler.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxguide/voxguide/internal/engine"
	"github.com/voxguide/voxguide/internal/observe"
	"github.com/voxguide/voxguide/internal/protocol"
	"github.com/voxguide/voxguide/internal/resilience"
	"github.com/voxguide/voxguide/internal/voicecmd"
	"github.com/voxguide/voxguide/pkg/provider/stt"
	"github.com/voxguide/voxguide/pkg/provider/tts"
)

// Interaction modes. Voice sessions speak engine turns; text sessions only
// send them as messages.
const (
	ModeVoice = "voice"
	ModeText  = "text"
)

// Sender delivers outbound protocol messages to the client. Implementations
// must be safe for concurrent use and must not block; the session calls it
// from several goroutines.
type Sender interface {
	Send(t protocol.Type, payload any)
}

// Config carries the per-session knobs, resolved from the server config.
type Config struct {
	VoiceID      string
	SampleRate   int
	EventTimeout time.Duration
	Backoff      resilience.Policy

	AudioEncoding   string
	AudioSampleRate int
	Language        string
	IngestCapacity  int
	NoSpeechGrace   time.Duration

	RepromptEnabled bool
	RepromptIdle    time.Duration
}

// Deps bundles the collaborators a session needs.
type Deps struct {
	Engine     engine.StepEngine
	Primary    tts.Provider
	Fallback   tts.Provider // may be nil
	Recognizer stt.Provider
	Commands   *voicecmd.Matcher
	Metrics    *observe.Metrics
	Log        *slog.Logger
}

// Session is one live client session.
type Session struct {
	ID        string
	Issue     string
	Mode      string
	CreatedAt time.Time

	cfg  Config
	deps Deps
	out  Sender
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// turnMu serialises engine turns; the engine itself need not be
	// concurrency-safe.
	turnMu sync.Mutex

	mu              sync.Mutex
	closed          bool
	speechQ         chan *speechRequest
	currentSpeech   *speechRequest
	activeSpeech    *activeStream
	rec             *recogStream
	lastActivity    time.Time
	repromptTimer   *time.Timer
	lastRepromptKey string

	closeOnce sync.Once
}

// activeStream is the cancellation handle of the synthesis stream currently
// playing, kept for barge-in and supersede.
type activeStream struct {
	streamID string
	cancel   context.CancelFunc
}

// New creates a session and starts its speech worker. Call Start to run the
// engine's opening turn.
func New(ctx context.Context, issue, mode string, out Sender, cfg Config, deps Deps) *Session {
	if mode == "" {
		mode = ModeVoice
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        uuid.NewString(),
		Issue:     issue,
		Mode:      mode,
		CreatedAt: time.Now(),
		cfg:       cfg,
		deps:      deps,
		out:       out,
		ctx:       sctx,
		cancel:    cancel,
		speechQ:   make(chan *speechRequest, 16),
	}
	s.log = deps.Log.With("session_id", s.ID)
	s.lastActivity = s.CreatedAt

	s.wg.Add(1)
	go s.speechWorker()

	deps.Metrics.SessionStarted(sctx)
	return s
}

// Start runs the engine's opening turn and acknowledges the session.
func (s *Session) Start() error {
	s.out.Send(protocol.TypeSessionReady, protocol.SessionReady{SessionID: s.ID})

	s.turnMu.Lock()
	res, err := s.deps.Engine.Start(s.ctx, s.Issue)
	s.turnMu.Unlock()
	if err != nil {
		return fmt.Errorf("session %s: engine start: %w", s.ID, err)
	}
	s.applyResult(res)
	return nil
}

// State reports the engine's current state. It takes the turn lock: the
// engine is not concurrency-safe and this is called off the turn path by
// the reprompt timer and the registry snapshot.
func (s *Session) State() engine.State {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	return s.deps.Engine.State()
}

// LastActivity reports when the session last saw user or assistant traffic.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// HandleVoiceCommand resolves a command frame against the vocabulary and
// runs the turn. Unmatched commands go to the engine verbatim.
func (s *Session) HandleVoiceCommand(command string) {
	s.touchUser()
	if canonical, ok := s.deps.Commands.Match(command); ok {
		command = canonical
	}
	s.runTurn(command)
}

// HandleUserText handles typed input. Only final text enters the turn
// pipeline; fragments just count as activity.
func (s *Session) HandleUserText(text string, isFinal bool) {
	s.touchUser()
	if !isFinal || text == "" {
		return
	}
	s.handleUtterance(text)
}

// BargeIn aborts the current playback on an explicit client request.
func (s *Session) BargeIn() {
	s.touchUser()
	s.interruptSpeech()
	s.deps.Metrics.BargeIn(s.ctx)
}

// handleUtterance routes recognised or typed user speech: command phrases
// become canonical commands, everything else is forwarded as-is.
func (s *Session) handleUtterance(text string) {
	if canonical, ok := s.deps.Commands.Match(text); ok {
		s.runTurn(canonical)
		return
	}
	s.runTurn(text)
}

// runTurn advances the engine by one command and applies the result.
func (s *Session) runTurn(command string) {
	s.turnMu.Lock()
	res, err := s.deps.Engine.HandleCommand(s.ctx, command)
	s.turnMu.Unlock()
	if err != nil {
		s.log.Error("engine turn failed", "command", command, "error", err)
		s.out.Send(protocol.TypeError, protocol.ErrorMessage{
			Code:      "engine_error",
			Message:   "could not process that, please try again",
			Retryable: true,
		})
		return
	}
	s.applyResult(res)
}

// applyResult publishes an engine turn: state first, then the message, then
// speech. New speech supersedes whatever is still playing.
func (s *Session) applyResult(res engine.Result) {
	st := res.State
	s.out.Send(protocol.TypeEngineState, protocol.EngineState{
		Phase:            phaseFor(st.Status),
		Status:           string(st.Status),
		CurrentStepIndex: st.CurrentStepIndex,
		TotalSteps:       st.TotalSteps,
	})
	if res.Text != "" {
		s.out.Send(protocol.TypeAssistantMessage, protocol.AssistantMessage{Text: res.Text})
	}
	if len(res.Documents) > 0 {
		docs := make([]protocol.RAGDocument, len(res.Documents))
		for i, d := range res.Documents {
			docs[i] = protocol.RAGDocument{Title: d.Title, Snippet: d.Snippet, Source: d.Source}
		}
		s.out.Send(protocol.TypeRAGContext, protocol.RAGContext{Documents: docs})
	}
	if res.ShouldSpeak && s.Mode != ModeText && res.SpokenText() != "" {
		s.Speak(res.SpokenText())
	}
	s.touch()
}

// phaseFor mirrors engine status onto the session phase shown to clients.
func phaseFor(st engine.Status) string {
	switch st {
	case engine.StatusAwaitingConfirmation:
		return "onboarding"
	case engine.StatusPaused:
		return "paused"
	case engine.StatusCompleted:
		return "completed"
	default:
		return "active"
	}
}

// touch records assistant-side activity and re-arms the reprompt
// scheduler.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
	s.scheduleReprompt()
}

// touchUser records user-initiated activity. The user doing anything
// restores reprompt eligibility for the current state.
func (s *Session) touchUser() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.lastRepromptKey = ""
	s.mu.Unlock()
	s.scheduleReprompt()
}

// Close tears the session down: reprompts stop, streams abort, the worker
// drains. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.repromptTimer != nil {
			s.repromptTimer.Stop()
			s.repromptTimer = nil
		}
		rec := s.rec
		s.rec = nil
		s.mu.Unlock()

		if rec != nil {
			rec.stop()
		}
		s.interruptSpeech()
		s.cancel()
		s.wg.Wait()
		s.deps.Metrics.SessionEnded(context.Background())
		s.log.Info("session closed", "issue", s.Issue)
	})
}
