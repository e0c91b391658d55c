// Package script provides a self-contained StepEngine backed by a fixed
// step list. It exists so the server runs end to end without an external
// guidance backend: useful for demos, load tests, and local development.
package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxguide/voxguide/internal/engine"
)

// Compile-time interface assertion.
var _ engine.StepEngine = (*Engine)(nil)

// Canonical commands the engine understands. Anything else is treated as a
// free-form utterance and answered with a hint.
const (
	CommandConfirm = "confirm"
	CommandNext    = "next"
	CommandBack    = "back"
	CommandRepeat  = "repeat"
	CommandPause   = "pause"
	CommandResume  = "resume"
	CommandFinish  = "finish"
)

var defaultSteps = []string{
	"Unplug the device and wait ten seconds.",
	"Plug the device back in and watch the status light.",
	"When the light turns solid green, press and hold the reset button for five seconds.",
	"Release the button and wait for the device to restart.",
}

// Engine walks a fixed list of steps.
type Engine struct {
	issue  string
	steps  []string
	index  int
	status engine.Status
}

// New creates an Engine with the default step list.
func New() *Engine {
	return &Engine{steps: defaultSteps, status: engine.StatusAwaitingConfirmation}
}

// NewWithSteps creates an Engine with a caller-supplied step list.
func NewWithSteps(steps []string) *Engine {
	if len(steps) == 0 {
		steps = defaultSteps
	}
	return &Engine{steps: steps, status: engine.StatusAwaitingConfirmation}
}

// Start implements engine.StepEngine.
func (e *Engine) Start(_ context.Context, issue string) (engine.Result, error) {
	e.issue = issue
	e.index = 0
	e.status = engine.StatusAwaitingConfirmation
	text := fmt.Sprintf("I found a %d-step guide for %q. Say \"confirm\" to begin.", len(e.steps), issue)
	return e.result(text), nil
}

// HandleCommand implements engine.StepEngine.
func (e *Engine) HandleCommand(_ context.Context, command string) (engine.Result, error) {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case CommandConfirm:
		if e.status == engine.StatusAwaitingConfirmation {
			e.status = engine.StatusActive
			e.index = 0
			return e.stepResult(), nil
		}
		return e.result("We already started. Say \"repeat\" to hear the current step again."), nil
	case CommandNext:
		return e.advance(1), nil
	case CommandBack:
		return e.advance(-1), nil
	case CommandRepeat:
		if e.status == engine.StatusActive {
			return e.stepResult(), nil
		}
		return e.result("Nothing to repeat yet. Say \"confirm\" to begin."), nil
	case CommandPause:
		if e.status == engine.StatusActive {
			e.status = engine.StatusPaused
			return e.result("Paused. Say \"resume\" when you are ready."), nil
		}
		return e.result("There is nothing to pause right now."), nil
	case CommandResume:
		if e.status == engine.StatusPaused {
			e.status = engine.StatusActive
			return e.stepResult(), nil
		}
		return e.result("We are not paused."), nil
	case CommandFinish:
		e.status = engine.StatusCompleted
		return e.result("Glad that worked. Ending the session."), nil
	default:
		// Free-form utterance. A real engine would run retrieval here; the
		// scripted one nudges toward the command vocabulary.
		return e.result("You can say \"next\", \"back\", \"repeat\", \"pause\", or \"finish\"."), nil
	}
}

// State implements engine.StepEngine.
func (e *Engine) State() engine.State {
	return engine.State{Status: e.status, CurrentStepIndex: e.index, TotalSteps: len(e.steps)}
}

func (e *Engine) advance(delta int) engine.Result {
	if e.status == engine.StatusPaused {
		return e.result("We are paused. Say \"resume\" first.")
	}
	if e.status != engine.StatusActive {
		return e.result("We have not started yet. Say \"confirm\" to begin.")
	}
	next := e.index + delta
	if next < 0 {
		return e.result("You are already on the first step.")
	}
	if next >= len(e.steps) {
		e.status = engine.StatusCompleted
		return e.result("That was the last step. If the problem persists, say \"back\" to revisit a step.")
	}
	e.index = next
	return e.stepResult()
}

func (e *Engine) stepResult() engine.Result {
	text := fmt.Sprintf("Step %d of %d: %s", e.index+1, len(e.steps), e.steps[e.index])
	return e.result(text)
}

func (e *Engine) result(text string) engine.Result {
	return engine.Result{Text: text, ShouldSpeak: true, State: e.State()}
}
