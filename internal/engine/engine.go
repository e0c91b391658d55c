// Package engine defines the step-engine contract the session layer drives.
//
// A step engine owns the guidance content of one session: it decides what
// the assistant says, which step the user is on, and when the session is
// done. The session layer treats it as opaque and only routes commands in
// and results out.
package engine

import "context"

// Status is the engine's coarse lifecycle state.
type Status string

const (
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusActive               Status = "active"
	StatusPaused               Status = "paused"
	StatusCompleted            Status = "completed"
)

// State is the engine's reported position.
type State struct {
	Status           Status
	CurrentStepIndex int
	TotalSteps       int
}

// Document is one supporting reference the engine retrieved for a turn.
type Document struct {
	Title   string
	Snippet string
	Source  string
}

// Result is what the engine produced for one turn.
type Result struct {
	// Text is the assistant's display text for this turn.
	Text string

	// SpeechText, if non-empty, is the variant to synthesise instead of
	// Text. Empty means speak Text.
	SpeechText string

	// ShouldSpeak indicates whether the turn should be voiced at all.
	ShouldSpeak bool

	// Documents are the supporting references behind the turn, if the
	// engine retrieved any.
	Documents []Document

	// State is the engine state after the turn.
	State State
}

// SpokenText returns the text that should go to synthesis for the turn.
func (r Result) SpokenText() string {
	if r.SpeechText != "" {
		return r.SpeechText
	}
	return r.Text
}

// StepEngine drives the guidance content of one session.
//
// Implementations need not be safe for concurrent use; the session layer
// serialises turns.
type StepEngine interface {
	// Start initialises the engine for an issue and returns the opening
	// turn.
	Start(ctx context.Context, issue string) (Result, error)

	// HandleCommand advances the engine with one canonical command or a
	// free-form user utterance and returns the next turn.
	HandleCommand(ctx context.Context, command string) (Result, error)

	// State reports the current engine state without advancing it.
	State() State
}
