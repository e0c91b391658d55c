// Package mock provides a test double for the engine.StepEngine interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxguide/voxguide/internal/engine"
)

// Compile-time interface assertion.
var _ engine.StepEngine = (*Engine)(nil)

// Engine is a scripted engine.StepEngine.
type Engine struct {
	mu sync.Mutex

	// StartResult is returned by Start.
	StartResult engine.Result
	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// Results scripts successive HandleCommand calls; the last result
	// repeats once the script runs out.
	Results []engine.Result
	// CommandErr, if non-nil, is returned by every HandleCommand call.
	CommandErr error

	// Commands records every command passed to HandleCommand.
	Commands []string

	state engine.State
}

// Start implements engine.StepEngine.
func (e *Engine) Start(_ context.Context, _ string) (engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StartErr != nil {
		return engine.Result{}, e.StartErr
	}
	e.state = e.StartResult.State
	return e.StartResult, nil
}

// HandleCommand implements engine.StepEngine.
func (e *Engine) HandleCommand(_ context.Context, command string) (engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commands = append(e.Commands, command)
	if e.CommandErr != nil {
		return engine.Result{}, e.CommandErr
	}
	if len(e.Results) == 0 {
		return engine.Result{State: e.state}, nil
	}
	idx := len(e.Commands) - 1
	if idx >= len(e.Results) {
		idx = len(e.Results) - 1
	}
	res := e.Results[idx]
	e.state = res.State
	return res, nil
}

// State implements engine.StepEngine.
func (e *Engine) State() engine.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CommandCount returns the number of HandleCommand invocations so far.
func (e *Engine) CommandCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Commands)
}
