package provider

import (
	"sync"
	"time"
)

// Watchdog guards a stream against silent stalls. Adapters call Rearm on
// every received event; if the window elapses without a rearm the onTimeout
// callback fires exactly once and the watchdog disarms itself.
//
// All methods are safe for concurrent use.
type Watchdog struct {
	window    time.Duration
	onTimeout func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewWatchdog creates an armed Watchdog. onTimeout typically cancels the
// stream context so the adapter's read loop unwinds and reports
// [CodeStreamTimeout].
func NewWatchdog(window time.Duration, onTimeout func()) *Watchdog {
	w := &Watchdog{window: window, onTimeout: onTimeout}
	w.timer = time.AfterFunc(window, w.fire)
	return w
}

// Rearm restarts the window. A no-op after Stop or after the timeout fired.
func (w *Watchdog) Rearm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.timer.Reset(w.window)
}

// Stop disarms the watchdog. Safe to call repeatedly.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	w.timer.Stop()
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()
	w.onTimeout()
}
