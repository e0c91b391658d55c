// Package resilience holds the retry policy applied to provider streams.
package resilience

import "time"

// Policy describes the bounded exponential backoff used between synthesis
// retries.
type Policy struct {
	// MaxRetries is the number of extra attempts after the first.
	MaxRetries int
	// Base is the delay before the first retry.
	Base time.Duration
	// Cap clamps the delay.
	Cap time.Duration
}

// DefaultPolicy matches the documented retry schedule: 250ms, 500ms,
// 1000ms, then 1500ms for every later attempt.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 2, Base: 250 * time.Millisecond, Cap: 1500 * time.Millisecond}
}

// Attempts returns how many attempts a provider gets. Non-streaming
// providers are not retried: replaying a full-utterance request doubles
// cost without improving latency.
func (p Policy) Attempts(streaming bool) int {
	if !streaming {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the backoff before the given retry. attempt counts from 1
// for the first retry.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base << (attempt - 1)
	if d > p.Cap || d <= 0 {
		return p.Cap
	}
	return d
}
