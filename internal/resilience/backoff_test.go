package resilience

import (
	"testing"
	"time"
)

func TestDelaySchedule(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	want := []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		1500 * time.Millisecond,
	}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestDelayClampsBadAttempt(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	if got := p.Delay(0); got != p.Base {
		t.Errorf("Delay(0) = %s, want base %s", got, p.Base)
	}
	// Large attempts must not overflow into a negative shift result.
	if got := p.Delay(60); got != p.Cap {
		t.Errorf("Delay(60) = %s, want cap %s", got, p.Cap)
	}
}

func TestAttempts(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetries: 2, Base: time.Millisecond, Cap: time.Second}
	if got := p.Attempts(true); got != 3 {
		t.Errorf("Attempts(streaming) = %d, want 3", got)
	}
	if got := p.Attempts(false); got != 1 {
		t.Errorf("Attempts(non-streaming) = %d, want 1", got)
	}
}
