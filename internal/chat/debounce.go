package chat

import (
	"sync"
	"time"
)

// AutoSubmitTimer debounces voice-driven auto-submit: every final transcript
// restarts the countdown, and submitting cancels it. Cancel is idempotent;
// canceling a timer that already fired (or was never armed) is a no-op, and a
// callback that loses the race with Cancel never runs.
type AutoSubmitTimer struct {
	mu    sync.Mutex
	delay time.Duration
	gen   uint64
	timer *time.Timer
}

// NewAutoSubmitTimer creates a timer with the given countdown (3s when zero).
func NewAutoSubmitTimer(delay time.Duration) *AutoSubmitTimer {
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &AutoSubmitTimer{delay: delay}
}

// Reset arms (or re-arms) the countdown; fn runs once when it expires,
// unless Reset or Cancel happens first.
func (t *AutoSubmitTimer) Reset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		current := t.gen == gen
		t.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Cancel stops any pending countdown. Safe to call repeatedly or after the
// timer fired.
func (t *AutoSubmitTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
