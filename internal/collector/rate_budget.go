package collector

import (
	"sync"
	"time"
)

// RateBudget tracks the shared remaining-request allowance and the instant
// it resets. One instance may be shared by several concurrent collectors;
// all access is serialized behind the mutex, never a package-level global.
type RateBudget struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
}

// NewRateBudget creates a budget primed with the source's default allowance.
func NewRateBudget(remaining int, resetAt time.Time) *RateBudget {
	if remaining < 0 {
		remaining = 0
	}
	return &RateBudget{remaining: remaining, resetAt: resetAt}
}

// Observe updates the budget from the latest response headers.
// resetAt acceptance is monotonic non-decreasing: a stale observation from
// an earlier window may only lower remaining, never rewind the reset time.
func (b *RateBudget) Observe(remaining int, resetAt time.Time) {
	if remaining < 0 {
		remaining = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if resetAt.Before(b.resetAt) {
		if remaining < b.remaining {
			b.remaining = remaining
		}
		return
	}

	b.remaining = remaining
	b.resetAt = resetAt
}

// ShouldPause reports whether the allowance has dropped to the pause
// threshold and requests should hold until the window resets.
func (b *RateBudget) ShouldPause(threshold int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining <= threshold
}

// WaitDuration returns how long to hold from now until the window resets,
// clamped at zero.
func (b *RateBudget) WaitDuration(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.resetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Snapshot returns the current remaining allowance and reset instant.
func (b *RateBudget) Snapshot() (remaining int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining, b.resetAt
}
