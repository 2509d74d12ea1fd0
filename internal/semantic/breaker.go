package semantic

import (
	"sync"
	"time"
)

// Breaker suspends semantic search after a run of consecutive timeouts and lets it
// try again once the cooldown has passed.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

// NewBreaker creates a breaker. A threshold of zero or less never opens.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a search may run now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.openUntil)
}

// Success resets the timeout run.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// Timeout records a timeout and opens the breaker when the run reaches the threshold.
func (b *Breaker) Timeout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.threshold > 0 && b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
		b.failures = 0
	}
}

// Open reports whether the breaker is currently open.
func (b *Breaker) Open() bool {
	return !b.Allow()
}
