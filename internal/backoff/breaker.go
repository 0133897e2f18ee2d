// Package backoff holds the retry policy shared by the reconnecting components.
package backoff

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultRetryDelay is the pause after a failure while the breaker is closed.
	DefaultRetryDelay = 5 * time.Second
	// DefaultTripThreshold is the number of consecutive failures that trips the breaker.
	DefaultTripThreshold = 5
	// DefaultCooldown is the pause once the breaker trips.
	DefaultCooldown = 30 * time.Second
)

// Breaker counts consecutive failures. Below TripThreshold every failure asks
// for RetryDelay; reaching it asks for Cooldown and resets the counter.
type Breaker struct {
	RetryDelay    time.Duration
	TripThreshold int
	Cooldown      time.Duration

	mu       sync.Mutex
	failures int
}

// NewBreaker returns a breaker with the default 5s / 5 failures / 30s policy.
func NewBreaker() *Breaker {
	return &Breaker{
		RetryDelay:    DefaultRetryDelay,
		TripThreshold: DefaultTripThreshold,
		Cooldown:      DefaultCooldown,
	}
}

// Failure records a failure and returns how long to wait before retrying and
// whether this failure tripped the breaker.
func (b *Breaker) Failure() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures < b.TripThreshold {
		return b.RetryDelay, false
	}
	b.failures = 0
	return b.Cooldown, true
}

// Success resets the consecutive failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
