package connection

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Retry timing defaults.
const (
	// DefaultInitialDelay is the delay before the first retry.
	DefaultInitialDelay = 1 * time.Second

	// DefaultMaxDelay caps the delay between retries.
	DefaultMaxDelay = 60 * time.Second

	// DefaultMultiplier is the growth factor between retries.
	DefaultMultiplier = 2.0

	// DefaultJitter is the maximum random extension as a fraction of
	// the base delay.
	DefaultJitter = 0.25
)

// BackoffConfig customizes retry timing. Zero durations and multiplier
// take the package defaults; zero jitter disables jitter.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Backoff produces the delay sequence between dial attempts:
// exponential growth to a cap, with random jitter on top so clients
// that lost the same server do not retry in lockstep.
type Backoff struct {
	mu sync.Mutex

	// base delay for the next attempt, before jitter
	base time.Duration

	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	attempts int
}

// NewBackoff creates a backoff schedule.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInitialDelay
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		base:       cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
	}
}

// Next returns the delay to wait before the next attempt and advances
// the schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.withJitter(b.base)

	b.attempts++
	grown := time.Duration(float64(b.base) * b.multiplier)
	if grown > b.max {
		grown = b.max
	}
	b.base = grown

	return delay
}

// Peek returns the delay the next attempt would wait, without
// advancing the schedule.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.withJitter(b.base)
}

// Reset restarts the schedule. Call after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last
// Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *Backoff) withJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*rand.Float64())
}
