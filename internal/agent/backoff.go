package agent

import (
	"math"
	"math/rand"
	"time"
)

type RetryKind string

const (
	// RetryConflict follows stopping a conflicting remote session.
	RetryConflict RetryKind = "conflict"
	// RetryStale follows a 409 with nothing listed as running.
	RetryStale RetryKind = "stale"
)

// RetryPolicy controls conflict retries. With the defaults every retry waits
// exactly ConflictDelay or StaleDelay.
type RetryPolicy struct {
	ConflictDelay time.Duration
	StaleDelay    time.Duration
	Multiplier    float64
	MaxDelay      time.Duration
	Jitter        bool
	// MaxAttempts caps start attempts in one retry chain. 0 means unbounded.
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ConflictDelay: 2000 * time.Millisecond,
		StaleDelay:    1000 * time.Millisecond,
		Multiplier:    1.0,
		MaxDelay:      30 * time.Second,
		MaxAttempts:   5,
	}
}

func (p RetryPolicy) WithDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.ConflictDelay <= 0 {
		p.ConflictDelay = def.ConflictDelay
	}
	if p.StaleDelay <= 0 {
		p.StaleDelay = def.StaleDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

// Exhausted reports whether attempt may not be followed by another one.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Delay returns the wait before the retry that follows attempt (1-based).
func (p RetryPolicy) Delay(kind RetryKind, attempt int, rng *rand.Rand) time.Duration {
	initial := p.ConflictDelay
	if kind == RetryStale {
		initial = p.StaleDelay
	}
	return NextBackoffDelay(initial, p.Multiplier, p.MaxDelay, p.Jitter, attempt, rng)
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(initial time.Duration, multiplier float64, maxDelay time.Duration, jitter bool, attempt int, rng *rand.Rand) time.Duration {
	if initial <= 0 {
		return 0
	}
	if attempt <= 1 && !jitter {
		return initial
	}
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	delay := float64(initial) * math.Pow(multiplier, float64(exp))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
