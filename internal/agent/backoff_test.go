package agent

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/convoctl/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	if got := NextBackoffDelay(250*time.Millisecond, 2.0, 5*time.Second, false, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(250*time.Millisecond, 2.0, 5*time.Second, false, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(250*time.Millisecond, 2.0, 5*time.Second, false, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(250*time.Millisecond, 2.0, 5*time.Second, false, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(250*time.Millisecond, 2.0, 5*time.Second, true, 1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestDefaultRetryPolicyUsesFixedDelays(t *testing.T) {
	testlog.Start(t)
	p := DefaultRetryPolicy()
	for attempt := 1; attempt <= 4; attempt++ {
		if got := p.Delay(RetryConflict, attempt, nil); got != 2000*time.Millisecond {
			t.Fatalf("conflict attempt%d got=%v", attempt, got)
		}
		if got := p.Delay(RetryStale, attempt, nil); got != 1000*time.Millisecond {
			t.Fatalf("stale attempt%d got=%v", attempt, got)
		}
	}
}

func TestRetryPolicyExhausted(t *testing.T) {
	testlog.Start(t)
	p := RetryPolicy{MaxAttempts: 3}.WithDefaults()
	if p.Exhausted(2) {
		t.Fatalf("attempt 2 of 3 should allow a retry")
	}
	if !p.Exhausted(3) {
		t.Fatalf("attempt 3 of 3 should be exhausted")
	}

	unbounded := RetryPolicy{MaxAttempts: -1}.WithDefaults()
	if unbounded.Exhausted(1000) {
		t.Fatalf("negative cap should mean unbounded")
	}
}

func TestRetryPolicyWithDefaultsKeepsOverrides(t *testing.T) {
	testlog.Start(t)
	p := RetryPolicy{ConflictDelay: 50 * time.Millisecond, Multiplier: 0.5}.WithDefaults()
	if p.ConflictDelay != 50*time.Millisecond {
		t.Fatalf("conflict delay overwritten: %v", p.ConflictDelay)
	}
	if p.StaleDelay != time.Second {
		t.Fatalf("stale delay default missing: %v", p.StaleDelay)
	}
	if p.Multiplier != 1.0 {
		t.Fatalf("multiplier below 1 should reset, got %v", p.Multiplier)
	}
}
