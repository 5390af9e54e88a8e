package agenttest

import (
	"sync"
	"time"

	"github.com/danmuck/convoctl/internal/agent"
)

// ManualScheduler records scheduled units; tests fire them explicitly so no
// real time passes.
type ManualScheduler struct {
	mu      sync.Mutex
	stopped bool
	pending []Scheduled
	history []time.Duration
}

var _ agent.Scheduler = (*ManualScheduler)(nil)

type Scheduled struct {
	Delay time.Duration
	Fn    func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Schedule(delay time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return agent.ErrSchedulerStopped
	}
	s.pending = append(s.pending, Scheduled{Delay: delay, Fn: fn})
	s.history = append(s.history, delay)
	return nil
}

func (s *ManualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.pending = nil
}

// Pending returns the delays of units not yet fired.
func (s *ManualScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.Delay)
	}
	return out
}

// History returns every delay ever scheduled, in order.
func (s *ManualScheduler) History() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.history...)
}

// Fire runs the oldest pending unit on the calling goroutine. It reports
// false when nothing is pending.
func (s *ManualScheduler) Fire() bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return false
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	next.Fn()
	return true
}

// Drain fires pending units, including ones scheduled while draining, up to
// limit. It returns how many ran.
func (s *ManualScheduler) Drain(limit int) int {
	n := 0
	for n < limit && s.Fire() {
		n++
	}
	return n
}
