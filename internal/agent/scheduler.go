package agent

import (
	"errors"
	"sync"
	"time"
)

var ErrSchedulerStopped = errors.New("agent: scheduler stopped")

// Scheduler runs fn once after delay as an independent unit of work, never
// on the caller's stack.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) error
	Stop()
}

// TimerScheduler backs each scheduled unit with its own timer goroutine.
type TimerScheduler struct {
	mu      sync.Mutex
	stopped bool
	timers  map[*time.Timer]struct{}
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[*time.Timer]struct{})}
}

func (s *TimerScheduler) Schedule(delay time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[timer]
		delete(s.timers, timer)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	s.timers[timer] = struct{}{}
	return nil
}

// Pending returns the number of units not yet fired.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels pending units and rejects new ones.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for timer := range s.timers {
		timer.Stop()
		delete(s.timers, timer)
	}
}
