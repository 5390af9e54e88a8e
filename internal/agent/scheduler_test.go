package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/convoctl/internal/testutil/testlog"
)

func TestTimerSchedulerRunsUnitOffCallerStack(t *testing.T) {
	testlog.Start(t)
	s := NewTimerScheduler()
	defer s.Stop()

	done := make(chan struct{})
	if err := s.Schedule(5*time.Millisecond, func() { close(done) }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := s.Pending(); got != 1 {
		t.Fatalf("expected one pending unit, got %d", got)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduled unit never ran")
	}
}

func TestTimerSchedulerStopCancelsPending(t *testing.T) {
	testlog.Start(t)
	s := NewTimerScheduler()

	fired := make(chan struct{}, 1)
	if err := s.Schedule(30*time.Millisecond, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Stop()
	if got := s.Pending(); got != 0 {
		t.Fatalf("expected no pending units after stop, got %d", got)
	}

	select {
	case <-fired:
		t.Fatalf("unit fired after stop")
	case <-time.After(80 * time.Millisecond):
	}

	if err := s.Schedule(time.Millisecond, func() {}); !errors.Is(err, ErrSchedulerStopped) {
		t.Fatalf("expected ErrSchedulerStopped, got %v", err)
	}
}
