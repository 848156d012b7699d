package scheduler

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devsusana/tutorsync/internal/syncer"
)

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) PerformSync(ctx context.Context) (*syncer.Report, error) {
	r.runs.Add(1)
	return &syncer.Report{}, nil
}

func newTestScheduler(r Runner, debounce time.Duration) *Scheduler {
	return New(r, WithLogger(log.New(io.Discard, "", 0)), WithDebounce(debounce))
}

func waitForRuns(t *testing.T, r *countingRunner, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.runs.Load() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Runs = %d, want %d", r.runs.Load(), want)
}

func TestImmediateSyncDebounces(t *testing.T) {
	runner := &countingRunner{}
	s := newTestScheduler(runner, 30*time.Millisecond)
	defer s.Close()

	// A burst of edits collapses into one cycle.
	for i := 0; i < 10; i++ {
		s.ScheduleSyncNow()
	}
	waitForRuns(t, runner, 1)

	// The window stays closed: no trailing extra run.
	time.Sleep(60 * time.Millisecond)
	if got := runner.runs.Load(); got != 1 {
		t.Errorf("Runs after quiet period = %d, want 1", got)
	}
}

func TestPeriodicSyncKeepsExisting(t *testing.T) {
	runner := &countingRunner{}
	s := newTestScheduler(runner, time.Millisecond)
	defer s.Close()

	s.SchedulePeriodicSync(25 * time.Millisecond)
	// Re-scheduling while pending must not shorten or duplicate the task.
	s.SchedulePeriodicSync(time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	if got := runner.runs.Load(); got != 0 {
		t.Fatalf("Periodic ran early %d times; Keep policy violated", got)
	}
	waitForRuns(t, runner, 1)
}

func TestPeriodicSyncRearms(t *testing.T) {
	runner := &countingRunner{}
	s := newTestScheduler(runner, time.Millisecond)
	defer s.Close()

	s.SchedulePeriodicSync(20 * time.Millisecond)
	waitForRuns(t, runner, 1)
	waitForRuns(t, runner, 2)
}

func TestCancelAllSync(t *testing.T) {
	runner := &countingRunner{}
	s := newTestScheduler(runner, 20*time.Millisecond)
	defer s.Close()

	s.ScheduleSyncNow()
	s.SchedulePeriodicSync(20 * time.Millisecond)
	s.CancelAllSync()

	time.Sleep(60 * time.Millisecond)
	if got := runner.runs.Load(); got != 0 {
		t.Errorf("Cancelled tasks still ran %d times", got)
	}
}

func TestCloseStopsTasks(t *testing.T) {
	runner := &countingRunner{}
	s := newTestScheduler(runner, 10*time.Millisecond)

	s.ScheduleSyncNow()
	s.Close()

	time.Sleep(40 * time.Millisecond)
	if got := runner.runs.Load(); got != 0 {
		t.Errorf("Task ran after Close: %d", got)
	}

	// Scheduling after Close is a no-op, not a panic.
	s.ScheduleSyncNow()
	time.Sleep(30 * time.Millisecond)
	if got := runner.runs.Load(); got != 0 {
		t.Errorf("Task scheduled after Close ran: %d", got)
	}
}
