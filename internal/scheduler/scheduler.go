// Package scheduler queues named, delayed sync tasks.
//
// Tasks are identified by name and carry a conflict policy: Replace cancels
// a pending task with the same name and re-arms the delay (debouncing rapid
// local edits into one cycle), Keep leaves the pending task in place.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/devsusana/tutorsync/internal/syncer"
)

// Task names used by the sync engine.
const (
	TaskImmediateSync = "immediate_sync"
	TaskPeriodicSync  = "periodic_sync"
)

// DefaultDebounce is how long an immediate sync waits for further edits
// before running.
const DefaultDebounce = 2 * time.Second

// Policy decides what happens when a task is scheduled under a name that
// already has a pending task.
type Policy int

const (
	// Replace cancels the pending task and arms a fresh one.
	Replace Policy = iota
	// Keep leaves the pending task untouched and drops the new request.
	Keep
)

// Runner executes one sync cycle. *syncer.Synchronizer satisfies it.
type Runner interface {
	PerformSync(ctx context.Context) (*syncer.Report, error)
}

type task struct {
	timer    *time.Timer
	periodic bool
}

// Scheduler owns the pending task table. All methods are safe for
// concurrent use.
type Scheduler struct {
	runner   Runner
	logger   *log.Logger
	debounce time.Duration

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the task logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithDebounce overrides the immediate-sync debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) { s.debounce = d }
}

// New builds a Scheduler around the given runner.
func New(r Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   r,
		logger:   log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
		debounce: DefaultDebounce,
		tasks:    make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arms a named task to run fn after delay, subject to the policy.
// A periodic task re-arms itself with the same delay after every run.
func (s *Scheduler) Schedule(name string, delay time.Duration, policy Policy, periodic bool, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if existing, ok := s.tasks[name]; ok {
		if policy == Keep {
			return
		}
		existing.timer.Stop()
	}

	t := &task{periodic: periodic}
	t.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.closed || s.tasks[name] != t {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		fn()

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.tasks[name] != t {
			// Replaced or cancelled while running.
			return
		}
		if t.periodic && !s.closed {
			t.timer.Reset(delay)
		} else {
			delete(s.tasks, name)
		}
	})
	s.tasks[name] = t
}

// Cancel stops the named pending task if there is one.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.timer.Stop()
		delete(s.tasks, name)
	}
}

// ScheduleSyncNow queues a debounced sync cycle. Bursts of local edits
// collapse into a single cycle: each call replaces the pending one and
// restarts the debounce window.
func (s *Scheduler) ScheduleSyncNow() {
	s.Schedule(TaskImmediateSync, s.debounce, Replace, false, s.runSync)
}

// SchedulePeriodicSync queues a recurring sync every interval. Repeated
// calls while one is pending are no-ops.
func (s *Scheduler) SchedulePeriodicSync(interval time.Duration) {
	s.Schedule(TaskPeriodicSync, interval, Keep, true, s.runSync)
}

// CancelAllSync drops every pending sync task.
func (s *Scheduler) CancelAllSync() {
	s.Cancel(TaskImmediateSync)
	s.Cancel(TaskPeriodicSync)
}

// Close cancels everything and waits for an in-flight run to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for name, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) runSync() {
	report, err := s.runner.PerformSync(context.Background())
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		// Another cycle is running; the next scheduled task catches up.
		s.logger.Printf("cycle skipped: already in progress")
	case err != nil:
		s.logger.Printf("cycle failed: %v", err)
	default:
		s.logger.Printf("cycle ok: up=%d del=%d down=%d", report.Uploaded, report.Deleted, report.Downloaded)
	}
}
