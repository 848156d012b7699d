// Package daemon runs the background sync loop: a periodic cycle plus a
// file watcher that turns local database writes into debounced immediate
// cycles.
package daemon

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/devsusana/tutorsync/internal/scheduler"
	"github.com/devsusana/tutorsync/internal/syncer"
)

// DefaultInterval is the periodic sync interval when none is configured.
const DefaultInterval = 15 * time.Minute

// writeGrace is how long after a sync cycle the watcher ignores database
// events. The cycle's own bookkeeping writes would otherwise schedule the
// next cycle forever.
const writeGrace = 3 * time.Second

// Daemon owns the watcher and the scheduler for one database.
type Daemon struct {
	dbPath   string
	interval time.Duration
	debounce time.Duration
	logger   *log.Logger

	sched   *scheduler.Scheduler
	watcher *fsnotify.Watcher

	// suppressUntil is the unix-nano deadline below which database events
	// are treated as our own writes and dropped.
	suppressUntil atomic.Int64

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets the daemon logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// WithInterval sets the periodic sync interval.
func WithInterval(i time.Duration) Option {
	return func(d *Daemon) { d.interval = i }
}

// WithDebounce sets the immediate-sync debounce window.
func WithDebounce(debounce time.Duration) Option {
	return func(d *Daemon) { d.debounce = debounce }
}

// New builds a Daemon syncing the database at dbPath through runner.
func New(dbPath string, runner scheduler.Runner, opts ...Option) *Daemon {
	d := &Daemon{
		dbPath:   dbPath,
		interval: DefaultInterval,
		logger:   log.New(log.Writer(), "[daemon] ", log.LstdFlags),
		debounce: scheduler.DefaultDebounce,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sched = scheduler.New(&guardedRunner{daemon: d, inner: runner},
		scheduler.WithLogger(d.logger), scheduler.WithDebounce(d.debounce))
	return d
}

// Start watches the database directory and arms the periodic cycle. An
// immediate cycle is queued right away so a freshly started daemon catches
// up without waiting a full interval.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(d.dbPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch database directory: %w", err)
	}

	d.watcher = watcher
	d.done = make(chan struct{})
	d.running = true

	d.wg.Add(1)
	go d.processEvents()

	d.sched.SchedulePeriodicSync(d.interval)
	d.sched.ScheduleSyncNow()

	d.logger.Printf("watching %s, periodic sync every %s", d.dbPath, d.interval)
	return nil
}

// Stop halts the watcher and waits for an in-flight cycle to finish.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	close(d.done)
	if err := d.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	d.wg.Wait()
	d.sched.Close()
	return nil
}

// IsRunning reports whether the daemon has been started and not stopped.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Daemon) processEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !d.isDatabaseEvent(event) {
				continue
			}
			if time.Now().UnixNano() < d.suppressUntil.Load() {
				continue
			}
			d.sched.ScheduleSyncNow()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Printf("watcher error: %v", err)
		}
	}
}

// isDatabaseEvent reports whether the event touches the database or its
// WAL sidecars.
func (d *Daemon) isDatabaseEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	base := filepath.Base(event.Name)
	dbBase := filepath.Base(d.dbPath)
	return base == dbBase || strings.HasPrefix(base, dbBase+"-")
}

// guardedRunner brackets each cycle with a suppression window so the
// cycle's own database writes do not re-trigger the watcher.
type guardedRunner struct {
	daemon *Daemon
	inner  scheduler.Runner
}

func (g *guardedRunner) PerformSync(ctx context.Context) (*syncer.Report, error) {
	g.daemon.suppress()
	defer g.daemon.suppress()
	return g.inner.PerformSync(ctx)
}

func (d *Daemon) suppress() {
	d.suppressUntil.Store(time.Now().Add(writeGrace).UnixNano())
}
