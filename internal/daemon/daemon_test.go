package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
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

func newTestDaemon(t *testing.T, runner *countingRunner) (*Daemon, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tutorsync.db")
	if err := os.WriteFile(dbPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to seed db file: %v", err)
	}
	d := New(dbPath, runner,
		WithLogger(log.New(io.Discard, "", 0)),
		WithInterval(time.Hour),
		WithDebounce(20*time.Millisecond))
	return d, dbPath
}

func waitForRuns(t *testing.T, r *countingRunner, min int32) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.runs.Load() >= min {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Runs = %d, want at least %d", r.runs.Load(), min)
}

func TestStartStopLifecycle(t *testing.T) {
	runner := &countingRunner{}
	d, _ := newTestDaemon(t, runner)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.IsRunning() {
		t.Error("IsRunning = false after Start")
	}
	if err := d.Start(); err == nil {
		t.Error("Second Start did not fail")
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if d.IsRunning() {
		t.Error("IsRunning = true after Stop")
	}
	// Stop is idempotent.
	if err := d.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}
}

func TestStartupSync(t *testing.T) {
	runner := &countingRunner{}
	d, _ := newTestDaemon(t, runner)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = d.Stop() }()

	// A freshly started daemon runs a catch-up cycle after the debounce.
	waitForRuns(t, runner, 1)
}

func TestDatabaseWriteTriggersSync(t *testing.T) {
	runner := &countingRunner{}
	d, dbPath := newTestDaemon(t, runner)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = d.Stop() }()

	waitForRuns(t, runner, 1) // startup cycle

	// The startup cycle opened a suppression window; wait it out so the
	// external write below counts as foreign.
	time.Sleep(writeGrace + 50*time.Millisecond)

	if err := os.WriteFile(dbPath, []byte("external write"), 0o644); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	waitForRuns(t, runner, 2)
}

func TestUnrelatedFileIgnored(t *testing.T) {
	runner := &countingRunner{}
	d, dbPath := newTestDaemon(t, runner)

	if err := d.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = d.Stop() }()

	waitForRuns(t, runner, 1)
	time.Sleep(writeGrace + 50*time.Millisecond)

	other := filepath.Join(filepath.Dir(dbPath), "notes.txt")
	if err := os.WriteFile(other, []byte("hi"), 0o644); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := runner.runs.Load(); got != 1 {
		t.Errorf("Unrelated file triggered sync: runs = %d", got)
	}
}
