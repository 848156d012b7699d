// Package syncer implements the bidirectional sync cycle between the local
// store and the remote document store.
//
// A cycle pushes local deletions, pushes dirty records, then pulls remote
// changes since the last watermark. Individual record failures are isolated:
// the record is marked with StatusError and retried next cycle while the
// rest of the cycle proceeds. Only one cycle runs per tenant at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devsusana/tutorsync/internal/localstore"
	"github.com/devsusana/tutorsync/internal/remote"
)

var (
	// ErrSyncInProgress is returned when a cycle is already running for the
	// tenant, either in this process or recorded by another one.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoTenant is returned when no tenant is signed in.
	ErrNoTenant = errors.New("no tenant signed in")
)

// TenantProvider yields the tenant the engine syncs for. In the CLI this is
// backed by configuration; tests use StaticTenant.
type TenantProvider interface {
	CurrentTenant(ctx context.Context) (string, error)
}

// StaticTenant is a TenantProvider that always returns a fixed tenant.
type StaticTenant string

// CurrentTenant returns the fixed tenant id.
func (t StaticTenant) CurrentTenant(ctx context.Context) (string, error) {
	if t == "" {
		return "", ErrNoTenant
	}
	return string(t), nil
}

// Report summarizes one sync cycle.
type Report struct {
	Uploaded   int
	Deleted    int
	Downloaded int
	Conflicts  int
	Errors     int
	Watermark  int64
	Duration   time.Duration
}

// Synchronizer runs sync cycles against one local store and one remote store.
type Synchronizer struct {
	local  *localstore.Store
	remote remote.Store
	tenant TenantProvider
	logger *log.Logger

	// staleAfter bounds how long a persisted in-progress flag from a
	// crashed cycle blocks new cycles.
	staleAfter time.Duration

	mu sync.Mutex
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the cycle logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithStaleAfter overrides the in-progress staleness bound.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Synchronizer) { s.staleAfter = d }
}

// New builds a Synchronizer.
func New(local *localstore.Store, rs remote.Store, tenant TenantProvider, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		local:      local,
		remote:     rs,
		tenant:     tenant,
		logger:     log.New(log.Writer(), "[sync] ", log.LstdFlags),
		staleAfter: localstore.DefaultInProgressStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PerformSync runs one full cycle for the current tenant: push deletions,
// push dirty records, pull remote changes, advance the watermark.
//
// It returns ErrSyncInProgress without doing any work if a cycle is already
// running for the tenant. Record-level failures do not fail the cycle; a
// failure to reach the remote store does.
func (s *Synchronizer) PerformSync(ctx context.Context) (*Report, error) {
	tenant, err := s.tenant.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	if tenant == "" {
		return nil, ErrNoTenant
	}

	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	inProgress, err := s.local.SyncInProgress(ctx, tenant, s.staleAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to check sync flag: %w", err)
	}
	if inProgress {
		return nil, ErrSyncInProgress
	}
	if err := s.local.SetSyncInProgress(ctx, tenant, true); err != nil {
		return nil, fmt.Errorf("failed to set sync flag: %w", err)
	}
	defer func() {
		if err := s.local.SetSyncInProgress(context.WithoutCancel(ctx), tenant, false); err != nil {
			s.logger.Printf("failed to clear sync flag for %s: %v", tenant, err)
		}
	}()

	start := time.Now()
	report := &Report{}
	s.logger.Printf("starting cycle for tenant %s", tenant)

	if err := s.runCycle(ctx, tenant, report); err != nil {
		if serr := s.local.SetLastSyncError(context.WithoutCancel(ctx), tenant, err.Error()); serr != nil {
			s.logger.Printf("failed to record sync error: %v", serr)
		}
		return report, err
	}
	if err := s.local.SetLastSyncError(ctx, tenant, ""); err != nil {
		s.logger.Printf("failed to clear sync error: %v", err)
	}

	report.Duration = time.Since(start)
	s.logger.Printf("cycle done for tenant %s: up=%d del=%d down=%d conflicts=%d errors=%d (%s)",
		tenant, report.Uploaded, report.Deleted, report.Downloaded,
		report.Conflicts, report.Errors, report.Duration.Round(time.Millisecond))
	return report, nil
}

func (s *Synchronizer) runCycle(ctx context.Context, tenant string, report *Report) error {
	// Deletions go first so a record deleted here is not resurrected by the
	// pull later in the same cycle.
	if err := s.pushDeletes(ctx, tenant, report); err != nil {
		return fmt.Errorf("push deletes: %w", err)
	}
	if err := s.pushUploads(ctx, tenant, report); err != nil {
		return fmt.Errorf("push uploads: %w", err)
	}

	since, err := s.local.LastSyncTimestamp(ctx, tenant)
	if err != nil {
		return fmt.Errorf("read watermark: %w", err)
	}
	watermark, pullErrors, err := s.pull(ctx, tenant, since, report)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	// A record that failed to apply locally must be re-downloaded, so the
	// watermark only advances when every pulled record landed.
	if pullErrors == 0 && watermark > since {
		if err := s.local.SetLastSyncTimestamp(ctx, tenant, watermark); err != nil {
			return fmt.Errorf("advance watermark: %w", err)
		}
		report.Watermark = watermark
	} else {
		report.Watermark = since
	}
	return nil
}
