package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/devsusana/tutorsync/internal/entity"
)

// Sync metadata keys. The table is a per-tenant key-value store read and
// written only by the synchronizer and the scheduler.
const (
	metaLastSyncTimestamp = "last_sync_timestamp"
	metaSyncInProgress    = "sync_in_progress"
	metaLastSyncError     = "last_sync_error"
)

// DefaultInProgressStaleAfter bounds how long a persisted sync_in_progress
// flag is trusted. A crash mid-cycle leaves the flag set; once it is older
// than this, the next cycle overrides it instead of backing off forever.
const DefaultInProgressStaleAfter = 10 * time.Minute

func (s *Store) getMetadata(ctx context.Context, tenant, key string) (string, int64, error) {
	var value string
	var updatedAt int64
	err := s.conn.QueryRowContext(ctx,
		"SELECT value, updated_at FROM sync_metadata WHERE tenant_id = ? AND key = ?",
		tenant, key).Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to get sync metadata %s: %w", key, err)
	}
	return value, updatedAt, nil
}

func (s *Store) setMetadata(ctx context.Context, tenant, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_metadata (tenant_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		tenant, key, value, entity.NowMillis())
	if err != nil {
		return fmt.Errorf("failed to set sync metadata %s: %w", key, err)
	}
	return nil
}

// LastSyncTimestamp returns the incremental-pull watermark for the tenant,
// zero if the tenant has never completed a sync.
func (s *Store) LastSyncTimestamp(ctx context.Context, tenant string) (int64, error) {
	value, _, err := s.getMetadata(ctx, tenant, metaLastSyncTimestamp)
	if err != nil || value == "" {
		return 0, err
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt last sync timestamp %q: %w", value, err)
	}
	return ts, nil
}

// SetLastSyncTimestamp persists the incremental-pull watermark.
func (s *Store) SetLastSyncTimestamp(ctx context.Context, tenant string, ts int64) error {
	return s.setMetadata(ctx, tenant, metaLastSyncTimestamp, strconv.FormatInt(ts, 10))
}

// SyncInProgress reports whether a sync cycle holds the advisory flag for
// the tenant. A flag older than staleAfter is treated as abandoned (crashed
// cycle) and reported as not in progress; pass zero for the default bound.
func (s *Store) SyncInProgress(ctx context.Context, tenant string, staleAfter time.Duration) (bool, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultInProgressStaleAfter
	}
	value, updatedAt, err := s.getMetadata(ctx, tenant, metaSyncInProgress)
	if err != nil {
		return false, err
	}
	if value != "true" {
		return false, nil
	}
	age := time.Duration(entity.NowMillis()-updatedAt) * time.Millisecond
	return age < staleAfter, nil
}

// SetSyncInProgress sets or clears the advisory single-flight flag.
func (s *Store) SetSyncInProgress(ctx context.Context, tenant string, inProgress bool) error {
	return s.setMetadata(ctx, tenant, metaSyncInProgress, strconv.FormatBool(inProgress))
}

// LastSyncError returns the message recorded by the last failed cycle,
// empty if the last cycle succeeded.
func (s *Store) LastSyncError(ctx context.Context, tenant string) (string, error) {
	value, _, err := s.getMetadata(ctx, tenant, metaLastSyncError)
	return value, err
}

// SetLastSyncError records (or clears, with an empty message) the last
// cycle-level sync failure.
func (s *Store) SetLastSyncError(ctx context.Context, tenant, message string) error {
	return s.setMetadata(ctx, tenant, metaLastSyncError, message)
}
