// Package entity defines the syncable records managed by tutorsync.
//
// Every record carries the same set of sync bookkeeping fields (SyncFields)
// on top of its domain data. The sync engine only ever transitions those
// bookkeeping fields; domain data is written by the CRUD layer.
//
// Records are partitioned by tenant: every store query and every remote
// path is scoped by TenantID, and a record is never visible to code running
// under a different tenant.
package entity

import (
	"fmt"
	"time"
)

// SyncStatus tracks the synchronization state of a record relative to the
// remote store. It is persisted as a small integer; the numeric values are
// part of the on-disk schema and must never be reordered.
type SyncStatus int

const (
	// StatusSynced means the record matches the last acknowledged remote state.
	StatusSynced SyncStatus = 0
	// StatusPendingUpload means the record has local changes awaiting push.
	StatusPendingUpload SyncStatus = 1
	// StatusPendingDelete means the record is soft-deleted and awaits remote deletion.
	StatusPendingDelete SyncStatus = 2
	// StatusConflict means local and remote diverged and resolution is recorded.
	StatusConflict SyncStatus = 3
	// StatusError means the last push or pull of this record failed; it is
	// retried on the next sync cycle.
	StatusError SyncStatus = 4
)

// String returns a human-readable representation of the status.
func (s SyncStatus) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusPendingUpload:
		return "pending_upload"
	case StatusPendingDelete:
		return "pending_delete"
	case StatusConflict:
		return "conflict"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Valid reports whether s is one of the defined statuses.
func (s SyncStatus) Valid() bool {
	return s >= StatusSynced && s <= StatusError
}

// SyncFields is embedded in every syncable entity.
type SyncFields struct {
	// LocalID is the stable local primary key. It is never transmitted as
	// the remote identity.
	LocalID int64

	// CloudID is the remote document identity, empty until the first
	// successful upload.
	CloudID string

	// TenantID scopes the record to its owning tutor account.
	TenantID string

	// LastModified is bumped (unix milliseconds) on every local mutation.
	// It drives incremental pull and conflict tie-breaking.
	LastModified int64

	// SyncStatus is the record's position in the sync lifecycle.
	SyncStatus SyncStatus

	// PendingDelete marks a soft-deleted record. The row stays in the local
	// store, excluded from normal reads, until the remote delete is
	// acknowledged.
	PendingDelete bool
}

// Sync returns the embedded sync fields. It lets the synchronizer treat all
// entity types uniformly.
func (f *SyncFields) Sync() *SyncFields {
	return f
}

// Dirty reports whether the record has un-pushed local state.
func (f *SyncFields) Dirty() bool {
	return f.SyncStatus == StatusPendingUpload || f.SyncStatus == StatusError
}

// MarkModified stamps the record as locally modified and queues it for upload.
func (f *SyncFields) MarkModified() {
	f.LastModified = NowMillis()
	f.SyncStatus = StatusPendingUpload
}

// MarkDeleted soft-deletes the record.
func (f *SyncFields) MarkDeleted() {
	f.LastModified = NowMillis()
	f.SyncStatus = StatusPendingDelete
	f.PendingDelete = true
}

// NowMillis returns the current time as unix milliseconds, the timestamp
// resolution used throughout the sync engine.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// validateSync checks invariants common to all entities.
func (f *SyncFields) validateSync() error {
	if f.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !f.SyncStatus.Valid() {
		return fmt.Errorf("invalid sync status %d", int(f.SyncStatus))
	}
	if f.CloudID == "" && f.SyncStatus == StatusSynced {
		return fmt.Errorf("record without cloud id cannot be synced")
	}
	return nil
}
