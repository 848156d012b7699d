// Package remote defines the document-store contract the sync engine pushes
// to and pulls from.
//
// The store is path-addressed and tenant-rooted: every collection lives under
// tenants/{tenantID}/... and a document's full path is its collection path
// plus its id. Any backend that supports scoped incremental listing and
// recursive subtree deletion can satisfy the contract; this package ships an
// in-memory implementation and internal/remote/httpstore ships the HTTP one.
package remote

import (
	"context"
	"errors"
	"path"
)

// ErrNotFound is returned when a document does not exist at the given path.
var ErrNotFound = errors.New("remote: document not found")

// Document is one remote record as returned by DownloadCollection.
type Document struct {
	// ID is the document's identity within its collection.
	ID string `json:"id"`

	// Data is the flat document body.
	Data map[string]any `json:"data"`

	// ServerModified is the store-side write timestamp (unix millis). It is
	// the source of the incremental-pull watermark and is stamped by the
	// store, never by the client.
	ServerModified int64 `json:"server_modified"`
}

// Store is the remote side of the sync engine.
type Store interface {
	// Upload writes a document into the collection at path and returns its
	// id. A non-empty docID overwrites that document; an empty docID
	// creates one.
	//
	// On creation, if idempotencyKey is non-empty the store first looks for
	// an existing document whose data[idempotencyField] equals the key and
	// overwrites that one instead of creating a duplicate. This makes
	// first-time creation safe to retry after a crash that lost the local
	// cloud-id write.
	Upload(ctx context.Context, path, docID string, data map[string]any, idempotencyKey, idempotencyField string) (string, error)

	// Delete removes the document at the given document path.
	// Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error

	// DownloadCollection lists documents in the collection at path whose
	// ServerModified is strictly greater than sinceTS.
	DownloadCollection(ctx context.Context, path string, sinceTS int64) ([]Document, error)

	// DeleteSubtree removes the document rootID from the collection at
	// rootCollection together with every document nested underneath it.
	// This is the cascading-erasure primitive.
	DeleteSubtree(ctx context.Context, rootCollection, rootID string) error
}

// Path builders for the tenant-rooted layout. Keeping them here means the
// synchronizer and the server agree on the scheme by construction.

// TenantPath returns the root path for one tenant.
func TenantPath(tenant string) string {
	return path.Join("tenants", tenant)
}

// StudentsPath returns the students collection for a tenant.
func StudentsPath(tenant string) string {
	return path.Join(TenantPath(tenant), "students")
}

// SchedulesPath returns the schedules collection under one student.
func SchedulesPath(tenant, studentCloudID string) string {
	return path.Join(StudentsPath(tenant), studentCloudID, "schedules")
}

// ExceptionsPath returns the exceptions collection under one schedule.
func ExceptionsPath(tenant, studentCloudID, scheduleCloudID string) string {
	return path.Join(SchedulesPath(tenant, studentCloudID), scheduleCloudID, "exceptions")
}

// ResourcesPath returns the tenant-wide resources collection.
func ResourcesPath(tenant string) string {
	return path.Join(TenantPath(tenant), "resources")
}

// SharedResourcesPath returns the shared-resources collection under one student.
func SharedResourcesPath(tenant, studentCloudID string) string {
	return path.Join(StudentsPath(tenant), studentCloudID, "shared_resources")
}

// DocPath returns the full path of one document inside a collection.
func DocPath(collection, id string) string {
	return path.Join(collection, id)
}
