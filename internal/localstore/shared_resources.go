package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/devsusana/tutorsync/internal/entity"
)

const sharedResourceColumns = `local_id, tenant_id, cloud_id, student_id, file_name,
	file_type, file_size_bytes, shared_via, shared_at, notes,
	last_modified, sync_status, pending_delete`

// UpsertSharedResource inserts the shared resource when LocalID is zero
// (assigning it) and updates the existing row otherwise.
func (s *Store) UpsertSharedResource(ctx context.Context, r *entity.SharedResource) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid shared resource: %w", err)
	}

	if r.LocalID == 0 {
		res, err := s.conn.ExecContext(ctx, `
			INSERT INTO shared_resources (tenant_id, cloud_id, student_id, file_name,
				file_type, file_size_bytes, shared_via, shared_at, notes,
				last_modified, sync_status, pending_delete)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.TenantID, nullableCloudID(r.CloudID), r.StudentID, r.FileName,
			r.FileType, r.FileSizeBytes, r.SharedVia, r.SharedAt, r.Notes,
			r.LastModified, int(r.SyncStatus), r.PendingDelete)
		if err != nil {
			return fmt.Errorf("failed to insert shared resource: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read shared resource id: %w", err)
		}
		r.LocalID = id
		return nil
	}

	_, err := s.conn.ExecContext(ctx, `
		UPDATE shared_resources SET cloud_id = ?, student_id = ?, file_name = ?,
			file_type = ?, file_size_bytes = ?, shared_via = ?, shared_at = ?,
			notes = ?, last_modified = ?, sync_status = ?, pending_delete = ?
		WHERE local_id = ? AND tenant_id = ?`,
		nullableCloudID(r.CloudID), r.StudentID, r.FileName, r.FileType,
		r.FileSizeBytes, r.SharedVia, r.SharedAt, r.Notes, r.LastModified,
		int(r.SyncStatus), r.PendingDelete, r.LocalID, r.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update shared resource %d: %w", r.LocalID, err)
	}
	return nil
}

// SharedResourcesByStatus returns shared resources in the given sync status.
func (s *Store) SharedResourcesByStatus(ctx context.Context, tenant string, status entity.SyncStatus) ([]*entity.SharedResource, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+sharedResourceColumns+` FROM shared_resources
		 WHERE tenant_id = ? AND sync_status = ? ORDER BY local_id`, tenant, int(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query shared resources by status: %w", err)
	}
	defer rows.Close()
	return scanSharedResources(rows)
}

// SharedResourcesModifiedSince returns shared resources modified after ts.
func (s *Store) SharedResourcesModifiedSince(ctx context.Context, tenant string, ts int64) ([]*entity.SharedResource, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+sharedResourceColumns+` FROM shared_resources
		 WHERE tenant_id = ? AND last_modified > ? ORDER BY local_id`, tenant, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query modified shared resources: %w", err)
	}
	defer rows.Close()
	return scanSharedResources(rows)
}

// SharedResourceByCloudID returns one shared resource by remote id, or nil if absent.
func (s *Store) SharedResourceByCloudID(ctx context.Context, tenant, cloudID string) (*entity.SharedResource, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+sharedResourceColumns+` FROM shared_resources
		 WHERE tenant_id = ? AND cloud_id = ?`, tenant, cloudID)
	r, err := scanSharedResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shared resource by cloud id %s: %w", cloudID, err)
	}
	return r, nil
}

// MarkSharedResourceDeleted soft-deletes the shared resource.
func (s *Store) MarkSharedResourceDeleted(ctx context.Context, tenant string, localID int64) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE shared_resources SET pending_delete = 1, sync_status = ?, last_modified = ?
		WHERE tenant_id = ? AND local_id = ?`,
		int(entity.StatusPendingDelete), entity.NowMillis(), tenant, localID)
	if err != nil {
		return fmt.Errorf("failed to mark shared resource %d deleted: %w", localID, err)
	}
	return nil
}

// HardDeleteSharedResource physically removes the shared resource row.
func (s *Store) HardDeleteSharedResource(ctx context.Context, localID int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM shared_resources WHERE local_id = ?", localID)
	if err != nil {
		return fmt.Errorf("failed to delete shared resource %d: %w", localID, err)
	}
	return nil
}

func scanSharedResource(row rowScanner) (*entity.SharedResource, error) {
	var r entity.SharedResource
	var cloudID sql.NullString
	var status int
	err := row.Scan(&r.LocalID, &r.TenantID, &cloudID, &r.StudentID, &r.FileName,
		&r.FileType, &r.FileSizeBytes, &r.SharedVia, &r.SharedAt, &r.Notes,
		&r.LastModified, &status, &r.PendingDelete)
	if err != nil {
		return nil, err
	}
	r.CloudID = cloudIDValue(cloudID)
	r.SyncStatus = entity.SyncStatus(status)
	return &r, nil
}

func scanSharedResources(rows *sql.Rows) ([]*entity.SharedResource, error) {
	var out []*entity.SharedResource
	for rows.Next() {
		r, err := scanSharedResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shared resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shared resources: %w", err)
	}
	return out, nil
}
