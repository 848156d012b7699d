package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/devsusana/tutorsync/internal/entity"
)

const resourceColumns = `local_id, tenant_id, cloud_id, name, file_path, file_type,
	uploaded_at, last_modified, sync_status, pending_delete`

// UpsertResource inserts the resource when LocalID is zero (assigning it)
// and updates the existing row otherwise.
func (s *Store) UpsertResource(ctx context.Context, r *entity.Resource) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid resource: %w", err)
	}

	if r.LocalID == 0 {
		res, err := s.conn.ExecContext(ctx, `
			INSERT INTO resources (tenant_id, cloud_id, name, file_path, file_type,
				uploaded_at, last_modified, sync_status, pending_delete)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.TenantID, nullableCloudID(r.CloudID), r.Name, r.FilePath, r.FileType,
			r.UploadedAt, r.LastModified, int(r.SyncStatus), r.PendingDelete)
		if err != nil {
			return fmt.Errorf("failed to insert resource: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read resource id: %w", err)
		}
		r.LocalID = id
		return nil
	}

	_, err := s.conn.ExecContext(ctx, `
		UPDATE resources SET cloud_id = ?, name = ?, file_path = ?, file_type = ?,
			uploaded_at = ?, last_modified = ?, sync_status = ?, pending_delete = ?
		WHERE local_id = ? AND tenant_id = ?`,
		nullableCloudID(r.CloudID), r.Name, r.FilePath, r.FileType, r.UploadedAt,
		r.LastModified, int(r.SyncStatus), r.PendingDelete, r.LocalID, r.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update resource %d: %w", r.LocalID, err)
	}
	return nil
}

// ResourcesByStatus returns the tenant's resources in the given sync status.
func (s *Store) ResourcesByStatus(ctx context.Context, tenant string, status entity.SyncStatus) ([]*entity.Resource, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources
		 WHERE tenant_id = ? AND sync_status = ? ORDER BY local_id`, tenant, int(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query resources by status: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// ResourcesModifiedSince returns resources modified after ts (unix millis).
func (s *Store) ResourcesModifiedSince(ctx context.Context, tenant string, ts int64) ([]*entity.Resource, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources
		 WHERE tenant_id = ? AND last_modified > ? ORDER BY local_id`, tenant, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query modified resources: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// ResourceByCloudID returns one resource by remote id, or nil if absent.
func (s *Store) ResourceByCloudID(ctx context.Context, tenant, cloudID string) (*entity.Resource, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE tenant_id = ? AND cloud_id = ?`, tenant, cloudID)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource by cloud id %s: %w", cloudID, err)
	}
	return r, nil
}

// MarkResourceDeleted soft-deletes the resource.
func (s *Store) MarkResourceDeleted(ctx context.Context, tenant string, localID int64) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE resources SET pending_delete = 1, sync_status = ?, last_modified = ?
		WHERE tenant_id = ? AND local_id = ?`,
		int(entity.StatusPendingDelete), entity.NowMillis(), tenant, localID)
	if err != nil {
		return fmt.Errorf("failed to mark resource %d deleted: %w", localID, err)
	}
	return nil
}

// HardDeleteResource physically removes the resource row.
func (s *Store) HardDeleteResource(ctx context.Context, localID int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM resources WHERE local_id = ?", localID)
	if err != nil {
		return fmt.Errorf("failed to delete resource %d: %w", localID, err)
	}
	return nil
}

func scanResource(row rowScanner) (*entity.Resource, error) {
	var r entity.Resource
	var cloudID sql.NullString
	var status int
	err := row.Scan(&r.LocalID, &r.TenantID, &cloudID, &r.Name, &r.FilePath,
		&r.FileType, &r.UploadedAt, &r.LastModified, &status, &r.PendingDelete)
	if err != nil {
		return nil, err
	}
	r.CloudID = cloudIDValue(cloudID)
	r.SyncStatus = entity.SyncStatus(status)
	return &r, nil
}

func scanResources(rows *sql.Rows) ([]*entity.Resource, error) {
	var out []*entity.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}
	return out, nil
}
