package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/devsusana/tutorsync/internal/entity"
)

const exceptionColumns = `local_id, tenant_id, cloud_id, student_id, schedule_id, date,
	reason, type, new_start_time, new_end_time, new_day_of_week,
	last_modified, sync_status, pending_delete`

// UpsertScheduleException inserts the exception when LocalID is zero
// (assigning it) and updates the existing row otherwise.
func (s *Store) UpsertScheduleException(ctx context.Context, ex *entity.ScheduleException) error {
	if err := ex.Validate(); err != nil {
		return fmt.Errorf("invalid schedule exception: %w", err)
	}

	if ex.LocalID == 0 {
		res, err := s.conn.ExecContext(ctx, `
			INSERT INTO schedule_exceptions (tenant_id, cloud_id, student_id, schedule_id,
				date, reason, type, new_start_time, new_end_time, new_day_of_week,
				last_modified, sync_status, pending_delete)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ex.TenantID, nullableCloudID(ex.CloudID), ex.StudentID, ex.ScheduleID,
			ex.Date, ex.Reason, ex.Type, ex.NewStartTime, ex.NewEndTime, ex.NewDayOfWeek,
			ex.LastModified, int(ex.SyncStatus), ex.PendingDelete)
		if err != nil {
			return fmt.Errorf("failed to insert schedule exception: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read schedule exception id: %w", err)
		}
		ex.LocalID = id
		return nil
	}

	_, err := s.conn.ExecContext(ctx, `
		UPDATE schedule_exceptions SET cloud_id = ?, student_id = ?, schedule_id = ?,
			date = ?, reason = ?, type = ?, new_start_time = ?, new_end_time = ?,
			new_day_of_week = ?, last_modified = ?, sync_status = ?, pending_delete = ?
		WHERE local_id = ? AND tenant_id = ?`,
		nullableCloudID(ex.CloudID), ex.StudentID, ex.ScheduleID, ex.Date, ex.Reason,
		ex.Type, ex.NewStartTime, ex.NewEndTime, ex.NewDayOfWeek, ex.LastModified,
		int(ex.SyncStatus), ex.PendingDelete, ex.LocalID, ex.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update schedule exception %d: %w", ex.LocalID, err)
	}
	return nil
}

// ScheduleExceptionsByStatus returns exceptions in the given sync status.
func (s *Store) ScheduleExceptionsByStatus(ctx context.Context, tenant string, status entity.SyncStatus) ([]*entity.ScheduleException, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+exceptionColumns+` FROM schedule_exceptions
		 WHERE tenant_id = ? AND sync_status = ? ORDER BY local_id`, tenant, int(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule exceptions by status: %w", err)
	}
	defer rows.Close()
	return scanScheduleExceptions(rows)
}

// ScheduleExceptionsModifiedSince returns exceptions modified after ts.
func (s *Store) ScheduleExceptionsModifiedSince(ctx context.Context, tenant string, ts int64) ([]*entity.ScheduleException, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+exceptionColumns+` FROM schedule_exceptions
		 WHERE tenant_id = ? AND last_modified > ? ORDER BY local_id`, tenant, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query modified schedule exceptions: %w", err)
	}
	defer rows.Close()
	return scanScheduleExceptions(rows)
}

// ScheduleExceptionByCloudID returns one exception by remote id, or nil if absent.
func (s *Store) ScheduleExceptionByCloudID(ctx context.Context, tenant, cloudID string) (*entity.ScheduleException, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+exceptionColumns+` FROM schedule_exceptions
		 WHERE tenant_id = ? AND cloud_id = ?`, tenant, cloudID)
	ex, err := scanScheduleException(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule exception by cloud id %s: %w", cloudID, err)
	}
	return ex, nil
}

// MarkScheduleExceptionDeleted soft-deletes the exception.
func (s *Store) MarkScheduleExceptionDeleted(ctx context.Context, tenant string, localID int64) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE schedule_exceptions SET pending_delete = 1, sync_status = ?, last_modified = ?
		WHERE tenant_id = ? AND local_id = ?`,
		int(entity.StatusPendingDelete), entity.NowMillis(), tenant, localID)
	if err != nil {
		return fmt.Errorf("failed to mark schedule exception %d deleted: %w", localID, err)
	}
	return nil
}

// HardDeleteScheduleException physically removes the exception row.
func (s *Store) HardDeleteScheduleException(ctx context.Context, localID int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM schedule_exceptions WHERE local_id = ?", localID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule exception %d: %w", localID, err)
	}
	return nil
}

func scanScheduleException(row rowScanner) (*entity.ScheduleException, error) {
	var ex entity.ScheduleException
	var cloudID sql.NullString
	var status int
	err := row.Scan(&ex.LocalID, &ex.TenantID, &cloudID, &ex.StudentID, &ex.ScheduleID,
		&ex.Date, &ex.Reason, &ex.Type, &ex.NewStartTime, &ex.NewEndTime,
		&ex.NewDayOfWeek, &ex.LastModified, &status, &ex.PendingDelete)
	if err != nil {
		return nil, err
	}
	ex.CloudID = cloudIDValue(cloudID)
	ex.SyncStatus = entity.SyncStatus(status)
	return &ex, nil
}

func scanScheduleExceptions(rows *sql.Rows) ([]*entity.ScheduleException, error) {
	var out []*entity.ScheduleException
	for rows.Next() {
		ex, err := scanScheduleException(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule exception: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule exceptions: %w", err)
	}
	return out, nil
}
