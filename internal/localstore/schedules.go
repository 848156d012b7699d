package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/devsusana/tutorsync/internal/entity"
)

const scheduleColumns = `local_id, tenant_id, cloud_id, student_id, day_of_week,
	start_time, end_time, completed, completed_at,
	last_modified, sync_status, pending_delete`

// UpsertSchedule inserts the schedule when LocalID is zero (assigning it)
// and updates the existing row otherwise.
func (s *Store) UpsertSchedule(ctx context.Context, sc *entity.Schedule) error {
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	if sc.LocalID == 0 {
		res, err := s.conn.ExecContext(ctx, `
			INSERT INTO schedules (tenant_id, cloud_id, student_id, day_of_week,
				start_time, end_time, completed, completed_at,
				last_modified, sync_status, pending_delete)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sc.TenantID, nullableCloudID(sc.CloudID), sc.StudentID, sc.DayOfWeek,
			sc.StartTime, sc.EndTime, sc.Completed, sc.CompletedAt,
			sc.LastModified, int(sc.SyncStatus), sc.PendingDelete)
		if err != nil {
			return fmt.Errorf("failed to insert schedule: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read schedule id: %w", err)
		}
		sc.LocalID = id
		return nil
	}

	_, err := s.conn.ExecContext(ctx, `
		UPDATE schedules SET cloud_id = ?, student_id = ?, day_of_week = ?,
			start_time = ?, end_time = ?, completed = ?, completed_at = ?,
			last_modified = ?, sync_status = ?, pending_delete = ?
		WHERE local_id = ? AND tenant_id = ?`,
		nullableCloudID(sc.CloudID), sc.StudentID, sc.DayOfWeek, sc.StartTime,
		sc.EndTime, sc.Completed, sc.CompletedAt, sc.LastModified,
		int(sc.SyncStatus), sc.PendingDelete, sc.LocalID, sc.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update schedule %d: %w", sc.LocalID, err)
	}
	return nil
}

// SchedulesByStatus returns the tenant's schedules in the given sync status.
func (s *Store) SchedulesByStatus(ctx context.Context, tenant string, status entity.SyncStatus) ([]*entity.Schedule, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE tenant_id = ? AND sync_status = ? ORDER BY local_id`, tenant, int(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules by status: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// SchedulesModifiedSince returns schedules modified after ts (unix millis).
func (s *Store) SchedulesModifiedSince(ctx context.Context, tenant string, ts int64) ([]*entity.Schedule, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE tenant_id = ? AND last_modified > ? ORDER BY local_id`, tenant, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query modified schedules: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// SchedulesForStudent returns the student's schedules, excluding soft-deleted rows.
func (s *Store) SchedulesForStudent(ctx context.Context, tenant string, studentID int64) ([]*entity.Schedule, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		 WHERE tenant_id = ? AND student_id = ? AND pending_delete = 0
		 ORDER BY day_of_week, start_time`, tenant, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ScheduleByID returns one schedule by local id, or nil if absent.
func (s *Store) ScheduleByID(ctx context.Context, tenant string, localID int64) (*entity.Schedule, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE tenant_id = ? AND local_id = ?`, tenant, localID)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %d: %w", localID, err)
	}
	return sc, nil
}

// ScheduleByCloudID returns one schedule by remote id, or nil if absent.
func (s *Store) ScheduleByCloudID(ctx context.Context, tenant, cloudID string) (*entity.Schedule, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE tenant_id = ? AND cloud_id = ?`, tenant, cloudID)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule by cloud id %s: %w", cloudID, err)
	}
	return sc, nil
}

// MarkScheduleDeleted soft-deletes the schedule.
func (s *Store) MarkScheduleDeleted(ctx context.Context, tenant string, localID int64) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE schedules SET pending_delete = 1, sync_status = ?, last_modified = ?
		WHERE tenant_id = ? AND local_id = ?`,
		int(entity.StatusPendingDelete), entity.NowMillis(), tenant, localID)
	if err != nil {
		return fmt.Errorf("failed to mark schedule %d deleted: %w", localID, err)
	}
	return nil
}

// HardDeleteSchedule physically removes the schedule row.
func (s *Store) HardDeleteSchedule(ctx context.Context, localID int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM schedules WHERE local_id = ?", localID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", localID, err)
	}
	return nil
}

func scanSchedule(row rowScanner) (*entity.Schedule, error) {
	var sc entity.Schedule
	var cloudID sql.NullString
	var status int
	err := row.Scan(&sc.LocalID, &sc.TenantID, &cloudID, &sc.StudentID, &sc.DayOfWeek,
		&sc.StartTime, &sc.EndTime, &sc.Completed, &sc.CompletedAt,
		&sc.LastModified, &status, &sc.PendingDelete)
	if err != nil {
		return nil, err
	}
	sc.CloudID = cloudIDValue(cloudID)
	sc.SyncStatus = entity.SyncStatus(status)
	return &sc, nil
}

func scanSchedules(rows *sql.Rows) ([]*entity.Schedule, error) {
	var out []*entity.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}
	return out, nil
}
