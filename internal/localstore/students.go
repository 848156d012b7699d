package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/devsusana/tutorsync/internal/entity"
)

const studentColumns = `local_id, tenant_id, cloud_id, name, age, phone, subjects, course,
	price_per_hour, pending_balance, notes, active, last_payment_date,
	last_modified, sync_status, pending_delete`

// UpsertStudent inserts the student when LocalID is zero (assigning it) and
// updates the existing row otherwise.
func (s *Store) UpsertStudent(ctx context.Context, st *entity.Student) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("invalid student: %w", err)
	}

	if st.LocalID == 0 {
		res, err := s.conn.ExecContext(ctx, `
			INSERT INTO students (tenant_id, cloud_id, name, age, phone, subjects, course,
				price_per_hour, pending_balance, notes, active, last_payment_date,
				last_modified, sync_status, pending_delete)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.TenantID, nullableCloudID(st.CloudID), st.Name, st.Age, st.Phone,
			st.Subjects, st.Course, st.PricePerHour, st.PendingBalance, st.Notes,
			st.Active, st.LastPaymentDate, st.LastModified, int(st.SyncStatus), st.PendingDelete)
		if err != nil {
			return fmt.Errorf("failed to insert student: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read student id: %w", err)
		}
		st.LocalID = id
		return nil
	}

	_, err := s.conn.ExecContext(ctx, `
		UPDATE students SET cloud_id = ?, name = ?, age = ?, phone = ?, subjects = ?,
			course = ?, price_per_hour = ?, pending_balance = ?, notes = ?, active = ?,
			last_payment_date = ?, last_modified = ?, sync_status = ?, pending_delete = ?
		WHERE local_id = ? AND tenant_id = ?`,
		nullableCloudID(st.CloudID), st.Name, st.Age, st.Phone, st.Subjects, st.Course,
		st.PricePerHour, st.PendingBalance, st.Notes, st.Active, st.LastPaymentDate,
		st.LastModified, int(st.SyncStatus), st.PendingDelete, st.LocalID, st.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update student %d: %w", st.LocalID, err)
	}
	return nil
}

// StudentsByStatus returns the tenant's students in the given sync status.
func (s *Store) StudentsByStatus(ctx context.Context, tenant string, status entity.SyncStatus) ([]*entity.Student, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM students
		 WHERE tenant_id = ? AND sync_status = ? ORDER BY local_id`, tenant, int(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query students by status: %w", err)
	}
	defer rows.Close()
	return scanStudents(rows)
}

// StudentsModifiedSince returns students modified after ts (unix millis).
func (s *Store) StudentsModifiedSince(ctx context.Context, tenant string, ts int64) ([]*entity.Student, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM students
		 WHERE tenant_id = ? AND last_modified > ? ORDER BY local_id`, tenant, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query modified students: %w", err)
	}
	defer rows.Close()
	return scanStudents(rows)
}

// ListStudents returns the tenant's students, excluding soft-deleted rows.
func (s *Store) ListStudents(ctx context.Context, tenant string) ([]*entity.Student, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM students
		 WHERE tenant_id = ? AND pending_delete = 0 ORDER BY name, local_id`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()
	return scanStudents(rows)
}

// StudentByID returns one student by local id, or nil if absent.
func (s *Store) StudentByID(ctx context.Context, tenant string, localID int64) (*entity.Student, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE tenant_id = ? AND local_id = ?`, tenant, localID)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student %d: %w", localID, err)
	}
	return st, nil
}

// StudentByCloudID returns one student by remote id, or nil if absent.
func (s *Store) StudentByCloudID(ctx context.Context, tenant, cloudID string) (*entity.Student, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE tenant_id = ? AND cloud_id = ?`, tenant, cloudID)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student by cloud id %s: %w", cloudID, err)
	}
	return st, nil
}

// MarkStudentDeleted soft-deletes the student: the row stays until the
// remote delete is acknowledged, excluded from normal reads.
func (s *Store) MarkStudentDeleted(ctx context.Context, tenant string, localID int64) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE students SET pending_delete = 1, sync_status = ?, last_modified = ?
		WHERE tenant_id = ? AND local_id = ?`,
		int(entity.StatusPendingDelete), entity.NowMillis(), tenant, localID)
	if err != nil {
		return fmt.Errorf("failed to mark student %d deleted: %w", localID, err)
	}
	return nil
}

// HardDeleteStudent physically removes the student row. Child rows cascade.
func (s *Store) HardDeleteStudent(ctx context.Context, localID int64) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM students WHERE local_id = ?", localID)
	if err != nil {
		return fmt.Errorf("failed to delete student %d: %w", localID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*entity.Student, error) {
	var st entity.Student
	var cloudID sql.NullString
	var status int
	err := row.Scan(&st.LocalID, &st.TenantID, &cloudID, &st.Name, &st.Age, &st.Phone,
		&st.Subjects, &st.Course, &st.PricePerHour, &st.PendingBalance, &st.Notes,
		&st.Active, &st.LastPaymentDate, &st.LastModified, &status, &st.PendingDelete)
	if err != nil {
		return nil, err
	}
	st.CloudID = cloudIDValue(cloudID)
	st.SyncStatus = entity.SyncStatus(status)
	return &st, nil
}

func scanStudents(rows *sql.Rows) ([]*entity.Student, error) {
	var out []*entity.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}
	return out, nil
}
