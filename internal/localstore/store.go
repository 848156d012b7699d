// Package localstore implements the on-device store for tutorsync.
//
// It is a single SQLite database (WAL mode, foreign keys on) holding one
// table per syncable collection plus the sync_metadata key-value table. The
// sync engine only touches it through the status-filtered queries and the
// upsert/hard-delete operations defined here; normal CRUD reads exclude
// soft-deleted rows.
//
// The schema is versioned through PRAGMA user_version and migrated by
// explicit, ordered steps. Sync status is persisted as a small integer
// discriminant (see entity.SyncStatus).
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/devsusana/tutorsync/internal/entity"
)

// Store wraps the SQLite connection with tutorsync-specific operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at path and migrates it to the current
// schema version. The caller must Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// migration is one schema step. Steps run in order inside a transaction and
// the user_version pragma records the last applied step.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{1, migrateV1CoreTables},
	{2, migrateV2ResourceTables},
}

// Migrate brings the schema up to the latest version. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	var current int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if err := m.apply(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record schema version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the current user_version of the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func migrateV1CoreTables(ctx context.Context, tx *sql.Tx) error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		cloud_id TEXT,
		name TEXT NOT NULL,
		age INTEGER NOT NULL DEFAULT 0,
		phone TEXT NOT NULL DEFAULT '',
		subjects TEXT NOT NULL DEFAULT '',
		course TEXT NOT NULL DEFAULT '',
		price_per_hour REAL NOT NULL DEFAULT 0,
		pending_balance REAL NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		last_payment_date INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL,
		sync_status INTEGER NOT NULL,
		pending_delete INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS schedules (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		cloud_id TEXT,
		student_id INTEGER NOT NULL,
		day_of_week INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL,
		sync_status INTEGER NOT NULL,
		pending_delete INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (student_id) REFERENCES students(local_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS schedule_exceptions (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		cloud_id TEXT,
		student_id INTEGER NOT NULL,
		schedule_id INTEGER NOT NULL,
		date INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		new_start_time TEXT NOT NULL DEFAULT '',
		new_end_time TEXT NOT NULL DEFAULT '',
		new_day_of_week INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL,
		sync_status INTEGER NOT NULL,
		pending_delete INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (student_id) REFERENCES students(local_id) ON DELETE CASCADE,
		FOREIGN KEY (schedule_id) REFERENCES schedules(local_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sync_metadata (
		tenant_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, key)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_students_cloud
	    ON students(tenant_id, cloud_id) WHERE cloud_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_students_status ON students(tenant_id, sync_status);
	CREATE INDEX IF NOT EXISTS idx_schedules_cloud ON schedules(tenant_id, cloud_id);
	CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(tenant_id, sync_status);
	CREATE INDEX IF NOT EXISTS idx_schedules_student ON schedules(student_id);
	CREATE INDEX IF NOT EXISTS idx_exceptions_cloud ON schedule_exceptions(tenant_id, cloud_id);
	CREATE INDEX IF NOT EXISTS idx_exceptions_status ON schedule_exceptions(tenant_id, sync_status);
	CREATE INDEX IF NOT EXISTS idx_exceptions_schedule ON schedule_exceptions(schedule_id);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create core tables: %w", err)
	}
	return nil
}

func migrateV2ResourceTables(ctx context.Context, tx *sql.Tx) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		cloud_id TEXT,
		name TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		file_type TEXT NOT NULL DEFAULT '',
		uploaded_at INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL,
		sync_status INTEGER NOT NULL,
		pending_delete INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS shared_resources (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		cloud_id TEXT,
		student_id INTEGER NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT '',
		file_size_bytes INTEGER NOT NULL DEFAULT 0,
		shared_via TEXT NOT NULL,
		shared_at INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		last_modified INTEGER NOT NULL,
		sync_status INTEGER NOT NULL,
		pending_delete INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (student_id) REFERENCES students(local_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_resources_cloud ON resources(tenant_id, cloud_id);
	CREATE INDEX IF NOT EXISTS idx_resources_status ON resources(tenant_id, sync_status);
	CREATE INDEX IF NOT EXISTS idx_shared_cloud ON shared_resources(tenant_id, cloud_id);
	CREATE INDEX IF NOT EXISTS idx_shared_status ON shared_resources(tenant_id, sync_status);
	CREATE INDEX IF NOT EXISTS idx_shared_student ON shared_resources(student_id);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create resource tables: %w", err)
	}
	return nil
}

// collectionTables maps every syncable collection to its table, in the
// parent-before-child order the synchronizer processes them.
var collectionTables = []string{
	"students",
	"schedules",
	"schedule_exceptions",
	"resources",
	"shared_resources",
}

// StatusCounts returns, per collection, how many rows sit in each sync
// status for the tenant. Used by the status command.
func (s *Store) StatusCounts(ctx context.Context, tenant string) (map[string]map[entity.SyncStatus]int, error) {
	out := make(map[string]map[entity.SyncStatus]int, len(collectionTables))
	for _, table := range collectionTables {
		rows, err := s.conn.QueryContext(ctx,
			"SELECT sync_status, COUNT(*) FROM "+table+" WHERE tenant_id = ? GROUP BY sync_status", tenant)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts := make(map[entity.SyncStatus]int)
		for rows.Next() {
			var status, n int
			if err := rows.Scan(&status, &n); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan %s counts: %w", table, err)
			}
			counts[entity.SyncStatus(status)] = n
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("error iterating %s counts: %w", table, err)
		}
		_ = rows.Close()
		out[table] = counts
	}
	return out, nil
}

// WipeTenant removes every row belonging to the tenant, including sync
// metadata. Used on logout.
func (s *Store) WipeTenant(ctx context.Context, tenant string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin wipe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Children first so foreign keys stay satisfied regardless of cascade.
	for i := len(collectionTables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+collectionTables[i]+" WHERE tenant_id = ?", tenant); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", collectionTables[i], err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_metadata WHERE tenant_id = ?", tenant); err != nil {
		return fmt.Errorf("failed to wipe sync metadata: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wipe: %w", err)
	}
	return nil
}

// nullableCloudID converts between the empty-string convention used in
// entities and the NULL stored in the database.
func nullableCloudID(id string) sql.NullString {
	if id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: id, Valid: true}
}

func cloudIDValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
