package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/devsusana/tutorsync/internal/remote"
)

// DocStore persists documents server-side: one row per document, keyed by
// collection path and id. Server timestamps are strictly increasing so
// clients can use them as incremental-pull watermarks.
type DocStore struct {
	conn *sql.DB

	mu        sync.Mutex
	lastStamp int64
}

// OpenDocStore creates or opens the server database at path.
func OpenDocStore(path string) (*DocStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
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
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		server_modified INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(collection, server_modified);
	`
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	s := &DocStore{conn: conn}
	if err := conn.QueryRow("SELECT COALESCE(MAX(server_modified), 0) FROM documents").Scan(&s.lastStamp); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read last timestamp: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *DocStore) Close() error {
	return s.conn.Close()
}

// nextStamp returns a strictly increasing server timestamp in unix millis.
// Callers must hold s.mu through the row write: rows must commit in stamp
// order, or a concurrent reader could advance its watermark past a smaller
// stamp that has not landed yet and never see that document.
func (s *DocStore) nextStamp() int64 {
	now := time.Now().UnixMilli()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}

// Upsert writes a document and returns its id and server timestamp. An
// empty docID creates a new document, consulting the idempotency pair
// first so a retried creation lands on the document the lost attempt made.
func (s *DocStore) Upsert(ctx context.Context, collection, docID string, data map[string]any, idempotencyKey, idempotencyField string) (string, int64, error) {
	id := docID
	if id == "" && idempotencyKey != "" {
		existing, err := s.findByField(ctx, collection, idempotencyField, idempotencyKey)
		if err != nil {
			return "", 0, err
		}
		id = existing
	}
	if id == "" {
		id = uuid.NewString()
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.nextStamp()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, server_modified)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			server_modified = excluded.server_modified`,
		collection, id, string(payload), ts)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write document: %w", err)
	}
	return id, ts, nil
}

// findByField scans the collection for a document whose field equals key.
// Collections are per-tenant and small, so a linear scan is fine.
func (s *DocStore) findByField(ctx context.Context, collection, field, key string) (string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id, data FROM documents WHERE collection = ?", collection)
	if err != nil {
		return "", fmt.Errorf("failed to scan collection: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return "", fmt.Errorf("failed to scan document: %w", err)
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}
		if fieldEquals(data[field], key) {
			return id, nil
		}
	}
	return "", rows.Err()
}

// Delete removes one document. Missing documents are not an error.
func (s *DocStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.conn.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// List returns the collection's documents with server_modified strictly
// greater than since.
func (s *DocStore) List(ctx context.Context, collection string, since int64) ([]remote.Document, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, data, server_modified FROM documents
		WHERE collection = ? AND server_modified > ?
		ORDER BY server_modified`, collection, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	out := []remote.Document{}
	for rows.Next() {
		var doc remote.Document
		var raw string
		if err := rows.Scan(&doc.ID, &raw, &doc.ServerModified); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
			return nil, fmt.Errorf("corrupt document %s: %w", doc.ID, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// PurgeSubtree removes the root document and every document in any
// collection nested under it.
func (s *DocStore) PurgeSubtree(ctx context.Context, rootCollection, rootID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", rootCollection, rootID); err != nil {
		return fmt.Errorf("failed to delete root document: %w", err)
	}
	prefix := rootCollection + "/" + rootID + "/"
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE collection LIKE ? ESCAPE '\\'", likePrefix(prefix)); err != nil {
		return fmt.Errorf("failed to delete subtree: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit purge: %w", err)
	}
	return nil
}

// likePrefix escapes LIKE metacharacters in prefix and appends the
// wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// fieldEquals compares a decoded JSON value against an idempotency key.
// Numbers arrive as float64 and are compared through their decimal form.
func fieldEquals(v any, key string) bool {
	switch v := v.(type) {
	case string:
		return v == key
	case float64:
		return fmt.Sprintf("%.0f", v) == key
	}
	return false
}
