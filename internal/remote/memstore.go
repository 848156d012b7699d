package remote

import (
	"context"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used in tests and offline development.
// It is safe for concurrent use.
type MemStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Document // collection path -> id -> doc
	lastStamp   int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string]map[string]Document),
	}
}

// stamp returns a strictly increasing server timestamp in unix millis.
// Monotonicity keeps the pull watermark honest even when writes land within
// the same millisecond.
func (m *MemStore) stamp() int64 {
	now := time.Now().UnixMilli()
	if now <= m.lastStamp {
		now = m.lastStamp + 1
	}
	m.lastStamp = now
	return now
}

// Upload implements Store.
func (m *MemStore) Upload(ctx context.Context, collection, docID string, data map[string]any, idempotencyKey, idempotencyField string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[collection]
	if docs == nil {
		docs = make(map[string]Document)
		m.collections[collection] = docs
	}

	id := docID
	if id == "" && idempotencyKey != "" {
		for docID, doc := range docs {
			if fieldMatches(doc.Data[idempotencyField], idempotencyKey) {
				id = docID
				break
			}
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	docs[id] = Document{
		ID:             id,
		Data:           cloneData(data),
		ServerModified: m.stamp(),
	}
	return id, nil
}

// Delete implements Store.
func (m *MemStore) Delete(ctx context.Context, docPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	collection, id := path.Split(docPath)
	collection = strings.TrimSuffix(collection, "/")
	if docs := m.collections[collection]; docs != nil {
		delete(docs, id)
	}
	return nil
}

// DownloadCollection implements Store.
func (m *MemStore) DownloadCollection(ctx context.Context, collection string, sinceTS int64) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Document
	for _, doc := range m.collections[collection] {
		if doc.ServerModified > sinceTS {
			doc.Data = cloneData(doc.Data)
			out = append(out, doc)
		}
	}
	return out, nil
}

// DeleteSubtree implements Store.
func (m *MemStore) DeleteSubtree(ctx context.Context, rootCollection, rootID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Remove the root document itself.
	if docs := m.collections[rootCollection]; docs != nil {
		delete(docs, rootID)
	}

	// Remove every collection nested under the root document.
	prefix := path.Join(rootCollection, rootID) + "/"
	for collection := range m.collections {
		if strings.HasPrefix(collection, prefix) {
			delete(m.collections, collection)
		}
	}
	return nil
}

// Get returns a single document, mainly for assertions in tests.
func (m *MemStore) Get(collection, id string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if ok {
		doc.Data = cloneData(doc.Data)
	}
	return doc, ok
}

// Count returns the number of documents in a collection.
func (m *MemStore) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

// fieldMatches compares a stored field value against an idempotency key.
// Numeric values are compared through their decimal rendering so the match
// survives the int64-to-float64 degradation of a JSON hop.
func fieldMatches(v any, key string) bool {
	switch v := v.(type) {
	case string:
		return v == key
	case int64:
		return strconv.FormatInt(v, 10) == key
	case int:
		return strconv.Itoa(v) == key
	case float64:
		return strconv.FormatInt(int64(v), 10) == key
	}
	return false
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
