package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func setupDocStore(t *testing.T) *DocStore {
	t.Helper()
	store, err := OpenDocStore(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Failed to open doc store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConcurrentUploadStampOrder(t *testing.T) {
	store := setupDocStore(t)
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := store.Upsert(ctx, "tenants/t1/students", "",
				map[string]any{"name": fmt.Sprintf("student-%d", i)}, "", "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	docs, err := store.List(ctx, "tenants/t1/students", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(docs) != n {
		t.Fatalf("Documents = %d, want %d", len(docs), n)
	}
	// Rows commit in stamp order, so a watermark taken at any point covers
	// exactly the documents listed before it.
	for i := 1; i < len(docs); i++ {
		if docs[i].ServerModified <= docs[i-1].ServerModified {
			t.Fatalf("Stamps not strictly increasing: %d then %d",
				docs[i-1].ServerModified, docs[i].ServerModified)
		}
	}
}
