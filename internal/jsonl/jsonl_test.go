package jsonl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devsusana/tutorsync/internal/entity"
	"github.com/devsusana/tutorsync/internal/localstore"
)

func openStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(filepath.Join(t.TempDir(), "tutorsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *localstore.Store, tenant string) (*entity.Student, *entity.Schedule) {
	t.Helper()
	ctx := context.Background()

	st := &entity.Student{
		SyncFields: entity.SyncFields{TenantID: tenant},
		Name:       "Ana",
		Age:        14,
	}
	st.MarkModified()
	if err := s.UpsertStudent(ctx, st); err != nil {
		t.Fatalf("Seed student failed: %v", err)
	}

	sc := &entity.Schedule{
		SyncFields: entity.SyncFields{TenantID: tenant},
		StudentID:  st.LocalID,
		DayOfWeek:  4,
		StartTime:  "10:00",
		EndTime:    "11:00",
	}
	sc.MarkModified()
	if err := s.UpsertSchedule(ctx, sc); err != nil {
		t.Fatalf("Seed schedule failed: %v", err)
	}
	return st, sc
}

func TestExportImportRoundTrip(t *testing.T) {
	src := openStore(t)
	ctx := context.Background()
	st, _ := seed(t, src, "src-tenant")

	ex := &entity.ScheduleException{
		SyncFields: entity.SyncFields{TenantID: "src-tenant"},
		StudentID:  st.LocalID,
		ScheduleID: 1,
		Date:       1700000000000,
		Type:       entity.ExceptionCancelled,
	}
	ex.MarkModified()
	if err := src.UpsertScheduleException(ctx, ex); err != nil {
		t.Fatalf("Seed exception failed: %v", err)
	}

	var buf bytes.Buffer
	exported, err := Export(ctx, src, "src-tenant", &buf)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if exported.Records != 3 {
		t.Errorf("Exported = %d, want 3", exported.Records)
	}

	dst := openStore(t)
	imported, err := Import(ctx, dst, "dst-tenant", &buf)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if imported.Imported != 3 || imported.Skipped != 0 {
		t.Errorf("Import stats = %+v, want 3 imported", imported)
	}

	students, err := dst.ListStudents(ctx, "dst-tenant")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(students) != 1 || students[0].Name != "Ana" {
		t.Fatalf("Students = %v", students)
	}
	got := students[0]
	if got.SyncStatus != entity.StatusPendingUpload || got.CloudID != "" {
		t.Errorf("Imported record not queued for upload: %+v", got.SyncFields)
	}

	// The schedule's parent link follows the new local id.
	schedules, err := dst.SchedulesForStudent(ctx, "dst-tenant", got.LocalID)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(schedules) != 1 || schedules[0].StartTime != "10:00" {
		t.Errorf("Schedules = %v", schedules)
	}
}

func TestExportSkipsSoftDeleted(t *testing.T) {
	src := openStore(t)
	ctx := context.Background()
	st, _ := seed(t, src, "t1")

	if err := src.MarkStudentDeleted(ctx, "t1", st.LocalID); err != nil {
		t.Fatalf("Soft delete failed: %v", err)
	}

	var buf bytes.Buffer
	stats, err := Export(ctx, src, "t1", &buf)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if stats.Records != 1 {
		t.Errorf("Records = %d, want only the schedule", stats.Records)
	}
}

func TestImportSkipsOrphans(t *testing.T) {
	dst := openStore(t)

	// A schedule whose student is not in the stream.
	stream := `{"collection":"schedules","record":{"LocalID":7,"StudentID":99,"DayOfWeek":2,"StartTime":"09:00","EndTime":"10:00"}}`
	stats, err := Import(context.Background(), dst, "t1", strings.NewReader(stream))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if stats.Imported != 0 || stats.Skipped != 1 {
		t.Errorf("Stats = %+v, want 1 skipped", stats)
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	dst := openStore(t)
	if _, err := Import(context.Background(), dst, "t1", strings.NewReader("not json\n")); err == nil {
		t.Error("Garbage stream did not fail")
	}
	stream := `{"collection":"mystery","record":{}}`
	if _, err := Import(context.Background(), dst, "t1", strings.NewReader(stream)); err == nil {
		t.Error("Unknown collection did not fail")
	}
}
