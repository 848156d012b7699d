package syncer

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/devsusana/tutorsync/internal/entity"
	"github.com/devsusana/tutorsync/internal/localstore"
	"github.com/devsusana/tutorsync/internal/remote"
)

const testTenant = "tenant-1"

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func setupSyncer(t *testing.T, rs remote.Store) (*localstore.Store, *Synchronizer) {
	t.Helper()
	local, err := localstore.Open(filepath.Join(t.TempDir(), "tutorsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })
	return local, New(local, rs, StaticTenant(testTenant), WithLogger(quietLogger()))
}

func addStudent(t *testing.T, local *localstore.Store, name string) *entity.Student {
	t.Helper()
	st := &entity.Student{
		SyncFields: entity.SyncFields{TenantID: testTenant},
		Name:       name,
		Age:        15,
		Active:     true,
	}
	st.MarkModified()
	if err := local.UpsertStudent(context.Background(), st); err != nil {
		t.Fatalf("Failed to add student: %v", err)
	}
	return st
}

func addSchedule(t *testing.T, local *localstore.Store, studentID int64) *entity.Schedule {
	t.Helper()
	sc := &entity.Schedule{
		SyncFields: entity.SyncFields{TenantID: testTenant},
		StudentID:  studentID,
		DayOfWeek:  2,
		StartTime:  "16:00",
		EndTime:    "17:00",
	}
	sc.MarkModified()
	if err := local.UpsertSchedule(context.Background(), sc); err != nil {
		t.Fatalf("Failed to add schedule: %v", err)
	}
	return sc
}

// flakyStore wraps a Store and fails uploads matching a name until the
// failure budget runs out.
type flakyStore struct {
	remote.Store
	failName  string
	failsLeft int
}

var errInjected = errors.New("injected remote failure")

func (f *flakyStore) Upload(ctx context.Context, path, docID string, data map[string]any, key, field string) (string, error) {
	if f.failsLeft > 0 && data["name"] == f.failName {
		f.failsLeft--
		return "", errInjected
	}
	return f.Store.Upload(ctx, path, docID, data, key, field)
}

func TestPushConvergence(t *testing.T) {
	rs := remote.NewMemStore()
	local, s := setupSyncer(t, rs)
	ctx := context.Background()

	st := addStudent(t, local, "Ana")
	sc := addSchedule(t, local, st.LocalID)

	report, err := s.PerformSync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if report.Uploaded != 2 {
		t.Errorf("Uploaded = %d, want 2", report.Uploaded)
	}
	if report.Errors != 0 {
		t.Errorf("Errors = %d, want 0", report.Errors)
	}

	got, err := local.StudentByID(ctx, testTenant, st.LocalID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CloudID == "" || got.SyncStatus != entity.StatusSynced {
		t.Errorf("Student not synced: %+v", got.SyncFields)
	}
	if _, ok := rs.Get(remote.StudentsPath(testTenant), got.CloudID); !ok {
		t.Error("Student missing from remote store")
	}

	gotSc, err := local.ScheduleByID(ctx, testTenant, sc.LocalID)
	if err != nil {
		t.Fatalf("Get schedule failed: %v", err)
	}
	if gotSc.CloudID == "" || gotSc.SyncStatus != entity.StatusSynced {
		t.Errorf("Schedule not synced: %+v", gotSc.SyncFields)
	}
	if _, ok := rs.Get(remote.SchedulesPath(testTenant, got.CloudID), gotSc.CloudID); !ok {
		t.Error("Schedule missing from remote store")
	}
}

func TestRecordFailureIsolation(t *testing.T) {
	rs := remote.NewMemStore()
	flaky := &flakyStore{Store: rs, failName: "Ana", failsLeft: 1}
	local, s := setupSyncer(t, flaky)
	ctx := context.Background()

	ana := addStudent(t, local, "Ana")
	bea := addStudent(t, local, "Bea")

	report, err := s.PerformSync(ctx)
	if err != nil {
		t.Fatalf("Cycle must survive a record failure, got: %v", err)
	}
	if report.Uploaded != 1 || report.Errors != 1 {
		t.Errorf("Report = up %d err %d, want 1/1", report.Uploaded, report.Errors)
	}

	gotAna, _ := local.StudentByID(ctx, testTenant, ana.LocalID)
	if gotAna.SyncStatus != entity.StatusError {
		t.Errorf("Failed record status = %v, want error", gotAna.SyncStatus)
	}
	gotBea, _ := local.StudentByID(ctx, testTenant, bea.LocalID)
	if gotBea.SyncStatus != entity.StatusSynced {
		t.Errorf("Healthy record status = %v, want synced", gotBea.SyncStatus)
	}

	// The errored record retries and converges on the next cycle without
	// duplicating remotely.
	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Retry cycle failed: %v", err)
	}
	gotAna, _ = local.StudentByID(ctx, testTenant, ana.LocalID)
	if gotAna.SyncStatus != entity.StatusSynced {
		t.Errorf("Retried record status = %v, want synced", gotAna.SyncStatus)
	}
	if n := rs.Count(remote.StudentsPath(testTenant)); n != 2 {
		t.Errorf("Remote students = %d, want 2", n)
	}
}

func TestChildDeferredUntilParentUploads(t *testing.T) {
	rs := remote.NewMemStore()
	flaky := &flakyStore{Store: rs, failName: "Ana", failsLeft: 1}
	local, s := setupSyncer(t, flaky)
	ctx := context.Background()

	ana := addStudent(t, local, "Ana")
	sc := addSchedule(t, local, ana.LocalID)

	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	gotSc, _ := local.ScheduleByID(ctx, testTenant, sc.LocalID)
	if gotSc.SyncStatus != entity.StatusError || gotSc.CloudID != "" {
		t.Errorf("Child should be deferred while parent is unuploaded: %+v", gotSc.SyncFields)
	}

	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Retry cycle failed: %v", err)
	}
	gotSc, _ = local.ScheduleByID(ctx, testTenant, sc.LocalID)
	if gotSc.SyncStatus != entity.StatusSynced || gotSc.CloudID == "" {
		t.Errorf("Child did not converge after parent upload: %+v", gotSc.SyncFields)
	}
}

func TestDeleteConvergence(t *testing.T) {
	rs := remote.NewMemStore()
	local, s := setupSyncer(t, rs)
	ctx := context.Background()

	st := addStudent(t, local, "Ana")
	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Initial sync failed: %v", err)
	}

	if err := local.MarkStudentDeleted(ctx, testTenant, st.LocalID); err != nil {
		t.Fatalf("Soft delete failed: %v", err)
	}
	report, err := s.PerformSync(ctx)
	if err != nil {
		t.Fatalf("Delete sync failed: %v", err)
	}
	if report.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", report.Deleted)
	}

	if n := rs.Count(remote.StudentsPath(testTenant)); n != 0 {
		t.Errorf("Remote students after delete = %d, want 0", n)
	}
	got, err := local.StudentByID(ctx, testTenant, st.LocalID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Local row survived delete cycle: %+v", got)
	}
}

// blockedDeleteStore wraps a Store and fails subtree deletions until the
// failure budget runs out.
type blockedDeleteStore struct {
	remote.Store
	failsLeft int
}

func (b *blockedDeleteStore) DeleteSubtree(ctx context.Context, rootCollection, rootID string) error {
	if b.failsLeft > 0 {
		b.failsLeft--
		return errInjected
	}
	return b.Store.DeleteSubtree(ctx, rootCollection, rootID)
}

func TestDeleteFailureKeepsPendingStatus(t *testing.T) {
	rs := remote.NewMemStore()
	blocked := &blockedDeleteStore{Store: rs, failsLeft: 1}
	local, s := setupSyncer(t, blocked)
	ctx := context.Background()

	st := addStudent(t, local, "Ana")
	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Initial sync failed: %v", err)
	}
	if err := local.MarkStudentDeleted(ctx, testTenant, st.LocalID); err != nil {
		t.Fatalf("Soft delete failed: %v", err)
	}

	report, err := s.PerformSync(ctx)
	if err != nil {
		t.Fatalf("Cycle must survive a delete failure, got: %v", err)
	}
	if report.Deleted != 0 || report.Errors != 1 {
		t.Errorf("Report = del %d err %d, want 0/1", report.Deleted, report.Errors)
	}
	got, _ := local.StudentByID(ctx, testTenant, st.LocalID)
	if got == nil {
		t.Fatal("Record removed locally before the remote delete succeeded")
	}
	if got.SyncStatus != entity.StatusPendingDelete || !got.PendingDelete {
		t.Errorf("Failed delete changed status: %+v", got.SyncFields)
	}

	// The deletion retries and converges on the next cycle.
	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Retry cycle failed: %v", err)
	}
	if n := rs.Count(remote.StudentsPath(testTenant)); n != 0 {
		t.Errorf("Remote students after retry = %d, want 0", n)
	}
	if got, _ := local.StudentByID(ctx, testTenant, st.LocalID); got != nil {
		t.Errorf("Local row survived retry cycle: %+v", got)
	}
}

func TestCascadingErasure(t *testing.T) {
	rs := remote.NewMemStore()
	local, s := setupSyncer(t, rs)
	ctx := context.Background()

	ana := addStudent(t, local, "Ana")
	addSchedule(t, local, ana.LocalID)
	luis := addStudent(t, local, "Luis")

	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Initial sync failed: %v", err)
	}
	anaCloud, _ := local.StudentByID(ctx, testTenant, ana.LocalID)
	luisCloud, _ := local.StudentByID(ctx, testTenant, luis.LocalID)

	if err := local.MarkStudentDeleted(ctx, testTenant, ana.LocalID); err != nil {
		t.Fatalf("Soft delete failed: %v", err)
	}
	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Delete sync failed: %v", err)
	}

	if _, ok := rs.Get(remote.StudentsPath(testTenant), anaCloud.CloudID); ok {
		t.Error("Deleted student still on remote")
	}
	if n := rs.Count(remote.SchedulesPath(testTenant, anaCloud.CloudID)); n != 0 {
		t.Errorf("Remote schedules not cascaded: %d left", n)
	}
	if _, ok := rs.Get(remote.StudentsPath(testTenant), luisCloud.CloudID); !ok {
		t.Error("Unrelated student was erased")
	}

	// The local cascade too: no orphan schedules remain.
	schedules, err := local.SchedulesForStudent(ctx, testTenant, ana.LocalID)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(schedules) != 0 {
		t.Errorf("Local schedules survived cascade: %v", schedules)
	}
}

func TestConflictRemoteWins(t *testing.T) {
	rs := remote.NewMemStore()
	local, s := setupSyncer(t, rs)
	ctx := context.Background()

	st := addStudent(t, local, "Ana")
	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Initial sync failed: %v", err)
	}
	st, _ = local.StudentByID(ctx, testTenant, st.LocalID)

	// A strictly newer edit on the remote, and a local edit whose push is
	// blocked this cycle, so the pull has to resolve the divergence.
	remoteCopy := *st
	remoteCopy.Notes = "remote edit"
	remoteCopy.LastModified = st.LastModified + 5000
	if _, err := rs.Upload(ctx, remote.StudentsPath(testTenant), st.CloudID, remoteCopy.DocData(), "", ""); err != nil {
		t.Fatalf("Remote edit failed: %v", err)
	}

	st.Notes = "local edit"
	st.MarkModified()
	st.LastModified = remoteCopy.LastModified - 1000
	if err := local.UpsertStudent(ctx, st); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	flaky := &flakyStore{Store: rs, failName: "Ana", failsLeft: 1}
	blocked := New(local, flaky, StaticTenant(testTenant), WithLogger(quietLogger()))

	report, err := blocked.PerformSync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if report.Conflicts == 0 {
		t.Error("Conflict not detected")
	}

	got, _ := local.StudentByID(ctx, testTenant, st.LocalID)
	if got.Notes != "remote edit" {
		t.Errorf("Notes = %q, want remote edit to win", got.Notes)
	}
	if got.SyncStatus != entity.StatusSynced {
		t.Errorf("Status = %v, want synced", got.SyncStatus)
	}
}

func TestConflictLocalWins(t *testing.T) {
	rs := remote.NewMemStore()
	local, s := setupSyncer(t, rs)
	ctx := context.Background()

	st := addStudent(t, local, "Ana")
	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Initial sync failed: %v", err)
	}
	st, _ = local.StudentByID(ctx, testTenant, st.LocalID)

	// An older remote edit, then a newer local one that is push-blocked
	// (error state), so the pull must resolve in favor of local.
	remoteCopy := *st
	remoteCopy.Notes = "stale remote edit"
	remoteCopy.LastModified = st.LastModified - 5000
	if _, err := rs.Upload(ctx, remote.StudentsPath(testTenant), st.CloudID, remoteCopy.DocData(), "", ""); err != nil {
		t.Fatalf("Remote edit failed: %v", err)
	}

	flaky := &flakyStore{Store: rs, failName: "Ana", failsLeft: 1}
	blocked := New(local, flaky, StaticTenant(testTenant), WithLogger(quietLogger()))

	st.Notes = "local edit"
	st.MarkModified()
	if err := local.UpsertStudent(ctx, st); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	report, err := blocked.PerformSync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if report.Conflicts == 0 {
		t.Error("Conflict not detected")
	}
	got, _ := local.StudentByID(ctx, testTenant, st.LocalID)
	if got.Notes != "local edit" {
		t.Errorf("Notes = %q, want local edit to survive", got.Notes)
	}
	if got.SyncStatus != entity.StatusPendingUpload {
		t.Errorf("Status = %v, want pending_upload for re-push", got.SyncStatus)
	}

	// Next cycle pushes the winner and both sides converge.
	if _, err := s.PerformSync(ctx); err != nil {
		t.Fatalf("Convergence cycle failed: %v", err)
	}
	doc, ok := rs.Get(remote.StudentsPath(testTenant), got.CloudID)
	if !ok {
		t.Fatal("Student missing from remote")
	}
	if doc.Data["notes"] != "local edit" {
		t.Errorf("Remote notes = %v, want local edit", doc.Data["notes"])
	}
}

func TestSyncMutualExclusion(t *testing.T) {
	rs := remote.NewMemStore()
	local, s := setupSyncer(t, rs)
	ctx := context.Background()

	// Another process's persisted flag blocks the cycle.
	if err := local.SetSyncInProgress(ctx, testTenant, true); err != nil {
		t.Fatalf("Set flag failed: %v", err)
	}
	if _, err := s.PerformSync(ctx); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("Err = %v, want ErrSyncInProgress", err)
	}

	// A stale flag from a crashed cycle is overridden.
	stale := New(local, rs, StaticTenant(testTenant),
		WithLogger(quietLogger()), WithStaleAfter(time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	if _, err := stale.PerformSync(ctx); err != nil {
		t.Errorf("Stale flag not overridden: %v", err)
	}

	// The flag is cleared after a successful cycle.
	inProgress, err := local.SyncInProgress(ctx, testTenant, 0)
	if err != nil {
		t.Fatalf("Read flag failed: %v", err)
	}
	if inProgress {
		t.Error("Flag still set after cycle completed")
	}
}

func TestNoTenant(t *testing.T) {
	rs := remote.NewMemStore()
	local, err := localstore.Open(filepath.Join(t.TempDir(), "tutorsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	s := New(local, rs, StaticTenant(""), WithLogger(quietLogger()))
	if _, err := s.PerformSync(context.Background()); !errors.Is(err, ErrNoTenant) {
		t.Errorf("Err = %v, want ErrNoTenant", err)
	}
}

func TestTwoDeviceConvergence(t *testing.T) {
	rs := remote.NewMemStore()
	localA, deviceA := setupSyncer(t, rs)
	localB, deviceB := setupSyncer(t, rs)
	ctx := context.Background()

	// Device A creates a student with a schedule and pushes.
	ana := addStudent(t, localA, "Ana")
	addSchedule(t, localA, ana.LocalID)
	if _, err := deviceA.PerformSync(ctx); err != nil {
		t.Fatalf("Device A sync failed: %v", err)
	}

	// Device B pulls the whole subtree in one cycle: the student lands
	// first and its child collections are walked right after.
	report, err := deviceB.PerformSync(ctx)
	if err != nil {
		t.Fatalf("Device B sync failed: %v", err)
	}
	if report.Downloaded < 2 {
		t.Errorf("Downloaded = %d, want student and schedule", report.Downloaded)
	}

	students, err := localB.ListStudents(ctx, testTenant)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(students) != 1 || students[0].Name != "Ana" {
		t.Fatalf("Device B students = %v, want Ana", students)
	}
	schedules, err := localB.SchedulesForStudent(ctx, testTenant, students[0].LocalID)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(schedules) != 1 || schedules[0].StartTime != "16:00" {
		t.Errorf("Device B schedules = %v", schedules)
	}

	// A no-op cycle on device B downloads nothing: the watermark holds.
	report, err = deviceB.PerformSync(ctx)
	if err != nil {
		t.Fatalf("No-op cycle failed: %v", err)
	}
	if report.Downloaded != 0 || report.Uploaded != 0 {
		t.Errorf("No-op cycle moved data: %+v", report)
	}
}
