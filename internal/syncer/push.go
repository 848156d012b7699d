package syncer

import (
	"context"
	"strconv"

	"github.com/devsusana/tutorsync/internal/entity"
	"github.com/devsusana/tutorsync/internal/remote"
)

// pushDeletes propagates local soft-deletions to the remote store and then
// removes the rows. Records the remote never saw (empty cloud id) are just
// removed locally. Deleting a student erases its whole remote subtree.
func (s *Synchronizer) pushDeletes(ctx context.Context, tenant string, report *Report) error {
	// Students first: their local hard-delete cascades to child rows, and
	// DeleteSubtree covers the children remotely, so child deletions under
	// a deleted student never run individually.
	students, err := s.pendingDeleteStudents(ctx, tenant)
	if err != nil {
		return err
	}
	for _, st := range students {
		if st.CloudID != "" {
			if err := s.remote.DeleteSubtree(ctx, remote.StudentsPath(tenant), st.CloudID); err != nil {
				s.reportDeleteFailure(report, &st.SyncFields, "delete student subtree", err)
				continue
			}
		}
		if err := s.local.HardDeleteStudent(ctx, st.LocalID); err != nil {
			s.logger.Printf("failed to remove student %d locally: %v", st.LocalID, err)
			report.Errors++
			continue
		}
		report.Deleted++
	}

	schedules, err := s.pendingDeleteSchedules(ctx, tenant)
	if err != nil {
		return err
	}
	for _, sc := range schedules {
		if sc.CloudID != "" {
			parent, err := s.local.StudentByID(ctx, tenant, sc.StudentID)
			if err != nil {
				return err
			}
			if parent != nil && parent.CloudID != "" {
				docPath := remote.DocPath(remote.SchedulesPath(tenant, parent.CloudID), sc.CloudID)
				if err := s.remote.Delete(ctx, docPath); err != nil {
					s.reportDeleteFailure(report, &sc.SyncFields, "delete schedule", err)
					continue
				}
			}
		}
		if err := s.local.HardDeleteSchedule(ctx, sc.LocalID); err != nil {
			s.logger.Printf("failed to remove schedule %d locally: %v", sc.LocalID, err)
			report.Errors++
			continue
		}
		report.Deleted++
	}

	exceptions, err := s.pendingDeleteExceptions(ctx, tenant)
	if err != nil {
		return err
	}
	for _, ex := range exceptions {
		if ex.CloudID != "" {
			docPath, err := s.exceptionDocPath(ctx, tenant, ex)
			if err != nil {
				return err
			}
			if docPath != "" {
				if err := s.remote.Delete(ctx, docPath); err != nil {
					s.reportDeleteFailure(report, &ex.SyncFields, "delete exception", err)
					continue
				}
			}
		}
		if err := s.local.HardDeleteScheduleException(ctx, ex.LocalID); err != nil {
			s.logger.Printf("failed to remove exception %d locally: %v", ex.LocalID, err)
			report.Errors++
			continue
		}
		report.Deleted++
	}

	resources, err := s.pendingDeleteResources(ctx, tenant)
	if err != nil {
		return err
	}
	for _, r := range resources {
		if r.CloudID != "" {
			docPath := remote.DocPath(remote.ResourcesPath(tenant), r.CloudID)
			if err := s.remote.Delete(ctx, docPath); err != nil {
				s.reportDeleteFailure(report, &r.SyncFields, "delete resource", err)
				continue
			}
		}
		if err := s.local.HardDeleteResource(ctx, r.LocalID); err != nil {
			s.logger.Printf("failed to remove resource %d locally: %v", r.LocalID, err)
			report.Errors++
			continue
		}
		report.Deleted++
	}

	shared, err := s.pendingDeleteSharedResources(ctx, tenant)
	if err != nil {
		return err
	}
	for _, sr := range shared {
		if sr.CloudID != "" {
			parent, err := s.local.StudentByID(ctx, tenant, sr.StudentID)
			if err != nil {
				return err
			}
			if parent != nil && parent.CloudID != "" {
				docPath := remote.DocPath(remote.SharedResourcesPath(tenant, parent.CloudID), sr.CloudID)
				if err := s.remote.Delete(ctx, docPath); err != nil {
					s.reportDeleteFailure(report, &sr.SyncFields, "delete shared resource", err)
					continue
				}
			}
		}
		if err := s.local.HardDeleteSharedResource(ctx, sr.LocalID); err != nil {
			s.logger.Printf("failed to remove shared resource %d locally: %v", sr.LocalID, err)
			report.Errors++
			continue
		}
		report.Deleted++
	}

	return nil
}

// pushUploads uploads dirty records parent-before-child so a child always
// finds its parent's cloud id assigned earlier in the same pass.
func (s *Synchronizer) pushUploads(ctx context.Context, tenant string, report *Report) error {
	students, err := s.dirtyStudents(ctx, tenant)
	if err != nil {
		return err
	}
	for _, st := range students {
		// The name is the idempotency key: a retried first upload finds
		// the document the crashed attempt created instead of duplicating.
		key, field := "", ""
		if st.CloudID == "" {
			key, field = st.Name, entity.FieldName
		}
		id, err := s.remote.Upload(ctx, remote.StudentsPath(tenant), st.CloudID, st.DocData(), key, field)
		if err != nil {
			s.recordError(ctx, report, &st.SyncFields, "upload student", err, func(c context.Context) error {
				return s.local.UpsertStudent(c, st)
			})
			continue
		}
		st.CloudID = id
		st.SyncStatus = entity.StatusSynced
		if err := s.local.UpsertStudent(ctx, st); err != nil {
			return err
		}
		report.Uploaded++
	}

	schedules, err := s.dirtySchedules(ctx, tenant)
	if err != nil {
		return err
	}
	for _, sc := range schedules {
		parent, err := s.local.StudentByID(ctx, tenant, sc.StudentID)
		if err != nil {
			return err
		}
		if parent == nil || parent.CloudID == "" {
			s.deferToNextCycle(ctx, report, &sc.SyncFields, "schedule", func(c context.Context) error {
				return s.local.UpsertSchedule(c, sc)
			})
			continue
		}
		key, field := childIdempotency(sc.CloudID, sc.LocalID)
		id, err := s.remote.Upload(ctx, remote.SchedulesPath(tenant, parent.CloudID), sc.CloudID, sc.DocData(), key, field)
		if err != nil {
			s.recordError(ctx, report, &sc.SyncFields, "upload schedule", err, func(c context.Context) error {
				return s.local.UpsertSchedule(c, sc)
			})
			continue
		}
		sc.CloudID = id
		sc.SyncStatus = entity.StatusSynced
		if err := s.local.UpsertSchedule(ctx, sc); err != nil {
			return err
		}
		report.Uploaded++
	}

	exceptions, err := s.dirtyExceptions(ctx, tenant)
	if err != nil {
		return err
	}
	for _, ex := range exceptions {
		collection, err := s.exceptionCollectionPath(ctx, tenant, ex)
		if err != nil {
			return err
		}
		if collection == "" {
			s.deferToNextCycle(ctx, report, &ex.SyncFields, "exception", func(c context.Context) error {
				return s.local.UpsertScheduleException(c, ex)
			})
			continue
		}
		key, field := childIdempotency(ex.CloudID, ex.LocalID)
		id, err := s.remote.Upload(ctx, collection, ex.CloudID, ex.DocData(), key, field)
		if err != nil {
			s.recordError(ctx, report, &ex.SyncFields, "upload exception", err, func(c context.Context) error {
				return s.local.UpsertScheduleException(c, ex)
			})
			continue
		}
		ex.CloudID = id
		ex.SyncStatus = entity.StatusSynced
		if err := s.local.UpsertScheduleException(ctx, ex); err != nil {
			return err
		}
		report.Uploaded++
	}

	resources, err := s.dirtyResources(ctx, tenant)
	if err != nil {
		return err
	}
	for _, r := range resources {
		key, field := "", ""
		if r.CloudID == "" {
			key, field = r.Name, entity.FieldName
		}
		id, err := s.remote.Upload(ctx, remote.ResourcesPath(tenant), r.CloudID, r.DocData(), key, field)
		if err != nil {
			s.recordError(ctx, report, &r.SyncFields, "upload resource", err, func(c context.Context) error {
				return s.local.UpsertResource(c, r)
			})
			continue
		}
		r.CloudID = id
		r.SyncStatus = entity.StatusSynced
		if err := s.local.UpsertResource(ctx, r); err != nil {
			return err
		}
		report.Uploaded++
	}

	shared, err := s.dirtySharedResources(ctx, tenant)
	if err != nil {
		return err
	}
	for _, sr := range shared {
		parent, err := s.local.StudentByID(ctx, tenant, sr.StudentID)
		if err != nil {
			return err
		}
		if parent == nil || parent.CloudID == "" {
			s.deferToNextCycle(ctx, report, &sr.SyncFields, "shared resource", func(c context.Context) error {
				return s.local.UpsertSharedResource(c, sr)
			})
			continue
		}
		key, field := childIdempotency(sr.CloudID, sr.LocalID)
		id, err := s.remote.Upload(ctx, remote.SharedResourcesPath(tenant, parent.CloudID), sr.CloudID, sr.DocData(), key, field)
		if err != nil {
			s.recordError(ctx, report, &sr.SyncFields, "upload shared resource", err, func(c context.Context) error {
				return s.local.UpsertSharedResource(c, sr)
			})
			continue
		}
		sr.CloudID = id
		sr.SyncStatus = entity.StatusSynced
		if err := s.local.UpsertSharedResource(ctx, sr); err != nil {
			return err
		}
		report.Uploaded++
	}

	return nil
}

// childIdempotency returns the idempotency pair for a child record: its
// immutable local id, but only on first upload.
func childIdempotency(cloudID string, localID int64) (key, field string) {
	if cloudID != "" {
		return "", ""
	}
	return strconv.FormatInt(localID, 10), entity.FieldLocalID
}

// exceptionCollectionPath resolves the remote collection for an exception,
// or "" when a parent has no cloud id yet.
func (s *Synchronizer) exceptionCollectionPath(ctx context.Context, tenant string, ex *entity.ScheduleException) (string, error) {
	schedule, err := s.local.ScheduleByID(ctx, tenant, ex.ScheduleID)
	if err != nil {
		return "", err
	}
	if schedule == nil || schedule.CloudID == "" {
		return "", nil
	}
	student, err := s.local.StudentByID(ctx, tenant, ex.StudentID)
	if err != nil {
		return "", err
	}
	if student == nil || student.CloudID == "" {
		return "", nil
	}
	return remote.ExceptionsPath(tenant, student.CloudID, schedule.CloudID), nil
}

// exceptionDocPath resolves the full remote path of an exception document,
// or "" when the parents are unknown remotely.
func (s *Synchronizer) exceptionDocPath(ctx context.Context, tenant string, ex *entity.ScheduleException) (string, error) {
	collection, err := s.exceptionCollectionPath(ctx, tenant, ex)
	if err != nil || collection == "" {
		return "", err
	}
	return remote.DocPath(collection, ex.CloudID), nil
}

// reportDeleteFailure logs a failed remote deletion and counts it. The
// record keeps its pending-delete status so the status column stays
// truthful; the next cycle retries the deletion.
func (s *Synchronizer) reportDeleteFailure(report *Report, f *entity.SyncFields, op string, cause error) {
	s.logger.Printf("%s %d failed: %v", op, f.LocalID, cause)
	report.Errors++
}

// recordError marks the record as errored, persists it and logs. The cycle
// continues; the record is retried next time.
func (s *Synchronizer) recordError(ctx context.Context, report *Report, f *entity.SyncFields, op string, cause error, upsert func(context.Context) error) {
	s.logger.Printf("%s %d failed: %v", op, f.LocalID, cause)
	f.SyncStatus = entity.StatusError
	if err := upsert(ctx); err != nil {
		s.logger.Printf("failed to persist error status for %d: %v", f.LocalID, err)
	}
	report.Errors++
}

// deferToNextCycle handles a child whose parent has no cloud id yet, usually
// because the parent's upload failed this cycle. The child stays queued.
func (s *Synchronizer) deferToNextCycle(ctx context.Context, report *Report, f *entity.SyncFields, kind string, upsert func(context.Context) error) {
	s.logger.Printf("%s %d deferred: parent not uploaded yet", kind, f.LocalID)
	f.SyncStatus = entity.StatusError
	if err := upsert(ctx); err != nil {
		s.logger.Printf("failed to persist deferral for %d: %v", f.LocalID, err)
	}
	report.Errors++
}
