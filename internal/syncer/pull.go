package syncer

import (
	"context"

	"github.com/devsusana/tutorsync/internal/entity"
	"github.com/devsusana/tutorsync/internal/remote"
	"github.com/devsusana/tutorsync/internal/resolver"
)

// pull downloads every collection's changes since the watermark and applies
// them, resolving conflicts against dirty local records. It returns the
// highest ServerModified seen and the number of records that failed to
// apply locally.
func (s *Synchronizer) pull(ctx context.Context, tenant string, since int64, report *Report) (int64, int, error) {
	maxTS := since
	pullErrors := 0

	track := func(docs []remote.Document) {
		for _, d := range docs {
			if d.ServerModified > maxTS {
				maxTS = d.ServerModified
			}
		}
	}

	docs, err := s.remote.DownloadCollection(ctx, remote.StudentsPath(tenant), since)
	if err != nil {
		return 0, 0, err
	}
	track(docs)
	for _, doc := range docs {
		if err := s.applyStudent(ctx, tenant, doc, report); err != nil {
			s.logger.Printf("failed to apply student %s: %v", doc.ID, err)
			pullErrors++
			report.Errors++
		}
	}

	// Child collections nest under each student's remote subtree; records
	// under students this device does not know yet arrive next cycle, once
	// the student row pulled above is in place. Soft-deleted parents are
	// skipped: their subtree is already queued for erasure.
	students, err := s.local.ListStudents(ctx, tenant)
	if err != nil {
		return 0, 0, err
	}
	for _, st := range students {
		if st.CloudID == "" {
			continue
		}

		scDocs, err := s.remote.DownloadCollection(ctx, remote.SchedulesPath(tenant, st.CloudID), since)
		if err != nil {
			return 0, 0, err
		}
		track(scDocs)
		for _, doc := range scDocs {
			if err := s.applySchedule(ctx, tenant, st.LocalID, doc, report); err != nil {
				s.logger.Printf("failed to apply schedule %s: %v", doc.ID, err)
				pullErrors++
				report.Errors++
			}
		}

		schedules, err := s.local.SchedulesForStudent(ctx, tenant, st.LocalID)
		if err != nil {
			return 0, 0, err
		}
		for _, sc := range schedules {
			if sc.CloudID == "" {
				continue
			}
			exDocs, err := s.remote.DownloadCollection(ctx, remote.ExceptionsPath(tenant, st.CloudID, sc.CloudID), since)
			if err != nil {
				return 0, 0, err
			}
			track(exDocs)
			for _, doc := range exDocs {
				if err := s.applyException(ctx, tenant, st.LocalID, sc.LocalID, doc, report); err != nil {
					s.logger.Printf("failed to apply exception %s: %v", doc.ID, err)
					pullErrors++
					report.Errors++
				}
			}
		}

		srDocs, err := s.remote.DownloadCollection(ctx, remote.SharedResourcesPath(tenant, st.CloudID), since)
		if err != nil {
			return 0, 0, err
		}
		track(srDocs)
		for _, doc := range srDocs {
			if err := s.applySharedResource(ctx, tenant, st.LocalID, doc, report); err != nil {
				s.logger.Printf("failed to apply shared resource %s: %v", doc.ID, err)
				pullErrors++
				report.Errors++
			}
		}
	}

	rDocs, err := s.remote.DownloadCollection(ctx, remote.ResourcesPath(tenant), since)
	if err != nil {
		return 0, 0, err
	}
	track(rDocs)
	for _, doc := range rDocs {
		if err := s.applyResource(ctx, tenant, doc, report); err != nil {
			s.logger.Printf("failed to apply resource %s: %v", doc.ID, err)
			pullErrors++
			report.Errors++
		}
	}

	return maxTS, pullErrors, nil
}

func (s *Synchronizer) applyStudent(ctx context.Context, tenant string, doc remote.Document, report *Report) error {
	local, err := s.local.StudentByCloudID(ctx, tenant, doc.ID)
	if err != nil {
		return err
	}

	incoming := entity.StudentFromDoc(tenant, doc.Data)
	incoming.CloudID = doc.ID
	incoming.SyncStatus = entity.StatusSynced

	if local == nil {
		if err := s.local.UpsertStudent(ctx, incoming); err != nil {
			return err
		}
		report.Downloaded++
		return nil
	}
	if local.PendingDelete {
		// Local deletion intent stands; the push phase erases the remote
		// copy once it succeeds.
		return nil
	}
	if local.Dirty() {
		report.Conflicts++
		if resolver.Resolve(local.LastModified, incoming.LastModified) == resolver.LocalWins {
			local.SyncStatus = entity.StatusPendingUpload
			return s.local.UpsertStudent(ctx, local)
		}
	}
	incoming.LocalID = local.LocalID
	if err := s.local.UpsertStudent(ctx, incoming); err != nil {
		return err
	}
	report.Downloaded++
	return nil
}

func (s *Synchronizer) applySchedule(ctx context.Context, tenant string, studentID int64, doc remote.Document, report *Report) error {
	local, err := s.local.ScheduleByCloudID(ctx, tenant, doc.ID)
	if err != nil {
		return err
	}

	incoming := entity.ScheduleFromDoc(tenant, studentID, doc.Data)
	incoming.CloudID = doc.ID
	incoming.SyncStatus = entity.StatusSynced

	if local == nil {
		if err := s.local.UpsertSchedule(ctx, incoming); err != nil {
			return err
		}
		report.Downloaded++
		return nil
	}
	if local.PendingDelete {
		return nil
	}
	if local.Dirty() {
		report.Conflicts++
		if resolver.Resolve(local.LastModified, incoming.LastModified) == resolver.LocalWins {
			local.SyncStatus = entity.StatusPendingUpload
			return s.local.UpsertSchedule(ctx, local)
		}
	}
	incoming.LocalID = local.LocalID
	incoming.StudentID = local.StudentID
	if err := s.local.UpsertSchedule(ctx, incoming); err != nil {
		return err
	}
	report.Downloaded++
	return nil
}

func (s *Synchronizer) applyException(ctx context.Context, tenant string, studentID, scheduleID int64, doc remote.Document, report *Report) error {
	local, err := s.local.ScheduleExceptionByCloudID(ctx, tenant, doc.ID)
	if err != nil {
		return err
	}

	incoming := entity.ScheduleExceptionFromDoc(tenant, studentID, scheduleID, doc.Data)
	incoming.CloudID = doc.ID
	incoming.SyncStatus = entity.StatusSynced

	if local == nil {
		if err := s.local.UpsertScheduleException(ctx, incoming); err != nil {
			return err
		}
		report.Downloaded++
		return nil
	}
	if local.PendingDelete {
		return nil
	}
	if local.Dirty() {
		report.Conflicts++
		if resolver.Resolve(local.LastModified, incoming.LastModified) == resolver.LocalWins {
			local.SyncStatus = entity.StatusPendingUpload
			return s.local.UpsertScheduleException(ctx, local)
		}
	}
	incoming.LocalID = local.LocalID
	incoming.StudentID = local.StudentID
	incoming.ScheduleID = local.ScheduleID
	if err := s.local.UpsertScheduleException(ctx, incoming); err != nil {
		return err
	}
	report.Downloaded++
	return nil
}

func (s *Synchronizer) applyResource(ctx context.Context, tenant string, doc remote.Document, report *Report) error {
	local, err := s.local.ResourceByCloudID(ctx, tenant, doc.ID)
	if err != nil {
		return err
	}

	incoming := entity.ResourceFromDoc(tenant, doc.Data)
	incoming.CloudID = doc.ID
	incoming.SyncStatus = entity.StatusSynced

	if local == nil {
		if err := s.local.UpsertResource(ctx, incoming); err != nil {
			return err
		}
		report.Downloaded++
		return nil
	}
	if local.PendingDelete {
		return nil
	}
	if local.Dirty() {
		report.Conflicts++
		if resolver.Resolve(local.LastModified, incoming.LastModified) == resolver.LocalWins {
			local.SyncStatus = entity.StatusPendingUpload
			return s.local.UpsertResource(ctx, local)
		}
	}
	incoming.LocalID = local.LocalID
	if err := s.local.UpsertResource(ctx, incoming); err != nil {
		return err
	}
	report.Downloaded++
	return nil
}

func (s *Synchronizer) applySharedResource(ctx context.Context, tenant string, studentID int64, doc remote.Document, report *Report) error {
	local, err := s.local.SharedResourceByCloudID(ctx, tenant, doc.ID)
	if err != nil {
		return err
	}

	incoming := entity.SharedResourceFromDoc(tenant, studentID, doc.Data)
	incoming.CloudID = doc.ID
	incoming.SyncStatus = entity.StatusSynced

	if local == nil {
		if err := s.local.UpsertSharedResource(ctx, incoming); err != nil {
			return err
		}
		report.Downloaded++
		return nil
	}
	if local.PendingDelete {
		return nil
	}
	if local.Dirty() {
		report.Conflicts++
		if resolver.Resolve(local.LastModified, incoming.LastModified) == resolver.LocalWins {
			local.SyncStatus = entity.StatusPendingUpload
			return s.local.UpsertSharedResource(ctx, local)
		}
	}
	incoming.LocalID = local.LocalID
	incoming.StudentID = local.StudentID
	if err := s.local.UpsertSharedResource(ctx, incoming); err != nil {
		return err
	}
	report.Downloaded++
	return nil
}
