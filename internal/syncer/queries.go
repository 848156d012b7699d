package syncer

// Dirty-record queries. A record is push-worthy when it is freshly modified
// (pending_upload) or a previous push failed (error); the pending_delete
// flag splits those into the delete queue and the upload queue.

import (
	"context"

	"github.com/devsusana/tutorsync/internal/entity"
)

var dirtyStatuses = []entity.SyncStatus{entity.StatusPendingUpload, entity.StatusError}

var deleteStatuses = []entity.SyncStatus{entity.StatusPendingDelete, entity.StatusError}

func (s *Synchronizer) dirtyStudents(ctx context.Context, tenant string) ([]*entity.Student, error) {
	var out []*entity.Student
	for _, status := range dirtyStatuses {
		batch, err := s.local.StudentsByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, st := range batch {
			if !st.PendingDelete {
				out = append(out, st)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) pendingDeleteStudents(ctx context.Context, tenant string) ([]*entity.Student, error) {
	var out []*entity.Student
	for _, status := range deleteStatuses {
		batch, err := s.local.StudentsByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, st := range batch {
			if st.PendingDelete {
				out = append(out, st)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) dirtySchedules(ctx context.Context, tenant string) ([]*entity.Schedule, error) {
	var out []*entity.Schedule
	for _, status := range dirtyStatuses {
		batch, err := s.local.SchedulesByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, sc := range batch {
			if !sc.PendingDelete {
				out = append(out, sc)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) pendingDeleteSchedules(ctx context.Context, tenant string) ([]*entity.Schedule, error) {
	var out []*entity.Schedule
	for _, status := range deleteStatuses {
		batch, err := s.local.SchedulesByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, sc := range batch {
			if sc.PendingDelete {
				out = append(out, sc)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) dirtyExceptions(ctx context.Context, tenant string) ([]*entity.ScheduleException, error) {
	var out []*entity.ScheduleException
	for _, status := range dirtyStatuses {
		batch, err := s.local.ScheduleExceptionsByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, ex := range batch {
			if !ex.PendingDelete {
				out = append(out, ex)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) pendingDeleteExceptions(ctx context.Context, tenant string) ([]*entity.ScheduleException, error) {
	var out []*entity.ScheduleException
	for _, status := range deleteStatuses {
		batch, err := s.local.ScheduleExceptionsByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, ex := range batch {
			if ex.PendingDelete {
				out = append(out, ex)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) dirtyResources(ctx context.Context, tenant string) ([]*entity.Resource, error) {
	var out []*entity.Resource
	for _, status := range dirtyStatuses {
		batch, err := s.local.ResourcesByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			if !r.PendingDelete {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) pendingDeleteResources(ctx context.Context, tenant string) ([]*entity.Resource, error) {
	var out []*entity.Resource
	for _, status := range deleteStatuses {
		batch, err := s.local.ResourcesByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			if r.PendingDelete {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) dirtySharedResources(ctx context.Context, tenant string) ([]*entity.SharedResource, error) {
	var out []*entity.SharedResource
	for _, status := range dirtyStatuses {
		batch, err := s.local.SharedResourcesByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, sr := range batch {
			if !sr.PendingDelete {
				out = append(out, sr)
			}
		}
	}
	return out, nil
}

func (s *Synchronizer) pendingDeleteSharedResources(ctx context.Context, tenant string) ([]*entity.SharedResource, error) {
	var out []*entity.SharedResource
	for _, status := range deleteStatuses {
		batch, err := s.local.SharedResourcesByStatus(ctx, tenant, status)
		if err != nil {
			return nil, err
		}
		for _, sr := range batch {
			if sr.PendingDelete {
				out = append(out, sr)
			}
		}
	}
	return out, nil
}
