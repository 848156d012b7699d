// Package jsonl moves a tenant's data in and out of JSON Lines streams.
//
// Each line is one record wrapped with its collection name. Export writes
// parents before children so Import can rebuild the local-id links; Import
// treats everything as new local data and queues it for upload.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/devsusana/tutorsync/internal/entity"
	"github.com/devsusana/tutorsync/internal/localstore"
)

// Collection names used on the wire.
const (
	collectionStudents        = "students"
	collectionSchedules       = "schedules"
	collectionExceptions      = "schedule_exceptions"
	collectionResources       = "resources"
	collectionSharedResources = "shared_resources"
)

type line struct {
	Collection string          `json:"collection"`
	Record     json.RawMessage `json:"record"`
}

// ExportStats summarizes an export.
type ExportStats struct {
	Records int
}

// ImportStats summarizes an import.
type ImportStats struct {
	Imported int
	Skipped  int
}

// Export writes the tenant's live records (soft-deleted ones excluded) to w
// as JSONL, parents before children.
func Export(ctx context.Context, store *localstore.Store, tenant string, w io.Writer) (*ExportStats, error) {
	stats := &ExportStats{}
	enc := json.NewEncoder(w)

	write := func(collection string, record any) error {
		raw, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode %s record: %w", collection, err)
		}
		if err := enc.Encode(line{Collection: collection, Record: raw}); err != nil {
			return fmt.Errorf("failed to write %s record: %w", collection, err)
		}
		stats.Records++
		return nil
	}

	students, err := store.StudentsModifiedSince(ctx, tenant, 0)
	if err != nil {
		return nil, err
	}
	for _, st := range students {
		if st.PendingDelete {
			continue
		}
		if err := write(collectionStudents, st); err != nil {
			return nil, err
		}
	}

	schedules, err := store.SchedulesModifiedSince(ctx, tenant, 0)
	if err != nil {
		return nil, err
	}
	for _, sc := range schedules {
		if sc.PendingDelete {
			continue
		}
		if err := write(collectionSchedules, sc); err != nil {
			return nil, err
		}
	}

	exceptions, err := store.ScheduleExceptionsModifiedSince(ctx, tenant, 0)
	if err != nil {
		return nil, err
	}
	for _, ex := range exceptions {
		if ex.PendingDelete {
			continue
		}
		if err := write(collectionExceptions, ex); err != nil {
			return nil, err
		}
	}

	resources, err := store.ResourcesModifiedSince(ctx, tenant, 0)
	if err != nil {
		return nil, err
	}
	for _, r := range resources {
		if r.PendingDelete {
			continue
		}
		if err := write(collectionResources, r); err != nil {
			return nil, err
		}
	}

	shared, err := store.SharedResourcesModifiedSince(ctx, tenant, 0)
	if err != nil {
		return nil, err
	}
	for _, sr := range shared {
		if sr.PendingDelete {
			continue
		}
		if err := write(collectionSharedResources, sr); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

// Import reads a JSONL stream into the tenant's store. Records get fresh
// local ids and are queued for upload; parent links are remapped through
// the ids assigned during this import. A record whose parent is missing
// from the stream is skipped and counted.
func Import(ctx context.Context, store *localstore.Store, tenant string, r io.Reader) (*ImportStats, error) {
	stats := &ImportStats{}
	studentIDs := make(map[int64]int64) // exported local id -> new local id
	scheduleIDs := make(map[int64]int64)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		switch l.Collection {
		case collectionStudents:
			var st entity.Student
			if err := json.Unmarshal(l.Record, &st); err != nil {
				return nil, fmt.Errorf("invalid student at line %d: %w", lineNum, err)
			}
			exportedID := st.LocalID
			resetForImport(&st.SyncFields, tenant)
			if err := store.UpsertStudent(ctx, &st); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			studentIDs[exportedID] = st.LocalID
			stats.Imported++

		case collectionSchedules:
			var sc entity.Schedule
			if err := json.Unmarshal(l.Record, &sc); err != nil {
				return nil, fmt.Errorf("invalid schedule at line %d: %w", lineNum, err)
			}
			exportedID := sc.LocalID
			newStudent, ok := studentIDs[sc.StudentID]
			if !ok {
				stats.Skipped++
				continue
			}
			resetForImport(&sc.SyncFields, tenant)
			sc.StudentID = newStudent
			if err := store.UpsertSchedule(ctx, &sc); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			scheduleIDs[exportedID] = sc.LocalID
			stats.Imported++

		case collectionExceptions:
			var ex entity.ScheduleException
			if err := json.Unmarshal(l.Record, &ex); err != nil {
				return nil, fmt.Errorf("invalid exception at line %d: %w", lineNum, err)
			}
			newStudent, okS := studentIDs[ex.StudentID]
			newSchedule, okC := scheduleIDs[ex.ScheduleID]
			if !okS || !okC {
				stats.Skipped++
				continue
			}
			resetForImport(&ex.SyncFields, tenant)
			ex.StudentID = newStudent
			ex.ScheduleID = newSchedule
			if err := store.UpsertScheduleException(ctx, &ex); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			stats.Imported++

		case collectionResources:
			var res entity.Resource
			if err := json.Unmarshal(l.Record, &res); err != nil {
				return nil, fmt.Errorf("invalid resource at line %d: %w", lineNum, err)
			}
			resetForImport(&res.SyncFields, tenant)
			if err := store.UpsertResource(ctx, &res); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			stats.Imported++

		case collectionSharedResources:
			var sr entity.SharedResource
			if err := json.Unmarshal(l.Record, &sr); err != nil {
				return nil, fmt.Errorf("invalid shared resource at line %d: %w", lineNum, err)
			}
			newStudent, ok := studentIDs[sr.StudentID]
			if !ok {
				stats.Skipped++
				continue
			}
			resetForImport(&sr.SyncFields, tenant)
			sr.StudentID = newStudent
			if err := store.UpsertSharedResource(ctx, &sr); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			stats.Imported++

		default:
			return nil, fmt.Errorf("unknown collection %q at line %d", l.Collection, lineNum)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	return stats, nil
}

// resetForImport strips identity carried over from the exporting device and
// queues the record for upload under the importing tenant.
func resetForImport(f *entity.SyncFields, tenant string) {
	f.LocalID = 0
	f.CloudID = ""
	f.TenantID = tenant
	f.PendingDelete = false
	f.MarkModified()
}
