package entity

// Remote document mapping.
//
// Each entity serializes to a flat map for upload and deserializes from the
// maps returned by the remote store. Values coming back over JSON arrive as
// float64/bool/string, so the readers coerce defensively instead of type
// asserting.

// Document field names shared across collections.
const (
	FieldName         = "name"
	FieldLocalID      = "local_id"
	FieldLastModified = "last_modified"
)

// DocData builds the remote representation of the student.
func (s *Student) DocData() map[string]any {
	return map[string]any{
		FieldName:           s.Name,
		"age":               s.Age,
		"phone":             s.Phone,
		"subjects":          s.Subjects,
		"course":            s.Course,
		"price_per_hour":    s.PricePerHour,
		"pending_balance":   s.PendingBalance,
		"notes":             s.Notes,
		"active":            s.Active,
		"last_payment_date": s.LastPaymentDate,
		FieldLastModified:   s.LastModified,
	}
}

// StudentFromDoc rebuilds a student from remote document data. The caller
// fills in LocalID, CloudID and SyncStatus.
func StudentFromDoc(tenant string, data map[string]any) *Student {
	return &Student{
		SyncFields: SyncFields{
			TenantID:     tenant,
			LastModified: docInt64(data, FieldLastModified),
		},
		Name:            docString(data, FieldName),
		Age:             int(docInt64(data, "age")),
		Phone:           docString(data, "phone"),
		Subjects:        docString(data, "subjects"),
		Course:          docString(data, "course"),
		PricePerHour:    docFloat(data, "price_per_hour"),
		PendingBalance:  docFloat(data, "pending_balance"),
		Notes:           docString(data, "notes"),
		Active:          docBool(data, "active"),
		LastPaymentDate: docInt64(data, "last_payment_date"),
	}
}

// DocData builds the remote representation of the schedule. The student
// linkage travels as the parent path segment, not as document data.
func (s *Schedule) DocData() map[string]any {
	return map[string]any{
		FieldLocalID:     s.LocalID,
		"day_of_week":    s.DayOfWeek,
		"start_time":     s.StartTime,
		"end_time":       s.EndTime,
		"completed":      s.Completed,
		"completed_at":   s.CompletedAt,
		FieldLastModified: s.LastModified,
	}
}

// ScheduleFromDoc rebuilds a schedule from remote document data.
func ScheduleFromDoc(tenant string, studentID int64, data map[string]any) *Schedule {
	return &Schedule{
		SyncFields: SyncFields{
			TenantID:     tenant,
			LastModified: docInt64(data, FieldLastModified),
		},
		StudentID:   studentID,
		DayOfWeek:   int(docInt64(data, "day_of_week")),
		StartTime:   docString(data, "start_time"),
		EndTime:     docString(data, "end_time"),
		Completed:   docBool(data, "completed"),
		CompletedAt: docInt64(data, "completed_at"),
	}
}

// DocData builds the remote representation of the exception.
func (e *ScheduleException) DocData() map[string]any {
	return map[string]any{
		FieldLocalID:      e.LocalID,
		"date":            e.Date,
		"reason":          e.Reason,
		"type":            e.Type,
		"new_start_time":  e.NewStartTime,
		"new_end_time":    e.NewEndTime,
		"new_day_of_week": e.NewDayOfWeek,
		FieldLastModified: e.LastModified,
	}
}

// ScheduleExceptionFromDoc rebuilds an exception from remote document data.
func ScheduleExceptionFromDoc(tenant string, studentID, scheduleID int64, data map[string]any) *ScheduleException {
	return &ScheduleException{
		SyncFields: SyncFields{
			TenantID:     tenant,
			LastModified: docInt64(data, FieldLastModified),
		},
		StudentID:    studentID,
		ScheduleID:   scheduleID,
		Date:         docInt64(data, "date"),
		Reason:       docString(data, "reason"),
		Type:         docString(data, "type"),
		NewStartTime: docString(data, "new_start_time"),
		NewEndTime:   docString(data, "new_end_time"),
		NewDayOfWeek: int(docInt64(data, "new_day_of_week")),
	}
}

// DocData builds the remote representation of the resource.
func (r *Resource) DocData() map[string]any {
	return map[string]any{
		FieldName:         r.Name,
		"file_path":       r.FilePath,
		"file_type":       r.FileType,
		"uploaded_at":     r.UploadedAt,
		FieldLastModified: r.LastModified,
	}
}

// ResourceFromDoc rebuilds a resource from remote document data.
func ResourceFromDoc(tenant string, data map[string]any) *Resource {
	return &Resource{
		SyncFields: SyncFields{
			TenantID:     tenant,
			LastModified: docInt64(data, FieldLastModified),
		},
		Name:       docString(data, FieldName),
		FilePath:   docString(data, "file_path"),
		FileType:   docString(data, "file_type"),
		UploadedAt: docInt64(data, "uploaded_at"),
	}
}

// DocData builds the remote representation of the shared resource.
func (r *SharedResource) DocData() map[string]any {
	return map[string]any{
		FieldLocalID:      r.LocalID,
		"file_name":       r.FileName,
		"file_type":       r.FileType,
		"file_size_bytes": r.FileSizeBytes,
		"shared_via":      r.SharedVia,
		"shared_at":       r.SharedAt,
		"notes":           r.Notes,
		FieldLastModified: r.LastModified,
	}
}

// SharedResourceFromDoc rebuilds a shared resource from remote document data.
func SharedResourceFromDoc(tenant string, studentID int64, data map[string]any) *SharedResource {
	return &SharedResource{
		SyncFields: SyncFields{
			TenantID:     tenant,
			LastModified: docInt64(data, FieldLastModified),
		},
		StudentID:     studentID,
		FileName:      docString(data, "file_name"),
		FileType:      docString(data, "file_type"),
		FileSizeBytes: docInt64(data, "file_size_bytes"),
		SharedVia:     docString(data, "shared_via"),
		SharedAt:      docInt64(data, "shared_at"),
		Notes:         docString(data, "notes"),
	}
}

func docString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func docInt64(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func docFloat(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func docBool(data map[string]any, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}
