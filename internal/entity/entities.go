package entity

import "fmt"

// Exception types for ScheduleException.Type.
const (
	ExceptionCancelled   = "cancelled"
	ExceptionRescheduled = "rescheduled"
	ExceptionExtra       = "extra"
)

// Share channels for SharedResource.SharedVia.
const (
	SharedViaEmail    = "email"
	SharedViaWhatsapp = "whatsapp"
)

// Student is the parent record every other collection hangs off.
type Student struct {
	SyncFields

	Name            string
	Age             int
	Phone           string
	Subjects        string
	Course          string
	PricePerHour    float64
	PendingBalance  float64
	Notes           string
	Active          bool
	LastPaymentDate int64 // unix millis, 0 = never
}

// Validate checks the student's field values.
func (s *Student) Validate() error {
	if err := s.validateSync(); err != nil {
		return err
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Age < 0 {
		return fmt.Errorf("age cannot be negative (got %d)", s.Age)
	}
	if s.PricePerHour < 0 {
		return fmt.Errorf("price per hour cannot be negative")
	}
	return nil
}

// Schedule is a weekly recurring lesson slot for one student.
type Schedule struct {
	SyncFields

	StudentID   int64 // local id of the owning student
	DayOfWeek   int   // 1 = Monday .. 7 = Sunday
	StartTime   string
	EndTime     string
	Completed   bool
	CompletedAt int64 // unix millis, 0 = not completed
}

// Validate checks the schedule's field values.
func (s *Schedule) Validate() error {
	if err := s.validateSync(); err != nil {
		return err
	}
	if s.StudentID == 0 {
		return fmt.Errorf("student id is required")
	}
	if s.DayOfWeek < 1 || s.DayOfWeek > 7 {
		return fmt.Errorf("day of week must be 1-7 (got %d)", s.DayOfWeek)
	}
	if !validClockTime(s.StartTime) || !validClockTime(s.EndTime) {
		return fmt.Errorf("start/end time must be HH:MM (got %q, %q)", s.StartTime, s.EndTime)
	}
	return nil
}

// ScheduleException overrides one occurrence of a schedule: a cancelled
// lesson, a rescheduled one, or an extra lesson outside the weekly slot.
type ScheduleException struct {
	SyncFields

	StudentID    int64 // local id of the owning student
	ScheduleID   int64 // local id of the overridden schedule
	Date         int64 // unix millis of the affected occurrence
	Reason       string
	Type         string // cancelled, rescheduled, extra
	NewStartTime string // set when rescheduled
	NewEndTime   string
	NewDayOfWeek int // 0 = unchanged
}

// Validate checks the exception's field values.
func (e *ScheduleException) Validate() error {
	if err := e.validateSync(); err != nil {
		return err
	}
	if e.StudentID == 0 {
		return fmt.Errorf("student id is required")
	}
	if e.ScheduleID == 0 {
		return fmt.Errorf("schedule id is required")
	}
	if e.Date == 0 {
		return fmt.Errorf("date is required")
	}
	switch e.Type {
	case ExceptionCancelled, ExceptionRescheduled, ExceptionExtra:
	default:
		return fmt.Errorf("invalid exception type %q", e.Type)
	}
	if e.Type == ExceptionRescheduled {
		if !validClockTime(e.NewStartTime) || !validClockTime(e.NewEndTime) {
			return fmt.Errorf("rescheduled exception needs HH:MM new times")
		}
	}
	return nil
}

// Resource is a teaching material file owned by the tenant.
type Resource struct {
	SyncFields

	Name       string
	FilePath   string // path in local storage
	FileType   string // MIME type
	UploadedAt int64  // unix millis
}

// Validate checks the resource's field values.
func (r *Resource) Validate() error {
	if err := r.validateSync(); err != nil {
		return err
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// SharedResource records a file shared with one student.
type SharedResource struct {
	SyncFields

	StudentID     int64 // local id of the receiving student
	FileName      string
	FileType      string
	FileSizeBytes int64
	SharedVia     string // email, whatsapp
	SharedAt      int64  // unix millis
	Notes         string
}

// Validate checks the shared resource's field values.
func (r *SharedResource) Validate() error {
	if err := r.validateSync(); err != nil {
		return err
	}
	if r.StudentID == 0 {
		return fmt.Errorf("student id is required")
	}
	if r.FileName == "" {
		return fmt.Errorf("file name is required")
	}
	switch r.SharedVia {
	case SharedViaEmail, SharedViaWhatsapp:
	default:
		return fmt.Errorf("invalid share channel %q", r.SharedVia)
	}
	return nil
}

// validClockTime reports whether s looks like a 24h HH:MM value.
func validClockTime(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}
