package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusAbsent, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the attendance of one enrollment on one date.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	ClassID      string           `db:"class_id" json:"class_id"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceDetail extends the record with student and class metadata.
type AttendanceDetail struct {
	AttendanceRecord
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	ClassCode   string `db:"class_code" json:"class_code"`
	CourseName  string `db:"course_name" json:"course_name"`
}

// AttendanceFilter defines query filters.
type AttendanceFilter struct {
	ClassID      string
	StudentID    string
	EnrollmentID string
	TeacherID    string
	Status       AttendanceStatus
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// MarkAttendanceRequest records attendance for one enrollment.
type MarkAttendanceRequest struct {
	EnrollmentID string           `json:"enrollment_id" validate:"required"`
	Date         string           `json:"date" validate:"required,datetime=2006-01-02"`
	Status       AttendanceStatus `json:"status" validate:"required,attendance_status"`
	Notes        *string          `json:"notes"`
}

// BulkAttendanceItem is one learner's mark within a class sheet.
type BulkAttendanceItem struct {
	StudentID string           `json:"student_id" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required,attendance_status"`
	Notes     *string          `json:"notes"`
}

// BulkAttendanceRequest marks a whole class for a date.
type BulkAttendanceRequest struct {
	Date  string               `json:"date" validate:"required,datetime=2006-01-02"`
	Items []BulkAttendanceItem `json:"items" validate:"required,min=1,dive"`
}

// BulkAttendanceResult reports saved records and students skipped because
// they are not enrolled in the class.
type BulkAttendanceResult struct {
	Marked  []AttendanceRecord `json:"marked"`
	Skipped []string           `json:"skipped"`
}
