package models

import (
	"time"

	"github.com/noah-isme/music-school-api/internal/accounting"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusFinished  EnrollmentStatus = "FINISHED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Valid reports whether the status is supported.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusFinished, EnrollmentStatusCancelled:
		return true
	}
	return false
}

// Enrollment registers a student in a class offering.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Notes      *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName     string  `db:"student_name" json:"student_name"`
	StudentUsername string  `db:"student_username" json:"student_username"`
	ClassCode       string  `db:"class_code" json:"class_code"`
	CourseID        string  `db:"course_id" json:"course_id"`
	CourseName      string  `db:"course_name" json:"course_name"`
	TeacherID       *string `db:"teacher_id" json:"teacher_id,omitempty"`
	TeacherName     *string `db:"teacher_name" json:"teacher_name,omitempty"`
	RoomName        *string `db:"room_name" json:"room_name,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	TeacherID string
	Status    EnrollmentStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// EnrollRequest is the payload for registering a student in a class.
type EnrollRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	ClassID   string  `json:"class_id" validate:"required"`
	Notes     *string `json:"notes"`
}

// UpdateEnrollmentStatusRequest moves an enrollment through its lifecycle.
type UpdateEnrollmentStatusRequest struct {
	Status EnrollmentStatus `json:"status" validate:"required,enrollment_status"`
	Notes  *string          `json:"notes"`
}

// EnrollmentResult pairs a new enrollment with the class seat picture right
// after the insert. OverEnrolled is set when the class is now past capacity.
type EnrollmentResult struct {
	Enrollment   Enrollment          `json:"enrollment"`
	Availability accounting.Capacity `json:"availability"`
}
