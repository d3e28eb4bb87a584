package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/music-school-api/internal/accounting"
)

// ClassOffering is a scheduled run of a course with a seat count.
type ClassOffering struct {
	ID          string    `db:"id" json:"id"`
	Seq         int64     `db:"seq" json:"seq"`
	CourseID    string    `db:"course_id" json:"course_id"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	RoomID      *string   `db:"room_id" json:"room_id,omitempty"`
	Seats       int       `db:"seats" json:"seats"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassCode renders the human code, e.g. "PIA-0007" for the seventh
// offering of "Piano I".
func ClassCode(courseName string, seq int64) string {
	prefix := []rune(strings.ToUpper(strings.TrimSpace(courseName)))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("%s-%04d", string(prefix), seq)
}

// ClassDetail joins an offering with its course, teacher and room and the
// current active enrollment count.
type ClassDetail struct {
	ClassOffering
	Code         string      `db:"code" json:"code"`
	CourseName   string      `db:"course_name" json:"course_name"`
	CourseLevel  CourseLevel `db:"course_level" json:"course_level"`
	Instrument   string      `db:"instrument" json:"instrument"`
	TeacherName  *string     `db:"teacher_name" json:"teacher_name,omitempty"`
	RoomName     *string     `db:"room_name" json:"room_name,omitempty"`
	RoomCapacity *int        `db:"room_capacity" json:"room_capacity,omitempty"`
	ActiveCount  int         `db:"active_count" json:"active_count"`
}

// ClassFilter defines filter criteria for listing class offerings.
type ClassFilter struct {
	CourseID  string
	TeacherID string
	RoomID    string
	Code      string
	ActiveOn  *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassRequest is the create/update payload for class offerings. Dates are
// YYYY-MM-DD and times HH:MM.
type ClassRequest struct {
	CourseID    string  `json:"course_id" validate:"required"`
	TeacherID   *string `json:"teacher_id"`
	RoomID      *string `json:"room_id"`
	Seats       int     `json:"seats" validate:"min=0"`
	StartDate   string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartTime   string  `json:"start_time" validate:"required,clock"`
	EndTime     string  `json:"end_time" validate:"required,clock"`
	Description string  `json:"description"`
}

// RoomUsage is capacity accounting for a room against one class offering.
type RoomUsage struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	accounting.Capacity
}

// ClassAvailability is the seat picture for a class offering.
type ClassAvailability struct {
	ClassID string              `json:"class_id"`
	Code    string              `json:"code"`
	Seats   accounting.Capacity `json:"seats"`
	Room    *RoomUsage          `json:"room,omitempty"`
}

// RoomClassUsage is room accounting for one offering scheduled in the room.
type RoomClassUsage struct {
	ClassID string `json:"class_id"`
	Code    string `json:"code"`
	accounting.Capacity
}

// RoomAvailability lists room accounting per class offering using the room.
type RoomAvailability struct {
	Room    RoomView         `json:"room"`
	Classes []RoomClassUsage `json:"classes"`
}

// ClassOccupancy is the raw projection used to build availability views.
type ClassOccupancy struct {
	ClassID      string  `db:"class_id"`
	Code         string  `db:"code"`
	Seats        int     `db:"seats"`
	RoomID       *string `db:"room_id"`
	RoomName     *string `db:"room_name"`
	RoomCapacity *int    `db:"room_capacity"`
	ActiveCount  int     `db:"active_count"`
}

// RosterEntry is one learner on a class roster.
type RosterEntry struct {
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	StudentName  string           `db:"student_name" json:"student_name"`
	Username     string           `db:"username" json:"username"`
	NationalID   *string          `db:"national_id" json:"national_id,omitempty"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt   time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Paid         bool             `db:"paid" json:"paid"`
}
