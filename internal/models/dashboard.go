package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/music-school-api/internal/accounting"
)

// AdminDashboard holds the school-wide counters. It is cached, so it carries
// no seat availability.
type AdminDashboard struct {
	Students          int             `db:"students" json:"students"`
	Teachers          int             `db:"teachers" json:"teachers"`
	Courses           int             `db:"courses" json:"courses"`
	Rooms             int             `db:"rooms" json:"rooms"`
	Classes           int             `db:"classes" json:"classes"`
	ActiveEnrollments int             `db:"active_enrollments" json:"active_enrollments"`
	PendingTuition    int             `db:"pending_obligations" json:"pending_obligations"`
	OutstandingTotal  decimal.Decimal `db:"outstanding_total" json:"outstanding_total"`
	GeneratedAt       time.Time       `db:"-" json:"generated_at"`
}

// TeacherClassView is one class taught by the teacher with its roster.
type TeacherClassView struct {
	Class        ClassDetail         `json:"class"`
	Availability accounting.Capacity `json:"availability"`
	Roster       []RosterEntry       `json:"roster"`
}

// TeacherDashboard lists the classes of a teacher.
type TeacherDashboard struct {
	Classes []TeacherClassView `json:"classes"`
}

// StudentDashboard lists the enrollments of a student.
type StudentDashboard struct {
	Enrollments []EnrollmentDetail `json:"enrollments"`
}
