package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportFormat is the download format of a rendered report.
type ReportFormat string

const (
	ReportFormatPDF ReportFormat = "pdf"
	ReportFormatCSV ReportFormat = "csv"
)

// ReportFilter narrows the payment and attendance projections.
type ReportFilter struct {
	DateFrom  *time.Time
	DateTo    *time.Time
	ClassID   string
	CourseID  string
	TeacherID string
	Status    string
	Search    string
	Limit     int
}

// PaymentReportRow is one obligation in the payments projection.
type PaymentReportRow struct {
	ObligationID  string           `db:"obligation_id" json:"obligation_id"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	StudentName   string           `db:"student_name" json:"student_name"`
	Username      string           `db:"username" json:"username"`
	NationalID    *string          `db:"national_id" json:"national_id,omitempty"`
	CourseName    string           `db:"course_name" json:"course_name"`
	ClassCode     string           `db:"class_code" json:"class_code"`
	TeacherName   *string          `db:"teacher_name" json:"teacher_name,omitempty"`
	Amount        decimal.Decimal  `db:"amount" json:"amount"`
	PaidSoFar     decimal.Decimal  `db:"paid_so_far" json:"paid_so_far"`
	Outstanding   decimal.Decimal  `db:"-" json:"outstanding"`
	Status        ObligationStatus `db:"status" json:"status"`
	LastPaymentAt *time.Time       `db:"last_payment_at" json:"last_payment_at,omitempty"`
}

// StatusTotal aggregates obligations sharing a status.
type StatusTotal struct {
	Status      ObligationStatus `db:"status" json:"status"`
	Count       int              `db:"count" json:"count"`
	Amount      decimal.Decimal  `db:"amount" json:"amount"`
	Collected   decimal.Decimal  `db:"collected" json:"collected"`
	Outstanding decimal.Decimal  `db:"outstanding" json:"outstanding"`
}

// PaymentReport is the payments projection plus its aggregates.
type PaymentReport struct {
	Rows        []PaymentReportRow `json:"rows"`
	ByStatus    []StatusTotal      `json:"by_status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Collected   decimal.Decimal    `json:"collected"`
	Outstanding decimal.Decimal    `json:"outstanding"`
	Count       int                `json:"count"`
}

// AttendanceReportRow is one attendance record in the projection.
type AttendanceReportRow struct {
	StudentID   string           `db:"student_id" json:"student_id"`
	StudentName string           `db:"student_name" json:"student_name"`
	Username    string           `db:"username" json:"username"`
	CourseName  string           `db:"course_name" json:"course_name"`
	ClassCode   string           `db:"class_code" json:"class_code"`
	RoomName    *string          `db:"room_name" json:"room_name,omitempty"`
	Date        time.Time        `db:"date" json:"date"`
	Status      AttendanceStatus `db:"status" json:"status"`
	Notes       *string          `db:"notes" json:"notes,omitempty"`
}

// AttendanceGridRow is one learner across the report dates.
type AttendanceGridRow struct {
	StudentID   string                      `json:"student_id"`
	StudentName string                      `json:"student_name"`
	CourseName  string                      `json:"course_name"`
	ClassCode   string                      `json:"class_code"`
	RoomName    *string                     `json:"room_name,omitempty"`
	ByDate      map[string]AttendanceStatus `json:"by_date"`
}

// AttendanceTotals counts marks per status with percentages rounded to one
// decimal place. AbsentPercent includes late arrivals.
type AttendanceTotals struct {
	Total          int     `db:"total" json:"total"`
	Present        int     `db:"present" json:"present"`
	Late           int     `db:"late" json:"late"`
	Absent         int     `db:"absent" json:"absent"`
	Excused        int     `db:"excused" json:"excused"`
	PresentPercent float64 `db:"-" json:"present_percent"`
	AbsentPercent  float64 `db:"-" json:"absent_percent"`
	Students       int     `db:"students" json:"students"`
	Days           int     `db:"days" json:"days"`
}

// AttendanceReport is the attendance projection plus grid and totals.
// Totals cover every matching mark; Truncated reports that Rows and Grid
// stop at the row limit.
type AttendanceReport struct {
	Dates     []string              `json:"dates"`
	Grid      []AttendanceGridRow   `json:"grid"`
	Rows      []AttendanceReportRow `json:"rows"`
	Totals    AttendanceTotals      `json:"totals"`
	Truncated bool                  `json:"truncated"`
}
