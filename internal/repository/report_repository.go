package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/music-school-api/internal/models"
)

const paymentProjectionFrom = `FROM tuition_obligations o
JOIN enrollments e ON e.id = o.enrollment_id
JOIN users u ON u.id = e.student_id
JOIN class_offerings c ON c.id = e.class_id
JOIN courses co ON co.id = c.course_id
LEFT JOIN users t ON t.id = c.teacher_id
LEFT JOIN (SELECT obligation_id, SUM(amount) AS paid, MAX(paid_at) AS last_paid FROM partial_payments GROUP BY obligation_id) p ON p.obligation_id = o.id`

const attendanceProjectionFrom = `FROM attendance_records a
JOIN enrollments e ON e.id = a.enrollment_id
JOIN users u ON u.id = e.student_id
JOIN class_offerings c ON c.id = a.class_id
JOIN courses co ON co.id = c.course_id
LEFT JOIN rooms r ON r.id = c.room_id`

// ReportRepository runs the read-only reporting projections.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func reportConditions(filter models.ReportFilter, dateColumn, statusColumn string) whereBuilder {
	var where whereBuilder
	if filter.DateFrom != nil {
		where.add(dateColumn+" >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add(dateColumn+" <= ?", *filter.DateTo)
	}
	if filter.ClassID != "" {
		where.add("c.id = ?", filter.ClassID)
	}
	if filter.CourseID != "" {
		where.add("co.id = ?", filter.CourseID)
	}
	if filter.TeacherID != "" {
		where.add("c.teacher_id = ?", filter.TeacherID)
	}
	if filter.Status != "" {
		where.add(statusColumn+" = ?", filter.Status)
	}
	if filter.Search != "" {
		where.add("(LOWER(u.username) LIKE ? OR LOWER(u.first_name || ' ' || u.last_name) LIKE ? OR COALESCE(u.national_id, '') LIKE ?)", likePattern(filter.Search))
	}
	return where
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// PaymentRows returns obligations with their paid amount, oldest first.
func (r *ReportRepository) PaymentRows(ctx context.Context, filter models.ReportFilter) ([]models.PaymentReportRow, error) {
	where := reportConditions(filter, "o.created_at::date", "o.status")
	query := `SELECT o.id AS obligation_id, o.created_at, COALESCE(` + fmt.Sprintf(fullNameExpr, "u") + `, u.username) AS student_name,
u.username, u.national_id, co.name AS course_name, ` + classCodeExpr + ` AS class_code, ` + fmt.Sprintf(fullNameExpr, "t") + ` AS teacher_name,
o.amount, COALESCE(p.paid, 0) AS paid_so_far, o.status, p.last_paid AS last_payment_at
` + paymentProjectionFrom + `
WHERE 1=1` + where.clause() + `
ORDER BY o.created_at, u.last_name, u.first_name` + limitClause(filter.Limit)

	var rows []models.PaymentReportRow
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("payment report rows: %w", err)
	}
	return rows, nil
}

// PaymentTotals aggregates the payment projection per obligation status.
// Cancelled obligations never count as outstanding.
func (r *ReportRepository) PaymentTotals(ctx context.Context, filter models.ReportFilter) ([]models.StatusTotal, error) {
	where := reportConditions(filter, "o.created_at::date", "o.status")
	query := `SELECT o.status, COUNT(*) AS count, COALESCE(SUM(o.amount), 0) AS amount, COALESCE(SUM(p.paid), 0) AS collected,
COALESCE(SUM(CASE WHEN o.status <> 'CANCELLED' THEN GREATEST(o.amount - COALESCE(p.paid, 0), 0) ELSE 0 END), 0) AS outstanding
` + paymentProjectionFrom + `
WHERE 1=1` + where.clause() + `
GROUP BY o.status ORDER BY o.status`

	var totals []models.StatusTotal
	if err := r.db.SelectContext(ctx, &totals, query, where.args...); err != nil {
		return nil, fmt.Errorf("payment report totals: %w", err)
	}
	return totals, nil
}

// AttendanceRows returns attendance marks ordered by date then learner.
func (r *ReportRepository) AttendanceRows(ctx context.Context, filter models.ReportFilter) ([]models.AttendanceReportRow, error) {
	where := reportConditions(filter, "a.date", "a.status")
	query := `SELECT u.id AS student_id, COALESCE(` + fmt.Sprintf(fullNameExpr, "u") + `, u.username) AS student_name, u.username,
co.name AS course_name, ` + classCodeExpr + ` AS class_code, r.name AS room_name, a.date, a.status, a.notes
` + attendanceProjectionFrom + `
WHERE 1=1` + where.clause() + `
ORDER BY a.date, u.first_name, u.last_name` + limitClause(filter.Limit)

	var rows []models.AttendanceReportRow
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("attendance report rows: %w", err)
	}
	return rows, nil
}

// AttendanceTotals counts every mark matching the filter per status, along
// with distinct learners and dates. It ignores the row limit.
func (r *ReportRepository) AttendanceTotals(ctx context.Context, filter models.ReportFilter) (models.AttendanceTotals, error) {
	where := reportConditions(filter, "a.date", "a.status")
	query := `SELECT COUNT(*) AS total,
COUNT(*) FILTER (WHERE a.status = 'PRESENT') AS present,
COUNT(*) FILTER (WHERE a.status = 'LATE') AS late,
COUNT(*) FILTER (WHERE a.status = 'ABSENT') AS absent,
COUNT(*) FILTER (WHERE a.status = 'EXCUSED') AS excused,
COUNT(DISTINCT u.id) AS students, COUNT(DISTINCT a.date) AS days
` + attendanceProjectionFrom + `
WHERE 1=1` + where.clause()

	var totals models.AttendanceTotals
	if err := r.db.GetContext(ctx, &totals, query, where.args...); err != nil {
		return models.AttendanceTotals{}, fmt.Errorf("attendance report totals: %w", err)
	}
	return totals, nil
}
