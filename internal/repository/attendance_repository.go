package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/music-school-api/internal/models"
)

const attendanceUpsertQuery = `INSERT INTO attendance_records (id, enrollment_id, class_id, date, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (enrollment_id, date)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at
RETURNING id, enrollment_id, class_id, date, status, notes, created_at, updated_at`

var attendanceDetailSelect = `SELECT a.id, a.enrollment_id, a.class_id, a.date, a.status, a.notes, a.created_at, a.updated_at,
u.id AS student_id, COALESCE(` + fmt.Sprintf(fullNameExpr, "u") + `, u.username) AS student_name,
` + classCodeExpr + ` AS class_code, co.name AS course_name
FROM attendance_records a
JOIN enrollments e ON e.id = a.enrollment_id
JOIN users u ON u.id = e.student_id
JOIN class_offerings c ON c.id = a.class_id
JOIN courses co ON co.id = c.course_id`

type rowQuerier interface {
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

// AttendanceRepository persists attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert writes the mark for (enrollment, date) in a single statement; an
// existing mark is overwritten.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	return upsertAttendance(ctx, r.db, record)
}

// UpsertMany writes several marks in one transaction.
func (r *AttendanceRepository) UpsertMany(ctx context.Context, records []models.AttendanceRecord) (stored []models.AttendanceRecord, err error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk attendance: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stored = make([]models.AttendanceRecord, 0, len(records))
	for i := range records {
		var saved *models.AttendanceRecord
		saved, err = upsertAttendance(ctx, tx, &records[i])
		if err != nil {
			return nil, err
		}
		stored = append(stored, *saved)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk attendance: %w", err)
	}
	return stored, nil
}

func upsertAttendance(ctx context.Context, q rowQuerier, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	var stored models.AttendanceRecord
	if err := q.QueryRowxContext(ctx, attendanceUpsertQuery, record.ID, record.EnrollmentID, record.ClassID, record.Date,
		record.Status, record.Notes, record.CreatedAt, record.UpdatedAt).StructScan(&stored); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// List returns attendance records with student and class details.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	var where whereBuilder
	if filter.ClassID != "" {
		where.add("a.class_id = ?", filter.ClassID)
	}
	if filter.StudentID != "" {
		where.add("e.student_id = ?", filter.StudentID)
	}
	if filter.EnrollmentID != "" {
		where.add("a.enrollment_id = ?", filter.EnrollmentID)
	}
	if filter.TeacherID != "" {
		where.add("c.teacher_id = ?", filter.TeacherID)
	}
	if filter.Status != "" {
		where.add("a.status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		where.add("a.date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add("a.date <= ?", *filter.DateTo)
	}
	conditions := " WHERE 1=1" + where.clause()

	allowedSorts := map[string]string{
		"date":         "a.date",
		"student_name": "u.last_name",
		"status":       "a.status",
	}
	limit, _, _ := pagination(filter.Page, filter.PageSize)

	var items []models.AttendanceDetail
	query := attendanceDetailSelect + conditions + ordering(filter.SortBy, filter.SortOrder, allowedSorts, "date") + limit
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM attendance_records a
JOIN enrollments e ON e.id = a.enrollment_id
JOIN class_offerings c ON c.id = a.class_id` + conditions
	if err := r.db.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return items, total, nil
}
