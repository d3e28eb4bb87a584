package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/pkg/database"
)

var enrollmentDetailSelect = `SELECT e.id, e.student_id, e.class_id, e.enrolled_at, e.status, e.notes, e.created_at, e.updated_at,
COALESCE(` + fmt.Sprintf(fullNameExpr, "u") + `, u.username) AS student_name, u.username AS student_username,
` + classCodeExpr + ` AS class_code, co.id AS course_id, co.name AS course_name,
c.teacher_id, ` + fmt.Sprintf(fullNameExpr, "t") + ` AS teacher_name, r.name AS room_name
FROM enrollments e
JOIN users u ON u.id = e.student_id
JOIN class_offerings c ON c.id = e.class_id
JOIN courses co ON co.id = c.course_id
LEFT JOIN users t ON t.id = c.teacher_id
LEFT JOIN rooms r ON r.id = c.room_id`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var where whereBuilder
	if filter.StudentID != "" {
		where.add("e.student_id = ?", filter.StudentID)
	}
	if filter.ClassID != "" {
		where.add("e.class_id = ?", filter.ClassID)
	}
	if filter.TeacherID != "" {
		where.add("c.teacher_id = ?", filter.TeacherID)
	}
	if filter.Status != "" {
		where.add("e.status = ?", filter.Status)
	}
	if filter.Search != "" {
		where.add("(LOWER(u.username) LIKE ? OR LOWER(u.first_name || ' ' || u.last_name) LIKE ? OR COALESCE(u.national_id, '') LIKE ?)", likePattern(filter.Search))
	}
	conditions := " WHERE 1=1" + where.clause()

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "u.last_name",
		"course":       "co.name",
		"status":       "e.status",
	}
	limit, _, _ := pagination(filter.Page, filter.PageSize)

	var items []models.EnrollmentDetail
	query := enrollmentDetailSelect + conditions + ordering(filter.SortBy, filter.SortOrder, allowedSorts, "enrolled_at") + limit
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM enrollments e
JOIN users u ON u.id = e.student_id
JOIN class_offerings c ON c.id = e.class_id` + conditions
	if err := r.db.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return items, total, nil
}

// FindByID returns an enrollment with details.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	var item models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &item, enrollmentDetailSelect+" WHERE e.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &item, nil
}

// Enroll inserts the enrollment while holding a lock on the class row, so
// concurrent enrollments into the same class serialise. It returns the class
// seat count and the active enrollment count after the insert.
// sql.ErrNoRows means the class does not exist; ErrDuplicate means the
// student is already enrolled.
func (r *EnrollmentRepository) Enroll(ctx context.Context, enrollment *models.Enrollment) (seats int, active int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin enrollment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.GetContext(ctx, &seats, `SELECT seats FROM class_offerings WHERE id = $1 FOR UPDATE`, enrollment.ClassID); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("lock class: %w", err)
	}

	var exists bool
	const dupQuery = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2)`
	if err = tx.GetContext(ctx, &exists, dupQuery, enrollment.StudentID, enrollment.ClassID); err != nil {
		return 0, 0, fmt.Errorf("check duplicate enrollment: %w", err)
	}
	if exists {
		err = ErrDuplicate
		return 0, 0, err
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now.Truncate(24 * time.Hour)
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const insertQuery = `INSERT INTO enrollments (id, student_id, class_id, enrolled_at, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err = tx.ExecContext(ctx, insertQuery, enrollment.ID, enrollment.StudentID, enrollment.ClassID, enrollment.EnrolledAt,
		enrollment.Status, enrollment.Notes, enrollment.CreatedAt, enrollment.UpdatedAt); err != nil {
		if database.IsUniqueViolation(err) {
			err = ErrDuplicate
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("insert enrollment: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = 'ACTIVE'`
	if err = tx.GetContext(ctx, &active, countQuery, enrollment.ClassID); err != nil {
		return 0, 0, fmt.Errorf("count active enrollments: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit enrollment: %w", err)
	}
	return seats, active, nil
}

// UpdateStatus changes the lifecycle status and notes of an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, notes *string) error {
	const query = `UPDATE enrollments SET status = $2, notes = COALESCE($3, notes), updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, notes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an enrollment unless payments were recorded against any of
// its obligations, in which case ErrHasPayments is returned. Obligations are
// locked first so a concurrent payment cannot slip in between the check and
// the delete.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var found string
	if err = tx.GetContext(ctx, &found, `SELECT id FROM enrollments WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock enrollment: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `SELECT id FROM tuition_obligations WHERE enrollment_id = $1 FOR UPDATE`, id); err != nil {
		return fmt.Errorf("lock obligations: %w", err)
	}

	var hasPayments bool
	const paymentsQuery = `SELECT EXISTS (SELECT 1 FROM partial_payments p JOIN tuition_obligations o ON o.id = p.obligation_id WHERE o.enrollment_id = $1)`
	if err = tx.GetContext(ctx, &hasPayments, paymentsQuery, id); err != nil {
		return fmt.Errorf("check enrollment payments: %w", err)
	}
	if hasPayments {
		err = ErrHasPayments
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment delete: %w", err)
	}
	return nil
}

// StudentEnrollmentsInClass maps student ids to their enrollment id in the
// class, considering only the given students.
func (r *EnrollmentRepository) StudentEnrollmentsInClass(ctx context.Context, classID string, studentIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT student_id, id FROM enrollments WHERE class_id = ? AND student_id IN (?)`, classID, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("build enrollment lookup: %w", err)
	}
	var rows []struct {
		StudentID string `db:"student_id"`
		ID        string `db:"id"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("lookup class enrollments: %w", err)
	}
	for _, row := range rows {
		result[row.StudentID] = row.ID
	}
	return result, nil
}
