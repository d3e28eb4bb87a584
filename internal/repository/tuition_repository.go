package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/music-school-api/internal/models"
)

const (
	obligationColumns = `id, enrollment_id, amount, status, notes, created_at, updated_at`
	paymentColumns    = `id, obligation_id, amount, paid_at, note, recorded_by, created_at`
)

var obligationDetailSelect = `SELECT o.id, o.enrollment_id, o.amount, o.status, o.notes, o.created_at, o.updated_at,
u.id AS student_id, COALESCE(` + fmt.Sprintf(fullNameExpr, "u") + `, u.username) AS student_name,
c.id AS class_id, ` + classCodeExpr + ` AS class_code, co.name AS course_name,
COALESCE((SELECT SUM(p.amount) FROM partial_payments p WHERE p.obligation_id = o.id), 0) AS paid_so_far
FROM tuition_obligations o
JOIN enrollments e ON e.id = o.enrollment_id
JOIN users u ON u.id = e.student_id
JOIN class_offerings c ON c.id = e.class_id
JOIN courses co ON co.id = c.course_id`

// StatusResolver derives the new obligation status once a payment is added
// to the history. Returning an error aborts the payment.
type StatusResolver func(obligation models.TuitionObligation, payments []models.PartialPayment) (models.ObligationStatus, error)

// TuitionRepository persists obligations and their partial payments.
type TuitionRepository struct {
	db *sqlx.DB
}

// NewTuitionRepository constructs a TuitionRepository.
func NewTuitionRepository(db *sqlx.DB) *TuitionRepository {
	return &TuitionRepository{db: db}
}

// CoursePriceForEnrollment returns the price of the course behind an
// enrollment.
func (r *TuitionRepository) CoursePriceForEnrollment(ctx context.Context, enrollmentID string) (decimal.Decimal, error) {
	const query = `SELECT co.price FROM enrollments e
JOIN class_offerings c ON c.id = e.class_id
JOIN courses co ON co.id = c.course_id
WHERE e.id = $1`
	var price decimal.Decimal
	if err := r.db.GetContext(ctx, &price, query, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("course price for enrollment: %w", err)
	}
	return price, nil
}

// CreateObligation inserts a new obligation.
func (r *TuitionRepository) CreateObligation(ctx context.Context, obligation *models.TuitionObligation) error {
	if obligation.ID == "" {
		obligation.ID = uuid.NewString()
	}
	if obligation.Status == "" {
		obligation.Status = models.ObligationStatusPending
	}
	now := time.Now().UTC()
	obligation.CreatedAt = now
	obligation.UpdatedAt = now
	const query = `INSERT INTO tuition_obligations (id, enrollment_id, amount, status, notes, created_at, updated_at)
VALUES (:id, :enrollment_id, :amount, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, obligation); err != nil {
		return fmt.Errorf("create obligation: %w", err)
	}
	return nil
}

// FindByID returns an obligation.
func (r *TuitionRepository) FindByID(ctx context.Context, id string) (*models.TuitionObligation, error) {
	var obligation models.TuitionObligation
	if err := r.db.GetContext(ctx, &obligation, `SELECT `+obligationColumns+` FROM tuition_obligations WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find obligation: %w", err)
	}
	return &obligation, nil
}

// FindDetail returns an obligation with its enrollment context.
func (r *TuitionRepository) FindDetail(ctx context.Context, id string) (*models.ObligationDetail, error) {
	var detail models.ObligationDetail
	if err := r.db.GetContext(ctx, &detail, obligationDetailSelect+" WHERE o.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find obligation detail: %w", err)
	}
	return &detail, nil
}

// List returns obligations matching the filter.
func (r *TuitionRepository) List(ctx context.Context, filter models.ObligationFilter) ([]models.ObligationDetail, int, error) {
	var where whereBuilder
	if filter.EnrollmentID != "" {
		where.add("o.enrollment_id = ?", filter.EnrollmentID)
	}
	if filter.StudentID != "" {
		where.add("e.student_id = ?", filter.StudentID)
	}
	if filter.ClassID != "" {
		where.add("e.class_id = ?", filter.ClassID)
	}
	if filter.Status != "" {
		where.add("o.status = ?", filter.Status)
	}
	conditions := " WHERE 1=1" + where.clause()

	allowedSorts := map[string]string{
		"created_at": "o.created_at",
		"amount":     "o.amount",
		"status":     "o.status",
	}
	limit, _, _ := pagination(filter.Page, filter.PageSize)

	var items []models.ObligationDetail
	query := obligationDetailSelect + conditions + ordering(filter.SortBy, filter.SortOrder, allowedSorts, "created_at") + limit
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list obligations: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM tuition_obligations o JOIN enrollments e ON e.id = o.enrollment_id` + conditions
	if err := r.db.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count obligations: %w", err)
	}
	return items, total, nil
}

// ListPayments returns the payment history of an obligation in the order it
// was applied.
func (r *TuitionRepository) ListPayments(ctx context.Context, obligationID string) ([]models.PartialPayment, error) {
	var payments []models.PartialPayment
	query := `SELECT ` + paymentColumns + ` FROM partial_payments WHERE obligation_id = $1 ORDER BY paid_at, created_at`
	if err := r.db.SelectContext(ctx, &payments, query, obligationID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// ApplyPayment appends a payment inside one transaction holding a row lock on
// the obligation. resolve sees the history including the new payment and
// decides the resulting status before anything is written. sql.ErrNoRows
// means the obligation does not exist.
func (r *TuitionRepository) ApplyPayment(ctx context.Context, payment *models.PartialPayment, resolve StatusResolver) (obligation *models.TuitionObligation, history []models.PartialPayment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin payment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked models.TuitionObligation
	if err = tx.GetContext(ctx, &locked, `SELECT `+obligationColumns+` FROM tuition_obligations WHERE id = $1 FOR UPDATE`, payment.ObligationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock obligation: %w", err)
	}

	if err = tx.SelectContext(ctx, &history, `SELECT `+paymentColumns+` FROM partial_payments WHERE obligation_id = $1 ORDER BY paid_at, created_at`, locked.ID); err != nil {
		return nil, nil, fmt.Errorf("load payments: %w", err)
	}

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}
	payment.CreatedAt = now
	history = append(history, *payment)

	status, err := resolve(locked, history)
	if err != nil {
		return nil, nil, err
	}

	const insertQuery = `INSERT INTO partial_payments (id, obligation_id, amount, paid_at, note, recorded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err = tx.ExecContext(ctx, insertQuery, payment.ID, payment.ObligationID, payment.Amount, payment.PaidAt, payment.Note, payment.RecordedBy, payment.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("insert payment: %w", err)
	}

	if status != locked.Status {
		if _, err = tx.ExecContext(ctx, `UPDATE tuition_obligations SET status = $2, updated_at = $3 WHERE id = $1`, locked.ID, status, now); err != nil {
			return nil, nil, fmt.Errorf("update obligation status: %w", err)
		}
		locked.Status = status
		locked.UpdatedAt = now
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit payment: %w", err)
	}
	return &locked, history, nil
}

// Cancel marks a pending obligation cancelled. It returns sql.ErrNoRows when
// the obligation does not exist and ErrNotPending when it was settled or
// cancelled before the update ran.
func (r *TuitionRepository) Cancel(ctx context.Context, id string) error {
	const query = `UPDATE tuition_obligations SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.ObligationStatusCancelled, time.Now().UTC(), models.ObligationStatusPending)
	if err != nil {
		return fmt.Errorf("cancel obligation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel obligation: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var status models.ObligationStatus
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM tuition_obligations WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("reload obligation: %w", err)
	}
	return ErrNotPending
}
