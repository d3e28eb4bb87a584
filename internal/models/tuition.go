package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/music-school-api/internal/accounting"
)

// ObligationStatus is the settlement state of a tuition obligation.
type ObligationStatus string

const (
	ObligationStatusPending   ObligationStatus = accounting.StatusPending
	ObligationStatusPaid      ObligationStatus = accounting.StatusPaid
	ObligationStatusCancelled ObligationStatus = accounting.StatusCancelled
)

// Valid reports whether the status is supported.
func (s ObligationStatus) Valid() bool {
	switch s {
	case ObligationStatusPending, ObligationStatusPaid, ObligationStatusCancelled:
		return true
	}
	return false
}

// TuitionObligation is an amount owed for an enrollment, settled by one or
// more partial payments.
type TuitionObligation struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	Amount       decimal.Decimal  `db:"amount" json:"amount"`
	Status       ObligationStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// PartialPayment is one payment applied to an obligation.
type PartialPayment struct {
	ID           string          `db:"id" json:"id"`
	ObligationID string          `db:"obligation_id" json:"obligation_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	PaidAt       time.Time       `db:"paid_at" json:"paid_at"`
	Note         *string         `db:"note" json:"note,omitempty"`
	RecordedBy   *string         `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// PaymentAmounts extracts the amounts of a payment history in order.
func PaymentAmounts(payments []PartialPayment) []decimal.Decimal {
	out := make([]decimal.Decimal, len(payments))
	for i, p := range payments {
		out[i] = p.Amount
	}
	return out
}

// ObligationDetail joins an obligation with its enrollment context and the
// payment sum at query time.
type ObligationDetail struct {
	TuitionObligation
	StudentID   string          `db:"student_id" json:"student_id"`
	StudentName string          `db:"student_name" json:"student_name"`
	ClassID     string          `db:"class_id" json:"class_id"`
	ClassCode   string          `db:"class_code" json:"class_code"`
	CourseName  string          `db:"course_name" json:"course_name"`
	PaidSoFar   decimal.Decimal `db:"paid_so_far" json:"paid_so_far"`
}

// ObligationFilter defines listing criteria for obligations.
type ObligationFilter struct {
	EnrollmentID string
	StudentID    string
	ClassID      string
	Status       ObligationStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CreateObligationRequest opens an obligation; Amount defaults to the course
// price when omitted.
type CreateObligationRequest struct {
	EnrollmentID string           `json:"enrollment_id" validate:"required"`
	Amount       *decimal.Decimal `json:"amount"`
	Notes        *string          `json:"notes"`
}

// PaymentRequest applies a partial payment.
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   *string         `json:"note"`
	PaidAt *time.Time      `json:"paid_at"`
}

// SettlementSummary is the settlement state of an obligation.
type SettlementSummary struct {
	ObligationID string `json:"obligation_id"`
	accounting.Settlement
}

// PaymentResult is returned after applying a payment.
type PaymentResult struct {
	Payment    PartialPayment    `json:"payment"`
	Settlement SettlementSummary `json:"settlement"`
}
