package accounting

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Obligation statuses.
const (
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusCancelled = "CANCELLED"
)

var (
	// ErrNonPositiveAmount is returned for payments of zero or less.
	ErrNonPositiveAmount = errors.New("payment amount must be greater than zero")
	// ErrOverpayment is returned when a payment exceeds the outstanding balance
	// and overpayment is disabled.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")
)

// Settlement is the derived state of an obligation given its payment history.
type Settlement struct {
	Total       decimal.Decimal `json:"total"`
	PaidSoFar   decimal.Decimal `json:"paid_so_far"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
	Status      string          `json:"status"`
	Payments    int             `json:"payments"`
}

// Settle derives outstanding balance and status from the amount owed and the
// payments applied so far. The obligation is paid exactly when the raw
// balance reaches zero or below; any surplus is reported as credit.
func Settle(total decimal.Decimal, payments []decimal.Decimal) Settlement {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p)
	}
	balance := total.Sub(paid)

	s := Settlement{
		Total:       total,
		PaidSoFar:   paid,
		Balance:     balance,
		Outstanding: decimal.Max(balance, decimal.Zero),
		Credit:      decimal.Max(balance.Neg(), decimal.Zero),
		Status:      StatusPending,
		Payments:    len(payments),
	}
	if !balance.IsPositive() {
		s.Status = StatusPaid
	}
	return s
}

// SettleWithStatus is Settle for a stored obligation: a cancelled obligation
// keeps its status whatever its payments add up to.
func SettleWithStatus(current string, total decimal.Decimal, payments []decimal.Decimal) Settlement {
	s := Settle(total, payments)
	if current == StatusCancelled {
		s.Status = StatusCancelled
	}
	return s
}

// ValidatePaymentAmount rejects zero and negative payments.
func ValidatePaymentAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// CheckOverpayment rejects a payment larger than what is still owed.
func CheckOverpayment(total decimal.Decimal, payments []decimal.Decimal, amount decimal.Decimal) error {
	if amount.GreaterThan(Settle(total, payments).Outstanding) {
		return ErrOverpayment
	}
	return nil
}
