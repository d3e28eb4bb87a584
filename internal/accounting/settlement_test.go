package accounting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decs(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = dec(v)
	}
	return out
}

func TestSettle(t *testing.T) {
	cases := []struct {
		name        string
		total       string
		payments    []decimal.Decimal
		outstanding string
		credit      string
		status      string
	}{
		{"no payments", "50", nil, "50", "0", StatusPending},
		{"partial", "50", decs("30"), "20", "0", StatusPending},
		{"settled in two", "50", decs("30", "20"), "0", "0", StatusPaid},
		{"overpaid", "20", decs("10", "15"), "0", "5", StatusPaid},
		{"zero amount owed", "0", nil, "0", "0", StatusPaid},
		{"cents", "100.10", decs("50.05", "50.05"), "0", "0", StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Settle(dec(tc.total), tc.payments)
			assert.True(t, dec(tc.outstanding).Equal(s.Outstanding), "outstanding %s", s.Outstanding)
			assert.True(t, dec(tc.credit).Equal(s.Credit), "credit %s", s.Credit)
			assert.Equal(t, tc.status, s.Status)
			assert.Equal(t, len(tc.payments), s.Payments)
		})
	}
}

func TestSettleBalanceKeepsSign(t *testing.T) {
	s := Settle(dec("20"), decs("10", "15"))
	assert.True(t, dec("-5").Equal(s.Balance))
	assert.True(t, dec("25").Equal(s.PaidSoFar))
}

func TestSettleWithStatusKeepsCancelled(t *testing.T) {
	s := SettleWithStatus(StatusCancelled, dec("50"), decs("50"))
	assert.Equal(t, StatusCancelled, s.Status)
	assert.True(t, s.Outstanding.IsZero())

	s = SettleWithStatus(StatusPaid, dec("50"), decs("20"))
	assert.Equal(t, StatusPending, s.Status)
}

func TestValidatePaymentAmount(t *testing.T) {
	assert.NoError(t, ValidatePaymentAmount(dec("0.01")))
	assert.ErrorIs(t, ValidatePaymentAmount(decimal.Zero), ErrNonPositiveAmount)
	assert.ErrorIs(t, ValidatePaymentAmount(dec("-5")), ErrNonPositiveAmount)
}

func TestCheckOverpayment(t *testing.T) {
	assert.NoError(t, CheckOverpayment(dec("50"), decs("30"), dec("20")))
	assert.ErrorIs(t, CheckOverpayment(dec("50"), decs("30"), dec("20.01")), ErrOverpayment)
}
