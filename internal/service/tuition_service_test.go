package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/repository"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type fakeTuitionRepo struct {
	mu          sync.Mutex
	prices      map[string]decimal.Decimal
	obligations map[string]*models.TuitionObligation
	payments    map[string][]models.PartialPayment
	lastFilter  models.ObligationFilter

	// beforeCancel runs between the service's read and the guarded write.
	beforeCancel func()
}

func newFakeTuitionRepo() *fakeTuitionRepo {
	return &fakeTuitionRepo{
		prices:      map[string]decimal.Decimal{},
		obligations: map[string]*models.TuitionObligation{},
		payments:    map[string][]models.PartialPayment{},
	}
}

func (f *fakeTuitionRepo) CoursePriceForEnrollment(ctx context.Context, enrollmentID string) (decimal.Decimal, error) {
	price, ok := f.prices[enrollmentID]
	if !ok {
		return decimal.Zero, sql.ErrNoRows
	}
	return price, nil
}

func (f *fakeTuitionRepo) CreateObligation(ctx context.Context, obligation *models.TuitionObligation) error {
	obligation.ID = fmt.Sprintf("o%d", len(f.obligations)+1)
	copy := *obligation
	f.obligations[obligation.ID] = &copy
	return nil
}

func (f *fakeTuitionRepo) FindByID(ctx context.Context, id string) (*models.TuitionObligation, error) {
	o, ok := f.obligations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *o
	return &copy, nil
}

func (f *fakeTuitionRepo) FindDetail(ctx context.Context, id string) (*models.ObligationDetail, error) {
	o, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ObligationDetail{TuitionObligation: *o}, nil
}

func (f *fakeTuitionRepo) List(ctx context.Context, filter models.ObligationFilter) ([]models.ObligationDetail, int, error) {
	f.lastFilter = filter
	return nil, 0, nil
}

func (f *fakeTuitionRepo) ListPayments(ctx context.Context, obligationID string) ([]models.PartialPayment, error) {
	return f.payments[obligationID], nil
}

// ApplyPayment serialises callers on a mutex the way the row lock does.
func (f *fakeTuitionRepo) ApplyPayment(ctx context.Context, payment *models.PartialPayment, resolve repository.StatusResolver) (*models.TuitionObligation, []models.PartialPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.obligations[payment.ObligationID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	payment.ID = fmt.Sprintf("p%d", len(f.payments[o.ID])+1)
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	history := append(append([]models.PartialPayment{}, f.payments[o.ID]...), *payment)
	status, err := resolve(*o, history)
	if err != nil {
		return nil, nil, err
	}
	f.payments[o.ID] = history
	o.Status = status
	copy := *o
	return &copy, history, nil
}

func (f *fakeTuitionRepo) Cancel(ctx context.Context, id string) error {
	if f.beforeCancel != nil {
		f.beforeCancel()
	}
	o, ok := f.obligations[id]
	if !ok {
		return sql.ErrNoRows
	}
	if o.Status != models.ObligationStatusPending {
		return repository.ErrNotPending
	}
	o.Status = models.ObligationStatusCancelled
	return nil
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newTuitionFixture(allowOverpayment bool) (*TuitionService, *fakeTuitionRepo, *recordingAudit) {
	repo := newFakeTuitionRepo()
	audit := &recordingAudit{}
	svc := NewTuitionService(repo, audit, nil, nil, validator.New(), zap.NewNop(), TuitionConfig{AllowOverpayment: allowOverpayment})
	return svc, repo, audit
}

func TestTuitionServiceCreateObligationDefaultsToCoursePrice(t *testing.T) {
	svc, repo, _ := newTuitionFixture(true)
	repo.prices["e1"] = dec("150.00")

	obligation, err := svc.CreateObligation(context.Background(), models.CreateObligationRequest{EnrollmentID: "e1"})
	require.NoError(t, err)
	assert.True(t, obligation.Amount.Equal(dec("150")))
	assert.Equal(t, models.ObligationStatusPending, obligation.Status)

	custom := dec("80")
	obligation, err = svc.CreateObligation(context.Background(), models.CreateObligationRequest{EnrollmentID: "e1", Amount: &custom})
	require.NoError(t, err)
	assert.True(t, obligation.Amount.Equal(custom))

	_, err = svc.CreateObligation(context.Background(), models.CreateObligationRequest{EnrollmentID: "nope"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTuitionServiceZeroPriceObligationIsPaid(t *testing.T) {
	svc, repo, _ := newTuitionFixture(true)
	repo.prices["e1"] = decimal.Zero

	obligation, err := svc.CreateObligation(context.Background(), models.CreateObligationRequest{EnrollmentID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, models.ObligationStatusPaid, obligation.Status)
	assert.Equal(t, models.ObligationStatusPaid, repo.obligations[obligation.ID].Status)

	summary, err := svc.Summary(context.Background(), obligation.ID)
	require.NoError(t, err)
	assert.Equal(t, string(repo.obligations[obligation.ID].Status), summary.Status)
	assert.True(t, summary.Outstanding.IsZero())
}

func TestTuitionServicePartialPaymentsSettle(t *testing.T) {
	svc, repo, audit := newTuitionFixture(true)
	repo.obligations["o1"] = &models.TuitionObligation{ID: "o1", Amount: dec("50"), Status: models.ObligationStatusPending}

	first, err := svc.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("30")}, "admin", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", first.Settlement.Status)
	assert.True(t, first.Settlement.Outstanding.Equal(dec("20")))

	second, err := svc.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("20")}, "admin", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "PAID", second.Settlement.Status)
	assert.True(t, second.Settlement.Outstanding.IsZero())
	assert.True(t, second.Settlement.PaidSoFar.Equal(dec("50")))
	assert.Equal(t, 2, second.Settlement.Payments)
	require.NotNil(t, second.Payment.RecordedBy)
	assert.Equal(t, "admin", *second.Payment.RecordedBy)
	assert.Len(t, audit.logs, 2)

	summary, err := svc.Summary(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "PAID", summary.Status)
	assert.True(t, summary.Total.Equal(dec("50")))
}

func TestTuitionServiceRejectsNonPositiveAmount(t *testing.T) {
	svc, repo, _ := newTuitionFixture(true)
	repo.obligations["o1"] = &models.TuitionObligation{ID: "o1", Amount: dec("50"), Status: models.ObligationStatusPending}

	for _, amount := range []string{"0", "-10"} {
		_, err := svc.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec(amount)}, "admin", models.RequestMeta{})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidInput.Code, appErrors.FromError(err).Code)
	}
	assert.Empty(t, repo.payments["o1"])
}

func TestTuitionServiceOverpaymentPolicy(t *testing.T) {
	allowed, repo, _ := newTuitionFixture(true)
	repo.obligations["o1"] = &models.TuitionObligation{ID: "o1", Amount: dec("20"), Status: models.ObligationStatusPending}
	_, err := allowed.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("10")}, "", models.RequestMeta{})
	require.NoError(t, err)
	result, err := allowed.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("15")}, "", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "PAID", result.Settlement.Status)
	assert.True(t, result.Settlement.Credit.Equal(dec("5")))
	assert.True(t, result.Settlement.Outstanding.IsZero())

	strict, strictRepo, _ := newTuitionFixture(false)
	strictRepo.obligations["o1"] = &models.TuitionObligation{ID: "o1", Amount: dec("20"), Status: models.ObligationStatusPending}
	_, err = strict.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("10")}, "", models.RequestMeta{})
	require.NoError(t, err)
	_, err = strict.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("15")}, "", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidInput.Code, appErrors.FromError(err).Code)
	assert.Len(t, strictRepo.payments["o1"], 1)
}

func TestTuitionServiceCancelledObligationRejectsPayments(t *testing.T) {
	svc, repo, _ := newTuitionFixture(true)
	repo.obligations["o1"] = &models.TuitionObligation{ID: "o1", Amount: dec("50"), Status: models.ObligationStatusPending}

	summary, err := svc.Cancel(context.Background(), "o1", "admin", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", summary.Status)

	_, err = svc.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("10")}, "admin", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestTuitionServiceCancelPaidObligation(t *testing.T) {
	svc, repo, _ := newTuitionFixture(true)
	repo.obligations["o1"] = &models.TuitionObligation{ID: "o1", Amount: dec("50"), Status: models.ObligationStatusPaid}

	_, err := svc.Cancel(context.Background(), "o1", "admin", models.RequestMeta{})
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	_, err = svc.Cancel(context.Background(), "missing", "admin", models.RequestMeta{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTuitionServiceCancelLosesToSettlingPayment(t *testing.T) {
	svc, repo, audit := newTuitionFixture(true)
	repo.obligations["o1"] = &models.TuitionObligation{ID: "o1", Amount: dec("50"), Status: models.ObligationStatusPending}
	repo.beforeCancel = func() {
		_, err := svc.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("50")}, "cashier", models.RequestMeta{})
		require.NoError(t, err)
	}

	_, err := svc.Cancel(context.Background(), "o1", "admin", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.ObligationStatusPaid, repo.obligations["o1"].Status)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionPaymentApply, audit.logs[0].Action)
}

func TestTuitionServiceConcurrentPaymentsKeepEveryUpdate(t *testing.T) {
	svc, repo, _ := newTuitionFixture(true)
	repo.obligations["o1"] = &models.TuitionObligation{ID: "o1", Amount: dec("100"), Status: models.ObligationStatusPending}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyPayment(context.Background(), "o1", models.PaymentRequest{Amount: dec("10")}, "", models.RequestMeta{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	summary, err := svc.Summary(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Payments)
	assert.True(t, summary.PaidSoFar.Equal(dec("100")))
	assert.Equal(t, "PAID", summary.Status)
}

func TestTuitionServiceMissingObligation(t *testing.T) {
	svc, _, _ := newTuitionFixture(true)

	_, err := svc.ApplyPayment(context.Background(), "ghost", models.PaymentRequest{Amount: dec("10")}, "", models.RequestMeta{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Summary(context.Background(), "ghost")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Payments(context.Background(), "ghost")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTuitionServiceListScopesStudents(t *testing.T) {
	svc, repo, _ := newTuitionFixture(true)

	_, _, err := svc.List(context.Background(), models.ObligationFilter{}, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.lastFilter.StudentID)
}
