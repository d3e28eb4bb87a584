package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/accounting"
	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/repository"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type tuitionRepository interface {
	CoursePriceForEnrollment(ctx context.Context, enrollmentID string) (decimal.Decimal, error)
	CreateObligation(ctx context.Context, obligation *models.TuitionObligation) error
	FindByID(ctx context.Context, id string) (*models.TuitionObligation, error)
	FindDetail(ctx context.Context, id string) (*models.ObligationDetail, error)
	List(ctx context.Context, filter models.ObligationFilter) ([]models.ObligationDetail, int, error)
	ListPayments(ctx context.Context, obligationID string) ([]models.PartialPayment, error)
	ApplyPayment(ctx context.Context, payment *models.PartialPayment, resolve repository.StatusResolver) (*models.TuitionObligation, []models.PartialPayment, error)
	Cancel(ctx context.Context, id string) error
}

// TuitionConfig holds settlement policy.
type TuitionConfig struct {
	AllowOverpayment bool
}

// TuitionService manages tuition obligations and partial payments.
type TuitionService struct {
	repo      tuitionRepository
	audit     auditWriter
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    TuitionConfig
}

// NewTuitionService constructs the tuition service.
func NewTuitionService(repo tuitionRepository, audit auditWriter, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config TuitionConfig) *TuitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TuitionService{repo: repo, audit: audit, cache: cache, metrics: metrics, validator: validate, logger: logger, config: config}
}

// List returns obligations; students only see their own.
func (s *TuitionService) List(ctx context.Context, filter models.ObligationFilter, claims *models.JWTClaims) ([]models.ObligationDetail, *models.Pagination, error) {
	if claims != nil && claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list obligations")
	}
	return items, buildPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns an obligation with its enrollment context.
func (s *TuitionService) Get(ctx context.Context, id string) (*models.ObligationDetail, error) {
	detail, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		return nil, obligationLoadError(err)
	}
	return detail, nil
}

// CreateObligation opens an obligation for an enrollment. Without an amount
// the price of the enrolled course is used.
func (s *TuitionService) CreateObligation(ctx context.Context, req models.CreateObligationRequest) (*models.TuitionObligation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid obligation payload")
	}

	price, err := s.repo.CoursePriceForEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course price")
	}
	amount := price
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "amount cannot be negative")
	}

	// A zero amount is settled from the start.
	obligation := &models.TuitionObligation{
		EnrollmentID: req.EnrollmentID,
		Amount:       amount,
		Status:       models.ObligationStatus(accounting.Settle(amount, nil).Status),
		Notes:        req.Notes,
	}
	if err := s.repo.CreateObligation(ctx, obligation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create obligation")
	}
	s.invalidateDashboard(ctx)
	return obligation, nil
}

// ApplyPayment appends a partial payment and returns the resulting
// settlement. The amount must be positive; a cancelled obligation accepts
// no payments.
func (s *TuitionService) ApplyPayment(ctx context.Context, obligationID string, req models.PaymentRequest, actorID string, meta models.RequestMeta) (*models.PaymentResult, error) {
	if err := accounting.ValidatePaymentAmount(req.Amount); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, err.Error())
	}

	payment := &models.PartialPayment{ObligationID: obligationID, Amount: req.Amount, Note: req.Note}
	if req.PaidAt != nil {
		payment.PaidAt = req.PaidAt.UTC()
	}
	if actorID != "" {
		recorder := actorID
		payment.RecordedBy = &recorder
	}

	obligation, history, err := s.repo.ApplyPayment(ctx, payment, s.resolveStatus)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "obligation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply payment")
	}

	settlement := accounting.SettleWithStatus(string(obligation.Status), obligation.Amount, models.PaymentAmounts(history))
	s.metrics.RecordPayment(settlement.Status, req.Amount.InexactFloat64())
	if settlement.Credit.IsPositive() {
		s.logger.Info("obligation overpaid",
			zap.String("obligation_id", obligation.ID),
			zap.String("credit", settlement.Credit.String()))
	}

	recordAudit(ctx, s.audit, s.logger, auditEntry{
		actorID:    actorID,
		action:     models.AuditActionPaymentApply,
		resource:   "tuition_obligations",
		resourceID: obligation.ID,
		newValues:  map[string]interface{}{"payment_id": payment.ID, "amount": payment.Amount.String(), "status": settlement.Status},
		meta:       meta,
	})
	s.invalidateDashboard(ctx)

	return &models.PaymentResult{
		Payment:    *payment,
		Settlement: models.SettlementSummary{ObligationID: obligation.ID, Settlement: settlement},
	}, nil
}

// Summary derives total, paid so far, outstanding and status from the
// payment history at call time.
func (s *TuitionService) Summary(ctx context.Context, obligationID string) (*models.SettlementSummary, error) {
	obligation, err := s.repo.FindByID(ctx, obligationID)
	if err != nil {
		return nil, obligationLoadError(err)
	}
	payments, err := s.repo.ListPayments(ctx, obligationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	settlement := accounting.SettleWithStatus(string(obligation.Status), obligation.Amount, models.PaymentAmounts(payments))
	return &models.SettlementSummary{ObligationID: obligation.ID, Settlement: settlement}, nil
}

// Payments returns the payment history of an obligation.
func (s *TuitionService) Payments(ctx context.Context, obligationID string) ([]models.PartialPayment, error) {
	if _, err := s.repo.FindByID(ctx, obligationID); err != nil {
		return nil, obligationLoadError(err)
	}
	payments, err := s.repo.ListPayments(ctx, obligationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	return payments, nil
}

// Cancel voids a pending obligation. The write only applies while the row is
// still pending, so a payment settling it concurrently wins.
func (s *TuitionService) Cancel(ctx context.Context, obligationID string, actorID string, meta models.RequestMeta) (*models.SettlementSummary, error) {
	obligation, err := s.repo.FindByID(ctx, obligationID)
	if err != nil {
		return nil, obligationLoadError(err)
	}
	switch obligation.Status {
	case models.ObligationStatusPaid:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "paid obligation cannot be cancelled")
	case models.ObligationStatusPending:
		if err := s.repo.Cancel(ctx, obligationID); err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return nil, appErrors.Clone(appErrors.ErrNotFound, "obligation not found")
			case errors.Is(err, repository.ErrNotPending):
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "obligation is no longer pending")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel obligation")
		}
		recordAudit(ctx, s.audit, s.logger, auditEntry{
			actorID:    actorID,
			action:     models.AuditActionObligationCancel,
			resource:   "tuition_obligations",
			resourceID: obligationID,
			oldValues:  map[string]interface{}{"status": obligation.Status},
			newValues:  map[string]interface{}{"status": models.ObligationStatusCancelled},
			meta:       meta,
		})
		s.invalidateDashboard(ctx)
	}
	return s.Summary(ctx, obligationID)
}

// resolveStatus runs under the obligation row lock with the new payment
// already appended to history.
func (s *TuitionService) resolveStatus(obligation models.TuitionObligation, history []models.PartialPayment) (models.ObligationStatus, error) {
	if obligation.Status == models.ObligationStatusCancelled {
		return "", appErrors.Clone(appErrors.ErrPreconditionFailed, "obligation is cancelled")
	}
	amounts := models.PaymentAmounts(history)
	if !s.config.AllowOverpayment && len(amounts) > 0 {
		last := len(amounts) - 1
		if err := accounting.CheckOverpayment(obligation.Amount, amounts[:last], amounts[last]); err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, err.Error())
		}
	}
	return models.ObligationStatus(accounting.Settle(obligation.Amount, amounts).Status), nil
}

func (s *TuitionService) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, dashboardCachePattern); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func obligationLoadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "obligation not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load obligation")
}
