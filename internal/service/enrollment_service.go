package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/accounting"
	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/repository"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Enroll(ctx context.Context, enrollment *models.Enrollment) (int, int, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, notes *string) error
	Delete(ctx context.Context, id string) error
}

// EnrollmentService registers students in class offerings.
type EnrollmentService struct {
	repo      enrollmentRepository
	users     userLookup
	audit     auditWriter
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, users userLookup, audit auditWriter, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EnrollmentService{repo: repo, users: users, audit: audit, cache: cache, metrics: metrics, validator: validate, logger: logger}
	svc.validator.RegisterValidation("enrollment_status", func(fl validator.FieldLevel) bool {
		return models.EnrollmentStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	return svc
}

// List returns enrollments. Teachers only see their classes and students
// only their own enrollments.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter, claims *models.JWTClaims) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if claims != nil {
		switch claims.Role {
		case models.RoleTeacher:
			filter.TeacherID = claims.UserID
		case models.RoleStudent:
			filter.StudentID = claims.UserID
		}
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return items, buildPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return item, nil
}

// Enroll registers a student in a class. A class past its seat count still
// accepts the enrollment; the result flags the over-enrollment.
func (s *EnrollmentService) Enroll(ctx context.Context, req models.EnrollRequest, actorID string, meta models.RequestMeta) (*models.EnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}

	enrollment := &models.Enrollment{StudentID: student.ID, ClassID: req.ClassID, Notes: req.Notes}
	seats, active, err := s.repo.Enroll(ctx, enrollment)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	availability := accounting.Availability(seats, active)
	if availability.OverEnrolled {
		s.logger.Warn("class over-enrolled",
			zap.String("class_id", enrollment.ClassID),
			zap.String("enrollment_id", enrollment.ID),
			zap.Int("seats", seats),
			zap.Int("active", active),
			zap.Int("excess", availability.Excess))
	}
	s.metrics.RecordEnrollment(availability.OverEnrolled)

	recordAudit(ctx, s.audit, s.logger, auditEntry{
		actorID:    actorID,
		action:     models.AuditActionEnroll,
		resource:   "enrollments",
		resourceID: enrollment.ID,
		newValues:  map[string]interface{}{"student_id": enrollment.StudentID, "class_id": enrollment.ClassID, "over_enrolled": availability.OverEnrolled},
		meta:       meta,
	})
	s.invalidateDashboard(ctx)

	return &models.EnrollmentResult{Enrollment: *enrollment, Availability: availability}, nil
}

// UpdateStatus moves an enrollment to ACTIVE, FINISHED or CANCELLED.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req models.UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid enrollment status payload")
	}
	status := models.EnrollmentStatus(strings.ToUpper(string(req.Status)))
	if err := s.repo.UpdateStatus(ctx, id, status, req.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	s.invalidateDashboard(ctx)
	return s.Get(ctx, id)
}

// Delete removes an enrollment that has no recorded payments.
func (s *EnrollmentService) Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		case errors.Is(err, repository.ErrHasPayments):
			return appErrors.Clone(appErrors.ErrConflict, "enrollment has recorded payments")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	recordAudit(ctx, s.audit, s.logger, auditEntry{
		actorID:    actorID,
		action:     models.AuditActionEnrollmentDelete,
		resource:   "enrollments",
		resourceID: id,
		meta:       meta,
	})
	s.invalidateDashboard(ctx)
	return nil
}

func (s *EnrollmentService) invalidateDashboard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, dashboardCachePattern); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
