package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	UpsertMany(ctx context.Context, records []models.AttendanceRecord) ([]models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error)
}

type attendanceEnrollmentLookup interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	StudentEnrollmentsInClass(ctx context.Context, classID string, studentIDs []string) (map[string]string, error)
}

type attendanceClassLookup interface {
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	IsTaughtBy(ctx context.Context, classID, teacherID string) (bool, error)
}

// AttendanceService coordinates attendance workflows.
type AttendanceService struct {
	repo        attendanceRepository
	enrollments attendanceEnrollmentLookup
	classes     attendanceClassLookup
	audit       auditWriter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, enrollments attendanceEnrollmentLookup, classes attendanceClassLookup, audit auditWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{repo: repo, enrollments: enrollments, classes: classes, audit: audit, metrics: metrics, validator: validate, logger: logger}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		status := models.AttendanceStatus(strings.ToUpper(fl.Field().String()))
		return status.Valid()
	})
	return svc
}

// Mark records the attendance of one enrollment on a date. Marking the same
// enrollment and date again overwrites the previous status.
func (s *AttendanceService) Mark(ctx context.Context, req models.MarkAttendanceRequest, claims *models.JWTClaims, meta models.RequestMeta) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid attendance payload")
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if claims != nil && claims.Role == models.RoleTeacher {
		if enrollment.TeacherID == nil || *enrollment.TeacherID != claims.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to you")
		}
	}

	status := models.AttendanceStatus(strings.ToUpper(string(req.Status)))
	record, err := s.repo.Upsert(ctx, &models.AttendanceRecord{
		EnrollmentID: enrollment.ID,
		ClassID:      enrollment.ClassID,
		Date:         date,
		Status:       status,
		Notes:        req.Notes,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	s.metrics.RecordAttendance(string(status), 1)

	recordAudit(ctx, s.audit, s.logger, auditEntry{
		actorID:    actorOf(claims),
		action:     models.AuditActionAttendanceMark,
		resource:   "attendance_records",
		resourceID: record.ID,
		newValues:  map[string]interface{}{"enrollment_id": record.EnrollmentID, "date": req.Date, "status": record.Status},
		meta:       meta,
	})
	return record, nil
}

// BulkMark marks a class sheet for one date. Students without an enrollment
// in the class are skipped and reported back.
func (s *AttendanceService) BulkMark(ctx context.Context, classID string, req models.BulkAttendanceRequest, claims *models.JWTClaims, meta models.RequestMeta) (*models.BulkAttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid bulk attendance payload")
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if err := s.ensureTeaches(ctx, classID, claims); err != nil {
		return nil, err
	}

	studentIDs := make([]string, 0, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, ok := seen[item.StudentID]; ok {
			continue
		}
		seen[item.StudentID] = struct{}{}
		studentIDs = append(studentIDs, item.StudentID)
	}

	enrolled, err := s.enrollments.StudentEnrollmentsInClass(ctx, classID, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollments")
	}

	// the last item wins when a student appears twice
	byEnrollment := make(map[string]int, len(req.Items))
	records := make([]models.AttendanceRecord, 0, len(req.Items))
	result := &models.BulkAttendanceResult{Skipped: []string{}}
	skipped := make(map[string]struct{})
	for _, item := range req.Items {
		enrollmentID, ok := enrolled[item.StudentID]
		if !ok {
			if _, dup := skipped[item.StudentID]; !dup {
				skipped[item.StudentID] = struct{}{}
				result.Skipped = append(result.Skipped, item.StudentID)
			}
			continue
		}
		record := models.AttendanceRecord{
			EnrollmentID: enrollmentID,
			ClassID:      classID,
			Date:         date,
			Status:       models.AttendanceStatus(strings.ToUpper(string(item.Status))),
			Notes:        item.Notes,
		}
		if idx, ok := byEnrollment[enrollmentID]; ok {
			records[idx] = record
			continue
		}
		byEnrollment[enrollmentID] = len(records)
		records = append(records, record)
	}

	stored, err := s.repo.UpsertMany(ctx, records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	result.Marked = stored
	if result.Marked == nil {
		result.Marked = []models.AttendanceRecord{}
	}

	counts := make(map[models.AttendanceStatus]int)
	for _, rec := range stored {
		counts[rec.Status]++
	}
	for status, n := range counts {
		s.metrics.RecordAttendance(string(status), n)
	}

	if len(result.Skipped) > 0 {
		s.logger.Info("bulk attendance skipped students without enrollment",
			zap.String("class_id", classID),
			zap.Strings("student_ids", result.Skipped))
	}

	recordAudit(ctx, s.audit, s.logger, auditEntry{
		actorID:    actorOf(claims),
		action:     models.AuditActionAttendanceBulk,
		resource:   "class_offerings",
		resourceID: classID,
		newValues:  map[string]interface{}{"date": req.Date, "marked": len(stored), "skipped": len(result.Skipped)},
		meta:       meta,
	})
	return result, nil
}

// List returns attendance records. Teachers see their classes and students
// their own records.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter, claims *models.JWTClaims) ([]models.AttendanceDetail, *models.Pagination, error) {
	if claims != nil {
		switch claims.Role {
		case models.RoleTeacher:
			filter.TeacherID = claims.UserID
		case models.RoleStudent:
			filter.StudentID = claims.UserID
		}
	}
	filter.Status = models.AttendanceStatus(strings.ToUpper(string(filter.Status)))
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return items, buildPagination(filter.Page, filter.PageSize, total), nil
}

// StudentHistory returns the attendance of one learner across classes.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID string, filter models.AttendanceFilter, claims *models.JWTClaims) ([]models.AttendanceDetail, *models.Pagination, error) {
	if claims != nil && claims.Role == models.RoleStudent && claims.UserID != studentID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another student's attendance")
	}
	filter.StudentID = studentID
	return s.List(ctx, filter, claims)
}

// ClassSheet returns the marks of a class on one date.
func (s *AttendanceService) ClassSheet(ctx context.Context, classID string, date time.Time, claims *models.JWTClaims) ([]models.AttendanceDetail, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if err := s.ensureTeaches(ctx, classID, claims); err != nil {
		return nil, err
	}
	day := date.UTC().Truncate(24 * time.Hour)
	items, _, err := s.repo.List(ctx, models.AttendanceFilter{
		ClassID:  classID,
		DateFrom: &day,
		DateTo:   &day,
		PageSize: maxPageSize,
		SortBy:   "student_name",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class sheet")
	}
	return items, nil
}

func (s *AttendanceService) ensureTeaches(ctx context.Context, classID string, claims *models.JWTClaims) error {
	if claims == nil || claims.Role != models.RoleTeacher {
		return nil
	}
	ok, err := s.classes.IsTaughtBy(ctx, classID, claims.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class teacher")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to you")
	}
	return nil
}

func actorOf(claims *models.JWTClaims) string {
	if claims == nil {
		return ""
	}
	return claims.UserID
}
