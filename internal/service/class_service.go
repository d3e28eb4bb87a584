package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/accounting"
	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

const dateLayout = "2006-01-02"

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Create(ctx context.Context, class *models.ClassOffering) error
	Update(ctx context.Context, class *models.ClassOffering) error
	Delete(ctx context.Context, id string) error
	Occupancy(ctx context.Context, classID string) (*models.ClassOccupancy, error)
	ListOccupancy(ctx context.Context, courseID string) ([]models.ClassOccupancy, error)
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
	IsTaughtBy(ctx context.Context, classID, teacherID string) (bool, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type roomLookup interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

// ClassService coordinates class offerings and their seat accounting.
type ClassService struct {
	repo      classRepository
	users     userLookup
	courses   courseLookup
	rooms     roomLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, users userLookup, courses courseLookup, rooms roomLookup, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ClassService{repo: repo, users: users, courses: courses, rooms: rooms, validator: validate, logger: logger}
	svc.validator.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	return svc
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, buildPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns detailed class information.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return detail, nil
}

// Create schedules a new class offering.
func (s *ClassService) Create(ctx context.Context, req models.ClassRequest) (*models.ClassDetail, error) {
	class, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return s.Get(ctx, class.ID)
}

// Update replaces the attributes of a class offering.
func (s *ClassService) Update(ctx context.Context, id string, req models.ClassRequest) (*models.ClassDetail, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	class, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	class.ID = current.ID
	class.Seq = current.Seq
	if err := s.repo.Update(ctx, class); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return s.Get(ctx, id)
}

// Delete removes a class offering with its enrollments and attendance.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

// Availability computes free seats from the live active enrollment count,
// plus room accounting when a room is assigned.
func (s *ClassService) Availability(ctx context.Context, id string) (*models.ClassAvailability, error) {
	occ, err := s.repo.Occupancy(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class occupancy")
	}
	return classAvailability(*occ), nil
}

// AvailabilityOverview reports seat and room accounting for every offering,
// optionally limited to one course.
func (s *ClassService) AvailabilityOverview(ctx context.Context, courseID string) ([]models.ClassAvailability, error) {
	items, err := s.repo.ListOccupancy(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class occupancy")
	}
	out := make([]models.ClassAvailability, 0, len(items))
	for _, occ := range items {
		out = append(out, *classAvailability(occ))
	}
	return out, nil
}

// Roster lists the learners of a class with their paid flag. Teachers only
// see the roster of classes they teach.
func (s *ClassService) Roster(ctx context.Context, id string, claims *models.JWTClaims) ([]models.RosterEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.EnsureTeaches(ctx, id, claims); err != nil {
		return nil, err
	}
	roster, err := s.repo.Roster(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return roster, nil
}

// EnsureTeaches rejects teachers acting on classes assigned to someone else.
// Admins pass through.
func (s *ClassService) EnsureTeaches(ctx context.Context, classID string, claims *models.JWTClaims) error {
	if claims == nil || claims.Role != models.RoleTeacher {
		return nil
	}
	ok, err := s.repo.IsTaughtBy(ctx, classID, claims.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class teacher")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "class is not assigned to you")
	}
	return nil
}

func (s *ClassService) build(ctx context.Context, req models.ClassRequest) (*models.ClassOffering, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid class payload")
	}

	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start_date")
	}
	endDate, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end_date")
	}
	if endDate.Before(startDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	if req.EndTime <= req.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	teacherID := trimOptional(req.TeacherID)
	if teacherID != nil {
		teacher, err := s.users.FindByID(ctx, *teacherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
		}
		if teacher.Role != models.RoleTeacher {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assigned user is not a teacher")
		}
	}

	roomID := trimOptional(req.RoomID)
	if roomID != nil {
		if _, err := s.rooms.FindByID(ctx, *roomID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
		}
	}

	return &models.ClassOffering{
		CourseID:    req.CourseID,
		TeacherID:   teacherID,
		RoomID:      roomID,
		Seats:       req.Seats,
		StartDate:   startDate,
		EndDate:     endDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Description: strings.TrimSpace(req.Description),
	}, nil
}

func classAvailability(occ models.ClassOccupancy) *models.ClassAvailability {
	result := &models.ClassAvailability{
		ClassID: occ.ClassID,
		Code:    occ.Code,
		Seats:   accounting.Availability(occ.Seats, occ.ActiveCount),
	}
	if occ.RoomID != nil && occ.RoomCapacity != nil {
		usage := &models.RoomUsage{RoomID: *occ.RoomID, Capacity: accounting.Availability(*occ.RoomCapacity, occ.ActiveCount)}
		if occ.RoomName != nil {
			usage.RoomName = *occ.RoomName
		}
		result.Room = usage
	}
	return result
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
