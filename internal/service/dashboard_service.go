package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/accounting"
	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

const dashboardCachePattern = cacheNamespace + ":dashboard:*"

type dashboardRepository interface {
	AdminCounts(ctx context.Context) (*models.AdminDashboard, error)
}

type dashboardClassReader interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
}

type dashboardEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the per-role landing payloads.
type DashboardService struct {
	repo        dashboardRepository
	classes     dashboardClassReader
	enrollments dashboardEnrollmentReader
	cache       *CacheService
	logger      *zap.Logger
	cfg         DashboardServiceConfig
	now         func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(repo dashboardRepository, classes dashboardClassReader, enrollments dashboardEnrollmentReader, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &DashboardService{repo: repo, classes: classes, enrollments: enrollments, cache: cache, logger: logger, cfg: cfg, now: time.Now}
}

// Admin returns the school-wide counters, served from cache when possible.
// The boolean reports a cache hit.
func (s *DashboardService) Admin(ctx context.Context) (*models.AdminDashboard, bool, error) {
	var dashboard models.AdminDashboard
	hit, err := s.cache.Remember(ctx, CacheKey("dashboard", "admin"), &dashboard, s.cfg.CacheTTL, func(ctx context.Context) error {
		counts, err := s.repo.AdminCounts(ctx)
		if err != nil {
			return err
		}
		dashboard = *counts
		dashboard.GeneratedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard")
	}
	return &dashboard, hit, nil
}

// Teacher lists the classes of a teacher with live seat accounting and roster.
func (s *DashboardService) Teacher(ctx context.Context, teacherID string) (*models.TeacherDashboard, error) {
	classes, _, err := s.classes.List(ctx, models.ClassFilter{TeacherID: teacherID, PageSize: maxPageSize, SortBy: "start_date"})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}

	views := make([]models.TeacherClassView, 0, len(classes))
	for _, class := range classes {
		roster, err := s.classes.Roster(ctx, class.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
		}
		if roster == nil {
			roster = []models.RosterEntry{}
		}
		views = append(views, models.TeacherClassView{
			Class:        class,
			Availability: accounting.Availability(class.Seats, class.ActiveCount),
			Roster:       roster,
		})
	}
	return &models.TeacherDashboard{Classes: views}, nil
}

// Student lists the enrollments of a student.
func (s *DashboardService) Student(ctx context.Context, studentID string) (*models.StudentDashboard, error) {
	items, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: studentID, PageSize: maxPageSize})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if items == nil {
		items = []models.EnrollmentDetail{}
	}
	return &models.StudentDashboard{Enrollments: items}, nil
}
