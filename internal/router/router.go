// Package router assembles the gin engine: global middleware, the public and
// authenticated route groups, and the ops endpoints.
package router

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/music-school-api/internal/handler"
	"github.com/noah-isme/music-school-api/internal/middleware"
	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/music-school-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/music-school-api/pkg/middleware/requestid"
)

var (
	admin   = string(models.RoleAdmin)
	teacher = string(models.RoleTeacher)
	student = string(models.RoleStudent)
)

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// AuditWriter persists request audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Counter backs the login rate limiter.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Observer receives request metrics and login outcomes.
type Observer interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
	RecordLogin(result string)
}

// Config carries the settings the routes depend on.
type Config struct {
	APIPrefix       string
	AllowedOrigins  []string
	EnableDocs      bool
	EnableDashboard bool
	EnableReports   bool
	LoginAttempts   int
	LoginWindow     time.Duration
}

// Dependencies are the cross-cutting collaborators of the middleware chain.
type Dependencies struct {
	Logger   *zap.Logger
	Tokens   TokenValidator
	Audit    AuditWriter
	Counter  Counter
	Observer Observer
}

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth        *handler.AuthHandler
	Users       *handler.UserHandler
	Courses     *handler.CourseHandler
	Rooms       *handler.RoomHandler
	Classes     *handler.ClassHandler
	Enrollments *handler.EnrollmentHandler
	Tuition     *handler.TuitionHandler
	Attendance  *handler.AttendanceHandler
	Reports     *handler.ReportHandler
	Dashboard   *handler.DashboardHandler
	Metrics     *handler.MetricsHandler
}

// New builds the engine.
func New(cfg Config, deps Dependencies, h Handlers) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	if deps.Observer != nil {
		r.Use(middleware.Metrics(deps.Observer))
	}
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	login := []gin.HandlerFunc{}
	if deps.Counter != nil && cfg.LoginAttempts > 0 {
		login = append(login, middleware.LoginRateLimit(deps.Counter, cfg.LoginAttempts, cfg.LoginWindow, deps.Observer, deps.Logger))
	}
	login = append(login, h.Auth.Login)
	api.POST("/auth/login", login...)
	api.POST("/auth/refresh", h.Auth.Refresh)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	audit := func(resource string) gin.HandlerFunc {
		if deps.Audit == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.Audit(deps.Audit, resource, deps.Logger)
	}

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.POST("/auth/change-password", h.Auth.ChangePassword)
	secured.GET("/me", h.Auth.Me)
	secured.GET("/me/enrollments", middleware.RBAC(student), h.Enrollments.Mine)
	secured.GET("/me/obligations", middleware.RBAC(student), h.Tuition.Mine)

	users := secured.Group("/users", middleware.RBAC(admin))
	users.GET("", h.Users.List)
	users.POST("", h.Users.Create)
	users.GET("/:id", h.Users.Get)
	users.PUT("/:id", h.Users.Update)
	users.DELETE("/:id", h.Users.Delete)
	secured.GET("/teachers", middleware.RBAC(admin), h.Users.Teachers)

	courses := secured.Group("/courses")
	courses.GET("", h.Courses.List)
	courses.GET("/:id", h.Courses.Get)
	coursesAdmin := courses.Group("", middleware.RBAC(admin), audit("courses"))
	coursesAdmin.POST("", h.Courses.Create)
	coursesAdmin.PUT("/:id", h.Courses.Update)
	coursesAdmin.DELETE("/:id", h.Courses.Delete)

	rooms := secured.Group("/rooms")
	rooms.GET("", h.Rooms.List)
	rooms.GET("/:id", h.Rooms.Get)
	rooms.GET("/:id/availability", middleware.RBAC(admin, teacher), h.Rooms.Availability)
	roomsAdmin := rooms.Group("", middleware.RBAC(admin), audit("rooms"))
	roomsAdmin.POST("", h.Rooms.Create)
	roomsAdmin.PUT("/:id", h.Rooms.Update)
	roomsAdmin.DELETE("/:id", h.Rooms.Delete)

	classes := secured.Group("/classes")
	classes.GET("", h.Classes.List)
	classes.GET("/:id", h.Classes.Get)
	classes.GET("/:id/availability", h.Classes.Availability)
	staff := classes.Group("", middleware.RBAC(admin, teacher))
	staff.GET("/:id/roster", h.Classes.Roster)
	staff.GET("/:id/attendance", h.Attendance.ClassSheet)
	staff.POST("/:id/attendance", h.Attendance.BulkMark)
	classesAdmin := classes.Group("", middleware.RBAC(admin), audit("classes"))
	classesAdmin.POST("", h.Classes.Create)
	classesAdmin.PUT("/:id", h.Classes.Update)
	classesAdmin.DELETE("/:id", h.Classes.Delete)

	enrollments := secured.Group("/enrollments", middleware.RBAC(admin))
	enrollments.GET("", h.Enrollments.List)
	enrollments.GET("/:id", h.Enrollments.Get)
	enrollments.POST("", h.Enrollments.Enroll)
	enrollments.PATCH("/:id/status", audit("enrollments"), h.Enrollments.UpdateStatus)
	enrollments.DELETE("/:id", h.Enrollments.Delete)

	obligations := secured.Group("/obligations", middleware.RBAC(admin))
	obligations.GET("", h.Tuition.List)
	obligations.POST("", audit("obligations"), h.Tuition.Create)
	obligations.GET("/:id", h.Tuition.Get)
	obligations.GET("/:id/summary", h.Tuition.Summary)
	obligations.GET("/:id/payments", h.Tuition.Payments)
	obligations.POST("/:id/payments", h.Tuition.ApplyPayment)
	obligations.POST("/:id/cancel", h.Tuition.Cancel)

	attendance := secured.Group("/attendance", middleware.RBAC(admin, teacher))
	attendance.GET("", h.Attendance.List)
	attendance.POST("", h.Attendance.Mark)
	secured.GET("/students/:id/attendance", middleware.RBAC(admin, teacher, middleware.SelfParam), h.Attendance.StudentHistory)

	if cfg.EnableReports {
		reports := secured.Group("/reports")
		reports.GET("/payments", middleware.RBAC(admin), h.Reports.Payments)
		reports.GET("/payments/download", middleware.RBAC(admin), h.Reports.DownloadPayments)
		reports.GET("/attendance", middleware.RBAC(admin, teacher), h.Reports.Attendance)
		reports.GET("/attendance/download", middleware.RBAC(admin, teacher), h.Reports.DownloadAttendance)
	}

	if cfg.EnableDashboard {
		secured.GET("/dashboard", h.Dashboard.Me)
		secured.GET("/dashboard/admin", middleware.RBAC(admin), h.Dashboard.Admin)
		secured.GET("/dashboard/teacher", middleware.RBAC(teacher), h.Dashboard.Teacher)
		secured.GET("/dashboard/student", middleware.RBAC(student), h.Dashboard.Student)
	}

	secured.GET("/admin/metrics", middleware.RBAC(admin), h.Metrics.Snapshot)

	return r
}
