package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/music-school-api/api/swagger"
	"github.com/noah-isme/music-school-api/internal/handler"
	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/repository"
	"github.com/noah-isme/music-school-api/internal/router"
	"github.com/noah-isme/music-school-api/internal/service"
	"github.com/noah-isme/music-school-api/pkg/cache"
	"github.com/noah-isme/music-school-api/pkg/config"
	"github.com/noah-isme/music-school-api/pkg/database"
	"github.com/noah-isme/music-school-api/pkg/logger"
)

// @title Music School API
// @version 1.0.0
// @description Classes, enrollments, tuition and attendance for a music school
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching and login throttling disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	users := repository.NewUserRepository(db)
	courses := repository.NewCourseRepository(db)
	rooms := repository.NewRoomRepository(db)
	classes := repository.NewClassRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	tuition := repository.NewTuitionRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	reports := repository.NewReportRepository(db)
	dashboard := repository.NewDashboardRepository(db)

	authSvc := service.NewAuthService(users, validate, logr, metrics, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(users, validate, logr)
	courseSvc := service.NewCourseService(courses, validate, logr)
	roomSvc := service.NewRoomService(rooms, classes, validate, logr)
	classSvc := service.NewClassService(classes, users, courses, rooms, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollments, users, users, cacheSvc, metrics, validate, logr)
	tuitionSvc := service.NewTuitionService(tuition, users, cacheSvc, metrics, validate, logr, service.TuitionConfig{
		AllowOverpayment: cfg.Settlement.AllowOverpayment,
	})
	attendanceSvc := service.NewAttendanceService(attendance, enrollments, classes, users, metrics, validate, logr)
	reportSvc := service.NewReportService(reports, logr, service.ReportServiceConfig{
		SchoolName:    cfg.Reports.SchoolName,
		DefaultFormat: models.ReportFormat(cfg.Reports.DefaultFormat),
		MaxRows:       cfg.Reports.MaxRows,
	})
	dashboardSvc := service.NewDashboardService(dashboard, classes, enrollments, cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = cacheRepo
	}

	deps := router.Dependencies{
		Logger:   logr,
		Tokens:   authSvc,
		Audit:    users,
		Observer: metrics,
	}
	if redisClient != nil {
		deps.Counter = cacheRepo
	}

	engine := router.New(router.Config{
		APIPrefix:       cfg.APIPrefix,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		EnableDocs:      cfg.Env != config.EnvProduction,
		EnableDashboard: cfg.Dashboard.Enabled,
		EnableReports:   cfg.Reports.Enabled,
		LoginAttempts:   cfg.RateLimit.LoginAttempts,
		LoginWindow:     cfg.RateLimit.LoginWindow,
	}, deps, router.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Courses:     handler.NewCourseHandler(courseSvc),
		Rooms:       handler.NewRoomHandler(roomSvc),
		Classes:     handler.NewClassHandler(classSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Tuition:     handler.NewTuitionHandler(tuitionSvc),
		Attendance:  handler.NewAttendanceHandler(attendanceSvc),
		Reports:     handler.NewReportHandler(reportSvc),
		Dashboard:   handler.NewDashboardHandler(dashboardSvc),
		Metrics:     handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
