package router

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/music-school-api/internal/handler"
	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/service"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type stubTokens map[string]*models.JWTClaims

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type stubAuth struct{}

func (stubAuth) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if req.Password != "secret" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "admin"}, nil
}

func (stubAuth) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return nil, appErrors.ErrUnauthorized
}

func (stubAuth) Logout(ctx context.Context, refreshToken string, userID string, meta models.RequestMeta) error {
	return nil
}

func (stubAuth) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	return nil
}

func (stubAuth) Me(ctx context.Context, userID string) (*models.User, error) {
	return &models.User{ID: userID}, nil
}

type stubEnrollments struct{}

func (stubEnrollments) List(ctx context.Context, filter models.EnrollmentFilter, claims *models.JWTClaims) ([]models.EnrollmentDetail, *models.Pagination, error) {
	return []models.EnrollmentDetail{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (stubEnrollments) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return nil, appErrors.ErrNotFound
}

func (stubEnrollments) Enroll(ctx context.Context, req models.EnrollRequest, actorID string, meta models.RequestMeta) (*models.EnrollmentResult, error) {
	return nil, appErrors.ErrInternal
}

func (stubEnrollments) UpdateStatus(ctx context.Context, id string, req models.UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error) {
	return nil, appErrors.ErrInternal
}

func (stubEnrollments) Delete(ctx context.Context, id string, actorID string, meta models.RequestMeta) error {
	return nil
}

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (m *memoryCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func buildRouter(cfg Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	tokens := stubTokens{
		"admin":   {UserID: "a1", Role: models.RoleAdmin},
		"teacher": {UserID: "t1", Role: models.RoleTeacher},
		"student": {UserID: "s1", Role: models.RoleStudent},
	}
	deps := Dependencies{Tokens: tokens, Counter: &memoryCounter{counts: map[string]int64{}}, Observer: metrics}
	h := Handlers{
		Auth:        handler.NewAuthHandler(stubAuth{}),
		Enrollments: handler.NewEnrollmentHandler(stubEnrollments{}),
		Metrics:     handler.NewMetricsHandler(metrics, nil),
	}
	return New(cfg, deps, h)
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterGuards(t *testing.T) {
	r := buildRouter(Config{APIPrefix: "/api/v1"})

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"ready without checks", http.MethodGet, "/ready", "", http.StatusOK},
		{"anonymous enrollments", http.MethodGet, "/api/v1/enrollments", "", http.StatusUnauthorized},
		{"teacher enrollments", http.MethodGet, "/api/v1/enrollments", "teacher", http.StatusForbidden},
		{"admin enrollments", http.MethodGet, "/api/v1/enrollments", "admin", http.StatusOK},
		{"student self service", http.MethodGet, "/api/v1/me/enrollments", "student", http.StatusOK},
		{"admin is not a student", http.MethodGet, "/api/v1/me/enrollments", "admin", http.StatusForbidden},
		{"reports disabled", http.MethodGet, "/api/v1/reports/payments", "admin", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, do(r, tc.method, tc.path, tc.token, "").Code)
		})
	}
}

func TestRouterLoginRateLimit(t *testing.T) {
	r := buildRouter(Config{APIPrefix: "/api/v1", LoginAttempts: 2, LoginWindow: time.Minute})

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/v1/auth/login", "", `{"identifier":"a","password":"nope"}`).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/auth/login", "", `{"identifier":"a","password":"secret"}`).Code)
	w := do(r, http.MethodPost, "/api/v1/auth/login", "", `{"identifier":"a","password":"secret"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRouterExposesPrometheus(t *testing.T) {
	r := buildRouter(Config{APIPrefix: "/api/v1"})
	do(r, http.MethodGet, "/health", "", "")

	w := do(r, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
