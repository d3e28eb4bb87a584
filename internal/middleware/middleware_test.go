package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/items/:id", handlers...)
	r.GET("/items/:id", handlers...)
	return r
}

func perform(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRBAC(t *testing.T) {
	tokens := stubValidator{
		"admin":   {UserID: "a1", Role: models.RoleAdmin},
		"teacher": {UserID: "t1", Role: models.RoleTeacher},
		"student": {UserID: "s1", Role: models.RoleStudent},
	}
	r := newTestRouter(JWT(tokens), RBAC(string(models.RoleAdmin), SelfParam))

	cases := []struct {
		name   string
		token  string
		path   string
		status int
	}{
		{"missing token", "", "/items/x", http.StatusUnauthorized},
		{"bad token", "nope", "/items/x", http.StatusUnauthorized},
		{"admin", "admin", "/items/x", http.StatusNoContent},
		{"teacher on other", "teacher", "/items/x", http.StatusForbidden},
		{"student on self", "student", "/items/s1", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(r, http.MethodGet, tc.path, tc.token)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = bearerToken("Bearer   ")
	assert.False(t, ok)
}

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (m *memoryCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[key]++
	return m.counts[key], nil
}

type loginRecorder struct{ results []string }

func (l *loginRecorder) RecordLogin(result string) { l.results = append(l.results, result) }

func TestLoginRateLimit(t *testing.T) {
	counter := &memoryCounter{}
	metrics := &loginRecorder{}
	r := newTestRouter(LoginRateLimit(counter, 2, time.Minute, metrics, nil))

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPost, "/items/login", "").Code)
	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPost, "/items/login", "").Code)
	w := perform(r, http.MethodPost, "/items/login", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, []string{"throttled"}, metrics.results)
}

func TestLoginRateLimitFailsOpen(t *testing.T) {
	r := newTestRouter(LoginRateLimit(&memoryCounter{err: errors.New("redis down")}, 1, time.Minute, nil, nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, perform(r, http.MethodPost, "/items/login", "").Code)
	}
}

type memoryAudit struct{ logs []*models.AuditLog }

func (m *memoryAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func TestAuditWritesMutations(t *testing.T) {
	audit := &memoryAudit{}
	tokens := stubValidator{"admin": {UserID: "a1", Role: models.RoleAdmin}}
	r := newTestRouter(JWT(tokens), Audit(audit, "courses", nil))

	perform(r, http.MethodGet, "/items/c1", "admin")
	assert.Empty(t, audit.logs)

	perform(r, http.MethodPost, "/items/c1", "admin")
	require.Len(t, audit.logs, 1)
	log := audit.logs[0]
	assert.Equal(t, models.AuditActionRequest, log.Action)
	assert.Equal(t, "courses", log.Resource)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, "c1", *log.ResourceID)
	require.NotNil(t, log.UserID)
	assert.Equal(t, "a1", *log.UserID)
}

type observed struct {
	path   string
	status int
}

type memoryObserver struct{ calls []observed }

func (m *memoryObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.calls = append(m.calls, observed{path: path, status: status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &memoryObserver{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	perform(r, http.MethodGet, "/items/42", "")
	perform(r, http.MethodGet, "/missing", "")
	require.Len(t, observer.calls, 2)
	assert.Equal(t, observed{path: "/items/:id", status: http.StatusNoContent}, observer.calls[0])
	assert.Equal(t, observed{path: "unmatched", status: http.StatusNotFound}, observer.calls[1])
}

func TestResponseMetaCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	perform(r, http.MethodGet, "/", "")
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, processingTimeKey)
}

func TestExtractMetaWithoutEntries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	Warn(c, "class is over capacity")
	meta := ExtractMeta(c)
	assert.Equal(t, map[string]interface{}{warningKey: "class is over capacity"}, meta)

	meta["extra"] = 1
	assert.NotContains(t, ExtractMeta(c), "extra")
}
