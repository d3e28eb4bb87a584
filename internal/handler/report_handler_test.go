package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/music-school-api/internal/middleware"
	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/service"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
)

type reportServiceMock struct {
	payments   *models.PaymentReport
	attendance *models.AttendanceReport
	file       *service.ReportFile
	err        error
	lastFilter models.ReportFilter
	lastFormat string
}

func (m *reportServiceMock) Payments(ctx context.Context, filter models.ReportFilter, claims *models.JWTClaims) (*models.PaymentReport, error) {
	m.lastFilter = filter
	return m.payments, m.err
}

func (m *reportServiceMock) Attendance(ctx context.Context, filter models.ReportFilter, claims *models.JWTClaims) (*models.AttendanceReport, error) {
	m.lastFilter = filter
	return m.attendance, m.err
}

func (m *reportServiceMock) RenderPayments(ctx context.Context, filter models.ReportFilter, format string, claims *models.JWTClaims) (*service.ReportFile, error) {
	m.lastFilter, m.lastFormat = filter, format
	return m.file, m.err
}

func (m *reportServiceMock) RenderAttendance(ctx context.Context, filter models.ReportFilter, format string, claims *models.JWTClaims) (*service.ReportFile, error) {
	m.lastFilter, m.lastFormat = filter, format
	return m.file, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestReportHandlerPaymentsParsesFilter(t *testing.T) {
	mockSvc := &reportServiceMock{payments: &models.PaymentReport{Count: 1, TotalAmount: decimal.NewFromInt(100)}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/payments?status=pending&date_from=2024-03-01&course_id=c1&limit=50", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Payments(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", mockSvc.lastFilter.Status)
	assert.Equal(t, "c1", mockSvc.lastFilter.CourseID)
	assert.Equal(t, 50, mockSvc.lastFilter.Limit)
	require.NotNil(t, mockSvc.lastFilter.DateFrom)
	assert.Equal(t, "2024-03-01", mockSvc.lastFilter.DateFrom.Format(dateLayout))
	assert.Contains(t, w.Body.String(), `"total_amount":"100"`)
}

func TestReportHandlerRejectsBadDate(t *testing.T) {
	handler := NewReportHandler(&reportServiceMock{})

	c, w := newGinContext(http.MethodGet, "/reports/attendance?date_to=31-03-2024", nil)
	handler.Attendance(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerDownload(t *testing.T) {
	mockSvc := &reportServiceMock{file: &service.ReportFile{
		Filename:    "attendance_report_20240331_180509.csv",
		ContentType: "text/csv",
		Data:        []byte("student,2024-03-01\n"),
	}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/attendance/download?format=csv&class_id=k1", nil)
	handler.DownloadAttendance(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mockSvc.lastFormat)
	assert.Equal(t, "k1", mockSvc.lastFilter.ClassID)
	assert.Equal(t, `attachment; filename="attendance_report_20240331_180509.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "student,2024-03-01\n", w.Body.String())
}

func TestReportHandlerDownloadUnsupportedFormat(t *testing.T) {
	handler := NewReportHandler(&reportServiceMock{err: appErrors.Clone(appErrors.ErrValidation, "unsupported format")})

	c, w := newGinContext(http.MethodGet, "/reports/payments/download?format=xlsx", nil)
	handler.DownloadPayments(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}
