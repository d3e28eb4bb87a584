package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/internal/service"
	"github.com/noah-isme/music-school-api/pkg/response"
)

type reportService interface {
	Payments(ctx context.Context, filter models.ReportFilter, claims *models.JWTClaims) (*models.PaymentReport, error)
	Attendance(ctx context.Context, filter models.ReportFilter, claims *models.JWTClaims) (*models.AttendanceReport, error)
	RenderPayments(ctx context.Context, filter models.ReportFilter, format string, claims *models.JWTClaims) (*service.ReportFile, error)
	RenderAttendance(ctx context.Context, filter models.ReportFilter, format string, claims *models.JWTClaims) (*service.ReportFile, error)
}

// ReportHandler exposes the payment and attendance reports.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

func reportFilterFromQuery(c *gin.Context) (models.ReportFilter, error) {
	filter := models.ReportFilter{
		ClassID:   c.Query("class_id"),
		CourseID:  c.Query("course_id"),
		TeacherID: c.Query("teacher_id"),
		Status:    strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		Search:    c.Query("search"),
	}
	if raw := c.Query("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	from, err := dateQuery(c, "date_from")
	if err != nil {
		return filter, err
	}
	to, err := dateQuery(c, "date_to")
	if err != nil {
		return filter, err
	}
	filter.DateFrom, filter.DateTo = from, to
	return filter, nil
}

// Payments godoc
// @Summary Payments report
// @Description Obligations with paid and outstanding amounts plus per-status totals
// @Tags Reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param status query string false "PENDING, PAID or CANCELLED"
// @Param course_id query string false "Course"
// @Param search query string false "Student name or username"
// @Success 200 {object} response.Envelope
// @Router /reports/payments [get]
func (h *ReportHandler) Payments(c *gin.Context) {
	filter, err := reportFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.Payments(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Attendance godoc
// @Summary Attendance report
// @Description Student by date grid with totals
// @Tags Reports
// @Produce json
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param class_id query string false "Class"
// @Param status query string false "Attendance status"
// @Success 200 {object} response.Envelope
// @Router /reports/attendance [get]
func (h *ReportHandler) Attendance(c *gin.Context) {
	filter, err := reportFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.Attendance(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// DownloadPayments godoc
// @Summary Download payments report
// @Tags Reports
// @Produce application/pdf,text/csv
// @Param format query string false "pdf or csv"
// @Success 200 {file} file
// @Router /reports/payments/download [get]
func (h *ReportHandler) DownloadPayments(c *gin.Context) {
	h.download(c, h.service.RenderPayments)
}

// DownloadAttendance godoc
// @Summary Download attendance report
// @Tags Reports
// @Produce application/pdf,text/csv
// @Param format query string false "pdf or csv"
// @Success 200 {file} file
// @Router /reports/attendance/download [get]
func (h *ReportHandler) DownloadAttendance(c *gin.Context) {
	h.download(c, h.service.RenderAttendance)
}

type renderFunc func(ctx context.Context, filter models.ReportFilter, format string, claims *models.JWTClaims) (*service.ReportFile, error)

func (h *ReportHandler) download(c *gin.Context, render renderFunc) {
	filter, err := reportFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := render(c.Request.Context(), filter, c.Query("format"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
