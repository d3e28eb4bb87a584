package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/music-school-api/internal/models"
	appErrors "github.com/noah-isme/music-school-api/pkg/errors"
	"github.com/noah-isme/music-school-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, req models.MarkAttendanceRequest, claims *models.JWTClaims, meta models.RequestMeta) (*models.AttendanceRecord, error)
	BulkMark(ctx context.Context, classID string, req models.BulkAttendanceRequest, claims *models.JWTClaims, meta models.RequestMeta) (*models.BulkAttendanceResult, error)
	List(ctx context.Context, filter models.AttendanceFilter, claims *models.JWTClaims) ([]models.AttendanceDetail, *models.Pagination, error)
	StudentHistory(ctx context.Context, studentID string, filter models.AttendanceFilter, claims *models.JWTClaims) ([]models.AttendanceDetail, *models.Pagination, error)
	ClassSheet(ctx context.Context, classID string, date time.Time, claims *models.JWTClaims) ([]models.AttendanceDetail, error)
}

// AttendanceHandler exposes attendance marking and history.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

func attendanceFilterFromQuery(c *gin.Context) (models.AttendanceFilter, error) {
	var filter models.AttendanceFilter
	filter.Page, filter.PageSize = pageParams(c)
	filter.ClassID = c.Query("class_id")
	filter.StudentID = c.Query("student_id")
	filter.EnrollmentID = c.Query("enrollment_id")
	filter.Status = models.AttendanceStatus(strings.ToUpper(c.Query("status")))
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")
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

// Mark godoc
// @Summary Mark attendance
// @Description Records one enrollment on one date; marking again overwrites
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.MarkAttendanceRequest true "Mark"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req models.MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.service.Mark(c.Request.Context(), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkMark godoc
// @Summary Mark a class sheet
// @Description Students without an enrollment in the class are skipped and listed
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.BulkAttendanceRequest true "Sheet"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/attendance [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	var req models.BulkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.BulkMark(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List attendance
// @Tags Attendance
// @Produce json
// @Param class_id query string false "Class"
// @Param student_id query string false "Student"
// @Param status query string false "PRESENT, LATE, ABSENT or EXCUSED"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter, err := attendanceFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// StudentHistory godoc
// @Summary Attendance history of a student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	filter, err := attendanceFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.StudentHistory(c.Request.Context(), c.Param("id"), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// ClassSheet godoc
// @Summary Attendance sheet of a class on a date
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param date query string true "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/attendance [get]
func (h *AttendanceHandler) ClassSheet(c *gin.Context) {
	date, err := dateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	if date == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required"))
		return
	}
	items, err := h.service.ClassSheet(c.Request.Context(), c.Param("id"), *date, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
