package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/music-school-api/internal/models"
	"github.com/noah-isme/music-school-api/pkg/response"
)

type tuitionService interface {
	List(ctx context.Context, filter models.ObligationFilter, claims *models.JWTClaims) ([]models.ObligationDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ObligationDetail, error)
	CreateObligation(ctx context.Context, req models.CreateObligationRequest) (*models.TuitionObligation, error)
	ApplyPayment(ctx context.Context, obligationID string, req models.PaymentRequest, actorID string, meta models.RequestMeta) (*models.PaymentResult, error)
	Summary(ctx context.Context, obligationID string) (*models.SettlementSummary, error)
	Payments(ctx context.Context, obligationID string) ([]models.PartialPayment, error)
	Cancel(ctx context.Context, obligationID string, actorID string, meta models.RequestMeta) (*models.SettlementSummary, error)
}

// TuitionHandler exposes obligations and partial payments.
type TuitionHandler struct {
	service tuitionService
}

// NewTuitionHandler constructs the handler.
func NewTuitionHandler(svc tuitionService) *TuitionHandler {
	return &TuitionHandler{service: svc}
}

func obligationFilterFromQuery(c *gin.Context) models.ObligationFilter {
	var filter models.ObligationFilter
	filter.Page, filter.PageSize = pageParams(c)
	filter.EnrollmentID = c.Query("enrollment_id")
	filter.StudentID = c.Query("student_id")
	filter.ClassID = c.Query("class_id")
	filter.Status = models.ObligationStatus(strings.ToUpper(c.Query("status")))
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")
	return filter
}

// List godoc
// @Summary List tuition obligations
// @Tags Tuition
// @Produce json
// @Param status query string false "PENDING, PAID or CANCELLED"
// @Param student_id query string false "Student"
// @Param class_id query string false "Class"
// @Success 200 {object} response.Envelope
// @Router /obligations [get]
func (h *TuitionHandler) List(c *gin.Context) {
	items, pagination, err := h.service.List(c.Request.Context(), obligationFilterFromQuery(c), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Mine godoc
// @Summary Obligations of the current student
// @Tags Tuition
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/obligations [get]
func (h *TuitionHandler) Mine(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter := obligationFilterFromQuery(c)
	filter.StudentID = claims.UserID
	items, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get obligation
// @Tags Tuition
// @Produce json
// @Param id path string true "Obligation ID"
// @Success 200 {object} response.Envelope
// @Router /obligations/{id} [get]
func (h *TuitionHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create obligation
// @Description Amount defaults to the course price of the enrollment
// @Tags Tuition
// @Accept json
// @Produce json
// @Param payload body models.CreateObligationRequest true "Obligation"
// @Success 201 {object} response.Envelope
// @Router /obligations [post]
func (h *TuitionHandler) Create(c *gin.Context) {
	var req models.CreateObligationRequest
	if !bindJSON(c, &req) {
		return
	}
	obligation, err := h.service.CreateObligation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, obligation)
}

// ApplyPayment godoc
// @Summary Apply a partial payment
// @Description Appends a payment under a row lock and returns the new settlement
// @Tags Tuition
// @Accept json
// @Produce json
// @Param id path string true "Obligation ID"
// @Param payload body models.PaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /obligations/{id}/payments [post]
func (h *TuitionHandler) ApplyPayment(c *gin.Context) {
	var req models.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.ApplyPayment(c.Request.Context(), c.Param("id"), req, actorID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Payments godoc
// @Summary Payment history
// @Tags Tuition
// @Produce json
// @Param id path string true "Obligation ID"
// @Success 200 {object} response.Envelope
// @Router /obligations/{id}/payments [get]
func (h *TuitionHandler) Payments(c *gin.Context) {
	payments, err := h.service.Payments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// Summary godoc
// @Summary Settlement summary
// @Description Total, paid so far, outstanding, credit and status
// @Tags Tuition
// @Produce json
// @Param id path string true "Obligation ID"
// @Success 200 {object} response.Envelope
// @Router /obligations/{id}/summary [get]
func (h *TuitionHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Cancel godoc
// @Summary Cancel obligation
// @Tags Tuition
// @Produce json
// @Param id path string true "Obligation ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /obligations/{id}/cancel [post]
func (h *TuitionHandler) Cancel(c *gin.Context) {
	summary, err := h.service.Cancel(c.Request.Context(), c.Param("id"), actorID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
