package handler

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"posledger/internal/apierror"
	"posledger/internal/dto"
	"posledger/internal/infra"
	"posledger/internal/middleware"
	"posledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RegisterHandler struct {
	svc         service.RegisterService
	storagePath string
}

func NewRegisterHandler(svc service.RegisterService, storagePath string) *RegisterHandler {
	return &RegisterHandler{svc: svc, storagePath: storagePath}
}

// Open godoc
// @Summary Opens a new cash register session
// @Tags register
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenRegisterRequest true "Opening data"
// @Success 201 {object} dto.RegisterReport
// @Failure 409 {object} apierror.APIError
// @Router /v1/register/open [post]
func (h *RegisterHandler) Open(c *gin.Context) {
	var req dto.OpenRegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.Open(c.Request.Context(), actorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// RecordMovement godoc
// @Summary Records an income or expense movement in an open register
// @Tags register
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.RecordCashMovementRequest true "Movement data"
// @Success 201 {object} dto.CashMovementResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/register/movements [post]
func (h *RegisterHandler) RecordMovement(c *gin.Context) {
	var req dto.RecordCashMovementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.RecordMovement(c.Request.Context(), actorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close godoc
// @Summary Closes the open session with a blind count declaration
// @Tags register
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CloseRegisterRequest true "Counted amounts per payment method"
// @Success 200 {object} dto.ClosingSummary
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/register/close [post]
func (h *RegisterHandler) Close(c *gin.Context) {
	var req dto.CloseRegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.Close(c.Request.Context(), actorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Reopen godoc
// @Summary Reopens a register closed earlier the same business date
// @Tags register
// @Produce json
// @Security BearerAuth
// @Param id path string true "Register ID"
// @Success 200 {object} dto.RegisterReport
// @Failure 409 {object} apierror.APIError
// @Router /v1/register/{id}/reopen [post]
func (h *RegisterHandler) Reopen(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid ID"))
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.Reopen(c.Request.Context(), actorID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetOpen godoc
// @Summary Returns the currently open session with its movements
// @Tags register
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.RegisterReport
// @Failure 404 {object} apierror.APIError
// @Router /v1/register/open [get]
func (h *RegisterHandler) GetOpen(c *gin.Context) {
	resp, err := h.svc.GetOpen(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Status godoc
// @Summary Tells whether a session is open and if it carried over from a previous day
// @Tags register
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.RegisterStatus
// @Router /v1/register/status [get]
func (h *RegisterHandler) Status(c *gin.Context) {
	resp, err := h.svc.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SuggestedAmount godoc
// @Summary Returns the suggested opening amount (previous close's counted cash)
// @Tags register
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.SuggestedOpeningAmount
// @Router /v1/register/suggested-amount [get]
func (h *RegisterHandler) SuggestedAmount(c *gin.Context) {
	resp, err := h.svc.SuggestedOpeningAmount(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetByID godoc
// @Summary Returns one session report with its movements
// @Tags register
// @Produce json
// @Security BearerAuth
// @Param id path string true "Register ID"
// @Success 200 {object} dto.RegisterReport
// @Failure 404 {object} apierror.APIError
// @Router /v1/register/{id} [get]
func (h *RegisterHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid ID"))
		return
	}
	resp, err := h.svc.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ReportPDF godoc
// @Summary Downloads the closing summary PDF for a closed session
// @Tags register
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Register ID"
// @Success 200 {file} binary
// @Failure 409 {object} apierror.APIError
// @Router /v1/register/{id}/report.pdf [get]
func (h *RegisterHandler) ReportPDF(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid ID"))
		return
	}
	report, err := h.svc.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if report.Status != "closed" {
		c.JSON(http.StatusConflict, apierror.New("Register has not been closed yet"))
		return
	}

	path, err := infra.GenerateClosingReportPDF(report, h.storagePath)
	if err != nil {
		respondError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// History godoc
// @Summary Lists past sessions, optionally filtered by date range
// @Tags register
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /v1/register/history [get]
func (h *RegisterHandler) History(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	reports, total, err := h.svc.History(c.Request.Context(), from, to, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports, "total": total, "page": page, "limit": limit})
}

// Stats godoc
// @Summary Aggregates session statistics over a date range
// @Tags register
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} dto.RegisterStats
// @Router /v1/register/stats [get]
func (h *RegisterHandler) Stats(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}
	resp, err := h.svc.Stats(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// parseDateRange reads optional ?from= and ?to= query dates. Writes the error
// response itself when a date is malformed.
func parseDateRange(c *gin.Context) (from, to *time.Time, ok bool) {
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &from}, {"to", &to}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierror.New("Invalid "+q.name+" date, expected YYYY-MM-DD"))
			return nil, nil, false
		}
		*q.dst = &t
	}
	return from, to, true
}
