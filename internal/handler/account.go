package handler

import (
	"net/http"

	"posledger/internal/apierror"
	"posledger/internal/dto"
	"posledger/internal/middleware"
	"posledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AccountHandler struct{ svc service.AccountService }

func NewAccountHandler(svc service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func customerIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("customerId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid customer ID"))
		return uuid.Nil, false
	}
	return id, true
}

// Create godoc
// @Summary Opens a credit account for a customer (idempotent)
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param customerId path string true "Customer ID"
// @Success 201 {object} dto.AccountResponse
// @Router /v1/accounts/{customerId} [post]
func (h *AccountHandler) Create(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetOrCreate(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get godoc
// @Summary Returns a customer's credit account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param customerId path string true "Customer ID"
// @Success 200 {object} dto.AccountResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/accounts/{customerId} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetAccount(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Balance godoc
// @Summary Returns the current balance (cache-backed)
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param customerId path string true "Customer ID"
// @Success 200 {object} map[string]interface{}
// @Router /v1/accounts/{customerId}/balance [get]
func (h *AccountHandler) Balance(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	balance, err := h.svc.GetBalance(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer_id": customerID, "balance": balance})
}

// ApplyMovement godoc
// @Summary Appends a ledger movement (charge, payment, adjustment, discount, interest)
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param customerId path string true "Customer ID"
// @Param body body dto.ApplyMovementRequest true "Movement data"
// @Success 201 {object} dto.AccountMovementResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.APIError
// @Router /v1/accounts/{customerId}/movements [post]
func (h *AccountHandler) ApplyMovement(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	var req dto.ApplyMovementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.ApplyMovement(c.Request.Context(), actorID, customerID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	// A duplicate reference returns the previously created movement.
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// Surcharge godoc
// @Summary Applies a percentage or fixed interest surcharge on the balance
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param customerId path string true "Customer ID"
// @Param body body dto.SurchargeRequest true "Surcharge data"
// @Success 201 {object} dto.AccountMovementResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/accounts/{customerId}/surcharge [post]
func (h *AccountHandler) Surcharge(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	var req dto.SurchargeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	actorID, _ := uuid.Parse(claims.UserID)

	resp, err := h.svc.ApplySurcharge(c.Request.Context(), actorID, customerID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListMovements godoc
// @Summary Lists ledger movements, newest first
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param customerId path string true "Customer ID"
// @Param movement_type query string false "Filter by type"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Router /v1/accounts/{customerId}/movements [get]
func (h *AccountHandler) ListMovements(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	var filters dto.MovementFilters
	if !bindQueryAndValidate(c, &filters) {
		return
	}

	movs, total, err := h.svc.ListMovements(c.Request.Context(), customerID, filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": movs, "total": total})
}

// Statement godoc
// @Summary Returns the account statement with totals and position
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param customerId path string true "Customer ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} dto.AccountStatement
// @Router /v1/accounts/{customerId}/statement [get]
func (h *AccountHandler) Statement(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	resp, err := h.svc.Statement(c.Request.Context(), customerID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update godoc
// @Summary Updates credit limit, payment term or status
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param customerId path string true "Customer ID"
// @Param body body dto.UpdateAccountRequest true "Fields to update"
// @Success 200 {object} dto.AccountResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/accounts/{customerId} [patch]
func (h *AccountHandler) Update(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	var req dto.UpdateAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	resp, err := h.svc.UpdateAccount(c.Request.Context(), customerID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// List godoc
// @Summary Lists accounts filtered by status, debt or overdue state
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param has_debt query bool false "Only accounts with positive balance"
// @Param overdue query bool false "Only overdue accounts"
// @Success 200 {object} map[string]interface{}
// @Router /v1/accounts [get]
func (h *AccountHandler) List(c *gin.Context) {
	var filters dto.AccountFilters
	if !bindQueryAndValidate(c, &filters) {
		return
	}

	accounts, total, err := h.svc.ListAccounts(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts, "total": total})
}

// Debtors godoc
// @Summary Lists accounts with outstanding debt, highest first
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.AccountResponse
// @Router /v1/accounts/debtors [get]
func (h *AccountHandler) Debtors(c *gin.Context) {
	resp, err := h.svc.Debtors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stats godoc
// @Summary Aggregates portfolio statistics
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.AccountStats
// @Router /v1/accounts/stats [get]
func (h *AccountHandler) Stats(c *gin.Context) {
	resp, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// OverdueAlerts godoc
// @Summary Lists overdue accounts for supervision follow-up
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.OverdueAlert
// @Router /v1/accounts/overdue-alerts [get]
func (h *AccountHandler) OverdueAlerts(c *gin.Context) {
	resp, err := h.svc.OverdueAlerts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecalculateOverdue godoc
// @Summary Forces the overdue recalculation normally run by the cron
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /v1/accounts/recalculate-overdue [post]
func (h *AccountHandler) RecalculateOverdue(c *gin.Context) {
	updated, suspended, err := h.svc.RecalculateOverdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "suspended": suspended})
}
