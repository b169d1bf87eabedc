package handler

import (
	"net/http"

	"posledger/internal/dto"
	"posledger/internal/repository"

	"github.com/gin-gonic/gin"
)

type PaymentMethodsHandler struct{ repo repository.PaymentMethodRepository }

func NewPaymentMethodsHandler(repo repository.PaymentMethodRepository) *PaymentMethodsHandler {
	return &PaymentMethodsHandler{repo: repo}
}

// List godoc
// @Summary Lists the active payment method catalog
// @Tags payment-methods
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.PaymentMethodResponse
// @Router /v1/payment-methods [get]
func (h *PaymentMethodsHandler) List(c *gin.Context) {
	methods, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]dto.PaymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		out = append(out, dto.PaymentMethodResponse{
			ID:       m.ID.String(),
			Code:     m.Code,
			Name:     m.Name,
			IsActive: m.IsActive,
		})
	}
	c.JSON(http.StatusOK, out)
}
