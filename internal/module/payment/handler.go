package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/casalinda/server/internal/module/payment/gateway"
	"github.com/casalinda/server/internal/shared/middleware"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes registers customer payment routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/orders/:id/pay", h.PayOrder)
}

// RegisterAdminRoutes registers admin payment routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/orders/:id/payments", h.ListOrderPayments)
}

// PayOrder runs a charge attempt for the customer's pending order.
func (h *Handler) PayOrder(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req PayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.service.PayOrder(c.Request.Context(), orderID, customerID, req.Card())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// ListOrderPayments returns the recorded charge attempts for an order.
func (h *Handler) ListOrderPayments(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	payments, err := h.service.PaymentsForOrder(c.Request.Context(), orderID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var authErr *gateway.AuthError
	switch {
	case errors.As(err, &authErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment service authentication failed"})
	case errors.Is(err, gateway.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment service unavailable"})
	case errors.Is(err, ErrOrderNotPayable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrChargeInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a payment for this order is already in progress"})
	case errors.Is(err, ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	case errors.Is(err, ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
