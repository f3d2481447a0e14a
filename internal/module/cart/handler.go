package cart

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casalinda/server/internal/shared/middleware"
)

// Handler handles HTTP requests for carts.
type Handler struct {
	service *Service
}

// NewHandler creates a new cart handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes registers cart routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	cart := r.Group("/cart")
	{
		cart.GET("", h.GetCart)
		cart.POST("/items", h.AddItem)
		cart.PUT("/items", h.UpdateItem)
		cart.DELETE("/items", h.RemoveItem)
		cart.DELETE("", h.ClearCart)
	}
}

// AddItemRequest represents a request to add an item to the cart.
type AddItemRequest struct {
	ProductID   string `json:"product_id" binding:"required"`
	ProductName string `json:"product_name" binding:"required"`
	Size        string `json:"size"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
	UnitPrice   int64  `json:"unit_price" binding:"required,min=0"`
}

// UpdateItemRequest represents a quantity change for one cart line.
type UpdateItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// RemoveItemRequest identifies one cart line to remove.
type RemoveItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Size      string `json:"size"`
}

// GetCart returns the customer's cart.
func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.service.Get(c.Request.Context(), middleware.GetCustomerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(cart))
}

// AddItem adds an item to the cart.
func (h *Handler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := h.service.AddItem(c.Request.Context(), middleware.GetCustomerID(c), Item{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		Size:        req.Size,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(cart))
}

// UpdateItem sets the quantity of one cart line.
func (h *Handler) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := h.service.UpdateQuantity(c.Request.Context(),
		middleware.GetCustomerID(c), req.ProductID, req.Size, req.Quantity)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(cart))
}

// RemoveItem removes one line from the cart.
func (h *Handler) RemoveItem(c *gin.Context) {
	var req RemoveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := h.service.RemoveItem(c.Request.Context(),
		middleware.GetCustomerID(c), req.ProductID, req.Size)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(cart))
}

// ClearCart empties the customer's cart.
func (h *Handler) ClearCart(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context(), middleware.GetCustomerID(c)); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) response(cart *Cart) gin.H {
	return gin.H{
		"cart":     cart,
		"subtotal": cart.Subtotal(),
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found in cart"})
	case errors.Is(err, ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
