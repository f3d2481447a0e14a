package order

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/casalinda/server/internal/shared/middleware"
)

// Handler handles HTTP requests for orders.
type Handler struct {
	service *Service
	cart    CartSource
}

// NewHandler creates a new order handler. The cart source backs order
// creation when a request carries no line items of its own.
func NewHandler(service *Service, cart CartSource) *Handler {
	return &Handler{service: service, cart: cart}
}

// RegisterProtectedRoutes registers customer order routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/pending", h.GetPendingOrder)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.GET("/:id/history", h.GetHistory)
		orders.GET("/:id/messages", h.ListMessages)
		orders.POST("/:id/messages", h.CreateMessage)
		orders.POST("/:id/messages/read", h.MarkMessagesRead)
		orders.GET("/:id/tracking", h.GetTracking)
	}
}

// RegisterAdminRoutes registers admin order routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.GET("", h.AdminListOrders)
		orders.GET("/:id", h.AdminGetOrder)
		orders.POST("/:id/status", h.AdminTransition)
		orders.GET("/:id/history", h.AdminGetHistory)
		orders.GET("/:id/messages", h.AdminListMessages)
		orders.POST("/:id/messages", h.AdminCreateMessage)
		orders.POST("/:id/messages/read", h.AdminMarkMessagesRead)
		orders.POST("/:id/tracking", h.AdminCreateTracking)
		orders.GET("/:id/tracking", h.AdminGetTracking)
		orders.POST("/expire-sweep", h.ExpireSweep)
	}
}

// CreateOrder creates a pending order from the request's cart snapshot.
func (h *Handler) CreateOrder(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot := req.Snapshot()
	fromCart := false
	if len(snapshot) == 0 && h.cart != nil {
		var err error
		snapshot, err = h.cart.GetSnapshot(c.Request.Context(), customerID)
		if err != nil {
			h.handleError(c, err)
			return
		}
		fromCart = true
	}

	order, err := h.service.Create(c.Request.Context(), CreateInput{
		CustomerID:    customerID,
		CustomerName:  req.Shipping.FullName,
		CustomerEmail: middleware.GetEmail(c),
		CustomerPhone: req.Shipping.Phone,
		Shipping:      req.Shipping.ShippingInfo(),
		Cart:          snapshot,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	if fromCart {
		// The snapshot is already frozen on the order; a failed clear
		// only leaves a stale cart behind.
		_ = h.cart.Clear(c.Request.Context(), customerID)
	}

	c.JSON(http.StatusCreated, gin.H{
		"order": order.ToResponse(h.service.Window()),
	})
}

// ListOrders lists the authenticated customer's orders.
func (h *Handler) ListOrders(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	filter, pagination, ok := bindListQuery(c)
	if !ok {
		return
	}

	orders, total, err := h.service.ListForCustomer(c.Request.Context(), customerID, filter, pagination)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.listResponse(orders, total, pagination))
}

// GetPendingOrder returns the customer's live pending order, if any.
func (h *Handler) GetPendingOrder(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	order, err := h.service.PendingOrder(c.Request.Context(), customerID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order.ToResponse(h.service.Window()),
	})
}

// GetOrder returns one of the customer's orders.
func (h *Handler) GetOrder(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	orderID, ok := parseID(c)
	if !ok {
		return
	}

	order, err := h.service.GetForCustomer(c.Request.Context(), orderID, customerID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order.ToResponse(h.service.Window()),
	})
}

// CancelOrder cancels the customer's pending order.
func (h *Handler) CancelOrder(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	orderID, ok := parseID(c)
	if !ok {
		return
	}

	// Body is optional; a missing reason is fine.
	var req CancelOrderRequest
	_ = c.ShouldBindJSON(&req)

	order, err := h.service.Cancel(c.Request.Context(), orderID, customerID, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order.ToResponse(h.service.Window()),
	})
}

// GetHistory returns the status history of one of the customer's orders.
func (h *Handler) GetHistory(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	orderID, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.service.GetForCustomer(c.Request.Context(), orderID, customerID); err != nil {
		h.handleError(c, err)
		return
	}

	h.respondHistory(c, orderID)
}

// ListMessages returns the order's message thread, without internal notes.
func (h *Handler) ListMessages(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	orderID, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.service.GetForCustomer(c.Request.Context(), orderID, customerID); err != nil {
		h.handleError(c, err)
		return
	}

	h.respondMessages(c, orderID, ActorCustomer)
}

// CreateMessage appends a customer message to the order thread.
func (h *Handler) CreateMessage(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	orderID, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.service.GetForCustomer(c.Request.Context(), orderID, customerID); err != nil {
		h.handleError(c, err)
		return
	}

	var req CommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comm, err := h.service.AddCommunication(c.Request.Context(), orderID, customerID,
		ActorCustomer, req.Body, false, req.Attachments)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": comm})
}

// MarkMessagesRead marks support messages on the order as read.
func (h *Handler) MarkMessagesRead(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	orderID, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.service.GetForCustomer(c.Request.Context(), orderID, customerID); err != nil {
		h.handleError(c, err)
		return
	}

	if err := h.service.MarkCommunicationsRead(c.Request.Context(), orderID, ActorCustomer); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetTracking returns the order's shipping-tracking entries.
func (h *Handler) GetTracking(c *gin.Context) {
	customerID := middleware.GetCustomerID(c)

	orderID, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.service.GetForCustomer(c.Request.Context(), orderID, customerID); err != nil {
		h.handleError(c, err)
		return
	}

	h.respondTracking(c, orderID)
}

// --- Admin handlers ---

// AdminListOrders lists all orders matching the filter.
func (h *Handler) AdminListOrders(c *gin.Context) {
	filter, pagination, ok := bindListQuery(c)
	if !ok {
		return
	}

	orders, total, err := h.service.List(c.Request.Context(), filter, pagination)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.listResponse(orders, total, pagination))
}

// AdminGetOrder returns any order by ID.
func (h *Handler) AdminGetOrder(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}

	order, err := h.service.Get(c.Request.Context(), orderID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order.ToResponse(h.service.Window()),
	})
}

// AdminTransition moves an order to a new fulfillment status.
func (h *Handler) AdminTransition(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.AdminTransition(c.Request.Context(), orderID, req.Status, req.Notes)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":               order.ToResponse(h.service.Window()),
		"allowed_transitions": h.service.StateMachine().AllowedTransitions(order.Status),
	})
}

// AdminGetHistory returns the status history of any order.
func (h *Handler) AdminGetHistory(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}
	h.respondHistory(c, orderID)
}

// AdminListMessages returns the full thread, internal notes included.
func (h *Handler) AdminListMessages(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}
	h.respondMessages(c, orderID, ActorAdmin)
}

// AdminCreateMessage appends an admin message or internal note.
func (h *Handler) AdminCreateMessage(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}

	var req CommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comm, err := h.service.AddCommunication(c.Request.Context(), orderID,
		middleware.GetCustomerID(c), ActorAdmin, req.Body, req.Internal, req.Attachments)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": comm})
}

// AdminMarkMessagesRead marks customer messages on the order as read.
func (h *Handler) AdminMarkMessagesRead(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.MarkCommunicationsRead(c.Request.Context(), orderID, ActorAdmin); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AdminCreateTracking appends a shipping-tracking entry.
func (h *Handler) AdminCreateTracking(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}

	var req TrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.service.AddTracking(c.Request.Context(), orderID, req.Entry())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"tracking": entry})
}

// AdminGetTracking returns the tracking entries of any order.
func (h *Handler) AdminGetTracking(c *gin.Context) {
	orderID, ok := parseID(c)
	if !ok {
		return
	}
	h.respondTracking(c, orderID)
}

// ExpireSweep cancels every pending order past the payment window.
func (h *Handler) ExpireSweep(c *gin.Context) {
	expired, err := h.service.ExpireSweep(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

// --- Helpers ---

func (h *Handler) respondHistory(c *gin.Context, orderID uuid.UUID) {
	pagination := bindPagination(c)
	entries, total, err := h.service.History(c.Request.Context(), orderID, pagination, bindSort(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"history":   entries,
		"total":     total,
		"page":      pagination.Page,
		"page_size": pagination.PageSize,
	})
}

func (h *Handler) respondMessages(c *gin.Context, orderID uuid.UUID, viewer Actor) {
	pagination := bindPagination(c)
	comms, total, err := h.service.Communications(c.Request.Context(), orderID, viewer, pagination, bindSort(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	unread, err := h.service.UnreadCount(c.Request.Context(), orderID, viewer)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":  comms,
		"total":     total,
		"unread":    unread,
		"page":      pagination.Page,
		"page_size": pagination.PageSize,
	})
}

func (h *Handler) respondTracking(c *gin.Context, orderID uuid.UUID) {
	pagination := bindPagination(c)
	entries, total, err := h.service.Tracking(c.Request.Context(), orderID, pagination, bindSort(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tracking":  entries,
		"total":     total,
		"page":      pagination.Page,
		"page_size": pagination.PageSize,
	})
}

func (h *Handler) listResponse(orders []*Order, total int64, pagination *Pagination) *ListResponse {
	resp := &ListResponse{
		Orders:   make([]*OrderResponse, 0, len(orders)),
		Total:    total,
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, o.ToResponse(h.service.Window()))
	}
	return resp
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, ConflictResponse{
			Error:            "a pending order already exists",
			ExistingOrderID:  conflict.ExistingOrderID,
			OrderNo:          conflict.OrderNo,
			RemainingSeconds: int64(conflict.Remaining.Seconds()),
		})
		return
	}

	switch {
	case errors.Is(err, ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrOrderNotPending), errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrTerminalState), errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrPendingOrderExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return uuid.Nil, false
	}
	return id, true
}

func bindListQuery(c *gin.Context) (*Filter, *Pagination, bool) {
	var filter Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return &filter, bindPagination(c), true
}

// bindSort reads the sort query param. Audit logs default to oldest-first.
func bindSort(c *gin.Context) bool {
	return c.DefaultQuery("sort", "asc") != "desc"
}

func bindPagination(c *gin.Context) *Pagination {
	pagination := NewPagination()
	if err := c.ShouldBindQuery(pagination); err != nil {
		return NewPagination()
	}
	if pagination.Page < 1 {
		pagination.Page = 1
	}
	if pagination.PageSize < 1 || pagination.PageSize > 100 {
		pagination.PageSize = 20
	}
	return pagination
}
