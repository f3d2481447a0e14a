package order

import (
	"time"

	"github.com/google/uuid"
)

// CartLineRequest is one cart line in an order-creation request.
type CartLineRequest struct {
	ProductID   string `json:"product_id" binding:"required"`
	ProductName string `json:"product_name" binding:"required"`
	Size        string `json:"size"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
	UnitPrice   int64  `json:"unit_price" binding:"required,min=0"`
}

// ShippingInfoRequest is the shipping block of an order-creation request.
type ShippingInfoRequest struct {
	FullName       string `json:"full_name" binding:"required"`
	Phone          string `json:"phone" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	DocumentType   string `json:"document_type" binding:"required"`
	DocumentNumber string `json:"document_number" binding:"required"`
	Address        string `json:"address" binding:"required"`
	City           string `json:"city" binding:"required"`
	Department     string `json:"department" binding:"required"`
	PostalCode     string `json:"postal_code"`
	Neighborhood   string `json:"neighborhood"`
	Notes          string `json:"notes"`
}

// CreateOrderRequest represents a request to create an order. Items are
// optional; when omitted the server-side cart is used instead.
type CreateOrderRequest struct {
	Shipping ShippingInfoRequest `json:"shipping" binding:"required"`
	Items    []CartLineRequest   `json:"items"`
}

// Snapshot converts the request items into a cart snapshot.
func (r *CreateOrderRequest) Snapshot() CartSnapshot {
	snapshot := make(CartSnapshot, 0, len(r.Items))
	for _, item := range r.Items {
		snapshot = append(snapshot, CartLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return snapshot
}

// ShippingInfo converts the request block into the persisted snapshot.
func (r *ShippingInfoRequest) ShippingInfo() ShippingInfo {
	return ShippingInfo{
		FullName:       r.FullName,
		Phone:          r.Phone,
		Email:          r.Email,
		DocumentType:   r.DocumentType,
		DocumentNumber: r.DocumentNumber,
		Address:        r.Address,
		City:           r.City,
		Department:     r.Department,
		PostalCode:     r.PostalCode,
		Neighborhood:   r.Neighborhood,
		Notes:          r.Notes,
	}
}

// CancelOrderRequest represents a request to cancel a pending order.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// TransitionRequest represents an admin status-change request.
type TransitionRequest struct {
	Status Status `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// CommunicationRequest represents a new message on an order thread.
type CommunicationRequest struct {
	Body        string   `json:"body" binding:"required"`
	Internal    bool     `json:"internal"`
	Attachments []string `json:"attachments"`
}

// TrackingRequest represents a new shipping-tracking entry.
type TrackingRequest struct {
	Carrier           string     `json:"carrier" binding:"required"`
	Service           string     `json:"service"`
	TrackingNumber    string     `json:"tracking_number" binding:"required"`
	Description       string     `json:"description"`
	Location          string     `json:"location"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
	Attachments       []string   `json:"attachments"`
}

// Entry converts the request into a tracking entry.
func (r *TrackingRequest) Entry() *TrackingEntry {
	return &TrackingEntry{
		Carrier:           r.Carrier,
		Service:           r.Service,
		TrackingNumber:    r.TrackingNumber,
		Description:       r.Description,
		Location:          r.Location,
		EstimatedDelivery: r.EstimatedDelivery,
		Attachments:       r.Attachments,
	}
}

// Filter represents filters for listing orders.
type Filter struct {
	Status        *Status        `form:"status"`
	PaymentStatus *PaymentStatus `form:"payment_status"`
}

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int `form:"page" binding:"min=1"`
	PageSize int `form:"page_size" binding:"min=1,max=100"`
}

// NewPagination creates pagination with defaults.
func NewPagination() *Pagination {
	return &Pagination{
		Page:     1,
		PageSize: 20,
	}
}

// Offset returns the offset for database queries.
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID            uuid.UUID     `json:"id"`
	OrderNo       string        `json:"order_no"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	CustomerID    uuid.UUID `json:"customer_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`

	Shipping ShippingInfo `json:"shipping"`

	Subtotal     int64  `json:"subtotal"`
	Tax          int64  `json:"tax"`
	ShippingCost int64  `json:"shipping_cost"`
	Total        int64  `json:"total"`
	Currency     string `json:"currency"`

	GatewayTransactionID string `json:"gateway_transaction_id,omitempty"`
	GatewayReferenceCode string `json:"gateway_reference_code,omitempty"`

	// ExpiresAt is set only while the order awaits payment.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []OrderItemResponse `json:"items,omitempty"`
}

// OrderItemResponse represents an order item in API responses.
type OrderItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Size        string    `json:"size,omitempty"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	Amount      int64     `json:"amount"`
}

// ToResponse converts an Order to OrderResponse. The payment window is
// needed to derive the expiry timestamp for pending orders.
func (o *Order) ToResponse(window time.Duration) *OrderResponse {
	resp := &OrderResponse{
		ID:                   o.ID,
		OrderNo:              o.OrderNo,
		Status:               o.Status,
		PaymentStatus:        o.PaymentStatus,
		CustomerID:           o.CustomerID,
		CustomerName:         o.CustomerName,
		CustomerEmail:        o.CustomerEmail,
		CustomerPhone:        o.CustomerPhone,
		Shipping:             o.Shipping,
		Subtotal:             o.Subtotal,
		Tax:                  o.Tax,
		ShippingCost:         o.ShippingCost,
		Total:                o.Total,
		Currency:             o.Currency,
		GatewayTransactionID: o.GatewayTransactionID,
		GatewayReferenceCode: o.GatewayReferenceCode,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}

	if o.IsPending() {
		expires := o.ExpiresAt(window)
		resp.ExpiresAt = &expires
	}

	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}
	return resp
}

// ListResponse is a paginated list envelope.
type ListResponse struct {
	Orders   []*OrderResponse `json:"orders"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// ConflictResponse reports an existing pending order blocking creation.
type ConflictResponse struct {
	Error            string    `json:"error"`
	ExistingOrderID  uuid.UUID `json:"existing_order_id"`
	OrderNo          string    `json:"order_no"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}
