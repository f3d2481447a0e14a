package order

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the fulfillment status of an order.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPaymentApproved Status = "payment_approved"
	StatusProcessing      Status = "processing"
	StatusReadyToShip     Status = "ready_to_ship"
	StatusShipped         Status = "shipped"
	StatusInTransit       Status = "in_transit"
	StatusDelivered       Status = "delivered"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
	StatusReturned        Status = "returned"
)

// IsTerminal returns true if no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// Valid returns true if s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaymentApproved, StatusProcessing, StatusReadyToShip,
		StatusShipped, StatusInTransit, StatusDelivered, StatusCompleted,
		StatusFailed, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// PaymentStatus represents the payment state of an order, tracked
// separately from the fulfillment status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsFinal returns true once the payment can no longer change.
func (p PaymentStatus) IsFinal() bool {
	return p == PaymentApproved || p == PaymentRejected || p == PaymentCancelled
}

// Actor identifies who drove a change on an order.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
	ActorSystem   Actor = "system"
)

// ShippingInfo is the shipping snapshot captured at order creation.
// It is never mutated afterward; shipping changes require a new order.
type ShippingInfo struct {
	FullName       string `json:"full_name" gorm:"not null"`
	Phone          string `json:"phone" gorm:"not null"`
	Email          string `json:"email" gorm:"not null"`
	DocumentType   string `json:"document_type" gorm:"not null"`
	DocumentNumber string `json:"document_number" gorm:"not null"`
	Address        string `json:"address" gorm:"not null"`
	City           string `json:"city" gorm:"not null"`
	Department     string `json:"department" gorm:"not null"`
	PostalCode     string `json:"postal_code,omitempty"`
	Neighborhood   string `json:"neighborhood,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Order is the persisted record of a checkout attempt: shipping snapshot,
// line items and monetary totals.
type Order struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderNo    string    `json:"order_no" gorm:"uniqueIndex;not null"`
	CustomerID uuid.UUID `json:"customer_id" gorm:"type:uuid;not null;index"`

	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`

	Shipping ShippingInfo `json:"shipping" gorm:"embedded;embeddedPrefix:shipping_"`

	Status        Status        `json:"status" gorm:"not null;default:pending;index"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"not null;default:pending;index"`

	// Monetary values are integer minor currency units.
	// total == subtotal + tax + shipping_cost always holds.
	Subtotal     int64  `json:"subtotal"`
	Tax          int64  `json:"tax"`
	ShippingCost int64  `json:"shipping_cost"`
	Total        int64  `json:"total"`
	Currency     string `json:"currency" gorm:"default:cop"`

	// Gateway correlation. RawResponse is opaque, kept for audit only.
	GatewayTransactionID string `json:"gateway_transaction_id,omitempty"`
	GatewayReferenceCode string `json:"gateway_reference_code,omitempty" gorm:"index"`
	GatewayRawResponse   string `json:"-"`

	// Version backs the optimistic-concurrency check on updates.
	Version int64 `json:"-" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// IsPending returns true while the order awaits payment.
func (o *Order) IsPending() bool {
	return o.Status == StatusPending && o.PaymentStatus == PaymentPending
}

// ExpiresAt returns the moment the pending-order slot lapses.
func (o *Order) ExpiresAt(window time.Duration) time.Time {
	return o.CreatedAt.Add(window)
}

// OrderItem is an immutable copy of one cart line at creation time.
// Unit prices are never recomputed, even if catalog prices change.
type OrderItem struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID     uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductID   string    `json:"product_id" gorm:"not null"`
	ProductName string    `json:"product_name"`
	Size        string    `json:"size,omitempty"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	UnitPrice   int64     `json:"unit_price"`
	Amount      int64     `json:"amount"` // quantity * unit_price
}

// TableName returns the database table name.
func (OrderItem) TableName() string {
	return "order_items"
}

// CartLine is one entry of a cart snapshot.
type CartLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Size        string `json:"size,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

// CartSnapshot is an immutable copy of the customer's cart taken at
// order-creation time. Later cart mutations never affect an existing order.
type CartSnapshot []CartLine

// Subtotal returns the sum of quantity * unit price over all lines.
func (s CartSnapshot) Subtotal() int64 {
	var sum int64
	for _, line := range s {
		sum += int64(line.Quantity) * line.UnitPrice
	}
	return sum
}

// StatusHistoryEntry is one append-only audit record per accepted transition.
type StatusHistoryEntry struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`

	// PreviousStatus is nil for the initial entry.
	PreviousStatus *Status `json:"previous_status,omitempty"`
	NewStatus      Status  `json:"new_status" gorm:"not null"`

	Notes string `json:"notes,omitempty"`
	Actor Actor  `json:"actor" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (StatusHistoryEntry) TableName() string {
	return "order_status_history"
}

// Communication is one append-only customer/support message on an order.
type Communication struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`

	SenderID   uuid.UUID `json:"sender_id" gorm:"type:uuid;not null"`
	SenderType Actor     `json:"sender_type" gorm:"not null"`
	Body       string    `json:"body" gorm:"not null"`

	// Internal messages are visible to admins only.
	Internal bool       `json:"internal" gorm:"default:false"`
	Read     bool       `json:"read" gorm:"default:false"`
	ReadAt   *time.Time `json:"read_at,omitempty"`

	// Attachments holds object-storage keys.
	Attachments []string `json:"attachments,omitempty" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (Communication) TableName() string {
	return "order_communications"
}

// TrackingEntry is one shipping-tracking record on a dispatched order.
type TrackingEntry struct {
	ID      uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`

	Carrier        string `json:"carrier" gorm:"not null"`
	Service        string `json:"service,omitempty"`
	TrackingNumber string `json:"tracking_number" gorm:"not null"`
	Description    string `json:"description,omitempty"`
	Location       string `json:"location,omitempty"`

	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`

	Attachments []string `json:"attachments,omitempty" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (TrackingEntry) TableName() string {
	return "order_tracking"
}
