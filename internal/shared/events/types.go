package events

import "github.com/google/uuid"

// Event type constants.
const (
	OrderStatusChangedType   = "OrderStatusChanged"
	PaymentApprovedType      = "PaymentApproved"
	PaymentRejectedType      = "PaymentRejected"
	CommunicationCreatedType = "CommunicationCreated"
)

// OrderStatusChangedEvent is emitted on every accepted order status transition.
type OrderStatusChangedEvent struct {
	BaseEvent

	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`

	// PreviousStatus is empty for the initial entry.
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status"`

	// Actor is who drove the transition: customer, admin or system.
	Actor string `json:"actor"`

	// Terminal is true when NewStatus cannot be left again.
	Terminal bool `json:"terminal"`

	Notes string `json:"notes,omitempty"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent.
func NewOrderStatusChangedEvent(orderID, customerID uuid.UUID, prev, next, actor, notes string, terminal bool) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseEvent:      NewBaseEvent(OrderStatusChangedType, orderID, "Order"),
		OrderID:        orderID,
		CustomerID:     customerID,
		PreviousStatus: prev,
		NewStatus:      next,
		Actor:          actor,
		Terminal:       terminal,
		Notes:          notes,
	}
}

// PaymentApprovedEvent is emitted when the processor approves a charge.
type PaymentApprovedEvent struct {
	BaseEvent

	OrderID       uuid.UUID `json:"order_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	TransactionID string    `json:"transaction_id"`
	ReferenceCode string    `json:"reference_code"`
}

// NewPaymentApprovedEvent creates a new PaymentApprovedEvent.
func NewPaymentApprovedEvent(orderID, customerID uuid.UUID, amount int64, currency, transactionID, referenceCode string) *PaymentApprovedEvent {
	return &PaymentApprovedEvent{
		BaseEvent:     NewBaseEvent(PaymentApprovedType, orderID, "Order"),
		OrderID:       orderID,
		CustomerID:    customerID,
		Amount:        amount,
		Currency:      currency,
		TransactionID: transactionID,
		ReferenceCode: referenceCode,
	}
}

// PaymentRejectedEvent is emitted when the processor rejects a charge or
// the call fails in a way that fails the order.
type PaymentRejectedEvent struct {
	BaseEvent

	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	ReasonCode string    `json:"reason_code,omitempty"`
	ReasonText string    `json:"reason_text,omitempty"`
}

// NewPaymentRejectedEvent creates a new PaymentRejectedEvent.
func NewPaymentRejectedEvent(orderID, customerID uuid.UUID, reasonCode, reasonText string) *PaymentRejectedEvent {
	return &PaymentRejectedEvent{
		BaseEvent:  NewBaseEvent(PaymentRejectedType, orderID, "Order"),
		OrderID:    orderID,
		CustomerID: customerID,
		ReasonCode: reasonCode,
		ReasonText: reasonText,
	}
}

// CommunicationCreatedEvent is emitted when a support message is appended
// to an order.
type CommunicationCreatedEvent struct {
	BaseEvent

	OrderID    uuid.UUID `json:"order_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderType string    `json:"sender_type"`
	Internal   bool      `json:"internal"`
}

// NewCommunicationCreatedEvent creates a new CommunicationCreatedEvent.
func NewCommunicationCreatedEvent(orderID, senderID uuid.UUID, senderType string, internal bool) *CommunicationCreatedEvent {
	return &CommunicationCreatedEvent{
		BaseEvent:  NewBaseEvent(CommunicationCreatedType, orderID, "Order"),
		OrderID:    orderID,
		SenderID:   senderID,
		SenderType: senderType,
		Internal:   internal,
	}
}
