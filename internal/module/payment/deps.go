package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrOrderNotFound must be matched (via errors.Is) by OrderDirector
// implementations when the order does not exist or belongs to someone else.
var ErrOrderNotFound = errors.New("order not found")

// Payment-relevant status constants, mirroring the order module.
const (
	orderStatusPending   = "pending"
	paymentStatusPending = "pending"
)

// OrderInfo is a slim view of order data needed by payment processing.
type OrderInfo struct {
	ID         uuid.UUID
	OrderNo    string
	CustomerID uuid.UUID

	Status        string
	PaymentStatus string

	Total    int64
	Currency string

	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	DocumentType   string
	DocumentNumber string

	ReferenceCode string
}

// IsPayable returns true while the order still awaits a charge.
func (o *OrderInfo) IsPayable() bool {
	return o.Status == orderStatusPending && o.PaymentStatus == paymentStatusPending
}

// IsSettled returns true once the payment outcome can no longer change.
func (o *OrderInfo) IsSettled() bool {
	return o.PaymentStatus != paymentStatusPending
}

// OrderDirector is the order-side contract payment processing consumes.
// It is defined here, on the consumer side, so the payment module never
// imports order internals.
type OrderDirector interface {
	// GetOrderForCustomer loads an order scoped to its owner, applying
	// lazy expiry on the way.
	GetOrderForCustomer(ctx context.Context, orderID, customerID uuid.UUID) (*OrderInfo, error)

	// GetOrderByReferenceCode resolves a gateway reference to an order.
	GetOrderByReferenceCode(ctx context.Context, referenceCode string) (*OrderInfo, error)

	// LockForPayment serializes charge attempts per order. The lock is
	// non-reentrant; the settlement methods below expect the caller to
	// hold it and never take it themselves.
	LockForPayment(ctx context.Context, orderID uuid.UUID) (func(), error)

	// MarkPaymentApproved settles the order as paid. Call only while
	// holding the LockForPayment lock.
	MarkPaymentApproved(ctx context.Context, orderID uuid.UUID, transactionID, referenceCode, rawResponse string) (*OrderInfo, error)

	// MarkPaymentRejected fails the order. Call only while holding the
	// LockForPayment lock.
	MarkPaymentRejected(ctx context.Context, orderID uuid.UUID, reasonCode, reasonText, rawResponse string) (*OrderInfo, error)

	// RecordGatewayReference attaches gateway correlation fields to a
	// still-pending order awaiting callback confirmation. Call only while
	// holding the LockForPayment lock.
	RecordGatewayReference(ctx context.Context, orderID uuid.UUID, transactionID, referenceCode, rawResponse string) (*OrderInfo, error)
}
