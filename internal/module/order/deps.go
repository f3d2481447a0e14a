package order

import (
	"context"

	"github.com/google/uuid"
)

// CartSource supplies the customer's server-side cart when an order
// request does not carry its own line items. Defined here, on the
// consumer side, so the order module never imports cart internals.
type CartSource interface {
	// GetSnapshot returns an immutable copy of the customer's cart.
	GetSnapshot(ctx context.Context, customerID uuid.UUID) (CartSnapshot, error)

	// Clear empties the cart after a successful order creation.
	Clear(ctx context.Context, customerID uuid.UUID) error
}
