package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Module errors.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrTerminalState      = errors.New("order is in a terminal status")
	ErrEmptyCart          = errors.New("cart snapshot is empty")
	ErrInvalidQuantity    = errors.New("line item quantity must be at least 1")
	ErrVersionConflict    = errors.New("order was modified concurrently")
	ErrPendingOrderExists = errors.New("customer already has a pending order")
)

// ConflictError is returned when the pending-order guard finds an existing
// unexpired pending order for the customer. It carries enough detail for
// the caller to continue or cancel that order.
type ConflictError struct {
	ExistingOrderID uuid.UUID
	OrderNo         string
	Remaining       time.Duration
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("pending order %s already exists (%s remaining)",
		e.ExistingOrderID, e.Remaining.Round(time.Second))
}

// Unwrap lets errors.Is match ErrPendingOrderExists.
func (e *ConflictError) Unwrap() error {
	return ErrPendingOrderExists
}
