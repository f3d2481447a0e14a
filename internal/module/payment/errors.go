package payment

import "errors"

// Module errors.
var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrOrderNotPayable  = errors.New("order cannot be paid in its current state")
	ErrChargeInProgress = errors.New("a charge for this order is already in progress")
	ErrUnknownReference = errors.New("callback references an unknown order")
)
