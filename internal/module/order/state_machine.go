package order

import "fmt"

// StateMachine validates and executes order status transitions.
//
// Fulfillment transitions are deliberately permissive: an administrator may
// move an order from any non-terminal status to any later step without an
// adjacency check (the storefront allows skipping intermediate fulfillment
// steps). The two hard rules are that terminal statuses can never be left
// and that payment-driven statuses are only reachable from pending.
type StateMachine struct {
	// paymentDriven statuses may only be entered from StatusPending.
	paymentDriven map[Status]bool
}

// NewStateMachine creates a new order state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		paymentDriven: map[Status]bool{
			StatusPaymentApproved: true,
			StatusFailed:          true,
		},
	}
}

// PaymentDriven reports whether the status is only ever entered through
// a recorded payment outcome.
func (sm *StateMachine) PaymentDriven(to Status) bool {
	return sm.paymentDriven[to]
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusPending || to == from {
		return false
	}
	if sm.paymentDriven[to] && from != StatusPending {
		return false
	}
	return true
}

// Transition applies a status change to the order and returns the audit
// entry for it. ErrTerminalState is returned when the order already sits
// in a terminal status; ErrInvalidTransition for any other refusal.
func (sm *StateMachine) Transition(o *Order, to Status, actor Actor, notes string) (*StatusHistoryEntry, error) {
	if o.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot leave %s", ErrTerminalState, o.Status)
	}
	if !sm.CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, to)
	}

	prev := o.Status
	o.Status = to

	return &StatusHistoryEntry{
		OrderID:        o.ID,
		PreviousStatus: &prev,
		NewStatus:      to,
		Actor:          actor,
		Notes:          notes,
	}, nil
}

// AllowedTransitions returns every status reachable from `from`.
func (sm *StateMachine) AllowedTransitions(from Status) []Status {
	all := []Status{
		StatusPaymentApproved, StatusProcessing, StatusReadyToShip,
		StatusShipped, StatusInTransit, StatusDelivered, StatusCompleted,
		StatusFailed, StatusCancelled, StatusReturned,
	}
	var allowed []Status
	for _, to := range all {
		if sm.CanTransition(from, to) {
			allowed = append(allowed, to)
		}
	}
	return allowed
}
