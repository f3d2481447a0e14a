package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const expiryNote = "Auto-cancelled: payment window expired"

// PendingGuard enforces the single-pending-order rule: a customer may
// hold at most one order awaiting payment at a time, and a pending order
// that outlives the payment window is cancelled on the next touch.
type PendingGuard struct {
	repo    Repository
	sm      *StateMachine
	window  time.Duration
	logger  *zap.Logger
	expired func(o *Order) // optional hook, fired after a lazy expiry
}

// NewPendingGuard creates a guard with the given payment window.
func NewPendingGuard(repo Repository, sm *StateMachine, window time.Duration, logger *zap.Logger) *PendingGuard {
	return &PendingGuard{
		repo:   repo,
		sm:     sm,
		window: window,
		logger: logger,
	}
}

// OnExpired registers a hook invoked after the guard lazily cancels an
// expired order.
func (g *PendingGuard) OnExpired(fn func(o *Order)) {
	g.expired = fn
}

// Reserve verifies the customer has no live pending order. An expired
// pending order is cancelled in place and the reservation proceeds; an
// unexpired one yields a ConflictError carrying the existing order and
// the time left on its window.
func (g *PendingGuard) Reserve(ctx context.Context, customerID uuid.UUID) error {
	existing, err := g.repo.FindPendingByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil
		}
		return err
	}

	if g.isExpired(existing) {
		if err := g.expire(ctx, existing); err != nil {
			return err
		}
		return nil
	}

	return &ConflictError{
		ExistingOrderID: existing.ID,
		OrderNo:         existing.OrderNo,
		Remaining:       g.Remaining(existing),
	}
}

// CheckAndExpire applies lazy expiry to an order on read. When the order
// is pending and past its window it is cancelled and the mutated order is
// returned, so callers always observe the post-expiry state.
func (g *PendingGuard) CheckAndExpire(ctx context.Context, o *Order) error {
	if !g.isExpired(o) {
		return nil
	}
	return g.expire(ctx, o)
}

// Remaining reports how much of the payment window is left. Zero or
// negative means expired.
func (g *PendingGuard) Remaining(o *Order) time.Duration {
	return time.Until(o.CreatedAt.Add(g.window))
}

// Window returns the configured payment window.
func (g *PendingGuard) Window() time.Duration {
	return g.window
}

func (g *PendingGuard) isExpired(o *Order) bool {
	return o.Status == StatusPending &&
		o.PaymentStatus == PaymentPending &&
		g.Remaining(o) <= 0
}

func (g *PendingGuard) expire(ctx context.Context, o *Order) error {
	entry, err := g.sm.Transition(o, StatusCancelled, ActorSystem, expiryNote)
	if err != nil {
		return err
	}
	o.PaymentStatus = PaymentCancelled

	if err := g.repo.UpdateOrderWithHistory(ctx, o, entry); err != nil {
		// Another writer beat us to it. Reload and carry on with
		// whatever state won.
		if errors.Is(err, ErrVersionConflict) {
			fresh, ferr := g.repo.GetOrder(ctx, o.ID)
			if ferr != nil {
				return ferr
			}
			*o = *fresh
			return nil
		}
		return err
	}

	g.logger.Info("pending order expired",
		zap.String("order_id", o.ID.String()),
		zap.String("order_no", o.OrderNo))

	if g.expired != nil {
		g.expired(o)
	}
	return nil
}
