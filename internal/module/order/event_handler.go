package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casalinda/server/internal/shared/events"
)

// EventHandler turns payment and lifecycle events into automatic support
// messages on the order thread, so the customer sees a record of what
// happened without anyone typing it.
type EventHandler struct {
	repo   Repository
	logger *zap.Logger
}

// NewEventHandler creates a new order event handler.
func NewEventHandler(repo Repository, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		repo:   repo,
		logger: logger,
	}
}

// Handles returns the list of event types this handler can process.
func (h *EventHandler) Handles() []string {
	return []string{
		events.PaymentApprovedType,
		events.PaymentRejectedType,
		events.OrderStatusChangedType,
	}
}

// Handle processes the given event.
func (h *EventHandler) Handle(event events.Event) error {
	switch e := event.(type) {
	case *events.PaymentApprovedEvent:
		return h.notify(e.OrderID,
			fmt.Sprintf("Your payment of %d %s was approved.", e.Amount, e.Currency))
	case *events.PaymentRejectedEvent:
		body := "Your payment could not be processed."
		if e.ReasonText != "" {
			body = fmt.Sprintf("Your payment was declined: %s", e.ReasonText)
		}
		return h.notify(e.OrderID, body)
	case *events.OrderStatusChangedEvent:
		return h.handleStatusChanged(e)
	default:
		h.logger.Warn("unhandled event type",
			zap.String("event_type", event.EventType()),
		)
		return nil
	}
}

// handleStatusChanged posts a message when the engine cancels an order on
// its own, which only happens when the payment window runs out. Other
// system transitions are payment outcomes and carry their own messages;
// customer and admin actions speak for themselves.
func (h *EventHandler) handleStatusChanged(event *events.OrderStatusChangedEvent) error {
	if event.Actor != string(ActorSystem) || event.NewStatus != string(StatusCancelled) {
		return nil
	}
	return h.notify(event.OrderID,
		"Your order was cancelled because the payment window expired.")
}

func (h *EventHandler) notify(orderID uuid.UUID, body string) error {
	comm := &Communication{
		OrderID:    orderID,
		SenderID:   uuid.Nil,
		SenderType: ActorSystem,
		Body:       body,
	}
	if err := h.repo.CreateCommunication(context.Background(), comm); err != nil {
		h.logger.Error("failed to record automatic message",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Compile-time check that EventHandler implements events.Handler.
var _ events.Handler = (*EventHandler)(nil)
