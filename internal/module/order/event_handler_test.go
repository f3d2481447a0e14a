package order

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/casalinda/server/internal/shared/events"
)

func TestEventHandler_PaymentApprovedPostsMessage(t *testing.T) {
	repo := new(MockRepository)
	h := NewEventHandler(repo, zap.NewNop())
	orderID := uuid.New()

	repo.On("CreateCommunication", mock.Anything, mock.MatchedBy(func(c *Communication) bool {
		return c.OrderID == orderID && c.SenderType == ActorSystem &&
			c.Body == "Your payment of 134000 cop was approved." && !c.Internal
	})).Return(nil)

	err := h.Handle(events.NewPaymentApprovedEvent(
		orderID, uuid.New(), 134000, "cop", "txn-1", "ref-1"))

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestEventHandler_PaymentRejectedIncludesReason(t *testing.T) {
	repo := new(MockRepository)
	h := NewEventHandler(repo, zap.NewNop())
	orderID := uuid.New()

	repo.On("CreateCommunication", mock.Anything, mock.MatchedBy(func(c *Communication) bool {
		return c.Body == "Your payment was declined: fondos insuficientes"
	})).Return(nil)

	err := h.Handle(events.NewPaymentRejectedEvent(
		orderID, uuid.New(), "51", "fondos insuficientes"))

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestEventHandler_ExpiryPostsMessage(t *testing.T) {
	repo := new(MockRepository)
	h := NewEventHandler(repo, zap.NewNop())
	orderID := uuid.New()

	repo.On("CreateCommunication", mock.Anything, mock.MatchedBy(func(c *Communication) bool {
		return c.OrderID == orderID && c.SenderType == ActorSystem
	})).Return(nil)

	err := h.Handle(events.NewOrderStatusChangedEvent(
		orderID, uuid.New(), "pending", "cancelled", "system", "payment window expired", true))

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestEventHandler_PaymentFailureTransitionIsSilent(t *testing.T) {
	repo := new(MockRepository)
	h := NewEventHandler(repo, zap.NewNop())

	// The decline already posts its own message via PaymentRejected; the
	// accompanying status change must not add an expiry notice on top.
	err := h.Handle(events.NewOrderStatusChangedEvent(
		uuid.New(), uuid.New(), "pending", "failed", "system", "Payment rejected", true))

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "CreateCommunication")
}

func TestEventHandler_AdminTransitionIsSilent(t *testing.T) {
	repo := new(MockRepository)
	h := NewEventHandler(repo, zap.NewNop())

	err := h.Handle(events.NewOrderStatusChangedEvent(
		uuid.New(), uuid.New(), "processing", "shipped", "admin", "", false))

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "CreateCommunication")
}
