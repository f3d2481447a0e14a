package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casalinda/server/internal/shared/cache"
	"github.com/casalinda/server/internal/shared/config"
	"github.com/casalinda/server/internal/shared/events"
	"github.com/casalinda/server/internal/shared/metrics"
	"github.com/casalinda/server/internal/shared/random"
)

// Locker provides keyed mutual exclusion for order transitions.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Service handles order lifecycle business logic.
type Service struct {
	repo    Repository
	sm      *StateMachine
	guard   *PendingGuard
	locker  Locker
	bus     *events.Bus
	metrics *metrics.Metrics
	cfg     config.OrderConfig
	logger  *zap.Logger
}

// NewService creates a new order service.
func NewService(
	repo Repository,
	guard *PendingGuard,
	locker Locker,
	bus *events.Bus,
	m *metrics.Metrics,
	cfg config.OrderConfig,
	logger *zap.Logger,
) *Service {
	s := &Service{
		repo:    repo,
		sm:      NewStateMachine(),
		guard:   guard,
		locker:  locker,
		bus:     bus,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
	}

	guard.OnExpired(func(o *Order) {
		m.OrdersExpiredTotal.Inc()
		m.OrderTransitionsTotal.WithLabelValues(
			string(StatusPending), string(StatusCancelled), string(ActorSystem)).Inc()
		bus.Publish(events.NewOrderStatusChangedEvent(
			o.ID, o.CustomerID,
			string(StatusPending), string(StatusCancelled), string(ActorSystem),
			expiryNote, true))
	})

	return s
}

// StateMachine exposes the transition rules, mainly for handlers that
// want to surface allowed next steps.
func (s *Service) StateMachine() *StateMachine {
	return s.sm
}

// Window returns the payment window applied to pending orders.
func (s *Service) Window() time.Duration {
	return s.guard.Window()
}

// CreateInput carries everything needed to create an order. The cart
// snapshot and shipping info are copied verbatim into the order and
// frozen there.
type CreateInput struct {
	CustomerID    uuid.UUID
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Shipping      ShippingInfo
	Cart          CartSnapshot
}

// Create creates a pending order from a cart snapshot. The customer must
// not hold another live pending order; an expired one is swept out of the
// way first. Totals are computed once here and never recomputed.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Order, error) {
	if len(input.Cart) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range input.Cart {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: product %s has quantity %d",
				ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
	}

	// Reserve and create run under a customer-scoped lock; two
	// concurrent checkouts would otherwise both pass the guard before
	// either pending row exists.
	release, err := s.locker.Acquire(ctx, "customer:"+input.CustomerID.String())
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			s.metrics.OrderConflictsTotal.Inc()
			return nil, fmt.Errorf("%w: another checkout is in progress", ErrPendingOrderExists)
		}
		return nil, err
	}
	defer release()

	if err := s.guard.Reserve(ctx, input.CustomerID); err != nil {
		if errors.Is(err, ErrPendingOrderExists) {
			s.metrics.OrderConflictsTotal.Inc()
		}
		return nil, err
	}

	subtotal := input.Cart.Subtotal()
	tax := int64(math.Round(float64(subtotal) * s.cfg.TaxRate))
	shipping := s.cfg.ShippingCost
	total := subtotal + tax + shipping

	order := &Order{
		OrderNo:       newOrderNo(),
		CustomerID:    input.CustomerID,
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
		CustomerPhone: input.CustomerPhone,
		Shipping:      input.Shipping,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Subtotal:      subtotal,
		Tax:           tax,
		ShippingCost:  shipping,
		Total:         total,
		Currency:      s.cfg.Currency,
		Version:       1,
	}
	for _, line := range input.Cart {
		order.Items = append(order.Items, OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Size:        line.Size,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      int64(line.Quantity) * line.UnitPrice,
		})
	}

	initial := &StatusHistoryEntry{
		NewStatus: StatusPending,
		Actor:     ActorCustomer,
		Notes:     "Order created",
	}
	if err := s.repo.CreateOrder(ctx, order, initial); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.metrics.OrdersCreatedTotal.Inc()
	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_no", order.OrderNo),
		zap.String("customer_id", order.CustomerID.String()),
		zap.Int64("total", order.Total))

	s.bus.Publish(events.NewOrderStatusChangedEvent(
		order.ID, order.CustomerID,
		"", string(StatusPending), string(ActorCustomer), "", false))

	return order, nil
}

// Get returns the order with items, after applying lazy expiry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.repo.GetOrderWithItems(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAndExpire(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetForCustomer returns the order only when it belongs to the customer.
// Ownership failures surface as not-found so order IDs are not probeable.
func (s *Service) GetForCustomer(ctx context.Context, id, customerID uuid.UUID) (*Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetByReferenceCode resolves a gateway reference to its order, applying
// lazy expiry on the way. A callback for an already-expired order will
// therefore observe it settled as cancelled.
func (s *Service) GetByReferenceCode(ctx context.Context, referenceCode string) (*Order, error) {
	order, err := s.repo.GetOrderByReferenceCode(ctx, referenceCode)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAndExpire(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// PendingOrder returns the customer's live pending order, or
// ErrOrderNotFound if none exists or the last one has expired.
func (s *Service) PendingOrder(ctx context.Context, customerID uuid.UUID) (*Order, error) {
	order, err := s.repo.FindPendingByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAndExpire(ctx, order); err != nil {
		return nil, err
	}
	if !order.IsPending() {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListForCustomer returns the customer's orders, newest first.
func (s *Service) ListForCustomer(ctx context.Context, customerID uuid.UUID, filter *Filter, pagination *Pagination) ([]*Order, int64, error) {
	return s.repo.ListOrdersByCustomer(ctx, customerID, filter, pagination)
}

// List returns all orders matching the filter. Admin only.
func (s *Service) List(ctx context.Context, filter *Filter, pagination *Pagination) ([]*Order, int64, error) {
	return s.repo.ListOrders(ctx, filter, pagination)
}

// Cancel cancels a pending order on behalf of its customer.
func (s *Service) Cancel(ctx context.Context, id, customerID uuid.UUID, notes string) (*Order, error) {
	return s.transition(ctx, id, StatusCancelled, ActorCustomer, notes, func(o *Order) error {
		if o.CustomerID != customerID {
			return ErrOrderNotFound
		}
		if !o.IsPending() {
			return ErrOrderNotPending
		}
		o.PaymentStatus = PaymentCancelled
		return nil
	})
}

// AdminTransition moves an order to an arbitrary non-payment status.
// Payment-driven statuses are refused outright; only a recorded charge
// outcome may settle the payment side of an order.
func (s *Service) AdminTransition(ctx context.Context, id uuid.UUID, to Status, notes string) (*Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if s.sm.PaymentDriven(to) {
		return nil, fmt.Errorf("%w: %s requires a payment outcome", ErrInvalidTransition, to)
	}
	return s.transition(ctx, id, to, ActorAdmin, notes, func(o *Order) error {
		if to == StatusCancelled && o.PaymentStatus == PaymentPending {
			o.PaymentStatus = PaymentCancelled
		}
		return nil
	})
}

// MarkPaymentApproved records an approved charge and moves the order to
// payment_approved. Valid only while the order is pending. The caller
// must already hold the per-order lock via LockForPayment; the lock is
// deliberately not re-acquired here.
func (s *Service) MarkPaymentApproved(ctx context.Context, id uuid.UUID, txID, referenceCode, rawResponse string) (*Order, error) {
	order, err := s.transitionLocked(ctx, id, StatusPaymentApproved, ActorSystem, "Payment approved", func(o *Order) error {
		if !o.IsPending() {
			return ErrOrderNotPending
		}
		o.PaymentStatus = PaymentApproved
		o.GatewayTransactionID = txID
		o.GatewayReferenceCode = referenceCode
		o.GatewayRawResponse = rawResponse
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.NewPaymentApprovedEvent(
		order.ID, order.CustomerID, order.Total, order.Currency,
		txID, referenceCode))
	return order, nil
}

// MarkPaymentRejected records a rejected charge and fails the order.
// Like MarkPaymentApproved it runs under the caller's LockForPayment lock.
func (s *Service) MarkPaymentRejected(ctx context.Context, id uuid.UUID, reasonCode, reasonText, rawResponse string) (*Order, error) {
	order, err := s.transitionLocked(ctx, id, StatusFailed, ActorSystem, rejectionNote(reasonText), func(o *Order) error {
		if !o.IsPending() {
			return ErrOrderNotPending
		}
		o.PaymentStatus = PaymentRejected
		o.GatewayRawResponse = rawResponse
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.NewPaymentRejectedEvent(
		order.ID, order.CustomerID, reasonCode, reasonText))
	return order, nil
}

// RecordGatewayReference attaches the gateway reference to a still-pending
// order, e.g. when the charge came back pending and the final word will
// arrive by callback. The order stays payable. Runs under the caller's
// LockForPayment lock.
func (s *Service) RecordGatewayReference(ctx context.Context, id uuid.UUID, txID, referenceCode, rawResponse string) (*Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.IsPending() {
		return nil, ErrOrderNotPending
	}

	order.GatewayTransactionID = txID
	order.GatewayReferenceCode = referenceCode
	order.GatewayRawResponse = rawResponse
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// LockForPayment takes the per-order lock for the duration of a charge,
// so a double-submitted payment cannot race itself.
func (s *Service) LockForPayment(ctx context.Context, id uuid.UUID) (func(), error) {
	return s.lock(ctx, id)
}

// ExpireSweep cancels every pending order past the payment window. Lazy
// expiry already covers orders that get read; the sweep catches the rest.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.guard.Window())
	orders, err := s.repo.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}

	expired := 0
	for _, o := range orders {
		if err := s.guard.CheckAndExpire(ctx, o); err != nil {
			s.logger.Warn("expire sweep failed for order",
				zap.String("order_id", o.ID.String()),
				zap.Error(err))
			continue
		}
		if o.Status == StatusCancelled {
			expired++
		}
	}
	return expired, nil
}

// History returns the order's status history.
func (s *Service) History(ctx context.Context, orderID uuid.UUID, pagination *Pagination, ascending bool) ([]*StatusHistoryEntry, int64, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListHistory(ctx, orderID, pagination, ascending)
}

// AddCommunication appends a message to the order's thread.
func (s *Service) AddCommunication(ctx context.Context, orderID, senderID uuid.UUID, senderType Actor, body string, internal bool, attachments []string) (*Communication, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}

	comm := &Communication{
		OrderID:     orderID,
		SenderID:    senderID,
		SenderType:  senderType,
		Body:        body,
		Internal:    internal && senderType != ActorCustomer,
		Attachments: attachments,
	}
	if err := s.repo.CreateCommunication(ctx, comm); err != nil {
		return nil, fmt.Errorf("create communication: %w", err)
	}

	s.bus.Publish(events.NewCommunicationCreatedEvent(
		orderID, senderID, string(senderType), comm.Internal))
	return comm, nil
}

// Communications returns the order's message thread. Internal notes are
// filtered out for customers.
func (s *Service) Communications(ctx context.Context, orderID uuid.UUID, viewer Actor, pagination *Pagination, ascending bool) ([]*Communication, int64, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListCommunications(ctx, orderID, viewer == ActorAdmin, pagination, ascending)
}

// MarkCommunicationsRead marks the other side's messages as read.
func (s *Service) MarkCommunicationsRead(ctx context.Context, orderID uuid.UUID, reader Actor) error {
	return s.repo.MarkCommunicationsRead(ctx, orderID, reader)
}

// UnreadCount returns how many messages await the reader on this order.
func (s *Service) UnreadCount(ctx context.Context, orderID uuid.UUID, reader Actor) (int64, error) {
	return s.repo.CountUnreadCommunications(ctx, orderID, reader)
}

// AddTracking appends a shipping-tracking entry. The order must be past
// payment; tracking a pending or failed order makes no sense.
func (s *Service) AddTracking(ctx context.Context, orderID uuid.UUID, entry *TrackingEntry) (*TrackingEntry, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == StatusPending || order.Status == StatusFailed || order.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: cannot track order in status %s", ErrInvalidTransition, order.Status)
	}

	entry.OrderID = orderID
	if err := s.repo.CreateTrackingEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("create tracking entry: %w", err)
	}
	return entry, nil
}

// Tracking returns the order's shipping-tracking entries.
func (s *Service) Tracking(ctx context.Context, orderID uuid.UUID, pagination *Pagination, ascending bool) ([]*TrackingEntry, int64, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListTracking(ctx, orderID, pagination, ascending)
}

// transition runs one guarded status change: take the per-order lock,
// re-read, apply lazy expiry, let prepare veto or mutate, then persist the
// transition with its audit entry.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, actor Actor, notes string, prepare func(o *Order) error) (*Order, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.transitionLocked(ctx, id, to, actor, notes, prepare)
}

// transitionLocked is transition without the lock acquisition, for callers
// that already hold the per-order lock. The locker is non-reentrant, so a
// payment settlement running inside LockForPayment must come through here.
func (s *Service) transitionLocked(ctx context.Context, id uuid.UUID, to Status, actor Actor, notes string, prepare func(o *Order) error) (*Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckAndExpire(ctx, order); err != nil {
		return nil, err
	}
	if prepare != nil {
		if err := prepare(order); err != nil {
			return nil, err
		}
	}

	prev := order.Status
	entry, err := s.sm.Transition(order, to, actor, notes)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateOrderWithHistory(ctx, order, entry); err != nil {
		return nil, fmt.Errorf("persist transition %s -> %s: %w", prev, to, err)
	}

	s.metrics.OrderTransitionsTotal.WithLabelValues(
		string(prev), string(to), string(actor)).Inc()
	s.logger.Info("order transitioned",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(prev)),
		zap.String("to", string(to)),
		zap.String("actor", string(actor)))

	s.bus.Publish(events.NewOrderStatusChangedEvent(
		order.ID, order.CustomerID,
		string(prev), string(to), string(actor), notes, to.IsTerminal()))

	return order, nil
}

func (s *Service) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	return s.locker.Acquire(ctx, "order:"+id.String())
}

func newOrderNo() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), random.UpperAlphaNum(6))
}

func rejectionNote(reason string) string {
	if reason == "" {
		return "Payment rejected"
	}
	return "Payment rejected: " + reason
}
