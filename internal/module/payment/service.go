package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casalinda/server/internal/module/payment/gateway"
	"github.com/casalinda/server/internal/shared/cache"
	"github.com/casalinda/server/internal/shared/metrics"
)

// Service orchestrates charge attempts and callback reconciliation. It is
// the only caller of the gateway client, and every order mutation it
// performs goes through the OrderDirector under the per-order lock.
type Service struct {
	repo    Repository
	gateway *gateway.Client
	orders  OrderDirector
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	gw *gateway.Client,
	orders OrderDirector,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:    repo,
		gateway: gw,
		orders:  orders,
		metrics: m,
		logger:  logger,
	}
}

// Outcome is what a completed PayOrder call reports back to the customer.
type Outcome struct {
	PaymentStatus Status `json:"payment_status"`
	OrderStatus   string `json:"order_status"`

	TransactionID     string `json:"transaction_id,omitempty"`
	ReferenceCode     string `json:"reference_code,omitempty"`
	AuthorizationCode string `json:"authorization_code,omitempty"`

	// ReasonText carries the processor's rejection text verbatim when
	// available, with generic fallback copy otherwise.
	ReasonText string `json:"reason_text,omitempty"`

	// AwaitingConfirmation is true when the processor answered pending
	// and the final word will arrive by callback.
	AwaitingConfirmation bool `json:"awaiting_confirmation"`
}

// PayOrder runs one charge attempt for the customer's pending order:
// authenticate, charge, classify, apply. The per-order lock is held for
// the whole round trip so a double submit cannot race itself into two
// charges.
func (s *Service) PayOrder(ctx context.Context, orderID, customerID uuid.UUID, card gateway.CardData) (*Outcome, error) {
	release, err := s.orders.LockForPayment(ctx, orderID)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, ErrChargeInProgress
		}
		return nil, err
	}
	defer release()

	order, err := s.orders.GetOrderForCustomer(ctx, orderID, customerID)
	if err != nil {
		return nil, err
	}
	if !order.IsPayable() {
		return nil, fmt.Errorf("%w: status=%s payment_status=%s",
			ErrOrderNotPayable, order.Status, order.PaymentStatus)
	}

	token, err := s.gateway.Authenticate(ctx)
	if err != nil {
		// Auth failure is fatal for this attempt but never charges the
		// card, so the order stays payable.
		var authErr *gateway.AuthError
		if errors.As(err, &authErr) {
			s.logger.Error("gateway authentication rejected",
				zap.String("order_id", orderID.String()),
				zap.Int("status", authErr.StatusCode))
			return nil, authErr
		}
		return nil, err
	}

	reference := order.OrderNo
	result := s.gateway.Charge(ctx, token, &gateway.ChargeRequest{
		Amount:     order.Total,
		Currency:   order.Currency,
		Reference:  reference,
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID.String(),
		Card:       card,
		Customer: gateway.CustomerData{
			Name:           order.CustomerName,
			Email:          order.CustomerEmail,
			Phone:          order.CustomerPhone,
			DocumentType:   order.DocumentType,
			DocumentNumber: order.DocumentNumber,
		},
	})

	s.metrics.ChargesTotal.WithLabelValues(string(result.Outcome)).Inc()
	return s.apply(ctx, order, result)
}

// apply turns a normalized charge result into the matching order
// transition and payment record.
func (s *Service) apply(ctx context.Context, order *OrderInfo, result *gateway.ChargeResult) (*Outcome, error) {
	record := &Payment{
		OrderID:       order.ID,
		Amount:        order.Total,
		Currency:      order.Currency,
		StatusText:    result.StatusText,
		TransactionID: result.TransactionID,
		ReferenceCode: result.ReferenceCode,
		RawResponse:   result.RawPayload,
	}

	var outcome *Outcome

	switch result.Outcome {
	case gateway.OutcomeApproved:
		updated, err := s.orders.MarkPaymentApproved(ctx, order.ID,
			result.TransactionID, result.ReferenceCode, result.RawPayload)
		if err != nil {
			return nil, err
		}
		record.Status = StatusApproved
		record.AuthorizationCode = result.AuthorizationCode
		outcome = &Outcome{
			PaymentStatus:     StatusApproved,
			OrderStatus:       updated.Status,
			TransactionID:     result.TransactionID,
			ReferenceCode:     result.ReferenceCode,
			AuthorizationCode: result.AuthorizationCode,
		}

	case gateway.OutcomeRejected, gateway.OutcomeError:
		reason := result.ReasonText
		if reason == "" {
			reason = "the payment could not be processed"
		}
		updated, err := s.orders.MarkPaymentRejected(ctx, order.ID,
			result.ReasonCode, reason, result.RawPayload)
		if err != nil {
			return nil, err
		}
		record.Status = StatusRejected
		record.ReasonCode = result.ReasonCode
		record.ReasonText = reason
		record.GatewayErrored = result.Outcome == gateway.OutcomeError
		outcome = &Outcome{
			PaymentStatus: StatusRejected,
			OrderStatus:   updated.Status,
			TransactionID: result.TransactionID,
			ReferenceCode: result.ReferenceCode,
			ReasonText:    reason,
		}

	case gateway.OutcomePending:
		// The processor has not decided yet. The order stays payable
		// only in the sense that its slot is still held; resolution
		// arrives via callback.
		updated, err := s.orders.RecordGatewayReference(ctx, order.ID,
			result.TransactionID, result.ReferenceCode, result.RawPayload)
		if err != nil {
			return nil, err
		}
		record.Status = StatusPending
		outcome = &Outcome{
			PaymentStatus:        StatusPending,
			OrderStatus:          updated.Status,
			TransactionID:        result.TransactionID,
			ReferenceCode:        result.ReferenceCode,
			AwaitingConfirmation: true,
		}

	default:
		return nil, fmt.Errorf("unhandled charge outcome %q", result.Outcome)
	}

	// The transition is the source of truth; the attempt record is
	// best-effort audit.
	if err := s.repo.CreatePayment(ctx, record); err != nil {
		s.logger.Error("failed to record payment attempt",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("charge attempt settled",
		zap.String("order_id", order.ID.String()),
		zap.String("outcome", string(record.Status)),
		zap.Bool("gateway_errored", record.GatewayErrored))

	return outcome, nil
}

// CallbackInput is the identifying content of a processor callback.
type CallbackInput struct {
	TransactionID string
	ReferenceCode string
	StatusText    string
	RawPayload    string
}

// HandleCallback is the idempotent reconciliation entry point for
// asynchronous processor confirmations. The same delivery processed twice,
// or a callback arriving after the order already settled, is a logged
// no-op; only a still-pending order gets exactly one terminal transition.
func (s *Service) HandleCallback(ctx context.Context, input CallbackInput) error {
	key := EventKey(input.TransactionID, input.ReferenceCode, input.StatusText)

	if existing, err := s.repo.GetEventByKey(ctx, key); err == nil {
		s.logger.Info("duplicate gateway callback ignored",
			zap.String("event_key", key),
			zap.String("order_id", existing.OrderID.String()))
		s.metrics.CallbacksTotal.WithLabelValues("duplicate").Inc()
		return nil
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return err
	}

	order, err := s.orders.GetOrderByReferenceCode(ctx, input.ReferenceCode)
	if err != nil {
		s.metrics.CallbacksTotal.WithLabelValues("unknown_reference").Inc()
		return fmt.Errorf("%w: %s", ErrUnknownReference, input.ReferenceCode)
	}

	event := &GatewayEvent{
		EventKey:      key,
		OrderID:       order.ID,
		TransactionID: input.TransactionID,
		ReferenceCode: input.ReferenceCode,
		StatusText:    input.StatusText,
		RawPayload:    input.RawPayload,
	}

	if order.IsSettled() {
		s.logger.Info("callback for settled order recorded as no-op",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_status", order.PaymentStatus))
		s.metrics.CallbacksTotal.WithLabelValues("noop").Inc()
		return s.repo.CreateEvent(ctx, event)
	}

	release, err := s.orders.LockForPayment(ctx, order.ID)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			// A charge attempt holds the lock right now; the processor
			// will redeliver.
			return ErrChargeInProgress
		}
		return err
	}
	defer release()

	// Re-read under the lock; a racing charge may have settled the order.
	order, err = s.orders.GetOrderByReferenceCode(ctx, input.ReferenceCode)
	if err != nil {
		return err
	}
	if order.IsSettled() {
		s.metrics.CallbacksTotal.WithLabelValues("noop").Inc()
		return s.repo.CreateEvent(ctx, event)
	}

	switch gateway.Classify(input.StatusText) {
	case gateway.OutcomeApproved:
		if _, err := s.orders.MarkPaymentApproved(ctx, order.ID,
			input.TransactionID, input.ReferenceCode, input.RawPayload); err != nil {
			return err
		}
		event.Applied = true
		s.metrics.CallbacksTotal.WithLabelValues("approved").Inc()

	case gateway.OutcomeRejected, gateway.OutcomeError:
		if _, err := s.orders.MarkPaymentRejected(ctx, order.ID,
			"", input.StatusText, input.RawPayload); err != nil {
			return err
		}
		event.Applied = true
		s.metrics.CallbacksTotal.WithLabelValues("rejected").Inc()

	case gateway.OutcomePending:
		// Still undecided; keep waiting.
		s.metrics.CallbacksTotal.WithLabelValues("pending").Inc()
	}

	return s.repo.CreateEvent(ctx, event)
}

// PaymentsForOrder returns the recorded charge attempts for an order.
func (s *Service) PaymentsForOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	return s.repo.ListPaymentsByOrder(ctx, orderID)
}
