package order

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/casalinda/server/internal/shared/cache"
	"github.com/casalinda/server/internal/shared/config"
	"github.com/casalinda/server/internal/shared/events"
	"github.com/casalinda/server/internal/shared/metrics"
)

// Prometheus collectors register globally; one instance serves the
// whole test binary.
var testMetrics = metrics.New("test_order")

func testOrderConfig() config.OrderConfig {
	return config.OrderConfig{
		ExpiryWindow: testWindow,
		ShippingCost: 15000,
		TaxRate:      0.19,
		Currency:     "cop",
		LockTTL:      10 * time.Second,
	}
}

func newTestService(repo Repository) *Service {
	return newTestServiceWithLocker(repo, stubLocker{})
}

func newTestServiceWithLocker(repo Repository, locker Locker) *Service {
	guard := NewPendingGuard(repo, NewStateMachine(), testWindow, zap.NewNop())
	return NewService(repo, guard, locker, events.NewBus(zap.NewNop()),
		testMetrics, testOrderConfig(), zap.NewNop())
}

func testShipping() ShippingInfo {
	return ShippingInfo{
		FullName:       "Ana María Pérez",
		Phone:          "3001234567",
		Email:          "ana@example.com",
		DocumentType:   "CC",
		DocumentNumber: "1020304050",
		Address:        "Calle 45 # 12-34",
		City:           "Bogotá",
		Department:     "Cundinamarca",
	}
}

func TestCreate_ComputesTotals(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	customerID := uuid.New()

	repo.On("FindPendingByCustomer", mock.Anything, customerID).
		Return(nil, ErrOrderNotFound)

	var created *Order
	repo.On("CreateOrder", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*Order)
		}).Return(nil)

	order, err := svc.Create(context.Background(), CreateInput{
		CustomerID: customerID,
		Shipping:   testShipping(),
		Cart: CartSnapshot{
			{ProductID: "sku-1", ProductName: "Vestido", Size: "M", Quantity: 2, UnitPrice: 40000},
			{ProductID: "sku-2", ProductName: "Blusa", Quantity: 1, UnitPrice: 20000},
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(100000), order.Subtotal)
	assert.Equal(t, int64(19000), order.Tax)
	assert.Equal(t, int64(15000), order.ShippingCost)
	assert.Equal(t, int64(134000), order.Total)
	assert.Equal(t, order.Total, order.Subtotal+order.Tax+order.ShippingCost)
	assert.Equal(t, "cop", order.Currency)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, PaymentPending, order.PaymentStatus)
	assert.Regexp(t, `^ORD-\d{8}-[A-Z0-9]{6}$`, order.OrderNo)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, int64(80000), order.Items[0].Amount)

	assert.Same(t, order, created)
	repo.AssertExpectations(t)
}

func TestCreate_EmptyCart(t *testing.T) {
	svc := newTestService(new(MockRepository))

	_, err := svc.Create(context.Background(), CreateInput{
		CustomerID: uuid.New(),
		Shipping:   testShipping(),
		Cart:       CartSnapshot{},
	})

	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	svc := newTestService(new(MockRepository))

	_, err := svc.Create(context.Background(), CreateInput{
		CustomerID: uuid.New(),
		Shipping:   testShipping(),
		Cart: CartSnapshot{
			{ProductID: "sku-1", ProductName: "Vestido", Quantity: 0, UnitPrice: 40000},
		},
	})

	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCreate_PendingOrderConflict(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	customerID := uuid.New()

	existing := &Order{
		ID:            uuid.New(),
		CustomerID:    customerID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now().Add(-5 * time.Minute),
	}
	repo.On("FindPendingByCustomer", mock.Anything, customerID).
		Return(existing, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		CustomerID: customerID,
		Shipping:   testShipping(),
		Cart: CartSnapshot{
			{ProductID: "sku-1", ProductName: "Vestido", Quantity: 1, UnitPrice: 40000},
		},
	})

	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, existing.ID, conflict.ExistingOrderID)
	repo.AssertNotCalled(t, "CreateOrder")
}

func TestCreate_ConcurrentCheckoutBlocked(t *testing.T) {
	repo := new(MockRepository)
	locker := newMemLocker()
	svc := newTestServiceWithLocker(repo, locker)
	customerID := uuid.New()

	// Another checkout for the same customer is mid-flight.
	release, err := locker.Acquire(context.Background(), "customer:"+customerID.String())
	assert.NoError(t, err)
	defer release()

	_, err = svc.Create(context.Background(), CreateInput{
		CustomerID: customerID,
		Shipping:   testShipping(),
		Cart: CartSnapshot{
			{ProductID: "sku-1", ProductName: "Vestido", Quantity: 1, UnitPrice: 40000},
		},
	})

	assert.ErrorIs(t, err, ErrPendingOrderExists)
	repo.AssertNotCalled(t, "FindPendingByCustomer")
	repo.AssertNotCalled(t, "CreateOrder")
}

func TestCancel_PendingOrder(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	customerID := uuid.New()

	o := &Order{
		ID:            uuid.New(),
		CustomerID:    customerID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
		Version:       1,
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)
	repo.On("UpdateOrderWithHistory", mock.Anything, o, mock.MatchedBy(func(e *StatusHistoryEntry) bool {
		return e.NewStatus == StatusCancelled && e.Actor == ActorCustomer
	})).Return(nil)

	updated, err := svc.Cancel(context.Background(), o.ID, customerID, "changed my mind")

	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, PaymentCancelled, updated.PaymentStatus)
	repo.AssertExpectations(t)
}

func TestCancel_WrongCustomer(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	o := &Order{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)

	_, err := svc.Cancel(context.Background(), o.ID, uuid.New(), "")

	assert.ErrorIs(t, err, ErrOrderNotFound)
	repo.AssertNotCalled(t, "UpdateOrderWithHistory")
}

func TestCancel_NotPending(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)
	customerID := uuid.New()

	o := &Order{
		ID:            uuid.New(),
		CustomerID:    customerID,
		Status:        StatusShipped,
		PaymentStatus: PaymentApproved,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)

	_, err := svc.Cancel(context.Background(), o.ID, customerID, "")

	assert.ErrorIs(t, err, ErrOrderNotPending)
}

func TestMarkPaymentApproved(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	o := &Order{
		ID:            uuid.New(),
		CustomerID:    uuid.New(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)
	repo.On("UpdateOrderWithHistory", mock.Anything, o, mock.MatchedBy(func(e *StatusHistoryEntry) bool {
		return e.NewStatus == StatusPaymentApproved && e.Actor == ActorSystem
	})).Return(nil)

	updated, err := svc.MarkPaymentApproved(context.Background(), o.ID, "txn-1", "ref-1", `{"status":"APROBADA"}`)

	assert.NoError(t, err)
	assert.Equal(t, StatusPaymentApproved, updated.Status)
	assert.Equal(t, PaymentApproved, updated.PaymentStatus)
	assert.Equal(t, "txn-1", updated.GatewayTransactionID)
	assert.Equal(t, "ref-1", updated.GatewayReferenceCode)
	repo.AssertExpectations(t)
}

func TestMarkPaymentApproved_AlreadySettled(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	o := &Order{
		ID:            uuid.New(),
		Status:        StatusPaymentApproved,
		PaymentStatus: PaymentApproved,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)

	_, err := svc.MarkPaymentApproved(context.Background(), o.ID, "txn-2", "ref-2", "")

	assert.ErrorIs(t, err, ErrOrderNotPending)
	repo.AssertNotCalled(t, "UpdateOrderWithHistory")
}

func TestMarkPaymentRejected(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	o := &Order{
		ID:            uuid.New(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)
	repo.On("UpdateOrderWithHistory", mock.Anything, o, mock.MatchedBy(func(e *StatusHistoryEntry) bool {
		return e.NewStatus == StatusFailed &&
			e.Notes == "Payment rejected: Transacción rechazada por fondos insuficientes"
	})).Return(nil)

	updated, err := svc.MarkPaymentRejected(context.Background(), o.ID,
		"51", "Transacción rechazada por fondos insuficientes", "{}")

	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, updated.Status)
	assert.Equal(t, PaymentRejected, updated.PaymentStatus)
	repo.AssertExpectations(t)
}

func TestMarkPaymentApproved_UnderChargeLock(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestServiceWithLocker(repo, newMemLocker())

	o := &Order{
		ID:            uuid.New(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)
	repo.On("UpdateOrderWithHistory", mock.Anything, o, mock.Anything).Return(nil)

	// A charge attempt holds the per-order lock for its whole round trip;
	// settling the outcome must not try to take it a second time.
	release, err := svc.LockForPayment(context.Background(), o.ID)
	assert.NoError(t, err)
	defer release()

	updated, err := svc.MarkPaymentApproved(context.Background(), o.ID, "txn-1", "ref-1", "{}")

	assert.NoError(t, err)
	assert.Equal(t, StatusPaymentApproved, updated.Status)
	assert.Equal(t, PaymentApproved, updated.PaymentStatus)
}

func TestMarkPaymentRejected_UnderChargeLock(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestServiceWithLocker(repo, newMemLocker())

	o := &Order{
		ID:            uuid.New(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)
	repo.On("UpdateOrderWithHistory", mock.Anything, o, mock.Anything).Return(nil)

	release, err := svc.LockForPayment(context.Background(), o.ID)
	assert.NoError(t, err)
	defer release()

	updated, err := svc.MarkPaymentRejected(context.Background(), o.ID, "51", "fondos insuficientes", "{}")

	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, updated.Status)
}

func TestRecordGatewayReference_UnderChargeLock(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestServiceWithLocker(repo, newMemLocker())

	o := &Order{
		ID:            uuid.New(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)
	repo.On("UpdateOrder", mock.Anything, o).Return(nil)

	release, err := svc.LockForPayment(context.Background(), o.ID)
	assert.NoError(t, err)
	defer release()

	updated, err := svc.RecordGatewayReference(context.Background(), o.ID, "txn-9", "ref-9", "{}")

	assert.NoError(t, err)
	assert.Equal(t, "ref-9", updated.GatewayReferenceCode)
}

func TestLockForPayment_SerializesAttempts(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestServiceWithLocker(repo, newMemLocker())
	orderID := uuid.New()

	release, err := svc.LockForPayment(context.Background(), orderID)
	assert.NoError(t, err)

	_, err = svc.LockForPayment(context.Background(), orderID)
	assert.ErrorIs(t, err, cache.ErrLockHeld)

	// A cancel racing the in-flight charge waits its turn too.
	_, err = svc.Cancel(context.Background(), orderID, uuid.New(), "")
	assert.ErrorIs(t, err, cache.ErrLockHeld)

	release()

	release2, err := svc.LockForPayment(context.Background(), orderID)
	assert.NoError(t, err)
	release2()
}

func TestAdminTransition(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	o := &Order{
		ID:            uuid.New(),
		Status:        StatusPaymentApproved,
		PaymentStatus: PaymentApproved,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)
	repo.On("UpdateOrderWithHistory", mock.Anything, o, mock.MatchedBy(func(e *StatusHistoryEntry) bool {
		return e.NewStatus == StatusShipped && e.Actor == ActorAdmin
	})).Return(nil)

	updated, err := svc.AdminTransition(context.Background(), o.ID, StatusShipped, "dispatched")

	assert.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status)
	repo.AssertExpectations(t)
}

func TestAdminTransition_TerminalOrder(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	o := &Order{
		ID:            uuid.New(),
		Status:        StatusCompleted,
		PaymentStatus: PaymentApproved,
		CreatedAt:     time.Now(),
	}
	repo.On("GetOrder", mock.Anything, o.ID).Return(o, nil)

	_, err := svc.AdminTransition(context.Background(), o.ID, StatusProcessing, "")

	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestAdminTransition_PaymentDrivenRefused(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	// Only a recorded charge outcome may settle payment; an admin cannot
	// push an unpaid order into payment_approved or failed by hand.
	for _, to := range []Status{StatusPaymentApproved, StatusFailed} {
		_, err := svc.AdminTransition(context.Background(), uuid.New(), to, "manual")
		assert.ErrorIs(t, err, ErrInvalidTransition, string(to))
	}

	repo.AssertNotCalled(t, "GetOrder")
	repo.AssertNotCalled(t, "UpdateOrderWithHistory")
}

func TestGet_AppliesLazyExpiry(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	o := &Order{
		ID:            uuid.New(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     time.Now().Add(-31 * time.Minute),
	}
	repo.On("GetOrderWithItems", mock.Anything, o.ID).Return(o, nil)
	repo.On("UpdateOrderWithHistory", mock.Anything, o, mock.Anything).Return(nil)

	got, err := svc.Get(context.Background(), o.ID)

	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, PaymentCancelled, got.PaymentStatus)
	repo.AssertExpectations(t)
}

func TestExpireSweep(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	old := time.Now().Add(-45 * time.Minute)
	orders := []*Order{
		{ID: uuid.New(), Status: StatusPending, PaymentStatus: PaymentPending, CreatedAt: old},
		{ID: uuid.New(), Status: StatusPending, PaymentStatus: PaymentPending, CreatedAt: old},
	}
	repo.On("ListPendingCreatedBefore", mock.Anything, mock.Anything).Return(orders, nil)
	repo.On("UpdateOrderWithHistory", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	expired, err := svc.ExpireSweep(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, expired)
	for _, o := range orders {
		assert.Equal(t, StatusCancelled, o.Status)
	}
}
