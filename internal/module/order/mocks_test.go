package order

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/casalinda/server/internal/shared/cache"
)

// --- Mock implementations ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateOrder(ctx context.Context, order *Order, initial *StatusHistoryEntry) error {
	args := m.Called(ctx, order, initial)
	return args.Error(0)
}

func (m *MockRepository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetOrderWithItems(ctx context.Context, id uuid.UUID) (*Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetOrderByReferenceCode(ctx context.Context, ref string) (*Order, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) FindPendingByCustomer(ctx context.Context, customerID uuid.UUID) (*Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, filter *Filter, pagination *Pagination) ([]*Order, int64, error) {
	args := m.Called(ctx, customerID, filter, pagination)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) ListOrders(ctx context.Context, filter *Filter, pagination *Pagination) ([]*Order, int64, error) {
	args := m.Called(ctx, filter, pagination)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*Order, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Order), args.Error(1)
}

func (m *MockRepository) UpdateOrder(ctx context.Context, order *Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockRepository) UpdateOrderWithHistory(ctx context.Context, order *Order, entry *StatusHistoryEntry) error {
	args := m.Called(ctx, order, entry)
	return args.Error(0)
}

func (m *MockRepository) CreateHistoryEntry(ctx context.Context, entry *StatusHistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) ListHistory(ctx context.Context, orderID uuid.UUID, pagination *Pagination, ascending bool) ([]*StatusHistoryEntry, int64, error) {
	args := m.Called(ctx, orderID, pagination, ascending)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*StatusHistoryEntry), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) CreateCommunication(ctx context.Context, comm *Communication) error {
	args := m.Called(ctx, comm)
	return args.Error(0)
}

func (m *MockRepository) ListCommunications(ctx context.Context, orderID uuid.UUID, includeInternal bool, pagination *Pagination, ascending bool) ([]*Communication, int64, error) {
	args := m.Called(ctx, orderID, includeInternal, pagination, ascending)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*Communication), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) MarkCommunicationsRead(ctx context.Context, orderID uuid.UUID, readerType Actor) error {
	args := m.Called(ctx, orderID, readerType)
	return args.Error(0)
}

func (m *MockRepository) CountUnreadCommunications(ctx context.Context, orderID uuid.UUID, readerType Actor) (int64, error) {
	args := m.Called(ctx, orderID, readerType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) CreateTrackingEntry(ctx context.Context, entry *TrackingEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) ListTracking(ctx context.Context, orderID uuid.UUID, pagination *Pagination, ascending bool) ([]*TrackingEntry, int64, error) {
	args := m.Called(ctx, orderID, pagination, ascending)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*TrackingEntry), args.Get(1).(int64), args.Error(2)
}

// stubLocker hands out locks unconditionally.
type stubLocker struct{}

func (stubLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// memLocker mirrors the Redis locker semantics: non-blocking and
// non-reentrant, one holder per key.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, cache.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}
