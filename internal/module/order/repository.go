package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for order data access.
// History, communication and tracking entries are append-only; only the
// Order row itself is ever updated.
type Repository interface {
	// Order operations
	CreateOrder(ctx context.Context, order *Order, initial *StatusHistoryEntry) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderWithItems(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByReferenceCode(ctx context.Context, ref string) (*Order, error)
	FindPendingByCustomer(ctx context.Context, customerID uuid.UUID) (*Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, filter *Filter, pagination *Pagination) ([]*Order, int64, error)
	ListOrders(ctx context.Context, filter *Filter, pagination *Pagination) ([]*Order, int64, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*Order, error)
	UpdateOrder(ctx context.Context, order *Order) error
	UpdateOrderWithHistory(ctx context.Context, order *Order, entry *StatusHistoryEntry) error

	// Status history
	CreateHistoryEntry(ctx context.Context, entry *StatusHistoryEntry) error
	ListHistory(ctx context.Context, orderID uuid.UUID, pagination *Pagination, ascending bool) ([]*StatusHistoryEntry, int64, error)

	// Communications
	CreateCommunication(ctx context.Context, comm *Communication) error
	ListCommunications(ctx context.Context, orderID uuid.UUID, includeInternal bool, pagination *Pagination, ascending bool) ([]*Communication, int64, error)
	MarkCommunicationsRead(ctx context.Context, orderID uuid.UUID, readerType Actor) error
	CountUnreadCommunications(ctx context.Context, orderID uuid.UUID, readerType Actor) (int64, error)

	// Shipping tracking
	CreateTrackingEntry(ctx context.Context, entry *TrackingEntry) error
	ListTracking(ctx context.Context, orderID uuid.UUID, pagination *Pagination, ascending bool) ([]*TrackingEntry, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// --- Order Operations ---

func (r *repository) CreateOrder(ctx context.Context, order *Order, initial *StatusHistoryEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		initial.OrderID = order.ID
		return tx.Create(initial).Error
	})
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetOrderWithItems(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderByReferenceCode resolves either the processor's reference code
// or our own order number; callbacks may carry either, depending on
// whether the original charge response ever reached us.
func (r *repository) GetOrderByReferenceCode(ctx context.Context, ref string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Where("gateway_reference_code = ? OR order_no = ?", ref, ref).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindPendingByCustomer(ctx context.Context, customerID uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND payment_status = ?", customerID, PaymentPending).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, filter *Filter, pagination *Pagination) ([]*Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&Order{}).Where("customer_id = ?", customerID)
	return r.listOrders(query, filter, pagination)
}

func (r *repository) ListOrders(ctx context.Context, filter *Filter, pagination *Pagination) ([]*Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&Order{})
	return r.listOrders(query, filter, pagination)
}

func (r *repository) listOrders(query *gorm.DB, filter *Filter, pagination *Pagination) ([]*Order, int64, error) {
	var orders []*Order
	var total int64

	if filter != nil {
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.PaymentStatus != nil {
			query = query.Where("payment_status = ?", *filter.PaymentStatus)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if pagination != nil {
		query = query.Offset(pagination.Offset()).Limit(pagination.PageSize)
	}

	if err := query.Preload("Items").Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *repository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*Order, error) {
	var orders []*Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND created_at < ?",
			StatusPending, PaymentPending, cutoff).
		Find(&orders).Error
	return orders, err
}

// UpdateOrder persists the order with an optimistic version check.
// ErrVersionConflict is returned when another writer got there first.
func (r *repository) UpdateOrder(ctx context.Context, order *Order) error {
	return r.updateOrder(r.db.WithContext(ctx), order)
}

func (r *repository) updateOrder(tx *gorm.DB, order *Order) error {
	currentVersion := order.Version
	order.Version++

	result := tx.Model(&Order{}).
		Where("id = ? AND version = ?", order.ID, currentVersion).
		Select("status", "payment_status", "gateway_transaction_id",
			"gateway_reference_code", "gateway_raw_response", "version", "updated_at").
		Updates(order)
	if result.Error != nil {
		order.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		order.Version = currentVersion
		return ErrVersionConflict
	}
	return nil
}

// UpdateOrderWithHistory persists a status change and its audit entry in
// one transaction. The transition is the source of truth; the entry rides
// with it so neither can land without the other.
func (r *repository) UpdateOrderWithHistory(ctx context.Context, order *Order, entry *StatusHistoryEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.updateOrder(tx, order); err != nil {
			return err
		}
		entry.OrderID = order.ID
		return tx.Create(entry).Error
	})
}

// --- Status History ---

func (r *repository) CreateHistoryEntry(ctx context.Context, entry *StatusHistoryEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, orderID uuid.UUID, pagination *Pagination, ascending bool) ([]*StatusHistoryEntry, int64, error) {
	var entries []*StatusHistoryEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&StatusHistoryEntry{}).Where("order_id = ?", orderID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pagination != nil {
		query = query.Offset(pagination.Offset()).Limit(pagination.PageSize)
	}
	if err := query.Order(orderBy("created_at", ascending)).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// --- Communications ---

func (r *repository) CreateCommunication(ctx context.Context, comm *Communication) error {
	return r.db.WithContext(ctx).Create(comm).Error
}

func (r *repository) ListCommunications(ctx context.Context, orderID uuid.UUID, includeInternal bool, pagination *Pagination, ascending bool) ([]*Communication, int64, error) {
	var comms []*Communication
	var total int64

	query := r.db.WithContext(ctx).Model(&Communication{}).Where("order_id = ?", orderID)
	if !includeInternal {
		query = query.Where("internal = ?", false)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pagination != nil {
		query = query.Offset(pagination.Offset()).Limit(pagination.PageSize)
	}
	if err := query.Order(orderBy("created_at", ascending)).Find(&comms).Error; err != nil {
		return nil, 0, err
	}
	return comms, total, nil
}

// MarkCommunicationsRead marks messages sent by the other side as read.
func (r *repository) MarkCommunicationsRead(ctx context.Context, orderID uuid.UUID, readerType Actor) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&Communication{}).
		Where("order_id = ? AND sender_type <> ? AND read = ?", orderID, readerType, false).
		Updates(map[string]interface{}{"read": true, "read_at": now}).Error
}

func (r *repository) CountUnreadCommunications(ctx context.Context, orderID uuid.UUID, readerType Actor) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&Communication{}).
		Where("order_id = ? AND sender_type <> ? AND read = ?", orderID, readerType, false)
	if readerType == ActorCustomer {
		query = query.Where("internal = ?", false)
	}
	err := query.Count(&count).Error
	return count, err
}

// --- Shipping Tracking ---

func (r *repository) CreateTrackingEntry(ctx context.Context, entry *TrackingEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTracking(ctx context.Context, orderID uuid.UUID, pagination *Pagination, ascending bool) ([]*TrackingEntry, int64, error) {
	var entries []*TrackingEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&TrackingEntry{}).Where("order_id = ?", orderID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pagination != nil {
		query = query.Offset(pagination.Offset()).Limit(pagination.PageSize)
	}
	if err := query.Order(orderBy("created_at", ascending)).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func orderBy(column string, ascending bool) string {
	if ascending {
		return column + " ASC"
	}
	return column + " DESC"
}
