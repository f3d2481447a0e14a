package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for payment data access.
type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)

	// GetEventByKey returns the stored event for a dedup key, or
	// ErrPaymentNotFound when the callback has not been seen.
	GetEventByKey(ctx context.Context, key string) (*GatewayEvent, error)
	CreateEvent(ctx context.Context, event *GatewayEvent) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePayment(ctx context.Context, p *Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	var payments []*Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}

func (r *repository) GetEventByKey(ctx context.Context, key string) (*GatewayEvent, error) {
	var event GatewayEvent
	err := r.db.WithContext(ctx).First(&event, "event_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) CreateEvent(ctx context.Context, event *GatewayEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
