package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Module errors.
var (
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// CartStore is the persistence contract for carts.
type CartStore interface {
	Get(ctx context.Context, customerID uuid.UUID) (*Cart, error)
	Save(ctx context.Context, customerID uuid.UUID, cart *Cart) error
	Delete(ctx context.Context, customerID uuid.UUID) error
}

// Service handles cart business logic.
type Service struct {
	store CartStore
}

// NewService creates a new cart service.
func NewService(store CartStore) *Service {
	return &Service{store: store}
}

// Get returns the customer's cart.
func (s *Service) Get(ctx context.Context, customerID uuid.UUID) (*Cart, error) {
	return s.store.Get(ctx, customerID)
}

// AddItem adds an item to the cart, merging quantities when the same
// product and size is already present.
func (s *Service) AddItem(ctx context.Context, customerID uuid.UUID, item Item) (*Cart, error) {
	if item.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.store.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if i := cart.find(item.ProductID, item.Size); i >= 0 {
		cart.Items[i].Quantity += item.Quantity
	} else {
		cart.Items = append(cart.Items, item)
	}

	if err := s.store.Save(ctx, customerID, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// UpdateQuantity sets the quantity of one cart line.
func (s *Service) UpdateQuantity(ctx context.Context, customerID uuid.UUID, productID, size string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	cart, err := s.store.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	i := cart.find(productID, size)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	cart.Items[i].Quantity = quantity

	if err := s.store.Save(ctx, customerID, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem removes one line from the cart.
func (s *Service) RemoveItem(ctx context.Context, customerID uuid.UUID, productID, size string) (*Cart, error) {
	cart, err := s.store.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	i := cart.find(productID, size)
	if i < 0 {
		return nil, ErrItemNotFound
	}
	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)

	if err := s.store.Save(ctx, customerID, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// Clear empties the customer's cart.
func (s *Service) Clear(ctx context.Context, customerID uuid.UUID) error {
	return s.store.Delete(ctx, customerID)
}
