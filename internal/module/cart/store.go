package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// cartTTL bounds how long an untouched cart survives.
const cartTTL = 7 * 24 * time.Hour

// Store persists carts in Redis as JSON blobs keyed by customer.
type Store struct {
	client redis.UniversalClient
}

// NewStore creates a new cart store.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Get returns the customer's cart. A missing key is an empty cart, not
// an error.
func (s *Store) Get(ctx context.Context, customerID uuid.UUID) (*Cart, error) {
	data, err := s.client.Get(ctx, s.key(customerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Cart{}, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	var cart Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &cart, nil
}

// Save stores the cart and refreshes its TTL.
func (s *Store) Save(ctx context.Context, customerID uuid.UUID, cart *Cart) error {
	cart.UpdatedAt = time.Now()
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.client.Set(ctx, s.key(customerID), data, cartTTL).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Delete removes the customer's cart.
func (s *Store) Delete(ctx context.Context, customerID uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(customerID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (s *Store) key(customerID uuid.UUID) string {
	return "cart:" + customerID.String()
}
