package cart

import "time"

// Item is one line in a customer's cart.
type Item struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Size        string `json:"size,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

// Cart is a customer's current cart. It lives in Redis only; the durable
// copy of its contents is the snapshot frozen onto an order at creation.
type Cart struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subtotal returns the sum of quantity * unit price over all items.
func (c *Cart) Subtotal() int64 {
	var sum int64
	for _, item := range c.Items {
		sum += int64(item.Quantity) * item.UnitPrice
	}
	return sum
}

// find returns the index of the item matching product and size, or -1.
func (c *Cart) find(productID, size string) int {
	for i, item := range c.Items {
		if item.ProductID == productID && item.Size == size {
			return i
		}
	}
	return -1
}
