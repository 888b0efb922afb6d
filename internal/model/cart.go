package model

import "time"

// CartItem is a product reference and quantity in a user's cart.
type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Cart holds a user's pending items.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Set puts productID at quantity, replacing any existing quantity. A
// quantity <= 0 removes the item. It returns false when removing an item
// that was not in the cart.
func (c *Cart) Set(productID string, quantity int) bool {
	for i, it := range c.Items {
		if it.ProductID != productID {
			continue
		}
		if quantity <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Quantity = quantity
		}
		return true
	}
	if quantity <= 0 {
		return false
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity})
	return true
}

// Contains reports whether productID is in the cart.
func (c *Cart) Contains(productID string) bool {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// CartLine is a cart item joined with its product for display.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// CartView is the cart as returned to clients.
type CartView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Items       []CartLine `json:"items"`
	TotalAmount float64    `json:"totalAmount"`
}
