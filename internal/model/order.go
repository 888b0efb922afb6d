package model

import "time"

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderLine is a purchased item with the product figures captured at
// purchase time. Quantity is always >= 1 once an order is stored.
type OrderLine struct {
	ProductID           string   `json:"productId"`
	Name                string   `json:"name"`
	Quantity            int      `json:"quantity"`
	Price               float64  `json:"price"`
	Category            Category `json:"category"`
	CarbonImpact        float64  `json:"carbonImpact"`
	SustainabilityScore float64  `json:"sustainabilityScore"`
}

// ShippingAddress is where an order is delivered.
type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// Complete reports whether every address field is set.
func (a ShippingAddress) Complete() bool {
	return a.Street != "" && a.City != "" && a.State != "" && a.ZipCode != "" && a.Country != ""
}

// Order is an immutable purchase record.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Items           []OrderLine     `json:"items"`
	TotalPrice      float64         `json:"totalPrice"`
	TotalCarbon     float64         `json:"totalCarbon"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Totals returns the order's price and carbon sums over its lines.
func Totals(lines []OrderLine) (price, carbon float64) {
	for _, l := range lines {
		price += l.Price * float64(l.Quantity)
		carbon += l.CarbonImpact * float64(l.Quantity)
	}
	return price, carbon
}

// Scope selects which order lines a history query returns: every user's
// (ScopeAll) or a single user's.
type Scope struct {
	UserID string
}

// ScopeAll selects the whole order population.
var ScopeAll = Scope{}

// UserScope selects one user's order lines.
func UserScope(userID string) Scope {
	return Scope{UserID: userID}
}

// All reports whether the scope covers every user.
func (s Scope) All() bool {
	return s.UserID == ""
}
