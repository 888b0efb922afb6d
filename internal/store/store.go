// Package store persists the catalog, accounts, carts, and orders. SQLite
// backs local development and tests; Postgres backs production.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/greenshop/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("store: conflict")
)

// Store defines the persistence interface for the storefront.
type Store interface {
	// Products
	ListProducts(ctx context.Context, filter model.ProductFilter) ([]model.Product, int, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]model.Product, error)
	InStockProducts(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id string) error
	UpsertProducts(ctx context.Context, products []model.Product) (int64, error)

	// Users
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	Preferences(ctx context.Context, userID string) (model.Preferences, error)
	TokenBalance(ctx context.Context, userID string) (int, error)
	// AddTokens atomically increments the balance and returns the new value.
	AddTokens(ctx context.Context, userID string, delta int) (int, error)

	// Carts
	GetCart(ctx context.Context, userID string) (*model.Cart, error)
	SaveCart(ctx context.Context, cart *model.Cart) error

	// Orders
	// CreateOrder stores the order with its lines and empties the buyer's
	// cart in one transaction.
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	OrderLines(ctx context.Context, scope model.Scope) ([]model.OrderLine, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

type scannable interface {
	Scan(dest ...any) error
}

// rowIter is the part of *sql.Rows and pgx.Rows the collectors need.
type rowIter interface {
	scannable
	Next() bool
	Err() error
}

func collectProducts(rows rowIter) ([]model.Product, error) {
	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan product")
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func collectOrders(rows rowIter) ([]model.Order, error) {
	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan order")
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// orderedLines groups order lines by order ID, remembering first-seen order.
type orderedLines struct {
	byOrder map[string][]model.OrderLine
	order   []string
}

func collectLines(rows rowIter) (orderedLines, error) {
	ol := orderedLines{byOrder: map[string][]model.OrderLine{}}
	for rows.Next() {
		orderID, l, err := scanLine(rows)
		if err != nil {
			return ol, eris.Wrap(err, "store: scan order line")
		}
		if _, seen := ol.byOrder[orderID]; !seen {
			ol.order = append(ol.order, orderID)
		}
		ol.byOrder[orderID] = append(ol.byOrder[orderID], l)
	}
	return ol, rows.Err()
}

// flatten returns every line in first-seen order.
func (ol orderedLines) flatten() []model.OrderLine {
	out := []model.OrderLine{}
	for _, id := range ol.order {
		out = append(out, ol.byOrder[id]...)
	}
	return out
}

// attach fills each order's Items from the grouped lines.
func (ol orderedLines) attach(orders []model.Order) {
	for i := range orders {
		orders[i].Items = ol.byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []model.OrderLine{}
		}
	}
}

const productColumns = `id, name, description, price, category, carbon_impact, sustainability_score, image_url, in_stock, created_at, updated_at`

func scanProduct(row scannable) (model.Product, error) {
	var p model.Product
	var category string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &category,
		&p.CarbonImpact, &p.SustainabilityScore, &p.ImageURL, &p.InStock,
		&p.CreatedAt, &p.UpdatedAt)
	p.Category = model.Category(category)
	return p, err
}

const userColumns = `id, username, email, password_hash, role, preferences, green_tokens, created_at, updated_at`

func scanUser(row scannable) (model.User, error) {
	var u model.User
	var role string
	var prefs []byte
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role,
		&prefs, &u.GreenTokens, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return u, err
	}
	u.Role = model.Role(role)
	var err error
	u.Preferences, err = decodePreferences(prefs)
	return u, err
}

func decodePreferences(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal preferences")
	}
	return tags, nil
}

const orderColumns = `id, user_id, total_price, total_carbon, status, shipping_address, created_at`

func scanOrder(row scannable) (model.Order, error) {
	var o model.Order
	var status string
	var addr []byte
	if err := row.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.TotalCarbon, &status, &addr, &o.CreatedAt); err != nil {
		return o, err
	}
	o.Status = model.OrderStatus(status)
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
			return o, eris.Wrap(err, "store: unmarshal shipping address")
		}
	}
	return o, nil
}

const lineColumns = `oi.order_id, oi.product_id, oi.name, oi.quantity, oi.price, oi.category, oi.carbon_impact, oi.sustainability_score`

func scanLine(row scannable) (string, model.OrderLine, error) {
	var orderID, category string
	var l model.OrderLine
	err := row.Scan(&orderID, &l.ProductID, &l.Name, &l.Quantity, &l.Price, &category,
		&l.CarbonImpact, &l.SustainabilityScore)
	l.Category = model.Category(category)
	return orderID, l, err
}

func marshalJSON(v any, what string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrapf(err, "store: marshal %s", what)
	}
	return string(b), nil
}

func unmarshalCartItems(raw []byte) ([]model.CartItem, error) {
	items := []model.CartItem{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal cart items")
	}
	return items, nil
}

func notFound(what, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", what, id)
}

func validateOrder(o *model.Order) error {
	if len(o.Items) == 0 {
		return eris.New("store: order has no items")
	}
	for _, l := range o.Items {
		if l.Quantity < 1 {
			return eris.Errorf("store: order line %s has quantity %d", l.ProductID, l.Quantity)
		}
	}
	return nil
}
