package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/greenshop/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time keeps AddTokens and order transactions serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	price                REAL NOT NULL,
	category             TEXT NOT NULL,
	carbon_impact        REAL NOT NULL,
	sustainability_score REAL NOT NULL,
	image_url            TEXT NOT NULL DEFAULT '',
	in_stock             BOOLEAN NOT NULL DEFAULT 1,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	preferences   TEXT NOT NULL DEFAULT '[]',
	green_tokens  INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS carts (
	user_id    TEXT PRIMARY KEY REFERENCES users(id),
	id         TEXT NOT NULL,
	items      TEXT NOT NULL DEFAULT '[]',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id),
	total_price      REAL NOT NULL,
	total_carbon     REAL NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	shipping_address TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id             TEXT NOT NULL REFERENCES orders(id),
	position             INTEGER NOT NULL,
	product_id           TEXT NOT NULL,
	name                 TEXT NOT NULL,
	quantity             INTEGER NOT NULL CHECK (quantity >= 1),
	price                REAL NOT NULL,
	category             TEXT NOT NULL,
	carbon_impact        REAL NOT NULL,
	sustainability_score REAL NOT NULL,
	PRIMARY KEY (order_id, position)
);

CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_products_sustainability ON products(sustainability_score DESC);
CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Products ---

func (s *SQLiteStore) ListProducts(ctx context.Context, filter model.ProductFilter) ([]model.Product, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.Category != model.CategoryUnknown {
		where += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.MinSustainability > 0 {
		where += ` AND sustainability_score >= ?`
		args = append(args, filter.MinSustainability)
	}
	if filter.InStockOnly {
		where += ` AND in_stock = 1`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count products")
	}

	query := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY sustainability_score DESC, name ASC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	products, err := s.queryProducts(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list products")
	}
	return products, total, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("product", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %s", id)
	}
	return &p, nil
}

func (s *SQLiteStore) GetProducts(ctx context.Context, ids []string) (map[string]model.Product, error) {
	out := make(map[string]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (?` + strings.Repeat(`, ?`, len(ids)-1) + `)`
	products, err := s.queryProducts(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get products")
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (s *SQLiteStore) InStockProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE in_stock = 1 ORDER BY created_at ASC, id ASC`)
	return products, eris.Wrap(err, "sqlite: in-stock products")
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Price, string(p.Category), p.CarbonImpact,
		p.SustainabilityScore, p.ImageURL, p.InStock, p.CreatedAt, p.UpdatedAt,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrConflict, "product %s", p.ID)
	}
	return eris.Wrap(err, "sqlite: insert product")
}

func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET name = ?, description = ?, price = ?, category = ?, carbon_impact = ?,
		 sustainability_score = ?, image_url = ?, in_stock = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, p.Price, string(p.Category), p.CarbonImpact,
		p.SustainabilityScore, p.ImageURL, p.InStock, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update product %s", p.ID)
	}
	return checkRowsAffected(res, "product", p.ID)
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete product %s", id)
	}
	return checkRowsAffected(res, "product", id)
}

// UpsertProducts inserts or replaces products by ID in one transaction.
func (s *SQLiteStore) UpsertProducts(ctx context.Context, products []model.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description,
		 price = excluded.price, category = excluded.category, carbon_impact = excluded.carbon_impact,
		 sustainability_score = excluded.sustainability_score, image_url = excluded.image_url,
		 in_stock = excluded.in_stock, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, p := range products {
		res, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Description, p.Price, string(p.Category),
			p.CarbonImpact, p.SustainabilityScore, p.ImageURL, p.InStock, now, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert product %s", p.ID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return n, nil
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck
	return collectProducts(rows)
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	if u.Preferences == nil {
		u.Preferences = []string{}
	}
	prefs, err := marshalJSON(u.Preferences, "preferences")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), prefs, u.GreenTokens, now, now,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrConflict, "user email %s", u.Email)
	}
	return eris.Wrap(err, "sqlite: insert user")
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `id = ?`, id)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `email = ?`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, where, arg string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", arg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get user %s", arg)
	}
	return &u, nil
}

// UpdateUser saves profile fields. The token balance is not written here;
// only AddTokens changes it.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u *model.User) error {
	prefs, err := marshalJSON(u.Preferences, "preferences")
	if err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, password_hash = ?, role = ?, preferences = ?, updated_at = ? WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), prefs, u.UpdatedAt, u.ID,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrConflict, "user email %s", u.Email)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update user %s", u.ID)
	}
	return checkRowsAffected(res, "user", u.ID)
}

func (s *SQLiteStore) Preferences(ctx context.Context, userID string) (model.Preferences, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.PreferenceSet(), nil
}

func (s *SQLiteStore) TokenBalance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `SELECT green_tokens FROM users WHERE id = ?`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("user", userID)
	}
	return balance, eris.Wrapf(err, "sqlite: token balance %s", userID)
}

func (s *SQLiteStore) AddTokens(ctx context.Context, userID string, delta int) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET green_tokens = green_tokens + ?, updated_at = ? WHERE id = ? RETURNING green_tokens`,
		delta, time.Now().UTC(), userID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("user", userID)
	}
	return balance, eris.Wrapf(err, "sqlite: add tokens %s", userID)
}

// --- Carts ---

// GetCart returns the user's cart, creating an empty one on first access.
func (s *SQLiteStore) GetCart(ctx context.Context, userID string) (*model.Cart, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO carts (user_id, id, items, updated_at) VALUES (?, ?, '[]', ?) ON CONFLICT (user_id) DO NOTHING`,
		userID, uuid.New().String(), time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure cart %s", userID)
	}

	c := model.Cart{UserID: userID}
	var items []byte
	if err := s.db.QueryRowContext(ctx,
		`SELECT id, items, updated_at FROM carts WHERE user_id = ?`, userID,
	).Scan(&c.ID, &items, &c.UpdatedAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cart %s", userID)
	}
	if c.Items, err = unmarshalCartItems(items); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) SaveCart(ctx context.Context, cart *model.Cart) error {
	items, err := marshalJSON(cart.Items, "cart items")
	if err != nil {
		return err
	}
	if cart.ID == "" {
		cart.ID = uuid.New().String()
	}
	cart.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO carts (user_id, id, items, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at`,
		cart.UserID, cart.ID, items, cart.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save cart %s", cart.UserID)
}

// --- Orders ---

func (s *SQLiteStore) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := validateOrder(o); err != nil {
		return err
	}
	addr, err := marshalJSON(o.ShippingAddress, "shipping address")
	if err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	o.TotalPrice, o.TotalCarbon = model.Totals(o.Items)
	o.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin order")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.TotalPrice, o.TotalCarbon, string(o.Status), addr, o.CreatedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert order %s", o.ID)
	}
	for i, l := range o.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, name, quantity, price, category, carbon_impact, sustainability_score)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, i, l.ProductID, l.Name, l.Quantity, l.Price, string(l.Category), l.CarbonImpact, l.SustainabilityScore,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert order line %d", i)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE carts SET items = '[]', updated_at = ? WHERE user_id = ?`, o.CreatedAt, o.UserID,
	); err != nil {
		return eris.Wrap(err, "sqlite: clear cart")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit order")
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get order %s", id)
	}
	lines, err := s.queryLines(ctx, `WHERE oi.order_id = ?`, id)
	if err != nil {
		return nil, err
	}
	orders := []model.Order{o}
	lines.attach(orders)
	return &orders[0], nil
}

func (s *SQLiteStore) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list orders")
	}
	orders, err := collectOrders(rows)
	rows.Close() //nolint:errcheck
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list orders iterate")
	}

	lines, err := s.queryLines(ctx, `WHERE o.user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	lines.attach(orders)
	return orders, nil
}

func (s *SQLiteStore) OrderLines(ctx context.Context, scope model.Scope) ([]model.OrderLine, error) {
	where, args := ``, []any{}
	if !scope.All() {
		where, args = `WHERE o.user_id = ?`, []any{scope.UserID}
	}
	lines, err := s.queryLines(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	return lines.flatten(), nil
}

func (s *SQLiteStore) queryLines(ctx context.Context, where string, args ...any) (orderedLines, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lineColumns+` FROM order_items oi JOIN orders o ON o.id = oi.order_id `+where+
			` ORDER BY o.created_at ASC, oi.order_id ASC, oi.position ASC`, args...)
	if err != nil {
		return orderedLines{}, eris.Wrap(err, "sqlite: query order lines")
	}
	defer rows.Close() //nolint:errcheck

	lines, err := collectLines(rows)
	return lines, eris.Wrap(err, "sqlite: order lines iterate")
}

// helpers

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
