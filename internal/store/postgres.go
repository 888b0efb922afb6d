package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/greenshop/internal/db"
	"github.com/sells-group/greenshop/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection for the queries
// every recommend and footprint request runs.
var preparedStatements = map[string]string{
	"in_stock_products": `SELECT ` + productColumns + ` FROM products WHERE in_stock ORDER BY created_at ASC, id ASC`,
	"all_order_lines":   `SELECT ` + lineColumns + ` FROM order_items oi JOIN orders o ON o.id = oi.order_id ORDER BY o.created_at ASC, oi.order_id ASC, oi.position ASC`,
	"user_order_lines":  `SELECT ` + lineColumns + ` FROM order_items oi JOIN orders o ON o.id = oi.order_id WHERE o.user_id = $1 ORDER BY o.created_at ASC, oi.order_id ASC, oi.position ASC`,
	"add_tokens":        `UPDATE users SET green_tokens = green_tokens + $1, updated_at = $2 WHERE id = $3 RETURNING green_tokens`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables are missing until the first migrate.
				if isPgCode(err, "42P01") {
					return nil
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying pool for bulk loads.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                 TEXT NOT NULL,
	description          TEXT NOT NULL DEFAULT '',
	price                DOUBLE PRECISION NOT NULL CHECK (price >= 0),
	category             TEXT NOT NULL,
	carbon_impact        DOUBLE PRECISION NOT NULL CHECK (carbon_impact >= 0),
	sustainability_score DOUBLE PRECISION NOT NULL CHECK (sustainability_score BETWEEN 0 AND 100),
	image_url            TEXT NOT NULL DEFAULT '',
	in_stock             BOOLEAN NOT NULL DEFAULT true,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	username      TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	preferences   JSONB NOT NULL DEFAULT '[]',
	green_tokens  INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS carts (
	user_id    TEXT PRIMARY KEY REFERENCES users(id),
	id         TEXT NOT NULL,
	items      JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id          TEXT NOT NULL REFERENCES users(id),
	total_price      DOUBLE PRECISION NOT NULL,
	total_carbon     DOUBLE PRECISION NOT NULL,
	status           TEXT NOT NULL DEFAULT 'pending',
	shipping_address JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id             TEXT NOT NULL REFERENCES orders(id),
	position             INTEGER NOT NULL,
	product_id           TEXT NOT NULL,
	name                 TEXT NOT NULL,
	quantity             INTEGER NOT NULL CHECK (quantity >= 1),
	price                DOUBLE PRECISION NOT NULL,
	category             TEXT NOT NULL,
	carbon_impact        DOUBLE PRECISION NOT NULL,
	sustainability_score DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (order_id, position)
);

CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
CREATE INDEX IF NOT EXISTS idx_products_sustainability ON products(sustainability_score DESC);
CREATE INDEX IF NOT EXISTS idx_products_in_stock ON products(in_stock) WHERE in_stock;
CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Products ---

func (s *PostgresStore) ListProducts(ctx context.Context, filter model.ProductFilter) ([]model.Product, int, error) {
	where := ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Category != model.CategoryUnknown {
		where += fmt.Sprintf(` AND category = $%d`, argIdx)
		args = append(args, string(filter.Category))
		argIdx++
	}
	if filter.MinSustainability > 0 {
		where += fmt.Sprintf(` AND sustainability_score >= $%d`, argIdx)
		args = append(args, filter.MinSustainability)
		argIdx++
	}
	if filter.InStockOnly {
		where += ` AND in_stock`
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count products")
	}

	query := `SELECT ` + productColumns + ` FROM products` + where +
		fmt.Sprintf(` ORDER BY sustainability_score DESC, name ASC LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	products, err := s.queryProducts(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list products")
	}
	return products, total, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("product", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get product %s", id)
	}
	return &p, nil
}

func (s *PostgresStore) GetProducts(ctx context.Context, ids []string) (map[string]model.Product, error) {
	out := make(map[string]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get products")
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (s *PostgresStore) InStockProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.queryProducts(ctx, preparedStatements["in_stock_products"])
	return products, eris.Wrap(err, "postgres: in-stock products")
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Name, p.Description, p.Price, string(p.Category), p.CarbonImpact,
		p.SustainabilityScore, p.ImageURL, p.InStock, p.CreatedAt, p.UpdatedAt,
	)
	if isPgUnique(err) {
		return eris.Wrapf(ErrConflict, "product %s", p.ID)
	}
	return eris.Wrap(err, "postgres: insert product")
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET name = $1, description = $2, price = $3, category = $4, carbon_impact = $5,
		 sustainability_score = $6, image_url = $7, in_stock = $8, updated_at = $9 WHERE id = $10`,
		p.Name, p.Description, p.Price, string(p.Category), p.CarbonImpact,
		p.SustainabilityScore, p.ImageURL, p.InStock, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update product %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("product", p.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete product %s", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("product", id)
	}
	return nil
}

// UpsertProducts bulk-loads products through COPY and merges them by ID.
func (s *PostgresStore) UpsertProducts(ctx context.Context, products []model.Product) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(products))
	for i, p := range products {
		rows[i] = []any{p.ID, p.Name, p.Description, p.Price, string(p.Category), p.CarbonImpact,
			p.SustainabilityScore, p.ImageURL, p.InStock, now, now}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "products",
		Columns: []string{"id", "name", "description", "price", "category", "carbon_impact",
			"sustainability_score", "image_url", "in_stock", "created_at", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols: []string{"name", "description", "price", "category", "carbon_impact",
			"sustainability_score", "image_url", "in_stock", "updated_at"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert products")
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), prefs, u.GreenTokens, now, now,
	)
	if isPgUnique(err) {
		return eris.Wrapf(ErrConflict, "user email %s", u.Email)
	}
	return eris.Wrap(err, "postgres: insert user")
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, where, arg string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("user", arg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user %s", arg)
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *model.User) error {
	prefs, err := marshalJSON(u.Preferences, "preferences")
	if err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET username = $1, email = $2, password_hash = $3, role = $4, preferences = $5, updated_at = $6 WHERE id = $7`,
		u.Username, u.Email, u.PasswordHash, string(u.Role), prefs, u.UpdatedAt, u.ID,
	)
	if isPgUnique(err) {
		return eris.Wrapf(ErrConflict, "user email %s", u.Email)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update user %s", u.ID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("user", u.ID)
	}
	return nil
}

func (s *PostgresStore) Preferences(ctx context.Context, userID string) (model.Preferences, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT preferences FROM users WHERE id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("user", userID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: preferences %s", userID)
	}
	tags, err := decodePreferences(raw)
	if err != nil {
		return nil, err
	}
	return model.NewPreferences(tags...), nil
}

func (s *PostgresStore) TokenBalance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx, `SELECT green_tokens FROM users WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound("user", userID)
	}
	return balance, eris.Wrapf(err, "postgres: token balance %s", userID)
}

// AddTokens increments the balance in a single statement so concurrent
// credits never lose an update.
func (s *PostgresStore) AddTokens(ctx context.Context, userID string, delta int) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx, preparedStatements["add_tokens"], delta, time.Now().UTC(), userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound("user", userID)
	}
	return balance, eris.Wrapf(err, "postgres: add tokens %s", userID)
}

// --- Carts ---

func (s *PostgresStore) GetCart(ctx context.Context, userID string) (*model.Cart, error) {
	c := model.Cart{UserID: userID}
	var items []byte
	err := s.pool.QueryRow(ctx,
		`INSERT INTO carts (user_id, id, items, updated_at) VALUES ($1, $2, '[]', $3)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id, items, updated_at`,
		userID, uuid.New().String(), time.Now().UTC(),
	).Scan(&c.ID, &items, &c.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cart %s", userID)
	}
	if c.Items, err = unmarshalCartItems(items); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) SaveCart(ctx context.Context, cart *model.Cart) error {
	items, err := marshalJSON(cart.Items, "cart items")
	if err != nil {
		return err
	}
	if cart.ID == "" {
		cart.ID = uuid.New().String()
	}
	cart.UpdatedAt = time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO carts (user_id, id, items, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at`,
		cart.UserID, cart.ID, items, cart.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save cart %s", cart.UserID)
}

// --- Orders ---

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin order")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.UserID, o.TotalPrice, o.TotalCarbon, string(o.Status), addr, o.CreatedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert order %s", o.ID)
	}

	batch := &pgx.Batch{}
	for i, l := range o.Items {
		batch.Queue(
			`INSERT INTO order_items (order_id, position, product_id, name, quantity, price, category, carbon_impact, sustainability_score)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.ID, i, l.ProductID, l.Name, l.Quantity, l.Price, string(l.Category), l.CarbonImpact, l.SustainabilityScore,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return eris.Wrapf(err, "postgres: insert order lines %s", o.ID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE carts SET items = '[]', updated_at = $1 WHERE user_id = $2`, o.CreatedAt, o.UserID,
	); err != nil {
		return eris.Wrap(err, "postgres: clear cart")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit order")
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get order %s", id)
	}
	lines, err := s.queryLines(ctx,
		`SELECT `+lineColumns+` FROM order_items oi JOIN orders o ON o.id = oi.order_id WHERE oi.order_id = $1 ORDER BY oi.position ASC`, id)
	if err != nil {
		return nil, err
	}
	orders := []model.Order{o}
	lines.attach(orders)
	return &orders[0], nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list orders")
	}
	orders, err := collectOrders(rows)
	rows.Close()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list orders iterate")
	}

	lines, err := s.queryLines(ctx, preparedStatements["user_order_lines"], userID)
	if err != nil {
		return nil, err
	}
	lines.attach(orders)
	return orders, nil
}

func (s *PostgresStore) OrderLines(ctx context.Context, scope model.Scope) ([]model.OrderLine, error) {
	var (
		lines orderedLines
		err   error
	)
	if scope.All() {
		lines, err = s.queryLines(ctx, preparedStatements["all_order_lines"])
	} else {
		lines, err = s.queryLines(ctx, preparedStatements["user_order_lines"], scope.UserID)
	}
	if err != nil {
		return nil, err
	}
	return lines.flatten(), nil
}

func (s *PostgresStore) queryLines(ctx context.Context, query string, args ...any) (orderedLines, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return orderedLines{}, eris.Wrap(err, "postgres: query order lines")
	}
	defer rows.Close()

	lines, err := collectLines(rows)
	return lines, eris.Wrap(err, "postgres: order lines iterate")
}

func isPgUnique(err error) bool {
	return isPgCode(err, "23505")
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
