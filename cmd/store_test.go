package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/greenshop/internal/catalog"
	"github.com/sells-group/greenshop/internal/config"
	"github.com/sells-group/greenshop/internal/model"
	"github.com/sells-group/greenshop/internal/scorer"
)

func sqliteConfig(dsn string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: dsn,
			Retry:       config.RetryConfig{MaxAttempts: 1},
		},
		Catalog: config.CatalogConfig{PageSize: 12},
		Scorer:  scorer.DefaultScorerConfig(),
	}
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = sqliteConfig(filepath.Join(t.TempDir(), "test.db"))

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	// An empty DatabaseURL falls back to greenshop.db in the working directory.
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = sqliteConfig("")

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "greenshop.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "mysql",
		},
	}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitApp_ValidatesMode(t *testing.T) {
	cfg = sqliteConfig(filepath.Join(t.TempDir(), "test.db"))

	_, err := initApp(context.Background(), "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
}

func newTestApp(t *testing.T) *appEnv {
	t.Helper()
	cfg = sqliteConfig(filepath.Join(t.TempDir(), "app.db"))
	env, err := initApp(context.Background(), "cli")
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	path := filepath.Join("..", "internal", "catalog", "testdata", "catalog.yaml")

	n, err := seedCatalog(ctx, env.Store, path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = seedCatalog(ctx, env.Store, path)
	require.NoError(t, err)

	products, total, err := env.Store.ListProducts(ctx, model.ProductFilter{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, products, 3)

	p, err := env.Store.GetProduct(ctx, catalog.ProductID("Bamboo Toothbrush"))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryZeroWaste, p.Category)
}

func TestSeedCatalog_BadFile(t *testing.T) {
	env := newTestApp(t)
	_, err := seedCatalog(context.Background(), env.Store, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// placeOrder stores an order of qty units of p for u.
func placeOrder(t *testing.T, env *appEnv, u *model.User, p model.Product, qty int) {
	t.Helper()
	require.NoError(t, env.Store.CreateOrder(context.Background(), &model.Order{
		UserID: u.ID,
		Items: []model.OrderLine{{
			ProductID: p.ID, Name: p.Name, Quantity: qty, Price: p.Price, Category: p.Category,
			CarbonImpact: p.CarbonImpact, SustainabilityScore: p.SustainabilityScore,
		}},
		ShippingAddress: model.ShippingAddress{Street: "1 Main St", City: "Bend", State: "OR", ZipCode: "97701", Country: "US"},
	}))
}

func seedShoppers(t *testing.T, env *appEnv) (alice, bob *model.User) {
	t.Helper()
	ctx := context.Background()
	green := model.Product{Name: "Linen Towel", Price: 10, Category: model.CategoryHome, CarbonImpact: 4, SustainabilityScore: 80, InStock: true}
	grey := model.Product{Name: "Poly Towel", Price: 8, Category: model.CategoryHome, CarbonImpact: 6, SustainabilityScore: 40, InStock: true}
	require.NoError(t, env.Store.CreateProduct(ctx, &green))
	require.NoError(t, env.Store.CreateProduct(ctx, &grey))

	alice = &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	bob = &model.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x"}
	require.NoError(t, env.Store.CreateUser(ctx, alice))
	require.NoError(t, env.Store.CreateUser(ctx, bob))

	placeOrder(t, env, alice, green, 2)
	placeOrder(t, env, bob, grey, 2)
	return alice, bob
}

func TestRunFootprint_CreditOnlyWithFlag(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	alice, _ := seedShoppers(t, env)

	var out bytes.Buffer
	require.NoError(t, runFootprint(ctx, &out, env.Footprint, alice.ID, false, false))
	assert.Contains(t, out.String(), "TOKENS EARNABLE")
	assert.Contains(t, out.String(), "20.0%")
	assert.Contains(t, out.String(), "Below Average")

	balance, err := env.Store.TokenBalance(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	out.Reset()
	require.NoError(t, runFootprint(ctx, &out, env.Footprint, alice.ID, true, true))
	assert.Contains(t, out.String(), `"lastEarned": 2`)

	balance, err = env.Store.TokenBalance(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, balance)
}

func TestRunRecommend_Table(t *testing.T) {
	env := newTestApp(t)
	_, bob := seedShoppers(t, env)

	var out bytes.Buffer
	require.NoError(t, runRecommend(context.Background(), &out, env.Footprint, bob.ID))
	assert.Contains(t, out.String(), "RANK")
	assert.Contains(t, out.String(), "Linen Towel")
	assert.Contains(t, out.String(), "store averages: carbon 5.00 per item")
}

func TestRunRecommend_EmptyCatalog(t *testing.T) {
	env := newTestApp(t)
	u := &model.User{Username: "new", Email: "new@example.com", PasswordHash: "x"}
	require.NoError(t, env.Store.CreateUser(context.Background(), u))

	var out bytes.Buffer
	require.NoError(t, runRecommend(context.Background(), &out, env.Footprint, u.ID))
	assert.Empty(t, out.String())
}

func TestPromoteUser(t *testing.T) {
	env := newTestApp(t)
	ctx := context.Background()
	u := &model.User{Username: "ops", Email: "ops@example.com", PasswordHash: "x"}
	require.NoError(t, env.Store.CreateUser(ctx, u))

	got, err := promoteUser(ctx, env.Store, " OPS@example.com ")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, got.Role)

	stored, err := env.Store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, stored.Role)

	_, err = promoteUser(ctx, env.Store, "nobody@example.com")
	assert.Error(t, err)
}
