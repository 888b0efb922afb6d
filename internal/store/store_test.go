package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/greenshop/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newProduct(name string, cat model.Category, carbon, score float64, inStock bool) *model.Product {
	return &model.Product{
		Name:                name,
		Description:         name + " description",
		Price:               10,
		Category:            cat,
		CarbonImpact:        carbon,
		SustainabilityScore: score,
		InStock:             inStock,
	}
}

func newUser(t *testing.T, s Store, email string, prefs ...string) *model.User {
	t.Helper()
	u := &model.User{Username: email, Email: email, PasswordHash: "hash", Preferences: prefs}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

var testAddress = model.ShippingAddress{
	Street: "1 Main St", City: "Portland", State: "OR", ZipCode: "97201", Country: "US",
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetProduct", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := newProduct("Bamboo Toothbrush", model.CategoryZeroWaste, 0.2, 92, true)
		require.NoError(t, s.CreateProduct(ctx, p))
		assert.NotEmpty(t, p.ID)

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Bamboo Toothbrush", got.Name)
		assert.Equal(t, model.CategoryZeroWaste, got.Category)
		assert.InDelta(t, 0.2, got.CarbonImpact, 1e-9)
		assert.True(t, got.InStock)
	})

	t.Run("GetProductNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProduct(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpdateProductKeepsFalseStock", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := newProduct("Tote", model.CategoryClothing, 1, 70, true)
		require.NoError(t, s.CreateProduct(ctx, p))
		p.InStock = false
		p.Price = 12.5
		require.NoError(t, s.UpdateProduct(ctx, p))

		got, err := s.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, got.InStock)
		assert.InDelta(t, 12.5, got.Price, 1e-9)
	})

	t.Run("UpdateAndDeleteNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		assert.ErrorIs(t, s.UpdateProduct(ctx, &model.Product{ID: "nope", Category: model.CategoryFood}), ErrNotFound)
		assert.ErrorIs(t, s.DeleteProduct(ctx, "nope"), ErrNotFound)
	})

	t.Run("DeleteProduct", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		p := newProduct("Soap", model.CategoryBeauty, 0.5, 80, true)
		require.NoError(t, s.CreateProduct(ctx, p))
		require.NoError(t, s.DeleteProduct(ctx, p.ID))
		_, err := s.GetProduct(ctx, p.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListProductsFiltersAndPages", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, p := range []*model.Product{
			newProduct("A", model.CategoryFood, 1, 60, true),
			newProduct("B", model.CategoryFood, 1, 90, true),
			newProduct("C", model.CategoryHome, 1, 75, false),
			newProduct("D", model.CategoryFood, 1, 40, true),
		} {
			require.NoError(t, s.CreateProduct(ctx, p))
		}

		all, total, err := s.ListProducts(ctx, model.ProductFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, all, 2)
		assert.Equal(t, "B", all[0].Name)
		assert.Equal(t, "C", all[1].Name)

		page2, _, err := s.ListProducts(ctx, model.ProductFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, page2, 2)
		assert.Equal(t, "A", page2[0].Name)

		food, total, err := s.ListProducts(ctx, model.ProductFilter{Category: model.CategoryFood, MinSustainability: 50})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, "B", food[0].Name)
		assert.Equal(t, "A", food[1].Name)
	})

	t.Run("InStockProductsInCatalogOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.CreateProduct(ctx, newProduct("first", model.CategoryFood, 1, 50, true)))
		require.NoError(t, s.CreateProduct(ctx, newProduct("gone", model.CategoryFood, 1, 99, false)))
		require.NoError(t, s.CreateProduct(ctx, newProduct("second", model.CategoryFood, 1, 50, true)))

		products, err := s.InStockProducts(ctx)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, "first", products[0].Name)
		assert.Equal(t, "second", products[1].Name)
	})

	t.Run("InStockProductsEmptyCatalog", func(t *testing.T) {
		s := newStore(t)
		products, err := s.InStockProducts(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, products)
		assert.Empty(t, products)
	})

	t.Run("GetProducts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := newProduct("A", model.CategoryFood, 1, 50, true)
		b := newProduct("B", model.CategoryFood, 2, 60, true)
		require.NoError(t, s.CreateProduct(ctx, a))
		require.NoError(t, s.CreateProduct(ctx, b))

		got, err := s.GetProducts(ctx, []string{a.ID, b.ID, "missing"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, "B", got[b.ID].Name)
	})

	t.Run("UpsertProducts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := model.Product{ID: "seed-1", Name: "Jar", Category: model.CategoryZeroWaste, CarbonImpact: 1, SustainabilityScore: 70, InStock: true}
		n, err := s.UpsertProducts(ctx, []model.Product{p})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		p.Name = "Glass Jar"
		_, err = s.UpsertProducts(ctx, []model.Product{p})
		require.NoError(t, err)

		got, err := s.GetProduct(ctx, "seed-1")
		require.NoError(t, err)
		assert.Equal(t, "Glass Jar", got.Name)
		_, total, err := s.ListProducts(ctx, model.ProductFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("CreateUserAndLookup", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u := newUser(t, s, "ada@example.com", "organic", "local")
		assert.Equal(t, model.RoleUser, u.Role)

		byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
		assert.Equal(t, []string{"organic", "local"}, byEmail.Preferences)

		prefs, err := s.Preferences(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, prefs.Has(model.CategoryOrganic))
		assert.False(t, prefs.Has(model.CategoryFood))
	})

	t.Run("DuplicateEmailConflicts", func(t *testing.T) {
		s := newStore(t)
		newUser(t, s, "dup@example.com")
		err := s.CreateUser(context.Background(), &model.User{Username: "x", Email: "dup@example.com", PasswordHash: "h"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("UpdateUserLeavesTokens", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newUser(t, s, "u@example.com")
		_, err := s.AddTokens(ctx, u.ID, 4)
		require.NoError(t, err)

		u.Username = "renamed"
		u.Preferences = []string{"vegan"}
		u.GreenTokens = 999
		require.NoError(t, s.UpdateUser(ctx, u))

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Username)
		assert.Equal(t, []string{"vegan"}, got.Preferences)
		assert.Equal(t, 4, got.GreenTokens)
	})

	t.Run("UserNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.GetUser(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.TokenBalance(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.AddTokens(ctx, "ghost", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("AddTokensConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newUser(t, s, "race@example.com")

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.AddTokens(ctx, u.ID, 2)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		balance, err := s.TokenBalance(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 40, balance)
	})

	t.Run("CartCreatedOnFirstAccess", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newUser(t, s, "cart@example.com")

		c, err := s.GetCart(ctx, u.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.Empty(t, c.Items)

		c.Set("p1", 2)
		require.NoError(t, s.SaveCart(ctx, c))

		again, err := s.GetCart(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, again.ID)
		assert.Equal(t, []model.CartItem{{ProductID: "p1", Quantity: 2}}, again.Items)
	})

	t.Run("CreateOrderSnapshotsAndClearsCart", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newUser(t, s, "buyer@example.com")

		c, err := s.GetCart(ctx, u.ID)
		require.NoError(t, err)
		c.Set("p1", 1)
		require.NoError(t, s.SaveCart(ctx, c))

		o := &model.Order{
			UserID: u.ID,
			Items: []model.OrderLine{
				{ProductID: "p1", Name: "Tote", Quantity: 2, Price: 5, Category: model.CategoryClothing, CarbonImpact: 1.5, SustainabilityScore: 80},
				{ProductID: "p2", Name: "Soap", Quantity: 1, Price: 3, Category: model.CategoryBeauty, CarbonImpact: 0.5, SustainabilityScore: 60},
			},
			ShippingAddress: testAddress,
		}
		require.NoError(t, s.CreateOrder(ctx, o))
		assert.InDelta(t, 13.0, o.TotalPrice, 1e-9)
		assert.InDelta(t, 3.5, o.TotalCarbon, 1e-9)
		assert.Equal(t, model.OrderStatusPending, o.Status)

		got, err := s.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.Items, got.Items)
		assert.Equal(t, testAddress, got.ShippingAddress)

		cart, err := s.GetCart(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
	})

	t.Run("CreateOrderRejectsBadLines", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		u := newUser(t, s, "bad@example.com")

		require.Error(t, s.CreateOrder(ctx, &model.Order{UserID: u.ID, ShippingAddress: testAddress}))
		err := s.CreateOrder(ctx, &model.Order{
			UserID:          u.ID,
			Items:           []model.OrderLine{{ProductID: "p", Quantity: 0}},
			ShippingAddress: testAddress,
		})
		require.Error(t, err)

		lines, err := s.OrderLines(ctx, model.ScopeAll)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("OrderLinesByScope", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := newUser(t, s, "a@example.com")
		b := newUser(t, s, "b@example.com")

		for _, o := range []*model.Order{
			{UserID: a.ID, Items: []model.OrderLine{{ProductID: "p1", Quantity: 2, CarbonImpact: 2, SustainabilityScore: 80, Category: model.CategoryFood}}},
			{UserID: b.ID, Items: []model.OrderLine{{ProductID: "p2", Quantity: 1, CarbonImpact: 4, SustainabilityScore: 50, Category: model.CategoryHome}}},
			{UserID: a.ID, Items: []model.OrderLine{{ProductID: "p3", Quantity: 1, CarbonImpact: 1, SustainabilityScore: 90, Category: model.CategoryLocal}}},
		} {
			o.ShippingAddress = testAddress
			require.NoError(t, s.CreateOrder(ctx, o))
		}

		all, err := s.OrderLines(ctx, model.ScopeAll)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		mine, err := s.OrderLines(ctx, model.UserScope(a.ID))
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, 2, mine[0].Quantity)

		none, err := s.OrderLines(ctx, model.UserScope("nobody"))
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)

		orders, err := s.ListOrders(ctx, a.ID)
		require.NoError(t, err)
		assert.Len(t, orders, 2)
		for _, o := range orders {
			assert.Len(t, o.Items, 1)
		}
	})

	t.Run("GetOrderNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOrder(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_PingAndMigrateTwice(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Migrate(ctx))
}
