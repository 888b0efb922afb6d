package footprint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/greenshop/internal/config"
	"github.com/sells-group/greenshop/internal/model"
	"github.com/sells-group/greenshop/internal/resilience"
	"github.com/sells-group/greenshop/internal/scorer"
)

type fakeCatalog struct {
	products []model.Product
	err      error
}

func (f *fakeCatalog) InStockProducts(context.Context) ([]model.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Product
	for _, p := range f.products {
		if p.InStock {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeOrders struct {
	mu     sync.Mutex
	byUser map[string][]model.OrderLine
	calls  int
	failN  int
	err    error
}

func (f *fakeOrders) OrderLines(_ context.Context, scope model.Scope) ([]model.OrderLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failN > 0 {
		f.failN--
		return nil, f.err
	}
	if !scope.All() {
		return f.byUser[scope.UserID], nil
	}
	var all []model.OrderLine
	for _, lines := range f.byUser {
		all = append(all, lines...)
	}
	return all, nil
}

type fakeUsers struct {
	mu       sync.Mutex
	prefs    map[string]model.Preferences
	balances map[string]int
	addCalls int
	addErr   error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{prefs: map[string]model.Preferences{}, balances: map[string]int{}}
}

func (f *fakeUsers) Preferences(_ context.Context, id string) (model.Preferences, error) {
	return f.prefs[id], nil
}

func (f *fakeUsers) TokenBalance(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[id], nil
}

func (f *fakeUsers) AddTokens(_ context.Context, id string, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.addErr != nil {
		return 0, f.addErr
	}
	f.balances[id] += delta
	return f.balances[id], nil
}

type recordingObserver struct {
	recommended int
	ranking     string
	credited    int
}

func (r *recordingObserver) ObserveRecommendation(n int, _ time.Duration) { r.recommended = n }

func (r *recordingObserver) ObserveFootprint(ranking string, credited int, _ time.Duration) {
	r.ranking = ranking
	r.credited = credited
}

func line(carbon, sustain float64, qty int) model.OrderLine {
	return model.OrderLine{ProductID: "p", Quantity: qty, CarbonImpact: carbon, SustainabilityScore: sustain, Category: model.CategoryHome}
}

// alice buys at 4.0 per item; bob pulls the population average to 5.0.
func twoShoppers() *fakeOrders {
	return &fakeOrders{byUser: map[string][]model.OrderLine{
		"alice": {line(4.0, 80, 2)},
		"bob":   {line(6.0, 40, 2)},
	}}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestFootprint_CreditsBelowAverageShopper(t *testing.T) {
	users := newFakeUsers()
	users.balances["alice"] = 3
	obs := &recordingObserver{}
	svc := New(&fakeCatalog{}, twoShoppers(), users, scorer.DefaultScorerConfig(), WithObserver(obs))

	r, err := svc.Footprint(context.Background(), "alice", true)
	require.NoError(t, err)

	assert.InDelta(t, 8.0, r.PersonalStats.TotalCarbon, 1e-9)
	assert.Equal(t, 2, r.PersonalStats.TotalItems)
	assert.InDelta(t, 4.0, r.PersonalStats.AverageCarbonPerItem, 1e-9)
	assert.InDelta(t, 80.0, r.PersonalStats.AverageSustainability, 1e-9)

	assert.InDelta(t, 5.0, r.Comparison.GlobalAverageCarbonPerItem, 1e-9)
	assert.InDelta(t, 1.0, r.Comparison.CarbonSavings, 1e-9)
	assert.InDelta(t, 20.0, r.Comparison.PercentageReduction, 1e-9)
	assert.Equal(t, scorer.RankingBelowAverage, r.Comparison.Ranking)

	assert.Equal(t, 2, r.Rewards.LastEarned)
	assert.Equal(t, 5, r.Rewards.GreenTokens)
	assert.Equal(t, 1, users.addCalls)
	assert.Equal(t, 2, obs.credited)
	assert.Equal(t, scorer.RankingBelowAverage, obs.ranking)
}

func TestFootprint_NoWriteWhenNothingEarned(t *testing.T) {
	users := newFakeUsers()
	users.balances["bob"] = 7
	svc := New(&fakeCatalog{}, twoShoppers(), users, scorer.DefaultScorerConfig())

	r, err := svc.Footprint(context.Background(), "bob", true)
	require.NoError(t, err)

	assert.Equal(t, scorer.RankingAboveAverage, r.Comparison.Ranking)
	assert.InDelta(t, -20.0, r.Comparison.PercentageReduction, 1e-9)
	assert.Equal(t, 0, r.Rewards.LastEarned)
	assert.Equal(t, 7, r.Rewards.GreenTokens)
	assert.Equal(t, 0, users.addCalls)
}

func TestFootprint_WithoutCreditOnlyReads(t *testing.T) {
	users := newFakeUsers()
	svc := New(&fakeCatalog{}, twoShoppers(), users, scorer.DefaultScorerConfig())

	r, err := svc.Footprint(context.Background(), "alice", false)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Rewards.LastEarned)
	assert.Equal(t, 0, r.Rewards.GreenTokens)
	assert.Equal(t, 0, users.addCalls)
}

func TestFootprint_EmptyPopulation(t *testing.T) {
	users := newFakeUsers()
	svc := New(&fakeCatalog{}, &fakeOrders{}, users, scorer.DefaultScorerConfig())

	r, err := svc.Footprint(context.Background(), "nobody", true)
	require.NoError(t, err)
	assert.Zero(t, r.Comparison.GlobalAverageCarbonPerItem)
	assert.Zero(t, r.Comparison.PercentageReduction)
	assert.Equal(t, scorer.RankingAboveAverage, r.Comparison.Ranking)
	assert.Equal(t, 0, users.addCalls)
}

// A shopper with no orders averages zero carbon, which reads as a full reduction.
func TestFootprint_NoHistoryEarnsFullReduction(t *testing.T) {
	users := newFakeUsers()
	svc := New(&fakeCatalog{}, twoShoppers(), users, scorer.DefaultScorerConfig())

	r, err := svc.Footprint(context.Background(), "carol", true)
	require.NoError(t, err)
	assert.Zero(t, r.PersonalStats.TotalItems)
	assert.InDelta(t, 100.0, r.Comparison.PercentageReduction, 1e-9)
	assert.Equal(t, 10, r.Rewards.LastEarned)
	assert.Equal(t, 10, r.Rewards.GreenTokens)
	assert.Equal(t, 1, users.addCalls)
}

func TestFootprint_RepeatableWithoutCredit(t *testing.T) {
	svc := New(&fakeCatalog{}, twoShoppers(), newFakeUsers(), scorer.DefaultScorerConfig())

	first, err := svc.Footprint(context.Background(), "alice", false)
	require.NoError(t, err)
	second, err := svc.Footprint(context.Background(), "alice", false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFootprint_CreditErrorIsNotRetried(t *testing.T) {
	users := newFakeUsers()
	users.addErr = resilience.NewTransientError(errors.New("connection reset"))
	svc := New(&fakeCatalog{}, twoShoppers(), users, scorer.DefaultScorerConfig(), WithRetry(fastRetry()))

	_, err := svc.Footprint(context.Background(), "alice", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credit 2 tokens")
	assert.Equal(t, 1, users.addCalls)
}

func TestFootprint_RetriesTransientReads(t *testing.T) {
	orders := twoShoppers()
	orders.failN = 1
	orders.err = resilience.NewTransientError(errors.New("database is locked"))
	svc := New(&fakeCatalog{}, orders, newFakeUsers(), scorer.DefaultScorerConfig(), WithRetry(fastRetry()))

	r, err := svc.Footprint(context.Background(), "alice", false)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Rewards.LastEarned)
	assert.Equal(t, 3, orders.calls)
}

func TestFootprint_PermanentReadError(t *testing.T) {
	orders := &fakeOrders{failN: 10, err: errors.New("relation does not exist")}
	svc := New(&fakeCatalog{}, orders, newFakeUsers(), scorer.DefaultScorerConfig(), WithRetry(fastRetry()))

	_, err := svc.Footprint(context.Background(), "alice", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relation does not exist")
}

func catalogFixture() []model.Product {
	return []model.Product{
		{ID: "p1", Name: "Bamboo Brush", Category: model.CategoryHome, CarbonImpact: 1, SustainabilityScore: 90, InStock: true},
		{ID: "p2", Name: "Plastic Tray", Category: model.CategoryHome, CarbonImpact: 9, SustainabilityScore: 10, InStock: true},
		{ID: "p3", Name: "Organic Tea", Category: model.CategoryOrganic, CarbonImpact: 2, SustainabilityScore: 60, InStock: true},
		{ID: "p4", Name: "Sold Out Soap", Category: model.CategoryBeauty, CarbonImpact: 0.1, SustainabilityScore: 99, InStock: false},
	}
}

func TestRecommend_RanksAgainstPopulation(t *testing.T) {
	users := newFakeUsers()
	users.prefs["alice"] = model.NewPreferences("organic")
	obs := &recordingObserver{}
	svc := New(&fakeCatalog{products: catalogFixture()}, twoShoppers(), users, config.ScorerConfig{}, WithObserver(obs))

	r, err := svc.Recommend(context.Background(), "alice")
	require.NoError(t, err)

	require.Len(t, r.Recommendations, 3)
	ids := []string{r.Recommendations[0].ID, r.Recommendations[1].ID, r.Recommendations[2].ID}
	// p1: 50*90/60 - 30*1/5 = 69; p3: 50*60/60 - 30*2/5 + 20 = 58; p2 is negative.
	assert.Equal(t, []string{"p1", "p3", "p2"}, ids)
	assert.InDelta(t, 69.0, r.Recommendations[0].RecommendationScore, 1e-9)
	assert.InDelta(t, 58.0, r.Recommendations[1].RecommendationScore, 1e-9)

	assert.InDelta(t, 60.0, r.Metrics.AverageSustainabilityScore, 1e-9)
	assert.InDelta(t, 5.0, r.Metrics.AverageCarbonImpact, 1e-9)
	assert.Equal(t, 3, obs.recommended)
}

func TestRecommend_EmptyCatalog(t *testing.T) {
	svc := New(&fakeCatalog{}, twoShoppers(), newFakeUsers(), scorer.DefaultScorerConfig())

	r, err := svc.Recommend(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotNil(t, r.Recommendations)
	assert.Empty(t, r.Recommendations)
}

func TestRecommend_TopNBound(t *testing.T) {
	var products []model.Product
	for i := range 9 {
		products = append(products, model.Product{
			ID: string(rune('a' + i)), Category: model.CategoryFood,
			CarbonImpact: float64(i), SustainabilityScore: 50, InStock: true,
		})
	}
	svc := New(&fakeCatalog{products: products}, &fakeOrders{}, newFakeUsers(), scorer.DefaultScorerConfig())

	r, err := svc.Recommend(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, r.Recommendations, 5)
}

func TestRecommend_CatalogError(t *testing.T) {
	svc := New(&fakeCatalog{err: errors.New("boom")}, twoShoppers(), newFakeUsers(),
		scorer.DefaultScorerConfig(), WithRetry(fastRetry()))

	_, err := svc.Recommend(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "footprint: load catalog")
}

func TestWithObserver_NilKeepsNop(t *testing.T) {
	svc := New(&fakeCatalog{}, &fakeOrders{}, newFakeUsers(), scorer.DefaultScorerConfig(), WithObserver(nil))
	_, err := svc.Recommend(context.Background(), "alice")
	assert.NoError(t, err)
}
