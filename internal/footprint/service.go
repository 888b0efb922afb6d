// Package footprint runs the scoring engine against live storage: it loads
// the catalog, the order population, and a user's own history, then ranks
// recommendations or computes and credits green-token rewards.
package footprint

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/greenshop/internal/config"
	"github.com/sells-group/greenshop/internal/model"
	"github.com/sells-group/greenshop/internal/resilience"
	"github.com/sells-group/greenshop/internal/scorer"
)

// Catalog supplies the products eligible for recommendation.
type Catalog interface {
	InStockProducts(ctx context.Context) ([]model.Product, error)
}

// Orders supplies order-line snapshots for the population or one user.
type Orders interface {
	OrderLines(ctx context.Context, scope model.Scope) ([]model.OrderLine, error)
}

// Users reads preferences and balances and credits tokens.
type Users interface {
	Preferences(ctx context.Context, userID string) (model.Preferences, error)
	TokenBalance(ctx context.Context, userID string) (int, error)
	AddTokens(ctx context.Context, userID string, delta int) (int, error)
}

// Observer receives engine timings. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveRecommendation(n int, d time.Duration)
	ObserveFootprint(ranking string, credited int, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRecommendation(int, time.Duration) {}
func (nopObserver) ObserveFootprint(string, int, time.Duration) {}

// Service computes recommendations and footprint reports.
type Service struct {
	catalog  Catalog
	orders   Orders
	users    Users
	ranker   *scorer.Ranker
	ledger   *scorer.Ledger
	retry    resilience.RetryConfig
	observer Observer
}

// Option configures a Service.
type Option func(*Service)

// WithRetry sets the retry policy for reads. Token credits are never retried.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithObserver sets the metrics sink. A nil observer is ignored.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// New creates a Service. Zero-valued scorer settings fall back to the
// scorer defaults.
func New(catalog Catalog, orders Orders, users Users, cfg config.ScorerConfig, opts ...Option) *Service {
	s := &Service{
		catalog:  catalog,
		orders:   orders,
		users:    users,
		ranker:   scorer.NewRanker(cfg),
		ledger:   scorer.NewLedger(cfg.TokenRate),
		retry:    resilience.DefaultRetryConfig(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecommendationMetrics are the population averages a ranking was scored against.
type RecommendationMetrics struct {
	AverageSustainabilityScore float64 `json:"averageSustainabilityScore"`
	AverageCarbonImpact        float64 `json:"averageCarbonImpact"`
}

// Recommendations is the response for a user's recommendation request.
type Recommendations struct {
	Recommendations []scorer.Ranked       `json:"recommendations"`
	Metrics         RecommendationMetrics `json:"metrics"`
}

// Recommend ranks the in-stock catalog for userID against the current order
// population. An empty catalog yields an empty, non-nil list.
func (s *Service) Recommend(ctx context.Context, userID string) (*Recommendations, error) {
	start := time.Now()

	var (
		catalog []model.Product
		lines   []model.OrderLine
		prefs   model.Preferences
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = resilience.DoVal(gCtx, s.retryFor("in_stock_products"), s.catalog.InStockProducts)
		return eris.Wrap(err, "footprint: load catalog")
	})
	g.Go(func() error {
		var err error
		lines, err = s.orderLines(gCtx, model.ScopeAll)
		return eris.Wrap(err, "footprint: load population")
	})
	g.Go(func() error {
		var err error
		prefs, err = resilience.DoVal(gCtx, s.retryFor("preferences"), func(ctx context.Context) (model.Preferences, error) {
			return s.users.Preferences(ctx, userID)
		})
		return eris.Wrapf(err, "footprint: load preferences for %s", userID)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pop := scorer.Aggregate(lines)
	ranked := s.ranker.Rank(catalog, prefs, pop)

	s.observer.ObserveRecommendation(len(ranked), time.Since(start))
	zap.L().Debug("footprint: ranked recommendations",
		zap.String("user_id", userID),
		zap.Int("catalog", len(catalog)),
		zap.Int("population_items", pop.TotalItems),
		zap.Int("returned", len(ranked)),
	)

	return &Recommendations{
		Recommendations: ranked,
		Metrics: RecommendationMetrics{
			AverageSustainabilityScore: pop.AverageSustainabilityPerItem,
			AverageCarbonImpact:        pop.AverageCarbonPerItem,
		},
	}, nil
}

// PersonalStats summarizes a user's own purchases.
type PersonalStats struct {
	TotalCarbon           float64 `json:"totalCarbon"`
	AverageCarbonPerItem  float64 `json:"averageCarbonPerItem"`
	TotalItems            int     `json:"totalItems"`
	AverageSustainability float64 `json:"averageSustainability"`
}

// Comparison places the user against the order population.
type Comparison struct {
	GlobalAverageCarbonPerItem float64 `json:"globalAverageCarbonPerItem"`
	CarbonSavings              float64 `json:"carbonSavings"`
	PercentageReduction        float64 `json:"percentageReduction"`
	Ranking                    string  `json:"ranking"`
}

// Rewards is the user's balance and the tokens this computation earned.
type Rewards struct {
	GreenTokens int `json:"greenTokens"`
	LastEarned  int `json:"lastEarned"`
}

// Report is a user's carbon footprint report.
type Report struct {
	PersonalStats PersonalStats `json:"personalStats"`
	Comparison    Comparison    `json:"comparison"`
	Rewards       Rewards       `json:"rewards"`
}

// Footprint computes userID's report. When credit is true and the reward is
// positive, the earned tokens are added to the balance in a single atomic
// store call; otherwise the balance is only read. LastEarned always reports
// the reward's TokensToAdd.
func (s *Service) Footprint(ctx context.Context, userID string, credit bool) (*Report, error) {
	start := time.Now()

	var personalLines, popLines []model.OrderLine
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		personalLines, err = s.orderLines(gCtx, model.UserScope(userID))
		return eris.Wrapf(err, "footprint: load history for %s", userID)
	})
	g.Go(func() error {
		var err error
		popLines, err = s.orderLines(gCtx, model.ScopeAll)
		return eris.Wrap(err, "footprint: load population")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	personal := scorer.Aggregate(personalLines)
	pop := scorer.Aggregate(popLines)
	reward := s.ledger.Compute(personal, pop)

	balance, credited, err := s.settle(ctx, userID, reward.TokensToAdd, credit)
	if err != nil {
		return nil, err
	}

	s.observer.ObserveFootprint(reward.Ranking, credited, time.Since(start))
	zap.L().Debug("footprint: computed report",
		zap.String("user_id", userID),
		zap.Float64("percentage_reduction", reward.PercentageReduction),
		zap.Int("tokens", reward.TokensToAdd),
		zap.Bool("credited", credited > 0),
	)

	return &Report{
		PersonalStats: PersonalStats{
			TotalCarbon:           personal.TotalCarbon,
			AverageCarbonPerItem:  personal.AverageCarbonPerItem,
			TotalItems:            personal.TotalItems,
			AverageSustainability: personal.AverageSustainabilityPerItem,
		},
		Comparison: Comparison{
			GlobalAverageCarbonPerItem: pop.AverageCarbonPerItem,
			CarbonSavings:              reward.CarbonSavings,
			PercentageReduction:        reward.PercentageReduction,
			Ranking:                    reward.Ranking,
		},
		Rewards: Rewards{
			GreenTokens: balance,
			LastEarned:  reward.TokensToAdd,
		},
	}, nil
}

// settle returns the user's balance after an optional credit and the number
// of tokens actually credited.
func (s *Service) settle(ctx context.Context, userID string, tokens int, credit bool) (int, int, error) {
	if credit && tokens > 0 {
		balance, err := s.users.AddTokens(ctx, userID, tokens)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "footprint: credit %d tokens to %s", tokens, userID)
		}
		zap.L().Info("footprint: credited green tokens",
			zap.String("user_id", userID),
			zap.Int("tokens", tokens),
			zap.Int("balance", balance),
		)
		return balance, tokens, nil
	}

	balance, err := resilience.DoVal(ctx, s.retryFor("token_balance"), func(ctx context.Context) (int, error) {
		return s.users.TokenBalance(ctx, userID)
	})
	if err != nil {
		return 0, 0, eris.Wrapf(err, "footprint: token balance for %s", userID)
	}
	return balance, 0, nil
}

func (s *Service) orderLines(ctx context.Context, scope model.Scope) ([]model.OrderLine, error) {
	return resilience.DoVal(ctx, s.retryFor("order_lines"), func(ctx context.Context) ([]model.OrderLine, error) {
		return s.orders.OrderLines(ctx, scope)
	})
}

func (s *Service) retryFor(operation string) resilience.RetryConfig {
	cfg := s.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("footprint", operation)
	}
	return cfg
}
