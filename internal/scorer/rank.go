package scorer

import (
	"cmp"
	"slices"

	"github.com/sells-group/greenshop/internal/config"
	"github.com/sells-group/greenshop/internal/model"
)

// Ranked is a product with its transient recommendation score.
type Ranked struct {
	model.Product
	RecommendationScore float64 `json:"recommendationScore"`
}

// Ranker orders in-stock products by sustainability relative to the order
// population. Population averages are used instead of the user's own so a
// user's history does not reinforce itself.
type Ranker struct {
	cfg config.ScorerConfig
}

// NewRanker creates a Ranker. Zero-valued fields in cfg fall back to
// DefaultScorerConfig.
func NewRanker(cfg config.ScorerConfig) *Ranker {
	def := DefaultScorerConfig()
	if cfg.SustainabilityWeight == 0 && cfg.CarbonWeight == 0 && cfg.PreferenceBonus == 0 {
		cfg.SustainabilityWeight = def.SustainabilityWeight
		cfg.CarbonWeight = def.CarbonWeight
		cfg.PreferenceBonus = def.PreferenceBonus
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	return &Ranker{cfg: cfg}
}

var defaultRanker = NewRanker(DefaultScorerConfig())

// Rank ranks catalog with the default weights and returns at most 5 products.
func Rank(catalog []model.Product, prefs model.Preferences, pop Stats) []Ranked {
	return defaultRanker.Rank(catalog, prefs, pop)
}

// Score computes one product's recommendation score:
//
//	w_s*(sustainability/popAvgSustainability) - w_c*(carbon/popAvgCarbon) + bonus
//
// A term whose population average is 0 contributes nothing.
func (r *Ranker) Score(p model.Product, prefs model.Preferences, pop Stats) float64 {
	score := r.cfg.SustainabilityWeight * ratio(p.SustainabilityScore, pop.AverageSustainabilityPerItem)
	score -= r.cfg.CarbonWeight * ratio(p.CarbonImpact, pop.AverageCarbonPerItem)
	if prefs.Has(p.Category) {
		score += r.cfg.PreferenceBonus
	}
	return score
}

// Rank scores every in-stock product and returns the top N by descending
// score. Equal scores keep their catalog order. The result is never nil.
func (r *Ranker) Rank(catalog []model.Product, prefs model.Preferences, pop Stats) []Ranked {
	ranked := make([]Ranked, 0, len(catalog))
	for _, p := range catalog {
		if !p.InStock {
			continue
		}
		ranked = append(ranked, Ranked{Product: p, RecommendationScore: r.Score(p, prefs, pop)})
	}

	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		return cmp.Compare(b.RecommendationScore, a.RecommendationScore)
	})

	if len(ranked) > r.cfg.TopN {
		ranked = ranked[:r.cfg.TopN]
	}
	return ranked
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
