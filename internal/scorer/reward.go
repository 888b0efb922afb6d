package scorer

import "math"

// Ranking labels. "Below Average" means the user's carbon per item is below
// the population's, which is the outcome that earns tokens.
const (
	RankingBelowAverage = "Below Average"
	RankingAboveAverage = "Above Average"
)

// Reward compares a user's carbon per item against the population.
type Reward struct {
	CarbonSavings       float64 `json:"carbonSavings"`
	PercentageReduction float64 `json:"percentageReduction"`
	TokensToAdd         int     `json:"tokensToAdd"`
	Ranking             string  `json:"ranking"`
}

// Ledger converts relative carbon performance into green tokens.
type Ledger struct {
	rate float64
}

// NewLedger creates a Ledger crediting rate tokens per percentage point of
// reduction. A non-positive rate falls back to the default of 0.1.
func NewLedger(rate float64) *Ledger {
	if rate <= 0 || math.IsNaN(rate) {
		rate = DefaultScorerConfig().TokenRate
	}
	return &Ledger{rate: rate}
}

var defaultLedger = NewLedger(0)

// ComputeReward computes a reward with the default token rate.
func ComputeReward(personal, pop Stats) Reward {
	return defaultLedger.Compute(personal, pop)
}

// Compute is a pure function of its inputs. TokensToAdd is never negative.
func (l *Ledger) Compute(personal, pop Stats) Reward {
	r := Reward{
		CarbonSavings: pop.AverageCarbonPerItem - personal.AverageCarbonPerItem,
		Ranking:       RankingAboveAverage,
	}
	if pop.AverageCarbonPerItem > 0 {
		r.PercentageReduction = r.CarbonSavings / pop.AverageCarbonPerItem * 100
	}
	if r.PercentageReduction > 0 {
		r.TokensToAdd = int(math.Floor(r.PercentageReduction * l.rate))
		r.Ranking = RankingBelowAverage
	}
	return r
}
