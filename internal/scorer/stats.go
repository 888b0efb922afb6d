package scorer

import "github.com/sells-group/greenshop/internal/model"

// Stats is the carbon and sustainability aggregate over a set of order
// lines. Averages are per purchased item and are 0 when TotalItems is 0.
// A Stats value is never mutated; Add and Merge return new values.
type Stats struct {
	TotalCarbon                  float64 `json:"totalCarbon"`
	TotalSustainability          float64 `json:"totalSustainability"`
	TotalItems                   int     `json:"totalItems"`
	AverageCarbonPerItem         float64 `json:"averageCarbonPerItem"`
	AverageSustainabilityPerItem float64 `json:"averageSustainability"`
}

// Aggregate folds order lines into Stats. Lines are assumed to have
// Quantity >= 1; the order path rejects anything else before storage.
func Aggregate(lines []model.OrderLine) Stats {
	var s Stats
	for _, l := range lines {
		s = s.Add(l)
	}
	return s
}

// Add returns s with one more line folded in.
func (s Stats) Add(l model.OrderLine) Stats {
	qty := float64(l.Quantity)
	return fromTotals(
		s.TotalCarbon+l.CarbonImpact*qty,
		s.TotalSustainability+l.SustainabilityScore*qty,
		s.TotalItems+l.Quantity,
	)
}

// Merge combines two aggregates as if their lines had been folded together.
// It lets callers keep running per-shard sums instead of rescanning history.
func (s Stats) Merge(o Stats) Stats {
	return fromTotals(
		s.TotalCarbon+o.TotalCarbon,
		s.TotalSustainability+o.TotalSustainability,
		s.TotalItems+o.TotalItems,
	)
}

func fromTotals(carbon, sustainability float64, items int) Stats {
	s := Stats{
		TotalCarbon:         carbon,
		TotalSustainability: sustainability,
		TotalItems:          items,
	}
	if items > 0 {
		s.AverageCarbonPerItem = carbon / float64(items)
		s.AverageSustainabilityPerItem = sustainability / float64(items)
	}
	return s
}
