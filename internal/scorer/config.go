// Package scorer computes carbon statistics over order history and derives
// product recommendations and green-token rewards from them.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/greenshop/internal/config"
)

// DefaultScorerConfig returns a config.ScorerConfig with the storefront's
// published weights: 50 for relative sustainability, 30 for relative
// carbon, a 20 point preference bonus, the top 5 products, and one token
// per 10 percentage points of carbon reduction.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		SustainabilityWeight: 50,
		CarbonWeight:         30,
		PreferenceBonus:      20,
		TopN:                 5,
		TokenRate:            0.1,
	}
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	weights := []struct {
		name  string
		value float64
	}{
		{"sustainability_weight", c.SustainabilityWeight},
		{"carbon_weight", c.CarbonWeight},
		{"preference_bonus", c.PreferenceBonus},
		{"token_rate", c.TokenRate},
	}
	for _, w := range weights {
		if w.value < 0 || math.IsNaN(w.value) || math.IsInf(w.value, 0) {
			errs = append(errs, fmt.Sprintf("%s must be a finite value >= 0", w.name))
		}
	}

	if c.TokenRate == 0 {
		errs = append(errs, "token_rate must be > 0")
	}
	if c.TopN <= 0 {
		errs = append(errs, "top_n must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
