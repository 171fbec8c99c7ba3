package scoring

import (
	"math"

	"github.com/rewired-gh/polysleuth/internal/models"
)

// Scorer combines signal scores into a composite and classifies it.
type Scorer struct {
	tiers Tiers
}

// NewScorer creates a scorer for the given calibration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{tiers: cfg.Tiers}
}

// Composite is the weighted sum of all signals, clamped to [0, 1] and rounded to 4 places.
func (s *Scorer) Composite(signals []models.SignalScore) float64 {
	var total float64
	for _, sig := range signals {
		total += sig.WeightedScore
	}
	return models.Round(math.Min(1, math.Max(0, total)), 4)
}

// Classify maps a composite score to its tier. Lower bounds are inclusive.
func (s *Scorer) Classify(score float64) models.RiskLevel {
	switch {
	case score >= s.tiers.Critical:
		return models.RiskCritical
	case score >= s.tiers.High:
		return models.RiskHigh
	case score >= s.tiers.Medium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
