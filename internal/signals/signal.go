// Package signals implements the six behavioral heuristics that score a wallet
// for trading on non-public information.
//
// Each signal is a pure function of an Activity snapshot and returns a score
// in [0, 1] together with its fixed weight and a diagnostic payload. Missing
// data never fails an evaluation; it maps to the signal's documented default.
package signals

import (
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

// Signal names as they appear in reports.
const (
	NameWalletFreshness  = "WalletFreshness"
	NameOutcomeCertainty = "OutcomeCertainty"
	NameEntryTiming      = "EntryTiming"
	NameMarketFocus      = "MarketFocus"
	NamePositionSize     = "PositionSize"
	NameSurgicalBehavior = "SurgicalBehavior"
)

// Names lists every signal in evaluation order.
var Names = []string{
	NameWalletFreshness,
	NameOutcomeCertainty,
	NameEntryTiming,
	NameMarketFocus,
	NamePositionSize,
	NameSurgicalBehavior,
}

// Signal evaluates one behavioral heuristic against a wallet snapshot.
type Signal interface {
	Evaluate(a *Activity) models.SignalScore
}

// All returns one instance of every signal, in evaluation order.
func All(cfg scoring.Config) []Signal {
	return []Signal{
		WalletFreshness{cfg: cfg.Freshness, weight: cfg.Weights.WalletFreshness},
		OutcomeCertainty{cfg: cfg.Certainty, weight: cfg.Weights.OutcomeCertainty},
		EntryTiming{cfg: cfg.Timing, weight: cfg.Weights.EntryTiming},
		MarketFocus{cfg: cfg.Focus, weight: cfg.Weights.MarketFocus},
		PositionSize{cfg: cfg.Size, weight: cfg.Weights.PositionSize},
		SurgicalBehavior{cfg: cfg.Surgical, weight: cfg.Weights.SurgicalBehavior},
	}
}

func noEvidence(name string, weight float64, reason string) models.SignalScore {
	return models.NewSignalScore(name, 0, weight, map[string]any{"reason": reason})
}

// band returns the first score whose threshold v does not exceed, else fallback.
// Thresholds must be ascending.
func band(v float64, thresholds []float64, scores []float64, fallback float64) float64 {
	for i, t := range thresholds {
		if v <= t {
			return scores[i]
		}
	}
	return fallback
}
