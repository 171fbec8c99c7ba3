package signals

import (
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

// PositionSize scores the largest buy volume concentrated on one token.
type PositionSize struct {
	cfg    scoring.SizeConfig
	weight float64
}

func (s PositionSize) Evaluate(a *Activity) models.SignalScore {
	if len(a.Trades) == 0 {
		return noEvidence(NamePositionSize, s.weight, "no trades")
	}

	byToken := make(map[string]float64)
	var total float64
	for _, t := range a.Buys() {
		byToken[t.TokenID] += t.AmountUSD
		total += t.AmountUSD
	}
	var maxVolume float64
	for _, v := range byToken {
		if v > maxVolume {
			maxVolume = v
		}
	}

	var score float64
	switch {
	case maxVolume >= s.cfg.LargeUSD:
		score = 1.0
	case maxVolume >= s.cfg.MediumUSD:
		score = 0.7
	case maxVolume >= s.cfg.SmallUSD:
		score = 0.4
	default:
		score = 0.1
	}

	return models.NewSignalScore(NamePositionSize, score, s.weight, map[string]any{
		"total_buy_volume":         models.Round(total, 2),
		"max_single_market_volume": models.Round(maxVolume, 2),
	})
}
