package signals

import (
	"math"

	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

// MarketFocus rewards wallets that trade very few markets.
type MarketFocus struct {
	cfg    scoring.FocusConfig
	weight float64
}

func (s MarketFocus) Evaluate(a *Activity) models.SignalScore {
	if len(a.Trades) == 0 {
		return noEvidence(NameMarketFocus, s.weight, "no trades")
	}

	n := a.MarketCount()
	var score float64
	switch {
	case n <= 1:
		score = s.cfg.SingleMarketScore
	case n == 2:
		score = s.cfg.TwoMarketsScore
	case n == 3:
		score = s.cfg.ThreeMarketsScore
	default:
		score = models.Round(math.Max(s.cfg.Floor, s.cfg.SingleMarketScore-float64(n-1)*s.cfg.DecayPerMarket), 4)
	}

	return models.NewSignalScore(NameMarketFocus, score, s.weight, map[string]any{
		"unique_markets": n,
	})
}
