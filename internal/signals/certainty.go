package signals

import (
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

// OutcomeCertainty flags cheap entries on positions the wallet went on to win.
//
// Per-market resolution is not observable from activity data, so "won" is a
// wallet-wide proxy: total redemptions exceed total buy notional.
type OutcomeCertainty struct {
	cfg    scoring.CertaintyConfig
	weight float64
}

func (s OutcomeCertainty) Evaluate(a *Activity) models.SignalScore {
	if len(a.Trades) == 0 {
		return noEvidence(NameOutcomeCertainty, s.weight, "no trades")
	}

	buysByToken := make(map[string][]models.Trade)
	for _, t := range a.Buys() {
		buysByToken[t.TokenID] = append(buysByToken[t.TokenID], t)
	}
	if len(buysByToken) == 0 {
		return noEvidence(NameOutcomeCertainty, s.weight, "no buy trades")
	}

	totalBought := a.BuyVolume()
	totalRedeemed := sumTransfers(a.Redemptions())
	profitable := totalRedeemed > totalBought

	var best, bestPayout float64
	for _, buys := range buysByToken {
		var priceSum float64
		for _, t := range buys {
			priceSum += t.Price
		}
		avgPrice := priceSum / float64(len(buys))

		var payoutRatio float64
		if avgPrice > 0 {
			payoutRatio = 1.0 / avgPrice
		}
		cheap := avgPrice >= s.cfg.MinPrice && avgPrice <= s.cfg.MaxPrice
		highPayout := payoutRatio >= s.cfg.MinPayoutRatio

		var score float64
		switch {
		case profitable && cheap && highPayout:
			score = 1.0
		case cheap && highPayout:
			score = 0.7
		case cheap:
			score = 0.4
		default:
			score = 0.1
		}
		if score > best || (score == best && payoutRatio > bestPayout) {
			best, bestPayout = score, payoutRatio
		}
	}

	return models.NewSignalScore(NameOutcomeCertainty, best, s.weight, map[string]any{
		"total_bought":      models.Round(totalBought, 2),
		"total_redeemed":    models.Round(totalRedeemed, 2),
		"profitable":        profitable,
		"positions_count":   len(buysByToken),
		"best_payout_ratio": models.Round(bestPayout, 2),
	})
}
