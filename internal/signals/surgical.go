package signals

import (
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

// SurgicalBehavior looks for the fund, bet, win, withdraw lifecycle.
type SurgicalBehavior struct {
	cfg    scoring.SurgicalConfig
	weight float64
}

func (s SurgicalBehavior) Evaluate(a *Activity) models.SignalScore {
	if len(a.Trades) == 0 {
		return noEvidence(NameSurgicalBehavior, s.weight, "no trades")
	}

	deposits := a.Deposits()
	redemptions := a.Redemptions()
	withdrawals := a.Withdrawals()

	totalFunded := sumTransfers(deposits)
	totalRedeemed := sumTransfers(redemptions)
	totalWithdrawn := sumTransfers(withdrawals)
	totalBought := a.BuyVolume()

	// Funding may settle slightly after the first fill; untracked funding still counts.
	chronological := true
	if len(deposits) > 0 {
		chronological = !earliestTransfer(deposits).After(earliestTrade(a.Trades).Add(s.cfg.FundingGrace))
	}
	if chronological && len(redemptions) > 0 {
		chronological = !earliestTransfer(redemptions).Before(latestTrade(a.Trades))
	}

	var profitRatio float64
	if totalBought > 0 {
		profitRatio = totalRedeemed / totalBought
	}
	profitable := totalBought > 0 && totalRedeemed > totalBought
	redeemed := len(redemptions) > 0

	var score float64
	switch {
	case redeemed && chronological && profitable && profitRatio >= s.cfg.MinProfitRatio:
		score = s.cfg.FullPatternScore
	case redeemed && profitable:
		score = s.cfg.PartialPatternScore
	case redeemed:
		score = s.cfg.RedeemedScore
	default:
		score = s.cfg.TradesOnlyScore
	}

	return models.NewSignalScore(NameSurgicalBehavior, score, s.weight, map[string]any{
		"has_funding":     len(deposits) > 0,
		"has_redemptions": redeemed,
		"has_withdrawals": len(withdrawals) > 0,
		"chronological":   chronological,
		"total_funded":    models.Round(totalFunded, 2),
		"total_bought":    models.Round(totalBought, 2),
		"total_redeemed":  models.Round(totalRedeemed, 2),
		"total_withdrawn": models.Round(totalWithdrawn, 2),
		"profit_ratio":    models.Round(profitRatio, 2),
	})
}
