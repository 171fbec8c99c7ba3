package signals

import (
	"time"

	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

// WalletFreshness scores the gap between the first external deposit and the
// first trade. Burner wallets fund and trade within hours.
type WalletFreshness struct {
	cfg    scoring.FreshnessConfig
	weight float64
}

func (s WalletFreshness) Evaluate(a *Activity) models.SignalScore {
	if len(a.Trades) == 0 || len(a.Deposits())+len(a.Redemptions()) == 0 {
		return noEvidence(NameWalletFreshness, s.weight, "no deposits or trades found")
	}

	deposits := a.Deposits()
	if len(deposits) == 0 {
		// Only payouts came in, so the trading capital arrived some other way.
		return models.NewSignalScore(NameWalletFreshness, s.cfg.BridgeScore, s.weight, map[string]any{
			"reason": "no external deposits found, likely bridge-funded",
		})
	}

	firstDeposit := earliestTransfer(deposits)
	firstTrade := earliestTrade(a.Trades)
	gapHours := firstTrade.Sub(firstDeposit).Hours()
	if gapHours < 0 {
		gapHours = 0
	}

	score := band(gapHours,
		[]float64{s.cfg.CriticalHours, s.cfg.SuspiciousHours, s.cfg.ModerateHours},
		[]float64{1.0, 0.7, 0.4},
		0.1,
	)

	return models.NewSignalScore(NameWalletFreshness, score, s.weight, map[string]any{
		"first_deposit": firstDeposit.UTC().Format(time.RFC3339),
		"first_trade":   firstTrade.UTC().Format(time.RFC3339),
		"gap_hours":     models.Round(gapHours, 2),
	})
}
