package signals

import (
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

// EntryTiming flags first buys placed in the final stretch of a market's life.
type EntryTiming struct {
	cfg    scoring.TimingConfig
	weight float64
}

func (s EntryTiming) Evaluate(a *Activity) models.SignalScore {
	if len(a.Trades) == 0 {
		return noEvidence(NameEntryTiming, s.weight, "no trades")
	}

	firstBuy := make(map[string]models.Trade)
	for _, t := range a.Buys() {
		if cur, ok := firstBuy[t.TokenID]; !ok || t.Timestamp.Before(cur.Timestamp) {
			firstBuy[t.TokenID] = t
		}
	}

	var best float64
	minRemaining := -1.0
	evaluated, skipped := 0, 0
	for _, tokenID := range a.TokenIDs() {
		buy, ok := firstBuy[tokenID]
		if !ok {
			continue
		}
		market := a.Market(tokenID)
		if market == nil {
			skipped++
			continue
		}
		start, resolution, ok := market.Window(s.cfg.DefaultLifetime)
		if !ok {
			skipped++
			continue
		}

		duration := resolution.Sub(start)
		remaining := resolution.Sub(buy.Timestamp)
		if duration <= 0 || remaining < 0 {
			skipped++
			continue
		}

		pct := remaining.Seconds() / duration.Seconds()
		score := band(pct,
			[]float64{s.cfg.CriticalPct, s.cfg.SuspiciousPct, s.cfg.ModeratePct},
			[]float64{1.0, 0.7, 0.4},
			0.1,
		)
		evaluated++
		if score > best {
			best = score
		}
		if minRemaining < 0 || pct < minRemaining {
			minRemaining = pct
		}
	}

	details := map[string]any{
		"markets_evaluated": evaluated,
		"markets_skipped":   skipped,
	}
	if evaluated > 0 {
		details["min_pct_remaining"] = models.Round(minRemaining, 4)
	}
	return models.NewSignalScore(NameEntryTiming, best, s.weight, details)
}
