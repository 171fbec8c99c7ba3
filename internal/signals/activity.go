package signals

import (
	"sort"
	"time"

	"github.com/rewired-gh/polysleuth/internal/models"
)

// Activity is a read-only snapshot of everything known about one wallet.
// Signals never mutate it, so one snapshot can be shared by all evaluators.
type Activity struct {
	Wallet    string
	Trades    []models.Trade
	Transfers []models.Transfer
	// Markets maps token IDs to their market. Tokens without metadata are absent.
	Markets map[string]*models.Market
}

// Market returns the market a token trades on, or nil.
func (a *Activity) Market(tokenID string) *models.Market {
	if a.Markets == nil {
		return nil
	}
	return a.Markets[tokenID]
}

func (a *Activity) transfersOf(kind models.TransferKind) []models.Transfer {
	var out []models.Transfer
	for _, t := range a.Transfers {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Deposits returns external funding transfers.
func (a *Activity) Deposits() []models.Transfer {
	return a.transfersOf(models.TransferDeposit)
}

// Redemptions returns market resolution payouts.
func (a *Activity) Redemptions() []models.Transfer {
	return a.transfersOf(models.TransferRedemption)
}

// Withdrawals returns outbound transfers.
func (a *Activity) Withdrawals() []models.Transfer {
	return a.transfersOf(models.TransferWithdrawal)
}

// Buys returns all BUY fills.
func (a *Activity) Buys() []models.Trade {
	var out []models.Trade
	for _, t := range a.Trades {
		if t.IsBuy() {
			out = append(out, t)
		}
	}
	return out
}

// BuyVolume is the total USD spent on BUY fills.
func (a *Activity) BuyVolume() float64 {
	var total float64
	for _, t := range a.Trades {
		if t.IsBuy() {
			total += t.AmountUSD
		}
	}
	return total
}

// TokenIDs returns the distinct traded token IDs in sorted order.
func (a *Activity) TokenIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range a.Trades {
		if !seen[t.TokenID] {
			seen[t.TokenID] = true
			ids = append(ids, t.TokenID)
		}
	}
	sort.Strings(ids)
	return ids
}

// MarketCount counts distinct markets via the token to condition mapping,
// falling back to distinct token IDs when no token is mapped.
func (a *Activity) MarketCount() int {
	conditions := make(map[string]bool)
	tokens := a.TokenIDs()
	for _, id := range tokens {
		if m := a.Market(id); m != nil {
			conditions[m.ConditionID] = true
		}
	}
	if len(conditions) > 0 {
		return len(conditions)
	}
	return len(tokens)
}

func earliestTrade(trades []models.Trade) time.Time {
	var first time.Time
	for _, t := range trades {
		if first.IsZero() || t.Timestamp.Before(first) {
			first = t.Timestamp
		}
	}
	return first
}

func latestTrade(trades []models.Trade) time.Time {
	var last time.Time
	for _, t := range trades {
		if t.Timestamp.After(last) {
			last = t.Timestamp
		}
	}
	return last
}

func earliestTransfer(transfers []models.Transfer) time.Time {
	var first time.Time
	for _, t := range transfers {
		if first.IsZero() || t.Timestamp.Before(first) {
			first = t.Timestamp
		}
	}
	return first
}

func sumTransfers(transfers []models.Transfer) float64 {
	var total float64
	for _, t := range transfers {
		total += t.AmountUSD
	}
	return total
}
