package signals

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

const testWallet = "0x6baf05d193692bb208d616709e27442c910a94c5"

var t0 = time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)

var txSeq int

func nextTx() string {
	txSeq++
	return fmt.Sprintf("0x%064x", txSeq)
}

func buy(token string, at time.Time, usd, price float64) models.Trade {
	return models.Trade{
		TxHash:    nextTx(),
		Timestamp: at,
		Wallet:    testWallet,
		TokenID:   token,
		Side:      models.SideBuy,
		AmountUSD: usd,
		Price:     price,
		Exchange:  "polymarket",
	}
}

func sell(token string, at time.Time, usd, price float64) models.Trade {
	tr := buy(token, at, usd, price)
	tr.Side = models.SideSell
	return tr
}

func deposit(at time.Time, usd float64) models.Transfer {
	return models.NewDeposit(nextTx(), at, testWallet, models.ExternalAddress, usd)
}

func redemption(at time.Time, usd float64) models.Transfer {
	return models.NewRedemption(nextTx(), at, testWallet, usd)
}

func withdrawal(at time.Time, usd float64) models.Transfer {
	return models.NewWithdrawal(nextTx(), at, testWallet, models.ExternalAddress, usd)
}

func evaluate(sig Signal, a *Activity) models.SignalScore {
	return sig.Evaluate(a)
}

func defaults() scoring.Config {
	return scoring.DefaultConfig()
}

func freshness(cfg scoring.Config) Signal { return All(cfg)[0] }
func certainty(cfg scoring.Config) Signal { return All(cfg)[1] }
func timing(cfg scoring.Config) Signal    { return All(cfg)[2] }
func focus(cfg scoring.Config) Signal     { return All(cfg)[3] }
func size(cfg scoring.Config) Signal      { return All(cfg)[4] }
func surgical(cfg scoring.Config) Signal  { return All(cfg)[5] }

func TestAllIsClosedAndOrdered(t *testing.T) {
	sigs := All(defaults())
	require.Len(t, sigs, len(Names))

	a := &Activity{Wallet: testWallet}
	for i, s := range sigs {
		assert.Equal(t, Names[i], s.Evaluate(a).Name)
	}
}

func TestWalletFreshness(t *testing.T) {
	tests := []struct {
		name      string
		trades    []models.Trade
		transfers []models.Transfer
		want      float64
	}{
		{"funded one hour before trading", []models.Trade{buy("a", t0.Add(time.Hour), 100, 0.3)}, []models.Transfer{deposit(t0, 100)}, 1.0},
		{"funded ten hours before", []models.Trade{buy("a", t0.Add(10*time.Hour), 100, 0.3)}, []models.Transfer{deposit(t0, 100)}, 0.7},
		{"funded thirty hours before", []models.Trade{buy("a", t0.Add(30*time.Hour), 100, 0.3)}, []models.Transfer{deposit(t0, 100)}, 0.4},
		{"funded a month before", []models.Trade{buy("a", t0.Add(30*24*time.Hour), 100, 0.3)}, []models.Transfer{deposit(t0, 100)}, 0.1},
		{"trade before deposit clamps to zero", []models.Trade{buy("a", t0, 100, 0.3)}, []models.Transfer{deposit(t0.Add(5*time.Hour), 100)}, 1.0},
		{"only redemptions means bridge funded", []models.Trade{buy("a", t0, 100, 0.3)}, []models.Transfer{redemption(t0.Add(time.Hour), 300)}, 0.7},
		{"no transfers", []models.Trade{buy("a", t0, 100, 0.3)}, nil, 0.0},
		{"withdrawals only", []models.Trade{buy("a", t0, 100, 0.3)}, []models.Transfer{withdrawal(t0, 10)}, 0.0},
		{"no trades", nil, []models.Transfer{deposit(t0, 100)}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(freshness(defaults()), &Activity{Wallet: testWallet, Trades: tt.trades, Transfers: tt.transfers})
			assert.Equal(t, tt.want, got.Score)
			assert.Equal(t, NameWalletFreshness, got.Name)
		})
	}
}

func TestWalletFreshnessDetails(t *testing.T) {
	a := &Activity{
		Wallet:    testWallet,
		Trades:    []models.Trade{buy("a", t0.Add(90*time.Minute), 100, 0.3)},
		Transfers: []models.Transfer{deposit(t0, 100)},
	}
	got := evaluate(freshness(defaults()), a)
	assert.Equal(t, 1.5, got.Details["gap_hours"])
	assert.Equal(t, "2025-01-03T12:00:00Z", got.Details["first_deposit"])
	assert.Equal(t, "2025-01-03T13:30:00Z", got.Details["first_trade"])
}

func TestOutcomeCertainty(t *testing.T) {
	strict := defaults()
	strict.Certainty.MinPayoutRatio = 5

	tests := []struct {
		name      string
		cfg       scoring.Config
		trades    []models.Trade
		transfers []models.Transfer
		want      float64
	}{
		{"cheap entry and profitable", defaults(),
			[]models.Trade{buy("a", t0, 1000, 0.10), buy("a", t0.Add(time.Hour), 1000, 0.20)},
			[]models.Transfer{redemption(t0.Add(48*time.Hour), 13000)}, 1.0},
		{"cheap entry, not profitable", defaults(),
			[]models.Trade{buy("a", t0, 1000, 0.10)},
			[]models.Transfer{redemption(t0.Add(48*time.Hour), 900)}, 0.7},
		{"cheap but low payout ratio", strict,
			[]models.Trade{buy("a", t0, 1000, 0.40)}, nil, 0.4},
		{"expensive entry", defaults(),
			[]models.Trade{buy("a", t0, 1000, 0.90)},
			[]models.Transfer{redemption(t0.Add(48*time.Hour), 5000)}, 0.1},
		{"below min price is not cheap", defaults(),
			[]models.Trade{buy("a", t0, 1000, 0.01)}, nil, 0.1},
		{"max across positions", defaults(),
			[]models.Trade{buy("a", t0, 1000, 0.90), buy("b", t0, 100, 0.25)}, nil, 0.7},
		{"sells only", defaults(),
			[]models.Trade{sell("a", t0, 1000, 0.10)}, nil, 0.0},
		{"no trades", defaults(), nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(certainty(tt.cfg), &Activity{Wallet: testWallet, Trades: tt.trades, Transfers: tt.transfers})
			assert.Equal(t, tt.want, got.Score)
		})
	}
}

func TestOutcomeCertaintyDetails(t *testing.T) {
	a := &Activity{
		Wallet:    testWallet,
		Trades:    []models.Trade{buy("a", t0, 1000, 0.25), sell("a", t0.Add(time.Hour), 400, 0.5)},
		Transfers: []models.Transfer{redemption(t0.Add(24*time.Hour), 4000), deposit(t0, 1000)},
	}
	got := evaluate(certainty(defaults()), a)
	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, 1000.0, got.Details["total_bought"])
	assert.Equal(t, 4000.0, got.Details["total_redeemed"])
	assert.Equal(t, true, got.Details["profitable"])
	assert.Equal(t, 1, got.Details["positions_count"])
	assert.Equal(t, 4.0, got.Details["best_payout_ratio"])
}

func TestEntryTiming(t *testing.T) {
	start := t0
	end := t0.Add(100 * time.Hour)
	market := &models.Market{ConditionID: "c1", StartDate: start, EndDate: end, TokenIDs: []string{"a"}}
	markets := map[string]*models.Market{"a": market}

	tests := []struct {
		name    string
		trades  []models.Trade
		markets map[string]*models.Market
		want    float64
	}{
		{"final five percent", []models.Trade{buy("a", start.Add(97*time.Hour), 100, 0.5)}, markets, 1.0},
		{"exactly five percent", []models.Trade{buy("a", start.Add(95*time.Hour), 100, 0.5)}, markets, 1.0},
		{"final fifteen percent", []models.Trade{buy("a", start.Add(90*time.Hour), 100, 0.5)}, markets, 0.7},
		{"final thirty percent", []models.Trade{buy("a", start.Add(75*time.Hour), 100, 0.5)}, markets, 0.4},
		{"early entry", []models.Trade{buy("a", start.Add(10*time.Hour), 100, 0.5)}, markets, 0.1},
		{"first buy counts, not later buys", []models.Trade{
			buy("a", start.Add(10*time.Hour), 100, 0.5),
			buy("a", start.Add(99*time.Hour), 100, 0.5),
		}, markets, 0.1},
		{"trade after resolution is skipped", []models.Trade{buy("a", end.Add(time.Hour), 100, 0.5)}, markets, 0.0},
		{"unknown market", []models.Trade{buy("zzz", start.Add(99*time.Hour), 100, 0.5)}, markets, 0.0},
		{"no metadata at all", []models.Trade{buy("a", start.Add(99*time.Hour), 100, 0.5)}, nil, 0.0},
		{"sells are ignored", []models.Trade{sell("a", start.Add(99*time.Hour), 100, 0.5)}, markets, 0.0},
		{"no trades", nil, markets, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(timing(defaults()), &Activity{Wallet: testWallet, Trades: tt.trades, Markets: tt.markets})
			assert.Equal(t, tt.want, got.Score)
		})
	}
}

func TestEntryTimingWindowFallbacks(t *testing.T) {
	end := t0.Add(30 * 24 * time.Hour)

	// No start date: lifetime defaults to 30 days before end.
	noStart := &models.Market{ConditionID: "c1", EndDate: end}
	a := &Activity{
		Wallet:  testWallet,
		Trades:  []models.Trade{buy("a", end.Add(-24*time.Hour), 100, 0.5)},
		Markets: map[string]*models.Market{"a": noStart},
	}
	got := evaluate(timing(defaults()), a)
	assert.Equal(t, 1.0, got.Score, "one day of thirty remaining")
	assert.Equal(t, 1, got.Details["markets_evaluated"])

	// Actual close before nominal end: resolution uses the close time.
	closedEarly := &models.Market{ConditionID: "c2", StartDate: t0, EndDate: t0.Add(1000 * time.Hour), ClosedTime: t0.Add(100 * time.Hour)}
	a = &Activity{
		Wallet:  testWallet,
		Trades:  []models.Trade{buy("b", t0.Add(96*time.Hour), 100, 0.5)},
		Markets: map[string]*models.Market{"b": closedEarly},
	}
	assert.Equal(t, 1.0, evaluate(timing(defaults()), a).Score)

	// Zero-length window is skipped rather than failing.
	zero := &models.Market{ConditionID: "c3", StartDate: t0, EndDate: t0}
	a = &Activity{
		Wallet:  testWallet,
		Trades:  []models.Trade{buy("c", t0.Add(-time.Hour), 100, 0.5)},
		Markets: map[string]*models.Market{"c": zero},
	}
	got = evaluate(timing(defaults()), a)
	assert.Equal(t, 0.0, got.Score)
	assert.Equal(t, 1, got.Details["markets_skipped"])
}

func TestMarketFocus(t *testing.T) {
	tradesOn := func(n int) []models.Trade {
		var out []models.Trade
		for i := 0; i < n; i++ {
			out = append(out, buy(fmt.Sprintf("tok-%d", i), t0, 10, 0.5))
		}
		return out
	}

	tests := []struct {
		name string
		n    int
		want float64
	}{
		{"one market", 1, 1.0},
		{"two markets", 2, 0.7},
		{"three markets", 3, 0.4},
		{"four markets", 4, 0.55},
		{"five markets", 5, 0.4},
		{"many markets floor", 10, 0.1},
		{"no trades", 0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(focus(defaults()), &Activity{Wallet: testWallet, Trades: tradesOn(tt.n)})
			assert.InDelta(t, tt.want, got.Score, 1e-9)
		})
	}
}

func TestMarketFocusUsesConditionMapping(t *testing.T) {
	m := &models.Market{ConditionID: "cond-1", TokenIDs: []string{"yes", "no"}}
	a := &Activity{
		Wallet:  testWallet,
		Trades:  []models.Trade{buy("yes", t0, 10, 0.5), buy("no", t0, 10, 0.5)},
		Markets: map[string]*models.Market{"yes": m, "no": m},
	}
	got := evaluate(focus(defaults()), a)
	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, 1, got.Details["unique_markets"])

	a.Markets = nil
	got = evaluate(focus(defaults()), a)
	assert.Equal(t, 0.7, got.Score, "unmapped tokens fall back to token count")
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name   string
		trades []models.Trade
		want   float64
	}{
		{"exactly large threshold", []models.Trade{buy("a", t0, 10_000, 0.5)}, 1.0},
		{"just below large threshold", []models.Trade{buy("a", t0, 9_999.99, 0.5)}, 0.7},
		{"accumulated on one token", []models.Trade{buy("a", t0, 6_000, 0.5), buy("a", t0.Add(time.Hour), 4_000, 0.5)}, 1.0},
		{"spread across tokens uses max", []models.Trade{buy("a", t0, 6_000, 0.5), buy("b", t0, 6_000, 0.5)}, 0.7},
		{"small", []models.Trade{buy("a", t0, 1_000, 0.5)}, 0.4},
		{"tiny", []models.Trade{buy("a", t0, 999, 0.5)}, 0.1},
		{"sells do not count", []models.Trade{sell("a", t0, 50_000, 0.5)}, 0.1},
		{"no trades", nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(size(defaults()), &Activity{Wallet: testWallet, Trades: tt.trades})
			assert.Equal(t, tt.want, got.Score)
		})
	}
}

func TestSurgicalBehavior(t *testing.T) {
	trades := []models.Trade{buy("a", t0.Add(time.Hour), 1000, 0.2)}

	tests := []struct {
		name      string
		trades    []models.Trade
		transfers []models.Transfer
		want      float64
	}{
		{"full pattern", trades, []models.Transfer{deposit(t0, 1000), redemption(t0.Add(10*time.Hour), 1500), withdrawal(t0.Add(11*time.Hour), 1500)}, 1.0},
		{"profitable but below ratio", trades, []models.Transfer{deposit(t0, 1000), redemption(t0.Add(10*time.Hour), 1100)}, 0.6},
		{"payout before last trade", []models.Trade{
			buy("a", t0.Add(time.Hour), 500, 0.2),
			buy("b", t0.Add(20*time.Hour), 500, 0.2),
		}, []models.Transfer{deposit(t0, 1000), redemption(t0.Add(10*time.Hour), 5000)}, 0.6},
		{"funding long after trading", trades, []models.Transfer{deposit(t0.Add(48*time.Hour), 1000), redemption(t0.Add(72*time.Hour), 5000)}, 0.6},
		{"funding within grace", trades, []models.Transfer{deposit(t0.Add(20*time.Hour), 1000), redemption(t0.Add(30*time.Hour), 5000)}, 1.0},
		{"untracked funding still chronological", trades, []models.Transfer{redemption(t0.Add(10*time.Hour), 2000)}, 1.0},
		{"payout without profit", trades, []models.Transfer{deposit(t0, 1000), redemption(t0.Add(10*time.Hour), 800)}, 0.4},
		{"trades only", trades, []models.Transfer{deposit(t0, 1000)}, 0.3},
		{"no trades", nil, []models.Transfer{deposit(t0, 1000)}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(surgical(defaults()), &Activity{Wallet: testWallet, Trades: tt.trades, Transfers: tt.transfers})
			assert.Equal(t, tt.want, got.Score)
		})
	}
}

func TestSurgicalBehaviorDetails(t *testing.T) {
	a := &Activity{
		Wallet:    testWallet,
		Trades:    []models.Trade{buy("a", t0.Add(time.Hour), 1000, 0.2)},
		Transfers: []models.Transfer{deposit(t0, 1000), redemption(t0.Add(10*time.Hour), 1500), withdrawal(t0.Add(11*time.Hour), 1400)},
	}
	got := evaluate(surgical(defaults()), a)
	assert.Equal(t, true, got.Details["chronological"])
	assert.Equal(t, true, got.Details["has_withdrawals"])
	assert.Equal(t, 1.5, got.Details["profit_ratio"])
	assert.Equal(t, 1400.0, got.Details["total_withdrawn"])
}

func TestScoresBoundedAndWeighted(t *testing.T) {
	activities := []*Activity{
		{Wallet: testWallet},
		{
			Wallet:    testWallet,
			Trades:    []models.Trade{buy("a", t0.Add(time.Hour), 20_000, 0.1), sell("a", t0.Add(2*time.Hour), 100, 0.6)},
			Transfers: []models.Transfer{deposit(t0, 20_000), redemption(t0.Add(10*time.Hour), 100_000)},
			Markets:   map[string]*models.Market{"a": {ConditionID: "c", StartDate: t0, EndDate: t0.Add(2 * time.Hour)}},
		},
		{
			Wallet: testWallet,
			Trades: []models.Trade{buy("a", t0, 5, 0.99), buy("b", t0, 5, 0.99), buy("c", t0, 5, 0.99), buy("d", t0, 5, 0.99), buy("e", t0, 5, 0.99)},
		},
	}

	for i, a := range activities {
		for _, s := range All(defaults()) {
			got := s.Evaluate(a)
			assert.GreaterOrEqual(t, got.Score, 0.0, "activity %d %s", i, got.Name)
			assert.LessOrEqual(t, got.Score, 1.0, "activity %d %s", i, got.Name)
			assert.Equal(t, models.Round(got.Score*got.Weight, 4), got.WeightedScore)
			assert.NotNil(t, got.Details)
		}
	}
}
