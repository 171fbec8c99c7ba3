package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rewired-gh/polysleuth/internal/models"
)

const (
	walletA = "0x6baf05d193692bb208d616709e27442c910a94c5"
	walletB = "0x31a56e9e690c621ed21de08cb559e9524cdb8ed9"
)

var t0 = time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testTrade(tx, wallet, token string, side models.Side, at time.Time) models.Trade {
	return models.Trade{
		TxHash:      tx,
		BlockNumber: 65_000_000,
		Timestamp:   at,
		Wallet:      wallet,
		TokenID:     token,
		Side:        side,
		AmountUSD:   250,
		AmountToken: 1000,
		Price:       0.25,
		Exchange:    "ctf",
	}
}

func TestStorage_InsertAndReadTrades(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	trades := []models.Trade{
		testTrade("0x02", walletA, "tok-1", models.SideBuy, t0.Add(2*time.Hour)),
		testTrade("0x01", walletA, "tok-1", models.SideBuy, t0),
		testTrade("0x03", walletB, "tok-2", models.SideSell, t0.Add(time.Hour)),
	}
	n, err := s.InsertTrades(ctx, trades)
	if err != nil {
		t.Fatalf("InsertTrades: %v", err)
	}
	if n != 3 {
		t.Errorf("inserted %d, want 3", n)
	}

	// Same keys again are ignored.
	n, err = s.InsertTrades(ctx, trades[:2])
	if err != nil {
		t.Fatalf("InsertTrades duplicate: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted %d duplicates, want 0", n)
	}

	got, err := s.WalletTrades(ctx, walletA)
	if err != nil {
		t.Fatalf("WalletTrades: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d trades, want 2", len(got))
	}
	if got[0].TxHash != "0x01" || got[1].TxHash != "0x02" {
		t.Errorf("trades not time-ordered: %s, %s", got[0].TxHash, got[1].TxHash)
	}
	if !got[0].Timestamp.Equal(t0) {
		t.Errorf("timestamp = %v, want %v", got[0].Timestamp, t0)
	}
	if got[0].Side != models.SideBuy || got[0].Price != 0.25 || got[0].AmountToken != 1000 {
		t.Errorf("trade fields not round-tripped: %+v", got[0])
	}
}

func TestStorage_InsertSkipsInvalid(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	badSide := testTrade("0x01", walletA, "tok-1", "HOLD", t0)
	badPrice := testTrade("0x02", walletA, "tok-1", models.SideBuy, t0)
	badPrice.Price = 1.0000001
	good := testTrade("0x03", walletA, "tok-1", models.SideBuy, t0)

	n, err := s.InsertTrades(ctx, []models.Trade{badSide, badPrice, good})
	if err != nil {
		t.Fatalf("InsertTrades: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d trades, want 1", n)
	}

	bad := models.Transfer{Kind: "BRIDGE", TxHash: "0xb", Wallet: walletA, Timestamp: t0}
	n, err = s.InsertTransfers(ctx, []models.Transfer{bad, models.NewDeposit("0xd", t0, walletA, "", 10)})
	if err != nil {
		t.Fatalf("InsertTransfers: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted %d transfers, want 1", n)
	}
}

func TestStorage_Transfers(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	transfers := []models.Transfer{
		models.NewDeposit("0xd1", t0, walletA, models.ExternalAddress, 1000),
		models.NewDeposit("0xd2", t0.Add(time.Hour), walletA, walletB, 50),
		models.NewRedemption("0xr1", t0.Add(10*time.Hour), walletA, 4000),
		models.NewWithdrawal("0xw1", t0.Add(11*time.Hour), walletA, models.ExternalAddress, 3900),
	}
	n, err := s.InsertTransfers(ctx, transfers)
	if err != nil {
		t.Fatalf("InsertTransfers: %v", err)
	}
	if n != 4 {
		t.Errorf("inserted %d, want 4", n)
	}
	if n, _ := s.InsertTransfers(ctx, transfers); n != 0 {
		t.Errorf("inserted %d duplicates, want 0", n)
	}

	inbound, err := s.WalletInbound(ctx, walletA)
	if err != nil {
		t.Fatalf("WalletInbound: %v", err)
	}
	wantKinds := []models.TransferKind{models.TransferDeposit, models.TransferDeposit, models.TransferRedemption}
	if len(inbound) != len(wantKinds) {
		t.Fatalf("got %d inbound, want %d", len(inbound), len(wantKinds))
	}
	for i, k := range wantKinds {
		if inbound[i].Kind != k {
			t.Errorf("inbound[%d].Kind = %s, want %s", i, inbound[i].Kind, k)
		}
	}
	if inbound[0].Counterparty != models.ExternalAddress {
		t.Errorf("counterparty = %q, want external", inbound[0].Counterparty)
	}
	if inbound[1].Counterparty != walletB {
		t.Errorf("counterparty = %q, want %s", inbound[1].Counterparty, walletB)
	}
	if inbound[2].Counterparty != "" {
		t.Errorf("redemption counterparty = %q, want empty", inbound[2].Counterparty)
	}

	outbound, err := s.WalletOutbound(ctx, walletA)
	if err != nil {
		t.Fatalf("WalletOutbound: %v", err)
	}
	if len(outbound) != 1 || outbound[0].Kind != models.TransferWithdrawal || outbound[0].AmountUSD != 3900 {
		t.Errorf("unexpected outbound: %+v", outbound)
	}

	// The wallet-to-wallet deposit is a withdrawal from B's point of view.
	fromB, err := s.WalletOutbound(ctx, walletB)
	if err != nil {
		t.Fatalf("WalletOutbound B: %v", err)
	}
	if len(fromB) != 1 || fromB[0].Kind != models.TransferWithdrawal || fromB[0].Counterparty != walletA {
		t.Errorf("unexpected outbound for B: %+v", fromB)
	}
}

func testMarket(conditionID string, tokens ...string) *models.Market {
	return &models.Market{
		ConditionID:   conditionID,
		Question:      "Will it happen?",
		Slug:          "will-it-happen",
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.97, 0.03},
		StartDate:     t0.Add(-30 * 24 * time.Hour),
		EndDate:       t0.Add(24 * time.Hour),
		Volume:        1_500_000,
		TokenIDs:      tokens,
		Category:      "politics",
	}
}

func TestStorage_UpsertMarketAndResolve(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	m := testMarket("0xc1", "tok-yes", "tok-no")
	if err := s.UpsertMarket(ctx, m); err != nil {
		t.Fatalf("UpsertMarket: %v", err)
	}

	got, err := s.MarketByToken(ctx, "tok-no")
	if err != nil {
		t.Fatalf("MarketByToken: %v", err)
	}
	if got == nil || got.ConditionID != "0xc1" {
		t.Fatalf("got %+v, want market 0xc1", got)
	}
	if !got.EndDate.Equal(m.EndDate) || !got.ClosedTime.IsZero() {
		t.Errorf("dates not round-tripped: end=%v closed=%v", got.EndDate, got.ClosedTime)
	}
	if len(got.Outcomes) != 2 || got.OutcomePrices[0] != 0.97 || len(got.TokenIDs) != 2 {
		t.Errorf("lists not round-tripped: %+v", got)
	}

	m.Closed = true
	m.ClosedTime = t0.Add(12 * time.Hour)
	m.Resolution = "Yes"
	if err := s.UpsertMarket(ctx, m); err != nil {
		t.Fatalf("UpsertMarket update: %v", err)
	}
	got, _ = s.Market(ctx, "0xc1")
	if !got.Closed || !got.ClosedTime.Equal(m.ClosedTime) || got.Resolution != "Yes" {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestStorage_MarketByToken_Absent(t *testing.T) {
	s := newTestStorage(t)
	got, err := s.MarketByToken(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("MarketByToken: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil market, got %+v", got)
	}
}

func TestStorage_Market_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Market(context.Background(), "0xmissing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_TokenListings(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	trades := []models.Trade{
		testTrade("0x01", walletA, "tok-b", models.SideBuy, t0),
		testTrade("0x02", walletB, "tok-a", models.SideBuy, t0),
		testTrade("0x03", walletB, "tok-b", models.SideBuy, t0),
	}
	if _, err := s.InsertTrades(ctx, trades); err != nil {
		t.Fatalf("InsertTrades: %v", err)
	}
	if err := s.MapToken(ctx, "tok-a", "0xc1"); err != nil {
		t.Fatalf("MapToken: %v", err)
	}

	wallets, _ := s.Wallets(ctx)
	if fmt.Sprint(wallets) != fmt.Sprint([]string{walletB, walletA}) {
		t.Errorf("Wallets = %v", wallets)
	}
	ids, _ := s.UniqueTokenIDs(ctx)
	if fmt.Sprint(ids) != "[tok-a tok-b]" {
		t.Errorf("UniqueTokenIDs = %v", ids)
	}
	mapped, _ := s.MappedTokenIDs(ctx)
	if fmt.Sprint(mapped) != "[tok-a]" {
		t.Errorf("MappedTokenIDs = %v", mapped)
	}
	unmapped, _ := s.UnmappedTokenIDs(ctx)
	if fmt.Sprint(unmapped) != "[tok-b]" {
		t.Errorf("UnmappedTokenIDs = %v", unmapped)
	}

	c, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if c.Trades != 3 || c.Wallets != 2 || c.Markets != 0 {
		t.Errorf("Counts = %+v", c)
	}
}

func testReport(wallet string, score float64, risk models.RiskLevel) *models.WalletReport {
	return &models.WalletReport{
		Wallet:         wallet,
		Volume:         1234.5,
		TradeCount:     3,
		MarketCount:    1,
		Signals:        []models.SignalScore{models.NewSignalScore("MarketFocus", 1, 0.15, map[string]any{"unique_markets": 1})},
		CompositeScore: score,
		RiskLevel:      risk,
	}
}

func TestStorage_Reports(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	reports := []*models.WalletReport{
		testReport(walletA, 0.91, models.RiskCritical),
		testReport(walletB, 0.35, models.RiskLow),
	}
	if err := s.SaveReports(ctx, "run-1", reports); err != nil {
		t.Fatalf("SaveReports: %v", err)
	}

	top, err := s.TopReports(ctx, 10, models.RiskLow)
	if err != nil {
		t.Fatalf("TopReports: %v", err)
	}
	if len(top) != 2 || top[0].Wallet != walletA {
		t.Fatalf("unexpected top reports: %+v", top)
	}
	if top[0].ID == "" || top[0].RunID != "run-1" {
		t.Errorf("missing identifiers: %+v", top[0])
	}
	if sig, ok := top[0].Signal("MarketFocus"); !ok || sig.WeightedScore != 0.15 {
		t.Errorf("signals not round-tripped: %+v", top[0].Signals)
	}

	high, _ := s.TopReports(ctx, 10, models.RiskHigh)
	if len(high) != 1 {
		t.Errorf("got %d HIGH+ reports, want 1", len(high))
	}

	history, err := s.WalletReports(ctx, walletB)
	if err != nil || len(history) != 1 {
		t.Errorf("WalletReports = %v, %v", history, err)
	}

	if err := s.ClearReports(ctx); err != nil {
		t.Fatalf("ClearReports: %v", err)
	}
	if _, err := s.WalletReports(ctx, walletB); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestStorage_ReportCap(t *testing.T) {
	s, err := New(3, ":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := testReport(walletA, float64(i)/10, models.RiskLow)
		if err := s.SaveReports(ctx, fmt.Sprintf("run-%d", i), []*models.WalletReport{r}); err != nil {
			t.Fatalf("SaveReports: %v", err)
		}
	}

	all, _ := s.WalletReports(ctx, walletA)
	if len(all) != 3 {
		t.Fatalf("got %d reports, want 3", len(all))
	}
	// Oldest runs were evicted.
	for _, r := range all {
		if r.RunID == "run-0" || r.RunID == "run-1" {
			t.Errorf("expected %s to be evicted", r.RunID)
		}
	}
}

func TestStorage_TopReportsNewestPerWallet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i, scoreB := range []float64{0.6, 0.75, 0.4} {
		runID := fmt.Sprintf("run-%d", i)
		reports := []*models.WalletReport{
			testReport(walletA, 0.9, models.RiskCritical),
			testReport(walletB, scoreB, models.RiskMedium),
		}
		if err := s.SaveReports(ctx, runID, reports); err != nil {
			t.Fatalf("SaveReports %s: %v", runID, err)
		}
		time.Sleep(time.Millisecond)
	}

	top, err := s.TopReports(ctx, 3, models.RiskLow)
	if err != nil {
		t.Fatalf("TopReports: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d reports, want one per wallet: %+v", len(top), top)
	}
	if top[0].Wallet != walletA || top[0].RunID != "run-2" {
		t.Errorf("first = %s from %s", top[0].Wallet, top[0].RunID)
	}
	if top[1].Wallet != walletB || top[1].CompositeScore != 0.4 || top[1].RunID != "run-2" {
		t.Errorf("expected latest report of B, got %+v", top[1])
	}

	critical, _ := s.TopReports(ctx, 3, models.RiskCritical)
	if len(critical) != 1 || critical[0].Wallet != walletA {
		t.Errorf("unexpected CRITICAL reports: %+v", critical)
	}
}
