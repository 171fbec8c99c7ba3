// Package detector runs the signal set against wallets read from the activity store.
package detector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/polysleuth/internal/logger"
	"github.com/rewired-gh/polysleuth/internal/metrics"
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
	"github.com/rewired-gh/polysleuth/internal/signals"
)

// ActivityReader is the read side of the activity store.
type ActivityReader interface {
	WalletTrades(ctx context.Context, wallet string) ([]models.Trade, error)
	WalletInbound(ctx context.Context, wallet string) ([]models.Transfer, error)
	WalletOutbound(ctx context.Context, wallet string) ([]models.Transfer, error)
	MarketByToken(ctx context.Context, tokenID string) (*models.Market, error)
	Wallets(ctx context.Context) ([]string, error)
}

type Config struct {
	Concurrency int
	Scoring     scoring.Config
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		Scoring:     scoring.DefaultConfig(),
	}
}

type Detector struct {
	store   ActivityReader
	signals []signals.Signal
	scorer  *scoring.Scorer
	config  Config
}

// New validates the scoring calibration once and builds a detector around it.
func New(store ActivityReader, config Config) (*Detector, error) {
	if err := config.Scoring.Validate(); err != nil {
		return nil, err
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Detector{
		store:   store,
		signals: signals.All(config.Scoring),
		scorer:  scoring.NewScorer(config.Scoring),
		config:  config,
	}, nil
}

// Snapshot reads everything the signals need for one wallet.
func (d *Detector) Snapshot(ctx context.Context, wallet string) (*signals.Activity, error) {
	trades, err := d.store.WalletTrades(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read trades for %s: %w", wallet, err)
	}
	inbound, err := d.store.WalletInbound(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbound transfers for %s: %w", wallet, err)
	}
	outbound, err := d.store.WalletOutbound(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbound transfers for %s: %w", wallet, err)
	}

	a := &signals.Activity{
		Wallet:    wallet,
		Trades:    trades,
		Transfers: append(inbound, outbound...),
		Markets:   make(map[string]*models.Market),
	}
	for _, tokenID := range a.TokenIDs() {
		market, err := d.store.MarketByToken(ctx, tokenID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve market for token %s: %w", tokenID, err)
		}
		if market != nil {
			a.Markets[tokenID] = market
		}
	}
	return a, nil
}

// Evaluate scores a snapshot. It performs no I/O and has no failure mode.
func (d *Detector) Evaluate(a *signals.Activity) *models.WalletReport {
	scores := make([]models.SignalScore, 0, len(d.signals))
	for _, s := range d.signals {
		scores = append(scores, s.Evaluate(a))
	}
	composite := d.scorer.Composite(scores)

	return &models.WalletReport{
		Wallet:         a.Wallet,
		Volume:         models.Round(a.BuyVolume(), 2),
		TradeCount:     len(a.Trades),
		MarketCount:    a.MarketCount(),
		Signals:        scores,
		CompositeScore: composite,
		RiskLevel:      d.scorer.Classify(composite),
	}
}

// AnalyzeWallet reads a wallet's activity and scores it. The address is
// lower-cased first, matching how the store keys wallets.
func (d *Detector) AnalyzeWallet(ctx context.Context, wallet string) (*models.WalletReport, error) {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	start := time.Now()
	a, err := d.Snapshot(ctx, wallet)
	if err != nil {
		metrics.AnalysisErrorsTotal.Inc()
		return nil, err
	}

	report := d.Evaluate(a)
	metrics.ObserveReport(report, time.Since(start))
	logger.Debug("Analyzed %s: score=%.4f risk=%s trades=%d markets=%d volume=%.2f",
		models.ShortAddress(wallet), report.CompositeScore, report.RiskLevel,
		report.TradeCount, report.MarketCount, report.Volume)
	return report, nil
}

// AnalyzeWallets analyzes each wallet independently with bounded concurrency.
// Reports are returned in input order. The first store error cancels the batch.
func (d *Detector) AnalyzeWallets(ctx context.Context, wallets []string) ([]*models.WalletReport, error) {
	reports := make([]*models.WalletReport, len(wallets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Concurrency)
	for i, wallet := range wallets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			report, err := d.AnalyzeWallet(ctx, wallet)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("Analyzed %d wallets", len(reports))
	return reports, nil
}

// AnalyzeAll analyzes every wallet known to the store.
func (d *Detector) AnalyzeAll(ctx context.Context) ([]*models.WalletReport, error) {
	wallets, err := d.store.Wallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return d.AnalyzeWallets(ctx, wallets)
}

// SortByScore orders reports by composite score, highest first. Ties break on wallet.
func SortByScore(reports []*models.WalletReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].CompositeScore != reports[j].CompositeScore {
			return reports[i].CompositeScore > reports[j].CompositeScore
		}
		return reports[i].Wallet < reports[j].Wallet
	})
}

// Flagged returns the reports at or above floor, preserving order.
func Flagged(reports []*models.WalletReport, floor models.RiskLevel) []*models.WalletReport {
	var result []*models.WalletReport
	for _, r := range reports {
		if r.RiskLevel.AtLeast(floor) {
			result = append(result, r)
		}
	}
	return result
}

// TopK returns at most k reports. A non-positive k returns all of them.
func TopK(reports []*models.WalletReport, k int) []*models.WalletReport {
	if k <= 0 || len(reports) <= k {
		return reports
	}
	return reports[:k]
}
