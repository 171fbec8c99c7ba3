// Package indexer pulls wallet activity and market metadata from Polymarket
// into the activity store.
package indexer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/polysleuth/internal/logger"
	"github.com/rewired-gh/polysleuth/internal/metrics"
	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/polymarket"
)

// Source fetches upstream data.
type Source interface {
	FetchActivity(ctx context.Context, wallet string) (*polymarket.Activity, error)
	FetchMarketByToken(ctx context.Context, tokenID string) (*models.Market, error)
}

// Sink is the write side of the activity store.
type Sink interface {
	InsertTrades(ctx context.Context, trades []models.Trade) (int, error)
	InsertTransfers(ctx context.Context, transfers []models.Transfer) (int, error)
	UpsertMarket(ctx context.Context, market *models.Market) error
	MapToken(ctx context.Context, tokenID, conditionID string) error
	UnmappedTokenIDs(ctx context.Context) ([]string, error)
}

// Result counts what one indexing run added.
type Result struct {
	Wallets   int
	Trades    int
	Transfers int
	Markets   int
	// Skipped records failed validation and were not stored.
	Skipped int
	// Unresolved tokens had no usable market on Gamma or failed to fetch.
	Unresolved int
}

type Indexer struct {
	source      Source
	sink        Sink
	concurrency int
}

func New(source Source, sink Sink, concurrency int) *Indexer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Indexer{source: source, sink: sink, concurrency: concurrency}
}

// Run indexes activity for each wallet, then fetches metadata for every
// traded token that has no market yet.
func (ix *Indexer) Run(ctx context.Context, wallets []string) (Result, error) {
	res := Result{Wallets: len(wallets)}

	activities := make([]*polymarket.Activity, len(wallets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i, wallet := range wallets {
		g.Go(func() error {
			a, err := ix.source.FetchActivity(gctx, wallet)
			if err != nil {
				return err
			}
			activities[i] = a
			logger.Debug("Fetched %s: %d trades, %d transfers",
				models.ShortAddress(wallet), len(a.Trades), len(a.Transfers))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	// SQLite has a single writer, so inserts stay sequential.
	for _, a := range activities {
		trades, skipped := validTrades(a.Trades)
		res.Skipped += skipped
		transfers, skipped := validTransfers(a.Transfers)
		res.Skipped += skipped

		n, err := ix.sink.InsertTrades(ctx, trades)
		if err != nil {
			return res, err
		}
		res.Trades += n
		n, err = ix.sink.InsertTransfers(ctx, transfers)
		if err != nil {
			return res, err
		}
		res.Transfers += n
	}
	metrics.IndexedRecordsTotal.WithLabelValues("trade").Add(float64(res.Trades))
	metrics.IndexedRecordsTotal.WithLabelValues("transfer").Add(float64(res.Transfers))

	if err := ix.resolveMarkets(ctx, &res); err != nil {
		return res, err
	}
	metrics.IndexedRecordsTotal.WithLabelValues("market").Add(float64(res.Markets))

	logger.Info("Indexed %d wallets: %d new trades, %d new transfers, %d markets (%d records skipped, %d tokens unresolved)",
		res.Wallets, res.Trades, res.Transfers, res.Markets, res.Skipped, res.Unresolved)
	return res, nil
}

func (ix *Indexer) resolveMarkets(ctx context.Context, res *Result) error {
	tokens, err := ix.sink.UnmappedTokenIDs(ctx)
	if err != nil {
		return err
	}

	resolved := make(map[string]bool)
	for _, tokenID := range tokens {
		if resolved[tokenID] {
			continue
		}
		market, err := ix.source.FetchMarketByToken(ctx, tokenID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Failed to fetch market for token %s: %v", tokenID, err)
			res.Unresolved++
			continue
		}
		if market == nil || market.ConditionID == "" {
			res.Unresolved++
			continue
		}
		if err := market.Validate(); err != nil {
			logger.Warn("Skipping invalid market %s for token %s: %v", market.ConditionID, tokenID, err)
			res.Unresolved++
			continue
		}
		if market.Inverted() {
			logger.Warn("Market %s starts after it ends, its timing window will be ignored", market.ConditionID)
		}
		if err := ix.sink.UpsertMarket(ctx, market); err != nil {
			return fmt.Errorf("failed to store market %s: %w", market.ConditionID, err)
		}
		// Gamma may omit the queried token from the market's own list.
		if err := ix.sink.MapToken(ctx, tokenID, market.ConditionID); err != nil {
			return err
		}
		for _, id := range market.TokenIDs {
			resolved[id] = true
		}
		resolved[tokenID] = true
		res.Markets++
	}
	return nil
}

func validTrades(trades []models.Trade) ([]models.Trade, int) {
	valid := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if err := t.Validate(); err != nil {
			logger.Warn("Skipping invalid trade %s: %v", t.TxHash, err)
			continue
		}
		valid = append(valid, t)
	}
	return valid, len(trades) - len(valid)
}

func validTransfers(transfers []models.Transfer) ([]models.Transfer, int) {
	valid := make([]models.Transfer, 0, len(transfers))
	for _, t := range transfers {
		if err := t.Validate(); err != nil {
			logger.Warn("Skipping invalid transfer %s: %v", t.TxHash, err)
			continue
		}
		valid = append(valid, t)
	}
	return valid, len(transfers) - len(valid)
}
