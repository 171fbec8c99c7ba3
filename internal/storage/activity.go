package storage

import (
	"context"
	"fmt"

	"github.com/rewired-gh/polysleuth/internal/logger"
	"github.com/rewired-gh/polysleuth/internal/models"
)

// InsertTrades stores trades, ignoring ones already present. Invalid trades
// are skipped with a warning. It returns the number of newly inserted rows.
func (s *Storage) InsertTrades(ctx context.Context, trades []models.Trade) (int, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO trades
			(tx_hash, block_number, timestamp, wallet, token_id, side,
			 amount_usd, amount_tokens, price, fee, exchange)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare trade insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range trades {
		if err := t.Validate(); err != nil {
			logger.Warn("Skipping invalid trade %s: %v", t.TxHash, err)
			continue
		}
		res, err := stmt.ExecContext(ctx,
			t.TxHash, t.BlockNumber, nanos(t.Timestamp), normalize(t.Wallet), t.TokenID, string(t.Side),
			t.AmountUSD, t.AmountToken, t.Price, t.Fee, t.Exchange,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert trade: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trades: %w", err)
	}
	return inserted, nil
}

// InsertTransfers stores transfers under their (from, to) address pair,
// ignoring ones already present. Invalid transfers are skipped with a warning.
// It returns the number of newly inserted rows.
func (s *Storage) InsertTransfers(ctx context.Context, transfers []models.Transfer) (int, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transfers
			(tx_hash, block_number, timestamp, from_address, to_address, amount_usd)
		VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare transfer insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range transfers {
		if err := t.Validate(); err != nil {
			logger.Warn("Skipping invalid transfer %s: %v", t.TxHash, err)
			continue
		}
		from, to := t.Addresses()
		res, err := stmt.ExecContext(ctx,
			t.TxHash, t.BlockNumber, nanos(t.Timestamp), normalize(from), normalize(to), t.AmountUSD,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transfer: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transfers: %w", err)
	}
	return inserted, nil
}

const tradeCols = `tx_hash, block_number, timestamp, wallet, token_id, side,
	amount_usd, amount_tokens, price, fee, exchange`

// WalletTrades returns a wallet's trades, oldest first.
func (s *Storage) WalletTrades(ctx context.Context, wallet string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeCols+` FROM trades WHERE wallet = ? ORDER BY timestamp, tx_hash`,
		normalize(wallet))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// WalletInbound returns deposits and redemption payouts to a wallet, oldest first.
func (s *Storage) WalletInbound(ctx context.Context, wallet string) ([]models.Transfer, error) {
	return s.walletTransfers(ctx, wallet, "to_address")
}

// WalletOutbound returns withdrawals from a wallet, oldest first.
func (s *Storage) WalletOutbound(ctx context.Context, wallet string) ([]models.Transfer, error) {
	return s.walletTransfers(ctx, wallet, "from_address")
}

func (s *Storage) walletTransfers(ctx context.Context, wallet, column string) ([]models.Transfer, error) {
	wallet = normalize(wallet)
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_hash, block_number, timestamp, from_address, to_address, amount_usd
		FROM transfers WHERE `+column+` = ? ORDER BY timestamp, tx_hash`, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		var (
			t        models.Transfer
			tsNano   int64
			from, to string
		)
		if err := rows.Scan(&t.TxHash, &t.BlockNumber, &tsNano, &from, &to, &t.AmountUSD); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		kind, counterparty, err := models.TransferFromAddresses(wallet, from, to)
		if err != nil {
			return nil, err
		}
		t.Kind = kind
		t.Counterparty = counterparty
		t.Wallet = wallet
		t.Timestamp = fromNanos(tsNano)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// UniqueTokenIDs returns every traded token ID, sorted.
func (s *Storage) UniqueTokenIDs(ctx context.Context) ([]string, error) {
	ids, err := s.listStrings(ctx, `SELECT DISTINCT token_id FROM trades ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list token IDs: %w", err)
	}
	return ids, nil
}

// MappedTokenIDs returns every token ID with a known market, sorted.
func (s *Storage) MappedTokenIDs(ctx context.Context) ([]string, error) {
	ids, err := s.listStrings(ctx, `SELECT token_id FROM token_market_map ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapped token IDs: %w", err)
	}
	return ids, nil
}

// UnmappedTokenIDs returns traded token IDs that still lack market metadata.
func (s *Storage) UnmappedTokenIDs(ctx context.Context) ([]string, error) {
	ids, err := s.listStrings(ctx, `
		SELECT DISTINCT t.token_id FROM trades t
		LEFT JOIN token_market_map m ON m.token_id = t.token_id
		WHERE m.token_id IS NULL
		ORDER BY t.token_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmapped token IDs: %w", err)
	}
	return ids, nil
}

func scanTrade(scan func(...any) error) (models.Trade, error) {
	var t models.Trade
	var tsNano int64
	var side string
	err := scan(
		&t.TxHash, &t.BlockNumber, &tsNano, &t.Wallet, &t.TokenID, &side,
		&t.AmountUSD, &t.AmountToken, &t.Price, &t.Fee, &t.Exchange,
	)
	if err != nil {
		return models.Trade{}, err
	}
	t.Side = models.Side(side)
	t.Timestamp = fromNanos(tsNano)
	return t, nil
}
