package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/polysleuth/internal/models"
)

// ReportRecord is a wallet report as saved by one detection run.
type ReportRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	models.WalletReport
}

// SaveReports stores the reports of one run, then trims history to the
// newest maxReports rows.
func (s *Storage) SaveReports(ctx context.Context, runID string, reports []*models.WalletReport) error {
	if runID == "" {
		return errors.New("run ID must not be empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i, r := range reports {
		sigs, err := json.Marshal(r.Signals)
		if err != nil {
			return fmt.Errorf("failed to marshal signals for %s: %w", r.Wallet, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reports
				(id, run_id, wallet, composite, risk, risk_rank, volume,
				 trade_count, market_count, signals, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			uuid.NewString(), runID, normalize(r.Wallet), r.CompositeScore, string(r.RiskLevel),
			r.RiskLevel.Rank(), r.Volume, r.TradeCount, r.MarketCount, string(sigs),
			// keep batch order stable for equal timestamps
			nanos(now)+int64(i),
		)
		if err != nil {
			return fmt.Errorf("failed to insert report: %w", err)
		}
	}

	if s.maxReports > 0 {
		if _, err = tx.ExecContext(ctx, `
			DELETE FROM reports WHERE id NOT IN (
				SELECT id FROM reports ORDER BY created_at DESC LIMIT ?
			)`, s.maxReports); err != nil {
			return fmt.Errorf("failed to enforce report cap: %w", err)
		}
	}

	return tx.Commit()
}

const reportCols = `id, run_id, wallet, composite, risk, volume, trade_count,
	market_count, signals, created_at`

// TopReports returns the newest saved report of each wallet, keeping those at
// or above minRisk, highest score first, at most k.
func (s *Storage) TopReports(ctx context.Context, k int, minRisk models.RiskLevel) ([]ReportRecord, error) {
	return s.queryReports(ctx, `
		SELECT `+reportCols+` FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY wallet ORDER BY created_at DESC) AS rn
			FROM reports
		)
		WHERE rn = 1 AND risk_rank >= ?
		ORDER BY composite DESC, wallet LIMIT ?`, minRisk.Rank(), k)
}

// WalletReports returns a wallet's saved reports, newest first.
func (s *Storage) WalletReports(ctx context.Context, wallet string) ([]ReportRecord, error) {
	records, err := s.queryReports(ctx, `
		SELECT `+reportCols+` FROM reports
		WHERE wallet = ? ORDER BY created_at DESC`, normalize(wallet))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("reports for %s: %w", wallet, ErrNotFound)
	}
	return records, nil
}

func (s *Storage) ClearReports(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reports`); err != nil {
		return fmt.Errorf("failed to clear reports: %w", err)
	}
	return nil
}

func (s *Storage) queryReports(ctx context.Context, query string, args ...any) ([]ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	records := []ReportRecord{}
	for rows.Next() {
		var rec ReportRecord
		var risk, sigs string
		var createdNano int64
		err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Wallet, &rec.CompositeScore, &risk, &rec.Volume,
			&rec.TradeCount, &rec.MarketCount, &sigs, &createdNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if err := json.Unmarshal([]byte(sigs), &rec.Signals); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signals: %w", err)
		}
		rec.RiskLevel = models.RiskLevel(risk)
		rec.CreatedAt = fromNanos(createdNano)
		records = append(records, rec)
	}
	return records, rows.Err()
}
