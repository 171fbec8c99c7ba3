package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/polysleuth/internal/models"
)

// UpsertMarket stores or replaces a market and maps each of its tokens to it.
func (s *Storage) UpsertMarket(ctx context.Context, market *models.Market) error {
	if err := market.Validate(); err != nil {
		return fmt.Errorf("invalid market: %w", err)
	}
	outcomes, err := json.Marshal(nonNil(market.Outcomes))
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	prices, err := json.Marshal(nonNilFloats(market.OutcomePrices))
	if err != nil {
		return fmt.Errorf("failed to marshal outcome prices: %w", err)
	}
	tokens, err := json.Marshal(nonNil(market.TokenIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal token IDs: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO markets
			(condition_id, question, slug, outcomes, outcome_prices, start_date, end_date,
			 closed_time, closed, volume, clob_token_ids, category, resolution)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(condition_id) DO UPDATE SET
			question=excluded.question, slug=excluded.slug, outcomes=excluded.outcomes,
			outcome_prices=excluded.outcome_prices, start_date=excluded.start_date,
			end_date=excluded.end_date, closed_time=excluded.closed_time, closed=excluded.closed,
			volume=excluded.volume, clob_token_ids=excluded.clob_token_ids,
			category=excluded.category, resolution=excluded.resolution`,
		market.ConditionID, market.Question, market.Slug, string(outcomes), string(prices),
		nullTime(market.StartDate), nullTime(market.EndDate), nullTime(market.ClosedTime),
		boolToInt(market.Closed), market.Volume, string(tokens), market.Category, market.Resolution,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market: %w", err)
	}

	for _, tokenID := range market.TokenIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO token_market_map (token_id, condition_id) VALUES (?,?)`,
			tokenID, market.ConditionID,
		); err != nil {
			return fmt.Errorf("failed to map token %s: %w", tokenID, err)
		}
	}

	return tx.Commit()
}

// MapToken records which market a token belongs to.
func (s *Storage) MapToken(ctx context.Context, tokenID, conditionID string) error {
	if tokenID == "" || conditionID == "" {
		return errors.New("token ID and condition ID must not be empty")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO token_market_map (token_id, condition_id) VALUES (?,?)`,
		tokenID, conditionID,
	); err != nil {
		return fmt.Errorf("failed to map token: %w", err)
	}
	return nil
}

const marketCols = `m.condition_id, m.question, m.slug, m.outcomes, m.outcome_prices,
	m.start_date, m.end_date, m.closed_time, m.closed, m.volume, m.clob_token_ids,
	m.category, m.resolution`

// MarketByToken resolves a token to its market. It returns nil without an
// error when the token has no known market.
func (s *Storage) MarketByToken(ctx context.Context, tokenID string) (*models.Market, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+marketCols+`
		FROM token_market_map t JOIN markets m ON m.condition_id = t.condition_id
		WHERE t.token_id = ?`, tokenID)
	m, err := scanMarket(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market for token %s: %w", tokenID, err)
	}
	return m, nil
}

// Market returns a market by condition ID.
func (s *Storage) Market(ctx context.Context, conditionID string) (*models.Market, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+marketCols+` FROM markets m WHERE m.condition_id = ?`, conditionID)
	m, err := scanMarket(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("market %s: %w", conditionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return m, nil
}

func scanMarket(scan func(...any) error) (*models.Market, error) {
	var m models.Market
	var outcomes, prices, tokens string
	var start, end, closedAt sql.NullInt64
	var closed int
	err := scan(
		&m.ConditionID, &m.Question, &m.Slug, &outcomes, &prices,
		&start, &end, &closedAt, &closed, &m.Volume, &tokens,
		&m.Category, &m.Resolution,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outcomes), &m.Outcomes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(prices), &m.OutcomePrices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome prices: %w", err)
	}
	if err := json.Unmarshal([]byte(tokens), &m.TokenIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token IDs: %w", err)
	}
	m.StartDate = timeOrZero(start)
	m.EndDate = timeOrZero(end)
	m.ClosedTime = timeOrZero(closedAt)
	m.Closed = closed != 0
	return &m, nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeOrZero(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromNanos(n.Int64)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilFloats(s []float64) []float64 {
	if s == nil {
		return []float64{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
