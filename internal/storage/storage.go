// Package storage provides the SQLite-backed activity store: trades, transfers,
// market metadata, and the history of saved wallet reports.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup that must match a row matches none.
var ErrNotFound = errors.New("not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db         *sql.DB
	maxReports int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/polysleuth/activity.db.
func New(maxReports int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "polysleuth", "activity.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxReports: maxReports}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			tx_hash       TEXT NOT NULL,
			block_number  INTEGER NOT NULL DEFAULT 0,
			timestamp     INTEGER NOT NULL,
			wallet        TEXT NOT NULL,
			token_id      TEXT NOT NULL,
			side          TEXT NOT NULL,
			amount_usd    REAL NOT NULL,
			amount_tokens REAL NOT NULL DEFAULT 0,
			price         REAL NOT NULL,
			fee           REAL NOT NULL DEFAULT 0,
			exchange      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (tx_hash, wallet, token_id, side)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades(wallet)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_token ON trades(token_id)`,
		`CREATE TABLE IF NOT EXISTS transfers (
			tx_hash      TEXT NOT NULL,
			block_number INTEGER NOT NULL DEFAULT 0,
			timestamp    INTEGER NOT NULL,
			from_address TEXT NOT NULL,
			to_address   TEXT NOT NULL,
			amount_usd   REAL NOT NULL,
			PRIMARY KEY (tx_hash, to_address, from_address)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_address)`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_address)`,
		`CREATE TABLE IF NOT EXISTS markets (
			condition_id   TEXT PRIMARY KEY,
			question       TEXT NOT NULL DEFAULT '',
			slug           TEXT NOT NULL DEFAULT '',
			outcomes       TEXT NOT NULL DEFAULT '[]',
			outcome_prices TEXT NOT NULL DEFAULT '[]',
			start_date     INTEGER,
			end_date       INTEGER,
			closed_time    INTEGER,
			closed         INTEGER NOT NULL DEFAULT 0,
			volume         REAL NOT NULL DEFAULT 0,
			clob_token_ids TEXT NOT NULL DEFAULT '[]',
			category       TEXT NOT NULL DEFAULT '',
			resolution     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS token_market_map (
			token_id     TEXT PRIMARY KEY,
			condition_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id           TEXT PRIMARY KEY,
			run_id       TEXT NOT NULL,
			wallet       TEXT NOT NULL,
			composite    REAL NOT NULL,
			risk         TEXT NOT NULL,
			risk_rank    INTEGER NOT NULL,
			volume       REAL NOT NULL,
			trade_count  INTEGER NOT NULL,
			market_count INTEGER NOT NULL,
			signals      TEXT NOT NULL,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_wallet ON reports(wallet)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_score ON reports(composite DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Counts summarises the store contents.
type Counts struct {
	Trades    int `json:"trades"`
	Transfers int `json:"transfers"`
	Markets   int `json:"markets"`
	Wallets   int `json:"wallets"`
	Reports   int `json:"reports"`
}

func (s *Storage) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM trades),
			(SELECT COUNT(*) FROM transfers),
			(SELECT COUNT(*) FROM markets),
			(SELECT COUNT(DISTINCT wallet) FROM trades),
			(SELECT COUNT(*) FROM reports)`,
	).Scan(&c.Trades, &c.Transfers, &c.Markets, &c.Wallets, &c.Reports)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

// listStrings runs a single-column query and collects the results.
func (s *Storage) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Wallets returns every wallet that has at least one trade, sorted.
func (s *Storage) Wallets(ctx context.Context) ([]string, error) {
	wallets, err := s.listStrings(ctx, `SELECT DISTINCT wallet FROM trades ORDER BY wallet`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
