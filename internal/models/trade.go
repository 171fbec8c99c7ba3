// Package models defines the core domain entities: trades, transfers, markets, and wallet reports.
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned when a wallet address is not a 20-byte hex address.
var ErrInvalidAddress = errors.New("invalid wallet address")

// Side is the direction of a fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide converts an upstream side string. Only BUY and SELL are accepted.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Trade is a single fill on the venue. Trades are unique by
// (TxHash, Wallet, TokenID, Side) so duplicate ingestion is harmless.
type Trade struct {
	TxHash      string    `json:"tx_hash"`
	BlockNumber int64     `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
	Wallet      string    `json:"wallet"`
	TokenID     string    `json:"token_id"`
	Side        Side      `json:"side"`
	AmountUSD   float64   `json:"amount_usd"`
	AmountToken float64   `json:"amount_tokens"`
	Price       float64   `json:"price"`
	Fee         float64   `json:"fee"`
	Exchange    string    `json:"exchange"`
}

// IsBuy reports whether the trade opened or added to a position.
func (t *Trade) IsBuy() bool {
	return t.Side == SideBuy
}

// Validate checks trade field constraints.
func (t *Trade) Validate() error {
	if t.TxHash == "" {
		return errors.New("trade tx hash must not be empty")
	}
	if t.Wallet == "" {
		return errors.New("trade wallet must not be empty")
	}
	if t.TokenID == "" {
		return errors.New("trade token ID must not be empty")
	}
	if t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("trade side must be BUY or SELL, got %q", t.Side)
	}
	if t.AmountUSD < 0 {
		return errors.New("trade USD amount must not be negative")
	}
	if t.Price < 0 || t.Price > 1 {
		return errors.New("trade price must be between 0.0 and 1.0")
	}
	if t.Timestamp.IsZero() {
		return errors.New("trade timestamp must be set")
	}
	return nil
}

// NormalizeAddress validates a hex wallet address and returns it lower-cased.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// ParseAddressList splits a comma-separated address list, normalising each entry
// and dropping blanks and duplicates while preserving order.
func ParseAddressList(list string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		addr, err := NormalizeAddress(part)
		if err != nil {
			return nil, err
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out, nil
}

// Round rounds x to the given number of decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
