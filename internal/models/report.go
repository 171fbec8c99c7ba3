package models

import (
	"fmt"
	"strings"
)

// RiskLevel is the coarse tier a composite score maps onto.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels from LOW (0) to CRITICAL (3).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r is as severe as other or more.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Rank() >= other.Rank()
}

// ParseRiskLevel accepts a case-insensitive tier name.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch r := RiskLevel(strings.ToUpper(strings.TrimSpace(s))); r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return r, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

// SignalScore is the output of a single signal evaluation.
type SignalScore struct {
	Name          string         `json:"name"`
	Score         float64        `json:"score"`
	Weight        float64        `json:"weight"`
	WeightedScore float64        `json:"weighted_score"`
	Details       map[string]any `json:"details"`
}

// NewSignalScore builds a score, deriving the weighted contribution rounded to 4 places.
func NewSignalScore(name string, score, weight float64, details map[string]any) SignalScore {
	if details == nil {
		details = map[string]any{}
	}
	return SignalScore{
		Name:          name,
		Score:         score,
		Weight:        weight,
		WeightedScore: Round(score*weight, 4),
		Details:       details,
	}
}

// WalletReport is the full risk assessment of one wallet.
type WalletReport struct {
	Wallet         string        `json:"wallet"`
	Volume         float64       `json:"volume"`
	TradeCount     int           `json:"trade_count"`
	MarketCount    int           `json:"market_count"`
	Signals        []SignalScore `json:"signals"`
	CompositeScore float64       `json:"composite_score"`
	RiskLevel      RiskLevel     `json:"risk_level"`
}

// Signal returns the named signal result, if present.
func (r *WalletReport) Signal(name string) (SignalScore, bool) {
	for _, s := range r.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalScore{}, false
}

// ShortAddress abbreviates a wallet address for tables and logs.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
