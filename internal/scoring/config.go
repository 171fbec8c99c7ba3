// Package scoring holds the scoring calibration and turns signal scores into
// a composite score and risk tier.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig wraps every calibration validation failure.
var ErrInvalidConfig = errors.New("invalid scoring config")

// weightSumTolerance is how far the weight sum may drift from 1.0 before it is reported.
const weightSumTolerance = 1e-6

// Weights are the per-signal contributions to the composite score.
type Weights struct {
	WalletFreshness  float64 `mapstructure:"wallet_freshness"`
	OutcomeCertainty float64 `mapstructure:"outcome_certainty"`
	EntryTiming      float64 `mapstructure:"entry_timing"`
	MarketFocus      float64 `mapstructure:"market_focus"`
	PositionSize     float64 `mapstructure:"position_size"`
	SurgicalBehavior float64 `mapstructure:"surgical_behavior"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.WalletFreshness + w.OutcomeCertainty + w.EntryTiming +
		w.MarketFocus + w.PositionSize + w.SurgicalBehavior
}

// Tiers are the inclusive lower bounds of each risk tier above LOW.
type Tiers struct {
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
}

// FreshnessConfig bands the deposit-to-first-trade gap, in hours.
type FreshnessConfig struct {
	CriticalHours   float64 `mapstructure:"critical_hours"`
	SuspiciousHours float64 `mapstructure:"suspicious_hours"`
	ModerateHours   float64 `mapstructure:"moderate_hours"`
	BridgeScore     float64 `mapstructure:"bridge_score"`
}

// CertaintyConfig defines a cheap entry and the payout multiple worth flagging.
type CertaintyConfig struct {
	MinPrice       float64 `mapstructure:"min_price"`
	MaxPrice       float64 `mapstructure:"max_price"`
	MinPayoutRatio float64 `mapstructure:"min_payout_ratio"`
}

// TimingConfig bands the fraction of market lifetime left at first entry.
type TimingConfig struct {
	CriticalPct     float64       `mapstructure:"critical_pct"`
	SuspiciousPct   float64       `mapstructure:"suspicious_pct"`
	ModeratePct     float64       `mapstructure:"moderate_pct"`
	DefaultLifetime time.Duration `mapstructure:"default_lifetime"`
}

// FocusConfig scores how few markets a wallet trades.
type FocusConfig struct {
	SingleMarketScore float64 `mapstructure:"single_market_score"`
	TwoMarketsScore   float64 `mapstructure:"two_markets_score"`
	ThreeMarketsScore float64 `mapstructure:"three_markets_score"`
	DecayPerMarket    float64 `mapstructure:"decay_per_market"`
	Floor             float64 `mapstructure:"floor"`
}

// SizeConfig holds the per-market buy volume thresholds in USD.
type SizeConfig struct {
	LargeUSD  float64 `mapstructure:"large_usd"`
	MediumUSD float64 `mapstructure:"medium_usd"`
	SmallUSD  float64 `mapstructure:"small_usd"`
}

// SurgicalConfig scores the fund, bet, win, exit lifecycle.
type SurgicalConfig struct {
	FullPatternScore    float64       `mapstructure:"full_pattern_score"`
	PartialPatternScore float64       `mapstructure:"partial_pattern_score"`
	RedeemedScore       float64       `mapstructure:"redeemed_score"`
	TradesOnlyScore     float64       `mapstructure:"trades_only_score"`
	MinProfitRatio      float64       `mapstructure:"min_profit_ratio"`
	FundingGrace        time.Duration `mapstructure:"funding_grace"`
}

// Config is the complete scoring calibration. It is built once at startup
// and passed by value to the scorer and every signal.
type Config struct {
	Weights       Weights         `mapstructure:"weights"`
	Tiers         Tiers           `mapstructure:"tiers"`
	Freshness     FreshnessConfig `mapstructure:"freshness"`
	Certainty     CertaintyConfig `mapstructure:"certainty"`
	Timing        TimingConfig    `mapstructure:"timing"`
	Focus         FocusConfig     `mapstructure:"focus"`
	Size          SizeConfig      `mapstructure:"size"`
	Surgical      SurgicalConfig  `mapstructure:"surgical"`
	StrictWeights bool            `mapstructure:"strict_weights"`
}

// DefaultConfig returns the reference calibration.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			WalletFreshness:  0.15,
			OutcomeCertainty: 0.25,
			EntryTiming:      0.20,
			MarketFocus:      0.15,
			PositionSize:     0.10,
			SurgicalBehavior: 0.15,
		},
		Tiers: Tiers{Critical: 0.85, High: 0.70, Medium: 0.50},
		Freshness: FreshnessConfig{
			CriticalHours:   2,
			SuspiciousHours: 24,
			ModerateHours:   168,
			BridgeScore:     0.7,
		},
		Certainty: CertaintyConfig{MinPrice: 0.05, MaxPrice: 0.50, MinPayoutRatio: 2.0},
		Timing: TimingConfig{
			CriticalPct:     0.05,
			SuspiciousPct:   0.15,
			ModeratePct:     0.30,
			DefaultLifetime: 30 * 24 * time.Hour,
		},
		Focus: FocusConfig{
			SingleMarketScore: 1.0,
			TwoMarketsScore:   0.7,
			ThreeMarketsScore: 0.4,
			DecayPerMarket:    0.15,
			Floor:             0.1,
		},
		Size: SizeConfig{LargeUSD: 10_000, MediumUSD: 5_000, SmallUSD: 1_000},
		Surgical: SurgicalConfig{
			FullPatternScore:    1.0,
			PartialPatternScore: 0.6,
			RedeemedScore:       0.4,
			TradesOnlyScore:     0.3,
			MinProfitRatio:      1.5,
			FundingGrace:        24 * time.Hour,
		},
	}
}

// WeightDrift returns how far the weight sum is from 1.0.
func (c Config) WeightDrift() float64 {
	return c.Weights.Sum() - 1.0
}

// WeightsBalanced reports whether the weights sum to 1.0 within tolerance.
func (c Config) WeightsBalanced() bool {
	return math.Abs(c.WeightDrift()) <= weightSumTolerance
}

// Validate checks the calibration once at startup.
func (c Config) Validate() error {
	weights := []namedValue{
		{"wallet_freshness", c.Weights.WalletFreshness},
		{"outcome_certainty", c.Weights.OutcomeCertainty},
		{"entry_timing", c.Weights.EntryTiming},
		{"market_focus", c.Weights.MarketFocus},
		{"position_size", c.Weights.PositionSize},
		{"surgical_behavior", c.Weights.SurgicalBehavior},
	}
	for _, w := range weights {
		if w.value < 0 || math.IsNaN(w.value) {
			return invalid("weights.%s must not be negative", w.name)
		}
	}
	if c.StrictWeights && !c.WeightsBalanced() {
		return invalid("weights must sum to 1.0, got %.6f", c.Weights.Sum())
	}

	t := c.Tiers
	if t.Medium <= 0 || t.Critical > 1 {
		return invalid("tiers must lie in (0, 1]")
	}
	if !(t.Critical > t.High && t.High > t.Medium) {
		return invalid("tiers must be strictly descending: critical > high > medium")
	}

	f := c.Freshness
	if f.CriticalHours < 0 || f.CriticalHours > f.SuspiciousHours || f.SuspiciousHours > f.ModerateHours {
		return invalid("freshness hours must be ascending and non-negative")
	}
	if err := unitScore("freshness.bridge_score", f.BridgeScore); err != nil {
		return err
	}

	ct := c.Certainty
	if ct.MinPrice < 0 || ct.MinPrice > ct.MaxPrice || ct.MaxPrice > 1 {
		return invalid("certainty price band must satisfy 0 <= min_price <= max_price <= 1")
	}
	if ct.MinPayoutRatio < 0 {
		return invalid("certainty.min_payout_ratio must not be negative")
	}

	tm := c.Timing
	if tm.CriticalPct < 0 || tm.CriticalPct > tm.SuspiciousPct || tm.SuspiciousPct > tm.ModeratePct || tm.ModeratePct > 1 {
		return invalid("timing fractions must be ascending within [0, 1]")
	}
	if tm.DefaultLifetime <= 0 {
		return invalid("timing.default_lifetime must be positive")
	}

	fc := c.Focus
	for _, v := range []namedValue{
		{"focus.single_market_score", fc.SingleMarketScore},
		{"focus.two_markets_score", fc.TwoMarketsScore},
		{"focus.three_markets_score", fc.ThreeMarketsScore},
		{"focus.floor", fc.Floor},
	} {
		if err := unitScore(v.name, v.value); err != nil {
			return err
		}
	}
	if fc.DecayPerMarket < 0 {
		return invalid("focus.decay_per_market must not be negative")
	}

	s := c.Size
	if s.SmallUSD < 0 || s.SmallUSD > s.MediumUSD || s.MediumUSD > s.LargeUSD {
		return invalid("size thresholds must satisfy 0 <= small_usd <= medium_usd <= large_usd")
	}

	sg := c.Surgical
	for _, v := range []namedValue{
		{"surgical.full_pattern_score", sg.FullPatternScore},
		{"surgical.partial_pattern_score", sg.PartialPatternScore},
		{"surgical.redeemed_score", sg.RedeemedScore},
		{"surgical.trades_only_score", sg.TradesOnlyScore},
	} {
		if err := unitScore(v.name, v.value); err != nil {
			return err
		}
	}
	if sg.MinProfitRatio < 0 {
		return invalid("surgical.min_profit_ratio must not be negative")
	}
	if sg.FundingGrace < 0 {
		return invalid("surgical.funding_grace must not be negative")
	}

	return nil
}

// namedValue keeps validation order stable, so the first bad key is always
// the one reported.
type namedValue struct {
	name  string
	value float64
}

func unitScore(name string, v float64) error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return invalid("%s must be between 0.0 and 1.0", name)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
