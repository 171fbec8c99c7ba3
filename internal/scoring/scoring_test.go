package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polysleuth/internal/models"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.InDelta(t, 1.0, cfg.Weights.Sum(), 1e-9)
	assert.InDelta(t, 0.0, cfg.WeightDrift(), 1e-9)
	assert.True(t, cfg.WeightsBalanced())

	cfg.Weights.MarketFocus += 0.01
	assert.False(t, cfg.WeightsBalanced())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"negative weight", func(c *Config) { c.Weights.PositionSize = -0.1 }, true},
		{"drift tolerated", func(c *Config) { c.Weights.PositionSize = 0.5 }, false},
		{"drift rejected when strict", func(c *Config) {
			c.StrictWeights = true
			c.Weights.PositionSize = 0.5
		}, true},
		{"tiers out of order", func(c *Config) { c.Tiers.High = 0.9 }, true},
		{"medium tier zero", func(c *Config) { c.Tiers.Medium = 0 }, true},
		{"freshness bands out of order", func(c *Config) { c.Freshness.SuspiciousHours = 1 }, true},
		{"certainty band inverted", func(c *Config) { c.Certainty.MinPrice = 0.6 }, true},
		{"timing fractions out of order", func(c *Config) { c.Timing.ModeratePct = 0.1 }, true},
		{"zero default lifetime", func(c *Config) { c.Timing.DefaultLifetime = 0 }, true},
		{"focus floor above one", func(c *Config) { c.Focus.Floor = 1.2 }, true},
		{"size thresholds inverted", func(c *Config) { c.Size.SmallUSD = 20_000 }, true},
		{"surgical score above one", func(c *Config) { c.Surgical.PartialPatternScore = 2 }, true},
		{"negative funding grace", func(c *Config) { c.Surgical.FundingGrace = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig), "error should wrap ErrInvalidConfig: %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidateReportsFirstInvalidKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.WalletFreshness = -0.1
	cfg.Weights.PositionSize = -0.2
	cfg.Weights.SurgicalBehavior = -0.3
	cfg.Focus.TwoMarketsScore = 2
	cfg.Focus.Floor = -1

	for i := 0; i < 50; i++ {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights.wallet_freshness")
	}

	cfg.Weights = DefaultConfig().Weights
	for i := 0; i < 50; i++ {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "focus.two_markets_score")
	}

	cfg.Focus = DefaultConfig().Focus
	cfg.Surgical.RedeemedScore = 1.5
	cfg.Surgical.FullPatternScore = -0.5
	for i := 0; i < 50; i++ {
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "surgical.full_pattern_score")
	}
}

func TestClassifyBoundaries(t *testing.T) {
	s := NewScorer(DefaultConfig())

	tests := []struct {
		score float64
		want  models.RiskLevel
	}{
		{1.0, models.RiskCritical},
		{0.85, models.RiskCritical},
		{0.849999, models.RiskHigh},
		{0.70, models.RiskHigh},
		{0.6999, models.RiskMedium},
		{0.50, models.RiskMedium},
		{0.4999, models.RiskLow},
		{0.0, models.RiskLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Classify(tt.score), "score %v", tt.score)
	}
}

func TestClassifyCustomTiers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tiers = Tiers{Critical: 0.6, High: 0.4, Medium: 0.2}
	s := NewScorer(cfg)

	assert.Equal(t, models.RiskCritical, s.Classify(0.6))
	assert.Equal(t, models.RiskMedium, s.Classify(0.3))
}

func TestCompositeClamped(t *testing.T) {
	s := NewScorer(DefaultConfig())

	var signals []models.SignalScore
	for i := 0; i < 6; i++ {
		// weights summing to 3.0
		signals = append(signals, models.NewSignalScore("s", 1.0, 0.5, nil))
	}
	assert.Equal(t, 1.0, s.Composite(signals))

	assert.Equal(t, 0.0, s.Composite(nil))
}

func TestCompositeRounded(t *testing.T) {
	s := NewScorer(DefaultConfig())
	signals := []models.SignalScore{
		models.NewSignalScore("a", 0.7, 0.15, nil),
		models.NewSignalScore("b", 0.4, 0.25, nil),
		models.NewSignalScore("c", 0.1, 0.20, nil),
		models.NewSignalScore("d", 0.55, 0.15, nil),
	}
	// 0.105 + 0.1 + 0.02 + 0.0825
	assert.Equal(t, 0.3075, s.Composite(signals))
}
