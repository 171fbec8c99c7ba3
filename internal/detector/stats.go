package detector

import (
	"math"

	"github.com/rewired-gh/polysleuth/internal/models"
)

// NarrowSeparation is the insider-minus-normal average at or below which a
// calibration is considered unable to tell the two groups apart.
const NarrowSeparation = 0.1

// RunningStats accumulates mean and variance in one pass (Welford).
type RunningStats struct {
	Count int
	Mean  float64
	M2    float64
}

func (s *RunningStats) Add(x float64) {
	s.Count++
	delta := x - s.Mean
	s.Mean += delta / float64(s.Count)
	delta2 := x - s.Mean
	s.M2 += delta * delta2
}

// StdDev is the sample standard deviation, or 0 with fewer than two samples.
func (s *RunningStats) StdDev() float64 {
	if s.Count < 2 {
		return 0
	}
	return math.Sqrt(s.M2 / float64(s.Count-1))
}

// GroupSummary describes how one labeled group of wallets scored.
type GroupSummary struct {
	Wallets    int
	MeanScore  float64
	StdDev     float64
	HighOrMore int
	ByRisk     map[models.RiskLevel]int
}

// Summarize aggregates composite scores and tiers across reports.
func Summarize(reports []*models.WalletReport) GroupSummary {
	var stats RunningStats
	summary := GroupSummary{ByRisk: make(map[models.RiskLevel]int)}
	for _, r := range reports {
		stats.Add(r.CompositeScore)
		summary.ByRisk[r.RiskLevel]++
		if r.RiskLevel.AtLeast(models.RiskHigh) {
			summary.HighOrMore++
		}
	}
	summary.Wallets = stats.Count
	summary.MeanScore = models.Round(stats.Mean, 4)
	summary.StdDev = models.Round(stats.StdDev(), 4)
	return summary
}

// Validation compares a labeled insider group against a control group.
type Validation struct {
	Insiders   GroupSummary
	Normals    GroupSummary
	Separation float64
}

// Narrow reports whether the groups are too close to trust the calibration.
func (v Validation) Narrow() bool {
	return v.Separation <= NarrowSeparation
}

// Validate summarizes both groups and their separation.
func Validate(insiders, normals []*models.WalletReport) Validation {
	in, out := Summarize(insiders), Summarize(normals)
	return Validation{
		Insiders:   in,
		Normals:    out,
		Separation: models.Round(in.MeanScore-out.MeanScore, 4),
	}
}
