package scan

import (
	"context"
	"sort"
	"time"

	"equity-scanner/internal/analysis/signals"
)

const (
	// DefaultRecommendLimit caps the number of daily picks.
	DefaultRecommendLimit = 10

	// MaxRecommendRisk is the highest risk score a pick may carry.
	MaxRecommendRisk = 30
)

// Recommendations is the daily pick list together with the market backdrop.
type Recommendations struct {
	Market      signals.MarketCondition `json:"market"`
	Picks       []SignalResult          `json:"picks"`
	Scanned     int                     `json:"scanned"`
	Failures    []Failure               `json:"failures,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// Recommend keeps results matching at least one strategy with a risk score
// of at most MaxRecommendRisk. Picks are ordered by risk ascending, then
// matched-strategy count descending, then total score descending.
func Recommend(results []SignalResult, limit int) []SignalResult {
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}

	picks := make([]SignalResult, 0, len(results))
	for _, r := range results {
		if len(r.Strategies) == 0 || r.Score.RiskScore > MaxRecommendRisk {
			continue
		}
		picks = append(picks, r)
	}

	sort.SliceStable(picks, func(i, j int) bool {
		a, b := picks[i], picks[j]
		if a.Score.RiskScore != b.Score.RiskScore {
			return a.Score.RiskScore < b.Score.RiskScore
		}
		if len(a.Strategies) != len(b.Strategies) {
			return len(a.Strategies) > len(b.Strategies)
		}
		return a.Score.TotalScore > b.Score.TotalScore
	})

	if len(picks) > limit {
		picks = picks[:limit]
	}
	return picks
}

// Recommend scans the universe and builds the daily pick list. The market
// index is classified alongside.
func (o *Orchestrator) Recommend(ctx context.Context, symbols []string, marketSymbol string, limit int) Recommendations {
	report := o.Scan(ctx, symbols, Options{})
	return Recommendations{
		Market:      o.Market(ctx, marketSymbol),
		Picks:       Recommend(report.Results, limit),
		Scanned:     report.Total,
		Failures:    report.Failures,
		GeneratedAt: o.now(),
	}
}
