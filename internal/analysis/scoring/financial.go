package scoring

import "equity-scanner/internal/analysis/indicators"

// FinancialMode selects how the financial score is composed.
type FinancialMode string

const (
	FinancialThreePart FinancialMode = "three_part"
	FinancialFivePart  FinancialMode = "five_part"
)

// FinancialWeights weights the financial sub-scores. Valuation and Dividend
// are only used in five-part mode.
type FinancialWeights struct {
	Profitability float64 `mapstructure:"profitability" json:"profitability"`
	Valuation     float64 `mapstructure:"valuation" json:"valuation"`
	Growth        float64 `mapstructure:"growth" json:"growth"`
	Health        float64 `mapstructure:"health" json:"health"`
	Dividend      float64 `mapstructure:"dividend" json:"dividend"`
}

// Sum returns the total of all weights.
func (w FinancialWeights) Sum() float64 {
	return w.Profitability + w.Valuation + w.Growth + w.Health + w.Dividend
}

// DefaultFinancialWeights returns the weights for the given mode.
func DefaultFinancialWeights(mode FinancialMode) FinancialWeights {
	if mode == FinancialFivePart {
		return FinancialWeights{Profitability: 0.25, Valuation: 0.25, Growth: 0.20, Health: 0.20, Dividend: 0.10}
	}
	return FinancialWeights{Profitability: 0.40, Growth: 0.35, Health: 0.25}
}

// FinancialBreakdown holds the financial sub-scores, each in [0, 100].
type FinancialBreakdown struct {
	Profitability float64 `json:"profitability"`
	Valuation     float64 `json:"valuation,omitempty"`
	Growth        float64 `json:"growth"`
	Health        float64 `json:"health"`
	Dividend      float64 `json:"dividend,omitempty"`
}

// FinancialScore computes the weighted financial score for the given mode.
func FinancialScore(f Fundamentals, mode FinancialMode, w FinancialWeights) (float64, FinancialBreakdown) {
	var d FinancialBreakdown
	if mode == FinancialFivePart {
		d = FinancialBreakdown{
			Profitability: detailedProfitability(f),
			Valuation:     detailedValuation(f),
			Growth:        detailedGrowth(f),
			Health:        detailedHealth(f),
			Dividend:      dividendScore(f),
		}
	} else {
		d = FinancialBreakdown{
			Profitability: basicProfitability(f),
			Growth:        basicGrowth(f),
			Health:        basicHealth(f),
		}
	}

	total := d.Profitability*w.Profitability +
		d.Valuation*w.Valuation +
		d.Growth*w.Growth +
		d.Health*w.Health +
		d.Dividend*w.Dividend
	return clamp(indicators.Round(total, 1), 0, 100), d
}

// Three-part sub-scores

func basicProfitability(f Fundamentals) float64 {
	score := baseline
	switch {
	case f.ROE >= 20:
		score += 25
	case f.ROE >= 15:
		score += 15
	case f.ROE < 0:
		score -= 20
	}
	switch {
	case f.ProfitMargin >= 20:
		score += 15
	case f.ProfitMargin >= 10:
		score += 10
	case f.ProfitMargin < 0:
		score -= 10
	}
	return clamp(score, 0, 100)
}

func basicGrowth(f Fundamentals) float64 {
	score := baseline
	switch {
	case f.RevenueGrowth >= 20:
		score += 20
	case f.RevenueGrowth >= 10:
		score += 10
	case f.RevenueGrowth < 0:
		score -= 10
	}
	switch {
	case f.EarningsGrowth >= 20:
		score += 20
	case f.EarningsGrowth >= 10:
		score += 10
	case f.EarningsGrowth < -10:
		score -= 15
	}
	return clamp(score, 0, 100)
}

func basicHealth(f Fundamentals) float64 {
	score := baseline
	switch {
	case f.CurrentRatio >= 2:
		score += 15
	case f.CurrentRatio >= 1.5:
		score += 10
	case f.CurrentRatio < 1:
		score -= 10
	}
	if f.FreeCashFlow > 0 {
		score += 15
	} else {
		score -= 10
	}
	return clamp(score, 0, 100)
}

// Five-part sub-scores

func detailedProfitability(f Fundamentals) float64 {
	score := baseline
	switch {
	case f.ROE >= 25:
		score += 25
	case f.ROE >= 20:
		score += 20
	case f.ROE >= 15:
		score += 15
	case f.ROE >= 10:
		score += 10
	case f.ROE < 0:
		score -= 20
	}
	switch {
	case f.ROA >= 15:
		score += 15
	case f.ROA >= 10:
		score += 10
	case f.ROA >= 5:
		score += 5
	case f.ROA < 0:
		score -= 10
	}
	switch {
	case f.ProfitMargin >= 20:
		score += 10
	case f.ProfitMargin >= 10:
		score += 5
	case f.ProfitMargin < 0:
		score -= 10
	}
	return clamp(score, 0, 100)
}

func detailedValuation(f Fundamentals) float64 {
	score := baseline
	switch pe := f.PE; {
	case pe > 0 && pe <= 10:
		score += 25
	case pe > 10 && pe <= 15:
		score += 20
	case pe > 15 && pe <= 20:
		score += 10
	case pe > 40:
		score -= 15
	}
	switch pb := f.PB; {
	case pb > 0 && pb <= 1:
		score += 15
	case pb > 1 && pb <= 1.5:
		score += 10
	case pb > 1.5 && pb <= 3:
		score += 5
	case pb > 5:
		score -= 10
	}
	switch peg := f.PEG; {
	case peg > 0 && peg <= 0.5:
		score += 15
	case peg > 0.5 && peg <= 1:
		score += 10
	case peg > 1 && peg <= 2:
		score += 5
	case peg > 3:
		score -= 10
	}
	return clamp(score, 0, 100)
}

func detailedGrowth(f Fundamentals) float64 {
	score := baseline
	switch {
	case f.RevenueGrowth >= 30:
		score += 20
	case f.RevenueGrowth >= 20:
		score += 15
	case f.RevenueGrowth >= 10:
		score += 10
	case f.RevenueGrowth >= 5:
		score += 5
	case f.RevenueGrowth < 0:
		score -= 10
	}
	switch {
	case f.EarningsGrowth >= 30:
		score += 20
	case f.EarningsGrowth >= 20:
		score += 15
	case f.EarningsGrowth >= 10:
		score += 10
	case f.EarningsGrowth < -10:
		score -= 15
	}
	return clamp(score, 0, 100)
}

func detailedHealth(f Fundamentals) float64 {
	score := baseline
	switch de := f.DebtToEquity; {
	case de <= 0.3:
		score += 20
	case de <= 0.5:
		score += 15
	case de <= 1:
		score += 10
	case de > 2:
		score -= 15
	}
	switch {
	case f.CurrentRatio >= 2:
		score += 15
	case f.CurrentRatio >= 1.5:
		score += 10
	case f.CurrentRatio >= 1:
		score += 5
	default:
		score -= 10
	}
	if f.FreeCashFlow > 0 {
		score += 15
	} else {
		score -= 10
	}
	return clamp(score, 0, 100)
}

func dividendScore(f Fundamentals) float64 {
	score := baseline
	switch y := f.DividendYield; {
	case y >= 4:
		score += 20
	case y >= 2:
		score += 15
	case y >= 1:
		score += 10
	case y > 0:
		score += 5
	}
	switch p := f.PayoutRatio; {
	case p >= 30 && p <= 60:
		score += 15
	case (p >= 20 && p < 30) || (p > 60 && p <= 80):
		score += 10
	case p > 100:
		score -= 10
	}
	return clamp(score, 0, 100)
}
