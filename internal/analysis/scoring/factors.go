package scoring

import (
	"fmt"
	"math"

	"equity-scanner/internal/analysis/indicators"
)

const baseline = 50.0

// FactorWeights defines the weight of each factor in the factor score.
type FactorWeights struct {
	Momentum      float64 `mapstructure:"momentum" json:"momentum"`
	Quality       float64 `mapstructure:"quality" json:"quality"`
	Value         float64 `mapstructure:"value" json:"value"`
	Profitability float64 `mapstructure:"profitability" json:"profitability"`
	LowVolatility float64 `mapstructure:"low_volatility" json:"low_volatility"`
}

// Sum returns the total of all weights.
func (w FactorWeights) Sum() float64 {
	return w.Momentum + w.Quality + w.Value + w.Profitability + w.LowVolatility
}

// Normalize rescales the weights so they sum to 1.
func (w FactorWeights) Normalize() FactorWeights {
	total := w.Sum()
	if total <= 0 {
		return w
	}
	return FactorWeights{
		Momentum:      w.Momentum / total,
		Quality:       w.Quality / total,
		Value:         w.Value / total,
		Profitability: w.Profitability / total,
		LowVolatility: w.LowVolatility / total,
	}
}

// Factor weight presets.
const (
	PresetDefault      = "default"
	PresetAggressive   = "aggressive"
	PresetConservative = "conservative"
)

// DefaultFactorWeights returns the default factor weights.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		Momentum:      0.30,
		Quality:       0.25,
		Value:         0.20,
		Profitability: 0.15,
		LowVolatility: 0.10,
	}
}

// FactorPreset returns the named weight preset, normalized to sum to 1.
func FactorPreset(name string) (FactorWeights, error) {
	switch name {
	case "", PresetDefault:
		return DefaultFactorWeights(), nil
	case PresetAggressive:
		return FactorWeights{
			Momentum:      0.35,
			Quality:       0.10,
			Value:         0.10,
			Profitability: 0.20,
			LowVolatility: 0.05,
		}.Normalize(), nil
	case PresetConservative:
		return FactorWeights{
			Momentum:      0.10,
			Quality:       0.20,
			Value:         0.20,
			Profitability: 0.25,
			LowVolatility: 0.15,
		}.Normalize(), nil
	default:
		return FactorWeights{}, fmt.Errorf("unknown factor preset %q", name)
	}
}

// FactorBreakdown holds the individual factor scores, each in [0, 100].
type FactorBreakdown struct {
	Momentum      float64 `json:"momentum"`
	Quality       float64 `json:"quality"`
	Value         float64 `json:"value"`
	Profitability float64 `json:"profitability"`
	LowVolatility float64 `json:"low_volatility"`
}

// FactorScore computes the weighted factor score and its breakdown.
func FactorScore(b *indicators.Bundle, f Fundamentals, w FactorWeights) (float64, FactorBreakdown) {
	d := FactorBreakdown{
		Momentum:      momentumScore(b),
		Quality:       qualityScore(f),
		Value:         valueScore(f),
		Profitability: profitabilityScore(f),
		LowVolatility: lowVolatilityScore(b),
	}
	total := d.Momentum*w.Momentum +
		d.Quality*w.Quality +
		d.Value*w.Value +
		d.Profitability*w.Profitability +
		d.LowVolatility*w.LowVolatility
	return clamp(indicators.Round(total, 1), 0, 100), d
}

func profitabilityScore(f Fundamentals) float64 {
	score := baseline

	switch roe := f.ROE; {
	case roe > 30:
		score += 30
	case roe > 20:
		score += 20
	case roe > 15:
		score += 10
	case roe > 10:
		score += 5
	case roe < 0:
		score -= 20
	}

	switch roa := f.ROA; {
	case roa > 15:
		score += 15
	case roa > 10:
		score += 10
	case roa > 5:
		score += 5
	case roa < 0:
		score -= 10
	}

	switch pm := f.ProfitMargin; {
	case pm > 20:
		score += 10
	case pm > 10:
		score += 5
	case pm < 0:
		score -= 5
	}

	switch om := f.OperatingMargin; {
	case om > 25:
		score += 5
	case om > 15:
		score += 3
	}

	return clamp(score, 0, 100)
}

func momentumScore(b *indicators.Bundle) float64 {
	score := baseline

	switch pos := b.Position52w; {
	case pos >= 60 && pos <= 85:
		score += 25
	case pos >= 50 && pos < 60:
		score += 15
	case pos > 85 && pos <= 95:
		score += 10
	case pos > 95:
		score -= 10
	case pos < 30:
		score -= 15
	}

	switch gap := b.MA50Gap; {
	case gap > 0 && gap <= 10:
		score += 15
	case gap > 10 && gap <= 20:
		score += 5
	case gap > 20:
		score -= 10
	case gap >= -5 && gap <= 0:
		score += 5
	case gap < -10:
		score -= 15
	}

	switch rsi := b.RSI; {
	case rsi >= 50 && rsi <= 65:
		score += 10
	case rsi >= 40 && rsi < 50:
		score += 5
	case rsi > 70:
		score -= 15
	case rsi < 30:
		score -= 10
	}

	return clamp(score, 0, 100)
}

func valueScore(f Fundamentals) float64 {
	score := baseline

	switch pe := f.PE; {
	case pe > 0 && pe <= 15:
		score += 20
	case pe > 15 && pe <= 25:
		score += 10
	case pe > 35:
		score -= 15
	case pe <= 0:
		score -= 10
	}

	switch fpe := f.ForwardPE; {
	case fpe > 0 && fpe <= 15:
		score += 15
	case fpe > 15 && fpe <= 25:
		score += 5
	case fpe > 30:
		score -= 10
	}

	switch peg := f.PEG; {
	case peg > 0 && peg <= 1:
		score += 15
	case peg > 1 && peg <= 2:
		score += 5
	case peg > 3:
		score -= 10
	}

	return clamp(score, 0, 100)
}

func qualityScore(f Fundamentals) float64 {
	score := baseline

	switch de := f.DebtToEquity; {
	case de <= 0.3:
		score += 20
	case de <= 0.5:
		score += 15
	case de <= 1:
		score += 5
	case de > 2:
		score -= 15
	}

	if f.DividendYield > 0 {
		score += 10
	}
	if f.DividendYield > 2 {
		score += 5
	}

	// zero means unavailable
	if cr := f.CurrentRatio; cr != 0 {
		switch {
		case cr >= 2:
			score += 10
		case cr >= 1.5:
			score += 5
		case cr < 1:
			score -= 10
		}
	}

	switch {
	case f.FreeCashFlow > 0:
		score += 5
	case f.FreeCashFlow < 0:
		score -= 5
	}

	return clamp(score, 0, 100)
}

func lowVolatilityScore(b *indicators.Bundle) float64 {
	score := baseline

	switch bb := b.BBPosition; {
	case bb >= 30 && bb <= 70:
		score += 20
	case (bb >= 20 && bb < 30) || (bb > 70 && bb <= 80):
		score += 10
	case bb < 10 || bb > 90:
		score -= 15
	}

	switch ch := math.Abs(b.Change5d); {
	case ch <= 3:
		score += 15
	case ch <= 5:
		score += 10
	case ch <= 10:
	case ch > 15:
		score -= 15
	}

	return clamp(score, 0, 100)
}

// clamp restricts a value to the given range.
func clamp(value, minVal, maxVal float64) float64 {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
