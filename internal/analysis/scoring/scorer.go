// Package scoring provides the factor, financial and risk scores and their
// composite grade.
package scoring

import (
	"fmt"
	"math"

	"equity-scanner/internal/analysis/indicators"
	apperrors "equity-scanner/internal/errors"
)

const weightTolerance = 1e-6

// Grade is the letter grade of a composite score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// BlendWeights defines how the sub-scores combine into the composite total.
// Risk weights the inverted risk score (100 - risk).
type BlendWeights struct {
	Factor    float64 `mapstructure:"factor" json:"factor"`
	Financial float64 `mapstructure:"financial" json:"financial"`
	Risk      float64 `mapstructure:"risk" json:"risk"`
}

// Sum returns the total of all weights.
func (w BlendWeights) Sum() float64 {
	return w.Factor + w.Financial + w.Risk
}

// Config holds the scoring weights.
type Config struct {
	Factor           FactorWeights
	FinancialMode    FinancialMode
	FinancialWeights FinancialWeights
	Blend            BlendWeights
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		Factor:           DefaultFactorWeights(),
		FinancialMode:    FinancialThreePart,
		FinancialWeights: DefaultFinancialWeights(FinancialThreePart),
		Blend:            BlendWeights{Factor: 0.5, Financial: 0.3, Risk: 0.2},
	}
}

// Validate checks that every weight set is non-negative and sums to 1.
func (c Config) Validate() error {
	if c.FinancialMode != FinancialThreePart && c.FinancialMode != FinancialFivePart {
		return apperrors.NewValidationError("financial_mode", c.FinancialMode, "must be three_part or five_part")
	}
	if c.FinancialMode == FinancialThreePart && (c.FinancialWeights.Valuation != 0 || c.FinancialWeights.Dividend != 0) {
		return apperrors.NewValidationError("financial_weights", c.FinancialWeights, "valuation and dividend weights require five_part mode")
	}

	sets := []struct {
		name    string
		weights []float64
		sum     float64
	}{
		{"factor_weights", []float64{c.Factor.Momentum, c.Factor.Quality, c.Factor.Value, c.Factor.Profitability, c.Factor.LowVolatility}, c.Factor.Sum()},
		{"financial_weights", []float64{c.FinancialWeights.Profitability, c.FinancialWeights.Valuation, c.FinancialWeights.Growth, c.FinancialWeights.Health, c.FinancialWeights.Dividend}, c.FinancialWeights.Sum()},
		{"blend", []float64{c.Blend.Factor, c.Blend.Financial, c.Blend.Risk}, c.Blend.Sum()},
	}
	for _, s := range sets {
		for _, w := range s.weights {
			if w < 0 || math.IsNaN(w) {
				return apperrors.NewValidationError(s.name, w, "weights must be non-negative")
			}
		}
		if math.Abs(s.sum-1) > weightTolerance {
			return apperrors.NewValidationError(s.name, s.sum, "weights must sum to 1")
		}
	}
	return nil
}

// CompositeScore is the blended scoring result for one symbol.
type CompositeScore struct {
	FactorScore    float64            `json:"factor_score"`
	FinancialScore float64            `json:"financial_score"`
	RiskScore      float64            `json:"risk_score"`
	RiskGrade      RiskGrade          `json:"risk_grade"`
	TotalScore     float64            `json:"total_score"`
	Grade          Grade              `json:"grade"`
	Recommendation string             `json:"recommendation"`
	Warnings       []string           `json:"warnings,omitempty"`
	Factors        FactorBreakdown    `json:"factors"`
	Financial      FinancialBreakdown `json:"financial"`
}

// Engine computes composite scores. It is immutable after construction.
type Engine struct {
	cfg Config
}

// NewEngine validates the configuration and creates a scoring engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Score computes the composite score from a bundle and parsed fundamentals.
func (e *Engine) Score(b *indicators.Bundle, f Fundamentals) CompositeScore {
	factor, factors := FactorScore(b, f, e.cfg.Factor)
	financial, fin := FinancialScore(f, e.cfg.FinancialMode, e.cfg.FinancialWeights)
	risk := RiskScore(b)

	total := factor*e.cfg.Blend.Factor +
		financial*e.cfg.Blend.Financial +
		(100-risk.Score)*e.cfg.Blend.Risk
	total = clamp(indicators.Round(total, 1), 0, 100)
	grade, rec := GradeFor(total)

	return CompositeScore{
		FactorScore:    factor,
		FinancialScore: financial,
		RiskScore:      risk.Score,
		RiskGrade:      risk.Grade,
		TotalScore:     total,
		Grade:          grade,
		Recommendation: rec,
		Warnings:       risk.Warnings,
		Factors:        factors,
		Financial:      fin,
	}
}

// GradeFor maps a total score to its letter grade and recommendation.
func GradeFor(total float64) (Grade, string) {
	switch {
	case total >= 70:
		return GradeA, "strong buy"
	case total >= 60:
		return GradeB, "buy"
	case total >= 50:
		return GradeC, "hold"
	case total >= 40:
		return GradeD, "consider selling"
	default:
		return GradeF, "sell"
	}
}
