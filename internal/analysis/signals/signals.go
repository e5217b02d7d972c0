// Package signals evaluates entry and exit rules, named strategies and the
// overall market condition from an indicator bundle.
package signals

import (
	"fmt"

	apperrors "equity-scanner/internal/errors"
)

// Strength grades an entry signal by the number of conditions met.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthWeak     Strength = "weak"
)

// ExitReason identifies the rule that triggered an exit.
type ExitReason string

const (
	ExitStopLoss      ExitReason = "stop_loss"
	ExitTakeProfit    ExitReason = "take_profit"
	ExitRSIOverbought ExitReason = "rsi_overbought"
	ExitBelowMA50     ExitReason = "below_ma50"
	ExitNone          ExitReason = "none"
)

// Urgency describes how soon an exit should be acted on.
type Urgency string

const (
	UrgencyImmediate   Urgency = "immediate"
	UrgencyRecommended Urgency = "recommended"
	UrgencyConsider    Urgency = "consider"
	UrgencyNone        Urgency = "none"
)

// EntryConfig holds the thresholds of the entry rules.
type EntryConfig struct {
	RSIMax        float64 `mapstructure:"rsi_entry" json:"rsi_entry"`
	BBPositionMax float64 `mapstructure:"bb_entry" json:"bb_entry"`
	MA50GapMax    float64 `mapstructure:"ma50_gap_entry" json:"ma50_gap_entry"`
	MinDownDays   int     `mapstructure:"down_days_entry" json:"down_days_entry"`
	MinConditions int     `mapstructure:"min_conditions" json:"min_conditions"`
}

// DefaultEntryConfig returns the default entry thresholds.
func DefaultEntryConfig() EntryConfig {
	return EntryConfig{
		RSIMax:        35,
		BBPositionMax: 20,
		MA50GapMax:    -3,
		MinDownDays:   3,
		MinConditions: 3,
	}
}

// Validate checks that the entry thresholds are within their valid ranges.
func (c EntryConfig) Validate() error {
	if c.RSIMax <= 0 || c.RSIMax >= 100 {
		return apperrors.NewValidationError("rsi_entry", c.RSIMax, "must be between 0 and 100")
	}
	if c.BBPositionMax < 0 || c.BBPositionMax > 100 {
		return apperrors.NewValidationError("bb_entry", c.BBPositionMax, "must be between 0 and 100")
	}
	if c.MA50GapMax >= 0 {
		return apperrors.NewValidationError("ma50_gap_entry", c.MA50GapMax, "must be negative")
	}
	if c.MinDownDays < 1 {
		return apperrors.NewValidationError("down_days_entry", c.MinDownDays, "must be at least 1")
	}
	if c.MinConditions < 1 || c.MinConditions > 4 {
		return apperrors.NewValidationError("min_conditions", c.MinConditions, "must be between 1 and 4")
	}
	return nil
}

// ExitConfig holds the thresholds of the exit rules. Percentages are relative
// to the buy price.
type ExitConfig struct {
	StopLossPct   float64 `mapstructure:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct float64 `mapstructure:"take_profit_pct" json:"take_profit_pct"`
	RSIExit       float64 `mapstructure:"rsi_exit" json:"rsi_exit"`
	MA50GapExit   float64 `mapstructure:"ma50_gap_exit" json:"ma50_gap_exit"`
}

// DefaultExitConfig returns the default exit thresholds.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		StopLossPct:   -7,
		TakeProfitPct: 15,
		RSIExit:       70,
		MA50GapExit:   -5,
	}
}

// Validate checks that stop-loss < 0 < take-profit and the RSI band is sane.
func (c ExitConfig) Validate() error {
	if c.StopLossPct >= 0 {
		return apperrors.NewValidationError("stop_loss_pct", c.StopLossPct, "must be negative")
	}
	if c.TakeProfitPct <= 0 {
		return apperrors.NewValidationError("take_profit_pct", c.TakeProfitPct, "must be positive")
	}
	if c.RSIExit <= 0 || c.RSIExit > 100 {
		return apperrors.NewValidationError("rsi_exit", c.RSIExit, "must be between 0 and 100")
	}
	if c.MA50GapExit >= 0 {
		return apperrors.NewValidationError("ma50_gap_exit", c.MA50GapExit, "must be negative")
	}
	return nil
}

// Evaluator applies the entry and exit rules. It holds only its thresholds,
// so a single Evaluator is safe for concurrent use.
type Evaluator struct {
	entry EntryConfig
	exit  ExitConfig
}

// NewEvaluator validates the thresholds and creates an Evaluator.
func NewEvaluator(entry EntryConfig, exit ExitConfig) (*Evaluator, error) {
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("entry config: %w", err)
	}
	if err := exit.Validate(); err != nil {
		return nil, fmt.Errorf("exit config: %w", err)
	}
	return &Evaluator{entry: entry, exit: exit}, nil
}

// EntryConfig returns the entry thresholds.
func (e *Evaluator) EntryConfig() EntryConfig {
	return e.entry
}

// ExitConfig returns the exit thresholds.
func (e *Evaluator) ExitConfig() ExitConfig {
	return e.exit
}
