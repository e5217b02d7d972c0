package signals

import (
	"fmt"

	"equity-scanner/internal/analysis/indicators"
	apperrors "equity-scanner/internal/errors"
)

// ExitConditions records which exit rules held.
type ExitConditions struct {
	StopLoss      bool `json:"stop_loss"`
	TakeProfit    bool `json:"take_profit"`
	RSIOverbought bool `json:"rsi_overbought"`
	BelowMA50     bool `json:"below_ma50"`
}

// ExitSignal is the result of an exit evaluation. Reason and Urgency name
// only the highest-priority rule that held.
type ExitSignal struct {
	Fired      bool           `json:"fired"`
	Reason     ExitReason     `json:"reason"`
	Urgency    Urgency        `json:"urgency"`
	Detail     string         `json:"detail"`
	Conditions ExitConditions `json:"conditions"`
	Price      float64        `json:"price"`
	BuyPrice   float64        `json:"buy_price"`
	PnLPct     float64        `json:"pnl_pct"`
	RSI        float64        `json:"rsi"`
	MA50Gap    float64        `json:"ma50_gap"`
}

// Exit evaluates the exit rules for a position bought at buyPrice, in priority
// order: stop-loss, take-profit, RSI overbought, MA50 breakdown.
func (e *Evaluator) Exit(b *indicators.Bundle, buyPrice float64) (ExitSignal, error) {
	if buyPrice <= 0 {
		return ExitSignal{}, apperrors.NewInputError("buy_price", buyPrice, "must be positive")
	}

	pnl := (b.Price - buyPrice) / buyPrice * 100
	c := ExitConditions{
		StopLoss:      pnl <= e.exit.StopLossPct,
		TakeProfit:    pnl >= e.exit.TakeProfitPct,
		RSIOverbought: b.RSI >= e.exit.RSIExit,
		BelowMA50:     b.MA50Gap < e.exit.MA50GapExit,
	}

	s := ExitSignal{
		Fired:      c.StopLoss || c.TakeProfit || c.RSIOverbought || c.BelowMA50,
		Reason:     ExitNone,
		Urgency:    UrgencyNone,
		Conditions: c,
		Price:      b.Price,
		BuyPrice:   buyPrice,
		PnLPct:     indicators.Round(pnl, 1),
		RSI:        b.RSI,
		MA50Gap:    b.MA50Gap,
	}

	switch {
	case c.StopLoss:
		s.Reason, s.Urgency = ExitStopLoss, UrgencyImmediate
		s.Detail = fmt.Sprintf("stop loss (%.1f%%)", pnl)
	case c.TakeProfit:
		s.Reason, s.Urgency = ExitTakeProfit, UrgencyRecommended
		s.Detail = fmt.Sprintf("take profit (%+.1f%%)", pnl)
	case c.RSIOverbought:
		s.Reason, s.Urgency = ExitRSIOverbought, UrgencyConsider
		s.Detail = fmt.Sprintf("RSI overbought (%.0f)", b.RSI)
	case c.BelowMA50:
		s.Reason, s.Urgency = ExitBelowMA50, UrgencyConsider
		s.Detail = fmt.Sprintf("%.1f%% below 50-day average", -b.MA50Gap)
	default:
		s.Detail = "no exit condition"
	}
	return s, nil
}
