package signals

import (
	"fmt"

	"equity-scanner/internal/analysis/indicators"
)

// StrategyRisk is the risk label attached to a strategy.
type StrategyRisk string

const (
	StrategyRiskLow    StrategyRisk = "low"
	StrategyRiskMedium StrategyRisk = "medium"
	StrategyRiskHigh   StrategyRisk = "high"
)

// Strategy names.
const (
	StrategyConservativeMomentum = "conservative_momentum"
	StrategyGoldenCross          = "golden_cross"
	StrategyBollingerBounce      = "bollinger_bounce"
	StrategyMACDCross            = "macd_cross"
	StrategyNear52wHigh          = "near_52w_high"
	StrategyVolumeSurge          = "volume_surge"
)

// StrategyMatch is a named strategy whose rules held on the latest bar.
type StrategyMatch struct {
	Name   string       `json:"name"`
	Reason string       `json:"reason"`
	Risk   StrategyRisk `json:"risk"`
}

type strategyRule struct {
	name  string
	risk  StrategyRisk
	match func(b *indicators.Bundle) (bool, string)
}

var strategyRules = []strategyRule{
	{StrategyConservativeMomentum, StrategyRiskLow, func(b *indicators.Bundle) (bool, string) {
		ok := b.Price > b.MA50 && b.Price > b.MA200 &&
			b.RSI >= 40 && b.RSI <= 60 &&
			float64(b.Volume) > float64(b.VolumeAvg)*0.8
		return ok, fmt.Sprintf("RSI %.0f, above 50 and 200-day averages", b.RSI)
	}},
	{StrategyGoldenCross, StrategyRiskMedium, func(b *indicators.Bundle) (bool, string) {
		return b.Prev.MA5 <= b.Prev.MA20 && b.MA5 > b.MA20, "MA5 crossed above MA20"
	}},
	{StrategyBollingerBounce, StrategyRiskMedium, func(b *indicators.Bundle) (bool, string) {
		ok := b.Prev.Price <= b.Prev.BBLower*1.01 && b.Price > b.Prev.Price && b.RSI < 35
		return ok, fmt.Sprintf("rebound off lower band, RSI %.0f", b.RSI)
	}},
	{StrategyMACDCross, StrategyRiskMedium, func(b *indicators.Bundle) (bool, string) {
		return b.Prev.MACD <= b.Prev.MACDSignal && b.MACD > b.MACDSignal, "MACD crossed above signal"
	}},
	{StrategyNear52wHigh, StrategyRiskHigh, func(b *indicators.Bundle) (bool, string) {
		if b.High52w <= 0 {
			return false, ""
		}
		gap := (b.High52w - b.Price) / b.High52w * 100
		return gap > 0 && gap <= 5 && b.Price > b.MA50, fmt.Sprintf("%.1f%% below 52-week high", gap)
	}},
	{StrategyVolumeSurge, StrategyRiskMedium, func(b *indicators.Bundle) (bool, string) {
		if b.VolumeAvg <= 0 || b.Prev.Price <= 0 {
			return false, ""
		}
		ratio := float64(b.Volume) / float64(b.VolumeAvg)
		change := (b.Price - b.Prev.Price) / b.Prev.Price * 100
		return ratio >= 2 && change > 0 && b.Price > b.MA50, fmt.Sprintf("volume %.1fx, %+.1f%%", ratio, change)
	}},
}

// StrategyNames returns the names of all strategies in evaluation order.
func StrategyNames() []string {
	names := make([]string, len(strategyRules))
	for i, r := range strategyRules {
		names[i] = r.name
	}
	return names
}

// MatchStrategies returns every strategy whose rules hold for the bundle,
// in a fixed order.
func MatchStrategies(b *indicators.Bundle) []StrategyMatch {
	var matches []StrategyMatch
	for _, r := range strategyRules {
		if ok, reason := r.match(b); ok {
			matches = append(matches, StrategyMatch{Name: r.name, Reason: reason, Risk: r.risk})
		}
	}
	return matches
}
