package patterns

import (
	"fmt"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/indicators"
)

// Pair holds a fast and slow value for one bar.
type Pair struct {
	Fast float64
	Slow float64
}

// crossDirection compares two consecutive bars of a fast/slow pair.
// It returns +1 for an upward crossing, -1 for a downward crossing and 0 otherwise.
func crossDirection(prev, curr Pair) int {
	switch {
	case prev.Fast <= prev.Slow && curr.Fast > curr.Slow:
		return 1
	case prev.Fast >= prev.Slow && curr.Fast < curr.Slow:
		return -1
	default:
		return 0
	}
}

// CrossDetector detects moving-average and MACD crossovers between the last two bars.
// Detection is a pure two-bar comparison; values oscillating around a crossing
// fire again on every bar that crosses.
type CrossDetector struct{}

// NewCrossDetector creates a new crossover detector.
func NewCrossDetector() *CrossDetector {
	return &CrossDetector{}
}

func (c *CrossDetector) Name() string {
	return "CrossDetector"
}

// Detect checks the MA5/MA20, MA50/MA200 and MACD/signal pairs of a bundle.
func (c *CrossDetector) Detect(b *indicators.Bundle) []analysis.CrossEvent {
	var events []analysis.CrossEvent

	switch crossDirection(Pair{b.Prev.MA5, b.Prev.MA20}, Pair{b.MA5, b.MA20}) {
	case 1:
		events = append(events, analysis.CrossEvent{Type: analysis.CrossGolden,
			Detail: fmt.Sprintf("MA5 %.2f crossed above MA20 %.2f", b.MA5, b.MA20)})
	case -1:
		events = append(events, analysis.CrossEvent{Type: analysis.CrossDead,
			Detail: fmt.Sprintf("MA5 %.2f crossed below MA20 %.2f", b.MA5, b.MA20)})
	}

	switch crossDirection(Pair{b.Prev.MA50, b.Prev.MA200}, Pair{b.MA50, b.MA200}) {
	case 1:
		events = append(events, analysis.CrossEvent{Type: analysis.CrossLongGolden,
			Detail: fmt.Sprintf("MA50 %.2f crossed above MA200 %.2f", b.MA50, b.MA200)})
	case -1:
		events = append(events, analysis.CrossEvent{Type: analysis.CrossLongDead,
			Detail: fmt.Sprintf("MA50 %.2f crossed below MA200 %.2f", b.MA50, b.MA200)})
	}

	switch crossDirection(Pair{b.Prev.MACD, b.Prev.MACDSignal}, Pair{b.MACD, b.MACDSignal}) {
	case 1:
		events = append(events, analysis.CrossEvent{Type: analysis.CrossMACDGolden,
			Detail: fmt.Sprintf("MACD %.3f crossed above signal %.3f", b.MACD, b.MACDSignal)})
	case -1:
		events = append(events, analysis.CrossEvent{Type: analysis.CrossMACDDead,
			Detail: fmt.Sprintf("MACD %.3f crossed below signal %.3f", b.MACD, b.MACDSignal)})
	}

	return events
}
