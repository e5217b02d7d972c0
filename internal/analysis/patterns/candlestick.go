// Package patterns provides candlestick, gap, level, crossover and volume detection
// over a daily OHLCV series.
package patterns

import (
	"fmt"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/models"
)

// CandlestickDetector detects candlestick and gap patterns on the trailing bars of a series.
type CandlestickDetector struct {
	window            int     // Number of trailing bars inspected
	maxResults        int     // Most recent detections retained
	dojiThreshold     float64 // Body size as fraction of range for doji
	longBodyThreshold float64 // Body size as fraction of range for marubozu
	shadowThreshold   float64 // Shadow size as multiple of body for hammer/star shapes
	gapPercent        float64 // Open-vs-previous-close move that counts as a gap
}

// NewCandlestickDetector creates a new candlestick pattern detector.
func NewCandlestickDetector() *CandlestickDetector {
	return &CandlestickDetector{
		window:            5,
		maxResults:        5,
		dojiThreshold:     0.1, // Body < 10% of range
		longBodyThreshold: 0.8, // Body > 80% of range
		shadowThreshold:   2.0, // Shadow > 2x body
		gapPercent:        2.0,
	}
}

func (d *CandlestickDetector) Name() string {
	return "CandlestickDetector"
}

// Detect returns the patterns found on the trailing window, oldest first.
// One extra bar before the window is used as context for gaps and engulfing.
func (d *CandlestickDetector) Detect(candles []models.Candle) []analysis.Pattern {
	n := len(candles)
	if n == 0 {
		return nil
	}

	start := max(n-d.window, 0)
	var patterns []analysis.Pattern

	for i := start; i < n; i++ {
		if p := d.detectSingle(candles, i); p != nil {
			patterns = append(patterns, *p)
		}
		if i == 0 {
			continue
		}
		if p := d.detectEngulfing(candles, i); p != nil {
			patterns = append(patterns, *p)
		}
		if p := d.detectGap(candles, i); p != nil {
			patterns = append(patterns, *p)
		}
	}

	if len(patterns) > d.maxResults {
		patterns = patterns[len(patterns)-d.maxResults:]
	}
	return patterns
}

// Helper functions for candle analysis
func upperShadow(c models.Candle) float64 {
	return c.High - max(c.Open, c.Close)
}

func lowerShadow(c models.Candle) float64 {
	return min(c.Open, c.Close) - c.Low
}

// isInUptrend checks whether the two closes before idx were rising.
func isInUptrend(candles []models.Candle, idx int) bool {
	if idx < 2 {
		return false
	}
	return candles[idx-1].Close > candles[idx-2].Close
}

func newPattern(c models.Candle, kind analysis.PatternKind, signal analysis.Signal, desc string) *analysis.Pattern {
	return &analysis.Pattern{
		Date:        c.Timestamp,
		Kind:        kind,
		Signal:      signal,
		Description: desc,
	}
}

// Single-candle pattern detection

// detectSingle classifies one bar by the proportions of its body and shadows.
// The checks are exclusive: a bar yields at most one single-candle pattern.
func (d *CandlestickDetector) detectSingle(candles []models.Candle, idx int) *analysis.Pattern {
	c := candles[idx]
	rng := c.Range()
	if rng <= 0 {
		return nil
	}

	body := c.Body()
	upper := upperShadow(c)
	lower := lowerShadow(c)

	switch {
	case body/rng < d.dojiThreshold:
		return newPattern(c, analysis.PatternDoji, analysis.SignalNeutral,
			"Doji: open and close nearly equal, indecision")

	case lower > body*d.shadowThreshold && upper < body*0.5:
		if c.IsBullish() {
			return newPattern(c, analysis.PatternHammer, analysis.SignalBuy,
				"Hammer: long lower shadow, possible bottom reversal")
		}
		if c.IsBearish() && isInUptrend(candles, idx) {
			return newPattern(c, analysis.PatternHangingMan, analysis.SignalSell,
				"Hanging man: long lower shadow after a rise, possible top")
		}

	case upper > body*d.shadowThreshold && lower < body*0.5:
		if c.IsBullish() {
			return newPattern(c, analysis.PatternInvertedHammer, analysis.SignalBuy,
				"Inverted hammer: long upper shadow, possible bottom reversal")
		}
		if c.IsBearish() {
			return newPattern(c, analysis.PatternShootingStar, analysis.SignalSell,
				"Shooting star: long upper shadow, possible top reversal")
		}

	case body/rng > d.longBodyThreshold:
		if c.IsBullish() {
			return newPattern(c, analysis.PatternBullishMarubozu, analysis.SignalStrongBuy,
				"Bullish marubozu: full-range buying pressure")
		}
		return newPattern(c, analysis.PatternBearishMarubozu, analysis.SignalStrongSell,
			"Bearish marubozu: full-range selling pressure")
	}

	return nil
}

// Two-candle pattern detection

// detectEngulfing detects Bullish and Bearish Engulfing patterns
func (d *CandlestickDetector) detectEngulfing(candles []models.Candle, idx int) *analysis.Pattern {
	prev := candles[idx-1]
	curr := candles[idx]

	if curr.Body() <= prev.Body() {
		return nil
	}

	// Bullish Engulfing: bearish candle followed by bullish candle that engulfs it
	if prev.IsBearish() && curr.IsBullish() && curr.Open <= prev.Close && curr.Close >= prev.Open {
		return newPattern(curr, analysis.PatternBullishEngulf, analysis.SignalStrongBuy,
			"Bullish engulfing: today's body covers yesterday's decline")
	}

	// Bearish Engulfing: bullish candle followed by bearish candle that engulfs it
	if prev.IsBullish() && curr.IsBearish() && curr.Open >= prev.Close && curr.Close <= prev.Open {
		return newPattern(curr, analysis.PatternBearishEngulf, analysis.SignalStrongSell,
			"Bearish engulfing: today's body covers yesterday's advance")
	}

	return nil
}

// detectGap compares the open against the previous close.
func (d *CandlestickDetector) detectGap(candles []models.Candle, idx int) *analysis.Pattern {
	prevClose := candles[idx-1].Close
	if prevClose <= 0 {
		return nil
	}
	curr := candles[idx]
	gap := (curr.Open - prevClose) / prevClose * 100

	switch {
	case gap > d.gapPercent:
		return newPattern(curr, analysis.PatternGapUp, analysis.SignalBuy,
			fmt.Sprintf("Gap up %.1f%% over previous close", gap))
	case gap < -d.gapPercent:
		return newPattern(curr, analysis.PatternGapDown, analysis.SignalSell,
			fmt.Sprintf("Gap down %.1f%% under previous close", -gap))
	}
	return nil
}
