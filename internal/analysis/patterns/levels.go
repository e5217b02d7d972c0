package patterns

import (
	"sort"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/models"
)

// LevelFinder identifies support and resistance levels from local pivots.
type LevelFinder struct {
	lookback      int // Trailing bars scanned for pivots
	pivotStrength int // Number of bars on each side for pivot confirmation
	maxLevels     int // Levels kept per side
}

// NewLevelFinder creates a new support/resistance level finder.
func NewLevelFinder() *LevelFinder {
	return &LevelFinder{
		lookback:      60,
		pivotStrength: 2,
		maxLevels:     3,
	}
}

func (l *LevelFinder) Name() string {
	return "LevelFinder"
}

// Find returns supports below the last close (nearest first, descending) and
// resistances above it (nearest first, ascending).
func (l *LevelFinder) Find(candles []models.Candle) (supports, resistances []analysis.PriceLevel) {
	if len(candles) == 0 {
		return nil, nil
	}

	window := candles[max(len(candles)-l.lookback, 0):]
	price := models.LastClose(candles)

	var highs, lows []float64
	for i := l.pivotStrength; i < len(window)-l.pivotStrength; i++ {
		if l.isPivotHigh(window, i) && window[i].High > price {
			highs = append(highs, indicators.Round(window[i].High, 2))
		}
		if l.isPivotLow(window, i) && window[i].Low < price {
			lows = append(lows, indicators.Round(window[i].Low, 2))
		}
	}

	highs = dedupe(highs)
	lows = dedupe(lows)
	sort.Float64s(highs)
	sort.Sort(sort.Reverse(sort.Float64Slice(lows)))

	return l.toLevels(lows, analysis.LevelSupport), l.toLevels(highs, analysis.LevelResistance)
}

// isPivotHigh reports whether the high at idx strictly exceeds its neighbors on each side.
func (l *LevelFinder) isPivotHigh(candles []models.Candle, idx int) bool {
	for k := 1; k <= l.pivotStrength; k++ {
		if candles[idx].High <= candles[idx-k].High || candles[idx].High <= candles[idx+k].High {
			return false
		}
	}
	return true
}

// isPivotLow reports whether the low at idx is strictly below its neighbors on each side.
func (l *LevelFinder) isPivotLow(candles []models.Candle, idx int) bool {
	for k := 1; k <= l.pivotStrength; k++ {
		if candles[idx].Low >= candles[idx-k].Low || candles[idx].Low >= candles[idx+k].Low {
			return false
		}
	}
	return true
}

func (l *LevelFinder) toLevels(prices []float64, kind analysis.LevelType) []analysis.PriceLevel {
	if len(prices) > l.maxLevels {
		prices = prices[:l.maxLevels]
	}
	levels := make([]analysis.PriceLevel, len(prices))
	for i, p := range prices {
		levels[i] = analysis.PriceLevel{Price: p, Kind: kind}
	}
	return levels
}

func dedupe(values []float64) []float64 {
	seen := make(map[float64]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// LevelPrices extracts the prices of levels in order.
func LevelPrices(levels []analysis.PriceLevel) []float64 {
	prices := make([]float64, len(levels))
	for i, lvl := range levels {
		prices[i] = lvl.Price
	}
	return prices
}
