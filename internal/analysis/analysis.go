// Package analysis provides technical analysis functionality including indicators,
// pattern detection, scoring and trade signals.
package analysis

import (
	"time"
)

// Signal is the directional verdict attached to a detected pattern or volume reading.
type Signal string

const (
	SignalNeutral    Signal = "neutral"
	SignalWatch      Signal = "watch"
	SignalBuy        Signal = "buy"
	SignalStrongBuy  Signal = "strong_buy"
	SignalSell       Signal = "sell"
	SignalStrongSell Signal = "strong_sell"
)

// PatternKind identifies a candlestick or gap pattern.
type PatternKind string

const (
	PatternDoji            PatternKind = "doji"
	PatternHammer          PatternKind = "hammer"
	PatternHangingMan      PatternKind = "hanging_man"
	PatternInvertedHammer  PatternKind = "inverted_hammer"
	PatternShootingStar    PatternKind = "shooting_star"
	PatternBullishMarubozu PatternKind = "bullish_marubozu"
	PatternBearishMarubozu PatternKind = "bearish_marubozu"
	PatternBullishEngulf   PatternKind = "bullish_engulfing"
	PatternBearishEngulf   PatternKind = "bearish_engulfing"
	PatternGapUp           PatternKind = "gap_up"
	PatternGapDown         PatternKind = "gap_down"
)

// Pattern represents a detected candlestick pattern on a single bar.
type Pattern struct {
	Date        time.Time   `json:"date"`
	Kind        PatternKind `json:"pattern"`
	Signal      Signal      `json:"signal"`
	Description string      `json:"description"`
}

// LevelType represents the type of price level.
type LevelType string

const (
	LevelSupport    LevelType = "support"
	LevelResistance LevelType = "resistance"
)

// PriceLevel represents a support or resistance level.
type PriceLevel struct {
	Price float64   `json:"price"`
	Kind  LevelType `json:"kind"`
}

// CrossType identifies a moving-average or MACD crossover.
type CrossType string

const (
	CrossGolden     CrossType = "golden_cross"
	CrossDead       CrossType = "dead_cross"
	CrossLongGolden CrossType = "long_golden_cross"
	CrossLongDead   CrossType = "long_dead_cross"
	CrossMACDGolden CrossType = "macd_golden"
	CrossMACDDead   CrossType = "macd_dead"
)

// IsBullish reports whether the cross is an upward crossing.
func (c CrossType) IsBullish() bool {
	return c == CrossGolden || c == CrossLongGolden || c == CrossMACDGolden
}

// CrossEvent represents a crossover detected between the last two bars.
type CrossEvent struct {
	Type   CrossType `json:"type"`
	Detail string    `json:"detail"`
}

// VolumeSignal is the result of comparing current volume to its rolling average.
type VolumeSignal struct {
	Signal      Signal  `json:"signal"`
	Ratio       float64 `json:"ratio"`
	Description string  `json:"description"`
}
