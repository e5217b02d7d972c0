// Package models provides domain models for the equity scanner.
package models

import (
	"strings"
	"time"
)

// Candle represents one daily OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// IsBullish reports whether the bar closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the bar closed below its open.
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// Range returns the high-low span of the bar.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Body returns the absolute open-close span of the bar.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// LastClose returns the close of the most recent bar, or 0 for an empty series.
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// Fundamental field names as delivered by market-data providers.
const (
	FieldROE             = "roe"
	FieldROA             = "roa"
	FieldProfitMargin    = "profit_margin"
	FieldOperatingMargin = "operating_margin"
	FieldPE              = "pe"
	FieldForwardPE       = "forward_pe"
	FieldPEG             = "peg"
	FieldPB              = "pb"
	FieldDebtToEquity    = "debt_to_equity"
	FieldCurrentRatio    = "current_ratio"
	FieldFreeCashFlow    = "free_cash_flow"
	FieldRevenueGrowth   = "revenue_growth"
	FieldEarningsGrowth  = "earnings_growth"
	FieldDividendYield   = "dividend_yield"
	FieldPayoutRatio     = "payout_ratio"
)

// NotAvailable is the sentinel providers use for an unavailable fundamental field.
const NotAvailable = "N/A"

// RawFundamentals holds provider-formatted fundamental ratios keyed by field name.
// Values are strings such as "18.5%", "1,234" or "N/A".
type RawFundamentals map[string]string

// Get returns the raw value for a field, or NotAvailable when absent.
func (r RawFundamentals) Get(field string) string {
	if r == nil {
		return NotAvailable
	}
	v, ok := r[field]
	if !ok || strings.TrimSpace(v) == "" {
		return NotAvailable
	}
	return v
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// DedupeSymbols normalizes symbols and drops duplicates, preserving first-seen order.
func DedupeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
