package signals

import "equity-scanner/internal/analysis/indicators"

// MarketStatus is the trend classification of the broad market.
type MarketStatus string

const (
	MarketBullish MarketStatus = "bullish"
	MarketNeutral MarketStatus = "neutral"
	MarketBearish MarketStatus = "bearish"
	MarketUnknown MarketStatus = "unknown"
)

// DefaultMarketSymbol is the index proxy used to classify the market.
const DefaultMarketSymbol = "QQQ"

// MarketCondition describes the market trend derived from an index bundle.
type MarketCondition struct {
	Symbol  string       `json:"symbol"`
	Status  MarketStatus `json:"status"`
	Message string       `json:"message"`
	Price   float64      `json:"price,omitempty"`
	MA50    float64      `json:"ma50,omitempty"`
	MA200   float64      `json:"ma200,omitempty"`
}

// ClassifyMarket classifies the market from the index symbol's bundle. A nil
// bundle yields MarketUnknown.
func ClassifyMarket(symbol string, b *indicators.Bundle) MarketCondition {
	if b == nil {
		return MarketCondition{Symbol: symbol, Status: MarketUnknown, Message: "no data"}
	}

	mc := MarketCondition{Symbol: symbol, Price: b.Price, MA50: b.MA50, MA200: b.MA200}
	switch {
	case b.Price > b.MA50 && b.Price > b.MA200:
		mc.Status, mc.Message = MarketBullish, "uptrend"
	case b.Price > b.MA50:
		mc.Status, mc.Message = MarketNeutral, "mixed"
	default:
		mc.Status, mc.Message = MarketBearish, "downtrend"
	}
	return mc
}
