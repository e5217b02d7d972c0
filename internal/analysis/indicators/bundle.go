package indicators

import "time"

// Bundle is an immutable per-symbol snapshot of technical metrics computed from
// the latest bar of a daily series. Prices are rounded to 2 decimals,
// percentages and oscillators to 1 decimal, and the MACD family to 3 decimals.
// Threshold rules downstream compare against these rounded values.
type Bundle struct {
	AsOf  time.Time `json:"as_of"`
	Price float64   `json:"price"`

	MA5   float64 `json:"ma5"`
	MA20  float64 `json:"ma20"`
	MA50  float64 `json:"ma50"`
	MA200 float64 `json:"ma200"`
	EMA12 float64 `json:"ema12"`
	EMA26 float64 `json:"ema26"`

	RSI    float64 `json:"rsi"`
	StochK float64 `json:"stoch_k"`
	StochD float64 `json:"stoch_d"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	BBUpper    float64 `json:"bb_upper"`
	BBLower    float64 `json:"bb_lower"`
	BBMid      float64 `json:"bb_mid"`
	BBPosition float64 `json:"bb_position"`

	ATR    float64 `json:"atr"`
	ATRPct float64 `json:"atr_pct"`
	ADX    float64 `json:"adx"`

	OBV         float64 `json:"obv"`
	OBVChange5d float64 `json:"obv_change_5d"`
	Volume      int64   `json:"volume"`
	VolumeAvg   int64   `json:"volume_avg"`
	VolumeRatio float64 `json:"volume_ratio"`

	High52w     float64 `json:"high_52w"`
	Low52w      float64 `json:"low_52w"`
	Position52w float64 `json:"position_52w"`

	MA50Gap  float64 `json:"ma50_gap"`
	MA200Gap float64 `json:"ma200_gap"`
	Change1d float64 `json:"change_1d"`
	Change5d float64 `json:"change_5d"`
	DownDays int     `json:"down_days"`

	Prev PrevValues `json:"prev"`
}

// PrevValues holds the prior bar's values used for crossover detection.
type PrevValues struct {
	MA5        float64 `json:"ma5"`
	MA20       float64 `json:"ma20"`
	MA50       float64 `json:"ma50"`
	MA200      float64 `json:"ma200"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	Price      float64 `json:"price"`
	BBLower    float64 `json:"bb_lower"`
}
