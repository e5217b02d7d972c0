// Package indicators provides technical indicator calculations and the engine
// that condenses a daily series into a Bundle.
package indicators

import (
	"fmt"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
)

// MinBars is the shortest series the engine accepts; the 200-bar moving average needs it.
const MinBars = 200

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return multiple values.
type MultiValueIndicator interface {
	Name() string
	Calculate(candles []models.Candle) (map[string][]float64, error)
	Period() int
}

// Engine computes indicator bundles. It holds only immutable indicator
// definitions, so a single Engine is safe for concurrent use.
type Engine struct {
	ma5, ma20, ma50, ma200 Indicator
	ema12, ema26           Indicator
	rsi                    Indicator
	atr                    Indicator
	obv                    Indicator
	volumeAvg              Indicator
	stochastic             MultiValueIndicator
	macd                   MultiValueIndicator
	bollinger              MultiValueIndicator
	adx                    MultiValueIndicator
}

// NewEngine creates an engine with the standard daily-bar parameter set.
func NewEngine() *Engine {
	return &Engine{
		ma5:        NewSMA(5),
		ma20:       NewSMA(20),
		ma50:       NewSMA(50),
		ma200:      NewSMA(200),
		ema12:      NewEMA(12),
		ema26:      NewEMA(26),
		rsi:        NewRSI(14),
		atr:        NewATR(14),
		obv:        NewOBV(),
		volumeAvg:  NewVolumeAverage(20),
		stochastic: NewStochastic(14, 3, 3),
		macd:       NewMACD(12, 26, 9),
		bollinger:  NewBollingerBands(20, 2),
		adx:        NewADX(14),
	}
}

// Compute condenses candles into a Bundle describing the last bar.
// It fails with ErrInsufficientHistory when fewer than MinBars bars are supplied.
func (e *Engine) Compute(candles []models.Candle) (*Bundle, error) {
	n := len(candles)
	if n < MinBars {
		return nil, apperrors.NewDataError("ohlcv", "",
			fmt.Sprintf("need %d bars, got %d", MinBars, n), apperrors.ErrInsufficientHistory)
	}

	single := make(map[Indicator][]float64, 10)
	for _, ind := range []Indicator{e.ma5, e.ma20, e.ma50, e.ma200, e.ema12, e.ema26, e.rsi, e.atr, e.obv, e.volumeAvg} {
		values, err := ind.Calculate(candles)
		if err != nil {
			return nil, fmt.Errorf("calculating %s: %w", ind.Name(), err)
		}
		single[ind] = values
	}

	multi := make(map[MultiValueIndicator]map[string][]float64, 4)
	for _, ind := range []MultiValueIndicator{e.stochastic, e.macd, e.bollinger, e.adx} {
		values, err := ind.Calculate(candles)
		if err != nil {
			return nil, fmt.Errorf("calculating %s: %w", ind.Name(), err)
		}
		multi[ind] = values
	}

	last, prev := n-1, n-2
	closes := closePrices(candles)
	price := closes[last]

	ma50 := single[e.ma50][last]
	ma200 := single[e.ma200][last]
	bb := multi[e.bollinger]
	macd := multi[e.macd]
	stoch := multi[e.stochastic]
	atr := single[e.atr][last]
	obv := single[e.obv]
	volAvg := single[e.volumeAvg][last]

	window := min(252, n-1)
	high52 := highest(highPrices(candles[n-window:]))
	low52 := lowest(lowPrices(candles[n-window:]))

	volumeRatio := 1.0
	if volAvg > 0 {
		volumeRatio = float64(candles[last].Volume) / volAvg
	}

	obvChange := 0.0
	if base := obv[last-5]; base != 0 {
		obvChange = (obv[last] - base) / abs(base) * 100
	}

	return &Bundle{
		AsOf:  candles[last].Timestamp,
		Price: Round(price, 2),

		MA5:   Round(single[e.ma5][last], 2),
		MA20:  Round(single[e.ma20][last], 2),
		MA50:  Round(ma50, 2),
		MA200: Round(ma200, 2),
		EMA12: Round(single[e.ema12][last], 2),
		EMA26: Round(single[e.ema26][last], 2),

		RSI:    Round(single[e.rsi][last], 1),
		StochK: Round(stoch["percent_k"][last], 1),
		StochD: Round(stoch["percent_d"][last], 1),

		MACD:       Round(macd["macd"][last], 3),
		MACDSignal: Round(macd["signal"][last], 3),
		MACDHist:   Round(macd["histogram"][last], 3),

		BBUpper:    Round(bb["upper"][last], 2),
		BBLower:    Round(bb["lower"][last], 2),
		BBMid:      Round(bb["middle"][last], 2),
		BBPosition: Round(RangePosition(price, bb["lower"][last], bb["upper"][last]), 1),

		ATR:    Round(atr, 2),
		ATRPct: Round(atr/price*100, 1),
		ADX:    Round(multi[e.adx]["adx"][last], 1),

		OBV:         obv[last],
		OBVChange5d: Round(obvChange, 1),
		Volume:      candles[last].Volume,
		VolumeAvg:   int64(volAvg),
		VolumeRatio: Round(volumeRatio, 2),

		High52w:     Round(high52, 2),
		Low52w:      Round(low52, 2),
		Position52w: Round(RangePosition(price, low52, high52), 1),

		MA50Gap:  Round(PercentChange(ma50, price), 1),
		MA200Gap: Round(PercentChange(ma200, price), 1),
		Change1d: Round(PercentChange(closes[prev], price), 1),
		Change5d: Round(PercentChange(closes[last-5], price), 1),
		DownDays: consecutiveDownDays(closes),

		Prev: PrevValues{
			MA5:        Round(single[e.ma5][prev], 2),
			MA20:       Round(single[e.ma20][prev], 2),
			MA50:       Round(single[e.ma50][prev], 2),
			MA200:      Round(single[e.ma200][prev], 2),
			MACD:       Round(macd["macd"][prev], 3),
			MACDSignal: Round(macd["signal"][prev], 3),
			Price:      Round(closes[prev], 2),
			BBLower:    Round(bb["lower"][prev], 2),
		},
	}, nil
}

// consecutiveDownDays counts closes lower than their predecessor, walking back from the last bar.
func consecutiveDownDays(closes []float64) int {
	count := 0
	for i := len(closes) - 1; i > 0; i-- {
		if closes[i] >= closes[i-1] {
			break
		}
		count++
	}
	return count
}
