package patterns

import (
	"math"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/models"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64, v int64) models.Candle {
	return models.Candle{Timestamp: day0.AddDate(0, 0, i), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// quietBars returns n small-bodied bars with tiny shadows that match no pattern.
func quietBars(n int, price float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		// body 0.5 of range 1.0: not doji, not marubozu, shadows too short for hammer shapes
		out[i] = bar(i, price, price+0.75, price-0.25, price+0.5, 1000)
		price += 0.5
	}
	return out
}

func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.IntRange(minLen, maxLen).FlatMap(func(v interface{}) gopter.Gen {
		return gen.SliceOfN(v.(int), gen.Float64Range(50, 150))
	}, reflect.TypeOf([]float64{})).Map(func(closes []float64) []models.Candle {
		out := make([]models.Candle, len(closes))
		prev := 100.0
		for i, c := range closes {
			out[i] = bar(i, prev, math.Max(prev, c)+1, math.Min(prev, c)-1, c, int64(1000+i))
			prev = c
		}
		return out
	})
}

func TestCandlestickDetector_SingleBarPatterns(t *testing.T) {
	tests := []struct {
		name    string
		candle  models.Candle
		uptrend bool
		want    analysis.PatternKind
		signal  analysis.Signal
	}{
		{"doji", bar(0, 100, 102, 98, 100.1, 1000), false, analysis.PatternDoji, analysis.SignalNeutral},
		{"hammer", bar(0, 100, 101.2, 96, 101, 1000), false, analysis.PatternHammer, analysis.SignalBuy},
		{"hanging man", bar(0, 101, 101.2, 96, 100, 1000), true, analysis.PatternHangingMan, analysis.SignalSell},
		{"inverted hammer", bar(0, 100, 105, 99.8, 101, 1000), false, analysis.PatternInvertedHammer, analysis.SignalBuy},
		{"shooting star", bar(0, 101, 105, 99.8, 100, 1000), false, analysis.PatternShootingStar, analysis.SignalSell},
		{"bullish marubozu", bar(0, 100, 110.5, 99.5, 110, 1000), false, analysis.PatternBullishMarubozu, analysis.SignalStrongBuy},
		{"bearish marubozu", bar(0, 110, 110.5, 99.5, 100, 1000), false, analysis.PatternBearishMarubozu, analysis.SignalStrongSell},
	}

	d := NewCandlestickDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// two context bars whose closes rise or fall, opened at the next bar's open to avoid gaps
			first, second := tt.candle.Open+0.4, tt.candle.Open
			if tt.uptrend {
				first, second = tt.candle.Open-0.4, tt.candle.Open
			}
			candles := []models.Candle{
				bar(-2, first, first+0.3, first-0.3, first, 1000),
				bar(-1, first, math.Max(first, second)+0.6, math.Min(first, second)-0.6, second, 1000),
				tt.candle,
			}
			got := d.detectSingle(candles, 2)
			if got == nil {
				t.Fatalf("expected %s, got nothing", tt.want)
			}
			if got.Kind != tt.want || got.Signal != tt.signal {
				t.Errorf("got %s/%s, want %s/%s", got.Kind, got.Signal, tt.want, tt.signal)
			}
		})
	}
}

func TestCandlestickDetector_HammerShapeBearishWithoutUptrend(t *testing.T) {
	candles := []models.Candle{
		bar(0, 103, 103.5, 102, 102.5, 1000),
		bar(1, 102.5, 102.8, 100.5, 101, 1000),
		bar(2, 101, 101.2, 96, 100, 1000),
	}
	if got := NewCandlestickDetector().detectSingle(candles, 2); got != nil {
		t.Errorf("expected no pattern for bearish hammer shape in a decline, got %s", got.Kind)
	}
}

func TestCandlestickDetector_Engulfing(t *testing.T) {
	d := NewCandlestickDetector()

	bullish := []models.Candle{
		bar(0, 102, 102.5, 99.5, 100, 1000),
		bar(1, 99.8, 103.5, 99.5, 103, 1000),
	}
	if p := d.detectEngulfing(bullish, 1); p == nil || p.Kind != analysis.PatternBullishEngulf || p.Signal != analysis.SignalStrongBuy {
		t.Errorf("expected bullish engulfing, got %+v", p)
	}

	bearish := []models.Candle{
		bar(0, 100, 102.5, 99.5, 102, 1000),
		bar(1, 102.2, 102.5, 98.5, 99, 1000),
	}
	if p := d.detectEngulfing(bearish, 1); p == nil || p.Kind != analysis.PatternBearishEngulf || p.Signal != analysis.SignalStrongSell {
		t.Errorf("expected bearish engulfing, got %+v", p)
	}

	contained := []models.Candle{
		bar(0, 102, 102.5, 99.5, 100, 1000),
		bar(1, 100.5, 102, 100, 101.5, 1000),
	}
	if p := d.detectEngulfing(contained, 1); p != nil {
		t.Errorf("expected no engulfing for a smaller body, got %s", p.Kind)
	}
}

func TestCandlestickDetector_Gaps(t *testing.T) {
	d := NewCandlestickDetector()

	up := []models.Candle{bar(0, 99, 100.5, 98.5, 100, 1000), bar(1, 103, 104, 102.5, 103.5, 1000)}
	if p := d.detectGap(up, 1); p == nil || p.Kind != analysis.PatternGapUp || p.Signal != analysis.SignalBuy {
		t.Errorf("expected gap up, got %+v", p)
	}

	down := []models.Candle{bar(0, 99, 100.5, 98.5, 100, 1000), bar(1, 97, 97.5, 96, 96.5, 1000)}
	if p := d.detectGap(down, 1); p == nil || p.Kind != analysis.PatternGapDown || p.Signal != analysis.SignalSell {
		t.Errorf("expected gap down, got %+v", p)
	}

	small := []models.Candle{bar(0, 99, 100.5, 98.5, 100, 1000), bar(1, 101.5, 102, 101, 101.8, 1000)}
	if p := d.detectGap(small, 1); p != nil {
		t.Errorf("1.5%% move is not a gap, got %s", p.Kind)
	}
}

func TestCandlestickDetector_OnlyTrailingWindow(t *testing.T) {
	candles := quietBars(20, 100)
	// a doji far outside the trailing window
	candles[3] = bar(3, 101.5, 103, 100, 101.55, 1000)

	if got := NewCandlestickDetector().Detect(candles); len(got) != 0 {
		t.Errorf("expected no patterns in quiet trailing window, got %v", got)
	}
}

func TestCandlestickDetector_ChronologicalOrder(t *testing.T) {
	candles := quietBars(10, 100)
	// doji on bar 6, bullish marubozu on bar 8
	candles[6] = bar(6, 103, 104, 102, 103.05, 1000)
	candles[8] = bar(8, 104, 108.2, 103.9, 108, 1000)

	got := NewCandlestickDetector().Detect(candles)
	if len(got) < 2 {
		t.Fatalf("expected at least 2 patterns, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Date.Before(got[i-1].Date) {
			t.Errorf("patterns out of order: %v before %v", got[i-1].Date, got[i].Date)
		}
	}
}

func TestProperty_PatternsCappedAtFive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)
	d := NewCandlestickDetector()

	properties.Property("at most 5 patterns, all from the trailing 5 bars", prop.ForAll(
		func(candles []models.Candle) bool {
			got := d.Detect(candles)
			if len(got) > 5 {
				return false
			}
			cutoff := candles[max(len(candles)-5, 0)].Timestamp
			for _, p := range got {
				if p.Date.Before(cutoff) {
					return false
				}
			}
			return true
		},
		candleSliceGen(1, 80),
	))

	properties.TestingRun(t)
}

func TestLevelFinder_Find(t *testing.T) {
	// zigzag with clear pivots: highs at 110, 108, 106, lows at 90, 92, 94
	closes := []float64{100, 104, 110, 104, 100, 96, 90, 96, 100, 104, 108, 104, 100, 96, 92, 96, 100, 103, 106, 103, 100, 97, 94, 97, 99, 100}
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = bar(i, c, c+0.5, c-0.5, c, 1000)
	}

	supports, resistances := NewLevelFinder().Find(candles)

	wantRes := []float64{106.5, 108.5, 110.5}
	if got := LevelPrices(resistances); !reflect.DeepEqual(got, wantRes) {
		t.Errorf("resistances = %v, want %v", got, wantRes)
	}
	wantSup := []float64{93.5, 91.5, 89.5}
	if got := LevelPrices(supports); !reflect.DeepEqual(got, wantSup) {
		t.Errorf("supports = %v, want %v", got, wantSup)
	}
	for _, s := range supports {
		if s.Kind != analysis.LevelSupport {
			t.Errorf("support has kind %s", s.Kind)
		}
	}
}

func TestProperty_LevelsOrderedAndCapped(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)
	finder := NewLevelFinder()

	properties.Property("supports below price descending, resistances above ascending, max 3 each", prop.ForAll(
		func(candles []models.Candle) bool {
			supports, resistances := finder.Find(candles)
			price := models.LastClose(candles)
			if len(supports) > 3 || len(resistances) > 3 {
				return false
			}
			sp := LevelPrices(supports)
			rp := LevelPrices(resistances)
			for _, p := range sp {
				if p >= price {
					return false
				}
			}
			for _, p := range rp {
				if p <= price {
					return false
				}
			}
			return sort.IsSorted(sort.Reverse(sort.Float64Slice(sp))) && sort.Float64sAreSorted(rp)
		},
		candleSliceGen(5, 120),
	))

	properties.TestingRun(t)
}

func TestCrossDetector_GoldenCrossReproducible(t *testing.T) {
	b := &indicators.Bundle{
		MA5: 101, MA20: 100, MA50: 95, MA200: 90, MACD: 0.5, MACDSignal: 0.6,
		Prev: indicators.PrevValues{MA5: 99.5, MA20: 100, MA50: 94.9, MA200: 90, MACD: 0.4, MACDSignal: 0.55},
	}
	d := NewCrossDetector()

	first := d.Detect(b)
	if len(first) != 1 || first[0].Type != analysis.CrossGolden {
		t.Fatalf("expected exactly one golden_cross, got %+v", first)
	}

	second := d.Detect(b)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-run differs: %+v vs %+v", first, second)
	}
}

func TestCrossDetector_AllPairs(t *testing.T) {
	b := &indicators.Bundle{
		MA5: 99, MA20: 100, MA50: 91, MA200: 90, MACD: 0.2, MACDSignal: 0.1,
		Prev: indicators.PrevValues{MA5: 100, MA20: 100, MA50: 89, MA200: 90, MACD: 0.1, MACDSignal: 0.1},
	}
	got := NewCrossDetector().Detect(b)

	want := []analysis.CrossType{analysis.CrossDead, analysis.CrossLongGolden, analysis.CrossMACDGolden}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), got)
	}
	for i, w := range want {
		if got[i].Type != w {
			t.Errorf("event %d = %s, want %s", i, got[i].Type, w)
		}
	}
}

func TestCrossDetector_NoCrossWhenApartOnBothBars(t *testing.T) {
	b := &indicators.Bundle{
		MA5: 105, MA20: 100, MA50: 95, MA200: 90, MACD: 1, MACDSignal: 0.5,
		Prev: indicators.PrevValues{MA5: 104, MA20: 100, MA50: 94, MA200: 90, MACD: 0.9, MACDSignal: 0.5},
	}
	if got := NewCrossDetector().Detect(b); len(got) != 0 {
		t.Errorf("expected no crosses, got %+v", got)
	}
}

func TestVolumeAnalyzer_Analyze(t *testing.T) {
	build := func(lastVolume int64, lastClose float64) []models.Candle {
		candles := make([]models.Candle, 20)
		for i := range candles {
			candles[i] = bar(i, 100, 101, 99, 100, 1000)
		}
		candles[19] = bar(19, 100, 103, 97, lastClose, lastVolume)
		return candles
	}

	tests := []struct {
		name      string
		volume    int64
		close     float64
		want      analysis.Signal
		wantRatio float64
	}{
		// average includes the last bar: (19*1000 + v) / 20
		{"climax up", 4000, 102, analysis.SignalStrongBuy, 3.48},
		{"climax down", 4000, 98, analysis.SignalStrongSell, 3.48},
		{"surge up", 2200, 102, analysis.SignalBuy, 2.08},
		{"surge down", 2200, 98, analysis.SignalSell, 2.08},
		{"elevated", 1600, 102, analysis.SignalWatch, 1.55},
		{"declining", 400, 98, analysis.SignalNeutral, 0.41},
		{"average", 1000, 102, analysis.SignalNeutral, 1},
		// 2.9955x and 1.4950x round up for display but stay in the lower band
		{"just below climax", 3347, 102, analysis.SignalBuy, 3},
		{"just below elevated", 1535, 102, analysis.SignalNeutral, 1.5},
	}

	va := NewVolumeAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := va.Analyze(build(tt.volume, tt.close))
			if got.Signal != tt.want {
				t.Errorf("signal = %s, want %s (%s)", got.Signal, tt.want, got.Description)
			}
			if got.Ratio != tt.wantRatio {
				t.Errorf("ratio = %v, want %v", got.Ratio, tt.wantRatio)
			}
		})
	}
}

func TestVolumeAnalyzer_ZeroAverage(t *testing.T) {
	candles := make([]models.Candle, 25)
	for i := range candles {
		candles[i] = bar(i, 100, 101, 99, 100, 0)
	}
	got := NewVolumeAnalyzer().Analyze(candles)
	if got.Signal != analysis.SignalNeutral || got.Ratio != 1 || got.Description != "insufficient data" {
		t.Errorf("unexpected result for zero volume: %+v", got)
	}
}
