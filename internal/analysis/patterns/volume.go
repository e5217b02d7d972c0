package patterns

import (
	"fmt"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/models"
)

// VolumeAnalyzer grades the latest bar's volume against its rolling average.
type VolumeAnalyzer struct {
	avgPeriod     int
	climaxRatio   float64 // Ratio for strong signals
	surgeRatio    float64 // Ratio for buy/sell signals
	elevatedRatio float64 // Ratio worth watching
	declineRatio  float64 // Ratio at or below which volume is drying up
}

// NewVolumeAnalyzer creates a new volume analyzer.
func NewVolumeAnalyzer() *VolumeAnalyzer {
	return &VolumeAnalyzer{
		avgPeriod:     20,
		climaxRatio:   3.0,
		surgeRatio:    2.0,
		elevatedRatio: 1.5,
		declineRatio:  0.5,
	}
}

func (v *VolumeAnalyzer) Name() string {
	return "VolumeAnalyzer"
}

// Analyze combines the volume ratio with the same-day price direction.
func (v *VolumeAnalyzer) Analyze(candles []models.Candle) analysis.VolumeSignal {
	n := len(candles)
	insufficient := analysis.VolumeSignal{
		Signal:      analysis.SignalNeutral,
		Ratio:       1,
		Description: "insufficient data",
	}
	if n < v.avgPeriod || n < 2 {
		return insufficient
	}

	var total float64
	for _, c := range candles[n-v.avgPeriod:] {
		total += float64(c.Volume)
	}
	avg := total / float64(v.avgPeriod)
	if avg == 0 {
		return insufficient
	}

	// Bands are checked on the raw ratio; only the reported value is rounded.
	ratio := float64(candles[n-1].Volume) / avg
	rising := candles[n-1].Close >= candles[n-2].Close

	var signal analysis.Signal
	var desc string
	switch {
	case ratio >= v.climaxRatio:
		signal = pick(rising, analysis.SignalStrongBuy, analysis.SignalStrongSell)
		desc = fmt.Sprintf("volume climax %.1fx average on %s", ratio, direction(rising))
	case ratio >= v.surgeRatio:
		signal = pick(rising, analysis.SignalBuy, analysis.SignalSell)
		desc = fmt.Sprintf("volume surge %.1fx average on %s", ratio, direction(rising))
	case ratio >= v.elevatedRatio:
		signal = analysis.SignalWatch
		desc = fmt.Sprintf("elevated volume %.1fx average", ratio)
	case ratio <= v.declineRatio:
		signal = analysis.SignalNeutral
		desc = "volume declining"
	default:
		signal = analysis.SignalNeutral
		desc = "average volume"
	}

	return analysis.VolumeSignal{Signal: signal, Ratio: indicators.Round(ratio, 2), Description: desc}
}

func pick(cond bool, a, b analysis.Signal) analysis.Signal {
	if cond {
		return a
	}
	return b
}

func direction(rising bool) string {
	if rising {
		return "an up day"
	}
	return "a down day"
}
