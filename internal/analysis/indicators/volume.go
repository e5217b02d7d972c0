package indicators

import (
	"fmt"

	"equity-scanner/internal/models"
)

// OBV calculates On-Balance Volume.
type OBV struct{}

// NewOBV creates a new OBV indicator.
func NewOBV() *OBV {
	return &OBV{}
}

func (o *OBV) Name() string {
	return "OBV"
}

func (o *OBV) Period() int {
	return 1
}

func (o *OBV) Calculate(candles []models.Candle) ([]float64, error) {
	if len(candles) == 0 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	result[0] = float64(candles[0].Volume)

	for i := 1; i < n; i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			result[i] = result[i-1] + float64(candles[i].Volume)
		case candles[i].Close < candles[i-1].Close:
			result[i] = result[i-1] - float64(candles[i].Volume)
		default:
			result[i] = result[i-1]
		}
	}

	return result, nil
}

// VolumeAverage calculates the rolling mean of volume.
type VolumeAverage struct {
	period int
}

// NewVolumeAverage creates a new rolling volume average.
func NewVolumeAverage(period int) *VolumeAverage {
	return &VolumeAverage{period: period}
}

func (v *VolumeAverage) Name() string {
	return fmt.Sprintf("VolumeAvg_%d", v.period)
}

func (v *VolumeAverage) Period() int {
	return v.period
}

func (v *VolumeAverage) Calculate(candles []models.Candle) ([]float64, error) {
	if v.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < v.period {
		return nil, ErrInsufficientData
	}
	return rollingMean(volumes(candles), v.period), nil
}
