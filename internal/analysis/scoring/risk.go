package scoring

import (
	"fmt"

	"equity-scanner/internal/analysis/indicators"
)

// RiskGrade is the three-tier risk classification.
type RiskGrade string

const (
	RiskGood     RiskGrade = "good"
	RiskCaution  RiskGrade = "caution"
	RiskHighRisk RiskGrade = "high-risk"
)

// RiskAssessment holds the risk score (higher is riskier) and its warnings.
type RiskAssessment struct {
	Score    float64   `json:"score"`
	Grade    RiskGrade `json:"grade"`
	Warnings []string  `json:"warnings,omitempty"`
}

// RiskScore accumulates fixed penalties for breached technical thresholds.
// The score is capped at 100.
func RiskScore(b *indicators.Bundle) RiskAssessment {
	var risk float64
	var warnings []string

	switch {
	case b.RSI >= 70:
		risk += 25
		warnings = append(warnings, fmt.Sprintf("RSI %.0f overbought", b.RSI))
	case b.RSI >= 60:
		risk += 10
	case b.RSI <= 30:
		risk += 15
		warnings = append(warnings, fmt.Sprintf("RSI %.0f oversold", b.RSI))
	}

	switch {
	case b.BBPosition >= 95:
		risk += 20
		warnings = append(warnings, "price above upper Bollinger band")
	case b.BBPosition >= 80:
		risk += 10
	}

	switch {
	case b.Position52w >= 95:
		risk += 20
		warnings = append(warnings, "near 52-week high")
	case b.Position52w <= 10:
		risk += 15
		warnings = append(warnings, "near 52-week low")
	}

	switch {
	case b.MA50Gap >= 20:
		risk += 20
		warnings = append(warnings, fmt.Sprintf("%+.0f%% above 50-day average", b.MA50Gap))
	case b.MA50Gap <= -20:
		risk += 25
		warnings = append(warnings, fmt.Sprintf("%.0f%% below 50-day average", -b.MA50Gap))
	}

	switch {
	case b.Change5d >= 20:
		risk += 15
		warnings = append(warnings, fmt.Sprintf("%+.0f%% surge over 5 days", b.Change5d))
	case b.Change5d <= -15:
		risk += 20
		warnings = append(warnings, fmt.Sprintf("%.0f%% drop over 5 days", b.Change5d))
	}

	risk = min(risk, 100)
	return RiskAssessment{Score: risk, Grade: riskGrade(risk), Warnings: warnings}
}

func riskGrade(score float64) RiskGrade {
	switch {
	case score >= 50:
		return RiskHighRisk
	case score >= 30:
		return RiskCaution
	default:
		return RiskGood
	}
}
