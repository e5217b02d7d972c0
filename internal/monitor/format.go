package monitor

import (
	"fmt"
	"strings"
	"time"

	"equity-scanner/internal/models"
)

// MaxAlertsPerSymbol caps the alerts shown for one symbol in a message.
const MaxAlertsPerSymbol = 3

// FormatAlerts renders results with alerts as a plain-text message showing
// the highest-priority alerts per symbol. It returns "" when nothing fired.
func FormatAlerts(results []Result, at time.Time) string {
	var sb strings.Builder
	for _, r := range results {
		if len(r.Alerts) == 0 {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("Watchlist alerts\n\n")
		}

		alerts := make([]models.Alert, len(r.Alerts))
		copy(alerts, r.Alerts)
		SortAlerts(alerts)
		if len(alerts) > MaxAlertsPerSymbol {
			alerts = alerts[:MaxAlertsPerSymbol]
		}

		fmt.Fprintf(&sb, "%s $%.2f\n", r.Symbol, r.Current.Price)
		for _, a := range alerts {
			fmt.Fprintf(&sb, "  [%s] %s\n", a.Priority, a.Title)
			if a.Detail != "" {
				fmt.Fprintf(&sb, "     %s\n", a.Detail)
			}
			fmt.Fprintf(&sb, "     -> %s\n", a.Signal)
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return ""
	}
	fmt.Fprintf(&sb, "as of %s", at.Format("15:04"))
	return sb.String()
}

// Describe summarizes a snapshot's oscillator state in one block.
func Describe(s models.Snapshot, th Thresholds) string {
	rsiState := "neutral"
	switch {
	case s.RSI < th.RSIOversold:
		rsiState = "oversold"
	case s.RSI > th.RSIOverbought:
		rsiState = "overbought"
	}
	stochState := "neutral"
	switch {
	case s.StochK < th.StochOversold:
		stochState = "oversold"
	case s.StochK > th.StochOverbought:
		stochState = "overbought"
	}
	trend := "ranging"
	if s.ADX > th.ADXStrongTrend {
		trend = "strong trend"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s $%.2f\n", s.Symbol, s.Price)
	fmt.Fprintf(&sb, "  RSI: %.0f (%s)\n", s.RSI, rsiState)
	fmt.Fprintf(&sb, "  Stochastic: %.0f (%s)\n", s.StochK, stochState)
	fmt.Fprintf(&sb, "  ADX: %.0f (%s)\n", s.ADX, trend)
	fmt.Fprintf(&sb, "  Volume: %.1fx\n", s.VolumeRatio)
	if len(s.Supports) > 0 {
		fmt.Fprintf(&sb, "  Support: $%.2f\n", s.Supports[0])
	}
	if len(s.Resistances) > 0 {
		fmt.Fprintf(&sb, "  Resistance: $%.2f\n", s.Resistances[0])
	}
	return sb.String()
}
