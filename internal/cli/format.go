package cli

import (
	"fmt"
	"strings"
	"time"

	"equity-scanner/internal/analysis/signals"
	"equity-scanner/internal/scan"
)

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatDate formats a bar date.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatScore formats a 0-100 score.
func FormatScore(score float64) string {
	return fmt.Sprintf("%.1f", score)
}

// FormatConditions renders the entry rule count such as "3/4". The target
// rule counts as a fifth condition when a target is set.
func FormatConditions(e signals.EntrySignal) string {
	total := 4
	if e.Target > 0 {
		total++
	}
	return fmt.Sprintf("%d/%d", e.Met, total)
}

// StrategyNames joins the matched strategy names.
func StrategyNames(matches []signals.StrategyMatch) string {
	if len(matches) == 0 {
		return "-"
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

// EntryLabel summarizes an entry signal in a few words.
func EntryLabel(e signals.EntrySignal) string {
	if !e.Fired {
		return "no signal (" + FormatConditions(e) + ")"
	}
	return fmt.Sprintf("BUY %s (%s)", e.Strength, FormatConditions(e))
}

// ExitLabel summarizes an exit signal.
func ExitLabel(x *signals.ExitSignal) string {
	if x == nil {
		return "-"
	}
	if !x.Fired {
		return fmt.Sprintf("hold (%+.1f%%)", x.PnLPct)
	}
	return fmt.Sprintf("SELL %s: %s (%+.1f%%)", x.Urgency, x.Reason, x.PnLPct)
}

// FailureSummary groups failures by kind, e.g. "not_found: 2, timeout: 1".
func FailureSummary(failures []scan.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	counts := make(map[string]int)
	var order []string
	for _, f := range failures {
		k := string(f.Kind)
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	parts := make([]string, len(order))
	for i, k := range order {
		parts[i] = fmt.Sprintf("%s: %d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
