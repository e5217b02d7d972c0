package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"equity-scanner/internal/analysis/signals"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/scan"
)

func TestProperty_TruncateString(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("result never exceeds the limit", prop.ForAll(
		func(s string, maxLen int) bool {
			return utf8.RuneCountInString(TruncateString(s, maxLen)) <= maxLen
		},
		gen.AnyString(),
		gen.IntRange(0, 40),
	))

	properties.Property("short strings are unchanged", prop.ForAll(
		func(s string) bool {
			return TruncateString(s, utf8.RuneCountInString(s)) == s
		},
		gen.AlphaString(),
	))

	properties.Property("truncated strings end with an ellipsis", prop.ForAll(
		func(s string, maxLen int) bool {
			if utf8.RuneCountInString(s) <= maxLen {
				return true
			}
			return strings.HasSuffix(TruncateString(s, maxLen), "...")
		},
		gen.AlphaString(),
		gen.IntRange(4, 20),
	))

	properties.TestingRun(t)
}

func TestProperty_FormatDuration(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("unit matches magnitude", prop.ForAll(
		func(ms int64) bool {
			d := time.Duration(ms) * time.Millisecond
			out := FormatDuration(d)
			switch {
			case d < time.Second:
				return strings.HasSuffix(out, "ms")
			case d < time.Minute:
				return strings.HasSuffix(out, "s") && !strings.Contains(out, "m")
			case d < time.Hour:
				return strings.Contains(out, "m ")
			case d < 24*time.Hour:
				return strings.Contains(out, "h ")
			default:
				return strings.Contains(out, "d ")
			}
		},
		gen.Int64Range(0, 10*24*3600*1000),
	))

	properties.TestingRun(t)
}

func TestFormatDurationExamples(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestSignalLabels(t *testing.T) {
	if got := EntryLabel(signals.EntrySignal{Fired: true, Strength: signals.StrengthStrong, Met: 4}); got != "BUY strong (4/4)" {
		t.Errorf("entry = %q", got)
	}
	if got := EntryLabel(signals.EntrySignal{Met: 1}); got != "no signal (1/4)" {
		t.Errorf("entry = %q", got)
	}
	if got := ExitLabel(nil); got != "-" {
		t.Errorf("exit = %q", got)
	}
	x := &signals.ExitSignal{Fired: true, Urgency: signals.UrgencyImmediate, Reason: "stop_loss", PnLPct: -8.2}
	if got := ExitLabel(x); got != "SELL immediate: stop_loss (-8.2%)" {
		t.Errorf("exit = %q", got)
	}
	if got := ExitLabel(&signals.ExitSignal{PnLPct: 3}); got != "hold (+3.0%)" {
		t.Errorf("exit = %q", got)
	}
}

func TestFailureSummary(t *testing.T) {
	got := FailureSummary([]scan.Failure{
		{Symbol: "A", Kind: apperrors.FailureNotFound},
		{Symbol: "B", Kind: apperrors.FailureTimeout},
		{Symbol: "C", Kind: apperrors.FailureNotFound},
	})
	if got != "not_found: 2, timeout: 1" {
		t.Errorf("summary = %q", got)
	}
	if FailureSummary(nil) != "" {
		t.Error("empty failures must render empty")
	}
}

func TestTableRender_Plain(t *testing.T) {
	var buf bytes.Buffer
	out := NewPlainOutput(&buf, false)
	table := NewTable(out, "Symbol", "Score")
	table.AddRow("AAPL", "72.5")
	table.AddRow("NVDA", out.Green("80.0"))
	table.Render()

	want := "Symbol  Score\n─────────────\nAAPL    72.5\nNVDA    80.0\n"
	if buf.String() != want {
		t.Errorf("table =\n%q\nwant\n%q", buf.String(), want)
	}
}
