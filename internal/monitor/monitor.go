// Package monitor raises alerts when a watched symbol's indicator state
// changes between two checks. Alerts are edge-triggered: a condition that
// already held at the previous check is not raised again.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/analysis/patterns"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/logging"
	"equity-scanner/internal/models"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/store"
)

// Alert types.
const (
	AlertPriceChange     = "price_change"
	AlertRSIOversold     = "rsi_oversold"
	AlertRSIOverbought   = "rsi_overbought"
	AlertStochOversold   = "stoch_oversold"
	AlertStochOverbought = "stoch_overbought"
	AlertVolumeSpike     = "volume_spike"
	AlertSupportBreak    = "support_break"
	AlertResistanceBreak = "resistance_break"
	AlertCandlePattern   = "candle_pattern"
	AlertCross           = "cross_signal"
)

// Thresholds configures alert conditions.
type Thresholds struct {
	PriceChangePct  float64 `mapstructure:"price_change_pct" json:"price_change_pct"`
	RSIOversold     float64 `mapstructure:"rsi_oversold" json:"rsi_oversold"`
	RSIOverbought   float64 `mapstructure:"rsi_overbought" json:"rsi_overbought"`
	StochOversold   float64 `mapstructure:"stoch_oversold" json:"stoch_oversold"`
	StochOverbought float64 `mapstructure:"stoch_overbought" json:"stoch_overbought"`
	VolumeSpike     float64 `mapstructure:"volume_spike" json:"volume_spike"`
	ADXStrongTrend  float64 `mapstructure:"adx_strong_trend" json:"adx_strong_trend"`
}

// DefaultThresholds returns the default alert conditions.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceChangePct:  3,
		RSIOversold:     30,
		RSIOverbought:   70,
		StochOversold:   20,
		StochOverbought: 80,
		VolumeSpike:     2,
		ADXStrongTrend:  25,
	}
}

// Validate checks that the bands are ordered and positive.
func (t Thresholds) Validate() error {
	switch {
	case t.PriceChangePct <= 0:
		return apperrors.NewValidationError("price_change_pct", t.PriceChangePct, "must be positive")
	case t.RSIOversold >= t.RSIOverbought:
		return apperrors.NewValidationError("rsi_oversold", t.RSIOversold, "must be below rsi_overbought")
	case t.StochOversold >= t.StochOverbought:
		return apperrors.NewValidationError("stoch_oversold", t.StochOversold, "must be below stoch_overbought")
	case t.VolumeSpike <= 1:
		return apperrors.NewValidationError("volume_spike", t.VolumeSpike, "must be above 1")
	}
	return nil
}

// SnapshotOf condenses a scan result into the state compared across checks.
func SnapshotOf(r *scan.SignalResult, checkedAt time.Time) models.Snapshot {
	b := r.Bundle
	return models.Snapshot{
		Symbol:      r.Symbol,
		Price:       b.Price,
		RSI:         b.RSI,
		StochK:      b.StochK,
		ADX:         b.ADX,
		VolumeRatio: b.VolumeRatio,
		MA50Gap:     b.MA50Gap,
		BBPosition:  b.BBPosition,
		Supports:    patterns.LevelPrices(r.Supports),
		Resistances: patterns.LevelPrices(r.Resistances),
		CheckedAt:   checkedAt,
	}
}

// Detect compares the current snapshot with the previous one and returns the
// alerts that newly apply. prev is nil on the first check. Patterns and
// crosses are those emitted on the latest bar.
func Detect(prev *models.Snapshot, curr models.Snapshot, pats []analysis.Pattern, crosses []analysis.CrossEvent, th Thresholds) []models.Alert {
	var alerts []models.Alert
	add := func(kind, title, detail, signal string, priority models.AlertPriority) {
		alerts = append(alerts, models.Alert{
			Symbol:   curr.Symbol,
			Type:     kind,
			Title:    title,
			Detail:   detail,
			Signal:   signal,
			Priority: priority,
			RaisedAt: curr.CheckedAt,
		})
	}
	hadPrice := prev != nil && prev.Price > 0

	if hadPrice {
		change := (curr.Price - prev.Price) / prev.Price * 100
		if math.Abs(change) >= th.PriceChangePct {
			title, signal := "Price surge", "consider selling"
			if change < 0 {
				title, signal = "Price drop", "buy opportunity"
			}
			add(AlertPriceChange, title,
				fmt.Sprintf("%+.1f%% ($%.2f -> $%.2f)", change, prev.Price, curr.Price),
				signal, models.PriorityHigh)
		}
	}

	// A zero previous reading counts as absent, so the first check raises
	// any condition already in force.
	if curr.RSI <= th.RSIOversold && (prev == nil || prev.RSI == 0 || prev.RSI > th.RSIOversold) {
		add(AlertRSIOversold, "RSI oversold",
			fmt.Sprintf("RSI %.0f (at or below %.0f, rebound possible)", curr.RSI, th.RSIOversold),
			"buy opportunity", models.PriorityHigh)
	}
	if curr.RSI >= th.RSIOverbought && (prev == nil || prev.RSI == 0 || prev.RSI < th.RSIOverbought) {
		add(AlertRSIOverbought, "RSI overbought",
			fmt.Sprintf("RSI %.0f (at or above %.0f, pullback possible)", curr.RSI, th.RSIOverbought),
			"consider selling", models.PriorityMedium)
	}
	if curr.StochK <= th.StochOversold && (prev == nil || prev.StochK == 0 || prev.StochK > th.StochOversold) {
		add(AlertStochOversold, "Stochastic oversold",
			fmt.Sprintf("%%K %.0f (short-term rebound possible)", curr.StochK),
			"buy opportunity", models.PriorityMedium)
	}
	if curr.StochK >= th.StochOverbought && (prev == nil || prev.StochK == 0 || prev.StochK < th.StochOverbought) {
		add(AlertStochOverbought, "Stochastic overbought",
			fmt.Sprintf("%%K %.0f (short-term pullback possible)", curr.StochK),
			"consider selling", models.PriorityMedium)
	}
	if curr.VolumeRatio >= th.VolumeSpike && (prev == nil || prev.VolumeRatio == 0 || prev.VolumeRatio < th.VolumeSpike) {
		add(AlertVolumeSpike, "Volume spike",
			fmt.Sprintf("%.1fx average volume", curr.VolumeRatio),
			"watch", models.PriorityMedium)
	}

	if hadPrice && len(curr.Supports) > 0 {
		level := curr.Supports[0]
		if prev.Price > level && curr.Price <= level {
			add(AlertSupportBreak, "Support broken",
				fmt.Sprintf("$%.2f support lost, further downside possible", level),
				"consider stop", models.PriorityHigh)
		}
	}
	if hadPrice && len(curr.Resistances) > 0 {
		level := curr.Resistances[0]
		if prev.Price < level && curr.Price >= level {
			add(AlertResistanceBreak, "Resistance broken",
				fmt.Sprintf("$%.2f resistance cleared, further upside possible", level),
				"hold or add", models.PriorityHigh)
		}
	}

	for _, p := range pats {
		add(AlertCandlePattern, "Candle pattern: "+string(p.Kind), p.Description, string(p.Signal), models.PriorityLow)
	}
	for _, c := range crosses {
		priority := models.PriorityHigh
		if c.Type == analysis.CrossMACDGolden || c.Type == analysis.CrossMACDDead {
			priority = models.PriorityMedium
		}
		signal := "bearish"
		if c.Type.IsBullish() {
			signal = "bullish"
		}
		add(AlertCross, string(c.Type), c.Detail, signal, priority)
	}

	SortAlerts(alerts)
	return alerts
}

// SortAlerts orders alerts by priority, keeping detection order within a tier.
func SortAlerts(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Priority.Rank() < alerts[j].Priority.Rank()
	})
}

// Result is the outcome of checking one symbol.
type Result struct {
	Symbol   string           `json:"symbol"`
	Current  models.Snapshot  `json:"current"`
	Previous *models.Snapshot `json:"previous,omitempty"`
	Alerts   []models.Alert   `json:"alerts"`
}

// Report is the outcome of one monitor run.
type Report struct {
	Results  []Result       `json:"results"`
	Failures []scan.Failure `json:"failures,omitempty"`
}

// WithAlerts returns only the results that raised alerts.
func (r Report) WithAlerts() []Result {
	var out []Result
	for _, res := range r.Results {
		if len(res.Alerts) > 0 {
			out = append(out, res)
		}
	}
	return out
}

// AlertCount returns the total number of alerts raised.
func (r Report) AlertCount() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Alerts)
	}
	return n
}

// Scanner is the part of the scan orchestrator the monitor needs.
type Scanner interface {
	Scan(ctx context.Context, symbols []string, opts scan.Options) scan.Report
}

// Monitor checks symbols and persists the snapshots it compares against.
type Monitor struct {
	store      store.DataStore
	scanner    Scanner
	thresholds Thresholds
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a monitor.
func New(st store.DataStore, scanner Scanner, th Thresholds, logger zerolog.Logger) (*Monitor, error) {
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("monitor thresholds: %w", err)
	}
	return &Monitor{store: st, scanner: scanner, thresholds: th, logger: logger, now: time.Now}, nil
}

// Check scans the symbols and compares each with its stored snapshot. A
// symbol's alerts are stored before its new snapshot. A symbol whose store
// calls fail is reported as a failure and the check moves on.
func (m *Monitor) Check(ctx context.Context, symbols []string) (Report, error) {
	report := m.scanner.Scan(ctx, symbols, scan.Options{})
	out := Report{Failures: report.Failures}
	now := m.now()

	for i := range report.Results {
		r := &report.Results[i]
		res, err := m.check(ctx, r, now)
		if err != nil {
			kind := apperrors.Classify(err)
			logging.LogDrop(m.logger, r.Symbol, string(kind), err)
			out.Failures = append(out.Failures, scan.Failure{Symbol: r.Symbol, Kind: kind, Error: err.Error()})
			continue
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

func (m *Monitor) check(ctx context.Context, r *scan.SignalResult, now time.Time) (Result, error) {
	prev, err := m.store.GetSnapshot(ctx, r.Symbol)
	if err != nil {
		if !errors.Is(err, apperrors.ErrDataNotFound) {
			return Result{}, err
		}
		prev = nil
	}

	curr := SnapshotOf(r, now)
	alerts := Detect(prev, curr, latestPatterns(r.Patterns, r.Bundle), r.Crosses, m.thresholds)
	if err := m.store.SaveAlerts(ctx, alerts); err != nil {
		return Result{}, err
	}
	if err := m.store.SaveSnapshot(ctx, curr); err != nil {
		return Result{}, err
	}

	for _, a := range alerts {
		logging.LogAlert(m.logger, a.Symbol, a.Type, string(a.Priority), curr.Price)
	}
	return Result{Symbol: r.Symbol, Current: curr, Previous: prev, Alerts: alerts}, nil
}

func latestPatterns(pats []analysis.Pattern, b *indicators.Bundle) []analysis.Pattern {
	var out []analysis.Pattern
	for _, p := range pats {
		if p.Date.Equal(b.AsOf) {
			out = append(out, p)
		}
	}
	return out
}
