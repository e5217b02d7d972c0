package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/indicators"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/store"
)

var checkTime = time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC)

func snap(price, rsi, stoch, volume float64) models.Snapshot {
	return models.Snapshot{Symbol: "AAPL", Price: price, RSI: rsi, StochK: stoch, VolumeRatio: volume, CheckedAt: checkTime}
}

func alertTypes(alerts []models.Alert) map[string]bool {
	out := make(map[string]bool)
	for _, a := range alerts {
		out[a.Type] = true
	}
	return out
}

func TestDetect_EdgeTriggered(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name string
		prev *models.Snapshot
		curr models.Snapshot
		want []string
		not  []string
	}{
		{
			name: "first check raises conditions in force",
			prev: nil,
			curr: snap(100, 25, 15, 2.5),
			want: []string{AlertRSIOversold, AlertStochOversold, AlertVolumeSpike},
			not:  []string{AlertPriceChange},
		},
		{
			name: "conditions that already held are quiet",
			prev: &models.Snapshot{Price: 100, RSI: 28, StochK: 18, VolumeRatio: 2.2},
			curr: snap(101, 25, 15, 2.5),
			not:  []string{AlertRSIOversold, AlertStochOversold, AlertVolumeSpike, AlertPriceChange},
		},
		{
			name: "entering overbought",
			prev: &models.Snapshot{Price: 100, RSI: 65, StochK: 70, VolumeRatio: 1},
			curr: snap(102, 71, 85, 1),
			want: []string{AlertRSIOverbought, AlertStochOverbought},
			not:  []string{AlertRSIOversold, AlertPriceChange},
		},
		{
			name: "three percent move fires",
			prev: &models.Snapshot{Price: 100, RSI: 50, StochK: 50, VolumeRatio: 1},
			curr: snap(97, 50, 50, 1),
			want: []string{AlertPriceChange},
		},
		{
			name: "smaller move is quiet",
			prev: &models.Snapshot{Price: 100, RSI: 50, StochK: 50, VolumeRatio: 1},
			curr: snap(102.9, 50, 50, 1),
			not:  []string{AlertPriceChange},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := alertTypes(Detect(tt.prev, tt.curr, nil, nil, th))
			for _, w := range tt.want {
				if !got[w] {
					t.Errorf("missing %s in %v", w, got)
				}
			}
			for _, n := range tt.not {
				if got[n] {
					t.Errorf("unexpected %s in %v", n, got)
				}
			}
		})
	}
}

func TestDetect_LevelBreaks(t *testing.T) {
	th := DefaultThresholds()
	prev := &models.Snapshot{Price: 101, RSI: 50, StochK: 50, VolumeRatio: 1}

	down := snap(99.5, 50, 50, 1)
	down.Supports = []float64{100, 95}
	if !alertTypes(Detect(prev, down, nil, nil, th))[AlertSupportBreak] {
		t.Error("expected support break")
	}

	up := snap(106, 50, 50, 1)
	up.Resistances = []float64{105}
	prev.Price = 104
	if !alertTypes(Detect(prev, up, nil, nil, th))[AlertResistanceBreak] {
		t.Error("expected resistance break")
	}

	if alertTypes(Detect(nil, down, nil, nil, th))[AlertSupportBreak] {
		t.Error("level breaks need a previous price")
	}
}

func TestDetect_PatternsAndCrossesSortedByPriority(t *testing.T) {
	pats := []analysis.Pattern{{Kind: analysis.PatternHammer, Signal: analysis.SignalBuy, Description: "hammer"}}
	crosses := []analysis.CrossEvent{
		{Type: analysis.CrossMACDGolden, Detail: "macd up"},
		{Type: analysis.CrossGolden, Detail: "ma5 over ma20"},
	}
	alerts := Detect(nil, snap(100, 50, 50, 1), pats, crosses, DefaultThresholds())
	if len(alerts) != 3 {
		t.Fatalf("alerts = %+v", alerts)
	}
	if alerts[0].Title != string(analysis.CrossGolden) || alerts[0].Priority != models.PriorityHigh || alerts[0].Signal != "bullish" {
		t.Errorf("first alert = %+v", alerts[0])
	}
	if alerts[1].Priority != models.PriorityMedium || alerts[2].Type != AlertCandlePattern {
		t.Errorf("unexpected order %+v", alerts)
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := DefaultThresholds()
	bad.RSIOversold = 75
	if err := bad.Validate(); err == nil {
		t.Error("expected error for inverted RSI band")
	}
}

type stubScanner struct {
	results []scan.SignalResult
}

func (s *stubScanner) Scan(context.Context, []string, scan.Options) scan.Report {
	return scan.Report{Results: s.results, Total: len(s.results), Requested: len(s.results)}
}

func result(price, rsi float64) scan.SignalResult {
	asOf := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	return scan.SignalResult{
		Symbol: "AAPL",
		Bundle: &indicators.Bundle{AsOf: asOf, Price: price, RSI: rsi, StochK: 50, VolumeRatio: 1},
		Patterns: []analysis.Pattern{
			{Date: asOf.AddDate(0, 0, -2), Kind: analysis.PatternDoji},
			{Date: asOf, Kind: analysis.PatternHammer, Signal: analysis.SignalBuy},
		},
	}
}

func TestMonitor_Check(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "scanner.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer st.Close()

	scanner := &stubScanner{results: []scan.SignalResult{result(100, 28)}}
	m, err := New(st, scanner, DefaultThresholds(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.now = func() time.Time { return checkTime }
	ctx := context.Background()

	first, err := m.Check(ctx, []string{"AAPL"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	got := alertTypes(first.Results[0].Alerts)
	if !got[AlertRSIOversold] || !got[AlertCandlePattern] || len(first.Results[0].Alerts) != 2 {
		t.Errorf("first check alerts = %+v", first.Results[0].Alerts)
	}
	if first.Results[0].Previous != nil {
		t.Error("first check has no previous snapshot")
	}

	scanner.results = []scan.SignalResult{result(95, 27)}
	second, err := m.Check(ctx, []string{"AAPL"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	got = alertTypes(second.Results[0].Alerts)
	if got[AlertRSIOversold] || !got[AlertPriceChange] {
		t.Errorf("second check alerts = %+v", second.Results[0].Alerts)
	}
	if second.Results[0].Previous == nil || second.Results[0].Previous.Price != 100 {
		t.Errorf("previous = %+v", second.Results[0].Previous)
	}
	if len(second.WithAlerts()) != 1 || second.AlertCount() != 2 {
		t.Errorf("with alerts = %d, count = %d", len(second.WithAlerts()), second.AlertCount())
	}

	stored, _ := st.GetRecentAlerts(ctx, "AAPL", 10)
	if len(stored) != 4 {
		t.Errorf("stored alerts = %d, want 4", len(stored))
	}
}

type flakySnapshotStore struct {
	*store.SQLiteStore
	failFor string
}

func (s *flakySnapshotStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	if snap.Symbol == s.failFor {
		return apperrors.DatabaseError("failed to save snapshot", errors.New("disk I/O error"))
	}
	return s.SQLiteStore.SaveSnapshot(ctx, snap)
}

func TestMonitor_Check_SnapshotFailureKeepsAlerts(t *testing.T) {
	sqlite, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "scanner.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer sqlite.Close()
	st := &flakySnapshotStore{SQLiteStore: sqlite, failFor: "MSFT"}

	aapl, msft := result(100, 28), result(400, 25)
	msft.Symbol = "MSFT"
	scanner := &stubScanner{results: []scan.SignalResult{aapl, msft}}
	m, err := New(st, scanner, DefaultThresholds(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.now = func() time.Time { return checkTime }
	ctx := context.Background()

	report, err := m.Check(ctx, []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Symbol != "AAPL" {
		t.Errorf("results = %+v", report.Results)
	}
	if len(report.Failures) != 1 || report.Failures[0].Symbol != "MSFT" {
		t.Fatalf("failures = %+v", report.Failures)
	}

	for _, symbol := range []string{"AAPL", "MSFT"} {
		stored, _ := sqlite.GetRecentAlerts(ctx, symbol, 10)
		if len(stored) != 2 {
			t.Errorf("%s stored alerts = %d, want 2", symbol, len(stored))
		}
	}
	if _, err := sqlite.GetSnapshot(ctx, "AAPL"); err != nil {
		t.Errorf("AAPL snapshot: %v", err)
	}
	if _, err := sqlite.GetSnapshot(ctx, "MSFT"); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("MSFT snapshot should not be stored, got %v", err)
	}

	// Once the store recovers the unsaved symbol raises its alerts again.
	st.failFor = ""
	report, err = m.Check(ctx, []string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	for _, res := range report.Results {
		switch res.Symbol {
		case "AAPL":
			if alertTypes(res.Alerts)[AlertRSIOversold] {
				t.Error("AAPL oversold should not fire twice")
			}
		case "MSFT":
			if !alertTypes(res.Alerts)[AlertRSIOversold] {
				t.Errorf("MSFT alerts = %+v", res.Alerts)
			}
		}
	}
}

func TestFormatAlerts(t *testing.T) {
	if FormatAlerts(nil, checkTime) != "" {
		t.Error("expected empty message")
	}
	alerts := []models.Alert{
		{Title: "low one", Priority: models.PriorityLow},
		{Title: "medium one", Priority: models.PriorityMedium},
		{Title: "high one", Priority: models.PriorityHigh},
		{Title: "medium two", Priority: models.PriorityMedium},
	}
	msg := FormatAlerts([]Result{{Symbol: "AAPL", Current: snap(100, 50, 50, 1), Alerts: alerts}}, checkTime)
	if !strings.Contains(msg, "AAPL $100.00") || !strings.Contains(msg, "as of 15:30") {
		t.Errorf("unexpected message:\n%s", msg)
	}
	if strings.Contains(msg, "low one") {
		t.Error("only the top three alerts should be shown")
	}
	if strings.Index(msg, "high one") > strings.Index(msg, "medium one") {
		t.Error("high priority alerts come first")
	}
}

func TestDescribe(t *testing.T) {
	s := snap(100, 25, 85, 1.4)
	s.ADX = 30
	s.Supports = []float64{95}
	out := Describe(s, DefaultThresholds())
	for _, want := range []string{"RSI: 25 (oversold)", "Stochastic: 85 (overbought)", "strong trend", "Support: $95.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
}
