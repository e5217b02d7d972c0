package watchlist

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/analysis/signals"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/store"
)

type fakeScanner struct {
	bundles map[string]*indicators.Bundle
	fired   map[string]bool
	targets map[string]float64
}

func (f *fakeScanner) Analyze(_ context.Context, symbol string, _ scan.Options) (*scan.SignalResult, error) {
	b, ok := f.bundles[symbol]
	if !ok {
		return nil, apperrors.ErrSymbolNotFound
	}
	return &scan.SignalResult{Symbol: symbol, Bundle: b}, nil
}

func (f *fakeScanner) Scan(ctx context.Context, symbols []string, opts scan.Options) scan.Report {
	f.targets = opts.Targets
	report := scan.Report{Requested: len(symbols), Results: []scan.SignalResult{}}
	for _, s := range symbols {
		r, err := f.Analyze(ctx, s, opts)
		if err != nil {
			report.Failures = append(report.Failures, scan.Failure{Symbol: s, Kind: apperrors.Classify(err), Error: err.Error()})
			continue
		}
		r.Entry = signals.EntrySignal{Fired: f.fired[s], Price: r.Bundle.Price, Target: opts.Targets[s]}
		report.Results = append(report.Results, *r)
	}
	report.Total = len(report.Results)
	return report
}

func newTestService(t *testing.T, scanner Scanner) *Service {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "scanner.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewService(st, scanner, zerolog.Nop())
}

func TestDefaultTarget(t *testing.T) {
	tests := []struct {
		price, lower, want float64
	}{
		{100, 97, 95},
		{100, 90.123, 90.12},
		{50, 47.5, 47.5},
	}
	for _, tt := range tests {
		got := DefaultTarget(&indicators.Bundle{Price: tt.price, BBLower: tt.lower})
		if got != tt.want {
			t.Errorf("DefaultTarget(%v, %v) = %v, want %v", tt.price, tt.lower, got, tt.want)
		}
	}
}

func TestService_AddRemoveList(t *testing.T) {
	scanner := &fakeScanner{bundles: map[string]*indicators.Bundle{
		"AAPL": {Price: 100, BBLower: 97},
		"MSFT": {Price: 400, BBLower: 390},
	}}
	svc := newTestService(t, scanner)
	ctx := context.Background()

	entry, err := svc.Add(ctx, "aapl", 0, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if entry.Symbol != "AAPL" || entry.TargetPrice != 95 || entry.AddedPrice != 100 {
		t.Errorf("unexpected entry %+v", entry)
	}
	if _, err := svc.Add(ctx, "MSFT", 350, "earnings"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := svc.Add(ctx, "NOPE", 0, ""); !errors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.Add(ctx, "AAPL", -1, ""); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	symbols, _ := svc.Symbols(ctx)
	if len(symbols) != 2 {
		t.Fatalf("symbols = %v", symbols)
	}

	if err := svc.Remove(ctx, "aapl"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := svc.Remove(ctx, "AAPL"); !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("expected not found on second remove, got %v", err)
	}
	entries, _ := svc.List(ctx)
	if len(entries) != 1 || entries[0].Symbol != "MSFT" || entries[0].TargetPrice != 350 || entries[0].Note != "earnings" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestService_Check(t *testing.T) {
	scanner := &fakeScanner{
		bundles: map[string]*indicators.Bundle{
			"AAPL": {Price: 100, BBLower: 97},
			"MSFT": {Price: 400, BBLower: 390},
		},
		fired: map[string]bool{"AAPL": true},
	}
	svc := newTestService(t, scanner)
	ctx := context.Background()

	empty, err := svc.Check(ctx)
	if err != nil || len(empty.Statuses) != 0 {
		t.Fatalf("empty check = %+v, %v", empty, err)
	}

	svc.Add(ctx, "AAPL", 0, "")
	svc.Add(ctx, "MSFT", 380, "")
	svc.store.UpsertWatch(ctx, models.WatchlistEntry{Symbol: "GONE", TargetPrice: 10})

	scanner.bundles["AAPL"] = &indicators.Bundle{Price: 90, BBLower: 88}
	result, err := svc.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(result.Statuses) != 2 || len(result.Failures) != 1 || result.Failures[0].Symbol != "GONE" {
		t.Fatalf("unexpected result %+v", result)
	}
	if scanner.targets["MSFT"] != 380 || scanner.targets["AAPL"] != 95 {
		t.Errorf("stored targets not passed to scan: %v", scanner.targets)
	}

	fired := result.Signals()
	if len(fired) != 1 || fired[0].Entry.Symbol != "AAPL" {
		t.Fatalf("unexpected signals %+v", fired)
	}
	if fired[0].ChangePct != -10 || fired[0].Price != 90 {
		t.Errorf("change = %v, price = %v", fired[0].ChangePct, fired[0].Price)
	}
}

func TestService_AddLogsSymbol(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "scanner.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer st.Close()

	var buf bytes.Buffer
	scanner := &fakeScanner{bundles: map[string]*indicators.Bundle{"AAPL": {Price: 100, BBLower: 97}}}
	svc := NewService(st, scanner, zerolog.New(&buf))
	if _, err := svc.Add(context.Background(), "aapl", 0, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if line := buf.String(); !strings.Contains(line, `"symbol":"AAPL"`) || !strings.Contains(line, "Added to watchlist") {
		t.Errorf("log line = %s", line)
	}
}
