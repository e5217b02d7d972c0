package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"equity-scanner/internal/config"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/marketdata"
	"equity-scanner/internal/models"
	"equity-scanner/internal/monitor"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/store"
)

func testBars(n int, start float64) []models.Candle {
	candles := make([]models.Candle, n)
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		c := start + float64(i)*0.15 + 2*math.Sin(float64(i)/4)
		o := c - 0.4
		candles[i] = models.Candle{
			Timestamp: day.AddDate(0, 0, i),
			Open:      o,
			High:      math.Max(o, c) + 0.6,
			Low:       math.Min(o, c) - 0.6,
			Close:     c,
			Volume:    2_000_000 + int64(i%5)*25_000,
		}
	}
	return candles
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "scanner.db")
	cfg.Cache.Backend = "none"
	cfg.Log.Console = false
	cfg.Log.File = false

	p := marketdata.NewMemoryProvider()
	p.SetBars("AAPL", testBars(300, 150))
	p.SetBars("MSFT", testBars(300, 320))

	app := &App{Config: cfg, ConfigDir: dir, Logger: zerolog.Nop(), Provider: p}
	t.Cleanup(func() { app.Close() })
	return app
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd(app)
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func decode(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func TestVersion_JSON(t *testing.T) {
	out, err := run(t, newTestApp(t), "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var got map[string]string
	decode(t, out, &got)
	if got["version"] != Version {
		t.Errorf("version = %q, want %q", got["version"], Version)
	}
}

func TestConfig_LoadsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	app := &App{Logger: zerolog.Nop()}
	t.Cleanup(func() { app.Close() })

	out, err := run(t, app, "config", "path", "--config", dir)
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	want := filepath.Join(dir, "config.toml")
	if strings.TrimSpace(out) != want {
		t.Errorf("path = %q, want %q", out, want)
	}
	if app.Config == nil || app.Config.Store.Path != filepath.Join(dir, "scanner.db") {
		t.Errorf("config not loaded from %s", dir)
	}
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	app := newTestApp(t)
	app.Config.Summary.APIKey = "sk-secret"

	out, err := run(t, app, "config", "show", "--json")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "sk-secret") {
		t.Error("api key leaked into config show")
	}
	if app.Config.Summary.APIKey != "sk-secret" {
		t.Error("redaction must not modify the loaded config")
	}
}

func TestScan_JSONReportsFailures(t *testing.T) {
	app := newTestApp(t)

	out, err := run(t, app, "scan", "aapl", "NOPE", "AAPL", "--json")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var report scan.Report
	decode(t, out, &report)

	if report.Requested != 2 || report.Total != 1 {
		t.Fatalf("requested=%d total=%d, want 2 and 1", report.Requested, report.Total)
	}
	if report.Results[0].Symbol != "AAPL" {
		t.Errorf("result symbol = %s", report.Results[0].Symbol)
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != apperrors.FailureNotFound {
		t.Errorf("failures = %+v", report.Failures)
	}

	out, err = run(t, app, "history", "--json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var runs []store.ScanRun
	decode(t, out, &runs)
	if len(runs) != 1 || runs[0].Kind != store.RunScan || runs[0].Returned != 1 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestScan_TopLimitsJSONResults(t *testing.T) {
	out, err := run(t, newTestApp(t), "scan", "AAPL", "MSFT", "--top", "1", "--json")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var report scan.Report
	decode(t, out, &report)
	if len(report.Results) != 1 || report.Total != 2 {
		t.Errorf("results=%d total=%d, want 1 and 2", len(report.Results), report.Total)
	}
}

func TestScan_CSVExport(t *testing.T) {
	app := newTestApp(t)
	path := filepath.Join(t.TempDir(), "picks.csv")

	if _, err := run(t, app, "scan", "AAPL", "MSFT", "NOPE", "--csv", path); err != nil {
		t.Fatalf("scan: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("csv has %d lines, want header and 2 rows:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "rank,symbol,price,") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1,") {
		t.Errorf("first row = %q", lines[1])
	}

	out, err := run(t, app, "scan", "AAPL", "--csv", "-")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "rank,symbol") || !strings.Contains(out, ",AAPL,") {
		t.Errorf("stdout csv = %q", out)
	}
}

func TestScan_PlainOutput(t *testing.T) {
	out, err := run(t, newTestApp(t), "scan", "AAPL", "MSFT", "NOPE")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, want := range []string{"AAPL", "MSFT", "2 of 3 symbols analyzed", "Dropped 1: not_found: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyze_ExitWithBuyPrice(t *testing.T) {
	out, err := run(t, newTestApp(t), "analyze", "aapl", "--buy-price", "100", "--json")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var result scan.SignalResult
	decode(t, out, &result)
	if result.Symbol != "AAPL" {
		t.Errorf("symbol = %s", result.Symbol)
	}
	if result.Exit == nil || result.Exit.BuyPrice != 100 {
		t.Errorf("exit = %+v, want evaluation against 100", result.Exit)
	}
}

func TestAnalyze_UnknownSymbol(t *testing.T) {
	_, err := run(t, newTestApp(t), "analyze", "NOPE")
	if err == nil {
		t.Fatal("expected an error for an unknown symbol")
	}
	if apperrors.Classify(err) != apperrors.FailureNotFound {
		t.Errorf("kind = %s, want not_found", apperrors.Classify(err))
	}
}

func TestWatchlistCommands(t *testing.T) {
	app := newTestApp(t)

	out, err := run(t, app, "watchlist", "add", "aapl", "--target", "100", "--note", "dip", "--json")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var entry models.WatchlistEntry
	decode(t, out, &entry)
	if entry.Symbol != "AAPL" || entry.TargetPrice != 100 || entry.AddedPrice <= 0 {
		t.Errorf("entry = %+v", entry)
	}

	out, err = run(t, app, "watchlist", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var entries []models.WatchlistEntry
	decode(t, out, &entries)
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}

	if _, err := run(t, app, "watchlist", "remove", "AAPL"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := run(t, app, "watchlist", "remove", "AAPL"); err == nil {
		t.Error("removing an absent symbol should fail")
	}

	out, err = run(t, app, "watchlist", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("empty list = %q, want []", out)
	}
}

func TestMonitor_EmptyWatchlist(t *testing.T) {
	out, err := run(t, newTestApp(t), "monitor")
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if !strings.Contains(out, "Watchlist is empty") {
		t.Errorf("output = %q", out)
	}
}

func TestMonitor_StoresSnapshotsAndRun(t *testing.T) {
	app := newTestApp(t)
	if _, err := run(t, app, "watchlist", "add", "MSFT"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := run(t, app, "monitor", "--json")
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	var report monitor.Report
	decode(t, out, &report)
	if len(report.Results) != 1 || report.Results[0].Previous != nil {
		t.Fatalf("first check = %+v", report.Results)
	}

	out, err = run(t, app, "monitor", "--json")
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	report = monitor.Report{}
	decode(t, out, &report)
	if len(report.Results) != 1 || report.Results[0].Previous == nil {
		t.Fatalf("second check should compare against the stored snapshot: %+v", report.Results)
	}
	if report.Results[0].Previous.Price != report.Results[0].Current.Price {
		t.Errorf("previous price %v, want %v", report.Results[0].Previous.Price, report.Results[0].Current.Price)
	}
}
