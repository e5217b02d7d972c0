package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"equity-scanner/internal/analysis/scoring"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
	"equity-scanner/pkg/utils"
)

const chartJSON = `{"chart":{"result":[{"timestamp":[1704153600,1704240000,1704326400],
"indicators":{"quote":[{"open":[100.5,null,102],"high":[101,null,103.5],"low":[99,null,101],
"close":[100.8,null,103],"volume":[1200000,null,900000]}]}}],"error":null}}`

const summaryJSON = `{"quoteSummary":{"result":[{
"financialData":{"returnOnEquity":{"raw":0.185,"fmt":"18.50%"},"returnOnAssets":{"raw":1.2},
"profitMargins":{"raw":0.25},"operatingMargins":{},"debtToEquity":{"raw":150.5},
"currentRatio":{"raw":1.8},"freeCashflow":{"raw":-2500000},"revenueGrowth":{"raw":-0.05},
"earningsGrowth":{"raw":0.3}},
"defaultKeyStatistics":{"forwardPE":{"raw":21.4},"pegRatio":{},"priceToBook":{"raw":3.2}},
"summaryDetail":{"trailingPE":{"raw":24.5},"dividendYield":{"raw":0.021},"payoutRatio":{"raw":0.4}}
}],"error":null}}`

func testYahooClient(chartURL, summaryURL string) *YahooClient {
	cfg := DefaultYahooConfig()
	cfg.ChartURL = chartURL
	cfg.SummaryURL = summaryURL
	cfg.Retry = utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
	return NewYahooClient(cfg, zerolog.Nop())
}

func TestYahooClient_FetchOHLCV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/AAPL") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("interval") != "1d" || r.URL.Query().Get("period1") == "" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(chartJSON))
	}))
	defer srv.Close()

	client := testYahooClient(srv.URL+"/chart/", srv.URL+"/summary/")
	candles, err := client.FetchOHLCV(context.Background(), "aapl", 30)
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected null bar to be skipped, got %d bars", len(candles))
	}
	if candles[1].Close != 103 || candles[1].Volume != 900000 {
		t.Errorf("unexpected last bar %+v", candles[1])
	}
	if !candles[0].Timestamp.Before(candles[1].Timestamp) {
		t.Error("bars must be in ascending order")
	}
}

func TestYahooClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	client := testYahooClient(srv.URL+"/", srv.URL+"/")
	_, err := client.FetchOHLCV(context.Background(), "ZZZZ", 30)
	if apperrors.Classify(err) != apperrors.FailureNotFound {
		t.Errorf("expected not_found, got %v (%v)", apperrors.Classify(err), err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestYahooClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(chartJSON))
	}))
	defer srv.Close()

	client := testYahooClient(srv.URL+"/", srv.URL+"/")
	if _, err := client.FetchOHLCV(context.Background(), "MSFT", 30); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestYahooClient_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":`))
	}))
	defer srv.Close()

	client := testYahooClient(srv.URL+"/", srv.URL+"/")
	_, err := client.FetchOHLCV(context.Background(), "MSFT", 30)
	if !errors.Is(err, apperrors.ErrMalformedPayload) {
		t.Errorf("expected malformed payload, got %v", err)
	}
	if apperrors.Classify(err) != apperrors.FailureProvider {
		t.Errorf("expected provider_failure, got %s", apperrors.Classify(err))
	}
}

func TestYahooClient_FetchFundamentals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "financialData") {
			t.Errorf("missing modules in %s", r.URL.RawQuery)
		}
		w.Write([]byte(summaryJSON))
	}))
	defer srv.Close()

	client := testYahooClient(srv.URL+"/", srv.URL+"/")
	raw, err := client.FetchFundamentals(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchFundamentals: %v", err)
	}

	if raw[models.FieldOperatingMargin] != models.NotAvailable || raw[models.FieldPEG] != models.NotAvailable {
		t.Errorf("missing values should be N/A: %v", raw)
	}

	f := scoring.ParseFundamentals(raw)
	checks := []struct {
		name      string
		got, want float64
	}{
		{"roe", f.ROE, 18.5},
		{"roa above 100%", f.ROA, 120},
		{"profit margin", f.ProfitMargin, 25},
		{"debt to equity ratio", f.DebtToEquity, 1.505},
		{"current ratio", f.CurrentRatio, 1.8},
		{"free cash flow", f.FreeCashFlow, -2500000},
		{"revenue growth", f.RevenueGrowth, -5},
		{"earnings growth", f.EarningsGrowth, 30},
		{"pe", f.PE, 24.5},
		{"dividend yield", f.DividendYield, 2.1},
		{"payout", f.PayoutRatio, 40},
	}
	for _, c := range checks {
		if diff := c.got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMemoryCache_TTLAndEviction(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Minute, 2)
	now := time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	bars := []models.Candle{{Close: 1}}
	cache.Set(ctx, "a", bars)
	cache.Set(ctx, "b", bars)
	if _, err := cache.Get(ctx, "a"); err != nil {
		t.Fatalf("expected hit for a: %v", err)
	}
	// a was used most recently, so b is evicted
	cache.Set(ctx, "c", bars)
	if _, err := cache.Get(ctx, "b"); !errors.Is(err, apperrors.ErrCacheMiss) {
		t.Errorf("expected b to be evicted, got %v", err)
	}
	if cache.Len() != 2 {
		t.Errorf("len = %d, want 2", cache.Len())
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.Get(ctx, "a"); !errors.Is(err, apperrors.ErrCacheMiss) {
		t.Errorf("expected expired entry to miss, got %v", err)
	}
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(time.Minute, 0)
	bars := []models.Candle{{Close: 1}}
	cache.Set(ctx, "k", bars)
	bars[0].Close = 99

	got, _ := cache.Get(ctx, "k")
	got[0].Close = 42
	again, _ := cache.Get(ctx, "k")
	if again[0].Close != 1 {
		t.Errorf("cached series was mutated: %v", again[0].Close)
	}
}

func TestCachingProvider(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{MemoryProvider: NewMemoryProvider()}
	inner.SetBars("AAPL", []models.Candle{{Close: 10}, {Close: 11}})

	p := NewCachingProvider(inner, NewMemoryCache(time.Hour, 10), zerolog.Nop())
	for i := 0; i < 3; i++ {
		bars, err := p.FetchOHLCV(ctx, "aapl", 100)
		if err != nil || len(bars) != 2 {
			t.Fatalf("fetch %d: %v %v", i, bars, err)
		}
	}
	if inner.calls.Load() != 1 {
		t.Errorf("expected 1 upstream fetch, got %d", inner.calls.Load())
	}

	if _, err := p.FetchOHLCV(ctx, "MSFT", 100); !errors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Errorf("expected not found to pass through, got %v", err)
	}
}

type countingProvider struct {
	*MemoryProvider
	calls atomic.Int32
}

func (p *countingProvider) FetchOHLCV(ctx context.Context, symbol string, lookback int) ([]models.Candle, error) {
	p.calls.Add(1)
	return p.MemoryProvider.FetchOHLCV(ctx, symbol, lookback)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("SCANNER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCANNER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cache, err := NewRedisCache(ctx, RedisConfig{Addr: addr, Prefix: "scanner-test", TTL: time.Minute})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cache.Close()

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, apperrors.ErrCacheMiss) {
		t.Errorf("expected miss, got %v", err)
	}
	bars := []models.Candle{{Timestamp: time.Unix(1704153600, 0).UTC(), Close: 5, Volume: 7}}
	if err := cache.Set(ctx, "k", bars); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := cache.Get(ctx, "k")
	if err != nil || len(got) != 1 || got[0].Close != 5 || !got[0].Timestamp.Equal(bars[0].Timestamp) {
		t.Errorf("round trip = %v, %v", got, err)
	}
}

func TestLoadUniverse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tech.yaml")
	os.WriteFile(path, []byte("name: tech\nsymbols: [aapl, MSFT, ' nvda ', AAPL]\n"), 0644)

	u, err := LoadUniverse(path)
	if err != nil {
		t.Fatalf("LoadUniverse: %v", err)
	}
	want := []string{"AAPL", "MSFT", "NVDA"}
	if u.Name != "tech" || strings.Join(u.Symbols, ",") != strings.Join(want, ",") {
		t.Errorf("got %+v", u)
	}

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("name: none\nsymbols: []\n"), 0644)
	if _, err := LoadUniverse(empty); !errors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSaveUniverse_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.yaml")
	if err := SaveUniverse(path, DefaultUniverse()); err != nil {
		t.Fatalf("SaveUniverse: %v", err)
	}
	u, err := LoadUniverse(path)
	if err != nil {
		t.Fatalf("LoadUniverse: %v", err)
	}
	if len(u.Symbols) != len(DefaultUniverse().Symbols) {
		t.Errorf("symbols = %d, want %d", len(u.Symbols), len(DefaultUniverse().Symbols))
	}
}

func TestMemoryProvider(t *testing.T) {
	p := NewMemoryProvider()
	p.SetError("BAD", apperrors.ErrTimeout)
	p.SetFundamentals("good", models.RawFundamentals{models.FieldPE: "12"})

	if _, err := p.FetchOHLCV(context.Background(), "bad", 0); !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("expected injected error, got %v", err)
	}
	raw, err := p.FetchFundamentals(context.Background(), "GOOD")
	if err != nil || raw.Get(models.FieldPE) != "12" || raw.Get(models.FieldROE) != models.NotAvailable {
		t.Errorf("unexpected fundamentals %v, %v", raw, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.FetchOHLCV(ctx, "GOOD", 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
}
