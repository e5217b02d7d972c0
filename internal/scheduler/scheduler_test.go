package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/analysis/signals"
	"equity-scanner/internal/config"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
	"equity-scanner/internal/monitor"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/store"
	"equity-scanner/internal/watchlist"
)

// Wednesday 2024-03-13 16:30 in New York.
var tradingDay = time.Date(2024, 3, 13, 20, 30, 0, 0, time.UTC)

type fakeRecommender struct {
	recs    scan.Recommendations
	symbols []string
	limit   int
}

func (f *fakeRecommender) Recommend(_ context.Context, symbols []string, _ string, limit int) scan.Recommendations {
	f.symbols, f.limit = symbols, limit
	return f.recs
}

type fakeChecker struct {
	out   monitor.Report
	err   error
	calls int
}

func (f *fakeChecker) Check(context.Context, []string) (monitor.Report, error) {
	f.calls++
	return f.out, f.err
}

type fakeWatchlist struct {
	symbols []string
	result  watchlist.CheckResult
}

func (f *fakeWatchlist) Symbols(context.Context) ([]string, error)           { return f.symbols, nil }
func (f *fakeWatchlist) Check(context.Context) (watchlist.CheckResult, error) { return f.result, nil }

type fakeStore struct {
	mu      sync.Mutex
	runs    []*store.ScanRun
	lastRun map[string]time.Time
}

func newFakeStore() *fakeStore { return &fakeStore{lastRun: make(map[string]time.Time)} }

func (f *fakeStore) SaveScanRun(_ context.Context, run *store.ScanRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) SetLastRun(job string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRun[job] = t
	return nil
}

func (f *fakeStore) GetLastRun(job string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRun[job]
}

type fakeNotifier struct {
	recs    int
	alerts  int
	entries int
	errs    []string
}

func (f *fakeNotifier) SendRecommendations(context.Context, scan.Recommendations) error {
	f.recs++
	return nil
}

func (f *fakeNotifier) SendAlerts(_ context.Context, r monitor.Report, _ time.Time) error {
	if len(r.WithAlerts()) > 0 {
		f.alerts++
	}
	return nil
}

func (f *fakeNotifier) SendEntrySignals(_ context.Context, r watchlist.CheckResult) error {
	if len(r.Signals()) > 0 {
		f.entries++
	}
	return nil
}

func (f *fakeNotifier) SendError(_ context.Context, _ error, errContext string) error {
	f.errs = append(f.errs, errContext)
	return errors.New("channel down")
}

type fakeRecorder struct {
	jobs   map[string]error
	alerts int
}

func (f *fakeRecorder) RecordJob(job string, _ time.Time, err error) { f.jobs[job] = err }
func (f *fakeRecorder) RecordAlerts(alerts []models.Alert)           { f.alerts += len(alerts) }

type fixture struct {
	sched *Scheduler
	rec   *fakeRecommender
	mon   *fakeChecker
	wl    *fakeWatchlist
	store *fakeStore
	notif *fakeNotifier
	recd  *fakeRecorder
}

func newFixture(t *testing.T, notify bool) *fixture {
	t.Helper()
	f := &fixture{
		rec:   &fakeRecommender{},
		mon:   &fakeChecker{},
		wl:    &fakeWatchlist{},
		store: newFakeStore(),
		notif: &fakeNotifier{},
		recd:  &fakeRecorder{jobs: make(map[string]error)},
	}
	cfg := Config{
		Schedule: config.ScheduleConfig{
			RecommendCron: "30 16 * * 1-5",
			MonitorCron:   "*/30 9-16 * * 1-5",
			Timezone:      "America/New_York",
			Notify:        notify,
		},
		Universe:     []string{"AAPL", "MSFT", "NVDA"},
		MarketSymbol: "QQQ",
		RecommendTop: 2,
	}
	s, err := New(cfg, Deps{
		Recommender: f.rec,
		Monitor:     f.mon,
		Watchlist:   f.wl,
		Store:       f.store,
		Notifier:    f.notif,
		Recorder:    f.recd,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return tradingDay }
	f.sched = s
	return f
}

func pick(symbol string) scan.SignalResult {
	return scan.SignalResult{Symbol: symbol, Bundle: &indicators.Bundle{Price: 100}}
}

func TestRunRecommendNow(t *testing.T) {
	f := newFixture(t, true)
	f.rec.recs = scan.Recommendations{
		Picks:    []scan.SignalResult{pick("NVDA"), pick("AAPL")},
		Scanned:  2,
		Failures: []scan.Failure{{Symbol: "MSFT", Kind: apperrors.FailureNotFound}},
	}

	if err := f.sched.RunRecommendNow(context.Background()); err != nil {
		t.Fatalf("RunRecommendNow: %v", err)
	}

	if len(f.rec.symbols) != 3 || f.rec.limit != 2 {
		t.Errorf("recommend called with %v limit %d", f.rec.symbols, f.rec.limit)
	}
	if len(f.store.runs) != 1 {
		t.Fatalf("runs = %d", len(f.store.runs))
	}
	run := f.store.runs[0]
	if run.Kind != store.RunRecommend || run.Requested != 3 || run.Returned != 2 {
		t.Errorf("run = %+v", run)
	}
	if run.Failures["MSFT"] != string(apperrors.FailureNotFound) {
		t.Errorf("failures = %v", run.Failures)
	}
	if len(run.TopSymbols) != 2 || run.TopSymbols[0] != "NVDA" {
		t.Errorf("top = %v", run.TopSymbols)
	}
	if f.notif.recs != 1 {
		t.Errorf("recommendations sent %d times", f.notif.recs)
	}
	if !f.store.GetLastRun(JobRecommend).Equal(tradingDay) {
		t.Errorf("last run = %v", f.store.GetLastRun(JobRecommend))
	}
	if err, ok := f.recd.jobs[JobRecommend]; !ok || err != nil {
		t.Errorf("recorded job = %v, %v", err, ok)
	}
}

func TestRunRecommendNow_NothingScanned(t *testing.T) {
	f := newFixture(t, true)
	f.rec.recs = scan.Recommendations{Failures: []scan.Failure{{Symbol: "AAPL", Kind: apperrors.FailureTimeout}}}

	err := f.sched.RunRecommendNow(context.Background())
	if !errors.Is(err, ErrNothingScanned) {
		t.Fatalf("expected ErrNothingScanned, got %v", err)
	}
	if len(f.store.runs) != 1 {
		t.Error("failed run must still be persisted")
	}
	if !f.store.GetLastRun(JobRecommend).IsZero() {
		t.Error("last run must not advance on failure")
	}
	if f.notif.recs != 0 || len(f.notif.errs) != 1 || f.notif.errs[0] != "recommend job" {
		t.Errorf("notifier = %+v", f.notif)
	}
	if !errors.Is(f.recd.jobs[JobRecommend], ErrNothingScanned) {
		t.Errorf("recorded = %v", f.recd.jobs[JobRecommend])
	}
}

func TestRunMonitorNow(t *testing.T) {
	f := newFixture(t, true)
	f.wl.symbols = []string{"AAPL", "TSLA"}
	f.mon.out = monitor.Report{
		Results: []monitor.Result{
			{Symbol: "AAPL", Alerts: []models.Alert{
				{Symbol: "AAPL", Type: "rsi_oversold", Priority: models.PriorityHigh},
				{Symbol: "AAPL", Type: "volume_spike", Priority: models.PriorityMedium},
			}},
			{Symbol: "TSLA"},
		},
	}
	f.wl.result = watchlist.CheckResult{Statuses: []watchlist.Status{
		{Entry: models.WatchlistEntry{Symbol: "AAPL"}, Signal: signals.EntrySignal{Fired: true}},
		{Entry: models.WatchlistEntry{Symbol: "TSLA"}},
	}}

	if err := f.sched.RunMonitorNow(context.Background()); err != nil {
		t.Fatalf("RunMonitorNow: %v", err)
	}
	if f.mon.calls != 1 {
		t.Errorf("monitor calls = %d", f.mon.calls)
	}
	if f.recd.alerts != 2 {
		t.Errorf("recorded alerts = %d", f.recd.alerts)
	}
	if f.notif.alerts != 1 || f.notif.entries != 1 {
		t.Errorf("notifier = %+v", f.notif)
	}
	run := f.store.runs[0]
	if run.Kind != store.RunMonitor || run.Requested != 2 || run.Returned != 2 || len(run.TopSymbols) != 1 {
		t.Errorf("run = %+v", run)
	}
}

func TestRunMonitorNow_EmptyWatchlist(t *testing.T) {
	f := newFixture(t, true)
	if err := f.sched.RunMonitorNow(context.Background()); err != nil {
		t.Fatalf("RunMonitorNow: %v", err)
	}
	if f.mon.calls != 0 || len(f.store.runs) != 0 {
		t.Error("empty watchlist must not check or persist")
	}
	if f.store.GetLastRun(JobMonitor).IsZero() {
		t.Error("empty run still counts as a success")
	}
}

func TestRunMonitorNow_CheckError(t *testing.T) {
	f := newFixture(t, false)
	f.wl.symbols = []string{"AAPL"}
	f.mon.err = apperrors.ErrDatabaseError

	err := f.sched.RunMonitorNow(context.Background())
	if !errors.Is(err, apperrors.ErrDatabaseError) {
		t.Fatalf("expected database error, got %v", err)
	}
	if len(f.notif.errs) != 0 {
		t.Error("notify=false must suppress error notifications")
	}
}

func TestRun_SkipsWeekend(t *testing.T) {
	f := newFixture(t, true)
	f.sched.now = func() time.Time { return time.Date(2024, 3, 16, 15, 0, 0, 0, time.UTC) }
	f.wl.symbols = []string{"AAPL"}

	if err := f.sched.RunRecommendNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.sched.RunMonitorNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.store.runs) != 0 || f.mon.calls != 0 || len(f.recd.jobs) != 0 {
		t.Error("jobs must not run on Saturday")
	}
}

func TestRun_NotifyDisabled(t *testing.T) {
	f := newFixture(t, false)
	f.rec.recs = scan.Recommendations{Picks: []scan.SignalResult{pick("AAPL")}, Scanned: 1}
	if err := f.sched.RunRecommendNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.notif.recs != 0 {
		t.Error("notifications sent with notify=false")
	}
}

func TestNext(t *testing.T) {
	f := newFixture(t, true)
	ny, _ := time.LoadLocation("America/New_York")
	f.sched.now = func() time.Time { return time.Date(2024, 3, 13, 10, 5, 0, 0, ny) }

	next := f.sched.Next()
	if want := time.Date(2024, 3, 13, 10, 30, 0, 0, ny); !next[JobMonitor].Equal(want) {
		t.Errorf("monitor next = %v, want %v", next[JobMonitor], want)
	}
	if want := time.Date(2024, 3, 13, 16, 30, 0, 0, ny); !next[JobRecommend].Equal(want) {
		t.Errorf("recommend next = %v, want %v", next[JobRecommend], want)
	}
}

func TestNew_Errors(t *testing.T) {
	deps := Deps{Recommender: &fakeRecommender{}, Monitor: &fakeChecker{}, Watchlist: &fakeWatchlist{}, Store: newFakeStore()}
	good := config.ScheduleConfig{RecommendCron: "30 16 * * 1-5", MonitorCron: "*/30 9-16 * * 1-5", Timezone: "UTC"}

	tests := []struct {
		name   string
		mutate func(*config.ScheduleConfig)
		deps   Deps
	}{
		{"bad recommend cron", func(c *config.ScheduleConfig) { c.RecommendCron = "every day" }, deps},
		{"bad monitor cron", func(c *config.ScheduleConfig) { c.MonitorCron = "61 * * * *" }, deps},
		{"bad timezone", func(c *config.ScheduleConfig) { c.Timezone = "Mars/Olympus" }, deps},
		{"missing store", func(*config.ScheduleConfig) {}, Deps{Recommender: &fakeRecommender{}, Monitor: &fakeChecker{}, Watchlist: &fakeWatchlist{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := good
			tt.mutate(&sc)
			if _, err := New(Config{Schedule: sc}, tt.deps, zerolog.Nop()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestScanRun_KeepsTopByScore(t *testing.T) {
	a, b, c := pick("A"), pick("B"), pick("C")
	a.Score.TotalScore, b.Score.TotalScore, c.Score.TotalScore = 40, 80, 60
	report := scan.Report{
		Results:   []scan.SignalResult{a, b, c},
		Total:     3,
		Requested: 4,
		Failures:  []scan.Failure{{Symbol: "D", Kind: apperrors.FailureInsufficientHistory}},
		StartedAt: tradingDay,
		Duration:  2 * time.Second,
	}

	run := ScanRun(report, 2)
	if run.Kind != store.RunScan || run.Requested != 4 || run.Returned != 3 || run.Duration != 2*time.Second {
		t.Errorf("run = %+v", run)
	}
	if len(run.TopSymbols) != 2 || run.TopSymbols[0] != "B" || run.TopSymbols[1] != "C" {
		t.Errorf("top = %v", run.TopSymbols)
	}
	if run.Failures["D"] != string(apperrors.FailureInsufficientHistory) {
		t.Errorf("failures = %v", run.Failures)
	}
	if FailureMap(nil) != nil {
		t.Error("no failures must map to nil")
	}
}
