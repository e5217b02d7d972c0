// Package scheduler runs the daily recommendation and the periodic watchlist
// monitor on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"equity-scanner/internal/config"
	"equity-scanner/internal/logging"
	"equity-scanner/internal/models"
	"equity-scanner/internal/monitor"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/store"
	"equity-scanner/internal/watchlist"
	"equity-scanner/pkg/utils"
)

// Job names used for last-run bookkeeping and metrics.
const (
	JobRecommend = "recommend"
	JobMonitor   = "monitor"
)

// ErrNothingScanned is returned when a recommendation run produced no result
// for any symbol of the universe.
var ErrNothingScanned = errors.New("no symbol could be scanned")

// Recommender builds the daily pick list.
type Recommender interface {
	Recommend(ctx context.Context, symbols []string, marketSymbol string, limit int) scan.Recommendations
}

// Checker compares symbols against their last snapshot.
type Checker interface {
	Check(ctx context.Context, symbols []string) (monitor.Report, error)
}

// Watchlist lists watched symbols and evaluates their entry rules.
type Watchlist interface {
	Symbols(ctx context.Context) ([]string, error)
	Check(ctx context.Context) (watchlist.CheckResult, error)
}

// Notifier delivers job output.
type Notifier interface {
	SendRecommendations(ctx context.Context, recs scan.Recommendations) error
	SendAlerts(ctx context.Context, report monitor.Report, at time.Time) error
	SendEntrySignals(ctx context.Context, result watchlist.CheckResult) error
	SendError(ctx context.Context, err error, errContext string) error
}

// Recorder observes job runs. The metrics package implements it.
type Recorder interface {
	RecordJob(job string, at time.Time, err error)
	RecordAlerts(alerts []models.Alert)
}

// Store persists run history.
type Store interface {
	SaveScanRun(ctx context.Context, run *store.ScanRun) error
	SetLastRun(job string, t time.Time) error
	GetLastRun(job string) time.Time
}

// Config selects what the jobs scan.
type Config struct {
	Schedule     config.ScheduleConfig
	Universe     []string
	MarketSymbol string
	RecommendTop int
}

// Deps are the services the jobs drive. Notifier and Recorder are optional.
type Deps struct {
	Recommender Recommender
	Monitor     Checker
	Watchlist   Watchlist
	Store       Store
	Notifier    Notifier
	Recorder    Recorder
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]cron.EntryID
	cfg    Config
	deps   Deps
	loc    *time.Location
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// New creates a scheduler and registers both jobs. Expressions use the
// standard five cron fields and are evaluated in the configured timezone.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Scheduler, error) {
	if deps.Recommender == nil || deps.Monitor == nil || deps.Watchlist == nil || deps.Store == nil {
		return nil, fmt.Errorf("scheduler: recommender, monitor, watchlist and store are required")
	}

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone %q: %w", cfg.Schedule.Timezone, err)
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&logger))),
		),
		jobs:   make(map[string]cron.EntryID, 2),
		cfg:    cfg,
		deps:   deps,
		loc:    loc,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}

	if err := s.register(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register() error {
	id, err := s.cron.AddFunc(s.cfg.Schedule.RecommendCron, func() { s.RunRecommendNow(s.ctx) })
	if err != nil {
		return fmt.Errorf("register recommend job: %w", err)
	}
	s.jobs[JobRecommend] = id

	id, err = s.cron.AddFunc(s.cfg.Schedule.MonitorCron, func() { s.RunMonitorNow(s.ctx) })
	if err != nil {
		return fmt.Errorf("register monitor job: %w", err)
	}
	s.jobs[JobMonitor] = id
	return nil
}

// Start starts the cron scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("recommend", s.cfg.Schedule.RecommendCron).
		Str("monitor", s.cfg.Schedule.MonitorCron).
		Str("timezone", s.loc.String()).
		Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Next returns the next activation time of each job after now.
func (s *Scheduler) Next() map[string]time.Time {
	next := make(map[string]time.Time, len(s.jobs))
	for job, id := range s.jobs {
		next[job] = s.cron.Entry(id).Schedule.Next(s.now().In(s.loc))
	}
	return next
}

// RunRecommendNow runs the recommendation job immediately.
func (s *Scheduler) RunRecommendNow(ctx context.Context) error {
	return s.run(ctx, JobRecommend, s.recommend)
}

// RunMonitorNow runs the monitor job immediately.
func (s *Scheduler) RunMonitorNow(ctx context.Context) error {
	return s.run(ctx, JobMonitor, s.monitor)
}

// run skips non-trading days and does the bookkeeping shared by both jobs.
func (s *Scheduler) run(ctx context.Context, job string, fn func(ctx context.Context, start time.Time) error) error {
	logger := logging.WithOperation(s.logger, job)
	start := s.now()
	if !utils.IsTradingDay(start) {
		logger.Info().Msg("Skipping job on a non-trading day")
		return nil
	}

	logger.Info().Time("last_run", s.deps.Store.GetLastRun(job)).Msg("Running job")
	err := fn(logging.WithLogger(ctx, logger), start)
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordJob(job, start, err)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Job failed")
		s.trySend(func(n Notifier) error { return n.SendError(ctx, err, job+" job") })
		return err
	}

	if err := s.deps.Store.SetLastRun(job, start); err != nil {
		logger.Warn().Err(err).Msg("Failed to record last run")
	}
	logger.Info().Dur("duration", s.now().Sub(start)).Msg("Job completed")
	return nil
}

func (s *Scheduler) recommend(ctx context.Context, start time.Time) error {
	recs := s.deps.Recommender.Recommend(ctx, s.cfg.Universe, s.cfg.MarketSymbol, s.cfg.RecommendTop)

	run := RecommendRun(recs, len(s.cfg.Universe), start, s.now().Sub(start))
	if err := s.deps.Store.SaveScanRun(ctx, run); err != nil {
		return fmt.Errorf("save recommend run: %w", err)
	}
	if recs.Scanned == 0 && len(s.cfg.Universe) > 0 {
		return ErrNothingScanned
	}

	s.trySend(func(n Notifier) error { return n.SendRecommendations(ctx, recs) })
	return nil
}

func (s *Scheduler) monitor(ctx context.Context, start time.Time) error {
	symbols, err := s.deps.Watchlist.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("list watchlist: %w", err)
	}
	if len(symbols) == 0 {
		logger := logging.FromContext(ctx)
		logger.Debug().Msg("Watchlist is empty")
		return nil
	}

	report, err := s.deps.Monitor.Check(ctx, symbols)
	if err != nil {
		return fmt.Errorf("monitor check: %w", err)
	}

	var alerts []models.Alert
	for _, r := range report.Results {
		alerts = append(alerts, r.Alerts...)
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordAlerts(alerts)
	}

	if err := s.deps.Store.SaveScanRun(ctx, MonitorRun(report, len(symbols), start, s.now().Sub(start))); err != nil {
		return fmt.Errorf("save monitor run: %w", err)
	}
	s.trySend(func(n Notifier) error { return n.SendAlerts(ctx, report, start) })

	result, err := s.deps.Watchlist.Check(ctx)
	if err != nil {
		return fmt.Errorf("watchlist check: %w", err)
	}
	s.trySend(func(n Notifier) error { return n.SendEntrySignals(ctx, result) })
	return nil
}

// trySend delivers through the notifier when notifications are on. Delivery
// failures are logged and never fail the job.
func (s *Scheduler) trySend(send func(Notifier) error) {
	if s.deps.Notifier == nil || !s.cfg.Schedule.Notify {
		return
	}
	if err := send(s.deps.Notifier); err != nil {
		s.logger.Warn().Err(err).Msg("Notification failed")
	}
}

// RecommendRun converts a recommendation into its persisted summary.
func RecommendRun(recs scan.Recommendations, requested int, start time.Time, d time.Duration) *store.ScanRun {
	top := make([]string, len(recs.Picks))
	for i, p := range recs.Picks {
		top[i] = p.Symbol
	}
	return &store.ScanRun{
		Kind:       store.RunRecommend,
		StartedAt:  start,
		Duration:   d,
		Requested:  requested,
		Returned:   recs.Scanned,
		Failures:   FailureMap(recs.Failures),
		TopSymbols: top,
	}
}

// MonitorRun converts a monitor report into its persisted summary. The top
// symbols are those that raised alerts.
func MonitorRun(report monitor.Report, requested int, start time.Time, d time.Duration) *store.ScanRun {
	var top []string
	for _, r := range report.WithAlerts() {
		top = append(top, r.Symbol)
	}
	return &store.ScanRun{
		Kind:       store.RunMonitor,
		StartedAt:  start,
		Duration:   d,
		Requested:  requested,
		Returned:   len(report.Results),
		Failures:   FailureMap(report.Failures),
		TopSymbols: top,
	}
}

// ScanRun converts an ad-hoc scan report into its persisted summary, keeping
// the top symbols by score.
func ScanRun(report scan.Report, top int) *store.ScanRun {
	ranked := report.Ranked()
	if len(ranked) > top {
		ranked = ranked[:top]
	}
	symbols := make([]string, len(ranked))
	for i, r := range ranked {
		symbols[i] = r.Symbol
	}
	return &store.ScanRun{
		Kind:       store.RunScan,
		StartedAt:  report.StartedAt,
		Duration:   report.Duration,
		Requested:  report.Requested,
		Returned:   report.Total,
		Failures:   FailureMap(report.Failures),
		TopSymbols: symbols,
	}
}

// FailureMap keys failure kinds by symbol.
func FailureMap(failures []scan.Failure) map[string]string {
	if len(failures) == 0 {
		return nil
	}
	out := make(map[string]string, len(failures))
	for _, f := range failures {
		out[f.Symbol] = string(f.Kind)
	}
	return out
}
