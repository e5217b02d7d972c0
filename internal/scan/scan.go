// Package scan runs the per-symbol analysis pipeline across a universe
// under a bounded worker pool and collects the results into a report.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/analysis/patterns"
	"equity-scanner/internal/analysis/scoring"
	"equity-scanner/internal/analysis/signals"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/logging"
	"equity-scanner/internal/marketdata"
	"equity-scanner/internal/models"
)

// DefaultWorkers is the default pool width.
const DefaultWorkers = 10

// SignalResult is the full analysis of one symbol.
type SignalResult struct {
	Symbol       string                  `json:"symbol"`
	Bundle       *indicators.Bundle      `json:"indicators"`
	Patterns     []analysis.Pattern      `json:"patterns"`
	Supports     []analysis.PriceLevel   `json:"supports"`
	Resistances  []analysis.PriceLevel   `json:"resistances"`
	Crosses      []analysis.CrossEvent   `json:"crosses"`
	Volume       analysis.VolumeSignal   `json:"volume"`
	Fundamentals scoring.Fundamentals    `json:"fundamentals"`
	Score        scoring.CompositeScore  `json:"score"`
	Entry        signals.EntrySignal     `json:"entry"`
	Exit         *signals.ExitSignal     `json:"exit,omitempty"`
	Strategies   []signals.StrategyMatch `json:"strategies"`
	AnalyzedAt   time.Time               `json:"analyzed_at"`
}

// Failure records why a symbol dropped out of a scan.
type Failure struct {
	Symbol string                `json:"symbol"`
	Kind   apperrors.FailureKind `json:"kind"`
	Error  string                `json:"error"`
}

// Report is the outcome of one scan. Total always equals len(Results);
// failed symbols appear only in Failures.
type Report struct {
	Results   []SignalResult `json:"results"`
	Total     int            `json:"total"`
	Requested int            `json:"requested"`
	Failures  []Failure      `json:"failures"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Dropped returns the number of requested symbols without a result.
func (r Report) Dropped() int {
	return r.Requested - r.Total
}

// Ranked returns the results ordered by total score, highest first.
// The report itself is left untouched.
func (r Report) Ranked() []SignalResult {
	out := make([]SignalResult, len(r.Results))
	copy(out, r.Results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score.TotalScore > out[j].Score.TotalScore
	})
	return out
}

// Options carries per-scan inputs. Targets feed the entry rule's target
// price; BuyPrices enable exit evaluation for held symbols.
type Options struct {
	Targets   map[string]float64
	BuyPrices map[string]float64
}

// Recorder observes scan outcomes. The metrics package implements it.
type Recorder interface {
	RecordSymbol(kind apperrors.FailureKind, duration time.Duration)
	RecordScan(requested, returned int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordSymbol(apperrors.FailureKind, time.Duration) {}
func (nopRecorder) RecordScan(int, int, time.Duration)                {}

// Config configures the orchestrator.
type Config struct {
	Workers      int
	LookbackDays int
}

// Orchestrator runs fetch, indicators, enrichers, scoring and signal
// evaluation for each symbol independently. A failing symbol is dropped
// from the results and recorded as a Failure; it never fails the scan.
type Orchestrator struct {
	provider  marketdata.Provider
	engine    *indicators.Engine
	candles   *patterns.CandlestickDetector
	levels    *patterns.LevelFinder
	crosses   *patterns.CrossDetector
	volume    *patterns.VolumeAnalyzer
	scorer    *scoring.Engine
	evaluator *signals.Evaluator
	cfg       Config
	logger    zerolog.Logger
	recorder  Recorder
	completed atomic.Int64
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator. Scoring and signal
// configuration is validated by the engines passed in.
func NewOrchestrator(provider marketdata.Provider, scorer *scoring.Engine, evaluator *signals.Evaluator, cfg Config, logger zerolog.Logger) (*Orchestrator, error) {
	if provider == nil || scorer == nil || evaluator == nil {
		return nil, errors.New("scan: provider, scorer and evaluator are required")
	}
	if cfg.Workers < 0 {
		return nil, apperrors.NewValidationError("workers", cfg.Workers, "must be at least 1")
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = marketdata.DefaultLookbackDays
	}

	return &Orchestrator{
		provider:  provider,
		engine:    indicators.NewEngine(),
		candles:   patterns.NewCandlestickDetector(),
		levels:    patterns.NewLevelFinder(),
		crosses:   patterns.NewCrossDetector(),
		volume:    patterns.NewVolumeAnalyzer(),
		scorer:    scorer,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    logger,
		recorder:  nopRecorder{},
		now:       time.Now,
	}, nil
}

// SetRecorder installs a metrics recorder.
func (o *Orchestrator) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	o.recorder = r
}

// Workers returns the pool width.
func (o *Orchestrator) Workers() int {
	return o.cfg.Workers
}

// Completed returns the number of per-symbol tasks finished since the
// orchestrator was created, successful or not.
func (o *Orchestrator) Completed() int64 {
	return o.completed.Load()
}

// outcome is written exactly once by the task owning its slot.
type outcome struct {
	result *SignalResult
	err    error
}

// Scan analyzes every symbol and returns the successful results in input
// order. No ranking is applied; use Report.Ranked for that.
func (o *Orchestrator) Scan(ctx context.Context, symbols []string, opts Options) Report {
	started := o.now()
	slots := make([]outcome, len(symbols))

	p := pool.New().WithMaxGoroutines(o.cfg.Workers)
	for i, symbol := range symbols {
		p.Go(func() {
			taskStarted := time.Now()
			result, err := o.analyzeSafe(ctx, symbol, opts)
			slots[i] = outcome{result: result, err: err}
			o.completed.Add(1)
			o.recorder.RecordSymbol(apperrors.Classify(err), time.Since(taskStarted))
		})
	}
	p.Wait()

	report := Report{
		Results:   make([]SignalResult, 0, len(symbols)),
		Requested: len(symbols),
		StartedAt: started,
	}
	for i, slot := range slots {
		if slot.err != nil {
			kind := apperrors.Classify(slot.err)
			report.Failures = append(report.Failures, Failure{
				Symbol: models.NormalizeSymbol(symbols[i]),
				Kind:   kind,
				Error:  slot.err.Error(),
			})
			logging.LogDrop(o.logger, symbols[i], string(kind), slot.err)
			continue
		}
		report.Results = append(report.Results, *slot.result)
	}
	report.Total = len(report.Results)
	report.Duration = o.now().Sub(started)

	logging.LogScan(o.logger, report.Requested, report.Total, report.Dropped(), report.Duration)
	o.recorder.RecordScan(report.Requested, report.Total, report.Duration)
	return report
}

// analyzeSafe is the per-symbol failure boundary.
func (o *Orchestrator) analyzeSafe(ctx context.Context, symbol string, opts Options) (result *SignalResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &apperrors.PanicError{Symbol: symbol, Value: r}
		}
	}()
	return o.analyze(ctx, symbol, opts)
}

// Analyze runs the full pipeline for a single symbol and returns its error
// instead of dropping it.
func (o *Orchestrator) Analyze(ctx context.Context, symbol string, opts Options) (*SignalResult, error) {
	return o.analyzeSafe(ctx, symbol, opts)
}

func (o *Orchestrator) analyze(ctx context.Context, symbol string, opts Options) (*SignalResult, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperrors.NewInputError("symbol", symbol, "symbol is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candles, err := o.provider.FetchOHLCV(ctx, symbol, o.cfg.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	bundle, err := o.engine.Compute(candles)
	if err != nil {
		return nil, fmt.Errorf("indicators %s: %w", symbol, err)
	}

	fundamentals, err := o.fundamentals(ctx, symbol)
	if err != nil {
		return nil, err
	}

	supports, resistances := o.levels.Find(candles)
	result := &SignalResult{
		Symbol:       symbol,
		Bundle:       bundle,
		Patterns:     o.candles.Detect(candles),
		Supports:     supports,
		Resistances:  resistances,
		Crosses:      o.crosses.Detect(bundle),
		Volume:       o.volume.Analyze(candles),
		Fundamentals: fundamentals,
		Score:        o.scorer.Score(bundle, fundamentals),
		Entry:        o.evaluator.Entry(bundle, opts.Targets[symbol]),
		Strategies:   signals.MatchStrategies(bundle),
		AnalyzedAt:   o.now(),
	}

	if buyPrice, ok := opts.BuyPrices[symbol]; ok {
		exit, err := o.evaluator.Exit(bundle, buyPrice)
		if err != nil {
			return nil, fmt.Errorf("exit %s: %w", symbol, err)
		}
		result.Exit = &exit
	}
	return result, nil
}

// fundamentals fetches and parses fundamentals. Provider failures degrade
// to all-zero fundamentals; only cancellation is propagated.
func (o *Orchestrator) fundamentals(ctx context.Context, symbol string) (scoring.Fundamentals, error) {
	raw, err := o.provider.FetchFundamentals(ctx, symbol)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return scoring.Fundamentals{}, ctxErr
		}
		o.logger.Debug().Err(err).Str("symbol", symbol).Msg("Fundamentals unavailable, scoring without them")
		return scoring.Fundamentals{}, nil
	}
	return scoring.ParseFundamentals(raw), nil
}

// Market classifies the broad market from an index symbol's bars.
// Fetch or history failures yield an unknown status.
func (o *Orchestrator) Market(ctx context.Context, symbol string) signals.MarketCondition {
	if symbol == "" {
		symbol = signals.DefaultMarketSymbol
	}
	symbol = models.NormalizeSymbol(symbol)

	candles, err := o.provider.FetchOHLCV(ctx, symbol, o.cfg.LookbackDays)
	if err != nil {
		o.logger.Warn().Err(err).Str("symbol", symbol).Msg("Market index fetch failed")
		return signals.ClassifyMarket(symbol, nil)
	}
	bundle, err := o.engine.Compute(candles)
	if err != nil {
		o.logger.Warn().Err(err).Str("symbol", symbol).Msg("Market index analysis failed")
		return signals.ClassifyMarket(symbol, nil)
	}
	return signals.ClassifyMarket(symbol, bundle)
}
