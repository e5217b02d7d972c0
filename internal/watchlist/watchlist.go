// Package watchlist tracks symbols with entry targets and checks them for
// buy-the-dip entry signals.
package watchlist

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/analysis/signals"
	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/logging"
	"equity-scanner/internal/models"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/store"
)

// Scanner is the part of the scan orchestrator the service needs.
type Scanner interface {
	Analyze(ctx context.Context, symbol string, opts scan.Options) (*scan.SignalResult, error)
	Scan(ctx context.Context, symbols []string, opts scan.Options) scan.Report
}

// Status is the current state of one watchlist entry.
type Status struct {
	Entry     models.WatchlistEntry `json:"entry"`
	Price     float64               `json:"price"`
	ChangePct float64               `json:"change_pct"`
	Signal    signals.EntrySignal   `json:"signal"`
}

// CheckResult is the outcome of checking the whole watchlist.
type CheckResult struct {
	Statuses []Status       `json:"statuses"`
	Failures []scan.Failure `json:"failures,omitempty"`
}

// Signals returns the statuses whose entry signal fired.
func (r CheckResult) Signals() []Status {
	var out []Status
	for _, s := range r.Statuses {
		if s.Signal.Fired {
			out = append(out, s)
		}
	}
	return out
}

// Service manages the persisted watchlist.
type Service struct {
	store   store.DataStore
	scanner Scanner
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a watchlist service.
func NewService(st store.DataStore, scanner Scanner, logger zerolog.Logger) *Service {
	return &Service{store: st, scanner: scanner, logger: logger, now: time.Now}
}

// DefaultTarget is the lower of the lower Bollinger band and 95% of price.
func DefaultTarget(b *indicators.Bundle) float64 {
	return indicators.Round(math.Min(b.BBLower, b.Price*0.95), 2)
}

// Add analyzes the symbol and stores it. A zero target is replaced by
// DefaultTarget computed from a fresh bundle.
func (s *Service) Add(ctx context.Context, symbol string, target float64, note string) (models.WatchlistEntry, error) {
	symbol = models.NormalizeSymbol(symbol)
	if target < 0 {
		return models.WatchlistEntry{}, apperrors.NewInputError("target", target, "must not be negative")
	}

	result, err := s.scanner.Analyze(ctx, symbol, scan.Options{})
	if err != nil {
		return models.WatchlistEntry{}, fmt.Errorf("analyze %s: %w", symbol, err)
	}
	if target == 0 {
		target = DefaultTarget(result.Bundle)
	}

	entry := models.WatchlistEntry{
		Symbol:      symbol,
		TargetPrice: target,
		AddedPrice:  result.Bundle.Price,
		Note:        note,
		AddedAt:     s.now(),
	}
	if err := s.store.UpsertWatch(ctx, entry); err != nil {
		return models.WatchlistEntry{}, err
	}
	logger := logging.WithSymbol(s.logger, symbol)
	logger.Info().Float64("target", target).Msg("Added to watchlist")
	return entry, nil
}

// Remove deletes a symbol. Removing an absent symbol fails with ErrDataNotFound.
func (s *Service) Remove(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	removed, err := s.store.RemoveWatch(ctx, symbol)
	if err != nil {
		return err
	}
	if !removed {
		return apperrors.NewDataError("watchlist", symbol, "not on watchlist", apperrors.ErrDataNotFound)
	}
	return nil
}

// List returns all entries.
func (s *Service) List(ctx context.Context) ([]models.WatchlistEntry, error) {
	return s.store.GetWatchlist(ctx)
}

// Symbols returns the watched symbols.
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	entries, err := s.store.GetWatchlist(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}
	return symbols, nil
}

// Check evaluates the entry rules for every entry against its stored target.
// Symbols that fail analysis are reported in Failures.
func (s *Service) Check(ctx context.Context) (CheckResult, error) {
	entries, err := s.store.GetWatchlist(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	if len(entries) == 0 {
		return CheckResult{}, nil
	}

	symbols := make([]string, len(entries))
	targets := make(map[string]float64, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
		targets[e.Symbol] = e.TargetPrice
	}

	report := s.scanner.Scan(ctx, symbols, scan.Options{Targets: targets})
	bySymbol := make(map[string]scan.SignalResult, len(report.Results))
	for _, r := range report.Results {
		bySymbol[r.Symbol] = r
	}

	out := CheckResult{Failures: report.Failures}
	for _, e := range entries {
		r, ok := bySymbol[e.Symbol]
		if !ok {
			continue
		}
		out.Statuses = append(out.Statuses, Status{
			Entry:     e,
			Price:     r.Bundle.Price,
			ChangePct: changePct(e.AddedPrice, r.Bundle.Price),
			Signal:    r.Entry,
		})
	}
	return out, nil
}

func changePct(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return indicators.Round((to-from)/from*100, 1)
}
