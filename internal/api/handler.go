package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"equity-scanner/internal/models"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/scheduler"
	"equity-scanner/internal/store"
	"equity-scanner/internal/stream"
	"equity-scanner/internal/summary"
	"equity-scanner/internal/watchlist"
)

// Scanner is the part of the scan orchestrator the API serves.
type Scanner interface {
	Scan(ctx context.Context, symbols []string, opts scan.Options) scan.Report
	Analyze(ctx context.Context, symbol string, opts scan.Options) (*scan.SignalResult, error)
	Recommend(ctx context.Context, symbols []string, marketSymbol string, limit int) scan.Recommendations
}

// Watchlist manages watched symbols.
type Watchlist interface {
	Add(ctx context.Context, symbol string, target float64, note string) (models.WatchlistEntry, error)
	Remove(ctx context.Context, symbol string) error
	List(ctx context.Context) ([]models.WatchlistEntry, error)
	Check(ctx context.Context) (watchlist.CheckResult, error)
}

// History reads and records persisted runs and alerts.
type History interface {
	SaveScanRun(ctx context.Context, run *store.ScanRun) error
	GetScanRuns(ctx context.Context, limit int) ([]store.ScanRun, error)
	GetRecentAlerts(ctx context.Context, symbol string, limit int) ([]models.Alert, error)
}

// Options are the request limits and scan defaults of the handler.
type Options struct {
	MaxSymbols   int
	Universe     []string
	MarketSymbol string
	RecommendTop int
}

// Handler serves the scanner over HTTP.
type Handler struct {
	scanner    Scanner
	watchlist  Watchlist
	history    History
	summarizer summary.Summarizer
	opts       Options
	logger     zerolog.Logger
	started    time.Time
	checks     []HealthCheck
	hub        *stream.Hub
}

// NewHandler creates a handler. A nil summarizer disables summaries.
func NewHandler(scanner Scanner, wl Watchlist, history History, summarizer summary.Summarizer, opts Options, logger zerolog.Logger) *Handler {
	if summarizer == nil {
		summarizer = summary.Disabled{}
	}
	return &Handler{
		scanner:    scanner,
		watchlist:  wl,
		history:    history,
		summarizer: summarizer,
		opts:       opts,
		logger:     logger,
		started:    time.Now(),
	}
}

// RegisterRoutes mounts the API routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.POST("/scan", h.Scan)
	g.GET("/analyze/:symbol", h.Analyze)
	g.GET("/recommend", h.Recommend)
	g.GET("/watchlist", h.ListWatchlist)
	g.POST("/watchlist", h.AddWatch)
	g.DELETE("/watchlist/:symbol", h.RemoveWatch)
	g.GET("/watchlist/check", h.CheckWatchlist)
	g.GET("/alerts", h.Alerts)
	g.GET("/runs", h.Runs)
	g.GET("/stream", h.Stream)
}

// Scan runs a scan over the requested symbols or the universe.
func (h *Handler) Scan(c echo.Context) error {
	req := &ScanRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}

	symbols := models.DedupeSymbols(req.Symbols)
	if len(symbols) == 0 {
		symbols = h.opts.Universe
	}
	if h.opts.MaxSymbols > 0 && len(symbols) > h.opts.MaxSymbols {
		return badRequest(c, []FieldError{{
			Code:    "ERR_MAX",
			Field:   "Symbols",
			Message: fmt.Sprintf("at most %d symbols per scan", h.opts.MaxSymbols),
		}})
	}

	report := h.scanner.Scan(c.Request().Context(), symbols, scan.Options{
		Targets:   normalizeKeys(req.Targets),
		BuyPrices: normalizeKeys(req.BuyPrices),
	})

	top := req.Top
	if top == 0 {
		top = h.opts.RecommendTop
	}
	if err := h.history.SaveScanRun(c.Request().Context(), scheduler.ScanRun(report, top)); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to record scan run")
	}

	if req.Top > 0 {
		ranked := report.Ranked()
		if len(ranked) > req.Top {
			ranked = ranked[:req.Top]
		}
		report.Results = ranked
		report.Total = len(ranked)
	}
	return ok(c, report)
}

// AnalyzeResponse is the reply of GET /api/analyze/:symbol.
type AnalyzeResponse struct {
	Result       *scan.SignalResult `json:"result"`
	Summary      string             `json:"summary,omitempty"`
	SummaryError string             `json:"summary_error,omitempty"`
}

// Analyze runs the full pipeline for one symbol.
func (h *Handler) Analyze(c echo.Context) error {
	req := &AnalyzeRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}

	symbol := models.NormalizeSymbol(req.Symbol)
	var opts scan.Options
	if req.Target > 0 {
		opts.Targets = map[string]float64{symbol: req.Target}
	}
	if req.BuyPrice > 0 {
		opts.BuyPrices = map[string]float64{symbol: req.BuyPrice}
	}

	ctx := c.Request().Context()
	result, err := h.scanner.Analyze(ctx, symbol, opts)
	if err != nil {
		return h.failure(c, err)
	}

	resp := AnalyzeResponse{Result: result}
	if req.Summary {
		text, err := h.summarizer.Summarize(ctx, result)
		if err != nil {
			if !errors.Is(err, summary.ErrDisabled) {
				h.logger.Warn().Err(err).Str("symbol", symbol).Msg("Summary failed")
			}
			resp.SummaryError = err.Error()
		}
		resp.Summary = text
	}
	return ok(c, resp)
}

// Recommend returns the daily picks over the universe.
func (h *Handler) Recommend(c echo.Context) error {
	req := &RecommendRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}
	limit := req.Limit
	if limit == 0 {
		limit = h.opts.RecommendTop
	}
	return ok(c, h.scanner.Recommend(c.Request().Context(), h.opts.Universe, h.opts.MarketSymbol, limit))
}

// ListWatchlist returns all watched symbols.
func (h *Handler) ListWatchlist(c echo.Context) error {
	entries, err := h.watchlist.List(c.Request().Context())
	if err != nil {
		return h.failure(c, err)
	}
	if entries == nil {
		entries = []models.WatchlistEntry{}
	}
	return ok(c, entries)
}

// AddWatch adds or updates a watched symbol.
func (h *Handler) AddWatch(c echo.Context) error {
	req := &WatchRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}
	entry, err := h.watchlist.Add(c.Request().Context(), req.Symbol, req.Target, req.Note)
	if err != nil {
		return h.failure(c, err)
	}
	return respond(c, http.StatusCreated, entry)
}

// RemoveWatch removes a watched symbol.
func (h *Handler) RemoveWatch(c echo.Context) error {
	req := &SymbolParam{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}
	if err := h.watchlist.Remove(c.Request().Context(), req.Symbol); err != nil {
		return h.failure(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CheckWatchlist evaluates the entry rules for every watched symbol.
func (h *Handler) CheckWatchlist(c echo.Context) error {
	result, err := h.watchlist.Check(c.Request().Context())
	if err != nil {
		return h.failure(c, err)
	}
	return ok(c, result)
}

// Alerts returns recent monitor alerts, optionally for one symbol.
func (h *Handler) Alerts(c echo.Context) error {
	req := &AlertsRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}
	alerts, err := h.history.GetRecentAlerts(c.Request().Context(), models.NormalizeSymbol(req.Symbol), req.Limit)
	if err != nil {
		return h.failure(c, err)
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return ok(c, alerts)
}

// Runs returns the most recent scan runs.
func (h *Handler) Runs(c echo.Context) error {
	req := &RunsRequest{}
	if errs := bindRequest(c, req); errs != nil {
		return badRequest(c, errs)
	}
	runs, err := h.history.GetScanRuns(c.Request().Context(), req.Limit)
	if err != nil {
		return h.failure(c, err)
	}
	if runs == nil {
		runs = []store.ScanRun{}
	}
	return ok(c, runs)
}

func normalizeKeys(m map[string]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[models.NormalizeSymbol(k)] = v
	}
	return out
}
