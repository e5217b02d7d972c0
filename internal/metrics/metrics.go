// Package metrics records scan, fetch, alert and HTTP metrics with Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/marketdata"
	"equity-scanner/internal/models"
)

const namespace = "scanner"

// Recorder implements scan.Recorder using Prometheus. Each Recorder owns its
// registry so several can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	scansTotal     prometheus.Counter
	scanDuration   prometheus.Histogram
	lastRequested  prometheus.Gauge
	lastReturned   prometheus.Gauge
	symbolsTotal   *prometheus.CounterVec
	symbolDuration prometheus.Histogram
	fetchDuration  *prometheus.HistogramVec
	alertsTotal    *prometheus.CounterVec
	jobRunsTotal   *prometheus.CounterVec
	jobLastSuccess *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates a recorder with a fresh registry that also exposes the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		scansTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of completed scans",
		}),
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a scan",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		lastRequested: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_requested_symbols",
			Help:      "Symbols requested by the most recent scan",
		}),
		lastReturned: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_returned_symbols",
			Help:      "Symbols returned by the most recent scan",
		}),
		symbolsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_total",
			Help:      "Analyzed symbols by outcome",
		}, []string{"outcome"}),
		symbolDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "symbol_duration_seconds",
			Help:      "Time spent analyzing one symbol",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Market data fetch latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "result"}),
		alertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Monitor alerts raised",
		}, []string{"type", "priority"}),
		jobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by result",
		}, []string{"job", "result"}),
		jobLastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful job run",
		}, []string{"job"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "method"}),
	}
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordSymbol records one symbol outcome. An empty kind is a success.
func (r *Recorder) RecordSymbol(kind apperrors.FailureKind, d time.Duration) {
	outcome := string(kind)
	if outcome == "" {
		outcome = "ok"
	}
	r.symbolsTotal.WithLabelValues(outcome).Inc()
	r.symbolDuration.Observe(d.Seconds())
}

// RecordScan records a completed scan.
func (r *Recorder) RecordScan(requested, returned int, d time.Duration) {
	r.scansTotal.Inc()
	r.scanDuration.Observe(d.Seconds())
	r.lastRequested.Set(float64(requested))
	r.lastReturned.Set(float64(returned))
}

// RecordFetch records a market data fetch.
func (r *Recorder) RecordFetch(kind string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = string(apperrors.Classify(err))
	}
	r.fetchDuration.WithLabelValues(kind, result).Observe(d.Seconds())
}

// RecordAlerts counts raised alerts.
func (r *Recorder) RecordAlerts(alerts []models.Alert) {
	for _, a := range alerts {
		r.alertsTotal.WithLabelValues(a.Type, string(a.Priority)).Inc()
	}
}

// RecordJob records a scheduled job run.
func (r *Recorder) RecordJob(job string, at time.Time, err error) {
	if err != nil {
		r.jobRunsTotal.WithLabelValues(job, "error").Inc()
		return
	}
	r.jobRunsTotal.WithLabelValues(job, "ok").Inc()
	r.jobLastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
}

// RecordHTTP records a served request. route should be the templated path.
func (r *Recorder) RecordHTTP(route, method string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(route, method, http.StatusText(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// InstrumentedProvider times every fetch of the wrapped provider.
type InstrumentedProvider struct {
	next     marketdata.Provider
	recorder *Recorder
}

// InstrumentProvider wraps next so fetch latency is recorded.
func InstrumentProvider(next marketdata.Provider, r *Recorder) *InstrumentedProvider {
	return &InstrumentedProvider{next: next, recorder: r}
}

// FetchOHLCV implements marketdata.Provider.
func (p *InstrumentedProvider) FetchOHLCV(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error) {
	start := time.Now()
	candles, err := p.next.FetchOHLCV(ctx, symbol, lookbackDays)
	p.recorder.RecordFetch("ohlcv", time.Since(start), err)
	return candles, err
}

// FetchFundamentals implements marketdata.Provider.
func (p *InstrumentedProvider) FetchFundamentals(ctx context.Context, symbol string) (models.RawFundamentals, error) {
	start := time.Now()
	f, err := p.next.FetchFundamentals(ctx, symbol)
	p.recorder.RecordFetch("fundamentals", time.Since(start), err)
	return f, err
}
