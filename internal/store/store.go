// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"equity-scanner/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Watchlist
	UpsertWatch(ctx context.Context, entry models.WatchlistEntry) error
	RemoveWatch(ctx context.Context, symbol string) (bool, error)
	GetWatch(ctx context.Context, symbol string) (*models.WatchlistEntry, error)
	GetWatchlist(ctx context.Context) ([]models.WatchlistEntry, error)

	// Monitor snapshots
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
	GetSnapshot(ctx context.Context, symbol string) (*models.Snapshot, error)

	// Alerts
	SaveAlerts(ctx context.Context, alerts []models.Alert) error
	GetRecentAlerts(ctx context.Context, symbol string, limit int) ([]models.Alert, error)

	// Scan history
	SaveScanRun(ctx context.Context, run *ScanRun) error
	GetScanRuns(ctx context.Context, limit int) ([]ScanRun, error)

	// Scheduled job bookkeeping
	GetLastRun(job string) time.Time
	SetLastRun(job string, t time.Time) error

	// Lifecycle
	Close() error
}

// ScanRunKind distinguishes the jobs that record scan history.
type ScanRunKind string

const (
	RunScan      ScanRunKind = "scan"
	RunRecommend ScanRunKind = "recommend"
	RunMonitor   ScanRunKind = "monitor"
)

// ScanRun is the persisted summary of one scan.
type ScanRun struct {
	ID         int64             `json:"id"`
	Kind       ScanRunKind       `json:"kind"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Requested  int               `json:"requested"`
	Returned   int               `json:"returned"`
	Failures   map[string]string `json:"failures,omitempty"`
	TopSymbols []string          `json:"top_symbols,omitempty"`
}
