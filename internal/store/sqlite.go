// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	mu       sync.RWMutex
	runTimes map[string]time.Time
	now      func() time.Time
}

// NewSQLiteStore creates a new SQLite-based data store, creating the parent
// directory when needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.DatabaseError("failed to open database", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:       db,
		runTimes: make(map[string]time.Time),
		now:      time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.DatabaseError("failed to initialize schema", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Cached daily bar series keyed by provider cache key
	CREATE TABLE IF NOT EXISTS bar_cache (
		key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Watchlist with entry targets
	CREATE TABLE IF NOT EXISTS watchlist (
		symbol TEXT PRIMARY KEY,
		target_price REAL NOT NULL DEFAULT 0,
		added_price REAL NOT NULL DEFAULT 0,
		note TEXT,
		added_at DATETIME NOT NULL
	);

	-- Latest monitor snapshot per symbol
	CREATE TABLE IF NOT EXISTS snapshots (
		symbol TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		checked_at DATETIME NOT NULL
	);

	-- Raised monitor alerts
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		detail TEXT,
		signal TEXT,
		priority TEXT NOT NULL,
		raised_at DATETIME NOT NULL
	);

	-- Scan run history
	CREATE TABLE IF NOT EXISTS scan_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		requested INTEGER NOT NULL,
		returned INTEGER NOT NULL,
		failures TEXT,
		top_symbols TEXT
	);

	-- Last run per scheduled job
	CREATE TABLE IF NOT EXISTS job_runs (
		job TEXT PRIMARY KEY,
		last_run DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);
	CREATE INDEX IF NOT EXISTS idx_alerts_raised ON alerts(raised_at);
	CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================================
// Bar Cache Methods
// ============================================================================

// BarCache is a bar series cache persisted in SQLite. It satisfies
// marketdata.Cache.
type BarCache struct {
	store *SQLiteStore
	ttl   time.Duration
}

// BarCache returns a cache view over the bar_cache table.
func (s *SQLiteStore) BarCache(ttl time.Duration) *BarCache {
	return &BarCache{store: s, ttl: ttl}
}

// Get returns the cached series, or ErrCacheMiss when absent or expired.
func (c *BarCache) Get(ctx context.Context, key string) ([]models.Candle, error) {
	var payload string
	var expiresAt time.Time
	err := c.store.db.QueryRowContext(ctx, `
		SELECT payload, expires_at FROM bar_cache WHERE key = ?
	`, key).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrCacheMiss
	}
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query bar cache", err)
	}
	if c.store.now().After(expiresAt) {
		return nil, apperrors.ErrCacheMiss
	}

	var candles []models.Candle
	if err := json.Unmarshal([]byte(payload), &candles); err != nil {
		return nil, fmt.Errorf("failed to decode cached bars: %w", err)
	}
	return candles, nil
}

// Set stores a series under key.
func (c *BarCache) Set(ctx context.Context, key string, candles []models.Candle) error {
	payload, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	now := c.store.now()
	_, err = c.store.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bar_cache (key, payload, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, key, string(payload), now.Add(c.ttl), now)
	if err != nil {
		return apperrors.DatabaseError("failed to save bar cache", err)
	}
	return nil
}

// PurgeExpiredBars deletes expired cache rows and returns how many were removed.
func (s *SQLiteStore) PurgeExpiredBars(ctx context.Context) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, expires_at FROM bar_cache`)
	if err != nil {
		return 0, apperrors.DatabaseError("failed to query bar cache", err)
	}
	var expired []string
	now := s.now()
	for rows.Next() {
		var key string
		var expiresAt time.Time
		if err := rows.Scan(&key, &expiresAt); err != nil {
			rows.Close()
			return 0, apperrors.DatabaseError("failed to scan bar cache row", err)
		}
		if now.After(expiresAt) {
			expired = append(expired, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var removed int64
	for _, key := range expired {
		result, err := s.db.ExecContext(ctx, `DELETE FROM bar_cache WHERE key = ?`, key)
		if err != nil {
			return removed, apperrors.DatabaseError("failed to purge bar cache", err)
		}
		n, _ := result.RowsAffected()
		removed += n
	}
	return removed, nil
}

// ============================================================================
// Watchlist Methods
// ============================================================================

// UpsertWatch adds a symbol to the watchlist or updates its target and note.
func (s *SQLiteStore) UpsertWatch(ctx context.Context, entry models.WatchlistEntry) error {
	if entry.AddedAt.IsZero() {
		entry.AddedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchlist (symbol, target_price, added_price, note, added_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			target_price = excluded.target_price,
			added_price = excluded.added_price,
			note = excluded.note
	`, models.NormalizeSymbol(entry.Symbol), entry.TargetPrice, entry.AddedPrice, entry.Note, entry.AddedAt)
	if err != nil {
		return apperrors.DatabaseError("failed to add to watchlist", err)
	}
	return nil
}

// RemoveWatch removes a symbol and reports whether it was present.
func (s *SQLiteStore) RemoveWatch(ctx context.Context, symbol string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM watchlist WHERE symbol = ?
	`, models.NormalizeSymbol(symbol))
	if err != nil {
		return false, apperrors.DatabaseError("failed to remove from watchlist", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// GetWatch returns one watchlist entry or an error wrapping ErrDataNotFound.
func (s *SQLiteStore) GetWatch(ctx context.Context, symbol string) (*models.WatchlistEntry, error) {
	symbol = models.NormalizeSymbol(symbol)
	var e models.WatchlistEntry
	var note sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, target_price, added_price, note, added_at FROM watchlist WHERE symbol = ?
	`, symbol).Scan(&e.Symbol, &e.TargetPrice, &e.AddedPrice, &note, &e.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDataError("watchlist", symbol, "not on watchlist", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query watchlist", err)
	}
	e.Note = note.String
	return &e, nil
}

// GetWatchlist returns all entries in the order they were added.
func (s *SQLiteStore) GetWatchlist(ctx context.Context) ([]models.WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, target_price, added_price, note, added_at FROM watchlist ORDER BY added_at ASC, symbol ASC
	`)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query watchlist", err)
	}
	defer rows.Close()

	var entries []models.WatchlistEntry
	for rows.Next() {
		var e models.WatchlistEntry
		var note sql.NullString
		if err := rows.Scan(&e.Symbol, &e.TargetPrice, &e.AddedPrice, &note, &e.AddedAt); err != nil {
			return nil, apperrors.DatabaseError("failed to scan watchlist entry", err)
		}
		e.Note = note.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// ============================================================================
// Snapshot Methods
// ============================================================================

// SaveSnapshot replaces the stored snapshot for the symbol.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	snap.Symbol = models.NormalizeSymbol(snap.Symbol)
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (symbol, payload, checked_at) VALUES (?, ?, ?)
	`, snap.Symbol, string(payload), snap.CheckedAt)
	if err != nil {
		return apperrors.DatabaseError("failed to save snapshot", err)
	}
	return nil
}

// GetSnapshot returns the previous snapshot or an error wrapping ErrDataNotFound.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	symbol = models.NormalizeSymbol(symbol)
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM snapshots WHERE symbol = ?
	`, symbol).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDataError("snapshot", symbol, "no previous snapshot", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query snapshot", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, apperrors.Wrapf(err, "failed to decode snapshot for %s", symbol)
	}
	return &snap, nil
}

// ============================================================================
// Alerts Methods
// ============================================================================

// SaveAlerts appends alerts in a single transaction.
func (s *SQLiteStore) SaveAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (symbol, type, title, detail, signal, priority, raised_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperrors.DatabaseError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		_, err := stmt.ExecContext(ctx, a.Symbol, a.Type, a.Title, a.Detail, a.Signal, string(a.Priority), a.RaisedAt)
		if err != nil {
			return apperrors.DatabaseError("failed to insert alert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("failed to commit transaction", err)
	}
	return nil
}

// GetRecentAlerts returns the newest alerts first. An empty symbol matches all.
func (s *SQLiteStore) GetRecentAlerts(ctx context.Context, symbol string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT symbol, type, title, detail, signal, priority, raised_at FROM alerts`
	args := []interface{}{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, models.NormalizeSymbol(symbol))
	}
	query += ` ORDER BY raised_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query alerts", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var detail, signal sql.NullString
		var priority string
		if err := rows.Scan(&a.Symbol, &a.Type, &a.Title, &detail, &signal, &priority, &a.RaisedAt); err != nil {
			return nil, apperrors.DatabaseError("failed to scan alert", err)
		}
		a.Detail, a.Signal, a.Priority = detail.String, signal.String, models.AlertPriority(priority)
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// ============================================================================
// Scan History Methods
// ============================================================================

// SaveScanRun records a scan summary and sets run.ID.
func (s *SQLiteStore) SaveScanRun(ctx context.Context, run *ScanRun) error {
	failures, _ := json.Marshal(run.Failures)
	top, _ := json.Marshal(run.TopSymbols)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (kind, started_at, duration_ms, requested, returned, failures, top_symbols)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(run.Kind), run.StartedAt, run.Duration.Milliseconds(), run.Requested, run.Returned, string(failures), string(top))
	if err != nil {
		return apperrors.DatabaseError("failed to save scan run", err)
	}
	run.ID, _ = result.LastInsertId()
	return nil
}

// GetScanRuns returns the most recent scan runs, newest first.
func (s *SQLiteStore) GetScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, started_at, duration_ms, requested, returned, failures, top_symbols
		FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query scan runs", err)
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		var r ScanRun
		var kind string
		var durationMS int64
		var failures, top sql.NullString
		if err := rows.Scan(&r.ID, &kind, &r.StartedAt, &durationMS, &r.Requested, &r.Returned, &failures, &top); err != nil {
			return nil, apperrors.DatabaseError("failed to scan scan run", err)
		}
		r.Kind = ScanRunKind(kind)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if failures.Valid {
			json.Unmarshal([]byte(failures.String), &r.Failures)
		}
		if top.Valid {
			json.Unmarshal([]byte(top.String), &r.TopSymbols)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// ============================================================================
// Job Run Methods
// ============================================================================

// GetLastRun returns the last run time for a scheduled job.
func (s *SQLiteStore) GetLastRun(job string) time.Time {
	s.mu.RLock()
	if t, ok := s.runTimes[job]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastRun time.Time
	err := s.db.QueryRow(`
		SELECT last_run FROM job_runs WHERE job = ?
	`, job).Scan(&lastRun)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.runTimes[job] = lastRun
	s.mu.Unlock()

	return lastRun
}

// SetLastRun sets the last run time for a scheduled job.
func (s *SQLiteStore) SetLastRun(job string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO job_runs (job, last_run, updated_at)
		VALUES (?, ?, ?)
	`, job, t, s.now())
	if err != nil {
		return apperrors.DatabaseError("failed to set last run", err)
	}

	s.mu.Lock()
	s.runTimes[job] = t
	s.mu.Unlock()

	return nil
}
