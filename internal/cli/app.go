package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"equity-scanner/internal/analysis/scoring"
	"equity-scanner/internal/analysis/signals"
	"equity-scanner/internal/config"
	"equity-scanner/internal/marketdata"
	"equity-scanner/internal/metrics"
	"equity-scanner/internal/monitor"
	"equity-scanner/internal/notify"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/store"
	"equity-scanner/internal/summary"
	"equity-scanner/internal/watchlist"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	// Provider replaces the Yahoo client when set.
	Provider marketdata.Provider

	services *Services
	closers  []func() error
}

// Services is the wired service graph shared by the commands.
type Services struct {
	Store      *store.SQLiteStore
	Scanner    *scan.Orchestrator
	Watchlist  *watchlist.Service
	Monitor    *monitor.Monitor
	Notifier   *notify.MultiNotifier
	Summarizer summary.Summarizer
	Metrics    *metrics.Recorder
	Universe   marketdata.Universe

	// Optional layers, nil when disabled.
	Breaker *marketdata.BreakerProvider
	Redis   *marketdata.RedisCache
}

// Services builds the service graph on first use.
func (a *App) Services(ctx context.Context) (*Services, error) {
	if a.services != nil {
		return a.services, nil
	}
	if a.Config == nil {
		return nil, errors.New("configuration not loaded")
	}
	svc, err := a.build(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.services = svc
	return svc, nil
}

func (a *App) build(ctx context.Context) (*Services, error) {
	cfg := a.Config
	svc := &Services{Metrics: metrics.New()}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	svc.Store = st
	a.closers = append(a.closers, st.Close)

	provider, err := a.provider(ctx, svc)
	if err != nil {
		return nil, err
	}

	scoringCfg, err := cfg.ScoringConfig()
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.NewEngine(scoringCfg)
	if err != nil {
		return nil, err
	}
	evaluator, err := signals.NewEvaluator(cfg.Signals.Entry(), cfg.Signals.Exit())
	if err != nil {
		return nil, err
	}

	svc.Scanner, err = scan.NewOrchestrator(provider, scorer, evaluator, scan.Config{
		Workers:      cfg.Scan.Workers,
		LookbackDays: cfg.Scan.LookbackDays,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	svc.Scanner.SetRecorder(svc.Metrics)

	svc.Watchlist = watchlist.NewService(st, svc.Scanner, a.Logger)
	svc.Monitor, err = monitor.New(st, svc.Scanner, cfg.Monitor.Thresholds(), a.Logger)
	if err != nil {
		return nil, err
	}

	svc.Notifier, err = notify.NewMultiNotifier(cfg.Notify, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, svc.Notifier.Close)

	svc.Summarizer = summary.New(cfg.Summary)

	svc.Universe = marketdata.DefaultUniverse()
	if cfg.Scan.Universe != "" {
		svc.Universe, err = marketdata.LoadUniverse(cfg.Scan.Universe)
		if err != nil {
			return nil, fmt.Errorf("load universe: %w", err)
		}
	}

	a.Logger.Debug().
		Str("cache", cfg.Cache.Backend).
		Int("workers", svc.Scanner.Workers()).
		Int("universe", len(svc.Universe.Symbols)).
		Strs("channels", svc.Notifier.Channels()).
		Msg("Services initialized")
	return svc, nil
}

// provider assembles fetcher, breaker, metrics and cache layers.
func (a *App) provider(ctx context.Context, svc *Services) (marketdata.Provider, error) {
	cfg := a.Config

	base := a.Provider
	if base == nil {
		yc := marketdata.DefaultYahooConfig()
		yc.Timeout = cfg.Scan.FetchTimeout
		yc.Retry.MaxAttempts = cfg.Scan.RetryAttempts
		base = marketdata.NewYahooClient(yc, a.Logger)
	}
	if cfg.Scan.BreakerFailures > 0 {
		bc := marketdata.DefaultBreakerConfig()
		bc.FailureThreshold = cfg.Scan.BreakerFailures
		bc.Cooldown = cfg.Scan.BreakerCooldown
		svc.Breaker = marketdata.NewBreakerProvider(base, bc, a.Logger)
		base = svc.Breaker
	}
	instrumented := metrics.InstrumentProvider(base, svc.Metrics)

	var cache marketdata.Cache
	switch cfg.Cache.Backend {
	case "memory":
		cache = marketdata.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxSize)
	case "redis":
		rc, err := marketdata.NewRedisCache(ctx, marketdata.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Prefix:   cfg.Cache.RedisPrefix,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		svc.Redis = rc
		cache = rc
	case "sqlite":
		if n, err := svc.Store.PurgeExpiredBars(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to purge expired bars")
		} else if n > 0 {
			a.Logger.Debug().Int64("purged", n).Msg("Purged expired bars")
		}
		cache = svc.Store.BarCache(cfg.Cache.TTL)
	default:
		return instrumented, nil
	}
	return marketdata.NewCachingProvider(instrumented, cache, a.Logger), nil
}

// Close releases everything the services opened, last opened first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.services = nil
	return errors.Join(errs...)
}
