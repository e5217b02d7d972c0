package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
	"equity-scanner/pkg/utils"
)

// CachingProvider serves bar series from a Cache and falls back to the
// wrapped Provider on a miss. Fundamentals are passed through.
// Cache failures never fail a fetch.
type CachingProvider struct {
	next   Provider
	cache  Cache
	logger zerolog.Logger
	now    func() time.Time
}

// NewCachingProvider wraps next with cache.
func NewCachingProvider(next Provider, cache Cache, logger zerolog.Logger) *CachingProvider {
	return &CachingProvider{next: next, cache: cache, logger: logger, now: time.Now}
}

// FetchOHLCV implements Provider.
func (p *CachingProvider) FetchOHLCV(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error) {
	key := CacheKey(symbol, lookbackDays, utils.LastTradingDay(p.now()))

	candles, err := p.cache.Get(ctx, key)
	if err == nil {
		return candles, nil
	}
	if !errors.Is(err, apperrors.ErrCacheMiss) {
		p.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}

	candles, err = p.next.FetchOHLCV(ctx, symbol, lookbackDays)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, candles); err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return candles, nil
}

// FetchFundamentals implements Provider.
func (p *CachingProvider) FetchFundamentals(ctx context.Context, symbol string) (models.RawFundamentals, error) {
	return p.next.FetchFundamentals(ctx, symbol)
}
