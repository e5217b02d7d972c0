// Package marketdata provides daily bars and fundamentals for symbols,
// together with injectable bar caches and universe lists.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
)

// DefaultLookbackDays is roughly fifteen months of calendar days, enough for
// the 200-bar indicators.
const DefaultLookbackDays = 460

// Provider fetches market data for a symbol. Implementations return errors
// wrapping ErrSymbolNotFound, ErrTimeout or ErrMalformedPayload so callers
// can classify failures. Unavailable fundamental fields carry NotAvailable.
type Provider interface {
	FetchOHLCV(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error)
	FetchFundamentals(ctx context.Context, symbol string) (models.RawFundamentals, error)
}

// MemoryProvider serves fixed data from memory. It backs offline runs and tests.
type MemoryProvider struct {
	mu           sync.RWMutex
	bars         map[string][]models.Candle
	fundamentals map[string]models.RawFundamentals
	errs         map[string]error
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		bars:         make(map[string][]models.Candle),
		fundamentals: make(map[string]models.RawFundamentals),
		errs:         make(map[string]error),
	}
}

// SetBars stores the bar series for a symbol.
func (p *MemoryProvider) SetBars(symbol string, candles []models.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[models.NormalizeSymbol(symbol)] = candles
}

// SetFundamentals stores the fundamentals for a symbol.
func (p *MemoryProvider) SetFundamentals(symbol string, raw models.RawFundamentals) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fundamentals[models.NormalizeSymbol(symbol)] = raw
}

// SetError makes every fetch for the symbol fail with err.
func (p *MemoryProvider) SetError(symbol string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[models.NormalizeSymbol(symbol)] = err
}

// Symbols returns the symbols with stored bars, sorted.
func (p *MemoryProvider) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.bars))
	for s := range p.bars {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FetchOHLCV implements Provider. The lookback is ignored.
func (p *MemoryProvider) FetchOHLCV(ctx context.Context, symbol string, _ int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = models.NormalizeSymbol(symbol)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if err, ok := p.errs[symbol]; ok {
		return nil, err
	}
	bars, ok := p.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("memory provider %s: %w", symbol, apperrors.ErrSymbolNotFound)
	}
	out := make([]models.Candle, len(bars))
	copy(out, bars)
	return out, nil
}

// FetchFundamentals implements Provider. Symbols without stored fundamentals
// return an empty payload, which parses as all fields unavailable.
func (p *MemoryProvider) FetchFundamentals(ctx context.Context, symbol string) (models.RawFundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = models.NormalizeSymbol(symbol)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if err, ok := p.errs[symbol]; ok {
		return nil, err
	}
	raw := make(models.RawFundamentals, len(p.fundamentals[symbol]))
	for k, v := range p.fundamentals[symbol] {
		raw[k] = v
	}
	return raw, nil
}
