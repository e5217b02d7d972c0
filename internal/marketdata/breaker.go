package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/models"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"    // Normal operation
	CircuitOpen     CircuitState = "open"      // Failing, rejecting requests
	CircuitHalfOpen CircuitState = "half_open" // Testing if the provider recovered
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive provider failures that
	// open the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state to close.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 8,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// BreakerStats holds circuit breaker statistics.
type BreakerStats struct {
	State           CircuitState `json:"state"`
	TotalRequests   int64        `json:"total_requests"`
	TotalFailures   int64        `json:"total_failures"`
	TotalRejected   int64        `json:"total_rejected"`
	CurrentFailures int          `json:"current_failures"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// BreakerProvider stops calling a provider that keeps failing. Only
// provider-wide failures (transport errors, timeouts, rate limits, bad
// payloads) count; an unknown symbol or a short history says nothing about
// the provider's health.
type BreakerProvider struct {
	next   Provider
	config BreakerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        int
	successes       int
	openedAt        time.Time
	lastStateChange time.Time
	totalRequests   int64
	totalFailures   int64
	totalRejected   int64
}

// NewBreakerProvider wraps next with a circuit breaker.
func NewBreakerProvider(next Provider, config BreakerConfig, logger zerolog.Logger) *BreakerProvider {
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &BreakerProvider{
		next:            next,
		config:          config,
		logger:          logger.With().Str("component", "breaker").Logger(),
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// FetchOHLCV implements Provider.
func (b *BreakerProvider) FetchOHLCV(ctx context.Context, symbol string, lookbackDays int) ([]models.Candle, error) {
	if err := b.allow(symbol); err != nil {
		return nil, err
	}
	candles, err := b.next.FetchOHLCV(ctx, symbol, lookbackDays)
	b.record(ctx, err)
	return candles, err
}

// FetchFundamentals implements Provider.
func (b *BreakerProvider) FetchFundamentals(ctx context.Context, symbol string) (models.RawFundamentals, error) {
	if err := b.allow(symbol); err != nil {
		return nil, err
	}
	raw, err := b.next.FetchFundamentals(ctx, symbol)
	b.record(ctx, err)
	return raw, err
}

func (b *BreakerProvider) allow(symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen {
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.totalRejected++
			return apperrors.NewProviderError("breaker", symbol, 0, ErrCircuitOpen)
		}
		b.transitionTo(CircuitHalfOpen)
	}
	b.totalRequests++
	return nil
}

func (b *BreakerProvider) record(ctx context.Context, err error) {
	// The caller gave up; the provider is not to blame.
	if err != nil && ctx.Err() != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !countsAsFailure(err) {
		switch b.state {
		case CircuitHalfOpen:
			b.successes++
			if b.successes >= b.config.SuccessThreshold {
				b.transitionTo(CircuitClosed)
			}
		case CircuitClosed:
			b.failures = 0
		}
		return
	}

	b.totalFailures++
	switch b.state {
	case CircuitClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.transitionTo(CircuitOpen)
	}
}

func countsAsFailure(err error) bool {
	switch apperrors.Classify(err) {
	case apperrors.FailureProvider, apperrors.FailureTimeout, apperrors.FailureUnknown:
		return true
	default:
		return false
	}
}

// transitionTo must be called with mu held.
func (b *BreakerProvider) transitionTo(state CircuitState) {
	if state == CircuitOpen {
		b.openedAt = b.now()
		b.logger.Warn().Dur("cooldown", b.config.Cooldown).Msg("Provider circuit opened")
	} else if b.state == CircuitHalfOpen && state == CircuitClosed {
		b.logger.Info().Msg("Provider circuit closed")
	}
	b.state = state
	b.lastStateChange = b.now()
	b.failures = 0
	b.successes = 0
}

// State returns the current circuit state.
func (b *BreakerProvider) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns circuit breaker statistics.
func (b *BreakerProvider) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:           b.state,
		TotalRequests:   b.totalRequests,
		TotalFailures:   b.totalFailures,
		TotalRejected:   b.totalRejected,
		CurrentFailures: b.failures,
		LastStateChange: b.lastStateChange,
	}
}
