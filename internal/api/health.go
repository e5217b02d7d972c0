package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"equity-scanner/internal/marketdata"
)

const healthCheckTimeout = 3 * time.Second

// HealthStatus represents the health of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) rank() int {
	switch s {
	case HealthStatusUnhealthy:
		return 2
	case HealthStatusDegraded:
		return 1
	default:
		return 0
	}
}

// ComponentHealth is the result of one health check.
type ComponentHealth struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth is the body of /health.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	Components []ComponentHealth `json:"components,omitempty"`
}

// PingCheck reports name as unhealthy when ping fails and degraded when it
// takes longer than slow.
func PingCheck(name string, slow time.Duration, ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		err := ping(ctx)
		latency := time.Since(start)

		health := ComponentHealth{Name: name, Latency: latency.Round(time.Microsecond).String()}
		switch {
		case err != nil:
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("ping failed: %v", err)
		case slow > 0 && latency > slow:
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("slow: %v", latency)
		default:
			health.Status = HealthStatusHealthy
		}
		return health
	}
}

// BreakerCheck reports the market data provider as degraded while its
// circuit is not closed. Scans still answer from the cache then.
func BreakerCheck(b *marketdata.BreakerProvider) HealthCheck {
	return func(context.Context) ComponentHealth {
		stats := b.Stats()
		health := ComponentHealth{Name: "provider", Status: HealthStatusHealthy}
		if stats.State != marketdata.CircuitClosed {
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("circuit %s since %s, %d requests rejected",
				stats.State, stats.LastStateChange.Format(time.RFC3339), stats.TotalRejected)
		}
		return health
	}
}

// AddHealthCheck registers a check run by /health.
func (h *Handler) AddHealthCheck(check HealthCheck) {
	h.checks = append(h.checks, check)
}

// Health reports uptime and the state of the registered dependencies. Any
// unhealthy component turns the response into a 503.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	report := SystemHealth{
		Status: HealthStatusHealthy,
		Uptime: time.Since(h.started).Round(time.Second).String(),
	}
	for _, check := range h.checks {
		component := check(ctx)
		if component.Status.rank() > report.Status.rank() {
			report.Status = component.Status
		}
		report.Components = append(report.Components, component)
	}

	if report.Status == HealthStatusUnhealthy {
		return respond(c, http.StatusServiceUnavailable, report)
	}
	return ok(c, report)
}
