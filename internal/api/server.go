// Package api serves scans, analysis, the watchlist and Prometheus metrics
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"equity-scanner/internal/config"
	"equity-scanner/internal/logging"
	"equity-scanner/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the echo HTTP server.
type Server struct {
	echo   *echo.Echo
	cfg    config.APIConfig
	logger zerolog.Logger
}

// NewServer creates a server with recovery, request logging and metrics
// middleware. A nil recorder disables /metrics and request metrics.
func NewServer(cfg config.APIConfig, h *Handler, rec *metrics.Recorder, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "api").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(recoverer(logger))
	e.Use(requestLogger(logger))
	if rec != nil {
		e.Use(instrument(rec))
		e.GET("/metrics", echo.WrapHandler(rec.Handler()))
	}

	h.RegisterRoutes(e)
	return &Server{echo: e, cfg: cfg, logger: logger}
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func recoverer(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Interface("panic", r).
						Str("path", c.Request().URL.Path).
						Bytes("stack", debug.Stack()).
						Msg("Handler panic")
					err = respond(c, http.StatusInternalServerError, "Something went wrong")
				}
			}()
			return next(c)
		}
	}
}

var requestSeq atomic.Uint64

// requestLogger tags each request with an ID, stores a request-scoped logger
// in its context and logs the outcome.
func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = fmt.Sprintf("%x-%d", start.Unix(), requestSeq.Add(1))
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			reqLogger := logger.With().Str("request_id", id).Logger()
			c.SetRequest(req.WithContext(logging.WithLogger(req.Context(), reqLogger)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			reqLogger.Debug().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("Request")
			return nil
		}
	}
}

func instrument(rec *metrics.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			route := c.Path()
			if route == "" || errors.Is(err, echo.ErrNotFound) {
				route = "unmatched"
			}
			rec.RecordHTTP(route, c.Request().Method, status, time.Since(start))
			return err
		}
	}
}
