// Package notify fans scan results and monitor alerts out to the configured
// notification channels.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"equity-scanner/internal/config"
	"equity-scanner/internal/monitor"
	"equity-scanner/internal/scan"
	"equity-scanner/internal/watchlist"
)

// Notifier is the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationChannel represents a single notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationAlert  NotificationType = "alert"
	NotificationSignal NotificationType = "signal"
	NotificationReport NotificationType = "report"
	NotificationError  NotificationType = "error"
	NotificationInfo   NotificationType = "info"
)

// NotificationLevel filters which notification types are sent.
type NotificationLevel string

const (
	LevelAll         NotificationLevel = "all"
	LevelAlertsOnly  NotificationLevel = "alerts_only"
	LevelReportsOnly NotificationLevel = "reports_only"
	LevelErrorsOnly  NotificationLevel = "errors_only"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier with the enabled channels from cfg.
// Every notification is also written to the logger.
func NewMultiNotifier(cfg config.NotifyConfig, logger zerolog.Logger) (*MultiNotifier, error) {
	mn := &MultiNotifier{
		channels: []NotificationChannel{NewLogChannel(logger)},
		level:    NotificationLevel(cfg.Level),
		logger:   logger,
	}

	if mn.level == "" {
		mn.level = LevelAll
	}

	if !cfg.Enabled {
		return mn, nil
	}

	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Kafka.Enabled {
		kc, err := NewKafkaChannel(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("kafka channel: %w", err)
		}
		mn.channels = append(mn.channels, kc)
	}

	return mn, nil
}

// NewNotifier creates a MultiNotifier with only the given channels.
func NewNotifier(level NotificationLevel, logger zerolog.Logger, channels ...NotificationChannel) *MultiNotifier {
	if level == "" {
		level = LevelAll
	}
	return &MultiNotifier{channels: channels, level: level, logger: logger}
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	var names []string
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// shouldSend checks if a notification should be sent based on the level filter.
func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelAlertsOnly:
		return notifType == NotificationAlert || notifType == NotificationSignal
	case LevelReportsOnly:
		return notifType == NotificationReport
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels. A failing channel does
// not stop delivery to the others.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				mn.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification delivery failed")
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Close closes channels that hold connections.
func (mn *MultiNotifier) Close() error {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	var errs []string
	for _, ch := range mn.channels {
		if c, ok := ch.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing notifiers: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendAlerts sends one notification for the monitor results that raised
// alerts. Nothing is sent when no alert fired.
func (mn *MultiNotifier) SendAlerts(ctx context.Context, report monitor.Report, at time.Time) error {
	fired := report.WithAlerts()
	if len(fired) == 0 {
		return nil
	}

	symbols := make([]string, len(fired))
	alerts := make([]map[string]interface{}, 0, report.AlertCount())
	for i, r := range fired {
		symbols[i] = r.Symbol
		for _, a := range r.Alerts {
			alerts = append(alerts, map[string]interface{}{
				"symbol":   a.Symbol,
				"type":     a.Type,
				"title":    a.Title,
				"priority": a.Priority,
				"signal":   a.Signal,
				"price":    r.Current.Price,
			})
		}
	}

	return mn.Send(ctx, Notification{
		Type:      NotificationAlert,
		Title:     fmt.Sprintf("%d alert(s) on %s", report.AlertCount(), strings.Join(symbols, ", ")),
		Message:   monitor.FormatAlerts(fired, at),
		Data:      map[string]interface{}{"alerts": alerts},
		Timestamp: at,
	})
}

// SendEntrySignals sends the watchlist entries whose entry signal fired.
func (mn *MultiNotifier) SendEntrySignals(ctx context.Context, result watchlist.CheckResult) error {
	fired := result.Signals()
	if len(fired) == 0 {
		return nil
	}

	var sb strings.Builder
	entries := make([]map[string]interface{}, 0, len(fired))
	for _, s := range fired {
		fmt.Fprintf(&sb, "%s $%.2f (target $%.2f, %+.1f%% since added) %s, %d/4 conditions\n",
			s.Entry.Symbol, s.Price, s.Entry.TargetPrice, s.ChangePct, s.Signal.Strength, s.Signal.Met)
		entries = append(entries, map[string]interface{}{
			"symbol":     s.Entry.Symbol,
			"price":      s.Price,
			"target":     s.Entry.TargetPrice,
			"change_pct": s.ChangePct,
			"strength":   s.Signal.Strength,
			"met":        s.Signal.Met,
		})
	}

	return mn.Send(ctx, Notification{
		Type:    NotificationSignal,
		Title:   fmt.Sprintf("Entry signal on %d watchlist symbol(s)", len(fired)),
		Message: strings.TrimRight(sb.String(), "\n"),
		Data:    map[string]interface{}{"signals": entries},
	})
}

// SendRecommendations sends the daily pick list.
func (mn *MultiNotifier) SendRecommendations(ctx context.Context, recs scan.Recommendations) error {
	return mn.Send(ctx, Notification{
		Type:      NotificationReport,
		Title:     fmt.Sprintf("Daily picks: %d of %d (market %s)", len(recs.Picks), recs.Scanned, recs.Market.Status),
		Message:   FormatRecommendations(recs),
		Data:      map[string]interface{}{"picks": pickData(recs.Picks), "market": recs.Market, "failures": len(recs.Failures)},
		Timestamp: recs.GeneratedAt,
	})
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Scanner error",
		Message: fmt.Sprintf("Context: %s\nError: %v", errContext, err),
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

// FormatRecommendations renders picks as plain text.
func FormatRecommendations(recs scan.Recommendations) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Market (%s): %s, %s\n", recs.Market.Symbol, recs.Market.Status, recs.Market.Message)
	if len(recs.Picks) == 0 {
		sb.WriteString("No symbols matched a strategy within the risk limit.")
		return sb.String()
	}
	for i, p := range recs.Picks {
		names := make([]string, len(p.Strategies))
		for j, s := range p.Strategies {
			names[j] = s.Name
		}
		fmt.Fprintf(&sb, "%d. %s $%.2f score %.1f (%s) risk %.0f: %s\n",
			i+1, p.Symbol, p.Bundle.Price, p.Score.TotalScore, p.Score.Grade, p.Score.RiskScore, strings.Join(names, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func pickData(picks []scan.SignalResult) []map[string]interface{} {
	out := make([]map[string]interface{}, len(picks))
	for i, p := range picks {
		names := make([]string, len(p.Strategies))
		for j, s := range p.Strategies {
			names[j] = s.Name
		}
		out[i] = map[string]interface{}{
			"symbol":     p.Symbol,
			"price":      p.Bundle.Price,
			"score":      p.Score.TotalScore,
			"grade":      p.Score.Grade,
			"risk":       p.Score.RiskScore,
			"strategies": names,
		}
	}
	return out
}

// LogChannel writes notifications to the structured log.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates a LogChannel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Name returns the name of the notifier.
func (l *LogChannel) Name() string { return "log" }

// IsEnabled returns whether the notifier is enabled.
func (l *LogChannel) IsEnabled() bool { return true }

// Send logs the notification.
func (l *LogChannel) Send(_ context.Context, n Notification) error {
	event := l.logger.Info()
	if n.Type == NotificationError {
		event = l.logger.Error()
	}
	event.Str("type", string(n.Type)).Str("title", n.Title).Msg("Notification")
	return nil
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notification Notification) error {
	return nil
}
