package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// TerminalChannel prints notifications to a terminal, optionally ringing
// the bell for alerts and entry signals.
type TerminalChannel struct {
	out          io.Writer
	mu           sync.Mutex
	colorEnabled bool
	bellEnabled  bool
}

// NewTerminalChannel creates a TerminalChannel writing to out.
func NewTerminalChannel(out io.Writer, colorEnabled, bellEnabled bool) *TerminalChannel {
	return &TerminalChannel{out: out, colorEnabled: colorEnabled, bellEnabled: bellEnabled}
}

// Name returns the name of the notifier.
func (tc *TerminalChannel) Name() string { return "terminal" }

// IsEnabled returns whether the notifier is enabled.
func (tc *TerminalChannel) IsEnabled() bool { return tc.out != nil }

// Send prints the notification.
func (tc *TerminalChannel) Send(_ context.Context, n Notification) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.bellEnabled && (n.Type == NotificationAlert || n.Type == NotificationSignal) {
		fmt.Fprint(tc.out, "\a")
	}
	_, err := fmt.Fprintln(tc.out, FormatNotification(n, tc.colorEnabled))
	return err
}

// FormatNotification formats a notification for terminal display.
func FormatNotification(n Notification, colorEnabled bool) string {
	var indicator string
	var c *color.Color

	switch n.Type {
	case NotificationAlert:
		indicator, c = "ALERT", color.New(color.FgYellow, color.Bold)
	case NotificationSignal:
		indicator, c = "SIGNAL", color.New(color.FgCyan, color.Bold)
	case NotificationReport:
		indicator, c = "REPORT", color.New(color.FgGreen)
	case NotificationError:
		indicator, c = "ERROR", color.New(color.FgRed, color.Bold)
	default:
		indicator, c = "INFO", color.New(color.FgWhite)
	}
	if colorEnabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}

	var sb strings.Builder
	header := fmt.Sprintf("[%s] %s", n.Timestamp.Format("15:04:05"), indicator)
	sb.WriteString(c.Sprint(header))
	sb.WriteString(" | ")
	sb.WriteString(n.Title)
	if n.Message != "" {
		for _, line := range strings.Split(n.Message, "\n") {
			sb.WriteString("\n    ")
			sb.WriteString(line)
		}
	}
	return sb.String()
}
