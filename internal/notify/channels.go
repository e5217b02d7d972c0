package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"equity-scanner/internal/config"
	"equity-scanner/internal/logging"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	channelTimeout     = 10 * time.Second

	// Telegram rejects messages longer than this many characters.
	telegramMaxText = 4096
)

// postJSON sends v as a JSON POST and returns the response body of a
// non-2xx reply inside the error. Credentials embedded in the URL are
// masked out of transport errors.
func postJSON(ctx context.Context, client *http.Client, url string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return logging.RedactError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "EquityScanner/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return logging.RedactError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return nil
}

// StatusError is a non-2xx reply from a notification endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// WebhookNotifier posts notifications as JSON to a URL.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

type webhookPayload struct {
	Source    string                 `json:"source"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// NewWebhookNotifier creates a webhook channel.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: channelTimeout},
	}
}

func (w *WebhookNotifier) Name() string   { return "webhook" }
func (w *WebhookNotifier) IsEnabled() bool { return w.enabled }

// Send posts n to the webhook.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}
	err := postJSON(ctx, w.client, w.url, webhookPayload{
		Source:    "equity-scanner",
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// TelegramNotifier sends notifications through a Telegram bot.
type TelegramNotifier struct {
	apiURL   string
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewTelegramNotifier creates a Telegram channel. It stays disabled until
// both the bot token and the chat ID are set.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultTelegramAPI
	}
	return &TelegramNotifier{
		apiURL:   apiURL,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		client:   &http.Client{Timeout: channelTimeout},
	}
}

func (t *TelegramNotifier) Name() string   { return "telegram" }
func (t *TelegramNotifier) IsEnabled() bool { return t.enabled }

// Send posts n as an HTML message. Long reports go out as several messages.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}

	header := "<b>" + escapeHTML(n.Title) + "</b>\n\n"
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)

	for i, part := range splitText(escapeHTML(n.Message), telegramMaxText-utf8.RuneCountInString(header)) {
		text := part
		if i == 0 {
			text = header + part
		}
		err := postJSON(ctx, t.client, url, telegramMessage{
			ChatID:                t.chatID,
			Text:                  text,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		})
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
	}
	return nil
}

// splitText breaks s into chunks of at most max runes, preferring line
// boundaries. It always returns at least one chunk.
func splitText(s string, max int) []string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return []string{s}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if chunk := strings.TrimRight(cur.String(), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		cur.Reset()
		curLen = 0
	}

	for _, line := range strings.SplitAfter(s, "\n") {
		lineLen := utf8.RuneCountInString(line)
		if curLen+lineLen > max {
			flush()
		}
		// A single line longer than max is cut hard.
		for lineLen > max {
			r := []rune(line)
			chunks = append(chunks, string(r[:max]))
			line = string(r[max:])
			lineLen -= max
		}
		cur.WriteString(line)
		curLen += lineLen
	}
	flush()
	return chunks
}

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
