// Package summary explains a scan result in a few sentences through a
// chat-completion model.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"equity-scanner/internal/config"
	"equity-scanner/internal/logging"
	"equity-scanner/internal/scan"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("summaries disabled: no API key configured")

const systemPrompt = `You are an equity analyst. You receive a JSON digest of one stock's technical
indicators, scores and rule-based signals. Explain in at most five short sentences what the
numbers say about trend, momentum and risk, and whether the buy-the-dip entry rules fired.
Do not invent data that is not in the digest. Do not give personalised financial advice.`

// Summarizer produces a short natural-language explanation of a result.
type Summarizer interface {
	Summarize(ctx context.Context, r *scan.SignalResult) (string, error)
}

// New returns an OpenAI summarizer, or a Disabled one when no key is set.
func New(cfg config.SummaryConfig) Summarizer {
	if !cfg.Enabled() {
		return Disabled{}
	}
	return NewOpenAISummarizer(cfg)
}

// Disabled is the Summarizer used without credentials.
type Disabled struct{}

// Summarize always fails with ErrDisabled.
func (Disabled) Summarize(context.Context, *scan.SignalResult) (string, error) {
	return "", ErrDisabled
}

// OpenAISummarizer implements Summarizer using the OpenAI chat API.
type OpenAISummarizer struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewOpenAISummarizer creates a summarizer. BaseURL points the client at a
// compatible endpoint when set.
func NewOpenAISummarizer(cfg config.SummaryConfig) *OpenAISummarizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAISummarizer{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
}

// Summarize sends a compact digest of r and returns the model's reply.
func (s *OpenAISummarizer) Summarize(ctx context.Context, r *scan.SignalResult) (string, error) {
	if r == nil || r.Bundle == nil {
		return "", fmt.Errorf("summarize: empty result")
	}
	prompt, err := Prompt(r)
	if err != nil {
		return "", err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", logging.RedactError(fmt.Errorf("openai completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// digest is the compact rendering sent to the model.
type digest struct {
	Symbol     string                 `json:"symbol"`
	AsOf       string                 `json:"as_of"`
	Price      float64                `json:"price"`
	Trend      map[string]float64     `json:"trend"`
	Momentum   map[string]float64     `json:"momentum"`
	Volume     map[string]float64     `json:"volume"`
	Score      map[string]interface{} `json:"score"`
	Entry      map[string]interface{} `json:"entry"`
	Exit       map[string]interface{} `json:"exit,omitempty"`
	Patterns   []string               `json:"patterns,omitempty"`
	Crosses    []string               `json:"crosses,omitempty"`
	Strategies []string               `json:"strategies,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
}

// Prompt renders the user message for r.
func Prompt(r *scan.SignalResult) (string, error) {
	b := r.Bundle
	d := digest{
		Symbol: r.Symbol,
		AsOf:   b.AsOf.Format("2006-01-02"),
		Price:  b.Price,
		Trend: map[string]float64{
			"ma50_gap_pct":  b.MA50Gap,
			"ma200_gap_pct": b.MA200Gap,
			"adx":           b.ADX,
			"position_52w":  b.Position52w,
			"change_5d_pct": b.Change5d,
		},
		Momentum: map[string]float64{
			"rsi":         b.RSI,
			"stoch_k":     b.StochK,
			"macd_hist":   b.MACDHist,
			"bb_position": b.BBPosition,
			"down_days":   float64(b.DownDays),
		},
		Volume: map[string]float64{
			"ratio":         b.VolumeRatio,
			"obv_change_5d": b.OBVChange5d,
			"atr_pct":       b.ATRPct,
		},
		Score: map[string]interface{}{
			"total":     r.Score.TotalScore,
			"grade":     r.Score.Grade,
			"factor":    r.Score.FactorScore,
			"financial": r.Score.FinancialScore,
			"risk":      r.Score.RiskScore,
		},
		Entry: map[string]interface{}{
			"fired":    r.Entry.Fired,
			"strength": r.Entry.Strength,
			"met":      r.Entry.Met,
		},
		Warnings: r.Score.Warnings,
	}
	if r.Exit != nil {
		d.Exit = map[string]interface{}{
			"fired":   r.Exit.Fired,
			"reason":  r.Exit.Reason,
			"urgency": r.Exit.Urgency,
			"pnl_pct": r.Exit.PnLPct,
		}
	}
	for _, p := range r.Patterns {
		d.Patterns = append(d.Patterns, fmt.Sprintf("%s %s (%s)", p.Date.Format("2006-01-02"), p.Kind, p.Signal))
	}
	for _, c := range r.Crosses {
		d.Crosses = append(d.Crosses, string(c.Type))
	}
	for _, s := range r.Strategies {
		d.Strategies = append(d.Strategies, s.Name)
	}

	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal digest: %w", err)
	}
	return "Summarize this stock:\n" + string(data), nil
}
