package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"equity-scanner/internal/analysis"
	"equity-scanner/internal/analysis/indicators"
	"equity-scanner/internal/analysis/scoring"
	"equity-scanner/internal/analysis/signals"
	"equity-scanner/internal/config"
	"equity-scanner/internal/scan"
)

func sampleResult() *scan.SignalResult {
	asOf := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	return &scan.SignalResult{
		Symbol:   "AAPL",
		Bundle:   &indicators.Bundle{AsOf: asOf, Price: 170.5, RSI: 31.2, MA50Gap: -4.1},
		Patterns: []analysis.Pattern{{Date: asOf, Kind: analysis.PatternHammer, Signal: analysis.SignalBuy}},
		Score:    scoring.CompositeScore{TotalScore: 64.2, Grade: scoring.GradeB, RiskScore: 22},
		Entry:    signals.EntrySignal{Fired: true, Strength: signals.StrengthModerate, Met: 3},
		Strategies: []signals.StrategyMatch{
			{Name: signals.StrategyBollingerBounce},
		},
	}
}

func TestNew_DisabledWithoutKey(t *testing.T) {
	s := New(config.SummaryConfig{Model: "gpt-4o-mini"})
	if _, ok := s.(Disabled); !ok {
		t.Fatalf("expected Disabled, got %T", s)
	}
	if _, err := s.Summarize(context.Background(), sampleResult()); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestPrompt_ContainsDigest(t *testing.T) {
	prompt, err := Prompt(sampleResult())
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	body := strings.TrimPrefix(prompt, "Summarize this stock:\n")
	var d map[string]interface{}
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		t.Fatalf("digest is not JSON: %v", err)
	}
	if d["symbol"] != "AAPL" || d["as_of"] != "2024-03-13" || d["price"] != 170.5 {
		t.Errorf("digest = %v", d)
	}
	if _, ok := d["exit"]; ok {
		t.Error("exit must be omitted without a position")
	}
	if !strings.Contains(body, "hammer") || !strings.Contains(body, signals.StrategyBollingerBounce) {
		t.Errorf("patterns or strategies missing: %s", body)
	}
}

func TestOpenAISummarizer_Summarize(t *testing.T) {
	var req struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth = %s", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  AAPL looks oversold.  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	s := New(config.SummaryConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "gpt-4o-mini", MaxTokens: 200, Timeout: 5 * time.Second})
	got, err := s.Summarize(context.Background(), sampleResult())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "AAPL looks oversold." {
		t.Errorf("summary = %q", got)
	}
	if req.Model != "gpt-4o-mini" || req.MaxTokens != 200 || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(req.Messages[1].Content, `"symbol":"AAPL"`) {
		t.Errorf("user message = %s", req.Messages[1].Content)
	}
}

func TestOpenAISummarizer_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	s := NewOpenAISummarizer(config.SummaryConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := s.Summarize(context.Background(), sampleResult()); err == nil {
		t.Error("expected error for empty choices")
	}
	if _, err := s.Summarize(context.Background(), &scan.SignalResult{Symbol: "X"}); err == nil {
		t.Error("expected error without a bundle")
	}
}
