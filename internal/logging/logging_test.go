package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.GetLevel() != zerolog.Disabled {
		t.Errorf("expected Nop logger without a context value, got level %v", got.GetLevel())
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	fromCtx := FromContext(WithLogger(context.Background(), logger))
	fromCtx.Info().Msg("hello")
	if buf.Len() == 0 {
		t.Error("expected logger from context to write")
	}
}

func TestLogScan(t *testing.T) {
	var buf bytes.Buffer
	LogScan(zerolog.New(&buf), 10, 7, 3, 2*time.Second)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["event"] != "scan" || entry["requested"] != float64(10) || entry["dropped"] != float64(3) {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestLogFetch_Error(t *testing.T) {
	var buf bytes.Buffer
	LogFetch(zerolog.New(&buf).Level(zerolog.DebugLevel), "AAPL", 0, time.Millisecond, errors.New("boom"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["error"] != "boom" || entry["symbol"] != "AAPL" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewLoggerWithConfig_NoWriters(t *testing.T) {
	logger := NewLoggerWithConfig(LogConfig{Level: "warn"})
	if logger.GetLevel() != zerolog.WarnLevel {
		t.Errorf("level = %v, want warn", logger.GetLevel())
	}
}

func TestWithOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSymbol(WithOperation(zerolog.New(&buf), "monitor"), "AAPL")
	logger.Info().Msg("checked")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["operation"] != "monitor" || entry["symbol"] != "AAPL" {
		t.Errorf("unexpected entry %v", entry)
	}
}
