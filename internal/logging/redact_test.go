package logging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMaskCredential(t *testing.T) {
	tests := map[string]string{
		"":                     "",
		"abc":                  "***",
		"abcdefg":              "ab*****",
		"sk-1234567890abcdefg": "sk-1************defg",
	}
	for in, want := range tests {
		if got := MaskCredential(in); got != want {
			t.Errorf("MaskCredential(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		leak    string
		keeping string
	}{
		{
			name:    "telegram url",
			in:      `Post "https://api.telegram.org/bot123456:AAH-secret_token/sendMessage": dial tcp: timeout`,
			leak:    "AAH-secret_token",
			keeping: "/bot123456:***/sendMessage",
		},
		{
			name:    "openai key",
			in:      "invalid key sk-abcdefghijklmnopqrstuvwx provided",
			leak:    "abcdefghijklmnopqrstuvwx",
			keeping: "invalid key sk-a",
		},
		{
			name:    "key value",
			in:      "request failed: api_key=supersecretvalue&symbol=AAPL",
			leak:    "supersecretvalue",
			keeping: "symbol=AAPL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSecrets(tt.in)
			if strings.Contains(got, tt.leak) {
				t.Errorf("secret leaked: %q", got)
			}
			if !strings.Contains(got, tt.keeping) {
				t.Errorf("%q lost %q", got, tt.keeping)
			}
		})
	}
}

func TestMaskSecrets_LeavesPlainTextAlone(t *testing.T) {
	in := "fetch AAPL: provider yahoo returned 503"
	if got := MaskSecrets(in); got != in {
		t.Errorf("MaskSecrets(%q) = %q", in, got)
	}
}

func TestRedactError(t *testing.T) {
	if RedactError(nil) != nil {
		t.Error("RedactError(nil) should be nil")
	}

	plain := errors.New("no secrets here")
	if RedactError(plain) != plain {
		t.Error("errors without secrets should be returned unchanged")
	}

	err := fmt.Errorf("post /bot42:tok-en_value/sendMessage: %w", context.DeadlineExceeded)
	red := RedactError(err)
	if strings.Contains(red.Error(), "tok-en_value") {
		t.Errorf("token leaked: %v", red)
	}
	if !errors.Is(red, context.DeadlineExceeded) {
		t.Error("redacted error should still unwrap to the cause")
	}
}
