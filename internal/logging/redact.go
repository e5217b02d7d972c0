package logging

import (
	"regexp"
	"strings"
)

// secretPatterns match credentials that can end up inside error messages,
// URLs and payload dumps.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|secret[_-]?key|access[_-]?token|auth[_-]?token|bearer|password)([=:\s]+)["']?([^\s"'&]+)["']?`),
	regexp.MustCompile(`\b(sk-[A-Za-z0-9_-]{20,})`), // OpenAI keys
}

// Telegram puts the bot token in the request path.
var telegramToken = regexp.MustCompile(`/bot(\d+):[A-Za-z0-9_-]+`)

// MaskCredential masks a credential, keeping a short prefix and suffix on
// long values so two keys can still be told apart.
func MaskCredential(value string) string {
	switch n := len(value); {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	default:
		return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
	}
}

// MaskSecrets masks every known credential pattern in s.
func MaskSecrets(s string) string {
	s = telegramToken.ReplaceAllString(s, "/bot$1:***")
	s = secretPatterns[0].ReplaceAllStringFunc(s, func(match string) string {
		m := secretPatterns[0].FindStringSubmatch(match)
		return m[1] + m[2] + MaskCredential(m[3])
	})
	return secretPatterns[1].ReplaceAllStringFunc(s, MaskCredential)
}

// RedactError returns err with credentials masked out of its message. The
// original error stays reachable through errors.Is and errors.As.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := MaskSecrets(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }
