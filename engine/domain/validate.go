package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Injection patterns: query-language fragments that should never appear in a
// customer message. The retrieval layer only ever issues parameterised queries,
// so these are rejected at the gate rather than escaped downstream.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|DETACH|MERGE|CREATE|SET)\b.*\b(TABLE|NODE|FROM|INTO|MATCH)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|MATCH)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
}

const (
	minMessageLength = 2
	maxMessageLength = 2000
)

// ValidateMessage checks a raw chat message before it enters the pipeline.
func ValidateMessage(msg string) error {
	trimmed := strings.TrimSpace(msg)
	if utf8.RuneCountInString(trimmed) < minMessageLength {
		return NewValidationError("message", trimmed, ErrMessageTooShort)
	}
	if utf8.RuneCountInString(trimmed) > maxMessageLength {
		return NewValidationError("message", truncate(trimmed, 64)+"...", ErrMessageTooLong)
	}
	for _, p := range injectionPatterns {
		if p.MatchString(trimmed) {
			return NewValidationError("message", trimmed, ErrMessageInjection)
		}
	}
	return nil
}

// truncate cuts s to at most n runes, never splitting a multibyte rune.
func truncate(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
