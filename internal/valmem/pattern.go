package valmem

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var nonPhoneRunes = regexp.MustCompile(`[^0-9+]`)

// ExtractPattern reduces a value to the pattern it is remembered under.
// The strategy depends on the error type: URLs collapse to their domain,
// phones to their country-code or area prefix, emails to their domain,
// duplicate checks to a stable digest. Anything else keeps its first 50
// characters, lowercased.
func ExtractPattern(value, errorType string) string {
	if value == "" {
		return "empty"
	}

	lower := strings.ToLower(strings.TrimSpace(value))

	switch {
	case strings.Contains(errorType, "url"):
		if _, rest, ok := strings.Cut(lower, "://"); ok {
			domain, _, _ := strings.Cut(rest, "/")
			return "domain:" + domain
		}
		return "no_protocol:" + truncate(lower, 50)

	case strings.Contains(errorType, "phone"):
		cleaned := nonPhoneRunes.ReplaceAllString(value, "")
		if strings.HasPrefix(cleaned, "+") {
			return "international:" + truncate(cleaned, 4)
		}
		return "domestic:" + truncate(cleaned, 3)

	case strings.Contains(errorType, "email"):
		if _, domain, ok := strings.Cut(lower, "@"); ok {
			return "domain:" + domain
		}
		return "no_at_symbol"

	case strings.Contains(errorType, "duplicate"):
		sum := sha256.Sum256([]byte(value))
		return hex.EncodeToString(sum[:])[:8]

	default:
		return truncate(lower, 50)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
