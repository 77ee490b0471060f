package valmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPattern(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		errorType string
		want      string
	}{
		{"url with protocol", "https://good.com/a", "invalid_url", "domain:good.com"},
		{"url sibling path shares pattern", "https://good.com/b", "invalid_url", "domain:good.com"},
		{"url without protocol", "good.com/a", "invalid_url", "no_protocol:good.com/a"},
		{"international phone", "+1 (555) 123-4567", "invalid_phone", "international:+155"},
		{"domestic phone", "(555) 123-4567", "invalid_phone", "domestic:555"},
		{"email", "Someone@Example.COM", "invalid_email", "domain:example.com"},
		{"email without at", "nonsense", "invalid_email", "no_at_symbol"},
		{"empty value", "", "invalid_url", "empty"},
		{"default truncates", "Some Long Message", "format_error", "some long message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPattern(tt.value, tt.errorType))
		})
	}
}

func TestExtractPattern_DuplicateIsStable(t *testing.T) {
	a := ExtractPattern("the same value", "duplicate_value")
	b := ExtractPattern("the same value", "duplicate_value")
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, ExtractPattern("another value", "duplicate_value"))
}
