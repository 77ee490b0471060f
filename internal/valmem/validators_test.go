package valmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLValidator_FormatRules(t *testing.T) {
	mem, _, _ := newTestMemory(t)
	v := NewURLValidator(mem)
	ctx := context.Background()

	rej, err := v.Validate(ctx, "", "u-1")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, "invalid_url", rej.ErrorType)
	assert.False(t, rej.Remembered)

	rej, err = v.Validate(ctx, "ftp://files.example.com", "u-1")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Contains(t, rej.Message, "http")

	rej, err = v.Validate(ctx, "https://example.com/ok", "u-1")
	require.NoError(t, err)
	assert.Nil(t, rej)
}

func TestURLValidator_RemembersAcrossSiblingURLs(t *testing.T) {
	mem, _, _ := newTestMemory(t)
	v := NewURLValidator(mem)
	ctx := context.Background()

	require.NoError(t, v.MarkFailure(ctx, "https://flaky.com/a", "connection reset", "u-1"))

	rej, err := v.Validate(ctx, "https://flaky.com/b", "u-1")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.True(t, rej.Remembered)
	assert.Equal(t, "connection reset", rej.Message)
}

func TestPhoneValidator(t *testing.T) {
	mem, _, _ := newTestMemory(t)
	v := NewPhoneValidator(mem)
	ctx := context.Background()

	rej, err := v.Validate(ctx, "12345", "u-1")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Contains(t, rej.Message, "at least 10 digits")

	rej, err = v.Validate(ctx, "+1 (555) 123-4567", "u-1")
	require.NoError(t, err)
	assert.Nil(t, rej)

	// The failed prefix is now remembered for other short numbers sharing it.
	rej, err = v.Validate(ctx, "123-99", "u-1")
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.True(t, rej.Remembered)
}
