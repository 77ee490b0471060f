package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey_NoParams(t *testing.T) {
	assert.Equal(t, "cache:user_appointments", CacheKey("user_appointments", nil))
	assert.Equal(t, "cache:user_appointments", CacheKey("user_appointments", map[string]any{}))
}

func TestCacheKey_ParamsStableAcrossOrder(t *testing.T) {
	a := CacheKey("user_appointments", map[string]any{
		"user_id":    "u-1",
		"query_type": "upcoming",
	})
	b := CacheKey("user_appointments", map[string]any{
		"query_type": "upcoming",
		"user_id":    "u-1",
	})
	assert.Equal(t, a, b, "param order must not change the key")

	parts := len("cache:user_appointments:") + 8
	require.Len(t, a, parts, "digest suffix is 8 hex chars")
}

func TestCacheKey_ParamsChangeDigest(t *testing.T) {
	a := CacheKey("user_appointments", map[string]any{"user_id": "u-1"})
	b := CacheKey("user_appointments", map[string]any{"user_id": "u-2"})
	assert.NotEqual(t, a, b)
}

func TestCacheKey_NestedAndTypedParams(t *testing.T) {
	a := CacheKey("k", map[string]any{"n": 3, "f": 1.5, "ok": true, "inner": map[string]any{"x": "y"}})
	b := CacheKey("k", map[string]any{"inner": map[string]any{"x": "y"}, "ok": true, "f": 1.5, "n": 3})
	assert.Equal(t, a, b)
}

func TestContextFor(t *testing.T) {
	ctx := ContextFor("cache_entry", "cache:user_appointments")
	require.Len(t, ctx, len("cache_entry:")+12)
	assert.Equal(t, ctx, ContextFor("cache_entry", "cache:user_appointments"),
		"same inputs must address the same context in every process")
	assert.NotEqual(t, ctx, ContextFor("cache_entry", "cache:user_contacts"))
	assert.NotEqual(t, ctx, ContextFor("validation_pattern", "cache:user_appointments"),
		"prefix participates via the rendered id, digest covers the key only")
}

func TestCanonicalParams_Deterministic(t *testing.T) {
	p := map[string]any{"b": []any{1, "two", nil}, "a": "é"} // é, pre-composed
	q := map[string]any{"a": "é", "b": []any{1, "two", nil}} // e + combining accent
	assert.Equal(t, string(canonicalParams(p)), string(canonicalParams(q)),
		"NFC normalization makes equivalent strings hash identically")
}
