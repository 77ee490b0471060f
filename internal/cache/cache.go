package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"locuscore/internal/clock"
	"locuscore/internal/keys"
	"locuscore/internal/locus"
	"locuscore/internal/metrics"
)

// Event kinds and context prefix for cache entries.
const (
	KindCacheSet     = "cache.set"
	KindCacheExpired = "cache.expired"

	contextPrefix = "cache_entry"
)

// DefaultTTL applies when a caller passes a non-positive TTL.
const DefaultTTL = time.Hour

// foldLimit bounds how many events of a cache context a read folds. One
// context only ever holds entries and tombstones for a single key, so a
// handful is plenty to find the newest decision.
const foldLimit = 8

// Entry is the typed payload of a cache.set event.
type Entry struct {
	CacheKey   string         `json:"cache_key"`
	Value      any            `json:"value"`
	ExpiresAt  time.Time      `json:"expires_at"`
	TTLSeconds int            `json:"ttl_seconds"`
	CachedAt   time.Time      `json:"cached_at"`
	Metadata   map[string]any `json:"metadata"`
}

func (e Entry) toPayload() map[string]any {
	return map[string]any{
		"cache_key":   e.CacheKey,
		"value":       e.Value,
		"expires_at":  e.ExpiresAt.Format(time.RFC3339),
		"ttl_seconds": e.TTLSeconds,
		"cached_at":   e.CachedAt.Format(time.RFC3339),
		"metadata":    e.Metadata,
	}
}

func entryFromEvent(ev locus.Event) Entry {
	ttl, _ := ev.Payload["ttl_seconds"].(int)
	if f, ok := ev.Payload["ttl_seconds"].(float64); ok {
		ttl = int(f)
	}
	meta, _ := ev.Payload["metadata"].(map[string]any)
	return Entry{
		CacheKey:   ev.PayloadString("cache_key"),
		Value:      ev.Payload["value"],
		ExpiresAt:  ev.PayloadTime("expires_at"),
		TTLSeconds: ttl,
		CachedAt:   ev.PayloadTime("cached_at"),
		Metadata:   meta,
	}
}

// Cache provides get/set/invalidate over event-backed cache entries.
type Cache struct {
	client locus.Client
	clk    clock.Clock
	log    *slog.Logger
	group  singleflight.Group
}

// New creates a cache over the given store client.
func New(client locus.Client, clk clock.Clock, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{client: client, clk: clk, log: log}
}

// Get returns the cached value for key and params, and whether a live entry
// was found. The context is folded newest-first: a tombstone newer than the
// latest entry means absent; a live entry past its expiry is tombstoned on
// the spot and reported absent.
func (c *Cache) Get(ctx context.Context, key string, params map[string]any) (any, bool, error) {
	cacheKey := keys.CacheKey(key, params)
	contextID := keys.ContextFor(contextPrefix, cacheKey)

	events, err := c.client.Search(ctx, locus.SearchRequest{
		Query:      cacheKey,
		ContextIDs: []string{contextID},
		Limit:      foldLimit,
	})
	if err != nil {
		return nil, false, err
	}

	for _, ev := range events {
		switch ev.Kind {
		case KindCacheExpired:
			// Newest decision for this context is a tombstone.
			metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
			return nil, false, nil
		case KindCacheSet:
			entry := entryFromEvent(ev)
			if !entry.ExpiresAt.IsZero() && c.clk.Now().After(entry.ExpiresAt) {
				if err := c.tombstone(ctx, contextID); err != nil {
					return nil, false, err
				}
				metrics.CacheRequestsTotal.WithLabelValues("expired").Inc()
				return nil, false, nil
			}
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return entry.Value, true, nil
		}
	}

	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	return nil, false, nil
}

// Set appends a cache entry under the key's context id and returns that
// context id. It never overwrites: readers surface the newest entry through
// the store's recency ranking, which is a documented risk with a remote
// backend, not a guarantee.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration, params, metadata map[string]any) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cacheKey := keys.CacheKey(key, params)
	contextID := keys.ContextFor(contextPrefix, cacheKey)
	now := c.clk.Now()

	entry := Entry{
		CacheKey:   cacheKey,
		Value:      value,
		ExpiresAt:  now.Add(ttl),
		TTLSeconds: int(ttl / time.Second),
		CachedAt:   now,
		Metadata:   metadata,
	}

	res, err := c.client.Append(ctx, locus.AppendRequest{
		Kind:      KindCacheSet,
		ContextID: contextID,
		Payload:   entry.toPayload(),
		Source:    "cache",
	})
	if err != nil {
		return "", err
	}
	if !res.Stored() {
		return "", fmt.Errorf("cache set rejected: %s", res.ErrorMessage)
	}

	c.log.Debug("cache entry stored", "cache_key", cacheKey, "ttl", ttl)
	return contextID, nil
}

// Invalidate tombstones the key immediately, regardless of current expiry.
func (c *Cache) Invalidate(ctx context.Context, key string, params map[string]any) error {
	cacheKey := keys.CacheKey(key, params)
	return c.tombstone(ctx, keys.ContextFor(contextPrefix, cacheKey))
}

// InvalidatePattern tombstones every cache entry whose base key starts with
// the given prefix (a trailing "*" is tolerated). Best-effort: one bounded
// search generates the candidates, so entries beyond the search limit
// survive.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	prefix = strings.TrimSuffix(prefix, ":")

	events, err := c.client.Search(ctx, locus.SearchRequest{
		Query: "cache entries " + pattern,
		Limit: 100,
	})
	if err != nil {
		return 0, err
	}

	invalidated := 0
	seen := make(map[string]bool)
	for _, ev := range events {
		if ev.Kind != KindCacheSet || !strings.HasPrefix(ev.ContextID, contextPrefix+":") {
			continue
		}
		base := strings.TrimPrefix(ev.PayloadString("cache_key"), "cache:")
		if !strings.HasPrefix(base, prefix) {
			continue
		}
		if seen[ev.ContextID] {
			continue
		}
		seen[ev.ContextID] = true
		if err := c.tombstone(ctx, ev.ContextID); err != nil {
			return invalidated, err
		}
		invalidated++
	}
	return invalidated, nil
}

// GetOrSet reads through the cache, invoking fetch on a miss and caching
// its result. Concurrent in-process calls for the same key collapse into
// one fetch via single-flight; across processes the usual caveat applies,
// each may fetch and append its own entry.
func (c *Cache) GetOrSet(ctx context.Context, key string, params map[string]any, ttl time.Duration, metadata map[string]any, fetch func(context.Context) (any, error)) (any, error) {
	cacheKey := keys.CacheKey(key, params)

	value, err, _ := c.group.Do(cacheKey, func() (any, error) {
		cached, ok, err := c.Get(ctx, key, params)
		if err != nil {
			return nil, err
		}
		if ok {
			return cached, nil
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", cacheKey, err)
		}

		if _, err := c.Set(ctx, key, fetched, ttl, params, metadata); err != nil {
			return nil, err
		}
		return fetched, nil
	})
	return value, err
}

func (c *Cache) tombstone(ctx context.Context, contextID string) error {
	_, err := c.client.Append(ctx, locus.AppendRequest{
		Kind:      KindCacheExpired,
		ContextID: contextID,
		Payload: map[string]any{
			"expired_at": c.clk.Now().Format(time.RFC3339),
			"status":     "expired",
		},
		Extends: []string{contextID},
		Source:  "cache",
	})
	return err
}

// DecodeValue converts a cached value back into a concrete type via a JSON
// round trip. Values read from a remote store arrive as generic JSON
// shapes; this restores the caller's struct or slice type.
func DecodeValue[T any](v any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode cached value: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode cached value: %w", err)
	}
	return out, nil
}
