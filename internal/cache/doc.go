// Package cache implements TTL caching on top of the append-only store.
//
// A cache entry is just an event under a key-derived context id. Set never
// overwrites: it appends another entry to the same context and relies on
// the store ranking the newest first. Expiry and invalidation are
// tombstones - cache.expired events extending the context - so a read folds
// the context newest-first and stops at whichever it sees first, a live
// entry or a tombstone.
//
// GetOrSet collapses concurrent misses for the same key through a
// single-flight group. That is process-local: two processes missing at once
// will still both fetch and both append, leaving duplicate live entries.
// "Eventually cached" is the contract, not "exactly one fetch".
package cache
