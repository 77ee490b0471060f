// Package locus defines the boundary to the external semantic event store.
//
// The store offers exactly two primitives:
//   - Append: write one immutable event (id and timestamp assigned by the store)
//   - Search: fetch a fuzzy-ranked, optionally context-filtered candidate list
//
// Everything above this package (caching, duplicate detection, batch
// bookkeeping, scheduling, migrations) is built by convention on top of
// these two calls. There are no secondary indexes, range queries,
// transactions, or TTLs; consumers must treat Search output as a candidate
// set requiring exact local post-filtering.
//
// # Failure modes
//
// Append fails softly for business-level issues (AppendResult.Status is not
// "stored" and ErrorMessage is set). Transport and auth failures surface as
// errors wrapping ErrStoreUnavailable and are fatal to the caller.
//
// # Backends
//
// Two local backends are provided: MemoryClient (inline, for tests and
// development) and SQLiteClient (durable local fallback). Both order search
// results newest-first so that limit=1 reads surface the latest write under
// a context. The production backend's ranking is NOT contractually exact;
// readers that need correctness fold the full context instead of trusting
// the first hit.
package locus
