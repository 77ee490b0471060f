// Package valmem remembers validation outcomes as reusable patterns.
//
// A failed validation is stored under a pattern-derived context id
// ("validation_pattern:<error_type>:<pattern>"), so that a later check of a
// different value sharing the same pattern (two URLs on one bad domain, or
// two phone numbers with one bad prefix) finds the earlier failure without
// re-validating. Successes are recorded as contradicting events, the same
// tombstone-by-extension convention the cache uses.
package valmem
