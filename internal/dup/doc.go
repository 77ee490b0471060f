// Package dup detects duplicate and near-duplicate entities.
//
// The store offers no uniqueness constraint, so duplication is a query-time
// judgment: fetch candidates with a free-text search, then score each one
// locally against the fields being inserted. Scores are weighted per field
// class (times weigh most, then names, then locations) and are intentionally
// asymmetric: only the fields present in the query side are scored, so
// scoring A against B is not the same as scoring B against A when their
// field sets differ.
package dup
