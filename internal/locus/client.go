package locus

import (
	"context"
	"errors"
	"fmt"
)

// StatusStored is the Status value of a successful append.
const StatusStored = "stored"

// AppendRequest describes one event to append. The store assigns the id and
// timestamp.
type AppendRequest struct {
	Kind        string
	Payload     map[string]any
	ContextID   string
	RelatedTo   []string
	Extends     []string
	Reinforces  []string
	Contradicts []string
	Source      string
}

// AppendResult reports the outcome of an append. A Status other than
// StatusStored is a soft, business-level rejection; ErrorMessage explains it.
type AppendResult struct {
	EventID      string
	Status       string
	ErrorMessage string
}

// Stored reports whether the append was accepted.
func (r AppendResult) Stored() bool { return r.Status == StatusStored }

// SearchRequest describes a candidate query. Query is a best-effort
// semantic/keyword match. ContextIDs narrows the search but does not
// guarantee uniqueness of the result. ContextTypes optionally restricts by
// event kind, with values matched against the payload's temporal type tag.
type SearchRequest struct {
	Query        string
	Limit        int
	ContextIDs   []string
	ContextTypes map[string][]string
}

// Client is the sole boundary dependency of this layer. Implementations
// must be safe for concurrent use; one client instance is constructed at
// the composition root and passed explicitly to every service.
type Client interface {
	Append(ctx context.Context, req AppendRequest) (AppendResult, error)
	Search(ctx context.Context, req SearchRequest) ([]Event, error)
}

// ErrStoreUnavailable marks transport-level store failures. Callers treat
// these as fatal; this layer never retries them.
var ErrStoreUnavailable = errors.New("event store unavailable")

// StoreError wraps a failed store call with the operation that issued it.
type StoreError struct {
	Op  string // "append" | "search"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("locus %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err stems from a transport-level store
// failure, through any wrapping.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
