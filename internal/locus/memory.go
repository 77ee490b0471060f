package locus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"locuscore/internal/clock"
)

// MemoryClient is the inline fallback backend: an append-only slice guarded
// by a mutex. It executes every call synchronously and keeps all events in
// process memory.
//
// Search ranking is recency only (newest first) with a naive keyword match,
// which is deliberately stricter than the production store's fuzzy ranking:
// services must already tolerate both.
type MemoryClient struct {
	mu     sync.Mutex
	clk    clock.Clock
	seq    int
	events []Event

	appendErr  error
	searchErr  error
	rejectWith *AppendResult
}

// MemoryOption configures a MemoryClient.
type MemoryOption func(*MemoryClient)

// WithClock sets the clock used to timestamp appended events.
func WithClock(clk clock.Clock) MemoryOption {
	return func(c *MemoryClient) { c.clk = clk }
}

// NewMemoryClient creates an empty in-memory store.
func NewMemoryClient(opts ...MemoryOption) *MemoryClient {
	c := &MemoryClient{clk: clock.System()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append implements Client. The event id is sequential for readable test
// failures; the timestamp comes from the configured clock.
func (c *MemoryClient) Append(_ context.Context, req AppendRequest) (AppendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.appendErr != nil {
		return AppendResult{}, &StoreError{Op: "append", Err: c.appendErr}
	}
	if c.rejectWith != nil {
		return *c.rejectWith, nil
	}

	c.seq++
	ev := Event{
		ID:          fmt.Sprintf("mem-%06d", c.seq),
		Kind:        req.Kind,
		Payload:     req.Payload,
		ContextID:   req.ContextID,
		RelatedTo:   req.RelatedTo,
		Extends:     req.Extends,
		Reinforces:  req.Reinforces,
		Contradicts: req.Contradicts,
		Timestamp:   c.clk.Now(),
		Source:      req.Source,
	}
	c.events = append(c.events, ev)
	return AppendResult{EventID: ev.ID, Status: StatusStored}, nil
}

// Search implements Client. Events are filtered by ContextIDs and
// ContextTypes exactly, then by a best-effort keyword match on the query,
// and returned newest first. A later event with an equal timestamp ranks
// before an earlier one (insertion order breaks ties).
func (c *MemoryClient) Search(_ context.Context, req SearchRequest) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.searchErr != nil {
		return nil, &StoreError{Op: "search", Err: c.searchErr}
	}

	var ctxSet map[string]bool
	if len(req.ContextIDs) > 0 {
		ctxSet = make(map[string]bool, len(req.ContextIDs))
		for _, id := range req.ContextIDs {
			ctxSet[id] = true
		}
	}

	matched := make([]int, 0, len(c.events))
	for i, ev := range c.events {
		if ctxSet != nil && !ctxSet[ev.ContextID] {
			continue
		}
		if !matchContextTypes(ev, req.ContextTypes) {
			continue
		}
		// Context-scoped reads skip the keyword match: the ids are exact.
		if ctxSet == nil && !matchQuery(ev, req.Query) {
			continue
		}
		matched = append(matched, i)
	}

	// Newest first; insertion order breaks timestamp ties.
	sort.SliceStable(matched, func(a, b int) bool {
		ta, tb := c.events[matched[a]].Timestamp, c.events[matched[b]].Timestamp
		if ta.Equal(tb) {
			return matched[a] > matched[b]
		}
		return ta.After(tb)
	})

	limit := req.Limit
	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	out := make([]Event, 0, limit)
	for _, i := range matched[:limit] {
		out = append(out, c.events[i])
	}
	return out, nil
}

// Events returns a snapshot of every stored event in append order.
func (c *MemoryClient) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// SetAppendError makes every subsequent Append fail at the transport level.
// Pass nil to clear.
func (c *MemoryClient) SetAppendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendErr = err
}

// SetSearchError makes every subsequent Search fail at the transport level.
// Pass nil to clear.
func (c *MemoryClient) SetSearchError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchErr = err
}

// SetAppendRejection makes every subsequent Append return a soft failure
// with the given status and message. Pass empty status to clear.
func (c *MemoryClient) SetAppendRejection(status, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status == "" {
		c.rejectWith = nil
		return
	}
	c.rejectWith = &AppendResult{Status: status, ErrorMessage: message}
}

func matchContextTypes(ev Event, types map[string][]string) bool {
	if len(types) == 0 {
		return true
	}
	tags, ok := types[ev.Kind]
	if !ok {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	// Tags are matched against the temporal type of the payload envelope.
	meta, _ := ev.Payload["metadata"].(map[string]any)
	temporal, _ := meta["temporal"].(map[string]any)
	typ, _ := temporal["type"].(string)
	for _, tag := range tags {
		if tag == typ {
			return true
		}
	}
	return false
}

// matchQuery is the memory backend's stand-in for semantic ranking: an
// event is a candidate if any query token appears in its textual rendering.
func matchQuery(ev Event, query string) bool {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return true
	}
	text := renderText(ev)
	for _, token := range strings.Fields(query) {
		// "field:value" tokens match on either side of the colon.
		if key, val, ok := strings.Cut(token, ":"); ok && key != "" && val != "" {
			if strings.Contains(text, val) || strings.Contains(text, token) {
				return true
			}
			continue
		}
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

func renderText(ev Event) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(ev.Kind))
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(ev.ContextID))
	for k, v := range ev.Payload {
		fmt.Fprintf(&b, " %s:%v", strings.ToLower(k), v)
	}
	return strings.ToLower(b.String())
}
