package locus

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one immutable record in the store. Events are appended once and
// never mutated; later events supersede earlier ones by convention only
// (extends for tombstones and rollups, reinforces for repeats, contradicts
// for reversals).
type Event struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Payload     map[string]any `json:"payload"`
	ContextID   string         `json:"context_id,omitempty"`
	RelatedTo   []string       `json:"related_to,omitempty"`
	Extends     []string       `json:"extends,omitempty"`
	Reinforces  []string       `json:"reinforces,omitempty"`
	Contradicts []string       `json:"contradicts,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Source      string         `json:"source,omitempty"`
}

// PayloadString returns a string payload field, or "" when absent or not a
// string. Payloads arrive as generic maps from the store boundary; typed
// decoding lives with the owning service.
func (e Event) PayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// PayloadTime parses an RFC 3339 payload field. Returns the zero time when
// the field is absent or malformed.
func (e Event) PayloadTime(key string) time.Time {
	s := e.PayloadString(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PayloadBool returns a boolean payload field, false when absent.
func (e Event) PayloadBool(key string) bool {
	b, _ := e.Payload[key].(bool)
	return b
}

// NewID generates a short random identifier for entities, batches, and
// reminders. 12 hex characters, matching the id width used throughout the
// context-id conventions.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
