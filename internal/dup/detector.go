package dup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"locuscore/internal/clock"
	"locuscore/internal/locus"
)

// Candidate is a possible duplicate: an event and its similarity against
// the query fields. Candidates are never persisted.
type Candidate struct {
	Event      locus.Event
	Similarity float64
}

// Detector finds similar and exactly duplicated entities for one user.
type Detector struct {
	client locus.Client
	clk    clock.Clock
	log    *slog.Logger
}

// NewDetector creates a detector over the given store client.
func NewDetector(client locus.Client, clk clock.Clock, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{client: client, clk: clk, log: log}
}

// DetectSimilar returns candidates scoring at or above threshold, ranked by
// similarity descending. The store search only generates candidates; user
// ownership, the optional time window, and the score cut all apply locally.
// A zero timeWindow disables the window filter.
func (d *Detector) DetectSimilar(ctx context.Context, entityType, userID string, searchFields map[string]any, threshold float64, timeWindow time.Duration, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}

	events, err := d.client.Search(ctx, locus.SearchRequest{
		Query: buildFieldQuery(entityType, userID, searchFields),
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	now := d.clk.Now()
	var candidates []Candidate
	for _, ev := range events {
		if ev.PayloadString("user_id") != userID {
			continue
		}

		if timeWindow > 0 {
			eventTime := ev.PayloadTime("scheduled_at")
			if eventTime.IsZero() {
				eventTime = ev.PayloadTime("created_at")
			}
			if !eventTime.IsZero() {
				if diff := now.Sub(eventTime); diff > timeWindow || -diff > timeWindow {
					continue
				}
			}
		}

		score := Score(searchFields, ev.Payload)
		if score >= threshold {
			candidates = append(candidates, Candidate{Event: ev, Similarity: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	d.log.Debug("similarity scan",
		"entity_type", entityType,
		"candidates", len(events),
		"matches", len(candidates))
	return candidates, nil
}

// DetectExactDuplicate returns the first candidate whose payload matches
// every identifier field string-exactly, or nil.
func (d *Detector) DetectExactDuplicate(ctx context.Context, entityType, userID string, identifierFields map[string]any) (*locus.Event, error) {
	events, err := d.client.Search(ctx, locus.SearchRequest{
		Query: buildFieldQuery(entityType, userID, identifierFields),
		Limit: 10,
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		if ev.PayloadString("user_id") != userID {
			continue
		}

		exact := true
		for key, expected := range identifierFields {
			if fmt.Sprintf("%v", ev.Payload[key]) != fmt.Sprintf("%v", expected) {
				exact = false
				break
			}
		}
		if exact {
			return &ev, nil
		}
	}
	return nil, nil
}

// buildFieldQuery renders the free-text candidate query:
// "<entity_type> user <user_id> k1:v1 k2:v2 ..." over non-empty fields.
func buildFieldQuery(entityType, userID string, fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, fmt.Sprintf("%s user %s", entityType, userID))
	for _, k := range keys {
		v := fields[k]
		if v == nil || fmt.Sprintf("%v", v) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%v", k, v))
	}
	return strings.Join(parts, " ")
}
