// Package batch records bulk operations as event trees: one root context
// per batch, one linked item event per processed input, and a terminal
// rollup extending the root. Batches are best-effort; a failed item is
// recorded and skipped, never escalated.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"locuscore/internal/clock"
	"locuscore/internal/locus"
	"locuscore/internal/metrics"
)

// Event kinds for the batch lifecycle.
const (
	KindBatchStarted   = "batch.started"
	KindBatchItem      = "batch.item"
	KindBatchCompleted = "batch.completed"
	KindBatchFailed    = "batch.failed"
)

// Batch statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Batch identifies a started batch operation.
type Batch struct {
	ContextID     string
	BatchID       string
	UserID        string
	EntityType    string
	OperationType string
	Description   string
}

// Status is the folded state of a batch context.
type Status struct {
	Batch
	Status          string
	TotalItems      int
	SuccessfulItems int
	FailedItems     int
	EntityIDs       []string
	ErrorMessage    string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// ItemResult records the outcome of one processed input.
type ItemResult struct {
	EntityID     string
	Success      bool
	ErrorMessage string
}

// Tracker appends batch bookkeeping events.
type Tracker struct {
	client locus.Client
	clk    clock.Clock
	log    *slog.Logger
}

// NewTracker creates a tracker over the given store client.
func NewTracker(client locus.Client, clk clock.Clock, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{client: client, clk: clk, log: log}
}

// Create appends the batch root event and returns its handle.
func (t *Tracker) Create(ctx context.Context, userID, entityType, operationType, description string) (Batch, error) {
	batchID := locus.NewID()
	contextID := fmt.Sprintf("batch_operation:%s:%s:%s", userID, entityType, batchID)

	res, err := t.client.Append(ctx, locus.AppendRequest{
		Kind:      KindBatchStarted,
		ContextID: contextID,
		Payload: map[string]any{
			"batch_id":         batchID,
			"entity_type":      entityType,
			"operation_type":   operationType,
			"user_id":          userID,
			"description":      description,
			"status":           StatusInProgress,
			"total_items":      0,
			"successful_items": 0,
			"failed_items":     0,
			"entity_ids":       []string{},
			"started_at":       t.clk.Now().Format(time.RFC3339),
		},
		Source: "batch",
	})
	if err != nil {
		return Batch{}, err
	}
	if !res.Stored() {
		return Batch{}, fmt.Errorf("batch create rejected: %s", res.ErrorMessage)
	}

	return Batch{
		ContextID:     contextID,
		BatchID:       batchID,
		UserID:        userID,
		EntityType:    entityType,
		OperationType: operationType,
		Description:   description,
	}, nil
}

// AddEntity appends a linked item event. Called exactly once per processed
// input, success or failure.
func (t *Tracker) AddEntity(ctx context.Context, b Batch, entityID string, success bool, errorMessage string) error {
	outcome := "success"
	if !success {
		outcome = "failure"
	}

	res, err := t.client.Append(ctx, locus.AppendRequest{
		Kind:      KindBatchItem,
		ContextID: b.ContextID + ":item:" + entityID,
		Payload: map[string]any{
			"batch_id":      b.BatchID,
			"entity_id":     entityID,
			"success":       success,
			"error_message": errorMessage,
			"recorded_at":   t.clk.Now().Format(time.RFC3339),
		},
		RelatedTo: []string{b.ContextID},
		Source:    "batch",
	})
	if err != nil {
		return err
	}
	if !res.Stored() {
		return fmt.Errorf("batch item rejected: %s", res.ErrorMessage)
	}

	metrics.BatchItemsTotal.WithLabelValues(b.EntityType, outcome).Inc()
	return nil
}

// Complete appends the terminal rollup for a finished batch.
func (t *Tracker) Complete(ctx context.Context, b Batch, total, success, failed int, entityIDs []string) error {
	return t.rollup(ctx, b, KindBatchCompleted, map[string]any{
		"batch_id":         b.BatchID,
		"status":           StatusCompleted,
		"total_items":      total,
		"successful_items": success,
		"failed_items":     failed,
		"entity_ids":       entityIDs,
		"finished_at":      t.clk.Now().Format(time.RFC3339),
	})
}

// Fail appends the terminal rollup for a batch that could not finish.
func (t *Tracker) Fail(ctx context.Context, b Batch, errorMessage string, partialEntityIDs []string) error {
	return t.rollup(ctx, b, KindBatchFailed, map[string]any{
		"batch_id":      b.BatchID,
		"status":        StatusFailed,
		"error_message": errorMessage,
		"entity_ids":    partialEntityIDs,
		"finished_at":   t.clk.Now().Format(time.RFC3339),
	})
}

// GetBatchStatus folds the root and rollup events of a batch context into
// its current state. The newest rollup wins; with none, the batch is still
// in progress.
func (t *Tracker) GetBatchStatus(ctx context.Context, contextID string) (Status, bool, error) {
	events, err := t.client.Search(ctx, locus.SearchRequest{
		Query:      contextID,
		ContextIDs: []string{contextID},
		Limit:      16,
	})
	if err != nil {
		return Status{}, false, err
	}

	var st Status
	found := false
	folded := false
	// Newest first: the first rollup fixes the terminal fields, the root
	// event carries the identity.
	for _, ev := range events {
		switch ev.Kind {
		case KindBatchCompleted, KindBatchFailed:
			if folded {
				continue
			}
			folded = true
			st.Status = ev.PayloadString("status")
			st.TotalItems = payloadInt(ev.Payload, "total_items")
			st.SuccessfulItems = payloadInt(ev.Payload, "successful_items")
			st.FailedItems = payloadInt(ev.Payload, "failed_items")
			st.EntityIDs = payloadStrings(ev.Payload, "entity_ids")
			st.ErrorMessage = ev.PayloadString("error_message")
			st.FinishedAt = ev.PayloadTime("finished_at")
		case KindBatchStarted:
			if found {
				continue
			}
			found = true
			st.Batch = Batch{
				ContextID:     ev.ContextID,
				BatchID:       ev.PayloadString("batch_id"),
				UserID:        ev.PayloadString("user_id"),
				EntityType:    ev.PayloadString("entity_type"),
				OperationType: ev.PayloadString("operation_type"),
				Description:   ev.PayloadString("description"),
			}
			st.StartedAt = ev.PayloadTime("started_at")
			if !folded {
				st.Status = StatusInProgress
			}
		}
	}
	if !found {
		return Status{}, false, nil
	}
	return st, true, nil
}

// ListItems returns the recorded item results of a batch in append order.
func (t *Tracker) ListItems(ctx context.Context, b Batch) ([]ItemResult, error) {
	events, err := t.client.Search(ctx, locus.SearchRequest{
		Query: b.ContextID + " items",
		Limit: 200,
	})
	if err != nil {
		return nil, err
	}

	items := make([]ItemResult, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Kind != KindBatchItem || !strings.HasPrefix(ev.ContextID, b.ContextID+":item:") {
			continue
		}
		items = append(items, ItemResult{
			EntityID:     ev.PayloadString("entity_id"),
			Success:      ev.PayloadBool("success"),
			ErrorMessage: ev.PayloadString("error_message"),
		})
	}
	return items, nil
}

func (t *Tracker) rollup(ctx context.Context, b Batch, kind string, payload map[string]any) error {
	res, err := t.client.Append(ctx, locus.AppendRequest{
		Kind:      kind,
		ContextID: b.ContextID,
		Payload:   payload,
		Extends:   []string{b.ContextID},
		Source:    "batch",
	})
	if err != nil {
		return err
	}
	if !res.Stored() {
		return fmt.Errorf("batch rollup rejected: %s", res.ErrorMessage)
	}
	t.log.Debug("batch finished", "context_id", b.ContextID, "kind", kind)
	return nil
}

func payloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func payloadStrings(payload map[string]any, key string) []string {
	switch v := payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
