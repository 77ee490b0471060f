// Package migrate records schema migrations as event trees and replays
// them for rollback. A migration is a root context, per-entity step events
// capturing old and new data, and a terminal rollup. Rollback reverses
// recorded data only; any external side effect of the original migration
// stays done.
package migrate

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

// Event kinds for the migration lifecycle.
const (
	KindMigrationStarted   = "migration.started"
	KindMigrationStep      = "migration.step"
	KindMigrationCompleted = "migration.completed"
	KindMigrationFailed    = "migration.failed"
)

// Migration statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const contextPrefix = "schema_migration"

// Migration identifies a started migration.
type Migration struct {
	ContextID   string
	MigrationID string
	FromVersion string
	ToVersion   string
	Description string
}

// Step records one entity's transformation. OldData is what rollback
// restores; a step without it cannot be reversed.
type Step struct {
	EntityType   string
	EntityID     string
	Success      bool
	OldData      map[string]any
	NewData      map[string]any
	ErrorMessage string
}

// Status is the folded state of a migration context.
type Status struct {
	Migration
	Status           string
	EntitiesMigrated int
	EntitiesFailed   int
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Manager appends and folds migration bookkeeping events.
type Manager struct {
	client locus.Client
	clk    clock.Clock
	log    *slog.Logger
}

// NewManager creates a manager over the given store client.
func NewManager(client locus.Client, clk clock.Clock, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{client: client, clk: clk, log: log}
}

// StartMigration appends the root record for a new migration.
func (m *Manager) StartMigration(ctx context.Context, migrationID, fromVersion, toVersion, description string) (Migration, error) {
	contextID := contextPrefix + ":" + migrationID

	res, err := m.client.Append(ctx, locus.AppendRequest{
		Kind:      KindMigrationStarted,
		ContextID: contextID,
		Payload: map[string]any{
			"migration_id": migrationID,
			"from_version": fromVersion,
			"to_version":   toVersion,
			"description":  description,
			"status":       StatusInProgress,
			"started_at":   m.clk.Now().Format(time.RFC3339),
		},
		Source: "migrate",
	})
	if err != nil {
		return Migration{}, err
	}
	if !res.Stored() {
		return Migration{}, fmt.Errorf("migration start rejected: %s", res.ErrorMessage)
	}

	m.log.Info("migration started", "migration_id", migrationID, "from", fromVersion, "to", toVersion)
	return Migration{
		ContextID:   contextID,
		MigrationID: migrationID,
		FromVersion: fromVersion,
		ToVersion:   toVersion,
		Description: description,
	}, nil
}

// RecordMigrationStep appends a linked per-entity step. Old and new data
// are captured verbatim so a later rollback can replay them swapped.
func (m *Manager) RecordMigrationStep(ctx context.Context, mig Migration, step Step) error {
	res, err := m.client.Append(ctx, locus.AppendRequest{
		Kind:      KindMigrationStep,
		ContextID: mig.ContextID + ":step:" + step.EntityID,
		Payload: map[string]any{
			"migration_id":  mig.MigrationID,
			"entity_type":   step.EntityType,
			"entity_id":     step.EntityID,
			"success":       step.Success,
			"old_data":      step.OldData,
			"new_data":      step.NewData,
			"error_message": step.ErrorMessage,
			"recorded_at":   m.clk.Now().Format(time.RFC3339),
		},
		RelatedTo: []string{mig.ContextID},
		Source:    "migrate",
	})
	if err != nil {
		return err
	}
	if !res.Stored() {
		return fmt.Errorf("migration step rejected: %s", res.ErrorMessage)
	}
	return nil
}

// CompleteMigration appends the terminal completed rollup.
func (m *Manager) CompleteMigration(ctx context.Context, mig Migration, migrated, failed int) error {
	return m.rollup(ctx, mig, KindMigrationCompleted, map[string]any{
		"migration_id":      mig.MigrationID,
		"status":            StatusCompleted,
		"entities_migrated": migrated,
		"entities_failed":   failed,
		"finished_at":       m.clk.Now().Format(time.RFC3339),
	})
}

// FailMigration appends the terminal failed rollup. Recovery is an
// operator-triggered rollback, never an automatic retry.
func (m *Manager) FailMigration(ctx context.Context, mig Migration, errorMessage string) error {
	return m.rollup(ctx, mig, KindMigrationFailed, map[string]any{
		"migration_id":  mig.MigrationID,
		"status":        StatusFailed,
		"error_message": errorMessage,
		"finished_at":   m.clk.Now().Format(time.RFC3339),
	})
}

// GetMigrationStatus folds one migration's root and rollup events into a
// summary.
func (m *Manager) GetMigrationStatus(ctx context.Context, migrationID string) (Status, bool, error) {
	contextID := contextPrefix + ":" + migrationID
	events, err := m.client.Search(ctx, locus.SearchRequest{
		Query:      contextID,
		ContextIDs: []string{contextID},
		Limit:      16,
	})
	if err != nil {
		return Status{}, false, err
	}
	st, ok := foldStatus(events)
	return st, ok, nil
}

// ListMigrations returns known migrations, deduped by migration id keeping
// the first occurrence seen, sorted by start time descending. A non-empty
// status filters the result.
func (m *Manager) ListMigrations(ctx context.Context, status string, limit int) ([]Status, error) {
	if limit <= 0 {
		limit = 50
	}
	events, err := m.client.Search(ctx, locus.SearchRequest{
		Query: "schema_migration records",
		Limit: limit * 8,
	})
	if err != nil {
		return nil, err
	}

	byContext := make(map[string][]locus.Event)
	var order []string
	for _, ev := range events {
		if !strings.HasPrefix(ev.ContextID, contextPrefix+":") || strings.Contains(ev.ContextID, ":step:") {
			continue
		}
		if _, seen := byContext[ev.ContextID]; !seen {
			order = append(order, ev.ContextID)
		}
		byContext[ev.ContextID] = append(byContext[ev.ContextID], ev)
	}

	out := make([]Status, 0, len(order))
	seen := make(map[string]bool)
	for _, ctxID := range order {
		st, ok := foldStatus(byContext[ctxID])
		if !ok || seen[st.MigrationID] {
			continue
		}
		seen[st.MigrationID] = true
		if status != "" && st.Status != status {
			continue
		}
		out = append(out, st)
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetMigrationSteps returns the recorded steps of a migration in append
// order.
func (m *Manager) GetMigrationSteps(ctx context.Context, migrationID string) ([]Step, error) {
	contextID := contextPrefix + ":" + migrationID
	events, err := m.client.Search(ctx, locus.SearchRequest{
		Query: contextID + " steps",
		Limit: 500,
	})
	if err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Kind != KindMigrationStep || !strings.HasPrefix(ev.ContextID, contextID+":step:") {
			continue
		}
		steps = append(steps, stepFromEvent(ev))
	}
	return steps, nil
}

// GetRollbackData returns the reversible steps of a migration: successful
// ones that captured their old data.
func (m *Manager) GetRollbackData(ctx context.Context, migrationID string) ([]Step, error) {
	steps, err := m.GetMigrationSteps(ctx, migrationID)
	if err != nil {
		return nil, err
	}
	out := steps[:0]
	for _, s := range steps {
		if s.Success && len(s.OldData) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

// ExecuteRollback starts a new migration with the versions swapped and
// replays every reversible step with old and new data swapped. The result
// is a normal migration record; the original stays untouched.
func (m *Manager) ExecuteRollback(ctx context.Context, migrationID string) (Status, error) {
	original, ok, err := m.GetMigrationStatus(ctx, migrationID)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{}, fmt.Errorf("migration %s not found", migrationID)
	}

	steps, err := m.GetRollbackData(ctx, migrationID)
	if err != nil {
		return Status{}, err
	}

	rollbackID := migrationID + "_rollback_" + locus.NewID()
	mig, err := m.StartMigration(ctx, rollbackID,
		original.ToVersion, original.FromVersion,
		"rollback of "+migrationID)
	if err != nil {
		return Status{}, err
	}

	migrated, failed := 0, 0
	for _, s := range steps {
		err := m.RecordMigrationStep(ctx, mig, Step{
			EntityType: s.EntityType,
			EntityID:   s.EntityID,
			Success:    true,
			OldData:    s.NewData,
			NewData:    s.OldData,
		})
		if err != nil {
			m.log.Warn("rollback step failed", "migration_id", rollbackID, "entity_id", s.EntityID, "error", err)
			failed++
			continue
		}
		migrated++
	}

	if failed > 0 && migrated == 0 {
		if err := m.FailMigration(ctx, mig, "every rollback step failed"); err != nil {
			return Status{}, err
		}
	} else if err := m.CompleteMigration(ctx, mig, migrated, failed); err != nil {
		return Status{}, err
	}

	st, _, err := m.GetMigrationStatus(ctx, rollbackID)
	return st, err
}

func (m *Manager) rollup(ctx context.Context, mig Migration, kind string, payload map[string]any) error {
	res, err := m.client.Append(ctx, locus.AppendRequest{
		Kind:      kind,
		ContextID: mig.ContextID,
		Payload:   payload,
		Extends:   []string{mig.ContextID},
		Source:    "migrate",
	})
	if err != nil {
		return err
	}
	if !res.Stored() {
		return fmt.Errorf("migration rollup rejected: %s", res.ErrorMessage)
	}
	m.log.Info("migration finished", "migration_id", mig.MigrationID, "kind", kind)
	return nil
}

// foldStatus reduces one context's events, newest first, into a Status.
func foldStatus(events []locus.Event) (Status, bool) {
	var st Status
	found := false
	folded := false
	for _, ev := range events {
		switch ev.Kind {
		case KindMigrationCompleted, KindMigrationFailed:
			if folded {
				continue
			}
			folded = true
			st.Status = ev.PayloadString("status")
			st.EntitiesMigrated = payloadInt(ev.Payload, "entities_migrated")
			st.EntitiesFailed = payloadInt(ev.Payload, "entities_failed")
			st.ErrorMessage = ev.PayloadString("error_message")
			st.FinishedAt = ev.PayloadTime("finished_at")
		case KindMigrationStarted:
			if found {
				continue
			}
			found = true
			st.Migration = Migration{
				ContextID:   ev.ContextID,
				MigrationID: ev.PayloadString("migration_id"),
				FromVersion: ev.PayloadString("from_version"),
				ToVersion:   ev.PayloadString("to_version"),
				Description: ev.PayloadString("description"),
			}
			st.StartedAt = ev.PayloadTime("started_at")
			if !folded {
				st.Status = StatusInProgress
			}
		}
	}
	return st, found
}

func stepFromEvent(ev locus.Event) Step {
	oldData, _ := ev.Payload["old_data"].(map[string]any)
	newData, _ := ev.Payload["new_data"].(map[string]any)
	return Step{
		EntityType:   ev.PayloadString("entity_type"),
		EntityID:     ev.PayloadString("entity_id"),
		Success:      ev.PayloadBool("success"),
		OldData:      oldData,
		NewData:      newData,
		ErrorMessage: ev.PayloadString("error_message"),
	}
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
