package migrate

import (
	"context"
	"fmt"
)

// EnsureSchemaVersion outcomes.
const (
	ResultAlreadyAtVersion = "already_at_version"
	ResultMigrated         = "migrated"
)

// Script is a registered migration: the version edge it covers and the
// body that performs it. Run records its own steps through the manager and
// returns the migrated/failed counts; the registry handles the root and
// rollup events.
type Script struct {
	FromVersion string
	ToVersion   string
	Description string
	Run         func(ctx context.Context, m *Manager, mig Migration) (migrated, failed int, err error)
}

// Registry maps target schema versions to their migration scripts.
type Registry struct {
	manager *Manager
	scripts map[string]Script
}

// NewRegistry creates an empty script registry over the manager.
func NewRegistry(manager *Manager) *Registry {
	return &Registry{manager: manager, scripts: make(map[string]Script)}
}

// Register adds a script for its target version, replacing any previous
// registration.
func (r *Registry) Register(s Script) {
	r.scripts[s.ToVersion] = s
}

// EnsureSchemaVersion is the idempotent startup guard: if a completed
// migration to target already exists it does nothing, otherwise it runs
// the registered script exactly once and records completion. Concurrent
// callers can still race to both run the script; the store keeps both
// records and the completed-list check converges afterwards.
func (r *Registry) EnsureSchemaVersion(ctx context.Context, target string) (string, error) {
	completed, err := r.manager.ListMigrations(ctx, StatusCompleted, 100)
	if err != nil {
		return "", err
	}
	for _, st := range completed {
		if st.ToVersion == target {
			return ResultAlreadyAtVersion, nil
		}
	}

	script, ok := r.scripts[target]
	if !ok {
		return "", fmt.Errorf("no migration registered for version %s", target)
	}

	migrationID := fmt.Sprintf("%s_to_%s", script.FromVersion, script.ToVersion)
	mig, err := r.manager.StartMigration(ctx, migrationID, script.FromVersion, script.ToVersion, script.Description)
	if err != nil {
		return "", err
	}

	migrated, failed, runErr := script.Run(ctx, r.manager, mig)
	if runErr != nil {
		if err := r.manager.FailMigration(ctx, mig, runErr.Error()); err != nil {
			return "", err
		}
		return "", fmt.Errorf("migration to %s failed: %w", target, runErr)
	}

	if err := r.manager.CompleteMigration(ctx, mig, migrated, failed); err != nil {
		return "", err
	}
	return ResultMigrated, nil
}
