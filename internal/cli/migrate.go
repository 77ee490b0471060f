package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"locuscore/internal/migrate"
)

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect and roll back schema migrations",
	}
	cmd.AddCommand(newMigrateListCommand(opts))
	cmd.AddCommand(newMigrateStatusCommand(opts))
	cmd.AddCommand(newMigrateRollbackCommand(opts))
	return cmd
}

func newMigrateListCommand(opts *RootOptions) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded migrations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			migrations, err := svc.Manager.ListMigrations(cmd.Context(), status, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "listing migrations", err)
			}

			if opts.Format == "json" {
				return out.Success(migrations)
			}
			if len(migrations) == 0 {
				return out.Success("no migrations recorded")
			}
			var b strings.Builder
			for _, st := range migrations {
				b.WriteString(formatMigration(st))
				b.WriteByte('\n')
			}
			return out.Success(strings.TrimRight(b.String(), "\n"))
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (in_progress|completed|failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum migrations to return")
	return cmd
}

func newMigrateStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <migration-id>",
		Short: "Show the folded state of one migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			st, ok, err := svc.Manager.GetMigrationStatus(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "fetching migration status", err)
			}
			if !ok {
				return WrapExitError(ExitFailure, "migration not found", nil)
			}
			if opts.Format == "json" {
				return out.Success(st)
			}
			return out.Success(formatMigration(st))
		},
	}
}

func newMigrateRollbackCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <migration-id>",
		Short: "Replay a migration's recorded data in reverse",
		Long:  "Starts a new migration with the versions swapped and replays every reversible step with old and new data swapped. External side effects of the original are not undone.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			st, err := svc.Manager.ExecuteRollback(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "executing rollback", err)
			}
			if st.Status != migrate.StatusCompleted {
				out.Error("E101", "rollback finished with status "+st.Status)
				return WrapExitError(ExitFailure, "rollback did not complete", nil)
			}
			return out.Successf("rollback %s completed: migrated=%d failed=%d",
				st.MigrationID, st.EntitiesMigrated, st.EntitiesFailed)
		},
	}
}

func formatMigration(st migrate.Status) string {
	return st.MigrationID + " [" + st.Status + "] " +
		st.FromVersion + " -> " + st.ToVersion
}
