package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"locuscore/internal/batch"
	"locuscore/internal/dup"
)

// batchFile is the YAML input for a bulk import.
type batchFile struct {
	EntityType       string           `yaml:"entity_type"`
	UserID           string           `yaml:"user_id"`
	EnsureOnePrimary bool             `yaml:"ensure_one_primary"`
	Items            []map[string]any `yaml:"items"`
}

// NewBatchCommand creates the batch command group.
func NewBatchCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Bulk imports with per-item bookkeeping",
	}
	cmd.AddCommand(newBatchCreateCommand(opts))
	cmd.AddCommand(newBatchStatusCommand(opts))
	return cmd
}

func newBatchCreateCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create entities from a YAML batch file",
		Long:  "Reads a YAML file with entity_type, user_id and items, and runs the bulk create path. Failed items are recorded and skipped; the command reports the summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			raw, err := os.ReadFile(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "reading batch file", err)
			}
			var input batchFile
			if err := yaml.Unmarshal(raw, &input); err != nil {
				return WrapExitError(ExitCommandError, "parsing batch file", err)
			}
			if len(input.Items) == 0 {
				return WrapExitError(ExitCommandError, "batch file has no items", nil)
			}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			summary, err := runBatchCreate(cmd, svc, input)
			if err != nil {
				return WrapExitError(ExitCommandError, "running batch", err)
			}

			if err := out.Success(summaryReport(summary)); err != nil {
				return err
			}
			if summary.FailedItems > 0 {
				return WrapExitError(ExitFailure,
					fmt.Sprintf("%d of %d items failed", summary.FailedItems, summary.TotalItems), nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML batch file (required)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func runBatchCreate(cmd *cobra.Command, svc *Services, input batchFile) (batch.Summary, error) {
	ctx := cmd.Context()
	deps := svc.BatchDeps()

	switch input.EntityType {
	case "appointment":
		creator := batch.NewAppointmentCreator(deps, dup.NewAppointmentDetector(svc.Detector), svc.Scheduler)
		return creator.CreateAppointments(ctx, input.UserID, input.Items)
	case "emergency_contact":
		creator := batch.NewContactCreator(deps, dup.NewContactDetector(svc.Detector))
		return creator.CreateContacts(ctx, input.UserID, input.Items, input.EnsureOnePrimary)
	case "meditation_session":
		creator := batch.NewSessionCreator(deps, dup.NewMeditationDetector(svc.Detector))
		return creator.CreateSessions(ctx, input.Items)
	default:
		return batch.Summary{}, fmt.Errorf("unknown entity type %q", input.EntityType)
	}
}

func newBatchStatusCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <batch-context-id>",
		Short: "Show the folded state of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			st, ok, err := svc.Tracker.GetBatchStatus(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "fetching batch status", err)
			}
			if !ok {
				return WrapExitError(ExitFailure, "batch not found", nil)
			}
			return out.Successf("batch %s [%s]: total=%d ok=%d failed=%d",
				st.BatchID, st.Status, st.TotalItems, st.SuccessfulItems, st.FailedItems)
		},
	}
	return cmd
}

func summaryReport(s batch.Summary) string {
	return fmt.Sprintf("batch %s completed: total=%d ok=%d failed=%d",
		s.Batch.ContextID, s.TotalItems, s.SuccessfulItems, s.FailedItems)
}
