package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewRemindersCommand creates the reminders command group.
func NewRemindersCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect and transition scheduled reminders",
	}
	cmd.AddCommand(newRemindersDueCommand(opts))
	cmd.AddCommand(newRemindersSentCommand(opts))
	cmd.AddCommand(newRemindersCancelCommand(opts))
	return cmd
}

func newRemindersDueCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List reminders whose trigger time has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			due, err := svc.Scheduler.DueReminders(cmd.Context(), limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "fetching due reminders", err)
			}

			if opts.Format == "json" {
				return out.Success(due)
			}
			if len(due) == 0 {
				return out.Success("no due reminders")
			}
			var b strings.Builder
			for _, r := range due {
				b.WriteString(r.ContextID)
				b.WriteString("  ")
				b.WriteString(r.TriggerAt.Format(time.RFC3339))
				b.WriteString("  ")
				b.WriteString(r.Title)
				b.WriteByte('\n')
			}
			return out.Success(strings.TrimRight(b.String(), "\n"))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum reminders to return")
	return cmd
}

func newRemindersSentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sent <reminder-context-id>",
		Short: "Mark a reminder as sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			if err := svc.Scheduler.MarkReminderSent(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "marking reminder sent", err)
			}
			return out.Successf("reminder %s marked sent", args[0])
		},
	}
}

func newRemindersCancelCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <reminder-context-id>",
		Short: "Cancel a scheduled reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			if err := svc.Scheduler.CancelReminder(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "cancelling reminder", err)
			}
			return out.Successf("reminder %s cancelled", args[0])
		},
	}
}
