// Package cli implements the locuscore command line interface: operator
// commands for migrations, reminders, caches, and bulk imports, all built
// on the same service wiring the route layer uses.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Backend string // "" = from environment
	DBPath  string // "" = from environment
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the locuscore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "locuscore",
		Short: "locuscore - storage semantics over an append-only event store",
		Long:  "Operator tooling for the event-backed storage layer: caches, reminders, bulk imports and schema migrations.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend override (memory|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "sqlite database path override")

	// Add subcommands
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewRemindersCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
