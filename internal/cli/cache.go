package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Invalidate event-backed cache entries",
	}
	cmd.AddCommand(newCacheInvalidateCommand(opts))
	cmd.AddCommand(newCacheInvalidatePatternCommand(opts))
	return cmd
}

func newCacheInvalidateCommand(opts *RootOptions) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "invalidate <key>",
		Short: "Tombstone one cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			parsed, err := parseParams(params)
			if err != nil {
				return WrapExitError(ExitCommandError, "parsing params", err)
			}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			if err := svc.Cache.Invalidate(cmd.Context(), args[0], parsed); err != nil {
				return WrapExitError(ExitCommandError, "invalidating cache entry", err)
			}
			return out.Successf("invalidated %s", args[0])
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "cache parameter as key=value (repeatable)")
	return cmd
}

func newCacheInvalidatePatternCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate-pattern <prefix>",
		Short: "Tombstone every entry whose key matches a prefix",
		Long:  "Best-effort: one bounded search finds the candidates, so entries beyond the search limit survive.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

			svc, err := buildServices(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "initializing services", err)
			}
			defer svc.Close()

			n, err := svc.Cache.InvalidatePattern(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalidating cache entries", err)
			}
			return out.Successf("invalidated %d entries matching %s", n, args[0])
		},
	}
}

// parseParams turns repeated key=value flags into a params map.
func parseParams(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed param %q, want key=value", kv)
		}
		params[key] = value
	}
	return params, nil
}
