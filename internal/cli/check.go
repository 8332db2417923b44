package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stoats/internal/engine"
	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
)

// CheckResult reports the integrity and completeness of the database.
type CheckResult struct {
	Violation string        `json:"violation,omitempty"`
	Stale     []string      `json:"stale"`
	Unused    []ir.SourceID `json:"unused"`
	Complete  bool          `json:"complete"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check provenance integrity and response completeness",
		Long: `Check that every composite has all of its inputs, and ask the
completeness oracle whether the response outputs are current.

Exit codes:
  0 - Database is consistent and responses are complete
  1 - A provenance violation was found or responses need a rebuild
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), rootOpts, cmd)
		},
	}
	return cmd
}

func runCheck(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return withApp(opts, func(a *app) error {
		cs := a.config.Calculators(a.registry, engine.SystemClock{}, a.metrics)
		result := CheckResult{Stale: []string{}, Unused: []ir.SourceID{}}

		err := a.store.View(ctx, func(tx *store.Tx) error {
			if err := tx.CheckComposites(ctx); err != nil {
				if !store.IsProvenanceViolation(err) {
					return err
				}
				result.Violation = err.Error()
			}
			verdict, err := cs.Response.Check(ctx, tx, engine.SystemClock{}.Now())
			if err != nil {
				return err
			}
			result.Stale = append(result.Stale, verdict.Stale...)
			result.Unused = append(result.Unused, verdict.Unused...)
			result.Complete = verdict.Complete()
			return nil
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "check failed", err)
		}

		f := a.formatter(cmd)
		if f.Format == "json" {
			if err := f.Success(result); err != nil {
				return err
			}
		} else {
			w := cmd.OutOrStdout()
			if result.Violation != "" {
				fmt.Fprintf(w, "✗ provenance: %s\n", result.Violation)
			} else {
				fmt.Fprintln(w, "✓ provenance")
			}
			if result.Complete {
				fmt.Fprintln(w, "✓ responses complete")
			} else {
				fmt.Fprintln(w, "✗ responses incomplete")
				for _, s := range result.Stale {
					fmt.Fprintf(w, "  stale: %s\n", s)
				}
				if len(result.Unused) > 0 {
					fmt.Fprintf(w, "  unused sources: %v\n", result.Unused)
				}
			}
		}

		switch {
		case result.Violation != "":
			return NewExitError(ExitFailure, "provenance violation")
		case !result.Complete:
			return NewExitError(ExitFailure, "responses incomplete: run calculate")
		}
		return nil
	})
}
