package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stoats/internal/store"
)

// CleanResult reports what clean removed.
type CleanResult struct {
	Composites    int `json:"composites"`
	KitComponents int `json:"kit_components"`
}

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove orphaned and incomplete composites",
		Long: `Remove composite sources that lost an input or no longer source
anything, and kit components without models.

Running clean twice removes nothing the second time.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), rootOpts, cmd)
		},
	}
	return cmd
}

func runClean(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return withApp(opts, func(a *app) error {
		var result CleanResult
		err := a.store.Update(ctx, func(tx *store.Tx) error {
			var err error
			if result.Composites, err = tx.CleanComposites(ctx); err != nil {
				return err
			}
			result.KitComponents, err = tx.DeleteUnusedKitComponents(ctx)
			return err
		})
		if err != nil {
			return WrapExitError(ExitFailure, "clean failed", err)
		}

		f := a.formatter(cmd)
		if f.Format == "json" {
			return f.Success(result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d composites and %d kit components.\n",
			result.Composites, result.KitComponents)
		return nil
	})
}
