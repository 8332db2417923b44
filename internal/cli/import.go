package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/stoats/internal/activity"
	"github.com/roach88/stoats/internal/ir"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Force  bool
	Define map[string]string
}

// ImportSummary reports one imported file.
type ImportSummary struct {
	File     string      `json:"file"`
	Status   string      `json:"status"`
	Activity ir.SourceID `json:"activity,omitempty"`
	Group    string      `json:"group,omitempty"`
	Sport    string      `json:"sport,omitempty"`
	Records  int         `json:"records"`
	Written  int         `json:"written"`
	Skipped  int         `json:"skipped"`
	Error    string      `json:"error,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import activity files",
		Long: `Import JSON-lines activity files.

Each file becomes one activity source. Record fields are mapped to
statistics by the configuration, and coverage is recorded per field.
A file that was imported before is skipped unless --force is given, in
which case the old activity and everything derived from it is replaced.

Defines are stored as text statistics and take part in activity group
resolution. The "kit" define records a use of that kit item.

Examples:
  stoats import ride.jsonl
  stoats import --define kit=cotic --define type=commute ride.jsonl
  stoats import --force ride.jsonl`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace previously imported files")
	cmd.Flags().StringToStringVarP(&opts.Define, "define", "D", nil, "define an attribute (key=value)")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, files []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return withApp(opts.RootOptions, func(a *app) error {
		importer := activity.NewImporter(a.store, a.config, a.registry,
			activity.WithMetrics(a.metrics),
			activity.WithKit(a.kit),
		)

		f := a.formatter(cmd)
		summaries := make([]ImportSummary, 0, len(files))
		failed := 0
		for _, file := range files {
			f.VerboseLog("importing %s", file)
			res, err := importer.ImportFile(ctx, file, opts.Define, opts.Force)
			s := ImportSummary{
				File:     file,
				Status:   activity.StatusOK,
				Activity: res.Activity,
				Group:    res.Group,
				Sport:    res.Sport,
				Records:  res.Records,
				Written:  res.Written,
				Skipped:  res.Skipped,
			}
			switch {
			case errors.Is(err, activity.ErrAlreadyImported):
				s.Status = activity.StatusSkipped
			case err != nil:
				s.Status = activity.StatusFailed
				s.Error = err.Error()
				failed++
			case res.Replaced:
				s.Status = activity.StatusReplaced
			}
			summaries = append(summaries, s)
		}

		if f.Format == "json" {
			if err := f.Success(summaries); err != nil {
				return err
			}
		} else {
			w := cmd.OutOrStdout()
			for _, s := range summaries {
				name := filepath.Base(s.File)
				switch s.Status {
				case activity.StatusSkipped:
					fmt.Fprintf(w, "- %s: already imported (use --force to replace)\n", name)
				case activity.StatusFailed:
					fmt.Fprintf(w, "✗ %s: %s\n", name, s.Error)
				default:
					fmt.Fprintf(w, "✓ %s: activity %d (%s), %d records, %d values\n",
						name, s.Activity, s.Group, s.Records, s.Written)
				}
			}
		}

		if failed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d of %d imports failed", failed, len(files)))
		}
		return nil
	})
}
