package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stoats/internal/engine"
)

// CalculateOptions holds flags for the calculate command.
type CalculateOptions struct {
	*RootOptions
	Owners  []string
	Names   []string
	Start   string
	Finish  string
	Force   bool
	Workers int
}

// JobSummary reports one calculator job.
type JobSummary struct {
	Owner      string `json:"owner"`
	RunID      string `json:"run_id"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// NewCalculateCommand creates the calculate command.
func NewCalculateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CalculateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Run calculators",
		Long: `Run calculators over imported data.

Calculators are selected by owner (--owner) or by the statistics they
write (--name); with neither, all of them run. Impulse and rest heart
rate run first, in parallel, then the responses that read the impulse.

Interval calculators only visit windows that have closed; --start and
--finish bound the sweep. Existing outputs are kept unless --force is
given.

Exit codes:
  0 - All jobs succeeded
  1 - One or more jobs failed
  2 - Command error (bad flags, database not found, etc.)

Examples:
  stoats calculate
  stoats calculate --owner RestHR --start 2024-01-01 --finish 2024-02-01
  stoats calculate --name Fitness --force`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalculate(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Owners, "owner", nil, "calculator owners to run")
	cmd.Flags().StringSliceVar(&opts.Names, "name", nil, "run the calculators that write these statistics")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start of the sweep (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&opts.Finish, "finish", "", "end of the sweep (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "recalculate existing outputs")
	cmd.Flags().IntVar(&opts.Workers, "workers", engine.DefaultWorkers, "parallel workers")

	return cmd
}

func runCalculate(ctx context.Context, opts *CalculateOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start, err := parseTime(opts.Start)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --start", err)
	}
	finish, err := parseTime(opts.Finish)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --finish", err)
	}
	if !start.IsZero() && !finish.IsZero() && !finish.After(start) {
		return NewExitError(ExitCommandError, "--finish must be after --start")
	}

	return withApp(opts.RootOptions, func(a *app) error {
		cs := a.config.Calculators(a.registry, engine.SystemClock{}, a.metrics)

		owners := append([]string(nil), opts.Owners...)
		named, err := cs.OwnersFor(opts.Names)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --name", err)
		}
		owners = append(owners, named...)

		stages, err := cs.Stages(owners, engine.Range{Start: start, Finish: finish, Force: opts.Force})
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --owner", err)
		}

		sched := engine.NewScheduler(a.store,
			engine.WithWorkers(opts.Workers),
			engine.WithMetrics(a.metrics),
		)
		f := a.formatter(cmd)
		for i, stage := range stages {
			f.VerboseLog("stage %d: %d jobs", i+1, len(stage))
		}
		sched.Start(ctx)
		results := sched.RunStages(ctx, stages)
		sched.Stop()

		summaries := make([]JobSummary, len(results))
		failed := 0
		for i, r := range results {
			summaries[i] = JobSummary{Owner: r.Owner, RunID: r.RunID, DurationMs: r.Duration.Milliseconds()}
			if r.Err != nil {
				summaries[i].Error = r.Err.Error()
				failed++
			}
		}

		if f.Format == "json" {
			if err := f.Success(summaries); err != nil {
				return err
			}
		} else {
			w := cmd.OutOrStdout()
			for _, s := range summaries {
				if s.Error != "" {
					fmt.Fprintf(w, "✗ %s: %s\n", s.Owner, s.Error)
					continue
				}
				fmt.Fprintf(w, "✓ %s (%s)\n", s.Owner, (time.Duration(s.DurationMs) * time.Millisecond).String())
			}
		}

		if failed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d of %d jobs failed", failed, len(results)))
		}
		return nil
	})
}
