package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Hash  string // look the source up by activity file hash
	Depth int    // 0 prints the whole tree
}

// TraceResult holds the provenance tree and a summary of it.
type TraceResult struct {
	Root  store.ProvenanceNode `json:"root"`
	Stats TraceStats           `json:"stats"`
}

// TraceStats summarises a provenance tree.
type TraceStats struct {
	Nodes  int                   `json:"nodes"`
	Depth  int                   `json:"depth"`
	Leaves []ir.SourceID         `json:"leaves"`
	Kinds  map[ir.SourceKind]int `json:"kinds"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [source-id]",
		Short: "Show the provenance of a source",
		Long: `Show every source upstream of a source: for a composite, the
sources it was derived from, down to the activities and kit that
started the chain.

Examples:
  stoats trace 42
  stoats trace --hash 9f2c... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Hash, "hash", "", "trace the activity imported from the file with this hash")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "limit text output to this many levels (0 = all)")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if (len(args) == 1) == (opts.Hash != "") {
		return NewExitError(ExitCommandError, "give either a source id or --hash")
	}

	return withApp(opts.RootOptions, func(a *app) error {
		f := a.formatter(cmd)

		var root store.ProvenanceNode
		err := a.store.View(ctx, func(tx *store.Tx) error {
			id, err := traceTarget(ctx, tx, opts.Hash, args)
			if err != nil {
				return err
			}
			root, err = tx.Provenance(ctx, id)
			return err
		})
		if err != nil {
			if store.IsNotFound(err) {
				if f.Format == "json" {
					_ = f.Error(ErrCodeNotFound, err.Error(), nil)
				}
				return WrapExitError(ExitFailure, "source not found", err)
			}
			return WrapExitError(ExitCommandError, "trace failed", err)
		}

		result := TraceResult{Root: root, Stats: summarise(root)}
		if f.Format == "json" {
			return f.Success(result)
		}
		writeTree(cmd.OutOrStdout(), root, 0, opts.Depth)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d sources, depth %d, %d leaves\n",
			result.Stats.Nodes, result.Stats.Depth, len(result.Stats.Leaves))
		return nil
	})
}

func traceTarget(ctx context.Context, tx *store.Tx, hash string, args []string) (ir.SourceID, error) {
	if hash != "" {
		act, err := tx.ActivityByHash(ctx, hash)
		if err != nil {
			return 0, err
		}
		return act.ID, nil
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || n <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid source id %q", args[0]))
	}
	return ir.SourceID(n), nil
}

// summarise counts nodes by kind and collects distinct leaves in
// first-seen order.
func summarise(root store.ProvenanceNode) TraceStats {
	stats := TraceStats{Leaves: []ir.SourceID{}, Kinds: map[ir.SourceKind]int{}}
	seen := map[ir.SourceID]bool{}

	var walk func(n store.ProvenanceNode, depth int)
	walk = func(n store.ProvenanceNode, depth int) {
		stats.Nodes++
		stats.Kinds[n.Source.Kind]++
		if depth > stats.Depth {
			stats.Depth = depth
		}
		if len(n.Inputs) == 0 && !seen[n.Source.ID] {
			seen[n.Source.ID] = true
			stats.Leaves = append(stats.Leaves, n.Source.ID)
		}
		for _, in := range n.Inputs {
			walk(in, depth+1)
		}
	}
	walk(root, 0)
	return stats
}

func writeTree(w io.Writer, n store.ProvenanceNode, level, limit int) {
	indent := strings.Repeat("  ", level)
	line := fmt.Sprintf("%s%d %s", indent, n.Source.ID, n.Source.Kind)
	if n.Detail != "" {
		line += " (" + n.Detail + ")"
	}
	fmt.Fprintln(w, line)

	if limit > 0 && level+1 >= limit {
		if len(n.Inputs) > 0 {
			fmt.Fprintf(w, "%s  ... %d inputs\n", indent, len(n.Inputs))
		}
		return
	}
	for _, in := range n.Inputs {
		writeTree(w, in, level+1, limit)
	}
}
