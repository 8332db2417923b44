package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/kit"
	"github.com/roach88/stoats/internal/store"
)

// KitOptions holds flags shared by the kit subcommands.
type KitOptions struct {
	*RootOptions
	At    string
	Force bool
	Group string
}

// NewKitCommand creates the kit command and its subcommands.
func NewKitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "kit",
		Short: "Track equipment and the parts fitted to it",
		Long: `Track kit: items (a bike, a pair of shoes) in groups, and the
models fitted to each component of an item over time.

Examples:
  stoats kit new bike cotic --force
  stoats kit add cotic chain sram-pc1 --at 2024-03-01 --force
  stoats kit retire sram-pc1
  stoats kit use 12 cotic
  stoats kit show cotic`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.At, "at", "", "when the change happened (YYYY-MM-DD or RFC 3339, default now)")
	cmd.PersistentFlags().BoolVar(&opts.Force, "force", false, "allow new groups and components, or re-retiring")

	cmd.AddCommand(
		kitSubcommand(opts, "new <group> <item>", "Create an item", 2, kitNew),
		kitSubcommand(opts, "add <item> <component> <model>", "Fit a model to an item", 3, kitAdd),
		kitSubcommand(opts, "retire <item-or-model>", "Retire an item or model", 1, kitRetire),
		kitSubcommand(opts, "use <activity-id> <item>", "Record that an activity used an item", 2, kitUse),
		kitSubcommand(opts, "delete <item-or-model>", "Delete an item or all models with a name", 1, kitDelete),
		newKitShowCommand(opts),
	)
	return cmd
}

type kitFunc func(ctx context.Context, a *app, tx *store.Tx, opts *KitOptions, args []string) (string, error)

func kitSubcommand(opts *KitOptions, use, short string, nargs int, fn kitFunc) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(nargs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKit(cmd, opts, args, fn)
		},
	}
}

func runKit(cmd *cobra.Command, opts *KitOptions, args []string, fn kitFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return withApp(opts.RootOptions, func(a *app) error {
		var message string
		err := a.store.Update(ctx, func(tx *store.Tx) error {
			var err error
			message, err = fn(ctx, a, tx, opts, args)
			return err
		})
		if err != nil {
			return WrapExitError(ExitFailure, "kit "+cmd.Name()+" failed", err)
		}

		f := a.formatter(cmd)
		if f.Format == "json" {
			return f.Success(map[string]string{"message": message})
		}
		fmt.Fprintln(cmd.OutOrStdout(), message)
		return nil
	})
}

func (o *KitOptions) at() (time.Time, error) {
	if o.At == "" {
		return time.Now().UTC(), nil
	}
	return parseTime(o.At)
}

func kitNew(ctx context.Context, a *app, tx *store.Tx, opts *KitOptions, args []string) (string, error) {
	at, err := opts.at()
	if err != nil {
		return "", err
	}
	id, err := a.kit.New(ctx, tx, args[0], args[1], at, opts.Force)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created %s %s (source %d).", args[0], args[1], id), nil
}

func kitAdd(ctx context.Context, a *app, tx *store.Tx, opts *KitOptions, args []string) (string, error) {
	at, err := opts.at()
	if err != nil {
		return "", err
	}
	id, err := a.kit.Add(ctx, tx, args[0], args[1], args[2], at, opts.Force)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Fitted %s %s to %s (source %d).", args[1], args[2], args[0], id), nil
}

func kitRetire(ctx context.Context, a *app, tx *store.Tx, opts *KitOptions, args []string) (string, error) {
	at, err := opts.at()
	if err != nil {
		return "", err
	}
	if err := a.kit.Retire(ctx, tx, args[0], at, opts.Force); err != nil {
		return "", err
	}
	return fmt.Sprintf("Retired %s.", args[0]), nil
}

// kitUse stamps the activity's start unless --at is given.
func kitUse(ctx context.Context, a *app, tx *store.Tx, opts *KitOptions, args []string) (string, error) {
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid activity id %q", args[0])
	}
	act, err := findActivity(ctx, tx, ir.SourceID(n))
	if err != nil {
		return "", err
	}
	at := act.Start
	if opts.At != "" {
		if at, err = parseTime(opts.At); err != nil {
			return "", err
		}
	}
	count, err := a.kit.Use(ctx, tx, act.ID, args[1], at)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Recorded use of %s by activity %d (%d kit sources).", args[1], act.ID, count), nil
}

func kitDelete(ctx context.Context, a *app, tx *store.Tx, opts *KitOptions, args []string) (string, error) {
	if err := a.kit.Delete(ctx, tx, args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted %s.", args[0]), nil
}

func findActivity(ctx context.Context, tx *store.Tx, id ir.SourceID) (ir.Activity, error) {
	acts, err := tx.ListActivities(ctx)
	if err != nil {
		return ir.Activity{}, err
	}
	for _, act := range acts {
		if act.ID == id {
			return act, nil
		}
	}
	return ir.Activity{}, fmt.Errorf("activity %d not found", id)
}

func newKitShowCommand(opts *KitOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show [item]",
		Short:         "Show an item, or list items",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKitShow(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.Group, "group", "", "list only items in this group")
	return cmd
}

func runKitShow(cmd *cobra.Command, opts *KitOptions, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var at time.Time
	if opts.At != "" {
		var err error
		if at, err = parseTime(opts.At); err != nil {
			return WrapExitError(ExitCommandError, "invalid --at", err)
		}
	}

	return withApp(opts.RootOptions, func(a *app) error {
		var views []kit.ItemView
		err := a.store.View(ctx, func(tx *store.Tx) error {
			names := args
			if len(names) == 0 {
				items, err := tx.ListKitItems(ctx, opts.Group)
				if err != nil {
					return err
				}
				for _, it := range items {
					names = append(names, it.Name)
				}
			}
			for _, name := range names {
				view, err := a.kit.Show(ctx, tx, name, at)
				if err != nil {
					return err
				}
				views = append(views, view)
			}
			return nil
		})
		if err != nil {
			if store.IsNotFound(err) {
				return WrapExitError(ExitFailure, "kit not found", err)
			}
			return WrapExitError(ExitCommandError, "kit show failed", err)
		}

		f := a.formatter(cmd)
		if f.Format == "json" {
			if views == nil {
				views = []kit.ItemView{}
			}
			return f.Success(views)
		}
		w := cmd.OutOrStdout()
		if len(views) == 0 {
			fmt.Fprintln(w, "No kit.")
			return nil
		}
		for _, v := range views {
			fmt.Fprintf(w, "%s/%s  added %s", v.Group, v.Name, v.Added.Format(time.DateOnly))
			if v.Retired != nil {
				fmt.Fprintf(w, "  retired %s", v.Retired.Format(time.DateOnly))
			}
			fmt.Fprintf(w, "  uses %d\n", v.Uses)
			for _, c := range v.Components {
				for _, m := range c.Models {
					fmt.Fprintf(w, "  %-12s %s  added %s", c.Name, m.Name, m.Added.Format(time.DateOnly))
					if m.Retired != nil {
						fmt.Fprintf(w, "  retired %s", m.Retired.Format(time.DateOnly))
					}
					fmt.Fprintln(w)
				}
			}
		}
		return nil
	})
}
