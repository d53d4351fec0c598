package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/transfer"
)

// NewDeliveryCommand creates the delivery command group.
func NewDeliveryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delivery",
		Short: "Create, inspect and apply deliveries",
		Long: `A delivery carries pinned entity revisions from a source workspace to one
or more target workspaces. Each (target, entity) pair is an item that is
classified, checked for conflicts and resolved exactly once.`,
	}
	cmd.AddCommand(newDeliveryCreateCommand(rootOpts))
	cmd.AddCommand(newDeliveryStatusCommand(rootOpts))
	cmd.AddCommand(newDeliveryDiscoverCommand(rootOpts))
	cmd.AddCommand(newDeliveryResolveCommand(rootOpts))
	cmd.AddCommand(newDeliveryForwardCommand(rootOpts))
	cmd.AddCommand(newDeliveryPullCommand(rootOpts))
	cmd.AddCommand(newDeliveryPushCommand(rootOpts))
	return cmd
}

func newDeliveryCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		req  transfer.DeliveryRequest
		refs []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a delivery",
		Long: `Create a delivery from --source to every --target.

Without --ref the delivery captures the source's pending changes: the newest
revision of every entity edited in the source workspace. A --ref without
@revision pins the source's current revision of that entity.

Example:
  promote delivery create --source dev --target stage
  promote delivery create --source dev --target stage --target live --ref node/1@4 --ref node/2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			for _, s := range refs {
				ref, err := parseRevisionRef(s)
				if err != nil {
					return f.Fail("parsing --ref", err)
				}
				req.Refs = append(req.Refs, ref)
			}

			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.engine.CreateDelivery(cmd.Context(), req)
			if err != nil {
				return f.Fail("creating delivery", err)
			}
			return f.Success(d, func(w io.Writer) {
				fmt.Fprintf(w, "Created delivery %s: %s -> %s (%d entities)\n",
					d.ID, d.SourceID, strings.Join(d.TargetIDs, ", "), len(d.Refs))
				for _, r := range d.Refs {
					fmt.Fprintf(w, "  %s\n", r)
				}
			})
		},
	}

	cmd.Flags().StringVar(&req.SourceID, "source", "", "source workspace (required)")
	cmd.Flags().StringArrayVar(&req.TargetIDs, "target", nil, "target workspace (repeatable, required)")
	cmd.Flags().StringArrayVar(&refs, "ref", nil, "entity to deliver as type/id or type/id@revision (repeatable)")
	cmd.Flags().StringVar(&req.Label, "label", "", "human-readable label")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newDeliveryStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <delivery-id>",
		Short: "Classify every item of a delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.engine.Status(cmd.Context(), args[0])
			if err != nil {
				return f.Fail("loading delivery", err)
			}
			return f.Success(report, func(w io.Writer) {
				d := report.Delivery
				fmt.Fprintf(w, "Delivery %s (%s): %s -> %s\n", d.ID, d.Status, d.SourceID, strings.Join(d.TargetIDs, ", "))
				if d.ForwardedFrom != "" {
					fmt.Fprintf(w, "Forwarded from %s\n", d.ForwardedFrom)
				}
				for _, it := range report.Items {
					status := string(it.Status)
					if it.Error != "" {
						status = "error: " + it.Error
					}
					fmt.Fprintf(w, "  %-12s %-20s %-10s %s\n", it.Target, it.Ref.Key(), it.Resolution, status)
				}
				fmt.Fprintln(w, formatCounts(report.Counts()))
			})
		},
	}
}

func newDeliveryDiscoverCommand(opts *RootOptions) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "discover <delivery-id> <type/id>",
		Short: "Show the conflicting fields of one delivery item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			ref, err := model.ParseEntityRef(args[1])
			if err != nil {
				return f.Fail("parsing entity", badArgument("%v", err))
			}
			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			dis, err := a.engine.Discover(cmd.Context(), args[0], target, ref)
			if err != nil {
				return f.Fail("discovering conflicts", err)
			}
			return f.Success(dis, func(w io.Writer) {
				fmt.Fprintf(w, "%s in %s: %s\n", ref.Key(), target, dis.State.Status)
				for _, field := range dis.Conflicts.Fields() {
					fmt.Fprintf(w, "  %-20s %s\n", field, dis.Conflicts[field])
				}
			})
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "target workspace (required)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newDeliveryResolveCommand(opts *RootOptions) *cobra.Command {
	var (
		target  string
		take    string
		selects []string
	)

	cmd := &cobra.Command{
		Use:   "resolve <delivery-id> [type/id]",
		Short: "Resolve delivery items",
		Long: `Resolve one item of a delivery, or every unresolved item when no entity
is given.

--take source|target decides the whole item. Otherwise the item is merged
automatically and --select supplies choices for fields that still conflict:
field=source, field=target or field=custom:<json>.

Example:
  promote delivery resolve d1 node/1 --target stage --select title=source
  promote delivery resolve d1 --take target`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			decision, err := parseDecision(take)
			if err != nil {
				return f.Fail("parsing --take", err)
			}
			sel, err := parseSelections(selects)
			if err != nil {
				return f.Fail("parsing --select", err)
			}

			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			if len(args) == 1 {
				var decisions transfer.Decisions
				if take != "" {
					decisions = transfer.Decisions{}
					d, err := a.store.LoadDelivery(cmd.Context(), args[0])
					if err != nil {
						return f.Fail("loading delivery", err)
					}
					for _, r := range d.Refs {
						decisions[r.Entity.Key()] = decision
					}
				}
				report, err := a.engine.ResolveDelivery(cmd.Context(), args[0], decisions, nil)
				if err != nil {
					return f.Fail("resolving delivery", err)
				}
				return finishReport(f, report)
			}

			if target == "" {
				return f.Fail("resolving item", badArgument("--target is required when resolving one entity"))
			}
			ref, err := model.ParseEntityRef(args[1])
			if err != nil {
				return f.Fail("parsing entity", badArgument("%v", err))
			}
			key := model.ItemKey{DeliveryID: args[0], TargetID: target, Entity: ref}
			res, err := a.engine.ResolveItem(cmd.Context(), key, decision, sel)
			if err != nil {
				return f.Fail("resolving item", err)
			}
			if outErr := f.Success(res, func(w io.Writer) {
				switch {
				case res.Skipped:
					fmt.Fprintf(w, "%s already resolved: %s\n", key, res.Item.Resolution)
				case res.NeedsInput():
					fmt.Fprintf(w, "%s needs a selection for: %s\n", key, strings.Join(res.Remaining, ", "))
				default:
					fmt.Fprintf(w, "%s resolved: %s (revision %s)\n", key, res.Item.Resolution, res.Item.ResultRevisionID)
				}
			}); outErr != nil {
				return outErr
			}
			if res.NeedsInput() {
				return NewExitError(ExitFailure, "fields need a selection: "+strings.Join(res.Remaining, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "target workspace of the item")
	cmd.Flags().StringVar(&take, "take", "", "decide the whole item: source or target")
	cmd.Flags().StringArrayVar(&selects, "select", nil, "field choice: field=source|target|custom:<json> (repeatable)")
	return cmd
}

func newDeliveryForwardCommand(opts *RootOptions) *cobra.Command {
	var (
		from    string
		targets []string
	)

	cmd := &cobra.Command{
		Use:   "forward <delivery-id>",
		Short: "Forward a delivery from one of its targets to further workspaces",
		Long: `Create a new delivery from --from to every --target carrying the same
entities. Each entity is pinned to its newest revision in --from that
descends from the merge of the original delivery, so edits made after the
merge travel along.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			d, report, err := a.engine.Forward(cmd.Context(), args[0], from, targets)
			if err != nil {
				return f.Fail("forwarding delivery", err)
			}
			out := struct {
				Delivery model.Delivery   `json:"delivery"`
				Report   *transfer.Report `json:"report"`
			}{d, report}
			if outErr := f.Success(out, func(w io.Writer) {
				fmt.Fprintf(w, "Forwarded %s as %s: %s -> %s\n", args[0], d.ID, d.SourceID, strings.Join(d.TargetIDs, ", "))
				for _, r := range d.Refs {
					fmt.Fprintf(w, "  %s\n", r)
				}
				printFailures(w, report)
			}); outErr != nil {
				return outErr
			}
			if err := report.Err(); err != nil {
				return WrapExitError(ExitFailure, "some entities could not be forwarded", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "workspace to forward from; must be a target of the delivery (required)")
	cmd.Flags().StringArrayVar(&targets, "target", nil, "new target workspace (repeatable, required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newDeliveryPullCommand(opts *RootOptions) *cobra.Command {
	var ws string

	cmd := &cobra.Command{
		Use:   "pull <delivery-id>",
		Short: "Pull a delivery into one of its targets",
		Long: `Pull writes every modified or new entity of the delivery into the
workspace in one transaction. If any entity conflicts nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.engine.Pull(cmd.Context(), args[0], ws)
			if err != nil {
				return f.Fail("pulling delivery", err)
			}
			return finishReport(f, report)
		},
	}

	cmd.Flags().StringVarP(&ws, "workspace", "w", "", "workspace to pull into (required)")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newDeliveryPushCommand(opts *RootOptions) *cobra.Command {
	var (
		batch  int
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "push <delivery-id>",
		Short: "Push the next batch of a delivery into all its targets",
		Long: `Push processes the next batch of entities, starting where the previous
call stopped, and writes the source side into every target. Run it again
until the cursor reaches the end; the delivery closes once every item is
resolved.

--fields type=f1,f2 copies only the listed fields of that entity type.
Once any --fields is given, unlisted types are left as they are in the
targets. type= with no fields copies every field of that type.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			push := transfer.PushOptions{BatchSize: batch}
			if len(fields) > 0 {
				parsed, err := parseFieldFilter(fields)
				if err != nil {
					return f.Fail("parsing --fields", err)
				}
				push.Fields = parsed
			}

			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.engine.PushBatch(cmd.Context(), args[0], push)
			if err != nil {
				return f.Fail("pushing delivery", err)
			}
			return finishReport(f, report)
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "entities in this batch (default --batch-size)")
	cmd.Flags().StringArrayVar(&fields, "fields", nil, "fields to copy: type=f1,f2 (repeatable)")
	return cmd
}

// finishReport prints a multi-entity report and fails when any entity
// failed.
func finishReport(f *OutputFormatter, report *transfer.Report) error {
	if err := f.Success(report, func(w io.Writer) { printReport(w, report) }); err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return WrapExitError(ExitFailure, "some entities failed", err)
	}
	return nil
}

func printReport(w io.Writer, r *transfer.Report) {
	for _, res := range r.Succeeded {
		line := fmt.Sprintf("  %-8s %-12s %-20s %s", "ok", res.Target, res.Entity.Key(), res.Outcome)
		if !res.Revision.IsNone() {
			line += " revision=" + res.Revision.String()
		}
		fmt.Fprintln(w, line)
	}
	for _, res := range r.Blocked {
		reason := res.Error
		if len(res.Conflicts) > 0 {
			reason = "needs selection: " + strings.Join(res.Conflicts, ", ")
		}
		fmt.Fprintf(w, "  %-8s %-12s %-20s %s\n", "blocked", res.Target, res.Entity.Key(), reason)
	}
	printFailures(w, r)
	if r.Cursor != nil {
		fmt.Fprintf(w, "Progress: %d/%d\n", r.Cursor.Position, r.Cursor.Total)
	}
	fmt.Fprintf(w, "%d succeeded, %d blocked, %d failed\n", len(r.Succeeded), len(r.Blocked), len(r.Failed))
}

func printFailures(w io.Writer, r *transfer.Report) {
	for _, res := range r.Failed {
		fmt.Fprintf(w, "  %-8s %-12s %-20s %s\n", "failed", res.Target, res.Entity.Key(), res.Error)
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}
