package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/promote/internal/model"
	"github.com/roach88/promote/internal/transfer"
)

// NewRevisionCommand creates the revision command group.
func NewRevisionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revision",
		Short: "Edit entities and inspect their history",
	}
	cmd.AddCommand(newRevisionCommitCommand(rootOpts))
	cmd.AddCommand(newRevisionLogCommand(rootOpts))
	cmd.AddCommand(newRevisionLCACommand(rootOpts))
	return cmd
}

func newRevisionCommitCommand(opts *RootOptions) *cobra.Command {
	var (
		req    transfer.CommitRequest
		fields string
	)

	cmd := &cobra.Command{
		Use:   "commit <type/id>",
		Short: "Save a new revision of an entity in a workspace",
		Long: `Save a new revision of an entity in a workspace.

The revision supersedes the workspace's current revision of the entity. In a
workspace with auto-push set it is delivered to the parent straight away.

Example:
  promote revision commit node/1 --workspace dev --bundle article \
    --fields '{"title":"Hello","body":"First draft"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			ref, err := model.ParseEntityRef(args[0])
			if err != nil {
				return f.Fail("parsing entity", badArgument("%v", err))
			}
			values, err := model.DecodeFields([]byte(fields))
			if err != nil {
				return f.Fail("parsing --fields", badArgument("%v", err))
			}
			req.Entity = ref
			req.Fields = values

			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.engine.Commit(cmd.Context(), req)
			if err != nil {
				return f.Fail("committing revision", err)
			}
			if outErr := f.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "Saved revision %s of %s in %s (parent %s)\n",
					res.Revision.ID, res.Revision.Entity.Key(), res.Revision.WorkspaceID, res.Revision.ParentID)
				if res.Delivery != nil {
					fmt.Fprintf(w, "Auto-pushed in delivery %s: %s\n", res.Delivery.ID, res.Delivery.Status)
				}
			}); outErr != nil {
				return outErr
			}
			if res.AutoPush != nil && res.AutoPush.Err() != nil {
				return WrapExitError(ExitFailure, "auto-push incomplete", res.AutoPush.Err())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.WorkspaceID, "workspace", "w", "", "workspace to save in (required)")
	cmd.Flags().StringVar(&req.Bundle, "bundle", "", "bundle; defaults to the superseded revision's bundle")
	cmd.Flags().StringVar(&fields, "fields", "{}", "field values as a JSON object")
	cmd.Flags().BoolVar(&req.Deleted, "delete", false, "save a tombstone")
	cmd.Flags().StringVarP(&req.Message, "message", "m", "", "revision log message")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newRevisionLogCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log <type/id>",
		Short: "List every revision of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			ref, err := model.ParseEntityRef(args[0])
			if err != nil {
				return f.Fail("parsing entity", badArgument("%v", err))
			}
			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			history, err := a.store.EntityHistory(cmd.Context(), ref)
			if err != nil {
				return f.Fail("loading history", err)
			}
			return f.Success(history, func(w io.Writer) {
				for _, r := range history {
					marks := ""
					if r.Default {
						marks += " default"
					}
					if r.Deleted {
						marks += " deleted"
					}
					if !r.MergeParentID.IsNone() {
						marks += " merged-from=" + r.MergeParentID.String()
					}
					fmt.Fprintf(w, "%-6s %-12s parent=%s%s %s\n", r.ID, r.WorkspaceID, r.ParentID, marks, r.Message)
				}
			})
		},
	}
}

// lcaResult is the output of revision lca.
type lcaResult struct {
	Entity model.EntityRef  `json:"entity"`
	A      model.RevisionID `json:"a"`
	B      model.RevisionID `json:"b"`
	LCA    model.RevisionID `json:"lca"`
	Found  bool             `json:"found"`
}

func newRevisionLCACommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lca <type/id> <revision> <revision>",
		Short: "Find the lowest common ancestor of two revisions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			ref, err := model.ParseEntityRef(args[0])
			if err != nil {
				return f.Fail("parsing entity", badArgument("%v", err))
			}
			a, err := parseRevisionID(args[1])
			if err != nil {
				return f.Fail("parsing revision", err)
			}
			b, err := parseRevisionID(args[2])
			if err != nil {
				return f.Fail("parsing revision", err)
			}

			ap, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer ap.close()

			g, err := ap.engine.Graph(cmd.Context(), ref)
			if err != nil {
				return f.Fail("loading history", err)
			}
			lca, found, err := g.LowestCommonAncestor(a, b)
			if err != nil {
				return f.Fail("computing common ancestor", err)
			}
			res := lcaResult{Entity: ref, A: a, B: b, LCA: lca, Found: found}
			return f.Success(res, func(w io.Writer) {
				fmt.Fprintln(w, lca)
			})
		},
	}
}

func parseRevisionID(s string) (model.RevisionID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return model.NoRevision, badArgument("invalid revision id %q", s)
	}
	return model.RevisionID(n), nil
}
