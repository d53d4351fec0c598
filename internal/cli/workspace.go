package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/promote/internal/model"
)

// NewWorkspaceCommand creates the workspace command group.
func NewWorkspaceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage the workspace tree",
	}
	cmd.AddCommand(newWorkspaceAddCommand(rootOpts))
	cmd.AddCommand(newWorkspaceListCommand(rootOpts))
	cmd.AddCommand(newWorkspaceChainCommand(rootOpts))
	return cmd
}

func newWorkspaceAddCommand(opts *RootOptions) *cobra.Command {
	var ws model.Workspace

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a workspace",
		Long: `Add a workspace to the tree.

The first workspace added is the root and takes no parent. Every other
workspace names an existing parent with --parent.

Example:
  promote workspace add live
  promote workspace add stage --parent live
  promote workspace add dev --parent stage --auto-push`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws.ID = args[0]
			f := opts.formatter(cmd)
			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.engine.CreateWorkspace(cmd.Context(), ws); err != nil {
				return f.Fail("adding workspace", err)
			}
			return f.Success(ws, func(w io.Writer) {
				fmt.Fprintf(w, "Added workspace %s\n", ws.ID)
			})
		},
	}

	cmd.Flags().StringVar(&ws.ParentID, "parent", "", "parent workspace")
	cmd.Flags().StringVar(&ws.Label, "label", "", "human-readable label")
	cmd.Flags().BoolVar(&ws.AutoPush, "auto-push", false, "deliver every commit to the parent immediately")
	return cmd
}

func newWorkspaceListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			wss, err := a.store.Workspaces(cmd.Context())
			if err != nil {
				return f.Fail("listing workspaces", err)
			}
			return f.Success(wss, func(w io.Writer) {
				for _, ws := range wss {
					parent := ws.ParentID
					if parent == "" {
						parent = "(root)"
					}
					flags := ""
					if ws.AutoPush {
						flags = " auto-push"
					}
					fmt.Fprintf(w, "%-16s %-16s %s%s\n", ws.ID, parent, ws.Label, flags)
				}
			})
		},
	}
}

func newWorkspaceChainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chain <id>",
		Short: "Show a workspace and its ancestors up to the root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			a, err := opts.open(cmd, f)
			if err != nil {
				return err
			}
			defer a.close()

			h, err := a.engine.Hierarchy(cmd.Context())
			if err != nil {
				return f.Fail("loading workspaces", err)
			}
			chain, err := h.AncestorChain(args[0])
			if err != nil {
				return f.Fail("walking workspace chain", err)
			}
			return f.Success(chain, func(w io.Writer) {
				fmt.Fprintln(w, strings.Join(chain, " -> "))
			})
		},
	}
}
