package cli

import (
	"github.com/spf13/cobra"

	"arcstack.dev/arcstack/internal/cli/common"
	"arcstack.dev/arcstack/internal/runtime"
	"arcstack.dev/arcstack/internal/workspace"
)

func newFlowCmd() *cobra.Command {
	var (
		root     string
		terminal string
		diffs    bool
	)

	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Show local branches as a tracking tree with their review status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				var ws *workspace.Workspace
				client, reviewErr := ctx.Review()
				if reviewErr != nil {
					ctx.Splog.Debug("showing branches without review state: %v", reviewErr)
					heads, err := ctx.Git.HeadRefs(ctx)
					if err != nil {
						return err
					}
					ws = workspace.New(heads, nil, nil)
				} else {
					dc, err := ctx.DiffCache()
					if err != nil {
						return err
					}
					ws, err = workspace.Load(ctx, ctx.Git, client, dc)
					if err != nil {
						return err
					}
				}
				if root != "" {
					ws.SetRootBranch(root)
				}
				if terminal != "" {
					ws.SetTerminalBranch(terminal)
				}

				if reviewErr == nil {
					if err := ws.LoadRevisions(ctx); err != nil {
						return err
					}
					if diffs {
						if err := ws.LoadHeadDiffs(ctx); err != nil {
							return err
						}
						if err := ws.LoadActiveDiffs(ctx); err != nil {
							return err
						}
					}
				}

				out, err := ws.RenderTree()
				if err != nil {
					return err
				}
				ctx.Splog.Page(out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Only show this branch and the branches tracking it.")
	cmd.Flags().StringVar(&terminal, "terminal", "", "Only show this branch and the branches it tracks.")
	cmd.Flags().BoolVar(&diffs, "diffs", false, "Compare each branch with its active diff and flag local changes.")
	_ = cmd.RegisterFlagCompletionFunc("root", common.CompleteBranches)
	_ = cmd.RegisterFlagCompletionFunc("terminal", common.CompleteBranches)

	return cmd
}
