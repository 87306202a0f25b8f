package cli

import (
	"github.com/spf13/cobra"

	"arcstack.dev/arcstack/internal/cascade"
	"arcstack.dev/arcstack/internal/cli/common"
	"arcstack.dev/arcstack/internal/runtime"
	"arcstack.dev/arcstack/internal/workspace"
)

func newCascadeCmd() *cobra.Command {
	var halt bool

	cmd := &cobra.Command{
		Use:   "cascade",
		Short: "Rebase every branch that tracks the current branch, recursively",
		Long: `Rebase every branch that tracks the current branch, recursively.

Children are rebased with --fork-point onto their parent, parents first. A
child that conflicts is skipped together with everything above it, unless
--halt-on-conflict leaves the conflicted rebase in place for you to resolve.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, func(ctx *runtime.Context) error {
				ws, err := workspace.Load(ctx, ctx.Git, nil, nil)
				if err != nil {
					return err
				}
				engine := cascade.NewEngine(ctx.Git, ws.TrackingGraph(), ctx.Splog, cascade.Options{
					HaltOnConflict: halt || ctx.Settings.CascadeHalt,
				})
				report, err := engine.Cascade(ctx)
				if err != nil {
					return err
				}
				if len(report.Skipped) > 0 {
					ctx.Splog.Warn("Skipped %d branch(es) that did not rebase cleanly.", len(report.Skipped))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&halt, "halt-on-conflict", false, "Stop at the first conflict instead of skipping the branch.")

	return cmd
}
