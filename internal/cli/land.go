package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"arcstack.dev/arcstack/internal/cli/common"
	"arcstack.dev/arcstack/internal/land"
	"arcstack.dev/arcstack/internal/review"
	"arcstack.dev/arcstack/internal/runtime"
)

// PrePushHookName is the executable under .git/hooks notified before a push
const PrePushHookName = "arcstack-pre-push"

func newLandCmd() *cobra.Command {
	var (
		opts     land.Options
		revision string
	)

	cmd := &cobra.Command{
		Use:   "land [branch]",
		Short: "Submit the stack of revisions on a branch to the submit queue",
		Long: `Submit the stack of revisions on a branch to the submit queue.

Every revision found between the target and the branch must be accepted and
must sit on the latest diff of its parent. A stack that does not is rebased
and re-submitted for review after confirmation. The working copy is restored
if anything fails after it was touched.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: common.CompleteBranches,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Branch = args[0]
			}
			if revision != "" {
				id, err := review.NormalizeRevisionID(revision)
				if err != nil {
					return err
				}
				opts.RevisionID = id
			}
			return common.Run(cmd, func(ctx *runtime.Context) error {
				return runLand(ctx, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Onto, "onto", "", "Land into this branch. Defaults to the branch the source tracks, then arc.land.onto.default, then master.")
	cmd.Flags().StringVar(&opts.Remote, "remote", "", "Land through this remote. Defaults to the remote the target tracks, then origin.")
	cmd.Flags().StringVar(&revision, "revision", "", "Land this revision's latest diff instead of the revisions on the branch.")
	cmd.Flags().BoolVar(&opts.Hold, "hold", false, "Prepare and validate the change but stop before submitting it.")
	cmd.Flags().BoolVar(&opts.KeepBranch, "keep-branch", false, "Keep the local branch after landing.")
	cmd.Flags().BoolVar(&opts.Preview, "preview", false, "Show the commits that would land, then stop without changing anything.")
	cmd.Flags().BoolVar(&opts.NoUnit, "nounit", false, "Skip the unit test step.")
	cmd.Flags().BoolVar(&opts.SkipUpdate, "uber-skip-update", false, "Do not merge the target into the branch before validating.")

	return cmd
}

func runLand(ctx *runtime.Context, opts land.Options) error {
	client, err := ctx.Review()
	if err != nil {
		return err
	}
	deps := land.Deps{
		Repo:      ctx.Git,
		Upstreams: ctx.Repository,
		Review:    client,
		Queue:     ctx.SubmitQueue(),
		Prompter:  ctx.Prompter,
		Splog:     ctx.Splog,
		PrePush: land.ScriptHook(
			filepath.Join(ctx.Repository.GitDir(), "hooks", PrePushHookName),
			ctx.RepoRoot, os.Stdout, os.Stderr),
	}
	if ctx.Settings.UnitCommand != "" {
		deps.Unit = land.CommandUnitRunner{
			Dir:     ctx.RepoRoot,
			Command: ctx.Settings.UnitCommand,
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
		}
	}
	return land.New(deps, land.ConfigFromSettings(ctx.Settings)).Land(ctx, opts).AsError()
}
