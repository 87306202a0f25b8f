package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/testhelpers"
)

// conflictScene has main and branch1 both changing conflict_test.txt
func conflictScene(t *testing.T) (*testhelpers.Scene, *git.API) {
	t.Helper()
	scene := testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
		return s.Repo.CreateChangeAndCommit("initial content", "conflict")
	})
	require.NoError(t, scene.Repo.CreateAndCheckoutBranch("branch1"))
	require.NoError(t, scene.Repo.CreateChange("branch1 modification", "conflict", false))
	require.NoError(t, scene.Repo.CreateChangeAndCommit("branch1 change", "b1"))

	require.NoError(t, scene.Repo.CheckoutBranch("main"))
	require.NoError(t, scene.Repo.CreateChange("main conflicting modification", "conflict", false))
	require.NoError(t, scene.Repo.CreateChangeAndCommit("main conflicting change", "main"))
	return scene, git.NewAPI(git.NewCommandRunner(scene.Dir))
}

func TestRebase(t *testing.T) {
	ctx := context.Background()

	t.Run("rebases branch onto parent", func(t *testing.T) {
		scene := testhelpers.NewScene(t, func(s *testhelpers.Scene) error {
			return s.Repo.CreateChangeAndCommit("initial", "init")
		})
		require.NoError(t, scene.Repo.CreateAndCheckoutBranch("branch1"))
		require.NoError(t, scene.Repo.CreateChangeAndCommit("branch1 change", "b1"))
		require.NoError(t, scene.Repo.CheckoutBranch("main"))
		require.NoError(t, scene.Repo.CreateChangeAndCommit("main update", "main"))

		api := git.NewAPI(git.NewCommandRunner(scene.Dir))
		res, err := api.Rebase(ctx, "main", "branch1", false)
		require.NoError(t, err)
		require.True(t, res.OK(), res.Stderr)

		mainSHA, err := api.ResolveCommit(ctx, "main")
		require.NoError(t, err)
		base, err := api.MergeBase(ctx, "main", "branch1")
		require.NoError(t, err)
		require.Equal(t, mainSHA, base)
	})

	t.Run("reports the conflict and can be aborted", func(t *testing.T) {
		scene, api := conflictScene(t)

		res, err := api.Rebase(ctx, "main", "branch1", false)
		require.NoError(t, err)
		require.False(t, res.OK())
		require.Contains(t, git.ExtractConflict(res.Stdout+"\n"+res.Stderr), "CONFLICT")

		inProgress, err := api.IsRebaseInProgress(ctx)
		require.NoError(t, err)
		require.True(t, inProgress)
		require.True(t, scene.Repo.RebaseInProgress())

		require.NoError(t, api.RebaseAbort(ctx))
		inProgress, err = api.IsRebaseInProgress(ctx)
		require.NoError(t, err)
		require.False(t, inProgress)
	})

	t.Run("merge conflict can be aborted", func(t *testing.T) {
		_, api := conflictScene(t)
		require.NoError(t, api.Checkout(ctx, "branch1"))
		before, err := api.HeadSHA(ctx)
		require.NoError(t, err)

		res, err := api.Merge(ctx, "main")
		require.NoError(t, err)
		require.False(t, res.OK())
		require.NotEmpty(t, git.ExtractConflict(res.Stdout))

		api.MergeAbort(ctx)
		require.NoError(t, api.ResetHard(ctx, "HEAD"))
		after, err := api.HeadSHA(ctx)
		require.NoError(t, err)
		require.Equal(t, before, after)
		clean, err := api.IsClean(ctx)
		require.NoError(t, err)
		require.True(t, clean)
	})
}

func TestExtractConflict(t *testing.T) {
	out := "Auto-merging a.txt\nerror: could not apply 1234abc... change\nCONFLICT (content): Merge conflict in a.txt  \nhint: resolve\n"
	require.Equal(t, "CONFLICT (content): Merge conflict in a.txt", git.ExtractConflict(out))
	require.Empty(t, git.ExtractConflict("Successfully rebased and updated refs/heads/x."))
}
