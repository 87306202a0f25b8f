package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/internal/review"
	"arcstack.dev/arcstack/testhelpers"
)

func stackScene(t *testing.T) (*testhelpers.Scene, *git.API) {
	t.Helper()
	scene := testhelpers.NewScene(t, testhelpers.StackSceneSetup)
	return scene, git.NewAPI(git.NewCommandRunner(scene.Dir))
}

func TestHeadRefs(t *testing.T) {
	_, api := stackScene(t)

	refs, err := api.HeadRefs(context.Background())
	require.NoError(t, err)
	byName := map[string]git.BranchRef{}
	for _, r := range refs {
		byName[r.Name] = r
	}
	require.Len(t, byName, 4)

	require.True(t, byName["main"].IsHead)
	require.False(t, byName["main"].HasUpstream())
	require.True(t, byName["b"].TracksLocalBranch())
	require.Equal(t, "a", byName["b"].UpstreamShort)
	require.Equal(t, byName["a"].ObjectName, byName["b"].ParentSHA())
	require.Equal(t, "c change", byName["c"].Subject)
	require.Equal(t, 103, review.ParseRevisionID(byName["c"].Message()))
	require.False(t, byName["c"].CommitTime.IsZero())
}

func TestUpstreamPath(t *testing.T) {
	t.Run("follows local branches", func(t *testing.T) {
		scene, _ := stackScene(t)
		repo, err := git.OpenRepository(scene.Dir)
		require.NoError(t, err)

		path, err := repo.UpstreamPath("c")
		require.NoError(t, err)
		require.Equal(t, []string{"c", "b", "a", "main"}, path.Branches)
		require.Empty(t, path.Cycle)
		require.False(t, path.IsConnectedToRemote())
		require.Equal(t, 3, path.Length())
	})

	t.Run("ends at a remote branch", func(t *testing.T) {
		scene, _ := stackScene(t)
		_, err := scene.Repo.CreateBareRemote("origin")
		require.NoError(t, err)
		require.NoError(t, scene.Repo.PushBranch("origin", "main"))
		repo, err := git.OpenRepository(scene.Dir)
		require.NoError(t, err)

		path, err := repo.UpstreamPath("b")
		require.NoError(t, err)
		require.Equal(t, []string{"b", "a", "main"}, path.Branches)
		require.Equal(t, "origin", path.Remote)
		require.Equal(t, "main", path.RemoteBranch)
		require.True(t, path.IsConnectedToRemote())
	})

	t.Run("detects local cycles", func(t *testing.T) {
		scene, _ := stackScene(t)
		require.NoError(t, scene.Repo.SetUpstream("main", "c"))
		repo, err := git.OpenRepository(scene.Dir)
		require.NoError(t, err)

		path, err := repo.UpstreamPath("b")
		require.NoError(t, err)
		require.Equal(t, []string{"b", "a", "main", "c", "b"}, path.Cycle)
		require.False(t, path.IsConnectedToRemote())
	})
}

func TestAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("log lists the range newest first", func(t *testing.T) {
		_, api := stackScene(t)
		commits, err := api.Log(ctx, "main", "c")
		require.NoError(t, err)
		require.Len(t, commits, 3)
		require.Equal(t, "c change", commits[0].Subject)
		require.Equal(t, "a change", commits[2].Subject)
		require.Equal(t, 101, review.ParseRevisionID(commits[2].Message))
		require.Len(t, commits[0].Parents, 1)
	})

	t.Run("verify and current branch", func(t *testing.T) {
		_, api := stackScene(t)
		sha, ok, err := api.Verify(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, sha, 40)

		_, ok, err = api.Verify(ctx, "missing")
		require.NoError(t, err)
		require.False(t, ok)

		branch, err := api.CurrentBranch(ctx)
		require.NoError(t, err)
		require.Equal(t, "main", branch)

		require.NoError(t, api.Checkout(ctx, sha))
		branch, err = api.CurrentBranch(ctx)
		require.NoError(t, err)
		require.Empty(t, branch)
	})

	t.Run("a diff replays onto a fresh branch", func(t *testing.T) {
		_, api := stackScene(t)
		patch, err := api.FullDiff(ctx, "a", "b")
		require.NoError(t, err)
		require.Contains(t, patch, "change for D102")

		require.NoError(t, api.CreateBranch(ctx, "replay", "a"))
		res, err := api.ApplyPatch(ctx, patch)
		require.NoError(t, err)
		require.True(t, res.OK(), res.Stderr)
		require.NoError(t, api.Commit(ctx, "replayed\n\nDifferential Revision: D102"))

		replayed, err := api.FullDiff(ctx, "a", "replay")
		require.NoError(t, err)
		require.Equal(t, patch, replayed)

		head, err := api.HeadSHA(ctx)
		require.NoError(t, err)
		parent, err := api.ParentSHA(ctx, head)
		require.NoError(t, err)
		aSHA, err := api.ResolveCommit(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, aSHA, parent)

		require.NoError(t, api.Checkout(ctx, "main"))
		require.NoError(t, api.DeleteBranch(ctx, "replay"))
		exists, err := api.BranchExists(ctx, "replay")
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("tracked modifications make the copy dirty", func(t *testing.T) {
		scene, api := stackScene(t)
		clean, err := api.IsClean(ctx)
		require.NoError(t, err)
		require.True(t, clean)

		require.NoError(t, scene.Repo.CreateChange("edited", "1", true))
		clean, err = api.IsClean(ctx)
		require.NoError(t, err)
		require.False(t, clean)
	})

	t.Run("root commits diff against the empty tree", func(t *testing.T) {
		_, api := stackScene(t)
		commits, err := api.Log(ctx, "a", "main")
		require.NoError(t, err)
		require.Empty(t, commits)

		root, err := api.ResolveCommit(ctx, "main")
		require.NoError(t, err)
		parent, err := api.ParentSHA(ctx, root)
		require.NoError(t, err)
		require.Equal(t, git.EmptyTreeSHA, parent)
	})
}
