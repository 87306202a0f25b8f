package stack_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/review"
	"arcstack.dev/arcstack/internal/stack"
)

func revisionMessage(title string, id int) string {
	return fmt.Sprintf("%s\n\nSummary: %s\n\nDifferential Revision: https://phabricator.example.com/D%d", title, title, id)
}

// newResolverFixture commits one revision per id on "feature"
func newResolverFixture(t *testing.T, ids ...int) (*stackFixture, *stack.Resolver, *stack.TempBranches) {
	t.Helper()
	f := newStackFixture(t, 0)
	for i, id := range ids {
		title := fmt.Sprintf("change %d", i+1)
		f.review.AddRevision(id, title)
		f.review.AddDiff(id, 500+i, "", "", patchOf(id))
		f.repo.AddCommit("feature", patchOf(id), revisionMessage(title, id))
	}
	temp := &stack.TempBranches{}
	r := stack.NewResolver(f.repo, f.review, f.prompter, newTestSplog(t), temp)
	return f, r, temp
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	opts := stack.ResolverOptions{Branch: "feature", BaseRef: "origin/main"}

	t.Run("orders revisions root first", func(t *testing.T) {
		f, r, _ := newResolverFixture(t, 101, 102, 103)
		// a fixup commit for the middle revision must not duplicate it
		f.repo.AddCommit("feature", "", revisionMessage("fixup", 102))

		res, err := r.Resolve(ctx, opts)
		require.NoError(t, err)
		require.Equal(t, []int{101, 102, 103}, res.RevisionIDs)
		require.Equal(t, "feature", res.SourceRef)
		require.Len(t, res.Revisions, 3)
		require.Contains(t, res.Messages[102], "Differential Revision:")
		require.Empty(t, f.prompter.Messages)
	})

	t.Run("no revisions", func(t *testing.T) {
		f, r, _ := newResolverFixture(t)
		f.repo.AddCommit("feature", "p", "no trailer here")

		_, err := r.Resolve(ctx, opts)
		require.ErrorIs(t, err, arcerrors.ErrUsage)
	})

	t.Run("closed revision", func(t *testing.T) {
		f, r, _ := newResolverFixture(t, 101)
		rev := f.review.Revision(101)
		rev.StatusCode = review.StatusClosed
		f.review.SetRevision(rev)

		_, err := r.Resolve(ctx, opts)
		require.ErrorIs(t, err, arcerrors.ErrUsage)
		require.Contains(t, err.Error(), "closed")
	})

	t.Run("unaccepted revision", func(t *testing.T) {
		f, r, _ := newResolverFixture(t, 101)
		rev := f.review.Revision(101)
		rev.StatusCode = review.StatusNeedsReview
		f.review.SetRevision(rev)

		strict := opts
		strict.PreventUnaccepted = true
		_, err := r.Resolve(ctx, strict)
		require.ErrorIs(t, err, arcerrors.ErrUsage)
		require.Empty(t, f.prompter.Messages)

		_, err = r.Resolve(ctx, opts)
		require.ErrorIs(t, err, arcerrors.ErrUserAbort)
		require.Len(t, f.prompter.Messages, 1)
		require.Contains(t, f.prompter.Messages[0], "has not been accepted")

		f.prompter.Default = true
		_, err = r.Resolve(ctx, opts)
		require.NoError(t, err)
	})

	t.Run("someone else's revision", func(t *testing.T) {
		f, r, _ := newResolverFixture(t, 101)
		rev := f.review.Revision(101)
		rev.AuthorPHID = "PHID-USER-alice"
		f.review.SetRevision(rev)
		f.review.AddUser(review.User{PHID: "PHID-USER-alice", UserName: "alice"})
		f.prompter.Default = true

		_, err := r.Resolve(ctx, opts)
		require.NoError(t, err)
		require.Len(t, f.prompter.Messages, 1)
		require.Contains(t, f.prompter.Messages[0], "by alice")
	})

	t.Run("buildable lookup failures never block", func(t *testing.T) {
		f, r, _ := newResolverFixture(t, 101)
		rev := f.review.Revision(101)
		rev.ActiveDiffPHID = "PHID-DIFF-500"
		f.review.SetRevision(rev)
		f.review.BuildablesErr = errors.New("connection reset")

		_, err := r.Resolve(ctx, opts)
		require.NoError(t, err)
		require.Contains(t, f.review.Calls(), "harbormaster.querybuildables")
	})

	t.Run("failed builds", func(t *testing.T) {
		f, r, _ := newResolverFixture(t, 101)
		rev := f.review.Revision(101)
		rev.ActiveDiffPHID = "PHID-DIFF-500"
		f.review.SetRevision(rev)
		f.review.SetBuildables("PHID-DIFF-500",
			[]review.Buildable{{PHID: "PHID-HMBB-1", Status: review.BuildableFailed, URI: "https://ci.example.com/B1"}},
			[]review.Build{{Name: "unit", Status: "failed", StatusName: "Failed"}})

		strict := opts
		strict.BuildablesCheck = true
		_, err := r.Resolve(ctx, strict)
		require.ErrorIs(t, err, arcerrors.ErrUsage)

		_, err = r.Resolve(ctx, opts)
		require.ErrorIs(t, err, arcerrors.ErrUserAbort)
		require.Contains(t, f.prompter.Messages[0], "despite build failures")
	})

	t.Run("passed builds", func(t *testing.T) {
		f, r, _ := newResolverFixture(t, 101)
		rev := f.review.Revision(101)
		rev.ActiveDiffPHID = "PHID-DIFF-500"
		f.review.SetRevision(rev)
		f.review.SetBuildables("PHID-DIFF-500", []review.Buildable{{PHID: "PHID-HMBB-1", Status: review.BuildablePassed}}, nil)

		_, err := r.Resolve(ctx, opts)
		require.NoError(t, err)
		require.NotContains(t, f.review.Calls(), "harbormaster.querybuilds")
	})

	t.Run("submit queue path gate", func(t *testing.T) {
		f, r, _ := newResolverFixture(t, 101, 102)
		f.review.SetChanges(500, review.Change{OldPath: "docs/readme.md", CurrentPath: "docs/readme.md"})

		gated := opts
		gated.PathRegex = `^src/`
		_, err := r.Resolve(ctx, gated)
		require.ErrorIs(t, err, arcerrors.ErrUsage)

		gated.PathRegex = `^docs/`
		_, err = r.Resolve(ctx, gated)
		require.NoError(t, err)

		gated.PathRegex = `/^DOCS\//i`
		_, err = r.Resolve(ctx, gated)
		require.NoError(t, err)

		gated.PathRegex = `/^src\//`
		_, err = r.Resolve(ctx, gated)
		require.ErrorIs(t, err, arcerrors.ErrUsage)
	})

	t.Run("explicit revision is patched onto a temporary branch", func(t *testing.T) {
		f, r, temp := newResolverFixture(t)
		f.review.AddRevision(201, "explicit")
		f.review.AddDiff(201, 700, "", "", patchOf(201))
		_, root := f.repo.Head()
		f.repo.SetBranch("feature", root)

		explicit := opts
		explicit.RevisionID = 201
		res, err := r.Resolve(ctx, explicit)
		require.NoError(t, err)
		require.Equal(t, []int{201}, res.RevisionIDs)
		require.True(t, strings.HasPrefix(res.SourceRef, "arcstack-D201_"))
		require.Equal(t, []string{res.SourceRef}, temp.Names())
	})

	t.Run("unknown explicit revision", func(t *testing.T) {
		_, r, temp := newResolverFixture(t, 101)
		explicit := opts
		explicit.RevisionID = 404
		_, err := r.Resolve(ctx, explicit)
		require.ErrorIs(t, err, arcerrors.ErrUsage)
		require.Zero(t, temp.Len())
	})
}
