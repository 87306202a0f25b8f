package cascade_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"arcstack.dev/arcstack/internal/cascade"
	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/internal/graph"
	"arcstack.dev/arcstack/internal/tui"
	"arcstack.dev/arcstack/testhelpers"
)

// masterGraph is master <- B1, master <- B2, B1 <- C1
func masterGraph() *graph.BranchGraph {
	return graph.New().
		AddEdges("master", "B1", "B2").
		AddEdges("B1", "C1").
		Load()
}

func newEngine(t *testing.T, runner *testhelpers.FakeRunner, g *graph.BranchGraph, opts cascade.Options) (*cascade.Engine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	splog, err := tui.NewSplogWithConfig(&out, "")
	require.NoError(t, err)
	runner.On("master\n", "symbolic-ref")
	return cascade.NewEngine(git.NewAPI(runner), g, splog, opts), &out
}

func rebases(runner *testhelpers.FakeRunner) []string {
	var calls []string
	for _, c := range runner.CallsTo("rebase") {
		calls = append(calls, c.String())
	}
	return calls
}

func TestCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("rebases parents before children", func(t *testing.T) {
		runner := testhelpers.NewFakeRunner()
		engine, out := newEngine(t, runner, masterGraph(), cascade.Options{})

		report, err := engine.Cascade(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{
			"rebase --fork-point master B1",
			"rebase --fork-point B1 C1",
			"rebase --fork-point master B2",
		}, rebases(runner))
		require.Equal(t, []string{"B1", "C1", "B2"}, report.Rebased)
		require.Empty(t, report.Skipped)
		require.True(t, runner.Ran("checkout", "master", "--"))

		require.Contains(t, out.String(), "└─ B1")
		require.Contains(t, out.String(), "  └─ C1")
	})

	t.Run("skips the subtree of a failed rebase", func(t *testing.T) {
		runner := testhelpers.NewFakeRunner()
		runner.Fail("CONFLICT (content): Merge conflict in a.txt\n", "", "rebase", "--fork-point", "master", "B1")
		engine, out := newEngine(t, runner, masterGraph(), cascade.Options{})

		report, err := engine.Cascade(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{
			"rebase --fork-point master B1",
			"rebase --abort",
			"rebase --fork-point master B2",
		}, rebases(runner))
		require.Equal(t, []string{"B2"}, report.Rebased)
		require.Equal(t, []string{"B1", "C1"}, report.Skipped)
		require.Contains(t, out.String(), tui.TagFail)
		require.True(t, runner.Ran("checkout", "master", "--"))
	})

	t.Run("halts on conflict", func(t *testing.T) {
		runner := testhelpers.NewFakeRunner()
		runner.Fail("Auto-merging a.txt\nCONFLICT (content): Merge conflict in a.txt\n", "", "rebase", "--fork-point", "master", "B1")
		engine, _ := newEngine(t, runner, masterGraph(), cascade.Options{HaltOnConflict: true})

		_, err := engine.Cascade(ctx)
		var conflictErr *arcerrors.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		require.Equal(t, "B1", conflictErr.BranchName)
		require.Equal(t, "CONFLICT (content): Merge conflict in a.txt", conflictErr.Conflict)
		require.Contains(t, conflictErr.Remediation, "git rebase --continue")
		require.False(t, runner.Ran("rebase", "--abort"))
		require.False(t, runner.Ran("checkout"))
	})

	t.Run("refuses to start mid-rebase", func(t *testing.T) {
		runner := testhelpers.NewFakeRunner()
		runner.On("interactive rebase in progress; onto abc123\n", "status")
		engine, _ := newEngine(t, runner, masterGraph(), cascade.Options{})

		_, err := engine.Cascade(ctx)
		require.ErrorIs(t, err, arcerrors.ErrUsage)
		require.Contains(t, err.Error(), "git rebase --abort")
		require.Empty(t, rebases(runner))
	})

	t.Run("terminates on tracking cycles", func(t *testing.T) {
		g := graph.New().
			AddEdges("master", "B1").
			AddEdges("B1", "B2").
			AddEdges("B2", "B1").
			Load()
		runner := testhelpers.NewFakeRunner()
		engine, _ := newEngine(t, runner, g, cascade.Options{})

		report, err := engine.Cascade(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"B1", "B2"}, report.Rebased)
	})
}
