// Package cascade rebases every branch tracking the current one, and their
// own trackers, onto their freshly rebased parents.
package cascade

import (
	"context"
	"fmt"

	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/internal/graph"
	"arcstack.dev/arcstack/internal/tui"
)

// Repo is the repository surface used by the cascade
type Repo interface {
	CurrentBranch(ctx context.Context) (string, error)
	IsRebaseInProgress(ctx context.Context) (bool, error)
	Rebase(ctx context.Context, base, branch string, forkPoint bool) (git.Result, error)
	RebaseAbort(ctx context.Context) error
	Checkout(ctx context.Context, ref string) error
}

var _ Repo = (*git.API)(nil)

// Options configures a cascade
type Options struct {
	// HaltOnConflict leaves the repository in the conflicted rebase instead
	// of aborting it and skipping the branch
	HaltOnConflict bool
}

// Report lists what a cascade did
type Report struct {
	Rebased []string
	// Skipped holds branches whose rebase failed, followed by their
	// descendants, which were left alone
	Skipped []string
}

// Engine runs cascades over a tracking graph
type Engine struct {
	repo  Repo
	graph *graph.BranchGraph
	splog *tui.Splog
	opts  Options
}

// NewEngine creates an engine. The graph must be loaded.
func NewEngine(repo Repo, g *graph.BranchGraph, splog *tui.Splog, opts Options) *Engine {
	return &Engine{repo: repo, graph: g, splog: splog, opts: opts}
}

const inRebaseHelp = `You are in a rebase process currently.
Get more information about this by running:

      git status

To abort the current rebase, run:

      git rebase --abort

Aborting cascade.`

// Cascade rebases the descendants of the checked-out branch
func (e *Engine) Cascade(ctx context.Context) (*Report, error) {
	inRebase, err := e.repo.IsRebaseInProgress(ctx)
	if err != nil {
		return nil, err
	}
	if inRebase {
		return nil, arcerrors.NewUsageError("%s", inRebaseHelp)
	}
	branch, err := e.repo.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		return nil, arcerrors.NewUsageError("cascade needs a checked-out branch, HEAD is detached")
	}

	e.splog.Info("Cascading children of current branch.")
	e.splog.Info("%s%s", tui.TreeColumn(0), branch)

	report := &Report{}
	visited := map[string]bool{branch: true}
	if err := e.rebaseChildren(ctx, branch, visited, report); err != nil {
		return report, err
	}
	if err := e.repo.Checkout(ctx, branch); err != nil {
		return report, fmt.Errorf("failed to return to %s: %w", branch, err)
	}
	return report, nil
}

func (e *Engine) rebaseChildren(ctx context.Context, parent string, visited map[string]bool, report *Report) error {
	for _, child := range e.graph.Downstreams(parent) {
		if visited[child] {
			continue
		}
		visited[child] = true

		column := tui.TreeColumn(e.graph.Depth(child)) + child
		res, err := e.repo.Rebase(ctx, parent, child, true)
		if err != nil {
			return err
		}
		if !res.OK() {
			e.splog.Info("%s %s", column, tui.ColorRed(tui.TagFail))
			if e.opts.HaltOnConflict {
				return e.haltError(child, res)
			}
			if err := e.repo.RebaseAbort(ctx); err != nil {
				return err
			}
			report.Skipped = append(report.Skipped, child)
			for _, d := range e.graph.Descendants(child) {
				if !visited[d] {
					visited[d] = true
					report.Skipped = append(report.Skipped, d)
				}
			}
			continue
		}

		e.splog.Info("%s %s", column, tui.ColorGreen(tui.TagOK))
		report.Rebased = append(report.Rebased, child)
		if err := e.rebaseChildren(ctx, child, visited, report); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) haltError(branch string, res git.Result) error {
	conflict := git.ExtractConflict(res.Stdout)
	if conflict == "" {
		conflict = git.ExtractConflict(res.Stderr)
	}
	remediation := fmt.Sprintf(`Navigate to that file to correct the conflict, then run:

        git add <file(s)>
        git rebase --continue

Then continue on with cascading. To abort this process, run:

        git rebase --abort

You are now in branch '%s'.`, branch)
	return arcerrors.NewConflictError(branch, conflict, remediation)
}
