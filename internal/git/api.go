package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EmptyTreeSHA is the object name of git's empty tree, used as the parent of root commits
const EmptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// API is the repository surface used by arcstack, built on a Runner
type API struct {
	runner Runner
}

// NewAPI creates an API over the given runner
func NewAPI(runner Runner) *API {
	return &API{runner: runner}
}

// Runner returns the underlying command runner
func (a *API) Runner() Runner {
	return a.runner
}

// Verify resolves ref with rev-parse --verify. A missing ref is not an error.
func (a *API) Verify(ctx context.Context, ref string) (string, bool, error) {
	res, err := a.runner.Exec(ctx, "rev-parse", "--verify", ref)
	if err != nil {
		return "", false, err
	}
	if !res.OK() {
		return "", false, nil
	}
	return strings.TrimSpace(res.Stdout), true, nil
}

// BranchExists reports whether a local branch or ref named name resolves
func (a *API) BranchExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := a.Verify(ctx, name)
	return ok, err
}

// CurrentBranch returns the checked-out branch, or "" when HEAD is detached
func (a *API) CurrentBranch(ctx context.Context) (string, error) {
	res, err := a.runner.Exec(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// HeadSHA returns the commit HEAD points at
func (a *API) HeadSHA(ctx context.Context) (string, error) {
	return Execx(ctx, a.runner, "rev-parse", "HEAD")
}

// ResolveCommit returns the full commit sha for ref
func (a *API) ResolveCommit(ctx context.Context, ref string) (string, error) {
	return Execx(ctx, a.runner, "rev-parse", "--verify", ref+"^{commit}")
}

// Checkout checks out an existing ref
func (a *API) Checkout(ctx context.Context, ref string) error {
	_, err := Execx(ctx, a.runner, "checkout", ref, "--")
	return err
}

// ForceCheckout checks out ref discarding local modifications
func (a *API) ForceCheckout(ctx context.Context, ref string) error {
	_, err := Execx(ctx, a.runner, "checkout", "-f", ref, "--")
	return err
}

// CreateBranch creates and checks out name. An empty base branches from HEAD.
func (a *API) CreateBranch(ctx context.Context, name, base string) error {
	args := []string{"checkout", "-b", name}
	if base != "" {
		args = append(args, base)
	}
	_, err := Execx(ctx, a.runner, args...)
	return err
}

// DeleteBranch force-deletes a local branch
func (a *API) DeleteBranch(ctx context.Context, name string) error {
	_, err := Execx(ctx, a.runner, "branch", "-D", "--", name)
	return err
}

// Rebase runs "rebase [--fork-point] <base> [<branch>]" and returns the raw result
// so callers can inspect conflicts.
func (a *API) Rebase(ctx context.Context, base, branch string, forkPoint bool) (Result, error) {
	args := []string{"rebase"}
	if forkPoint {
		args = append(args, "--fork-point")
	}
	args = append(args, base)
	if branch != "" {
		args = append(args, branch)
	}
	return a.runner.Exec(ctx, args...)
}

// RebaseOnto runs "rebase --onto <onto> <upstream> <branch>", replaying only
// the commits of branch that are not reachable from upstream.
func (a *API) RebaseOnto(ctx context.Context, onto, upstream, branch string) (Result, error) {
	return a.runner.Exec(ctx, "rebase", "--onto", onto, upstream, branch)
}

// RebaseAbort aborts an in-progress rebase
func (a *API) RebaseAbort(ctx context.Context) error {
	_, err := Execx(ctx, a.runner, "rebase", "--abort")
	if err != nil {
		return fmt.Errorf("rebase abort failed: %w", err)
	}
	return nil
}

// Merge merges ref into the current branch without a diffstat
func (a *API) Merge(ctx context.Context, ref string) (Result, error) {
	return a.runner.Exec(ctx, "merge", "--no-stat", ref, "--")
}

// MergeAbort aborts an in-progress merge; failures are ignored
func (a *API) MergeAbort(ctx context.Context) {
	_, _ = a.runner.Exec(ctx, "merge", "--abort")
}

// ResetHard resets the working copy and current branch to ref
func (a *API) ResetHard(ctx context.Context, ref string) error {
	_, err := Execx(ctx, a.runner, "reset", "--hard", ref, "--")
	return err
}

// Fetch fetches a single branch from remote
func (a *API) Fetch(ctx context.Context, remote, branch string) error {
	_, err := Execx(ctx, a.runner, "fetch", "--quiet", "--", remote, branch)
	return err
}

// RemoteURL returns the configured url of remote
func (a *API) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := Execx(ctx, a.runner, "config", "--get", "remote."+remote+".url")
	if err != nil {
		return "", fmt.Errorf("failed to read url of remote %s: %w", remote, err)
	}
	return out, nil
}

// Status returns the output of git status
func (a *API) Status(ctx context.Context) (string, error) {
	res, err := a.runner.Exec(ctx, "status")
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// IsRebaseInProgress inspects git status for an interrupted rebase
func (a *API) IsRebaseInProgress(ctx context.Context) (bool, error) {
	out, err := a.Status(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "rebase in progress;"), nil
}

// IsClean reports whether the working copy has no uncommitted changes
func (a *API) IsClean(ctx context.Context) (bool, error) {
	out, err := Execx(ctx, a.runner, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// MergeBase returns the best common ancestor of two commits
func (a *API) MergeBase(ctx context.Context, left, right string) (string, error) {
	return Execx(ctx, a.runner, "merge-base", left, right)
}

// ParentSHA returns the first parent of sha, or the empty tree for root commits
func (a *API) ParentSHA(ctx context.Context, sha string) (string, error) {
	res, err := a.runner.Exec(ctx, "rev-parse", "--verify", "--quiet", sha+"^")
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return EmptyTreeSHA, nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// FullDiff returns a complete binary-safe diff between two commits
func (a *API) FullDiff(ctx context.Context, from, to string) (string, error) {
	return ExecxRaw(ctx, a.runner, "diff", "--no-color", "--no-ext-diff", "--binary", "--full-index", "-M", from, to, "--")
}

// ApplyPatch applies patch text to the index and working tree with a 3-way fallback
func (a *API) ApplyPatch(ctx context.Context, patch string) (Result, error) {
	return a.runner.ExecInput(ctx, patch, "apply", "--3way", "--index", "--whitespace=nowarn", "-")
}

// Commit commits the index with message read from stdin
func (a *API) Commit(ctx context.Context, message string) error {
	_, err := ExecxInput(ctx, a.runner, message, "commit", "--quiet", "--allow-empty", "--no-verify", "-F", "-")
	return err
}

// Commit is one entry of a commit range
type Commit struct {
	SHA     string
	Parents []string
	Time    time.Time
	Subject string
	Message string
}

// Log returns the commits reachable from head but not base, newest first
func (a *API) Log(ctx context.Context, base, head string) ([]Commit, error) {
	out, err := ExecxRaw(ctx, a.runner, "log", "--format=%H%x00%P%x00%ct%x00%s%x00%B%x1e", base+".."+head, "--")
	if err != nil {
		return nil, fmt.Errorf("failed to read commits %s..%s: %w", base, head, err)
	}
	var commits []Commit
	for _, record := range strings.Split(out, recordSeparator) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		parts := strings.SplitN(record, fieldSeparator, 5)
		if len(parts) != 5 {
			continue
		}
		secs, _ := strconv.ParseInt(parts[2], 10, 64)
		commits = append(commits, Commit{
			SHA:     parts[0],
			Parents: strings.Fields(parts[1]),
			Time:    time.Unix(secs, 0),
			Subject: parts[3],
			Message: strings.TrimSpace(parts[4]),
		})
	}
	return commits, nil
}
