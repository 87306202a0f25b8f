package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"arcstack.dev/arcstack/internal/git"
)

// FakeCommit is a commit of a FakeRepo
type FakeCommit struct {
	SHA     string
	Parent  string
	Patch   string
	Message string
}

// FakeRepo is an in-memory model of a repository: branches point at commits,
// commits carry the patch that produced them. It implements the git API used
// by the stack and landing engines and records every operation.
type FakeRepo struct {
	mu sync.Mutex

	branches map[string]string
	commits  map[string]FakeCommit
	remotes  map[string]string
	head     string // branch name, or "" when detached
	detached string
	staged   string
	seq      int

	// FailPatches lists patch texts that do not apply
	FailPatches map[string]bool
	// ConflictPatches lists patch texts that conflict when rebased
	ConflictPatches map[string]bool
	// FailMerge makes Merge report a conflict
	FailMerge bool
	// Dirty makes IsClean report local modifications
	Dirty bool

	// Created lists every branch created, in order
	Created []string
	ops     []string
}

// NewFakeRepo creates a repository with a single root commit on main
func NewFakeRepo() *FakeRepo {
	r := &FakeRepo{
		branches:        map[string]string{},
		commits:         map[string]FakeCommit{},
		remotes:         map[string]string{"origin": "git@example.com:repo.git"},
		FailPatches:     map[string]bool{},
		ConflictPatches: map[string]bool{},
	}
	root := r.newCommit("", "", "root")
	r.branches["main"] = root
	r.branches["origin/main"] = root
	r.head = "main"
	return r
}

func (r *FakeRepo) newCommit(parent, patch, message string) string {
	r.seq++
	sha := fmt.Sprintf("%040x", r.seq)
	r.commits[sha] = FakeCommit{SHA: sha, Parent: parent, Patch: patch, Message: message}
	return sha
}

func (r *FakeRepo) record(format string, args ...any) {
	r.ops = append(r.ops, fmt.Sprintf(format, args...))
}

// Ops returns every operation performed, e.g. "checkout -b x base"
func (r *FakeRepo) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.ops...)
}

// MutatingOps returns the operations that changed refs or the working copy
func (r *FakeRepo) MutatingOps() []string {
	var mutating []string
	for _, op := range r.Ops() {
		verb := strings.Fields(op)[0]
		if MutatingCommands[verb] {
			mutating = append(mutating, op)
		}
	}
	return mutating
}

// AddCommit commits patch on top of branch (creating the branch from main
// when missing) and returns the new sha
func (r *FakeRepo) AddCommit(branch, patch, message string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.branches[branch]
	if !ok {
		parent = r.branches["main"]
	}
	sha := r.newCommit(parent, patch, message)
	r.branches[branch] = sha
	return sha
}

// SetBranch points branch at sha
func (r *FakeRepo) SetBranch(branch, sha string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branches[branch] = sha
}

// HasBranch reports whether branch exists
func (r *FakeRepo) HasBranch(branch string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.branches[branch]
	return ok
}

// BranchNames lists branches, sorted
func (r *FakeRepo) BranchNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.branches))
	for name := range r.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommitOf returns a commit by sha
func (r *FakeRepo) CommitOf(sha string) (FakeCommit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commits[sha]
	return c, ok
}

// Head returns the checked-out branch (or "") and the HEAD sha
func (r *FakeRepo) Head() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head, r.headSHA()
}

func (r *FakeRepo) headSHA() string {
	if r.head != "" {
		return r.branches[r.head]
	}
	return r.detached
}

func (r *FakeRepo) resolve(ref string) (string, bool) {
	if ref == "HEAD" {
		sha := r.headSHA()
		return sha, sha != ""
	}
	if sha, ok := r.branches[ref]; ok {
		return sha, true
	}
	if _, ok := r.commits[ref]; ok {
		return ref, true
	}
	return "", false
}

func (r *FakeRepo) isAncestor(ancestor, sha string) bool {
	for cur := sha; cur != ""; cur = r.commits[cur].Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Verify resolves a branch name, commit sha or HEAD
func (r *FakeRepo) Verify(_ context.Context, ref string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("rev-parse --verify %s", ref)
	sha, ok := r.resolve(ref)
	return sha, ok, nil
}

// BranchExists reports whether ref resolves
func (r *FakeRepo) BranchExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := r.Verify(ctx, name)
	return ok, err
}

// CurrentBranch returns the checked-out branch
func (r *FakeRepo) CurrentBranch(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head, nil
}

// HeadSHA returns the HEAD commit
func (r *FakeRepo) HeadSHA(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headSHA(), nil
}

// ResolveCommit resolves ref or fails
func (r *FakeRepo) ResolveCommit(_ context.Context, ref string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sha, ok := r.resolve(ref)
	if !ok {
		return "", fmt.Errorf("unknown revision %s", ref)
	}
	return sha, nil
}

func (r *FakeRepo) checkout(ref string) error {
	if _, ok := r.branches[ref]; ok {
		r.head = ref
		r.detached = ""
		return nil
	}
	if _, ok := r.commits[ref]; ok {
		r.head = ""
		r.detached = ref
		return nil
	}
	return fmt.Errorf("pathspec '%s' did not match", ref)
}

// Checkout switches to a branch or detaches at a commit
func (r *FakeRepo) Checkout(_ context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("checkout %s", ref)
	return r.checkout(ref)
}

// ForceCheckout is Checkout discarding local changes
func (r *FakeRepo) ForceCheckout(_ context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("checkout -f %s", ref)
	r.staged = ""
	return r.checkout(ref)
}

// CreateBranch creates name at base (HEAD when empty) and checks it out
func (r *FakeRepo) CreateBranch(_ context.Context, name, base string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("checkout -b %s %s", name, base)
	if _, exists := r.branches[name]; exists {
		return fmt.Errorf("a branch named '%s' already exists", name)
	}
	sha := r.headSHA()
	if base != "" {
		var ok bool
		if sha, ok = r.resolve(base); !ok {
			return fmt.Errorf("'%s' is not a commit", base)
		}
	}
	r.branches[name] = sha
	r.head = name
	r.detached = ""
	r.Created = append(r.Created, name)
	return nil
}

// DeleteBranch deletes a branch that is not checked out
func (r *FakeRepo) DeleteBranch(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("branch -D %s", name)
	if _, ok := r.branches[name]; !ok {
		return fmt.Errorf("branch '%s' not found", name)
	}
	if r.head == name {
		return fmt.Errorf("cannot delete branch '%s' checked out", name)
	}
	delete(r.branches, name)
	return nil
}

// Rebase replays the commits of branch that are not in base onto base
func (r *FakeRepo) Rebase(_ context.Context, base, branch string, forkPoint bool) (git.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if forkPoint {
		r.record("rebase --fork-point %s %s", base, branch)
	} else {
		r.record("rebase %s %s", base, branch)
	}
	return r.replay(base, base, branch)
}

// RebaseOnto replays the commits of branch that are not in upstream onto onto
func (r *FakeRepo) RebaseOnto(_ context.Context, onto, upstream, branch string) (git.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("rebase --onto %s %s %s", onto, upstream, branch)
	return r.replay(onto, upstream, branch)
}

func (r *FakeRepo) replay(onto, upstream, branch string) (git.Result, error) {
	if branch == "" {
		branch = r.head
	}
	ontoSHA, ok := r.resolve(onto)
	if !ok {
		return git.Result{ExitCode: 128, Stderr: "fatal: invalid upstream " + onto}, nil
	}
	upstreamSHA, ok := r.resolve(upstream)
	if !ok {
		return git.Result{ExitCode: 128, Stderr: "fatal: invalid upstream " + upstream}, nil
	}
	tip, ok := r.branches[branch]
	if !ok {
		return git.Result{ExitCode: 128, Stderr: "fatal: no such branch " + branch}, nil
	}

	var pending []FakeCommit
	for cur := tip; cur != "" && !r.isAncestor(cur, upstreamSHA); cur = r.commits[cur].Parent {
		pending = append(pending, r.commits[cur])
	}
	newTip := ontoSHA
	for i := len(pending) - 1; i >= 0; i-- {
		c := pending[i]
		if r.ConflictPatches[c.Patch] {
			r.head = branch
			return git.Result{
				ExitCode: 1,
				Stdout:   "Auto-merging file.txt\nCONFLICT (content): Merge conflict in file.txt\n",
				Stderr:   "error: could not apply " + c.SHA[:7],
			}, nil
		}
		newTip = r.newCommit(newTip, c.Patch, c.Message)
	}
	r.branches[branch] = newTip
	r.head = branch
	r.detached = ""
	return git.Result{}, nil
}

// RebaseAbort abandons a conflicted rebase
func (r *FakeRepo) RebaseAbort(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("rebase --abort")
	return nil
}

// Merge fast-forwards or merges ref into the current branch
func (r *FakeRepo) Merge(_ context.Context, ref string) (git.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("merge --no-stat %s", ref)
	if r.FailMerge {
		return git.Result{ExitCode: 1, Stdout: "CONFLICT (content): Merge conflict in file.txt\n"}, nil
	}
	sha, ok := r.resolve(ref)
	if !ok {
		return git.Result{ExitCode: 1, Stderr: "merge: " + ref + " - not something we can merge"}, nil
	}
	head := r.headSHA()
	if r.isAncestor(sha, head) {
		return git.Result{Stdout: "Already up to date.\n"}, nil
	}
	if r.head != "" {
		r.branches[r.head] = r.newCommit(head, "", "Merge "+ref)
	}
	return git.Result{}, nil
}

// MergeAbort abandons a conflicted merge
func (r *FakeRepo) MergeAbort(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("merge --abort")
}

// ResetHard moves the current branch to ref
func (r *FakeRepo) ResetHard(_ context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("reset --hard %s", ref)
	sha, ok := r.resolve(ref)
	if !ok {
		return fmt.Errorf("unknown revision %s", ref)
	}
	r.staged = ""
	if r.head != "" {
		r.branches[r.head] = sha
	} else {
		r.detached = sha
	}
	return nil
}

// Fetch is a no-op that records the call
func (r *FakeRepo) Fetch(_ context.Context, remote, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("fetch %s %s", remote, branch)
	return nil
}

// RemoteURL returns the url of a known remote
func (r *FakeRepo) RemoteURL(_ context.Context, remote string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("config --get remote.%s.url", remote)
	url, ok := r.remotes[remote]
	if !ok {
		return "", fmt.Errorf("no remote %s", remote)
	}
	return url, nil
}

// IsRebaseInProgress is always false
func (r *FakeRepo) IsRebaseInProgress(context.Context) (bool, error) {
	return false, nil
}

// IsClean reports the Dirty flag
func (r *FakeRepo) IsClean(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.Dirty, nil
}

// MergeBase returns the closest common ancestor
func (r *FakeRepo) MergeBase(_ context.Context, left, right string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.resolve(left)
	if !ok {
		return "", fmt.Errorf("unknown revision %s", left)
	}
	rr, ok := r.resolve(right)
	if !ok {
		return "", fmt.Errorf("unknown revision %s", right)
	}
	for cur := rr; cur != ""; cur = r.commits[cur].Parent {
		if r.isAncestor(cur, l) {
			return cur, nil
		}
	}
	return "", fmt.Errorf("no merge base of %s and %s", left, right)
}

// ParentSHA returns the parent of sha
func (r *FakeRepo) ParentSHA(_ context.Context, sha string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commits[sha]
	if !ok {
		return "", fmt.Errorf("unknown commit %s", sha)
	}
	if c.Parent == "" {
		return git.EmptyTreeSHA, nil
	}
	return c.Parent, nil
}

// FullDiff concatenates the patches of the commits between from and to
func (r *FakeRepo) FullDiff(_ context.Context, from, to string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fromSHA, _ := r.resolve(from)
	toSHA, ok := r.resolve(to)
	if !ok {
		return "", fmt.Errorf("unknown revision %s", to)
	}
	var patches []string
	for cur := toSHA; cur != "" && cur != fromSHA; cur = r.commits[cur].Parent {
		if p := r.commits[cur].Patch; p != "" {
			patches = append([]string{p}, patches...)
		}
	}
	return strings.Join(patches, ""), nil
}

// ApplyPatch stages patch unless it is listed in FailPatches
func (r *FakeRepo) ApplyPatch(_ context.Context, patch string) (git.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("apply --3way --index -")
	if r.FailPatches[patch] {
		return git.Result{ExitCode: 1, Stderr: "error: patch failed: file.txt:1\nerror: file.txt: patch does not apply"}, nil
	}
	r.staged = patch
	return git.Result{}, nil
}

// Commit commits the staged patch on the current branch
func (r *FakeRepo) Commit(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("commit -F -")
	sha := r.newCommit(r.headSHA(), r.staged, message)
	r.staged = ""
	if r.head != "" {
		r.branches[r.head] = sha
	} else {
		r.detached = sha
	}
	return nil
}

// Log lists commits reachable from head but not base, newest first
func (r *FakeRepo) Log(_ context.Context, base, head string) ([]git.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	baseSHA, _ := r.resolve(base)
	headSHA, ok := r.resolve(head)
	if !ok {
		return nil, fmt.Errorf("unknown revision %s", head)
	}
	var commits []git.Commit
	for cur := headSHA; cur != "" && !r.isAncestor(cur, baseSHA); cur = r.commits[cur].Parent {
		c := r.commits[cur]
		var parents []string
		if c.Parent != "" {
			parents = []string{c.Parent}
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, git.Commit{SHA: c.SHA, Parents: parents, Subject: subject, Message: c.Message})
	}
	return commits, nil
}
