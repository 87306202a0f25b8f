package stack

import (
	"context"
	"fmt"
	"strings"

	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/internal/review"
	"arcstack.dev/arcstack/internal/submitqueue"
	"arcstack.dev/arcstack/internal/tui"
)

// DefaultMaxRepairs bounds the repair attempts of Run
const DefaultMaxRepairs = 3

// ValidatorOptions configures a Validator
type ValidatorOptions struct {
	RevisionIDs []int // root first
	// Messages holds the commit message of each revision; missing ones are
	// fetched from the review service
	Messages map[int]string
	// BaseRef is the target the root revision is applied against, through
	// its merge base with HEAD. Empty uses HEAD itself.
	BaseRef string
	// ReturnBranch is checked out after every pass. Empty returns to
	// whatever was checked out when the pass started.
	ReturnBranch string
	MaxRepairs   int
}

// Entry is one revision materialized on a temporary branch
type Entry struct {
	RevisionID int
	DiffID     int
	Branch     string
	// DeclaredBase and DeclaredHead are the commits the review service says
	// the diff was generated between; either may be unknown
	DeclaredBase string
	DeclaredHead string
	// LocalBase and LocalHead are the commits produced by applying the diff
	LocalBase string
	LocalHead string
}

// Head returns the commit the revision's diff ends at
func (e Entry) Head() string {
	if e.DeclaredHead != "" {
		return e.DeclaredHead
	}
	return e.LocalHead
}

// chainsOnto reports whether e sits on parent. Declared commits are compared
// when both sides know them, otherwise the local materialization decides.
func (e Entry) chainsOnto(parent Entry) bool {
	if e.DeclaredBase != "" && parent.DeclaredHead != "" {
		return e.DeclaredBase == parent.DeclaredHead
	}
	return e.LocalBase == parent.LocalHead
}

// Validator checks that each revision of a stack applies on the latest diff
// of its parent and repairs the stack when it does not
type Validator struct {
	repo     Repo
	review   review.Client
	prompter tui.Prompter
	splog    *tui.Splog
	opts     ValidatorOptions

	diffIDs  map[int][]int
	entries  []Entry
	messages map[int]string

	// Created lists every temporary branch made by any pass, in order
	Created []string
}

// NewValidator creates a validator for the revisions in opts
func NewValidator(repo Repo, client review.Client, prompter tui.Prompter, splog *tui.Splog, opts ValidatorOptions) *Validator {
	if opts.MaxRepairs <= 0 {
		opts.MaxRepairs = DefaultMaxRepairs
	}
	messages := make(map[int]string, len(opts.Messages))
	for id, m := range opts.Messages {
		messages[id] = m
	}
	return &Validator{
		repo:     repo,
		review:   client,
		prompter: prompter,
		splog:    splog,
		opts:     opts,
		diffIDs:  map[int][]int{},
		messages: messages,
	}
}

// FetchDiffIDs loads the diff ids of every revision, most recent first
func (v *Validator) FetchDiffIDs(ctx context.Context) error {
	diffIDs := make(map[int][]int, len(v.opts.RevisionIDs))
	for _, id := range v.opts.RevisionIDs {
		revisions, err := v.review.QueryRevisions(ctx, []int{id})
		if err != nil {
			return fmt.Errorf("failed to query D%d: %w", id, err)
		}
		if len(revisions) == 0 {
			return arcerrors.NewUsageError("no such revision 'D%d'", id)
		}
		if len(revisions[0].Diffs) == 0 {
			return arcerrors.NewUsageError("revision 'D%d' has no diffs", id)
		}
		diffIDs[id] = revisions[0].Diffs
	}
	v.diffIDs = diffIDs
	return nil
}

// LatestDiffID returns the most recent diff of a revision, as last fetched
func (v *Validator) LatestDiffID(revisionID int) (int, bool) {
	ids := v.diffIDs[revisionID]
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// Stack returns the (revision, latest diff) pairs to submit, root first
func (v *Validator) Stack() []submitqueue.StackEntry {
	stack := make([]submitqueue.StackEntry, 0, len(v.opts.RevisionIDs))
	for _, id := range v.opts.RevisionIDs {
		diffID, _ := v.LatestDiffID(id)
		stack = append(stack, submitqueue.StackEntry{RevisionID: id, DiffID: diffID})
	}
	return stack
}

// Entries returns the revisions materialized by the last pass
func (v *Validator) Entries() []Entry {
	return append([]Entry{}, v.entries...)
}

// Run validates the stack, offering to repair it while it is broken
func (v *Validator) Run(ctx context.Context) Outcome {
	for attempt := 0; ; attempt++ {
		if err := v.FetchDiffIDs(ctx); err != nil {
			return Failed(err)
		}
		v.splog.Info("%s Starting validations", tui.Tag(tui.TagVerify))
		breakIndex, err := v.EnsureStackRebasedCorrectly(ctx)
		if err != nil {
			return Failed(err)
		}
		if breakIndex < 0 {
			v.splog.Info("%s Ready to land", tui.Tag(tui.TagVerified))
			return OK()
		}

		revisionID := v.opts.RevisionIDs[breakIndex]
		if breakIndex == 0 {
			return Failed(fmt.Errorf("D%d no longer applies to %s: %w", revisionID, v.baseLabel(), arcerrors.ErrTargetMoved))
		}
		if attempt >= v.opts.MaxRepairs {
			return Failed(&arcerrors.ChainInconsistencyError{Index: breakIndex, RevisionID: revisionID})
		}

		parentID := v.opts.RevisionIDs[breakIndex-1]
		v.splog.Warn("D%d is not based on the latest diff of D%d", revisionID, parentID)
		ok, err := v.prompter.Confirm(
			fmt.Sprintf("Rebase D%d and every revision above it onto D%d and update them for review?", revisionID, parentID), true)
		if err != nil {
			return Failed(err)
		}
		if !ok {
			return Declined(fmt.Sprintf("stack is broken at D%d", revisionID))
		}
		if err := v.RebaseAndResubmit(ctx, breakIndex); err != nil {
			return Failed(err)
		}
	}
}

func (v *Validator) baseLabel() string {
	if v.opts.BaseRef == "" {
		return "HEAD"
	}
	return v.opts.BaseRef
}

// EnsureStackRebasedCorrectly applies each revision's latest diff on a
// temporary branch chained from the previous one. It returns the first index
// whose revision does not sit on its parent's head, or -1 when the whole
// stack chains. A revision that fails to apply is reported as its index.
func (v *Validator) EnsureStackRebasedCorrectly(ctx context.Context) (int, error) {
	if len(v.diffIDs) == 0 {
		if err := v.FetchDiffIDs(ctx); err != nil {
			return 0, err
		}
	}
	declared, err := v.declaredDiffs(ctx, 0)
	if err != nil {
		return 0, err
	}

	temp := &TempBranches{}
	defer v.finish(ctx, temp, v.returnRef(ctx))

	base, err := v.rootBase(ctx)
	if err != nil {
		return 0, err
	}

	v.entries = nil
	for i, id := range v.opts.RevisionIDs {
		branchBase := ""
		if i == 0 {
			branchBase = base
		}
		entry, err := v.materialize(ctx, temp, id, branchBase)
		if err != nil {
			v.splog.Warn("unable to apply D%d: %v", id, err)
			return i, nil
		}
		d := declared[entry.DiffID]
		entry.DeclaredBase = d.BaseCommit
		entry.DeclaredHead = d.HeadCommit
		v.entries = append(v.entries, entry)
		v.splog.Trace("D%d diff %d on %s: base %s head %s", id, entry.DiffID, entry.Branch, entry.LocalBase, entry.LocalHead)

		if i > 0 && !entry.chainsOnto(v.entries[i-1]) {
			return i, nil
		}
	}
	return -1, nil
}

// RebaseAndResubmit rebuilds every revision from breakIndex up on top of its
// repaired parent and uploads the result as a new diff of that revision
func (v *Validator) RebaseAndResubmit(ctx context.Context, breakIndex int) error {
	if breakIndex <= 0 {
		return fmt.Errorf("cannot repair the root of the stack: %w", arcerrors.ErrTargetMoved)
	}
	if breakIndex > len(v.entries) || breakIndex >= len(v.opts.RevisionIDs) {
		return arcerrors.NewUnexpectedValueError("break index %d is outside the validated stack", breakIndex)
	}
	declared, err := v.declaredDiffs(ctx, breakIndex)
	if err != nil {
		return err
	}

	temp := &TempBranches{}
	defer v.finish(ctx, temp, v.returnRef(ctx))

	parent := v.entries[breakIndex-1]
	parentLocal := parent.LocalHead
	declaredBase := parent.Head()
	parentID := parent.RevisionID

	for _, id := range v.opts.RevisionIDs[breakIndex:] {
		diffID, _ := v.LatestDiffID(id)
		start := parentLocal
		if d := declared[diffID]; d.BaseCommit != "" {
			if sha, ok, err := v.repo.Verify(ctx, d.BaseCommit); err == nil && ok {
				start = sha
			}
		}

		entry, err := v.materialize(ctx, temp, id, start)
		if err != nil {
			return fmt.Errorf("failed to rebuild D%d: %w", id, err)
		}
		res, err := v.repo.RebaseOnto(ctx, parentLocal, start, entry.Branch)
		if err != nil {
			return err
		}
		if !res.OK() {
			conflict := git.ExtractConflict(res.Stdout + "\n" + res.Stderr)
			if abortErr := v.repo.RebaseAbort(ctx); abortErr != nil {
				v.splog.Warn("%v", abortErr)
			}
			return arcerrors.NewConflictError(entry.Branch, conflict,
				fmt.Sprintf("D%d does not rebase cleanly onto D%d. Rebase it by hand, update the revision, and land again.", id, parentID))
		}

		newHead, err := v.repo.HeadSHA(ctx)
		if err != nil {
			return err
		}
		raw, err := v.repo.FullDiff(ctx, parentLocal, newHead)
		if err != nil {
			return err
		}
		newDiffID, err := v.review.UpdateRevision(ctx, review.UpdateRequest{
			RevisionID: id,
			RawDiff:    raw,
			BaseCommit: declaredBase,
			HeadCommit: newHead,
			Message:    fmt.Sprintf("Rebased onto the latest diff of D%d.", parentID),
		})
		if err != nil {
			return fmt.Errorf("failed to update D%d: %w", id, err)
		}
		v.splog.Info("%s D%d rebased onto D%d (diff %d)", tui.Tag(tui.TagRepair), id, parentID, newDiffID)

		parentLocal = newHead
		declaredBase = newHead
		parentID = id
	}

	return v.FetchDiffIDs(ctx)
}

// materialize creates a temporary branch at base (HEAD when empty) and
// commits the latest diff of revisionID onto it
func (v *Validator) materialize(ctx context.Context, temp *TempBranches, revisionID int, base string) (Entry, error) {
	diffID, ok := v.LatestDiffID(revisionID)
	if !ok {
		return Entry{}, arcerrors.NewUsageError("revision 'D%d' has no diffs", revisionID)
	}
	name, err := BranchName(ctx, v.repo, revisionID)
	if err != nil {
		return Entry{}, err
	}
	if err := v.repo.CreateBranch(ctx, name, base); err != nil {
		return Entry{}, err
	}
	temp.Add(name)
	v.Created = append(v.Created, name)

	raw, err := v.review.RawDiff(ctx, diffID)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to fetch diff %d: %w", diffID, err)
	}
	res, err := v.repo.ApplyPatch(ctx, raw)
	if err != nil {
		return Entry{}, err
	}
	if !res.OK() {
		return Entry{}, fmt.Errorf("diff %d does not apply: %s", diffID, strings.TrimSpace(res.Stderr))
	}
	message, err := v.message(ctx, revisionID)
	if err != nil {
		return Entry{}, err
	}
	if err := v.repo.Commit(ctx, message); err != nil {
		return Entry{}, err
	}

	head, err := v.repo.HeadSHA(ctx)
	if err != nil {
		return Entry{}, err
	}
	parent, err := v.repo.ParentSHA(ctx, head)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		RevisionID: revisionID,
		DiffID:     diffID,
		Branch:     name,
		LocalBase:  parent,
		LocalHead:  head,
	}, nil
}

// declaredDiffs loads the latest diff records of the revisions from index on
func (v *Validator) declaredDiffs(ctx context.Context, from int) (map[int]review.Diff, error) {
	var ids []int
	for _, id := range v.opts.RevisionIDs[from:] {
		if diffID, ok := v.LatestDiffID(id); ok {
			ids = append(ids, diffID)
		}
	}
	diffs, err := v.review.QueryDiffs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query diffs: %w", err)
	}
	return diffs, nil
}

func (v *Validator) rootBase(ctx context.Context) (string, error) {
	if v.opts.BaseRef == "" {
		return v.repo.HeadSHA(ctx)
	}
	base, err := v.repo.MergeBase(ctx, "HEAD", v.opts.BaseRef)
	if err != nil {
		return "", fmt.Errorf("failed to find the merge base with %s: %w", v.opts.BaseRef, err)
	}
	return base, nil
}

func (v *Validator) message(ctx context.Context, revisionID int) (string, error) {
	if m, ok := v.messages[revisionID]; ok {
		return m, nil
	}
	m, err := v.review.CommitMessage(ctx, revisionID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch the commit message of D%d: %w", revisionID, err)
	}
	v.messages[revisionID] = m
	return m, nil
}

// returnRef is the ref a pass checks out before deleting its branches
func (v *Validator) returnRef(ctx context.Context) string {
	if v.opts.ReturnBranch != "" {
		return v.opts.ReturnBranch
	}
	if branch, err := v.repo.CurrentBranch(ctx); err == nil && branch != "" {
		return branch
	}
	sha, _ := v.repo.HeadSHA(ctx)
	return sha
}

func (v *Validator) finish(ctx context.Context, temp *TempBranches, ref string) {
	if ref != "" {
		if err := v.repo.Checkout(ctx, ref); err != nil {
			v.splog.Warn("unable to check out %s: %v", ref, err)
		}
	}
	temp.Cleanup(ctx, v.repo, v.splog)
}
