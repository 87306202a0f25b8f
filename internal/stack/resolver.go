package stack

import (
	"context"
	"fmt"
	"strings"

	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/review"
	"arcstack.dev/arcstack/internal/tui"
)

// ResolverOptions selects the stack to resolve
type ResolverOptions struct {
	// Branch is the local branch (or commit) whose stack is landed
	Branch string
	// BaseRef is the remote target, e.g. origin/master
	BaseRef string
	// RevisionID lands this revision's latest diff instead of the
	// revisions found on Branch
	RevisionID int
	// PreventUnaccepted turns the unaccepted-revision prompt into an error
	PreventUnaccepted bool
	// BuildablesCheck turns the unfinished-build prompt into an error
	BuildablesCheck bool
	// PathRegex, when set, requires the root revision to touch a matching path
	PathRegex string
}

// Resolution is an ordered, checked stack
type Resolution struct {
	// SourceRef is the ref the revisions were read from. It differs from
	// the requested branch when a revision was patched onto a temporary branch.
	SourceRef   string
	RevisionIDs []int // root first
	Revisions   []review.Revision
	Messages    map[int]string
}

// Resolver finds the revisions of a branch and checks they may be landed
type Resolver struct {
	repo     Repo
	review   review.Client
	prompter tui.Prompter
	splog    *tui.Splog
	temp     *TempBranches

	viewer *review.User
}

// NewResolver creates a resolver. Temporary branches it creates are
// registered in temp; the caller owns their cleanup.
func NewResolver(repo Repo, client review.Client, prompter tui.Prompter, splog *tui.Splog, temp *TempBranches) *Resolver {
	return &Resolver{
		repo:     repo,
		review:   client,
		prompter: prompter,
		splog:    splog,
		temp:     temp,
	}
}

// Resolve returns the revisions of opts.Branch in root-to-leaf order
func (r *Resolver) Resolve(ctx context.Context, opts ResolverOptions) (*Resolution, error) {
	source := opts.Branch
	if opts.RevisionID > 0 {
		patched, err := r.patchRevision(ctx, source, opts.RevisionID)
		if err != nil {
			return nil, err
		}
		source = patched
	}

	ids, err := r.revisionIDsOn(ctx, opts.BaseRef, source)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, arcerrors.NewUsageError(
			"arcstack can not identify which revision exists on branch '%s'. Amend the commit message "+
				"to carry a 'Differential Revision:' line, or use '--revision <id>' to select a revision explicitly.",
			opts.Branch)
	}

	revisions, err := r.review.QueryRevisions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	byID := make(map[int]review.Revision, len(revisions))
	for _, rev := range revisions {
		byID[rev.ID] = rev
	}

	res := &Resolution{SourceRef: source, Messages: map[int]string{}}
	for _, id := range ids {
		rev, ok := byID[id]
		if !ok {
			return nil, arcerrors.NewUsageError("no such revision 'D%d'", id)
		}
		if err := r.check(ctx, rev, opts); err != nil {
			return nil, err
		}
		message, err := r.review.CommitMessage(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch the commit message of D%d: %w", id, err)
		}
		res.RevisionIDs = append(res.RevisionIDs, id)
		res.Revisions = append(res.Revisions, rev)
		res.Messages[id] = message
		r.splog.Info("Adding revision '%s' for landing...", rev.Label())
	}

	if opts.PathRegex != "" {
		if err := r.checkPaths(ctx, res.Revisions[0], opts.PathRegex); err != nil {
			return nil, err
		}
	}
	r.splog.Trace("revision ids in stack order: %v (source %s)", res.RevisionIDs, source)
	return res, nil
}

// revisionIDsOn reads revision trailers from base..head and returns them
// root first. A revision seen on several commits keeps its oldest position.
func (r *Resolver) revisionIDsOn(ctx context.Context, base, head string) ([]int, error) {
	commits, err := r.repo.Log(ctx, base, head)
	if err != nil {
		return nil, err
	}
	seen := map[int]bool{}
	var ids []int
	for i := len(commits) - 1; i >= 0; i-- {
		id := review.ParseRevisionID(commits[i].Message)
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// patchRevision creates a temporary branch at source and commits the latest
// diff of revisionID onto it
func (r *Resolver) patchRevision(ctx context.Context, source string, revisionID int) (string, error) {
	revisions, err := r.review.QueryRevisions(ctx, []int{revisionID})
	if err != nil {
		return "", fmt.Errorf("failed to query D%d: %w", revisionID, err)
	}
	if len(revisions) == 0 {
		return "", arcerrors.NewUsageError("no such revision 'D%d'", revisionID)
	}
	diffID, ok := revisions[0].LatestDiffID()
	if !ok {
		return "", arcerrors.NewUsageError("revision 'D%d' has no diffs", revisionID)
	}

	sourceSHA, exists, err := r.repo.Verify(ctx, source)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", arcerrors.NewBranchNotFoundError(source)
	}
	name, err := BranchName(ctx, r.repo, revisionID)
	if err != nil {
		return "", err
	}
	if err := r.repo.CreateBranch(ctx, name, sourceSHA); err != nil {
		return "", err
	}
	r.temp.Add(name)
	r.splog.Trace("created temporary branch %s at %s for D%d", name, sourceSHA, revisionID)

	raw, err := r.review.RawDiff(ctx, diffID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch diff %d: %w", diffID, err)
	}
	res, err := r.repo.ApplyPatch(ctx, raw)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", arcerrors.NewUsageError("unable to apply diff %d of D%d: %s", diffID, revisionID, strings.TrimSpace(res.Stderr))
	}
	message, err := r.review.CommitMessage(ctx, revisionID)
	if err != nil {
		return "", err
	}
	if err := r.repo.Commit(ctx, message); err != nil {
		return "", err
	}
	return name, nil
}

func (r *Resolver) check(ctx context.Context, rev review.Revision, opts ResolverOptions) error {
	viewer, err := r.whoAmI(ctx)
	if err != nil {
		return err
	}
	if rev.AuthorPHID != viewer.PHID {
		author := rev.AuthorPHID
		users, err := r.review.QueryUsers(ctx, []string{rev.AuthorPHID})
		if err != nil {
			return fmt.Errorf("failed to look up the author of D%d: %w", rev.ID, err)
		}
		for _, u := range users {
			if u.PHID == rev.AuthorPHID {
				author = u.UserName
			}
		}
		if err := r.confirm(fmt.Sprintf("This branch has revision '%s' but you are not the author. Land this revision by %s?", rev.Label(), author)); err != nil {
			return err
		}
	}

	if rev.IsClosed() {
		return arcerrors.NewUsageError("revision '%s' has already been closed", rev.Label())
	}
	if !rev.IsAccepted() {
		if opts.PreventUnaccepted {
			return arcerrors.NewUsageError("revision '%s' has not been accepted", rev.Label())
		}
		if err := r.confirm(fmt.Sprintf("Revision '%s' has not been accepted. Continue anyway?", rev.Label())); err != nil {
			return err
		}
	}

	if rev.ActiveDiffPHID != "" {
		return r.checkBuildables(ctx, rev.ActiveDiffPHID, opts.BuildablesCheck)
	}
	return nil
}

func (r *Resolver) whoAmI(ctx context.Context) (review.User, error) {
	if r.viewer != nil {
		return *r.viewer, nil
	}
	user, err := r.review.WhoAmI(ctx)
	if err != nil {
		return review.User{}, fmt.Errorf("failed to identify the current user: %w", err)
	}
	r.viewer = &user
	return user, nil
}

func (r *Resolver) confirm(message string) error {
	ok, err := r.prompter.Confirm(message, false)
	if err != nil {
		return err
	}
	if !ok {
		return arcerrors.ErrUserAbort
	}
	return nil
}

// checkBuildables is advisory: a failing lookup never blocks landing
func (r *Resolver) checkBuildables(ctx context.Context, diffPHID string, strict bool) error {
	buildables, err := r.review.QueryBuildables(ctx, diffPHID)
	if err != nil {
		r.splog.Trace("%v", &arcerrors.AdvisoryCheckError{Check: "harbormaster.querybuildables", Err: err})
		return nil
	}
	if len(buildables) == 0 {
		return nil
	}
	buildable := buildables[0]

	var message, prompt string
	switch buildable.Status {
	case review.BuildablePassed:
		r.splog.Info("%s Harbormaster builds for the active diff completed successfully.", tui.Tag("BUILDS PASSED"))
		return nil
	case review.BuildableBuilding:
		message = "Harbormaster is still building the active diff for this revision:"
		prompt = "Land revision anyway, despite ongoing build?"
	case review.BuildableFailed:
		message = "Harbormaster failed to build the active diff for this revision. Build failures:"
		prompt = "Land revision anyway, despite build failures?"
	default:
		return nil
	}

	builds, err := r.review.QueryBuilds(ctx, buildable.PHID)
	if err != nil {
		r.splog.Trace("%v", &arcerrors.AdvisoryCheckError{Check: "harbormaster.querybuilds", Err: err})
		builds = nil
	}
	r.splog.Info("%s", message)
	r.splog.Newline()
	for _, b := range builds {
		status := strings.ToUpper(b.StatusName)
		if status == "" {
			status = strings.ToUpper(b.Status)
		}
		label := tui.ColorYellow(status)
		if b.Status == review.BuildableFailed {
			label = tui.ColorRed(status)
		}
		r.splog.Info("    %s Build %d: %s", label, b.ID.Int(), b.Name)
	}
	r.splog.Newline()
	r.splog.Info("You can review build details here:")
	r.splog.Info("    Harbormaster URI: %s", buildable.URI)

	if strict {
		return arcerrors.NewUsageError("all harbormaster buildables have not succeeded")
	}
	return r.confirm(prompt)
}

// checkPaths requires the latest diff of root to touch a path matching pattern
func (r *Resolver) checkPaths(ctx context.Context, root review.Revision, pattern string) error {
	re, err := CompilePathPattern(pattern)
	if err != nil {
		return arcerrors.NewUsageError("invalid submit queue path pattern %q: %v", pattern, err)
	}
	diffID, ok := root.LatestDiffID()
	if !ok {
		return arcerrors.NewUsageError("revision '%s' has no diffs", root.Label())
	}
	diffs, err := r.review.QueryDiffs(ctx, []int{diffID})
	if err != nil {
		return fmt.Errorf("failed to query diff %d: %w", diffID, err)
	}
	for _, change := range diffs[diffID].Changes {
		if re.MatchString(change.OldPath) || re.MatchString(change.CurrentPath) {
			return nil
		}
	}
	return arcerrors.NewUsageError("revision '%s' touches no path matching %q; arcstack only lands through the submit queue",
		root.Label(), pattern)
}
