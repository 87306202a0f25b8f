// Package land submits a validated stack of revisions to the submit queue.
//
// A landing verifies the source and target refs, merges the target into the
// source, validates (and if needed repairs) the stack against the review
// service, and hands the stack to the queue. Every step after the local state
// snapshot either completes or restores the snapshot, and temporary branches
// are always removed before Land returns.
package land

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"arcstack.dev/arcstack/internal/config"
	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/internal/review"
	"arcstack.dev/arcstack/internal/stack"
	"arcstack.dev/arcstack/internal/submitqueue"
	"arcstack.dev/arcstack/internal/tui"
)

// Repo is the git surface used while landing
type Repo interface {
	stack.Repo
	Fetch(ctx context.Context, remote, branch string) error
	Merge(ctx context.Context, ref string) (git.Result, error)
	MergeAbort(ctx context.Context)
	ResetHard(ctx context.Context, ref string) error
	ForceCheckout(ctx context.Context, ref string) error
	RemoteURL(ctx context.Context, remote string) (string, error)
	IsClean(ctx context.Context) (bool, error)
}

var _ Repo = (*git.API)(nil)

// UpstreamResolver follows the tracking configuration of a branch
type UpstreamResolver interface {
	UpstreamPath(branch string) (git.UpstreamPath, error)
}

// UnitRunner runs the repository's unit tests
type UnitRunner interface {
	RunUnit(ctx context.Context) error
}

// PushRequest describes a stack about to be handed to the queue
type PushRequest struct {
	Remote string                   `json:"remote"`
	Onto   string                   `json:"onto"`
	Shadow bool                     `json:"shadow"`
	Stack  []submitqueue.StackEntry `json:"stack"`
}

// PrePushHook is notified before each submission; an error stops the landing
type PrePushHook func(ctx context.Context, req PushRequest) error

// Options are the per-invocation flags of a landing
type Options struct {
	// Branch to land; defaults to the checked-out branch
	Branch string
	Onto   string
	Remote string
	// RevisionID lands this revision's latest diff instead of Branch's stack
	RevisionID int

	Hold       bool
	KeepBranch bool
	Preview    bool
	NoUnit     bool
	SkipUpdate bool
}

// Config is the repository configuration a landing runs under
type Config struct {
	OntoDefault       string
	Shadow            bool
	PrePushEvent      bool
	PreventUnaccepted bool
	BuildablesCheck   bool
	PathRegex         string
	RunUnit           bool
	MaxRepairs        int
}

// ConfigFromSettings extracts the landing configuration from settings
func ConfigFromSettings(s *config.Settings) Config {
	return Config{
		OntoDefault:       s.Onto(),
		Shadow:            s.SubmitQueueShadow,
		PrePushEvent:      s.PrePushEvent,
		PreventUnaccepted: s.PreventUnaccepted,
		BuildablesCheck:   s.BuildablesCheck,
		PathRegex:         s.SubmitQueueRegex,
		RunUnit:           s.RunUnit,
	}
}

// Deps are the collaborators of an Orchestrator. Upstreams, Unit and PrePush
// are optional; Queue is nil when no submit queue is configured.
type Deps struct {
	Repo      Repo
	Upstreams UpstreamResolver
	Review    review.Client
	Queue     submitqueue.Submitter
	Prompter  tui.Prompter
	Splog     *tui.Splog
	Unit      UnitRunner
	PrePush   PrePushHook
}

// Orchestrator lands stacks through the submit queue
type Orchestrator struct {
	repo      Repo
	upstreams UpstreamResolver
	review    review.Client
	queue     submitqueue.Submitter
	prompter  tui.Prompter
	splog     *tui.Splog
	unit      UnitRunner
	prePush   PrePushHook
	cfg       Config
}

// New creates an orchestrator
func New(deps Deps, cfg Config) *Orchestrator {
	return &Orchestrator{
		repo:      deps.Repo,
		upstreams: deps.Upstreams,
		review:    deps.Review,
		queue:     deps.Queue,
		prompter:  deps.Prompter,
		splog:     deps.Splog,
		unit:      deps.Unit,
		prePush:   deps.PrePush,
		cfg:       cfg,
	}
}

// landing is the state of one Land call
type landing struct {
	opts     Options
	target   Target
	temp     *stack.TempBranches
	snapshot LocalState
	mutated  bool
}

// Land runs a landing. The outcome is OK when the stack was submitted (or the
// preview/hold point was reached), Declined when the user refused a prompt,
// and Failed otherwise.
func (o *Orchestrator) Land(ctx context.Context, opts Options) stack.Outcome {
	if o.queue == nil {
		return stack.Failed(arcerrors.NewUsageError(
			"You are trying to use submitqueue, but the submitqueue URI for your repo is not set"))
	}

	target, err := o.ResolveTarget(ctx, opts)
	if err != nil {
		return stack.Failed(err)
	}

	snapshot, err := o.saveLocalState(ctx, target)
	if err != nil {
		return stack.Failed(err)
	}
	l := &landing{
		opts:     opts,
		target:   target,
		temp:     &stack.TempBranches{},
		snapshot: snapshot,
	}
	defer o.cleanup(ctx, l)

	outcome := o.land(ctx, l)
	if !outcome.IsOK() && l.mutated {
		o.restoreLocalState(ctx, l.snapshot)
	}
	return outcome
}

func (o *Orchestrator) land(ctx context.Context, l *landing) stack.Outcome {
	if o.cfg.RunUnit && !l.opts.NoUnit && o.unit != nil {
		if outcome := o.runUnit(ctx); !outcome.IsOK() {
			return outcome
		}
	}

	if err := o.requireCleanWorkingCopy(ctx); err != nil {
		return stack.Failed(err)
	}

	resolver := stack.NewResolver(o.repo, o.review, o.prompter, o.splog, l.temp)
	resolution, err := resolver.Resolve(ctx, stack.ResolverOptions{
		Branch:            l.target.Source,
		BaseRef:           l.target.RemoteRef(),
		RevisionID:        l.opts.RevisionID,
		PreventUnaccepted: o.cfg.PreventUnaccepted,
		BuildablesCheck:   o.cfg.BuildablesCheck,
		PathRegex:         o.cfg.PathRegex,
	})
	if err != nil {
		return outcomeOf(err)
	}
	if resolution.SourceRef != l.target.Source {
		// A patched revision lands from its temporary branch, and the
		// user's branch is not ours to delete.
		l.target.Source = resolution.SourceRef
		l.target.SourceIsBranch = false
	}
	// Patching a revision already moved HEAD onto a temporary branch.
	l.mutated = l.temp.Len() > 0

	if o.cfg.Shadow {
		o.splog.Info("%s Running a shadow landing first.", tui.Tag(tui.TagShadow))
		if outcome := o.execute(ctx, l, resolution, true); !outcome.IsOK() {
			return outcome
		}
	}
	return o.execute(ctx, l, resolution, false)
}

// execute is a single pass of the landing sequence, shadowed or not
func (o *Orchestrator) execute(ctx context.Context, l *landing, resolution *stack.Resolution, shadow bool) stack.Outcome {
	target := l.target
	if err := o.verifySourceAndTargetExist(ctx, target); err != nil {
		return stack.Failed(err)
	}
	if err := o.repo.Fetch(ctx, target.Remote, target.Onto); err != nil {
		return stack.Failed(fmt.Errorf("failed to fetch %s from %s: %w", target.Onto, target.Remote, err))
	}
	if err := o.printLandingCommits(ctx, target); err != nil {
		return stack.Failed(err)
	}

	if l.opts.Preview {
		o.splog.Info("%s Completed preview of operation.", tui.Tag(tui.TagPreview))
		return stack.OK()
	}

	l.mutated = true
	if !l.opts.SkipUpdate {
		if err := o.updateWorkingCopy(ctx, target); err != nil {
			return stack.Failed(err)
		}
	}

	validator := stack.NewValidator(o.repo, o.review, o.prompter, o.splog, stack.ValidatorOptions{
		RevisionIDs: resolution.RevisionIDs,
		Messages:    resolution.Messages,
		BaseRef:     target.RemoteRef(),
		MaxRepairs:  o.cfg.MaxRepairs,
	})
	if outcome := validator.Run(ctx); !outcome.IsOK() {
		return outcome
	}

	if l.opts.Hold {
		o.splog.Info("Holding change locally, it has not been pushed.")
		l.mutated = false
		return stack.OK()
	}

	entries := validator.Stack()
	if o.cfg.PrePushEvent && o.prePush != nil {
		err := o.prePush(ctx, PushRequest{Remote: target.Remote, Onto: target.Onto, Shadow: shadow, Stack: entries})
		if err != nil {
			return outcomeOf(fmt.Errorf("pre-push hook: %w", err))
		}
	}

	if err := o.pushChange(ctx, target, entries, shadow); err != nil {
		return stack.Failed(err)
	}
	l.mutated = false

	if !shadow {
		o.reconcileLocalState(ctx, l, entries)
	}
	return stack.OK()
}

func (o *Orchestrator) runUnit(ctx context.Context) stack.Outcome {
	o.splog.Info("%s Running unit tests.", tui.Tag(tui.TagUnit))
	err := o.unit.RunUnit(ctx)
	if err == nil {
		o.splog.Info("%s Unit tests passed.", tui.Tag(tui.TagOK))
		return stack.OK()
	}
	o.splog.Warn("Unit tests failed: %v", err)
	ok, perr := o.prompter.Confirm("Revision does not pass unit tests. Continue anyway?", false)
	if perr != nil {
		return stack.Failed(perr)
	}
	if !ok {
		return stack.Declined("unit tests failed")
	}
	return stack.OK()
}

func (o *Orchestrator) requireCleanWorkingCopy(ctx context.Context) error {
	clean, err := o.repo.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return arcerrors.NewUsageError("You have uncommitted changes in this working copy. Commit or stash them before landing.")
	}
	return nil
}

func (o *Orchestrator) verifySourceAndTargetExist(ctx context.Context, target Target) error {
	if _, ok, err := o.repo.Verify(ctx, target.RemoteRef()); err != nil {
		return err
	} else if !ok {
		return arcerrors.NewUsageError("Branch %q does not exist in remote %q.", target.Onto, target.Remote)
	}
	if _, ok, err := o.repo.Verify(ctx, target.Source); err != nil {
		return err
	} else if !ok {
		return arcerrors.NewBranchNotFoundError(target.Source)
	}
	return nil
}

func (o *Orchestrator) printLandingCommits(ctx context.Context, target Target) error {
	commits, err := o.repo.Log(ctx, target.RemoteRef(), target.Source)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		return arcerrors.NewUsageError("There are no commits on %q which are not already present on the target.", target.Source)
	}
	o.splog.Info("The following commit(s) will be landed:")
	for _, c := range commits {
		o.splog.Info("  %s %s %s", tui.ColorYellow(shortSHA(c.SHA)), c.Subject, tui.ColorDim("("+humanize.Time(c.Time)+")"))
	}
	return nil
}

func (o *Orchestrator) updateWorkingCopy(ctx context.Context, target Target) error {
	if err := o.repo.Checkout(ctx, target.Source); err != nil {
		return err
	}
	res, err := o.repo.Merge(ctx, target.RemoteRef())
	if err != nil {
		return err
	}
	if res.OK() {
		return nil
	}
	o.repo.MergeAbort(ctx)
	if err := o.repo.ResetHard(ctx, "HEAD"); err != nil {
		o.splog.Warn("Failed to reset after the aborted merge: %v", err)
	}
	return arcerrors.NewConflictError(target.Source,
		git.ExtractConflict(res.Stdout+"\n"+res.Stderr),
		fmt.Sprintf("%q does not merge cleanly into local %q. Merge or rebase local changes so they can merge cleanly.",
			target.Source, target.RemoteRef()))
}

func (o *Orchestrator) pushChange(ctx context.Context, target Target, entries []submitqueue.StackEntry, shadow bool) error {
	o.splog.Info("%s Pushing changes to Submit Queue.", tui.Tag(tui.TagPushing))
	remoteURL, err := o.repo.RemoteURL(ctx, target.Remote)
	if err != nil {
		return err
	}
	statusURL, err := o.queue.SubmitMergeStackRequest(ctx, remoteURL, entries, shadow, target.Onto)
	if err != nil {
		var remoteErr *arcerrors.RemoteSubmissionError
		if !errors.As(err, &remoteErr) {
			err = &arcerrors.RemoteSubmissionError{Err: err}
		}
		return err
	}
	o.splog.Info("Successfully submitted the request to the Submit Queue.")
	o.splog.Info("Please use %s to track your changes.", tui.ColorCyan(statusURL))
	return nil
}

// reconcileLocalState runs after the queue accepted the stack. Failures here
// are warnings since the landing itself already happened.
func (o *Orchestrator) reconcileLocalState(ctx context.Context, l *landing, entries []submitqueue.StackEntry) {
	if len(entries) > 0 {
		top := entries[len(entries)-1]
		o.splog.Info("To pull this change locally, run: %s", tui.ColorCyan(fmt.Sprintf("arc patch --diff %d --nobranch", top.DiffID)))
	}

	target := l.target
	if l.opts.KeepBranch || !target.SourceIsBranch || target.Source == target.Onto {
		o.splog.Info("Keeping local branch.")
		return
	}
	if err := o.repo.Checkout(ctx, target.Onto); err != nil {
		o.splog.Warn("Failed to check out %s, keeping local branch %s: %v", target.Onto, target.Source, err)
		return
	}
	o.splog.Info("Cleaning up feature branch %q...", target.Source)
	if err := o.repo.DeleteBranch(ctx, target.Source); err != nil {
		o.splog.Warn("Failed to delete %s: %v", target.Source, err)
	}
}

// outcomeOf maps an error to an outcome, keeping user aborts as declines
func outcomeOf(err error) stack.Outcome {
	if errors.Is(err, arcerrors.ErrUserAbort) {
		reason := strings.TrimSuffix(err.Error(), ": "+arcerrors.ErrUserAbort.Error())
		if reason == arcerrors.ErrUserAbort.Error() {
			reason = ""
		}
		return stack.Declined(reason)
	}
	return stack.Failed(err)
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
