package land

import (
	"context"

	"arcstack.dev/arcstack/internal/tui"
)

// LocalState is the working copy as it was before a landing touched it
type LocalState struct {
	// Ref is the checked-out branch, or the commit when HEAD was detached
	Ref      string
	SHA      string
	OnBranch bool
	// Source and SourceSHA record the landed branch, which the merge step
	// moves even when it is not the checked-out branch
	Source    string
	SourceSHA string
}

func (o *Orchestrator) saveLocalState(ctx context.Context, target Target) (LocalState, error) {
	branch, err := o.repo.CurrentBranch(ctx)
	if err != nil {
		return LocalState{}, err
	}
	sha, err := o.repo.HeadSHA(ctx)
	if err != nil {
		return LocalState{}, err
	}
	state := LocalState{Ref: branch, SHA: sha, OnBranch: branch != ""}
	if !state.OnBranch {
		state.Ref = sha
	}
	if target.SourceIsBranch && target.Source != branch {
		if sourceSHA, ok, err := o.repo.Verify(ctx, target.Source); err == nil && ok {
			state.Source = target.Source
			state.SourceSHA = sourceSHA
		}
	}
	return state, nil
}

// restoreLocalState puts the snapshot back. Failures are logged; the error
// that caused the restore is what the caller reports.
func (o *Orchestrator) restoreLocalState(ctx context.Context, state LocalState) {
	o.splog.Info("%s Restoring local state.", tui.Tag(tui.TagCleanup))
	if state.Source != "" {
		if err := o.repo.ForceCheckout(ctx, state.Source); err != nil {
			o.splog.Warn("Failed to check out %s: %v", state.Source, err)
		} else if err := o.repo.ResetHard(ctx, state.SourceSHA); err != nil {
			o.splog.Warn("Failed to reset %s to %s: %v", state.Source, shortSHA(state.SourceSHA), err)
		}
	}
	if err := o.repo.ForceCheckout(ctx, state.Ref); err != nil {
		o.splog.Warn("Failed to check out %s: %v", state.Ref, err)
		return
	}
	if state.OnBranch {
		if err := o.repo.ResetHard(ctx, state.SHA); err != nil {
			o.splog.Warn("Failed to reset %s to %s: %v", state.Ref, shortSHA(state.SHA), err)
		}
	}
}

// cleanup removes the landing's temporary branches, first leaving any of
// them that is checked out
func (o *Orchestrator) cleanup(ctx context.Context, l *landing) {
	if l.temp.Len() == 0 {
		return
	}
	current, err := o.repo.CurrentBranch(ctx)
	if err == nil {
		for _, name := range l.temp.Names() {
			if name == current {
				if err := o.repo.Checkout(ctx, l.snapshot.Ref); err != nil {
					o.splog.Warn("Failed to check out %s: %v", l.snapshot.Ref, err)
				}
				break
			}
		}
	}
	l.temp.Cleanup(ctx, o.repo, o.splog)
}
