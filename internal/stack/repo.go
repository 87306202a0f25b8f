// Package stack resolves the revisions of a stack, materializes them on
// temporary branches, and repairs chains whose revisions no longer sit on
// the latest diff of their parent.
package stack

import (
	"context"

	"arcstack.dev/arcstack/internal/git"
)

// Repo is the repository surface used by the stack engine. *git.API
// satisfies it.
type Repo interface {
	RefVerifier
	BranchDeleter
	CurrentBranch(ctx context.Context) (string, error)
	HeadSHA(ctx context.Context) (string, error)
	Checkout(ctx context.Context, ref string) error
	CreateBranch(ctx context.Context, name, base string) error
	RebaseOnto(ctx context.Context, onto, upstream, branch string) (git.Result, error)
	RebaseAbort(ctx context.Context) error
	MergeBase(ctx context.Context, left, right string) (string, error)
	ParentSHA(ctx context.Context, sha string) (string, error)
	FullDiff(ctx context.Context, from, to string) (string, error)
	ApplyPatch(ctx context.Context, patch string) (git.Result, error)
	Commit(ctx context.Context, message string) error
	Log(ctx context.Context, base, head string) ([]git.Commit, error)
}

var _ Repo = (*git.API)(nil)
