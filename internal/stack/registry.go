package stack

import (
	"context"
	"sync"

	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/tui"
)

// BranchDeleter removes local branches
type BranchDeleter interface {
	DeleteBranch(ctx context.Context, name string) error
}

// TempBranches tracks the temporary branches created by one operation so
// they can all be removed when it ends.
type TempBranches struct {
	mu    sync.Mutex
	names []string
}

// Add registers a branch for cleanup
func (t *TempBranches) Add(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = append(t.names, name)
}

// Names returns the registered branches in creation order
func (t *TempBranches) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.names...)
}

// Len returns the number of registered branches
func (t *TempBranches) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.names)
}

// Cleanup deletes every registered branch and empties the registry.
// Failures are reported as warnings and returned, never stopping the loop.
func (t *TempBranches) Cleanup(ctx context.Context, repo BranchDeleter, splog *tui.Splog) []error {
	t.mu.Lock()
	names := t.names
	t.names = nil
	t.mu.Unlock()

	var errs []error
	for _, name := range names {
		splog.Trace("deleting temporary branch %s", name)
		if err := repo.DeleteBranch(ctx, name); err != nil {
			cleanupErr := &arcerrors.CleanupError{BranchName: name, Err: err}
			splog.Warn("%s", cleanupErr.Error())
			errs = append(errs, cleanupErr)
		}
	}
	return errs
}
