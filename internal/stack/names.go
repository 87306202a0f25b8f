package stack

import (
	"context"
	"fmt"
	"strconv"
)

// BranchPrefix starts the name of every temporary branch
const BranchPrefix = "arcstack"

// maxBranchAttempts bounds the suffixes probed by BranchName
const maxBranchAttempts = 100

// RefVerifier resolves refs without failing on missing ones
type RefVerifier interface {
	Verify(ctx context.Context, ref string) (string, bool, error)
}

// BranchName returns the first unused temporary branch name for a revision:
// arcstack-D<id>_<n>, or arcstack_<n> when revisionID is 0.
func BranchName(ctx context.Context, repo RefVerifier, revisionID int) (string, error) {
	base := BranchPrefix
	if revisionID > 0 {
		base += "-D" + strconv.Itoa(revisionID)
	}
	for n := 0; n < maxBranchAttempts; n++ {
		name := base + "_" + strconv.Itoa(n)
		_, exists, err := repo.Verify(ctx, name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
	}
	return "", fmt.Errorf("unable to find a free branch name for %s after %d attempts; delete stale %s_* branches and try again",
		base, maxBranchAttempts, base)
}
