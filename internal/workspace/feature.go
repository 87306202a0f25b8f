package workspace

import (
	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/internal/review"
)

// Feature is a local branch viewed as a unit of review work. Review data is
// attached lazily by the Workspace that created it.
type Feature struct {
	Head       git.BranchRef
	RevisionID int

	// RevisionData is nil when the head has no revision id and an empty
	// record when the review service did not return the revision.
	RevisionData *review.Revision
	SearchData   *review.SearchResult

	ActiveDiffID int
	ActiveDiff   *string
	HeadDiff     *string
}

func newFeature(head git.BranchRef) *Feature {
	return &Feature{
		Head:       head,
		RevisionID: review.ParseRevisionID(head.Message()),
	}
}

// Name is the branch name
func (f *Feature) Name() string {
	return f.Head.Name
}

// HasRevision reports whether the head commit names a revision
func (f *Feature) HasRevision() bool {
	return f.RevisionID != 0
}

// DiffersFromActive reports whether the local head diff no longer matches
// the revision's active diff. It is false until both diffs are loaded.
func (f *Feature) DiffersFromActive() bool {
	if f.HeadDiff == nil || f.ActiveDiff == nil {
		return false
	}
	return *f.HeadDiff != *f.ActiveDiff
}
