package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"arcstack.dev/arcstack/internal/review"
)

// FakeReview is an in-memory review service
type FakeReview struct {
	mu sync.Mutex

	revisions  map[int]review.Revision
	diffs      map[int]review.Diff
	rawDiffs   map[int]string
	search     map[int]review.SearchResult
	messages   map[int]string
	users      map[string]review.User
	buildables map[string][]review.Buildable
	builds     map[string][]review.Build
	nextDiffID int
	calls      []string

	// Viewer is returned by WhoAmI
	Viewer review.User
	// BuildablesErr fails QueryBuildables
	BuildablesErr error
	// Updates records every UpdateRevision request
	Updates []review.UpdateRequest
}

var _ review.Client = (*FakeReview)(nil)

// NewFakeReview creates an empty review service whose viewer is PHID-USER-me
func NewFakeReview() *FakeReview {
	return &FakeReview{
		revisions:  map[int]review.Revision{},
		diffs:      map[int]review.Diff{},
		rawDiffs:   map[int]string{},
		search:     map[int]review.SearchResult{},
		messages:   map[int]string{},
		users:      map[string]review.User{},
		buildables: map[string][]review.Buildable{},
		builds:     map[string][]review.Build{},
		nextDiffID: 1000,
		Viewer:     review.User{PHID: "PHID-USER-me", UserName: "me"},
	}
}

// AddRevision registers an accepted revision authored by the viewer
func (f *FakeReview) AddRevision(id int, title string) {
	f.SetRevision(review.Revision{
		ID:         id,
		PHID:       fmt.Sprintf("PHID-DREV-%d", id),
		Title:      title,
		StatusCode: review.StatusAccepted,
		Status:     "Accepted",
		AuthorPHID: f.Viewer.PHID,
	})
}

// SetRevision stores rev, keeping its known diffs
func (f *FakeReview) SetRevision(rev review.Revision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.revisions[rev.ID]; ok && len(rev.Diffs) == 0 {
		rev.Diffs = existing.Diffs
	}
	f.revisions[rev.ID] = rev
	f.messages[rev.ID] = fmt.Sprintf("%s\n\nDifferential Revision: https://phabricator.example.com/D%d", rev.Title, rev.ID)
	f.search[rev.ID] = review.SearchResult{ID: rev.ID, PHID: rev.PHID, Title: rev.Title, StatusName: rev.Status}
}

// AddDiff attaches a new latest diff to revision revisionID
func (f *FakeReview) AddDiff(revisionID, diffID int, base, head, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addDiff(revisionID, diffID, base, head, raw)
}

func (f *FakeReview) addDiff(revisionID, diffID int, base, head, raw string) {
	f.diffs[diffID] = review.Diff{ID: diffID, RevisionID: revisionID, BaseCommit: base, HeadCommit: head}
	f.rawDiffs[diffID] = raw
	rev := f.revisions[revisionID]
	rev.Diffs = append([]int{diffID}, rev.Diffs...)
	sort.Sort(sort.Reverse(sort.IntSlice(rev.Diffs)))
	f.revisions[revisionID] = rev
	if diffID >= f.nextDiffID {
		f.nextDiffID = diffID + 1
	}
}

// SetChanges records the paths touched by a diff
func (f *FakeReview) SetChanges(diffID int, changes ...review.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.diffs[diffID]
	d.Changes = changes
	f.diffs[diffID] = d
}

// AddUser registers a user for QueryUsers
func (f *FakeReview) AddUser(user review.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.PHID] = user
}

// SetBuildables registers the buildables of an object and their builds
func (f *FakeReview) SetBuildables(objectPHID string, buildables []review.Buildable, builds []review.Build) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildables[objectPHID] = buildables
	for _, b := range buildables {
		f.builds[b.PHID] = builds
	}
}

// Revision returns the stored revision
func (f *FakeReview) Revision(id int) review.Revision {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revisions[id]
}

// Calls returns the method names invoked, in order
func (f *FakeReview) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *FakeReview) called(method string) {
	f.calls = append(f.calls, method)
}

// QueryRevisions implements review.Client
func (f *FakeReview) QueryRevisions(_ context.Context, ids []int) ([]review.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("differential.query")
	var result []review.Revision
	for _, id := range ids {
		if rev, ok := f.revisions[id]; ok {
			rev.Diffs = append([]int{}, rev.Diffs...)
			result = append(result, rev)
		}
	}
	return result, nil
}

// SearchRevisions implements review.Client
func (f *FakeReview) SearchRevisions(_ context.Context, ids []int) ([]review.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("differential.revision.search")
	var result []review.SearchResult
	for _, id := range ids {
		if s, ok := f.search[id]; ok {
			result = append(result, s)
		}
	}
	return result, nil
}

// QueryDiffs implements review.Client
func (f *FakeReview) QueryDiffs(_ context.Context, ids []int) (map[int]review.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("differential.querydiffs")
	result := map[int]review.Diff{}
	for _, id := range ids {
		if d, ok := f.diffs[id]; ok {
			result[id] = d
		}
	}
	return result, nil
}

// RawDiff implements review.Client
func (f *FakeReview) RawDiff(_ context.Context, diffID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("differential.getrawdiff")
	raw, ok := f.rawDiffs[diffID]
	if !ok {
		return "", fmt.Errorf("no diff %d", diffID)
	}
	return raw, nil
}

// CommitMessage implements review.Client
func (f *FakeReview) CommitMessage(_ context.Context, revisionID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("differential.getcommitmessage")
	return f.messages[revisionID], nil
}

// QueryUsers implements review.Client
func (f *FakeReview) QueryUsers(_ context.Context, phids []string) ([]review.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("user.query")
	var result []review.User
	for _, phid := range phids {
		if u, ok := f.users[phid]; ok {
			result = append(result, u)
		}
	}
	return result, nil
}

// WhoAmI implements review.Client
func (f *FakeReview) WhoAmI(context.Context) (review.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("user.whoami")
	return f.Viewer, nil
}

// QueryBuildables implements review.Client
func (f *FakeReview) QueryBuildables(_ context.Context, objectPHID string) ([]review.Buildable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("harbormaster.querybuildables")
	if f.BuildablesErr != nil {
		return nil, f.BuildablesErr
	}
	return f.buildables[objectPHID], nil
}

// QueryBuilds implements review.Client
func (f *FakeReview) QueryBuilds(_ context.Context, buildablePHID string) ([]review.Build, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("harbormaster.querybuilds")
	return f.builds[buildablePHID], nil
}

// UpdateRevision implements review.Client by attaching a new diff
func (f *FakeReview) UpdateRevision(_ context.Context, req review.UpdateRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called("differential.revision.edit")
	if _, ok := f.revisions[req.RevisionID]; !ok {
		return 0, fmt.Errorf("no revision D%d", req.RevisionID)
	}
	id := f.nextDiffID
	f.addDiff(req.RevisionID, id, req.BaseCommit, req.HeadCommit, req.RawDiff)
	f.Updates = append(f.Updates, req)
	return id, nil
}
