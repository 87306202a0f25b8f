// Package workspace models the local branches of a repository together with
// their review-service state.
package workspace

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/internal/graph"
	"arcstack.dev/arcstack/internal/review"
)

// RefSource lists local branch heads
type RefSource interface {
	HeadRefs(ctx context.Context) ([]git.BranchRef, error)
}

// RevisionSource is the part of the review service the workspace reads
type RevisionSource interface {
	QueryRevisions(ctx context.Context, ids []int) ([]review.Revision, error)
	SearchRevisions(ctx context.Context, ids []int) ([]review.SearchResult, error)
}

// DiffLoader produces head and active diff texts
type DiffLoader interface {
	CacheHeadDiffs(ctx context.Context, shas []string) (map[string]string, error)
	CacheActiveDiffs(ctx context.Context, ids []int) (map[int]string, error)
}

// Workspace is a snapshot of local branches, optionally narrowed to a window
// between a root and a terminal branch.
type Workspace struct {
	refs     []git.BranchRef
	byName   map[string]*Feature
	tracking *graph.BranchGraph

	root     string
	terminal string
	features []*Feature

	revisions RevisionSource
	diffs     DiffLoader

	revisionsLoaded   bool
	headDiffsLoaded   bool
	activeDiffsLoaded bool
}

// Load snapshots the local branches of the repository
func Load(ctx context.Context, refs RefSource, revisions RevisionSource, diffs DiffLoader) (*Workspace, error) {
	heads, err := refs.HeadRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	return New(heads, revisions, diffs), nil
}

// New creates a workspace over the given branch heads
func New(heads []git.BranchRef, revisions RevisionSource, diffs DiffLoader) *Workspace {
	w := &Workspace{
		refs:      heads,
		byName:    make(map[string]*Feature, len(heads)),
		revisions: revisions,
		diffs:     diffs,
	}
	for _, head := range heads {
		w.byName[head.Name] = newFeature(head)
	}
	return w
}

// SetRootBranch narrows Features to root and its descendants
func (w *Workspace) SetRootBranch(root string) *Workspace {
	w.root = root
	w.features = nil
	return w
}

// SetTerminalBranch narrows Features to the upstream walk from terminal
func (w *Workspace) SetTerminalBranch(terminal string) *Workspace {
	w.terminal = terminal
	w.features = nil
	return w
}

// Features returns the features of the current window:
//   - no root or terminal: every local branch, in ref order
//   - root only: root and its downstream closure, breadth first
//   - terminal: terminal and its upstreams, stopping at root when set
func (w *Workspace) Features() ([]*Feature, error) {
	if w.features != nil {
		return w.features, nil
	}

	var features []*Feature
	var err error
	switch {
	case w.terminal != "":
		features, err = w.featuresBetween(w.root, w.terminal)
	case w.root != "":
		features, err = w.childFeatures(w.root)
	default:
		for _, ref := range w.refs {
			features = append(features, w.byName[ref.Name])
		}
	}
	if err != nil {
		return nil, err
	}
	if features == nil {
		features = []*Feature{}
	}
	w.features = features
	return features, nil
}

func (w *Workspace) childFeatures(root string) ([]*Feature, error) {
	rootFeature, ok := w.byName[root]
	if !ok {
		return nil, arcerrors.NewUnexpectedValueError("invalid root branch specified: %s", root)
	}
	features := []*Feature{rootFeature}
	for _, name := range w.TrackingGraph().Descendants(root) {
		features = append(features, w.byName[name])
	}
	return features, nil
}

func (w *Workspace) featuresBetween(root, terminal string) ([]*Feature, error) {
	current, ok := w.byName[terminal]
	if !ok {
		return nil, arcerrors.NewUnexpectedValueError("invalid terminal branch specified: %s", terminal)
	}
	var features []*Feature
	visited := map[string]bool{}
	for current != nil && !visited[current.Name()] {
		visited[current.Name()] = true
		features = append(features, current)
		if current.Name() == root {
			return features, nil
		}
		if !current.Head.TracksLocalBranch() {
			break
		}
		current = w.byName[current.Head.UpstreamShort]
	}
	if root != "" {
		return nil, arcerrors.NewUnexpectedValueError("branch %s does not track %s", terminal, root)
	}
	return features, nil
}

// Feature returns the named feature of the current window
func (w *Workspace) Feature(name string) (*Feature, bool, error) {
	features, err := w.Features()
	if err != nil {
		return nil, false, err
	}
	for _, f := range features {
		if f.Name() == name {
			return f, true, nil
		}
	}
	return nil, false, nil
}

// FeatureNames returns the branch names of the current window
func (w *Workspace) FeatureNames() ([]string, error) {
	features, err := w.Features()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, f.Name())
	}
	return names, nil
}

// CurrentFeature returns the feature of the checked out branch, if any
func (w *Workspace) CurrentFeature() *Feature {
	for _, ref := range w.refs {
		if ref.IsHead {
			return w.byName[ref.Name]
		}
	}
	return nil
}

// TrackingGraph links each branch to the local branch it tracks. Branches
// tracking remote or unknown refs are roots.
func (w *Workspace) TrackingGraph() *graph.BranchGraph {
	if w.tracking != nil {
		return w.tracking
	}
	g := graph.New()
	for _, ref := range w.refs {
		g.AddEdges(ref.Name)
	}
	for _, ref := range w.refs {
		if !ref.TracksLocalBranch() {
			continue
		}
		if _, ok := w.byName[ref.UpstreamShort]; !ok {
			continue
		}
		g.AddEdges(ref.UpstreamShort, ref.Name)
	}
	w.tracking = g.Load()
	return w.tracking
}

// LoadRevisions attaches review data to every feature of the current window.
// differential.query and differential.revision.search run concurrently.
func (w *Workspace) LoadRevisions(ctx context.Context) error {
	if w.revisionsLoaded {
		return nil
	}
	features, err := w.Features()
	if err != nil {
		return err
	}

	var ids []int
	seen := map[int]bool{}
	for _, f := range features {
		if f.HasRevision() && !seen[f.RevisionID] {
			seen[f.RevisionID] = true
			ids = append(ids, f.RevisionID)
		}
	}

	var queried []review.Revision
	var searched []review.SearchResult
	if len(ids) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			queried, err = w.revisions.QueryRevisions(gctx, ids)
			return err
		})
		g.Go(func() error {
			var err error
			searched, err = w.revisions.SearchRevisions(gctx, ids)
			return err
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("loading revisions: %w", err)
		}
	}

	byID := make(map[int]review.Revision, len(queried))
	for _, r := range queried {
		byID[r.ID] = r
	}
	searchByID := make(map[int]review.SearchResult, len(searched))
	for _, s := range searched {
		searchByID[s.ID] = s
	}

	for _, f := range features {
		if !f.HasRevision() {
			f.RevisionData = nil
			f.SearchData = nil
			continue
		}
		rev := byID[f.RevisionID]
		search := searchByID[f.RevisionID]
		f.RevisionData = &rev
		f.SearchData = &search
		if latest, ok := rev.LatestDiffID(); ok {
			f.ActiveDiffID = latest
		}
	}
	w.revisionsLoaded = true
	return nil
}

// LoadHeadDiffs attaches the diff each feature head introduces over its
// parent, for features that have a revision
func (w *Workspace) LoadHeadDiffs(ctx context.Context) error {
	if w.headDiffsLoaded {
		return nil
	}
	if err := w.LoadRevisions(ctx); err != nil {
		return err
	}
	features, err := w.Features()
	if err != nil {
		return err
	}

	var shas []string
	for _, f := range features {
		if f.HasRevision() {
			shas = append(shas, f.Head.ObjectName)
		}
	}
	diffs, err := w.diffs.CacheHeadDiffs(ctx, shas)
	if err != nil {
		return err
	}
	for _, f := range features {
		if text, ok := diffs[f.Head.ObjectName]; ok && f.HasRevision() {
			f.HeadDiff = &text
		}
	}
	w.headDiffsLoaded = true
	return nil
}

// LoadActiveDiffs attaches the raw text of each feature's active diff
func (w *Workspace) LoadActiveDiffs(ctx context.Context) error {
	if w.activeDiffsLoaded {
		return nil
	}
	if err := w.LoadRevisions(ctx); err != nil {
		return err
	}
	features, err := w.Features()
	if err != nil {
		return err
	}

	var ids []int
	for _, f := range features {
		if f.ActiveDiffID != 0 {
			ids = append(ids, f.ActiveDiffID)
		}
	}
	diffs, err := w.diffs.CacheActiveDiffs(ctx, ids)
	if err != nil {
		return err
	}
	for _, f := range features {
		if text, ok := diffs[f.ActiveDiffID]; ok && f.ActiveDiffID != 0 {
			f.ActiveDiff = &text
		}
	}
	w.activeDiffsLoaded = true
	return nil
}
