package workspace

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"arcstack.dev/arcstack/internal/review"
	"arcstack.dev/arcstack/internal/tui"
)

// RenderTree draws the features of the current window as a tracking tree:
// one line per branch with its age, revision and review status. A feature
// whose local head diff no longer matches the active diff is flagged.
func (w *Workspace) RenderTree() (string, error) {
	features, err := w.Features()
	if err != nil {
		return "", err
	}
	inWindow := make(map[string]bool, len(features))
	for _, f := range features {
		inWindow[f.Name()] = true
	}
	g := w.TrackingGraph()
	current := w.CurrentFeature()

	var b strings.Builder
	visited := map[string]bool{}
	var walk func(f *Feature, depth int)
	walk = func(f *Feature, depth int) {
		if visited[f.Name()] {
			return
		}
		visited[f.Name()] = true
		b.WriteString(renderLine(f, depth, f == current))
		b.WriteString("\n")
		for _, child := range g.Downstreams(f.Name()) {
			if inWindow[child] {
				walk(w.byName[child], depth+1)
			}
		}
	}

	for _, f := range features {
		upstream, ok := g.Upstream(f.Name())
		if !ok || !inWindow[upstream] {
			walk(f, 0)
		}
	}
	// Branches in a tracking cycle have no root to start from.
	for _, f := range features {
		walk(f, 0)
	}
	return b.String(), nil
}

func renderLine(f *Feature, depth int, current bool) string {
	var b strings.Builder
	b.WriteString(tui.TreeColumn(depth))
	name := f.Name()
	if current {
		name = tui.ColorGreen("* " + name)
	}
	b.WriteString(name)
	if !f.Head.CommitTime.IsZero() {
		b.WriteString(" ")
		b.WriteString(tui.ColorDim(humanize.Time(f.Head.CommitTime)))
	}

	switch {
	case !f.HasRevision():
		b.WriteString(" ")
		b.WriteString(tui.ColorDim("No Revision"))
	case f.RevisionData == nil:
		fmt.Fprintf(&b, " D%d", f.RevisionID)
	case f.RevisionData.ID == 0:
		fmt.Fprintf(&b, " D%d %s", f.RevisionID, tui.ColorRed("(not found)"))
	default:
		b.WriteString(" ")
		b.WriteString(tui.ColorCyan(f.RevisionData.Label()))
		b.WriteString(" ")
		b.WriteString(statusColor(f.RevisionData.StatusCode)(f.RevisionData.Status))
	}
	if f.DiffersFromActive() {
		b.WriteString(" ")
		b.WriteString(tui.ColorYellow("(local changes not in review)"))
	}
	return b.String()
}

func statusColor(code int) func(string) string {
	switch code {
	case review.StatusAccepted:
		return tui.ColorGreen
	case review.StatusNeedsRevision, review.StatusAbandoned:
		return tui.ColorRed
	case review.StatusClosed:
		return tui.ColorDim
	default:
		return tui.ColorYellow
	}
}
