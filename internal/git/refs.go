package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeadRefFields are the for-each-ref fields read for every local branch
var HeadRefFields = []string{
	"refname",
	"refname:short",
	"upstream",
	"upstream:short",
	"upstream:track",
	"objectname",
	"objecttype",
	"tree",
	"parent",
	"HEAD",
	"subject",
	"body",
	"committerdate:raw",
}

const (
	fieldSeparator  = "\x00"
	recordSeparator = "\x1e"
)

// BranchRef is an immutable snapshot of one local branch
type BranchRef struct {
	RefName       string // refs/heads/feature
	Name          string // feature
	Upstream      string // refs/heads/main or refs/remotes/origin/main, empty if none
	UpstreamShort string
	UpstreamTrack string // e.g. "[ahead 1, behind 2]"
	ObjectName    string
	ObjectType    string
	Tree          string
	Parents       []string
	IsHead        bool
	Subject       string
	Body          string
	CommitTime    time.Time
}

// HasUpstream reports whether the branch tracks anything
func (r BranchRef) HasUpstream() bool {
	return r.Upstream != ""
}

// TracksLocalBranch reports whether the upstream is another local branch
func (r BranchRef) TracksLocalBranch() bool {
	return strings.HasPrefix(r.Upstream, "refs/heads/")
}

// ParentSHA returns the first parent of the branch head, or "" for a root commit
func (r BranchRef) ParentSHA() string {
	if len(r.Parents) == 0 {
		return ""
	}
	return r.Parents[0]
}

// Message returns the full commit message of the branch head
func (r BranchRef) Message() string {
	if r.Body == "" {
		return r.Subject
	}
	return r.Subject + "\n\n" + r.Body
}

// NewBranchRefFromFields builds a BranchRef from for-each-ref output fields
func NewBranchRefFromFields(fields map[string]string) BranchRef {
	ref := BranchRef{
		RefName:       fields["refname"],
		Name:          fields["refname:short"],
		Upstream:      fields["upstream"],
		UpstreamShort: fields["upstream:short"],
		UpstreamTrack: fields["upstream:track"],
		ObjectName:    fields["objectname"],
		ObjectType:    fields["objecttype"],
		Tree:          fields["tree"],
		Parents:       strings.Fields(fields["parent"]),
		IsHead:        strings.TrimSpace(fields["HEAD"]) == "*",
		Subject:       fields["subject"],
		Body:          strings.TrimRight(fields["body"], "\n"),
	}
	if ref.Name == "" {
		ref.Name = strings.TrimPrefix(ref.RefName, "refs/heads/")
	}
	ref.CommitTime = parseRawDate(fields["committerdate:raw"])
	return ref
}

// parseRawDate parses git's raw date format "<unix seconds> <tz offset>"
func parseRawDate(raw string) time.Time {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// ForEachRef runs for-each-ref over pattern and returns one field map per ref
func (a *API) ForEachRef(ctx context.Context, fields []string, pattern string) ([]map[string]string, error) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = "%(" + f + ")"
	}
	format := strings.Join(parts, "%00") + "%1e"

	out, err := ExecxRaw(ctx, a.runner, "for-each-ref", "--format="+format, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list refs: %w", err)
	}

	var records []map[string]string
	for _, record := range strings.Split(out, recordSeparator) {
		record = strings.TrimPrefix(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		values := strings.Split(record, fieldSeparator)
		if len(values) != len(fields) {
			return nil, fmt.Errorf("unexpected for-each-ref record with %d fields, want %d", len(values), len(fields))
		}
		m := make(map[string]string, len(fields))
		for i, f := range fields {
			m[f] = values[i]
		}
		records = append(records, m)
	}
	return records, nil
}

// HeadRefs returns a snapshot of every local branch, ordered by ref name
func (a *API) HeadRefs(ctx context.Context) ([]BranchRef, error) {
	records, err := a.ForEachRef(ctx, HeadRefFields, "refs/heads")
	if err != nil {
		return nil, err
	}
	refs := make([]BranchRef, 0, len(records))
	for _, r := range records {
		refs = append(refs, NewBranchRefFromFields(r))
	}
	return refs, nil
}
