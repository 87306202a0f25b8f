// Package review is the client side of the code-review service (Phabricator
// Differential, spoken to over Conduit).
//
// Conduit is loose about JSON types: ids arrive as strings or numbers and empty
// maps arrive as empty arrays. Records here decode either form.
package review

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Revision status codes as reported by differential.query
const (
	StatusNeedsReview    = 0
	StatusNeedsRevision  = 1
	StatusAccepted       = 2
	StatusClosed         = 3
	StatusAbandoned      = 4
	StatusChangesPlanned = 5
)

// Revision is a differential.query record
type Revision struct {
	ID             int
	PHID           string
	Title          string
	URI            string
	StatusCode     int
	Status         string
	AuthorPHID     string
	Diffs          []int // most recent first
	ActiveDiffPHID string
	Summary        string
}

// IsAccepted reports whether reviewers accepted the revision
func (r Revision) IsAccepted() bool {
	return r.StatusCode == StatusAccepted
}

// IsClosed reports whether the revision already landed
func (r Revision) IsClosed() bool {
	return r.StatusCode == StatusClosed
}

// LatestDiffID returns the most recent diff of the revision
func (r Revision) LatestDiffID() (int, bool) {
	if len(r.Diffs) == 0 {
		return 0, false
	}
	return r.Diffs[0], true
}

// Label renders the revision the way reviewers refer to it
func (r Revision) Label() string {
	if r.Title == "" {
		return "D" + strconv.Itoa(r.ID)
	}
	return "D" + strconv.Itoa(r.ID) + ": " + r.Title
}

type wireRevision struct {
	ID             flexInt   `json:"id"`
	PHID           string    `json:"phid"`
	Title          string    `json:"title"`
	URI            string    `json:"uri"`
	Status         flexInt   `json:"status"`
	StatusName     string    `json:"statusName"`
	AuthorPHID     string    `json:"authorPHID"`
	Diffs          []flexInt `json:"diffs"`
	ActiveDiffPHID string    `json:"activeDiffPHID"`
	Summary        string    `json:"summary"`
}

func (w wireRevision) toRevision() Revision {
	diffs := make([]int, 0, len(w.Diffs))
	for _, d := range w.Diffs {
		diffs = append(diffs, int(d))
	}
	// Conduit lists diffs newest first; enforce it in case a server does not.
	sort.Sort(sort.Reverse(sort.IntSlice(diffs)))
	return Revision{
		ID:             int(w.ID),
		PHID:           w.PHID,
		Title:          w.Title,
		URI:            w.URI,
		StatusCode:     int(w.Status),
		Status:         w.StatusName,
		AuthorPHID:     w.AuthorPHID,
		Diffs:          diffs,
		ActiveDiffPHID: w.ActiveDiffPHID,
		Summary:        w.Summary,
	}
}

// SearchResult is a differential.revision.search record
type SearchResult struct {
	ID               int
	PHID             string
	Title            string
	StatusValue      string
	StatusName       string
	Closed           bool
	DiffPHID         string
	QueueSubmissions json.RawMessage
}

type wireSearchResult struct {
	ID     flexInt `json:"id"`
	PHID   string  `json:"phid"`
	Fields struct {
		Title  string `json:"title"`
		Status struct {
			Value  string `json:"value"`
			Name   string `json:"name"`
			Closed bool   `json:"closed"`
		} `json:"status"`
		DiffPHID string `json:"diffPHID"`
	} `json:"fields"`
	Attachments map[string]json.RawMessage `json:"attachments"`
}

func (w wireSearchResult) toSearchResult() SearchResult {
	return SearchResult{
		ID:               int(w.ID),
		PHID:             w.PHID,
		Title:            w.Fields.Title,
		StatusValue:      w.Fields.Status.Value,
		StatusName:       w.Fields.Status.Name,
		Closed:           w.Fields.Status.Closed,
		DiffPHID:         w.Fields.DiffPHID,
		QueueSubmissions: w.Attachments["queue-submissions"],
	}
}

// Change is one file touched by a diff
type Change struct {
	OldPath     string
	CurrentPath string
}

// Diff is a differential.querydiffs record
type Diff struct {
	ID         int
	RevisionID int
	BaseCommit string // commit the diff was generated against, if known
	HeadCommit string // commit the diff was generated from, if known
	Changes    []Change
}

// Diff properties written by arcstack when re-submitting a repaired revision
const (
	PropertyBaseCommit   = "arcstack:base"
	PropertyHeadCommit   = "arcstack:head"
	PropertyLocalCommits = "local:commits"
)

type wireDiff struct {
	ID                        flexInt         `json:"id"`
	RevisionID                flexInt         `json:"revisionID"`
	SourceControlBaseRevision string          `json:"sourceControlBaseRevision"`
	Properties                json.RawMessage `json:"properties"`
	Changes                   []struct {
		OldPath     string `json:"oldPath"`
		CurrentPath string `json:"currentPath"`
	} `json:"changes"`
}

func (w wireDiff) toDiff() Diff {
	d := Diff{
		ID:         int(w.ID),
		RevisionID: int(w.RevisionID),
		BaseCommit: w.SourceControlBaseRevision,
	}
	props := decodeProperties(w.Properties)
	if base := stringProperty(props[PropertyBaseCommit]); base != "" {
		d.BaseCommit = base
	}
	if head := stringProperty(props[PropertyHeadCommit]); head != "" {
		d.HeadCommit = head
	} else {
		d.HeadCommit = tipOfLocalCommits(props[PropertyLocalCommits])
	}
	for _, c := range w.Changes {
		d.Changes = append(d.Changes, Change{OldPath: c.OldPath, CurrentPath: c.CurrentPath})
	}
	return d
}

// decodeProperties tolerates the empty-array encoding of an empty map
func decodeProperties(raw json.RawMessage) map[string]json.RawMessage {
	props := map[string]json.RawMessage{}
	if len(raw) == 0 || raw[0] != '{' {
		return props
	}
	_ = json.Unmarshal(raw, &props)
	return props
}

// stringProperty decodes a property that may be a JSON string or a JSON
// encoded string inside a string
func stringProperty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	var inner string
	if strings.HasPrefix(s, `"`) && json.Unmarshal([]byte(s), &inner) == nil {
		return inner
	}
	return s
}

// tipOfLocalCommits returns the commit of local:commits that no other listed
// commit names as a parent
func tipOfLocalCommits(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var commits map[string]struct {
		Commit  string   `json:"commit"`
		Parents []string `json:"parents"`
	}
	if err := json.Unmarshal(raw, &commits); err != nil {
		return ""
	}
	isParent := map[string]bool{}
	for _, c := range commits {
		for _, p := range c.Parents {
			isParent[p] = true
		}
	}
	var tips []string
	for key, c := range commits {
		sha := c.Commit
		if sha == "" {
			sha = key
		}
		if !isParent[sha] {
			tips = append(tips, sha)
		}
	}
	if len(tips) != 1 {
		return ""
	}
	return tips[0]
}

// User is a user.query / user.whoami record
type User struct {
	PHID     string `json:"phid"`
	UserName string `json:"userName"`
	RealName string `json:"realName"`
}

// Buildable statuses reported by harbormaster.querybuildables
const (
	BuildablePassed   = "passed"
	BuildableBuilding = "building"
	BuildableFailed   = "failed"
)

// Buildable is a harbormaster.querybuildables record
type Buildable struct {
	ID     flexInt `json:"id"`
	PHID   string  `json:"phid"`
	Status string  `json:"buildableStatus"`
	URI    string  `json:"uri"`
}

// Build is a harbormaster.querybuilds record
type Build struct {
	ID         flexInt `json:"id"`
	Name       string  `json:"name"`
	Status     string  `json:"buildStatus"`
	StatusName string  `json:"buildStatusName"`
}

// UpdateRequest re-submits a revision with a new diff
type UpdateRequest struct {
	RevisionID int
	RawDiff    string
	BaseCommit string
	HeadCommit string
	Message    string
}

// flexInt decodes integers that Conduit may send as JSON strings
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// Int returns the decoded value
func (f flexInt) Int() int {
	return int(f)
}
