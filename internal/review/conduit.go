package review

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	arcerrors "arcstack.dev/arcstack/internal/errors"
)

// Client is the subset of the review service used by arcstack
type Client interface {
	QueryRevisions(ctx context.Context, ids []int) ([]Revision, error)
	SearchRevisions(ctx context.Context, ids []int) ([]SearchResult, error)
	QueryDiffs(ctx context.Context, ids []int) (map[int]Diff, error)
	RawDiff(ctx context.Context, diffID int) (string, error)
	CommitMessage(ctx context.Context, revisionID int) (string, error)
	QueryUsers(ctx context.Context, phids []string) ([]User, error)
	WhoAmI(ctx context.Context) (User, error)
	QueryBuildables(ctx context.Context, objectPHID string) ([]Buildable, error)
	QueryBuilds(ctx context.Context, buildablePHID string) ([]Build, error)
	UpdateRevision(ctx context.Context, req UpdateRequest) (int, error)
}

// DefaultTimeout bounds a single Conduit call
const DefaultTimeout = 60 * time.Second

// ConduitClient talks to a Phabricator install over Conduit's HTTP API
type ConduitClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*ConduitClient)(nil)

// NewConduitClient creates a client for the install at baseURL. A nil
// httpClient uses one with DefaultTimeout.
func NewConduitClient(baseURL, token string, httpClient *http.Client) *ConduitClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &ConduitClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

type conduitResponse struct {
	Result    json.RawMessage `json:"result"`
	ErrorCode *string         `json:"error_code"`
	ErrorInfo *string         `json:"error_info"`
}

// Call invokes a Conduit method and decodes its result into out
func (c *ConduitClient) Call(ctx context.Context, method string, params map[string]any, out any) error {
	body := map[string]any{}
	for k, v := range params {
		body[k] = v
	}
	body["__conduit__"] = map[string]any{"token": c.token}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}

	form := url.Values{}
	form.Set("params", string(encoded))
	form.Set("output", "json")
	form.Set("__conduit__", "1")

	endpoint := c.baseURL + "/api/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s: %s", method, resp.Status, strings.TrimSpace(string(data)))
	}

	var cr conduitResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return fmt.Errorf("%s: malformed response: %w", method, err)
	}
	if cr.ErrorCode != nil && *cr.ErrorCode != "" {
		info := ""
		if cr.ErrorInfo != nil {
			info = *cr.ErrorInfo
		}
		return &arcerrors.ConduitError{Method: method, Code: *cr.ErrorCode, Info: info}
	}
	if out == nil || len(cr.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(cr.Result, out); err != nil {
		return fmt.Errorf("%s: decoding result: %w", method, err)
	}
	return nil
}

// QueryRevisions runs differential.query for ids
func (c *ConduitClient) QueryRevisions(ctx context.Context, ids []int) ([]Revision, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var wire []wireRevision
	if err := c.Call(ctx, "differential.query", map[string]any{"ids": ids}, &wire); err != nil {
		return nil, err
	}
	revisions := make([]Revision, 0, len(wire))
	for _, w := range wire {
		revisions = append(revisions, w.toRevision())
	}
	return revisions, nil
}

// SearchRevisions runs differential.revision.search with the
// queue-submissions attachment
func (c *ConduitClient) SearchRevisions(ctx context.Context, ids []int) ([]SearchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := map[string]any{
		"constraints": map[string]any{"ids": ids},
		"attachments": map[string]any{"queue-submissions": true},
	}
	var page struct {
		Data []wireSearchResult `json:"data"`
	}
	if err := c.Call(ctx, "differential.revision.search", params, &page); err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(page.Data))
	for _, w := range page.Data {
		results = append(results, w.toSearchResult())
	}
	return results, nil
}

// QueryDiffs runs differential.querydiffs for ids
func (c *ConduitClient) QueryDiffs(ctx context.Context, ids []int) (map[int]Diff, error) {
	if len(ids) == 0 {
		return map[int]Diff{}, nil
	}
	var raw json.RawMessage
	if err := c.Call(ctx, "differential.querydiffs", map[string]any{"ids": ids}, &raw); err != nil {
		return nil, err
	}
	diffs := make(map[int]Diff, len(ids))
	if len(raw) == 0 || raw[0] != '{' {
		return diffs, nil
	}
	var wire map[string]wireDiff
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("differential.querydiffs: decoding result: %w", err)
	}
	for key, w := range wire {
		d := w.toDiff()
		if d.ID == 0 {
			d.ID, _ = strconv.Atoi(key)
		}
		diffs[d.ID] = d
	}
	return diffs, nil
}

// RawDiff runs differential.getrawdiff
func (c *ConduitClient) RawDiff(ctx context.Context, diffID int) (string, error) {
	var raw string
	if err := c.Call(ctx, "differential.getrawdiff", map[string]any{"diffID": diffID}, &raw); err != nil {
		return "", err
	}
	return raw, nil
}

// CommitMessage runs differential.getcommitmessage
func (c *ConduitClient) CommitMessage(ctx context.Context, revisionID int) (string, error) {
	var message string
	if err := c.Call(ctx, "differential.getcommitmessage", map[string]any{"revision_id": revisionID}, &message); err != nil {
		return "", err
	}
	return message, nil
}

// QueryUsers runs user.query for phids
func (c *ConduitClient) QueryUsers(ctx context.Context, phids []string) ([]User, error) {
	var users []User
	if err := c.Call(ctx, "user.query", map[string]any{"phids": phids}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// WhoAmI runs user.whoami
func (c *ConduitClient) WhoAmI(ctx context.Context) (User, error) {
	var user User
	if err := c.Call(ctx, "user.whoami", nil, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// QueryBuildables runs harbormaster.querybuildables for a diff or revision
func (c *ConduitClient) QueryBuildables(ctx context.Context, objectPHID string) ([]Buildable, error) {
	var page struct {
		Data []Buildable `json:"data"`
	}
	params := map[string]any{"buildablePHIDs": []string{objectPHID}, "manualBuildables": false}
	if err := c.Call(ctx, "harbormaster.querybuildables", params, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// QueryBuilds runs harbormaster.querybuilds for a buildable
func (c *ConduitClient) QueryBuilds(ctx context.Context, buildablePHID string) ([]Build, error) {
	var page struct {
		Data []Build `json:"data"`
	}
	params := map[string]any{"buildablePHIDs": []string{buildablePHID}}
	if err := c.Call(ctx, "harbormaster.querybuilds", params, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// UpdateRevision uploads req.RawDiff as a new diff, records the commits it
// was generated between, and attaches it to the revision. It returns the id
// of the new diff.
func (c *ConduitClient) UpdateRevision(ctx context.Context, req UpdateRequest) (int, error) {
	var created struct {
		ID   flexInt `json:"id"`
		PHID string  `json:"phid"`
	}
	if err := c.Call(ctx, "differential.createrawdiff", map[string]any{"diff": req.RawDiff}, &created); err != nil {
		return 0, err
	}
	diffID := created.ID.Int()

	properties := map[string]string{
		PropertyBaseCommit: req.BaseCommit,
		PropertyHeadCommit: req.HeadCommit,
	}
	for _, name := range []string{PropertyBaseCommit, PropertyHeadCommit} {
		data, _ := json.Marshal(properties[name])
		params := map[string]any{"diff_id": diffID, "name": name, "data": string(data)}
		if err := c.Call(ctx, "differential.setdiffproperty", params, nil); err != nil {
			return 0, err
		}
	}

	message := req.Message
	if message == "" {
		message = "Rebased onto the updated parent revision"
	}
	edit := map[string]any{
		"objectIdentifier": "D" + strconv.Itoa(req.RevisionID),
		"transactions": []map[string]any{
			{"type": "update", "value": created.PHID},
			{"type": "comment", "value": message},
		},
	}
	if err := c.Call(ctx, "differential.revision.edit", edit, nil); err != nil {
		return 0, err
	}
	return diffID, nil
}
