// Package submitqueue submits ordered revision stacks to the remote merge
// queue that serializes landing.
package submitqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	arcerrors "arcstack.dev/arcstack/internal/errors"
)

// StackEntry is one revision of a stack and the diff to land for it
type StackEntry struct {
	RevisionID int `json:"revisionId"`
	DiffID     int `json:"diffId"`
}

// Submitter hands a stack to the merge queue and returns a status url
type Submitter interface {
	SubmitMergeStackRequest(ctx context.Context, remoteURL string, stack []StackEntry, shadow bool, target string) (string, error)
}

// DefaultTimeout bounds a single submission
const DefaultTimeout = 30 * time.Second

// Client talks to the merge queue over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Submitter = (*Client)(nil)

// NewClient creates a client for the queue at baseURL. Requests carry token
// as a bearer credential.
func NewClient(ctx context.Context, baseURL, token string) *Client {
	httpClient := &http.Client{Timeout: DefaultTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

type mergeStackRequest struct {
	Remote    string       `json:"remote"`
	Target    string       `json:"target"`
	Shadow    bool         `json:"shadow"`
	RequestID string       `json:"requestId"`
	Stack     []StackEntry `json:"stack"`
}

type mergeStackResponse struct {
	StatusURL string `json:"statusUrl"`
	Error     string `json:"error"`
}

// SubmitMergeStackRequest posts the ordered stack. Any failure, including a
// response without a status url, is a RemoteSubmissionError.
func (c *Client) SubmitMergeStackRequest(ctx context.Context, remoteURL string, stack []StackEntry, shadow bool, target string) (string, error) {
	body, err := json.Marshal(mergeStackRequest{
		Remote:    remoteURL,
		Target:    target,
		Shadow:    shadow,
		RequestID: uuid.NewString(),
		Stack:     stack,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/merge_requests/stack", bytes.NewReader(body))
	if err != nil {
		return "", &arcerrors.RemoteSubmissionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &arcerrors.RemoteSubmissionError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &arcerrors.RemoteSubmissionError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &arcerrors.RemoteSubmissionError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	var decoded mergeStackResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", &arcerrors.RemoteSubmissionError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
			Err:        fmt.Errorf("malformed response: %w", err),
		}
	}
	if decoded.StatusURL == "" {
		return "", &arcerrors.RemoteSubmissionError{
			StatusCode: resp.StatusCode,
			Body:       decoded.Error,
			Err:        fmt.Errorf("response carries no status url"),
		}
	}
	return decoded.StatusURL, nil
}
