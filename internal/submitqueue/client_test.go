package submitqueue_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/submitqueue"
)

func TestSubmitMergeStackRequest(t *testing.T) {
	ctx := context.Background()
	stack := []submitqueue.StackEntry{{RevisionID: 1, DiffID: 10}, {RevisionID: 2, DiffID: 20}}

	t.Run("posts the ordered stack with a bearer token", func(t *testing.T) {
		var got map[string]any
		var auth, path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			path = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"statusUrl":"https://sq.example.com/status/42"}`))
		}))
		defer srv.Close()

		client := submitqueue.NewClient(ctx, srv.URL+"/", "secret")
		statusURL, err := client.SubmitMergeStackRequest(ctx, "git@example.com:repo.git", stack, true, "main")
		require.NoError(t, err)
		require.Equal(t, "https://sq.example.com/status/42", statusURL)

		require.Equal(t, "Bearer secret", auth)
		require.Equal(t, "/merge_requests/stack", path)
		require.Equal(t, "git@example.com:repo.git", got["remote"])
		require.Equal(t, "main", got["target"])
		require.Equal(t, true, got["shadow"])
		_, err = uuid.Parse(got["requestId"].(string))
		require.NoError(t, err)

		entries := got["stack"].([]any)
		require.Len(t, entries, 2)
		require.Equal(t, float64(1), entries[0].(map[string]any)["revisionId"])
		require.Equal(t, float64(20), entries[1].(map[string]any)["diffId"])
	})

	t.Run("non-2xx is a remote submission error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte("stack already queued"))
		}))
		defer srv.Close()

		client := submitqueue.NewClient(ctx, srv.URL, "")
		_, err := client.SubmitMergeStackRequest(ctx, "remote", stack, false, "main")
		require.ErrorIs(t, err, arcerrors.ErrRemoteSubmission)

		var subErr *arcerrors.RemoteSubmissionError
		require.ErrorAs(t, err, &subErr)
		require.Equal(t, http.StatusConflict, subErr.StatusCode)
		require.Equal(t, "stack already queued", subErr.Body)
	})

	t.Run("missing status url is a failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":"queue closed"}`))
		}))
		defer srv.Close()

		client := submitqueue.NewClient(ctx, srv.URL, "")
		_, err := client.SubmitMergeStackRequest(ctx, "remote", stack, false, "main")
		require.ErrorIs(t, err, arcerrors.ErrRemoteSubmission)
	})
}
