package review_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/review"
)

type conduitCall struct {
	Method string
	Params map[string]any
}

// newConduitServer serves canned results per method and records every call
func newConduitServer(t *testing.T, results map[string]string) (*httptest.Server, *[]conduitCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []conduitCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "json", r.PostForm.Get("output"))

		method := r.URL.Path[len("/api/"):]
		params := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("params")), &params))

		mu.Lock()
		calls = append(calls, conduitCall{Method: method, Params: params})
		mu.Unlock()

		result, ok := results[method]
		if !ok {
			_, _ = w.Write([]byte(`{"result":null,"error_code":"ERR-CONDUIT-CALL","error_info":"unknown method"}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":` + result + `,"error_code":null,"error_info":null}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestConduitClient(t *testing.T) {
	ctx := context.Background()

	t.Run("sends the token and decodes string ids", func(t *testing.T) {
		srv, calls := newConduitServer(t, map[string]string{
			"differential.query": `[{"id":"12","phid":"PHID-DREV-1","title":"Add thing","status":"2","statusName":"Accepted","authorPHID":"PHID-USER-1","diffs":["40","45","41"]}]`,
		})
		client := review.NewConduitClient(srv.URL+"/", "api-secret", nil)

		revs, err := client.QueryRevisions(ctx, []int{12})
		require.NoError(t, err)
		require.Len(t, revs, 1)
		require.Equal(t, 12, revs[0].ID)
		require.True(t, revs[0].IsAccepted())
		require.False(t, revs[0].IsClosed())
		require.Equal(t, []int{45, 41, 40}, revs[0].Diffs)
		latest, ok := revs[0].LatestDiffID()
		require.True(t, ok)
		require.Equal(t, 45, latest)

		require.Len(t, *calls, 1)
		conduit := (*calls)[0].Params["__conduit__"].(map[string]any)
		require.Equal(t, "api-secret", conduit["token"])
	})

	t.Run("maps error codes", func(t *testing.T) {
		srv, _ := newConduitServer(t, map[string]string{})
		client := review.NewConduitClient(srv.URL, "tok", nil)

		_, err := client.WhoAmI(ctx)
		var conduitErr *arcerrors.ConduitError
		require.ErrorAs(t, err, &conduitErr)
		require.Equal(t, "user.whoami", conduitErr.Method)
		require.Equal(t, "ERR-CONDUIT-CALL", conduitErr.Code)
	})

	t.Run("decodes declared commits of diffs", func(t *testing.T) {
		srv, _ := newConduitServer(t, map[string]string{
			"differential.querydiffs": `{
				"7": {"id":"7","revisionID":"3","sourceControlBaseRevision":"base7","properties":[],"changes":[{"oldPath":"a.go","currentPath":"a.go"}]},
				"8": {"id":"8","revisionID":"4","sourceControlBaseRevision":"ignored","properties":{"arcstack:base":"\"base8\"","arcstack:head":"\"head8\""}},
				"9": {"id":"9","revisionID":"5","sourceControlBaseRevision":"base9","properties":{"local:commits":{"c2":{"commit":"c2","parents":["c1"]},"c1":{"commit":"c1","parents":["base9"]}}}}
			}`,
		})
		client := review.NewConduitClient(srv.URL, "tok", nil)

		diffs, err := client.QueryDiffs(ctx, []int{7, 8, 9})
		require.NoError(t, err)
		require.Equal(t, "base7", diffs[7].BaseCommit)
		require.Empty(t, diffs[7].HeadCommit)
		require.Equal(t, []review.Change{{OldPath: "a.go", CurrentPath: "a.go"}}, diffs[7].Changes)
		require.Equal(t, "base8", diffs[8].BaseCommit)
		require.Equal(t, "head8", diffs[8].HeadCommit)
		require.Equal(t, "c2", diffs[9].HeadCommit)
		require.Equal(t, 5, diffs[9].RevisionID)
	})

	t.Run("search carries queue submissions", func(t *testing.T) {
		srv, calls := newConduitServer(t, map[string]string{
			"differential.revision.search": `{"data":[{"id":12,"phid":"PHID-DREV-1","fields":{"title":"t","status":{"value":"accepted","name":"Accepted","closed":false},"diffPHID":"PHID-DIFF-9"},"attachments":{"queue-submissions":{"submissions":[]}}}]}`,
		})
		client := review.NewConduitClient(srv.URL, "tok", nil)

		results, err := client.SearchRevisions(ctx, []int{12})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, "accepted", results[0].StatusValue)
		require.JSONEq(t, `{"submissions":[]}`, string(results[0].QueueSubmissions))

		attachments := (*calls)[0].Params["attachments"].(map[string]any)
		require.Equal(t, true, attachments["queue-submissions"])
	})

	t.Run("update uploads a diff and attaches it", func(t *testing.T) {
		srv, calls := newConduitServer(t, map[string]string{
			"differential.createrawdiff":   `{"id":"101","phid":"PHID-DIFF-101","uri":"https://example.com/differential/diff/101/"}`,
			"differential.setdiffproperty": `null`,
			"differential.revision.edit":   `{"object":{"id":12}}`,
		})
		client := review.NewConduitClient(srv.URL, "tok", nil)

		id, err := client.UpdateRevision(ctx, review.UpdateRequest{
			RevisionID: 12,
			RawDiff:    "diff --git a/a b/a\n",
			BaseCommit: "b",
			HeadCommit: "h",
		})
		require.NoError(t, err)
		require.Equal(t, 101, id)

		var methods []string
		for _, c := range *calls {
			methods = append(methods, c.Method)
		}
		require.Equal(t, []string{
			"differential.createrawdiff",
			"differential.setdiffproperty",
			"differential.setdiffproperty",
			"differential.revision.edit",
		}, methods)
		require.Equal(t, "D12", (*calls)[3].Params["objectIdentifier"])
		require.Equal(t, `"b"`, (*calls)[1].Params["data"])
	})

	t.Run("empty id lists skip the network", func(t *testing.T) {
		srv, calls := newConduitServer(t, map[string]string{})
		client := review.NewConduitClient(srv.URL, "tok", nil)

		revs, err := client.QueryRevisions(ctx, nil)
		require.NoError(t, err)
		require.Empty(t, revs)
		require.Empty(t, *calls)
	})
}
