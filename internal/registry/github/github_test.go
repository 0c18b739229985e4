package github_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orels1/api.v3.cogs.red/internal/registry/github"
)

const treeBody = `{
	"data": {
		"repoFiles": {
			"defaultBranchRef": {"name": "master"},
			"object": {
				"entries": [
					{"name": "info.json", "type": "blob", "object": {"text": "{\"author\": {\"name\": \"orels1\"}}"}},
					{"name": "greeter", "type": "tree", "object": {"entries": [
						{"name": "info.json", "type": "blob", "object": {"text": "{}"}},
						{"name": "greeter.py", "type": "blob", "object": {"text": "pass"}}
					]}}
				]
			}
		}
	}
}`

func TestTree(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotVariables map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/graphql", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var req struct {
			Variables map[string]string `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req), "request body must be valid JSON")
		gotVariables = req.Variables

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(treeBody))
	}))
	defer server.Close()

	client := github.New("test-token", github.WithAPIRoot(server.URL))
	snap, err := client.Tree(t.Context(), "orels1", "ORELS-Cogs", "master")
	require.NoError(t, err, "Tree should succeed")

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "orels1", gotVariables["owner"])
	assert.Equal(t, "ORELS-Cogs", gotVariables["repo"])
	assert.Equal(t, "master:", gotVariables["expression"], "branch expression selects the top-level tree")

	assert.Equal(t, "master", snap.DefaultBranch)
	require.Len(t, snap.Entries, 2)

	root := snap.Entries[0]
	assert.Equal(t, "info.json", root.Name)
	assert.False(t, root.IsDir())
	assert.JSONEq(t, `{"author": {"name": "orels1"}}`, root.Text)

	cogDir := snap.Entries[1]
	assert.Equal(t, "greeter", cogDir.Name)
	assert.True(t, cogDir.IsDir())
	require.Len(t, cogDir.Entries, 2)
	assert.Equal(t, "info.json", cogDir.Entries[0].Name)
}

func TestTreeErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
		body   string
	}{
		"GraphQL error": {
			status: http.StatusOK,
			body:   `{"data": {"repoFiles": null}, "errors": [{"message": "Could not resolve to a Repository"}]}`,
		},
		"Unknown repository": {
			status: http.StatusOK,
			body:   `{"data": {"repoFiles": null}}`,
		},
		"Unknown branch": {
			status: http.StatusOK,
			body:   `{"data": {"repoFiles": {"defaultBranchRef": {"name": "master"}, "object": null}}}`,
		},
		"Upstream failure": {
			status: http.StatusBadGateway,
			body:   `gateway error`,
		},
		"Malformed response": {
			status: http.StatusOK,
			body:   `{"data": `,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := github.New("test-token", github.WithAPIRoot(server.URL))
			_, err := client.Tree(t.Context(), "orels1", "ORELS-Cogs", "master")
			require.Error(t, err, "Tree should surface a fetch error")
		})
	}
}
