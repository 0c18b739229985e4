// Package github fetches repository snapshots through the GitHub GraphQL API.
//
// A snapshot is the top-level file tree of one branch, one directory level
// deep, with blob text inlined. That is exactly the surface the manifest
// validator needs; nothing else is fetched.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orels1/api.v3.cogs.red/internal/constants"
)

// Entry is a single node of the fetched tree: either a file with its text
// content or a directory with its file entries (one level deep only).
type Entry struct {
	Name    string
	Type    string // "blob" or "tree"
	Text    string
	Entries []Entry
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Type == "tree" }

// Snapshot is an ephemeral copy of a repository branch's top-level tree.
type Snapshot struct {
	DefaultBranch string
	Entries       []Entry
}

// Client talks to the GitHub GraphQL endpoint.
type Client struct {
	httpClient *http.Client
	apiRoot    string
	token      string
}

type options struct {
	httpClient *http.Client
	apiRoot    string
}

// Option overrides Client defaults.
type Option func(*options)

// WithAPIRoot points the client at a different API base URL. Used by tests.
func WithAPIRoot(root string) Option {
	return func(o *options) { o.apiRoot = root }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates a GitHub client authenticating with the given token.
func New(token string, args ...Option) *Client {
	opts := options{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiRoot:    constants.GitHubAPIRoot,
	}
	for _, arg := range args {
		arg(&opts)
	}

	return &Client{
		httpClient: opts.httpClient,
		apiRoot:    opts.apiRoot,
		token:      token,
	}
}

const treeQuery = `
query ($owner: String!, $repo: String!, $expression: String!) {
  repoFiles: repository(name: $repo, owner: $owner) {
    defaultBranchRef {
      name
    }
    object(expression: $expression) {
      ... on Tree {
        entries {
          name
          type
          object {
            ... on Blob {
              text
            }
            ... on Tree {
              entries {
                name
                type
                object {
                  ... on Blob {
                    text
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

type ghEntry struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Object struct {
		Text    *string   `json:"text"`
		Entries []ghEntry `json:"entries"`
	} `json:"object"`
}

type treeResponse struct {
	Data struct {
		RepoFiles *struct {
			DefaultBranchRef *struct {
				Name string `json:"name"`
			} `json:"defaultBranchRef"`
			Object *struct {
				Entries []ghEntry `json:"entries"`
			} `json:"object"`
		} `json:"repoFiles"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Tree fetches the snapshot of owner/repo at branch. Transport failures and
// an upstream "not found" both surface as a single fetch error; callers do
// not distinguish them.
func (c *Client) Tree(ctx context.Context, owner, repo, branch string) (Snapshot, error) {
	body, err := json.Marshal(map[string]any{
		"query": treeQuery,
		"variables": map[string]string{
			"owner":      owner,
			"repo":       repo,
			"expression": branch + ":",
		},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to encode query: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiRoot+"/graphql", bytes.NewReader(body))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fetch tree for %s/%s@%s: %w", owner, repo, branch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("failed to fetch tree for %s/%s@%s: unexpected status %d", owner, repo, branch, resp.StatusCode)
	}

	var decoded treeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&decoded); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode tree response: %v", err)
	}

	if len(decoded.Errors) > 0 {
		return Snapshot{}, fmt.Errorf("failed to fetch tree for %s/%s@%s: %s", owner, repo, branch, decoded.Errors[0].Message)
	}
	files := decoded.Data.RepoFiles
	if files == nil || files.Object == nil || files.DefaultBranchRef == nil {
		return Snapshot{}, fmt.Errorf("repository %s/%s@%s not found", owner, repo, branch)
	}

	snap := Snapshot{DefaultBranch: files.DefaultBranchRef.Name}
	for _, entry := range files.Object.Entries {
		snap.Entries = append(snap.Entries, convertEntry(entry))
	}
	return snap, nil
}

func convertEntry(e ghEntry) Entry {
	out := Entry{Name: e.Name, Type: e.Type}
	if e.Object.Text != nil {
		out.Text = *e.Object.Text
	}
	for _, child := range e.Object.Entries {
		out.Entries = append(out.Entries, convertEntry(child))
	}
	return out
}
