package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iskim1407-claw/makeit/internal/domain"
)

const (
	acceptHeader = "application/vnd.github+json"
	apiVersion   = "2022-11-28"
)

var (
	// ErrRepositoryExists is returned by CreateRepository when the name is taken.
	ErrRepositoryExists = errors.New("github: repository already exists")
	// ErrRefNotFound is returned by GetBranchHead while the branch does not exist.
	ErrRefNotFound = errors.New("github: ref not found")
)

// Repository is the subset of repository metadata used by deployments.
type Repository struct {
	ID      int64
	Name    string
	Owner   string
	HTMLURL string
}

// CreateRepositoryInput describes a repository created under the token owner.
type CreateRepositoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

// TreeEntry is one path in a tree creation request.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// Client calls the GitHub REST API. It holds no credentials; every call
// receives the user's access token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client rooted at baseURL (https://api.github.com).
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type repositoryPayload struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
	Owner   struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (p repositoryPayload) toRepository() Repository {
	return Repository{
		ID:      p.ID,
		Name:    p.Name,
		Owner:   p.Owner.Login,
		HTMLURL: p.HTMLURL,
	}
}

type errorPayload struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Code     string `json:"code"`
		Field    string `json:"field"`
		Message  string `json:"message"`
	} `json:"errors"`
}

type shaPayload struct {
	SHA string `json:"sha"`
}

// AuthenticatedUser returns the login of the token owner.
func (c *Client) AuthenticatedUser(ctx context.Context, token string) (string, error) {
	var out struct {
		Login string `json:"login"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/user", "get user", nil, &out); err != nil {
		return "", err
	}
	return out.Login, nil
}

// CreateRepository creates a repository for the authenticated user. A name
// collision yields an error matching both ErrRepositoryExists and domain.ErrUpstream.
func (c *Client) CreateRepository(ctx context.Context, token string, in CreateRepositoryInput) (Repository, error) {
	status, body, err := c.send(ctx, token, http.MethodPost, "/user/repos", "create repository", in)
	if err != nil {
		return Repository{}, err
	}
	if status >= 300 {
		upstream := upstreamError("create repository", status, body)
		if status == http.StatusUnprocessableEntity && alreadyExists(body) {
			return Repository{}, fmt.Errorf("%w: %w", ErrRepositoryExists, upstream)
		}
		return Repository{}, upstream
	}

	var out repositoryPayload
	if err := json.Unmarshal(body, &out); err != nil {
		return Repository{}, fmt.Errorf("decode repository: %w", err)
	}
	return out.toRepository(), nil
}

// GetRepository loads owner/repo.
func (c *Client) GetRepository(ctx context.Context, token, owner, repo string) (Repository, error) {
	var out repositoryPayload
	if err := c.do(ctx, token, http.MethodGet, repoPath(owner, repo, ""), "get repository", nil, &out); err != nil {
		return Repository{}, err
	}
	return out.toRepository(), nil
}

// GetBranchHead returns the commit sha the branch points at. It returns
// ErrRefNotFound while the branch does not exist or the repository is empty.
func (c *Client) GetBranchHead(ctx context.Context, token, owner, repo, branch string) (string, error) {
	status, body, err := c.send(ctx, token, http.MethodGet, repoPath(owner, repo, "/git/ref/heads/"+url.PathEscape(branch)), "get ref", nil)
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusNotFound, status == http.StatusConflict:
		return "", ErrRefNotFound
	case status >= 300:
		return "", upstreamError("get ref", status, body)
	}

	var out struct {
		Object shaPayload `json:"object"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode ref: %w", err)
	}
	if out.Object.SHA == "" {
		return "", ErrRefNotFound
	}
	return out.Object.SHA, nil
}

// CreateRef creates a fully qualified ref (refs/heads/main) at sha.
func (c *Client) CreateRef(ctx context.Context, token, owner, repo, ref, sha string) error {
	in := map[string]string{"ref": ref, "sha": sha}
	return c.do(ctx, token, http.MethodPost, repoPath(owner, repo, "/git/refs"), "create ref", in, nil)
}

// UpdateRef moves heads/<branch> to sha.
func (c *Client) UpdateRef(ctx context.Context, token, owner, repo, branch, sha string, force bool) error {
	in := map[string]any{"sha": sha, "force": force}
	return c.do(ctx, token, http.MethodPatch, repoPath(owner, repo, "/git/refs/heads/"+url.PathEscape(branch)), "update ref", in, nil)
}

// CreateBlob uploads content as a utf-8 blob and returns its sha.
func (c *Client) CreateBlob(ctx context.Context, token, owner, repo, content string) (string, error) {
	in := map[string]string{"content": content, "encoding": "utf-8"}
	var out shaPayload
	if err := c.do(ctx, token, http.MethodPost, repoPath(owner, repo, "/git/blobs"), "create blob", in, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// CreateTree creates a tree from entries, layered on baseTree when set.
func (c *Client) CreateTree(ctx context.Context, token, owner, repo, baseTree string, entries []TreeEntry) (string, error) {
	in := struct {
		BaseTree string      `json:"base_tree,omitempty"`
		Tree     []TreeEntry `json:"tree"`
	}{BaseTree: baseTree, Tree: entries}
	if in.Tree == nil {
		in.Tree = []TreeEntry{}
	}

	var out shaPayload
	if err := c.do(ctx, token, http.MethodPost, repoPath(owner, repo, "/git/trees"), "create tree", in, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

// CreateCommit creates a commit object and returns its sha.
func (c *Client) CreateCommit(ctx context.Context, token, owner, repo, message, tree string, parents []string) (string, error) {
	in := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{Message: message, Tree: tree, Parents: parents}
	if in.Parents == nil {
		in.Parents = []string{}
	}

	var out shaPayload
	if err := c.do(ctx, token, http.MethodPost, repoPath(owner, repo, "/git/commits"), "create commit", in, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

func (c *Client) do(ctx context.Context, token, method, path, op string, in, out any) error {
	status, body, err := c.send(ctx, token, method, path, op, in)
	if err != nil {
		return err
	}
	if status >= 300 {
		return upstreamError(op, status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("github %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, token, method, path, op string, in any) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("github %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("github %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("github %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("github %s: read response: %w", op, err)
	}
	return resp.StatusCode, body, nil
}

func upstreamError(op string, status int, body []byte) *domain.UpstreamError {
	var payload errorPayload
	_ = json.Unmarshal(body, &payload)
	message := payload.Message
	if message == "" {
		message = http.StatusText(status)
	}
	return &domain.UpstreamError{Provider: domain.ProviderGitHub, Operation: op, Status: status, Message: message}
}

func alreadyExists(body []byte) bool {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	for _, e := range payload.Errors {
		if strings.Contains(e.Message, "already exists") {
			return true
		}
	}
	return false
}

func repoPath(owner, repo, suffix string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + suffix
}
