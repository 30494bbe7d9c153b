package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iskim1407-claw/makeit/internal/domain"
)

// DeploymentInput requests a deployment of a GitHub repository ref.
type DeploymentInput struct {
	Name   string
	RepoID int64
	Ref    string
}

// Deployment is the subset of the deployment response we report.
type Deployment struct {
	ID    string
	URL   string
	State string
}

// Client calls the Vercel REST API with a per call access token.
type Client struct {
	baseURL    string
	teamID     string
	httpClient *http.Client
}

// NewClient constructs a client. teamID scopes deployments to a team when set.
func NewClient(baseURL, teamID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), teamID: teamID, httpClient: httpClient}
}

type gitSource struct {
	Type   string `json:"type"`
	RepoID string `json:"repoId"`
	Ref    string `json:"ref"`
}

type deploymentRequest struct {
	Name      string    `json:"name"`
	GitSource gitSource `json:"gitSource"`
}

// CreateDeployment triggers a deployment of in.Ref from the linked repository.
// The returned URL has no scheme, as Vercel reports it.
func (c *Client) CreateDeployment(ctx context.Context, token string, in DeploymentInput) (Deployment, error) {
	payload, err := json.Marshal(deploymentRequest{
		Name:      in.Name,
		GitSource: gitSource{Type: "github", RepoID: strconv.FormatInt(in.RepoID, 10), Ref: in.Ref},
	})
	if err != nil {
		return Deployment{}, fmt.Errorf("vercel create deployment: encode request: %w", err)
	}

	endpoint := c.baseURL + "/v13/deployments"
	if c.teamID != "" {
		endpoint += "?" + url.Values{"teamId": {c.teamID}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Deployment{}, fmt.Errorf("vercel create deployment: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Deployment{}, fmt.Errorf("vercel create deployment: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Deployment{}, fmt.Errorf("vercel create deployment: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Deployment{}, upstreamError(resp.StatusCode, body)
	}

	var out struct {
		ID         string `json:"id"`
		URL        string `json:"url"`
		ReadyState string `json:"readyState"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Deployment{}, fmt.Errorf("vercel create deployment: decode response: %w", err)
	}
	return Deployment{ID: out.ID, URL: out.URL, State: out.ReadyState}, nil
}

func upstreamError(status int, body []byte) *domain.UpstreamError {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	message := payload.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}
	return &domain.UpstreamError{Provider: domain.ProviderVercel, Operation: "create deployment", Status: status, Message: message}
}
