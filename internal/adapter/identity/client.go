package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainoauth "github.com/iskim1407-claw/makeit/internal/domain/oauth"
)

// ErrNotConfigured is returned when no identity provider URL is set.
var ErrNotConfigured = errors.New("identity: provider url not configured")

// Client exchanges sign-in codes for identity sessions.
type Client interface {
	ExchangeCodeForSession(ctx context.Context, code string) (*domainoauth.IdentitySession, error)
}

// HTTPClient talks to a GoTrue compatible token endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs an identity client rooted at baseURL.
func NewHTTPClient(baseURL, apiKey string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, httpClient: client}
}

type tokenResponse struct {
	AccessToken          string `json:"access_token"`
	RefreshToken         string `json:"refresh_token"`
	ExpiresIn            int64  `json:"expires_in"`
	ProviderToken        string `json:"provider_token"`
	ProviderRefreshToken string `json:"provider_refresh_token"`
	User                 struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		AppMetadata struct {
			Provider string `json:"provider"`
		} `json:"app_metadata"`
	} `json:"user"`
}

// ExchangeCodeForSession redeems code for a session. The response carries the
// federated provider's own token when the user signed in through one.
func (c *HTTPClient) ExchangeCodeForSession(ctx context.Context, code string) (*domainoauth.IdentitySession, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{"auth_code": code})
	if err != nil {
		return nil, fmt.Errorf("encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token?grant_type=authorization_code", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read session response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("session exchange failed: status=%d", resp.StatusCode)
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if decoded.AccessToken == "" || decoded.User.ID == "" {
		return nil, fmt.Errorf("session exchange failed: incomplete session")
	}

	return &domainoauth.IdentitySession{
		AccessToken:          decoded.AccessToken,
		RefreshToken:         decoded.RefreshToken,
		ExpiresIn:            decoded.ExpiresIn,
		UserID:               decoded.User.ID,
		Email:                decoded.User.Email,
		Provider:             decoded.User.AppMetadata.Provider,
		ProviderToken:        decoded.ProviderToken,
		ProviderRefreshToken: decoded.ProviderRefreshToken,
	}, nil
}
