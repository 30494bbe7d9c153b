package oauth

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

	domainoauth "github.com/iskim1407-claw/makeit/internal/domain/oauth"
)

// ErrExchangeRejected is returned when the authorization server refuses the code.
var ErrExchangeRejected = errors.New("oauth: code exchange rejected")

// ProviderClient exchanges authorization codes at a provider's token endpoint.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code, redirectURI string) (*domainoauth.OAuthTokenResponse, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// tokenPayload covers both the RFC 6749 success body and the error body.
// expires_in arrives as a number from Vercel and as a string from some proxies.
type tokenPayload struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	TokenType        string      `json:"token_type"`
	Scope            string      `json:"scope"`
	ExpiresIn        json.Number `json:"expires_in"`
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
}

// ExchangeCode trades code for an access token. GitHub reports a bad code
// with status 200 and an error field, so the body is checked as well as the status.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, provider domainoauth.ProviderConfig, code, redirectURI string) (*domainoauth.OAuthTokenResponse, error) {
	if strings.TrimSpace(provider.TokenURL) == "" {
		return nil, fmt.Errorf("%s: token url missing", provider.Provider)
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
		"client_id":    {provider.ClientID},
	}
	if provider.ClientSecret != "" {
		form.Set("client_secret", provider.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	var payload tokenPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	decodeErr := dec.Decode(&payload)

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d%s", ErrExchangeRejected, resp.StatusCode, payload.reason())
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode token response: %w", decodeErr)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("%w:%s", ErrExchangeRejected, payload.reason())
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: access_token missing", ErrExchangeRejected)
	}

	return &domainoauth.OAuthTokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Scope:        payload.Scope,
		ExpiresIn:    seconds(payload.ExpiresIn),
	}, nil
}

func (p tokenPayload) reason() string {
	switch {
	case p.Error != "" && p.ErrorDescription != "":
		return " " + p.Error + ": " + p.ErrorDescription
	case p.Error != "":
		return " " + p.Error
	default:
		return ""
	}
}

func seconds(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}
