package handler

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/config"
	"github.com/iskim1407-claw/makeit/internal/domain"
	domainoauth "github.com/iskim1407-claw/makeit/internal/domain/oauth"
	"github.com/iskim1407-claw/makeit/internal/http/middleware"
	authsvc "github.com/iskim1407-claw/makeit/internal/service/auth"
)

const defaultSessionMaxAge = 3600

// OAuthHandler serves the provider connection flow and the identity sign-in callback.
type OAuthHandler struct {
	OAuth  authsvc.OAuthService
	Config config.Config
	Logger *zap.Logger
}

// NewOAuthHandler creates the OAuth handler set.
func NewOAuthHandler(oauth authsvc.OAuthService, cfg config.Config, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{OAuth: oauth, Config: cfg, Logger: logger}
}

// OAuthStart redirects a signed-in user to the provider's consent screen.
func (h *OAuthHandler) OAuthStart(c *gin.Context) {
	name := c.Param("provider")
	provider, ok := domain.ParseProvider(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider"})
		return
	}

	userID := middleware.UserID(c)
	if userID == "" {
		c.Redirect(http.StatusFound, h.absoluteURL(c.Request, "/login"))
		return
	}

	out, err := h.OAuth.StartAuthorization(c.Request.Context(), authsvc.StartAuthorizationInput{
		Provider:    string(provider),
		UserID:      userID,
		RedirectURI: h.callbackURL(c.Request, provider),
	})
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, out.AuthorizationURL)
	case errors.Is(err, domain.ErrUnauthorized):
		c.Redirect(http.StatusFound, h.absoluteURL(c.Request, "/login"))
	case errors.Is(err, domainoauth.ErrProviderNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": provider.DisplayName() + " OAuth not configured"})
	default:
		h.log().Error("oauth start failed", zap.String("provider", string(provider)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start authorization"})
	}
}

// OAuthCallback completes the authorization and always redirects to the
// dashboard with a success or error code.
func (h *OAuthHandler) OAuthCallback(c *gin.Context) {
	name := c.Param("provider")
	provider, ok := domain.ParseProvider(name)
	in := authsvc.CallbackInput{
		Provider:      name,
		Code:          c.Query("code"),
		State:         c.Query("state"),
		ProviderError: c.Query("error"),
	}
	if ok {
		in.RedirectURI = h.callbackURL(c.Request, provider)
	}

	_, err := h.OAuth.CompleteAuthorization(c.Request.Context(), in, middleware.UserID(c))
	code := authsvc.RedirectCode(provider, err)
	params := url.Values{}
	if err != nil {
		params.Set("error", code)
	} else {
		params.Set("success", code)
	}
	c.Redirect(http.StatusFound, h.absoluteURL(c.Request, "/dashboard?"+params.Encode()))
}

// IdentityCallback finishes the identity provider sign-in, stores the
// session cookie and lands the user on the dashboard.
func (h *OAuthHandler) IdentityCallback(c *gin.Context) {
	dashboard := h.absoluteURL(c.Request, "/dashboard")
	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, dashboard)
		return
	}

	session, err := h.OAuth.CompleteIdentityLogin(c.Request.Context(), code)
	if err != nil {
		h.log().Warn("identity login failed", zap.Error(err))
		c.Redirect(http.StatusFound, dashboard)
		return
	}

	maxAge := int(session.ExpiresIn)
	if maxAge <= 0 {
		maxAge = defaultSessionMaxAge
	}
	c.SetSameSite(http.SameSiteLaxMode)
	secure := strings.HasPrefix(dashboard, "https://")
	c.SetCookie(h.Config.SessionCookie, session.AccessToken, maxAge, "/", "", secure, true)
	c.Redirect(http.StatusFound, dashboard)
}

func (h *OAuthHandler) callbackURL(r *http.Request, provider domain.Provider) string {
	return h.absoluteURL(r, "/oauth/"+string(provider)+"/callback")
}

func (h *OAuthHandler) absoluteURL(r *http.Request, path string) string {
	if h.Config.PublicURL != "" {
		return h.Config.PublicURL + path
	}
	return requestScheme(r) + "://" + requestHost(r) + path
}

func (h *OAuthHandler) log() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

func requestScheme(r *http.Request) string {
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(scheme, ",")[0]))
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func requestHost(r *http.Request) string {
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if h, port, err := net.SplitHostPort(host); err == nil && (port == "80" || port == "443") {
		return h
	}
	return host
}
