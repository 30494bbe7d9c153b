package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/iskim1407-claw/makeit/internal/jwt"
)

const sessionClaimsKey = "sessionClaims"

// Session resolves the signed-in user from the identity provider's session
// token, read from the Authorization header or the session cookie.
type Session struct {
	Verifier   *jwt.SessionVerifier
	CookieName string
}

// NewSession builds the session middleware.
func NewSession(verifier *jwt.SessionVerifier, cookieName string) *Session {
	return &Session{Verifier: verifier, CookieName: cookieName}
}

// Optional attaches the session claims when a valid token is present and
// always continues the chain.
func (m *Session) Optional(c *gin.Context) {
	m.attach(c)
	c.Next()
}

// Required rejects requests without a valid session token.
func (m *Session) Required(c *gin.Context) {
	if !m.attach(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized. Please log in."})
		return
	}
	c.Next()
}

func (m *Session) attach(c *gin.Context) bool {
	if _, ok := GetSession(c); ok {
		return true
	}
	token := m.token(c)
	if token == "" || m.Verifier == nil {
		return false
	}
	claims, err := m.Verifier.Verify(token)
	if err != nil {
		return false
	}
	c.Set(sessionClaimsKey, claims)
	return true
}

func (m *Session) token(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if m.CookieName == "" {
		return ""
	}
	cookie, err := c.Cookie(m.CookieName)
	if err != nil {
		return ""
	}
	return cookie
}

// GetSession exposes the verified session claims to handlers.
func GetSession(c *gin.Context) (jwt.SessionClaims, bool) {
	value, ok := c.Get(sessionClaimsKey)
	if !ok {
		return jwt.SessionClaims{}, false
	}
	claims, ok := value.(jwt.SessionClaims)
	return claims, ok
}

// UserID returns the signed-in user's id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	claims, ok := GetSession(c)
	if !ok {
		return ""
	}
	return claims.UserID
}
