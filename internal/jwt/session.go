package jwt

import (
	"errors"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// ErrInvalidSession is returned for session tokens that fail verification.
var ErrInvalidSession = errors.New("jwt: invalid session")

// SessionClaims is the identity carried by a verified session token.
type SessionClaims struct {
	UserID string
	Email  string
	Role   string
	Expiry time.Time
}

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// SessionVerifier validates HS256 session tokens issued by the identity provider.
type SessionVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewSessionVerifier constructs a verifier for tokens signed with secret.
func NewSessionVerifier(secret string) *SessionVerifier {
	return &SessionVerifier{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source.
func (v *SessionVerifier) WithClock(now func() time.Time) *SessionVerifier {
	v.now = now
	return v
}

// Verify returns the claims of a valid, unexpired token with a subject.
func (v *SessionVerifier) Verify(token string) (SessionClaims, error) {
	if token == "" {
		return SessionClaims{}, ErrInvalidSession
	}

	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: parse: %v", ErrInvalidSession, err)
	}

	var std gojwt.Claims
	var custom sessionClaims
	if err := parsed.Claims(v.secret, &std, &custom); err != nil {
		return SessionClaims{}, fmt.Errorf("%w: verify: %v", ErrInvalidSession, err)
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Time: v.now()}, time.Minute); err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if std.Subject == "" {
		return SessionClaims{}, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}

	claims := SessionClaims{UserID: std.Subject, Email: custom.Email, Role: custom.Role}
	if std.Expiry != nil {
		claims.Expiry = std.Expiry.Time()
	}
	return claims, nil
}

// Issue signs a session token for userID. The identity provider normally
// issues these; Issue exists for local development and tests.
func (v *SessionVerifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: gojose.HS256, Key: v.secret}, (&gojose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := v.now().UTC()
	std := gojwt.Claims{
		Subject:  userID,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := gojwt.Signed(signer).Claims(std).Claims(sessionClaims{Email: email, Role: "authenticated"}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize session: %w", err)
	}
	return token, nil
}
