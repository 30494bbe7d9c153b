package jwt

import (
	"crypto/sha256"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/iskim1407-claw/makeit/internal/domain"
	"github.com/iskim1407-claw/makeit/internal/domain/oauth"
)

const stateKeyLabel = "makeit/oauth-state/v1"

// StateCodec signs and verifies the opaque state value carried through an
// OAuth authorization redirect.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

type stateClaims struct {
	Provider string `json:"prv"`
}

// NewStateCodec derives a signing key from secret. Tokens older than ttl
// decode as oauth.ErrStateExpired.
func NewStateCodec(secret string, ttl time.Duration) *StateCodec {
	sum := sha256.Sum256([]byte(stateKeyLabel + ":" + secret))
	return &StateCodec{key: sum[:], ttl: ttl, now: time.Now}
}

// WithClock overrides the time source.
func (c *StateCodec) WithClock(now func() time.Time) *StateCodec {
	c.now = now
	return c
}

// TTL returns the state lifetime.
func (c *StateCodec) TTL() time.Duration {
	return c.ttl
}

// Encode serialises the claims into a compact JWS.
func (c *StateCodec) Encode(claims oauth.StateClaims) (string, error) {
	signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: gojose.HS256, Key: c.key}, (&gojose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	issued := claims.IssuedAt
	if issued.IsZero() {
		issued = c.now()
	}
	std := gojwt.Claims{
		Subject:  claims.UserID,
		ID:       claims.Nonce,
		IssuedAt: gojwt.NewNumericDate(issued.UTC()),
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(stateClaims{Provider: string(claims.Provider)}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize state: %w", err)
	}
	return token, nil
}

// Decode verifies the signature and lifetime of a state value. A value that
// cannot be parsed or verified yields oauth.ErrInvalidState; a verified value
// past its lifetime yields oauth.ErrStateExpired.
func (c *StateCodec) Decode(token string) (oauth.StateClaims, error) {
	if token == "" {
		return oauth.StateClaims{}, oauth.ErrInvalidState
	}

	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return oauth.StateClaims{}, fmt.Errorf("%w: %v", oauth.ErrInvalidState, err)
	}

	var std gojwt.Claims
	var custom stateClaims
	if err := parsed.Claims(c.key, &std, &custom); err != nil {
		return oauth.StateClaims{}, fmt.Errorf("%w: %v", oauth.ErrInvalidState, err)
	}
	if std.IssuedAt == nil || std.ID == "" {
		return oauth.StateClaims{}, oauth.ErrInvalidState
	}

	provider, ok := domain.ParseProvider(custom.Provider)
	if !ok {
		return oauth.StateClaims{}, oauth.ErrInvalidState
	}

	issued := std.IssuedAt.Time()
	if c.now().Sub(issued) > c.ttl {
		return oauth.StateClaims{}, oauth.ErrStateExpired
	}

	return oauth.StateClaims{
		UserID:   std.Subject,
		Provider: provider,
		Nonce:    std.ID,
		IssuedAt: issued,
	}, nil
}
