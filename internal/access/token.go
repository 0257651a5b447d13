package access

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "ebd-identity"

// IdentityClaims is the token body the identity provider signs for the console.
type IdentityClaims struct {
	Name             string `json:"name,omitempty"`
	Role             string `json:"role"`
	MinistryID       string `json:"ministry_id"`
	CongregationID   string `json:"congregation_id,omitempty"`
	CongregationName string `json:"congregation_name,omitempty"`
	ClassID          string `json:"class_id,omitempty"`
	ClassName        string `json:"class_name,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into an Identity.
func (c *IdentityClaims) Identity() Identity {
	return Identity{
		ID:               c.Subject,
		DisplayName:      c.Name,
		Role:             normalizeRole(c.Role),
		MinistryID:       strings.TrimSpace(c.MinistryID),
		CongregationID:   strings.TrimSpace(c.CongregationID),
		CongregationName: strings.TrimSpace(c.CongregationName),
		ClassID:          strings.TrimSpace(c.ClassID),
		ClassName:        strings.TrimSpace(c.ClassName),
	}
}

// TokenVerifier checks HS256 identity tokens minted by the identity provider.
// Issuing tokens is the provider's job; the console only reads them.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithIssuer overrides the expected issuer claim.
func WithIssuer(issuer string) VerifierOption {
	return func(v *TokenVerifier) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			v.issuer = issuer
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) VerifierOption {
	return func(v *TokenVerifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewTokenVerifier builds a verifier for the shared secret.
func NewTokenVerifier(secret string, opts ...VerifierOption) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("access: token secret is not configured")
	}
	v := &TokenVerifier{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issuer returns the expected issuer claim.
func (v *TokenVerifier) Issuer() string { return v.issuer }

// Verify validates the token signature and claims and returns the identity.
func (v *TokenVerifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &IdentityClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*IdentityClaims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if err := v.validateClaims(claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Identity(), nil
}

func (v *TokenVerifier) validateClaims(claims *IdentityClaims) error {
	if claims.Issuer != v.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := v.now()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
