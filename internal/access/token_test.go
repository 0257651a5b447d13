package access

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signIdentity(t *testing.T, secret string, claims IdentityClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestTokenVerifierRoundTrip(t *testing.T) {
	v, err := NewTokenVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	now := time.Now().UTC()
	token := signIdentity(t, "test-secret", IdentityClaims{
		Name:           "Maria",
		Role:           "Secretario_Classe",
		MinistryID:     "m1",
		CongregationID: "c1",
		ClassID:        "k1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.Issuer(),
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.ID != "user-1" || identity.Role != RoleClassSecretary || identity.ClassID != "k1" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestTokenVerifierRejects(t *testing.T) {
	v, err := NewTokenVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	now := time.Now().UTC()
	base := jwt.RegisteredClaims{
		Issuer:    v.Issuer(),
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	wrongIssuer := base
	wrongIssuer.Issuer = "someone-else"
	expired := base
	expired.IssuedAt = jwt.NewNumericDate(now.Add(-2 * time.Hour))
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
	noSubject := base
	noSubject.Subject = ""

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": signIdentity(t, "other-secret", IdentityClaims{Role: RoleTeacher, RegisteredClaims: base}),
		"wrong issuer": signIdentity(t, "test-secret", IdentityClaims{Role: RoleTeacher, RegisteredClaims: wrongIssuer}),
		"expired":      signIdentity(t, "test-secret", IdentityClaims{Role: RoleTeacher, RegisteredClaims: expired}),
		"no subject":   signIdentity(t, "test-secret", IdentityClaims{Role: RoleTeacher, RegisteredClaims: noSubject}),
	}
	for name, token := range cases {
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	if _, err := NewTokenVerifier("   "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
