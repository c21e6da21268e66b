package devserver

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestBearerTokenFromStringSuccess(t *testing.T) {
	token, err := bearerTokenFromString("  Bearer header.payload.signature ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", token)
	}
}

func TestBearerTokenFromStringMissing(t *testing.T) {
	if _, err := bearerTokenFromString(""); err != errMissingAuthorization {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestBearerTokenFromStringManyPeriods(t *testing.T) {
	if _, err := bearerTokenFromString("Bearer " + strings.Repeat(".", 1000)); err != errBadAuthorization {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
	if _, err := bearerTokenFromString("Basic a.b.c"); err != errBadAuthorization {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func TestUserIDFromAuthHeaderHS256(t *testing.T) {
	auth, err := NewSharedSecretAuth("test-secret")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	signed := signHS256(t, "test-secret", jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
	})

	userID, err := auth.UserIDFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromAuthHeaderRejects(t *testing.T) {
	auth, _ := NewSharedSecretAuth("test-secret")
	cases := map[string]string{
		"wrong secret": signHS256(t, "other", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()}),
		"expired":      signHS256(t, "test-secret", jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no exp":       signHS256(t, "test-secret", jwt.MapClaims{"sub": "u"}),
		"no sub":       signHS256(t, "test-secret", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
	}
	for name, token := range cases {
		if _, err := auth.UserIDFromAuthHeader("Bearer " + token); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestNewSharedSecretAuthRequiresSecret(t *testing.T) {
	if _, err := NewSharedSecretAuth(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestJWKSAuthWithoutKeySet(t *testing.T) {
	auth := NewJWKSAuth(nil, "aud", "https://tenant.example.com/", 0)
	if auth.keys.ttl != defaultJWKSCacheTTL {
		t.Fatalf("unexpected key cache ttl: %v", auth.keys.ttl)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "u"})
	token.Header["kid"] = "k1"
	if _, err := auth.keys.forToken(token); err == nil {
		t.Fatalf("expected error without jwks")
	}
	if got := JWKSURL("tenant.example.com"); got != "https://tenant.example.com/.well-known/jwks.json" {
		t.Fatalf("unexpected jwks url %q", got)
	}
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestConfigAuthenticatorCachesSigningKeys(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := Config{
		Auth0Domain:   "tenant.example.com",
		Auth0Audience: "prism-api",
		JWKSCacheTTL:  time.Minute,
	}
	auth, err := cfg.Authenticator(keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		"k1": keyfunc.NewGivenRSA(&priv.PublicKey),
	}))
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	if auth.keys.ttl != time.Minute {
		t.Fatalf("key cache ttl not taken from config: %v", auth.keys.ttl)
	}
	clock := time.Now()
	auth.keys.now = func() time.Time { return clock }

	signed := signRS256(t, priv, "k1", jwt.MapClaims{
		"sub": "auth0|42",
		"aud": "prism-api",
		"iss": "https://tenant.example.com/",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if sub, err := auth.UserIDFromBearer(signed); err != nil || sub != "auth0|42" {
		t.Fatalf("verify: sub=%q err=%v", sub, err)
	}

	// With the key set rotated away, the remembered key still verifies
	// until the cache ttl passes.
	auth.keys.jwks = keyfunc.NewGiven(map[string]keyfunc.GivenKey{})
	if _, err := auth.UserIDFromBearer(signed); err != nil {
		t.Fatalf("cached key not used: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if _, err := auth.UserIDFromBearer(signed); err == nil {
		t.Fatalf("expected rejection once the cached key expired")
	}
	if _, ok := auth.keys.byKID["k1"]; ok {
		t.Fatalf("expired key should be forgotten after a failed lookup")
	}
}

func TestConfigAuthenticatorRejectsWrongAudience(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := Config{Auth0Domain: "tenant.example.com", Auth0Audience: "prism-api"}
	auth, err := cfg.Authenticator(keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		"k1": keyfunc.NewGivenRSA(&priv.PublicKey),
	}))
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	signed := signRS256(t, priv, "k1", jwt.MapClaims{
		"sub": "u",
		"aud": "someone-else",
		"iss": "https://tenant.example.com/",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := auth.UserIDFromBearer(signed); err == nil {
		t.Fatalf("expected audience rejection")
	}
	if _, err := cfg.Authenticator(nil); err == nil {
		t.Fatalf("expected error without a key set")
	}
}
