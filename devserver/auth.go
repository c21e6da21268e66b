package devserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const defaultJWKSCacheTTL = 15 * time.Minute

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// Authenticator resolves the user behind an Authorization header.
type Authenticator interface {
	UserIDFromAuthHeader(h string) (string, error)
}

// Auth validates incoming JWT tokens, either HS256 with a shared secret or
// RS256 against a JWKS.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	Secret   []byte

	parser *jwt.Parser
	keys   *signingKeys
}

// NewSharedSecretAuth verifies HS256 tokens signed with secret.
func NewSharedSecretAuth(secret string) (*Auth, error) {
	if secret == "" {
		return nil, errors.New("shared secret must not be empty")
	}
	return &Auth{
		Secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}, nil
}

// NewJWKSAuth verifies RS256 tokens issued by an Auth0 tenant.
func NewJWKSAuth(jwks *keyfunc.JWKS, audience, issuer string, keyCacheTTL time.Duration) *Auth {
	if keyCacheTTL <= 0 {
		keyCacheTTL = defaultJWKSCacheTTL
	}
	return &Auth{
		JWKS:     jwks,
		Audience: audience,
		Issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keys:     newSigningKeys(jwks, keyCacheTTL, time.Now),
	}
}

// JWKSURL is the key set location of an Auth0 domain.
func JWKSURL(domain string) string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer verifies a raw token and returns its sub claim.
func (a *Auth) UserIDFromBearer(token string) (string, error) {
	if token == "" {
		return "", errBadAuthorization
	}

	parsed, err := a.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if a.Secret != nil {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.Secret, nil
		}
		return a.keys.forToken(t)
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

// signingKeys remembers the JWKS key of each kid for ttl so a busy dev
// gateway does not walk the key set on every request.
type signingKeys struct {
	jwks *keyfunc.JWKS
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	byKID map[string]signingKey
}

type signingKey struct {
	key     any
	fetched time.Time
}

func newSigningKeys(jwks *keyfunc.JWKS, ttl time.Duration, now func() time.Time) *signingKeys {
	return &signingKeys{jwks: jwks, ttl: ttl, now: now, byKID: make(map[string]signingKey)}
}

func (k *signingKeys) forToken(token *jwt.Token) (any, error) {
	if k == nil || k.jwks == nil {
		return nil, errors.New("jwks not configured")
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return k.jwks.Keyfunc(token)
	}

	k.mu.Lock()
	entry, ok := k.byKID[kid]
	k.mu.Unlock()
	if ok && k.now().Sub(entry.fetched) < k.ttl {
		return entry.key, nil
	}

	key, err := k.jwks.Keyfunc(token)
	if err != nil {
		k.mu.Lock()
		delete(k.byKID, kid)
		k.mu.Unlock()
		return nil, err
	}
	k.mu.Lock()
	k.byKID[kid] = signingKey{key: key, fetched: k.now()}
	k.mu.Unlock()
	return key, nil
}

func bearerTokenFromString(raw string) (string, error) {
	raw = strings.Trim(raw, " ")
	if raw == "" {
		return "", errMissingAuthorization
	}
	if len(raw) <= len(bearerPrefix) || !strings.HasPrefix(raw, bearerPrefix) {
		return "", errBadAuthorization
	}
	token := raw[len(bearerPrefix):]
	if strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
