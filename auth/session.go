package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"prism-tasks/domain"
)

const bearerPrefix = "Bearer "

// Session carries the bearer credential and the cached profile for the
// signed-in user. It is passed explicitly to the gateway adapter.
type Session struct {
	mu        sync.RWMutex
	token     string
	subject   string
	expiresAt time.Time
	profile   *domain.Profile
	now       func() time.Time
}

// NewSession creates a session for the given credential. Both raw tokens and
// "Bearer <token>" header values are accepted.
func NewSession(token string) *Session {
	s := &Session{now: time.Now}
	s.SetToken(token)
	return s
}

// SetToken swaps the credential and drops the cached profile.
func (s *Session) SetToken(token string) {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, bearerPrefix)
	token = strings.TrimSpace(token)

	subject, expiresAt := inspect(token)

	s.mu.Lock()
	s.token = token
	s.subject = subject
	s.expiresAt = expiresAt
	s.profile = nil
	s.mu.Unlock()
}

// Clear forgets the credential.
func (s *Session) Clear() { s.SetToken("") }

// inspect reads sub and exp from a JWT without verifying it; signature checks
// are the remote side's job. Opaque tokens yield zero values.
func inspect(token string) (string, time.Time) {
	if strings.Count(token, ".") != 2 {
		return "", time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", time.Time{}
	}
	sub, _ := claims["sub"].(string)
	var exp time.Time
	switch v := claims["exp"].(type) {
	case float64:
		exp = time.Unix(int64(v), 0)
	case int64:
		exp = time.Unix(v, 0)
	}
	return sub, exp
}

// Bearer returns the credential for the Authorization header, or
// domain.ErrUnauthorized when it is missing or known to be expired.
func (s *Session) Bearer() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", domain.ErrUnauthorized
	}
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", domain.ErrUnauthorized
	}
	return s.token, nil
}

// Subject identifies the user behind the credential. Tokens without a sub
// claim get a stable name-based UUID so per-user cache keys still work.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.subject != "" {
		return s.subject
	}
	if s.token == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.token)).String()
}

// ExpiresAt returns the credential expiry, zero when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Profile returns the cached profile, if loaded.
func (s *Session) Profile() (domain.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return domain.Profile{}, false
	}
	return *s.profile, true
}

// SetProfile caches p for UI labelling.
func (s *Session) SetProfile(p domain.Profile) {
	s.mu.Lock()
	s.profile = &p
	s.mu.Unlock()
}

// ProfileSource fetches the profile of the signed-in user.
type ProfileSource interface {
	Profile(ctx context.Context) (domain.Profile, error)
}

// LoadProfile returns the cached profile or fetches and caches it.
func (s *Session) LoadProfile(ctx context.Context, src ProfileSource) (domain.Profile, error) {
	if p, ok := s.Profile(); ok {
		return p, nil
	}
	p, err := src.Profile(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	s.SetProfile(p)
	return p, nil
}
