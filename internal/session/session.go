// Package session carries the caller's credential explicitly. The API
// client receives a Session at construction instead of reading a token
// from ambient state, so every request is attributable to one credential.
package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin unlocks the administrative override paths (re-activation of a
// cancelled appointment). Any other role is treated as a regular user.
const RoleAdmin = "admin"

// Session holds a bearer credential and the caller's role. The zero value
// and a nil pointer both behave as an anonymous session.
type Session struct {
	token string
	role  string
}

// New returns a session for the given bearer token. An empty token yields
// an anonymous session, which is valid: the server decides whether an
// anonymous request is acceptable.
func New(token string) *Session {
	return &Session{token: strings.TrimSpace(token)}
}

// WithRole returns a copy of the session carrying the given role.
func (s *Session) WithRole(role string) *Session {
	cp := *s
	cp.role = strings.ToLower(strings.TrimSpace(role))
	return &cp
}

// Token returns the bearer credential and whether one is present.
func (s *Session) Token() (string, bool) {
	if s == nil || s.token == "" {
		return "", false
	}
	return s.token, true
}

// IsAdmin reports whether the session is allowed administrative overrides.
func (s *Session) IsAdmin() bool {
	return s != nil && s.role == RoleAdmin
}

// Expired reports whether the credential is a JWT whose exp claim has
// passed. Opaque tokens and tokens without exp are never reported expired;
// the server remains the authority on their validity.
func (s *Session) Expired(now time.Time) bool {
	tok, ok := s.Token()
	if !ok {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
