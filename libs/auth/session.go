// Package auth carries the caller's bearer session through request contexts
// and verifies the tokens issued by the clinic API's auth module.
package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
	ErrForbidden    = errors.New("forbidden")
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleDoctor }

// Session is the authenticated caller: the raw bearer token, forwarded to the
// clinic API unchanged, plus the claims decoded from it.
type Session struct {
	Token  string
	Claims Claims
}

func (s Session) UserID() string   { return s.Claims.Subject }
func (s Session) Role() Role       { return s.Claims.Role }
func (s Session) DoctorID() string { return s.Claims.DoctorID }
func (s Session) ClinicID() string { return s.Claims.ClinicID }

// CanActForDoctor reports whether the session may read or mutate doctorID's schedule.
// Admins may address any doctor; doctors only themselves.
func (s Session) CanActForDoctor(doctorID string) bool {
	switch s.Role() {
	case RoleAdmin:
		return true
	case RoleDoctor:
		return doctorID != "" && doctorID == s.DoctorID()
	default:
		return false
	}
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// TokenSource supplies the bearer token for outbound clinic API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SessionTokens forwards the caller's session token, falling back to a
// service token for background work that has no caller.
type SessionTokens struct {
	ServiceToken string
}

func (s SessionTokens) Token(ctx context.Context) (string, error) {
	if sess, ok := FromContext(ctx); ok && sess.Token != "" {
		return sess.Token, nil
	}
	if s.ServiceToken != "" {
		return s.ServiceToken, nil
	}
	return "", ErrMissingToken
}

// StaticToken is used by the CLI, which holds exactly one token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrMissingToken
	}
	return string(t), nil
}
