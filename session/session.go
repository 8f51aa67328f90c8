// Package session owns the client's authentication lifecycle: the single
// writer of the current identity and token pair, and of their persisted copy.
package session

import (
	"context"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/users"
)

// Status tracks the last Login, Signup or Logout.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Snapshot is an immutable copy of the session at one point in time.
type Snapshot struct {
	User            *users.User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	Status          Status
	Err             *apierror.Error
}

// Authenticated reports the stored authentication flag.
func (s Snapshot) Authenticated() bool {
	return s.IsAuthenticated
}

// UserRole returns the cached user's role, or "" without one.
func (s Snapshot) UserRole() users.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Record is the persisted subset of s.
func (s Snapshot) Record() token.Record {
	return token.Record{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, User: s.User}
}

func (s Snapshot) clone() Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Grant is what the backend hands back after a successful signup or token
// request. Tokens may be empty after signup.
type Grant struct {
	User   *users.User
	Tokens token.Pair
}

// Authenticator performs the unauthenticated auth calls plus revocation.
type Authenticator interface {
	Signup(ctx context.Context, form SignupForm) (*Grant, error)
	ObtainToken(ctx context.Context, form LoginForm) (*Grant, error)
	Revoke(ctx context.Context, accessToken, refreshToken string) error
}
