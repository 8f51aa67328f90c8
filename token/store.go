// Package token holds the client's persisted token pair and the helpers used
// to read claims out of issued access tokens.
package token

import (
	"errors"

	"github.com/jrsteele09/taskboard/users"
)

// Fixed keys of the persisted record.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
	UserKey         = "user"
)

var ErrStoreUnavailable = errors.New("token store unavailable")

// Pair is an access/refresh token pair as issued by the backend.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Empty is true when neither token is present.
func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// Record is everything the client persists between runs.
type Record struct {
	AccessToken  string      `json:"accessToken,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         *users.User `json:"user,omitempty"`
}

// Pair returns the tokens of r.
func (r Record) Pair() Pair {
	return Pair{Access: r.AccessToken, Refresh: r.RefreshToken}
}

// Empty is true when r holds nothing worth persisting.
func (r Record) Empty() bool {
	return r.AccessToken == "" && r.RefreshToken == "" && r.User == nil
}

// Store is durable client-local storage for the session record. Load on an
// empty store returns a zero Record and no error. Clear removes every key.
type Store interface {
	Load() (Record, error)
	Save(rec Record) error
	Clear() error
}
