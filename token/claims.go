package token

import (
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/users"
)

// Claim names carried by access tokens.
const (
	ClaimUserID   = "user_id"
	ClaimUsername = "username"
	ClaimEmail    = "email"
	ClaimRole     = "role"
)

// Claims is the identity portion of an access token plus its timing claims.
type Claims struct {
	UserID    int
	Username  string
	Email     string
	Role      string
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Inspect reads the claims of a JWT access token WITHOUT verifying its
// signature. The client never holds the signing key; this is only used to
// recover identity and expiry for display and routing.
func Inspect(raw string) (*Claims, error) {
	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[token.Inspect] ParseUnverified")
	}
	mc, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[token.Inspect] error extracting claims")
	}
	return claimsFromMap(mc)
}

func claimsFromMap(mc jwtlib.MapClaims) (*Claims, error) {
	c := &Claims{}
	switch v := mc[ClaimUserID].(type) {
	case float64:
		c.UserID = int(v)
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("[token.Inspect] invalid %s claim %q", ClaimUserID, v)
		}
		c.UserID = id
	}
	c.Username, _ = mc[ClaimUsername].(string)
	c.Email, _ = mc[ClaimEmail].(string)
	c.Role, _ = mc[ClaimRole].(string)
	c.ID, _ = mc["jti"].(string)

	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// Expired reports whether the token expired before now. Tokens without an
// exp claim never expire.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// User rebuilds the identity carried by the token. A missing or unknown role
// is an error.
func (c *Claims) User() (*users.User, error) {
	role, err := users.ParseRole(c.Role)
	if err != nil {
		return nil, errors.Wrap(err, "[Claims.User]")
	}
	if c.UserID == 0 {
		return nil, fmt.Errorf("[Claims.User] missing %s claim", ClaimUserID)
	}
	return &users.User{ID: c.UserID, Username: c.Username, Email: c.Email, Role: role}, nil
}

// MapClaims renders the identity claims of u for signing.
func MapClaims(u *users.User) jwtlib.MapClaims {
	return jwtlib.MapClaims{
		ClaimUserID:   u.ID,
		ClaimUsername: u.Username,
		ClaimEmail:    u.Email,
		ClaimRole:     string(u.Role),
	}
}
