// Package jwt mints and verifies the HS256 access tokens issued by the
// development backend.
package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/users"
)

const defaultAccessTokenExpiry = 5 * time.Minute

// Creator signs access tokens carrying the user's identity claims.
type Creator struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	nowTimeFunc func() time.Time
}

type CreatorOption func(*Creator)

func WithNowFunc(now func() time.Time) CreatorOption {
	return func(c *Creator) {
		c.nowTimeFunc = now
	}
}

func WithIssuer(issuer string) CreatorOption {
	return func(c *Creator) {
		c.issuer = issuer
	}
}

func WithAccessTokenExpiry(d time.Duration) CreatorOption {
	return func(c *Creator) {
		c.accessTTL = d
	}
}

// NewCreator creates a new JWT creator
func NewCreator(secret string, options ...CreatorOption) *Creator {
	c := &Creator{
		secret:      []byte(secret),
		accessTTL:   defaultAccessTokenExpiry,
		nowTimeFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// AccessTokenExpiry is the lifetime given to new access tokens.
func (c *Creator) AccessTokenExpiry() time.Duration {
	return c.accessTTL
}

// CreateAccessToken signs a new access token for user and returns it with
// its expiry.
func (c *Creator) CreateAccessToken(user *users.User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("[Creator.CreateAccessToken] nil user")
	}
	now := c.nowTimeFunc()
	exp := now.Add(c.accessTTL)

	claims := token.MapClaims(user)
	claims["iat"] = now.Unix()          // Issued At
	claims["exp"] = exp.Unix()          // Expiry
	claims["jti"] = uuid.New().String() // Unique token ID for revocation
	claims["token_type"] = "access"
	if c.issuer != "" {
		claims["iss"] = c.issuer
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Creator.CreateAccessToken] SignedString")
	}
	return signed, exp, nil
}
