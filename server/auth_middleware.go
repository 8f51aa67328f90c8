package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/taskboard/users"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the authenticated *users.User
	ContextKeyUser ContextKey = "user"
	// ContextKeyTokenID stores the access token's jti
	ContextKeyTokenID ContextKey = "jti"
)

const tokenNotValid = "Given token not valid for any token type"

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// authenticate resolves the bearer token to a live user, or returns false.
func (s *Server) authenticate(r *http.Request) (*users.User, string, bool) {
	raw, ok := bearerToken(r)
	if !ok {
		return nil, "", false
	}
	in, err := s.inspector.Introspect(raw)
	if err != nil || !in.Active || in.Claims == nil {
		return nil, "", false
	}
	user, err := s.repos.Users.GetByID(in.Claims.UserID)
	if err != nil {
		return nil, "", false
	}
	return user, in.Claims.ID, true
}

// RequireAuth is middleware that validates a Bearer access token
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bearerToken(r); !ok {
				writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			user, jti, ok := s.authenticate(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": tokenNotValid, "code": "token_not_valid"})
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			ctx = context.WithValue(ctx, ContextKeyTokenID, jti)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireManagerial lets managers and admins through. Chain after RequireAuth.
func (s *Server) RequireManagerial() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil || !user.IsManagerial() {
				writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
				return
			}
			next(w, r)
		}
	}
}

func userFromContext(ctx context.Context) *users.User {
	u, _ := ctx.Value(ContextKeyUser).(*users.User)
	return u
}
