package server

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jrsteele09/taskboard/session"
	"github.com/jrsteele09/taskboard/token/refresh"
	"github.com/jrsteele09/taskboard/users"
)

const (
	msgNoActiveAccount = "No active account found with the given credentials"
	msgEmailTaken      = "user with this email already exists."
)

type media struct {
	contentType string
	data        []byte
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type tokenObtainResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    *users.User `json:"user"`
}

type signupResponse struct {
	Message string      `json:"message"`
	User    *users.User `json:"user"`
}

// issueTokens mints an access token and a fresh refresh token for user.
func (s *Server) issueTokens(user *users.User) (tokenPair, error) {
	access, _, err := s.creator.CreateAccessToken(user)
	if err != nil {
		return tokenPair{}, err
	}
	refreshToken, err := s.refresh.Create(user.ID)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{Access: access, Refresh: refreshToken}, nil
}

// Signup registers an employee or manager from a multipart form. Admins are
// only ever seeded.
func (s *Server) Signup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(session.MaxProfilePicBytes + (1 << 20)); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			writeDetail(w, http.StatusBadRequest, "Multipart form parse error - "+err.Error())
			return
		}

		form := session.SignupForm{
			Email:     strings.TrimSpace(r.FormValue("email")),
			Username:  strings.TrimSpace(r.FormValue("username")),
			Password:  r.FormValue("password"),
			Password2: r.FormValue("password2"),
			Role:      users.Role(r.FormValue("role")),
		}
		upload, err := readUpload(r, "profile_pic")
		if err != nil {
			writeFieldErrors(w, map[string][]string{"profile_pic": {"Upload a valid image."}}, false)
			return
		}
		form.ProfilePic = upload

		if err := form.Validate(); err != nil {
			writeValidation(w, err, false)
			return
		}
		if form.Role == users.RoleAdmin {
			writeFieldErrors(w, map[string][]string{"role": {`"admin" is not a valid choice.`}}, false)
			return
		}
		if _, err := s.repos.Users.GetByEmail(form.Email); err == nil {
			writeFieldErrors(w, map[string][]string{"email": {msgEmailTaken}}, false)
			return
		}

		hash, err := users.HashPassword(form.Password)
		if err != nil {
			s.logger.Err(err).Msg("Signup: failed to hash password")
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}
		user := &users.User{
			Username:     form.Username,
			Email:        form.Email,
			Role:         form.Role,
			PasswordHash: hash,
			JoinedAt:     s.now(),
		}
		if upload != nil {
			user.ProfilePic = s.storeMedia(r, upload)
		}
		if err := s.repos.Users.Create(user); err != nil {
			if _, lookupErr := s.repos.Users.GetByEmail(form.Email); lookupErr == nil {
				writeFieldErrors(w, map[string][]string{"email": {msgEmailTaken}}, false)
				return
			}
			s.logger.Err(err).Msg("Signup: failed to create user")
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}

		s.logger.Debug().Int("user_id", user.ID).Str("role", user.Role.String()).Msg("user signed up")
		writeJSON(w, http.StatusCreated, signupResponse{Message: "User created successfully", User: user})
	}
}

func readUpload(r *http.Request, field string) (*session.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, session.MaxProfilePicBytes+1))
	if err != nil {
		return nil, err
	}
	return &session.Upload{Filename: header.Filename, Data: data}, nil
}

// storeMedia keeps upload in memory and returns its absolute URL.
func (s *Server) storeMedia(r *http.Request, upload *session.Upload) string {
	name := uuid.NewString() + path.Ext(path.Base(upload.Filename))
	s.mediaLock.Lock()
	s.media[name] = media{contentType: http.DetectContentType(upload.Data), data: upload.Data}
	s.mediaLock.Unlock()
	return getScheme(r) + "://" + r.Host + strings.Replace(RouteMedia, "{file}", name, 1)
}

func (s *Server) Media() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mediaLock.RLock()
		m, ok := s.media[r.PathValue("file")]
		s.mediaLock.RUnlock()
		if !ok {
			writeDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		w.Header().Set("Content-Type", m.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(m.data)))
		_, _ = w.Write(m.data)
	}
}

// Token exchanges email and password for a token pair plus the user.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form session.LoginForm
		if !decodeJSON(w, r, &form) {
			return
		}
		if err := form.Validate(); err != nil {
			writeValidation(w, err, false)
			return
		}

		user, err := s.repos.Users.GetByEmail(form.Email)
		if err != nil || !users.CheckPasswordHash(form.Password, user.PasswordHash) {
			s.metrics.observeLogin("rejected")
			writeDetail(w, http.StatusUnauthorized, msgNoActiveAccount)
			return
		}

		pair, err := s.issueTokens(user)
		if err != nil {
			s.logger.Err(err).Int("user_id", user.ID).Msg("Token: failed to issue tokens")
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}
		s.metrics.observeLogin("success")

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, tokenObtainResponse{Access: pair.Access, Refresh: pair.Refresh, User: user})
	}
}

// TokenRefresh exchanges a live refresh token for a new access token.
func (s *Server) TokenRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Refresh string `json:"refresh"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if body.Refresh == "" {
			writeError(w, http.StatusBadRequest, "Refresh token is required")
			return
		}

		stored, err := s.refresh.Validate(body.Refresh)
		if err != nil {
			if !errors.Is(err, refresh.ErrExpired) && !errors.Is(err, refresh.ErrNotFound) {
				s.logger.Err(err).Msg("TokenRefresh: failed to read refresh token")
			}
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		user, err := s.repos.Users.GetByID(stored.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		access, _, err := s.creator.CreateAccessToken(user)
		if err != nil {
			s.logger.Err(err).Int("user_id", user.ID).Msg("TokenRefresh: failed to create access token")
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]string{"access": access})
	}
}

// TokenVerify reports whether an access token is still honoured.
func (s *Server) TokenVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		in, err := s.inspector.Introspect(body.Token)
		if err != nil || !in.Active {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	}
}

// Logout blacklists the refresh token. A valid bearer token on the request is
// revoked as well.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refresh_token"`
			Everywhere   bool   `json:"everywhere"` // Also drop the user's other refresh tokens
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if body.RefreshToken == "" {
			writeError(w, http.StatusBadRequest, "Refresh token is required")
			return
		}

		if raw, ok := bearerToken(r); ok {
			if jti, exp, err := s.inspector.ParseAndExtractJTI(raw); err == nil {
				_ = s.revoked.Add(jti, exp)
			}
		}

		stored, err := s.refresh.Validate(body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid refresh token or logout failed")
			return
		}
		if body.Everywhere {
			n, err := s.repos.RefreshTokens.DeleteByUserID(stored.UserID)
			if err != nil {
				s.logger.Err(err).Int("user_id", stored.UserID).Msg("Logout: failed to delete refresh tokens")
			}
			s.logger.Debug().Int("user_id", stored.UserID).Int("revoked", n).Msg("logged out everywhere")
		} else if err := s.refresh.Delete(body.RefreshToken); err != nil {
			s.logger.Err(err).Msg("Logout: failed to delete refresh token")
			writeError(w, http.StatusBadRequest, "Invalid refresh token or logout failed")
			return
		}
		s.revoked.Cleanup()
		writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out and token blacklisted"})
	}
}

// ListUsers returns every account, for assignment pickers.
func (s *Server) ListUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.repos.Users.List()
		if err != nil {
			s.logger.Err(err).Msg("ListUsers: failed to list users")
			writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) GetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil {
			writeDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		user, err := s.repos.Users.GetByID(id)
		if err != nil {
			writeDetail(w, http.StatusNotFound, "Not found.")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
