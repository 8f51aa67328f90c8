package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/session"
	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/users"
)

var _ session.Authenticator = (*AuthClient)(nil)

// AuthClient calls the auth endpoints. It never attaches credentials except
// on logout, and never refreshes.
type AuthClient struct {
	baseURL *url.URL
	http    *http.Client
	logger  zerolog.Logger
}

type AuthOption func(*AuthClient)

func WithAuthLogger(logger zerolog.Logger) AuthOption {
	return func(a *AuthClient) {
		a.logger = logger
	}
}

func NewAuthClient(baseURL string, httpClient *http.Client, options ...AuthOption) (*AuthClient, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	a := &AuthClient{baseURL: u, http: httpClient, logger: zerolog.Nop()}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

// tokenResponse accepts both {access, refresh, user} and the flat
// {access, refresh, id, email, username, role}, plus the signup shape
// {message, user, tokens:{access, refresh}}.
type tokenResponse struct {
	Access   string      `json:"access"`
	Refresh  string      `json:"refresh"`
	User     *users.User `json:"user"`
	Tokens   *token.Pair `json:"tokens"`
	Message  string      `json:"message"`
	ID       int         `json:"id"`
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     string      `json:"role"`
}

func (r *tokenResponse) grant() (*session.Grant, error) {
	g := &session.Grant{User: r.User, Tokens: token.Pair{Access: r.Access, Refresh: r.Refresh}}
	if r.Tokens != nil && g.Tokens.Access == "" {
		g.Tokens = *r.Tokens
	}
	if g.User == nil && r.Role != "" {
		role, err := users.ParseRole(r.Role)
		if err != nil {
			return nil, err
		}
		g.User = &users.User{ID: r.ID, Email: r.Email, Username: r.Username, Role: role}
	}
	return g, nil
}

// Signup registers an account with a multipart form (the avatar is optional).
func (a *AuthClient) Signup(ctx context.Context, form session.SignupForm) (*session.Grant, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"email", form.Email},
		{"username", form.Username},
		{"password", form.Password},
		{"password2", form.Password2},
		{"role", form.Role.String()},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, errors.Wrap(err, "[AuthClient.Signup] WriteField")
		}
	}
	if form.ProfilePic != nil {
		fw, err := mw.CreateFormFile("profile_pic", form.ProfilePic.Filename)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthClient.Signup] CreateFormFile")
		}
		if _, err := fw.Write(form.ProfilePic.Data); err != nil {
			return nil, errors.Wrap(err, "[AuthClient.Signup] write profile_pic")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "[AuthClient.Signup] Close")
	}

	var out tokenResponse
	if err := a.post(ctx, PathSignup, mw.FormDataContentType(), body.Bytes(), "", &out); err != nil {
		return nil, err
	}
	g, err := out.grant()
	if err != nil {
		return nil, apierror.Server(http.StatusOK, "signup response: "+err.Error())
	}
	return g, nil
}

// ObtainToken exchanges email and password for a token pair and identity.
func (a *AuthClient) ObtainToken(ctx context.Context, form session.LoginForm) (*session.Grant, error) {
	body, err := json.Marshal(form)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthClient.ObtainToken] Marshal")
	}
	var out tokenResponse
	if err := a.post(ctx, PathToken, "application/json", body, "", &out); err != nil {
		return nil, err
	}
	g, err := out.grant()
	if err != nil {
		return nil, apierror.Server(http.StatusOK, "token response: "+err.Error())
	}
	return g, nil
}

// Refresh exchanges a refresh token for a new access token. Every failure,
// a 401 included, is a terminal KindRefreshFailed.
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	body, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return token.Pair{}, errors.Wrap(err, "[AuthClient.Refresh] Marshal")
	}
	var out token.Pair
	if err := a.post(ctx, PathTokenRefresh, "application/json", body, "", &out); err != nil {
		return token.Pair{}, apierror.RefreshFailed(err)
	}
	if out.Access == "" {
		return token.Pair{}, apierror.RefreshFailed(apierror.Server(http.StatusOK, "refresh response carried no access token"))
	}
	return out, nil
}

// Revoke blacklists the refresh token server-side. It carries the access
// token but a 401 here is never retried.
func (a *AuthClient) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return errors.Wrap(err, "[AuthClient.Revoke] Marshal")
	}
	return a.post(ctx, PathLogout, "application/json", body, accessToken, nil)
}

func (a *AuthClient) post(ctx context.Context, path, contentType string, body []byte, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resolve(a.baseURL, path, nil), bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "[AuthClient] build %s", path)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		a.logger.Debug().Err(err).Str("path", path).Msg("auth request failed")
		return apierror.Network(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		aerr := apierror.FromResponse(resp, apierror.KindAuthRejected)
		a.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("auth request rejected")
		return aerr
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apierror.Error{Kind: apierror.KindServer, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}
