package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/internal/transport"
	"github.com/jrsteele09/taskboard/token"
)

// Credentials is the session as seen by the request client: read access to
// the tokens, the refresh write and the teardown.
type Credentials interface {
	AccessToken() string
	RefreshToken() string
	ApplyRefreshedAccess(usedRefresh string, pair token.Pair) error
	Teardown(reason error)
	TeardownIfHolding(usedRefresh string, reason error) bool
}

// Refresher calls the refresh endpoint.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (token.Pair, error)
}

const requestIDHeader = "X-Request-ID"

// Client sends bearer-authenticated requests. On the first 401 of a request
// it refreshes the access token once and re-sends the identical request;
// concurrent 401s share a single refresh call.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	creds     Credentials
	refresher Refresher
	refreshes singleflight.Group
	logger    zerolog.Logger
	metrics   *transport.Metrics
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(metrics *transport.Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

func New(baseURL string, creds Credentials, refresher Refresher, options ...Option) (*Client, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if creds == nil || refresher == nil {
		return nil, errors.New("[api.New] credentials and refresher are required")
	}
	c := &Client{
		baseURL:   u,
		http:      http.DefaultClient,
		creds:     creds,
		refresher: refresher,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Request describes one logical call. Body is sent verbatim, so a retry
// re-sends identical bytes.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
}

// Do runs the request through the refresh protocol and returns the final
// response whatever its status. Transport failures are KindNetwork; a failed
// refresh is KindRefreshFailed and has already torn the session down.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	requestID := uuid.NewString()

	sentWith := c.creds.AccessToken()
	resp, err := c.send(ctx, r, sentWith, requestID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isAuthPath(r.Path) {
		return resp, nil
	}
	drain(resp)

	fresh, err := c.refreshAfter(ctx, sentWith)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("request_id", requestID).Str("path", r.Path).Msg("retrying with refreshed access token")
	return c.send(ctx, r, fresh, requestID)
}

func (c *Client) send(ctx context.Context, r Request, accessToken, requestID string) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, resolve(c.baseURL, r.Path, r.Query), body)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.send] %s %s", r.Method, r.Path)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if accessToken != "" && !isAuthPath(r.Path) {
		(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(r.Method, 0)
		return nil, apierror.Network(err)
	}
	c.metrics.ObserveRequest(r.Method, resp.StatusCode)
	return resp, nil
}

// refreshAfter returns an access token newer than stale, refreshing if the
// session still holds stale.
func (c *Client) refreshAfter(ctx context.Context, stale string) (string, error) {
	if current := c.creds.AccessToken(); current != "" && current != stale {
		c.metrics.ObserveRefresh("shared")
		return current, nil
	}

	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		rerr := apierror.RefreshFailed(apierror.ErrNoRefreshToken)
		c.creds.Teardown(rerr)
		c.metrics.ObserveRefresh("failure")
		return "", rerr
	}

	v, err, shared := c.refreshes.Do(refreshToken, func() (any, error) {
		// Detached so one caller's cancellation does not fail every waiter.
		pair, err := c.refresher.Refresh(context.WithoutCancel(ctx), refreshToken)
		if err != nil {
			rerr := refreshFailure(err)
			if c.creds.TeardownIfHolding(refreshToken, rerr) {
				c.logger.Warn().Err(err).Msg("token refresh failed, session torn down")
			}
			return "", rerr
		}
		if err := c.creds.ApplyRefreshedAccess(refreshToken, pair); err != nil {
			if errors.Is(err, apierror.ErrSessionChanged) {
				if current := c.creds.AccessToken(); current != "" {
					return current, nil
				}
				return "", apierror.RefreshFailed(err)
			}
			rerr := apierror.RefreshFailed(err)
			c.creds.TeardownIfHolding(refreshToken, rerr)
			return "", rerr
		}
		c.logger.Info().Msg("access token refreshed")
		return pair.Access, nil
	})

	switch {
	case err != nil:
		c.metrics.ObserveRefresh("failure")
		return "", err
	case shared:
		c.metrics.ObserveRefresh("shared")
	default:
		c.metrics.ObserveRefresh("success")
	}
	return v.(string), nil
}

func refreshFailure(err error) error {
	if apierror.KindOf(err) == apierror.KindRefreshFailed {
		return err
	}
	return apierror.RefreshFailed(err)
}

// Call sends in as JSON (when non-nil) and decodes a 2xx JSON body into out
// (when non-nil). Non-2xx responses become *apierror.Error of KindRequest,
// or KindServer for 5xx.
func (c *Client) Call(ctx context.Context, method, path string, query url.Values, in, out any) error {
	r := Request{Method: method, Path: path, Query: query}
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "[Client.Call] encode %s %s", method, path)
		}
		r.Body = b
		r.ContentType = "application/json"
	}

	resp, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierror.FromResponse(resp, apierror.KindRequest)
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apierror.Error{Kind: apierror.KindServer, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Call(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Call(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Call(ctx, http.MethodPut, path, nil, in, out)
}

func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.Call(ctx, http.MethodPatch, path, nil, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Call(ctx, http.MethodDelete, path, nil, nil, nil)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
