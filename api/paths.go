// Package api talks to the taskboard REST backend: AuthClient for the
// unauthenticated auth endpoints and Client for every bearer-authenticated
// call, including the one-shot refresh-and-retry on 401.
package api

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// REST paths, relative to the base URL.
const (
	PathSignup       = "api/signup/"
	PathToken        = "api/token/"
	PathTokenRefresh = "api/token/refresh/"
	PathLogout       = "api/logout/"
	PathUsers        = "api/user/users/"
)

var authPaths = map[string]bool{
	PathSignup:       true,
	PathToken:        true,
	PathTokenRefresh: true,
}

// isAuthPath reports whether p must never carry a bearer token.
func isAuthPath(p string) bool {
	return authPaths[strings.TrimPrefix(p, "/")]
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "[api] invalid base URL %q", raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("[api] base URL %q needs a scheme and host", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

func resolve(base *url.URL, path string, query url.Values) string {
	u := base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
