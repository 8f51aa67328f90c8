// Package transport builds the HTTP client shared by the auth and request
// clients: a circuit breaker over the default transport plus metrics.
package transport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/jrsteele09/taskboard/internal/config"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = gobreaker.ErrOpenState

type BreakerConfig struct {
	Name string

	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before half-open.
	OpenTimeout time.Duration
}

func BreakerConfigFrom(name string, cfg config.ClientConfig) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxFailures: cfg.GetBreakerMaxFailures(),
		OpenTimeout: cfg.GetBreakerOpenTimeout(),
	}
}

// serverStatusError carries a 5xx response through gobreaker so it counts as
// a failure while the caller still receives the response itself.
type serverStatusError struct {
	resp *http.Response
}

func (e *serverStatusError) Error() string {
	return fmt.Sprintf("server error %d", e.resp.StatusCode)
}

// Breaker is an http.RoundTripper that opens after repeated transport
// failures or 5xx responses. 4xx responses, 401 included, are successes.
type Breaker struct {
	next    http.RoundTripper
	cb      *gobreaker.CircuitBreaker[*http.Response]
	name    string
	logger  zerolog.Logger
	metrics *Metrics
}

func NewBreaker(next http.RoundTripper, cfg BreakerConfig, logger zerolog.Logger, metrics *Metrics) *Breaker {
	if next == nil {
		next = http.DefaultTransport
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	b := &Breaker{next: next, name: cfg.Name, logger: logger, metrics: metrics}
	b.cb = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			b.metrics.setBreakerState(name, to)
		},
	})
	metrics.setBreakerState(cfg.Name, gobreaker.StateClosed)
	return b
}

func (b *Breaker) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := b.cb.Execute(func() (*http.Response, error) {
		resp, err := b.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, &serverStatusError{resp: resp}
		}
		return resp, nil
	})
	var statusErr *serverStatusError
	if errors.As(err, &statusErr) {
		return statusErr.resp, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[%s] %s %s", b.name, req.Method, req.URL.Path)
	}
	return resp, nil
}

// State reports the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// NewHTTPClient returns the client used for every backend call.
func NewHTTPClient(cfg config.ClientConfig, logger zerolog.Logger, metrics *Metrics) *http.Client {
	return &http.Client{
		Transport: NewBreaker(http.DefaultTransport.(*http.Transport).Clone(), BreakerConfigFrom("taskboard-api", cfg), logger, metrics),
		Timeout:   cfg.GetRequestTimeout(),
	}
}
