// Package server is the in-memory development backend for the taskboard
// client: the auth endpoints, the project and task API and /metrics.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/taskboard/internal/config"
	"github.com/jrsteele09/taskboard/server/boardrepo"
	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/token/jwt"
	"github.com/jrsteele09/taskboard/token/refresh"
	"github.com/jrsteele09/taskboard/users"
)

// Repos groups the stores the server reads and writes.
type Repos struct {
	Users         users.UserRepo
	RefreshTokens refresh.Repo
	Board         boardrepo.Repo
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	repos    Repos
	logger   zerolog.Logger
	now      func() time.Time
	registry *prometheus.Registry
	metrics  *serverMetrics

	creator   *jwt.Creator
	inspector *jwt.Inspector
	refresh   *refresh.Manager
	revoked   *token.Blacklist

	mediaLock sync.RWMutex
	media     map[string]media // Uploaded avatars by file name
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithRegistry serves /metrics from registry instead of a fresh one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

func New(cfg config.Config, repos Repos, options ...Option) (*Server, error) {
	if repos.Users == nil || repos.RefreshTokens == nil || repos.Board == nil {
		return nil, fmt.Errorf("[Server New] users, refresh token and board repos are required")
	}
	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
		repos:  repos,
		logger: zerolog.Nop(),
		now:    time.Now,
		media:  make(map[string]media),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	metrics, err := newServerMetrics(s.registry)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to register metrics: %w", err)
	}
	s.metrics = metrics

	secret := cfg.GetSigningSecret()
	s.revoked = token.NewBlacklist(s.now)
	s.creator = jwt.NewCreator(secret,
		jwt.WithNowFunc(s.now),
		jwt.WithIssuer(cfg.GetAppName()),
		jwt.WithAccessTokenExpiry(cfg.GetAccessTokenExpiry()))
	s.inspector = jwt.NewInspector(secret, s.revoked, s.now)
	s.refresh = refresh.NewManager(repos.RefreshTokens, cfg, refresh.WithNowFunc(s.now))

	if err := s.InitialiseSystem(); err != nil {
		return nil, fmt.Errorf("[Server New] failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes returns the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	s.logger.Info().Msgf("[%s] %s", colouredMethod(method), path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
