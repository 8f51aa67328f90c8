// Package cli is the terminal client: it wires the session manager, the
// authenticated request client, the route guard and the project services,
// and maps subcommands onto them.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/taskboard/api"
	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/guard"
	"github.com/jrsteele09/taskboard/internal/config"
	"github.com/jrsteele09/taskboard/internal/transport"
	"github.com/jrsteele09/taskboard/projects"
	"github.com/jrsteele09/taskboard/session"
	"github.com/jrsteele09/taskboard/token"
	"github.com/jrsteele09/taskboard/token/filestore"
)

// ErrUsage is returned for an unknown command or bad flags; usage has
// already been printed.
var ErrUsage = errors.New("usage")

type App struct {
	out      io.Writer
	logger   zerolog.Logger
	now      func() time.Time
	manager  *session.Manager
	projects *projects.Service
	policy   *guard.Policy
	commands map[string]command
}

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

type options struct {
	logger     zerolog.Logger
	store      token.Store
	httpClient *http.Client
	registry   prometheus.Registerer
	now        func() time.Time
}

type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore replaces the token file named by config.
func WithStore(store token.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithHTTPClient replaces the circuit-breaking client built from config.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = registry
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func New(cfg config.Config, out io.Writer, opts ...Option) (*App, error) {
	o := options{logger: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = filestore.New(cfg.GetTokenFile())
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	metrics := transport.NewMetrics(o.registry)
	if o.httpClient == nil {
		o.httpClient = transport.NewHTTPClient(cfg, o.logger, metrics)
	}

	auth, err := api.NewAuthClient(cfg.GetBaseURL(), o.httpClient, api.WithAuthLogger(o.logger))
	if err != nil {
		return nil, errors.Wrap(err, "[cli.New] auth client")
	}
	manager := session.NewManager(o.store, auth, session.WithLogger(o.logger))
	client, err := api.New(cfg.GetBaseURL(), manager, auth,
		api.WithHTTPClient(o.httpClient),
		api.WithLogger(o.logger),
		api.WithMetrics(metrics))
	if err != nil {
		return nil, errors.Wrap(err, "[cli.New] request client")
	}

	a := &App{
		out:      out,
		logger:   o.logger,
		now:      o.now,
		manager:  manager,
		projects: projects.NewService(client, projects.WithNowFunc(o.now)),
		policy:   guard.DefaultPolicy(),
	}
	a.commands = a.commandTable()
	return a, nil
}

// Session exposes the manager, mainly so callers can subscribe to changes.
func (a *App) Session() *session.Manager {
	return a.manager
}

// Run executes one command line (without the program name).
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		a.usage()
		return nil
	}
	cmd, ok := a.commands[args[0]]
	if !ok {
		fmt.Fprintf(a.out, "unknown command %q\n\n", args[0])
		a.usage()
		return ErrUsage
	}
	return cmd.run(ctx, args[1:])
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: taskboard <command> [flags]")
	fmt.Fprintln(a.out)
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.out, "  %-12s %s\n", name, a.commands[name].usage)
	}
}

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	return nil
}

// Describe renders err the way the client shows it: the backend or field
// messages for an *apierror.Error, the plain text otherwise.
func Describe(err error) string {
	var aerr *apierror.Error
	if errors.As(err, &aerr) {
		return aerr.Display()
	}
	return err.Error()
}
