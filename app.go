// Package inspirer is a small framework for HTTP services. An App describes
// how to initialize itself, which routes it serves and which extra commands it
// offers; Run turns it into a command line program with configuration,
// logging and a gracefully stopping HTTP server.
package inspirer

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/insptop/inspirer-foundation/config"
)

// App is implemented by every application run by the framework.
type App interface {
	// Name is used in log fields and as the root command name.
	Name() string
	// Init is called once configuration and logging are ready, before any
	// route is mounted or command is run.
	Init(ctx context.Context, b *Booter) error
	// Routes mounts the application's handlers.
	Routes(r *mux.Router) error
	// Commands registers extra command line commands.
	Commands(reg *CommandRegistry)
}

// Booter gives an App access to its environment while it initializes, and
// collects the cleanup work of the components it creates.
type Booter struct {
	env      config.Environment
	cfg      *config.Config
	logger   logrus.FieldLogger
	registry *prometheus.Registry

	mu    sync.Mutex
	hooks []func(context.Context) error
}

// NewBooter is used by Run, and by tests that initialize an App directly.
func NewBooter(env config.Environment, cfg *config.Config, logger logrus.FieldLogger) *Booter {
	return &Booter{
		env:      env,
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
}

func (b *Booter) Env() config.Environment {
	return b.env
}

func (b *Booter) Config() *config.Config {
	return b.cfg
}

func (b *Booter) Logger() logrus.FieldLogger {
	return b.logger
}

// Registry is the metrics registry served on /metrics.
func (b *Booter) Registry() *prometheus.Registry {
	return b.registry
}

// OnShutdown registers fn to run when the program stops. Hooks run in
// reverse registration order.
func (b *Booter) OnShutdown(fn func(ctx context.Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// Shutdown runs all registered hooks, even if some fail.
func (b *Booter) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	hooks := b.hooks
	b.hooks = nil
	b.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
