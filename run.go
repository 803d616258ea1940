package inspirer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/insptop/inspirer-foundation/config"
	"github.com/insptop/inspirer-foundation/logger"
	"github.com/insptop/inspirer-foundation/server"
)

// Option configures Run.
type Option func(*runner)

// WithName reads configuration from config/<name>/ instead of config/.
func WithName(name string) Option {
	return func(r *runner) {
		r.name = name
	}
}

// WithDotenv selects the dotenv files loaded before the environment is
// resolved. Defaults to ".env"; missing files are ignored.
func WithDotenv(files ...string) Option {
	return func(r *runner) {
		r.dotenv = files
	}
}

type runner struct {
	app       App
	name      string
	dotenv    []string
	configDir string
}

// Run builds the command line for app and executes it with os.Args.
func Run(app App, opts ...Option) error {
	return NewCommand(app, opts...).Execute()
}

// NewCommand builds the root command for app. It has a persistent
// --config flag and the built-in start and config commands, plus every
// command the App registers.
func NewCommand(app App, opts ...Option) *cobra.Command {
	r := &runner{
		app:    app,
		dotenv: []string{".env"},
	}
	for _, opt := range opts {
		opt(r)
	}

	root := &cobra.Command{
		Use:           app.Name(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return r.loadDotenv()
		},
	}
	root.PersistentFlags().StringVarP(&r.configDir, "config", "c", config.DefaultDir, "Directory to read configuration files from")

	root.AddCommand(r.startCommand(), r.configCommand())

	reg := &CommandRegistry{}
	app.Commands(reg)
	for _, rc := range reg.commands {
		root.AddCommand(r.wrap(rc))
	}
	return root
}

func (r *runner) loadDotenv() error {
	for _, f := range r.dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, "failed to load %s", f)
		}
	}
	return nil
}

func (r *runner) loadConfig() (config.Environment, *config.Config, error) {
	env := config.ResolveFromEnv()
	cfg, err := (&config.Loader{Name: r.name, Dir: r.configDir}).Load(env)
	if err != nil {
		return env, nil, err
	}
	return env, cfg, nil
}

// boot loads configuration, sets up logging and initializes the App.
func (r *runner) boot(ctx context.Context, out io.Writer) (*Booter, error) {
	env, cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}

	lc := logger.DefaultConfig()
	if _, err := cfg.Lookup("log", &lc); err != nil {
		return nil, err
	}
	l, err := logger.New(lc, out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up logging")
	}
	fl := logger.Fields(l, r.app.Name(), env)
	fl.WithField("files", cfg.Files()).Debug("configuration loaded")

	b := NewBooter(env, cfg, fl)
	if err := r.app.Init(ctx, b); err != nil {
		_ = b.Shutdown(ctx)
		return nil, errors.Wrap(err, "failed to initialize application")
	}
	return b, nil
}

func (r *runner) wrap(rc registeredCommand) *cobra.Command {
	cmd := rc.cmd
	cmd.Run = nil
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		b, err := r.boot(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if serr := b.Shutdown(context.Background()); serr != nil && err == nil {
				err = serr
			}
		}()
		return rc.run(cmd.Context(), b, args)
	}
	return cmd
}

func (r *runner) startCommand() *cobra.Command {
	var daemonize bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if daemonize && os.Getenv(daemonEnvVar) == "" {
				pid, err := spawnDaemon()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s started in background, pid %d\n", r.app.Name(), pid)
				return nil
			}

			ctx := cmd.Context()
			b, err := r.boot(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if serr := b.Shutdown(context.Background()); serr != nil && err == nil {
					err = serr
				}
			}()

			srv, err := r.newServer(b)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().BoolVarP(&daemonize, "daemonize", "d", false, "Detach from the terminal and run in the background")
	return cmd
}

func (r *runner) newServer(b *Booter) (*server.Server, error) {
	var sc server.Config
	if _, err := b.Config().Lookup(server.ConfigKey, &sc); err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	server.Mount(router, b.Registry())
	if err := r.app.Routes(router); err != nil {
		return nil, errors.Wrap(err, "failed to mount routes")
	}
	return server.New(sc, router, b.Logger(), b.Registry())
}

func (r *runner) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := r.loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.TOML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
