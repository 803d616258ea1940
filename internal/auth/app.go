// Package auth is the inspirer-auth service: user login backed by the
// database, and a partial OpenID Connect provider per registered application.
package auth

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/insptop/inspirer-foundation"
	"github.com/insptop/inspirer-foundation/component/database"
	"github.com/insptop/inspirer-foundation/component/session"
	"github.com/insptop/inspirer-foundation/discovery"
	"github.com/insptop/inspirer-foundation/internal/auth/service"
	"github.com/insptop/inspirer-foundation/keys"
	"github.com/insptop/inspirer-foundation/middleware"
	"github.com/insptop/inspirer-foundation/response"
)

//go:embed templates
var templates embed.FS

var loginTemplate = template.Must(template.ParseFS(templates, "templates/login.html"))

// Name is the application and binary name.
const Name = "inspirer-auth"

// App implements inspirer.App.
type App struct {
	cfg    Config
	logger logrus.FieldLogger

	db       *gorm.DB
	sessions *session.Handle
	keys     *keys.KeyPair
	jwks     *discovery.KeysHandler

	users  *service.Users
	apps   *service.Apps
	tokens *service.Tokens
	seeder *service.Init
}

var _ inspirer.App = (*App)(nil)

func New() *App {
	return &App{}
}

func (a *App) Name() string {
	return Name
}

func (a *App) Init(ctx context.Context, b *inspirer.Booter) error {
	a.logger = b.Logger()

	a.cfg = DefaultConfig()
	if err := b.Config().Get(ConfigKey, &a.cfg); err != nil {
		return err
	}
	if err := a.cfg.validate(b.Env()); err != nil {
		return err
	}

	if a.cfg.AuthPage != "" {
		if _, err := os.Stat(filepath.Join(a.cfg.AuthPage, "index.html")); err != nil {
			return errors.Wrapf(err, "auth_page %s has no index.html", a.cfg.AuthPage)
		}
	}

	var err error
	if a.cfg.SigningKey != "" {
		a.keys, err = keys.LoadFile(a.cfg.SigningKey)
		if err != nil {
			return err
		}
	} else {
		a.logger.Warn("no signing_key configured, generating an ephemeral key; issued ID tokens will not verify after a restart")
		a.keys, err = keys.Generate()
		if err != nil {
			return err
		}
	}
	a.logger.WithField("kid", a.keys.KeyID()).Debug("signing key ready")
	a.jwks = discovery.NewKeysHandler(a.keys, a.cfg.KeysCacheFor)

	a.db, err = inspirer.Component[database.Config, *gorm.DB](ctx, b, database.Provider{Name: Name})
	if err != nil {
		return err
	}
	a.sessions, err = inspirer.Component[session.Config, *session.Handle](ctx, b, session.Provider{Key: SessionConfigKey})
	if err != nil {
		return err
	}

	a.users = service.NewUsers(a.db, a.logger.WithField("service", "users"))
	a.apps = service.NewApps(a.db)
	a.tokens = service.NewTokens(a.keys.Signer())
	a.seeder = service.NewInit(a.db, a.cfg.AppName, a.cfg.AppEndpoint, a.logger.WithField("service", "init"))
	return nil
}

func (a *App) Routes(r *mux.Router) error {
	h := func(f response.Handler) http.Handler {
		return f.Wrap(a.logger)
	}

	r.Handle("/test", h(a.test)).Methods(http.MethodGet)
	r.Handle("/test-err", h(a.testErr)).Methods(http.MethodGet)

	r.Handle("/login", h(a.loginPage)).Methods(http.MethodGet)
	r.Handle("/login", h(a.login)).Methods(http.MethodPost)
	r.Handle("/api/login", h(a.apiLogin)).Methods(http.MethodPost)

	if a.cfg.AuthPage != "" {
		r.Handle("/vite.svg", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(a.cfg.AuthPage, "vite.svg"))
		})).Methods(http.MethodGet, http.MethodHead)
		r.PathPrefix("/assets/").Handler(
			http.StripPrefix("/assets/", http.FileServer(http.Dir(filepath.Join(a.cfg.AuthPage, "assets")))),
		).Methods(http.MethodGet, http.MethodHead)
	}

	if a.cfg.APIDocs {
		openAPI, reference, err := apiDocsHandlers()
		if err != nil {
			return err
		}
		r.HandleFunc("/api-docs/openapi.json", openAPI).Methods(http.MethodGet)
		r.HandleFunc("/api-docs", reference).Methods(http.MethodGet)
	}

	o := r.PathPrefix("/app/{app_id}/oidc").Subrouter()
	o.Handle("/.well-known/openid-configuration", h(a.openIDConfiguration)).Methods(http.MethodGet)
	o.Handle("/.well-known/jwks.json", a.jwks).Methods(http.MethodGet)
	o.HandleFunc("/auth", a.authorize).Methods(http.MethodGet, http.MethodPost)
	o.HandleFunc("/token", a.token).Methods(http.MethodPost)
	bearer := &middleware.Bearer[*service.AccessClaims]{Verify: a.accessToken, OnError: a.rejectAccessToken}
	o.Handle("/userinfo", bearer.Wrap(http.HandlerFunc(a.userinfo))).Methods(http.MethodGet, http.MethodPost)
	return nil
}

func (a *App) test(w http.ResponseWriter, r *http.Request) error {
	return response.OK(w, "hello world")
}

func (a *App) testErr(w http.ResponseWriter, r *http.Request) error {
	return errors.New("error")
}
