package auth

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/insptop/inspirer-foundation/discovery"
	"github.com/insptop/inspirer-foundation/internal/auth/core"
	"github.com/insptop/inspirer-foundation/internal/auth/entity"
	"github.com/insptop/inspirer-foundation/internal/auth/service"
	"github.com/insptop/inspirer-foundation/middleware"
	"github.com/insptop/inspirer-foundation/response"
)

var (
	scopesSupported = []string{"openid", "email", "profile"}
	claimsSupported = []string{
		"sub", "aud", "email", "email_verified", "exp", "iat", "iss",
		"name", "given_name", "family_name", "picture", "locale",
	}
)

func (a *App) authPageIndex() string {
	return filepath.Join(a.cfg.AuthPage, "index.html")
}

// baseURL is the configured public URL, or the one the request was made to.
func (a *App) baseURL(r *http.Request) string {
	if a.cfg.PublicURL != "" {
		return strings.TrimSuffix(a.cfg.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

// issuer is the OpenID Provider identifier of app.
func (a *App) issuer(r *http.Request, app *entity.Application) string {
	return a.baseURL(r) + "/app/" + app.UUID.String() + "/oidc"
}

// routeApp returns the application addressed by the app_id route variable.
func (a *App) routeApp(r *http.Request) (*entity.Application, error) {
	id, err := uuid.Parse(mux.Vars(r)["app_id"])
	if err != nil {
		return nil, response.NotFound()
	}
	return a.apps.Find(r.Context(), id)
}

// oidcApp is routeApp for the protocol endpoints, which report errors as
// plain text.
func (a *App) oidcApp(w http.ResponseWriter, r *http.Request) *entity.Application {
	app, err := a.routeApp(r)
	if err != nil {
		herr := &core.HTTPError{Code: http.StatusNotFound, Message: "unknown application", Cause: err}
		var rerr *response.Error
		if errors.As(err, &rerr) && rerr.Code != http.StatusNotFound {
			herr = &core.HTTPError{Code: http.StatusInternalServerError, Cause: err}
		}
		a.writeError(w, r, herr)
		return nil
	}
	return app
}

func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.WithError(err).WithField("path", r.URL.Path).Info("oidc request failed")
	if werr := core.WriteError(w, r, err); werr != nil {
		a.logger.WithError(werr).Warn("failed to write error response")
	}
}

func (a *App) openIDConfiguration(w http.ResponseWriter, r *http.Request) error {
	app, err := a.routeApp(r)
	if err != nil {
		return err
	}

	iss := a.issuer(r, app)
	h, err := discovery.NewConfigurationHandler(&discovery.ProviderMetadata{
		Issuer:                iss,
		AuthorizationEndpoint: iss + "/auth",
		TokenEndpoint:         iss + "/token",
		UserinfoEndpoint:      iss + "/userinfo",
		JWKSURI:               iss + "/.well-known/jwks.json",
		ScopesSupported:       scopesSupported,
		ClaimsSupported:       claimsSupported,
	}, discovery.WithCoreDefaults())
	if err != nil {
		return response.Internal(err)
	}
	h.ServeHTTP(w, r)
	return nil
}

// authorize validates an authentication request, remembers it in the session
// and sends the user to log in.
func (a *App) authorize(w http.ResponseWriter, r *http.Request) {
	app := a.oidcApp(w, r)
	if app == nil {
		return
	}

	origin, err := url.Parse(app.Setting.BaseSetting.Endpoint)
	if err != nil {
		a.writeError(w, r, &core.HTTPError{Code: http.StatusInternalServerError, CauseMsg: "invalid app endpoint", Cause: err})
		return
	}

	ar, err := core.ParseAuthRequest(r, core.Client{ID: app.UUID.String(), Origin: origin})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	serverErr := func(err error) {
		a.writeError(w, r, &core.AuthError{
			State:       ar.State,
			Code:        core.AuthErrorCodeServerError,
			RedirectURI: ar.RedirectURI,
			Cause:       err,
		})
	}

	sess, err := a.sessions.Session(r)
	if err != nil {
		serverErr(err)
		return
	}
	raw, err := json.Marshal(ar)
	if err != nil {
		serverErr(err)
		return
	}
	sess.Values[sessionAppID] = app.UUID.String()
	sess.Values[sessionAuthRequest] = string(raw)
	for _, p := range ar.Prompt {
		if p == "login" {
			delete(sess.Values, sessionUserID)
		}
	}
	if err := sess.Save(r, w); err != nil {
		serverErr(err)
		return
	}

	http.Redirect(w, r, "/login?"+url.Values{"app_id": {app.UUID.String()}}.Encode(), http.StatusFound)
}

// token only reports that no grant is supported; codes are never issued.
func (a *App) token(w http.ResponseWriter, r *http.Request) {
	if a.oidcApp(w, r) == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		a.writeError(w, r, &core.TokenError{Code: core.TokenErrorCodeInvalidRequest, Description: "failed to parse request", Cause: err})
		return
	}
	if r.PostFormValue("grant_type") == "" {
		a.writeError(w, r, &core.TokenError{Code: core.TokenErrorCodeInvalidRequest, Description: "grant_type must be specified"})
		return
	}
	a.writeError(w, r, &core.TokenError{
		Code:        core.TokenErrorCodeUnsupportedGrantType,
		Description: "grant type " + r.PostFormValue("grant_type") + " is not supported",
	})
}

// accessToken verifies a bearer token against the secret of the routed app.
func (a *App) accessToken(r *http.Request, token string) (*service.AccessClaims, error) {
	app, err := a.routeApp(r)
	if err != nil {
		return nil, err
	}
	return a.tokens.ParseAccessToken(app, token)
}

func invalidToken(err error) *core.HTTPError {
	return &core.HTTPError{
		Code:            http.StatusUnauthorized,
		Message:         "invalid access token",
		Cause:           err,
		WWWAuthenticate: `Bearer error="invalid_token"`,
	}
}

func (a *App) rejectAccessToken(w http.ResponseWriter, r *http.Request, err error) {
	herr := invalidToken(err)
	var rerr *response.Error
	switch {
	case errors.Is(err, middleware.ErrNoToken):
		herr = &core.HTTPError{Code: http.StatusUnauthorized, Message: "bearer token required", WWWAuthenticate: "Bearer"}
	case errors.As(err, &rerr) && rerr.Code == http.StatusNotFound:
		herr = &core.HTTPError{Code: http.StatusNotFound, Message: "unknown application", Cause: err}
	case errors.As(err, &rerr):
		herr = &core.HTTPError{Code: http.StatusInternalServerError, Cause: err}
	}
	a.writeError(w, r, herr)
}

// userinfo returns the claims of the user an access token was issued to.
//
// https://openid.net/specs/openid-connect-core-1_0.html#UserInfo
func (a *App) userinfo(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext[*service.AccessClaims](r.Context())

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		a.writeError(w, r, invalidToken(err))
		return
	}
	user, err := a.users.Find(r.Context(), id)
	if err != nil {
		a.writeError(w, r, invalidToken(err))
		return
	}

	info := user.Profile.Claims(strings.Fields(claims.Scope))
	info["sub"] = user.UUID.String()
	if err := response.JSON(w, http.StatusOK, info); err != nil {
		a.logger.WithError(err).Warn("failed to write userinfo")
	}
}
