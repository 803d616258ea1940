package auth

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/pkg/errors"

	"github.com/insptop/inspirer-foundation/internal/auth/core"
	"github.com/insptop/inspirer-foundation/internal/auth/entity"
	"github.com/insptop/inspirer-foundation/internal/auth/service"
	"github.com/insptop/inspirer-foundation/response"
)

const (
	// AppIDHeader names the application a /api/login request is for.
	AppIDHeader = "X-Auth-App-Id"

	sessionAppID       = "app_id"
	sessionUserID      = "user_id"
	sessionAuthRequest = "auth_request"

	// apiLoginScope is granted to tokens issued by /api/login.
	apiLoginScope = "openid profile email phone"
)

// errInvalidRequest is answered like any other client error, 400 Bad Request.
var errInvalidRequest = errors.New("Invalid request")

type loginRequest struct {
	Credential service.Credential `json:"credential"`
}

type loginResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	// RedirectTo returns the user to the relying party that started an
	// authorization request.
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (a *App) session(r *http.Request) (*sessions.Session, error) {
	s, err := a.sessions.Session(r)
	if err != nil {
		return nil, response.Internal(errors.Wrap(err, "failed to load session"))
	}
	return s, nil
}

// loginPage binds the session to the application the user signs in to, and
// serves the login page.
func (a *App) loginPage(w http.ResponseWriter, r *http.Request) error {
	appID, err := uuid.Parse(r.URL.Query().Get("app_id"))
	if err != nil {
		return errors.Wrap(err, "invalid app_id")
	}
	app, err := a.apps.Find(r.Context(), appID)
	if err != nil {
		return err
	}

	sess, err := a.session(r)
	if err != nil {
		return err
	}
	if bound, ok := sess.Values[sessionAppID].(string); ok && bound != "" {
		if bound != appID.String() {
			return errInvalidRequest
		}
	} else {
		sess.Values[sessionAppID] = appID.String()
		if err := sess.Save(r, w); err != nil {
			return response.Internal(errors.Wrap(err, "failed to save session"))
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	if a.cfg.AuthPage != "" {
		http.ServeFile(w, r, a.authPageIndex())
		return nil
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return loginTemplate.Execute(w, struct {
		AppName  string
		LoginURL string
	}{
		AppName:  app.DisplayName,
		LoginURL: "/login",
	})
}

// login authenticates the user for the application bound to the session.
func (a *App) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errors.Wrap(err, "failed to decode login request")
	}

	sess, err := a.session(r)
	if err != nil {
		return err
	}
	bound, _ := sess.Values[sessionAppID].(string)
	appID, err := uuid.Parse(bound)
	if err != nil {
		return errInvalidRequest
	}
	a.logger.WithField("app_id", appID).Trace("Received login request")

	app, err := a.apps.Find(r.Context(), appID)
	if err != nil {
		return err
	}
	user, err := a.users.FindByCredential(r.Context(), req.Credential)
	if err != nil {
		return err
	}
	sess.Values[sessionUserID] = user.UUID.String()

	scopes := strings.Fields(apiLoginScope)
	var (
		nonce      string
		redirectTo string
	)
	if ar := pendingAuthRequest(sess, app); ar != nil {
		scopes = ar.Scopes
		nonce = ar.Nonce
		redirectTo = authResponseURL(ar)
		delete(sess.Values, sessionAuthRequest)
	}

	oidc := app.Setting.OIDCSetting
	accessTTL := time.Duration(oidc.AccessTokenExpireIn) * time.Second
	at, err := a.tokens.AccessToken(app, user, strings.Join(scopes, " "), accessTTL)
	if err != nil {
		return response.Internal(err)
	}
	it, err := a.tokens.IDToken(a.issuer(r, app), app, user, nonce, scopes, time.Duration(oidc.IDTokenExpireIn)*time.Second)
	if err != nil {
		return response.Internal(err)
	}

	if err := sess.Save(r, w); err != nil {
		return response.Internal(errors.Wrap(err, "failed to save session"))
	}

	return response.OK(w, loginResponse{
		TokenType:   "Bearer",
		AccessToken: at,
		IDToken:     it,
		ExpiresIn:   int64(accessTTL / time.Second),
		RedirectTo:  redirectTo,
	})
}

// apiLogin authenticates a user directly, for first party clients that do
// not go through the browser flow.
func (a *App) apiLogin(w http.ResponseWriter, r *http.Request) error {
	appID, err := uuid.Parse(r.Header.Get(AppIDHeader))
	if err != nil {
		return errors.Wrapf(err, "invalid %s header", AppIDHeader)
	}
	a.logger.WithField("app_id", appID).Debug("Received login request")

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errors.Wrap(err, "failed to decode login request")
	}

	app, err := a.apps.Find(r.Context(), appID)
	if err != nil {
		return err
	}
	user, err := a.users.FindByCredential(r.Context(), req.Credential)
	if err != nil {
		return err
	}

	at, err := a.tokens.AccessToken(app, user, apiLoginScope, a.cfg.AccessTokenTTL)
	if err != nil {
		return response.Internal(err)
	}
	return response.OK(w, loginResponse{
		TokenType:   "Bearer",
		AccessToken: at,
	})
}

func pendingAuthRequest(sess *sessions.Session, app *entity.Application) *core.AuthRequest {
	raw, ok := sess.Values[sessionAuthRequest].(string)
	if !ok {
		return nil
	}
	var ar core.AuthRequest
	if err := json.Unmarshal([]byte(raw), &ar); err != nil || ar.ClientID != app.UUID.String() {
		return nil
	}
	return &ar
}

// authResponseURL returns the user to the client's redirect URI with the
// request's state.
func authResponseURL(ar *core.AuthRequest) string {
	u, err := url.Parse(ar.RedirectURI)
	if err != nil {
		return ""
	}
	if ar.State != "" {
		q := u.Query()
		q.Set("state", ar.State)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
