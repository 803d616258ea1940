package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/insptop/inspirer-foundation"
	"github.com/insptop/inspirer-foundation/config"
	"github.com/insptop/inspirer-foundation/internal/auth/entity"
	"github.com/insptop/inspirer-foundation/response"
)

func TestTestRoutes(t *testing.T) {
	env := newTestEnv(t, "")

	res, err := http.Get(env.url("/test"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var s string
	require.True(t, decodeEnvelope(t, res, &s).Success)
	require.Equal(t, "hello world", s)

	res, err = http.Get(env.url("/test-err"))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	var detail response.ErrorDetail
	require.False(t, decodeEnvelope(t, res, &detail).Success)
	require.Equal(t, response.ErrorDetail{Error: "Bad Request"}, detail)
}

func TestLoginPage(t *testing.T) {
	env := newTestEnv(t, "")
	c := env.browser(t)

	other := &entity.Application{
		UUID:        uuid.New(),
		DomainUUID:  env.seeded.Domain,
		Name:        "other",
		DisplayName: "Other",
		Secret:      []byte("0123456789abcdef"),
		Setting:     entity.DefaultAppSetting(),
	}
	require.NoError(t, env.app.db.Create(other).Error)

	res, err := c.Get(env.url("/login?app_id=" + env.seeded.App.String()))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, res.Header.Get("Content-Type"), "text/html")
	require.Contains(t, string(body), "Sign in to inspirer-auth")

	// Same app again is fine.
	res, err = c.Get(env.url("/login?app_id=" + env.seeded.App.String()))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, err = c.Get(env.url("/login?app_id=" + other.UUID.String()))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	var detail response.ErrorDetail
	decodeEnvelope(t, res, &detail)
	require.Equal(t, "Bad Request", detail.Error)

	for _, tc := range []struct {
		Name  string
		Query string
		Code  int
	}{
		{Name: "missing app", Query: "app_id=" + uuid.NewString(), Code: http.StatusNotFound},
		{Name: "malformed app", Query: "app_id=nope", Code: http.StatusBadRequest},
		{Name: "no app", Code: http.StatusBadRequest},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			res, err := env.browser(t).Get(env.url("/login?" + tc.Query))
			require.NoError(t, err)
			res.Body.Close()
			require.Equal(t, tc.Code, res.StatusCode)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, "")

	t.Run("requires a bound app", func(t *testing.T) {
		res := postJSON(t, env.browser(t), env.url("/login"), credentialJSON("inspirer-auth", testPassword), nil)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
		var detail response.ErrorDetail
		decodeEnvelope(t, res, &detail)
		require.Equal(t, "Bad Request", detail.Error)
	})

	c := env.browser(t)
	res, err := c.Get(env.url("/login?app_id=" + env.seeded.App.String()))
	require.NoError(t, err)
	res.Body.Close()

	for _, tc := range []struct {
		Name      string
		Body      string
		Code      int
		WantError string
	}{
		{Name: "malformed body", Body: `{`, Code: http.StatusBadRequest, WantError: "Bad Request"},
		{Name: "unknown credential", Body: `{"credential":{"type":"phone","payload":{}}}`, Code: http.StatusBadRequest, WantError: "Bad Request"},
		{Name: "unknown user", Body: credentialJSON("nobody", testPassword), Code: http.StatusNotFound, WantError: "User not exists"},
		{Name: "wrong password", Body: credentialJSON("inspirer-auth", "wrong"), Code: http.StatusUnauthorized, WantError: "unauthorized"},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			res := postJSON(t, c, env.url("/login"), tc.Body, nil)
			require.Equal(t, tc.Code, res.StatusCode)
			var detail response.ErrorDetail
			require.False(t, decodeEnvelope(t, res, &detail).Success)
			require.Equal(t, tc.WantError, detail.Error)
		})
	}

	res = postJSON(t, c, env.url("/login"), credentialJSON("inspirer-auth", testPassword), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var lr loginResponse
	require.True(t, decodeEnvelope(t, res, &lr).Success)
	require.Equal(t, "Bearer", lr.TokenType)
	require.NotEmpty(t, lr.IDToken)
	require.Empty(t, lr.RedirectTo, "no authorization request was pending")
	require.EqualValues(t, 604800, lr.ExpiresIn)

	app, err := env.app.apps.Find(context.Background(), env.seeded.App)
	require.NoError(t, err)
	claims, err := env.app.tokens.ParseAccessToken(app, lr.AccessToken)
	require.NoError(t, err)
	require.Equal(t, env.seeded.User.String(), claims.Subject)

	req, _ := http.NewRequest(http.MethodGet, env.url("/app/"+env.seeded.App.String()+"/oidc/userinfo"), nil)
	req.Header.Set("Authorization", "Bearer "+lr.AccessToken)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var info map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&info))
	require.Equal(t, env.seeded.User.String(), info["sub"])
	require.Equal(t, "inspirer-auth", info["preferred_username"])
}

func TestAPILogin(t *testing.T) {
	env := newTestEnv(t, "")
	c := http.DefaultClient

	res := postJSON(t, c, env.url("/api/login"), credentialJSON("inspirer-auth", testPassword), nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()

	res = postJSON(t, c, env.url("/api/login"), credentialJSON("inspirer-auth", testPassword), http.Header{
		AppIDHeader: {"not-a-uuid"},
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()

	res = postJSON(t, c, env.url("/api/login"), credentialJSON("inspirer-auth", testPassword), http.Header{
		AppIDHeader: {uuid.NewString()},
	})
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()

	res = postJSON(t, c, env.url("/api/login"), credentialJSON("inspirer-auth", testPassword), http.Header{
		AppIDHeader: {env.seeded.App.String()},
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var lr loginResponse
	decodeEnvelope(t, res, &lr)
	require.Equal(t, "Bearer", lr.TokenType)
	require.Empty(t, lr.IDToken)

	app, err := env.app.apps.Find(context.Background(), env.seeded.App)
	require.NoError(t, err)
	claims, err := env.app.tokens.ParseAccessToken(app, lr.AccessToken)
	require.NoError(t, err)
	require.Equal(t, apiLoginScope, claims.Scope)
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestAuthorizeErrors(t *testing.T) {
	env := newTestEnv(t, "")
	appID := env.seeded.App.String()

	params := func(kv ...string) string {
		v := url.Values{
			"response_type": {"code"},
			"client_id":     {appID},
			"redirect_uri":  {rpOrigin + "/callback"},
			"scope":         {"openid"},
			"state":         {"xyz"},
		}
		for i := 0; i < len(kv); i += 2 {
			v.Set(kv[i], kv[i+1])
		}
		return v.Encode()
	}

	for _, tc := range []struct {
		Name      string
		Path      string
		Code      int
		WantError string
	}{
		{Name: "unknown app", Path: "/app/" + uuid.NewString() + "/oidc/auth?" + params(), Code: http.StatusNotFound},
		{Name: "malformed app", Path: "/app/nope/oidc/auth?" + params(), Code: http.StatusNotFound},
		{Name: "other client", Path: "/app/" + appID + "/oidc/auth?" + params("client_id", uuid.NewString()), Code: http.StatusBadRequest},
		{Name: "foreign redirect", Path: "/app/" + appID + "/oidc/auth?" + params("redirect_uri", "https://evil.example.com/cb"), Code: http.StatusBadRequest},
		{Name: "implicit", Path: "/app/" + appID + "/oidc/auth?" + params("response_type", "token"), Code: http.StatusFound, WantError: "unsupported_response_type"},
		{Name: "no openid", Path: "/app/" + appID + "/oidc/auth?" + params("scope", "email"), Code: http.StatusFound, WantError: "invalid_scope"},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			res, err := env.browser(t).Get(env.url(tc.Path))
			require.NoError(t, err)
			res.Body.Close()
			require.Equal(t, tc.Code, res.StatusCode)
			if tc.WantError == "" {
				require.Empty(t, res.Header.Get("Location"), "errors before the redirect uri is verified must not redirect")
				return
			}
			loc, err := url.Parse(res.Header.Get("Location"))
			require.NoError(t, err)
			require.Equal(t, "rp.example.com", loc.Host)
			require.Equal(t, tc.WantError, loc.Query().Get("error"))
			require.Equal(t, "xyz", loc.Query().Get("state"))
		})
	}
}

func TestTokenEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	res, err := http.PostForm(env.url("/app/"+env.seeded.App.String()+"/oidc/token"), url.Values{
		"grant_type": {"authorization_code"},
		"code":       {"abc"},
	})
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, "unsupported_grant_type", body["error"])
}

func TestUserinfoUnauthorized(t *testing.T) {
	env := newTestEnv(t, "")
	u := env.url("/app/" + env.seeded.App.String() + "/oidc/userinfo")

	for _, tc := range []struct {
		Name      string
		Header    string
		Challenge string
	}{
		{Name: "no token", Challenge: "Bearer"},
		{Name: "garbage", Header: "Bearer garbage", Challenge: `Bearer error="invalid_token"`},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, u, nil)
			if tc.Header != "" {
				req.Header.Set("Authorization", tc.Header)
			}
			res, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			res.Body.Close()
			require.Equal(t, http.StatusUnauthorized, res.StatusCode)
			require.Equal(t, tc.Challenge, res.Header.Get("WWW-Authenticate"))
		})
	}
}

func TestDiscoveryDocument(t *testing.T) {
	env := newTestEnv(t, "")
	iss := env.url("/app/" + env.seeded.App.String() + "/oidc")

	res, err := http.Get(iss + "/.well-known/openid-configuration")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var md map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&md))
	require.Equal(t, iss, md["issuer"])
	require.Equal(t, iss+"/auth", md["authorization_endpoint"])
	require.Equal(t, iss+"/.well-known/jwks.json", md["jwks_uri"])
	require.Equal(t, []interface{}{"ES256"}, md["id_token_signing_alg_values_supported"])
	require.Equal(t, false, md["claims_parameter_supported"])
	require.Equal(t, false, md["request_parameter_supported"])
	require.Len(t, md["claims_supported"], 12)
	require.NotContains(t, md, "grant_types_supported", "no grant is accepted by the token endpoint")

	res, err = http.Get(env.url("/app/" + uuid.NewString() + "/oidc/.well-known/openid-configuration"))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPublicURLOverridesIssuer(t *testing.T) {
	env := newTestEnv(t, "")
	env.app.cfg.PublicURL = "https://auth.example.com/"

	res, err := http.Get(env.url("/app/" + env.seeded.App.String() + "/oidc/.well-known/openid-configuration"))
	require.NoError(t, err)
	defer res.Body.Close()

	var md map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&md))
	require.Equal(t, "https://auth.example.com/app/"+env.seeded.App.String()+"/oidc", md["issuer"])
}

func TestAuthPage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	for name, content := range map[string]string{
		"index.html":    "<html>spa</html>",
		"vite.svg":      "<svg></svg>",
		"assets/app.js": "console.log(1)",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	env := newTestEnv(t, "auth_page = \""+filepath.ToSlash(dir)+"\"\n")
	c := env.browser(t)

	for path, want := range map[string]string{
		"/login?app_id=" + env.seeded.App.String(): "<html>spa</html>",
		"/vite.svg":      "<svg></svg>",
		"/assets/app.js": "console.log(1)",
	} {
		res, err := c.Get(env.url(path))
		require.NoError(t, err)
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode, path)
		require.Equal(t, want, strings.TrimSpace(string(body)), path)
	}
}

func TestInitErrors(t *testing.T) {
	for _, tc := range []struct {
		Name    string
		Env     config.Environment
		Config  string
		WantErr string
	}{
		{
			Name:    "production without public url",
			Env:     config.Production,
			Config:  testConfig(""),
			WantErr: "app.public_url must be set in production",
		},
		{
			Name:    "relative public url",
			Config:  testConfig("public_url = \"auth.example.com\"\n"),
			WantErr: "must be an absolute http(s) URL",
		},
		{
			Name:    "auth page without index",
			Config:  testConfig("auth_page = \"" + filepath.ToSlash(t.TempDir()) + "\"\n"),
			WantErr: "has no index.html",
		},
		{
			Name:    "missing signing key",
			Config:  testConfig("signing_key = \"" + filepath.ToSlash(filepath.Join(t.TempDir(), "missing.pem")) + "\"\n"),
			WantErr: "missing.pem",
		},
		{
			Name: "no database",
			Config: `
[app]
app_name = "x"
[app.session]
driver = "memory"
`,
			WantErr: `failed to configure component "database"`,
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			cfg, err := config.FromTOML(tc.Config)
			require.NoError(t, err)
			env := tc.Env
			if env == "" {
				env = config.Test
			}
			b := inspirer.NewBooter(env, cfg, testLogger())
			defer b.Shutdown(context.Background())
			require.ErrorContains(t, New().Init(context.Background(), b), tc.WantErr)
		})
	}
}

func TestInitProductionWithPublicURL(t *testing.T) {
	cfg, err := config.FromTOML(testConfig("public_url = \"https://auth.example.com\"\n"))
	require.NoError(t, err)
	b := inspirer.NewBooter(config.Production, cfg, testLogger())
	defer b.Shutdown(context.Background())
	require.NoError(t, New().Init(context.Background(), b))
}
