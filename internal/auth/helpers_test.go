package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/insptop/inspirer-foundation"
	"github.com/insptop/inspirer-foundation/config"
	"github.com/insptop/inspirer-foundation/internal/auth/entity"
	"github.com/insptop/inspirer-foundation/internal/auth/service"
	"github.com/insptop/inspirer-foundation/server"
)

const (
	testPassword = "correct horse"
	rpOrigin     = "https://rp.example.com"
)

// testConfig returns the test configuration with app added to the [app]
// table.
func testConfig(app string) string {
	return `
[database]
uri = "sqlite::memory:"

[app]
app_name = "inspirer-auth"
app_endpoint = "` + rpOrigin + `"
` + app + `
[app.session]
driver = "memory"
gc_frequency = "0s"
`
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testEnv struct {
	app    *App
	booter *inspirer.Booter
	srv    *httptest.Server
	seeded service.Seeded
}

// newTestEnv boots the service on an in-memory database seeded with one app
// and one user, and serves it through the framework's server stack. extra
// holds additional keys of the [app] table.
func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.FromTOML(testConfig(extra))
	require.NoError(t, err)

	b := inspirer.NewBooter(config.Test, cfg, testLogger())
	a := New()
	require.NoError(t, a.Init(ctx, b))
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })

	require.NoError(t, entity.Migrate(a.db))
	seeded, err := a.seeder.All(ctx, testPassword)
	require.NoError(t, err)

	router := mux.NewRouter()
	server.Mount(router, b.Registry())
	require.NoError(t, a.Routes(router))
	s, err := server.New(server.Config{}, router, b.Logger(), b.Registry())
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	return &testEnv{app: a, booter: b, srv: ts, seeded: seeded}
}

// browser returns a client that keeps cookies and does not follow redirects.
func (e *testEnv) browser(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) url(path string) string {
	return e.srv.URL + path
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, res *http.Response, data interface{}) envelope {
	t.Helper()
	defer res.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func credentialJSON(username, password string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"credential": service.Credential{Type: service.CredentialUsername, Username: username, Password: password},
	})
	return string(b)
}

func postJSON(t *testing.T, c *http.Client, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		req.Header[k] = vs
	}
	res, err := c.Do(req)
	require.NoError(t, err)
	return res
}
