package auth

import (
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/insptop/inspirer-foundation/config"
)

// ConfigKey is the configuration section of the auth service.
const ConfigKey = "app"

// SessionConfigKey is the session component's section, nested in the app
// section.
const SessionConfigKey = ConfigKey + ".session"

type Config struct {
	// AppName names the records seeded by app:init.
	AppName string `mapstructure:"app_name"`
	// AppEndpoint is the base URL of the first application. Redirect URIs
	// of the seeded application must share its origin.
	AppEndpoint string `mapstructure:"app_endpoint"`
	// PublicURL is the URL the service is reachable at, used to build issuer
	// and endpoint URLs. Required in production. Elsewhere it is derived from
	// each request's Host and X-Forwarded-Proto if empty.
	PublicURL string `mapstructure:"public_url"`
	// AuthPage is a directory holding a built login page (index.html,
	// vite.svg, assets/). The built-in page is served if empty.
	AuthPage string `mapstructure:"auth_page"`
	// SigningKey is the path to the PEM encoded P-256 key ID tokens are
	// signed with. A key is generated at startup if empty.
	SigningKey string `mapstructure:"signing_key"`
	// AccessTokenTTL is the lifetime of tokens issued by /api/login.
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	// KeysCacheFor is how long JWKS responses may be cached.
	KeysCacheFor time.Duration `mapstructure:"keys_cache_for"`
	// APIDocs serves the login API's OpenAPI document at
	// /api-docs/openapi.json and a reference page at /api-docs.
	APIDocs bool `mapstructure:"api_docs"`
}

func DefaultConfig() Config {
	return Config{
		AppName:        "inspirer-auth",
		AccessTokenTTL: time.Hour,
		KeysCacheFor:   5 * time.Minute,
	}
}

func (c Config) validate(env config.Environment) error {
	if c.PublicURL == "" {
		if env == config.Production {
			return errors.New("app.public_url must be set in production")
		}
		return nil
	}
	u, err := url.Parse(c.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("app.public_url %q must be an absolute http(s) URL without query or fragment", c.PublicURL)
	}
	return nil
}
