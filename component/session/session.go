// Package session provides the HTTP session store component. Sessions are
// either kept entirely in a signed cookie, or server-side in memory, redis or
// a bbolt file with only the session ID in the cookie.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/insptop/inspirer-foundation"
)

// Driver selects where session values live.
type Driver string

const (
	DriverCookie Driver = "cookie"
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
	DriverBolt   Driver = "bolt"
)

// ConfigKey is the configuration section read by Provider.
const ConfigKey = "session"

// Config configures the session store.
type Config struct {
	Driver Driver `mapstructure:"driver"`

	// Name of the session cookie.
	Name string `mapstructure:"session_name"`
	// Expiry sets the cookie Max-Age. Zero makes it a browser session cookie.
	Expiry time.Duration `mapstructure:"session_expiry"`
	// Secure sets the cookie Secure attribute.
	Secure bool `mapstructure:"with_secure"`

	// Base64 encoded keys. The authentication key is 32 or 64 bytes, the
	// optional encryption key 16, 24 or 32 bytes.
	AuthenticationKey string `mapstructure:"authentication_key"`
	EncryptionKey     string `mapstructure:"encryption_key"`

	// Redis driver.
	DatabaseURL string `mapstructure:"database_url"`
	PoolSize    int    `mapstructure:"pool_size"`
	KeyPrefix   string `mapstructure:"key_prefix"`

	// Bolt driver database file.
	Path string `mapstructure:"path"`

	// How often expired sessions are purged by the memory and bolt drivers.
	GCFrequency time.Duration `mapstructure:"gc_frequency"`
}

func DefaultConfig() Config {
	return Config{
		Driver:      DriverMemory,
		Name:        "inspirer_session",
		Path:        "sessions.db",
		KeyPrefix:   DefaultKeyPrefix,
		GCFrequency: 5 * time.Minute,
	}
}

func decodeKey(name, b64 string, lengths ...int) ([]byte, error) {
	if b64 == "" {
		return nil, nil
	}
	k, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to base64 decode %s", name)
	}
	for _, l := range lengths {
		if len(k) == l {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%s must be one of %v bytes of random data, got %d", name, lengths, len(k))
}

func keyPair(c Config, logger logrus.FieldLogger) ([]byte, []byte, error) {
	auth, err := decodeKey("authentication_key", c.AuthenticationKey, 32, 64)
	if err != nil {
		return nil, nil, err
	}
	enc, err := decodeKey("encryption_key", c.EncryptionKey, 16, 24, 32)
	if err != nil {
		return nil, nil, err
	}
	if auth == nil {
		logger.Warn("no session authentication_key configured, using a random key; sessions will not survive a restart")
		auth = securecookie.GenerateRandomKey(64)
		if enc == nil && c.Driver == DriverCookie {
			enc = securecookie.GenerateRandomKey(32)
		}
	}
	return auth, enc, nil
}

// Handle is the opened session store, plus the backend behind it for the
// server-side drivers.
type Handle struct {
	sessions.Store
	Backend Backend
	// Name is the configured cookie name.
	Name string

	logger logrus.FieldLogger
}

// Session returns the request's session. If the cookie was tampered with or
// has expired, the store returns both a new (empty) session and an error; the
// empty session is used in that case. Failures to load the session the cookie
// points to are returned.
func (h *Handle) Session(r *http.Request) (*sessions.Session, error) {
	session, err := h.Get(r, h.Name)
	if err != nil && session != nil && session.IsNew && isCookieError(err) {
		h.logger.WithError(err).Info("Session decoding failed, a new empty session will be used")
		err = nil
	}
	return session, err
}

// isCookieError reports whether err comes from decoding the session cookie
// itself.
func isCookieError(err error) bool {
	var cerr securecookie.Error
	return errors.As(err, &cerr) && cerr.IsDecode()
}

// Close releases the backend, if any.
func (h *Handle) Close() error {
	if h.Backend == nil {
		return nil
	}
	return h.Backend.Close()
}

// Open creates the store configured by c.
func Open(ctx context.Context, c Config, logger logrus.FieldLogger) (*Handle, error) {
	if c.Name == "" {
		c.Name = DefaultConfig().Name
	}
	auth, enc, err := keyPair(c, logger)
	if err != nil {
		return nil, err
	}
	pairs := [][]byte{auth}
	if enc != nil {
		pairs = append(pairs, enc)
	}

	maxAge := int(c.Expiry / time.Second)

	if c.Driver == DriverCookie {
		cs := sessions.NewCookieStore(pairs...)
		cs.Options.HttpOnly = true
		cs.Options.Secure = c.Secure
		if maxAge > 0 {
			cs.MaxAge(maxAge)
		} else {
			cs.Options.MaxAge = 0
		}
		return &Handle{Store: cs, Name: c.Name, logger: logger}, nil
	}

	var backend Backend
	switch c.Driver {
	case DriverMemory, "":
		backend = NewMemoryBackend()
	case DriverRedis:
		if c.DatabaseURL == "" {
			return nil, errors.New("session driver redis requires database_url")
		}
		backend, err = NewRedisBackend(ctx, c.DatabaseURL, c.PoolSize, c.KeyPrefix)
	case DriverBolt:
		backend, err = NewBoltBackend(c.Path, 0o600)
	default:
		return nil, fmt.Errorf("unknown session driver %q", c.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := NewStore(backend, pairs...)
	s.Options.Secure = c.Secure
	s.MaxAge(maxAge)
	return &Handle{Store: s, Backend: backend, Name: c.Name, logger: logger}, nil
}

type garbageCollector interface {
	GarbageCollect() int
}

type fallibleGarbageCollector interface {
	GarbageCollect() (int, error)
}

func startGarbageCollection(ctx context.Context, b Backend, frequency time.Duration, logger logrus.FieldLogger) {
	var gc func() (int, error)
	switch b := b.(type) {
	case garbageCollector:
		gc = func() (int, error) { return b.GarbageCollect(), nil }
	case fallibleGarbageCollector:
		gc = b.GarbageCollect
	default:
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(frequency):
				if n, err := gc(); err != nil {
					logger.Errorf("session garbage collection failed: %v", err)
				} else if n > 0 {
					logger.Infof("session garbage collection run, deleted sessions=%d", n)
				}
			}
		}
	}()
}

// Provider creates the session store from the "session" section. Expired
// server-side sessions are purged in the background until shutdown.
type Provider struct {
	// Key overrides the configuration section, e.g. "app.session".
	Key string
}

var _ inspirer.ComponentProvider[Config, *Handle] = Provider{}

func (p Provider) ConfigKey() string {
	if p.Key != "" {
		return p.Key
	}
	return ConfigKey
}

func (Provider) DefaultConfig() Config {
	return DefaultConfig()
}

func (p Provider) Create(ctx context.Context, b *inspirer.Booter, c Config) (*Handle, error) {
	logger := b.Logger().WithField("component", "session")
	h, err := Open(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	logger.WithField("driver", c.Driver).Debug("session store ready")

	gcCtx, cancel := context.WithCancel(context.Background())
	if h.Backend != nil && c.GCFrequency > 0 {
		startGarbageCollection(gcCtx, h.Backend, c.GCFrequency, logger)
	}
	b.OnShutdown(func(context.Context) error {
		cancel()
		return h.Close()
	})
	return h, nil
}
