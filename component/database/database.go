// Package database provides the gorm connection component.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/insptop/inspirer-foundation"
)

// ConfigKey is the configuration section read by Provider.
const ConfigKey = "database"

// Config describes a connection pool.
type Config struct {
	// URI is either postgres://..., postgresql://..., sqlite://<dsn> or
	// sqlite::memory:.
	URI string `mapstructure:"uri"`
	// EnableLogging logs every statement at info level.
	EnableLogging bool `mapstructure:"enable_logging"`

	MinConnections int           `mapstructure:"min_connections"`
	MaxConnections int           `mapstructure:"max_connections"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

// DefaultConfig is the pool used when a field is not configured.
func DefaultConfig() Config {
	return Config{
		MinConnections: 1,
		MaxConnections: 10,
		ConnectTimeout: 30 * time.Second,
		IdleTimeout:    10 * time.Minute,
	}
}

func dialector(uri string) (gorm.Dialector, bool, error) {
	switch {
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: uri}), false, nil
	case uri == "sqlite::memory:":
		return sqlite.Open(":memory:"), true, nil
	case strings.HasPrefix(uri, "sqlite://"):
		dsn := strings.TrimPrefix(uri, "sqlite://")
		return sqlite.Open(dsn), strings.Contains(dsn, ":memory:"), nil
	case uri == "":
		return nil, false, errors.New("database uri is empty")
	}
	return nil, false, fmt.Errorf("unsupported database uri %q", redact(uri))
}

// redact drops credentials from uri before it is shown anywhere.
func redact(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}

// Open connects to the database described by c and verifies the connection
// within the connect timeout.
func Open(ctx context.Context, c Config, logger logrus.FieldLogger) (*gorm.DB, error) {
	d, private, err := dialector(c.URI)
	if err != nil {
		return nil, err
	}

	gl := gormlogger.Discard
	if c.EnableLogging {
		gl = gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Info,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:               gl,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", redact(c.URI))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get connection pool")
	}
	// Every connection to an in-memory sqlite database sees its own, empty
	// database.
	if private {
		sqlDB.SetMaxOpenConns(1)
	} else if c.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(c.MaxConnections)
	}
	if c.MinConnections > 0 {
		sqlDB.SetMaxIdleConns(c.MinConnections)
	}
	if c.IdleTimeout > 0 {
		sqlDB.SetConnMaxIdleTime(c.IdleTimeout)
	}

	pingCtx := ctx
	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s", redact(c.URI))
	}

	logger.WithField("uri", redact(c.URI)).Debug("database connected")
	return db, nil
}

// Provider creates the application's *gorm.DB from the "database" section.
// The pool is exported as metrics and closed on shutdown.
type Provider struct {
	// Name labels the pool's metrics. Defaults to "default".
	Name string
}

var _ inspirer.ComponentProvider[Config, *gorm.DB] = Provider{}

func (Provider) ConfigKey() string {
	return ConfigKey
}

func (Provider) DefaultConfig() Config {
	return DefaultConfig()
}

func (p Provider) Create(ctx context.Context, b *inspirer.Booter, c Config) (*gorm.DB, error) {
	logger := b.Logger().WithField("component", ConfigKey)
	db, err := Open(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	name := p.Name
	if name == "" {
		name = "default"
	}
	if err := b.Registry().Register(collectors.NewDBStatsCollector(sqlDB, name)); err != nil {
		logger.WithError(err).Warn("failed to register database metrics")
	}

	b.OnShutdown(func(context.Context) error {
		logger.Debug("closing database")
		return sqlDB.Close()
	})
	return db, nil
}
