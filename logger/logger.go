// Package logger builds the logrus logger shared by an application and its
// components.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/insptop/inspirer-foundation/config"
)

// EnvVar overrides the configured level when set, e.g. INSPIRER_LOG=debug.
const EnvVar = "INSPIRER_LOG"

// Format selects the log line layout.
type Format string

const (
	FormatCompact Format = "compact"
	FormatPretty  Format = "pretty"
	FormatJSON    Format = "json"
)

// Config is read from the "log" configuration key.
type Config struct {
	Enable        bool   `mapstructure:"enable"`
	Level         string `mapstructure:"level"`
	Format        Format `mapstructure:"format"`
	OverrideLevel string `mapstructure:"override_level"`
}

// DefaultConfig is used when the configuration has no "log" key.
func DefaultConfig() Config {
	return Config{
		Enable: true,
		Level:  "info",
		Format: FormatCompact,
	}
}

// ParseLevel accepts the logrus level names plus "off". The returned bool is
// false for "off".
func ParseLevel(s string) (logrus.Level, bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return logrus.InfoLevel, true, nil
	case "off", "none":
		return logrus.PanicLevel, false, nil
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return 0, false, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, true, nil
}

// New returns a logger configured by c. Every entry written through the
// returned logger's WithFields carries app and env; callers normally wrap it
// with Fields.
func New(c Config, out io.Writer) (*logrus.Logger, error) {
	l := logrus.New()
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	if !c.Enable {
		l.SetOutput(io.Discard)
		l.SetLevel(logrus.PanicLevel)
		return l, nil
	}

	level := c.Level
	if c.OverrideLevel != "" {
		level = c.OverrideLevel
	}
	if v := os.Getenv(EnvVar); v != "" {
		level = v
	}
	lvl, on, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if !on {
		l.SetOutput(io.Discard)
	}
	l.SetLevel(lvl)

	switch c.Format {
	case "", FormatCompact:
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	case FormatPretty:
		l.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true})
	case FormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
	return l, nil
}

// Fields tags l with the application name and environment.
func Fields(l logrus.FieldLogger, app string, env config.Environment) logrus.FieldLogger {
	return l.WithFields(logrus.Fields{
		"app": app,
		"env": env.String(),
	})
}
