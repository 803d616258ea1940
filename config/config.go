// Package config loads the layered, templated TOML configuration used by
// inspirer applications.
//
// Files are looked up in <dir>/[<name>/] and merged in this order, later files
// overriding earlier ones:
//
//	default.toml
//	<env>.toml
//	<env>.local.toml
//
// Before parsing, each file is executed as a text/template with the sprig
// function map. The template data is the process environment, so
// `uri = "{{ .DATABASE_URL }}"` and `level = "{{ env "LOG_LEVEL" | default "info" }}"`
// both work.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultDir is the folder configuration is read from when none is given.
const DefaultDir = "config"

// ErrNoConfigFile is returned when neither <env>.toml nor <env>.local.toml exist.
var ErrNoConfigFile = errors.New("no configuration file found")

// NotFoundError is returned by Get when a key is absent from the configuration.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("configuration property %q not found", e.Key)
}

// IsNotFound reports whether err was caused by a missing configuration key.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// Config is a loaded, merged configuration tree.
type Config struct {
	v     *viper.Viper
	files []string
}

// Loader reads configuration for one application.
type Loader struct {
	// Name, if set, selects the <Dir>/<Name> sub folder.
	Name string
	// Dir defaults to DefaultDir.
	Dir string
	// Environ supplies the template data. It defaults to os.Environ.
	Environ func() []string
}

// Load reads and merges the configuration files for env.
func (l *Loader) Load(env Environment) (*Config, error) {
	dir := l.Dir
	if dir == "" {
		dir = DefaultDir
	}
	if l.Name != "" {
		dir = filepath.Join(dir, l.Name)
	}

	base := filepath.Join(dir, "default.toml")
	envFile := filepath.Join(dir, env.String()+".toml")
	localFile := filepath.Join(dir, env.String()+".local.toml")

	if !exists(envFile) && !exists(localFile) {
		return nil, errors.Wrapf(ErrNoConfigFile, "looked for %s and %s", envFile, localFile)
	}

	data := l.templateData()
	v := viper.New()
	v.SetConfigType("toml")

	c := &Config{v: v}
	for _, f := range []string{base, envFile, localFile} {
		if !exists(f) {
			continue
		}
		rendered, err := renderFile(f, data)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfig(bytes.NewReader(rendered)); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", f)
		}
		c.files = append(c.files, f)
	}

	return c, nil
}

func (l *Loader) templateData() map[string]string {
	environ := os.Environ
	if l.Environ != nil {
		environ = l.Environ
	}
	data := make(map[string]string)
	for _, kv := range environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		data[k] = v
	}
	return data
}

func renderFile(path string, data map[string]string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return render(filepath.Base(path), raw, data)
}

func render(name string, raw []byte, data map[string]string) ([]byte, error) {
	t, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=zero").
		Parse(string(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse template %s", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, errors.Wrapf(err, "failed to render template %s", name)
	}
	return buf.Bytes(), nil
}

func exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// FromTOML builds a Config from a single TOML document. Templates are not
// rendered. It is mostly useful in tests.
func FromTOML(doc string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return &Config{v: v}, nil
}

// Files lists the files that were merged, in merge order.
func (c *Config) Files() []string {
	return c.files
}

// IsSet reports whether key is present.
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Get decodes the value at key into out. Struct fields are matched using
// `mapstructure` tags; duration strings such as "30s" decode into
// time.Duration. A NotFoundError is returned if key is absent.
func (c *Config) Get(key string, out interface{}) error {
	if !c.v.IsSet(key) {
		return &NotFoundError{Key: key}
	}
	if err := c.v.UnmarshalKey(key, out); err != nil {
		return errors.Wrapf(err, "failed to decode configuration %q", key)
	}
	return nil
}

// Lookup is like Get, but reports a missing key with false instead of an
// error, leaving out untouched.
func (c *Config) Lookup(key string, out interface{}) (bool, error) {
	err := c.Get(key, out)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// String returns the string at key, or "" if unset.
func (c *Config) String(key string) string {
	return c.v.GetString(key)
}

// Sub returns the configuration tree rooted at key, or nil if key is unset.
func (c *Config) Sub(key string) *Config {
	sv := c.v.Sub(key)
	if sv == nil {
		return nil
	}
	return &Config{v: sv, files: c.files}
}

// Keys returns all fully qualified keys, sorted.
func (c *Config) Keys() []string {
	keys := c.v.AllKeys()
	sort.Strings(keys)
	return keys
}

// TOML re-encodes the effective configuration.
func (c *Config) TOML() ([]byte, error) {
	b, err := toml.Marshal(c.v.AllSettings())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return b, nil
}
