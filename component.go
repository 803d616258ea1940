package inspirer

import (
	"context"

	"github.com/pkg/errors"
)

// ComponentProvider creates a dependency, such as a database handle, from a
// section of the configuration.
type ComponentProvider[C, T any] interface {
	// ConfigKey names the configuration section decoded into C.
	ConfigKey() string
	// Create builds the component. Cleanup should be registered with
	// b.OnShutdown.
	Create(ctx context.Context, b *Booter, c C) (T, error)
}

// Defaulter is optionally implemented by a ComponentProvider to seed the
// configuration before the section is decoded over it.
type Defaulter[C any] interface {
	DefaultConfig() C
}

// Component decodes the provider's configuration section and creates the
// component. It fails if the section is missing.
func Component[C, T any](ctx context.Context, b *Booter, p ComponentProvider[C, T]) (T, error) {
	var (
		c    C
		zero T
	)
	if d, ok := p.(Defaulter[C]); ok {
		c = d.DefaultConfig()
	}
	if err := b.Config().Get(p.ConfigKey(), &c); err != nil {
		return zero, errors.Wrapf(err, "failed to configure component %q", p.ConfigKey())
	}

	t, err := p.Create(ctx, b, c)
	if err != nil {
		return zero, errors.Wrapf(err, "failed to create component %q", p.ConfigKey())
	}
	b.Logger().WithField("component", p.ConfigKey()).Debug("component created")
	return t, nil
}
