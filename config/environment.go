package config

import "os"

const (
	// EnvVar selects the environment whose configuration files are loaded.
	EnvVar = "INSPIRER_ENV"
	// DefaultEnvironment is used when EnvVar is unset.
	DefaultEnvironment = Development
)

// Environment names a deployment environment. The framework knows about
// Production, Development and Test, but any value is accepted and simply
// selects config/<value>.toml.
type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
	Test        Environment = "test"
)

func (e Environment) String() string {
	return string(e)
}

// Known reports whether e is one of the environments named by the framework.
func (e Environment) Known() bool {
	switch e {
	case Production, Development, Test:
		return true
	}
	return false
}

// ResolveFromEnv returns the environment named by INSPIRER_ENV, or the
// development environment if it is unset or empty.
func ResolveFromEnv() Environment {
	if v := os.Getenv(EnvVar); v != "" {
		return Environment(v)
	}
	return DefaultEnvironment
}
