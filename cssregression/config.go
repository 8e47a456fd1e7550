package cssregression

import (
	"github.com/hazyhaar/cssregression/cssregression/internal/config"
	"github.com/hazyhaar/cssregression/cssregression/internal/store"
)

// Config is the file and environment configuration of a Runner.
type Config = config.Config

// Run is a recorded run as listed by the history store.
type Run = store.Run

// Run kinds.
const (
	KindReference = store.KindReference
	KindTest      = store.KindTest
)

// EnvStorePath enables run history from the environment.
const EnvStorePath = config.EnvStorePath

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a YAML configuration file and fills defaults.
func LoadConfig(path string) (*Config, error) { return config.LoadFile(path) }
