// CLAUDE:SUMMARY Defines cssregression config structs, parses the YAML file, fills defaults and applies env overrides.
// Package config handles cssregression configuration from a YAML file and
// the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvServerBaseURL = "CSSREGRESSION_SERVER_BASE_URL"
	EnvBrowserRemote = "CSSREGRESSION_BROWSER_REMOTE"
	EnvStorePath     = "CSSREGRESSION_STORE"
)

// Config is the top-level cssregression configuration.
type Config struct {
	CSSRegression Settings      `yaml:"cssregression"`
	Paths         PathsConfig   `yaml:"paths"`
	Browser       BrowserConfig `yaml:"browser"`
	Store         StoreConfig   `yaml:"store"`
	LogLevel      string        `yaml:"logLevel"`
}

// PathsConfig holds the directory templates the path resolver knows about.
type PathsConfig struct {
	Root           string `yaml:"root"`
	Sites          string `yaml:"sites"`
	Cache          string `yaml:"cache"`
	EntityTemplate string `yaml:"entityTemplate"`
}

// BrowserConfig controls the headless Chrome session.
type BrowserConfig struct {
	Remote            string        `yaml:"remote"`
	Bin               string        `yaml:"bin"`
	Stealth           bool          `yaml:"stealth"`
	NoSandbox         bool          `yaml:"noSandbox"`
	Block             []string      `yaml:"block"`
	ViewportHeight    int           `yaml:"viewportHeight"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
	Scroll            bool          `yaml:"scroll"`
	ScrollDelay       time.Duration `yaml:"scrollDelay"`
}

// StoreConfig locates the run history database. Empty Path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// ApplyEnv overrides file values with the CSSREGRESSION_* variables found
// through lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvServerBaseURL); ok && v != "" {
		c.CSSRegression.ServerBaseURL = v
	}
	if v, ok := lookup(EnvBrowserRemote); ok && v != "" {
		c.Browser.Remote = v
	}
	if v, ok := lookup(EnvStorePath); ok {
		c.Store.Path = v
	}
}

// Module builds the immutable module configuration from the cssregression
// section.
func (c *Config) Module() *Module {
	return NewModule(c.CSSRegression)
}

func (c *Config) applyDefaults() {
	if c.Paths.Root == "" {
		c.Paths.Root = "."
	}
	if c.Paths.Sites == "" {
		c.Paths.Sites = "${root}/sites"
	}
	if c.Paths.Cache == "" {
		c.Paths.Cache = "${root}/cache"
	}
	if c.Paths.EntityTemplate == "" {
		c.Paths.EntityTemplate = "${sites}/${site}/${entityCategory}/${entityId}"
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 100
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = 5 * time.Second
	}
	if c.Browser.ScrollDelay <= 0 {
		c.Browser.ScrollDelay = 100 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
