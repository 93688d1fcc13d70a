// Package config holds gbsite settings. Settings come from built-in defaults,
// an optional YAML file, then environment variables; command-line flags are
// applied on top by the caller.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meta-pytorch/compile-graph-break-site/internal/registry"
	"github.com/meta-pytorch/compile-graph-break-site/internal/site"
)

// Config holds all gbsite settings.
type Config struct {
	// RegistryURL is where the graph-break registry JSON is fetched from.
	RegistryURL string `yaml:"registry_url"`

	// OutputDir is the root of the generated markdown site (default "docs").
	OutputDir string `yaml:"output_dir"`

	// HTMLDir is where the html command writes rendered pages (default "site").
	HTMLDir string `yaml:"html_dir"`

	// EditURL is the base of the "add Additional Info" link on detail pages.
	EditURL string `yaml:"edit_url"`

	// Port is the preview server port (default "3000").
	Port string `yaml:"port"`

	// HTTPTimeout bounds the registry request (default 30s).
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Revalidate is how long the preview server caches the registry (default 5m).
	Revalidate time.Duration `yaml:"revalidate"`

	// LogLevel is one of debug, info, warn, error (default "info").
	LogLevel string `yaml:"log_level"`

	// AuthToken is sent as a Bearer token with the registry request.
	// Only read from the environment, never from the file.
	AuthToken string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.RegistryURL == "" {
		c.RegistryURL = registry.DefaultURL
	}
	if c.OutputDir == "" {
		c.OutputDir = "docs"
	}
	if c.HTMLDir == "" {
		c.HTMLDir = "site"
	}
	if c.EditURL == "" {
		c.EditURL = site.DefaultEditURL
	}
	if c.Port == "" {
		c.Port = "3000"
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.Revalidate == 0 {
		c.Revalidate = registry.DefaultTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads the YAML file at path (if path is non-empty), applies
// environment overrides, then fills defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("REGISTRY_URL"); v != "" {
		c.RegistryURL = v
	}
	if v := getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := getenv("GITHUB_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("REVALIDATE_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing REVALIDATE_SEC %q: %w", v, err)
		}
		if sec <= 0 {
			// Zero would read as "unset"; a negative TTL means never expire.
			c.Revalidate = -1
		} else {
			c.Revalidate = time.Duration(sec) * time.Second
		}
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}

// Addr returns the preview server listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
