package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meta-pytorch/compile-graph-break-site/internal/registry"
	"github.com/meta-pytorch/compile-graph-break-site/internal/site"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	c := Default()
	assert.Equal(t, registry.DefaultURL, c.RegistryURL)
	assert.Equal(t, "docs", c.OutputDir)
	assert.Equal(t, "site", c.HTMLDir)
	assert.Equal(t, site.DefaultEditURL, c.EditURL)
	assert.Equal(t, "3000", c.Port)
	assert.Equal(t, ":3000", c.Addr())
	assert.Equal(t, 30*time.Second, c.HTTPTimeout)
	assert.Equal(t, 5*time.Minute, c.Revalidate)
	assert.Empty(t, c.AuthToken)

	l, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gbsite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
registry_url: https://mirror.example.com/registry.json
output_dir: out/docs
http_timeout: 5s
revalidate: 1m
log_level: debug
`), 0o644))
	clearEnv(t)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://mirror.example.com/registry.json", c.RegistryURL)
	assert.Equal(t, "out/docs", c.OutputDir)
	assert.Equal(t, "site", c.HTMLDir)
	assert.Equal(t, 5*time.Second, c.HTTPTimeout)
	assert.Equal(t, time.Minute, c.Revalidate)

	l, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gbsite.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry_url: https://file.example.com/r.json\nport: \"8000\"\n"), 0o644))
	clearEnv(t)
	t.Setenv("REGISTRY_URL", "https://env.example.com/r.json")
	t.Setenv("PORT", "9000")
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("REVALIDATE_SEC", "42")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/r.json", c.RegistryURL)
	assert.Equal(t, "9000", c.Port)
	assert.Equal(t, "tok", c.AuthToken)
	assert.Equal(t, 42*time.Second, c.Revalidate)
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("output_dir: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parsing config file")

	t.Setenv("REVALIDATE_SEC", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "REVALIDATE_SEC")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "loud")
	_, err := Load("")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestApplyEnv_NonPositiveRevalidateNeverExpires(t *testing.T) {
	t.Parallel()
	var c Config
	env := map[string]string{"REVALIDATE_SEC": "0"}
	require.NoError(t, c.applyEnv(func(k string) string { return env[k] }))
	c.applyDefaults()
	assert.Negative(t, c.Revalidate)
}

// clearEnv blanks the variables Load consults so the host environment
// does not leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"REGISTRY_URL", "PORT", "GITHUB_TOKEN", "LOG_LEVEL", "REVALIDATE_SEC"} {
		t.Setenv(k, "")
	}
}
