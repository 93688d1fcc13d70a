package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const registryJSON = `{
	"GB0001": [{"Gb_type": "T", "Context": "C", "Explanation": "E", "Hints": ["h1","h2"]}],
	"GB0002": [{"Gb_type": "U", "Context": "C2", "Explanation": "E2"}]
}`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"REGISTRY_URL", "PORT", "GITHUB_TOKEN", "LOG_LEVEL", "REVALIDATE_SEC"} {
		t.Setenv(k, "")
	}
}

func upstream(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_GeneratesSite(t *testing.T) {
	clearEnv(t)
	srv, calls := upstream(t, http.StatusOK, registryJSON)
	docs := filepath.Join(t.TempDir(), "docs")

	// --- Act ---
	logs, err := execute(t, "--registry-url", srv.URL, "--output", docs)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "registry fetched exactly once")
	for _, rel := range []string{
		"index.md", "dashboard.md", "_config.yml",
		"_layouts/default.html", "assets/style.css",
		"gb/gb0001.md", "gb/gb0002.md",
	} {
		assert.FileExists(t, filepath.Join(docs, filepath.FromSlash(rel)))
	}
	assert.Contains(t, logs, "Site generation complete")

	dashboard, err := os.ReadFile(filepath.Join(docs, "dashboard.md"))
	require.NoError(t, err)
	assert.Contains(t, string(dashboard), "<h3>Total Graph Breaks</h3>\n        <p>2</p>")
}

func TestGenerate_SecondRunIsByteIdentical(t *testing.T) {
	clearEnv(t)
	srv, _ := upstream(t, http.StatusOK, registryJSON)
	docs := filepath.Join(t.TempDir(), "docs")

	_, err := execute(t, "generate", "--registry-url", srv.URL, "--output", docs)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(docs, "gb", "gb0001.md"))
	require.NoError(t, err)

	_, err = execute(t, "generate", "--registry-url", srv.URL, "--output", docs)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(docs, "gb", "gb0001.md"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestGenerate_FetchFailureWritesNothing(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "oops"},
		{"malformed json", http.StatusOK, "{not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := upstream(t, tt.status, tt.body)
			docs := filepath.Join(t.TempDir(), "docs")

			_, err := execute(t, "generate", "--registry-url", srv.URL, "--output", docs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "fetching registry data")
			assert.NoDirExists(t, docs)
		})
	}
}

func TestHTML_Fetch(t *testing.T) {
	clearEnv(t)
	srv, _ := upstream(t, http.StatusOK, registryJSON)
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	public := filepath.Join(root, "public")

	_, err := execute(t, "html", "--fetch", "--registry-url", srv.URL, "--output", docs, "--html-out", public)
	require.NoError(t, err)

	index, err := os.ReadFile(filepath.Join(public, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `<a href="gb/gb0001.html">GB0001</a>`)
	assert.FileExists(t, filepath.Join(public, "gb", "gb0002.html"))
	assert.FileExists(t, filepath.Join(public, "dashboard.html"))
	assert.FileExists(t, filepath.Join(public, "assets", "style.css"))
}

func TestRoot_InvalidFlags(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = execute(t, "--registry-url", "not-a-url")
	assert.Error(t, err)

	_, err = execute(t, "generate", "extra-arg")
	assert.Error(t, err)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestRoot_ConfigFile(t *testing.T) {
	clearEnv(t)
	srv, _ := upstream(t, http.StatusOK, registryJSON)
	root := t.TempDir()
	docs := filepath.Join(root, "from-config")
	cfgPath := filepath.Join(root, "gbsite.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("registry_url: "+srv.URL+"\noutput_dir: "+docs+"\nedit_url: https://example.com/edit/\n"), 0o644))

	_, err := execute(t, "--config", cfgPath)
	require.NoError(t, err)

	page, err := os.ReadFile(filepath.Join(docs, "gb", "gb0001.md"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "(https://example.com/edit/gb0001.md)")
}
