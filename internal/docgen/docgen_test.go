package docgen

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteLink(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"gb/gb0001.md", "gb/gb0001.html"},
		{"../index.md", "../index.html"},
		{"page.md#hints", "page.html#hints"},
		{"gb/gb0001.html", "gb/gb0001.html"},
		{"https://github.com/x/edit/main/docs/gb/gb0001.md", "https://github.com/x/edit/main/docs/gb/gb0001.md"},
		{"mailto:someone@example.com", "mailto:someone@example.com"},
		{"#local", "#local"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RewriteLink(tt.in), tt.in)
	}
}

func TestConvert_FrontMatterAndHeading(t *testing.T) {
	t.Parallel()
	page, err := Convert([]byte("---\nlayout: default\n---\n# GB0001\n\n## Hints\n\n- h1\n- h2\n"))
	require.NoError(t, err)
	assert.Equal(t, "default", page.Layout)
	assert.Equal(t, "GB0001", page.Title)
	assert.NotContains(t, page.Body, "layout: default")
	assert.Contains(t, page.Body, `<h1 id="gb0001">GB0001</h1>`)
	assert.Contains(t, page.Body, "<li>h1</li>")
}

func TestConvert_TitleFromFrontMatter(t *testing.T) {
	t.Parallel()
	page, err := Convert([]byte("---\nlayout: default\ntitle: Graph Break Dashboard\n---\n\n# Graph Break Metrics Dashboard\n"))
	require.NoError(t, err)
	assert.Equal(t, "Graph Break Dashboard", page.Title)
}

func TestConvert_DefaultTitle(t *testing.T) {
	t.Parallel()
	page, err := Convert([]byte("Below are all known graph breaks.\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, page.Title)
}

func TestConvert_RawHTMLAndLinks(t *testing.T) {
	t.Parallel()
	src := "<div class=\"metric-box\">\n<p>3</p>\n</div>\n\n" +
		"<!-- ADDITIONAL INFORMATION START -->\n\n" +
		"[Back to Registry](../index.md)\n"
	page, err := Convert([]byte(src))
	require.NoError(t, err)
	assert.Contains(t, page.Body, `<div class="metric-box">`)
	assert.Contains(t, page.Body, "<!-- ADDITIONAL INFORMATION START -->")
	assert.Contains(t, page.Body, `<a href="../index.html">Back to Registry</a>`)
}

func TestConvertSafe_OmitsRawHTML(t *testing.T) {
	t.Parallel()
	src := "---\ntitle: T\n---\n<div class=\"metric-box\"><p>1</p></div>\n\nCall <script>alert(1)</script> then [next](gb0002.md).\n"
	page, err := ConvertSafe([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "T", page.Title)
	assert.NotContains(t, page.Body, `<div class="metric-box">`)
	assert.NotContains(t, page.Body, "<script>")
	assert.Contains(t, page.Body, `<a href="gb0002.html">next</a>`)

	page, err = Convert([]byte(src))
	require.NoError(t, err)
	assert.Contains(t, page.Body, `<div class="metric-box">`)
}

func TestWrapPage(t *testing.T) {
	t.Parallel()
	out := WrapPage(Page{Title: "A <b> title", Body: "<p>body</p>"}, "../")
	assert.Contains(t, out, "<title>A &lt;b&gt; title</title>")
	assert.Contains(t, out, `<link rel="stylesheet" href="../assets/style.css">`)
	assert.Contains(t, out, `<a href="../dashboard.html">Dashboard</a>`)
	assert.Contains(t, out, "<p>body</p>")
}

func TestGenerateAll(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "site")

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(src, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write("index.md", "---\nlayout: default\n---\n- [GB0001](gb/gb0001.html) — T\n")
	write("gb/gb0001.md", "---\nlayout: default\n---\n# GB0001\n\n[Back to Registry](../index.html)\n")
	write("_layouts/default.html", "{{ content }}")
	write("assets/style.css", "body {}")
	write("_config.yml", "title: x")

	n, err := GenerateAll(src, out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	index, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), `<a href="gb/gb0001.html">GB0001</a>`)
	assert.Contains(t, string(index), `href="assets/style.css"`)

	detail, err := os.ReadFile(filepath.Join(out, "gb", "gb0001.html"))
	require.NoError(t, err)
	assert.Contains(t, string(detail), `href="../assets/style.css"`)
	assert.Contains(t, string(detail), "<title>GB0001</title>")

	css, err := os.ReadFile(filepath.Join(out, "assets", "style.css"))
	require.NoError(t, err)
	assert.Equal(t, "body {}", string(css))

	assert.NoDirExists(t, filepath.Join(out, "_layouts"))
	assert.NoFileExists(t, filepath.Join(out, "_config.html"))
}

func TestGenerateAll_MissingSource(t *testing.T) {
	t.Parallel()
	_, err := GenerateAll(filepath.Join(t.TempDir(), "nope"), t.TempDir(), nil)
	assert.Error(t, err)
}
