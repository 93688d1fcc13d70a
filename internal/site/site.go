// Package site renders the graph-break registry into a Jekyll markdown site:
// an index, one detail page per GBID, a dashboard, and fixed layout assets.
package site

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meta-pytorch/compile-graph-break-site/internal/manual"
	"github.com/meta-pytorch/compile-graph-break-site/internal/registry"
)

//go:embed assets/style.css assets/default.html assets/config.yml
var assetsFS embed.FS

// staticAssets maps embedded assets to their paths under the output root.
var staticAssets = []struct {
	src, dst string
}{
	{"assets/style.css", "assets/style.css"},
	{"assets/default.html", "_layouts/default.html"},
	{"assets/config.yml", "_config.yml"},
}

// Stylesheet returns the site stylesheet.
func Stylesheet() []byte {
	data, err := assetsFS.ReadFile("assets/style.css")
	if err != nil {
		panic("site: stylesheet missing from embedded assets")
	}
	return data
}

// Stats are the dashboard metrics for one run.
type Stats struct {
	Total              int
	WithAdditionalInfo int
	WithMissingContent int
}

// Generator writes the site into an output directory.
type Generator struct {
	outDir  string
	editURL string
	logger  *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithEditURL sets the base URL of the edit link on detail pages.
func WithEditURL(u string) Option {
	return func(g *Generator) {
		if u != "" {
			g.editURL = u
		}
	}
}

// New creates a Generator rooted at outDir.
func New(outDir string, opts ...Option) *Generator {
	g := &Generator{
		outDir:  outDir,
		editURL: DefaultEditURL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OutDir returns the output root.
func (g *Generator) OutDir() string {
	return g.outDir
}

// EditURL returns the edit link base.
func (g *Generator) EditURL() string {
	return g.editURL
}

// ManualContent returns the hand-written content currently on disk for id.
func (g *Generator) ManualContent(id string) (string, error) {
	content, err := manual.ExtractFile(filepath.Join(g.outDir, DetailPath(id)))
	if err != nil {
		return "", fmt.Errorf("reading manual content for %s: %w", id, err)
	}
	return content, nil
}

// Measure computes dashboard metrics against the pages currently on disk,
// without writing anything.
func (g *Generator) Measure(reg *registry.Registry) (Stats, error) {
	var s Stats
	for _, e := range reg.Entries() {
		content, err := g.ManualContent(e.ID)
		if err != nil {
			return Stats{}, err
		}
		s.add(e, content)
	}
	return s, nil
}

func (s *Stats) add(e registry.Entry, manualContent string) {
	s.Total++
	if manualContent != "" {
		s.WithAdditionalInfo++
	}
	if e.First().MissingContent() {
		s.WithMissingContent++
	}
}

// Generate renders the whole site. Each detail page's manual content is read
// before the page is overwritten. Every file is rewritten in full.
func (g *Generator) Generate(reg *registry.Registry) (Stats, error) {
	for _, dir := range []string{"", "_layouts", "assets", filepath.Join("assets", "css"), "gb"} {
		if err := os.MkdirAll(filepath.Join(g.outDir, dir), 0755); err != nil {
			return Stats{}, fmt.Errorf("creating output directory: %w", err)
		}
	}

	for _, a := range staticAssets {
		data, err := assetsFS.ReadFile(a.src)
		if err != nil {
			return Stats{}, fmt.Errorf("reading embedded asset %s: %w", a.src, err)
		}
		if err := g.write(a.dst, data); err != nil {
			return Stats{}, err
		}
	}

	index, err := RenderIndex(reg)
	if err != nil {
		return Stats{}, fmt.Errorf("rendering index: %w", err)
	}
	if err := g.write("index.md", []byte(index)); err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, e := range reg.Entries() {
		content, err := g.ManualContent(e.ID)
		if err != nil {
			return Stats{}, err
		}
		stats.add(e, content)

		page, err := RenderDetail(e, content, g.editURL)
		if err != nil {
			return Stats{}, fmt.Errorf("rendering %s: %w", e.ID, err)
		}
		if err := g.write(DetailPath(e.ID), []byte(page)); err != nil {
			return Stats{}, err
		}
	}

	dashboard, err := RenderDashboard(stats)
	if err != nil {
		return Stats{}, fmt.Errorf("rendering dashboard: %w", err)
	}
	if err := g.write("dashboard.md", []byte(dashboard)); err != nil {
		return Stats{}, err
	}

	g.logger.Info("Site generation complete",
		"total", stats.Total,
		"withAdditionalInfo", stats.WithAdditionalInfo,
		"withMissingContent", stats.WithMissingContent,
	)
	return stats, nil
}

func (g *Generator) write(rel string, data []byte) error {
	path := filepath.Join(g.outDir, filepath.FromSlash(rel))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	g.logger.Info("Generated file", "path", path)
	return nil
}
