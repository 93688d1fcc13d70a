package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/meta-pytorch/compile-graph-break-site/internal/config"
	"github.com/meta-pytorch/compile-graph-break-site/internal/docgen"
	"github.com/meta-pytorch/compile-graph-break-site/internal/registry"
	"github.com/meta-pytorch/compile-graph-break-site/internal/server"
	"github.com/meta-pytorch/compile-graph-break-site/internal/site"
)

// app carries the flags shared by every command and the settings they resolve to.
type app struct {
	configPath  string
	outputDir   string
	registryURL string
	logLevel    string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "gbsite",
		Short: "Generate the graph-break registry site",
		Long: `gbsite fetches the Dynamo graph-break registry and renders it into a
Jekyll site: an index, one page per GBID, and a metrics dashboard.

Text added between the ADDITIONAL INFORMATION markers of a detail page is
kept when the page is regenerated.

Running gbsite with no command is the same as "gbsite generate".`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.generate(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	flags.StringVarP(&a.outputDir, "output", "o", "", `markdown site directory (default "docs")`)
	flags.StringVar(&a.registryURL, "registry-url", "", "registry JSON URL")
	flags.StringVar(&a.logLevel, "log-level", "", `debug, info, warn or error (default "info")`)

	rootCmd.AddCommand(
		generateCmd(a),
		htmlCmd(a),
		serveCmd(a),
	)
	return rootCmd
}

// load resolves configuration: defaults, then file, then environment, then flags.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.outputDir != "" {
		cfg.OutputDir = a.outputDir
	}
	if a.registryURL != "" {
		cfg.RegistryURL = a.registryURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func (a *app) fetcher() (*registry.HTTPFetcher, error) {
	return registry.NewHTTPFetcher(a.cfg.RegistryURL,
		registry.WithHTTPClient(&http.Client{Timeout: a.cfg.HTTPTimeout}),
		registry.WithAuthToken(a.cfg.AuthToken),
	)
}

func (a *app) generator() *site.Generator {
	return site.New(a.cfg.OutputDir,
		site.WithLogger(a.logger),
		site.WithEditURL(a.cfg.EditURL),
	)
}

// generate fetches the registry and rewrites the markdown site. Nothing is
// written when the fetch fails.
func (a *app) generate(ctx context.Context) error {
	f, err := a.fetcher()
	if err != nil {
		return err
	}
	a.logger.Info("Fetching registry", "url", f.URL())
	reg, err := f.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching registry data: %w", err)
	}
	a.logger.Info("Registry loaded", "entries", reg.Len())

	if _, err := a.generator().Generate(reg); err != nil {
		return fmt.Errorf("generating site: %w", err)
	}
	return nil
}

func generateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Fetch the registry and regenerate the markdown site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.generate(cmd.Context())
		},
	}
}

func htmlCmd(a *app) *cobra.Command {
	var (
		htmlDir string
		fetch   bool
	)
	cmd := &cobra.Command{
		Use:   "html",
		Short: "Render the markdown site to standalone HTML",
		Long: `Render every page of the markdown site to HTML, for previewing or
publishing without Jekyll.

Examples:
  gbsite html
  gbsite html --fetch --html-out public`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if htmlDir != "" {
				a.cfg.HTMLDir = htmlDir
			}
			if fetch {
				if err := a.generate(cmd.Context()); err != nil {
					return err
				}
			}
			n, err := docgen.GenerateAll(a.cfg.OutputDir, a.cfg.HTMLDir, a.logger)
			if err != nil {
				return fmt.Errorf("generating HTML: %w", err)
			}
			a.logger.Info("HTML generation complete", "pages", n, "dir", a.cfg.HTMLDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&htmlDir, "html-out", "", `HTML output directory (default "site")`)
	cmd.Flags().BoolVar(&fetch, "fetch", false, "regenerate the markdown site first")
	return cmd
}

func serveCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live preview of the site",
		Long: `Serve pages rendered on request from the registry, cached for the
revalidate interval, together with the hand-written content in the markdown
site. Also serves /api/registry, /api/search?q= and /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			f, err := a.fetcher()
			if err != nil {
				return err
			}
			metrics := server.NewMetrics()
			cache := registry.NewCache(f,
				registry.WithTTL(a.cfg.Revalidate),
				registry.WithFetchHook(metrics.ObserveFetch),
			)
			srv := server.New(cache, a.generator(),
				server.WithLogger(a.logger),
				server.WithMetrics(metrics),
			)
			return srv.Run(cmd.Context(), a.cfg.Addr())
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", `listen port (default "3000")`)
	return cmd
}
