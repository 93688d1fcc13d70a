// Package server is a live preview of the graph-break site: it renders pages
// straight from a cached registry and the hand-written content on disk.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/meta-pytorch/compile-graph-break-site/internal/docgen"
	"github.com/meta-pytorch/compile-graph-break-site/internal/registry"
	"github.com/meta-pytorch/compile-graph-break-site/internal/site"
)

const shutdownTimeout = 15 * time.Second

// Server serves the preview site.
type Server struct {
	cache   *registry.Cache
	gen     *site.Generator
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics sink, typically shared with the registry
// cache's fetch hook. Default is a fresh NewMetrics().
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a Server reading the registry from cache and manual content
// from the pages under gen's output directory.
func New(cache *registry.Cache, gen *site.Generator, opts ...Option) *Server {
	s := &Server{
		cache:  cache,
		gen:    gen,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/dashboard.html", s.handleDashboard)
	r.Get("/gb/{gbid}", s.handleDetail)
	r.Get("/api/registry", s.handleRegistry)
	r.Get("/api/search", s.handleSearch)
	r.Get("/search", s.handleSearchPage)
	r.Get("/assets/style.css", handleStylesheet)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Preview server starting", "url", "http://"+ln.Addr().String()+"/")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil {
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}

// logRequests logs and counts HTTP requests.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.observeRequest(route, status, duration.Seconds())
		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", duration,
		)
	})
}

func (s *Server) loadRegistry(w http.ResponseWriter, r *http.Request) (*registry.Registry, bool) {
	reg, err := s.cache.Get(r.Context())
	if err != nil {
		s.logger.Error("Failed to load registry", "error", err)
		http.Error(w, "failed to fetch registry", http.StatusBadGateway)
		return nil, false
	}
	s.metrics.setEntries(reg.Len())
	return reg, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.loadRegistry(w, r)
	if !ok {
		return
	}
	md, err := site.RenderIndex(reg)
	if err != nil {
		s.fail(w, "render index", err)
		return
	}
	s.writeMarkdownPage(w, docgen.ConvertSafe, md, searchForm(""))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.loadRegistry(w, r)
	if !ok {
		return
	}
	stats, err := s.gen.Measure(reg)
	if err != nil {
		s.fail(w, "measure", err)
		return
	}
	md, err := site.RenderDashboard(stats)
	if err != nil {
		s.fail(w, "render dashboard", err)
		return
	}
	s.writeMarkdownPage(w, docgen.Convert, md, "")
}

// handleDetail accepts /gb/GB0001, /gb/gb0001 and /gb/gb0001.html.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "gbid")
	param = strings.TrimSuffix(strings.TrimSuffix(param, ".html"), ".md")
	id := strings.ToUpper(param)

	reg, ok := s.loadRegistry(w, r)
	if !ok {
		return
	}
	entry, found := reg.Get(id)
	if !found {
		page := docgen.Page{
			Title: "GBID " + id + " not found",
			Body:  "<h1>GBID " + html.EscapeString(id) + " not found</h1>",
		}
		writeHTML(w, http.StatusNotFound, docgen.WrapPage(page, "/"))
		return
	}

	content, err := s.gen.ManualContent(id)
	if err != nil {
		s.fail(w, "read manual content", err)
		return
	}
	md, err := site.RenderDetail(entry, content, s.gen.EditURL())
	if err != nil {
		s.fail(w, "render detail", err)
		return
	}
	s.writeMarkdownPage(w, docgen.ConvertSafe, md, "")
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.loadRegistry(w, r)
	if !ok {
		return
	}
	writeJSON(w, reg)
}

// SearchResult is one /api/search hit.
type SearchResult struct {
	ID             string   `json:"id"`
	GbType         string   `json:"Gb_type"`
	Explanation    string   `json:"Explanation,omitempty"`
	Context        string   `json:"Context,omitempty"`
	AdditionalInfo []string `json:"Additional_Info,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.loadRegistry(w, r)
	if !ok {
		return
	}
	writeJSON(w, Search(reg, r.URL.Query().Get("q")))
}

func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.loadRegistry(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	var b strings.Builder
	b.WriteString("<h1>Search</h1>\n")
	b.WriteString(searchForm(q))
	results := Search(reg, q)
	if len(results) == 0 {
		b.WriteString("<p>No matching graph breaks.</p>\n")
	} else {
		b.WriteString("<ul>\n")
		for _, res := range results {
			fmt.Fprintf(&b, "<li><a href=\"gb/%s.html\">%s</a> — %s</li>\n",
				html.EscapeString(site.Slug(res.ID)), html.EscapeString(res.ID), html.EscapeString(res.GbType))
		}
		b.WriteString("</ul>\n")
	}
	writeHTML(w, http.StatusOK, docgen.WrapPage(docgen.Page{Title: "Search", Body: b.String()}, "/"))
}

func searchForm(q string) string {
	return `<form class="search" action="/search" method="get">` +
		`<input type="search" name="q" placeholder="Search graph breaks" value="` + html.EscapeString(q) + `">` +
		`<button type="submit">Search</button></form>` + "\n"
}

// fuzzyThreshold is the largest edit distance, as a fraction of the longer
// word, at which a query term still matches a word.
const fuzzyThreshold = 0.3

// Search returns the entries matching every term of query in their GBID,
// Gb_type, Explanation or Context, best match first. A term matches a field
// containing it, ignoring case, or a word of the field within fuzzyThreshold
// edits. An empty query matches everything in registry order.
func Search(reg *registry.Registry, query string) []SearchResult {
	terms := strings.Fields(strings.ToLower(query))
	type hit struct {
		res   SearchResult
		score float64
	}
	var hits []hit
	for _, e := range reg.Entries() {
		rec := e.First()
		res := SearchResult{
			ID:             e.ID,
			GbType:         deref(rec.GbTypeValue),
			Explanation:    deref(rec.ExplanationValue),
			Context:        deref(rec.ContextValue),
			AdditionalInfo: rec.AdditionalInfo(),
		}
		if score, ok := matchScore(terms, res.ID, res.GbType, res.Explanation, res.Context); ok {
			hits = append(hits, hit{res: res, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score < hits[j].score })

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = h.res
	}
	return results
}

// matchScore sums the best score of each term over fields. Lower is better;
// 0 is a substring hit for every term.
func matchScore(terms []string, fields ...string) (float64, bool) {
	lowered := make([]string, len(fields))
	for i, f := range fields {
		lowered[i] = strings.ToLower(f)
	}
	var total float64
	for _, term := range terms {
		score, ok := termScore(term, lowered)
		if !ok {
			return 0, false
		}
		total += score
	}
	return total, true
}

func termScore(term string, fields []string) (float64, bool) {
	best := math.Inf(1)
	for _, f := range fields {
		if strings.Contains(f, term) {
			return 0, true
		}
		for _, word := range strings.Fields(f) {
			longest := max(utf8.RuneCountInString(term), utf8.RuneCountInString(word))
			d := float64(fuzzy.LevenshteinDistance(term, word)) / float64(longest)
			best = min(best, d)
		}
	}
	return best, best <= fuzzyThreshold
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func handleStylesheet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(site.Stylesheet())
}

// writeMarkdownPage converts md and writes it as a page, with header HTML
// placed before the converted body. Pages built from registry text use
// docgen.ConvertSafe so that raw HTML from upstream never reaches the browser.
func (s *Server) writeMarkdownPage(w http.ResponseWriter, convert func([]byte) (docgen.Page, error), md, header string) {
	page, err := convert([]byte(md))
	if err != nil {
		s.fail(w, "convert markdown", err)
		return
	}
	page.Body = header + page.Body
	writeHTML(w, http.StatusOK, docgen.WrapPage(page, "/"))
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Error("Request failed", "op", op, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
