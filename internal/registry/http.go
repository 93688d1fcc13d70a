package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// DefaultURL is the upstream location of the graph-break registry.
const DefaultURL = "https://raw.githubusercontent.com/pytorch/pytorch/main/torch/_dynamo/graph_break_registry.json"

// maxBodySize limits the registry response body (32 MB).
const maxBodySize = 32 << 20

const defaultUserAgent = "gbsite/1.0"

// Fetcher retrieves a parsed registry.
type Fetcher interface {
	Fetch(ctx context.Context) (*Registry, error)
}

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher retrieves the registry with a single GET to a fixed URL.
// There is no retry: any failure is returned to the caller.
type HTTPFetcher struct {
	url        string
	httpClient *http.Client
	authToken  string
	userAgent  string
}

// HTTPOption configures HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets the HTTP client. Default has a 30s timeout. A nil client is ignored.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPFetcher) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithAuthToken sends token as a Bearer credential, for private mirrors or
// to lift GitHub rate limits. An empty token is ignored.
func WithAuthToken(token string) HTTPOption {
	return func(h *HTTPFetcher) {
		h.authToken = token
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTPFetcher) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher for rawURL, which must be absolute.
func NewHTTPFetcher(rawURL string, opts ...HTTPOption) (*HTTPFetcher, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("registry: URL must not be empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("registry: invalid URL %q", rawURL)
	}
	h := &HTTPFetcher{
		url:        rawURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.authToken != "" {
		c := *h.httpClient
		c.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: h.authToken}),
			Base:   h.httpClient.Transport,
		}
		h.httpClient = &c
	}
	return h, nil
}

// URL returns the registry location.
func (h *HTTPFetcher) URL() string {
	return h.url
}

// Fetch downloads and parses the registry.
func (h *HTTPFetcher) Fetch(ctx context.Context) (*Registry, error) {
	data, err := h.fetchBody(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (h *HTTPFetcher) fetchBody(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w: %s %s", ErrFetchFailed, ErrHTTPStatus, resp.Status, h.url)
	}
	// One byte past the limit tells an oversized body from one that fits exactly.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrFetchFailed, maxBodySize)
	}
	return data, nil
}
