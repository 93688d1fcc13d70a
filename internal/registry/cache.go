package registry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached registry is served before refetching.
const DefaultTTL = 5 * time.Minute

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the cache TTL. TTL <= 0 means the registry never expires.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFetchHook registers fn to be called after every upstream fetch with its result.
func WithFetchHook(fn func(err error)) CacheOption {
	return func(c *Cache) {
		c.onFetch = fn
	}
}

// Cache serves a registry from a Fetcher, refetching once the TTL elapses.
// Concurrent misses share one upstream fetch. Safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	onFetch func(err error)

	mu        sync.RWMutex
	reg       *Registry
	expiresAt time.Time
	sf        singleflight.Group
}

// NewCache wraps fetcher. Panics if fetcher is nil.
func NewCache(fetcher Fetcher, opts ...CacheOption) *Cache {
	if fetcher == nil {
		panic("registry: Fetcher must not be nil")
	}
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) valid(now time.Time) bool {
	return c.reg != nil && (c.ttl <= 0 || now.Before(c.expiresAt))
}

// Get returns the cached registry, fetching it when absent or expired.
// A failed fetch leaves any previous registry cached but still expired.
func (c *Cache) Get(ctx context.Context) (*Registry, error) {
	c.mu.RLock()
	if c.valid(c.now()) {
		reg := c.reg
		c.mu.RUnlock()
		return reg, nil
	}
	c.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := c.sf.Do("registry", func() (any, error) {
		fetchCtx, cancel := detachCancel(ctx)
		defer cancel()
		reg, err := c.fetcher.Fetch(fetchCtx)
		if c.onFetch != nil {
			c.onFetch(err)
		}
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.reg = reg
		c.expiresAt = c.now().Add(c.ttl)
		c.mu.Unlock()
		return reg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Registry), nil
}

// Invalidate forces the next Get to refetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.reg = nil
	c.mu.Unlock()
}

// detachCancel returns a context that is not cancelled when parent is,
// but keeps parent's deadline. The shared fetch belongs to every waiter.
func detachCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if dl, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}
