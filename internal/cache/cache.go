package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Cache is a Store with a JSON codec, metrics, and logging. Store failures
// never fail a read: they are logged and counted, and the value is loaded
// from the source instead.
type Cache struct {
	store   Store
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger used for degraded-store warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New wraps store.
func New(store Store, opts ...Option) *Cache {
	if store == nil {
		panic("cache: store must not be nil")
	}
	c := &Cache{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying backend.
func (c *Cache) Store() Store {
	return c.store
}

// Ping reports backend reachability.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// InvalidatePrefix removes every key under prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	n, err := c.store.DeletePrefix(ctx, prefix)
	if c.metrics != nil {
		c.metrics.invalidations.Add(float64(n))
		if err != nil {
			c.metrics.errors.WithLabelValues("invalidate").Inc()
		}
	}
	return n, err
}

// GetOrLoad returns the cached value under key, or calls load, stores its
// result for ttl, and returns it. kind labels metrics and logs ("page",
// "count", ...). Errors from load are returned unchanged and never cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, kind, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := lookup[T](ctx, c, kind, key); ok {
		c.hit(kind)
		return v, nil
	}
	c.miss(kind)

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.fail("encode", kind, key, err)
		return v, nil
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.fail("set", kind, key, err)
	}
	return v, nil
}

func lookup[T any](ctx context.Context, c *Cache, kind, key string) (T, bool) {
	var v T
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.fail("get", kind, key, err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		c.fail("decode", kind, key, err)
		return v, false
	}
	return v, true
}

func (c *Cache) hit(kind string) {
	if c.metrics != nil {
		c.metrics.hits.WithLabelValues(kind).Inc()
	}
}

func (c *Cache) miss(kind string) {
	if c.metrics != nil {
		c.metrics.misses.WithLabelValues(kind).Inc()
	}
}

func (c *Cache) fail(op, kind, key string, err error) {
	if c.metrics != nil {
		c.metrics.errors.WithLabelValues(op).Inc()
	}
	c.logger.Warn("cache operation failed",
		"op", op,
		"kind", kind,
		"key", key,
		"error", err,
	)
}
