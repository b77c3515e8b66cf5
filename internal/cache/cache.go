package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/efebarandurmaz/impactgraph/internal/logger"
	"github.com/efebarandurmaz/impactgraph/internal/observability"
	"github.com/efebarandurmaz/impactgraph/internal/record"
)

// LoadFunc produces the value for a missing key.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Cache deduplicates concurrent loads of one key and keeps successful
// results for ttl. Loader errors are never stored.
type Cache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	log     *logger.Logger
	metrics *observability.PipelineMetrics
}

type Option func(*Cache)

func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.log = l }
}

func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns a cache over store. A non-positive ttl disables storing but
// keeps load deduplication.
func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{store: store, ttl: ttl}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.OrNop(c.log)
	return c
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// GetOrLoad returns the stored value for key or calls load once for all
// concurrent callers. A store failure is logged and treated as a miss.
//
// The shared load runs detached from any single caller's cancellation; each
// caller stops waiting when its own ctx is done.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load LoadFunc) ([]byte, error) {
	if v, ok := c.lookup(ctx, key); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.lookup(loadCtx, key); ok {
			return v, nil
		}
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		data, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			if err := c.store.Set(loadCtx, key, data, c.ttl); err != nil {
				c.log.Warn("cache store failed", "key", key, "error", err)
			}
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	}
}

func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache lookup failed", "key", key, "error", err)
		return nil, false
	}
	if ok && c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return v, ok
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.group.Forget(key)
	return c.store.Delete(ctx, key)
}

// TableKey is the cache key of a record table.
func TableKey(table string) string { return "table:" + table }

// CachedSource is a record.Source reading through a Cache. An empty table
// is cached like any other; a failed fetch is not.
type CachedSource struct {
	cache *Cache
	src   record.Source
}

func NewCachedSource(c *Cache, src record.Source) *CachedSource {
	return &CachedSource{cache: c, src: src}
}

func (s *CachedSource) FetchAll(ctx context.Context, table string) ([]record.Record, error) {
	data, err := s.cache.GetOrLoad(ctx, TableKey(table), func(ctx context.Context) ([]byte, error) {
		recs, err := s.src.FetchAll(ctx, table)
		if err != nil {
			return nil, err
		}
		if recs == nil {
			recs = []record.Record{}
		}
		return json.Marshal(recs)
	})
	if err != nil {
		return nil, err
	}
	var recs []record.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		_ = s.cache.Invalidate(ctx, TableKey(table))
		return nil, fmt.Errorf("decode cached table %s: %w", table, err)
	}
	return recs, nil
}

// Invalidate drops every listed table so the next fetch reloads it.
func (s *CachedSource) Invalidate(ctx context.Context, tables ...string) error {
	for _, t := range tables {
		if err := s.cache.Invalidate(ctx, TableKey(t)); err != nil {
			return err
		}
	}
	return nil
}

var _ record.Source = (*CachedSource)(nil)
