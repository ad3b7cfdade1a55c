package resolver

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for cache staleness tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production clock.
var SystemClock Clock = systemClock{}

// TTLCache is a read-through cache with a fixed TTL and no invalidation on
// write. Master data changes rarely; a stale read only delays adoption of a
// change by one TTL window.
type TTLCache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   Clock
	entries map[string]cacheEntry[V]
}

type cacheEntry[V any] struct {
	value    V
	loadedAt time.Time
}

func NewTTLCache[V any](ttl time.Duration, clock Clock) *TTLCache[V] {
	if clock == nil {
		clock = SystemClock
	}
	return &TTLCache[V]{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry[V]),
	}
}

// GetOrLoad returns the cached value for key, loading it when absent or
// stale. Load errors are not cached.
func (c *TTLCache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.clock.Now().Sub(entry.loadedAt) < c.ttl {
		c.mu.Unlock()
		return entry.value, nil
	}
	c.mu.Unlock()

	value, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, loadedAt: c.clock.Now()}
	c.mu.Unlock()
	return value, nil
}
