package credentials

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	secret  string
	expires time.Time
}

// CachedStore is a read-through cache in front of another Store. Writes go
// to the backing store and drop the cached entry for that scope.
//
// Each scope carries a generation that Invalidate bumps. A read only fills
// the cache if the generation it started with is still current, so a read
// racing a write cannot put the old secret back.
type CachedStore struct {
	next Store
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[Scope]cacheEntry
	gens    map[Scope]uint64
	epoch   uint64
}

// NewCachedStore wraps next. A ttl <= 0 caches until invalidated.
func NewCachedStore(next Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Scope]cacheEntry),
		gens:    make(map[Scope]uint64),
	}
}

func (c *CachedStore) Get(ctx context.Context, scope Scope) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[scope]
	gen, epoch := c.gens[scope], c.epoch
	c.mu.Unlock()
	if ok && (e.expires.IsZero() || c.now().Before(e.expires)) {
		return e.secret, nil
	}

	secret, err := c.next.Get(ctx, scope)
	if err != nil {
		return "", err
	}

	e = cacheEntry{secret: secret}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	if c.gens[scope] == gen && c.epoch == epoch {
		c.entries[scope] = e
	}
	c.mu.Unlock()
	return secret, nil
}

func (c *CachedStore) Save(ctx context.Context, scope Scope, secret string) error {
	defer c.Invalidate(scope)
	return c.next.Save(ctx, scope, secret)
}

func (c *CachedStore) Delete(ctx context.Context, scope Scope) error {
	defer c.Invalidate(scope)
	return c.next.Delete(ctx, scope)
}

// Invalidate drops the cached entry for scope.
func (c *CachedStore) Invalidate(scope Scope) {
	c.mu.Lock()
	delete(c.entries, scope)
	c.gens[scope]++
	c.mu.Unlock()
}

// Purge drops every cached entry.
func (c *CachedStore) Purge() {
	c.mu.Lock()
	c.entries = make(map[Scope]cacheEntry)
	c.epoch++
	c.mu.Unlock()
}
