package valuation

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Cache is a short-TTL price cache keyed by (source, minute-rounded
// timestamp). It is injected into the resolver so tests can clear it; there
// is no package-level state.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	price    decimal.Decimal
	storedAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Cache{
		ttl:     ttl,
		entries: map[string]cacheEntry{},
	}
}

func cacheKey(source string, ts time.Time) string {
	return source + "|" + ts.UTC().Truncate(time.Minute).Format(time.RFC3339)
}

func (c *Cache) Get(source string, ts time.Time) (decimal.Decimal, bool) {
	if c == nil {
		return decimal.Zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[cacheKey(source, ts)]
	if !ok {
		return decimal.Zero, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		delete(c.entries, cacheKey(source, ts))
		return decimal.Zero, false
	}
	return entry.price, true
}

func (c *Cache) Set(source string, ts time.Time, price decimal.Decimal) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(source, ts)] = cacheEntry{price: price, storedAt: time.Now()}
	if len(c.entries) > 4096 {
		c.pruneLocked()
	}
}

func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}

func (c *Cache) pruneLocked() {
	for key, entry := range c.entries {
		if time.Since(entry.storedAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}
