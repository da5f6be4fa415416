// Package cache provides the TTL store shared by the API client.
//
// Entries are evicted lazily: an expired entry is removed by the read that
// finds it. There is no size bound; the working set is one repository's
// metadata.
package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL is used when no TTL is configured
const DefaultTTL = 30 * time.Minute

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a thread-safe key/value store with per-entry expiry
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache whose Set uses defaultTTL
func New(defaultTTL time.Duration, opts ...Option) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	c := &Cache{
		entries:    make(map[string]*entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stored value if it has not expired. Expired entries are evicted.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the current default TTL
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	ttl := c.defaultTTL
	c.mu.Unlock()

	c.SetWithTTL(key, value, ttl)
}

// SetWithTTL stores value under key, replacing any existing entry
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Delete removes a single key
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (c *Cache) DeleteByPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
}

// Len returns the number of stored entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// SetDefaultTTL changes the TTL used by Set. Stored entries keep their expiry.
func (c *Cache) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.defaultTTL = ttl
}

// DefaultTTL returns the TTL used by Set
func (c *Cache) DefaultTTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.defaultTTL
}

// RepoPrefix returns the key prefix shared by every entry of one repository
func RepoPrefix(owner, repo string) string {
	return owner + "/" + repo + ":"
}

// Key builds owner/repo:kind[:discriminator...]
func Key(owner, repo, kind string, discriminators ...string) string {
	var b strings.Builder
	b.WriteString(RepoPrefix(owner, repo))
	b.WriteString(kind)
	for _, d := range discriminators {
		b.WriteByte(':')
		b.WriteString(d)
	}
	return b.String()
}
