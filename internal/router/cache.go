package router

import (
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/clawinfra/clawrouter/internal/catalog"
)

// Cache is the classification cache surface. Implementations must be safe
// for concurrent use.
type Cache interface {
	Lookup(fingerprint string) (catalog.Tier, bool)
	Insert(fingerprint string, tier catalog.Tier)
	Invalidate()
}

const (
	cacheTTL      = time.Hour
	cacheCapacity = 1000

	fingerprintChars = 500
)

// Fingerprint derives the cache key for a prompt: lowercased,
// whitespace-normalised first 500 characters, hashed with BLAKE2b.
func Fingerprint(userText string) string {
	normalised := strings.Join(strings.Fields(strings.ToLower(userText)), " ")
	runes := []rune(normalised)
	if len(runes) > fingerprintChars {
		normalised = string(runes[:fingerprintChars])
	}
	sum := blake2b.Sum256([]byte(normalised))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	tier       catalog.Tier
	insertedAt time.Time
}

// memCache is the in-memory classification cache: TTL one hour, capacity
// 1000 entries, oldest-first eviction when full. Reads evict stale entries
// lazily; Sweep drops them eagerly for the maintenance job.
type memCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	cap     int
	now     func() time.Time // swappable in tests
}

// NewCache returns the default classification cache.
func NewCache() *memCache {
	return newCache(cacheTTL, cacheCapacity)
}

func newCache(ttl time.Duration, capacity int) *memCache {
	return &memCache{
		entries: make(map[string]cacheEntry, capacity),
		ttl:     ttl,
		cap:     capacity,
		now:     time.Now,
	}
}

func (c *memCache) Lookup(fingerprint string) (catalog.Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return 0, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, fingerprint)
		return 0, false
	}
	return e.tier, true
}

func (c *memCache) Insert(fingerprint string, tier catalog.Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fingerprint]; !exists && len(c.entries) >= c.cap {
		c.evictOldestLocked()
	}
	c.entries[fingerprint] = cacheEntry{tier: tier, insertedAt: c.now()}
}

func (c *memCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry, c.cap)
}

// Sweep removes expired entries and reports how many were dropped.
func (c *memCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	cutoff := c.now().Add(-c.ttl)
	for fp, e := range c.entries {
		if e.insertedAt.Before(cutoff) {
			delete(c.entries, fp)
			dropped++
		}
	}
	return dropped
}

// Len reports the current entry count.
func (c *memCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *memCache) evictOldestLocked() {
	var oldestFP string
	var oldestAt time.Time
	first := true
	for fp, e := range c.entries {
		if first || e.insertedAt.Before(oldestAt) {
			oldestFP, oldestAt = fp, e.insertedAt
			first = false
		}
	}
	if oldestFP != "" {
		delete(c.entries, oldestFP)
	}
}
