// ABOUTME: Thread-safe single-use registry with a TTL and a size bound.
// ABOUTME: Tracks signed handshake challenges so the same signature cannot open two sessions.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type claim struct {
	key     string
	claimed time.Time
}

// Cache records keys that have been claimed. A key can be claimed once
// inside the TTL window; the oldest claims are dropped when maxSize is hit.
// Entries are kept in claim order so expiry only ever inspects the front.
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a cache. A non-positive maxSize means unbounded.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		claims:  make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Claim marks key as used. It returns false when the key was already
// claimed and has not yet expired.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expireLocked(now)

	if _, ok := c.claims[key]; ok {
		return false
	}

	if c.maxSize > 0 && len(c.claims) >= c.maxSize {
		c.removeLocked(c.order.Front())
	}

	c.claims[key] = c.order.PushBack(claim{key: key, claimed: now})
	return true
}

// Release drops a claim so key can be claimed again.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.claims[key]; ok {
		c.removeLocked(elem)
	}
}

// claimed reports whether key is currently held.
func (c *Cache) claimed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked(c.now())
	_, ok := c.claims[key]
	return ok
}

// size returns the number of live claims.
func (c *Cache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireLocked(c.now())
	return len(c.claims)
}

// expireLocked drops claims older than the TTL. Must be called with mu held.
func (c *Cache) expireLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		entry, _ := front.Value.(claim)
		if now.Sub(entry.claimed) < c.ttl {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	entry, _ := elem.Value.(claim)
	c.order.Remove(elem)
	delete(c.claims, entry.key)
}
