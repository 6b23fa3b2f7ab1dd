// ABOUTME: Thread-safe TTL cache for rejecting replayed request nonces.
// ABOUTME: Used by the signed-request verifier; a nonce is admitted at most once per TTL.

package replay

import (
	"container/list"
	"sync"
	"time"
)

// Recorder is the nonce admission interface the signed-request verifier
// depends on. Record returns true if the nonce was already seen within the
// TTL window, false if it is new and now recorded.
type Recorder interface {
	Record(nonce string) bool
}

// entry stores the admission time and list element for a cached nonce.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited nonce cache. Admission is
// a single atomic check-and-record so two concurrent requests carrying the
// same nonce can never both pass. A doubly-linked list maintains insertion
// order for O(1) eviction when the cache is full.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // nonces in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a nonce cache with the specified TTL and maximum size.
// A background goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Record atomically checks whether the nonce has been seen within the TTL
// and records it if not. Returns true for a replay, false for a fresh nonce.
func (c *Cache) Record(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[nonce]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}

	c.recordLocked(nonce)
	return false
}

// recordLocked admits a nonce. Must be called with mu held.
func (c *Cache) recordLocked(nonce string) {
	now := time.Now()

	// An expired entry for the same nonce gets its timestamp refreshed.
	if e, exists := c.seen[nonce]; exists {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(nonce)
	c.seen[nonce] = &entry{seenAt: now, element: elem}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	nonce, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, nonce)
}

// Len returns the number of nonces currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// cleanupLoop periodically removes expired entries until Close is called.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired drops all entries older than the TTL.
func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for nonce, e := range c.seen {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, nonce)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

// Ensure Cache implements Recorder.
var _ Recorder = (*Cache)(nil)
