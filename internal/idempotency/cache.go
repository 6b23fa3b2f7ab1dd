// ABOUTME: TTL-bound result cache making tool dispatch idempotent per fingerprint.
// ABOUTME: Concurrent identical calls block on a single execution via singleflight.

package idempotency

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// record holds a stored tool result and its storage time.
type record struct {
	payload  json.RawMessage
	storedAt time.Time
}

// flightResult is what a singleflight execution returns to all waiters.
type flightResult struct {
	payload   json.RawMessage
	fromCache bool
}

// Cache deduplicates tool executions by fingerprint. Results are stored only
// for successful executions and expire after the TTL. Concurrent calls with
// the same fingerprint run the compute function at most once; the duplicates
// block and receive the winner's result.
type Cache struct {
	mu      sync.Mutex
	results map[string]*record
	ttl     time.Duration
	group   singleflight.Group
	done    chan struct{}
	closed  bool
}

// NewCache creates an idempotency cache with the given result TTL.
// A background goroutine periodically removes expired records.
func NewCache(ttl time.Duration) *Cache {
	c := &Cache{
		results: make(map[string]*record),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Do returns the stored result for key if present, otherwise runs compute.
// The second return value reports whether the result was deduplicated:
// either served from the cache or shared with a concurrent identical call.
// Failed computes are not stored.
func (c *Cache) Do(key string, compute func() (json.RawMessage, error)) (json.RawMessage, bool, error) {
	if payload, ok := c.lookup(key); ok {
		return payload, true, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// A concurrent call may have stored a result between our lookup
		// and entering the flight.
		if payload, ok := c.lookup(key); ok {
			return flightResult{payload: payload, fromCache: true}, nil
		}

		payload, err := compute()
		if err != nil {
			return nil, err
		}

		c.store(key, payload)
		return flightResult{payload: payload}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(flightResult)
	return res.payload, res.fromCache || shared, nil
}

// lookup returns the stored payload for key if present and unexpired.
func (c *Cache) lookup(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.results[key]
	if !ok || time.Since(rec.storedAt) >= c.ttl {
		return nil, false
	}
	return rec.payload, true
}

// store records a successful result for key.
func (c *Cache) store(key string, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = &record{payload: payload, storedAt: time.Now()}
}

// cleanupLoop periodically removes expired records until Close is called.
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

// removeExpired drops all records older than the TTL.
func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, rec := range c.results {
		if now.Sub(rec.storedAt) >= c.ttl {
			delete(c.results, key)
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
