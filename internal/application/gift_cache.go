package application

import (
	"strings"
	"sync"
	"time"
)

// giftCache keeps recently resolved gift assignments. Stored gifts never
// change once an event has started, so only the receiver's profile can go
// stale, and only for the ttl.
type giftCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]giftCacheEntry
}

type giftCacheEntry struct {
	assignment GiftAssignment
	expiresAt  time.Time
}

func newGiftCache(ttl time.Duration, maxEntries int, now func() time.Time) *giftCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &giftCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]giftCacheEntry),
	}
}

func giftCacheKey(eventID, giverID string) string {
	return eventID + "|" + giverID
}

func (c *giftCache) Get(eventID, giverID string) (GiftAssignment, bool) {
	if c == nil {
		return GiftAssignment{}, false
	}
	key := giftCacheKey(eventID, giverID)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return GiftAssignment{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return GiftAssignment{}, false
	}
	return entry.assignment, true
}

func (c *giftCache) Store(assignment GiftAssignment) {
	if c == nil {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[giftCacheKey(assignment.EventID, assignment.GiverID)] = giftCacheEntry{assignment: assignment, expiresAt: expiry}
}

// InvalidateEvent drops every cached assignment of the event.
func (c *giftCache) InvalidateEvent(eventID string) {
	if c == nil {
		return
	}
	prefix := eventID + "|"

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *giftCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *giftCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
