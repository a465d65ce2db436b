// ABOUTME: TTL and size bounded cache of recently handled realtime event ids.
// ABOUTME: Suppresses replayed events across feed reconnects.

package seen

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs an id's insertion time with its position in the eviction list.
type entry struct {
	at      time.Time
	element *list.Element
}

// Cache remembers event ids for a TTL, evicting the oldest id once the size
// cap is reached. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	ids     map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
}

// New creates a cache holding at most maxSize ids for at most ttl each.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		ids:     make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// CheckAndMark reports whether id was already seen within the TTL, marking
// it as seen if not. The check and mark are atomic so concurrent feed
// readers cannot both claim a fresh id.
func (c *Cache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.ids[id]; ok {
		if now.Sub(e.at) < c.ttl {
			return true
		}
		// Expired: refresh in place.
		e.at = now
		c.order.MoveToBack(e.element)
		return false
	}

	c.expireLocked(now)
	if len(c.ids) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.ids[id] = &entry{at: now, element: c.order.PushBack(id)}
	return false
}

// Len returns the number of tracked ids, counting expired-but-unswept ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// expireLocked drops expired ids from the front of the eviction list.
// Must be called with mu held.
func (c *Cache) expireLocked(now time.Time) {
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		id := front.Value.(string)
		if now.Sub(c.ids[id].at) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.ids, id)
	}
}

// evictOldestLocked removes the oldest id. Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id := front.Value.(string)
	c.order.Remove(front)
	delete(c.ids, id)
}
