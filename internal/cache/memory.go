// ABOUTME: Thread-safe TTL cache Store with LRU eviction
// ABOUTME: In-process tier for single-node deployments and tests

package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry stores a value, its write time, and its list element.
type memoryEntry struct {
	value     []byte
	timestamp time.Time
	element   *list.Element
}

// MemoryStore is a size-limited cache with optional TTL. Reads refresh an
// entry's recency; the least recently used entry is evicted at capacity.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	order   *list.List // keys, least recently used at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewMemoryStore creates a cache holding at most maxSize entries. A ttl of zero
// disables expiry. A background goroutine removes expired entries.
func NewMemoryStore(ttl time.Duration, maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	c := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns a copy of the cached value or ErrMiss.
func (c *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.expiredLocked(entry) {
		return nil, ErrMiss
	}
	c.order.MoveToBack(entry.element)
	return append([]byte(nil), entry.value...), nil
}

// Set stores a copy of value, evicting the least recently used entry if full.
func (c *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := append([]byte(nil), value...)
	now := c.now()

	if entry, exists := c.entries[key]; exists {
		entry.value = stored
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return nil
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &memoryEntry{
		value:     stored,
		timestamp: now,
		element:   elem,
	}
	return nil
}

// Len returns the number of live and not yet cleaned entries.
func (c *MemoryStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryStore) expiredLocked(entry *memoryEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.timestamp) >= c.ttl
}

// evictOldest removes the least recently used entry. Must be called with mu held.
func (c *MemoryStore) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup periodically removes expired entries until Close.
func (c *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *MemoryStore) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return
	}
	for key, entry := range c.entries {
		if c.expiredLocked(entry) {
			c.order.Remove(entry.element)
			delete(c.entries, key)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call multiple times.
func (c *MemoryStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
	return nil
}
