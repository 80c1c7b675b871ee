package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache bounds entries two ways: recency eviction once maxSize is
// exceeded, and a per-entry TTL enforced on access and by CleanExpired.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	index   map[string]*list.Element
	order   *list.List // front = most recently used
}

type entry[T any] struct {
	key      string
	val      T
	deadline time.Time
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		index:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached value and refreshes its recency. Expired entries
// are dropped on access.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.index[key]
	if !ok {
		return zero, false
	}
	ent := e.Value.(*entry[T])
	if time.Now().After(ent.deadline) {
		c.drop(e)
		return zero, false
	}
	c.order.MoveToFront(e)
	return ent.val, true
}

// Set stores or replaces a value, resetting its TTL, then evicts from the
// cold end until the cache fits.
func (c *LRUCache[T]) Set(key string, val T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.ttl)
	if e, ok := c.index[key]; ok {
		ent := e.Value.(*entry[T])
		ent.val, ent.deadline = val, deadline
		c.order.MoveToFront(e)
		return
	}

	c.index[key] = c.order.PushFront(&entry[T]{key: key, val: val, deadline: deadline})
	for c.order.Len() > c.maxSize {
		c.drop(c.order.Back())
	}
}

// Delete removes a key if present.
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.index[key]; ok {
		c.drop(e)
	}
}

// CleanExpired drops every expired entry and reports how many went.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		if now.After(e.Value.(*entry[T]).deadline) {
			c.drop(e)
			removed++
		}
		e = next
	}
	return removed
}

// Size returns the current number of cached entries.
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *LRUCache[T]) drop(e *list.Element) {
	if e == nil {
		return
	}
	delete(c.index, e.Value.(*entry[T]).key)
	c.order.Remove(e)
}
