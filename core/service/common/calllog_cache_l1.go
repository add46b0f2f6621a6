// Package common provides shared pieces for the call log services.
package common

import (
	"sync"
	"time"

	"calllog_server/core/domain"
)

// =============================================================================
// L1 Lookup Cache - In-Memory with O(1) LRU Eviction (Doubly Linked List)
// =============================================================================

type lruNode struct {
	key  string
	prev *lruNode
	next *lruNode
}

// LookupCache holds realtime lookup results keyed by normalized number.
// Bounded by MaxItems with LRU eviction; entries expire after their TTL.
type LookupCache struct {
	data       map[string]*l1Entry
	mu         sync.RWMutex
	maxItems   int
	defaultTTL time.Duration
	now        func() time.Time

	lruHead *lruNode
	lruTail *lruNode
	nodeMap map[string]*lruNode

	hits   int64
	misses int64

	stopOnce sync.Once
	stop     chan struct{}
}

type l1Entry struct {
	value     domain.LookupInfo
	expiresAt time.Time
}

// L1Config configures the lookup cache
type L1Config struct {
	MaxItems        int           // default 1000
	DefaultTTL      time.Duration // default 10 minutes
	CleanupInterval time.Duration // default 30 seconds, 0 disables the sweeper
}

// DefaultL1Config returns sensible defaults for the lookup cache
func DefaultL1Config() *L1Config {
	return &L1Config{
		MaxItems:        1000,
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 30 * time.Second,
	}
}

// NewLookupCache creates a new cache with O(1) LRU eviction
func NewLookupCache(config *L1Config) *LookupCache {
	if config == nil {
		config = DefaultL1Config()
	}
	if config.MaxItems <= 0 {
		config.MaxItems = DefaultL1Config().MaxItems
	}

	head := &lruNode{}
	tail := &lruNode{}
	head.next = tail
	tail.prev = head

	cache := &LookupCache{
		data:       make(map[string]*l1Entry),
		maxItems:   config.MaxItems,
		defaultTTL: config.DefaultTTL,
		now:        time.Now,
		lruHead:    head,
		lruTail:    tail,
		nodeMap:    make(map[string]*lruNode),
		stop:       make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go cache.cleanupLoop(config.CleanupInterval)
	}

	return cache
}

// Get retrieves a value from the cache
func (c *LookupCache) Get(key string) (domain.LookupInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		c.misses++
		return domain.LookupInfo{}, false
	}

	if c.defaultTTL > 0 && c.now().After(entry.expiresAt) {
		delete(c.data, key)
		c.removeFromAccessOrder(key)
		c.misses++
		return domain.LookupInfo{}, false
	}

	c.hits++
	c.updateAccessOrder(key)
	return entry.value, true
}

// Set stores a value with the default TTL
func (c *LookupCache) Set(key string, value domain.LookupInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxItems {
		c.evictLRU()
	}

	c.data[key] = &l1Entry{
		value:     value,
		expiresAt: c.now().Add(c.defaultTTL),
	}
	c.updateAccessOrder(key)
}

// Delete removes a key from the cache
func (c *LookupCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	c.removeFromAccessOrder(key)
}

// Clear removes all entries
func (c *LookupCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*l1Entry)
	c.lruHead.next = c.lruTail
	c.lruTail.prev = c.lruHead
	c.nodeMap = make(map[string]*lruNode)
}

// Len returns the number of live entries (expired entries not yet swept
// are counted).
func (c *LookupCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close stops the cleanup goroutine
func (c *LookupCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Stats returns cache statistics
func (c *LookupCache) Stats() L1Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hitRate := float64(0)
	total := c.hits + c.misses
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return L1Stats{
		Items:      len(c.data),
		Hits:       c.hits,
		Misses:     c.misses,
		HitRate:    hitRate,
		MaxItems:   c.maxItems,
		DefaultTTL: c.defaultTTL,
	}
}

// L1Stats contains cache statistics
type L1Stats struct {
	Items      int           `json:"items"`
	Hits       int64         `json:"hits"`
	Misses     int64         `json:"misses"`
	HitRate    float64       `json:"hit_rate"`
	MaxItems   int           `json:"max_items"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// =============================================================================
// Internal Methods - O(1) LRU with Doubly Linked List
// =============================================================================

func (c *LookupCache) moveToFront(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev

	node.next = c.lruHead.next
	node.prev = c.lruHead
	c.lruHead.next.prev = node
	c.lruHead.next = node
}

func (c *LookupCache) addToFront(key string) {
	node := &lruNode{key: key}

	node.next = c.lruHead.next
	node.prev = c.lruHead
	c.lruHead.next.prev = node
	c.lruHead.next = node

	c.nodeMap[key] = node
}

func (c *LookupCache) removeNode(node *lruNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

func (c *LookupCache) updateAccessOrder(key string) {
	if node, ok := c.nodeMap[key]; ok {
		c.moveToFront(node)
	} else {
		c.addToFront(key)
	}
}

func (c *LookupCache) removeFromAccessOrder(key string) {
	if node, ok := c.nodeMap[key]; ok {
		c.removeNode(node)
		delete(c.nodeMap, key)
	}
}

// evictLRU drops the least recently used entry.
func (c *LookupCache) evictLRU() {
	if c.lruTail.prev == c.lruHead {
		return
	}
	lru := c.lruTail.prev
	delete(c.data, lru.key)
	c.removeNode(lru)
	delete(c.nodeMap, lru.key)
}

func (c *LookupCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *LookupCache) cleanupExpired() {
	if c.defaultTTL <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
			c.removeFromAccessOrder(key)
		}
	}
}
