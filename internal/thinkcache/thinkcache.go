// Package thinkcache keeps upstream-signed thinking blocks keyed by the
// tool_use IDs of the assistant turn that emitted them. Anthropic requires
// the signed block to be echoed back on the next turn when interleaved
// thinking is combined with tool use.
package thinkcache

import (
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds the cache size; oldest entries are evicted
	// first by insertion time.
	DefaultMaxEntries = 256

	// DefaultTTL expires entries that were never re-read.
	DefaultTTL = 600 * time.Second
)

// Block is a signed thinking content block. Redacted blocks carry the
// opaque data in Thinking with Redacted set.
type Block struct {
	Thinking  string `json:"thinking"`
	Signature string `json:"signature"`
	Redacted  bool   `json:"redacted,omitempty"`
}

type entry struct {
	block      Block
	insertedAt time.Time
}

// Cache is a bounded TTL map from tool_use_id to signed thinking block.
// Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a cache with the default bounds.
func New() *Cache {
	return NewWithLimits(DefaultMaxEntries, DefaultTTL)
}

// NewWithLimits creates a cache with explicit bounds.
func NewWithLimits(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Put stores a block under a tool_use id. Blocks without a signature are
// rejected: unsigned thinking cannot be replayed upstream.
func (c *Cache) Put(toolUseID string, b Block) bool {
	if toolUseID == "" || b.Signature == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[toolUseID] = entry{block: b, insertedAt: c.now()}
	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
	return true
}

// Get returns the block for a tool_use id. Expired entries are deleted and
// reported as a miss.
func (c *Cache) Get(toolUseID string) (Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[toolUseID]
	if !ok {
		return Block{}, false
	}
	if c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, toolUseID)
		return Block{}, false
	}
	return e.block, true
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest removes the entry with the earliest insertion time.
// Caller holds the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.insertedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.insertedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
