package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the entry bound used when none is configured.
const DefaultMemorySize = 10000

// MemoryCache is an in-process LRU bounded by entry count, with no TTL.
// A side index from rule id to keys makes InvalidateRule proportional to the
// number of entries of that rule.
type MemoryCache struct {
	lru *lru.Cache[string, Entry]

	mu     sync.Mutex
	byRule map[int]map[string]struct{}
}

// NewMemoryCache creates a cache holding at most size entries across both directions.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	c := &MemoryCache{byRule: make(map[int]map[string]struct{})}
	l, err := lru.NewWithEvict[string, Entry](size, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	c.lru = l
	return c, nil
}

// Get implements Cache
func (c *MemoryCache) Get(_ context.Context, dir Direction, key string) (Entry, bool) {
	return c.lru.Get(entryKey(dir, key))
}

// Set implements Cache. The lru lock and c.mu are never held together because
// the eviction callback takes c.mu.
func (c *MemoryCache) Set(_ context.Context, dir Direction, key string, e Entry) {
	k := entryKey(dir, key)
	if old, ok := c.lru.Peek(k); ok && old.RuleID != e.RuleID {
		c.unindex(old.RuleID, k)
	}
	c.lru.Add(k, e)

	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.byRule[e.RuleID]
	if keys == nil {
		keys = make(map[string]struct{})
		c.byRule[e.RuleID] = keys
	}
	keys[k] = struct{}{}
}

// InvalidateRule implements Cache
func (c *MemoryCache) InvalidateRule(_ context.Context, ruleID int) (int, error) {
	c.mu.Lock()
	keys := c.byRule[ruleID]
	delete(c.byRule, ruleID)
	c.mu.Unlock()

	removed := 0
	for k := range keys {
		if e, ok := c.lru.Peek(k); ok && e.RuleID == ruleID {
			if c.lru.Remove(k) {
				removed++
			}
		}
	}
	return removed, nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func (c *MemoryCache) onEvict(k string, e Entry) {
	c.unindex(e.RuleID, k)
}

func (c *MemoryCache) unindex(ruleID int, k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.byRule[ruleID]
	if keys == nil {
		return
	}
	delete(keys, k)
	if len(keys) == 0 {
		delete(c.byRule, ruleID)
	}
}
