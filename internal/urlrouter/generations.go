package urlrouter

import "sync"

// generations orders cache writes against rule invalidation. A lookup notes
// the sequence before loading rules and may only cache a result if the rule
// that produced it was not invalidated since.
type generations struct {
	mu          sync.RWMutex
	seq         uint64
	invalidated map[int]uint64
}

func newGenerations() *generations {
	return &generations{invalidated: make(map[int]uint64)}
}

func (g *generations) current() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.seq
}

// bump must run before the rule's cache entries are removed.
func (g *generations) bump(ruleID int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.invalidated[ruleID] = g.seq
}

// store runs set unless ruleID was invalidated after since. set runs under the
// read lock so a concurrent bump waits for it and the following cache
// invalidation sees its entry.
func (g *generations) store(since uint64, ruleID int, set func()) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.invalidated[ruleID] > since {
		return false
	}
	set()
	return true
}
