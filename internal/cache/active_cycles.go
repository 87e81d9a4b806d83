package cache

import "sync"

// ActiveCycles remembers the active cycle ID of each group.
//
// Entries are written after a successful lookup and must be invalidated
// inside the group's critical section by every operation that opens or
// closes a cycle, so a stale ID never outlives the lock.
type ActiveCycles struct {
	mu     sync.RWMutex
	cycles map[int64]int64
}

// NewActiveCycles returns an empty cache.
func NewActiveCycles() *ActiveCycles {
	return &ActiveCycles{cycles: make(map[int64]int64)}
}

// Get returns the cached active cycle ID for a group.
func (c *ActiveCycles) Get(groupID int64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.cycles[groupID]
	return id, ok
}

// Set records the active cycle ID for a group.
func (c *ActiveCycles) Set(groupID, cycleID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycles[groupID] = cycleID
}

// Invalidate forgets the group's active cycle.
func (c *ActiveCycles) Invalidate(groupID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cycles, groupID)
}
