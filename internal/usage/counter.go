// Package usage counts command invocations for the lifetime of the process.
package usage

import "sync"

// Entry is one row of a counter snapshot.
type Entry struct {
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

// Counter maps command names to invocation counts.
// It is safe for concurrent use; counts never decrease.
type Counter struct {
	mu     sync.Mutex
	counts map[string]uint64
	order  []string
}

// NewCounter returns an empty counter
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]uint64)}
}

// Increment adds one to name, inserting it at zero first if needed
func (c *Counter) Increment(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.counts[name]; !exists {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

// Count returns the current count for name
func (c *Counter) Count(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Len returns the number of distinct names seen
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Snapshot returns a copy of all counts in first-seen order
func (c *Counter) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, len(c.order))
	for _, name := range c.order {
		entries = append(entries, Entry{Name: name, Count: c.counts[name]})
	}
	return entries
}
