package bot

import (
	"sort"
	"sync"
	"time"
)

// ShardRunner describes one live gateway shard
type ShardRunner struct {
	ID      int
	Latency func() time.Duration
}

// ShardManager tracks the runners of a sharded adapter.
// The Discord adapter registers a runner per session it opens.
type ShardManager struct {
	mu      sync.RWMutex
	total   int
	runners map[int]*ShardRunner
}

// NewShardManager creates a manager for total shards
func NewShardManager(total int) *ShardManager {
	return &ShardManager{
		total:   total,
		runners: make(map[int]*ShardRunner),
	}
}

// Total returns the configured shard count
func (m *ShardManager) Total() int {
	return m.total
}

// Add registers or replaces the runner for r.ID
func (m *ShardManager) Add(r *ShardRunner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners[r.ID] = r
}

// Remove drops the runner for id
func (m *ShardManager) Remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runners, id)
}

// Runner returns the runner for id
func (m *ShardManager) Runner(id int) (*ShardRunner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runners[id]
	return r, ok
}

// IDs returns the registered shard ids in ascending order
func (m *ShardManager) IDs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.runners))
	for id := range m.runners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
