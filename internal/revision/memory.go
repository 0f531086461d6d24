package revision

import (
	"context"
	"sync"
)

// MemoryCounter keeps revisions in process memory. It is used when no Redis
// URL is configured; revisions restart at 0 with the process.
type MemoryCounter struct {
	mu   sync.Mutex
	revs map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{revs: make(map[string]int64)}
}

func (c *MemoryCounter) Current(_ context.Context, backend string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revs[backend], nil
}

func (c *MemoryCounter) Next(_ context.Context, backend string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revs[backend]++
	return c.revs[backend], nil
}
