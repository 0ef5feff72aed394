package provider

import (
	"sync"
	"sync/atomic"
)

// Counter tracks requests issued across all fetch workers. It is the only
// shared mutable state of the fetcher and is safe for concurrent use.
type Counter struct {
	total atomic.Int64

	mu         sync.Mutex
	byProvider map[string]*atomic.Int64
}

// NewCounter creates an empty request counter.
func NewCounter() *Counter {
	return &Counter{byProvider: make(map[string]*atomic.Int64)}
}

// Inc records one issued request for the provider.
func (c *Counter) Inc(provider string) {
	c.total.Add(1)
	c.mu.Lock()
	n, ok := c.byProvider[provider]
	if !ok {
		n = &atomic.Int64{}
		c.byProvider[provider] = n
	}
	c.mu.Unlock()
	n.Add(1)
}

// Total returns the number of requests issued so far.
func (c *Counter) Total() int64 {
	return c.total.Load()
}

// ByProvider returns a snapshot of per-provider request counts.
func (c *Counter) ByProvider() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.byProvider))
	for p, n := range c.byProvider {
		out[p] = n.Load()
	}
	return out
}
