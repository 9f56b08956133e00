package service

import (
	"sync"

	"skillproof/internal/services/verify/domain"
)

// resultCache is a bounded, run-scoped map keyed by claimed URL so the same
// link is never verified twice in one run. It is constructed per run and
// handed to the workers, never a package global, so tests and consecutive
// runs cannot leak state into each other
type resultCache struct {
	mu  sync.Mutex
	max int
	m   map[string]domain.Verdict
}

func newResultCache(max int) *resultCache {
	if max <= 0 {
		max = 1024
	}
	return &resultCache{max: max, m: make(map[string]domain.Verdict)}
}

// get returns the cached verdict for a URL
func (c *resultCache) get(url string) (domain.Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[url]
	return v, ok
}

// put stores a verdict unless the cache is full
func (c *resultCache) put(url string, v domain.Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.m) >= c.max {
		return
	}
	c.m[url] = v
}
