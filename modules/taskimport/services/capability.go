package services

import (
	"context"
	"sync"
	"time"
)

type capabilityEntry struct {
	available bool
	expires   time.Time
}

// CapabilityCache remembers routine probe results process-wide for a short TTL.
// Probe errors are never cached.
type CapabilityCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]capabilityEntry
}

func NewCapabilityCache(ttl time.Duration) *CapabilityCache {
	return &CapabilityCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]capabilityEntry),
	}
}

func (c *CapabilityCache) Available(ctx context.Context, routine string, probe func(context.Context, string) (bool, error)) (bool, error) {
	if c == nil || c.ttl <= 0 {
		return probe(ctx, routine)
	}

	c.mu.Lock()
	entry, ok := c.entries[routine]
	c.mu.Unlock()
	if ok && c.now().Before(entry.expires) {
		return entry.available, nil
	}

	available, err := probe(ctx, routine)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.entries[routine] = capabilityEntry{available: available, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return available, nil
}

// Invalidate drops every cached probe result.
func (c *CapabilityCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]capabilityEntry)
	c.mu.Unlock()
}
