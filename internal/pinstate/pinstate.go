// Package pinstate keeps the process-local mirror of last-known digital pin levels.
package pinstate

import (
	"sort"
	"sync"
)

// Cache maps pin names to their last observed or written level.
// It holds no claim about the actual hardware state.
type Cache struct {
	mu   sync.RWMutex
	pins map[string]bool
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{pins: make(map[string]bool)}
}

// Set records level for pin.
func (c *Cache) Set(pin string, level bool) {
	c.mu.Lock()
	c.pins[pin] = level
	c.mu.Unlock()
}

// Get returns the cached level for pin and whether one was recorded.
func (c *Cache) Get(pin string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	level, ok := c.pins[pin]
	return level, ok
}

// Len returns the number of cached pins.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pins)
}

// Pin is one cache entry.
type Pin struct {
	Name  string
	Level bool
}

// Snapshot returns a copy of every entry sorted by pin name.
func (c *Cache) Snapshot() []Pin {
	c.mu.RLock()
	out := make([]Pin, 0, len(c.pins))
	for name, level := range c.pins {
		out = append(out, Pin{Name: name, Level: level})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
