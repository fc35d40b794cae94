package stepper

import "sync"

// RenderCache keeps rendered step content keyed by step ID. The whole cache
// is dropped when the module identity changes. The zero value is ready to
// use.
type RenderCache[T any] struct {
	mu       sync.Mutex
	moduleID string
	entries  map[string]T
}

// NewRenderCache creates an empty cache.
func NewRenderCache[T any]() *RenderCache[T] {
	return &RenderCache[T]{entries: make(map[string]T)}
}

// Get returns the cached content for stepID, rendering it on a miss.
func (c *RenderCache[T]) Get(moduleID, stepID string, render func() T) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked(moduleID)
	if v, ok := c.entries[stepID]; ok {
		return v
	}
	v := render()
	c.entries[stepID] = v
	return v
}

// Reset clears the cache when moduleID differs from the cached module.
func (c *RenderCache[T]) Reset(moduleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(moduleID)
}

// Invalidate drops every entry regardless of module.
func (c *RenderCache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]T)
}

// Len returns the number of cached entries.
func (c *RenderCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RenderCache[T]) resetLocked(moduleID string) {
	if c.entries != nil && c.moduleID == moduleID {
		return
	}
	c.moduleID = moduleID
	c.entries = make(map[string]T)
}
