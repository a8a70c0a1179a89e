package capture

import "sync"

// Topology holds the current monitor count, always at least 1.
type Topology struct {
	mu    sync.RWMutex
	count int
}

func NewTopology() *Topology {
	return &Topology{count: 1}
}

func (t *Topology) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Set stores n, clamped to at least 1, and reports whether it changed.
func (t *Topology) Set(n int) bool {
	if n < 1 {
		n = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := t.count != n
	t.count = n
	return changed
}

// Clamp maps a requested index into [1, Count].
func (t *Topology) Clamp(index int) int {
	n := t.Count()
	if index < 1 {
		return 1
	}
	if index > n {
		return n
	}
	return index
}
