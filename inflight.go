package optiq

import (
	"context"
	"sync"
)

// InFlightEntry represents one pending request shared between callers. The
// owner populates it; every waiter observes the same eventual value or error.
type InFlightEntry struct {
	value   any
	err     error
	done    chan struct{}
	mu      sync.Mutex
	waiters int
}

// InFlightTracker tracks pending requests so concurrent identical calls
// collapse into a single execution per key.
type InFlightTracker struct {
	mu      sync.Mutex
	entries map[string]*InFlightEntry
}

// NewInFlightTracker returns an in-memory in-flight request tracker.
func NewInFlightTracker() *InFlightTracker {
	return &InFlightTracker{
		entries: make(map[string]*InFlightEntry),
	}
}

// GetOrCreateEntry returns an existing entry (not owner) or creates a new one
// (owner=true). The owner is responsible for eventually calling Complete.
func (t *InFlightTracker) GetOrCreateEntry(key string) (*InFlightEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.entries[key]; exists {
		entry.mu.Lock()
		entry.waiters++
		entry.mu.Unlock()
		return entry, false
	}

	entry := &InFlightEntry{
		done: make(chan struct{}),
	}
	t.entries[key] = entry
	return entry, true
}

// Complete settles the entry for key and releases all waiters with the same
// outcome. The entry is removed from the tracker before waiters are released,
// so the very next call for the key starts a fresh attempt and re-checks the
// cache.
func (t *InFlightTracker) Complete(key string, value any, err error) {
	t.mu.Lock()
	entry, exists := t.entries[key]
	if exists {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if !exists {
		return
	}
	entry.settle(value, err)
}

// Len reports the number of keys currently in flight.
func (t *InFlightTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Clear removes all entries, failing any pending waiters with ErrReset.
// Owners of cleared entries complete into the void; Complete tolerates the
// missing key.
func (t *InFlightTracker) Clear() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*InFlightEntry)
	t.mu.Unlock()

	for _, entry := range entries {
		entry.settle(nil, ErrReset)
	}
}

func (e *InFlightEntry) settle(value any, err error) {
	e.mu.Lock()
	e.value = value
	e.err = err
	close(e.done)
	e.mu.Unlock()
}

// Wait blocks until the owning request settles or ctx is done. Abandoning a
// wait does not affect the underlying request or its other waiters.
func (e *InFlightEntry) Wait(ctx context.Context) (any, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		value := e.value
		err := e.err
		e.mu.Unlock()
		return value, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Waiters reports how many callers attached to this entry after the owner.
func (e *InFlightEntry) Waiters() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.waiters
}
