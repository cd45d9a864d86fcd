package optiq

import (
	"context"
	"sync"
	"time"
)

// DebounceFunc is the unit of work coalesced by the debouncer.
type DebounceFunc func(ctx context.Context) (any, error)

// debounceEntry holds one live debounce window for a key: the pending timer,
// the latest recorded invocation, and the outcome shared by every caller in
// the window.
type debounceEntry struct {
	timer *time.Timer
	gen   uint64
	fn    DebounceFunc
	ctx   context.Context

	done  chan struct{}
	value any
	err   error
}

// Debouncer coalesces rapid repeated calls per key. Each call resets the
// key's timer and replaces the recorded function; when the timer fires, the
// most recent function runs exactly once and settles every attached caller
// with its result. Entries are single-slot per key - latest invocation wins,
// earlier ones are discarded without execution.
type Debouncer struct {
	mu      sync.Mutex
	entries map[string]*debounceEntry

	// coalesceHook, if set, is called when a caller joins an already-armed
	// window rather than opening a new one.
	coalesceHook func(key string)
}

// NewDebouncer returns an in-memory debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{
		entries: make(map[string]*debounceEntry),
	}
}

// Do records fn as the latest invocation for key, restarts the key's timer
// for delay, and blocks until the window's single execution settles or ctx is
// done. Every caller sharing the key's window receives the same outcome.
//
// Stopping the previous timer and arming the next one happen under one lock;
// a stale timer that already fired is recognized by generation and ignored,
// so the old and new timer can never both execute the window.
func (d *Debouncer) Do(ctx context.Context, key string, fn DebounceFunc, delay time.Duration) (any, error) {
	d.mu.Lock()
	entry, exists := d.entries[key]
	if !exists {
		entry = &debounceEntry{done: make(chan struct{})}
		d.entries[key] = entry
	}
	entry.fn = fn
	entry.ctx = ctx
	entry.gen++
	gen := entry.gen
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(delay, func() {
		d.fire(key, gen)
	})
	hook := d.coalesceHook
	d.mu.Unlock()

	if exists && hook != nil {
		hook(key)
	}

	select {
	case <-entry.done:
		return entry.value, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fire executes the window for key if gen still identifies its latest arming.
func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	entry, exists := d.entries[key]
	if !exists || entry.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.entries, key)
	fn := entry.fn
	ctx := entry.ctx
	d.mu.Unlock()

	// Once fired the execution is not cancelable by the recorded caller;
	// detach its cancellation but keep its values.
	entry.value, entry.err = fn(context.WithoutCancel(ctx))
	close(entry.done)
}

// Len reports the number of keys with an armed window.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.entries)
}

// Clear stops all pending timers and fails waiting callers with ErrReset.
func (d *Debouncer) Clear() {
	d.mu.Lock()
	entries := d.entries
	d.entries = make(map[string]*debounceEntry)
	d.mu.Unlock()

	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.err = ErrReset
		close(entry.done)
	}
}
