package handle

import (
	"sync"
)

// Table maps handles to values of one record type.
// Iteration order is insertion order.
type Table[T any] struct {
	alloc     Allocator
	entries   map[Handle]T
	order     []Handle
	observers []Observer[T]
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty table with its own handle namespace.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries: make(map[Handle]T),
	}
}

// Reserve issues a handle from the table's namespace without storing
// anything. Use Put to bind it later.
func (t *Table[T]) Reserve() Handle {
	return t.alloc.Next()
}

// Insert stores a value under a fresh handle. Returns Invalid once the
// table is closed.
func (t *Table[T]) Insert(value T) Handle {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Invalid
	}
	h := t.alloc.Next()
	t.entries[h] = value
	t.order = append(t.order, h)
	t.mu.Unlock()

	t.notify(Event[T]{Type: EventCreated, Handle: h, Value: value})
	return h
}

// Put stores a value under a caller-chosen handle. It fails if the handle
// is invalid, already bound, or the table is closed.
func (t *Table[T]) Put(h Handle, value T) bool {
	if !h.Valid() {
		return false
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if _, exists := t.entries[h]; exists {
		t.mu.Unlock()
		return false
	}
	t.entries[h] = value
	t.order = append(t.order, h)
	t.mu.Unlock()

	t.notify(Event[T]{Type: EventCreated, Handle: h, Value: value})
	return true
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[h]
	return v, ok
}

// Contains reports whether h is bound.
func (t *Table[T]) Contains(h Handle) bool {
	_, ok := t.Get(h)
	return ok
}

// Remove drops a record and returns (value, true) if found.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	t.mu.Lock()
	v, ok := t.entries[h]
	if !ok {
		t.mu.Unlock()
		return v, false
	}
	delete(t.entries, h)
	for i, oh := range t.order {
		if oh == h {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	t.notify(Event[T]{Type: EventDropped, Handle: h, Value: v})
	return v, true
}

// Len returns the number of live records.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// List returns up to limit live handles in insertion order. A negative
// limit means no limit.
func (t *Table[T]) List(limit int) []Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.order)
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]Handle, n)
	copy(out, t.order[:n])
	return out
}

// Each iterates over a snapshot of the live records. Returning false stops
// the iteration.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	handles := make([]Handle, len(t.order))
	copy(handles, t.order)
	values := make([]T, len(handles))
	for i, h := range handles {
		values[i] = t.entries[h]
	}
	t.mu.RUnlock()

	for i, h := range handles {
		if !fn(h, values[i]) {
			return
		}
	}
}

// Clear drops all records, notifying observers for each.
func (t *Table[T]) Clear() {
	for _, h := range t.List(-1) {
		t.Remove(h)
	}
}

// Close drops all records and stops accepting inserts.
func (t *Table[T]) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Clear()
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer[T]) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

func (t *Table[T]) notify(e Event[T]) {
	t.obsMu.RLock()
	observers := t.observers
	t.obsMu.RUnlock()
	for _, o := range observers {
		o.OnHandleEvent(e)
	}
}
