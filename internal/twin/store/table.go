// Package store holds the storefront twin's in-memory state: an ordered,
// thread-safe table type, a simulated clock, and the catalog, orders,
// gateway sessions and OTP codes built from them.
package store

import (
	"sort"
	"sync"
	"time"
)

// Table is an ordered, thread-safe map of records keyed by id.
type Table[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{items: make(map[string]T)}
}

// Set stores item under id. Overwriting keeps the original position.
func (t *Table[T]) Set(id string, item T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.items[id]; !exists {
		t.order = append(t.order, id)
	}
	t.items[id] = item
}

// Get returns the item under id.
func (t *Table[T]) Get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[id]
	return item, ok
}

// Update applies fn to the item under id while holding the write lock.
// The item is stored back only when fn returns true. Update reports
// whether id existed.
func (t *Table[T]) Update(id string, fn func(item *T) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return false
	}
	if fn(&item) {
		t.items[id] = item
	}
	return true
}

// Delete removes id and reports whether it existed.
func (t *Table[T]) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.items[id]; !exists {
		return false
	}
	delete(t.items, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns every item in insertion order.
func (t *Table[T]) List() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id])
	}
	return out
}

// Filter returns the items matching keep, in insertion order.
func (t *Table[T]) Filter(keep func(item T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	for _, id := range t.order {
		if keep(t.items[id]) {
			out = append(out, t.items[id])
		}
	}
	return out
}

// Count returns the number of items.
func (t *Table[T]) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Reset removes every item.
func (t *Table[T]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[string]T)
	t.order = nil
}

// Snapshot copies the table into a plain map.
func (t *Table[T]) Snapshot() map[string]T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]T, len(t.items))
	for k, v := range t.items {
		out[k] = v
	}
	return out
}

// Load replaces the contents with snapshot. Ids are ordered
// lexicographically since map order is lost.
func (t *Table[T]) Load(snapshot map[string]T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[string]T, len(snapshot))
	t.order = make([]string, 0, len(snapshot))
	for k, v := range snapshot {
		t.items[k] = v
		t.order = append(t.order, k)
	}
	sort.Strings(t.order)
}

// Clock is a simulated clock: real time shifted by an adjustable offset.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// NewClock creates a clock with no offset.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Offset returns the current offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Reset returns the clock to real time.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}
