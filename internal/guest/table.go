// Package guest holds the runtime support for the Wasm guest: object tables
// for values that cross the ABI as opaque ids, and diagnostics routed to the
// host.
package guest

// Table maps opaque ids to guest objects. Ids start at 1; 0 is never issued
// so hosts can treat it as "no object". Not safe for concurrent use, matching
// the single-threaded guest.
type Table[T any] struct {
	items map[uint32]T
	next  uint32
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		items: make(map[uint32]T),
		next:  1,
	}
}

// Put stores v and returns its id.
func (t *Table[T]) Put(v T) uint32 {
	id := t.next
	t.next++
	if t.next == 0 {
		t.next = 1
	}
	t.items[id] = v
	return id
}

// Get returns the object for id.
func (t *Table[T]) Get(id uint32) (T, bool) {
	v, ok := t.items[id]
	return v, ok
}

// Delete removes id and returns the object it held.
func (t *Table[T]) Delete(id uint32) (T, bool) {
	v, ok := t.items[id]
	if ok {
		delete(t.items, id)
	}
	return v, ok
}

// Len returns the number of live objects.
func (t *Table[T]) Len() int {
	return len(t.items)
}
