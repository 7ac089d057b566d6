package typeindex

import (
	"reflect"
	"sync"
)

// Of returns the key for type T.
func Of[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Index stores one value per Go type.
// It uses sync.RWMutex because lookups vastly outnumber insertions.
type Index[V any] struct {
	mu      sync.RWMutex
	entries map[reflect.Type]V
	order   []reflect.Type
}

// New creates an empty index.
func New[V any]() *Index[V] {
	return &Index[V]{
		entries: make(map[reflect.Type]V),
	}
}

// Get returns the value stored for t and whether it exists.
func (x *Index[V]) Get(t reflect.Type) (V, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	v, ok := x.entries[t]
	return v, ok
}

// Set stores v for t, replacing any previous value.
func (x *Index[V]) Set(t reflect.Type, v V) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.entries[t]; !ok {
		x.order = append(x.order, t)
	}
	x.entries[t] = v
}

// GetOrCreate returns the value for t, creating it with factory on first use.
// The factory runs at most once per key, even under concurrent access.
func (x *Index[V]) GetOrCreate(t reflect.Type, factory func() V) V {
	x.mu.RLock()
	v, ok := x.entries[t]
	x.mu.RUnlock()
	if ok {
		return v
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if v, ok := x.entries[t]; ok {
		return v
	}

	v = factory()
	x.entries[t] = v
	x.order = append(x.order, t)
	return v
}

// Has reports whether a value is stored for t.
func (x *Index[V]) Has(t reflect.Type) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.entries[t]
	return ok
}

// Delete removes the value for t.
func (x *Index[V]) Delete(t reflect.Type) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.entries[t]; !ok {
		return
	}
	delete(x.entries, t)
	for i, k := range x.order {
		if k == t {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
}

// Keys returns the stored types in first-insertion order.
func (x *Index[V]) Keys() []reflect.Type {
	x.mu.RLock()
	defer x.mu.RUnlock()
	keys := make([]reflect.Type, len(x.order))
	copy(keys, x.order)
	return keys
}

// Len returns the number of stored types.
func (x *Index[V]) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Range calls fn for every entry in first-insertion order until fn returns
// false. It iterates over a snapshot taken under the read lock.
func (x *Index[V]) Range(fn func(reflect.Type, V) bool) {
	x.mu.RLock()
	keys := make([]reflect.Type, len(x.order))
	copy(keys, x.order)
	values := make([]V, len(keys))
	for i, k := range keys {
		values[i] = x.entries[k]
	}
	x.mu.RUnlock()

	for i, k := range keys {
		if !fn(k, values[i]) {
			return
		}
	}
}

// Clear removes every entry.
func (x *Index[V]) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[reflect.Type]V)
	x.order = nil
}
