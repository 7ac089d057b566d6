package eventbus

import (
	"fmt"

	"github.com/google/uuid"
)

// Binding is a subscriber slot of a Registry. It stores the callback and the
// slot's current position in the registry's dense array, or -1 while it is
// not registered.
//
// A Binding belongs to at most one registry at a time. Registering a binding
// that is already registered anywhere is a no-op.
type Binding[T any] struct {
	fn       func(T)
	name     string
	priority int
	index    int
	owner    *Registry[T]

	// gen changes on every Register so a Raise snapshot can tell a
	// re-registration from the registration it captured.
	gen uint32

	// onClear runs when a bulk Clear drops the binding.
	onClear func()
}

// NewBinding creates an unregistered binding for fn.
func NewBinding[T any](fn func(T), opts ...SubscriberOption) *Binding[T] {
	cfg := newSubscriberConfig(opts)
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("binding-%s", uuid.New().String()[:8])
	}
	return &Binding[T]{
		fn:       fn,
		name:     cfg.name,
		priority: cfg.priority,
		index:    -1,
	}
}

// Name returns the display name.
func (b *Binding[T]) Name() string {
	return b.name
}

// Priority returns the priority carried by the binding.
func (b *Binding[T]) Priority() int {
	return b.priority
}

// Index returns the slot position, or -1 when unregistered.
func (b *Binding[T]) Index() int {
	return b.index
}

// Registered reports whether the binding is in a registry.
func (b *Binding[T]) Registered() bool {
	return b.owner != nil
}
