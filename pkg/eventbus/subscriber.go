package eventbus

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/randalmurphal/eventbus/pkg/eventbus/typeindex"
)

// Subscriber is anything that can be subscribed to a Bus. EventType names
// the event type it reacts to. A *Bus reports nil and receives every event
// type its upstream bus carries.
//
// Subscribers are tracked by identity, so the dynamic type must be
// comparable. Pointer types are the usual choice.
type Subscriber interface {
	EventType() reflect.Type
}

// Listener reacts to events of type T.
type Listener[T any] interface {
	Subscriber
	React(evt T)
}

// Named subscribers supply their own display name.
type Named interface {
	Name() string
}

// Prioritized subscribers supply their own priority. Lower values are
// delivered first.
type Prioritized interface {
	Priority() int
}

// detacher is implemented by subscribers that need to know when a bulk
// clear dropped them.
type detacher interface {
	detached()
}

// Handler adapts a plain function to Listener[T].
type Handler[T any] struct {
	fn       func(T)
	name     string
	priority int
}

// NewHandler wraps fn as a Listener[T].
//
// Example:
//
//	h := eventbus.NewHandler(func(e Damage) { hp -= e.Amount }, eventbus.WithPriority(-1))
//	bus.Subscribe(h)
func NewHandler[T any](fn func(T), opts ...SubscriberOption) *Handler[T] {
	cfg := newSubscriberConfig(opts)
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("handler-%s", uuid.New().String()[:8])
	}
	return &Handler[T]{fn: fn, name: cfg.name, priority: cfg.priority}
}

// EventType implements Subscriber.
func (h *Handler[T]) EventType() reflect.Type {
	return typeindex.Of[T]()
}

// React implements Listener.
func (h *Handler[T]) React(evt T) {
	h.fn(evt)
}

// Name implements Named.
func (h *Handler[T]) Name() string {
	return h.name
}

// Priority implements Prioritized.
func (h *Handler[T]) Priority() int {
	return h.priority
}
