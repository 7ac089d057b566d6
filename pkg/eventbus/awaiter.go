package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/randalmurphal/eventbus/pkg/eventbus/typeindex"
)

// AwaiterState is the lifecycle state of an Awaiter.
type AwaiterState int32

const (
	// AwaiterIdle is the state before Arm.
	AwaiterIdle AwaiterState = iota
	// AwaiterArmed is subscribed and waiting for the next event.
	AwaiterArmed
	// AwaiterResolved received an event and unsubscribed.
	AwaiterResolved
	// AwaiterCancelled was cancelled or dropped by a reset.
	AwaiterCancelled
)

// String returns the state name.
func (s AwaiterState) String() string {
	switch s {
	case AwaiterIdle:
		return "idle"
	case AwaiterArmed:
		return "armed"
	case AwaiterResolved:
		return "resolved"
	case AwaiterCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("AwaiterState(%d)", int32(s))
	}
}

// Awaiter resolves with the next event of type T. Once armed it subscribes
// itself, and on the first event it stores the value, unsubscribes and
// closes Done. Later events are ignored.
//
// Arm, Cancel and Release belong to the dispatch goroutine. Wait, Done and
// State may be used from any goroutine.
type Awaiter[T any] struct {
	pool    *awaiterPool[T]
	reg     *Registry[T]
	bus     *Bus
	binding *Binding[T]
	name    string

	state  atomic.Int32
	done   chan struct{}
	result T

	released bool
}

// NewAwaiter returns an idle awaiter for the registry of T in c.
//
// Example:
//
//	a := eventbus.NewAwaiter[LevelLoaded](ctx)
//	a.Arm()
//	go func() {
//	    evt, err := a.Wait(reqCtx)
//	    ...
//	}()
func NewAwaiter[T any](c *Context) *Awaiter[T] {
	a := awaiterPoolFor[T](c).get()
	a.reg = RegistryFor[T](c)
	return a
}

// AwaitBus returns an idle awaiter that subscribes to b.
func AwaitBus[T any](b *Bus) *Awaiter[T] {
	a := awaiterPoolFor[T](b.ctx).get()
	a.bus = b
	return a
}

// EventType implements Subscriber.
func (a *Awaiter[T]) EventType() reflect.Type {
	return typeindex.Of[T]()
}

// Name implements Named.
func (a *Awaiter[T]) Name() string {
	return a.name
}

// React implements Listener. It resolves an armed awaiter.
func (a *Awaiter[T]) React(evt T) {
	a.resolve(evt)
}

// Arm subscribes the awaiter. It returns false unless the awaiter is idle.
func (a *Awaiter[T]) Arm() bool {
	if a.State() != AwaiterIdle {
		return false
	}
	a.state.Store(int32(AwaiterArmed))

	var ok bool
	if a.bus != nil {
		ok = a.bus.Subscribe(a)
	} else {
		ok = a.reg.Register(a.binding)
	}
	if !ok {
		a.state.Store(int32(AwaiterIdle))
	}
	return ok
}

func (a *Awaiter[T]) resolve(evt T) {
	if a.State() != AwaiterArmed {
		return
	}
	a.result = evt
	a.detach()
	a.state.Store(int32(AwaiterResolved))
	close(a.done)
}

func (a *Awaiter[T]) detach() {
	if a.bus != nil {
		a.bus.Unsubscribe(a)
		return
	}
	a.reg.Unregister(a.binding)
}

// detached is called when a bulk clear dropped the subscription.
func (a *Awaiter[T]) detached() {
	if a.State() != AwaiterArmed {
		return
	}
	a.state.Store(int32(AwaiterCancelled))
	close(a.done)
}

// Cancel unsubscribes an armed awaiter and wakes waiters with
// ErrAwaiterCancelled. It returns false unless the awaiter is armed.
func (a *Awaiter[T]) Cancel() bool {
	if a.State() != AwaiterArmed {
		return false
	}
	a.detach()
	a.state.Store(int32(AwaiterCancelled))
	close(a.done)
	return true
}

// State returns the current state.
func (a *Awaiter[T]) State() AwaiterState {
	return AwaiterState(a.state.Load())
}

// Done is closed when the awaiter resolves or is cancelled.
func (a *Awaiter[T]) Done() <-chan struct{} {
	return a.done
}

// Result returns the event once resolved.
func (a *Awaiter[T]) Result() (T, bool) {
	if a.State() != AwaiterResolved {
		var zero T
		return zero, false
	}
	return a.result, true
}

// Wait blocks until the awaiter resolves, is cancelled, or ctx is done.
func (a *Awaiter[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	if a.State() == AwaiterIdle {
		return zero, ErrAwaiterNotArmed
	}
	select {
	case <-a.done:
		if a.State() == AwaiterResolved {
			return a.result, nil
		}
		return zero, ErrAwaiterCancelled
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Release cancels the awaiter if armed and returns it to its pool. The
// awaiter must not be used afterwards, and nothing may still be waiting on it.
// Releasing twice is a no-op.
func (a *Awaiter[T]) Release() {
	if a.released {
		return
	}
	a.Cancel()
	a.released = true
	a.pool.put(a)
}

type awaiterPool[T any] struct {
	name string
	free []*Awaiter[T]
}

func awaiterPoolFor[T any](c *Context) *awaiterPool[T] {
	p := c.awaiters.GetOrCreate(typeindex.Of[T](), func() any {
		return &awaiterPool[T]{name: fmt.Sprintf("awaiter[%s]", typeindex.Of[T]())}
	})
	return p.(*awaiterPool[T])
}

func (p *awaiterPool[T]) get() *Awaiter[T] {
	var a *Awaiter[T]
	if n := len(p.free); n > 0 {
		a = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		a = &Awaiter[T]{pool: p, name: p.name}
		a.binding = NewBinding(a.resolve, WithName(p.name))
		a.binding.onClear = a.detached
	}
	a.released = false
	a.state.Store(int32(AwaiterIdle))
	a.done = make(chan struct{})
	return a
}

func (p *awaiterPool[T]) put(a *Awaiter[T]) {
	var zero T
	a.result = zero
	a.reg = nil
	a.bus = nil
	p.free = append(p.free, a)
}
