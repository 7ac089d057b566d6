package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/typeindex"
)

// Registry holds the subscribers of one event type in a dense slot array.
//
// Register appends in amortized O(1), doubling the array when it is full.
// Unregister swap-removes in O(1): the last slot moves into the vacated
// position and its stored index is updated. Raise delivers to every slot in
// array order, then drains the one-shot callbacks.
//
// Raise iterates a snapshot of the slots. Bindings registered while a Raise
// is running are not reached by it, including bindings that were unregistered
// and registered again; bindings unregistered while it is running are skipped
// if not yet reached. A subscriber may unregister itself from its own callback.
type Registry[T any] struct {
	ctx      *Context
	key      reflect.Type
	keyName  string
	bindings []*Binding[T]
	count    int
	once     []func(T)

	// scratch is a stack of snapshot buffers, one per nested Raise.
	scratch [][]slotRef[T]
}

// slotRef pins a binding to the registration it had when the snapshot was
// taken.
type slotRef[T any] struct {
	b   *Binding[T]
	gen uint32
}

// NewRegistry creates a standalone registry that isn't owned by any Context
// and isn't affected by Context.Reset. It reports faults through a private
// default Context.
func NewRegistry[T any]() *Registry[T] {
	return newRegistry[T](standaloneContext())
}

func newRegistry[T any](c *Context) *Registry[T] {
	key := typeindex.Of[T]()
	return &Registry[T]{
		ctx:     c,
		key:     key,
		keyName: key.String(),
	}
}

// EventType returns the registry's event type.
func (r *Registry[T]) EventType() reflect.Type {
	return r.key
}

// Register adds b to the registry. It returns false when b is nil, has no
// callback or is already registered.
func (r *Registry[T]) Register(b *Binding[T]) bool {
	if b == nil || b.fn == nil || b.owner != nil {
		return false
	}
	if r.count == len(r.bindings) {
		r.grow()
	}

	b.index = r.count
	b.owner = r
	b.gen++
	r.bindings[r.count] = b
	r.count++

	if r.ctx.debugLog {
		observability.LogSubscribe(r.ctx.logger, "", b.name, r.keyName, b.priority)
	}
	if r.ctx.measure {
		r.ctx.metrics.RecordSubscription(context.Background(), r.keyName, 1)
	}
	return true
}

// On registers fn and returns its binding.
func (r *Registry[T]) On(fn func(T), opts ...SubscriberOption) *Binding[T] {
	b := NewBinding(fn, opts...)
	r.Register(b)
	return b
}

func (r *Registry[T]) grow() {
	n := len(r.bindings) * 2
	if n == 0 {
		n = r.ctx.settings.InitialCapacity
	}
	next := make([]*Binding[T], n)
	copy(next, r.bindings[:r.count])
	r.bindings = next
}

// Unregister removes b. It returns false when b is not registered here.
func (r *Registry[T]) Unregister(b *Binding[T]) bool {
	if b == nil || b.owner != r {
		return false
	}

	i := b.index
	if i < 0 || i >= r.count || r.bindings[i] != b {
		r.ctx.desync("binding %s of %s claims slot %d of %d", b.name, r.keyName, i, r.count)
		return false
	}

	last := r.count - 1
	if i != last {
		moved := r.bindings[last]
		r.bindings[i] = moved
		moved.index = i
	}
	r.bindings[last] = nil
	r.count = last
	b.index = -1
	b.owner = nil

	if r.ctx.settings.Debug && i < r.count && r.bindings[i].index != i {
		r.ctx.desync("slot %d of %s holds index %d after removal", i, r.keyName, r.bindings[i].index)
	}
	if r.ctx.debugLog {
		observability.LogUnsubscribe(r.ctx.logger, "", b.name, r.keyName)
	}
	if r.ctx.measure {
		r.ctx.metrics.RecordSubscription(context.Background(), r.keyName, -1)
	}
	return true
}

// Once queues fn for the next Raise only. One-shot callbacks run after the
// registered bindings, in the order they were queued. A one-shot callback
// queued during a Raise waits for the next one.
func (r *Registry[T]) Once(fn func(T)) {
	if fn == nil {
		return
	}
	r.once = append(r.once, fn)
}

// Raise delivers evt to every registered binding, then to every pending
// one-shot callback. With no subscribers it does nothing.
func (r *Registry[T]) Raise(evt T) {
	if r.count == 0 && len(r.once) == 0 {
		return
	}

	var start time.Time
	if r.ctx.measure {
		start = time.Now()
	}

	delivered := 0
	if r.count > 0 {
		delivered += r.raiseBindings(evt)
	}
	if len(r.once) > 0 {
		delivered += r.drainOnce(evt)
	}

	if r.ctx.measure {
		r.ctx.metrics.RecordDispatch(context.Background(), r.keyName, delivered, time.Since(start))
	}
}

func (r *Registry[T]) raiseBindings(evt T) int {
	snap := r.takeScratch(r.count)
	defer r.putScratch(snap)
	for i, b := range r.bindings[:r.count] {
		snap[i] = slotRef[T]{b: b, gen: b.gen}
	}

	delivered := 0
	for _, ref := range snap {
		// Unregistered by an earlier subscriber, maybe registered again.
		if ref.b.owner != r || ref.b.gen != ref.gen {
			continue
		}
		r.call(ref.b, evt)
		delivered++
	}
	return delivered
}

// drainOnce runs the pending one-shot callbacks. Each is dropped just before
// it runs; when a fault propagates, the ones not yet run stay queued ahead of
// any queued meanwhile.
func (r *Registry[T]) drainOnce(evt T) int {
	pending := r.once
	r.once = nil

	i := 0
	defer func() {
		if i < len(pending) {
			r.once = append(slices.Clip(pending[i:]), r.once...)
		}
	}()
	for i < len(pending) {
		fn := pending[i]
		pending[i] = nil
		i++
		r.callOnce(fn, evt)
	}
	return i
}

func (r *Registry[T]) call(b *Binding[T], evt T) {
	defer r.recoverBinding(b)
	if r.ctx.settings.SlowSubscriber > 0 {
		start := time.Now()
		b.fn(evt)
		r.ctx.slow(b.name, r.key, time.Since(start))
		return
	}
	b.fn(evt)
}

func (r *Registry[T]) callOnce(fn func(T), evt T) {
	defer r.recoverOnce()
	fn(evt)
}

func (r *Registry[T]) recoverBinding(b *Binding[T]) {
	if v := recover(); v != nil {
		r.ctx.fault(v, "", b.name, r.key)
	}
}

func (r *Registry[T]) recoverOnce() {
	if v := recover(); v != nil {
		r.ctx.fault(v, "", "once", r.key)
	}
}

func (r *Registry[T]) takeScratch(n int) []slotRef[T] {
	if k := len(r.scratch); k > 0 {
		buf := r.scratch[k-1]
		r.scratch = r.scratch[:k-1]
		if cap(buf) >= n {
			return buf[:n]
		}
	}
	return make([]slotRef[T], n, max(n, len(r.bindings)))
}

func (r *Registry[T]) putScratch(buf []slotRef[T]) {
	clear(buf)
	r.scratch = append(r.scratch, buf[:0])
}

// Clear unregisters every binding and drops pending one-shot callbacks.
// The backing array is kept.
func (r *Registry[T]) Clear() {
	n := r.count
	if n == 0 && len(r.once) == 0 {
		return
	}

	var dropped []func()
	for i := 0; i < n; i++ {
		b := r.bindings[i]
		b.index = -1
		b.owner = nil
		if b.onClear != nil {
			dropped = append(dropped, b.onClear)
		}
		r.bindings[i] = nil
	}
	r.count = 0
	r.once = nil

	if r.ctx.measure && n > 0 {
		r.ctx.metrics.RecordSubscription(context.Background(), r.keyName, -int64(n))
	}
	for _, fn := range dropped {
		fn()
	}
}

// Len returns the number of registered bindings.
func (r *Registry[T]) Len() int {
	return r.count
}

// Cap returns the size of the backing array.
func (r *Registry[T]) Cap() int {
	return len(r.bindings)
}

// Pending returns the number of queued one-shot callbacks.
func (r *Registry[T]) Pending() int {
	return len(r.once)
}

// Contains reports whether b is registered here.
func (r *Registry[T]) Contains(b *Binding[T]) bool {
	return b != nil && b.owner == r
}

// Range calls fn for each binding in delivery order until fn returns false.
// fn must not register or unregister.
func (r *Registry[T]) Range(fn func(*Binding[T]) bool) {
	for i := 0; i < r.count; i++ {
		if !fn(r.bindings[i]) {
			return
		}
	}
}

// Validate checks that every slot's stored index matches its position and
// that the tail of the array is empty.
func (r *Registry[T]) Validate() error {
	if r.count > len(r.bindings) {
		return fmt.Errorf("%w: count %d exceeds capacity %d", ErrIndexDesync, r.count, len(r.bindings))
	}
	for i := 0; i < r.count; i++ {
		b := r.bindings[i]
		switch {
		case b == nil:
			return fmt.Errorf("%w: slot %d is empty", ErrIndexDesync, i)
		case b.index != i:
			return fmt.Errorf("%w: slot %d holds index %d", ErrIndexDesync, i, b.index)
		case b.owner != r:
			return fmt.Errorf("%w: slot %d is owned by another registry", ErrIndexDesync, i)
		}
	}
	for i := r.count; i < len(r.bindings); i++ {
		if r.bindings[i] != nil {
			return fmt.Errorf("%w: slot %d past count is occupied", ErrIndexDesync, i)
		}
	}
	return nil
}

// RegistryFor returns the registry for T, creating it on first use.
// Callers on a hot path may keep the returned registry and call Raise on it
// directly.
func RegistryFor[T any](c *Context) *Registry[T] {
	h := c.registries.GetOrCreate(typeindex.Of[T](), func() registryHandle {
		return newRegistry[T](c)
	})
	return h.(*Registry[T])
}

// On registers fn for events of type T on c.
//
// Example:
//
//	b := eventbus.On(ctx, func(e Scored) { total += e.Points })
//	defer eventbus.Unregister(ctx, b)
func On[T any](c *Context, fn func(T), opts ...SubscriberOption) *Binding[T] {
	return RegistryFor[T](c).On(fn, opts...)
}

// Register adds b to the registry for T.
func Register[T any](c *Context, b *Binding[T]) bool {
	return RegistryFor[T](c).Register(b)
}

// Unregister removes b from the registry for T.
func Unregister[T any](c *Context, b *Binding[T]) bool {
	return RegistryFor[T](c).Unregister(b)
}

// Once queues fn for the next Raise of T.
func Once[T any](c *Context, fn func(T)) {
	RegistryFor[T](c).Once(fn)
}

// Raise delivers evt to the registry for T.
func Raise[T any](c *Context, evt T) {
	RegistryFor[T](c).Raise(evt)
}
