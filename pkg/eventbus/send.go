package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/typeindex"
)

// Invoker decides how a listener is called during a Send. It lets callers
// filter or decorate delivery without touching the listeners.
type Invoker[T any] interface {
	Invoke(evt T, l Listener[T])
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc[T any] func(evt T, l Listener[T])

// Invoke calls f.
func (f InvokerFunc[T]) Invoke(evt T, l Listener[T]) {
	f(evt, l)
}

// DefaultInvoker calls React.
type DefaultInvoker[T any] struct{}

// Invoke calls l.React(evt).
func (DefaultInvoker[T]) Invoke(evt T, l Listener[T]) {
	l.React(evt)
}

// ConditionalInvoker delivers only to listeners accepted by Filter. Child
// buses are always traversed; the filter applies to the listeners inside them.
type ConditionalInvoker[T any] struct {
	Filter func(Subscriber) bool
	// Next is called for accepted listeners. Default: DefaultInvoker.
	Next Invoker[T]
}

// Invoke calls Next (or React) when Filter accepts l.
func (c ConditionalInvoker[T]) Invoke(evt T, l Listener[T]) {
	if c.Filter != nil && !c.Filter(l) {
		return
	}
	if c.Next != nil {
		c.Next.Invoke(evt, l)
		return
	}
	l.React(evt)
}

// Send delivers evt to the bus's listeners of type T and to every child bus,
// in ascending priority.
//
// Send iterates a snapshot. Subscribers added during the Send are not
// reached by it; subscribers removed before being reached are skipped.
func Send[T any](b *Bus, evt T) {
	SendWith[T](b, evt, DefaultInvoker[T]{})
}

// SendIf delivers evt only to listeners for which pred returns true.
func SendIf[T any](b *Bus, evt T, pred func(Subscriber) bool) {
	SendWith[T](b, evt, ConditionalInvoker[T]{Filter: pred})
}

// SendWith delivers evt through inv.
func SendWith[T any](b *Bus, evt T, inv Invoker[T]) {
	sendWith(b, evt, inv)
}

func sendWith[T any](b *Bus, evt T, inv Invoker[T]) int {
	if b == nil || b.closed {
		return 0
	}
	key := typeindex.Of[T]()

	if !b.ctx.measure {
		return send(b, key, evt, inv, 0)
	}
	start := time.Now()
	n := send(b, key, evt, inv, 0)
	b.ctx.metrics.RecordDispatch(context.Background(), key.String(), n, time.Since(start))
	return n
}

// SendContext is Send wrapped in a span. It returns ctx.Err() without
// sending when ctx is done, and the last *SubscriberFault when a subscriber
// panicked during this Send.
func SendContext[T any](ctx context.Context, b *Bus, evt T) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b == nil || b.closed {
		return nil
	}

	c := b.ctx
	spanCtx, span := c.spans.StartSendSpan(ctx, b.name, typeindex.Of[T]().String())
	defer func() {
		if v := recover(); v != nil {
			c.spans.EndSpanWithError(span, fmt.Errorf("send panicked: %v", v))
			panic(v)
		}
		c.spans.EndSpanWithError(span, err)
	}()

	before := c.faultCount
	n := sendWith[T](b, evt, DefaultInvoker[T]{})
	c.spans.AddSpanEvent(spanCtx, "delivered", attribute.Int("receivers", n))

	if c.faultCount != before {
		return c.lastFault
	}
	return nil
}

func send[T any](b *Bus, key reflect.Type, evt T, inv Invoker[T], depth int) int {
	if depth > b.ctx.settings.MaxForwardDepth {
		observability.LogForwardDepth(b.logger, b.name, key.String(), depth)
		return 0
	}

	var local []*wrapper
	if ch := b.channels[key]; ch != nil {
		local = ch.items
	}
	forwards := b.forwards.items
	n := len(local) + len(forwards)
	if n == 0 {
		return 0
	}

	snap := b.takeScratch(n)
	defer b.putScratch(snap)
	merge(snap, local, forwards)

	delivered := 0
	for _, e := range snap {
		w := e.w
		// Removed (and maybe recycled) by an earlier subscriber.
		if w.gen != e.gen || w.bus != b {
			continue
		}
		if w.child != nil {
			if !w.child.closed {
				delivered += send(w.child, key, evt, inv, depth+1)
			}
			continue
		}
		l, ok := w.subscriber.(Listener[T])
		if !ok {
			continue
		}
		invoke(b, w, l, key, evt, inv)
		delivered++
	}
	return delivered
}

func invoke[T any](b *Bus, w *wrapper, l Listener[T], key reflect.Type, evt T, inv Invoker[T]) {
	defer b.recoverWrapper(w.name, key)
	if b.ctx.settings.SlowSubscriber > 0 {
		name := w.name
		start := time.Now()
		inv.Invoke(evt, l)
		b.ctx.slow(name, key, time.Since(start))
		return
	}
	inv.Invoke(evt, l)
}

// merge fills dst with local and forwards interleaved in delivery order.
func merge(dst []entry, local, forwards []*wrapper) {
	i, j, k := 0, 0, 0
	for i < len(local) && j < len(forwards) {
		if before(forwards[j], local[i]) {
			dst[k] = entry{forwards[j], forwards[j].gen}
			j++
		} else {
			dst[k] = entry{local[i], local[i].gen}
			i++
		}
		k++
	}
	for ; i < len(local); i++ {
		dst[k] = entry{local[i], local[i].gen}
		k++
	}
	for ; j < len(forwards); j++ {
		dst[k] = entry{forwards[j], forwards[j].gen}
		k++
	}
}

// Install subscribes each subscriber to the global bus of c and returns how
// many were added.
func Install(c *Context, subs ...Subscriber) int {
	n := 0
	g := c.Global()
	for _, sub := range subs {
		if g.Subscribe(sub) {
			n++
		}
	}
	return n
}
