package eventbus

import (
	"reflect"
)

// wrapper is the per-subscription record a Bus keeps. It caches the
// subscriber's name and priority and its position in the owning channel.
type wrapper struct {
	subscriber Subscriber
	child      *Bus
	key        reflect.Type
	name       string
	priority   int
	index      int
	seq        uint64
	bus        *Bus

	// gen changes on every release so a dispatch snapshot can tell a
	// recycled wrapper from the one it captured.
	gen uint32
}

// wrapperPool recycles wrappers as a free-list stack.
type wrapperPool struct {
	free      []*wrapper
	allocated int
}

func newWrapperPool(prealloc int) *wrapperPool {
	p := &wrapperPool{free: make([]*wrapper, 0, prealloc)}
	for i := 0; i < prealloc; i++ {
		p.free = append(p.free, &wrapper{index: -1})
	}
	p.allocated = prealloc
	return p
}

func (p *wrapperPool) acquire(sub Subscriber, key reflect.Type) *wrapper {
	var w *wrapper
	if n := len(p.free); n > 0 {
		w = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		w = &wrapper{}
		p.allocated++
	}

	w.subscriber = sub
	w.key = key
	w.index = -1
	w.priority = DefaultPriority
	if pr, ok := sub.(Prioritized); ok {
		w.priority = pr.Priority()
	}
	if n, ok := sub.(Named); ok && n.Name() != "" {
		w.name = n.Name()
	} else {
		w.name = reflect.TypeOf(sub).String()
	}
	return w
}

func (p *wrapperPool) release(w *wrapper) {
	*w = wrapper{index: -1, gen: w.gen + 1}
	p.free = append(p.free, w)
}

// idle returns the number of wrappers waiting in the pool.
func (p *wrapperPool) idle() int {
	return len(p.free)
}

// channel is a priority-ordered list of wrappers. Entries with equal
// priority keep subscription order.
type channel struct {
	items []*wrapper
}

func (ch *channel) insert(w *wrapper) {
	i := len(ch.items)
	for i > 0 && ch.items[i-1].priority > w.priority {
		i--
	}
	ch.items = append(ch.items, nil)
	copy(ch.items[i+1:], ch.items[i:])
	ch.items[i] = w
	for j := i; j < len(ch.items); j++ {
		ch.items[j].index = j
	}
}

func (ch *channel) remove(w *wrapper) bool {
	i := w.index
	if i < 0 || i >= len(ch.items) || ch.items[i] != w {
		return false
	}
	copy(ch.items[i:], ch.items[i+1:])
	last := len(ch.items) - 1
	ch.items[last] = nil
	ch.items = ch.items[:last]
	for j := i; j < len(ch.items); j++ {
		ch.items[j].index = j
	}
	w.index = -1
	return true
}

// before orders wrappers by priority, then subscription order.
func before(a, b *wrapper) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}
