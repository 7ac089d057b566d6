package eventbus

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tick struct{ n int }

func newInternalContext(t *testing.T, s Settings) *Context {
	t.Helper()
	c := New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithSettings(s))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUnregister_DesyncPanicsInDebug(t *testing.T) {
	s := DefaultSettings()
	s.Debug = true
	c := newInternalContext(t, s)
	reg := RegistryFor[tick](c)

	a := reg.On(func(tick) {})
	reg.On(func(tick) {})
	a.index = 1

	assert.PanicsWithError(t, "subscriber index desync: binding "+a.name+" of eventbus.tick claims slot 1 of 2", func() {
		reg.Unregister(a)
	})
	assert.ErrorIs(t, reg.Validate(), ErrIndexDesync)
}

func TestUnregister_DesyncIgnoredInRelease(t *testing.T) {
	c := newInternalContext(t, DefaultSettings())
	reg := RegistryFor[tick](c)

	a := reg.On(func(tick) {})
	reg.On(func(tick) {})
	a.index = 1

	assert.NotPanics(t, func() {
		assert.False(t, reg.Unregister(a))
	})
	assert.Equal(t, 2, reg.Len())
}

func TestWrapperPool(t *testing.T) {
	p := newWrapperPool(2)
	assert.Equal(t, 2, p.idle())

	h := NewHandler(func(tick) {}, WithName("h"), WithPriority(7))
	w := p.acquire(h, h.EventType())
	assert.Equal(t, 1, p.idle())
	assert.Equal(t, "h", w.name)
	assert.Equal(t, 7, w.priority)
	assert.Equal(t, -1, w.index)

	gen := w.gen
	p.release(w)
	assert.Equal(t, 2, p.idle())
	assert.Equal(t, gen+1, w.gen)
	assert.Nil(t, w.subscriber)

	p.acquire(h, nil)
	p.acquire(h, nil)
	p.acquire(h, nil)
	assert.Equal(t, 3, p.allocated)
	assert.Zero(t, p.idle())
}

func TestWrapperPool_UnnamedSubscriber(t *testing.T) {
	p := newWrapperPool(0)
	w := p.acquire(&plainListener{}, nil)
	assert.Equal(t, "*eventbus.plainListener", w.name)
	assert.Equal(t, DefaultPriority, w.priority)
}

type plainListener struct{}

func (*plainListener) EventType() reflect.Type { return nil }

func TestChannel_InsertRemove(t *testing.T) {
	var ch channel
	mk := func(p int) *wrapper { return &wrapper{priority: p, index: -1} }

	a, b, c, d := mk(5), mk(1), mk(3), mk(1)
	for _, w := range []*wrapper{a, b, c, d} {
		ch.insert(w)
	}
	require.Equal(t, []*wrapper{b, d, c, a}, ch.items)
	for i, w := range ch.items {
		assert.Equal(t, i, w.index)
	}

	assert.True(t, ch.remove(d))
	assert.Equal(t, []*wrapper{b, c, a}, ch.items)
	assert.Equal(t, 1, c.index)
	assert.Equal(t, -1, d.index)
	assert.False(t, ch.remove(d))
}

func TestMerge(t *testing.T) {
	local := []*wrapper{{priority: 0, seq: 1}, {priority: 2, seq: 2}, {priority: 2, seq: 5}}
	forwards := []*wrapper{{priority: 1, seq: 3}, {priority: 2, seq: 4}}

	dst := make([]entry, 5)
	merge(dst, local, forwards)

	var seqs []uint64
	for _, e := range dst {
		seqs = append(seqs, e.w.seq)
	}
	assert.Equal(t, []uint64{1, 3, 2, 4, 5}, seqs)
}

func TestSend_ForwardDepthLimit(t *testing.T) {
	s := DefaultSettings()
	s.MaxForwardDepth = 1
	c := newInternalContext(t, s)

	top := c.NewBus(WithTargets(TargetNone))
	mid := c.NewBus(WithTargets(TargetFirstAncestor), WithParent(top))
	leaf := c.NewBus(WithTargets(TargetFirstAncestor), WithParent(mid))
	mid.Connect()
	leaf.Connect()

	var got []string
	mid.Subscribe(NewHandler(func(tick) { got = append(got, "mid") }))
	leaf.Subscribe(NewHandler(func(tick) { got = append(got, "leaf") }))

	Send(top, tick{})
	assert.Equal(t, []string{"mid"}, got)
}

func TestScratchBuffersReused(t *testing.T) {
	c := newInternalContext(t, DefaultSettings())
	reg := RegistryFor[tick](c)
	reg.On(func(tick) {})
	reg.On(func(tick) {})

	reg.Raise(tick{})
	require.Len(t, reg.scratch, 1)
	buf := reg.scratch[0]

	reg.Raise(tick{})
	require.Len(t, reg.scratch, 1)
	assert.Equal(t, cap(buf), cap(reg.scratch[0]))
}

func TestScratchBuffersReturnedAfterPropagatedFault(t *testing.T) {
	s := DefaultSettings()
	s.FaultPolicy = FaultPropagate
	c := newInternalContext(t, s)

	reg := RegistryFor[tick](c)
	reg.On(func(tick) { panic("raise") })
	reg.On(func(tick) {})
	for range 3 {
		assert.Panics(t, func() { reg.Raise(tick{}) })
	}
	assert.Len(t, reg.scratch, 1)

	bus := c.NewBus(WithTargets(TargetNone))
	bus.Subscribe(NewHandler(func(tick) { panic("send") }))
	bus.Subscribe(NewHandler(func(tick) {}))
	for range 3 {
		assert.Panics(t, func() { Send(bus, tick{}) })
	}
	assert.Len(t, bus.scratch, 1)
}
