package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// Targets selects the upstream buses a Bus joins when it connects.
type Targets uint8

const (
	// TargetNone keeps the bus standalone.
	TargetNone Targets = 0
	// TargetGlobal joins the global bus.
	TargetGlobal Targets = 1
	// TargetFirstAncestor joins the nearest open bus up the parent chain.
	TargetFirstAncestor Targets = 2
)

// String returns the targets joined by "|".
func (t Targets) String() string {
	if t == TargetNone {
		return "none"
	}
	var parts []string
	if t&TargetGlobal != 0 {
		parts = append(parts, "global")
	}
	if t&TargetFirstAncestor != 0 {
		parts = append(parts, "first_ancestor")
	}
	return strings.Join(parts, "|")
}

// Bus is a composable, priority-ordered event bus. It keeps one ordered
// channel per event type plus one channel of child buses. A Send reaches the
// local listeners of the event's type and every child bus, in ascending
// priority, ties broken by subscription order.
//
// A Bus is itself a Subscriber. Connect subscribes it to the upstream buses
// chosen by its Targets, so events sent upstream are forwarded down to it.
type Bus struct {
	ctx      *Context
	logger   *slog.Logger
	name     string
	priority int
	targets  Targets
	parent   *Bus

	channels map[reflect.Type]*channel
	order    []reflect.Type
	forwards channel
	members  map[Subscriber]*wrapper
	seq      uint64

	upstream  []*Bus
	connected bool
	closed    bool
	root      bool

	// scratch is a stack of snapshot buffers, one per nested Send.
	scratch [][]entry
}

type entry struct {
	w   *wrapper
	gen uint32
}

// NewBus creates a disconnected bus. Its owner calls Connect when it becomes
// active and Disconnect when it stops.
//
// Example:
//
//	hud := ctx.NewBus(eventbus.WithBusName("hud"), eventbus.WithTargets(eventbus.TargetGlobal))
//	hud.Connect()
//	defer hud.Close()
func (c *Context) NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		ctx:      c,
		targets:  TargetGlobal,
		channels: make(map[reflect.Type]*channel),
		members:  make(map[Subscriber]*wrapper),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.name == "" {
		b.name = fmt.Sprintf("bus-%s", uuid.New().String()[:8])
	}
	b.logger = observability.EnrichLogger(c.logger, b.name)
	c.buses[b] = struct{}{}
	return b
}

// EventType implements Subscriber. A bus accepts every event type.
func (b *Bus) EventType() reflect.Type {
	return nil
}

// Name implements Named.
func (b *Bus) Name() string {
	return b.name
}

// Priority implements Prioritized.
func (b *Bus) Priority() int {
	return b.priority
}

// Targets returns the configured targets.
func (b *Bus) Targets() Targets {
	return b.targets
}

// Parent returns the parent set with WithParent.
func (b *Bus) Parent() *Bus {
	return b.parent
}

// Connected reports whether the bus is connected.
func (b *Bus) Connected() bool {
	return b.connected
}

// Closed reports whether the bus is closed.
func (b *Bus) Closed() bool {
	return b.closed
}

// Upstream returns the buses this bus joined on Connect.
func (b *Bus) Upstream() []*Bus {
	return append([]*Bus(nil), b.upstream...)
}

// Len returns the number of subscribers, child buses included.
func (b *Bus) Len() int {
	return len(b.members)
}

// Subscribe adds sub to the bus. It returns false when sub is nil, is
// already subscribed, is not comparable, or would create a forwarding cycle.
func (b *Bus) Subscribe(sub Subscriber) bool {
	if b.closed || sub == nil {
		return false
	}
	if !reflect.TypeOf(sub).Comparable() {
		b.logger.Warn("ignoring non-comparable subscriber", slog.String("type", reflect.TypeOf(sub).String()))
		return false
	}
	if _, ok := b.members[sub]; ok {
		return false
	}

	var key reflect.Type
	child, isBus := sub.(*Bus)
	if isBus {
		if child.ctx != b.ctx {
			b.logger.Warn("refusing bus from another context", slog.String("child", child.name))
			return false
		}
		if child.reaches(b) {
			b.logger.Warn("refusing bus subscription that would form a cycle", slog.String("child", child.name))
			return false
		}
	} else {
		key = sub.EventType()
		if key == nil {
			b.logger.Warn("ignoring subscriber without event type", slog.String("type", reflect.TypeOf(sub).String()))
			return false
		}
	}

	w := b.ctx.wrappers.acquire(sub, key)
	w.child = child
	w.bus = b
	b.seq++
	w.seq = b.seq

	if isBus {
		b.forwards.insert(w)
	} else {
		ch := b.channels[key]
		if ch == nil {
			ch = &channel{}
			b.channels[key] = ch
			b.order = append(b.order, key)
		}
		ch.insert(w)
	}
	b.members[sub] = w

	if b.ctx.debugLog {
		observability.LogSubscribe(b.logger, b.name, w.name, keyName(key), w.priority)
	}
	if b.ctx.measure && !isBus {
		b.ctx.metrics.RecordSubscription(context.Background(), key.String(), 1)
	}
	return true
}

// Unsubscribe removes sub. It returns false when sub is not subscribed.
func (b *Bus) Unsubscribe(sub Subscriber) bool {
	if sub == nil {
		return false
	}
	w, ok := b.members[sub]
	if !ok {
		return false
	}
	b.drop(w)
	return true
}

func (b *Bus) drop(w *wrapper) {
	delete(b.members, w.subscriber)
	var removed bool
	if w.child != nil {
		removed = b.forwards.remove(w)
	} else if ch := b.channels[w.key]; ch != nil {
		removed = ch.remove(w)
	}
	if !removed {
		b.ctx.desync("wrapper %s on bus %s claims slot %d", w.name, b.name, w.index)
	}

	if b.ctx.debugLog {
		observability.LogUnsubscribe(b.logger, b.name, w.name, keyName(w.key))
	}
	if b.ctx.measure && w.child == nil {
		b.ctx.metrics.RecordSubscription(context.Background(), w.key.String(), -1)
	}
	b.ctx.wrappers.release(w)
}

// reaches reports whether target is b or is forwarded to from b.
func (b *Bus) reaches(target *Bus) bool {
	if b == target {
		return true
	}
	for _, w := range b.forwards.items {
		if w.child.reaches(target) {
			return true
		}
	}
	return false
}

// Connect joins the upstream buses selected by Targets. Connecting twice is
// a no-op.
func (b *Bus) Connect() {
	if b.connected || b.closed {
		return
	}
	b.connected = true

	if b.targets&TargetGlobal != 0 {
		if g := b.ctx.global; g != b {
			b.join(g)
		}
	}
	if b.targets&TargetFirstAncestor != 0 {
		if a := b.firstAncestor(); a != nil {
			b.join(a)
		}
	}
}

func (b *Bus) join(up *Bus) {
	for _, u := range b.upstream {
		if u == up {
			return
		}
	}
	if up.Subscribe(b) {
		b.upstream = append(b.upstream, up)
		observability.LogConnect(b.logger, b.name, up.name, true)
	}
}

func (b *Bus) firstAncestor() *Bus {
	for p := b.parent; p != nil; p = p.parent {
		if !p.closed {
			return p
		}
	}
	return nil
}

// Disconnect leaves every upstream bus. Local subscribers stay.
func (b *Bus) Disconnect() {
	if !b.connected || b.root {
		return
	}
	for _, up := range b.upstream {
		up.Unsubscribe(b)
		observability.LogConnect(b.logger, b.name, up.name, false)
	}
	clear(b.upstream)
	b.upstream = b.upstream[:0]
	b.connected = false
}

// SetTargets changes the targets, reconnecting when connected.
func (b *Bus) SetTargets(t Targets) {
	if t == b.targets {
		return
	}
	b.reconnect(func() { b.targets = t })
}

// SetPriority changes the priority, reconnecting when connected so upstream
// buses reorder it.
func (b *Bus) SetPriority(p int) {
	if p == b.priority {
		return
	}
	b.reconnect(func() { b.priority = p })
}

func (b *Bus) reconnect(change func()) {
	was := b.connected
	if was {
		b.Disconnect()
	}
	change()
	if was {
		b.Connect()
	}
}

// Clear removes every subscriber, child buses included. Armed awaiters
// subscribed here are cancelled.
func (b *Bus) Clear() {
	if len(b.members) == 0 {
		return
	}
	var dropped []detacher
	for _, key := range b.order {
		ch := b.channels[key]
		for len(ch.items) > 0 {
			w := ch.items[len(ch.items)-1]
			if d, ok := w.subscriber.(detacher); ok {
				dropped = append(dropped, d)
			}
			b.drop(w)
		}
	}
	for len(b.forwards.items) > 0 {
		b.drop(b.forwards.items[len(b.forwards.items)-1])
	}
	for _, d := range dropped {
		d.detached()
	}
}

// reset clears the bus and forgets its upstream connections.
func (b *Bus) reset() {
	b.Clear()
	clear(b.upstream)
	b.upstream = b.upstream[:0]
	b.connected = false
}

// Close disconnects and clears the bus. A closed bus ignores Subscribe and
// Send. The global bus is only closed with its Context.
func (b *Bus) Close() {
	if b.closed || b.root {
		return
	}
	b.Disconnect()
	b.Clear()
	b.closed = true
	delete(b.ctx.buses, b)
}

// SubscriberInfo describes one subscription.
type SubscriberInfo struct {
	Name      string `json:"name"`
	EventType string `json:"event_type"`
	Priority  int    `json:"priority"`
	Index     int    `json:"index"`
	Bus       bool   `json:"bus"`
}

// Subscribers lists the subscriptions per event type in delivery order,
// followed by the child buses.
func (b *Bus) Subscribers() []SubscriberInfo {
	infos := make([]SubscriberInfo, 0, len(b.members))
	for _, key := range b.order {
		for _, w := range b.channels[key].items {
			infos = append(infos, SubscriberInfo{
				Name:      w.name,
				EventType: key.String(),
				Priority:  w.priority,
				Index:     w.index,
			})
		}
	}
	for _, w := range b.forwards.items {
		infos = append(infos, SubscriberInfo{
			Name:     w.name,
			Priority: w.priority,
			Index:    w.index,
			Bus:      true,
		})
	}
	return infos
}

// LogSubscribers writes one line per subscription at info level.
func (b *Bus) LogSubscribers(logger *slog.Logger) {
	if logger == nil {
		logger = b.logger
	}
	for _, info := range b.Subscribers() {
		logger.Info("subscriber",
			slog.String("bus", b.name),
			slog.String("subscriber", info.Name),
			slog.String("event_type", info.EventType),
			slog.Int("priority", info.Priority),
			slog.Int("index", info.Index),
			slog.Bool("forward", info.Bus),
		)
	}
}

func keyName(key reflect.Type) string {
	if key == nil {
		return "*"
	}
	return key.String()
}

func (b *Bus) takeScratch(n int) []entry {
	if k := len(b.scratch); k > 0 {
		buf := b.scratch[k-1]
		b.scratch = b.scratch[:k-1]
		if cap(buf) >= n {
			return buf[:n]
		}
	}
	return make([]entry, n)
}

func (b *Bus) putScratch(buf []entry) {
	clear(buf)
	b.scratch = append(b.scratch, buf[:0])
}

func (b *Bus) recoverWrapper(name string, key reflect.Type) {
	if v := recover(); v != nil {
		b.ctx.fault(v, b.name, name, key)
	}
}
