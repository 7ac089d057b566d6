package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/faultlog"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/typeindex"
)

// Context owns the process-wide bus state: the per-type registries, the
// global bus, the wrapper pool and the ambient logging and fault handling.
//
// Dispatch is single-threaded. A Context and everything created from it
// must be used from one goroutine (the dispatch thread). Only Awaiter.Wait
// may be called from elsewhere.
type Context struct {
	settings Settings
	logger   *slog.Logger
	debugLog bool
	metrics  observability.MetricsRecorder
	measure  bool
	spans    observability.SpanManager
	faults   faultlog.Store
	onFault  func(*SubscriberFault)

	registries *typeindex.Index[registryHandle]
	awaiters   *typeindex.Index[any]
	wrappers   *wrapperPool
	buses      map[*Bus]struct{}
	global     *Bus

	faultCount uint64
	lastFault  *SubscriberFault
	closed     bool
}

// registryHandle is the type-erased view of a Registry[T].
type registryHandle interface {
	Clear()
	Len() int
}

// New creates a Context with its global bus.
//
// Example:
//
//	ctx := eventbus.New(
//	    eventbus.WithLogger(logger),
//	    eventbus.WithSettings(settings),
//	)
//	defer ctx.Close()
func New(opts ...Option) *Context {
	c := &Context{
		settings:   DefaultSettings(),
		logger:     slog.Default(),
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
		registries: typeindex.New[registryHandle](),
		awaiters:   typeindex.New[any](),
		buses:      make(map[*Bus]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	_, noop := c.metrics.(observability.NoopMetrics)
	c.measure = !noop
	c.debugLog = c.logger.Enabled(context.Background(), slog.LevelDebug)
	c.wrappers = newWrapperPool(c.settings.PoolSize)

	c.global = c.NewBus(WithBusName(c.settings.GlobalName), WithTargets(TargetNone))
	c.global.root = true
	c.global.connected = true
	return c
}

var (
	defaultMu  sync.Mutex
	defaultCtx *Context
)

// Default returns the process-wide Context, creating it on first use.
func Default() *Context {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCtx == nil || defaultCtx.closed {
		defaultCtx = New()
	}
	return defaultCtx
}

// SetDefault replaces the process-wide Context. Passing nil makes the next
// Default call create a fresh one.
func SetDefault(c *Context) {
	defaultMu.Lock()
	defaultCtx = c
	defaultMu.Unlock()
}

// Global returns the global bus of the default Context.
func Global() *Bus {
	return Default().Global()
}

// Global returns the root bus. Every bus targeting TargetGlobal joins it.
func (c *Context) Global() *Bus {
	return c.global
}

// Settings returns the active settings.
func (c *Context) Settings() Settings {
	return c.settings
}

// Logger returns the context logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// FaultCount returns the number of subscriber faults seen so far.
func (c *Context) FaultCount() uint64 {
	return c.faultCount
}

// LastFault returns the most recent subscriber fault, or nil.
func (c *Context) LastFault() *SubscriberFault {
	return c.lastFault
}

// EventTypes lists the event types that have a registry, in creation order.
func (c *Context) EventTypes() []reflect.Type {
	return c.registries.Keys()
}

// Reset drops every registration: all registries are cleared and every bus
// loses its subscribers and its upstream connections. Registries and buses
// stay usable. Armed awaiters are cancelled.
//
// Only the global bus comes back connected. Every other bus stays
// disconnected until its owner calls Connect again, whatever it was before
// the Reset.
func (c *Context) Reset() {
	registries := 0
	c.registries.Range(func(_ reflect.Type, r registryHandle) bool {
		r.Clear()
		registries++
		return true
	})
	for b := range c.buses {
		b.reset()
	}
	c.global.connected = true
	observability.LogReset(c.logger, registries, len(c.buses))
}

// Close resets the Context, closes every bus and closes the fault store.
// Closing twice is a no-op.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.Reset()
	for b := range c.buses {
		b.closed = true
	}
	clear(c.buses)
	c.closed = true

	var errs []error
	if c.faults != nil {
		if err := c.faults.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fault store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// fault turns a recovered panic value into a reported *SubscriberFault and
// re-panics under FaultPropagate.
func (c *Context) fault(value any, bus, subscriber string, eventType reflect.Type) {
	// Already reported by a nested dispatch.
	if f, ok := value.(*SubscriberFault); ok {
		panic(f)
	}

	f := &SubscriberFault{
		Bus:        bus,
		Subscriber: subscriber,
		EventType:  eventType.String(),
		Value:      value,
		Stack:      string(debug.Stack()),
	}
	c.report(f)

	if c.settings.FaultPolicy == FaultPropagate {
		panic(f)
	}
}

func (c *Context) report(f *SubscriberFault) {
	c.faultCount++
	c.lastFault = f

	observability.LogFault(c.logger, f.Bus, f.Subscriber, f.EventType, f.Value, f.Stack)
	if c.measure {
		c.metrics.RecordFault(context.Background(), f.EventType, f.Subscriber)
	}
	if c.faults != nil {
		entry := faultlog.NewEntry(f.Bus, f.Subscriber, f.EventType, f.Value, f.Stack)
		if err := c.faults.Record(entry); err != nil {
			c.logger.Warn("failed to journal subscriber fault",
				slog.String("subscriber", f.Subscriber),
				slog.String("error", err.Error()),
			)
		}
	}
	if c.onFault != nil {
		c.onFault(f)
	}
}

// slow logs a reaction that exceeded Settings.SlowSubscriber.
func (c *Context) slow(subscriber string, eventType reflect.Type, took time.Duration) {
	if took > c.settings.SlowSubscriber {
		observability.LogSlowSubscriber(c.logger, subscriber, eventType.String(), took, c.settings.SlowSubscriber)
	}
}

// desync reports a broken slot index. It panics only in debug mode.
func (c *Context) desync(format string, args ...any) {
	err := fmt.Errorf("%w: "+format, append([]any{ErrIndexDesync}, args...)...)
	c.logger.Error("subscriber index desync", slog.String("error", err.Error()))
	if c.settings.Debug {
		panic(err)
	}
}

var standaloneContext = sync.OnceValue(func() *Context { return New() })
