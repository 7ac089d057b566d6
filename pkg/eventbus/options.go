package eventbus

import (
	"log/slog"

	"github.com/randalmurphal/eventbus/pkg/eventbus/faultlog"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// DefaultPriority is the priority of subscribers that don't state one.
// Lower priorities are delivered first.
const DefaultPriority = 0

// Option configures a Context.
type Option func(*Context)

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(c *Context) {
		c.settings = s.normalized()
	}
}

// WithLogger sets the logger. Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables dispatch metrics.
//
// Example:
//
//	ctx := eventbus.New(eventbus.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *Context) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager enables spans for SendContext.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *Context) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithFaultStore journals every subscriber fault to store.
// The Context closes the store in Close.
func WithFaultStore(store faultlog.Store) Option {
	return func(c *Context) {
		c.faults = store
	}
}

// WithFaultHandler is called for every subscriber fault, after logging.
func WithFaultHandler(fn func(*SubscriberFault)) Option {
	return func(c *Context) {
		c.onFault = fn
	}
}

// SubscriberOption configures a Binding or Handler.
type SubscriberOption func(*subscriberConfig)

type subscriberConfig struct {
	name     string
	priority int
}

func newSubscriberConfig(opts []SubscriberOption) subscriberConfig {
	cfg := subscriberConfig{priority: DefaultPriority}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithName sets the display name used in logs and fault reports.
func WithName(name string) SubscriberOption {
	return func(c *subscriberConfig) {
		c.name = name
	}
}

// WithPriority sets the delivery priority. Lower values run first.
// Registries deliver in registration order and only carry the value along.
func WithPriority(priority int) SubscriberOption {
	return func(c *subscriberConfig) {
		c.priority = priority
	}
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusName sets the bus display name.
func WithBusName(name string) BusOption {
	return func(b *Bus) {
		if name != "" {
			b.name = name
		}
	}
}

// WithBusPriority sets the priority the bus has inside its upstream buses.
func WithBusPriority(priority int) BusOption {
	return func(b *Bus) {
		b.priority = priority
	}
}

// WithTargets selects the upstream buses joined by Connect.
func WithTargets(t Targets) BusOption {
	return func(b *Bus) {
		b.targets = t
	}
}

// WithParent places the bus below parent in the ancestor chain used by
// TargetFirstAncestor.
func WithParent(parent *Bus) BusOption {
	return func(b *Bus) {
		b.parent = parent
	}
}
