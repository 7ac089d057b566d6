package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/faultlog"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

type benchEvent struct {
	Seq int
}

type benchConfig struct {
	subscribers int
	events      int
	depth       int
	faultEvery  int
	metrics     bool
}

type benchResult struct {
	name      string
	events    int
	delivered int
	took      time.Duration
}

func (r benchResult) print(w io.Writer) {
	perEvent := time.Duration(0)
	if r.events > 0 {
		perEvent = r.took / time.Duration(r.events)
	}
	fmt.Fprintf(w, "%-10s events=%d delivered=%d took=%s per_event=%s\n", r.name, r.events, r.delivered, r.took, perEvent)
}

func newBenchCmd(opts *options) *cobra.Command {
	cfg := benchConfig{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure Raise and Send throughput",
		Example: "  busctl bench --subscribers 16 --events 1000000\n" +
			"  busctl bench --depth 3 --metrics\n" +
			"  busctl bench --fault-every 1000 && busctl faults list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd.Context(), cmd.OutOrStdout(), opts, cfg)
		},
	}
	cmd.Flags().IntVar(&cfg.subscribers, "subscribers", 8, "Subscribers per registry and bus")
	cmd.Flags().IntVar(&cfg.events, "events", 100000, "Events to raise and send")
	cmd.Flags().IntVar(&cfg.depth, "depth", 1, "Nested buses below the global bus")
	cmd.Flags().IntVar(&cfg.faultEvery, "fault-every", 0, "Panic in one subscriber every N events (0 disables)")
	cmd.Flags().BoolVar(&cfg.metrics, "metrics", false, "Collect OpenTelemetry metrics and print them")
	return cmd
}

func runBench(ctx context.Context, out io.Writer, opts *options, cfg benchConfig) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, err := opts.settings()
	if err != nil {
		return err
	}

	busOpts := []eventbus.Option{
		eventbus.WithSettings(settings),
		eventbus.WithLogger(opts.logger),
	}

	var reader *sdkmetric.ManualReader
	if cfg.metrics {
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() {
			if serr := provider.Shutdown(context.Background()); serr != nil {
				opts.logger.Warn("meter provider shutdown failed", slog.String("error", serr.Error()))
			}
		}()
		otel.SetMeterProvider(provider)
		busOpts = append(busOpts, eventbus.WithMetrics(observability.NewMetricsRecorder()))
	}

	if cfg.faultEvery > 0 {
		store, serr := faultlog.NewSQLiteStore(opts.faultsPath)
		if serr != nil {
			return serr
		}
		busOpts = append(busOpts, eventbus.WithFaultStore(store))
	}

	bc := eventbus.New(busOpts...)
	defer func() {
		if cerr := bc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	results := []benchResult{
		benchRaise(bc, cfg),
		benchSend(bc, cfg),
	}
	for _, r := range results {
		r.print(out)
	}
	if cfg.faultEvery > 0 {
		fmt.Fprintf(out, "faults=%d journal=%s\n", bc.FaultCount(), opts.faultsPath)
	}

	if reader != nil {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(ctx, &rm); err != nil {
			return fmt.Errorf("collect metrics: %w", err)
		}
		printMetrics(out, &rm)
	}
	return nil
}

// faulty returns a subscriber body that panics every n calls.
func faulty(n int) func(benchEvent) {
	return func(e benchEvent) {
		if n > 0 && e.Seq%n == n-1 {
			panic(fmt.Sprintf("bench fault at event %d", e.Seq))
		}
	}
}

func benchRaise(bc *eventbus.Context, cfg benchConfig) benchResult {
	reg := eventbus.RegistryFor[benchEvent](bc)
	delivered := 0
	for i := 0; i < cfg.subscribers; i++ {
		reg.On(func(benchEvent) { delivered++ }, eventbus.WithName(fmt.Sprintf("raise-%d", i)))
	}
	if cfg.faultEvery > 0 {
		reg.On(faulty(cfg.faultEvery), eventbus.WithName("raise-faulty"))
	}

	elapsed := observability.TimedOperation()
	for i := 0; i < cfg.events; i++ {
		reg.Raise(benchEvent{Seq: i})
	}
	took := elapsed()
	reg.Clear()

	return benchResult{name: "raise", events: cfg.events, delivered: delivered, took: took}
}

func benchSend(bc *eventbus.Context, cfg benchConfig) benchResult {
	// Chain of buses below global; listeners sit on the deepest one.
	leaf := bc.Global()
	var chain []*eventbus.Bus
	for d := 0; d < cfg.depth; d++ {
		b := bc.NewBus(
			eventbus.WithBusName(fmt.Sprintf("depth-%d", d+1)),
			eventbus.WithTargets(eventbus.TargetFirstAncestor),
			eventbus.WithParent(leaf),
		)
		b.Connect()
		chain = append(chain, b)
		leaf = b
	}

	delivered := 0
	for i := 0; i < cfg.subscribers; i++ {
		leaf.Subscribe(eventbus.NewHandler(func(benchEvent) { delivered++ },
			eventbus.WithName(fmt.Sprintf("send-%d", i)),
			eventbus.WithPriority(cfg.subscribers-i),
		))
	}
	if cfg.faultEvery > 0 {
		leaf.Subscribe(eventbus.NewHandler(faulty(cfg.faultEvery), eventbus.WithName("send-faulty")))
	}

	global := bc.Global()
	elapsed := observability.TimedOperation()
	for i := 0; i < cfg.events; i++ {
		eventbus.Send(global, benchEvent{Seq: i})
	}
	took := elapsed()

	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].Close()
	}
	global.Clear()

	return benchResult{name: "send", events: cfg.events, delivered: delivered, took: took}
}

func printMetrics(w io.Writer, rm *metricdata.ResourceMetrics) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				fmt.Fprintf(w, "%-32s sum=%d\n", m.Name, total)
			case metricdata.Histogram[int64]:
				var count uint64
				var sum int64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				fmt.Fprintf(w, "%-32s count=%d sum=%d\n", m.Name, count, sum)
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				fmt.Fprintf(w, "%-32s count=%d sum=%.1f\n", m.Name, count, sum)
			}
		}
	}
}
