package eventbus_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

type Coin struct {
	Amount int
}

type Damage struct {
	Amount int
}

type Ping struct{}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestContext creates a Context that logs nowhere and is closed with t.
func newTestContext(t *testing.T, opts ...eventbus.Option) *eventbus.Context {
	t.Helper()
	opts = append([]eventbus.Option{eventbus.WithLogger(quietLogger())}, opts...)
	c := eventbus.New(opts...)
	t.Cleanup(func() {
		require.NoError(t, c.Close())
	})
	return c
}

// recorder collects the names of the handlers that ran.
type recorder struct {
	calls []string
}

func (r *recorder) handler(name string, priority int) *eventbus.Handler[Damage] {
	return eventbus.NewHandler(func(Damage) {
		r.calls = append(r.calls, name)
	}, eventbus.WithName(name), eventbus.WithPriority(priority))
}
