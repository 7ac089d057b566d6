package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventbus/pkg/eventbus/faultlog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&options{})
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("eventbus:\n  pool_size: 16\n  fault_policy: propagate\n"), 0o600))

	out, err := execute(t, "config", "show", "--config", path)
	require.NoError(t, err)

	var view settingsView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "propagate", view.FaultPolicy)
	assert.Equal(t, 16, view.PoolSize)
	assert.Equal(t, 4, view.InitialCapacity)
	assert.Equal(t, "global", view.GlobalName)
}

func TestConfigShow_Defaults(t *testing.T) {
	out, err := execute(t, "config", "show", "--config", "")
	require.NoError(t, err)
	assert.Contains(t, out, `"fault_policy": "recover"`)
}

func TestBench_JournalsFaults(t *testing.T) {
	db := filepath.Join(t.TempDir(), "faults.db")

	out, err := execute(t, "bench", "--faults", db, "--log-level", "error",
		"--subscribers", "2", "--events", "10", "--depth", "2", "--fault-every", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "raise      events=10 delivered=20")
	assert.Contains(t, out, "send       events=10 delivered=20")
	assert.Contains(t, out, "faults=4")

	store, err := faultlog.NewSQLiteStore(db)
	require.NoError(t, err)
	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.NoError(t, store.Close())

	out, err = execute(t, "faults", "list", "--faults", db, "--event-type", "main.benchEvent", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "SUBSCRIBER")
	assert.Contains(t, out, "send-faulty")

	out, err = execute(t, "faults", "list", "--faults", db, "--json", "--limit", "0")
	require.NoError(t, err)
	var entries []faultlog.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 4)

	out, err = execute(t, "faults", "clear", "--faults", db)
	require.NoError(t, err)
	assert.Equal(t, "cleared 4 faults\n", out)
}

func TestBench_Metrics(t *testing.T) {
	out, err := execute(t, "bench", "--events", "5", "--subscribers", "1", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "eventbus.dispatch.count")
	assert.Contains(t, out, "sum=10")
}

func TestUnknownLogLevel(t *testing.T) {
	_, err := execute(t, "config", "show", "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestGroupsRequireSubcommand(t *testing.T) {
	_, err := execute(t, "faults")
	assert.ErrorContains(t, err, "list|clear")

	_, err = execute(t, "config")
	assert.ErrorContains(t, err, "show")
}
