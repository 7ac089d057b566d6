package faultlog_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/faultlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) faultlog.Store

func memoryFactory(t *testing.T) faultlog.Store {
	return faultlog.NewMemoryStore()
}

func sqliteFactory(t *testing.T) faultlog.Store {
	store, err := faultlog.NewSQLiteStore(filepath.Join(t.TempDir(), "faults.db"))
	require.NoError(t, err)
	return store
}

func TestStores(t *testing.T) {
	storeContractTest(t, "memory", memoryFactory)
	storeContractTest(t, "sqlite", sqliteFactory)
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	t.Run(name+"/Record_and_Get", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		entry := faultlog.NewEntry("global", "score", "main.Coin", "boom", "goroutine 1")
		require.NoError(t, store.Record(entry))

		got, err := store.Get(entry.ID)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, got.ID)
		assert.Equal(t, "global", got.Bus)
		assert.Equal(t, "score", got.Subscriber)
		assert.Equal(t, "main.Coin", got.EventType)
		assert.Equal(t, "boom", got.Message)
		assert.Equal(t, "goroutine 1", got.Stack)
		assert.WithinDuration(t, entry.OccurredAt, got.OccurredAt, time.Millisecond)
	})

	t.Run(name+"/Record_fills_defaults", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Record(faultlog.Entry{Subscriber: "s", EventType: "e", Message: "m"}))

		entries, err := store.List(0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.NotEmpty(t, entries[0].ID)
		assert.False(t, entries[0].OccurredAt.IsZero())
	})

	t.Run(name+"/Record_same_ID_overwrites", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		entry := faultlog.NewEntry("", "s", "e", "first", "")
		require.NoError(t, store.Record(entry))
		entry.Message = "second"
		require.NoError(t, store.Record(entry))

		count, err := store.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := store.Get(entry.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", got.Message)
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Get("fault-missing")
		assert.ErrorIs(t, err, faultlog.ErrNotFound)
	})

	t.Run(name+"/List_newest_first_with_limit", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		for _, msg := range []string{"a", "b", "c"} {
			require.NoError(t, store.Record(faultlog.NewEntry("", "s", "main.Coin", msg, "")))
		}

		all, err := store.List(0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "c", all[0].Message)
		assert.Equal(t, "a", all[2].Message)

		two, err := store.List(2)
		require.NoError(t, err)
		require.Len(t, two, 2)
		assert.Equal(t, "c", two[0].Message)
		assert.Equal(t, "b", two[1].Message)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		entries, err := store.List(10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run(name+"/ListByEventType", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Record(faultlog.NewEntry("", "s", "main.Coin", "1", "")))
		require.NoError(t, store.Record(faultlog.NewEntry("", "s", "main.Level", "2", "")))
		require.NoError(t, store.Record(faultlog.NewEntry("", "s", "main.Coin", "3", "")))

		coins, err := store.ListByEventType("main.Coin", 0)
		require.NoError(t, err)
		require.Len(t, coins, 2)
		assert.Equal(t, "3", coins[0].Message)
		assert.Equal(t, "1", coins[1].Message)

		none, err := store.ListByEventType("main.Missing", 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run(name+"/Clear", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Record(faultlog.NewEntry("", "s", "e", "m", "")))
		require.NoError(t, store.Clear())

		count, err := store.Count()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())
		assert.NoError(t, store.Close())

		assert.ErrorIs(t, store.Record(faultlog.NewEntry("", "s", "e", "m", "")), faultlog.ErrStoreClosed)
		_, err := store.List(0)
		assert.ErrorIs(t, err, faultlog.ErrStoreClosed)
		_, err = store.ListByEventType("e", 0)
		assert.ErrorIs(t, err, faultlog.ErrStoreClosed)
		_, err = store.Get("x")
		assert.ErrorIs(t, err, faultlog.ErrStoreClosed)
		_, err = store.Count()
		assert.ErrorIs(t, err, faultlog.ErrStoreClosed)
		assert.ErrorIs(t, store.Clear(), faultlog.ErrStoreClosed)
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "faults.db")

	store1, err := faultlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	entry := faultlog.NewEntry("global", "score", "main.Coin", "boom", "")
	require.NoError(t, store1.Record(entry))
	require.NoError(t, store1.Close())

	store2, err := faultlog.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom", got.Message)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := faultlog.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(faultlog.NewEntry("", "s", "e", "m", "")))
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := faultlog.NewSQLiteStore("/nonexistent/path/faults.db")
	assert.Error(t, err)
}

func TestNewEntry(t *testing.T) {
	e := faultlog.NewEntry("hud", "score", "main.Coin", 42, "stack")
	assert.Contains(t, e.ID, "fault-")
	assert.Equal(t, "42", e.Message)
	assert.Equal(t, time.UTC, e.OccurredAt.Location())
}
