package typeindex

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coin struct{ amount int }
type levelLoaded struct{ name string }

func TestOf(t *testing.T) {
	assert.Equal(t, reflect.TypeOf(coin{}), Of[coin]())
	assert.Equal(t, reflect.TypeOf(&coin{}), Of[*coin]())
	assert.NotEqual(t, Of[coin](), Of[*coin]())
}

func TestSetAndGet(t *testing.T) {
	x := New[int]()

	x.Set(Of[coin](), 1)
	x.Set(Of[levelLoaded](), 2)

	v, ok := x.Get(Of[coin]())
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = x.Get(Of[string]())
	assert.False(t, ok)
	assert.Equal(t, 0, v)

	x.Set(Of[coin](), 10)
	v, _ = x.Get(Of[coin]())
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, x.Len())
}

func TestKeysKeepInsertionOrder(t *testing.T) {
	x := New[string]()
	x.Set(Of[levelLoaded](), "level")
	x.Set(Of[coin](), "coin")
	x.Set(Of[int](), "int")
	x.Set(Of[coin](), "coin again")

	assert.Equal(t, []reflect.Type{Of[levelLoaded](), Of[coin](), Of[int]()}, x.Keys())

	x.Delete(Of[coin]())
	assert.Equal(t, []reflect.Type{Of[levelLoaded](), Of[int]()}, x.Keys())
	assert.False(t, x.Has(Of[coin]()))

	// Deleting a missing key is a no-op.
	x.Delete(Of[coin]())
	assert.Equal(t, 2, x.Len())
}

func TestGetOrCreate(t *testing.T) {
	x := New[*int]()
	calls := 0
	factory := func() *int {
		calls++
		v := 42
		return &v
	}

	a := x.GetOrCreate(Of[coin](), factory)
	b := x.GetOrCreate(Of[coin](), factory)

	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	x := New[int]()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			x.GetOrCreate(Of[coin](), func() int {
				calls.Add(1)
				return 7
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, x.Len())
}

func TestRangeSnapshot(t *testing.T) {
	x := New[int]()
	x.Set(Of[coin](), 1)
	x.Set(Of[levelLoaded](), 2)

	var seen []int
	x.Range(func(k reflect.Type, v int) bool {
		seen = append(seen, v)
		// Mutating during Range does not affect the walk.
		x.Delete(k)
		x.Set(Of[string](), 99)
		return true
	})

	assert.Equal(t, []int{1, 2}, seen)
	require.Equal(t, 1, x.Len())
	assert.True(t, x.Has(Of[string]()))
}

func TestRangeStopsEarly(t *testing.T) {
	x := New[int]()
	x.Set(Of[coin](), 1)
	x.Set(Of[levelLoaded](), 2)

	count := 0
	x.Range(func(reflect.Type, int) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestClear(t *testing.T) {
	x := New[int]()
	x.Set(Of[coin](), 1)
	x.Clear()

	assert.Equal(t, 0, x.Len())
	assert.Empty(t, x.Keys())
}
