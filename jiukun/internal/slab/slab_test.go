package slab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jiufeng/jiutai/jiukun/internal/buddy"
)

func newTestAllocator(t *testing.T) *buddy.Allocator {
	t.Helper()
	a, err := buddy.New(6, false)
	require.NoError(t, err)
	return a
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	c, err := NewCache(a, "test-64", 64, 0)
	require.NoError(t, err)

	obj, err := c.AllocObject()
	require.NoError(t, err)
	require.Len(t, obj, 64)

	live, _ := c.Stats()
	require.Equal(t, 1, live)

	require.NoError(t, c.FreeObject(obj))
	live, _ = c.Stats()
	require.Equal(t, 0, live)
}

func TestDestroyRefusesOutstanding(t *testing.T) {
	a := newTestAllocator(t)
	c, err := NewCache(a, "test-32", 32, 0)
	require.NoError(t, err)

	obj, err := c.AllocObject()
	require.NoError(t, err)

	err = c.Destroy()
	require.Error(t, err)
	require.IsType(t, &ErrOutstandingObjects{}, err)

	require.NoError(t, c.FreeObject(obj))
	require.NoError(t, c.Destroy())
}

func TestPartialFullEmptyTransitions(t *testing.T) {
	a := newTestAllocator(t)
	c, err := NewCache(a, "test-512", 512, 0)
	require.NoError(t, err)

	var objs [][]byte
	for i := 0; i < 64; i++ {
		obj, err := c.AllocObject()
		require.NoError(t, err)
		objs = append(objs, obj)
	}

	for _, obj := range objs {
		require.NoError(t, c.FreeObject(obj))
	}

	released := c.Reap()
	require.GreaterOrEqual(t, released, 1)
	_, slabs := c.Stats()
	require.Equal(t, 0, slabs)
}

func TestDoubleFreeDetected(t *testing.T) {
	a := newTestAllocator(t)
	c, err := NewCache(a, "test-16", 16, FlagDebugFree)
	require.NoError(t, err)

	obj, err := c.AllocObject()
	require.NoError(t, err)
	require.NoError(t, c.FreeObject(obj))

	err = c.FreeObject(obj)
	require.Error(t, err)
	require.IsType(t, &ErrDoubleFree{}, err)
}

func TestNoReapFlagSkipsReap(t *testing.T) {
	a := newTestAllocator(t)
	c, err := NewCache(a, "test-no-reap", 128, FlagNoReap)
	require.NoError(t, err)

	obj, err := c.AllocObject()
	require.NoError(t, err)
	require.NoError(t, c.FreeObject(obj))

	require.Equal(t, 0, c.Reap())
	_, slabs := c.Stats()
	require.Equal(t, 1, slabs)
}

func TestBucketSize(t *testing.T) {
	require.Equal(t, uint32(1), BucketSize(1))
	require.Equal(t, uint32(64), BucketSize(64))
	require.Equal(t, uint32(128), BucketSize(65))
	require.Equal(t, uint32(1024), BucketSize(1000))
}
