package jiukun

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneralAllocRoundTrip(t *testing.T) {
	a, err := New(8, false)
	require.NoError(t, err)

	for _, size := range []uint32{1, 15, 16, 100, 4096, 70000} {
		obj, err := a.Alloc(size)
		require.NoError(t, err, "size=%d", size)
		require.Len(t, obj, int(size))
		require.NoError(t, a.Free(obj), "size=%d", size)
	}
}

func TestAllocTooLarge(t *testing.T) {
	a, err := New(8, false)
	require.NoError(t, err)

	_, err = a.Alloc(MaxMemorySize + 1)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestNamedCacheLifecycle(t *testing.T) {
	a, err := New(8, false)
	require.NoError(t, err)

	cache, err := a.CreateCache("widgets", 128, 0)
	require.NoError(t, err)

	obj, err := cache.Alloc()
	require.NoError(t, err)
	require.Len(t, obj, 128)

	err = a.DestroyCache(cache)
	require.Error(t, err)

	require.NoError(t, cache.Free(obj))
	require.NoError(t, a.DestroyCache(cache))
}

func TestDuplicateCacheNameRejected(t *testing.T) {
	a, err := New(8, false)
	require.NoError(t, err)

	_, err = a.CreateCache("dup", 64, 0)
	require.NoError(t, err)
	_, err = a.CreateCache("dup", 64, 0)
	require.Error(t, err)
}

func TestReapReleasesEmptySlabs(t *testing.T) {
	a, err := New(8, false)
	require.NoError(t, err)

	var objs [][]byte
	for i := 0; i < 200; i++ {
		obj, err := a.Alloc(64)
		require.NoError(t, err)
		objs = append(objs, obj)
	}
	for _, obj := range objs {
		require.NoError(t, a.Free(obj))
	}

	require.Greater(t, a.Reap(), 0)
}
