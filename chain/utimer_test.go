package chain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestUtimerFiresInExpiryOrder is the literal S3 scenario: items
// scheduled for +2s, +1s, +3s must fire in order 1s, 2s, 3s.
func TestUtimerFiresInExpiryOrder(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	u := NewUtimer()
	c.AppendObject(u)

	var mu sync.Mutex
	var order []string

	record := func(name string) func(any) error {
		return func(any) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	u.Schedule(200*time.Millisecond, "b", nil, record("b"), nil)
	u.Schedule(100*time.Millisecond, "a", nil, record("a"), nil)
	u.Schedule(300*time.Millisecond, "c", nil, record("c"), nil)

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	time.Sleep(400 * time.Millisecond)
	c.Stop()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestUtimerRemoveByKeyInvokesDestroy(t *testing.T) {
	u := NewUtimer()
	destroyed := make(chan any, 1)
	u.Schedule(time.Hour, "k", "payload", func(any) error { return nil }, func(data any) {
		destroyed <- data
	})
	require.Equal(t, 1, u.Len())

	u.RemoveByKey("k")
	require.Equal(t, 0, u.Len())

	select {
	case data := <-destroyed:
		require.Equal(t, "payload", data)
	default:
		t.Fatal("destroy hook was not invoked")
	}
}

func TestUtimerPreSelectReflectsHeadDeadline(t *testing.T) {
	u := NewUtimer()
	sel := newSelector()
	require.Equal(t, noBlock, u.PreSelect(sel))

	u.Schedule(50*time.Millisecond, nil, nil, func(any) error { return nil }, nil)
	bt := u.PreSelect(sel)
	require.True(t, bt >= 0 && bt <= 50*time.Millisecond)
}
