package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainStopBeforeRunReturnsPromptly(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	c.Stop()

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop was called before it started")
	}
}

func TestChainStopDuringRunReturnsPromptly(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	// Give Run a moment to enter its first select wait, which given no
	// objects blocks indefinitely until woken.
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return within one multiplex wait period of Stop")
	}
}

func TestChainRunNotReentrant(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run() }()
	time.Sleep(20 * time.Millisecond)

	err = c.Run()
	assert.Error(t, err)

	c.Stop()
	<-done
}

func TestAppendObjectFromOtherGoroutine(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	u := NewUtimer()
	fired := make(chan struct{}, 1)
	u.Schedule(10*time.Millisecond, nil, nil, func(any) error {
		fired <- struct{}{}
		return nil
	}, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run() }()

	c.AppendObject(u)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("utimer item never fired after cross-goroutine AppendObject")
	}

	c.Stop()
	require.NoError(t, <-done)
}
