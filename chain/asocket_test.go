package chain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// echoHandler bounces every received byte straight back to the peer.
type echoHandler struct{}

func (echoHandler) OnConnect(a *Asocket) error { return nil }
func (echoHandler) OnDisconnect(a *Asocket, err error) {}
func (echoHandler) OnData(a *Asocket, data []byte) (int, error) {
	_ = a.Send(data)
	return len(data), nil
}
func (echoHandler) OnSendData(a *Asocket, n int) {}

// collectHandler appends every byte it receives to buf.
type collectHandler struct {
	mu        sync.Mutex
	buf       []byte
	connected chan struct{}
	once      sync.Once
}

func newCollectHandler() *collectHandler {
	return &collectHandler{connected: make(chan struct{})}
}

func (h *collectHandler) OnConnect(a *Asocket) error {
	h.once.Do(func() { close(h.connected) })
	return nil
}
func (h *collectHandler) OnDisconnect(a *Asocket, err error) {}
func (h *collectHandler) OnData(a *Asocket, data []byte) (int, error) {
	h.mu.Lock()
	h.buf = append(h.buf, data...)
	h.mu.Unlock()
	return len(data), nil
}
func (h *collectHandler) OnSendData(a *Asocket, n int) {}

func (h *collectHandler) snapshot() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, len(h.buf))
	copy(out, h.buf)
	return out
}

// TestEchoRoundTrip is the literal S4 scenario: an Assocket listening
// on an ephemeral TCP port echoes bytes back; an Acsocket connects to
// it, sends "hello", and the concatenated bytes seen by on_data equal
// "hello".
func TestEchoRoundTrip(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	assoc, port, err := NewTCPAssocket(c, 0, func() AsocketHandler { return echoHandler{} })
	require.NoError(t, err)
	c.AppendObject(assoc)

	done := make(chan error, 1)
	go func() { done <- c.Run() }()
	defer func() {
		c.Stop()
		require.NoError(t, <-done)
	}()

	pool := NewAcsocket(c, 1, nil)
	collector := newCollectHandler()
	pool.factory = func(any) AsocketHandler { return collector }

	h, err := pool.ConnectTo([4]byte{127, 0, 0, 1}, port, nil)
	require.NoError(t, err)

	select {
	case <-collector.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	require.NoError(t, pool.Send(h, []byte("hello")))

	require.Eventually(t, func() bool {
		return string(collector.snapshot()) == "hello"
	}, 2*time.Second, 10*time.Millisecond)
}
