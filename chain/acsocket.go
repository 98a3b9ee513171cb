package chain

import (
	"sync"
)

// AcsocketHandlerFactory builds the handler for one outbound
// connection slot, given the caller-supplied user data passed to
// ConnectTo.
type AcsocketHandlerFactory func(user any) AsocketHandler

// acslot tracks one outbound connection slot: either free, or owned
// by a live Asocket.
type acslot struct {
	inUse bool
	sock  *Asocket
}

// Acsocket is a fixed-capacity pool of outbound client connections
// appended to a single Chain, matching the original's bounded
// asocket-array client pool (SPEC_FULL.md §4.C, "Acsocket"). Slots
// are handed out by ConnectTo and reclaimed automatically once the
// underlying Asocket closes.
type Acsocket struct {
	chain   *Chain
	factory AcsocketHandlerFactory

	mu    sync.Mutex
	slots []acslot
}

// NewAcsocket creates a pool with room for capacity concurrent
// outbound connections.
func NewAcsocket(chain *Chain, capacity int, factory AcsocketHandlerFactory) *Acsocket {
	return &Acsocket{
		chain:   chain,
		factory: factory,
		slots:   make([]acslot, capacity),
	}
}

// Handle identifies one outbound connection slot.
type Handle int

// ConnectTo reserves a slot and starts a non-blocking TCP connect to
// ip:port. It returns ErrNoFreeSlot if every slot is already in use.
// Safe to call from any goroutine.
func (p *Acsocket) ConnectTo(ip [4]byte, port int, user any) (Handle, error) {
	p.mu.Lock()
	idx := -1
	for i := range p.slots {
		if !p.slots[i].inUse {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return -1, ErrNoFreeSlot
	}
	p.slots[idx].inUse = true
	p.mu.Unlock()

	var handler AsocketHandler
	if p.factory != nil {
		handler = p.factory(user)
	}
	sock, err := NewConnectingTCPAsocket(ip, port, &slotHandler{pool: p, idx: idx, inner: handler})
	if err != nil {
		p.mu.Lock()
		p.slots[idx].inUse = false
		p.mu.Unlock()
		return -1, err
	}

	p.mu.Lock()
	p.slots[idx].sock = sock
	p.mu.Unlock()

	p.chain.AppendObject(sock)
	return Handle(idx), nil
}

// Send writes data on the asocket owned by h, returning an error if h
// does not currently identify a live connection.
func (p *Acsocket) Send(h Handle, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h) < 0 || int(h) >= len(p.slots) || !p.slots[h].inUse || p.slots[h].sock == nil {
		return newErr("Send", CodeInvalidRequest, nil)
	}
	return p.slots[h].sock.Send(data)
}

// Close closes the connection owned by h, if any.
func (p *Acsocket) Close(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h) < 0 || int(h) >= len(p.slots) || !p.slots[h].inUse || p.slots[h].sock == nil {
		return
	}
	p.slots[h].sock.Close()
}

// InUse reports how many slots currently hold a connection.
func (p *Acsocket) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if s.inUse {
			n++
		}
	}
	return n
}

func (p *Acsocket) release(idx int) {
	p.mu.Lock()
	p.slots[idx].inUse = false
	p.slots[idx].sock = nil
	p.mu.Unlock()
}

// slotHandler wraps the caller's AsocketHandler to reclaim the pool
// slot on disconnect, keeping slot bookkeeping out of application
// code.
type slotHandler struct {
	pool  *Acsocket
	idx   int
	inner AsocketHandler
}

func (h *slotHandler) OnConnect(a *Asocket) error {
	if h.inner != nil {
		return h.inner.OnConnect(a)
	}
	return nil
}

func (h *slotHandler) OnDisconnect(a *Asocket, err error) {
	h.pool.release(h.idx)
	if h.inner != nil {
		h.inner.OnDisconnect(a, err)
	}
}

func (h *slotHandler) OnData(a *Asocket, data []byte) (int, error) {
	if h.inner != nil {
		return h.inner.OnData(a, data)
	}
	return len(data), nil
}

func (h *slotHandler) OnSendData(a *Asocket, n int) {
	if h.inner != nil {
		h.inner.OnSendData(a, n)
	}
}
