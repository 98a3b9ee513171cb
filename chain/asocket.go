package chain

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

type asocketState int

const (
	asocketConnecting asocketState = iota
	asocketConnected
	asocketClosing
	asocketClosed
)

const (
	initialRecvBufSize = 4096
	maxRecvBufSize     = 1 << 20
)

// AsocketHandler receives the lifecycle and data events of an Asocket.
// Implementations are called only from the owning Chain's goroutine,
// during PostSelect, matching the original jf_network asocket
// callback contract (SPEC_FULL.md §4.C).
type AsocketHandler interface {
	// OnConnect fires once a non-blocking connect completes
	// successfully, or immediately for an already-connected asocket
	// handed off by Assocket's accept path.
	OnConnect(a *Asocket) error
	// OnDisconnect fires exactly once, when the peer closes, the
	// connect fails, or the asocket is closed locally. err is nil for
	// a clean peer-initiated close.
	OnDisconnect(a *Asocket, err error)
	// OnData is handed the bytes currently buffered and returns how
	// many of them it consumed; unconsumed bytes remain buffered and
	// are represented again, with newly arrived bytes appended, on the
	// next call.
	OnData(a *Asocket, data []byte) (consumed int, err error)
	// OnSendData reports how many queued bytes were flushed to the
	// socket in one PostSelect pass.
	OnSendData(a *Asocket, n int)
}

// Asocket is a single non-blocking TCP or Unix-domain stream
// connection driven by a Chain. Its receive buffer, send queue, and
// send offset are touched only from the Chain goroutine that calls
// PreSelect/PostSelect, so those fields need no locking. state, and
// the pendingSend mailbox Send feeds, are the two pieces of an Asocket
// that callers such as Acsocket.Send/Close are documented to reach
// from any goroutine (SPEC_FULL.md §5 concurrency model): state is an
// atomic so those calls never race with the chain goroutine's own
// reads and writes of it, and a queued Send lands in pendingSend
// (guarded by pendingMu) rather than touching sendQueue directly; the
// chain goroutine folds pendingSend into sendQueue itself at the top
// of every PreSelect.
type Asocket struct {
	fd    int
	state atomic.Int32 // asocketState
	cb    AsocketHandler

	recvBuf        []byte
	recvBegin      int
	recvEnd        int
	maxRecvBufSize int

	sendQueue [][]byte
	sendOff   int

	pendingMu   sync.Mutex
	pendingSend [][]byte

	connectNotified bool

	// Tag carries caller-defined identification (e.g. a dispatcher
	// source tag); the chain package never interprets it.
	Tag any
}

func newAsocket(fd int, state asocketState, cb AsocketHandler) *Asocket {
	a := &Asocket{
		fd:             fd,
		cb:             cb,
		recvBuf:        make([]byte, initialRecvBufSize),
		maxRecvBufSize: maxRecvBufSize,
	}
	a.state.Store(int32(state))
	return a
}

func (a *Asocket) loadState() asocketState { return asocketState(a.state.Load()) }

// NewConnectingAsocket starts a non-blocking outbound connection to a
// Unix-domain socket path and wraps it as a chain object in the
// connecting state.
func NewConnectingAsocket(path string, cb AsocketHandler) (*Asocket, error) {
	fd, err := dialUnixNonblocking(path)
	if err != nil {
		return nil, newErr("NewConnectingAsocket", CodeUnavailable, err)
	}
	return newAsocket(fd, asocketConnecting, cb), nil
}

// NewConnectingTCPAsocket starts a non-blocking outbound TCP
// connection and wraps it as a chain object in the connecting state.
func NewConnectingTCPAsocket(ip [4]byte, port int, cb AsocketHandler) (*Asocket, error) {
	fd, err := dialTCPNonblocking(ip, port)
	if err != nil {
		return nil, newErr("NewConnectingTCPAsocket", CodeUnavailable, err)
	}
	return newAsocket(fd, asocketConnecting, cb), nil
}

// newAcceptedAsocket wraps an already-connected fd (from Accept) as a
// chain object already in the connected state; used by Assocket.
func newAcceptedAsocket(fd int, cb AsocketHandler) *Asocket {
	return newAsocket(fd, asocketConnected, cb)
}

// Send queues data for transmission. It never blocks, and is safe to
// call from any goroutine (e.g. Acsocket.Send): bytes are staged in
// pendingSend and folded into the chain goroutine's own send queue at
// the start of the next PreSelect, then written out once PostSelect
// finds the fd writable.
func (a *Asocket) Send(data []byte) error {
	if a.loadState() != asocketConnected {
		return newErr("Send", CodePeerClosed, nil)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.pendingMu.Lock()
	a.pendingSend = append(a.pendingSend, buf)
	a.pendingMu.Unlock()
	return nil
}

// drainPending folds any sends staged cross-goroutine via Send into
// the chain-goroutine-only sendQueue. Must only be called from the
// chain goroutine.
func (a *Asocket) drainPending() {
	a.pendingMu.Lock()
	if len(a.pendingSend) > 0 {
		a.sendQueue = append(a.sendQueue, a.pendingSend...)
		a.pendingSend = a.pendingSend[:0]
	}
	a.pendingMu.Unlock()
}

// Close begins an orderly shutdown: any already-queued sends are
// flushed before the fd is closed. Calling Close on an asocket with
// nothing pending closes it within the current PostSelect pass. Safe
// to call from any goroutine (e.g. Acsocket.Close).
func (a *Asocket) Close() {
	for {
		cur := a.loadState()
		if cur != asocketConnecting && cur != asocketConnected {
			return
		}
		if a.state.CompareAndSwap(int32(cur), int32(asocketClosing)) {
			return
		}
	}
}

func (a *Asocket) hasPendingSend() bool { return len(a.sendQueue) > a.sendOff }

// PreSelect declares fd interest for the asocket's current state.
func (a *Asocket) PreSelect(sel *Selector) time.Duration {
	a.drainPending()
	switch a.loadState() {
	case asocketConnecting:
		sel.SetWrite(a.fd)
		sel.SetErr(a.fd)
	case asocketConnected:
		sel.SetRead(a.fd)
		if a.hasPendingSend() {
			sel.SetWrite(a.fd)
		}
	case asocketClosing:
		if a.hasPendingSend() {
			sel.SetWrite(a.fd)
		}
	}
	return noBlock
}

// PostSelect drives the state machine: completes a pending connect,
// reads and dispatches arrived data, and flushes queued sends.
func (a *Asocket) PostSelect(nReady int, sel *Selector) error {
	switch a.loadState() {
	case asocketConnecting:
		return a.postSelectConnecting(sel)
	case asocketConnected:
		if err := a.postSelectConnected(sel); err != nil {
			return err
		}
	}
	if a.loadState() == asocketClosing {
		a.drainPending()
		a.flushSend(sel)
		if !a.hasPendingSend() {
			a.shutdown(nil)
		}
	}
	return nil
}

func (a *Asocket) postSelectConnecting(sel *Selector) error {
	if !sel.Writable(a.fd) && !sel.Errored(a.fd) {
		return nil
	}
	if err := socketError(a.fd); err != nil {
		a.shutdown(err)
		return nil
	}
	a.state.Store(int32(asocketConnected))
	a.connectNotified = true
	if a.cb != nil {
		if err := a.cb.OnConnect(a); err != nil {
			a.shutdown(err)
		}
	}
	return nil
}

func (a *Asocket) postSelectConnected(sel *Selector) error {
	if sel.Readable(a.fd) {
		if err := a.readAvailable(); err != nil {
			a.shutdown(err)
			return nil
		}
	}
	if a.loadState() == asocketConnected && sel.Writable(a.fd) {
		a.flushSend(sel)
	}
	return nil
}

// readAvailable reads everything currently pending on the fd into the
// receive buffer, compacting and growing it as needed (capped at
// maxRecvBufSize), then repeatedly offers the buffered bytes to the
// handler until it stops consuming.
func (a *Asocket) readAvailable() error {
	for {
		a.ensureRecvCapacity()
		if a.recvEnd == len(a.recvBuf) {
			// Buffer is full at its cap; leave the rest on the fd.
			break
		}
		n, err := unix.Read(a.fd, a.recvBuf[a.recvEnd:])
		if n > 0 {
			a.recvEnd += n
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			a.deliverData()
			return err
		}
		if n == 0 {
			a.deliverData()
			return errPeerClosed
		}
	}
	a.deliverData()
	return nil
}

func (a *Asocket) deliverData() {
	for a.recvEnd > a.recvBegin {
		if a.cb == nil {
			a.recvBegin = a.recvEnd
			break
		}
		consumed, err := a.cb.OnData(a, a.recvBuf[a.recvBegin:a.recvEnd])
		if err != nil {
			a.shutdown(err)
			return
		}
		if consumed <= 0 {
			break
		}
		a.recvBegin += consumed
	}
	a.compactRecv()
}

func (a *Asocket) compactRecv() {
	if a.recvBegin == 0 {
		return
	}
	if a.recvBegin == a.recvEnd {
		a.recvBegin, a.recvEnd = 0, 0
		return
	}
	n := copy(a.recvBuf, a.recvBuf[a.recvBegin:a.recvEnd])
	a.recvBegin, a.recvEnd = 0, n
}

func (a *Asocket) ensureRecvCapacity() {
	if a.recvEnd < len(a.recvBuf) {
		return
	}
	a.compactRecv()
	if a.recvEnd < len(a.recvBuf) {
		return
	}
	newSize := len(a.recvBuf) * 2
	if newSize > a.maxRecvBufSize {
		newSize = a.maxRecvBufSize
	}
	if newSize <= len(a.recvBuf) {
		return
	}
	grown := make([]byte, newSize)
	copy(grown, a.recvBuf[a.recvBegin:a.recvEnd])
	a.recvEnd -= a.recvBegin
	a.recvBegin = 0
	a.recvBuf = grown
}

func (a *Asocket) flushSend(sel *Selector) {
	total := 0
	for a.sendOff < len(a.sendQueue) {
		buf := a.sendQueue[a.sendOff]
		n, err := unix.Write(a.fd, buf)
		if n > 0 {
			total += n
			if n == len(buf) {
				a.sendOff++
				continue
			}
			a.sendQueue[a.sendOff] = buf[n:]
		}
		if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			if total > 0 && a.cb != nil {
				a.cb.OnSendData(a, total)
			}
			a.shutdown(err)
			return
		}
		break
	}
	if a.sendOff > 0 {
		a.sendQueue = a.sendQueue[a.sendOff:]
		a.sendOff = 0
	}
	if total > 0 && a.cb != nil {
		a.cb.OnSendData(a, total)
	}
}

func (a *Asocket) shutdown(err error) {
	prev := asocketState(a.state.Swap(int32(asocketClosed)))
	if prev == asocketClosed {
		return
	}
	unix.Close(a.fd)
	if a.cb != nil && (a.connectNotified || err != nil || prev == asocketClosing) {
		var reportErr error
		if err != errPeerClosed {
			reportErr = err
		}
		a.cb.OnDisconnect(a, reportErr)
	}
}

// Closed reports whether the asocket has finished and should be
// removed from its chain.
func (a *Asocket) Closed() bool { return a.loadState() == asocketClosed }

var errPeerClosed = newErr("read", CodePeerClosed, nil)
