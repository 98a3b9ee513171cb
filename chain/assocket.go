package chain

import (
	"time"
)

// AsocketFactory builds the handler for a newly accepted connection.
// Called once per accepted fd, from the chain goroutine.
type AsocketFactory func() AsocketHandler

// Assocket is a listening chain object: a non-blocking accept socket
// that spawns an Asocket (and appends it to the same chain) for every
// inbound connection, draining the accept backlog each iteration
// rather than accepting one connection per pass (SPEC_FULL.md §4.C,
// "Assocket").
type Assocket struct {
	listenFD int
	chain    *Chain
	factory  AsocketFactory
	closed   bool

	// Accepted counts successful accepts, for diagnostics and tests.
	Accepted int
}

// NewUnixAssocket listens on a Unix-domain socket path and returns an
// Assocket ready to be appended to chain.
func NewUnixAssocket(chain *Chain, path string, factory AsocketFactory) (*Assocket, error) {
	fd, err := listenUnix(path)
	if err != nil {
		return nil, newErr("NewUnixAssocket", CodeUnavailable, err)
	}
	return &Assocket{listenFD: fd, chain: chain, factory: factory}, nil
}

// NewTCPAssocket listens on a TCP port (0 for ephemeral) and returns
// an Assocket plus the bound port.
func NewTCPAssocket(chain *Chain, port int, factory AsocketFactory) (*Assocket, int, error) {
	fd, boundPort, err := listenTCP(port)
	if err != nil {
		return nil, 0, newErr("NewTCPAssocket", CodeUnavailable, err)
	}
	return &Assocket{listenFD: fd, chain: chain, factory: factory}, boundPort, nil
}

func (s *Assocket) PreSelect(sel *Selector) time.Duration {
	if !s.closed {
		sel.SetRead(s.listenFD)
	}
	return noBlock
}

// PostSelect drains the accept backlog: every pending connection is
// accepted and wrapped into a new Asocket appended to the same chain
// within this call, so it is visible to the remainder of the current
// iteration's PostSelect pass.
func (s *Assocket) PostSelect(nReady int, sel *Selector) error {
	if s.closed || !sel.Readable(s.listenFD) {
		return nil
	}
	for {
		fd, ok, err := acceptNonblocking(s.listenFD)
		if err != nil {
			return newErr("PostSelect", CodeTransient, err)
		}
		if !ok {
			return nil
		}
		s.Accepted++
		var handler AsocketHandler
		if s.factory != nil {
			handler = s.factory()
		}
		child := newAcceptedAsocket(fd, handler)
		if s.chain != nil {
			s.chain.appendNow(child)
		}
		child.connectNotified = true
		if handler != nil {
			if err := handler.OnConnect(child); err != nil {
				child.shutdown(err)
			}
		}
	}
}

// Close stops accepting new connections and releases the listening
// fd; already-accepted asockets are unaffected.
func (s *Assocket) Close() {
	if s.closed {
		return
	}
	s.closed = true
	closeFD(s.listenFD)
}

func (s *Assocket) Closed() bool { return s.closed }
