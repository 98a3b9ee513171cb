package chain

import (
	"time"

	"golang.org/x/sys/unix"
)

// Selector wraps the three fd sets + timeout that pre-select hooks
// populate and the multiplexed wait call consumes, mirroring the
// original's jf_network_fnPreSelectChainObject_t / PostSelect
// signature (SPEC_FULL.md §4.C), built over golang.org/x/sys/unix
// (the teacher's established raw-syscall dependency) rather than the
// stdlib, which has no fd-set primitive.
type Selector struct {
	read, write, errs unix.FdSet
	maxFD             int
}

func newSelector() *Selector {
	return &Selector{maxFD: -1}
}

func (s *Selector) reset() {
	s.read = unix.FdSet{}
	s.write = unix.FdSet{}
	s.errs = unix.FdSet{}
	s.maxFD = -1
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// SetRead marks fd as interesting for readability.
func (s *Selector) SetRead(fd int) {
	fdSet(&s.read, fd)
	s.bump(fd)
}

// SetWrite marks fd as interesting for writability.
func (s *Selector) SetWrite(fd int) {
	fdSet(&s.write, fd)
	s.bump(fd)
}

// SetErr marks fd as interesting for errors/exceptional conditions.
func (s *Selector) SetErr(fd int) {
	fdSet(&s.errs, fd)
	s.bump(fd)
}

func (s *Selector) bump(fd int) {
	if fd > s.maxFD {
		s.maxFD = fd
	}
}

// Readable reports whether fd was signaled readable by the last wait.
func (s *Selector) Readable(fd int) bool { return fdIsSet(&s.read, fd) }

// Writable reports whether fd was signaled writable by the last wait.
func (s *Selector) Writable(fd int) bool { return fdIsSet(&s.write, fd) }

// Errored reports whether fd was signaled exceptional by the last wait.
func (s *Selector) Errored(fd int) bool { return fdIsSet(&s.errs, fd) }

// wait blocks until readiness or timeout (infinite if timeout < 0).
// Interrupted waits (EINTR) are retried transparently.
func (s *Selector) wait(timeout time.Duration) (int, error) {
	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}
	for {
		n, err := unix.Select(s.maxFD+1, &s.read, &s.write, &s.errs, tv)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
