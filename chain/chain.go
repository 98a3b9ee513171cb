package chain

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jiufeng/jiutai/internal/logging"
)

// noBlock is the sentinel PreSelect hooks return to mean "no opinion
// on the block timeout"; the loop treats it as infinite unless some
// other object lowers it.
const noBlock time.Duration = -1

// Object is a chain object: something with a stake in the readiness
// loop. PreSelect declares fds of interest (via sel) and may lower the
// loop's block timeout; PostSelect reacts to readiness. Closed reports
// whether the object should be removed from the chain before the next
// iteration.
type Object interface {
	PreSelect(sel *Selector) time.Duration
	PostSelect(nReady int, sel *Selector) error
	Closed() bool
}

// Chain is the single-threaded reactor: an ordered list of chain
// objects driven by one goroutine calling Run, plus a self-pipe used
// to wake the loop from Stop or from another goroutine (SPEC_FULL.md
// §4.C, §5). Objects are appended with AppendObject and are owned by
// the chain: nothing outside the chain goroutine may touch them after
// they're appended.
type Chain struct {
	logger *logging.Logger

	objects []Object

	wakeR, wakeW int
	running      atomic.Bool
	stopping     atomic.Bool

	// appendQueue buffers AppendObject calls made from goroutines
	// other than the chain's own (e.g. Acsocket.ConnectTo called from
	// an application goroutine); they are drained onto objects at the
	// start of each iteration.
	appendMu    sync.Mutex
	appendQueue []Object
}

// New creates a chain with its wake-up pipe ready; it does not start
// the loop (see Run).
func New(logger *logging.Logger) (*Chain, error) {
	if logger == nil {
		logger = logging.Default()
	}
	var p [2]int
	if err := pipe2(&p); err != nil {
		return nil, newErr("New", CodeFatal, err)
	}
	return &Chain{
		logger: logger,
		wakeR:  p[0],
		wakeW:  p[1],
	}, nil
}

func pipe2(p *[2]int) error {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		return err
	}
	p[0], p[1] = fds[0], fds[1]
	return nil
}

// AppendObject adds o to the chain. Safe to call from any goroutine;
// objects added from outside the chain goroutine are picked up at the
// start of the next iteration.
func (c *Chain) AppendObject(o Object) {
	c.appendMu.Lock()
	c.appendQueue = append(c.appendQueue, o)
	c.appendMu.Unlock()
	c.wake()
}

func (c *Chain) wake() {
	_, _ = unix.Write(c.wakeW, []byte{0})
}

// appendNow adds o directly to the live object list. It must only be
// called from the chain's own goroutine (e.g. from inside a
// PostSelect implementation, such as Assocket accepting a
// connection), where it is safe without the appendQueue's locking and
// is visible to the remainder of the current iteration's PostSelect
// pass.
func (c *Chain) appendNow(o Object) {
	c.objects = append(c.objects, o)
}

func (c *Chain) drainAppendQueue() {
	c.appendMu.Lock()
	if len(c.appendQueue) > 0 {
		c.objects = append(c.objects, c.appendQueue...)
		c.appendQueue = c.appendQueue[:0]
	}
	c.appendMu.Unlock()
}

// wakeObject is the self-pipe chain object: its only job is to make
// Select() return promptly when Stop is called or AppendObject is
// used cross-goroutine.
type wakeObject struct{ c *Chain }

func (w *wakeObject) PreSelect(sel *Selector) time.Duration {
	sel.SetRead(w.c.wakeR)
	return noBlock
}

func (w *wakeObject) PostSelect(nReady int, sel *Selector) error {
	if !sel.Readable(w.c.wakeR) {
		return nil
	}
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(w.c.wakeR, buf)
		if n <= 0 || err != nil {
			break
		}
	}
	return nil
}

func (w *wakeObject) Closed() bool { return false }

// Run starts the reactor loop on the calling goroutine. It returns
// once Stop has been called and one final pass has drained pending
// work (SPEC_FULL.md §4.C). The chain never exits because of a
// callback error: errors are logged and the loop continues.
func (c *Chain) Run() error {
	if !c.running.CompareAndSwap(false, true) {
		return newErr("Run", CodeInvalidRequest, errNotIdempotent)
	}
	defer c.running.Store(false)

	c.objects = append(c.objects, &wakeObject{c: c})

	for {
		c.drainAppendQueue()
		c.removeClosed()

		sel := newSelector()
		blockTime := noBlock
		for _, o := range c.objects {
			if bt := o.PreSelect(sel); bt >= 0 && (blockTime < 0 || bt < blockTime) {
				blockTime = bt
			}
		}

		n, err := sel.wait(blockTime)
		if err != nil {
			c.logger.Warn("select failed", "error", err)
			continue
		}

		for i := 0; i < len(c.objects); i++ {
			if err := c.objects[i].PostSelect(n, sel); err != nil {
				c.logger.Warn("post-select callback error", "error", err)
			}
		}

		if c.stopping.Load() {
			c.drainAppendQueue()
			c.removeClosed()
			return nil
		}
	}
}

func (c *Chain) removeClosed() {
	kept := c.objects[:0]
	for _, o := range c.objects {
		if !o.Closed() {
			kept = append(kept, o)
		}
	}
	c.objects = kept
}

// Stop requests the loop to exit. It is safe to call from any
// goroutine; it returns immediately without waiting for Run to return.
func (c *Chain) Stop() {
	c.stopping.Store(true)
	c.wake()
}

// Objects returns the number of chain objects currently registered,
// for diagnostics and tests.
func (c *Chain) Objects() int { return len(c.objects) }

var errNotIdempotent = notIdempotentErr{}

type notIdempotentErr struct{}

func (notIdempotentErr) Error() string { return "chain is already running" }
