// Package slab implements fixed-size object caches backed by the
// buddy page allocator. Each cache keeps full/partial/empty lists of
// slabs; a slab is one or more contiguous buddy pages subdivided into
// equal-size object slots tracked by a free bitmap stored out-of-band
// in the slab header.
package slab

import (
	"container/list"
	"fmt"
	"math/bits"
	"sync"

	"github.com/jiufeng/jiutai/jiukun/internal/buddy"
)

// Flag controls cache behavior.
type Flag uint32

const (
	// FlagDebugFree paints freed objects with a fixed byte. The paint
	// is not checked when an object is handed out again.
	FlagDebugFree Flag = 1 << iota
	// FlagNoReap excludes the cache from Reap passes.
	FlagNoReap
	// FlagNoGrow disallows obtaining new slabs from the buddy
	// allocator; allocation fails once existing slabs are full.
	FlagNoGrow
	// FlagReclaimAccount marks the cache for allocation accounting.
	FlagReclaimAccount
	// FlagZero zero-fills objects on allocation.
	FlagZero
	// FlagWait allows AllocObject to block (via the buddy allocator's
	// wait semantics) under memory pressure.
	FlagWait
)

const freePaint = 0xAC

// ErrOutOfMemory is returned when a slab cannot be obtained and growth
// is disallowed or exhausted.
type ErrOutOfMemory struct{ Cache string }

func (e *ErrOutOfMemory) Error() string { return fmt.Sprintf("slab: out of memory for cache %q", e.Cache) }

// ErrOutstandingObjects is returned by Destroy when live objects
// remain.
type ErrOutstandingObjects struct {
	Cache string
	Count int
}

func (e *ErrOutstandingObjects) Error() string {
	return fmt.Sprintf("slab: cache %q destroyed with %d outstanding objects", e.Cache, e.Count)
}

// ErrDoubleFree is returned when an object is freed twice or an
// address outside any live slab is freed, whether or not the cache
// carries FlagDebugFree.
type ErrDoubleFree struct{ Cache string }

func (e *ErrDoubleFree) Error() string { return fmt.Sprintf("slab: double free or invalid pointer in cache %q", e.Cache) }

type slabState int

const (
	stateFull slabState = iota
	statePartial
	stateEmpty
)

// slab is one buddy-page run divided into objSize-byte objects.
type slab struct {
	pages     *buddy.Pages
	objSize   uint32
	objCount  int
	freeCount int
	free      []bool // true = slot is free
	elem      *list.Element
	state     slabState
}

func newSlab(pages *buddy.Pages, objSize uint32) *slab {
	total := len(pages.Bytes())
	count := total / int(objSize)
	s := &slab{
		pages:     pages,
		objSize:   objSize,
		objCount:  count,
		freeCount: count,
		free:      make([]bool, count),
		state:     stateEmpty,
	}
	for i := range s.free {
		s.free[i] = true
	}
	return s
}

func (s *slab) objectAt(i int) []byte {
	b := s.pages.Bytes()
	return b[i*int(s.objSize) : (i+1)*int(s.objSize)]
}

// indexOf returns the slot index for an address within this slab's
// backing pages, or -1 if the address does not belong to this slab.
func (s *slab) indexOf(ptr []byte) int {
	base := s.pages.Bytes()
	if len(base) == 0 || len(ptr) == 0 {
		return -1
	}
	off := addrOffset(base, ptr)
	if off < 0 || off >= int64(len(base)) {
		return -1
	}
	idx := int(off) / int(s.objSize)
	if idx >= s.objCount {
		return -1
	}
	return idx
}

// Cache is a named, fixed object-size pool of slabs.
type Cache struct {
	mu       sync.Mutex
	name     string
	objSize  uint32
	order    uint32
	flags    Flag
	buddy    *buddy.Allocator
	full     *list.List
	partial  *list.List
	empty    *list.List
	live     int // total allocated objects across all slabs
	numSlabs int
}

// NewCache creates a cache of fixed-size objects, computing the
// per-slab page order once (see slabOrder), clamped below the
// allocator's maximum order.
func NewCache(allocator *buddy.Allocator, name string, objSize uint32, flags Flag) (*Cache, error) {
	if objSize == 0 {
		return nil, fmt.Errorf("slab: object size must be > 0")
	}
	order := slabOrder(objSize)
	if order >= allocator.MaxOrder() {
		order = allocator.MaxOrder() - 1
	}
	return &Cache{
		name:    name,
		objSize: objSize,
		order:   order,
		flags:   flags,
		buddy:   allocator,
		full:    list.New(),
		partial: list.New(),
		empty:   list.New(),
	}, nil
}

// slabOrder picks the smallest order whose page run both holds at
// least one object and wastes at most 1/8th of its space, capped at
// order 10 (1024 pages) to bound per-slab memory. NewCache further
// clamps the result to the allocator's own maximum order.
func slabOrder(objSize uint32) uint32 {
	const cap = 10
	for order := uint32(0); order <= cap; order++ {
		runBytes := (uint64(1) << order) * buddy.PageSize
		if runBytes < uint64(objSize) {
			continue
		}
		if runBytes%uint64(objSize) <= runBytes/8 {
			return order
		}
	}
	// No order within the cap met the waste bound; fall back to the
	// smallest order that fits at least one object.
	for order := uint32(0); order <= cap; order++ {
		runBytes := (uint64(1) << order) * buddy.PageSize
		if runBytes >= uint64(objSize) {
			return order
		}
	}
	return cap
}

func (c *Cache) Name() string    { return c.name }
func (c *Cache) ObjectSize() uint32 { return c.objSize }

// growLocked obtains a new slab from the buddy allocator and places it
// on the empty list. Caller holds c.mu.
func (c *Cache) growLocked(wait bool) (*slab, error) {
	if c.flags&FlagNoGrow != 0 {
		return nil, &ErrOutOfMemory{Cache: c.name}
	}
	pages, err := c.buddy.AllocPages(c.order, !wait)
	if err != nil {
		return nil, err
	}
	s := newSlab(pages, c.objSize)
	s.elem = c.empty.PushBack(s)
	c.numSlabs++
	return s, nil
}

// AllocObject returns one object from the cache, preferring a partial
// slab, then an empty one, growing via the buddy allocator if allowed.
func (c *Cache) AllocObject() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s *slab
	if e := c.partial.Front(); e != nil {
		s = e.Value.(*slab)
	} else if e := c.empty.Front(); e != nil {
		s = e.Value.(*slab)
	} else {
		var err error
		s, err = c.growLocked(c.flags&FlagWait != 0)
		if err != nil {
			return nil, err
		}
	}

	idx := -1
	for i, free := range s.free {
		if free {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &ErrDoubleFree{Cache: c.name} // internal inconsistency
	}

	s.free[idx] = false
	s.freeCount--
	c.promote(s)
	c.live++

	obj := s.objectAt(idx)
	if c.flags&FlagZero != 0 {
		for i := range obj {
			obj[i] = 0
		}
	}
	return obj, nil
}

// promote moves s between full/partial/empty lists based on its
// current free count. Caller holds c.mu.
func (c *Cache) promote(s *slab) {
	var target *list.List
	var newState slabState
	switch {
	case s.freeCount == 0:
		target, newState = c.full, stateFull
	case s.freeCount == s.objCount:
		target, newState = c.empty, stateEmpty
	default:
		target, newState = c.partial, statePartial
	}
	if s.state == newState {
		return
	}
	c.listFor(s.state).Remove(s.elem)
	s.state = newState
	s.elem = target.PushBack(s)
}

func (c *Cache) listFor(st slabState) *list.List {
	switch st {
	case stateFull:
		return c.full
	case statePartial:
		return c.partial
	default:
		return c.empty
	}
}

// Owns reports whether obj was allocated from this cache. Used by the
// general size-bucket allocator to find which bucket cache owns a
// pointer before calling FreeObject on it.
func (c *Cache) Owns(obj []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findOwningSlab(obj) != nil
}

// FreeObject returns obj to its owning slab.
func (c *Cache) FreeObject(obj []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.findOwningSlab(obj)
	if s == nil {
		return &ErrDoubleFree{Cache: c.name}
	}
	idx := s.indexOf(obj)
	if idx < 0 || s.free[idx] {
		return &ErrDoubleFree{Cache: c.name}
	}

	if c.flags&FlagDebugFree != 0 {
		for i := range obj {
			obj[i] = freePaint
		}
	}

	s.free[idx] = true
	s.freeCount++
	c.promote(s)
	c.live--
	return nil
}

// findOwningSlab scans all lists for the slab containing obj. Real
// slab allocators mask the address down to slab alignment; because Go
// slices don't expose a stable address-to-owner map this way, we walk
// the (typically small) set of live slabs instead.
func (c *Cache) findOwningSlab(obj []byte) *slab {
	for _, lst := range []*list.List{c.full, c.partial, c.empty} {
		for e := lst.Front(); e != nil; e = e.Next() {
			s := e.Value.(*slab)
			if s.indexOf(obj) >= 0 {
				return s
			}
		}
	}
	return nil
}

// Reap releases every fully-empty slab back to the buddy allocator.
// It is a no-op if the cache carries FlagNoReap. Returns the number of
// slabs released.
func (c *Cache) Reap() int {
	if c.flags&FlagNoReap != 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	released := 0
	var next *list.Element
	for e := c.empty.Front(); e != nil; e = next {
		next = e.Next()
		s := e.Value.(*slab)
		c.empty.Remove(e)
		c.buddy.FreePages(s.pages)
		c.numSlabs--
		released++
	}
	return released
}

// Destroy refuses to destroy a cache with outstanding objects.
func (c *Cache) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live != 0 {
		return &ErrOutstandingObjects{Cache: c.name, Count: c.live}
	}
	for e := c.empty.Front(); e != nil; e = e.Next() {
		s := e.Value.(*slab)
		c.buddy.FreePages(s.pages)
	}
	c.empty.Init()
	c.numSlabs = 0
	return nil
}

// Stats reports live-object and slab counts for diagnostics/tests.
func (c *Cache) Stats() (live, slabs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live, c.numSlabs
}

// bucketOrder returns ceil(log2(n)) for n > 0, used by the general
// size-class table to compute bucket sizes arithmetically rather than
// via a constant lookup table.
func bucketOrder(n uint32) uint32 {
	if n <= 1 {
		return 0
	}
	return uint32(bits.Len32(n - 1))
}

// BucketSize returns the smallest power-of-two size >= n.
func BucketSize(n uint32) uint32 {
	return uint32(1) << bucketOrder(n)
}
