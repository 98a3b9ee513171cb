// Package jiukun is a process-local, two-tier memory allocator: a
// buddy page allocator (jiukun/internal/buddy) backing a slab object
// cache (jiukun/internal/slab), plus a general-purpose alloc(size)
// path that buckets requests into size classes.
//
// An Allocator is an explicitly-constructed value with no package
// singletons (see SPEC_FULL.md §9 "Global state"): callers construct
// one in main and pass it to the subsystems that need it.
package jiukun

import (
	"fmt"
	"sync"

	"github.com/jiufeng/jiutai/jiukun/internal/buddy"
	"github.com/jiufeng/jiutai/jiukun/internal/slab"
)

// Flag mirrors slab.Flag at the public API boundary.
type Flag = slab.Flag

const (
	FlagDebugFree      = slab.FlagDebugFree
	FlagNoReap         = slab.FlagNoReap
	FlagNoGrow         = slab.FlagNoGrow
	FlagReclaimAccount = slab.FlagReclaimAccount
	FlagZero           = slab.FlagZero
	FlagWait           = slab.FlagWait
)

// Cache is an opaque handle to a named, fixed-size object pool.
type Cache struct {
	impl *slab.Cache
}

// Name returns the cache's name.
func (c *Cache) Name() string { return c.impl.Name() }

// Alloc returns one zero-or-garbage object of the cache's fixed size.
func (c *Cache) Alloc() ([]byte, error) {
	obj, err := c.impl.AllocObject()
	if err != nil {
		return nil, wrapErr("AllocObject", err)
	}
	return obj, nil
}

// Free returns obj to the cache.
func (c *Cache) Free(obj []byte) error {
	if err := c.impl.FreeObject(obj); err != nil {
		return wrapErr("FreeObject", err)
	}
	return nil
}

// Allocator is the top-level, thread-safe jiukun allocator: one buddy
// page allocator plus a registry of named slab caches and the
// lazily-created general-size bucket caches.
type Allocator struct {
	buddy *buddy.Allocator

	mu       sync.Mutex
	named    map[string]*slab.Cache
	buckets  map[uint32]*slab.Cache // keyed by bucketIndex(size)
	allCaches []*slab.Cache         // for Reap, in creation order
}

// New creates an allocator whose buddy layer has 2^maxOrder pages per
// zone, growing by whole zones unless noGrow is set.
func New(maxOrder uint32, noGrow bool) (*Allocator, error) {
	b, err := buddy.New(maxOrder, noGrow)
	if err != nil {
		return nil, wrapErr("New", err)
	}
	a := &Allocator{
		buddy:   b,
		named:   make(map[string]*slab.Cache),
		buckets: make(map[uint32]*slab.Cache),
	}
	b.ReapFunc = func() bool { return a.Reap() > 0 }
	return a, nil
}

// ZoneCount reports the number of buddy zones currently owned.
func (a *Allocator) ZoneCount() int { return a.buddy.ZoneCount() }

// CreateCache creates a new named cache for fixed-size objects.
func (a *Allocator) CreateCache(name string, objSize uint32, flags Flag) (*Cache, error) {
	if objSize == 0 || objSize > MaxObjectSize {
		return nil, invalidErr("CreateCache", fmt.Errorf("object size %d out of range (0, %d]", objSize, MaxObjectSize))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.named[name]; exists {
		return nil, invalidErr("CreateCache", fmt.Errorf("cache %q already exists", name))
	}

	impl, err := slab.NewCache(a.buddy, name, objSize, flags)
	if err != nil {
		return nil, wrapErr("CreateCache", err)
	}
	a.named[name] = impl
	a.allCaches = append(a.allCaches, impl)
	return &Cache{impl: impl}, nil
}

// DestroyCache destroys a named cache, refusing if objects remain
// outstanding.
func (a *Allocator) DestroyCache(c *Cache) error {
	if err := c.impl.Destroy(); err != nil {
		return wrapErr("DestroyCache", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.named, c.impl.Name())
	a.allCaches = removeCache(a.allCaches, c.impl)
	return nil
}

func removeCache(list []*slab.Cache, target *slab.Cache) []*slab.Cache {
	out := list[:0]
	for _, c := range list {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

// bucketCacheLocked returns (creating lazily if needed) the general
// cache backing the given bucket order. Caller holds a.mu.
func (a *Allocator) bucketCacheLocked(order uint32) (*slab.Cache, error) {
	if c, ok := a.buckets[order]; ok {
		return c, nil
	}
	name := fmt.Sprintf("jiukun-bucket-%d", bucketSize(order))
	impl, err := slab.NewCache(a.buddy, name, bucketSize(order), 0)
	if err != nil {
		return nil, err
	}
	a.buckets[order] = impl
	a.allCaches = append(a.allCaches, impl)
	return impl, nil
}

// Alloc rounds size up to the nearest size-class bucket and allocates
// from that bucket's cache, creating it lazily on first use.
func (a *Allocator) Alloc(size uint32) ([]byte, error) {
	if size == 0 {
		return nil, invalidErr("Alloc", fmt.Errorf("size must be > 0"))
	}
	if size > MaxMemorySize {
		return nil, ErrTooLarge
	}

	order := bucketIndex(size)
	a.mu.Lock()
	c, err := a.bucketCacheLocked(order)
	a.mu.Unlock()
	if err != nil {
		return nil, wrapErr("Alloc", err)
	}

	obj, err := c.AllocObject()
	if err != nil {
		return nil, wrapErr("Alloc", err)
	}
	return obj[:size], nil
}

// Free returns a pointer obtained from Alloc. It locates the owning
// bucket cache by address rather than requiring the caller to track
// which bucket a pointer came from.
func (a *Allocator) Free(ptr []byte) error {
	a.mu.Lock()
	buckets := make([]*slab.Cache, 0, len(a.buckets))
	for _, c := range a.buckets {
		buckets = append(buckets, c)
	}
	a.mu.Unlock()

	for _, c := range buckets {
		if c.Owns(ptr) {
			if err := c.FreeObject(ptr); err != nil {
				return wrapErr("Free", err)
			}
			return nil
		}
	}
	return invalidErr("Free", fmt.Errorf("pointer does not belong to any general-allocation bucket"))
}

// Stats reports live object counts for every named and bucket cache,
// keyed by cache name, for exporting as metrics.
func (a *Allocator) Stats() map[string]int {
	a.mu.Lock()
	caches := make([]*slab.Cache, len(a.allCaches))
	copy(caches, a.allCaches)
	a.mu.Unlock()

	stats := make(map[string]int, len(caches))
	for _, c := range caches {
		live, _ := c.Stats()
		stats[c.Name()] = live
	}
	return stats
}

// Reap sweeps every eligible cache (named and general) and releases
// fully-empty slabs back to the buddy allocator. Returns the number of
// slabs released.
func (a *Allocator) Reap() int {
	a.mu.Lock()
	caches := make([]*slab.Cache, len(a.allCaches))
	copy(caches, a.allCaches)
	a.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.Reap()
	}
	return total
}
