package chain

import (
	"sort"
	"sync"
	"time"
)

// UtimerCallback runs when an item's deadline elapses. UtimerDestroy
// runs afterward regardless of whether the callback returned an
// error, releasing any resources associated with data (SPEC_FULL.md
// §3 "Utimer").
type UtimerCallback func(data any) error
type UtimerDestroy func(data any)

type utimerItem struct {
	key      any
	data     any
	expiry   time.Time
	callback UtimerCallback
	destroy  UtimerDestroy
}

// Utimer is a chain object holding a sorted list of monotonic
// deadlines. Time is read via time.Now(), whose monotonic component
// is immune to wall-clock adjustments, matching the "time is
// monotonic" invariant in SPEC_FULL.md §4.C.
type Utimer struct {
	mu    sync.Mutex
	items []*utimerItem
}

// NewUtimer creates an empty utimer, ready to be appended to a Chain.
func NewUtimer() *Utimer {
	return &Utimer{}
}

// Schedule adds an item that fires after delay elapses. key identifies
// the item for RemoveByKey; it may be nil if the caller never needs to
// cancel it individually.
func (u *Utimer) Schedule(delay time.Duration, key, data any, cb UtimerCallback, destroy UtimerDestroy) {
	item := &utimerItem{
		key:      key,
		data:     data,
		expiry:   time.Now().Add(delay),
		callback: cb,
		destroy:  destroy,
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	idx := sort.Search(len(u.items), func(i int) bool {
		return u.items[i].expiry.After(item.expiry)
	})
	u.items = append(u.items, nil)
	copy(u.items[idx+1:], u.items[idx:])
	u.items[idx] = item
}

// RemoveByKey removes every item matching key, invoking each item's
// destroy hook before freeing the record.
func (u *Utimer) RemoveByKey(key any) {
	u.mu.Lock()
	var removed []*utimerItem
	kept := u.items[:0]
	for _, it := range u.items {
		if it.key == key {
			removed = append(removed, it)
		} else {
			kept = append(kept, it)
		}
	}
	u.items = kept
	u.mu.Unlock()

	for _, it := range removed {
		if it.destroy != nil {
			it.destroy(it.data)
		}
	}
}

// Len reports the number of pending items, for tests/diagnostics.
func (u *Utimer) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.items)
}

// PreSelect lowers the loop's block time to the head item's remaining
// time, never going negative.
func (u *Utimer) PreSelect(sel *Selector) time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.items) == 0 {
		return noBlock
	}
	remaining := time.Until(u.items[0].expiry)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// PostSelect fires every item whose deadline has elapsed, in expiry
// order, then runs its destroy hook.
func (u *Utimer) PostSelect(nReady int, sel *Selector) error {
	now := time.Now()

	var fired []*utimerItem
	u.mu.Lock()
	i := 0
	for i < len(u.items) && !u.items[i].expiry.After(now) {
		fired = append(fired, u.items[i])
		i++
	}
	u.items = u.items[i:]
	u.mu.Unlock()

	var firstErr error
	for _, it := range fired {
		if err := it.callback(it.data); err != nil && firstErr == nil {
			firstErr = err
		}
		if it.destroy != nil {
			it.destroy(it.data)
		}
	}
	return firstErr
}

// Closed always reports false: a Utimer lives for the lifetime of its
// chain unless the owner stops scheduling into it.
func (u *Utimer) Closed() bool { return false }
