package buddy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// S1 — buddy exhaustion: max_order=4 (16 pages), no_grow=true.
func TestAllocExhaustionNoGrow(t *testing.T) {
	a, err := New(4, true)
	require.NoError(t, err)

	var pages []*Pages
	for i := 0; i < 16; i++ {
		p, err := a.AllocPages(0, true)
		require.NoError(t, err)
		pages = append(pages, p)
	}

	_, err = a.AllocPages(0, true)
	require.Error(t, err)
	require.IsType(t, &ErrOutOfMemory{}, err)
	require.Equal(t, 1, a.ZoneCount())

	a.FreePages(pages[0])
	p, err := a.AllocPages(0, true)
	require.NoError(t, err)
	require.NotNil(t, p)
}

// S2 — coalesce: allocate two buddy order-0 pages, free both, verify
// the zone holds exactly one free block at order 1.
func TestCoalesceBuddies(t *testing.T) {
	a, err := New(4, true)
	require.NoError(t, err)

	pa, err := a.AllocPages(0, true)
	require.NoError(t, err)
	pb, err := a.AllocPages(0, true)
	require.NoError(t, err)
	require.Equal(t, buddyIndex(pa.index, 0), pb.index)

	a.FreePages(pa)
	a.FreePages(pb)

	z := a.zones[0]
	require.Equal(t, 1, z.freeLists[1].Len())
	require.Equal(t, uint32(16), z.freeCount())
}

func TestInvalidOrder(t *testing.T) {
	a, err := New(4, true)
	require.NoError(t, err)
	_, err = a.AllocPages(4, true)
	require.Error(t, err)
	require.IsType(t, &ErrInvalidOrder{}, err)
}

func TestGrowthOnExhaustion(t *testing.T) {
	a, err := New(2, false)
	require.NoError(t, err)
	a.BackoffBase = time.Millisecond

	// max_order=2 zone holds 2^2=4 pages: exactly two order-1 blocks.
	_, err = a.AllocPages(1, true)
	require.NoError(t, err)
	_, err = a.AllocPages(1, true)
	require.NoError(t, err)

	// Next allocation finds no zone with a free order-1 block and,
	// since growth is allowed, adds a second zone on its first attempt;
	// the reap func is never reached.
	reapCalls := 0
	a.ReapFunc = func() bool { reapCalls++; return false }
	p3, err := a.AllocPages(1, false)
	require.NoError(t, err)
	require.NotNil(t, p3)
	require.Equal(t, 2, a.ZoneCount())
}

func TestRoundTripLeavesStateUnchanged(t *testing.T) {
	a, err := New(6, true)
	require.NoError(t, err)
	before := a.ZoneFreePages()

	orders := []uint32{0, 2, 1, 3, 0, 1}
	var pages []*Pages
	for _, o := range orders {
		p, err := a.AllocPages(o, true)
		require.NoError(t, err)
		pages = append(pages, p)
	}
	for i := len(pages) - 1; i >= 0; i-- {
		a.FreePages(pages[i])
	}

	require.Equal(t, before, a.ZoneFreePages())
}
