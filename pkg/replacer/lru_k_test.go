package replacer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUKReplacer_EvictsInfiniteDistanceFirst(t *testing.T) {
	r := New(7, 2)

	// Frames 1 through 6 each get a single access (infinite k-distance,
	// since k=2); frame 1 gets a second one later, making its distance
	// finite.
	for _, f := range []FrameID{1, 2, 3, 4, 5} {
		r.RecordAccess(f, AccessUnknown)
		r.SetEvictable(f, true)
	}
	r.RecordAccess(6, AccessUnknown)
	r.SetEvictable(6, true)
	r.RecordAccess(1, AccessUnknown)
	r.SetEvictable(1, false) // pinned, not a candidate

	require.Equal(t, 5, r.Size())

	// Frames {2,3,4,5,6} are candidates; each has only one access
	// (infinite distance). Among infinite-distance frames the earliest
	// access goes first: frame 2.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(2), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(3), victim)

	r.SetEvictable(1, true)
	r.RecordAccess(1, AccessUnknown)

	// Remaining evictable candidates: 4, 5, 6 still have only one access
	// each (infinite distance); 1 now has two (finite distance). Infinite
	// still wins, earliest access among {4,5,6} first.
	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(4), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(5), victim)

	require.Equal(t, 2, r.Size())

	// Only 6 and 1 left: 6 still has a single, older access (infinite
	// distance, preferred); 1 has two and is skipped as long as an
	// infinite-distance candidate remains.
	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, FrameID(6), victim)

	r.SetEvictable(1, false)
	_, ok = r.Evict()
	require.False(t, ok)
	require.Equal(t, 0, r.Size())
}

func TestLRUKReplacer_RemoveAndSetEvictable(t *testing.T) {
	r := New(3, 2)
	r.RecordAccess(0, AccessUnknown)
	r.SetEvictable(0, true)
	require.Equal(t, 1, r.Size())

	r.Remove(0)
	require.Equal(t, 0, r.Size())

	// removing an unknown frame is a silent no-op
	r.Remove(1)

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestLRUKReplacer_RecordAccessOutOfRangePanics(t *testing.T) {
	r := New(2, 2)
	require.Panics(t, func() {
		r.RecordAccess(5, AccessUnknown)
	})
}

func TestLRUKReplacer_RemoveNonEvictablePanics(t *testing.T) {
	r := New(2, 2)
	r.RecordAccess(0, AccessUnknown)
	require.Panics(t, func() {
		r.Remove(0)
	})
}

func TestLRUKReplacer_HistoryCapsAtK(t *testing.T) {
	r := New(1, 3)
	for i := 0; i < 10; i++ {
		r.RecordAccess(0, AccessScan)
	}
	h := r.frames[0]
	require.Len(t, h.stamps, 3)
}
