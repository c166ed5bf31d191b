// Package replacer implements the LRU-K frame replacement policy used by
// the buffer pool to choose which unpinned frame to evict when no free
// frame is available.
package replacer

import (
	"sync"

	"bptreedb/pkg/dbkerr"

	"github.com/pkg/errors"
)

// FrameID identifies a buffer-pool frame, not a page. The replacer never
// sees page ids.
type FrameID int32

// AccessType distinguishes how a frame was touched. The replacer's own
// eviction math ignores it (matching the original it's grounded on); it
// exists so callers - chiefly the buffer pool - can tag accesses for
// future scoring passes without changing RecordAccess's signature later.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
	AccessIndex
)

// history holds a frame's bounded access record: up to K timestamps,
// newest first, plus whether the frame currently participates in
// eviction.
type history struct {
	frameID   FrameID
	stamps    []int64 // stamps[0] is the most recent access
	evictable bool
}

// kDistance returns the backward k-distance of this frame as of "now"
// and whether it is finite (i.e. at least k accesses have been recorded).
func (h *history) kDistance(k int, now int64) (int64, bool) {
	if len(h.stamps) < k {
		return 0, false
	}
	return now - h.stamps[k-1], true
}

// earliest returns the oldest recorded access, used to break ties among
// frames that all have infinite k-distance.
func (h *history) earliest() int64 {
	return h.stamps[len(h.stamps)-1]
}

// LRUKReplacer tracks per-frame access history for up to numFrames
// frames and selects eviction victims by backward K-distance. A single
// mutex guards all state; every public method takes it, does bounded
// work and releases.
type LRUKReplacer struct {
	mu sync.Mutex

	capacity int
	k        int
	clock    int64

	frames         map[FrameID]*history
	evictableCount int
}

// New returns a replacer sized for numFrames frames, using k as the
// history depth for the backward k-distance calculation.
func New(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		capacity: numFrames,
		k:        k,
		frames:   make(map[FrameID]*history, numFrames),
	}
}

// RecordAccess appends the current timestamp to frameID's history,
// creating the entry (non-evictable) on first sight. frameID must be in
// [0, numFrames); violating that is a contract violation and panics.
func (r *LRUKReplacer) RecordAccess(frameID FrameID, accessType AccessType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameID < 0 || int(frameID) >= r.capacity {
		panic(errors.Wrapf(dbkerr.ErrInvalidFrame, "frame %d (capacity %d)", frameID, r.capacity))
	}

	h, ok := r.frames[frameID]
	if !ok {
		h = &history{frameID: frameID}
		r.frames[frameID] = h
	}

	r.clock++
	h.stamps = append([]int64{r.clock}, h.stamps...)
	if len(h.stamps) > r.k {
		h.stamps = h.stamps[:r.k]
	}
}

// SetEvictable toggles whether frameID is a candidate for Evict, updating
// Size accordingly. Unknown frame ids and no-op toggles are silently
// ignored.
func (r *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.frames[frameID]
	if !ok || h.evictable == evictable {
		return
	}

	h.evictable = evictable
	if evictable {
		r.evictableCount++
	} else {
		r.evictableCount--
	}
}

// Remove deletes frameID's entry and history outright, regardless of its
// k-distance. Calling it on a non-evictable frame is a contract
// violation and panics; an unknown frame id is a silent no-op.
func (r *LRUKReplacer) Remove(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.frames[frameID]
	if !ok {
		return
	}
	if !h.evictable {
		panic(errors.Wrapf(dbkerr.ErrNonEvictableRemove, "frame %d", frameID))
	}

	delete(r.frames, frameID)
	r.evictableCount--
}

// Evict selects the evictable frame with the largest backward k-distance
// and removes it from the replacer. Frames with fewer than k recorded
// accesses have infinite k-distance and are preferred over any frame
// with a finite one; ties among infinite-distance frames go to whichever
// has the oldest earliest access (classical LRU over the sparse-history
// set). Returns ok=false if no frame is evictable.
func (r *LRUKReplacer) Evict() (frameID FrameID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var victim *history
	var maxFiniteDist int64
	var oldestEarliest int64
	haveInfiniteCandidate := false
	haveFiniteCandidate := false

	for _, h := range r.frames {
		if !h.evictable {
			continue
		}

		dist, finite := h.kDistance(r.k, r.clock)
		if !finite {
			e := h.earliest()
			if !haveInfiniteCandidate || e < oldestEarliest {
				victim = h
				oldestEarliest = e
				haveInfiniteCandidate = true
			}
			continue
		}

		if haveInfiniteCandidate {
			continue
		}
		if !haveFiniteCandidate || dist > maxFiniteDist {
			victim = h
			maxFiniteDist = dist
			haveFiniteCandidate = true
		}
	}

	if victim == nil {
		return 0, false
	}

	delete(r.frames, victim.frameID)
	r.evictableCount--
	return victim.frameID, true
}

// Size returns the number of frames currently flagged evictable.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictableCount
}
