package buffer

import (
	"encoding"

	"bptreedb/pkg/page"
)

// ReadGuard holds a frame's RWMutex for reading. The zero value is not
// usable; obtain one from Pool.ReadPage. Drop must be called exactly
// once, typically via defer, pairing RLock with RUnlock.
type ReadGuard struct {
	pool    *Pool
	frameID frameIndex
	pageID  page.ID
	f       *frame
	dropped bool
}

// PageID returns the id of the page this guard is looking at.
func (g *ReadGuard) PageID() page.ID { return g.pageID }

// Data returns the raw page bytes. The returned slice aliases the
// frame's buffer and is only valid until Drop.
func (g *ReadGuard) Data() []byte { return g.f.data[:] }

// Decode unmarshals the page's bytes into v.
func (g *ReadGuard) Decode(v encoding.BinaryUnmarshaler) error {
	return v.UnmarshalBinary(g.f.data[:])
}

// Drop releases the latch and unpins the page. Calls after the first are
// no-ops, so callers that always defer Drop() never need to worry about it.
func (g *ReadGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.f.mu.RUnlock()
	g.pool.unpin(g.frameID, false)
}

// WriteGuard holds a frame's RWMutex for writing. Obtain one from
// Pool.WritePage or Pool.NewPage. Dropping a WriteGuard always marks the
// page dirty, on the assumption that a caller asking to write intends to.
type WriteGuard struct {
	pool    *Pool
	frameID frameIndex
	pageID  page.ID
	f       *frame
	dropped bool
}

// PageID returns the id of the page this guard is looking at.
func (g *WriteGuard) PageID() page.ID { return g.pageID }

// Data returns the raw page bytes for in-place mutation. The returned
// slice aliases the frame's buffer and is only valid until Drop.
func (g *WriteGuard) Data() []byte { return g.f.data[:] }

// Decode unmarshals the page's current bytes into v, for read-modify-
// write sequences.
func (g *WriteGuard) Decode(v encoding.BinaryUnmarshaler) error {
	return v.UnmarshalBinary(g.f.data[:])
}

// Encode marshals v and overwrites the page's bytes with the result.
func (g *WriteGuard) Encode(v encoding.BinaryMarshaler) error {
	b, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	copy(g.f.data[:], b)
	return nil
}

// Drop releases the latch, marks the page dirty and unpins it.
func (g *WriteGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.f.dirty = true
	g.f.mu.Unlock()
	g.pool.unpin(g.frameID, true)
}
