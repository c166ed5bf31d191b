// Package buffer implements the buffer pool manager: the fixed-size set
// of in-memory frames that the B+ tree reads and writes pages through,
// backed by a disk.Manager and an LRU-K eviction policy delegated
// entirely to pkg/replacer.
package buffer

import (
	"sync"

	"bptreedb/pkg/dbkerr"
	"bptreedb/pkg/disk"
	"bptreedb/pkg/page"
	"bptreedb/pkg/replacer"
	"bptreedb/util/logger"

	"github.com/pkg/errors"
)

type frameIndex = replacer.FrameID

// Pool is the buffer pool manager. One Pool instance is shared by every
// reader and writer of a tree; all of its bookkeeping - the page table,
// the free list, per-frame pin counts - is protected by mu. Latching of
// a frame's actual content is independent, held per-guard (see
// ReadGuard/WriteGuard) so that two pages can be read or written at once
// without serializing on the pool's own mutex.
type Pool struct {
	mu sync.Mutex

	disk     *disk.Manager
	replacer *replacer.LRUKReplacer

	frames    []*frame
	pageTable map[page.ID]frameIndex
	freeList  []frameIndex
}

// NewPool builds a pool of poolSize frames over disk, using k as the
// replacer's history depth.
func NewPool(disk *disk.Manager, poolSize, k int) *Pool {
	frames := make([]*frame, poolSize)
	free := make([]frameIndex, poolSize)
	for i := range frames {
		frames[i] = &frame{pageID: page.Invalid}
		free[i] = frameIndex(i)
	}
	return &Pool{
		disk:      disk,
		replacer:  replacer.New(poolSize, k),
		frames:    frames,
		pageTable: make(map[page.ID]frameIndex, poolSize),
		freeList:  free,
	}
}

// NewPage allocates a fresh page on disk, pins it zero-filled in a
// frame, and returns a WriteGuard over it. Callers must Drop the guard
// once done.
func (p *Pool) NewPage() (*WriteGuard, error) {
	id, err := p.disk.AllocatePage()
	if err != nil {
		return nil, err
	}

	f, fid, err := p.acquireFrame(id, true)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	return &WriteGuard{pool: p, frameID: fid, pageID: id, f: f}, nil
}

// ReadPage pins id and returns a ReadGuard over its contents.
func (p *Pool) ReadPage(id page.ID) (*ReadGuard, error) {
	f, fid, err := p.acquireFrame(id, false)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	return &ReadGuard{pool: p, frameID: fid, pageID: id, f: f}, nil
}

// WritePage pins id and returns a WriteGuard over its contents.
func (p *Pool) WritePage(id page.ID) (*WriteGuard, error) {
	f, fid, err := p.acquireFrame(id, false)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	return &WriteGuard{pool: p, frameID: fid, pageID: id, f: f}, nil
}

// FlushPage writes id's frame back to disk immediately, if resident and
// dirty, without unpinning it.
func (p *Pool) FlushPage(id page.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return nil
	}
	return p.flushLocked(fid)
}

// FlushAll writes every dirty resident frame back to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, fid := range p.pageTable {
		if err := p.flushLocked(fid); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage drops id from the buffer pool and returns its frame to the
// free list. Fails if the page is still pinned.
func (p *Pool) DeletePage(id page.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return nil
	}

	f := p.frames[fid]
	if f.pinCount > 0 {
		return errors.Errorf("bptreedb: cannot delete pinned page %d", id)
	}

	p.replacer.Remove(fid)
	delete(p.pageTable, id)
	f.pageID = page.Invalid
	f.dirty = false
	p.freeList = append(p.freeList, fid)
	return nil
}

// Close flushes every dirty frame and closes the backing disk manager.
func (p *Pool) Close() error {
	if err := p.FlushAll(); err != nil {
		return err
	}
	return p.disk.Close()
}

// flushLocked writes a frame's current contents to disk. Called with mu
// held.
func (p *Pool) flushLocked(fid frameIndex) error {
	f := p.frames[fid]
	if !f.dirty {
		return nil
	}
	f.mu.RLock()
	err := p.disk.WritePage(f.pageID, f.data[:])
	f.mu.RUnlock()
	if err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// acquireFrame finds or loads the frame for id, pinning it, and returns
// it without holding any frame-content latch - callers take that latch
// themselves once they have picked Read or Write.
func (p *Pool) acquireFrame(id page.ID, zeroFill bool) (*frame, frameIndex, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fid, ok := p.pageTable[id]; ok {
		f := p.frames[fid]
		f.pinCount++
		p.replacer.RecordAccess(fid, replacer.AccessLookup)
		p.replacer.SetEvictable(fid, false)
		return f, fid, nil
	}

	fid, err := p.reserveFrameLocked()
	if err != nil {
		return nil, 0, err
	}

	f := p.frames[fid]
	f.pageID = id
	f.dirty = false
	f.pinCount = 1

	if zeroFill {
		f.data = page.Bytes{}
	} else if err := p.disk.ReadPage(id, f.data[:]); err != nil {
		f.pageID = page.Invalid
		f.pinCount = 0
		p.freeList = append(p.freeList, fid)
		return nil, 0, err
	}

	p.pageTable[id] = fid
	p.replacer.RecordAccess(fid, replacer.AccessLookup)
	p.replacer.SetEvictable(fid, false)
	return f, fid, nil
}

// reserveFrameLocked returns a frame id ready to take a new page,
// either from the free list or by evicting a resident one. Called with
// mu held.
func (p *Pool) reserveFrameLocked() (frameIndex, error) {
	if n := len(p.freeList); n > 0 {
		fid := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return fid, nil
	}

	fid, ok := p.replacer.Evict()
	if !ok {
		return 0, dbkerr.ErrBufferPoolFull
	}

	evicted := p.frames[fid]
	if evicted.dirty {
		if err := p.disk.WritePage(evicted.pageID, evicted.data[:]); err != nil {
			return 0, errors.Wrapf(err, "failed to flush evicted page %d", evicted.pageID)
		}
	}
	logger.L.WithField("component", "buffer").
		Debugf("evicted page %d from frame %d", evicted.pageID, fid)

	delete(p.pageTable, evicted.pageID)
	return fid, nil
}

// unpin decrements a frame's pin count and, once it reaches zero,
// releases it to the replacer as an eviction candidate.
func (p *Pool) unpin(fid frameIndex, dirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := p.frames[fid]
	if dirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		return
	}
	f.pinCount--
	if f.pinCount == 0 {
		p.replacer.SetEvictable(fid, true)
	}
}
