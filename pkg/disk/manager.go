// Package disk implements the on-disk page store: ReadPage/WritePage/
// AllocatePage backed by a single growable file. The backing file is
// memory-mapped with
// github.com/edsrzf/mmap-go so reads and writes are plain slice copies
// against the mapped region instead of per-page syscalls.
package disk

import (
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"bptreedb/pkg/dbkerr"
	"bptreedb/pkg/page"

	"bptreedb/util/logger"
)

// Manager owns one backing file (or, with Open(":memory:"), an in-memory
// byte slice standing in for one) and hands out fixed-size pages to the
// buffer pool by id.
type Manager struct {
	mu       sync.Mutex
	path     string
	inMemory bool

	file    *os.File
	mapping mmap.MMap
	memory  []byte

	numPages int32
}

// Open opens (creating if necessary) the named file as page storage. Use
// ":memory:" for an in-memory manager, handy for quick tests.
func Open(path string) (*Manager, error) {
	if path == ":memory:" {
		return &Manager{path: path, inMemory: true}, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open page file")
	}

	m := &Manager{path: path, file: f}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "failed to stat page file")
	}

	m.numPages = int32(info.Size() / page.Size)
	if info.Size() > 0 {
		if err := m.remap(info.Size()); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return m, nil
}

// AllocatePage grows the backing store by one page and returns its id.
// The new page's contents are zeroed.
func (m *Manager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := page.ID(m.numPages)
	m.numPages++

	if m.inMemory {
		m.memory = append(m.memory, make([]byte, page.Size)...)
		return id, nil
	}

	newSize := int64(m.numPages) * page.Size
	if err := m.growFile(newSize); err != nil {
		return page.Invalid, err
	}
	return id, nil
}

// ReadPage copies the persisted contents of id into dst, which must be
// exactly page.Size bytes.
func (m *Manager) ReadPage(id page.ID, dst []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	off, err := m.offset(id)
	if err != nil {
		return err
	}

	src := m.backing()
	copy(dst, src[off:off+page.Size])
	return nil
}

// WritePage persists src (exactly page.Size bytes) as the contents of id.
func (m *Manager) WritePage(id page.ID, src []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	off, err := m.offset(id)
	if err != nil {
		return err
	}

	dst := m.backing()
	copy(dst[off:off+page.Size], src)
	return nil
}

// Sync flushes the memory-mapped region to disk. No-op for an in-memory
// manager.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inMemory || m.mapping == nil {
		return nil
	}
	return errors.Wrap(m.mapping.Flush(), "failed to flush page mapping")
}

// Close releases the mapping and the underlying file handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inMemory {
		return nil
	}
	if m.mapping != nil {
		if err := m.mapping.Unmap(); err != nil {
			return errors.Wrap(err, "failed to unmap page file")
		}
		m.mapping = nil
	}
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}

func (m *Manager) offset(id page.ID) (int64, error) {
	if !id.IsValid() || int32(id) >= m.numPages {
		return 0, errors.Wrapf(dbkerr.ErrPageNotFound, "page id %d", id)
	}
	return int64(id) * page.Size, nil
}

func (m *Manager) backing() []byte {
	if m.inMemory {
		return m.memory
	}
	return m.mapping
}

// growFile extends the file to newSize and remaps it. Called with mu
// held.
func (m *Manager) growFile(newSize int64) error {
	if m.mapping != nil {
		if err := m.mapping.Unmap(); err != nil {
			return errors.Wrap(err, "failed to unmap page file before growing")
		}
		m.mapping = nil
	}
	if err := m.file.Truncate(newSize); err != nil {
		return errors.Wrap(err, "failed to grow page file")
	}
	return m.remap(newSize)
}

func (m *Manager) remap(size int64) error {
	mapping, err := mmap.MapRegion(m.file, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		return errors.Wrap(err, "failed to mmap page file")
	}
	m.mapping = mapping
	logger.L.WithField("component", "disk").Debugf("mapped %s (%d bytes)", m.path, size)
	return nil
}
