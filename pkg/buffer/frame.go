package buffer

import (
	"sync"

	"bptreedb/pkg/page"
)

// frame is one buffer-pool slot: page.Size bytes plus the bookkeeping the
// pool and replacer need to track what occupies it. Content access goes
// through mu so that a reader holding a ReadGuard and a writer holding a
// WriteGuard never touch data concurrently, independent of the pool's own
// mutex which only ever protects the page table and frame metadata.
type frame struct {
	mu sync.RWMutex

	data     page.Bytes
	pageID   page.ID
	pinCount int32
	dirty    bool
}
