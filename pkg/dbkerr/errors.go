// Package dbkerr defines the error sentinels shared by the disk manager,
// buffer pool, replacer and B+ tree. Logical absence conditions are
// returned and never panicked; the replacer's contract violations
// (programming bugs) are wrapped around these sentinels and panicked
// instead. ErrOutOfBounds is the exception: the tree returns it wrapped.
package dbkerr

import "errors"

var (
	// ErrKeyNotFound is never returned by the tree's public API
	// (GetValue answers with a zero RecordID and false instead); it is
	// defined for collaborators that prefer an error return.
	ErrKeyNotFound = errors.New("bptreedb: key not found")

	// ErrDuplicateKey mirrors Insert's false return for callers that
	// want an error-returning wrapper.
	ErrDuplicateKey = errors.New("bptreedb: key already exists")

	// ErrBufferPoolFull is returned when every frame is pinned and the
	// replacer has nothing evictable.
	ErrBufferPoolFull = errors.New("bptreedb: buffer pool full, no evictable frame")

	// ErrPageNotFound is returned by disk manager reads/writes for a
	// page id past the end of the backing file.
	ErrPageNotFound = errors.New("bptreedb: page not found")

	// ErrInvalidFrame signals a frame id at or past the replacer's
	// configured capacity: a programming bug, fatal.
	ErrInvalidFrame = errors.New("bptreedb: invalid frame id")

	// ErrNonEvictableRemove signals Remove called on a frame that is
	// not currently evictable: a programming bug, fatal.
	ErrNonEvictableRemove = errors.New("bptreedb: remove called on non-evictable frame")

	// ErrOutOfBounds signals a structural state the tree's latching
	// should make unreachable: a programming bug. The tree returns it
	// wrapped, not panicked, when a root collapse is reached without the
	// header latch held.
	ErrOutOfBounds = errors.New("bptreedb: page slot index out of bounds")
)
