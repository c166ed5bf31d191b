// Package bptree implements a disk-backed, concurrent B+ tree mapping
// fixed-width keys to record ids, latched with full lock coupling
// (crabbing) rather than the simpler hold-everything-to-root discipline:
// a write descent releases every ancestor latch, including the header
// page's, as soon as it reaches a node that is provably safe (an
// insert or removal there cannot propagate a structural change
// upward).
package bptree

import (
	"sync"

	"bptreedb/pkg/buffer"
	"bptreedb/pkg/dbkerr"
	"bptreedb/pkg/page"

	"github.com/pkg/errors"
)

// BPlusTree is the public index: a fixed-width-key, unique-key B+ tree
// over a shared buffer pool. Concurrent Insert/Remove/GetValue calls
// coordinate purely through per-page latches obtained from the pool; the
// tree itself holds no lock beyond what a single in-flight operation
// needs for its own crabbing chain.
type BPlusTree struct {
	pool         *buffer.Pool
	headerPageID page.ID
	opts         Options

	// rootMu is not used for mutual exclusion between operations - only
	// RootPageID() (mainly a debugging/testing helper) takes it.
	rootMu sync.Mutex
}

// Create allocates a new, empty tree backed by pool: a dedicated header
// page plus whatever root/leaf pages Insert later creates.
func Create(pool *buffer.Pool, opts Options) (*BPlusTree, error) {
	opts = opts.withDefaults()
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	headerGuard, err := pool.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate header page")
	}
	header := page.HeaderPage{RootPageID: page.Invalid}
	if err := headerGuard.Encode(&header); err != nil {
		headerGuard.Drop()
		return nil, err
	}
	headerID := headerGuard.PageID()
	headerGuard.Drop()

	return &BPlusTree{pool: pool, headerPageID: headerID, opts: opts}, nil
}

// Open reattaches to a tree whose header page (and everything
// reachable from it) already exists, e.g. after a process restart.
func Open(pool *buffer.Pool, headerPageID page.ID, opts Options) (*BPlusTree, error) {
	opts = opts.withDefaults()
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	return &BPlusTree{pool: pool, headerPageID: headerPageID, opts: opts}, nil
}

func validateOptions(o Options) error {
	if o.KeySize <= 0 {
		return errors.New("bptreedb: KeySize must be positive")
	}
	if nodeHeaderSize+o.LeafMaxSize*o.leafEntrySize() > page.Size {
		return errors.Errorf("bptreedb: LeafMaxSize %d does not fit a %d-byte page at key size %d", o.LeafMaxSize, page.Size, o.KeySize)
	}
	if nodeHeaderSize+o.InternalMaxSize*o.internalEntrySize() > page.Size {
		return errors.Errorf("bptreedb: InternalMaxSize %d does not fit a %d-byte page at key size %d", o.InternalMaxSize, page.Size, o.KeySize)
	}
	return nil
}

// HeaderPageID returns the page backing the tree's root pointer, for
// callers that need to persist it (e.g. in a catalog) and reopen the
// tree later via Open.
func (t *BPlusTree) HeaderPageID() page.ID { return t.headerPageID }

func (t *BPlusTree) readHeader() (page.HeaderPage, error) {
	guard, err := t.pool.ReadPage(t.headerPageID)
	if err != nil {
		return page.HeaderPage{}, err
	}
	defer guard.Drop()
	var h page.HeaderPage
	if err := guard.Decode(&h); err != nil {
		return page.HeaderPage{}, err
	}
	return h, nil
}

// IsEmpty reports whether the tree currently has no entries.
func (t *BPlusTree) IsEmpty() (bool, error) {
	h, err := t.readHeader()
	if err != nil {
		return false, err
	}
	return h.RootPageID == page.Invalid, nil
}

// RootPageID returns the tree's current root page, or page.Invalid if
// the tree is empty.
func (t *BPlusTree) RootPageID() (page.ID, error) {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()
	h, err := t.readHeader()
	if err != nil {
		return page.Invalid, err
	}
	return h.RootPageID, nil
}

func (t *BPlusTree) checkKey(key []byte) error {
	if len(key) != t.opts.KeySize {
		return errors.Errorf("bptreedb: key is %d bytes, want %d", len(key), t.opts.KeySize)
	}
	return nil
}

/*****************************************************************************
 * SEARCH
 *****************************************************************************/

// GetValue returns the record id associated with key, if present.
func (t *BPlusTree) GetValue(key []byte) (page.RecordID, bool, error) {
	if err := t.checkKey(key); err != nil {
		return page.RecordID{}, false, err
	}

	h, err := t.readHeader()
	if err != nil {
		return page.RecordID{}, false, err
	}
	if h.RootPageID == page.Invalid {
		return page.RecordID{}, false, nil
	}

	guard, err := t.pool.ReadPage(h.RootPageID)
	if err != nil {
		return page.RecordID{}, false, err
	}
	n := new(node)
	if err := guard.Decode(n); err != nil {
		guard.Drop()
		return page.RecordID{}, false, err
	}

	for !n.leaf {
		childID := n.childFor(key, t.opts.Comparator)
		childGuard, err := t.pool.ReadPage(childID)
		if err != nil {
			guard.Drop()
			return page.RecordID{}, false, err
		}
		child := new(node)
		if err := childGuard.Decode(child); err != nil {
			guard.Drop()
			childGuard.Drop()
			return page.RecordID{}, false, err
		}
		guard.Drop()
		guard, n = childGuard, child
	}

	idx, found := n.leafSearch(key, t.opts.Comparator)
	var rid page.RecordID
	if found {
		rid = n.values[idx]
	}
	guard.Drop()
	if !found {
		return page.RecordID{}, false, nil
	}
	return rid, true, nil
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

type writeFrame struct {
	guard *buffer.WriteGuard
	node  *node
}

func releaseFrames(frames []writeFrame) {
	for _, f := range frames {
		f.guard.Drop()
	}
}

func isInsertSafe(n *node) bool { return n.size() < n.maxSize }

// Insert adds key/rid to the tree. Reports false without modifying the
// tree if key is already present - this tree does not support duplicate
// keys.
func (t *BPlusTree) Insert(key []byte, rid page.RecordID) (bool, error) {
	if err := t.checkKey(key); err != nil {
		return false, err
	}

	headerGuard, err := t.pool.WritePage(t.headerPageID)
	if err != nil {
		return false, err
	}
	var header page.HeaderPage
	if err := headerGuard.Decode(&header); err != nil {
		headerGuard.Drop()
		return false, err
	}

	if header.RootPageID == page.Invalid {
		leafGuard, err := t.pool.NewPage()
		if err != nil {
			headerGuard.Drop()
			return false, err
		}
		leaf := newLeaf(leafGuard.PageID(), page.Invalid, t.opts)
		leaf.insertLeaf(key, rid, t.opts.Comparator)
		if err := leafGuard.Encode(leaf); err != nil {
			leafGuard.Drop()
			headerGuard.Drop()
			return false, err
		}
		leafGuard.Drop()

		header.RootPageID = leaf.pageID
		if err := headerGuard.Encode(&header); err != nil {
			headerGuard.Drop()
			return false, err
		}
		headerGuard.Drop()
		return true, nil
	}

	var ancestors []writeFrame
	headerHeld := true

	curGuard, err := t.pool.WritePage(header.RootPageID)
	if err != nil {
		headerGuard.Drop()
		return false, err
	}
	curNode := new(node)
	if err := curGuard.Decode(curNode); err != nil {
		curGuard.Drop()
		headerGuard.Drop()
		return false, err
	}

	for {
		if isInsertSafe(curNode) {
			if headerHeld {
				headerGuard.Drop()
				headerHeld = false
			}
			releaseFrames(ancestors)
			ancestors = ancestors[:0]
		}
		if curNode.leaf {
			break
		}
		ancestors = append(ancestors, writeFrame{guard: curGuard, node: curNode})

		childID := curNode.childFor(key, t.opts.Comparator)
		childGuard, err := t.pool.WritePage(childID)
		if err != nil {
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return false, err
		}
		child := new(node)
		if err := childGuard.Decode(child); err != nil {
			childGuard.Drop()
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return false, err
		}
		curGuard, curNode = childGuard, child
	}

	inserted := curNode.insertLeaf(key, rid, t.opts.Comparator)
	if !inserted {
		curGuard.Drop()
		releaseFrames(ancestors)
		if headerHeld {
			headerGuard.Drop()
		}
		return false, nil
	}

	if curNode.size() <= curNode.maxSize {
		if err := curGuard.Encode(curNode); err != nil {
			curGuard.Drop()
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return false, err
		}
		curGuard.Drop()
		releaseFrames(ancestors)
		if headerHeld {
			headerGuard.Drop()
		}
		return true, nil
	}

	if err := t.splitLeafAndPropagate(curGuard, curNode, ancestors, headerGuard, &header, headerHeld); err != nil {
		return false, err
	}
	return true, nil
}

func (t *BPlusTree) splitLeafAndPropagate(
	leafGuard *buffer.WriteGuard, leaf *node,
	ancestors []writeFrame,
	headerGuard *buffer.WriteGuard, header *page.HeaderPage, headerHeld bool,
) error {
	siblingGuard, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	sibling := newLeaf(siblingGuard.PageID(), leaf.parentID, t.opts)
	leaf.splitLeaf(sibling)
	risenKey := sibling.keys[0]

	return t.insertToParent(leafGuard, leaf, siblingGuard, sibling, risenKey, ancestors, headerGuard, header, headerHeld)
}

// insertToParent finishes an in-flight split: it writes back the split
// pair, then either inserts the separator into an already-latched
// parent, splits that parent in turn, or creates a brand new root.
func (t *BPlusTree) insertToParent(
	oldGuard *buffer.WriteGuard, oldNode *node,
	newGuard *buffer.WriteGuard, newNode *node,
	risenKey []byte,
	ancestors []writeFrame,
	headerGuard *buffer.WriteGuard, header *page.HeaderPage, headerHeld bool,
) error {
	if len(ancestors) == 0 {
		if !oldNode.isRoot() {
			return errors.New("bptreedb: split propagated past an unheld ancestor")
		}
		rootGuard, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		root := newInternal(rootGuard.PageID(), page.Invalid, t.opts)
		root.keys = append(root.keys, nil, risenKey)
		root.children = append(root.children, oldNode.pageID, newNode.pageID)

		oldNode.parentID = root.pageID
		newNode.parentID = root.pageID

		if err := oldGuard.Encode(oldNode); err != nil {
			return err
		}
		oldGuard.Drop()
		if err := newGuard.Encode(newNode); err != nil {
			return err
		}
		newGuard.Drop()
		if err := rootGuard.Encode(root); err != nil {
			rootGuard.Drop()
			return err
		}
		rootGuard.Drop()

		header.RootPageID = root.pageID
		if !headerHeld {
			return errors.New("bptreedb: new root created without holding header latch")
		}
		if err := headerGuard.Encode(header); err != nil {
			headerGuard.Drop()
			return err
		}
		headerGuard.Drop()
		return nil
	}

	parentFrame := ancestors[len(ancestors)-1]
	ancestors = ancestors[:len(ancestors)-1]
	parentGuard, parent := parentFrame.guard, parentFrame.node

	newNode.parentID = parent.pageID
	if err := oldGuard.Encode(oldNode); err != nil {
		return err
	}
	oldGuard.Drop()
	if err := newGuard.Encode(newNode); err != nil {
		return err
	}
	newGuard.Drop()

	parent.insertInternal(risenKey, newNode.pageID, t.opts.Comparator)

	if parent.size() <= parent.maxSize {
		if err := parentGuard.Encode(parent); err != nil {
			parentGuard.Drop()
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		parentGuard.Drop()
		releaseFrames(ancestors)
		if headerHeld {
			headerGuard.Drop()
		}
		return nil
	}

	siblingGuard, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	sibling := newInternal(siblingGuard.PageID(), parent.parentID, t.opts)
	moved := parent.splitInternal(sibling)
	parentRisenKey := sibling.keys[0]
	sibling.keys[0] = nil

	for _, childID := range moved {
		if err := t.reparent(childID, sibling.pageID); err != nil {
			return err
		}
	}

	return t.insertToParent(parentGuard, parent, siblingGuard, sibling, parentRisenKey, ancestors, headerGuard, header, headerHeld)
}

// reparent loads childID, sets its parent pointer, and writes it back.
func (t *BPlusTree) reparent(childID, parentID page.ID) error {
	guard, err := t.pool.WritePage(childID)
	if err != nil {
		return err
	}
	n := new(node)
	if err := guard.Decode(n); err != nil {
		guard.Drop()
		return err
	}
	n.parentID = parentID
	if err := guard.Encode(n); err != nil {
		guard.Drop()
		return err
	}
	guard.Drop()
	return nil
}

/*****************************************************************************
 * REMOVAL
 *****************************************************************************/

func isDeleteSafe(n *node) bool { return n.size() > n.minSize() }

// Remove deletes key if present. Removing an absent key is a no-op.
func (t *BPlusTree) Remove(key []byte) error {
	if err := t.checkKey(key); err != nil {
		return err
	}

	headerGuard, err := t.pool.WritePage(t.headerPageID)
	if err != nil {
		return err
	}
	var header page.HeaderPage
	if err := headerGuard.Decode(&header); err != nil {
		headerGuard.Drop()
		return err
	}
	if header.RootPageID == page.Invalid {
		headerGuard.Drop()
		return nil
	}

	var ancestors []writeFrame
	headerHeld := true

	curGuard, err := t.pool.WritePage(header.RootPageID)
	if err != nil {
		headerGuard.Drop()
		return err
	}
	curNode := new(node)
	if err := curGuard.Decode(curNode); err != nil {
		curGuard.Drop()
		headerGuard.Drop()
		return err
	}

	for {
		if isDeleteSafe(curNode) {
			if headerHeld {
				headerGuard.Drop()
				headerHeld = false
			}
			releaseFrames(ancestors)
			ancestors = ancestors[:0]
		}
		if curNode.leaf {
			break
		}
		ancestors = append(ancestors, writeFrame{guard: curGuard, node: curNode})

		childID := curNode.childFor(key, t.opts.Comparator)
		childGuard, err := t.pool.WritePage(childID)
		if err != nil {
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		child := new(node)
		if err := childGuard.Decode(child); err != nil {
			childGuard.Drop()
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		curGuard, curNode = childGuard, child
	}

	removed := curNode.removeLeaf(key, t.opts.Comparator)
	if !removed {
		curGuard.Drop()
		releaseFrames(ancestors)
		if headerHeld {
			headerGuard.Drop()
		}
		return nil
	}

	return t.handleUnderflow(curGuard, curNode, ancestors, headerGuard, &header, headerHeld)
}

// handleUnderflow is entered once, right after a node lost an entry (a
// leaf's key, or - via the loop below - an internal node's child during
// coalescing). It walks upward exactly as far as necessary: redistribute
// from a sibling, coalesce with a sibling, or collapse the root.
func (t *BPlusTree) handleUnderflow(
	guard *buffer.WriteGuard, n *node,
	ancestors []writeFrame,
	headerGuard *buffer.WriteGuard, header *page.HeaderPage, headerHeld bool,
) error {
	for {
		if n.isRoot() {
			return t.fixRoot(guard, n, ancestors, headerGuard, header, headerHeld)
		}

		if n.size() >= n.minSize() {
			if err := guard.Encode(n); err != nil {
				guard.Drop()
				releaseFrames(ancestors)
				if headerHeld {
					headerGuard.Drop()
				}
				return err
			}
			guard.Drop()
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return nil
		}

		if len(ancestors) == 0 {
			return errors.New("bptreedb: underflowing node has no held parent latch")
		}
		parentFrame := ancestors[len(ancestors)-1]
		ancestors = ancestors[:len(ancestors)-1]
		parentGuard, parent := parentFrame.guard, parentFrame.node

		idx := parent.childIndex(n.pageID)
		if idx < 0 {
			return errors.Errorf("bptreedb: page %d missing from parent %d", n.pageID, parent.pageID)
		}
		if idx == 0 && idx == parent.size()-1 {
			panic(errors.Errorf("bptreedb: internal node %d would be left with a single child", parent.pageID))
		}

		var (
			survivorGuard *buffer.WriteGuard
			survivor      *node
			done          bool
			err           error
		)

		if idx != parent.size()-1 {
			survivorGuard, survivor, done, err = t.borrowOrMergeWithNext(guard, n, parent, idx)
		} else {
			survivorGuard, survivor, done, err = t.borrowOrMergeWithPrev(guard, n, parent, idx)
		}
		if err != nil {
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}

		if done {
			if err := parentGuard.Encode(parent); err != nil {
				parentGuard.Drop()
				releaseFrames(ancestors)
				if headerHeld {
					headerGuard.Drop()
				}
				return err
			}
			parentGuard.Drop()
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return nil
		}

		// Coalesced: survivor absorbed its sibling and is final at this
		// level. Continue the loop treating parent as the node that may
		// now itself be underflowing.
		if err := survivorGuard.Encode(survivor); err != nil {
			survivorGuard.Drop()
			releaseFrames(ancestors)
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		survivorGuard.Drop()

		guard, n = parentGuard, parent
	}
}

// borrowOrMergeWithNext handles the case where n has a right sibling:
// redistribute from it if it has entries to spare, else merge it into
// n. done reports whether the operation fully resolved the underflow
// (redistribute) versus requiring the caller to re-examine parent
// (coalesce).
func (t *BPlusTree) borrowOrMergeWithNext(guard *buffer.WriteGuard, n, parent *node, idx int) (*buffer.WriteGuard, *node, bool, error) {
	siblingID := parent.children[idx+1]
	siblingGuard, err := t.pool.WritePage(siblingID)
	if err != nil {
		return nil, nil, false, err
	}
	sibling := new(node)
	if err := siblingGuard.Decode(sibling); err != nil {
		siblingGuard.Drop()
		return nil, nil, false, err
	}

	if sibling.size() > sibling.minSize() {
		if n.leaf {
			sibling.moveOneLeafTo(0, n, n.size())
			parent.keys[idx+1] = sibling.keys[0]
		} else {
			movedKey := sibling.keys[1]
			pullDownKey := parent.keys[idx+1]
			parent.keys[idx+1] = movedKey
			movedChild := sibling.moveFirstToEnd(n, pullDownKey)
			if err := t.reparent(movedChild, n.pageID); err != nil {
				siblingGuard.Drop()
				guard.Drop()
				return nil, nil, false, err
			}
		}
		if err := guard.Encode(n); err != nil {
			guard.Drop()
			siblingGuard.Drop()
			return nil, nil, false, err
		}
		guard.Drop()
		if err := siblingGuard.Encode(sibling); err != nil {
			siblingGuard.Drop()
			return nil, nil, false, err
		}
		siblingGuard.Drop()
		return nil, nil, true, nil
	}

	mergeIdx := idx + 1
	pullDownKey := parent.keys[mergeIdx]
	if n.leaf {
		sibling.moveAllLeafTo(n)
	} else {
		moved := sibling.moveAllInternalTo(n, pullDownKey)
		for _, childID := range moved {
			if err := t.reparent(childID, n.pageID); err != nil {
				siblingGuard.Drop()
				return nil, nil, false, err
			}
		}
	}
	siblingGuard.Drop()
	if err := t.pool.DeletePage(siblingID); err != nil {
		return nil, nil, false, err
	}
	parent.removeInternalAt(mergeIdx)
	return guard, n, false, nil
}

// borrowOrMergeWithPrev handles the case where n is the parent's last
// child and must use its left sibling instead.
func (t *BPlusTree) borrowOrMergeWithPrev(guard *buffer.WriteGuard, n, parent *node, idx int) (*buffer.WriteGuard, *node, bool, error) {
	siblingID := parent.children[idx-1]
	siblingGuard, err := t.pool.WritePage(siblingID)
	if err != nil {
		return nil, nil, false, err
	}
	sibling := new(node)
	if err := siblingGuard.Decode(sibling); err != nil {
		siblingGuard.Drop()
		return nil, nil, false, err
	}

	if sibling.size() > sibling.minSize() {
		if n.leaf {
			sibling.moveOneLeafTo(sibling.size()-1, n, 0)
			parent.keys[idx] = n.keys[0]
		} else {
			pullDownKey := parent.keys[idx]
			// sibling's last separator stays the valid boundary once its
			// last child is gone; it rises to the parent, while
			// pullDownKey demotes into n's new slot 1.
			newSeparator := sibling.keys[len(sibling.children)-1]
			movedChild := sibling.moveLastToBegin(n, pullDownKey)
			parent.keys[idx] = newSeparator
			if err := t.reparent(movedChild, n.pageID); err != nil {
				siblingGuard.Drop()
				guard.Drop()
				return nil, nil, false, err
			}
		}
		if err := guard.Encode(n); err != nil {
			guard.Drop()
			siblingGuard.Drop()
			return nil, nil, false, err
		}
		guard.Drop()
		if err := siblingGuard.Encode(sibling); err != nil {
			siblingGuard.Drop()
			return nil, nil, false, err
		}
		siblingGuard.Drop()
		return nil, nil, true, nil
	}

	mergeIdx := idx
	pullDownKey := parent.keys[mergeIdx]
	if n.leaf {
		n.moveAllLeafTo(sibling)
	} else {
		moved := n.moveAllInternalTo(sibling, pullDownKey)
		for _, childID := range moved {
			if err := t.reparent(childID, sibling.pageID); err != nil {
				siblingGuard.Drop()
				return nil, nil, false, err
			}
		}
	}
	guard.Drop()
	if err := t.pool.DeletePage(n.pageID); err != nil {
		return nil, nil, false, err
	}
	parent.removeInternalAt(mergeIdx)
	return siblingGuard, sibling, false, nil
}

// fixRoot applies the root-collapse rules: an internal root left with
// one child is replaced by that child, and a leaf root left with no
// entries makes the tree empty.
func (t *BPlusTree) fixRoot(
	guard *buffer.WriteGuard, n *node,
	ancestors []writeFrame,
	headerGuard *buffer.WriteGuard, header *page.HeaderPage, headerHeld bool,
) error {
	releaseFrames(ancestors) // always empty in practice; defensive

	collapse := false
	switch {
	case !n.leaf && n.size() == 1:
		childID := n.children[0]
		childGuard, err := t.pool.WritePage(childID)
		if err != nil {
			guard.Drop()
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		child := new(node)
		if err := childGuard.Decode(child); err != nil {
			childGuard.Drop()
			guard.Drop()
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		child.parentID = page.Invalid
		if err := childGuard.Encode(child); err != nil {
			childGuard.Drop()
			guard.Drop()
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		childGuard.Drop()

		guard.Drop()
		if err := t.pool.DeletePage(n.pageID); err != nil {
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		header.RootPageID = childID
		collapse = true

	case n.leaf && n.size() == 0:
		guard.Drop()
		if err := t.pool.DeletePage(n.pageID); err != nil {
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		header.RootPageID = page.Invalid
		collapse = true

	default:
		if err := guard.Encode(n); err != nil {
			guard.Drop()
			if headerHeld {
				headerGuard.Drop()
			}
			return err
		}
		guard.Drop()
	}

	if collapse {
		if !headerHeld {
			return errors.Wrap(dbkerr.ErrOutOfBounds, "bptreedb: root collapsed without holding the header latch")
		}
		if err := headerGuard.Encode(header); err != nil {
			headerGuard.Drop()
			return err
		}
		headerGuard.Drop()
		return nil
	}

	if headerHeld {
		headerGuard.Drop()
	}
	return nil
}
