package bptree

import (
	"encoding/binary"

	"bptreedb/pkg/page"
	"bptreedb/util/helpers"

	"github.com/pkg/errors"
)

var bin = binary.LittleEndian

const nodeHeaderSize = 1 + 2 + 4 + 4 + 4 + 4 + 4 // kind, keySize, maxSize, size, pageID, parentID, nextPageID

const (
	kindLeaf     = uint8(0)
	kindInternal = uint8(1)
)

// node is one B+ tree page, decoded into Go slices. Internal nodes keep
// Keys[0] as an unused placeholder so that Children[i] always sits
// between separators Keys[i] and Keys[i+1], the same convention the
// algorithm it is grounded on uses for its fixed C arrays; nothing but
// the index arithmetic below depends on that slot's contents.
type node struct {
	pageID     page.ID
	parentID   page.ID
	nextPageID page.ID // leaf sibling chain; page.Invalid for internal nodes
	leaf       bool
	maxSize    int
	keySize    int

	keys     [][]byte
	values   []page.RecordID // leaf only
	children []page.ID       // internal only
}

func newLeaf(id, parent page.ID, opts Options) *node {
	return &node{
		pageID: id, parentID: parent, nextPageID: page.Invalid,
		leaf: true, maxSize: opts.LeafMaxSize, keySize: opts.KeySize,
	}
}

func newInternal(id, parent page.ID, opts Options) *node {
	return &node{
		pageID: id, parentID: parent, nextPageID: page.Invalid,
		leaf: false, maxSize: opts.InternalMaxSize, keySize: opts.KeySize,
	}
}

func (n *node) size() int {
	if n.leaf {
		return len(n.keys)
	}
	return len(n.children)
}

func (n *node) isRoot() bool { return n.parentID == page.Invalid }

// minSize mirrors the halving rule used throughout: ceil(maxSize/2),
// bumped to 2 for internal nodes so a split internal node never drops
// below two children.
func (n *node) minSize() int {
	m := helpers.CeilDiv(n.maxSize, 2)
	if m == 1 && !n.leaf {
		m = 2
	}
	return m
}

// leafSearch returns the position of key in a leaf's key array (lower
// bound: the first slot whose key is >= the search key) and whether it
// is an exact match.
func (n *node) leafSearch(key []byte, cmp Comparator) (idx int, found bool) {
	lo, hi := 0, len(n.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.keys[mid], key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(n.keys) && cmp(n.keys[lo], key) == 0
}

// childSlot returns the index i such that children[i-1] is the child
// that may contain key: the first separator index in [1, size) whose
// key is strictly greater than the search key, or size if none is.
func (n *node) childSlot(key []byte, cmp Comparator) int {
	lo, hi := 1, len(n.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.keys[mid], key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// childFor returns the child page that may hold key.
func (n *node) childFor(key []byte, cmp Comparator) page.ID {
	idx := n.childSlot(key, cmp)
	return n.children[idx-1]
}

// childIndex returns the position of childID in the children array, or
// -1 if absent.
func (n *node) childIndex(childID page.ID) int {
	for i, c := range n.children {
		if c == childID {
			return i
		}
	}
	return -1
}

// insertLeaf inserts key/rid in sorted order. Returns false without
// modifying the node if key is already present.
func (n *node) insertLeaf(key []byte, rid page.RecordID, cmp Comparator) bool {
	idx, found := n.leafSearch(key, cmp)
	if found {
		return false
	}
	n.keys = insertAt(n.keys, idx, key)
	n.values = append(n.values, page.RecordID{})
	copy(n.values[idx+1:], n.values[idx:])
	n.values[idx] = rid
	return true
}

// removeLeaf deletes key if present, returning whether it was found.
func (n *node) removeLeaf(key []byte, cmp Comparator) bool {
	idx, found := n.leafSearch(key, cmp)
	if !found {
		return false
	}
	n.keys = removeAt(n.keys, idx)
	n.values = append(n.values[:idx], n.values[idx+1:]...)
	return true
}

// insertInternal inserts a new separator/child pair. A separator equal
// to an existing one is a no-op, mirroring the algorithm this is
// grounded on (InsertToParent never produces duplicate separators in
// practice; the guard just keeps the operation total).
func (n *node) insertInternal(key []byte, childID page.ID, cmp Comparator) {
	idx := n.childSlot(key, cmp)
	if idx < len(n.keys) && cmp(n.keys[idx], key) == 0 {
		return
	}
	n.keys = insertAt(n.keys, idx, key)
	n.children = append(n.children, page.Invalid)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = childID
}

// removeInternalAt deletes the separator/child pair at idx. idx must be
// >= 1 (the dummy key at 0 is never removed on its own; callers that
// need to drop the leftmost child use removeFirstChild).
func (n *node) removeInternalAt(idx int) {
	n.keys = removeAt(n.keys, idx)
	n.children = append(n.children[:idx], n.children[idx+1:]...)
}

// removeFirstChild drops child 0 and promotes key 1 into the dummy
// slot 0, matching RemoveFirstKey.
func (n *node) removeFirstChild() {
	n.keys = append(n.keys[:0], n.keys[1:]...)
	n.children = append(n.children[:0], n.children[1:]...)
}

// splitLeaf moves the upper half of n's entries into a freshly
// allocated sibling. The sibling takes over n's sibling-chain pointer
// and n points at the sibling.
func (n *node) splitLeaf(sibling *node) {
	start := n.minSize()
	sibling.keys = append(sibling.keys, n.keys[start:]...)
	sibling.values = append(sibling.values, n.values[start:]...)
	sibling.nextPageID = n.nextPageID

	n.keys = n.keys[:start]
	n.values = n.values[:start]
	n.nextPageID = sibling.pageID
}

// splitInternal moves the upper half of n's children into sibling and
// returns the ids of the children that moved, so the caller can fix up
// their parent pointers. The separator key that rises to the parent is
// sibling.keys[0] by convention (it gets overwritten by the caller).
func (n *node) splitInternal(sibling *node) (moved []page.ID) {
	start := n.minSize()
	if start == 1 {
		start++
	}
	sibling.keys = append(sibling.keys, n.keys[start:]...)
	sibling.children = append(sibling.children, n.children[start:]...)

	moved = append(moved, n.children[start:]...)

	n.keys = n.keys[:start]
	n.children = n.children[:start]
	return moved
}

// moveAllLeafTo appends n's entries onto recipient and transfers the
// sibling-chain pointer, emptying n. Used when coalescing a leaf into
// its left sibling.
func (n *node) moveAllLeafTo(recipient *node) {
	recipient.keys = append(recipient.keys, n.keys...)
	recipient.values = append(recipient.values, n.values...)
	recipient.nextPageID = n.nextPageID
	n.keys, n.values = nil, nil
}

// moveAllInternalTo appends n's children onto recipient under
// pullDownKey (the separator demoted from the parent) and returns the
// ids of the children that moved.
func (n *node) moveAllInternalTo(recipient *node, pullDownKey []byte) (moved []page.ID) {
	n.keys[0] = pullDownKey
	recipient.keys = append(recipient.keys, n.keys...)
	recipient.children = append(recipient.children, n.children...)
	moved = append(moved, n.children...)
	n.keys, n.children = nil, nil
	return moved
}

// moveOneLeafTo relocates the entry at srcIdx into recipient at
// recipientIdx, for redistribution between leaf siblings.
func (n *node) moveOneLeafTo(srcIdx int, recipient *node, recipientIdx int) {
	key, rid := n.keys[srcIdx], n.values[srcIdx]

	recipient.keys = insertAt(recipient.keys, recipientIdx, key)
	recipient.values = append(recipient.values, page.RecordID{})
	copy(recipient.values[recipientIdx+1:], recipient.values[recipientIdx:])
	recipient.values[recipientIdx] = rid

	n.keys = removeAt(n.keys, srcIdx)
	n.values = append(n.values[:srcIdx], n.values[srcIdx+1:]...)
}

// moveFirstToEnd relocates n's leftmost child onto the end of recipient
// under pullDownKey, used when redistributing from a right sibling. The
// separator key that used to sit between n's first two children is
// discarded: once the first child leaves, the second (now leftmost)
// needs no separator of its own, since slot 0 is always the dummy.
// Returns the moved child's id.
func (n *node) moveFirstToEnd(recipient *node, pullDownKey []byte) page.ID {
	movedChild := n.children[0]

	recipient.keys = append(recipient.keys, pullDownKey)
	recipient.children = append(recipient.children, movedChild)

	n.keys = append(n.keys[:1], n.keys[2:]...)
	n.children = append(n.children[:0], n.children[1:]...)
	return movedChild
}

// moveLastToBegin relocates n's rightmost child onto the front of
// recipient under pullDownKey, used when redistributing from a left
// sibling. Returns the moved child's id.
func (n *node) moveLastToBegin(recipient *node, pullDownKey []byte) page.ID {
	last := len(n.children) - 1
	movedChild := n.children[last]

	recipient.keys = insertAt(recipient.keys, 1, pullDownKey)
	recipient.children = insertAt2(recipient.children, 0, movedChild)

	n.keys = n.keys[:last]
	n.children = n.children[:last]
	return movedChild
}

func insertAt(s [][]byte, idx int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func removeAt(s [][]byte, idx int) [][]byte {
	return append(s[:idx], s[idx+1:]...)
}

func insertAt2(s []page.ID, idx int, v page.ID) []page.ID {
	s = append(s, page.Invalid)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func (n *node) MarshalBinary() ([]byte, error) {
	size := n.size()
	entrySize := n.keySize + childIDSize
	if n.leaf {
		entrySize = n.keySize + recordIDSize
	}
	buf := make([]byte, nodeHeaderSize+size*entrySize)

	off := 0
	if n.leaf {
		buf[off] = kindLeaf
	} else {
		buf[off] = kindInternal
	}
	off++
	bin.PutUint16(buf[off:], uint16(n.keySize))
	off += 2
	bin.PutUint32(buf[off:], uint32(n.maxSize))
	off += 4
	bin.PutUint32(buf[off:], uint32(size))
	off += 4
	bin.PutUint32(buf[off:], uint32(n.pageID))
	off += 4
	bin.PutUint32(buf[off:], uint32(n.parentID))
	off += 4
	bin.PutUint32(buf[off:], uint32(n.nextPageID))
	off += 4

	if n.leaf {
		for i := 0; i < size; i++ {
			copy(buf[off:], n.keys[i])
			off += n.keySize
			bin.PutUint32(buf[off:], uint32(n.values[i].PageID))
			off += 4
			bin.PutUint32(buf[off:], n.values[i].Slot)
			off += 4
		}
	} else {
		for i := 0; i < size; i++ {
			if n.keys[i] != nil {
				copy(buf[off:], n.keys[i])
			}
			off += n.keySize
			bin.PutUint32(buf[off:], uint32(n.children[i]))
			off += 4
		}
	}
	return buf, nil
}

func (n *node) UnmarshalBinary(d []byte) error {
	if len(d) < nodeHeaderSize {
		return errors.New("bptreedb: truncated node page")
	}
	off := 0
	n.leaf = d[off] == kindLeaf
	off++
	n.keySize = int(bin.Uint16(d[off:]))
	off += 2
	n.maxSize = int(bin.Uint32(d[off:]))
	off += 4
	size := int(bin.Uint32(d[off:]))
	off += 4
	n.pageID = page.ID(bin.Uint32(d[off:]))
	off += 4
	n.parentID = page.ID(bin.Uint32(d[off:]))
	off += 4
	n.nextPageID = page.ID(bin.Uint32(d[off:]))
	off += 4

	if n.leaf {
		n.keys = make([][]byte, size)
		n.values = make([]page.RecordID, size)
		for i := 0; i < size; i++ {
			key := make([]byte, n.keySize)
			copy(key, d[off:off+n.keySize])
			off += n.keySize
			n.keys[i] = key
			n.values[i].PageID = page.ID(bin.Uint32(d[off:]))
			off += 4
			n.values[i].Slot = bin.Uint32(d[off:])
			off += 4
		}
	} else {
		n.keys = make([][]byte, size)
		n.children = make([]page.ID, size)
		for i := 0; i < size; i++ {
			key := make([]byte, n.keySize)
			copy(key, d[off:off+n.keySize])
			off += n.keySize
			n.keys[i] = key
			n.children[i] = page.ID(bin.Uint32(d[off:]))
			off += 4
		}
	}
	return nil
}
