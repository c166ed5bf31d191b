package bptree

import "bptreedb/pkg/page"

// Iterator walks a leaf chain in key order. It holds no latch between
// calls to Next: it keeps a decoded copy of the current leaf and takes a
// short ReadPage latch only to load the next leaf in the chain, so a
// long-lived iterator does not starve writers the way holding one open
// would. Key and Value read from that copy; changes made to the current
// leaf after the iterator loaded it are not seen.
type Iterator struct {
	tree  *BPlusTree
	slot  int
	leaf  *node
	atEnd bool
}

// End returns an iterator positioned past the last entry.
func (t *BPlusTree) End() *Iterator {
	return &Iterator{tree: t, atEnd: true}
}

// Begin returns an iterator positioned at the tree's first entry.
func (t *BPlusTree) Begin() (*Iterator, error) {
	h, err := t.readHeader()
	if err != nil {
		return nil, err
	}
	if h.RootPageID == page.Invalid {
		return t.End(), nil
	}

	guard, err := t.pool.ReadPage(h.RootPageID)
	if err != nil {
		return nil, err
	}
	n := new(node)
	if err := guard.Decode(n); err != nil {
		guard.Drop()
		return nil, err
	}
	for !n.leaf {
		childID := n.children[0]
		childGuard, err := t.pool.ReadPage(childID)
		guard.Drop()
		if err != nil {
			return nil, err
		}
		child := new(node)
		if err := childGuard.Decode(child); err != nil {
			childGuard.Drop()
			return nil, err
		}
		guard, n = childGuard, child
	}
	guard.Drop()

	it := &Iterator{tree: t, slot: 0, leaf: n}
	if err := it.skipEmptyLeaves(); err != nil {
		return nil, err
	}
	return it, nil
}

// BeginAt returns an iterator positioned at key, or an End iterator if
// key is absent.
func (t *BPlusTree) BeginAt(key []byte) (*Iterator, error) {
	if err := t.checkKey(key); err != nil {
		return nil, err
	}
	h, err := t.readHeader()
	if err != nil {
		return nil, err
	}
	if h.RootPageID == page.Invalid {
		return t.End(), nil
	}

	guard, err := t.pool.ReadPage(h.RootPageID)
	if err != nil {
		return nil, err
	}
	n := new(node)
	if err := guard.Decode(n); err != nil {
		guard.Drop()
		return nil, err
	}
	for !n.leaf {
		childID := n.childFor(key, t.opts.Comparator)
		childGuard, err := t.pool.ReadPage(childID)
		guard.Drop()
		if err != nil {
			return nil, err
		}
		child := new(node)
		if err := childGuard.Decode(child); err != nil {
			childGuard.Drop()
			return nil, err
		}
		guard, n = childGuard, child
	}
	guard.Drop()

	idx, found := n.leafSearch(key, t.opts.Comparator)
	if !found {
		return t.End(), nil
	}
	return &Iterator{tree: t, slot: idx, leaf: n}, nil
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return !it.atEnd }

// Key returns the key at the iterator's current position. Only valid
// when Valid() is true.
func (it *Iterator) Key() []byte { return it.leaf.keys[it.slot] }

// Value returns the record id at the iterator's current position. Only
// valid when Valid() is true.
func (it *Iterator) Value() page.RecordID { return it.leaf.values[it.slot] }

// Next advances the iterator by one entry.
func (it *Iterator) Next() error {
	if it.atEnd {
		return nil
	}
	it.slot++
	return it.skipEmptyLeaves()
}

// skipEmptyLeaves advances to the next leaf along the sibling chain
// when the current slot has run past the loaded leaf's entries.
func (it *Iterator) skipEmptyLeaves() error {
	for it.slot >= len(it.leaf.keys) {
		if it.leaf.nextPageID == page.Invalid {
			it.atEnd = true
			return nil
		}
		guard, err := it.tree.pool.ReadPage(it.leaf.nextPageID)
		if err != nil {
			return err
		}
		n := new(node)
		if err := guard.Decode(n); err != nil {
			guard.Drop()
			return err
		}
		guard.Drop()
		it.leaf, it.slot = n, 0
	}
	return nil
}
