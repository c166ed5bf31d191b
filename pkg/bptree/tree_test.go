package bptree

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"bptreedb/pkg/buffer"
	"bptreedb/pkg/disk"
	"bptreedb/pkg/page"
)

func newTestTree(t *testing.T, opts Options) *BPlusTree {
	t.Helper()
	d, err := disk.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	pool := buffer.NewPool(d, 32, 2)
	tree, err := Create(pool, opts)
	require.NoError(t, err)
	return tree
}

func keyOf(n int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}

func TestBPlusTree_InsertGetValue(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 4, InternalMaxSize: 4})

	for i := 0; i < 50; i++ {
		ok, err := tree.Insert(keyOf(i), page.RecordID{PageID: page.ID(i), Slot: uint32(i)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := 0; i < 50; i++ {
		rid, found, err := tree.GetValue(keyOf(i))
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		require.Equal(t, page.ID(i), rid.PageID)
		require.Equal(t, uint32(i), rid.Slot)
	}

	_, found, err := tree.GetValue(keyOf(999))
	require.NoError(t, err)
	require.False(t, found)
}

func TestBPlusTree_DuplicateInsertRejected(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 4, InternalMaxSize: 4})

	ok, err := tree.Insert(keyOf(1), page.RecordID{PageID: 1})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Insert(keyOf(1), page.RecordID{PageID: 2})
	require.NoError(t, err)
	require.False(t, ok)

	rid, found, err := tree.GetValue(keyOf(1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, page.ID(1), rid.PageID)
}

// Small fanout (leaf=2, internal=3) forces splits after just a few
// inserts, exercising root creation and multi-level splits.
func TestBPlusTree_SmallFanoutSplits(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 2, InternalMaxSize: 3})

	n := 40
	for i := 0; i < n; i++ {
		ok, err := tree.Insert(keyOf(i), page.RecordID{PageID: page.ID(i)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := 0; i < n; i++ {
		rid, found, err := tree.GetValue(keyOf(i))
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		require.Equal(t, page.ID(i), rid.PageID)
	}

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	require.False(t, empty)
}

// Removal down to zero entries exercises redistribution, coalescing and
// root collapse all the way back to an empty tree.
func TestBPlusTree_RemoveDownToEmpty(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 2, InternalMaxSize: 3})

	n := 40
	for i := 0; i < n; i++ {
		_, err := tree.Insert(keyOf(i), page.RecordID{PageID: page.ID(i)})
		require.NoError(t, err)
	}

	for i := 0; i < n; i++ {
		require.NoError(t, tree.Remove(keyOf(i)))
		_, found, err := tree.GetValue(keyOf(i))
		require.NoError(t, err)
		require.False(t, found, "key %d should be gone", i)

		for j := i + 1; j < n; j++ {
			_, found, err := tree.GetValue(keyOf(j))
			require.NoError(t, err)
			require.True(t, found, "key %d should still be present after removing %d", j, i)
		}
	}

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	root, err := tree.RootPageID()
	require.NoError(t, err)
	require.Equal(t, page.Invalid, root)
}

func TestBPlusTree_RemoveAbsentKeyIsNoop(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 4, InternalMaxSize: 4})
	_, err := tree.Insert(keyOf(1), page.RecordID{PageID: 1})
	require.NoError(t, err)

	require.NoError(t, tree.Remove(keyOf(2)))

	_, found, err := tree.GetValue(keyOf(1))
	require.NoError(t, err)
	require.True(t, found)
}

func TestBPlusTree_RandomPermutation(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 3, InternalMaxSize: 4})

	n := 300
	rng := rand.New(rand.NewSource(42))
	perm := rng.Perm(n)

	for _, k := range perm {
		ok, err := tree.Insert(keyOf(k), page.RecordID{PageID: page.ID(k)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := 0; i < n; i++ {
		rid, found, err := tree.GetValue(keyOf(i))
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		require.Equal(t, page.ID(i), rid.PageID)
	}

	removePerm := rng.Perm(n)
	for i, k := range removePerm {
		require.NoError(t, tree.Remove(keyOf(k)))
		if i%50 == 0 {
			empty, err := tree.IsEmpty()
			require.NoError(t, err)
			require.Equal(t, i == n-1, empty)
		}
	}

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)
}

func TestBPlusTree_SequentialInsertAndScan(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 3, InternalMaxSize: 4})

	n := 100
	for i := 0; i < n; i++ {
		_, err := tree.Insert(keyOf(i), page.RecordID{PageID: page.ID(i)})
		require.NoError(t, err)
	}

	it, err := tree.Begin()
	require.NoError(t, err)

	count := 0
	for i := 0; it.Valid(); i++ {
		require.Equal(t, keyOf(i), it.Key())
		require.Equal(t, page.ID(i), it.Value().PageID)
		count++
		require.NoError(t, it.Next())
	}
	require.Equal(t, n, count)
}

func TestBPlusTree_BeginAt(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 3, InternalMaxSize: 4})

	n := 60
	for i := 0; i < n; i++ {
		_, err := tree.Insert(keyOf(i), page.RecordID{PageID: page.ID(i)})
		require.NoError(t, err)
	}

	it, err := tree.BeginAt(keyOf(30))
	require.NoError(t, err)
	for i := 30; i < n; i++ {
		require.True(t, it.Valid())
		require.Equal(t, keyOf(i), it.Key())
		require.NoError(t, it.Next())
	}
	require.False(t, it.Valid())

	missing, err := tree.BeginAt(keyOf(9999))
	require.NoError(t, err)
	require.False(t, missing.Valid())
}

func TestBPlusTree_EmptyTreeOperations(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 4, InternalMaxSize: 4})

	empty, err := tree.IsEmpty()
	require.NoError(t, err)
	require.True(t, empty)

	_, found, err := tree.GetValue(keyOf(1))
	require.NoError(t, err)
	require.False(t, found)

	it, err := tree.Begin()
	require.NoError(t, err)
	require.False(t, it.Valid())

	require.NoError(t, tree.Remove(keyOf(1)))
}

func TestBPlusTree_WrongKeySizeRejected(t *testing.T) {
	tree := newTestTree(t, Options{KeySize: 4, LeafMaxSize: 4, InternalMaxSize: 4})

	_, err := tree.Insert([]byte("short"), page.RecordID{})
	require.Error(t, err)

	_, _, err = tree.GetValue([]byte{1, 2})
	require.Error(t, err)
}

func TestValidateOptions_FanoutMustFitPage(t *testing.T) {
	d, err := disk.Open(":memory:")
	require.NoError(t, err)
	defer d.Close()
	pool := buffer.NewPool(d, 4, 2)

	_, err = Create(pool, Options{KeySize: 4, LeafMaxSize: 1 << 20})
	require.Error(t, err)
}
