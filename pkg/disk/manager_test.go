package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bptreedb/pkg/page"
)

func TestManager_AllocateReadWrite_InMemory(t *testing.T) {
	m, err := Open(":memory:")
	require.NoError(t, err)
	defer m.Close()

	id1, err := m.AllocatePage()
	require.NoError(t, err)
	id2, err := m.AllocatePage()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	var buf page.Bytes
	copy(buf[:], "hello, page one")
	require.NoError(t, m.WritePage(id1, buf[:]))

	var got page.Bytes
	require.NoError(t, m.ReadPage(id1, got[:]))
	require.Equal(t, buf, got)

	var zero page.Bytes
	require.NoError(t, m.ReadPage(id2, zero[:]))
	require.Equal(t, page.Bytes{}, zero)
}

func TestManager_ReadPastEnd(t *testing.T) {
	m, err := Open(":memory:")
	require.NoError(t, err)
	defer m.Close()

	var buf page.Bytes
	err = m.ReadPage(page.ID(3), buf[:])
	require.Error(t, err)
}

func TestManager_FileBacked_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.db")

	m, err := Open(path)
	require.NoError(t, err)

	id, err := m.AllocatePage()
	require.NoError(t, err)

	var want page.Bytes
	copy(want[:], "persisted across reopen")
	require.NoError(t, m.WritePage(id, want[:]))
	require.NoError(t, m.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	var got page.Bytes
	require.NoError(t, reopened.ReadPage(id, got[:]))
	require.Equal(t, want, got)
}
