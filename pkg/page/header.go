package page

import "encoding/binary"

var bin = binary.LittleEndian

// HeaderPage is the single dedicated page that anchors a B+ tree: it holds
// nothing but the current root page id, or Invalid if the tree is empty.
// Its own page latch is the only root latch: writers hold it until their
// descent shows the root cannot change; readers hold it only while
// reading the root id. There is no separate tree-wide root latch.
type HeaderPage struct {
	RootPageID ID
}

func (h *HeaderPage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	bin.PutUint32(buf[0:4], uint32(h.RootPageID))
	return buf, nil
}

func (h *HeaderPage) UnmarshalBinary(d []byte) error {
	h.RootPageID = ID(bin.Uint32(d[0:4]))
	return nil
}
