// Package btree implements the copy-on-write B-tree used for both the
// container/volume object maps and a volume's catalog tree: node parsing,
// table-of-contents decoding, and key/value lookup by index or by query.
package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/checksum"
	"github.com/go-apfsro/apfsro/internal/types"
)

// btreeInfoSize is the on-disk size of a trailing btree_info_t footer,
// present only in a tree's root node.
const btreeInfoSize = 40

// nodeHeaderSize is the size of btree_node_phys_t up to and including
// btn_val_free_list, after the shared obj_phys_t header.
const nodeHeaderSize = 32 + 24

// Table is a parsed B-tree node: the fixed header plus an addressable table
// of contents over its key/value storage area. It's the unit that the query
// engine (package omap and package catalog, through Query) walks one level
// at a time.
type Table struct {
	node   types.BtreeNodePhysT
	endian binary.ByteOrder

	// info is non-nil only for a root node, which carries a trailing
	// btree_info_t footer describing the whole tree.
	info *types.BtreeInfoT

	// tocEntrySize is 4 (kvoff_t) for fixed key/value nodes and 8 (kvloc_t)
	// otherwise.
	tocEntrySize int
	tocData      []byte
	kvData       []byte

	// fixedKeySize and fixedValSize carry a non-root fixed-kv-size node's
	// widths, set by SetFixedSizes once the caller has read them off the
	// tree's root.
	fixedKeySize uint32
	fixedValSize uint32
}

// SetFixedSizes records the tree-wide key/value widths on a non-root node
// that has BtnodeFixedKvSize set. The root node doesn't need this: it
// carries the widths itself, in its btree_info_t footer.
func (t *Table) SetFixedSizes(keySize, valSize uint32) {
	t.fixedKeySize = keySize
	t.fixedValSize = valSize
}

// ParseTable parses a raw node block (the full on-disk block, including the
// obj_phys_t header) into a Table, verifying its Fletcher-64 checksum unless
// the node was stored header-less (only valid for nodes embedded directly in
// an ephemeral area, which this reader never encounters on a mounted
// volume).
func ParseTable(data []byte, endian binary.ByteOrder) (*Table, error) {
	if len(data) < nodeHeaderSize {
		return nil, fmt.Errorf("%w: node block too small (%d bytes)", apfserr.ErrFSCorrupted, len(data))
	}

	var n types.BtreeNodePhysT
	n.BtnO.OOid = types.OidT(endian.Uint64(data[8:16]))
	n.BtnO.OXid = types.XidT(endian.Uint64(data[16:24]))
	n.BtnO.OType = endian.Uint32(data[24:28])
	n.BtnO.OSubtype = endian.Uint32(data[28:32])
	copy(n.BtnO.OChecksum[:], data[0:8])

	n.BtnFlags = endian.Uint16(data[32:34])
	n.BtnLevel = endian.Uint16(data[34:36])
	n.BtnNkeys = endian.Uint32(data[36:40])
	n.BtnTableSpace = types.NlocT{Off: endian.Uint16(data[40:42]), Len: endian.Uint16(data[42:44])}
	n.BtnFreeSpace = types.NlocT{Off: endian.Uint16(data[44:46]), Len: endian.Uint16(data[46:48])}
	n.BtnKeyFreeList = types.NlocT{Off: endian.Uint16(data[48:50]), Len: endian.Uint16(data[50:52])}
	n.BtnValFreeList = types.NlocT{Off: endian.Uint16(data[52:54]), Len: endian.Uint16(data[54:56])}
	n.BtnData = data[56:]

	if n.BtnFlags&types.BtnodeNoheader == 0 {
		if !checksum.Verify(data) {
			return nil, fmt.Errorf("%w: node checksum mismatch (oid %d, xid %d)", apfserr.ErrFSCorrupted, n.BtnO.OOid, n.BtnO.OXid)
		}
	}

	t := &Table{node: n, endian: endian}

	body := n.BtnData
	if n.BtnFlags&types.BtnodeRoot != 0 {
		if len(body) < btreeInfoSize {
			return nil, fmt.Errorf("%w: root node missing btree_info_t footer", apfserr.ErrFSCorrupted)
		}
		footer := body[len(body)-btreeInfoSize:]
		info := &types.BtreeInfoT{}
		info.BtFixed.BtFlags = endian.Uint32(footer[0:4])
		info.BtFixed.BtNodeSize = endian.Uint32(footer[4:8])
		info.BtFixed.BtKeySize = endian.Uint32(footer[8:12])
		info.BtFixed.BtValSize = endian.Uint32(footer[12:16])
		info.BtLongestKey = endian.Uint32(footer[16:20])
		info.BtLongestVal = endian.Uint32(footer[20:24])
		info.BtKeyCount = endian.Uint64(footer[24:32])
		info.BtNodeCount = endian.Uint64(footer[32:40])
		t.info = info
		body = body[:len(body)-btreeInfoSize]
	}

	if n.BtnFlags&types.BtnodeFixedKvSize != 0 {
		t.tocEntrySize = 4
	} else {
		t.tocEntrySize = 8
	}

	tocStart := int(n.BtnTableSpace.Off)
	tocLen := int(n.BtnTableSpace.Len)
	if tocStart < 0 || tocLen < 0 || tocStart+tocLen > len(body) {
		return nil, fmt.Errorf("%w: table-of-contents location out of bounds", apfserr.ErrFSCorrupted)
	}
	t.tocData = body[tocStart : tocStart+tocLen]
	t.kvData = body[tocStart+tocLen:]

	return t, nil
}

// IsLeaf reports whether this node is a leaf (has no children, only values).
func (t *Table) IsLeaf() bool { return t.node.BtnFlags&types.BtnodeLeaf != 0 }

// IsRoot reports whether this node is the tree's root.
func (t *Table) IsRoot() bool { return t.node.BtnFlags&types.BtnodeRoot != 0 }

// HasFixedKVSize reports whether keys and values in this node have a fixed
// width, as declared by the tree's root btree_info_t.
func (t *Table) HasFixedKVSize() bool { return t.node.BtnFlags&types.BtnodeFixedKvSize != 0 }

// Level returns the number of child levels below this node; zero for a leaf.
func (t *Table) Level() uint16 { return t.node.BtnLevel }

// KeyCount returns the number of key/value (or key/child) entries in this
// node.
func (t *Table) KeyCount() int { return int(t.node.BtnNkeys) }

// Info returns the tree-wide btree_info_t footer, valid only on the root
// node. ok is false for any non-root node.
func (t *Table) Info() (info types.BtreeInfoT, ok bool) {
	if t.info == nil {
		return types.BtreeInfoT{}, false
	}
	return *t.info, true
}

// LocateKey returns the raw bytes of the i'th entry's key.
func (t *Table) LocateKey(i int) ([]byte, error) {
	off, length, err := t.locate(i, true)
	if err != nil {
		return nil, err
	}
	return t.kvData[off : off+length], nil
}

// LocateValue returns the raw bytes of the i'th entry's value (a child
// pointer for an internal node, or the record's value for a leaf).
func (t *Table) LocateValue(i int) ([]byte, error) {
	off, length, err := t.locate(i, false)
	if err != nil {
		return nil, err
	}
	return t.kvData[off : off+length], nil
}

// locate resolves the byte offset and length, within kvData, of the key (or
// value) half of entry i. Values grow backward from the end of kvData, so
// their stored offset is relative to len(kvData).
func (t *Table) locate(i int, wantKey bool) (offset, length int, err error) {
	if i < 0 || i >= t.KeyCount() {
		return 0, 0, fmt.Errorf("%w: entry index %d out of range (have %d)", apfserr.ErrFSCorrupted, i, t.KeyCount())
	}

	if t.HasFixedKVSize() {
		entry := i * t.tocEntrySize
		if entry+t.tocEntrySize > len(t.tocData) {
			return 0, 0, fmt.Errorf("%w: kvoff table truncated at entry %d", apfserr.ErrFSCorrupted, i)
		}
		koff := t.endian.Uint16(t.tocData[entry : entry+2])
		voff := t.endian.Uint16(t.tocData[entry+2 : entry+4])
		if wantKey {
			keySize, _ := t.fixedSizes()
			return int(koff), int(keySize), t.boundsCheck(int(koff), int(keySize))
		}
		_, valSize := t.fixedSizes()
		valOff := len(t.kvData) - int(voff)
		return valOff, int(valSize), t.boundsCheck(valOff, int(valSize))
	}

	entry := i * t.tocEntrySize
	if entry+t.tocEntrySize > len(t.tocData) {
		return 0, 0, fmt.Errorf("%w: kvloc table truncated at entry %d", apfserr.ErrFSCorrupted, i)
	}
	kOff := t.endian.Uint16(t.tocData[entry : entry+2])
	kLen := t.endian.Uint16(t.tocData[entry+2 : entry+4])
	vOff := t.endian.Uint16(t.tocData[entry+4 : entry+6])
	vLen := t.endian.Uint16(t.tocData[entry+6 : entry+8])

	if wantKey {
		return int(kOff), int(kLen), t.boundsCheck(int(kOff), int(kLen))
	}
	valOff := len(t.kvData) - int(vOff)
	return valOff, int(vLen), t.boundsCheck(valOff, int(vLen))
}

func (t *Table) boundsCheck(off, length int) error {
	if off < 0 || length < 0 || off+length > len(t.kvData) {
		return fmt.Errorf("%w: entry location [%d:%d] out of bounds (kv area %d bytes)", apfserr.ErrFSCorrupted, off, off+length, len(t.kvData))
	}
	return nil
}

// fixedSizes returns the node's fixed key/value widths. Only the root node
// carries btree_info_t directly; a non-root node with BtnodeFixedKvSize set
// must be queried alongside knowledge of the tree's fixed sizes, which
// callers obtain once from the root and pass down via Query.
func (t *Table) fixedSizes() (keySize, valSize uint32) {
	if t.info != nil {
		return t.info.BtFixed.BtKeySize, t.info.BtFixed.BtValSize
	}
	return t.fixedKeySize, t.fixedValSize
}
