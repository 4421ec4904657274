// Package omap resolves a virtual object identifier and transaction
// identifier to the physical block address where that object's current
// version is stored, by querying a container or volume's object map
// B-tree.
package omap

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/btree"
	"github.com/go-apfsro/apfsro/internal/interfaces"
	"github.com/go-apfsro/apfsro/internal/types"
)

const headerSize = 72

// ReadHeader reads and parses the object map structure at the given
// physical address. The object map itself is always a physical object: its
// own block address is its identifier, with no indirection through another
// object map.
func ReadHeader(dev interfaces.BlockDeviceReader, addr types.Paddr) (*types.OmapPhysT, error) {
	data, err := dev.ReadBlock(addr)
	if err != nil {
		return nil, fmt.Errorf("read object map block %d: %w", addr, err)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: object map block too small", apfserr.ErrFSCorrupted)
	}

	endian := binary.LittleEndian
	var om types.OmapPhysT
	copy(om.OmO.OChecksum[:], data[0:8])
	om.OmO.OOid = types.OidT(endian.Uint64(data[8:16]))
	om.OmO.OXid = types.XidT(endian.Uint64(data[16:24]))
	om.OmO.OType = endian.Uint32(data[24:28])
	om.OmO.OSubtype = endian.Uint32(data[28:32])

	om.OmFlags = endian.Uint32(data[32:36])
	om.OmSnapCount = endian.Uint32(data[36:40])
	om.OmTreeType = endian.Uint32(data[40:44])
	om.OmSnapshotTreeType = endian.Uint32(data[44:48])
	om.OmTreeOid = types.OidT(endian.Uint64(data[48:56]))
	om.OmSnapshotTreeOid = types.OidT(endian.Uint64(data[56:64]))
	om.OmMostRecentSnap = types.XidT(endian.Uint64(data[64:72]))

	return &om, nil
}

// Resolver looks up virtual objects through one object map.
type Resolver struct {
	dev    interfaces.BlockDeviceReader
	header *types.OmapPhysT
}

// NewResolver returns a Resolver over the object map described by header,
// reading the tree's nodes from dev.
func NewResolver(dev interfaces.BlockDeviceReader, header *types.OmapPhysT) *Resolver {
	return &Resolver{dev: dev, header: header}
}

// Resolve returns the physical address of the object identified by oid, as
// of the newest version with a transaction id not exceeding xid.
func (r *Resolver) Resolve(oid types.OidT, xid types.XidT) (types.Paddr, error) {
	if r.header.OmTreeOid == 0 {
		return 0, fmt.Errorf("%w: object map has no tree", apfserr.ErrFSCorrupted)
	}

	src := nodeSource{dev: r.dev, rootAddr: r.rootAddr()}
	key := encodeKey(oid, xid)

	foundKey, value, err := btree.Query(src, key, compareKey, btree.LE)
	if err != nil {
		if err == apfserr.ErrNotFound {
			return 0, fmt.Errorf("%w: object %d not present in object map", apfserr.ErrNotFound, oid)
		}
		return 0, fmt.Errorf("query object map for oid %d: %w", oid, err)
	}

	foundOid, _ := decodeKey(foundKey)
	if foundOid != oid {
		return 0, fmt.Errorf("%w: object %d not present in object map", apfserr.ErrNotFound, oid)
	}

	val, err := decodeValue(value)
	if err != nil {
		return 0, err
	}
	if val.OvFlags&types.OmapValDeleted != 0 {
		return 0, fmt.Errorf("%w: object %d was deleted", apfserr.ErrNotFound, oid)
	}
	return val.OvPaddr, nil
}

// rootAddr returns the physical block address of the tree's root. The
// object map's own B-tree is always physical, so OmTreeOid is directly a
// block number.
func (r *Resolver) rootAddr() types.Paddr {
	return types.Paddr(r.header.OmTreeOid)
}

// nodeSource implements btree.NodeSource for an object map's B-tree, whose
// internal nodes hold physical child block addresses directly.
type nodeSource struct {
	dev      interfaces.BlockDeviceReader
	rootAddr types.Paddr
}

func (s nodeSource) Root() (*btree.Table, error) {
	data, err := s.dev.ReadBlock(s.rootAddr)
	if err != nil {
		return nil, fmt.Errorf("read omap root at block %d: %w", s.rootAddr, err)
	}
	return btree.ParseTable(data, binary.LittleEndian)
}

func (s nodeSource) Child(value []byte, level uint16) (*btree.Table, error) {
	if len(value) < 8 {
		return nil, fmt.Errorf("%w: omap child pointer too short", apfserr.ErrFSCorrupted)
	}
	addr := types.Paddr(binary.LittleEndian.Uint64(value))
	data, err := s.dev.ReadBlock(addr)
	if err != nil {
		return nil, fmt.Errorf("read omap node at block %d: %w", addr, err)
	}
	return btree.ParseTable(data, binary.LittleEndian)
}

func encodeKey(oid types.OidT, xid types.XidT) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], uint64(oid))
	binary.LittleEndian.PutUint64(b[8:16], uint64(xid))
	return b
}

func decodeKey(b []byte) (types.OidT, types.XidT) {
	return types.OidT(binary.LittleEndian.Uint64(b[0:8])), types.XidT(binary.LittleEndian.Uint64(b[8:16]))
}

func decodeValue(b []byte) (types.OmapValT, error) {
	if len(b) < 16 {
		return types.OmapValT{}, fmt.Errorf("%w: omap value too short", apfserr.ErrFSCorrupted)
	}
	return types.OmapValT{
		OvFlags: binary.LittleEndian.Uint32(b[0:4]),
		OvSize:  binary.LittleEndian.Uint32(b[4:8]),
		OvPaddr: types.Paddr(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

// compareKey orders omap keys numerically by oid, then by xid, matching the
// on-disk ordering described for omap_key_t.
func compareKey(a, b []byte) int {
	aOid, aXid := decodeKey(a)
	bOid, bXid := decodeKey(b)
	switch {
	case aOid < bOid:
		return -1
	case aOid > bOid:
		return 1
	case aXid < bXid:
		return -1
	case aXid > bXid:
		return 1
	default:
		return 0
	}
}
