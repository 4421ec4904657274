package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/btree"
	"github.com/go-apfsro/apfsro/internal/interfaces"
	"github.com/go-apfsro/apfsro/internal/omap"
	"github.com/go-apfsro/apfsro/internal/types"
)

// Tree is a volume's catalog B-tree: a virtual tree whose root and internal
// nodes are addressed by virtual object identifiers, resolved to physical
// block addresses through the volume's own object map.
type Tree struct {
	dev      interfaces.BlockDeviceReader
	resolver *omap.Resolver
	rootOid  types.OidT
	xid      types.XidT
}

// Open returns a Tree for the catalog rooted at rootOid (a volume
// superblock's ApfsRootTreeOid), resolving virtual nodes as of xid through
// resolver.
func Open(dev interfaces.BlockDeviceReader, resolver *omap.Resolver, rootOid types.OidT, xid types.XidT) *Tree {
	return &Tree{dev: dev, resolver: resolver, rootOid: rootOid, xid: xid}
}

// Find performs an exact-match query for key.
func (t *Tree) Find(key []byte) (foundKey, value []byte, err error) {
	return btree.Query(t, key, CompareKeys, btree.Exact)
}

// FindLE performs a nearest-lower query for key.
func (t *Tree) FindLE(key []byte) (foundKey, value []byte, err error) {
	return btree.Query(t, key, CompareKeys, btree.LE)
}

// Root implements btree.NodeSource.
func (t *Tree) Root() (*btree.Table, error) {
	return t.resolve(t.rootOid)
}

// Child implements btree.NodeSource. Catalog internal nodes store virtual
// object identifiers, not physical block addresses, so each descent goes
// back through the object map.
func (t *Tree) Child(value []byte, level uint16) (*btree.Table, error) {
	if len(value) < 8 {
		return nil, fmt.Errorf("%w: catalog child pointer too short", apfserr.ErrFSCorrupted)
	}
	childOid := types.OidT(binary.LittleEndian.Uint64(value))
	return t.resolve(childOid)
}

func (t *Tree) resolve(oid types.OidT) (*btree.Table, error) {
	addr, err := t.resolver.Resolve(oid, t.xid)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog node %d: %w", oid, err)
	}
	data, err := t.dev.ReadBlock(addr)
	if err != nil {
		return nil, fmt.Errorf("read catalog node at block %d: %w", addr, err)
	}
	return btree.ParseTable(data, binary.LittleEndian)
}
