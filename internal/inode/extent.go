// Package inode resolves a file's logical block offset to a physical
// device block by querying the catalog's FILE_EXTENT records, caching the
// most recently used extent per inode so that sequential reads of one file
// don't re-descend the catalog B-tree for every block.
package inode

import (
	"fmt"
	"sync"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/catalog"
	"github.com/sirupsen/logrus"
)

// Mapping is the result of resolving one logical block: either a physical
// block plus the number of contiguous bytes available under the same
// extent, or a hole of the same shape.
type Mapping struct {
	// Physical is the device block backing the requested offset. Zero (and
	// Hole true) means the region is unallocated.
	Physical uint64
	Hole     bool
	// RunLength is the number of contiguous bytes available starting at the
	// requested offset without crossing into a different extent, capped by
	// the caller's requested length.
	RunLength uint64
}

// extent is the decoded, cacheable shape of one FILE_EXTENT record.
type extent struct {
	logicalAddr  uint64
	physBlockNum uint64
	len          uint64
}

func (e extent) covers(addr uint64) bool {
	return e.len > 0 && e.logicalAddr <= addr && addr < e.logicalAddr+e.len
}

// Inode is the per-file state the extent resolver needs: its catalog
// identity and a single-entry extent cache. The zero value is ready to use
// once ObjectID is set.
type Inode struct {
	// ObjectID is the catalog object id that owns this inode's file
	// extents (j_file_extent_key_t's shared header field): the inode
	// record's PrivateID, not necessarily its own catalog object id
	// (they differ for a cloned file sharing another inode's extents).
	ObjectID uint64

	mu    sync.Mutex
	cache extent
}

// Resolver resolves logical block offsets against one volume's catalog.
type Resolver struct {
	Catalog   *catalog.Tree
	BlockSize uint32
}

// NewResolver returns a Resolver that services get_block requests against
// cat, using blockSize as both the extent alignment unit and the caller's
// per-request read size.
func NewResolver(cat *catalog.Tree, blockSize uint32) *Resolver {
	return &Resolver{Catalog: cat, BlockSize: blockSize}
}

// GetBlock implements spec.md section 4.8: translate iblock (a 0-based
// logical block index within ino) into a device block mapping, consulting
// and refreshing ino's single-entry cache. requestedBlocks bounds the
// reported run length to what the caller actually asked to read, in units
// of blocks; pass 1 for a single-block request.
func (r *Resolver) GetBlock(ino *Inode, iblock uint64, requestedBlocks uint64) (Mapping, error) {
	blockSize := uint64(r.BlockSize)
	iaddr := iblock * blockSize
	requested := requestedBlocks * blockSize

	ino.mu.Lock()
	cached := ino.cache
	ino.mu.Unlock()

	if !cached.covers(iaddr) {
		ext, err := r.lookup(ino.ObjectID, iaddr)
		if err != nil {
			return Mapping{}, err
		}

		ino.mu.Lock()
		ino.cache = ext
		ino.mu.Unlock()
		cached = ext
	}

	blkOff := (iaddr - cached.logicalAddr) / blockSize
	remaining := cached.len - blkOff*blockSize
	runLength := requested
	if remaining < runLength {
		runLength = remaining
	}

	if cached.physBlockNum == 0 {
		return Mapping{Hole: true, RunLength: runLength}, nil
	}
	return Mapping{Physical: cached.physBlockNum + blkOff, RunLength: runLength}, nil
}

// lookup issues a catalog query for the extent covering iaddr and validates
// its shape. It does not touch ino's cache; the caller installs the result
// under the extent-lock after the (potentially blocking) query returns, per
// spec.md section 5's "never hold the lock across I/O" rule.
func (r *Resolver) lookup(objectID, iaddr uint64) (extent, error) {
	logicalStart, val, err := r.Catalog.FindExtent(objectID, iaddr)
	if err != nil {
		return extent{}, err
	}

	corrupted := func(err error) (extent, error) {
		logrus.WithFields(logrus.Fields{"inode": objectID, "record": "file_extent"}).Error(err)
		return extent{}, err
	}

	length := val.Length()
	if length == 0 || length%uint64(r.BlockSize) != 0 {
		return corrupted(fmt.Errorf("%w: file extent for object %d has length %d, not a positive multiple of the block size",
			apfserr.ErrFSCorrupted, objectID, length))
	}

	ext := extent{
		logicalAddr:  logicalStart,
		physBlockNum: val.PhysBlockNum,
		len:          length,
	}
	if !ext.covers(iaddr) {
		return corrupted(fmt.Errorf("%w: file extent for object %d at offset %d does not cover requested offset %d",
			apfserr.ErrFSCorrupted, objectID, logicalStart, iaddr))
	}
	return ext, nil
}
