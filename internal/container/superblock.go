// Package container parses the container superblock: the object that
// anchors every other structure in an APFS container, including the
// container's own object map and the list of volumes it holds.
package container

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/checksum"
	"github.com/go-apfsro/apfsro/internal/types"
)

// minSuperblockSize is a conservative lower bound on the superblock's
// encoded size; real images always use a full logical block.
const minSuperblockSize = 1024

// ParseSuperblock decodes the container superblock from a raw block read at
// physical address zero. verifyChecksum should be true for every caller
// except block-size rediscovery, which must read the block before it knows
// the true block size to re-read it with.
func ParseSuperblock(data []byte, verifyChecksum bool) (*types.NxSuperblockT, error) {
	if len(data) < minSuperblockSize {
		return nil, fmt.Errorf("%w: container superblock block too small (%d bytes)", apfserr.ErrFSCorrupted, len(data))
	}
	if verifyChecksum && !checksum.Verify(data) {
		return nil, fmt.Errorf("%w: container superblock checksum mismatch", apfserr.ErrFSCorrupted)
	}

	endian := binary.LittleEndian
	sb := &types.NxSuperblockT{}

	copy(sb.NxO.OChecksum[:], data[0:8])
	sb.NxO.OOid = types.OidT(endian.Uint64(data[8:16]))
	sb.NxO.OXid = types.XidT(endian.Uint64(data[16:24]))
	sb.NxO.OType = endian.Uint32(data[24:28])
	sb.NxO.OSubtype = endian.Uint32(data[28:32])

	off := 32
	sb.NxMagic = endian.Uint32(data[off : off+4])
	off += 4
	if sb.NxMagic != types.NxMagic {
		return nil, fmt.Errorf("%w: bad container magic 0x%08x", apfserr.ErrInvalid, sb.NxMagic)
	}

	sb.NxBlockSize = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxBlockCount = endian.Uint64(data[off : off+8])
	off += 8
	sb.NxFeatures = endian.Uint64(data[off : off+8])
	off += 8
	sb.NxReadonlyCompatibleFeatures = endian.Uint64(data[off : off+8])
	off += 8
	sb.NxIncompatibleFeatures = endian.Uint64(data[off : off+8])
	off += 8

	copy(sb.NxUUID[:], data[off:off+16])
	off += 16

	sb.NxNextOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8
	sb.NxNextXid = types.XidT(endian.Uint64(data[off : off+8]))
	off += 8

	sb.NxXpDescBlocks = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxXpDataBlocks = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxXpDescBase = types.Paddr(endian.Uint64(data[off : off+8]))
	off += 8
	sb.NxXpDataBase = types.Paddr(endian.Uint64(data[off : off+8]))
	off += 8
	sb.NxXpDescNext = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxXpDataNext = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxXpDescIndex = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxXpDescLen = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxXpDataIndex = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxXpDataLen = endian.Uint32(data[off : off+4])
	off += 4

	sb.NxSpacemanOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8
	sb.NxOmapOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8
	sb.NxReaperOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8

	sb.NxTestType = endian.Uint32(data[off : off+4])
	off += 4
	sb.NxMaxFileSystems = endian.Uint32(data[off : off+4])
	off += 4

	if off+types.NxMaxFileSystems*8 > len(data) {
		return nil, fmt.Errorf("%w: volume oid array extends beyond block", apfserr.ErrFSCorrupted)
	}
	for i := 0; i < types.NxMaxFileSystems; i++ {
		sb.NxFsOid[i] = types.OidT(endian.Uint64(data[off : off+8]))
		off += 8
	}

	return sb, nil
}

// ActiveVolumeOids returns the non-zero entries of the superblock's volume
// table, in slot order.
func ActiveVolumeOids(sb *types.NxSuperblockT) []types.OidT {
	var out []types.OidT
	for _, oid := range sb.NxFsOid {
		if oid != 0 {
			out = append(out, oid)
		}
	}
	return out
}
