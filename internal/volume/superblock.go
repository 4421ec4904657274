// Package volume parses a volume superblock: the per-volume structure that
// anchors a volume's object map and root catalog tree.
package volume

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/checksum"
	"github.com/go-apfsro/apfsro/internal/types"
)

const minSuperblockSize = 1024

// metadataCryptoStateSize is the size, in bytes, of the wrapped_meta_crypto_state_t
// embedded in the volume superblock; this reader has no use for encryption
// state and skips over it.
const metadataCryptoStateSize = 20

// ParseSuperblock decodes a volume superblock from a raw block.
func ParseSuperblock(data []byte) (*types.ApfsSuperblockT, error) {
	if len(data) < minSuperblockSize {
		return nil, fmt.Errorf("%w: volume superblock block too small (%d bytes)", apfserr.ErrFSCorrupted, len(data))
	}
	if !checksum.Verify(data) {
		return nil, fmt.Errorf("%w: volume superblock checksum mismatch", apfserr.ErrFSCorrupted)
	}

	endian := binary.LittleEndian
	sb := &types.ApfsSuperblockT{}

	copy(sb.ApfsO.OChecksum[:], data[0:8])
	sb.ApfsO.OOid = types.OidT(endian.Uint64(data[8:16]))
	sb.ApfsO.OXid = types.XidT(endian.Uint64(data[16:24]))
	sb.ApfsO.OType = endian.Uint32(data[24:28])
	sb.ApfsO.OSubtype = endian.Uint32(data[28:32])

	off := 32
	sb.ApfsMagic = endian.Uint32(data[off : off+4])
	off += 4
	if sb.ApfsMagic != types.ApfsMagic {
		return nil, fmt.Errorf("%w: bad volume magic 0x%08x", apfserr.ErrInvalid, sb.ApfsMagic)
	}

	sb.ApfsFsIndex = endian.Uint32(data[off : off+4])
	off += 4
	sb.ApfsFeatures = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsReadonlyCompatibleFeatures = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsIncompatibleFeatures = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsUnmountTime = endian.Uint64(data[off : off+8])
	off += 8

	sb.ApfsFsReserveBlockCount = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsFsQuotaBlockCount = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsFsAllocCount = endian.Uint64(data[off : off+8])
	off += 8

	off += metadataCryptoStateSize

	sb.ApfsRootTreeType = endian.Uint32(data[off : off+4])
	off += 4
	sb.ApfsExtentrefTreeType = endian.Uint32(data[off : off+4])
	off += 4
	sb.ApfsSnapMetaTreeType = endian.Uint32(data[off : off+4])
	off += 4
	off += 4 // padding to 8-byte alignment before the OID block

	sb.ApfsOmapOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8
	sb.ApfsRootTreeOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8
	sb.ApfsExtentrefTreeOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8
	sb.ApfsSnapMetaTreeOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8

	sb.ApfsRevertToXid = types.XidT(endian.Uint64(data[off : off+8]))
	off += 8
	sb.ApfsRevertToSblockOid = types.OidT(endian.Uint64(data[off : off+8]))
	off += 8

	sb.ApfsNextObjID = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumFiles = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumDirectories = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumSymlinks = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumOtherFsobjects = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsNumSnapshots = endian.Uint64(data[off : off+8])
	off += 8

	sb.ApfsTotalBlocksAlloced = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsTotalBlocksFreed = endian.Uint64(data[off : off+8])
	off += 8

	copy(sb.ApfsVolUUID[:], data[off:off+16])
	off += 16

	sb.ApfsLastModTime = endian.Uint64(data[off : off+8])
	off += 8
	sb.ApfsFsFlags = endian.Uint64(data[off : off+8])
	off += 8

	off = parseModifiedBy(data, off, endian, &sb.ApfsFormattedBy)
	for i := range sb.ApfsModifiedBy {
		off = parseModifiedBy(data, off, endian, &sb.ApfsModifiedBy[i])
	}

	if off+len(sb.ApfsVolname)+4+2 > len(data) {
		return nil, fmt.Errorf("%w: volume superblock truncated before name fields", apfserr.ErrFSCorrupted)
	}
	copy(sb.ApfsVolname[:], data[off:off+len(sb.ApfsVolname)])
	off += len(sb.ApfsVolname)
	sb.ApfsNextDocID = endian.Uint32(data[off : off+4])
	off += 4
	sb.ApfsRole = endian.Uint16(data[off : off+2])

	return sb, nil
}

// modifiedBySize is the on-disk size of an apfs_modified_by_t: a
// ApfsModifiedNamelen-byte id, an 8-byte timestamp, and an 8-byte
// transaction id.
const modifiedBySize = types.ApfsModifiedNamelen + 16

func parseModifiedBy(data []byte, off int, endian binary.ByteOrder, out *types.ApfsModifiedByT) int {
	copy(out.ID[:], data[off:off+types.ApfsModifiedNamelen])
	off += types.ApfsModifiedNamelen
	out.Timestamp = endian.Uint64(data[off : off+8])
	off += 8
	out.LastXid = types.XidT(endian.Uint64(data[off : off+8]))
	off += 8
	return off
}

// Name returns the volume's name as a Go string, trimmed at the first NUL.
func Name(sb *types.ApfsSuperblockT) string {
	for i, b := range sb.ApfsVolname {
		if b == 0 {
			return string(sb.ApfsVolname[:i])
		}
	}
	return string(sb.ApfsVolname[:])
}
