// Package statfs computes the filesystem-usage summary reported by the
// statfs(2) surface: total/free space walked from the container's object
// map, and object counts from the mounted volume's superblock.
package statfs

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/btree"
	"github.com/go-apfsro/apfsro/internal/interfaces"
	"github.com/go-apfsro/apfsro/internal/types"
)

// SuperMagic identifies this filesystem type to statfs callers, the way
// other Linux filesystems publish a magic number for f_type.
const SuperMagic uint32 = 0x4253584e // "NXSB" reused as the statfs magic.

// Stats is the read-only subset of statfs(2)'s output this reader can
// compute without a space manager.
type Stats struct {
	BlockSize  uint32
	Blocks     uint64 // f_blocks: total blocks in the container
	BlocksFree uint64 // f_bfree
	// BlocksAvail mirrors BlocksFree. spec.md section 9 flags this as an
	// intentional placeholder pending real space-manager accounting: every
	// block this reader can see as "free" is also reported as available
	// to unprivileged callers, since there's no quota/reservation layer to
	// subtract.
	BlocksAvail uint64
	Files       uint64 // f_files: objects on the mounted volume only
	FilesFree   uint64 // left zero; no way to know how many IDs remain
	Type        uint32
	// FilesystemID is the XOR-fold of the mounted volume's UUID halves.
	FilesystemID uint64
}

// entryValSize is the width of a container omap value: each points at a
// volume superblock's physical block, in the same (flags, size, paddr)
// shape used by every other object map entry.
const entryValSize = 16

// Compute implements spec.md section 4.9: walk every record in the
// container's object map (one per volume, keyed by each volume's fs_oid),
// read each volume superblock, and sum ApfsFsAllocCount. mountedVolumeSB
// supplies the per-object-type counters, which are only meaningful for the
// volume actually mounted.
func Compute(dev interfaces.BlockDeviceReader, containerSB *types.NxSuperblockT, containerOmapHeader *types.OmapPhysT, mountedVolumeSB *types.ApfsSuperblockT) (Stats, error) {
	used, err := sumAllocatedBlocks(dev, containerOmapHeader)
	if err != nil {
		return Stats{}, err
	}

	total := containerSB.NxBlockCount
	free := total - used

	return Stats{
		BlockSize:    containerSB.NxBlockSize,
		Blocks:       total,
		BlocksFree:   free,
		BlocksAvail:  free,
		Files:        mountedVolumeSB.ApfsNumFiles + mountedVolumeSB.ApfsNumDirectories + mountedVolumeSB.ApfsNumSymlinks + mountedVolumeSB.ApfsNumOtherFsobjects,
		Type:         SuperMagic,
		FilesystemID: foldUUID(mountedVolumeSB.ApfsVolUUID),
	}, nil
}

// sumAllocatedBlocks walks every leaf entry of the container object map's
// B-tree directly (not through omap.Resolver.Resolve, which answers a
// single-oid query): every entry's value points at one volume superblock,
// and spec.md section 4.9 wants the sum across all of them, not just the
// mounted one.
func sumAllocatedBlocks(dev interfaces.BlockDeviceReader, header *types.OmapPhysT) (uint64, error) {
	if header.OmTreeOid == 0 {
		return 0, fmt.Errorf("%w: container object map has no tree", apfserr.ErrFSCorrupted)
	}

	root, err := readNode(dev, types.Paddr(header.OmTreeOid))
	if err != nil {
		return 0, err
	}

	var total uint64
	err = walk(dev, root, func(value []byte) error {
		if len(value) != entryValSize {
			return fmt.Errorf("%w: container object map value is %d bytes, want %d", apfserr.ErrIO, len(value), entryValSize)
		}
		addr := types.Paddr(binary.LittleEndian.Uint64(value[8:16]))
		data, err := dev.ReadBlock(addr)
		if err != nil {
			return fmt.Errorf("read volume superblock at block %d: %w", addr, err)
		}
		alloc, ok := allocCount(data)
		if !ok {
			// Not every entry in the container's object map necessarily
			// refers to a volume superblock (the reaper and space manager
			// share the same map); skip anything that doesn't parse as one.
			return nil
		}
		total += alloc
		return nil
	})
	return total, err
}

// allocCount extracts ApfsFsAllocCount from a raw block if it looks like a
// volume superblock, without the full (and stricter) volume.ParseSuperblock
// validation, since a container omap entry that isn't a volume must be
// skipped rather than treated as corruption.
func allocCount(data []byte) (uint64, bool) {
	const minLen = 96
	if len(data) < minLen {
		return 0, false
	}
	if binary.LittleEndian.Uint32(data[32:36]) != types.ApfsMagic {
		return 0, false
	}
	return binary.LittleEndian.Uint64(data[88:96]), true
}

func readNode(dev interfaces.BlockDeviceReader, addr types.Paddr) (*btree.Table, error) {
	data, err := dev.ReadBlock(addr)
	if err != nil {
		return nil, fmt.Errorf("read object map node at block %d: %w", addr, err)
	}
	return btree.ParseTable(data, binary.LittleEndian)
}

// walk visits every leaf value in node's subtree, in key order.
func walk(dev interfaces.BlockDeviceReader, node *btree.Table, visit func(value []byte) error) error {
	n := node.KeyCount()
	for i := 0; i < n; i++ {
		v, err := node.LocateValue(i)
		if err != nil {
			return err
		}
		if node.IsLeaf() {
			if err := visit(v); err != nil {
				return err
			}
			continue
		}
		if len(v) < 8 {
			return fmt.Errorf("%w: object map child pointer too short", apfserr.ErrFSCorrupted)
		}
		childAddr := types.Paddr(binary.LittleEndian.Uint64(v))
		child, err := readNode(dev, childAddr)
		if err != nil {
			return err
		}
		if err := walk(dev, child, visit); err != nil {
			return err
		}
	}
	return nil
}

// foldUUID XOR-folds a 16-byte UUID's two halves into a single 64-bit
// filesystem identifier, per spec.md section 4.9.
func foldUUID(u types.UUID) uint64 {
	hi := binary.LittleEndian.Uint64(u[0:8])
	lo := binary.LittleEndian.Uint64(u[8:16])
	return hi ^ lo
}
