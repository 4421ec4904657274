// Package mount implements the ordered bootstrap that turns a raw block
// device into a mounted, read-only APFS volume: locating the container
// superblock, selecting a volume, and establishing the two persistent
// B-tree roots (the volume's object map and its catalog) that every other
// query in the package depends on.
package mount

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/catalog"
	"github.com/go-apfsro/apfsro/internal/container"
	"github.com/go-apfsro/apfsro/internal/interfaces"
	"github.com/go-apfsro/apfsro/internal/omap"
	"github.com/go-apfsro/apfsro/internal/types"
	"github.com/go-apfsro/apfsro/internal/volume"
	"github.com/sirupsen/logrus"
)

// NxDefaultBlockSize is the provisional block size used to read block 0
// before the container superblock's authoritative size is known.
const NxDefaultBlockSize = 4096

// NxBlockNum is the physical block holding the container superblock.
const NxBlockNum types.Paddr = 0

// Options are the parsed mount-option surface (spec.md section 6): volume
// selection plus display-only uid/gid overrides. The mount is always
// read-only regardless of what's set here.
type Options struct {
	VolumeIndex int
	UID         *uint32
	GID         *uint32
}

// ParseOptions parses a comma-separated key=value option string such as
// "vol=1,uid=501". An unknown key or malformed value fails the mount with
// apfserr.ErrInvalid, matching spec.md section 4.7 phase 2.
func ParseOptions(s string) (Options, error) {
	opts := Options{VolumeIndex: 0}
	if strings.TrimSpace(s) == "" {
		return opts, nil
	}
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return Options{}, fmt.Errorf("%w: malformed mount option %q", apfserr.ErrInvalid, field)
		}
		key, val := kv[0], kv[1]
		switch key {
		case "vol":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return Options{}, fmt.Errorf("%w: bad vol= value %q", apfserr.ErrInvalid, val)
			}
			opts.VolumeIndex = int(n)
		case "uid":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return Options{}, fmt.Errorf("%w: bad uid= value %q", apfserr.ErrInvalid, val)
			}
			u := uint32(n)
			opts.UID = &u
		case "gid":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return Options{}, fmt.Errorf("%w: bad gid= value %q", apfserr.ErrInvalid, val)
			}
			g := uint32(n)
			opts.GID = &g
		default:
			return Options{}, fmt.Errorf("%w: unknown mount option %q", apfserr.ErrInvalid, key)
		}
	}
	return opts, nil
}

// Filesystem is the process-wide state for one mounted volume. It is
// always read-only. Catalog and Omap are shared (through btree.Table) with
// every concurrent reader; neither is mutated after Mount returns.
type Filesystem struct {
	Device interfaces.BlockDevice

	ContainerSB *types.NxSuperblockT
	VolumeSB    *types.ApfsSuperblockT
	VolumeIndex int

	// VolumeOmap resolves virtual object ids within the volume (the
	// catalog's own object map), the root that package inode and package
	// catalog query through.
	VolumeOmap *omap.Resolver
	Catalog    *catalog.Tree

	UIDOverride *uint32
	GIDOverride *uint32

	Log *logrus.Entry

	// containerOmapHeader is retained only so statfs can re-walk the
	// container's volume-block B-tree without re-reading the container
	// superblock.
	containerOmapHeader *types.OmapPhysT
}

// Mount runs the six-phase bootstrap described by spec.md section 4.7. Any
// failure unwinds cleanly; callers don't need to call Close after a failed
// Mount.
func Mount(dev interfaces.BlockDevice, optionString string, log *logrus.Logger) (*Filesystem, error) {
	if log == nil {
		log = logrus.New()
	}
	entry := log.WithField("component", "mount")

	// Phase 1: map the container superblock.
	if err := dev.SetBlockSize(NxDefaultBlockSize); err != nil {
		return nil, fmt.Errorf("set provisional block size: %w", err)
	}
	raw, err := dev.ReadBlock(NxBlockNum)
	if err != nil {
		return nil, fmt.Errorf("read container superblock: %w", err)
	}
	provisional, err := container.ParseSuperblock(raw, false)
	if err != nil {
		return nil, fmt.Errorf("parse container superblock: %w", err)
	}
	if provisional.NxBlockSize != NxDefaultBlockSize {
		if err := dev.SetBlockSize(provisional.NxBlockSize); err != nil {
			return nil, fmt.Errorf("set container block size %d: %w", provisional.NxBlockSize, err)
		}
		raw, err = dev.ReadBlock(NxBlockNum)
		if err != nil {
			return nil, fmt.Errorf("re-read container superblock at block size %d: %w", provisional.NxBlockSize, err)
		}
	}
	containerSB, err := container.ParseSuperblock(raw, true)
	if err != nil {
		return nil, fmt.Errorf("parse container superblock: %w", err)
	}

	// Phase 2: parse mount options.
	opts, err := ParseOptions(optionString)
	if err != nil {
		return nil, err
	}

	// Phase 3: map the volume superblock.
	volumeSB, containerOmapHeader, err := mapVolumeSuperblock(dev, containerSB, opts.VolumeIndex)
	if err != nil {
		return nil, err
	}

	// Phase 4: load the volume's own object map.
	volOmapHeader, err := omap.ReadHeader(dev, types.Paddr(volumeSB.ApfsOmapOid))
	if err != nil {
		return nil, fmt.Errorf("read volume object map at block %d: %w", volumeSB.ApfsOmapOid, err)
	}
	volResolver := omap.NewResolver(dev, volOmapHeader)

	// Phase 5: load the catalog root. ApfsRootTreeOid is virtual; Tree
	// resolves it lazily through volResolver on first descent, so there's
	// no extra read here beyond what Tree.Root will do when first queried.
	cat := catalog.Open(dev, volResolver, volumeSB.ApfsRootTreeOid, containerSB.NxO.OXid)

	fs := &Filesystem{
		Device:               dev,
		ContainerSB:          containerSB,
		VolumeSB:             volumeSB,
		VolumeIndex:          opts.VolumeIndex,
		VolumeOmap:           volResolver,
		Catalog:              cat,
		UIDOverride:          opts.UID,
		GIDOverride:          opts.GID,
		Log:                  entry,
		containerOmapHeader:  containerOmapHeader,
	}

	// Phase 6: install the root directory inode, proving the catalog root
	// actually resolves before Mount reports success.
	if _, _, err := fs.Catalog.Find(catalog.InodeKey(types.RootDirInoNum)); err != nil {
		return nil, fmt.Errorf("load root directory inode: %w", err)
	}

	return fs, nil
}

// mapVolumeSuperblock implements phase 3: bounds-check the volume index,
// resolve fs_oid[index] through the container's object map, and parse the
// resulting block as a volume superblock.
func mapVolumeSuperblock(dev interfaces.BlockDeviceReader, containerSB *types.NxSuperblockT, volIndex int) (*types.ApfsSuperblockT, *types.OmapPhysT, error) {
	const nxSuperblockSize = 1400 // conservative; real images always round up to a full block
	blockSize := int(containerSB.NxBlockSize)
	if nxSuperblockSize+8*(volIndex+1) > blockSize {
		return nil, nil, fmt.Errorf("%w: volume index %d does not fit in the container superblock block", apfserr.ErrInvalid, volIndex)
	}
	if volIndex < 0 || volIndex >= types.NxMaxFileSystems {
		return nil, nil, fmt.Errorf("%w: volume index %d out of range", apfserr.ErrInvalid, volIndex)
	}

	fsOid := containerSB.NxFsOid[volIndex]
	if fsOid == 0 {
		return nil, nil, fmt.Errorf("%w: no volume at index %d", apfserr.ErrInvalid, volIndex)
	}

	omapHeader, err := omap.ReadHeader(dev, types.Paddr(containerSB.NxOmapOid))
	if err != nil {
		return nil, nil, fmt.Errorf("read container object map at block %d: %w", containerSB.NxOmapOid, err)
	}
	resolver := omap.NewResolver(dev, omapHeader)

	addr, err := resolver.Resolve(fsOid, containerSB.NxO.OXid)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve volume %d (oid %d): %w", volIndex, fsOid, err)
	}

	data, err := dev.ReadBlock(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("read volume superblock at block %d: %w", addr, err)
	}
	volumeSB, err := volume.ParseSuperblock(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse volume superblock: %w", err)
	}
	return volumeSB, omapHeader, nil
}

// ContainerOmapHeader returns the container object map header retained
// during mapVolumeSuperblock, for package statfs to re-walk the volume
// block B-tree without repeating the container superblock read.
func (fs *Filesystem) ContainerOmapHeader() *types.OmapPhysT {
	return fs.containerOmapHeader
}

// Close tears the mount down in strict reverse-dependency order: roots,
// then the device. There is no separate superblock buffer to release in
// this port (the host's block cache owns buffer lifetime, out of scope for
// this reader); Close's job is to release the underlying device handle.
func (fs *Filesystem) Close() error {
	fs.Catalog = nil
	fs.VolumeOmap = nil
	return fs.Device.Close()
}
