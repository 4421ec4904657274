package types

// Volumes (pages 70-90)
// A volume superblock (apfs_superblock_t) describes a single file-system
// volume within a container.

// ApfsMagic is the magic number that identifies a volume superblock.
// "APSB" stored little-endian.
const ApfsMagic uint32 = 0x42535041

// ApfsModifiedNamelen is the length, in bytes, of a volume's last-modified
// tracking label.
const ApfsModifiedNamelen = 32

// ApfsMaxHistoricalTimestamps is the number of entries kept in the
// unmount-time history.
const ApfsMaxHistoricalTimestamps = 8

// ApfsModifiedByT records who last modified a volume and when.
// Reference: page 88
type ApfsModifiedByT struct {
	ID        [ApfsModifiedNamelen]byte
	Timestamp uint64
	LastXid   XidT
}

// ApfsSuperblockT is the volume superblock.
// Reference: pages 70-88
type ApfsSuperblockT struct {
	// The object header.
	ApfsO ObjPhysT

	// The magic number, always ApfsMagic.
	ApfsMagic uint32
	// The index of this volume within the container. Mount-option volume
	// selection indexes the container's NxFsOid array and does not read
	// this field.
	ApfsFsIndex uint32

	// A bit field of the optional features in use by the volume.
	ApfsFeatures uint64
	// A bit field of the read-only compatible features.
	ApfsReadonlyCompatibleFeatures uint64
	// A bit field of the backward-incompatible features.
	ApfsIncompatibleFeatures uint64

	// When the volume was last unmounted.
	ApfsUnmountTime uint64

	// The amount of space, in blocks, that this volume reserves for its own
	// use, or zero.
	ApfsFsReserveBlockCount uint64
	// The maximum number of blocks that this volume can allocate, or zero.
	ApfsFsQuotaBlockCount uint64
	// The number of blocks currently allocated for this volume's file-system
	// data.
	ApfsFsAllocCount uint64

	// Information about the state of the volume's encryption.
	ApfsMetaCryptoCryptoFlags uint32

	// The type of the root file-system tree's records.
	ApfsRootTreeType uint32
	// The type of the extent-reference tree's records.
	ApfsExtentrefTreeType uint32
	// The type of the snapshot metadata tree's records.
	ApfsSnapMetaTreeType uint32

	// The object identifier of the volume's object map.
	ApfsOmapOid OidT
	// The virtual object identifier of the root file-system tree.
	ApfsRootTreeOid OidT
	// The physical object identifier of the extent-reference tree.
	ApfsExtentrefTreeOid OidT
	// The physical object identifier of the snapshot metadata tree.
	ApfsSnapMetaTreeOid OidT

	// The transaction identifier of a snapshot that the volume will revert
	// to, or zero.
	ApfsRevertToXid XidT
	// The object identifier of a volume superblock that the volume will
	// revert to, or zero.
	ApfsRevertToSblockOid OidT

	// The next identifier that will be assigned to a file-system object in
	// this volume.
	ApfsNextObjID uint64

	// The number of regular files in this volume.
	ApfsNumFiles uint64
	// The number of directories in this volume.
	ApfsNumDirectories uint64
	// The number of symbolic links in this volume.
	ApfsNumSymlinks uint64
	// The number of other file-system objects in this volume.
	ApfsNumOtherFsobjects uint64
	// The number of snapshots in this volume.
	ApfsNumSnapshots uint64

	// The total number of blocks that have been allocated by this volume.
	ApfsTotalBlocksAlloced uint64
	// The total number of blocks that have been freed.
	ApfsTotalBlocksFreed uint64

	// The volume's universally unique identifier.
	ApfsVolUUID UUID
	// The time that this volume was last modified, in epoch time.
	ApfsLastModTime uint64

	// The volume's flags.
	ApfsFsFlags uint64

	// Information about the software that created this volume.
	ApfsFormattedBy ApfsModifiedByT
	// Information about the software that has modified this volume.
	ApfsModifiedBy [ApfsMaxHistoricalTimestamps]ApfsModifiedByT

	// The volume's name, as a null-terminated UTF-8 string.
	ApfsVolname [256]byte
	// The next document identifier that will be assigned.
	ApfsNextDocID uint32

	// The role of this volume within the container.
	ApfsRole uint16
}
