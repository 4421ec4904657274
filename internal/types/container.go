package types

// Container (pages 23-42)
// The container superblock (nx_superblock_t) is the entry point for an APFS
// container; it's stored at block zero of the device and replicated across
// the checkpoint area.

// NxMagic is the magic number that identifies a container superblock.
// "NXSB" stored little-endian.
const NxMagic uint32 = 0x4253584e

// NxMaxFileSystems is the largest number of volumes allowed in a container.
const NxMaxFileSystems = 100

// NxEphInfoCount is the number of entries in the nx_eph_info field.
const NxEphInfoCount = 4

// NxNumCounters is the number of counters kept in nx_counters.
const NxNumCounters = 32

// NxSuperblockT is the container superblock.
// Reference: pages 23-30
type NxSuperblockT struct {
	// The object header.
	NxO ObjPhysT

	// The magic number, always NxMagic.
	NxMagic uint32
	// The logical block size used in the container.
	NxBlockSize uint32
	// The total number of logical blocks available in the container.
	NxBlockCount uint64

	// A bit field of the optional features in use by the container.
	NxFeatures uint64
	// A bit field of the read-only compatible features in use.
	NxReadonlyCompatibleFeatures uint64
	// A bit field of the backward-incompatible features in use.
	NxIncompatibleFeatures uint64

	// The universally unique identifier for the container.
	NxUUID UUID

	// The next object identifier that will be used.
	NxNextOid OidT
	// The next transaction identifier that will be used.
	NxNextXid XidT

	// The number of blocks used by the checkpoint descriptor area.
	NxXpDescBlocks uint32
	// The number of blocks used by the checkpoint data area.
	NxXpDataBlocks uint32
	// The base address of the checkpoint descriptor area.
	NxXpDescBase Paddr
	// The base address of the checkpoint data area.
	NxXpDataBase Paddr
	// The next index to use in the checkpoint descriptor area.
	NxXpDescNext uint32
	// The next index to use in the checkpoint data area.
	NxXpDataNext uint32
	// The index of the first valid item in the checkpoint descriptor area.
	NxXpDescIndex uint32
	// The number of blocks in the checkpoint descriptor area used by the
	// current checkpoint.
	NxXpDescLen uint32
	// The index of the first valid item in the checkpoint data area.
	NxXpDataIndex uint32
	// The number of blocks in the checkpoint data area used by the current
	// checkpoint.
	NxXpDataLen uint32

	// The object identifier of the container's space manager.
	NxSpacemanOid OidT
	// The object identifier of the container's object map.
	NxOmapOid OidT
	// The object identifier of the container's reaper.
	NxReaperOid OidT

	// Reserved for testing.
	NxTestType uint32

	// The maximum number of volumes this container can have.
	NxMaxFileSystems uint32
	// An array of object identifiers for volumes in this container.
	NxFsOid [NxMaxFileSystems]OidT

	// An array of counters kept for debugging or analysis.
	NxCounters [NxNumCounters]uint64

	// Information about the blocks used for blocked-out ranges.
	NxBlockedOutPrange Prange
	// The object identifier of a tree used to keep track of allocated ranges
	// that are not tracked by other means.
	NxEvictMappingTreeOid OidT

	// A bit field of flags for the container.
	NxFlags uint64
	// The physical address of the EFI jumpstart (EFI driver) object.
	NxEfiJumpstart Paddr
	// The UUID of the container's Fusion set, or zero.
	NxFusionUUID UUID
	// The block range used as a keybag.
	NxKeylocker Prange

	// An array of ephemeral object identifiers used in the most recent
	// checkpoint.
	NxEphemeralInfo [NxEphInfoCount]uint64

	// Reserved for testing.
	NxTestOid OidT

	// The object identifier of the Fusion middle tree.
	NxFusionMtOid OidT
	// The object identifier of the Fusion write-back cache state.
	NxFusionWbcOid OidT
	// The blocks used for the Fusion write-back cache area.
	NxFusionWbc Prange

	// The newest version of the file system used to mount the container.
	NxNewestMountedVersion uint64

	// The block range of the media keybag.
	NxMkbLocker Prange
}
