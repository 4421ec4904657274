package types

// Object Maps (pages 44-47)
// An object map uses a B-tree to store a mapping from virtual object
// identifiers and transaction identifiers to the physical addresses where
// those objects are stored.

// OmapPhysT is the object map structure.
// Reference: page 44
type OmapPhysT struct {
	// The object header.
	OmO ObjPhysT

	// A bit field of flags.
	OmFlags uint32
	// The number of snapshots.
	OmSnapCount uint32
	// The type of the object map's B-tree.
	OmTreeType uint32
	// The type of the object map's snapshot tree.
	OmSnapshotTreeType uint32

	// The physical object identifier (block address) of the tree used to
	// store the mappings.
	OmTreeOid OidT
	// The object identifier of the tree used to store snapshots.
	OmSnapshotTreeOid OidT

	// The transaction identifier of the most recent snapshot.
	OmMostRecentSnap XidT

	// The transaction identifier of the pending revert, or zero.
	OmPendingRevertMin XidT
	// The transaction identifier of the pending revert, or zero.
	OmPendingRevertMax XidT
}

// OmapKeyT is the key half of an entry in an object map's B-tree.
// Reference: page 46
type OmapKeyT struct {
	// The object identifier being looked up.
	OkOid OidT
	// The transaction identifier for the version of the object being looked
	// up; a lookup uses the largest transaction identifier that doesn't
	// exceed the one being searched for.
	OkXid XidT
}

// OmapValT is the value half of an entry in an object map's B-tree.
// Reference: page 47
type OmapValT struct {
	// A bit field of flags.
	OvFlags uint32
	// The size, in bytes, of the object.
	OvSize uint32
	// The physical address where the object is stored.
	OvPaddr Paddr
}

// Flags used in OmapValT.OvFlags.
const (
	OmapValDeleted      uint32 = 0x00000001
	OmapValSaved        uint32 = 0x00000002
	OmapValEncrypted    uint32 = 0x00000004
	OmapValNoheader     uint32 = 0x00000008
	OmapValCryptoGeneration uint32 = 0x00000010
)

// OmapKeySize and OmapValSize are the fixed on-disk widths of an object
// map's keys and values, used to walk a fixed-kv-size B-tree without
// decoding a TOC entry's length.
const (
	OmapKeySize = 16
	OmapValSize = 16
)
