package types

// Objects (pages 10-21)
// Depending on how they're stored, objects have some differences, the most
// important of which is the way you use an object identifier to find an
// object.

// OidT is an object identifier.
// For a physical object, its identifier is the logical block address on
// disk where the object is stored. For an ephemeral or virtual object, its
// identifier is a number with no direct relationship to its address.
// Reference: page 12
type OidT uint64

// XidT is a transaction identifier.
// Transactions are uniquely identified by a monotonically increasing
// number. Zero isn't a valid transaction identifier.
// Reference: page 12
type XidT uint64

// MaxCksumSize is the number of bytes used for an object checksum.
// Reference: page 11
const MaxCksumSize = 8

// ObjPhysT is the header present at the start of every object block.
// Reference: page 10
type ObjPhysT struct {
	// The Fletcher-64 checksum of the object, excluding this field itself.
	OChecksum [MaxCksumSize]byte
	// The object's identifier.
	OOid OidT
	// The identifier of the most recent transaction that modified the object.
	OXid XidT
	// The object's type and flags; low 16 bits are the type, high 16 are flags.
	OType uint32
	// The object's subtype.
	OSubtype uint32
}

// XidInvalid is an invalid transaction identifier.
const XidInvalid XidT = 0

// OidInvalid is an invalid object identifier.
const OidInvalid OidT = 0

// Object type constants relevant to the read-only traversal stack.
const (
	ObjectTypeNxSuperblock uint32 = 0x00000001
	ObjectTypeBtree        uint32 = 0x00000002
	ObjectTypeBtreeNode    uint32 = 0x00000003
	ObjectTypeOmap         uint32 = 0x0000000b
	ObjectTypeFs           uint32 = 0x0000000d
)

// ObjectTypeMask extracts the low 16 bits (the type) from a combined
// type+flags field.
const ObjectTypeMask uint32 = 0x0000ffff
