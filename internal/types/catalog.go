package types

// File-System Objects (pages 91-140)
// The catalog B-tree stores every file-system record for a volume, keyed by
// a file-system object identifier and a record type.

// ObjIdMask extracts the file-system object identifier from a combined
// object-id-and-type field.
const ObjIdMask uint64 = 0x0fffffffffffffff

// ObjTypeMask extracts the record type from a combined object-id-and-type
// field.
const ObjTypeMask uint64 = 0xf000000000000000

// ObjTypeShift is the number of bits the record type is shifted left by in
// a combined object-id-and-type field.
const ObjTypeShift = 60

// JKeyT is the header shared by every catalog B-tree key.
// Reference: page 92
type JKeyT struct {
	// The low 60 bits are the object identifier this record belongs to; the
	// high 4 bits are a JObjType value identifying the kind of record.
	ObjIdAndType uint64
}

// ObjectID returns the file-system object identifier encoded in the key.
func (k JKeyT) ObjectID() uint64 {
	return k.ObjIdAndType & ObjIdMask
}

// Type returns the record type encoded in the key.
func (k JKeyT) Type() JObjType {
	return JObjType((k.ObjIdAndType & ObjTypeMask) >> ObjTypeShift)
}

// JInodeKeyT is the key used for inode records. It carries no fields beyond
// the shared header.
// Reference: page 100
type JInodeKeyT struct {
	Header JKeyT
}

// JInodeValT is the value half of an inode record.
// Reference: pages 100-106
type JInodeValT struct {
	// The identifier of this inode's parent directory.
	ParentID uint64
	// A unique identifier used by extended attributes and data streams that
	// belong to this file.
	PrivateID uint64

	// The time this record was created, last modified, last changed, and
	// last accessed, in epoch time.
	CreateTime uint64
	ModTime    uint64
	ChangeTime uint64
	AccessTime uint64

	// A bit field of flags.
	InternalFlags uint64

	// The number of children this inode has, if it's a directory, or the
	// number of hard links, otherwise.
	NchildrenOrNlink int32

	// The default protection class for this inode.
	DefaultProtectionClass uint32
	// A monotonically increasing counter used to track writes.
	WriteGenerationCounter uint32
	// A bit field of flags used to interpret this structure's fields.
	BSDFlags uint32
	// The user and group identifier of the inode's owner.
	Owner uint32
	Group  uint32
	// The file's standard POSIX permission bits.
	Mode Mode
	// Padding reserved for alignment.
	Pad1 uint16
	// The size, in bytes, of the default data stream, if any.
	UncompressedSize uint64
}

// JDrecKeyT is the variable-length key for a directory-entry record: the
// shared header followed by a UTF-8 name (not null-terminated on disk).
// Reference: page 110
type JDrecKeyT struct {
	Header JKeyT
	// The length of Name, in bytes, including the interior hash used for
	// case-insensitive volumes on disk; readers that don't need the hash
	// can ignore the high bits.
	NameLen uint16
	Name    string
}

// JDrecValT is the value half of a directory-entry record.
// Reference: page 111
type JDrecValT struct {
	// The object identifier of the inode that this entry refers to.
	FileID uint64
	// The time this directory entry was added, in epoch time.
	DateAdded uint64
	// The object type of the inode this entry refers to, one of the JObjType
	// DT_* style constants encoded in the low bits of Flags.
	Flags uint16
}

// JXattrKeyT is the variable-length key for an extended-attribute record.
// Reference: page 128
type JXattrKeyT struct {
	Header  JKeyT
	NameLen uint16
	Name    string
}

// JXattrValT is the value half of an extended-attribute record.
// Reference: page 129
type JXattrValT struct {
	Flags    uint16
	XdataLen uint16
	// Inline data if the XattrDataEmbedded flag is set; otherwise this holds
	// a j_xattr_dstream_t referencing an out-of-line data stream, which
	// isn't decoded by this reader.
	XData []byte
}

// Extended-attribute flags.
const (
	XattrDataStream     uint16 = 0x00000001
	XattrDataEmbedded   uint16 = 0x00000002
	XattrFileSystemOwned uint16 = 0x00000004
	XattrReserved8      uint16 = 0x00000008
)

// JFileExtentKeyT is the key for a file-extent record: the shared header
// followed by the logical offset, within the file, that this extent starts
// at.
// Reference: page 117
type JFileExtentKeyT struct {
	Header     JKeyT
	LogicalAddr uint64
}

// JFileExtentFlagMask and JFileExtentLenMask split a file extent's combined
// length-and-flags field: the low 56 bits are the length in bytes, and the
// high 8 bits are flags.
const (
	JFileExtentLenMask   uint64 = 0x00ffffffffffffff
	JFileExtentFlagMask  uint64 = 0xff00000000000000
	JFileExtentFlagShift        = 56
)

// JFileExtentValT is the value half of a file-extent record.
// Reference: page 117
type JFileExtentValT struct {
	// The length of this extent, in bytes, combined with flag bits; use
	// Length to extract just the byte count.
	LenAndFlags uint64
	// The physical block address that this extent starts at, or zero if
	// it's a hole (a sparse, unallocated region of the file).
	PhysBlockNum uint64
	// The identifier used, along with the file-system object's identifier,
	// to find the encryption key needed to access this extent's data.
	CryptoID uint64
}

// Length returns the extent's length in bytes.
func (v JFileExtentValT) Length() uint64 {
	return v.LenAndFlags & JFileExtentLenMask
}

// IsHole reports whether this extent represents a sparse hole.
func (v JFileExtentValT) IsHole() bool {
	return v.PhysBlockNum == 0
}
