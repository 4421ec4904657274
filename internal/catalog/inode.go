package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/types"
)

// inodeValMinSize is the fixed portion of j_inode_val_t, before any
// extended-field records that may follow it.
const inodeValMinSize = 92

// DecodeInode parses an inode record's value. Extended fields that may
// trail the fixed structure (a symlink target, a compression header, and
// so on) aren't decoded here: this reader only needs the fixed metadata and
// the data-stream size to serve stat and read requests.
func DecodeInode(value []byte) (types.JInodeValT, error) {
	if len(value) < inodeValMinSize {
		return types.JInodeValT{}, fmt.Errorf("%w: inode record too small (%d bytes)", apfserr.ErrFSCorrupted, len(value))
	}
	e := binary.LittleEndian
	var v types.JInodeValT
	v.ParentID = e.Uint64(value[0:8])
	v.PrivateID = e.Uint64(value[8:16])
	v.CreateTime = e.Uint64(value[16:24])
	v.ModTime = e.Uint64(value[24:32])
	v.ChangeTime = e.Uint64(value[32:40])
	v.AccessTime = e.Uint64(value[40:48])
	v.InternalFlags = e.Uint64(value[48:56])
	v.NchildrenOrNlink = int32(e.Uint32(value[56:60]))
	v.DefaultProtectionClass = e.Uint32(value[60:64])
	v.WriteGenerationCounter = e.Uint32(value[64:68])
	v.BSDFlags = e.Uint32(value[68:72])
	v.Owner = e.Uint32(value[72:76])
	v.Group = e.Uint32(value[76:80])
	v.Mode = types.Mode(e.Uint16(value[80:82]))
	v.Pad1 = e.Uint16(value[82:84])
	v.UncompressedSize = e.Uint64(value[84:92])
	return v, nil
}

// IsDirectory reports whether the inode's mode bits mark it as a directory.
func IsDirectory(v types.JInodeValT) bool {
	return v.Mode&types.ModeIFMT == types.ModeIFDIR
}

// IsSymlink reports whether the inode's mode bits mark it as a symbolic
// link.
func IsSymlink(v types.JInodeValT) bool {
	return v.Mode&types.ModeIFMT == types.ModeIFLNK
}

// IsRegular reports whether the inode's mode bits mark it as a regular
// file.
func IsRegular(v types.JInodeValT) bool {
	return v.Mode&types.ModeIFMT == types.ModeIFREG
}
