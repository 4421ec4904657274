// Package catalog implements lookups against a volume's catalog B-tree: the
// single tree holding every inode, directory entry, extended attribute, and
// file-extent record for the volume.
package catalog

import (
	"bytes"
	"encoding/binary"

	"github.com/go-apfsro/apfsro/internal/types"
)

// encodeHeader packs a file-system object id and record type into the
// 8-byte j_key_t header shared by every catalog key.
func encodeHeader(objID uint64, typ types.JObjType) uint64 {
	return (objID & types.ObjIdMask) | (uint64(typ) << types.ObjTypeShift)
}

// InodeKey returns the catalog key for an inode record.
func InodeKey(objID uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, encodeHeader(objID, types.JObjTypeInode))
	return b
}

// FileExtentKey returns the catalog key for the file-extent record covering
// logicalAddr, or any file-extent record belonging to objID when used with
// Query's LE mode and a maximal logicalAddr.
func FileExtentKey(objID, logicalAddr uint64) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], encodeHeader(objID, types.JObjTypeFileExtent))
	binary.LittleEndian.PutUint64(b[8:16], logicalAddr)
	return b
}

// DirRecKeyPrefix returns the catalog key used to start a directory
// listing: every dir-record key for parentID sorts at or after this key.
func DirRecKeyPrefix(parentID uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, encodeHeader(parentID, types.JObjTypeDirRec))
	return b
}

// DirRecKey returns the catalog key for a specific named directory entry.
func DirRecKey(parentID uint64, name string) []byte {
	b := make([]byte, 8+len(name))
	binary.LittleEndian.PutUint64(b[0:8], encodeHeader(parentID, types.JObjTypeDirRec))
	copy(b[8:], name)
	return b
}

// XattrKeyPrefix returns the catalog key that sorts at or before every
// extended-attribute record belonging to objID.
func XattrKeyPrefix(objID uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, encodeHeader(objID, types.JObjTypeXattr))
	return b
}

// XattrKey returns the catalog key for a specific named extended attribute.
func XattrKey(objID uint64, name string) []byte {
	b := make([]byte, 8+len(name))
	binary.LittleEndian.PutUint64(b[0:8], encodeHeader(objID, types.JObjTypeXattr))
	copy(b[8:], name)
	return b
}

// header decodes the shared (object id, record type) header from the front
// of any catalog key.
func header(b []byte) (objID uint64, typ types.JObjType) {
	h := binary.LittleEndian.Uint64(b[0:8])
	return h & types.ObjIdMask, types.JObjType((h & types.ObjTypeMask) >> types.ObjTypeShift)
}

// CompareKeys orders two catalog keys the way the on-disk tree does:
// primarily by object id, then by record type, then by the type-specific
// trailing field (a logical offset for file extents, raw name bytes for
// directory entries and extended attributes).
func CompareKeys(a, b []byte) int {
	aID, aType := header(a)
	bID, bType := header(b)
	switch {
	case aID < bID:
		return -1
	case aID > bID:
		return 1
	case aType < bType:
		return -1
	case aType > bType:
		return 1
	}

	aRest, bRest := a[8:], b[8:]
	switch aType {
	case types.JObjTypeFileExtent:
		if len(aRest) < 8 || len(bRest) < 8 {
			return bytes.Compare(aRest, bRest)
		}
		av := binary.LittleEndian.Uint64(aRest[0:8])
		bv := binary.LittleEndian.Uint64(bRest[0:8])
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return bytes.Compare(aRest, bRest)
	}
}
