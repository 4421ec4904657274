package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/btree"
	"github.com/go-apfsro/apfsro/internal/types"
)

const dirRecValMinSize = 18

// DirEntry is a decoded directory-entry record: the name recovered from the
// key, plus the fixed fields from the value.
type DirEntry struct {
	Name      string
	FileID    uint64
	DateAdded uint64
	Flags     uint16
}

// DecodeDirRec parses one directory-entry record's raw key and value.
func DecodeDirRec(key, value []byte) (DirEntry, error) {
	if len(key) < 8 {
		return DirEntry{}, fmt.Errorf("%w: dir-record key too small", apfserr.ErrFSCorrupted)
	}
	if len(value) < dirRecValMinSize {
		return DirEntry{}, fmt.Errorf("%w: dir-record value too small (%d bytes)", apfserr.ErrFSCorrupted, len(value))
	}
	e := binary.LittleEndian
	return DirEntry{
		Name:      string(key[8:]),
		FileID:    e.Uint64(value[0:8]),
		DateAdded: e.Uint64(value[8:16]),
		Flags:     e.Uint16(value[16:18]),
	}, nil
}

// ListChildren returns every directory-entry record whose parent is
// parentID, in key order (lexicographic by name).
func (t *Tree) ListChildren(parentID uint64) ([]DirEntry, error) {
	prefix := DirRecKeyPrefix(parentID)

	var entries []DirEntry
	err := t.walkFrom(prefix, func(key, value []byte) (bool, error) {
		objID, typ := header(key)
		if objID != parentID || typ != types.JObjTypeDirRec {
			return false, nil
		}
		entry, err := DecodeDirRec(key, value)
		if err != nil {
			return false, err
		}
		entries = append(entries, entry)
		return true, nil
	})
	return entries, err
}

// walkFrom visits every catalog record from the first entry >= from
// onward, in ascending key order, until visit returns false or an error.
// It's a simple recursive in-order walk rather than a cursor API: catalog
// listings are small enough (directory children, a file's xattrs) that
// building the whole slice in one pass is simpler than threading a
// resumable iterator through the B-tree layer.
func (t *Tree) walkFrom(from []byte, visit func(key, value []byte) (bool, error)) error {
	root, err := t.Root()
	if err != nil {
		return fmt.Errorf("read catalog root: %w", err)
	}
	_, err = t.walkNode(root, from, visit)
	return err
}

func (t *Tree) walkNode(node *btree.Table, from []byte, visit func(key, value []byte) (bool, error)) (cont bool, err error) {
	n := node.KeyCount()
	for i := 0; i < n; i++ {
		k, err := node.LocateKey(i)
		if err != nil {
			return false, err
		}
		if node.IsLeaf() {
			if CompareKeys(k, from) < 0 {
				continue
			}
			v, err := node.LocateValue(i)
			if err != nil {
				return false, err
			}
			ok, err := visit(k, v)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			continue
		}

		v, err := node.LocateValue(i)
		if err != nil {
			return false, err
		}
		child, err := t.Child(v, node.Level()-1)
		if err != nil {
			return false, err
		}
		cont, err = t.walkNode(child, from, visit)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}
