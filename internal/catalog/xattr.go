package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/types"
)

const xattrValMinSize = 4

// Xattr is a decoded extended-attribute record.
type Xattr struct {
	Name string
	// Data holds the attribute's value when it's stored inline (the common
	// case for small attributes). Out-of-line attributes, referenced by a
	// j_xattr_dstream_t, aren't followed by this reader.
	Data    []byte
	Inline  bool
}

// DecodeXattr parses one extended-attribute record's raw key and value.
func DecodeXattr(key, value []byte) (Xattr, error) {
	if len(key) < 8 {
		return Xattr{}, fmt.Errorf("%w: xattr key too small", apfserr.ErrFSCorrupted)
	}
	if len(value) < xattrValMinSize {
		return Xattr{}, fmt.Errorf("%w: xattr value too small (%d bytes)", apfserr.ErrFSCorrupted, len(value))
	}
	e := binary.LittleEndian
	flags := e.Uint16(value[0:2])
	xdataLen := e.Uint16(value[2:4])

	x := Xattr{
		Name:   string(key[8:]),
		Inline: flags&types.XattrDataEmbedded != 0,
	}
	if x.Inline {
		end := 4 + int(xdataLen)
		if end > len(value) {
			return Xattr{}, fmt.Errorf("%w: xattr inline data extends beyond record", apfserr.ErrFSCorrupted)
		}
		x.Data = append([]byte(nil), value[4:end]...)
	}
	return x, nil
}

// ListXattrs returns every extended-attribute record belonging to objID.
func (t *Tree) ListXattrs(objID uint64) ([]Xattr, error) {
	prefix := XattrKeyPrefix(objID)

	var out []Xattr
	err := t.walkFrom(prefix, func(key, value []byte) (bool, error) {
		id, typ := header(key)
		if id != objID || typ != types.JObjTypeXattr {
			return false, nil
		}
		x, err := DecodeXattr(key, value)
		if err != nil {
			return false, err
		}
		out = append(out, x)
		return true, nil
	})
	return out, err
}
