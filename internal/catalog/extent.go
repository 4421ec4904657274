package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/types"
)

const fileExtentValSize = 24

// DecodeFileExtent parses a file-extent record's value.
func DecodeFileExtent(value []byte) (types.JFileExtentValT, error) {
	if len(value) < fileExtentValSize {
		return types.JFileExtentValT{}, fmt.Errorf("%w: file-extent record too small (%d bytes)", apfserr.ErrFSCorrupted, len(value))
	}
	e := binary.LittleEndian
	return types.JFileExtentValT{
		LenAndFlags:  e.Uint64(value[0:8]),
		PhysBlockNum: e.Uint64(value[8:16]),
		CryptoID:     e.Uint64(value[16:24]),
	}, nil
}

// FindExtent returns the file-extent record covering logicalAddr: the
// record with the greatest logical address not exceeding logicalAddr,
// belonging to objID. The caller (package inode) is responsible for
// checking that logicalAddr actually falls within the returned extent's
// length.
func (t *Tree) FindExtent(objID, logicalAddr uint64) (logicalStart uint64, extent types.JFileExtentValT, err error) {
	key := FileExtentKey(objID, logicalAddr)
	foundKey, value, err := t.FindLE(key)
	if err != nil {
		return 0, types.JFileExtentValT{}, err
	}

	foundID, typ := header(foundKey)
	if foundID != objID || typ != types.JObjTypeFileExtent {
		return 0, types.JFileExtentValT{}, fmt.Errorf("%w: no file extent at or before offset %d", apfserr.ErrNotFound, logicalAddr)
	}

	ext, err := DecodeFileExtent(value)
	if err != nil {
		return 0, types.JFileExtentValT{}, err
	}
	return binary.LittleEndian.Uint64(foundKey[8:16]), ext, nil
}
