// Package checksum computes and verifies the Fletcher-64 checksum that
// protects every object block on an APFS volume.
package checksum

import (
	"encoding/binary"

	"github.com/go-apfsro/apfsro/internal/types"
)

const mask32 = 0xffffffff

// Compute returns the Fletcher-64 checksum of block, as described by the
// "Fletcher's Checksum Algorithm" appendix of the Apple File System
// Reference (page 149). block's length must be a multiple of 4; the first
// MaxCksumSize bytes (the object's checksum field) are treated as zero,
// matching how the checksum is computed when the object is written.
//
// Unlike a chunked/modulo implementation, this performs the running sums
// across the whole block and folds only once at the end, which is what the
// reference algorithm specifies and what on-disk images actually verify
// against.
func Compute(block []byte) [types.MaxCksumSize]byte {
	var sum1, sum2 uint64

	words := len(block) / 4
	for i := 0; i < words; i++ {
		var word uint32
		if i*4 < types.MaxCksumSize {
			word = 0
		} else {
			word = binary.LittleEndian.Uint32(block[i*4 : i*4+4])
		}
		sum1 += uint64(word)
		sum2 += sum1
	}

	ck1 := mask32 - ((sum1 + sum2) % mask32)
	ck2 := mask32 - ((sum1 + ck1) % mask32)

	var out [types.MaxCksumSize]byte
	binary.LittleEndian.PutUint32(out[0:4], uint32(ck1))
	binary.LittleEndian.PutUint32(out[4:8], uint32(ck2))
	return out
}

// Verify reports whether block's stored checksum (its first MaxCksumSize
// bytes, interpreted as an ObjPhysT.OChecksum) matches the checksum computed
// over the rest of the block.
func Verify(block []byte) bool {
	if len(block) < types.MaxCksumSize || len(block)%4 != 0 {
		return false
	}
	var want [types.MaxCksumSize]byte
	copy(want[:], block[:types.MaxCksumSize])
	got := Compute(block)
	return want == got
}
