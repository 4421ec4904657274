// File: internal/interfaces/block_device.go
package interfaces

import (
	"io"

	"github.com/go-apfsro/apfsro/internal/types"
)

// BlockDeviceReader provides read-only access to the fixed-size logical
// blocks that back a container. Every higher layer (checksum verification,
// B-tree traversal, object map resolution, extent resolution) reads through
// this interface rather than touching a file descriptor directly, so the
// same code works against a raw device, a disk image, or an in-memory
// fixture built for tests.
type BlockDeviceReader interface {
	// ReadBlock reads a single block at the given physical address.
	ReadBlock(address types.Paddr) ([]byte, error)

	// ReadBlockRange reads count consecutive blocks starting at address.
	ReadBlockRange(address types.Paddr, count uint32) ([]byte, error)

	// BlockSize returns the size, in bytes, of a single logical block.
	BlockSize() uint32

	// TotalBlocks returns the total number of logical blocks on the device.
	TotalBlocks() uint64

	// IsValidAddress reports whether address refers to a block within the
	// device's bounds.
	IsValidAddress(address types.Paddr) bool
}

// BlockDeviceManager is implemented by block devices whose geometry is only
// discovered after opening, such as a container whose block size is
// confirmed by parsing its own superblock.
type BlockDeviceManager interface {
	// SetBlockSize fixes the logical block size used for subsequent reads.
	// Mount bootstrap calls this once it has read the container superblock's
	// declared block size, which may differ from the device's best guess
	// made at open time.
	SetBlockSize(size uint32) error
}

// BlockDevice is the full read-only surface a mounted container holds onto
// for its lifetime.
type BlockDevice interface {
	BlockDeviceReader
	BlockDeviceManager
	io.Closer
}
