package device

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/types"
)

// defaultCacheBudget bounds the block cache's total size before it's
// dropped wholesale, mirroring the teacher's all-or-nothing eviction policy.
const defaultCacheBudget = 50 * 1024 * 1024

// FileDevice is a BlockDevice backed by an *os.File: a raw container device
// node or a flat disk image. Block size starts at a provisional guess and is
// corrected once the container superblock has been parsed.
type FileDevice struct {
	file      *os.File
	base      int64 // byte offset of block 0 within file, nonzero for a DMG data fork
	size      int64
	blockSize uint32

	mu          sync.RWMutex
	cache       map[types.Paddr][]byte
	cacheBytes  int
	cacheBudget int
}

// OpenFile opens path for read-only block access. blockSize is a
// provisional guess (the caller should pass the on-disk format's smallest
// possible block size, 4096) used until SetBlockSize corrects it once the
// container superblock has been read.
func OpenFile(path string, blockSize uint32) (*FileDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &FileDevice{
		file:        f,
		size:        info.Size(),
		blockSize:   blockSize,
		cache:       make(map[types.Paddr][]byte),
		cacheBudget: defaultCacheBudget,
	}, nil
}

// SetBlockSize implements interfaces.BlockDeviceManager.
func (d *FileDevice) SetBlockSize(size uint32) error {
	if size == 0 || size%4 != 0 {
		return fmt.Errorf("%w: block size %d is not a positive multiple of 4", apfserr.ErrInvalid, size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if size != d.blockSize {
		d.blockSize = size
		d.cache = make(map[types.Paddr][]byte)
		d.cacheBytes = 0
	}
	return nil
}

// BlockSize implements interfaces.BlockDeviceReader.
func (d *FileDevice) BlockSize() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.blockSize
}

// TotalBlocks implements interfaces.BlockDeviceReader.
func (d *FileDevice) TotalBlocks() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.blockSize == 0 {
		return 0
	}
	return uint64(d.size) / uint64(d.blockSize)
}

// IsValidAddress implements interfaces.BlockDeviceReader.
func (d *FileDevice) IsValidAddress(address types.Paddr) bool {
	if !address.Validate() {
		return false
	}
	return uint64(address) < d.TotalBlocks()
}

// ReadBlock implements interfaces.BlockDeviceReader.
func (d *FileDevice) ReadBlock(address types.Paddr) ([]byte, error) {
	if !address.Validate() {
		return nil, fmt.Errorf("%w: negative block address %d", apfserr.ErrInvalid, address)
	}

	d.mu.RLock()
	if cached, ok := d.cache[address]; ok {
		out := append([]byte(nil), cached...)
		d.mu.RUnlock()
		return out, nil
	}
	blockSize := d.blockSize
	d.mu.RUnlock()

	offset := int64(address) * int64(blockSize)
	if offset < 0 || offset >= d.size {
		return nil, fmt.Errorf("%w: block %d is beyond device size", apfserr.ErrIO, address)
	}

	buf := make([]byte, blockSize)
	n, err := d.file.ReadAt(buf, d.base+offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: read block %d: %v", apfserr.ErrIO, address, err)
	}
	if n < int(blockSize) {
		return nil, fmt.Errorf("%w: short read at block %d (%d of %d bytes)", apfserr.ErrIO, address, n, blockSize)
	}

	d.mu.Lock()
	d.cacheBlock(address, buf)
	d.mu.Unlock()

	return append([]byte(nil), buf...), nil
}

// ReadBlockRange implements interfaces.BlockDeviceReader.
func (d *FileDevice) ReadBlockRange(address types.Paddr, count uint32) ([]byte, error) {
	if count == 0 {
		return []byte{}, nil
	}
	out := make([]byte, 0, uint64(count)*uint64(d.BlockSize()))
	for i := uint32(0); i < count; i++ {
		b, err := d.ReadBlock(address + types.Paddr(i))
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// cacheBlock stores a block's contents, dropping the whole cache if doing so
// would exceed the budget. Caller must hold d.mu for writing.
func (d *FileDevice) cacheBlock(address types.Paddr, data []byte) {
	if d.cacheBytes+len(data) > d.cacheBudget {
		d.cache = make(map[types.Paddr][]byte)
		d.cacheBytes = 0
	}
	d.cache[address] = append([]byte(nil), data...)
	d.cacheBytes += len(data)
}

// Close implements io.Closer.
func (d *FileDevice) Close() error {
	return d.file.Close()
}
