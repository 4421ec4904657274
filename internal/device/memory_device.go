package device

import (
	"fmt"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/types"
)

// MemoryDevice is an in-memory BlockDevice backed by a block map, used by
// package tests to build small synthetic containers without touching disk.
type MemoryDevice struct {
	blocks    map[types.Paddr][]byte
	blockSize uint32
	total     uint64
}

// NewMemoryDevice returns a MemoryDevice with the given block size and
// total block count; every block starts zero-filled.
func NewMemoryDevice(blockSize uint32, totalBlocks uint64) *MemoryDevice {
	return &MemoryDevice{
		blocks:    make(map[types.Paddr][]byte),
		blockSize: blockSize,
		total:     totalBlocks,
	}
}

// WriteBlock installs data as the contents of the block at address, for test
// setup. data must be exactly BlockSize() bytes.
func (m *MemoryDevice) WriteBlock(address types.Paddr, data []byte) {
	if uint32(len(data)) != m.blockSize {
		panic(fmt.Sprintf("memory device: block %d has %d bytes, want %d", address, len(data), m.blockSize))
	}
	m.blocks[address] = append([]byte(nil), data...)
}

func (m *MemoryDevice) SetBlockSize(size uint32) error {
	m.blockSize = size
	return nil
}

func (m *MemoryDevice) BlockSize() uint32 { return m.blockSize }

func (m *MemoryDevice) TotalBlocks() uint64 { return m.total }

func (m *MemoryDevice) IsValidAddress(address types.Paddr) bool {
	return address.Validate() && uint64(address) < m.total
}

func (m *MemoryDevice) ReadBlock(address types.Paddr) ([]byte, error) {
	if !m.IsValidAddress(address) {
		return nil, fmt.Errorf("%w: block %d out of range", apfserr.ErrIO, address)
	}
	data, ok := m.blocks[address]
	if !ok {
		return make([]byte, m.blockSize), nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryDevice) ReadBlockRange(address types.Paddr, count uint32) ([]byte, error) {
	out := make([]byte, 0, uint64(count)*uint64(m.blockSize))
	for i := uint32(0); i < count; i++ {
		b, err := m.ReadBlock(address + types.Paddr(i))
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func (m *MemoryDevice) Close() error { return nil }
