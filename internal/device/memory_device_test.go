package device

import (
	"testing"

	"github.com/go-apfsro/apfsro/internal/apfserr"
	"github.com/go-apfsro/apfsro/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeviceReadWrite(t *testing.T) {
	d := NewMemoryDevice(4096, 16)
	block := make([]byte, 4096)
	block[0] = 0xAB
	d.WriteBlock(5, block)

	got, err := d.ReadBlock(5)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), got[0])

	empty, err := d.ReadBlock(6)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4096), empty, "unwritten blocks read as zero")
}

func TestMemoryDeviceOutOfRange(t *testing.T) {
	d := NewMemoryDevice(4096, 4)
	_, err := d.ReadBlock(types.Paddr(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, apfserr.ErrIO)
}

func TestMemoryDeviceReadBlockRange(t *testing.T) {
	d := NewMemoryDevice(8, 4)
	a := make([]byte, 8)
	a[0] = 1
	b := make([]byte, 8)
	b[0] = 2
	d.WriteBlock(0, a)
	d.WriteBlock(1, b)

	got, err := d.ReadBlockRange(0, 2)
	require.NoError(t, err)
	assert.Equal(t, byte(1), got[0])
	assert.Equal(t, byte(2), got[8])
}

func TestMemoryDeviceIsValidAddress(t *testing.T) {
	d := NewMemoryDevice(4096, 4)
	assert.True(t, d.IsValidAddress(0))
	assert.True(t, d.IsValidAddress(3))
	assert.False(t, d.IsValidAddress(4))
	assert.False(t, d.IsValidAddress(-1))
}
